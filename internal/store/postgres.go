package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/danielpatrickdp/scopedkb/internal/clearance"
)

// #region store-struct
// PostgresStore keeps chunks in Postgres with a pgvector index and lets
// the server do the similarity ordering.
type PostgresStore struct {
	pool *pgxpool.Pool
	dims int
}

// #endregion store-struct

// #region constructor
// NewPostgresStore connects, verifies the connection, and runs migrations.
// dims is the embedding dimensionality of the configured embed model.
func NewPostgresStore(ctx context.Context, connStr string, dims int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, dims: dims}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS kb_chunks (
			chunk_id       TEXT PRIMARY KEY,
			source         TEXT NOT NULL,
			content        TEXT NOT NULL,
			security_level INTEGER NOT NULL,
			metadata_json  JSONB,
			embedding      vector(%d) NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dims))
	if err != nil {
		return fmt.Errorf("create kb_chunks: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS kb_chunks_embedding_idx ON kb_chunks
		USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`)
	if err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}
	return nil
}

// #endregion constructor

// #region close
// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// #endregion close

// #region add
// Add inserts chunks. Chunks without an ID get one.
func (s *PostgresStore) Add(ctx context.Context, chunks []Chunk) error {
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		var metaPtr interface{}
		if len(c.Metadata) > 0 {
			metaJSON, err := json.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata: %w", err)
			}
			metaPtr = string(metaJSON)
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO kb_chunks (chunk_id, source, content, security_level, metadata_json, embedding)
			VALUES ($1, $2, $3, $4, $5, $6::vector)`,
			c.ID, c.Source, c.Content, int(c.SecurityLevel), metaPtr, vectorLiteral(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// #endregion add

// #region search
// Search pulls the topK nearest candidates regardless of level, then
// partitions by the caller's clearance so redactions stay countable.
func (s *PostgresStore) Search(ctx context.Context, embedding []float32, level clearance.Level, topK int) (SearchResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, source, content, security_level, metadata_json, embedding::text,
		       1 - (embedding <=> $1::vector) AS similarity
		FROM kb_chunks
		ORDER BY embedding <=> $1::vector
		LIMIT $2`,
		vectorLiteral(embedding), topK,
	)
	if err != nil {
		return SearchResult{}, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	var result SearchResult
	for rows.Next() {
		var c Chunk
		var levelInt int
		var metaJSON sql.NullString
		var vecText string
		var score float32
		if err := rows.Scan(&c.ID, &c.Source, &c.Content, &levelInt, &metaJSON, &vecText, &score); err != nil {
			return SearchResult{}, fmt.Errorf("scan chunk: %w", err)
		}
		c.SecurityLevel = clearance.Level(levelInt)
		// The reranker needs the stored vector back, not just the score.
		c.Embedding, err = parseVector(vecText)
		if err != nil {
			return SearchResult{}, fmt.Errorf("decode embedding for %s: %w", c.ID, err)
		}
		if metaJSON.Valid {
			if err := json.Unmarshal([]byte(metaJSON.String), &c.Metadata); err != nil {
				return SearchResult{}, fmt.Errorf("unmarshal metadata for %s: %w", c.ID, err)
			}
		}
		if level.Allows(c.SecurityLevel) {
			result.Matches = append(result.Matches, ScoredChunk{Chunk: c, Score: score})
		} else {
			result.Redacted++
		}
	}
	if err := rows.Err(); err != nil {
		return SearchResult{}, fmt.Errorf("iterate chunks: %w", err)
	}
	return result, nil
}

// #endregion search

// #region stats
// CountByLevel returns the number of stored chunks per security level.
func (s *PostgresStore) CountByLevel(ctx context.Context) (map[clearance.Level]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT security_level, COUNT(*) FROM kb_chunks GROUP BY security_level`,
	)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	defer rows.Close()

	counts := make(map[clearance.Level]int)
	for rows.Next() {
		var lv, n int
		if err := rows.Scan(&lv, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[clearance.Level(lv)] = n
	}
	return counts, rows.Err()
}

// #endregion stats
