package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/scopedkb/internal/clearance"
)

// #region schema
const chunksSchema = `
CREATE TABLE IF NOT EXISTS kb_chunks (
	chunk_id       TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	content        TEXT NOT NULL,
	security_level INTEGER NOT NULL,
	metadata_json  TEXT,
	embedding      BLOB NOT NULL,
	created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_kb_chunks_level ON kb_chunks(security_level);
`

// #endregion schema

// #region store-struct
// SQLiteStore keeps chunks and their embeddings in SQLite and scores
// similarity in-process. Fine for the corpus sizes this serves; swap in
// the Postgres variant when the index has to live server-side.
type SQLiteStore struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewSQLiteStore opens (or creates) a SQLite knowledge base.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(chunksSchema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. audit).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region add
// Add inserts chunks in one transaction. Chunks without an ID get one.
func (s *SQLiteStore) Add(ctx context.Context, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

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
		_, err = tx.ExecContext(ctx,
			`INSERT INTO kb_chunks (chunk_id, source, content, security_level, metadata_json, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Source, c.Content, int(c.SecurityLevel), metaPtr,
			encodeVector(c.Embedding), time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// #endregion add

// #region search
// Search scores every chunk against the query embedding, keeps the topK
// candidates, and partitions them by the caller's clearance level.
func (s *SQLiteStore) Search(ctx context.Context, embedding []float32, level clearance.Level, topK int) (SearchResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, source, content, security_level, metadata_json, embedding FROM kb_chunks`,
	)
	if err != nil {
		return SearchResult{}, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var candidates []ScoredChunk
	for rows.Next() {
		var c Chunk
		var levelInt int
		var metaJSON sql.NullString
		var vecBlob []byte
		if err := rows.Scan(&c.ID, &c.Source, &c.Content, &levelInt, &metaJSON, &vecBlob); err != nil {
			return SearchResult{}, fmt.Errorf("scan chunk: %w", err)
		}
		c.SecurityLevel = clearance.Level(levelInt)
		if metaJSON.Valid {
			if err := json.Unmarshal([]byte(metaJSON.String), &c.Metadata); err != nil {
				return SearchResult{}, fmt.Errorf("unmarshal metadata for %s: %w", c.ID, err)
			}
		}
		c.Embedding = decodeVector(vecBlob)
		candidates = append(candidates, ScoredChunk{Chunk: c, Score: CosineSimilarity(embedding, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return SearchResult{}, fmt.Errorf("iterate chunks: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	var result SearchResult
	for _, cand := range candidates {
		if level.Allows(cand.Chunk.SecurityLevel) {
			result.Matches = append(result.Matches, cand)
		} else {
			result.Redacted++
		}
	}
	return result, nil
}

// #endregion search

// #region stats
// CountByLevel returns the number of stored chunks per security level.
func (s *SQLiteStore) CountByLevel(ctx context.Context) (map[clearance.Level]int, error) {
	rows, err := s.db.QueryContext(ctx,
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

