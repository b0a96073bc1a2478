package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/danielpatrickdp/scopedkb/internal/clearance"
	"github.com/danielpatrickdp/scopedkb/internal/llm"
	"github.com/danielpatrickdp/scopedkb/internal/store"
)

// fixtureChunk is one entry of the JSON ingest file.
type fixtureChunk struct {
	Source        string            `json:"source"`
	Content       string            `json:"content"`
	SecurityLevel string            `json:"security_level"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// #region main
func main() {
	var (
		dbPath     = flag.String("db", envOr("SCOPEDKB_DB", "scopedkb.db"), "knowledge-base database file")
		input      = flag.String("input", "", "JSON file with an array of chunks to ingest")
		embedModel = flag.String("embed-model", "", "override the embedding model")
		batchSize  = flag.Int("batch", 32, "chunks per insert batch")
	)
	flag.Parse()

	if *input == "" {
		log.Fatal("usage: bootstrap-kb -input chunks.json [-db scopedkb.db]")
	}

	fmt.Println("=== Knowledge Base Bootstrap ===")
	fmt.Printf("  DB: %s | input: %s\n", *dbPath, *input)

	raw, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}
	var fixtures []fixtureChunk
	if err := json.Unmarshal(raw, &fixtures); err != nil {
		log.Fatalf("parse input: %v", err)
	}
	if len(fixtures) == 0 {
		fmt.Println("Nothing to ingest.")
		return
	}

	kb, err := openKB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open knowledge base: %v", err)
	}
	defer kb.Close()

	llmCfg := llm.DefaultConfig()
	if *embedModel != "" {
		llmCfg.EmbedModel = *embedModel
	}
	client := llm.NewClient(llmCfg)

	start := time.Now()
	var batch []store.Chunk
	ingested := 0
	for i, fx := range fixtures {
		level, err := clearance.Parse(fx.SecurityLevel)
		if err != nil {
			log.Fatalf("chunk %d (%s): %v", i, fx.Source, err)
		}
		if fx.Content == "" {
			log.Fatalf("chunk %d (%s): empty content", i, fx.Source)
		}

		ctx, cancel := context.WithTimeout(context.Background(), llmCfg.Timeout)
		embedding, err := client.Embed(ctx, fx.Content)
		cancel()
		if err != nil {
			log.Fatalf("embed chunk %d (%s): %v", i, fx.Source, err)
		}

		batch = append(batch, store.Chunk{
			Source:        fx.Source,
			Content:       fx.Content,
			SecurityLevel: level,
			Metadata:      fx.Metadata,
			Embedding:     embedding,
		})
		if len(batch) >= *batchSize {
			if err := flush(kb, batch); err != nil {
				log.Fatalf("insert batch: %v", err)
			}
			ingested += len(batch)
			fmt.Printf("  ingested %d/%d...\n", ingested, len(fixtures))
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := flush(kb, batch); err != nil {
			log.Fatalf("insert batch: %v", err)
		}
		ingested += len(batch)
	}

	fmt.Printf("Done. %d chunks ingested in %s.\n", ingested, time.Since(start).Round(time.Millisecond))

	counter, ok := kb.(interface {
		CountByLevel(ctx context.Context) (map[clearance.Level]int, error)
	})
	if !ok {
		return
	}
	counts, err := counter.CountByLevel(context.Background())
	if err != nil {
		log.Fatalf("count by level: %v", err)
	}
	for level := clearance.General; level <= clearance.HighlyConfidential; level++ {
		fmt.Printf("  %-20s %d\n", level, counts[level])
	}
}

// #endregion main

// #region helpers
// openKB opens the knowledge base selected by SCOPEDKB_BACKEND
// (sqlite or postgres).
func openKB(dbPath string) (store.Store, error) {
	switch backend := envOr("SCOPEDKB_BACKEND", "sqlite"); backend {
	case "sqlite":
		return store.NewSQLiteStore(dbPath)
	case "postgres":
		dsn := os.Getenv("SCOPEDKB_PG_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("SCOPEDKB_PG_DSN is required with SCOPEDKB_BACKEND=postgres")
		}
		dims := envIntOr("SCOPEDKB_PG_DIMS", 768)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return store.NewPostgresStore(ctx, dsn, dims)
	default:
		return nil, fmt.Errorf("unknown SCOPEDKB_BACKEND %q", backend)
	}
}

func flush(kb store.Store, batch []store.Chunk) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return kb.Add(ctx, batch)
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
