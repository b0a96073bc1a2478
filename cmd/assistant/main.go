package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/scopedkb/internal/audit"
	"github.com/danielpatrickdp/scopedkb/internal/classify"
	"github.com/danielpatrickdp/scopedkb/internal/clearance"
	"github.com/danielpatrickdp/scopedkb/internal/decompose"
	"github.com/danielpatrickdp/scopedkb/internal/llm"
	"github.com/danielpatrickdp/scopedkb/internal/pipeline"
	"github.com/danielpatrickdp/scopedkb/internal/rerank"
	"github.com/danielpatrickdp/scopedkb/internal/retrieval"
	"github.com/danielpatrickdp/scopedkb/internal/store"
	"github.com/danielpatrickdp/scopedkb/internal/synth"
)

// #region main
func main() {
	dbPath := envOr("SCOPEDKB_DB", "scopedkb.db")
	userID := envOr("SCOPEDKB_USER", "local-user")
	levelName := envOr("SCOPEDKB_LEVEL", "GENERAL")
	model := envOr("SCOPEDKB_MODEL", "")
	embedModel := envOr("SCOPEDKB_EMBED_MODEL", "")
	turnTimeout := envDurationOr("SCOPEDKB_TURN_TIMEOUT", 90*time.Second)

	level, err := clearance.Parse(levelName)
	if err != nil {
		log.Fatalf("invalid SCOPEDKB_LEVEL %q: %v", levelName, err)
	}

	kb, auditDB, err := openKB(dbPath)
	if err != nil {
		log.Fatalf("failed to open knowledge base: %v", err)
	}
	defer kb.Close()

	sink, err := audit.NewSQLiteSink(auditDB)
	if err != nil {
		log.Fatalf("failed to prepare audit log: %v", err)
	}
	emitter := audit.NewEmitter(sink)
	defer emitter.Close()

	llmCfg := llm.DefaultConfig()
	if model != "" {
		llmCfg.Model = model
	}
	if embedModel != "" {
		llmCfg.EmbedModel = embedModel
	}
	client := llm.NewClient(llmCfg)

	pipe := pipeline.New(
		classify.NewClassifier(client),
		decompose.NewDecomposer(client),
		retrieval.NewCoordinator(client, kb, retrieval.DefaultConfig()),
		rerank.NewReranker(rerank.NewEmbeddingScorer(client), rerank.DefaultConfig()),
		synth.NewSynthesizer(client),
		emitter,
		pipeline.DefaultConfig(),
	)

	fmt.Println("Scoped knowledge assistant ready.")
	fmt.Printf("  DB: %s | user: %s | clearance: %s | model: %s\n", dbPath, userID, level, llmCfg.Model)
	fmt.Println("Type a question (or 'quit' to exit):")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "quit" || query == "exit" {
			break
		}

		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		answer := pipe.Answer(ctx, query, userID, level)
		cancel()

		fmt.Printf("\n%s\n\n", answer.Text)
		if len(answer.Sources) > 0 {
			fmt.Printf("sources: %s\n", strings.Join(answer.Sources, ", "))
		}
		fmt.Printf("[%s]\n", answer.Outcome)
	}
}

// #endregion main

// #region helpers
// openKB opens the knowledge base selected by SCOPEDKB_BACKEND
// (sqlite or postgres). The audit log always lives in the local SQLite
// file regardless of where the chunks are.
func openKB(dbPath string) (store.Store, *sql.DB, error) {
	switch backend := envOr("SCOPEDKB_BACKEND", "sqlite"); backend {
	case "sqlite":
		kb, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return kb, kb.DB(), nil
	case "postgres":
		dsn := os.Getenv("SCOPEDKB_PG_DSN")
		if dsn == "" {
			return nil, nil, fmt.Errorf("SCOPEDKB_PG_DSN is required with SCOPEDKB_BACKEND=postgres")
		}
		dims := envIntOr("SCOPEDKB_PG_DIMS", 768)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		kb, err := store.NewPostgresStore(ctx, dsn, dims)
		if err != nil {
			return nil, nil, err
		}
		auditDB, err := sql.Open("sqlite", dbPath)
		if err != nil {
			kb.Close()
			return nil, nil, fmt.Errorf("open audit db: %w", err)
		}
		return kb, auditDB, nil
	default:
		return nil, nil, fmt.Errorf("unknown SCOPEDKB_BACKEND %q", backend)
	}
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

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// #endregion helpers
