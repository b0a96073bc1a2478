package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danielpatrickdp/scopedkb/internal/audit"
	"github.com/danielpatrickdp/scopedkb/internal/clearance"
	"github.com/danielpatrickdp/scopedkb/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to scopedkb.db")
	auditN := flag.Int("audit", 0, "show N most recent audit events")
	stats := flag.Bool("stats", false, "show knowledge-base chunk counts per clearance level")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" || (*auditN == 0 && !*stats) {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/scopedkb.db [--audit N] [--stats] [--json]")
		os.Exit(2)
	}

	kb, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer kb.Close()

	if *stats {
		if err := runStatsMode(kb, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
	if *auditN > 0 {
		if err := runAuditMode(kb, *auditN, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

// #endregion main

// #region stats-mode

type statsRow struct {
	Level  string `json:"level"`
	Chunks int    `json:"chunks"`
}

func runStatsMode(kb *store.SQLiteStore, jsonOut bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counts, err := kb.CountByLevel(ctx)
	if err != nil {
		return fmt.Errorf("count by level: %w", err)
	}

	rows := make([]statsRow, 0, 4)
	total := 0
	for level := clearance.General; level <= clearance.HighlyConfidential; level++ {
		rows = append(rows, statsRow{Level: level.String(), Chunks: counts[level]})
		total += counts[level]
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	fmt.Printf("%-22s %s\n", "LEVEL", "CHUNKS")
	for _, row := range rows {
		fmt.Printf("%-22s %d\n", row.Level, row.Chunks)
	}
	fmt.Printf("%-22s %d\n", "TOTAL", total)
	return nil
}

// #endregion stats-mode

// #region audit-mode

type auditRow struct {
	CreatedAt   string   `json:"created_at"`
	UserID      string   `json:"user_id"`
	Incident    string   `json:"incident"`
	Severity    string   `json:"severity"`
	Description string   `json:"description,omitempty"`
	Levels      []string `json:"levels,omitempty"`
	Query       string   `json:"query,omitempty"`
}

func runAuditMode(kb *store.SQLiteStore, n int, jsonOut bool) error {
	sink, err := audit.NewSQLiteSink(kb.DB())
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, err := sink.Recent(ctx, n)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	rows := make([]auditRow, 0, len(events))
	for _, e := range events {
		levels := make([]string, 0, len(e.Levels))
		for _, l := range e.Levels {
			levels = append(levels, l.String())
		}
		rows = append(rows, auditRow{
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
			UserID:      e.UserID,
			Incident:    string(e.Incident),
			Severity:    string(e.Severity),
			Description: e.Description,
			Levels:      levels,
			Query:       e.Query,
		})
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No audit events recorded.")
		return nil
	}
	fmt.Printf("%-20s %-14s %-24s %-9s %s\n", "TIME", "USER", "INCIDENT", "SEVERITY", "QUERY")
	for _, row := range rows {
		fmt.Printf("%-20s %-14s %-24s %-9s %s\n",
			row.CreatedAt, row.UserID, row.Incident, row.Severity, truncate(row.Query, 48))
	}
	return nil
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

// #endregion audit-mode
