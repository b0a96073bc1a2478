package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/scopedkb/internal/clearance"
)

// #region schema
const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	event_id      TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	incident_type TEXT NOT NULL,
	severity      TEXT NOT NULL,
	description   TEXT NOT NULL,
	details_json  TEXT,
	levels        TEXT,
	query         TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_user ON audit_log(user_id, created_at);
`

// #endregion schema

// #region sink-struct
// SQLiteSink persists audit events to an audit_log table.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink runs migrations on the given database and returns a sink.
func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	if _, err := db.Exec(auditSchema); err != nil {
		return nil, fmt.Errorf("migrate audit_log: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// #endregion sink-struct

// #region emit
// Emit writes one event row.
func (s *SQLiteSink) Emit(ctx context.Context, event Event) error {
	var detailsPtr interface{}
	if len(event.Details) > 0 {
		detailsJSON, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		detailsPtr = string(detailsJSON)
	}

	var levelsPtr interface{}
	if len(event.Levels) > 0 {
		names := make([]string, len(event.Levels))
		for i, lv := range event.Levels {
			names[i] = lv.String()
		}
		levelsPtr = strings.Join(names, ",")
	}

	var queryPtr interface{}
	if event.Query != "" {
		queryPtr = event.Query
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (event_id, user_id, incident_type, severity, description, details_json, levels, query, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.UserID, string(event.Incident), string(event.Severity),
		event.Description, detailsPtr, levelsPtr, queryPtr,
		event.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// #endregion emit

// #region recent
// Recent returns the latest n events, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, n int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, user_id, incident_type, severity, description, details_json, levels, query, created_at
		 FROM audit_log ORDER BY created_at DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit_log: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var detailsJSON, levels, query sql.NullString
		var createdStr string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Incident, &e.Severity, &e.Description,
			&detailsJSON, &levels, &query, &createdStr); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if detailsJSON.Valid {
			if err := json.Unmarshal([]byte(detailsJSON.String), &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details for %s: %w", e.ID, err)
			}
		}
		if levels.Valid {
			for _, name := range strings.Split(levels.String, ",") {
				lv, err := clearance.Parse(name)
				if err != nil {
					// Denial events record the requester's invalid
					// clearance as its UNKNOWN form; a stored row must
					// stay readable.
					lv = clearance.Unknown
				}
				e.Levels = append(e.Levels, lv)
			}
		}
		if query.Valid {
			e.Query = query.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		events = append(events, e)
	}
	return events, rows.Err()
}

// #endregion recent
