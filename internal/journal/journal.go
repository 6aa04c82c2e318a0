// Package journal keeps an append-only history of orchestrator transitions
// in SQLite. It implements [events.Sink] and backs the history command.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/imamik/stagehand/internal/events"
	"github.com/imamik/stagehand/internal/state"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

// Journal stores transitions.
type Journal struct {
	DB *sql.DB
}

// Open opens the journal database at dsn and applies pending migrations.
// Use ":memory:" for an in-memory journal.
func Open(dsn string) (*Journal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{DB: db}, nil
}

func migrate(db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.DB.Close()
}

// Emit appends e. It implements events.Sink.
func (j *Journal) Emit(ctx context.Context, e events.Event) error {
	summary, err := json.Marshal(e.Nodes)
	if err != nil {
		return fmt.Errorf("marshal node summary: %w", err)
	}
	if e.Nodes == nil {
		summary = []byte("{}")
	}
	_, err = j.DB.ExecContext(ctx,
		`INSERT INTO transitions (plan_id, run_id, occurred_at, from_state, to_state, stage_id, next_stage, reason, node_summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.PlanID, e.RunID, e.Timestamp.UTC().Format(time.RFC3339Nano),
		string(e.From), string(e.To), e.StageID, e.NextStageID, e.Reason, string(summary),
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// List returns the transitions of planID, oldest first. A positive limit
// keeps only the most recent entries.
func (j *Journal) List(ctx context.Context, planID string, limit int) ([]events.Event, error) {
	query := `SELECT plan_id, run_id, occurred_at, from_state, to_state, stage_id, next_stage, reason, node_summary
		 FROM (SELECT * FROM transitions WHERE plan_id = ? ORDER BY id DESC LIMIT ?)
		 ORDER BY id ASC`
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.DB.QueryContext(ctx, query, planID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []events.Event
	for rows.Next() {
		var e events.Event
		var occurred, from, to, nodes string
		if err := rows.Scan(&e.PlanID, &e.RunID, &occurred, &from, &to, &e.StageID, &e.NextStageID, &e.Reason, &nodes); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		e.From, e.To = state.Status(from), state.Status(to)
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, occurred); err != nil {
			return nil, fmt.Errorf("parse transition time: %w", err)
		}
		if nodes != "{}" {
			if err := json.Unmarshal([]byte(nodes), &e.Nodes); err != nil {
				return nil, fmt.Errorf("unmarshal node summary: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteByPlan removes every transition of planID.
func (j *Journal) DeleteByPlan(ctx context.Context, planID string) error {
	if _, err := j.DB.ExecContext(ctx, `DELETE FROM transitions WHERE plan_id = ?`, planID); err != nil {
		return fmt.Errorf("delete transitions: %w", err)
	}
	return nil
}
