package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rahul/stepwise/internal/trace"
)

// TraceArchive keeps ended traces in a SQLite database so they survive the process.
type TraceArchive struct {
	DB *sql.DB
}

// timeLayout is fixed width so that text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func NewTraceArchive(dbPath string) (*TraceArchive, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", dbPath, err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS traces (
			id TEXT PRIMARY KEY,
			request_id TEXT,
			start_time TEXT,
			end_time TEXT,
			summary TEXT,
			steps TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS traces_start_time ON traces(start_time);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: migrate: %w", err)
		}
	}

	return &TraceArchive{DB: db}, nil
}

func (a *TraceArchive) Close() error {
	return a.DB.Close()
}

// SaveTrace inserts or replaces a trace.
func (a *TraceArchive) SaveTrace(ctx context.Context, tr trace.Trace) error {
	steps, err := json.Marshal(tr.Steps)
	if err != nil {
		return fmt.Errorf("store: marshal steps: %w", err)
	}
	var end sql.NullString
	if tr.EndTime != nil {
		end = sql.NullString{String: tr.EndTime.UTC().Format(timeLayout), Valid: true}
	}

	query := `INSERT OR REPLACE INTO traces (id, request_id, start_time, end_time, summary, steps) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = a.DB.ExecContext(ctx, query,
		tr.ID, tr.RequestID, tr.StartTime.UTC().Format(timeLayout), end, tr.Summary, string(steps))
	if err != nil {
		return fmt.Errorf("store: save trace %s: %w", tr.ID, err)
	}
	return nil
}

// ListTraces returns up to limit traces, newest first.
func (a *TraceArchive) ListTraces(ctx context.Context, limit int) ([]trace.Trace, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, request_id, start_time, end_time, summary, steps FROM traces ORDER BY start_time DESC LIMIT ?`
	rows, err := a.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list traces: %w", err)
	}
	defer rows.Close()

	var out []trace.Trace
	for rows.Next() {
		tr, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// GetTrace loads one trace. The boolean is false when no such trace exists.
func (a *TraceArchive) GetTrace(ctx context.Context, id string) (trace.Trace, bool, error) {
	query := `SELECT id, request_id, start_time, end_time, summary, steps FROM traces WHERE id = ?`
	tr, err := scanTrace(a.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return trace.Trace{}, false, nil
	}
	if err != nil {
		return trace.Trace{}, false, err
	}
	return tr, true, nil
}

// DeleteOlderThan removes traces that started before the cutoff.
func (a *TraceArchive) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := a.DB.ExecContext(ctx, `DELETE FROM traces WHERE start_time < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("store: delete traces: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrace(s scanner) (trace.Trace, error) {
	var (
		tr           trace.Trace
		start, steps string
		end, summary sql.NullString
	)
	if err := s.Scan(&tr.ID, &tr.RequestID, &start, &end, &summary, &steps); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return trace.Trace{}, err
		}
		return trace.Trace{}, fmt.Errorf("store: scan trace: %w", err)
	}

	t, err := time.Parse(timeLayout, start)
	if err != nil {
		return trace.Trace{}, fmt.Errorf("store: parse start time: %w", err)
	}
	tr.StartTime = t
	if end.Valid {
		e, err := time.Parse(timeLayout, end.String)
		if err != nil {
			return trace.Trace{}, fmt.Errorf("store: parse end time: %w", err)
		}
		tr.EndTime = &e
	}
	tr.Summary = summary.String
	if err := json.Unmarshal([]byte(steps), &tr.Steps); err != nil {
		return trace.Trace{}, fmt.Errorf("store: unmarshal steps: %w", err)
	}
	return tr, nil
}
