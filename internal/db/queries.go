package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run represents a row in the runs table.
type Run struct {
	ID            string
	ProjectRoot   string
	Description   string
	TaskKind      string
	Status        string
	Iterations    int
	MaxIterations int
	Summary       string
	StartedAt     string
	FinishedAt    string
}

// PipelineEvent represents a row in the pipeline_events table.
type PipelineEvent struct {
	ID        int
	RunID     string
	Event     string
	Node      string
	Iteration int
	Detail    string
	Timestamp string
}

// VerifyRun represents a row in the verify_runs table.
type VerifyRun struct {
	ID          int
	RunID       string
	Iteration   int
	Command     string
	Succeeded   bool
	Environment bool
	ExitCode    int
	DurationMs  int
	Summary     string
	Detail      string
	Timestamp   string
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// StartRun inserts a run in the running state.
func (d *DB) StartRun(r Run) error {
	if r.StartedAt == "" {
		r.StartedAt = now()
	}
	_, err := d.exec(
		`INSERT INTO runs (id, project_root, description, task_kind, status, iterations, max_iterations, started_at)
		 VALUES (?, ?, ?, ?, 'running', 0, ?, ?)`,
		r.ID, r.ProjectRoot, r.Description, r.TaskKind, r.MaxIterations, r.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun records the terminal status of a run.
func (d *DB) FinishRun(id, status, taskKind string, iterations int, summary string) error {
	res, err := d.exec(
		`UPDATE runs SET status = ?, task_kind = ?, iterations = ?, summary = ?, finished_at = ? WHERE id = ?`,
		status, taskKind, iterations, summary, now(), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// GetRun returns a run by id, or nil if it does not exist.
func (d *DB) GetRun(id string) (*Run, error) {
	row := d.queryRow(
		`SELECT id, project_root, description, task_kind, status, iterations, max_iterations, summary, started_at, finished_at
		 FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (d *DB) ListRuns(limit int) ([]Run, error) {
	q := `SELECT id, project_root, description, task_kind, status, iterations, max_iterations, summary, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := d.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var kind, summary, finished sql.NullString
	if err := s.Scan(&r.ID, &r.ProjectRoot, &r.Description, &kind, &r.Status, &r.Iterations,
		&r.MaxIterations, &summary, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	r.TaskKind = kind.String
	r.Summary = summary.String
	r.FinishedAt = finished.String
	return &r, nil
}

// LogPipelineEvent inserts a pipeline event.
func (d *DB) LogPipelineEvent(runID, event, node string, iteration int, detail string) error {
	_, err := d.exec(
		`INSERT INTO pipeline_events (run_id, event, node, iteration, detail, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, event, node, iteration, detail, now(),
	)
	if err != nil {
		return fmt.Errorf("log pipeline event: %w", err)
	}
	return nil
}

// GetRunEvents returns the events of a run in insertion order.
func (d *DB) GetRunEvents(runID string) ([]PipelineEvent, error) {
	rows, err := d.query(
		`SELECT id, run_id, event, node, iteration, detail, timestamp
		 FROM pipeline_events WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get run events: %w", err)
	}
	defer rows.Close()

	var events []PipelineEvent
	for rows.Next() {
		var e PipelineEvent
		var node, detail sql.NullString
		var iteration sql.NullInt64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &node, &iteration, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pipeline event: %w", err)
		}
		e.Node = node.String
		e.Iteration = int(iteration.Int64)
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// LogVerifyRun inserts a verification record.
func (d *DB) LogVerifyRun(v VerifyRun) error {
	_, err := d.exec(
		`INSERT INTO verify_runs (run_id, iteration, command, succeeded, environment, exit_code, duration_ms, summary, detail, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.RunID, v.Iteration, v.Command, v.Succeeded, v.Environment, v.ExitCode, v.DurationMs, v.Summary, v.Detail, now(),
	)
	if err != nil {
		return fmt.Errorf("log verify run: %w", err)
	}
	return nil
}

// GetVerifyRuns returns the verifications of a run in order.
func (d *DB) GetVerifyRuns(runID string) ([]VerifyRun, error) {
	rows, err := d.query(
		`SELECT id, run_id, iteration, command, succeeded, environment, exit_code, duration_ms, summary, detail, timestamp
		 FROM verify_runs WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get verify runs: %w", err)
	}
	defer rows.Close()

	var runs []VerifyRun
	for rows.Next() {
		var v VerifyRun
		var exitCode, durationMs sql.NullInt64
		var summary, detail sql.NullString
		if err := rows.Scan(&v.ID, &v.RunID, &v.Iteration, &v.Command, &v.Succeeded, &v.Environment,
			&exitCode, &durationMs, &summary, &detail, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("scan verify run: %w", err)
		}
		v.ExitCode = int(exitCode.Int64)
		v.DurationMs = int(durationMs.Int64)
		v.Summary = summary.String
		v.Detail = detail.String
		runs = append(runs, v)
	}
	return runs, rows.Err()
}
