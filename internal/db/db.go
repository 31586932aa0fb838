// Package db stores mission run history in a local SQLite database.
// Every mission execution becomes one runs row plus one run_steps row
// per step, so regressions can be traced across runs.
package db

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the SQLite database.
type DB struct {
	conn *sql.DB
}

// Run is one recorded mission execution.
type Run struct {
	ID          int64
	Mission     string
	Status      string // running, passed, failed, aborted
	StartedAt   string
	EndedAt     *string
	DurationMs  *int64
	StepsTotal  int
	StepsFailed int
	ReportFile  *string
	Summary     *string
}

// RunStep is one step inside a recorded run.
type RunStep struct {
	ID         int64
	RunID      int64
	Seq        int
	Name       string
	Cmd        *string
	Status     string // passed, failed, skipped
	Detail     *string
	DurationMs int64
	DiffPct    *float64
	Artifact   *string
}

// Open creates a new DB connection and applies all pending migrations.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	d := &DB{conn: conn}
	if err := d.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying *sql.DB for use by other packages if needed.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

func (d *DB) migrate() error {
	goose.SetBaseFS(migrationFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(d.conn, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// --- Run Methods ---

const runColumns = `id, mission, status, started_at, ended_at, duration_ms, steps_total, steps_failed, report_file, summary`

func scanRun(scanner interface{ Scan(...any) error }, r *Run) error {
	return scanner.Scan(&r.ID, &r.Mission, &r.Status, &r.StartedAt, &r.EndedAt, &r.DurationMs, &r.StepsTotal, &r.StepsFailed, &r.ReportFile, &r.Summary)
}

// InsertRun creates a new run record and returns its ID.
func (d *DB) InsertRun(r *Run) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO runs (mission, status, started_at, steps_total, steps_failed)
		 VALUES (?, ?, ?, ?, ?)`,
		r.Mission, r.Status, r.StartedAt, r.StepsTotal, r.StepsFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun records the outcome of a completed run.
func (d *DB) FinishRun(id int64, status, endedAt string, durationMs int64, stepsFailed int, reportFile *string) error {
	_, err := d.conn.Exec(
		`UPDATE runs SET status = ?, ended_at = ?, duration_ms = ?, steps_failed = ?, report_file = ? WHERE id = ?`,
		status, endedAt, durationMs, stepsFailed, reportFile, id,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", id, err)
	}
	return nil
}

// UpdateRunSummary stores an LLM-generated summary for a run.
func (d *DB) UpdateRunSummary(id int64, summary string) error {
	_, err := d.conn.Exec(`UPDATE runs SET summary = ? WHERE id = ?`, summary, id)
	if err != nil {
		return fmt.Errorf("update run summary %d: %w", id, err)
	}
	return nil
}

// GetRun retrieves a single run by ID.
func (d *DB) GetRun(id int64) (*Run, error) {
	r := &Run{}
	row := d.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if err := scanRun(row, r); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get run %d: %w", id, err)
	}
	return r, nil
}

// ListRuns returns runs ordered by started_at descending, with a limit
// and offset.
func (d *DB) ListRuns(limit, offset int) ([]Run, error) {
	rows, err := d.conn.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var r Run
		if err := scanRun(rows, &r); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListRunsByMission returns the most recent runs of one mission.
func (d *DB) ListRunsByMission(mission string, limit int) ([]Run, error) {
	rows, err := d.conn.Query(
		`SELECT `+runColumns+` FROM runs WHERE mission = ? ORDER BY started_at DESC, id DESC LIMIT ?`, mission, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs for %q: %w", mission, err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var r Run
		if err := scanRun(rows, &r); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Step Methods ---

// InsertStep stores one step result and returns its ID.
func (d *DB) InsertStep(s *RunStep) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO run_steps (run_id, seq, name, cmd, status, detail, duration_ms, diff_pct, artifact)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.Seq, s.Name, s.Cmd, s.Status, s.Detail, s.DurationMs, s.DiffPct, s.Artifact,
	)
	if err != nil {
		return 0, fmt.Errorf("insert step: %w", err)
	}
	return res.LastInsertId()
}

// ListSteps returns the steps of a run in sequence order.
func (d *DB) ListSteps(runID int64) ([]RunStep, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, seq, name, cmd, status, detail, duration_ms, diff_pct, artifact
		 FROM run_steps WHERE run_id = ? ORDER BY seq ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list steps for run %d: %w", runID, err)
	}
	defer rows.Close() //nolint:errcheck

	var steps []RunStep
	for rows.Next() {
		var s RunStep
		if err := rows.Scan(&s.ID, &s.RunID, &s.Seq, &s.Name, &s.Cmd, &s.Status, &s.Detail, &s.DurationMs, &s.DiffPct, &s.Artifact); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}
