package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"planes/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	settings TEXT NOT NULL DEFAULT '',
	duration_ticks INTEGER NOT NULL,
	seed INTEGER NOT NULL,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NULL
);

CREATE TABLE IF NOT EXISTS tick_allocations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	tick INTEGER NOT NULL,
	plane_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	cost REAL NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_tick_allocations_run ON tick_allocations(run_id, tick);

CREATE TABLE IF NOT EXISTS task_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	tick INTEGER NOT NULL,
	plane_id TEXT NOT NULL DEFAULT '',
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_task_events_run ON task_events(run_id, tick);
`

// Store persists simulation runs and their per-tick allocation results. The
// monitor reads the same database.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, run domain.RunRecord) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs(id, status, settings, duration_ticks, seed, started_at, finished_at)
		VALUES(?, ?, ?, ?, ?, ?, NULL)`,
		run.ID, string(run.Status), run.Settings, run.DurationTicks, run.Seed, run.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, runID string, status domain.RunStatus) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Unix(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.RunRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, settings, duration_ticks, seed, started_at, finished_at
		FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row.Scan)
}

func (s *Store) ListRuns(ctx context.Context) ([]domain.RunRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, status, settings, duration_ticks, seed, started_at, finished_at
		FROM runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RunRecord, 0)
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}

func scanRun(scan func(dest ...any) error) (domain.RunRecord, error) {
	var run domain.RunRecord
	var status string
	var started int64
	var finished sql.NullInt64
	if err := scan(
		&run.ID, &status, &run.Settings, &run.DurationTicks, &run.Seed, &started, &finished,
	); err != nil {
		return domain.RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = domain.RunStatus(status)
	run.StartedAt = time.Unix(started, 0).UTC()
	if finished.Valid {
		t := time.Unix(finished.Int64, 0).UTC()
		run.FinishedAt = &t
	}
	return run, nil
}

// RecordAllocations writes one tick's published assignment in a single
// transaction.
func (s *Store) RecordAllocations(ctx context.Context, items []domain.TickAllocation) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx record allocations: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, item := range items {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO tick_allocations(run_id, tick, plane_id, task_id, cost)
			VALUES(?, ?, ?, ?, ?)`,
			item.RunID, item.Tick, item.PlaneID, item.TaskID, item.Cost,
		); err != nil {
			return fmt.Errorf("insert allocation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record allocations: %w", err)
	}
	return nil
}

func (s *Store) RecordTaskEvent(ctx context.Context, ev domain.TaskEvent) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO task_events(run_id, task_id, kind, tick, plane_id)
		VALUES(?, ?, ?, ?, ?)`,
		ev.RunID, ev.TaskID, string(ev.Kind), ev.Tick, ev.PlaneID,
	)
	if err != nil {
		return fmt.Errorf("record task event: %w", err)
	}
	return nil
}

func (s *Store) ListRunAllocations(ctx context.Context, runID string, limit int) ([]domain.TickAllocation, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, tick, plane_id, task_id, cost
		FROM tick_allocations
		WHERE run_id = ?
		ORDER BY tick DESC, plane_id ASC
		LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list run allocations: %w", err)
	}
	defer rows.Close()

	result := make([]domain.TickAllocation, 0, limit)
	for rows.Next() {
		var item domain.TickAllocation
		if err := rows.Scan(&item.RunID, &item.Tick, &item.PlaneID, &item.TaskID, &item.Cost); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocations: %w", err)
	}
	return result, nil
}

func (s *Store) ListRunTaskEvents(ctx context.Context, runID string, limit int) ([]domain.TaskEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, task_id, kind, tick, plane_id
		FROM task_events
		WHERE run_id = ?
		ORDER BY tick DESC, id DESC
		LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list run task events: %w", err)
	}
	defer rows.Close()

	result := make([]domain.TaskEvent, 0, limit)
	for rows.Next() {
		var ev domain.TaskEvent
		var kind string
		if err := rows.Scan(&ev.RunID, &ev.TaskID, &kind, &ev.Tick, &ev.PlaneID); err != nil {
			return nil, fmt.Errorf("scan task event: %w", err)
		}
		ev.Kind = domain.TaskEventKind(kind)
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task events: %w", err)
	}
	return result, nil
}

// CountRunTaskEvents returns how many submitted and completed events a run
// has recorded, for the monitor's summary line.
func (s *Store) CountRunTaskEvents(ctx context.Context, runID string) (submitted, completed int, err error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0)
		FROM task_events WHERE run_id = ?`,
		string(domain.TaskEventSubmitted), string(domain.TaskEventCompleted), runID,
	)
	if err := row.Scan(&submitted, &completed); err != nil {
		return 0, 0, fmt.Errorf("count task events: %w", err)
	}
	return submitted, completed, nil
}
