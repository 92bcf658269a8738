/*
Package sqlite provides the SQLite-backed implementation of routine.Store.

PURPOSE:
  Implements routine definition persistence, the exception and completion
  row stores, and the append-only bulk-operation log. The same SQL shapes
  apply to PostgreSQL; only minor dialect details differ.

KEY TABLES:
  routines:        Definitions (soft delete via deleted_at)
  exceptions:      Per-date overrides, PRIMARY KEY (routine_id, date)
  completions:     Progress rows,      PRIMARY KEY (routine_id, date)
  bulk_operations: Append-only audit trail

THE CONDITIONAL INCREMENT:
  IncrementCompletion is one upsert:

    INSERT ... ON CONFLICT(routine_id, date) DO UPDATE
      SET count = count + 1, ...
      WHERE completions.count < excluded.goal

  The WHERE on the DO UPDATE arm makes the goal check and the increment a
  single atomic statement; RowsAffected() == 0 means the cap held and
  nothing changed. This is the one write primitive that must never be
  split into a read followed by a write.

CASCADE:
  Child tables declare ON DELETE CASCADE against routines, and the
  connection opens with foreign keys on, so a purge removes exceptions,
  completions, and audit rows in one statement.

WAL MODE:
  Opened with WAL so readers don't block behind the single writer.

USAGE:
  st, err := sqlite.New("./routines.db", logger)
  ...
  ledger := routine.NewLedger(st, cache, logger)

SEE ALSO:
  - routine/store.go: Interface contracts
  - routine/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/warp/routine-engine/routine"
)

// Store implements routine.Store on SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ routine.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS routines (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		color         TEXT NOT NULL DEFAULT '',
		priority      TEXT NOT NULL,
		times_per_day INTEGER NOT NULL,
		schedule_type TEXT NOT NULL,
		days_of_week  TEXT NOT NULL DEFAULT '[]',
		active_from   TEXT NOT NULL,
		active_to     TEXT,
		paused_until  TEXT,
		deleted_at    TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exceptions (
		routine_id             TEXT NOT NULL REFERENCES routines(id) ON DELETE CASCADE,
		date                   TEXT NOT NULL,
		skip                   INTEGER NOT NULL DEFAULT 0,
		override_times_per_day INTEGER,
		override_times         TEXT,
		PRIMARY KEY (routine_id, date)
	);

	CREATE TABLE IF NOT EXISTS completions (
		routine_id   TEXT NOT NULL REFERENCES routines(id) ON DELETE CASCADE,
		date         TEXT NOT NULL,
		count        INTEGER NOT NULL,
		goal         INTEGER NOT NULL,
		completed_at TEXT NOT NULL,
		PRIMARY KEY (routine_id, date),
		CHECK (count >= 0 AND count <= goal)
	);

	CREATE TABLE IF NOT EXISTS bulk_operations (
		id             TEXT PRIMARY KEY,
		routine_id     TEXT NOT NULL REFERENCES routines(id) ON DELETE CASCADE,
		operation_type TEXT NOT NULL,
		start_date     TEXT NOT NULL,
		end_date       TEXT NOT NULL,
		affected_dates TEXT NOT NULL,
		created_at     TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exceptions_routine_date
		ON exceptions(routine_id, date);
	CREATE INDEX IF NOT EXISTS idx_completions_routine_date
		ON completions(routine_id, date);
	CREATE INDEX IF NOT EXISTS idx_bulk_operations_routine
		ON bulk_operations(routine_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROUTINE STORE
// =============================================================================

func (s *Store) PutRoutine(ctx context.Context, r routine.RoutineDefinition) error {
	days, err := json.Marshal(weekdayInts(r.Schedule.DaysOfWeek))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO routines (id, name, color, priority, times_per_day, schedule_type,
		                      days_of_week, active_from, active_to, paused_until,
		                      deleted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name          = excluded.name,
			color         = excluded.color,
			priority      = excluded.priority,
			times_per_day = excluded.times_per_day,
			schedule_type = excluded.schedule_type,
			days_of_week  = excluded.days_of_week,
			active_from   = excluded.active_from,
			active_to     = excluded.active_to,
			paused_until  = excluded.paused_until,
			deleted_at    = excluded.deleted_at,
			updated_at    = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.Name, r.Color, r.Priority, r.TimesPerDay, r.Schedule.Type,
		string(days), r.ActiveFrom.String(), nullDate(r.ActiveTo), nullDate(r.PausedUntil),
		nullTime(r.DeletedAt), r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		s.logger.Error("failed to put routine", zap.String("routine_id", string(r.ID)), zap.Error(err))
	}
	return err
}

func (s *Store) GetRoutine(ctx context.Context, id routine.RoutineID) (*routine.RoutineDefinition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, color, priority, times_per_day, schedule_type, days_of_week,
		       active_from, active_to, paused_until, deleted_at, created_at, updated_at
		FROM routines WHERE id = ?`, id)

	r, err := scanRoutine(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) ListRoutines(ctx context.Context, includeDeleted bool) ([]routine.RoutineDefinition, error) {
	query := `
		SELECT id, name, color, priority, times_per_day, schedule_type, days_of_week,
		       active_from, active_to, paused_until, deleted_at, created_at, updated_at
		FROM routines`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list routines: %w", err)
	}
	defer rows.Close()

	var out []routine.RoutineDefinition
	for rows.Next() {
		r, err := scanRoutine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) PurgeRoutine(ctx context.Context, id routine.RoutineID) error {
	// Cascades to exceptions, completions, and bulk_operations.
	_, err := s.db.ExecContext(ctx, `DELETE FROM routines WHERE id = ?`, id)
	if err != nil {
		s.logger.Error("failed to purge routine", zap.String("routine_id", string(id)), zap.Error(err))
	}
	return err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRoutine(row scanner) (*routine.RoutineDefinition, error) {
	var (
		r          routine.RoutineDefinition
		daysJSON   string
		activeFrom string
		activeTo   sql.NullString
		paused     sql.NullString
		deletedAt  sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(
		&r.ID, &r.Name, &r.Color, &r.Priority, &r.TimesPerDay, &r.Schedule.Type,
		&daysJSON, &activeFrom, &activeTo, &paused, &deletedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	var days []int
	if err := json.Unmarshal([]byte(daysJSON), &days); err != nil {
		return nil, fmt.Errorf("corrupt days_of_week for routine %s: %w", r.ID, err)
	}
	for _, d := range days {
		r.Schedule.DaysOfWeek = append(r.Schedule.DaysOfWeek, time.Weekday(d))
	}

	if r.ActiveFrom, err = routine.ParseDate(activeFrom); err != nil {
		return nil, err
	}
	if r.ActiveTo, err = parseNullDate(activeTo); err != nil {
		return nil, err
	}
	if r.PausedUntil, err = parseNullDate(paused); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t, err := time.Parse(time.RFC3339, deletedAt.String)
		if err != nil {
			return nil, err
		}
		r.DeletedAt = &t
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}

// =============================================================================
// EXCEPTION STORE
// =============================================================================

func (s *Store) GetException(ctx context.Context, id routine.RoutineID, d routine.Date) (*routine.ExceptionEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT routine_id, date, skip, override_times_per_day, override_times
		FROM exceptions WHERE routine_id = ? AND date = ?`, id, d.String())

	e, err := scanException(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) PutException(ctx context.Context, e routine.ExceptionEntry) error {
	var times any
	if len(e.OverrideTimes) > 0 {
		raw, err := json.Marshal(e.OverrideTimes)
		if err != nil {
			return err
		}
		times = string(raw)
	}

	query := `
		INSERT INTO exceptions (routine_id, date, skip, override_times_per_day, override_times)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(routine_id, date) DO UPDATE SET
			skip                   = excluded.skip,
			override_times_per_day = excluded.override_times_per_day,
			override_times         = excluded.override_times
	`
	_, err := s.db.ExecContext(ctx, query,
		e.RoutineID, e.Date.String(), boolInt(e.Skip), nullInt(e.OverrideTimesPerDay), times)
	if err != nil {
		s.logger.Error("failed to put exception",
			zap.String("routine_id", string(e.RoutineID)), zap.String("date", e.Date.String()), zap.Error(err))
	}
	return err
}

func (s *Store) DeleteException(ctx context.Context, id routine.RoutineID, d routine.Date) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM exceptions WHERE routine_id = ? AND date = ?`, id, d.String())
	return err
}

func (s *Store) ExceptionsInRange(ctx context.Context, id routine.RoutineID, from, to routine.Date) (map[string]routine.ExceptionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT routine_id, date, skip, override_times_per_day, override_times
		FROM exceptions
		WHERE routine_id = ? AND date >= ? AND date <= ?`,
		id, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query exceptions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]routine.ExceptionEntry)
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		out[e.Date.String()] = *e
	}
	return out, rows.Err()
}

func scanException(row scanner) (*routine.ExceptionEntry, error) {
	var (
		e     routine.ExceptionEntry
		date  string
		skip  int
		goal  sql.NullInt64
		times sql.NullString
	)
	if err := row.Scan(&e.RoutineID, &date, &skip, &goal, &times); err != nil {
		return nil, err
	}

	var err error
	if e.Date, err = routine.ParseDate(date); err != nil {
		return nil, err
	}
	e.Skip = skip != 0
	if goal.Valid {
		v := int(goal.Int64)
		e.OverrideTimesPerDay = &v
	}
	if times.Valid && times.String != "" {
		if err := json.Unmarshal([]byte(times.String), &e.OverrideTimes); err != nil {
			return nil, fmt.Errorf("corrupt override_times for %s/%s: %w", e.RoutineID, date, err)
		}
	}
	return &e, nil
}

// =============================================================================
// COMPLETION STORE
// =============================================================================

func (s *Store) GetCompletion(ctx context.Context, id routine.RoutineID, d routine.Date) (*routine.CompletionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT routine_id, date, count, goal, completed_at
		FROM completions WHERE routine_id = ? AND date = ?`, id, d.String())

	rec, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// IncrementCompletion is the conditional atomic increment. One statement:
// insert the first completion, or add one while the count is still under
// the goal. Zero rows affected means the cap held.
func (s *Store) IncrementCompletion(ctx context.Context, id routine.RoutineID, d routine.Date, goal int, at time.Time) (*routine.CompletionRecord, bool, error) {
	// A non-positive goal has no room even for a first write. Skipping the
	// insert keeps the CHECK constraint from turning a cap refusal into an
	// error row.
	if goal < 1 {
		rec, err := s.GetCompletion(ctx, id, d)
		return rec, false, err
	}

	query := `
		INSERT INTO completions (routine_id, date, count, goal, completed_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(routine_id, date) DO UPDATE SET
			count        = completions.count + 1,
			goal         = excluded.goal,
			completed_at = excluded.completed_at
		WHERE completions.count < excluded.goal
	`
	res, err := s.db.ExecContext(ctx, query, id, d.String(), goal, at.UTC().Format(time.RFC3339))
	if err != nil {
		s.logger.Error("failed to increment completion",
			zap.String("routine_id", string(id)), zap.String("date", d.String()), zap.Error(err))
		return nil, false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	rec, err := s.GetCompletion(ctx, id, d)
	if err != nil {
		return nil, false, err
	}
	return rec, affected > 0, nil
}

func (s *Store) DeleteCompletion(ctx context.Context, id routine.RoutineID, d routine.Date) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM completions WHERE routine_id = ? AND date = ?`, id, d.String())
	return err
}

func (s *Store) CompletionsInRange(ctx context.Context, id routine.RoutineID, from, to routine.Date) (map[string]routine.CompletionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT routine_id, date, count, goal, completed_at
		FROM completions
		WHERE routine_id = ? AND date >= ? AND date <= ?`,
		id, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]routine.CompletionRecord)
	for rows.Next() {
		rec, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		out[rec.Date.String()] = *rec
	}
	return out, rows.Err()
}

func scanCompletion(row scanner) (*routine.CompletionRecord, error) {
	var (
		rec         routine.CompletionRecord
		date        string
		completedAt string
	)
	if err := row.Scan(&rec.RoutineID, &date, &rec.Count, &rec.Goal, &completedAt); err != nil {
		return nil, err
	}

	var err error
	if rec.Date, err = routine.ParseDate(date); err != nil {
		return nil, err
	}
	rec.CompletedAt, _ = time.Parse(time.RFC3339, completedAt)
	return &rec, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendBulkOperation(ctx context.Context, rec routine.BulkOperationRecord) error {
	isoDates := make([]string, len(rec.AffectedDates))
	for i, d := range rec.AffectedDates {
		isoDates[i] = d.String()
	}
	raw, err := json.Marshal(isoDates)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bulk_operations (id, routine_id, operation_type, start_date, end_date, affected_dates, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RoutineID, rec.OperationType,
		rec.StartDate.String(), rec.EndDate.String(), string(raw),
		rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		s.logger.Error("failed to append bulk operation",
			zap.String("routine_id", string(rec.RoutineID)), zap.Error(err))
	}
	return err
}

func (s *Store) BulkOperations(ctx context.Context, id routine.RoutineID) ([]routine.BulkOperationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, routine_id, operation_type, start_date, end_date, affected_dates, created_at
		FROM bulk_operations
		WHERE routine_id = ?
		ORDER BY created_at DESC, id DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query bulk operations: %w", err)
	}
	defer rows.Close()

	var out []routine.BulkOperationRecord
	for rows.Next() {
		var (
			rec       routine.BulkOperationRecord
			start     string
			end       string
			datesJSON string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.RoutineID, &rec.OperationType, &start, &end, &datesJSON, &createdAt); err != nil {
			return nil, err
		}
		if rec.StartDate, err = routine.ParseDate(start); err != nil {
			return nil, err
		}
		if rec.EndDate, err = routine.ParseDate(end); err != nil {
			return nil, err
		}
		var isoDates []string
		if err := json.Unmarshal([]byte(datesJSON), &isoDates); err != nil {
			return nil, fmt.Errorf("corrupt affected_dates for operation %s: %w", rec.ID, err)
		}
		for _, iso := range isoDates {
			d, err := routine.ParseDate(iso)
			if err != nil {
				return nil, err
			}
			rec.AffectedDates = append(rec.AffectedDates, d)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func nullDate(d *routine.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDate(s sql.NullString) (*routine.Date, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := routine.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func weekdayInts(days []time.Weekday) []int {
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = int(d)
	}
	return out
}
