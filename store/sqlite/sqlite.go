/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements roster.TxStore using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  doctors:         Entity records
  duties:          Roster records (doctor x date x shift)
  leave_requests:  Leave lifecycle
  leave_balances:  Per-doctor annual accounts
  swap_requests:   Swap lifecycle
  audit_log:       Append-only record of committed transitions

TRANSACTIONS:
  WithTx opens a database transaction and hands the caller a Store view
  bound to it. The connection string uses _txlock=immediate so writing
  transactions take the write lock up front: conflicting commits are
  serialized by SQLite itself, and the two-sided duty exchange is never
  observable half-done.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

DATE ENCODING:
  Calendar dates are TEXT 'YYYY-MM-DD' (lexicographic order == date order),
  instants are RFC3339, balances are decimal strings.

USAGE:
  store, err := sqlite.New("./data/roster.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - roster/store.go:        Interface definitions and the WithTx contract
  - roster/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/roster-engine/roster"
)

// Store implements roster.TxStore using SQLite.
type Store struct {
	db *sql.DB
	queries
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection sidesteps table-lock contention between the pool's
	// connections; SQLite has one writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, queries: queries{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(roster.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&queries{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS doctors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		department TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS duties (
		id TEXT PRIMARY KEY,
		doctor_id TEXT NOT NULL REFERENCES doctors(id),
		date TEXT NOT NULL,
		shift TEXT NOT NULL,
		is_referral_duty INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_duties_doctor_date
		ON duties(doctor_id, date);
	CREATE INDEX IF NOT EXISTS idx_duties_date
		ON duties(date);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		doctor_id TEXT NOT NULL REFERENCES doctors(id),
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		admin_notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: the per-date census behind the concurrency cap
	CREATE INDEX IF NOT EXISTS idx_leaves_status_range
		ON leave_requests(status, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_leaves_doctor
		ON leave_requests(doctor_id);

	CREATE TABLE IF NOT EXISTS leave_balances (
		doctor_id TEXT PRIMARY KEY REFERENCES doctors(id),
		total_days TEXT NOT NULL,
		used_days TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS swap_requests (
		id TEXT PRIMARY KEY,
		requestor_id TEXT NOT NULL REFERENCES doctors(id),
		requestor_duty_id TEXT NOT NULL,
		target_id TEXT NOT NULL REFERENCES doctors(id),
		target_duty_id TEXT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL,
		admin_notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_swaps_status
		ON swap_requests(status);
	CREATE INDEX IF NOT EXISTS idx_swaps_requestor
		ON swap_requests(requestor_id);
	CREATE INDEX IF NOT EXISTS idx_swaps_target
		ON swap_requests(target_id);

	-- Append-only
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		detail TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_subject
		ON audit_log(subject_id);
	CREATE INDEX IF NOT EXISTS idx_audit_actor
		ON audit_log(actor_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERIES - roster.Store over either *sql.DB or *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q querier
}

func encodeDate(d roster.Date) string { return d.String() }

func decodeDate(s string) (roster.Date, error) { return roster.ParseDate(s) }

func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// -----------------------------------------------------------------------------
// Duties
// -----------------------------------------------------------------------------

const dutyColumns = "id, doctor_id, date, shift, is_referral_duty"

func scanDuty(row interface{ Scan(...any) error }) (*roster.DutyAssignment, error) {
	var d roster.DutyAssignment
	var date string
	var referral int
	if err := row.Scan(&d.ID, &d.DoctorID, &date, &d.Shift, &referral); err != nil {
		return nil, err
	}
	parsed, err := decodeDate(date)
	if err != nil {
		return nil, err
	}
	d.Date = parsed
	d.IsReferralDuty = referral != 0
	return &d, nil
}

func (s *queries) GetDuty(ctx context.Context, id roster.DutyID) (*roster.DutyAssignment, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+dutyColumns+" FROM duties WHERE id = ?", id)
	d, err := scanDuty(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("duty %s: %w", id, roster.ErrNotFound)
	}
	return d, err
}

func (s *queries) PutDuty(ctx context.Context, d *roster.DutyAssignment) error {
	referral := 0
	if d.IsReferralDuty {
		referral = 1
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO duties (id, doctor_id, date, shift, is_referral_duty)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			doctor_id = excluded.doctor_id,
			date = excluded.date,
			shift = excluded.shift,
			is_referral_duty = excluded.is_referral_duty`,
		d.ID, d.DoctorID, encodeDate(d.Date), d.Shift, referral)
	return err
}

func (s *queries) listDuties(ctx context.Context, query string, args ...any) ([]*roster.DutyAssignment, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*roster.DutyAssignment
	for rows.Next() {
		d, err := scanDuty(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *queries) ListDutiesForDoctor(ctx context.Context, doctorID roster.DoctorID, from, to roster.Date) ([]*roster.DutyAssignment, error) {
	return s.listDuties(ctx, `
		SELECT `+dutyColumns+` FROM duties
		WHERE doctor_id = ? AND date >= ? AND date <= ?
		ORDER BY date, CASE shift WHEN 'morning' THEN 0 WHEN 'evening' THEN 1 ELSE 2 END, id`,
		doctorID, encodeDate(from), encodeDate(to))
}

func (s *queries) ListDutiesOnDate(ctx context.Context, date roster.Date) ([]*roster.DutyAssignment, error) {
	return s.listDuties(ctx, `
		SELECT `+dutyColumns+` FROM duties
		WHERE date = ?
		ORDER BY CASE shift WHEN 'morning' THEN 0 WHEN 'evening' THEN 1 ELSE 2 END, id`,
		encodeDate(date))
}

func (s *queries) ExchangeDuties(ctx context.Context, a, b roster.DutyID) error {
	da, err := s.GetDuty(ctx, a)
	if err != nil {
		return err
	}
	db, err := s.GetDuty(ctx, b)
	if err != nil {
		return err
	}
	// One statement: no half-exchanged row is ever visible, even outside an
	// explicit transaction.
	_, err = s.q.ExecContext(ctx, `
		UPDATE duties SET doctor_id = CASE id WHEN ? THEN ? WHEN ? THEN ? END
		WHERE id IN (?, ?)`,
		a, db.DoctorID, b, da.DoctorID, a, b)
	return err
}

// -----------------------------------------------------------------------------
// Leaves
// -----------------------------------------------------------------------------

const leaveColumns = "id, doctor_id, leave_type, start_date, end_date, status, reason, admin_notes, created_at, updated_at"

func scanLeave(row interface{ Scan(...any) error }) (*roster.LeaveRequest, error) {
	var r roster.LeaveRequest
	var start, end, created, updated string
	var reason, notes sql.NullString
	if err := row.Scan(&r.ID, &r.DoctorID, &r.Type, &start, &end, &r.Status, &reason, &notes, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if r.StartDate, err = decodeDate(start); err != nil {
		return nil, err
	}
	if r.EndDate, err = decodeDate(end); err != nil {
		return nil, err
	}
	r.Reason = reason.String
	r.AdminNotes = notes.String
	r.CreatedAt = decodeTime(created)
	r.UpdatedAt = decodeTime(updated)
	return &r, nil
}

func (s *queries) GetLeave(ctx context.Context, id roster.LeaveRequestID) (*roster.LeaveRequest, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+leaveColumns+" FROM leave_requests WHERE id = ?", id)
	r, err := scanLeave(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("leave request %s: %w", id, roster.ErrNotFound)
	}
	return r, err
}

func (s *queries) PutLeave(ctx context.Context, r *roster.LeaveRequest) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO leave_requests (id, doctor_id, leave_type, start_date, end_date, status, reason, admin_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			admin_notes = excluded.admin_notes,
			updated_at = excluded.updated_at`,
		r.ID, r.DoctorID, r.Type, encodeDate(r.StartDate), encodeDate(r.EndDate),
		r.Status, r.Reason, r.AdminNotes, encodeTime(r.CreatedAt), encodeTime(r.UpdatedAt))
	return err
}

func (s *queries) listLeaves(ctx context.Context, query string, args ...any) ([]*roster.LeaveRequest, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*roster.LeaveRequest
	for rows.Next() {
		r, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *queries) ListLeavesForDoctor(ctx context.Context, doctorID roster.DoctorID) ([]*roster.LeaveRequest, error) {
	return s.listLeaves(ctx, `
		SELECT `+leaveColumns+` FROM leave_requests
		WHERE doctor_id = ? ORDER BY created_at DESC`, doctorID)
}

func (s *queries) ListLeavesOverlapping(ctx context.Context, from, to roster.Date, statuses []roster.LeaveStatus) ([]*roster.LeaveRequest, error) {
	query := `SELECT ` + leaveColumns + ` FROM leave_requests WHERE end_date >= ? AND start_date <= ?`
	args := []any{encodeDate(from), encodeDate(to)}
	if len(statuses) > 0 {
		query += " AND status IN (?" + strings.Repeat(",?", len(statuses)-1) + ")"
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += " ORDER BY created_at"
	return s.listLeaves(ctx, query, args...)
}

func (s *queries) GetBalance(ctx context.Context, doctorID roster.DoctorID) (*roster.LeaveBalance, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT doctor_id, total_days, used_days, updated_at FROM leave_balances WHERE doctor_id = ?", doctorID)

	var b roster.LeaveBalance
	var total, used, updated string
	err := row.Scan(&b.DoctorID, &total, &used, &updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("balance for doctor %s: %w", doctorID, roster.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if b.TotalDays, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("corrupt total_days %q: %w", total, err)
	}
	if b.UsedDays, err = decimal.NewFromString(used); err != nil {
		return nil, fmt.Errorf("corrupt used_days %q: %w", used, err)
	}
	b.UpdatedAt = decodeTime(updated)
	return &b, nil
}

func (s *queries) PutBalance(ctx context.Context, b *roster.LeaveBalance) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO leave_balances (doctor_id, total_days, used_days, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(doctor_id) DO UPDATE SET
			total_days = excluded.total_days,
			used_days = excluded.used_days,
			updated_at = excluded.updated_at`,
		b.DoctorID, b.TotalDays.String(), b.UsedDays.String(), encodeTime(b.UpdatedAt))
	return err
}

// -----------------------------------------------------------------------------
// Swaps
// -----------------------------------------------------------------------------

const swapColumns = "id, requestor_id, requestor_duty_id, target_id, target_duty_id, reason, status, admin_notes, created_at, updated_at"

func scanSwap(row interface{ Scan(...any) error }) (*roster.SwapRequest, error) {
	var r roster.SwapRequest
	var created, updated string
	var reason, notes sql.NullString
	if err := row.Scan(&r.ID, &r.RequestorID, &r.RequestorDutyID, &r.TargetID, &r.TargetDutyID, &reason, &r.Status, &notes, &created, &updated); err != nil {
		return nil, err
	}
	r.Reason = reason.String
	r.AdminNotes = notes.String
	r.CreatedAt = decodeTime(created)
	r.UpdatedAt = decodeTime(updated)
	return &r, nil
}

func (s *queries) GetSwap(ctx context.Context, id roster.SwapRequestID) (*roster.SwapRequest, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+swapColumns+" FROM swap_requests WHERE id = ?", id)
	r, err := scanSwap(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("swap request %s: %w", id, roster.ErrNotFound)
	}
	return r, err
}

func (s *queries) PutSwap(ctx context.Context, r *roster.SwapRequest) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO swap_requests (id, requestor_id, requestor_duty_id, target_id, target_duty_id, reason, status, admin_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			admin_notes = excluded.admin_notes,
			updated_at = excluded.updated_at`,
		r.ID, r.RequestorID, r.RequestorDutyID, r.TargetID, r.TargetDutyID,
		r.Reason, r.Status, r.AdminNotes, encodeTime(r.CreatedAt), encodeTime(r.UpdatedAt))
	return err
}

func (s *queries) listSwaps(ctx context.Context, query string, args ...any) ([]*roster.SwapRequest, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*roster.SwapRequest
	for rows.Next() {
		r, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *queries) ListSwapsInvolving(ctx context.Context, doctorID roster.DoctorID) ([]*roster.SwapRequest, error) {
	return s.listSwaps(ctx, `
		SELECT `+swapColumns+` FROM swap_requests
		WHERE requestor_id = ? OR target_id = ?
		ORDER BY created_at DESC`, doctorID, doctorID)
}

func (s *queries) ListSwapsByStatus(ctx context.Context, status roster.SwapStatus) ([]*roster.SwapRequest, error) {
	return s.listSwaps(ctx, `
		SELECT `+swapColumns+` FROM swap_requests
		WHERE status = ? ORDER BY created_at`, status)
}

func (s *queries) ListPendingSwapsTouching(ctx context.Context, dutyID roster.DutyID) ([]*roster.SwapRequest, error) {
	return s.listSwaps(ctx, `
		SELECT `+swapColumns+` FROM swap_requests
		WHERE status = 'pending' AND (requestor_duty_id = ? OR target_duty_id = ?)
		ORDER BY created_at`, dutyID, dutyID)
}

// -----------------------------------------------------------------------------
// Doctors
// -----------------------------------------------------------------------------

func (s *queries) GetDoctor(ctx context.Context, id roster.DoctorID) (*roster.Doctor, error) {
	row := s.q.QueryRowContext(ctx, "SELECT id, name, department, created_at FROM doctors WHERE id = ?", id)

	var d roster.Doctor
	var dept sql.NullString
	var created string
	err := row.Scan(&d.ID, &d.Name, &dept, &created)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("doctor %s: %w", id, roster.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	d.Department = dept.String
	d.CreatedAt = decodeTime(created)
	return &d, nil
}

func (s *queries) PutDoctor(ctx context.Context, d *roster.Doctor) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO doctors (id, name, department, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			department = excluded.department`,
		d.ID, d.Name, d.Department, encodeTime(d.CreatedAt))
	return err
}

func (s *queries) ListDoctors(ctx context.Context) ([]*roster.Doctor, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT id, name, department, created_at FROM doctors ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*roster.Doctor
	for rows.Next() {
		var d roster.Doctor
		var dept sql.NullString
		var created string
		if err := rows.Scan(&d.ID, &d.Name, &dept, &created); err != nil {
			return nil, err
		}
		d.Department = dept.String
		d.CreatedAt = decodeTime(created)
		result = append(result, &d)
	}
	return result, rows.Err()
}

// -----------------------------------------------------------------------------
// Audit
// -----------------------------------------------------------------------------

func (s *queries) AppendAudit(ctx context.Context, e roster.AuditEntry) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, at, actor_id, action, subject_id, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, encodeTime(e.At), e.ActorID, e.Action, e.SubjectID, e.Detail)
	return err
}

func (s *queries) QueryAudit(ctx context.Context, f roster.AuditFilter) ([]roster.AuditEntry, error) {
	query := "SELECT id, at, actor_id, action, subject_id, detail FROM audit_log WHERE 1=1"
	var args []any
	if f.ActorID != "" {
		query += " AND actor_id = ?"
		args = append(args, f.ActorID)
	}
	if f.SubjectID != "" {
		query += " AND subject_id = ?"
		args = append(args, f.SubjectID)
	}
	if len(f.Actions) > 0 {
		query += " AND action IN (?" + strings.Repeat(",?", len(f.Actions)-1) + ")"
		for _, a := range f.Actions {
			args = append(args, a)
		}
	}
	if !f.From.IsZero() {
		query += " AND at >= ?"
		args = append(args, encodeTime(f.From))
	}
	if !f.To.IsZero() {
		query += " AND at <= ?"
		args = append(args, encodeTime(f.To))
	}
	query += " ORDER BY at"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []roster.AuditEntry
	for rows.Next() {
		var e roster.AuditEntry
		var at string
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &at, &e.ActorID, &e.Action, &e.SubjectID, &detail); err != nil {
			return nil, err
		}
		e.At = decodeTime(at)
		e.Detail = detail.String
		result = append(result, e)
	}
	return result, rows.Err()
}
