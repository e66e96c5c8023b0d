package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbConn is the slice of pgxpool.Pool the repositories need; pgxmock
// satisfies it in tests.
type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore reads scheduling configuration from the relational database.
type PostgresStore struct {
	pool dbConn
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("schedule: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func newPostgresStoreWithConn(db dbConn) *PostgresStore {
	if db == nil {
		panic("schedule: db conn required")
	}
	return &PostgresStore{pool: db}
}

func (s *PostgresStore) GetBusiness(ctx context.Context, businessID string) (*Business, error) {
	query := `SELECT id, name, timezone FROM businesses WHERE id = $1`
	var b Business
	if err := s.pool.QueryRow(ctx, query, businessID).Scan(&b.ID, &b.Name, &b.Timezone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, fmt.Errorf("schedule: select business: %w", err)
	}
	return &b, nil
}

func (s *PostgresStore) GetHours(ctx context.Context, businessID string, weekday time.Weekday) (*BusinessHours, error) {
	query := `
		SELECT business_id, weekday, open_time, close_time
		FROM business_hours
		WHERE business_id = $1 AND weekday = $2
	`
	var h BusinessHours
	var wd int
	if err := s.pool.QueryRow(ctx, query, businessID, int(weekday)).Scan(&h.BusinessID, &wd, &h.Open, &h.Close); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("schedule: select hours: %w", err)
	}
	h.Weekday = time.Weekday(wd)
	return &h, nil
}

func (s *PostgresStore) GetException(ctx context.Context, businessID, date string) (*ScheduleException, error) {
	query := `
		SELECT business_id, exception_date, closed,
		       COALESCE(open_time, ''), COALESCE(close_time, ''), COALESCE(reason, '')
		FROM schedule_exceptions
		WHERE business_id = $1 AND exception_date = $2
	`
	var e ScheduleException
	var d time.Time
	if err := s.pool.QueryRow(ctx, query, businessID, date).Scan(&e.BusinessID, &d, &e.Closed, &e.Open, &e.Close, &e.Reason); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("schedule: select exception: %w", err)
	}
	e.Date = d.Format("2006-01-02")
	return &e, nil
}

func (s *PostgresStore) GetAppointmentType(ctx context.Context, businessID, typeID string) (*AppointmentType, error) {
	query := `
		SELECT id, business_id, name, duration_minutes, buffer_minutes,
		       in_person, virtual, max_concurrency, exclusive
		FROM appointment_types
		WHERE id = $1 AND business_id = $2
	`
	var t AppointmentType
	if err := s.pool.QueryRow(ctx, query, typeID, businessID).Scan(
		&t.ID,
		&t.BusinessID,
		&t.Name,
		&t.DurationMinutes,
		&t.BufferMinutes,
		&t.InPerson,
		&t.Virtual,
		&t.MaxConcurrency,
		&t.Exclusive,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTypeNotFound
		}
		return nil, fmt.Errorf("schedule: select type: %w", err)
	}
	return &t, nil
}

// PostgresLedger stores appointments in the relational database.
type PostgresLedger struct {
	pool dbConn
}

// NewPostgresLedger initializes a ledger backed by pgxpool.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	if pool == nil {
		panic("schedule: pgx pool required")
	}
	return &PostgresLedger{pool: pool}
}

func newPostgresLedgerWithConn(db dbConn) *PostgresLedger {
	if db == nil {
		panic("schedule: db conn required")
	}
	return &PostgresLedger{pool: db}
}

const apptColumns = `
	a.id, a.business_id, a.lead_id, a.type_id, a.start_at,
	t.duration_minutes, t.buffer_minutes, a.status, a.created_at, a.updated_at
`

// Reserve inserts a pending appointment inside a transaction holding a
// per-business advisory lock, re-running the conflict count so two
// concurrent bookings for the same slot cannot both commit.
func (l *PostgresLedger) Reserve(ctx context.Context, p ReserveParams) (*Appointment, error) {
	appt := *p.Appointment
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = StatusPending
	}
	appt.StartAt = appt.StartAt.UTC()
	occupied := time.Duration(appt.DurationMinutes+appt.BufferMinutes) * time.Minute
	candidateEnd := appt.StartAt.Add(occupied)
	max := p.MaxConcurrency
	if max < 1 {
		max = 1
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("schedule: begin reserve: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockKey := appt.BusinessID + ":" + appt.StartAt.Format("2006-01-02")
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return nil, fmt.Errorf("schedule: acquire booking lock: %w", err)
	}

	conflictQuery := `
		SELECT COUNT(*)
		FROM appointments a
		JOIN appointment_types t ON t.id = a.type_id
		WHERE a.business_id = $1
		  AND a.status IN ('pending', 'confirmed')
		  AND ($2::bool = false OR a.type_id = $3)
		  AND ($6 = '' OR a.id::text <> $6)
		  AND a.start_at < $4
		  AND a.start_at + make_interval(mins => t.duration_minutes + t.buffer_minutes) > $5
	`
	var count int
	if err := tx.QueryRow(ctx, conflictQuery,
		appt.BusinessID,
		p.Exclusive,
		appt.TypeID,
		candidateEnd,
		appt.StartAt,
		p.ExcludeID,
	).Scan(&count); err != nil {
		return nil, fmt.Errorf("schedule: conflict count: %w", err)
	}
	if count >= max {
		return nil, ErrSlotTaken
	}

	insertQuery := `
		INSERT INTO appointments (id, business_id, lead_id, type_id, start_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	if err := tx.QueryRow(ctx, insertQuery,
		appt.ID,
		appt.BusinessID,
		appt.LeadID,
		appt.TypeID,
		appt.StartAt,
		string(appt.Status),
	).Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return nil, fmt.Errorf("schedule: insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("schedule: commit reserve: %w", err)
	}
	return &appt, nil
}

func (l *PostgresLedger) GetByID(ctx context.Context, businessID, id string) (*Appointment, error) {
	query := `
		SELECT ` + apptColumns + `
		FROM appointments a
		JOIN appointment_types t ON t.id = a.type_id
		WHERE a.id = $1 AND a.business_id = $2
	`
	appt, err := scanAppointment(l.pool.QueryRow(ctx, query, id, businessID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("schedule: select appointment: %w", err)
	}
	return appt, nil
}

func (l *PostgresLedger) ListActiveBetween(ctx context.Context, businessID string, from, to time.Time) ([]*Appointment, error) {
	query := `
		SELECT ` + apptColumns + `
		FROM appointments a
		JOIN appointment_types t ON t.id = a.type_id
		WHERE a.business_id = $1
		  AND a.status IN ('pending', 'confirmed')
		  AND a.start_at >= $2 AND a.start_at < $3
		ORDER BY a.start_at
	`
	rows, err := l.pool.Query(ctx, query, businessID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("schedule: list active: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (l *PostgresLedger) ListOpenForLead(ctx context.Context, businessID, leadID string) ([]*Appointment, error) {
	query := `
		SELECT ` + apptColumns + `
		FROM appointments a
		JOIN appointment_types t ON t.id = a.type_id
		WHERE a.business_id = $1
		  AND a.lead_id = $2
		  AND a.status IN ('pending', 'confirmed')
		ORDER BY a.start_at
	`
	rows, err := l.pool.Query(ctx, query, businessID, leadID)
	if err != nil {
		return nil, fmt.Errorf("schedule: list for lead: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (l *PostgresLedger) UpdateStatus(ctx context.Context, businessID, id string, next Status) error {
	current, err := l.GetByID(ctx, businessID, id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransition(next) {
		return ErrInvalidTransition
	}
	query := `
		UPDATE appointments
		SET status = $1, updated_at = now()
		WHERE id = $2 AND business_id = $3 AND status = $4
	`
	ct, err := l.pool.Exec(ctx, query, string(next), id, businessID, string(current.Status))
	if err != nil {
		return fmt.Errorf("schedule: update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	if err := row.Scan(
		&a.ID,
		&a.BusinessID,
		&a.LeadID,
		&a.TypeID,
		&a.StartAt,
		&a.DurationMinutes,
		&a.BufferMinutes,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.StartAt = a.StartAt.UTC()
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("schedule: scan appointment: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: iterate appointments: %w", err)
	}
	return out, nil
}
