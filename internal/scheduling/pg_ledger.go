package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the ledger needs. Satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgLedger implements Ledger on Postgres. Row-level serialization comes from
// SELECT ... FOR UPDATE on the schedule row: two bookings racing for the same
// schedule queue on the row lock, so the availability check, duplicate check,
// insert, and decrement commit as one unit.
type PgLedger struct {
	db DB
}

// NewPgLedger creates a ledger backed by a pgx pool.
func NewPgLedger(db DB) *PgLedger {
	if db == nil {
		panic("scheduling: pgx pool required")
	}
	return &PgLedger{db: db}
}

const offeringColumns = `
	s.id, s.doctor_id, s.date, s.time_band, s.total_slots, s.available_slots,
	s.created_at, s.updated_at, d.name, d.department
`

func scanOffering(row pgx.Row) (*Offering, error) {
	var off Offering
	err := row.Scan(
		&off.ID,
		&off.DoctorID,
		&off.Date,
		&off.TimeBand,
		&off.TotalSlots,
		&off.AvailableSlots,
		&off.CreatedAt,
		&off.UpdatedAt,
		&off.DoctorName,
		&off.Department,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	off.Date = DateOnly(off.Date)
	return &off, nil
}

// TryBook runs the whole allocation sequence inside one transaction.
func (l *PgLedger) TryBook(ctx context.Context, scheduleID, patientID uuid.UUID) (*BookingResult, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: begin booking tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var available int
	var doctorID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT available_slots, doctor_id
		FROM schedules
		WHERE id = $1
		FOR UPDATE
	`, scheduleID).Scan(&available, &doctorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scheduling: lock schedule row: %w", err)
	}
	if available <= 0 {
		return nil, ErrNoSlotsAvailable
	}

	var exists int
	err = tx.QueryRow(ctx, `
		SELECT 1 FROM appointments
		WHERE patient_id = $1 AND schedule_id = $2 AND status <> 'cancelled'
		LIMIT 1
	`, patientID, scheduleID).Scan(&exists)
	if err == nil {
		return nil, ErrDuplicateBooking
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scheduling: duplicate check: %w", err)
	}

	appointmentID := uuid.New()
	if _, err := tx.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, schedule_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'scheduled', now(), now())
	`, appointmentID, patientID, doctorID, scheduleID); err != nil {
		return nil, fmt.Errorf("scheduling: insert appointment: %w", err)
	}

	var remaining int
	err = tx.QueryRow(ctx, `
		UPDATE schedules
		SET available_slots = available_slots - 1,
		    updated_at = now()
		WHERE id = $1
		RETURNING available_slots
	`, scheduleID).Scan(&remaining)
	if err != nil {
		return nil, fmt.Errorf("scheduling: decrement slots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("scheduling: commit booking tx: %w", err)
	}
	return &BookingResult{AppointmentID: appointmentID, Remaining: remaining}, nil
}

// Cancel flips the appointment status and returns the slot, symmetric to TryBook.
func (l *PgLedger) Cancel(ctx context.Context, appointmentID uuid.UUID) (*CancelResult, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: begin cancel tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var scheduleID uuid.UUID
	var status AppointmentStatus
	err = tx.QueryRow(ctx, `
		SELECT a.schedule_id, a.status
		FROM appointments a
		JOIN schedules s ON s.id = a.schedule_id
		WHERE a.id = $1
		FOR UPDATE OF s
	`, appointmentID).Scan(&scheduleID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("scheduling: lock appointment: %w", err)
	}
	if status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointments SET status = 'cancelled', updated_at = now()
		WHERE id = $1
	`, appointmentID); err != nil {
		return nil, fmt.Errorf("scheduling: cancel appointment: %w", err)
	}

	var remaining int
	err = tx.QueryRow(ctx, `
		UPDATE schedules
		SET available_slots = LEAST(available_slots + 1, total_slots),
		    updated_at = now()
		WHERE id = $1
		RETURNING available_slots
	`, scheduleID).Scan(&remaining)
	if err != nil {
		return nil, fmt.Errorf("scheduling: increment slots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("scheduling: commit cancel tx: %w", err)
	}
	return &CancelResult{Remaining: remaining}, nil
}

// GetOffering loads one schedule hydrated with its doctor.
func (l *PgLedger) GetOffering(ctx context.Context, scheduleID uuid.UUID) (*Offering, error) {
	row := l.db.QueryRow(ctx, `
		SELECT `+offeringColumns+`
		FROM schedules s
		JOIN doctors d ON d.id = s.doctor_id
		WHERE s.id = $1
	`, scheduleID)
	return scanOffering(row)
}

// FindOfferings filters offerings ordered by date, then canonical band order.
func (l *PgLedger) FindOfferings(ctx context.Context, q OfferingQuery) ([]Offering, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if name := strings.TrimSpace(q.DoctorName); name != "" {
		conds = append(conds, "d.name ILIKE "+arg("%"+name+"%"))
	}
	if !q.Date.IsZero() {
		conds = append(conds, "s.date = "+arg(DateOnly(q.Date)))
	} else {
		if !q.From.IsZero() {
			conds = append(conds, "s.date >= "+arg(DateOnly(q.From)))
		}
		if !q.To.IsZero() {
			conds = append(conds, "s.date < "+arg(DateOnly(q.To)))
		}
	}
	if q.TimeBand != "" {
		conds = append(conds, "s.time_band = "+arg(string(q.TimeBand)))
	}
	if q.OnlyAvailable {
		conds = append(conds, "s.available_slots > 0")
	}

	query := `
		SELECT ` + offeringColumns + `
		FROM schedules s
		JOIN doctors d ON d.id = s.doctor_id
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += `
		ORDER BY s.date ASC,
		         CASE s.time_band WHEN 'morning' THEN 0 WHEN 'afternoon' THEN 1 ELSE 2 END ASC
	`
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: query offerings: %w", err)
	}
	defer rows.Close()

	var out []Offering
	for rows.Next() {
		off, err := scanOffering(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *off)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: iterate offerings: %w", err)
	}
	return out, nil
}

// CreateDoctor inserts a doctor row. Used by seeding and admin tooling.
func (l *PgLedger) CreateDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	var createdAt time.Time
	err := l.db.QueryRow(ctx, `
		INSERT INTO doctors (id, name, department, title)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, d.ID, d.Name, d.Department, d.Title).Scan(&createdAt)
	if err != nil {
		return nil, fmt.Errorf("scheduling: insert doctor: %w", err)
	}
	d.CreatedAt = createdAt
	return &d, nil
}

// CreateSchedule inserts an offering row; the unique (doctor, date, band)
// constraint rejects duplicates.
func (l *PgLedger) CreateSchedule(ctx context.Context, s Schedule) (*Schedule, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Date = DateOnly(s.Date)
	var createdAt time.Time
	err := l.db.QueryRow(ctx, `
		INSERT INTO schedules (id, doctor_id, date, time_band, total_slots, available_slots)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, s.ID, s.DoctorID, s.Date, s.TimeBand, s.TotalSlots, s.AvailableSlots).Scan(&createdAt)
	if err != nil {
		return nil, fmt.Errorf("scheduling: insert schedule: %w", err)
	}
	s.CreatedAt = createdAt
	s.UpdatedAt = createdAt
	return &s, nil
}

var _ Ledger = (*PgLedger)(nil)
