package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores patients in the relational database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const patientColumns = `
	id, name, gender, date_of_birth, phone, id_card, address,
	allergies, medical_history, family_history, created_at
`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Gender,
		&p.DateOfBirth,
		&p.Phone,
		&p.IDCard,
		&p.Address,
		&p.Allergies,
		&p.MedicalHistory,
		&p.FamilyHistory,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreatePatientRequest) (*Patient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	var createdAt time.Time
	err := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, gender, date_of_birth, phone, id_card, address,
		                      allergies, medical_history, family_history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`,
		id,
		req.Name,
		req.Gender,
		req.DateOfBirth,
		req.Phone,
		req.IDCard,
		req.Address,
		req.Allergies,
		req.MedicalHistory,
		req.FamilyHistory,
	).Scan(&createdAt)
	if err != nil {
		return nil, fmt.Errorf("patients: insert failed: %w", err)
	}

	return &Patient{
		ID:             id,
		Name:           req.Name,
		Gender:         req.Gender,
		DateOfBirth:    req.DateOfBirth,
		Phone:          req.Phone,
		IDCard:         req.IDCard,
		Address:        req.Address,
		Allergies:      req.Allergies,
		MedicalHistory: req.MedicalHistory,
		FamilyHistory:  req.FamilyHistory,
		CreatedAt:      createdAt,
	}, nil
}

// GetByID fetches one patient.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	p, err := scanPatient(row)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("patients: select by id failed: %w", err)
	}
	return p, err
}

// FindByPhone fetches the patient with an exact phone match.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+` FROM patients WHERE phone = $1
		ORDER BY created_at ASC LIMIT 1
	`, phone)
	p, err := scanPatient(row)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("patients: select by phone failed: %w", err)
	}
	return p, err
}

// FindByNameAndIDCard fetches the patient matching both name and ID number.
func (r *PostgresRepository) FindByNameAndIDCard(ctx context.Context, name, idCard string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+` FROM patients WHERE name = $1 AND id_card = $2
		ORDER BY created_at ASC LIMIT 1
	`, name, idCard)
	p, err := scanPatient(row)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("patients: select by name+id failed: %w", err)
	}
	return p, err
}

// SearchByName returns patients whose name contains the fragment.
func (r *PostgresRepository) SearchByName(ctx context.Context, fragment string, limit int) ([]Patient, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientColumns+` FROM patients
		WHERE name ILIKE $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, "%"+fragment+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("patients: name search failed: %w", err)
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("patients: scan search row: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patients: iterate search rows: %w", err)
	}
	return out, nil
}

var _ Repository = (*PostgresRepository)(nil)
