package patients

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for patient storage
type Repository interface {
	Create(ctx context.Context, req *CreatePatientRequest) (*Patient, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	FindByPhone(ctx context.Context, phone string) (*Patient, error)
	FindByNameAndIDCard(ctx context.Context, name, idCard string) (*Patient, error)
	SearchByName(ctx context.Context, fragment string, limit int) ([]Patient, error)
}

// InMemoryRepository is an in-memory Repository used by tests and local development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]*Patient
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		patients: make(map[uuid.UUID]*Patient),
	}
}

// Create stores a new patient record.
func (r *InMemoryRepository) Create(ctx context.Context, req *CreatePatientRequest) (*Patient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := &Patient{
		ID:             uuid.New(),
		Name:           req.Name,
		Gender:         req.Gender,
		DateOfBirth:    req.DateOfBirth,
		Phone:          req.Phone,
		IDCard:         req.IDCard,
		Address:        req.Address,
		Allergies:      req.Allergies,
		MedicalHistory: req.MedicalHistory,
		FamilyHistory:  req.FamilyHistory,
		CreatedAt:      time.Now().UTC(),
	}

	r.mu.Lock()
	r.patients[p.ID] = p
	r.mu.Unlock()

	cp := *p
	return &cp, nil
}

// GetByID retrieves a patient by ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

// FindByPhone returns the patient with an exact phone match.
func (r *InMemoryRepository) FindByPhone(ctx context.Context, phone string) (*Patient, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, ErrPatientNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.patients {
		if p.Phone == phone {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPatientNotFound
}

// FindByNameAndIDCard returns the patient whose name and ID number both match.
func (r *InMemoryRepository) FindByNameAndIDCard(ctx context.Context, name, idCard string) (*Patient, error) {
	name = strings.TrimSpace(name)
	idCard = strings.TrimSpace(idCard)
	if name == "" || idCard == "" {
		return nil, ErrPatientNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.patients {
		if p.Name == name && p.IDCard == idCard {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPatientNotFound
}

// SearchByName returns patients whose name contains the fragment, capped at limit.
// Results are ordered by creation time so candidate lists are stable.
func (r *InMemoryRepository) SearchByName(ctx context.Context, fragment string, limit int) ([]Patient, error) {
	needle := strings.ToLower(strings.TrimSpace(fragment))
	if needle == "" {
		return nil, nil
	}

	r.mu.RLock()
	var out []Patient
	for _, p := range r.patients {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			out = append(out, *p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Repository = (*InMemoryRepository)(nil)
