package patients

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ResolveQuery is what the caller knows about the patient so far.
type ResolveQuery struct {
	Name   string
	Phone  string
	IDCard string
	Limit  int // cap on fuzzy candidates; 0 uses the default
}

const defaultCandidateLimit = 5

// Resolution is the outcome of a lookup: exactly one of Patient or Candidates
// is populated, or both are empty when nothing matched.
type Resolution struct {
	Patient    *Patient
	Candidates []Patient
}

// Resolver turns a partial identity (name fragment, optional phone or ID
// number) into zero, one, or many patient records. Precedence: exact phone,
// then name+ID exact, then fuzzy name match.
type Resolver struct {
	repo Repository
}

// NewResolver wires a resolver over the given repository.
func NewResolver(repo Repository) *Resolver {
	if repo == nil {
		panic("patients: repository required")
	}
	return &Resolver{repo: repo}
}

// Resolve applies the lookup precedence. A miss at one level falls through to
// the next; only infrastructure failures surface as errors.
func (r *Resolver) Resolve(ctx context.Context, q ResolveQuery) (*Resolution, error) {
	if phone := strings.TrimSpace(q.Phone); phone != "" {
		p, err := r.repo.FindByPhone(ctx, phone)
		if err == nil {
			return &Resolution{Patient: p}, nil
		}
		if !errors.Is(err, ErrPatientNotFound) {
			return nil, fmt.Errorf("patients: resolve by phone: %w", err)
		}
	}

	name := strings.TrimSpace(q.Name)
	if idCard := strings.TrimSpace(q.IDCard); idCard != "" && name != "" {
		p, err := r.repo.FindByNameAndIDCard(ctx, name, idCard)
		if err == nil {
			return &Resolution{Patient: p}, nil
		}
		if !errors.Is(err, ErrPatientNotFound) {
			return nil, fmt.Errorf("patients: resolve by name+id: %w", err)
		}
	}

	if name == "" {
		return &Resolution{}, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultCandidateLimit
	}
	candidates, err := r.repo.SearchByName(ctx, name, limit)
	if err != nil {
		return nil, fmt.Errorf("patients: fuzzy resolve: %w", err)
	}
	switch len(candidates) {
	case 0:
		return &Resolution{}, nil
	case 1:
		p := candidates[0]
		return &Resolution{Patient: &p}, nil
	default:
		return &Resolution{Candidates: candidates}, nil
	}
}
