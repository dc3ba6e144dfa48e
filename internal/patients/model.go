package patients

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrPatientNotFound is returned when no patient matches the lookup.
	ErrPatientNotFound = errors.New("patient not found")

	// ErrInvalidName is returned when a profile is missing its name.
	ErrInvalidName = errors.New("patient name is required")
)

// Patient is a registered patient record.
type Patient struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Gender         string     `json:"gender"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	Phone          string     `json:"phone"`
	IDCard         string     `json:"id_card"`
	Address        string     `json:"address"`
	Allergies      string     `json:"allergies"`
	MedicalHistory string     `json:"medical_history"`
	FamilyHistory  string     `json:"family_history"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CreatePatientRequest carries a new patient profile.
type CreatePatientRequest struct {
	Name           string     `json:"name"`
	Gender         string     `json:"gender"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	Phone          string     `json:"phone"`
	IDCard         string     `json:"id_card"`
	Address        string     `json:"address"`
	Allergies      string     `json:"allergies"`
	MedicalHistory string     `json:"medical_history"`
	FamilyHistory  string     `json:"family_history"`
}

// Validate checks the minimum viable profile.
func (r *CreatePatientRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	return nil
}
