// Package intent adapts the external language-understanding service into the
// two structured extraction capabilities the workflow engine needs. Both are
// best-effort: a provider failure or unparseable reply degrades to "no
// intent"/"no data", never to a caller-visible error.
package intent

import (
	"context"
	"time"

	"github.com/lanternhealth/clinic-concierge/internal/scheduling"
)

// Intent is the structured reading of a booking request.
type Intent struct {
	HasIntent   bool                `json:"hasIntent"`
	PatientName string              `json:"patientName,omitempty"`
	DoctorName  string              `json:"doctorName,omitempty"`
	DateOffset  *int                `json:"dateOffset,omitempty"` // 0 = today
	TimeBand    scheduling.TimeBand `json:"timeBand,omitempty"`
}

// ProfileExtraction is the structured reading of a patient profile from an
// accumulated conversation.
type ProfileExtraction struct {
	HasData        bool       `json:"hasData"`
	Name           string     `json:"name,omitempty"`
	Gender         string     `json:"gender,omitempty"`
	DateOfBirth    *time.Time `json:"dateOfBirth,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	IDCard         string     `json:"idCard,omitempty"`
	Address        string     `json:"address,omitempty"`
	Allergies      string     `json:"allergies,omitempty"`
	MedicalHistory string     `json:"medicalHistory,omitempty"`
	FamilyHistory  string     `json:"familyHistory,omitempty"`
}

// ChatTurn is one message of the conversation handed to ExtractProfile.
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Normalizer is the capability boundary to the language-understanding service.
type Normalizer interface {
	ParseIntent(ctx context.Context, freeText string) (Intent, error)
	ExtractProfile(ctx context.Context, conversation []ChatTurn) (ProfileExtraction, error)
}
