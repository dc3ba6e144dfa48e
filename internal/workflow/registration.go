package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lanternhealth/clinic-concierge/internal/intent"
	"github.com/lanternhealth/clinic-concierge/internal/patients"
	"github.com/lanternhealth/clinic-concierge/internal/session"
)

const missingProfileMessage = "I still need more details to register the patient. " +
	"Please provide at least the name, plus gender, date of birth, phone number, and ID number if you have them."

// handleCollectingPatientInfo accumulates the registration conversation, asks
// the normalizer for a full profile, and creates the patient once it is
// complete. A stored booking intent then resumes the appointment workflow.
func (e *Engine) handleCollectingPatientInfo(ctx context.Context, c *session.Context, req Request) (*Response, error) {
	data := c.Registration
	if data == nil {
		return e.fail(ctx, c, "Registration state was lost. Please start over.")
	}

	if msg := strings.TrimSpace(req.Message); msg != "" {
		data.Transcript = append(data.Transcript, intent.ChatTurn{Role: "user", Content: msg})
	}

	profile, err := e.nlu.ExtractProfile(ctx, data.Transcript)
	if err != nil {
		e.logger.Warn("profile extraction error", "session_id", c.SessionID, "error", err)
		profile = intent.ProfileExtraction{}
	}
	if !profile.HasData || strings.TrimSpace(profile.Name) == "" {
		if err := e.save(ctx, c); err != nil {
			return nil, err
		}
		resp := respond(c, false, missingProfileMessage)
		resp.NextAction = "Provide name, gender, date of birth, phone number"
		return resp, nil
	}

	patient, err := e.patients.Create(ctx, &patients.CreatePatientRequest{
		Name:           profile.Name,
		Gender:         profile.Gender,
		DateOfBirth:    profile.DateOfBirth,
		Phone:          profile.Phone,
		IDCard:         profile.IDCard,
		Address:        profile.Address,
		Allergies:      profile.Allergies,
		MedicalHistory: profile.MedicalHistory,
		FamilyHistory:  profile.FamilyHistory,
	})
	if err != nil {
		if errors.Is(err, patients.ErrInvalidName) {
			if saveErr := e.save(ctx, c); saveErr != nil {
				return nil, saveErr
			}
			return respond(c, false, missingProfileMessage), nil
		}
		return nil, fmt.Errorf("workflow: create patient: %w", err)
	}

	e.logger.Info("patient registered",
		"session_id", c.SessionID, "patient_id", patient.ID, "name", patient.Name)

	if data.PendingIntent != nil {
		pending := *data.PendingIntent
		return e.startAppointment(ctx, c, patient, pending)
	}

	e.complete(ctx, c)
	resp := respond(c, true, fmt.Sprintf(
		"Patient record created.\n\nRecord ID: %s\nName: %s\nGender: %s\nPhone: %s",
		patient.ID, patient.Name, orUnknown(patient.Gender), orUnknown(patient.Phone)))
	resp.Data = map[string]any{"patientId": patient.ID.String()}
	return resp, nil
}
