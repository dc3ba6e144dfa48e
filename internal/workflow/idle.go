package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/lanternhealth/clinic-concierge/internal/intent"
	"github.com/lanternhealth/clinic-concierge/internal/patients"
	"github.com/lanternhealth/clinic-concierge/internal/session"
)

const clarifyMessage = "I could not read a booking request from that. " +
	"Please tell me the patient's name, the doctor's name, and when you would like to come in."

// handleIdle interprets the first message of a session: parse the intent,
// resolve the patient, and route into one of the two workflows.
func (e *Engine) handleIdle(ctx context.Context, c *session.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return respond(c, false, clarifyMessage), nil
	}

	it, err := e.nlu.ParseIntent(ctx, req.Message)
	if err != nil {
		// The normalizer degrades to no-intent itself; an error here still
		// must not kill the session.
		e.logger.Warn("intent normalizer error", "session_id", c.SessionID, "error", err)
		it = intent.Intent{}
	}
	if !it.HasIntent {
		return respond(c, false, clarifyMessage), nil
	}
	if strings.TrimSpace(it.PatientName) == "" {
		resp := respond(c, false, "Who is this appointment for? Please tell me the patient's name.")
		resp.NextAction = "Provide the patient's name"
		return resp, nil
	}

	res, err := e.resolver.Resolve(ctx, patients.ResolveQuery{
		Name:  it.PatientName,
		Limit: e.maxOptions,
	})
	if err != nil {
		return nil, err
	}

	switch {
	case res.Patient != nil:
		return e.startAppointment(ctx, c, res.Patient, it)
	case len(res.Candidates) > 0:
		return e.startPatientSelection(ctx, c, res.Candidates, it)
	default:
		return e.startRegistration(ctx, c, it, req.Message)
	}
}

// startRegistration opens the patient-registration workflow, remembering the
// booking intent so it can resume once the record exists.
func (e *Engine) startRegistration(ctx context.Context, c *session.Context, it intent.Intent, firstMessage string) (*Response, error) {
	c.Workflow = session.WorkflowRegistration
	c.State = session.StateCollectingPatientInfo
	c.Registration = &session.RegistrationData{
		PatientName:   it.PatientName,
		PendingIntent: &it,
		Transcript: []intent.ChatTurn{
			{Role: "user", Content: firstMessage},
		},
	}
	if err := e.save(ctx, c); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("There is no record for %q yet, so let's register the patient first.\n\n"+
		"Please provide:\n- name: %s\n- gender\n- date of birth\n- phone number\n- ID number\n- address\n"+
		"- allergies (say none if none)\n- medical history (say none if none)",
		it.PatientName, it.PatientName)
	resp := respond(c, true, msg)
	resp.NextAction = "Provide the patient's details"
	return resp, nil
}

// startPatientSelection presents the ambiguous candidates for disambiguation.
func (e *Engine) startPatientSelection(ctx context.Context, c *session.Context, candidates []patients.Patient, it intent.Intent) (*Response, error) {
	c.Workflow = session.WorkflowAppointment
	c.State = session.StatePatientSelection
	data := &session.AppointmentData{Intent: it}
	for _, p := range candidates {
		cand := session.Candidate{
			ID:     p.ID,
			Name:   p.Name,
			Phone:  p.Phone,
			IDCard: p.IDCard,
			Gender: p.Gender,
		}
		if p.DateOfBirth != nil {
			cand.DateOfBirth = p.DateOfBirth.Format("2006-01-02")
		}
		data.Candidates = append(data.Candidates, cand)
	}
	c.Appointment = data
	if err := e.save(ctx, c); err != nil {
		return nil, err
	}

	resp := respond(c, true, fmt.Sprintf("Found %d patients named %q. Please pick one:", len(data.Candidates), it.PatientName))
	resp.Options = candidateOptions(data.Candidates)
	resp.NextAction = "Select a patient or reply with their number"
	return resp, nil
}

// startAppointment enters the appointment workflow at QueryingSchedule, which
// computes and transitions within the same turn.
func (e *Engine) startAppointment(ctx context.Context, c *session.Context, patient *patients.Patient, it intent.Intent) (*Response, error) {
	c.Workflow = session.WorkflowAppointment
	c.State = session.StateQueryingSchedule
	c.Registration = nil
	c.Appointment = &session.AppointmentData{
		Intent:    it,
		PatientID: patient.ID,
	}
	if err := e.save(ctx, c); err != nil {
		return nil, err
	}
	return e.querySchedule(ctx, c, patient)
}
