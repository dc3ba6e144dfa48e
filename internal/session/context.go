// Package session holds per-conversation workflow state. One Context exists
// per session identifier; the engine mutates it between turns and the store
// evicts it on terminal states or after an idle timeout.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/lanternhealth/clinic-concierge/internal/intent"
)

// WorkflowType identifies which multi-turn process a session is running.
type WorkflowType string

const (
	WorkflowNone         WorkflowType = "none"
	WorkflowRegistration WorkflowType = "patient_registration"
	WorkflowAppointment  WorkflowType = "appointment"
)

// State is the workflow machine state.
type State string

const (
	StateIdle                  State = "idle"
	StateCollectingPatientInfo State = "collecting_patient_info"
	StatePatientSelection      State = "patient_selection"
	StateQueryingSchedule      State = "querying_schedule"
	StateSelectingTimeSlot     State = "selecting_time_slot"
	StateCompleted             State = "completed"
	StateFailed                State = "failed"
)

// Terminal reports whether a state accepts no further messages.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Candidate is one of several patients matching an ambiguous name query.
type Candidate struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	IDCard      string    `json:"id_card"`
	Gender      string    `json:"gender"`
	DateOfBirth string    `json:"date_of_birth,omitempty"`
}

// RegistrationData is the scratch state of a patient-registration workflow.
type RegistrationData struct {
	PatientName   string           `json:"patient_name"`
	PendingIntent *intent.Intent   `json:"pending_intent,omitempty"`
	Transcript    []intent.ChatTurn `json:"transcript,omitempty"`
}

// AppointmentData is the scratch state of an appointment workflow. Which
// fields are populated depends on the state: Candidates before a patient is
// chosen, PatientID from QueryingSchedule on, PresentedSchedules and
// ScheduleID during slot selection.
type AppointmentData struct {
	Intent             intent.Intent `json:"intent"`
	PatientID          uuid.UUID     `json:"patient_id,omitempty"`
	Candidates         []Candidate   `json:"candidates,omitempty"`
	PresentedSchedules []uuid.UUID   `json:"presented_schedules,omitempty"`
	ScheduleID         uuid.UUID     `json:"schedule_id,omitempty"`
}

// Context is the workflow context of one session. Exactly one of Registration
// or Appointment is set once a workflow has started.
type Context struct {
	SessionID    string            `json:"session_id"`
	Workflow     WorkflowType      `json:"workflow"`
	State        State             `json:"state"`
	Registration *RegistrationData `json:"registration,omitempty"`
	Appointment  *AppointmentData  `json:"appointment,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Clone returns a deep copy. Callers may mutate the copy freely; stored
// state only changes through Update.
func (c *Context) Clone() *Context {
	cp := *c
	if c.Registration != nil {
		r := *c.Registration
		if r.PendingIntent != nil {
			pi := cloneIntent(*r.PendingIntent)
			r.PendingIntent = &pi
		}
		r.Transcript = append([]intent.ChatTurn(nil), c.Registration.Transcript...)
		cp.Registration = &r
	}
	if c.Appointment != nil {
		a := *c.Appointment
		a.Intent = cloneIntent(a.Intent)
		a.Candidates = append([]Candidate(nil), c.Appointment.Candidates...)
		a.PresentedSchedules = append([]uuid.UUID(nil), c.Appointment.PresentedSchedules...)
		cp.Appointment = &a
	}
	return &cp
}

func cloneIntent(in intent.Intent) intent.Intent {
	if in.DateOffset != nil {
		v := *in.DateOffset
		in.DateOffset = &v
	}
	return in
}

// NewContext returns an idle context for the session.
func NewContext(sessionID string) *Context {
	now := time.Now().UTC()
	return &Context{
		SessionID: sessionID,
		Workflow:  WorkflowNone,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
