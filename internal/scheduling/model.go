package scheduling

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeBand is one of the bookable day segments a schedule row covers.
type TimeBand string

const (
	TimeBandMorning   TimeBand = "morning"
	TimeBandAfternoon TimeBand = "afternoon"
	TimeBandEvening   TimeBand = "evening"
)

// ParseTimeBand normalizes free-form band names ("night" folds into evening).
func ParseTimeBand(s string) (TimeBand, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "morning", "am":
		return TimeBandMorning, true
	case "afternoon", "pm":
		return TimeBandAfternoon, true
	case "evening", "night":
		return TimeBandEvening, true
	default:
		return "", false
	}
}

// Order returns the canonical sort position of the band within a day.
func (b TimeBand) Order() int {
	switch b {
	case TimeBandMorning:
		return 0
	case TimeBandAfternoon:
		return 1
	case TimeBandEvening:
		return 2
	default:
		return 3
	}
}

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusVisited   AppointmentStatus = "visited"
	StatusCancelled AppointmentStatus = "cancelled"
)

var (
	ErrScheduleNotFound    = errors.New("schedule not found")
	ErrNoSlotsAvailable    = errors.New("no slots available")
	ErrDuplicateBooking    = errors.New("active appointment already exists for this slot")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrAlreadyCancelled    = errors.New("appointment is already cancelled")
	ErrDoctorNotFound      = errors.New("doctor not found")
)

type Doctor struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
}

// Schedule is one bookable (doctor, date, time band) offering.
// (doctor_id, date, time_band) is unique.
type Schedule struct {
	ID             uuid.UUID `json:"id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	Date           time.Time `json:"date"` // day precision, UTC midnight
	TimeBand       TimeBand  `json:"time_band"`
	TotalSlots     int       `json:"total_slots"`
	AvailableSlots int       `json:"available_slots"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Appointment binds a patient to a schedule. At most one non-cancelled
// appointment may exist per (patient_id, schedule_id).
type Appointment struct {
	ID         uuid.UUID         `json:"id"`
	PatientID  uuid.UUID         `json:"patient_id"`
	DoctorID   uuid.UUID         `json:"doctor_id"`
	ScheduleID uuid.UUID         `json:"schedule_id"`
	Status     AppointmentStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Offering is a schedule hydrated with its doctor, as presented to users.
type Offering struct {
	Schedule
	DoctorName string `json:"doctor_name"`
	Department string `json:"department"`
}

// DateOnly truncates t to UTC midnight, the precision schedules are keyed on.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
