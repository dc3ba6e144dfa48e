package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BookingResult reports a successful TryBook.
type BookingResult struct {
	AppointmentID uuid.UUID
	Remaining     int
}

// CancelResult reports a successful Cancel.
type CancelResult struct {
	Remaining int
}

// OfferingQuery filters schedule offerings. When Date is set, only that day is
// searched; otherwise the half-open range [From, To) applies. DoctorName is a
// case-insensitive substring match.
type OfferingQuery struct {
	DoctorName    string
	Date          time.Time
	From          time.Time
	To            time.Time
	TimeBand      TimeBand
	OnlyAvailable bool
	Limit         int
}

// Ledger owns the authoritative slot counts and the at-most-once booking
// guarantee per (patient, schedule). TryBook and Cancel are atomic with
// respect to each other for the same schedule row: the availability check,
// duplicate check, appointment write, and counter mutation happen as one unit.
//
// Both operations return a terminal result within the call; rejection is
// reported through the sentinel errors in model.go and never retried here.
type Ledger interface {
	TryBook(ctx context.Context, scheduleID, patientID uuid.UUID) (*BookingResult, error)
	Cancel(ctx context.Context, appointmentID uuid.UUID) (*CancelResult, error)
	GetOffering(ctx context.Context, scheduleID uuid.UUID) (*Offering, error)
	FindOfferings(ctx context.Context, q OfferingQuery) ([]Offering, error)
}
