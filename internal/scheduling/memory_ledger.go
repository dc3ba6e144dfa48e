package scheduling

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is an in-process Ledger used by tests and local development.
// A single mutex serializes all mutations, which is enough to make TryBook
// and Cancel atomic per schedule row.
type MemoryLedger struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]*Doctor
	schedules    map[uuid.UUID]*Schedule
	appointments map[uuid.UUID]*Appointment
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		doctors:      make(map[uuid.UUID]*Doctor),
		schedules:    make(map[uuid.UUID]*Schedule),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

// AddDoctor registers a doctor and returns it with an assigned ID.
func (l *MemoryLedger) AddDoctor(d Doctor) Doctor {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	l.doctors[d.ID] = &d
	return d
}

// AddSchedule registers an offering. The (doctor, date, band) pair must be
// unique; re-adding an existing pair replaces the row.
func (l *MemoryLedger) AddSchedule(s Schedule) Schedule {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.Date = DateOnly(s.Date)
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.AvailableSlots > s.TotalSlots {
		s.AvailableSlots = s.TotalSlots
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	for id, existing := range l.schedules {
		if existing.DoctorID == s.DoctorID && existing.Date.Equal(s.Date) && existing.TimeBand == s.TimeBand {
			delete(l.schedules, id)
		}
	}
	l.schedules[s.ID] = &s
	return s
}

// GetAppointment returns a copy of the stored appointment.
func (l *MemoryLedger) GetAppointment(id uuid.UUID) (*Appointment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	appt, ok := l.appointments[id]
	if !ok {
		return nil, false
	}
	cp := *appt
	return &cp, true
}

// TryBook atomically validates availability and duplicates, creates the
// appointment, and decrements the slot counter.
func (l *MemoryLedger) TryBook(ctx context.Context, scheduleID, patientID uuid.UUID) (*BookingResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sched, ok := l.schedules[scheduleID]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	if sched.AvailableSlots <= 0 {
		return nil, ErrNoSlotsAvailable
	}
	for _, appt := range l.appointments {
		if appt.PatientID == patientID && appt.ScheduleID == scheduleID && appt.Status != StatusCancelled {
			return nil, ErrDuplicateBooking
		}
	}

	now := time.Now().UTC()
	appt := &Appointment{
		ID:         uuid.New(),
		PatientID:  patientID,
		DoctorID:   sched.DoctorID,
		ScheduleID: scheduleID,
		Status:     StatusScheduled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	l.appointments[appt.ID] = appt
	sched.AvailableSlots--
	sched.UpdatedAt = now

	return &BookingResult{AppointmentID: appt.ID, Remaining: sched.AvailableSlots}, nil
}

// Cancel flips a non-cancelled appointment to cancelled and returns the slot.
func (l *MemoryLedger) Cancel(ctx context.Context, appointmentID uuid.UUID) (*CancelResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	appt, ok := l.appointments[appointmentID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	now := time.Now().UTC()
	appt.Status = StatusCancelled
	appt.UpdatedAt = now

	sched, ok := l.schedules[appt.ScheduleID]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	if sched.AvailableSlots < sched.TotalSlots {
		sched.AvailableSlots++
	}
	sched.UpdatedAt = now

	return &CancelResult{Remaining: sched.AvailableSlots}, nil
}

// GetOffering returns the hydrated schedule row.
func (l *MemoryLedger) GetOffering(ctx context.Context, scheduleID uuid.UUID) (*Offering, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sched, ok := l.schedules[scheduleID]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	return l.hydrate(sched), nil
}

// FindOfferings filters offerings and orders them date ascending, then by the
// canonical band order within a day.
func (l *MemoryLedger) FindOfferings(ctx context.Context, q OfferingQuery) ([]Offering, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(q.DoctorName))
	var out []Offering
	for _, sched := range l.schedules {
		if q.OnlyAvailable && sched.AvailableSlots <= 0 {
			continue
		}
		if q.TimeBand != "" && sched.TimeBand != q.TimeBand {
			continue
		}
		if !q.Date.IsZero() {
			if !sched.Date.Equal(DateOnly(q.Date)) {
				continue
			}
		} else {
			if !q.From.IsZero() && sched.Date.Before(DateOnly(q.From)) {
				continue
			}
			if !q.To.IsZero() && !sched.Date.Before(DateOnly(q.To)) {
				continue
			}
		}
		if needle != "" {
			doc, ok := l.doctors[sched.DoctorID]
			if !ok || !strings.Contains(strings.ToLower(doc.Name), needle) {
				continue
			}
		}
		out = append(out, *l.hydrate(sched))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].TimeBand.Order() < out[j].TimeBand.Order()
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (l *MemoryLedger) hydrate(sched *Schedule) *Offering {
	off := &Offering{Schedule: *sched}
	if doc, ok := l.doctors[sched.DoctorID]; ok {
		off.DoctorName = doc.Name
		off.Department = doc.Department
	}
	return off
}

var _ Ledger = (*MemoryLedger)(nil)
