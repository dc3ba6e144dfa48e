package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lanternhealth/clinic-concierge/internal/intent"
)

func TestMemoryStore_GetOrCreate(t *testing.T) {
	s := NewMemoryStore(time.Hour, 0)
	defer s.Close()

	c, err := s.GetOrCreate(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if c.State != StateIdle || c.Workflow != WorkflowNone {
		t.Fatalf("expected fresh idle context, got %s/%s", c.Workflow, c.State)
	}

	c.Workflow = WorkflowAppointment
	c.State = StateSelectingTimeSlot
	c.Appointment = &AppointmentData{PatientID: uuid.New()}
	if err := s.Update(context.Background(), c); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.GetOrCreate(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got.State != StateSelectingTimeSlot {
		t.Fatalf("expected persisted state, got %s", got.State)
	}
	if got.Appointment == nil || got.Appointment.PatientID != c.Appointment.PatientID {
		t.Fatalf("expected appointment data to round-trip, got %+v", got.Appointment)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore(time.Hour, 0)
	defer s.Close()

	c, _ := s.GetOrCreate(context.Background(), "sess-1")
	c.State = StateCompleted

	again, _ := s.GetOrCreate(context.Background(), "sess-1")
	if again.State != StateIdle {
		t.Fatal("mutating a returned context must not affect the stored one")
	}
}

func TestMemoryStore_CopiesNestedWorkflowData(t *testing.T) {
	s := NewMemoryStore(time.Hour, 0)
	defer s.Close()

	offset := 2
	c, _ := s.GetOrCreate(context.Background(), "sess-1")
	c.Workflow = WorkflowAppointment
	c.State = StateSelectingTimeSlot
	c.Appointment = &AppointmentData{
		Intent:             intent.Intent{HasIntent: true, DoctorName: "Li Ming", DateOffset: &offset},
		PatientID:          uuid.New(),
		PresentedSchedules: []uuid.UUID{uuid.New(), uuid.New()},
	}
	_ = s.Update(context.Background(), c)

	got, _ := s.GetOrCreate(context.Background(), "sess-1")
	got.Appointment.ScheduleID = uuid.New()
	got.Appointment.PresentedSchedules[0] = uuid.Nil
	*got.Appointment.Intent.DateOffset = 9

	stored, _ := s.GetOrCreate(context.Background(), "sess-1")
	if stored.Appointment.ScheduleID != uuid.Nil {
		t.Fatal("nested appointment data leaked an un-persisted mutation")
	}
	if stored.Appointment.PresentedSchedules[0] == uuid.Nil {
		t.Fatal("presented schedule slice is shared with the stored context")
	}
	if *stored.Appointment.Intent.DateOffset != 2 {
		t.Fatalf("intent date offset is shared, got %d", *stored.Appointment.Intent.DateOffset)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore(time.Hour, 0)
	defer s.Close()

	c, _ := s.GetOrCreate(context.Background(), "sess-1")
	c.Workflow = WorkflowRegistration
	c.State = StateCollectingPatientInfo
	_ = s.Update(context.Background(), c)

	if err := s.Delete(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, _ := s.GetOrCreate(context.Background(), "sess-1")
	if got.State != StateIdle {
		t.Fatalf("expected fresh context after delete, got %s", got.State)
	}
}

func TestMemoryStore_EvictIdleOnlyPastTimeout(t *testing.T) {
	s := NewMemoryStore(30*time.Minute, 0)
	defer s.Close()

	stale, _ := s.GetOrCreate(context.Background(), "stale")
	_ = s.Update(context.Background(), stale)
	fresh, _ := s.GetOrCreate(context.Background(), "fresh")
	_ = s.Update(context.Background(), fresh)

	s.mu.Lock()
	s.contexts["stale"].UpdatedAt = time.Now().UTC().Add(-time.Hour)
	s.mu.Unlock()

	s.evictIdle(time.Now().UTC())

	if s.Len() != 1 {
		t.Fatalf("expected only the stale context evicted, %d remain", s.Len())
	}
	got, _ := s.GetOrCreate(context.Background(), "fresh")
	if got.State != StateIdle {
		t.Fatalf("fresh context was disturbed: %s", got.State)
	}
}

func TestLocks_SerializesSameSession(t *testing.T) {
	locks := NewLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("sess-1")
			defer locks.Unlock("sess-1")

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most one concurrent holder, saw %d", maxSeen)
	}
}

func TestLocks_ReleasesEntries(t *testing.T) {
	locks := NewLocks()

	locks.Lock("sess-1")
	locks.Unlock("sess-1")

	locks.mu.Lock()
	n := len(locks.entries)
	locks.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected empty registry after release, %d entries remain", n)
	}
}

func TestLocks_IndependentSessionsDoNotBlock(t *testing.T) {
	locks := NewLocks()
	locks.Lock("sess-1")
	defer locks.Unlock("sess-1")

	done := make(chan struct{})
	go func() {
		locks.Lock("sess-2")
		locks.Unlock("sess-2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking a different session blocked")
	}
}
