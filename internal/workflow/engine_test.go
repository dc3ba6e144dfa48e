package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lanternhealth/clinic-concierge/internal/intent"
	"github.com/lanternhealth/clinic-concierge/internal/patients"
	"github.com/lanternhealth/clinic-concierge/internal/scheduling"
	"github.com/lanternhealth/clinic-concierge/internal/session"
)

// fakeNormalizer replays scripted intents and profiles in order.
type fakeNormalizer struct {
	intents  []intent.Intent
	profiles []intent.ProfileExtraction
}

func (f *fakeNormalizer) ParseIntent(ctx context.Context, freeText string) (intent.Intent, error) {
	if len(f.intents) == 0 {
		return intent.Intent{}, nil
	}
	next := f.intents[0]
	f.intents = f.intents[1:]
	return next, nil
}

func (f *fakeNormalizer) ExtractProfile(ctx context.Context, conversation []intent.ChatTurn) (intent.ProfileExtraction, error) {
	if len(f.profiles) == 0 {
		return intent.ProfileExtraction{}, nil
	}
	next := f.profiles[0]
	f.profiles = f.profiles[1:]
	return next, nil
}

type testEnv struct {
	engine   *Engine
	sessions *session.MemoryStore
	ledger   *scheduling.MemoryLedger
	patients *patients.InMemoryRepository
	nlu      *fakeNormalizer
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sessions := session.NewMemoryStore(time.Hour, 0)
	t.Cleanup(sessions.Close)

	ledger := scheduling.NewMemoryLedger()
	repo := patients.NewInMemoryRepository()
	nlu := &fakeNormalizer{}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	engine := NewEngine(
		sessions,
		patients.NewResolver(repo),
		repo,
		ledger,
		nlu,
		nil,
		nil,
		WithClock(func() time.Time { return now }),
	)
	return &testEnv{
		engine:   engine,
		sessions: sessions,
		ledger:   ledger,
		patients: repo,
		nlu:      nlu,
		now:      now,
	}
}

func (env *testEnv) day(offset int) time.Time {
	return scheduling.DateOnly(env.now).AddDate(0, 0, offset)
}

func (env *testEnv) addPatient(t *testing.T, name, phone string) *patients.Patient {
	t.Helper()
	p, err := env.patients.Create(context.Background(), &patients.CreatePatientRequest{Name: name, Phone: phone})
	if err != nil {
		t.Fatalf("add patient: %v", err)
	}
	return p
}

func (env *testEnv) addOffering(t *testing.T, doctor string, dayOffset int, band scheduling.TimeBand, slots int) scheduling.Schedule {
	t.Helper()
	doc := env.ledger.AddDoctor(scheduling.Doctor{Name: doctor, Department: "Cardiology"})
	return env.ledger.AddSchedule(scheduling.Schedule{
		DoctorID:       doc.ID,
		Date:           env.day(dayOffset),
		TimeBand:       band,
		TotalSlots:     slots,
		AvailableSlots: slots,
	})
}

func intPtr(n int) *int { return &n }

func process(t *testing.T, env *testEnv, req Request) *Response {
	t.Helper()
	resp, err := env.engine.ProcessEvent(context.Background(), req)
	if err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	return resp
}

func TestProcessEvent_RequiresSessionID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.ProcessEvent(context.Background(), Request{Message: "hello"})
	if !errors.Is(err, ErrMissingSessionID) {
		t.Fatalf("expected ErrMissingSessionID, got %v", err)
	}
}

func TestIdle_NoIntentClarifies(t *testing.T) {
	env := newTestEnv(t)
	env.nlu.intents = []intent.Intent{{}}

	resp := process(t, env, Request{SessionID: "s1", Message: "what's the weather"})
	if resp.Success {
		t.Fatal("expected a clarification, not success")
	}
	if resp.State != session.StateIdle {
		t.Fatalf("session must stay idle, got %s", resp.State)
	}
}

func TestIdle_EmptyMessageClarifies(t *testing.T) {
	env := newTestEnv(t)

	resp := process(t, env, Request{SessionID: "s1", Message: "   "})
	if resp.Success || resp.State != session.StateIdle {
		t.Fatalf("expected idle clarification, got %+v", resp)
	}
}

func TestIdle_MissingPatientNameAsks(t *testing.T) {
	env := newTestEnv(t)
	env.nlu.intents = []intent.Intent{{HasIntent: true, DoctorName: "Li Ming"}}

	resp := process(t, env, Request{SessionID: "s1", Message: "book with Dr. Li Ming"})
	if resp.Success {
		t.Fatal("expected a follow-up question")
	}
	if resp.NextAction == "" {
		t.Fatal("expected a next action prompt")
	}
	if resp.State != session.StateIdle {
		t.Fatalf("session must stay idle, got %s", resp.State)
	}
}

func TestBooking_SingleMatchConfirmFlow(t *testing.T) {
	env := newTestEnv(t)
	patient := env.addPatient(t, "Zhang San", "13800000001")
	sched := env.addOffering(t, "Li Ming", 1, scheduling.TimeBandMorning, 3)

	env.nlu.intents = []intent.Intent{{
		HasIntent:   true,
		PatientName: "Zhang San",
		DoctorName:  "Li Ming",
		DateOffset:  intPtr(1),
		TimeBand:    scheduling.TimeBandMorning,
	}}

	resp := process(t, env, Request{SessionID: "s1", Message: "book Zhang San with Dr. Li Ming tomorrow morning"})
	if !resp.Success {
		t.Fatalf("expected offer, got %+v", resp)
	}
	if resp.State != session.StateSelectingTimeSlot {
		t.Fatalf("expected slot selection, got %s", resp.State)
	}
	if len(resp.Options) != 1 {
		t.Fatalf("expected one confirmable option, got %d", len(resp.Options))
	}

	resp = process(t, env, Request{SessionID: "s1", Message: "confirm"})
	if !resp.Success {
		t.Fatalf("expected booking, got %+v", resp)
	}
	if resp.State != session.StateCompleted {
		t.Fatalf("expected completed, got %s", resp.State)
	}
	if resp.Data["appointmentId"] == nil {
		t.Fatal("expected appointment id in response data")
	}

	off, err := env.ledger.GetOffering(context.Background(), sched.ID)
	if err != nil {
		t.Fatalf("GetOffering: %v", err)
	}
	if off.AvailableSlots != 2 {
		t.Fatalf("expected availability 3 -> 2, got %d", off.AvailableSlots)
	}

	// Terminal sessions are evicted; the next message starts over.
	if env.sessions.Len() != 0 {
		t.Fatalf("expected session evicted, %d remain", env.sessions.Len())
	}
	apptID, err := uuid.Parse(resp.Data["appointmentId"].(string))
	if err != nil {
		t.Fatalf("appointment id is not a uuid: %v", err)
	}
	if _, ok := env.ledger.GetAppointment(apptID); !ok {
		t.Fatal("appointment not stored")
	}
	_ = patient
}

func TestBooking_MultipleOfferingsPickByNumber(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "Zhang San", "13800000001")

	doc := env.ledger.AddDoctor(scheduling.Doctor{Name: "Li Ming", Department: "Cardiology"})
	env.ledger.AddSchedule(scheduling.Schedule{
		DoctorID: doc.ID, Date: env.day(1), TimeBand: scheduling.TimeBandMorning,
		TotalSlots: 2, AvailableSlots: 2,
	})
	second := env.ledger.AddSchedule(scheduling.Schedule{
		DoctorID: doc.ID, Date: env.day(1), TimeBand: scheduling.TimeBandAfternoon,
		TotalSlots: 2, AvailableSlots: 2,
	})

	env.nlu.intents = []intent.Intent{{
		HasIntent:   true,
		PatientName: "Zhang San",
		DoctorName:  "Li Ming",
		DateOffset:  intPtr(1),
	}}

	resp := process(t, env, Request{SessionID: "s1", Message: "book Zhang San with Dr. Li Ming tomorrow"})
	if len(resp.Options) != 2 {
		t.Fatalf("expected two options, got %d", len(resp.Options))
	}

	resp = process(t, env, Request{SessionID: "s1", Message: "option 2 please"})
	if !resp.Success || resp.State != session.StateCompleted {
		t.Fatalf("expected booking of option 2, got %+v", resp)
	}

	off, _ := env.ledger.GetOffering(context.Background(), second.ID)
	if off.AvailableSlots != 1 {
		t.Fatalf("expected afternoon slot consumed, got %d", off.AvailableSlots)
	}
}

func TestBooking_RawScheduleIDInMessage(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "Zhang San", "13800000001")

	doc := env.ledger.AddDoctor(scheduling.Doctor{Name: "Li Ming", Department: "Cardiology"})
	env.ledger.AddSchedule(scheduling.Schedule{
		DoctorID: doc.ID, Date: env.day(1), TimeBand: scheduling.TimeBandMorning,
		TotalSlots: 2, AvailableSlots: 2,
	})
	second := env.ledger.AddSchedule(scheduling.Schedule{
		DoctorID: doc.ID, Date: env.day(1), TimeBand: scheduling.TimeBandAfternoon,
		TotalSlots: 2, AvailableSlots: 2,
	})

	env.nlu.intents = []intent.Intent{{
		HasIntent: true, PatientName: "Zhang San", DoctorName: "Li Ming", DateOffset: intPtr(1),
	}}
	process(t, env, Request{SessionID: "s1", Message: "book Zhang San with Dr. Li Ming tomorrow"})

	// A schedule id typed into the message books directly, and its digits
	// must not be misread as a choice number.
	resp := process(t, env, Request{SessionID: "s1", Message: "book " + second.ID.String()})
	if !resp.Success || resp.State != session.StateCompleted {
		t.Fatalf("expected booking by raw id, got %+v", resp)
	}

	off, _ := env.ledger.GetOffering(context.Background(), second.ID)
	if off.AvailableSlots != 1 {
		t.Fatalf("expected the named slot consumed, got %d", off.AvailableSlots)
	}
}

func TestBooking_StructuredSelectionWinsOverText(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "Zhang San", "13800000001")

	doc := env.ledger.AddDoctor(scheduling.Doctor{Name: "Li Ming", Department: "Cardiology"})
	first := env.ledger.AddSchedule(scheduling.Schedule{
		DoctorID: doc.ID, Date: env.day(1), TimeBand: scheduling.TimeBandMorning,
		TotalSlots: 2, AvailableSlots: 2,
	})
	env.ledger.AddSchedule(scheduling.Schedule{
		DoctorID: doc.ID, Date: env.day(1), TimeBand: scheduling.TimeBandAfternoon,
		TotalSlots: 2, AvailableSlots: 2,
	})

	env.nlu.intents = []intent.Intent{{
		HasIntent: true, PatientName: "Zhang San", DoctorName: "Li Ming", DateOffset: intPtr(1),
	}}
	process(t, env, Request{SessionID: "s1", Message: "book Zhang San with Dr. Li Ming tomorrow"})

	resp := process(t, env, Request{
		SessionID: "s1",
		Message:   "2",
		Selection: map[string]any{"scheduleId": first.ID.String()},
	})
	if !resp.Success || resp.State != session.StateCompleted {
		t.Fatalf("expected booking, got %+v", resp)
	}

	off, _ := env.ledger.GetOffering(context.Background(), first.ID)
	if off.AvailableSlots != 1 {
		t.Fatal("structured selection must win over the message text")
	}
}

func TestBooking_InvalidSelectionRePrompts(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "Zhang San", "13800000001")
	env.addOffering(t, "Li Ming", 1, scheduling.TimeBandMorning, 2)

	env.nlu.intents = []intent.Intent{{
		HasIntent: true, PatientName: "Zhang San", DoctorName: "Li Ming", DateOffset: intPtr(1),
	}}
	process(t, env, Request{SessionID: "s1", Message: "book Zhang San with Dr. Li Ming tomorrow"})

	resp := process(t, env, Request{SessionID: "s1", Message: "42"})
	if resp.Success {
		t.Fatal("out-of-range index must re-prompt")
	}
	if resp.State != session.StateSelectingTimeSlot {
		t.Fatalf("expected to stay in slot selection, got %s", resp.State)
	}

	// The session is still live and a valid reply still books.
	resp = process(t, env, Request{SessionID: "s1", Message: "1"})
	if !resp.Success || resp.State != session.StateCompleted {
		t.Fatalf("expected booking after re-prompt, got %+v", resp)
	}
}

func TestBooking_DuplicateStaysInSelection(t *testing.T) {
	env := newTestEnv(t)
	patient := env.addPatient(t, "Zhang San", "13800000001")
	sched := env.addOffering(t, "Li Ming", 1, scheduling.TimeBandMorning, 3)

	// Patient already holds this exact slot.
	if _, err := env.ledger.TryBook(context.Background(), sched.ID, patient.ID); err != nil {
		t.Fatalf("pre-book: %v", err)
	}

	env.nlu.intents = []intent.Intent{{
		HasIntent: true, PatientName: "Zhang San", DoctorName: "Li Ming",
		DateOffset: intPtr(1), TimeBand: scheduling.TimeBandMorning,
	}}
	process(t, env, Request{SessionID: "s1", Message: "book Zhang San with Dr. Li Ming tomorrow morning"})

	resp := process(t, env, Request{SessionID: "s1", Message: "confirm"})
	if resp.Success {
		t.Fatal("duplicate booking must be rejected")
	}
	if resp.State != session.StateSelectingTimeSlot {
		t.Fatalf("expected to stay in slot selection, got %s", resp.State)
	}

	off, _ := env.ledger.GetOffering(context.Background(), sched.ID)
	if off.AvailableSlots != 2 {
		t.Fatalf("rejected duplicate must not consume a slot, got %d", off.AvailableSlots)
	}
}

func TestBooking_SlotTakenMidConversation(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "Zhang San", "13800000001")
	sched := env.addOffering(t, "Li Ming", 1, scheduling.TimeBandMorning, 1)

	env.nlu.intents = []intent.Intent{{
		HasIntent: true, PatientName: "Zhang San", DoctorName: "Li Ming",
		DateOffset: intPtr(1), TimeBand: scheduling.TimeBandMorning,
	}}
	process(t, env, Request{SessionID: "s1", Message: "book Zhang San with Dr. Li Ming tomorrow morning"})

	// Someone else takes the last slot between turns.
	if _, err := env.ledger.TryBook(context.Background(), sched.ID, uuid.New()); err != nil {
		t.Fatalf("rival booking: %v", err)
	}

	resp := process(t, env, Request{SessionID: "s1", Message: "confirm"})
	if resp.Success {
		t.Fatal("stale slot must not book")
	}
	if resp.State != session.StateSelectingTimeSlot {
		t.Fatalf("expected corrective re-prompt, got %s", resp.State)
	}
}

func TestBooking_BroadenedSearchWhenExactDateEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "Zhang San", "13800000001")
	// Nothing tomorrow, but day 3 has capacity.
	alt := env.addOffering(t, "Li Ming", 3, scheduling.TimeBandAfternoon, 2)

	env.nlu.intents = []intent.Intent{{
		HasIntent: true, PatientName: "Zhang San", DoctorName: "Li Ming",
		DateOffset: intPtr(1), TimeBand: scheduling.TimeBandMorning,
	}}

	resp := process(t, env, Request{SessionID: "s1", Message: "book Zhang San with Dr. Li Ming tomorrow morning"})
	if !resp.Success {
		t.Fatalf("expected alternatives, got %+v", resp)
	}
	if resp.State != session.StateSelectingTimeSlot {
		t.Fatalf("expected slot selection over alternatives, got %s", resp.State)
	}
	if len(resp.Options) != 1 || resp.Options[0].ID != alt.ID.String() {
		t.Fatalf("expected the day-3 alternative, got %+v", resp.Options)
	}
}

func TestBooking_NoAvailabilityAnywhereFails(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "Zhang San", "13800000001")

	env.nlu.intents = []intent.Intent{
		{HasIntent: true, PatientName: "Zhang San", DoctorName: "Li Ming", DateOffset: intPtr(1)},
		{}, // next turn parses as small talk
	}

	resp := process(t, env, Request{SessionID: "s1", Message: "book Zhang San with Dr. Li Ming tomorrow"})
	if resp.Success {
		t.Fatal("expected failure with no availability")
	}
	if resp.State != session.StateFailed {
		t.Fatalf("expected failed state, got %s", resp.State)
	}

	// The failed session is gone; the next message is a fresh idle turn.
	resp = process(t, env, Request{SessionID: "s1", Message: "hello"})
	if resp.State != session.StateIdle {
		t.Fatalf("expected fresh idle session, got %s", resp.State)
	}
}

func TestPatientSelection_PickByIndexThenBook(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "Zhang San", "13800000001")
	second := env.addPatient(t, "Zhang San", "13800000002")
	env.addOffering(t, "Li Ming", 1, scheduling.TimeBandMorning, 3)

	env.nlu.intents = []intent.Intent{{
		HasIntent: true, PatientName: "Zhang San", DoctorName: "Li Ming",
		DateOffset: intPtr(1), TimeBand: scheduling.TimeBandMorning,
	}}

	resp := process(t, env, Request{SessionID: "s1", Message: "book Zhang San with Dr. Li Ming tomorrow morning"})
	if resp.State != session.StatePatientSelection {
		t.Fatalf("expected patient selection, got %s", resp.State)
	}
	if len(resp.Options) != 2 {
		t.Fatalf("expected two candidates, got %d", len(resp.Options))
	}

	resp = process(t, env, Request{SessionID: "s1", Message: "2"})
	if resp.State != session.StateSelectingTimeSlot {
		t.Fatalf("expected slot selection after disambiguation, got %s", resp.State)
	}

	resp = process(t, env, Request{SessionID: "s1", Message: "confirm"})
	if !resp.Success || resp.State != session.StateCompleted {
		t.Fatalf("expected booking, got %+v", resp)
	}
	_ = second
}

func TestPatientSelection_InvalidChoiceRePrompts(t *testing.T) {
	env := newTestEnv(t)
	env.addPatient(t, "Zhang San", "13800000001")
	env.addPatient(t, "Zhang San", "13800000002")

	env.nlu.intents = []intent.Intent{{HasIntent: true, PatientName: "Zhang San"}}
	process(t, env, Request{SessionID: "s1", Message: "book Zhang San"})

	resp := process(t, env, Request{SessionID: "s1", Message: "the tall one"})
	if resp.Success {
		t.Fatal("unparseable choice must re-prompt")
	}
	if resp.State != session.StatePatientSelection {
		t.Fatalf("expected to stay in patient selection, got %s", resp.State)
	}
	if len(resp.Options) != 2 {
		t.Fatal("re-prompt must repeat the candidates")
	}
}

func TestRegistration_UnknownPatientThenResume(t *testing.T) {
	env := newTestEnv(t)
	env.addOffering(t, "Li Ming", 1, scheduling.TimeBandMorning, 2)

	env.nlu.intents = []intent.Intent{{
		HasIntent: true, PatientName: "Wang Fang", DoctorName: "Li Ming",
		DateOffset: intPtr(1), TimeBand: scheduling.TimeBandMorning,
	}}
	env.nlu.profiles = []intent.ProfileExtraction{
		{}, // first reply is incomplete
		{HasData: true, Name: "Wang Fang", Gender: "female", Phone: "13800001111"},
	}

	resp := process(t, env, Request{SessionID: "s1", Message: "book Wang Fang with Dr. Li Ming tomorrow morning"})
	if resp.State != session.StateCollectingPatientInfo {
		t.Fatalf("expected registration, got %s", resp.State)
	}

	resp = process(t, env, Request{SessionID: "s1", Message: "she's my mother"})
	if resp.Success {
		t.Fatal("incomplete profile must re-prompt")
	}
	if resp.State != session.StateCollectingPatientInfo {
		t.Fatalf("expected to stay collecting, got %s", resp.State)
	}

	resp = process(t, env, Request{SessionID: "s1", Message: "Wang Fang, female, phone 13800001111"})
	if !resp.Success {
		t.Fatalf("expected registration to finish, got %+v", resp)
	}
	// The stored intent resumes the appointment workflow immediately.
	if resp.Workflow != session.WorkflowAppointment || resp.State != session.StateSelectingTimeSlot {
		t.Fatalf("expected resumed appointment at slot selection, got %s/%s", resp.Workflow, resp.State)
	}

	created, err := env.patients.SearchByName(context.Background(), "Wang Fang", 5)
	if err != nil || len(created) != 1 {
		t.Fatalf("expected registered patient, got %v %v", created, err)
	}

	resp = process(t, env, Request{SessionID: "s1", Message: "yes"})
	if !resp.Success || resp.State != session.StateCompleted {
		t.Fatalf("expected booking for the new patient, got %+v", resp)
	}
}

func TestRegistration_NoPendingIntentCompletes(t *testing.T) {
	env := newTestEnv(t)

	env.nlu.intents = []intent.Intent{{HasIntent: true, PatientName: "Wang Fang"}}
	env.nlu.profiles = []intent.ProfileExtraction{
		{HasData: true, Name: "Wang Fang", Gender: "female"},
	}

	resp := process(t, env, Request{SessionID: "s1", Message: "register Wang Fang"})
	if resp.State != session.StateCollectingPatientInfo {
		t.Fatalf("expected registration, got %s", resp.State)
	}

	// Clear the stored intent to model a pure registration conversation.
	c, _ := env.sessions.GetOrCreate(context.Background(), "s1")
	c.Registration.PendingIntent = nil
	_ = env.sessions.Update(context.Background(), c)

	resp = process(t, env, Request{SessionID: "s1", Message: "Wang Fang, female"})
	if !resp.Success || resp.State != session.StateCompleted {
		t.Fatalf("expected completed registration, got %+v", resp)
	}
	if resp.Data["patientId"] == nil {
		t.Fatal("expected patient id in response data")
	}
}

func TestDispatch_UnknownComboFailsCleanly(t *testing.T) {
	env := newTestEnv(t)

	c, _ := env.sessions.GetOrCreate(context.Background(), "s1")
	c.Workflow = session.WorkflowRegistration
	c.State = session.StateSelectingTimeSlot // not a legal pairing
	_ = env.sessions.Update(context.Background(), c)

	resp := process(t, env, Request{SessionID: "s1", Message: "hello"})
	if resp.Success {
		t.Fatal("unknown combination must fail")
	}
	if resp.State != session.StateFailed {
		t.Fatalf("expected failed state, got %s", resp.State)
	}
	if env.sessions.Len() != 0 {
		t.Fatal("failed session must be evicted")
	}
}

func TestTransitionTable_CoversAllWorkflowStates(t *testing.T) {
	env := newTestEnv(t)

	expected := []transitionKey{
		{session.WorkflowRegistration, session.StateCollectingPatientInfo},
		{session.WorkflowAppointment, session.StatePatientSelection},
		{session.WorkflowAppointment, session.StateQueryingSchedule},
		{session.WorkflowAppointment, session.StateSelectingTimeSlot},
	}
	if len(env.engine.transitions) != len(expected) {
		t.Fatalf("transition table has %d entries, expected %d", len(env.engine.transitions), len(expected))
	}
	for _, key := range expected {
		if env.engine.transitions[key] == nil {
			t.Fatalf("missing transition for %s/%s", key.workflow, key.state)
		}
	}
}
