// Package workflow implements the per-session conversational booking state
// machine. Each inbound message loads the session's context, dispatches on
// (workflow type, state), consults the patient resolver, slot ledger, and
// intent normalizer as needed, and writes the context back.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lanternhealth/clinic-concierge/internal/intent"
	"github.com/lanternhealth/clinic-concierge/internal/observability/metrics"
	"github.com/lanternhealth/clinic-concierge/internal/patients"
	"github.com/lanternhealth/clinic-concierge/internal/scheduling"
	"github.com/lanternhealth/clinic-concierge/internal/session"
	"github.com/lanternhealth/clinic-concierge/pkg/logging"
)

// ErrMissingSessionID indicates a request without a session identifier.
var ErrMissingSessionID = errors.New("workflow: session id required")

type transitionKey struct {
	workflow session.WorkflowType
	state    session.State
}

type transitionFunc func(ctx context.Context, c *session.Context, req Request) (*Response, error)

// Engine is the workflow state machine.
type Engine struct {
	sessions session.Store
	locks    *session.Locks
	resolver *patients.Resolver
	patients patients.Repository
	ledger   scheduling.Ledger
	nlu      intent.Normalizer
	logger   *logging.Logger
	metrics  *metrics.WorkflowMetrics
	tracer   trace.Tracer

	now         func() time.Time
	searchDays  int
	maxOptions  int
	transitions map[transitionKey]transitionFunc
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSearchDays sets the broadened-search horizon in days.
func WithSearchDays(days int) EngineOption {
	return func(e *Engine) {
		if days > 0 {
			e.searchDays = days
		}
	}
}

// WithMaxOptions caps how many selectable options one response carries.
func WithMaxOptions(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxOptions = n
		}
	}
}

// NewEngine wires the state machine over its collaborators.
func NewEngine(
	sessions session.Store,
	resolver *patients.Resolver,
	patientRepo patients.Repository,
	ledger scheduling.Ledger,
	nlu intent.Normalizer,
	logger *logging.Logger,
	m *metrics.WorkflowMetrics,
	opts ...EngineOption,
) *Engine {
	if sessions == nil {
		panic("workflow: session store required")
	}
	if resolver == nil || patientRepo == nil {
		panic("workflow: patient resolver and repository required")
	}
	if ledger == nil {
		panic("workflow: slot ledger required")
	}
	if nlu == nil {
		panic("workflow: intent normalizer required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	e := &Engine{
		sessions:   sessions,
		locks:      session.NewLocks(),
		resolver:   resolver,
		patients:   patientRepo,
		ledger:     ledger,
		nlu:        nlu,
		logger:     logger,
		metrics:    m,
		tracer:     otel.Tracer("concierge.internal.workflow"),
		now:        func() time.Time { return time.Now().UTC() },
		searchDays: 7,
		maxOptions: 5,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.transitions = map[transitionKey]transitionFunc{
		{session.WorkflowRegistration, session.StateCollectingPatientInfo}: e.handleCollectingPatientInfo,
		{session.WorkflowAppointment, session.StatePatientSelection}:       e.handlePatientSelection,
		{session.WorkflowAppointment, session.StateQueryingSchedule}:       e.handleQueryingSchedule,
		{session.WorkflowAppointment, session.StateSelectingTimeSlot}:      e.handleSelectingTimeSlot,
	}
	return e
}

// ProcessEvent applies one inbound message to the session's workflow. Turns
// for the same session are serialized; turns for different sessions run
// concurrently.
func (e *Engine) ProcessEvent(ctx context.Context, req Request) (*Response, error) {
	if req.SessionID == "" {
		return nil, ErrMissingSessionID
	}

	ctx, span := e.tracer.Start(ctx, "workflow.process_event")
	defer span.End()
	span.SetAttributes(attribute.String("concierge.session_id", req.SessionID))

	e.locks.Lock(req.SessionID)
	defer e.locks.Unlock(req.SessionID)

	start := e.now()

	c, err := e.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("workflow: load session: %w", err)
	}

	// Terminal contexts are evicted when reached; one surviving a crash or a
	// racing write is treated as a fresh idle interaction.
	if c.State.Terminal() {
		if err := e.sessions.Delete(ctx, c.SessionID); err != nil {
			e.logger.Warn("failed to evict terminal session", "session_id", c.SessionID, "error", err)
		}
		c = session.NewContext(req.SessionID)
	}

	resp, err := e.dispatch(ctx, c, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.metrics.ObserveTransition(string(resp.Workflow), string(resp.State))
	e.metrics.ObserveTurnLatency(string(resp.Workflow), e.now().Sub(start).Seconds())
	return resp, nil
}

func (e *Engine) dispatch(ctx context.Context, c *session.Context, req Request) (*Response, error) {
	if c.State == session.StateIdle {
		return e.handleIdle(ctx, c, req)
	}

	handler, ok := e.transitions[transitionKey{c.Workflow, c.State}]
	if !ok {
		// A combination outside the transition table is a logic defect, not a
		// user error; fail the session rather than loop.
		e.logger.Error("unreachable workflow state",
			"session_id", c.SessionID, "workflow", c.Workflow, "state", c.State)
		return e.fail(ctx, c, "Something went wrong with this conversation. Please start over.")
	}
	return handler(ctx, c, req)
}

// save persists the context after a handler mutated it.
func (e *Engine) save(ctx context.Context, c *session.Context) error {
	if err := e.sessions.Update(ctx, c); err != nil {
		return fmt.Errorf("workflow: persist session: %w", err)
	}
	return nil
}

// complete marks the workflow finished and evicts the session.
func (e *Engine) complete(ctx context.Context, c *session.Context) {
	c.State = session.StateCompleted
	if err := e.sessions.Delete(ctx, c.SessionID); err != nil {
		e.logger.Warn("failed to evict completed session", "session_id", c.SessionID, "error", err)
	}
}

// fail marks the workflow failed, evicts the session, and builds the response.
func (e *Engine) fail(ctx context.Context, c *session.Context, message string) (*Response, error) {
	c.State = session.StateFailed
	if err := e.sessions.Delete(ctx, c.SessionID); err != nil {
		e.logger.Warn("failed to evict failed session", "session_id", c.SessionID, "error", err)
	}
	return respond(c, false, message), nil
}
