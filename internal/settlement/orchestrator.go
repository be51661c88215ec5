// Package settlement coordinates escrow releases and refunds: it plans the
// transfers, hands them to the chain adapter, waits for confirmation and
// records the outcome together with the escrow transition.
//
// A settlement runs in two steps. Prepare validates the request, computes
// the transfers and claims the escrow; Execute hands the transfers off and
// commits. Between the two, Cancel releases the claim. Once Execute has
// handed anything to the chain the plan can no longer be cancelled, and the
// caller's context cancellation is ignored until the outcome is recorded.
package settlement

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/paysplit/internal/calculator"
	"github.com/mmynk/paysplit/internal/chain"
	"github.com/mmynk/paysplit/internal/escrow"
	"github.com/mmynk/paysplit/internal/metrics"
	"github.com/mmynk/paysplit/internal/models"
	"github.com/mmynk/paysplit/internal/money"
	"github.com/mmynk/paysplit/internal/storage"
	"github.com/mmynk/paysplit/internal/validation"
)

var (
	// ErrCancelRefused is returned by Cancel once transfers were handed off.
	ErrCancelRefused = errors.New("settlement: cancel refused, transfers already handed off")
	// ErrPlanCancelled is returned by Execute for a cancelled plan.
	ErrPlanCancelled = errors.New("settlement: plan was cancelled")
	// ErrPlanExecuted is returned by Execute for a plan that already ran.
	ErrPlanExecuted = errors.New("settlement: plan already executed")
)

// Store is the persistence the orchestrator needs.
type Store interface {
	storage.SplitStore
	storage.EscrowStore
	storage.SettlementStore
}

// Calculator computes withholding and distributions.
type Calculator interface {
	Distribute(amount money.TokenAmount, token string, recipients []models.Recipient) ([]models.TransferInstruction, error)
	Withhold(gross money.TokenAmount, feeBps, gasBufferBps uint32) (calculator.Withholding, error)
}

// StateMachine guards and applies escrow transitions.
type StateMachine interface {
	IsSettled(state models.EscrowState, action models.SettlementAction) bool
	Guard(esc *models.Escrow, to models.EscrowState, expectedVersion uint64) error
	Transition(esc *models.Escrow, to models.EscrowState, expectedVersion uint64, now int64) (*models.Escrow, error)
}

// Config holds the settlement parameters.
type Config struct {
	FeeBasisPoints       uint32
	GasBufferBasisPoints uint32
	Wait                 chain.WaitPolicy
	Limits               validation.Limits
}

// Orchestrator runs settlements against a store and a chain adapter.
type Orchestrator struct {
	store   Store
	adapter chain.Adapter
	calc    Calculator
	machine StateMachine
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	claims map[string]*Plan
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records settlement metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCalculator replaces the default calculator.
func WithCalculator(c Calculator) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.calc = c
		}
	}
}

// WithStateMachine replaces the default escrow state machine.
func WithStateMachine(m StateMachine) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.machine = m
		}
	}
}

// New constructs an orchestrator.
func New(store Store, adapter chain.Adapter, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		adapter: adapter,
		calc:    calculator.New(),
		machine: escrow.NewMachine(),
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
		claims:  make(map[string]*Plan),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// claim registers plan as the single in-flight operation on its escrow.
func (o *Orchestrator) claim(plan *Plan) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.claims[plan.Escrow.ID]; busy {
		o.metrics.ObserveConflict("in_flight")
		return &escrow.StateConflictError{ID: plan.Escrow.ID}
	}
	o.claims[plan.Escrow.ID] = plan
	o.metrics.SettlementStarted()
	return nil
}

func (o *Orchestrator) unclaim(plan *Plan) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.claims[plan.Escrow.ID] == plan {
		delete(o.claims, plan.Escrow.ID)
		o.metrics.SettlementFinished()
	}
}

// InFlight reports whether an operation currently holds the escrow.
func (o *Orchestrator) InFlight(escrowID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.claims[escrowID]
	return busy
}

// storeConflict converts a store version conflict on an escrow into the
// state machine's conflict error.
func storeConflict(err error, escrowID string) error {
	var vc *storage.VersionConflictError
	if errors.As(err, &vc) && vc.Entity == "escrow" {
		return &escrow.StateConflictError{ID: escrowID, Expected: vc.Expected, Actual: vc.Actual}
	}
	return err
}
