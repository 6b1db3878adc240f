// Package boot sequences credential hydration, session validation, and gate
// evaluation into a single cached route decision per lifecycle.
package boot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/R3E-Network/session_gateway/internal/app/domain/session"
	"github.com/R3E-Network/session_gateway/internal/app/gates"
	"github.com/R3E-Network/session_gateway/internal/app/metrics"
	"github.com/R3E-Network/session_gateway/internal/app/services/identity"
	"github.com/R3E-Network/session_gateway/pkg/logger"
)

// State is the orchestrator lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateComplete
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	default:
		return "idle"
	}
}

// TokenStore is the durable credential contract the orchestrator consumes.
// Get reports presence explicitly; a read error is treated as absence by the
// orchestrator so boot always reaches a navigable route.
type TokenStore interface {
	Get(ctx context.Context) (credential string, present bool, err error)
	Clear(ctx context.Context) error
}

// DevOverrides collapses the dev-mode boot shortcuts into explicit
// configuration instead of build-flag branching.
type DevOverrides struct {
	// SkipRemoteValidation short-circuits the identity call.
	SkipRemoteValidation bool
	// MockProfile is the profile substituted when remote validation is
	// skipped. Skipping without a mock profile behaves as an auth failure.
	MockProfile *session.Profile
}

// Orchestrator derives the single route decision for one client. Run is
// single-flight: concurrent calls join the in-flight run and receive the same
// decision. The cached decision is invalidated only by Reset, never by a
// timer.
type Orchestrator struct {
	tokens    TokenStore
	validator identity.Validator
	evaluator *gates.Evaluator
	overrides DevOverrides
	log       *logger.Logger

	mu           sync.Mutex
	state        State
	cached       *session.RouteDecision
	lastProfile  *session.Profile
	inflight     *inflightRun
	pendingReset bool

	subMu       sync.Mutex
	subscribers []func(Transition)
}

type inflightRun struct {
	done     chan struct{}
	decision session.RouteDecision
}

// New constructs an orchestrator. The token store and validator are required
// collaborators; evaluator and logger default when nil.
func New(tokens TokenStore, validator identity.Validator, evaluator *gates.Evaluator, overrides DevOverrides, log *logger.Logger) *Orchestrator {
	if evaluator == nil {
		evaluator = gates.NewEvaluator()
	}
	if log == nil {
		log = logger.NewDefault("boot")
	}
	return &Orchestrator{
		tokens:    tokens,
		validator: validator,
		evaluator: evaluator,
		overrides: overrides,
		log:       log,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Decision returns the cached decision, if one exists.
func (o *Orchestrator) Decision() (session.RouteDecision, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cached == nil {
		return session.RouteDecision{}, false
	}
	return *o.cached, true
}

// Run returns the route decision for the current lifecycle. A completed
// lifecycle replays the cached decision without I/O; a run already in flight
// is joined rather than duplicated. The returned error is non-nil only when
// the caller's context expires while waiting on an in-flight run.
func (o *Orchestrator) Run(ctx context.Context) (session.RouteDecision, error) {
	o.mu.Lock()

	if o.state == StateComplete && o.cached != nil {
		decision := *o.cached
		o.mu.Unlock()
		metrics.RecordBootRun(string(decision.Step), 0, true)
		return decision, nil
	}

	if o.state == StateRunning && o.inflight != nil {
		run := o.inflight
		o.mu.Unlock()
		select {
		case <-run.done:
			return run.decision, nil
		case <-ctx.Done():
			return session.RouteDecision{}, ctx.Err()
		}
	}

	run := &inflightRun{done: make(chan struct{})}
	o.inflight = run
	started := o.setStateLocked("run", StateRunning, "")
	o.mu.Unlock()
	o.emit(started)

	start := time.Now()
	decision := o.execute(ctx)

	o.mu.Lock()
	run.decision = decision
	o.cached = &decision
	completed := o.setStateLocked("decision", StateComplete, decision.Step)
	var reset Transition
	queuedReset := o.pendingReset
	if queuedReset {
		o.pendingReset = false
		o.cached = nil
		reset = o.setStateLocked("reset", StateIdle, "")
	}
	o.inflight = nil
	close(run.done)
	o.mu.Unlock()

	o.emit(completed)
	if queuedReset {
		o.emit(reset)
	}

	metrics.RecordBootRun(string(decision.Step), time.Since(start), false)
	return decision, nil
}

// Reset discards the cached decision so the next Run re-derives it. A reset
// issued while a run is in flight is queued and applied once that run
// completes, so a stale response never overwrites a decision made from newer
// inputs. Reset never touches the token store.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	var t Transition
	emit := false
	switch o.state {
	case StateRunning:
		if !o.pendingReset {
			o.pendingReset = true
			t = Transition{Previous: StateRunning, Event: "reset_queued", Next: StateRunning}
			emit = true
		}
	case StateComplete:
		o.cached = nil
		t = o.setStateLocked("reset", StateIdle, "")
		emit = true
	}
	o.mu.Unlock()
	if emit {
		o.emit(t)
	}
}

// execute performs one hydrate -> validate -> evaluate pass. The run is not
// cancellable mid-flight: it detaches from the caller's cancellation so a
// half-finished validation can never tear the cached state.
func (o *Orchestrator) execute(ctx context.Context) session.RouteDecision {
	ctx = context.WithoutCancel(ctx)

	o.mu.Lock()
	hadProfile := o.lastProfile != nil
	o.mu.Unlock()

	credential, present, err := o.tokens.Get(ctx)
	if err != nil {
		o.log.WithError(err).Warn("token store read failed, treating credential as absent")
		present = false
	}
	if !present {
		return session.Decide(session.StepLogin, nil)
	}

	profile, err := o.validate(ctx, credential)
	if err == nil {
		o.mu.Lock()
		o.lastProfile = &profile
		o.mu.Unlock()
		return o.evaluator.DetermineRoute(&profile)
	}

	var verr *identity.ValidationError
	if errors.As(err, &verr) && !verr.Kind.InvalidatesCredentials() {
		// Transient network failure. A last-known-good session (cached
		// profile plus the credential present at the start of this run)
		// is recoverable; credentials are left untouched.
		if hadProfile {
			o.mu.Lock()
			last := o.lastProfile
			o.mu.Unlock()
			o.log.WithError(err).Info("network failure with known session, offering retry")
			return session.Decide(session.StepRetry, last)
		}
		o.log.WithError(err).Warn("network failure without known session, forcing logout")
		return o.forceLogout(ctx)
	}

	o.log.WithError(err).Warn("credential rejected, forcing logout")
	return o.forceLogout(ctx)
}

func (o *Orchestrator) validate(ctx context.Context, credential string) (session.Profile, error) {
	if o.overrides.SkipRemoteValidation {
		if o.overrides.MockProfile != nil {
			mock := *o.overrides.MockProfile
			return mock, nil
		}
		return session.Profile{}, &identity.ValidationError{Kind: identity.FailureAuth}
	}
	return o.validator.Validate(ctx, credential)
}

// forceLogout is the only path that clears durable credentials.
func (o *Orchestrator) forceLogout(ctx context.Context) session.RouteDecision {
	if err := o.tokens.Clear(ctx); err != nil {
		o.log.WithError(err).Error("clearing credentials during forced logout failed")
	}
	o.mu.Lock()
	o.lastProfile = nil
	o.mu.Unlock()
	return session.Decide(session.StepLogout, nil)
}
