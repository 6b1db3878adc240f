package boot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/R3E-Network/session_gateway/internal/app/domain/session"
	"github.com/R3E-Network/session_gateway/internal/app/services/identity"
	"github.com/R3E-Network/session_gateway/internal/app/storage"
	"github.com/R3E-Network/session_gateway/internal/app/storage/memory"
)

func testProfile() session.Profile {
	return session.Profile{
		UserID:              "user-1",
		Phone:               "+910000000001",
		Language:            "EN",
		Category:            "owner",
		OnboardingCompleted: true,
		Memberships: []session.Membership{
			{OrganizationID: "org-1", Role: "owner", Status: session.MembershipActive},
		},
	}
}

// countingValidator serves a fixed result and counts invocations.
type countingValidator struct {
	mu      sync.Mutex
	calls   int
	profile session.Profile
	err     error
}

func (v *countingValidator) Validate(ctx context.Context, credential string) (session.Profile, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.err != nil {
		return session.Profile{}, v.err
	}
	return v.profile, nil
}

func (v *countingValidator) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func (v *countingValidator) set(profile session.Profile, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.profile = profile
	v.err = err
}

func newTestOrchestrator(t *testing.T, validator identity.Validator, credential string) (*Orchestrator, *storage.ClientTokens) {
	t.Helper()
	tokens := storage.ForClient(memory.New(), "client-1")
	if credential != "" {
		if err := tokens.Set(context.Background(), credential); err != nil {
			t.Fatalf("seed credential: %v", err)
		}
	}
	return New(tokens, validator, nil, DevOverrides{}, nil), tokens
}

func mustHaveCredential(t *testing.T, tokens *storage.ClientTokens, want bool) {
	t.Helper()
	_, present, err := tokens.Get(context.Background())
	if err != nil {
		t.Fatalf("read credential: %v", err)
	}
	if present != want {
		t.Fatalf("credential present = %v, want %v", present, want)
	}
}

func TestRunWithoutCredentialRoutesLogin(t *testing.T) {
	validator := &countingValidator{profile: testProfile()}
	o, _ := newTestOrchestrator(t, validator, "")

	decision, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if decision.Step != session.StepLogin {
		t.Fatalf("expected login, got %s", decision.Step)
	}
	if validator.callCount() != 0 {
		t.Fatalf("validator must not be called without a credential, got %d calls", validator.callCount())
	}
	if o.State() != StateComplete {
		t.Fatalf("expected complete state, got %s", o.State())
	}
}

func TestRunValidSessionRoutesThroughGates(t *testing.T) {
	validator := &countingValidator{profile: testProfile()}
	o, _ := newTestOrchestrator(t, validator, "token-1")

	decision, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if decision.Step != session.StepDashboard {
		t.Fatalf("expected dashboard, got %s", decision.Step)
	}
	if decision.Profile == nil || decision.Profile.UserID != "user-1" {
		t.Fatalf("decision missing session: %+v", decision.Profile)
	}
}

func TestRunCachesDecisionUntilReset(t *testing.T) {
	validator := &countingValidator{profile: testProfile()}
	o, _ := newTestOrchestrator(t, validator, "token-1")

	first, _ := o.Run(context.Background())
	second, _ := o.Run(context.Background())

	if validator.callCount() != 1 {
		t.Fatalf("expected one validation across repeated runs, got %d", validator.callCount())
	}
	if first.Step != second.Step {
		t.Fatalf("cached decision changed: %s vs %s", first.Step, second.Step)
	}

	cached, ok := o.Decision()
	if !ok || cached.Step != first.Step {
		t.Fatalf("Decision() = (%v, %v)", cached.Step, ok)
	}

	o.Reset()
	if o.State() != StateIdle {
		t.Fatalf("expected idle after reset, got %s", o.State())
	}
	if _, ok := o.Decision(); ok {
		t.Fatal("reset must drop the cached decision")
	}

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("run after reset: %v", err)
	}
	if validator.callCount() != 2 {
		t.Fatalf("expected re-validation after reset, got %d calls", validator.callCount())
	}
}

func TestResetPicksUpChangedInputs(t *testing.T) {
	profile := testProfile()
	profile.OnboardingCompleted = false
	validator := &countingValidator{profile: profile}
	o, _ := newTestOrchestrator(t, validator, "token-1")

	decision, _ := o.Run(context.Background())
	if decision.Step != session.StepOnboarding {
		t.Fatalf("expected onboarding, got %s", decision.Step)
	}

	profile.OnboardingCompleted = true
	validator.set(profile, nil)
	o.Reset()

	decision, _ = o.Run(context.Background())
	if decision.Step != session.StepDashboard {
		t.Fatalf("expected dashboard after onboarding completed, got %s", decision.Step)
	}
}

func TestResetWhileIdleIsNoOp(t *testing.T) {
	validator := &countingValidator{profile: testProfile()}
	o, _ := newTestOrchestrator(t, validator, "token-1")

	var events []Transition
	o.Subscribe(func(t Transition) { events = append(events, t) })

	o.Reset()
	if o.State() != StateIdle {
		t.Fatalf("expected idle, got %s", o.State())
	}
	if len(events) != 0 {
		t.Fatalf("idle reset must not emit events, got %d", len(events))
	}
}

func TestNetworkFailureWithKnownSessionOffersRetry(t *testing.T) {
	validator := &countingValidator{profile: testProfile()}
	o, tokens := newTestOrchestrator(t, validator, "token-1")

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	validator.set(session.Profile{}, &identity.ValidationError{
		Kind: identity.FailureNetwork,
		Err:  errors.New("connection refused"),
	})
	o.Reset()

	decision, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if decision.Step != session.StepRetry {
		t.Fatalf("expected retry, got %s", decision.Step)
	}
	if decision.Profile == nil || decision.Profile.UserID != "user-1" {
		t.Fatal("retry decision must carry the last known session")
	}
	mustHaveCredential(t, tokens, true)
}

func TestNetworkFailureWithoutSessionForcesLogout(t *testing.T) {
	validator := &countingValidator{err: &identity.ValidationError{
		Kind: identity.FailureNetwork,
		Err:  errors.New("timeout"),
	}}
	o, tokens := newTestOrchestrator(t, validator, "token-1")

	decision, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if decision.Step != session.StepLogout {
		t.Fatalf("expected logout, got %s", decision.Step)
	}
	mustHaveCredential(t, tokens, false)
}

func TestCredentialRejectionForcesLogout(t *testing.T) {
	kinds := []identity.FailureKind{identity.FailureAuth, identity.FailureMalformed}

	for _, kind := range kinds {
		validator := &countingValidator{err: &identity.ValidationError{Kind: kind}}
		o, tokens := newTestOrchestrator(t, validator, "token-1")

		decision, err := o.Run(context.Background())
		if err != nil {
			t.Fatalf("%s: run: %v", kind, err)
		}
		if decision.Step != session.StepLogout {
			t.Fatalf("%s: expected logout, got %s", kind, decision.Step)
		}
		if decision.Profile != nil {
			t.Fatalf("%s: logout decision must not carry a session", kind)
		}
		mustHaveCredential(t, tokens, false)
	}
}

func TestRejectionDropsLastKnownSession(t *testing.T) {
	validator := &countingValidator{profile: testProfile()}
	o, tokens := newTestOrchestrator(t, validator, "token-1")

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Auth rejection clears both the credential and the remembered session.
	validator.set(session.Profile{}, &identity.ValidationError{Kind: identity.FailureAuth})
	o.Reset()
	if decision, _ := o.Run(context.Background()); decision.Step != session.StepLogout {
		t.Fatalf("expected logout, got %s", decision.Step)
	}
	mustHaveCredential(t, tokens, false)

	// A later network failure must not resurrect the dropped session.
	if err := tokens.Set(context.Background(), "token-2"); err != nil {
		t.Fatalf("reseed credential: %v", err)
	}
	validator.set(session.Profile{}, &identity.ValidationError{Kind: identity.FailureNetwork})
	o.Reset()
	if decision, _ := o.Run(context.Background()); decision.Step != session.StepLogout {
		t.Fatalf("expected logout without known session, got %s", decision.Step)
	}
}

// blockingValidator parks Validate until released.
type blockingValidator struct {
	entered chan struct{}
	release chan struct{}
	calls   int
	mu      sync.Mutex
}

func (v *blockingValidator) Validate(ctx context.Context, credential string) (session.Profile, error) {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()
	v.entered <- struct{}{}
	<-v.release
	return testProfile(), nil
}

func TestConcurrentRunsJoinSingleFlight(t *testing.T) {
	validator := &blockingValidator{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	o, _ := newTestOrchestrator(t, validator, "token-1")

	results := make(chan session.RouteDecision, 2)
	for i := 0; i < 2; i++ {
		go func() {
			decision, err := o.Run(context.Background())
			if err != nil {
				t.Errorf("run: %v", err)
			}
			results <- decision
		}()
	}

	<-validator.entered
	if o.State() != StateRunning {
		t.Fatalf("expected running state, got %s", o.State())
	}
	close(validator.release)

	first := <-results
	second := <-results
	if first.Step != second.Step || first.Step != session.StepDashboard {
		t.Fatalf("joined runs disagree: %s vs %s", first.Step, second.Step)
	}

	validator.mu.Lock()
	calls := validator.calls
	validator.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected one validation for concurrent runs, got %d", calls)
	}
}

func TestResetDuringRunIsQueued(t *testing.T) {
	validator := &blockingValidator{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	o, _ := newTestOrchestrator(t, validator, "token-1")

	done := make(chan session.RouteDecision, 1)
	go func() {
		decision, _ := o.Run(context.Background())
		done <- decision
	}()

	<-validator.entered
	o.Reset()
	if o.State() != StateRunning {
		t.Fatalf("queued reset must not interrupt the run, state %s", o.State())
	}
	close(validator.release)

	decision := <-done
	if decision.Step != session.StepDashboard {
		t.Fatalf("in-flight run must complete with its own decision, got %s", decision.Step)
	}

	// The queued reset applies once the run lands: no cached decision survives.
	waitForState(t, o, StateIdle)
	if _, ok := o.Decision(); ok {
		t.Fatal("queued reset must drop the decision produced by the stale run")
	}
}

func waitForState(t *testing.T, o *Orchestrator, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state %s not reached, still %s", want, o.State())
}

func TestTransitionEvents(t *testing.T) {
	validator := &countingValidator{profile: testProfile()}
	o, _ := newTestOrchestrator(t, validator, "token-1")

	var mu sync.Mutex
	var events []Transition
	o.Subscribe(func(t Transition) {
		mu.Lock()
		events = append(events, t)
		mu.Unlock()
	})

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	o.Reset()

	mu.Lock()
	defer mu.Unlock()
	want := []struct {
		event string
		prev  State
		next  State
	}{
		{"run", StateIdle, StateRunning},
		{"decision", StateRunning, StateComplete},
		{"reset", StateComplete, StateIdle},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(events), events)
	}
	for i, w := range want {
		if events[i].Event != w.event || events[i].Previous != w.prev || events[i].Next != w.next {
			t.Fatalf("event %d = %+v, want %s %s->%s", i, events[i], w.event, w.prev, w.next)
		}
	}
	if events[1].Decision != session.StepDashboard {
		t.Fatalf("decision event carries %q", events[1].Decision)
	}
}

// failingTokens always errors on read.
type failingTokens struct{}

func (failingTokens) Get(ctx context.Context) (string, bool, error) {
	return "", false, errors.New("disk corrupted")
}

func (failingTokens) Clear(ctx context.Context) error { return nil }

func TestStoreReadFailureTreatedAsAbsent(t *testing.T) {
	validator := &countingValidator{profile: testProfile()}
	o := New(failingTokens{}, validator, nil, DevOverrides{}, nil)

	decision, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if decision.Step != session.StepLogin {
		t.Fatalf("expected login on store failure, got %s", decision.Step)
	}
	if validator.callCount() != 0 {
		t.Fatal("validator must not run when hydration fails")
	}
}

func TestDevOverrideSkipsRemoteValidation(t *testing.T) {
	mock := testProfile()
	o, _ := newTestOrchestrator(t, nil, "token-1")
	o.overrides = DevOverrides{SkipRemoteValidation: true, MockProfile: &mock}

	decision, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if decision.Step != session.StepDashboard {
		t.Fatalf("expected dashboard from mock session, got %s", decision.Step)
	}
}

func TestDevOverrideWithoutMockProfileLogsOut(t *testing.T) {
	o, tokens := newTestOrchestrator(t, nil, "token-1")
	o.overrides = DevOverrides{SkipRemoteValidation: true}

	decision, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if decision.Step != session.StepLogout {
		t.Fatalf("expected logout, got %s", decision.Step)
	}
	mustHaveCredential(t, tokens, false)
}
