// Package gates turns a validated session into a route decision through a
// fixed, ordered gate sequence. Evaluation is pure: no I/O, no clock, no
// mutation of the input.
package gates

import (
	"github.com/R3E-Network/session_gateway/internal/app/domain/session"
)

// DefaultCategory is the terminal category fallback for profiles carrying
// neither a category nor a role.
const DefaultCategory = "owner"

// Evaluator runs the gate sequence. The zero value is not usable; construct
// with NewEvaluator.
type Evaluator struct {
	defaultCategory  string
	fallbackObserver func(userID, category string)
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithDefaultCategory overrides the terminal category fallback. An empty
// value keeps the built-in default.
func WithDefaultCategory(category string) Option {
	return func(e *Evaluator) {
		if category != "" {
			e.defaultCategory = category
		}
	}
}

// WithFallbackObserver registers a hook invoked whenever the terminal
// category fallback is applied. Observers must be fast; they run inline.
func WithFallbackObserver(fn func(userID, category string)) Option {
	return func(e *Evaluator) {
		if fn != nil {
			e.fallbackObserver = fn
		}
	}
}

// NewEvaluator constructs an evaluator with the given options.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{defaultCategory: DefaultCategory}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DetermineRoute walks the gate sequence in order and returns the decision of
// the first failing gate, or the dashboard when every gate passes. A nil
// profile means no trusted session exists and routes straight to login.
//
// Gate order is load-bearing: language, onboarding, organization setup,
// employer link, client link. Earlier gates win regardless of later state.
func (e *Evaluator) DetermineRoute(profile *session.Profile) session.RouteDecision {
	if profile == nil {
		return session.Decide(session.StepLogin, nil)
	}

	// Work on a copy so the category fallback never leaks into the caller's
	// profile.
	p := *profile
	p.Category = e.resolveCategory(&p)

	if p.Language == "" {
		return session.Decide(session.StepLanguageSelection, &p)
	}
	if !p.OnboardingCompleted {
		return session.Decide(session.StepOnboarding, &p)
	}
	if session.BusinessRoles.Contains(p.Category) && len(p.Memberships) == 0 {
		return session.Decide(session.StepOrgSetup, &p)
	}
	if session.LabourRoles.Contains(p.Category) && !p.HasActiveMembershipIn(session.LabourRoles) {
		return session.Decide(session.StepJoinEmployer, &p)
	}
	if session.ProfessionalRoles.Contains(p.Category) && !p.HasActiveMembershipIn(session.ProfessionalRoles) {
		return session.Decide(session.StepLinkClient, &p)
	}
	return session.Decide(session.StepDashboard, &p)
}

// resolveCategory applies the fallback chain exactly once per evaluation:
// category, then role, then the configured default.
func (e *Evaluator) resolveCategory(p *session.Profile) string {
	if p.Category != "" {
		return p.Category
	}
	if p.Role != "" {
		return p.Role
	}
	if e.fallbackObserver != nil {
		e.fallbackObserver(p.UserID, e.defaultCategory)
	}
	return e.defaultCategory
}
