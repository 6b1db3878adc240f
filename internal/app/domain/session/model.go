// Package session holds the domain model for validated user sessions and the
// route decisions derived from them.
package session

// MembershipStatus is the lifecycle state of an organization membership.
type MembershipStatus string

const (
	MembershipActive  MembershipStatus = "active"
	MembershipRevoked MembershipStatus = "revoked"
	MembershipPending MembershipStatus = "pending"
)

// Membership links a user to one organization in one role.
type Membership struct {
	OrganizationID string           `json:"organization_id"`
	Role           string           `json:"role"`
	Status         MembershipStatus `json:"status"`
}

// Profile is the validated identity snapshot a route decision is derived
// from. Category drives gate selection; Role is its first fallback when
// absent.
type Profile struct {
	UserID              string       `json:"user_id"`
	Phone               string       `json:"phone"`
	Language            string       `json:"language"`
	Category            string       `json:"category"`
	Role                string       `json:"role"`
	OnboardingCompleted bool         `json:"onboarding_completed"`
	Memberships         []Membership `json:"memberships,omitempty"`
}

// RoleSet is a named group of roles sharing gate requirements.
type RoleSet map[string]struct{}

func roles(names ...string) RoleSet {
	set := make(RoleSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// Contains reports whether the role belongs to the set.
func (s RoleSet) Contains(role string) bool {
	_, ok := s[role]
	return ok
}

// Role groupings. Supervisor and accountant sit in both the business and
// labour sets: they pass the organization gate like business roles and the
// employer-link gate like labour roles.
var (
	BusinessRoles     = roles("owner", "partner", "director", "supervisor", "accountant")
	LabourRoles       = roles("labour", "supervisor", "accountant")
	ProfessionalRoles = roles("professional", "ca", "lawyer", "advocate")
)

// HasActiveMembershipIn reports whether the profile holds at least one active
// membership in a role from the set.
func (p *Profile) HasActiveMembershipIn(set RoleSet) bool {
	if p == nil {
		return false
	}
	for _, m := range p.Memberships {
		if m.Status == MembershipActive && set.Contains(m.Role) {
			return true
		}
	}
	return false
}

// Step identifies the single destination a boot run resolves to.
type Step string

const (
	StepLogin             Step = "ROUTE_LOGIN"
	StepLanguageSelection Step = "ROUTE_LANGUAGE_SELECTION"
	StepOnboarding        Step = "ROUTE_ONBOARDING"
	StepOrgSetup          Step = "ROUTE_ORG_SETUP"
	StepJoinEmployer      Step = "ROUTE_JOIN_EMPLOYER"
	StepLinkClient        Step = "ROUTE_LINK_CLIENT"
	StepDashboard         Step = "ROUTE_DASHBOARD"
	StepRetry             Step = "ROUTE_RETRY"
	StepLogout            Step = "ROUTE_LOGOUT"
)

var routeTargets = map[Step]string{
	StepLogin:             "/login",
	StepLanguageSelection: "/select-language",
	StepOnboarding:        "/onboarding",
	StepOrgSetup:          "/organization/setup",
	StepJoinEmployer:      "/employer/join",
	StepLinkClient:        "/client/link",
	StepDashboard:         "/dashboard",
	StepRetry:             "/boot/retry",
	StepLogout:            "/logout",
}

// Target returns the navigation path for the step.
func (s Step) Target() string {
	return routeTargets[s]
}

// RouteDecision is the outcome of one boot run: the step to navigate to plus
// the session it was derived from and introspection flags for the UI shell.
type RouteDecision struct {
	Step            Step     `json:"step"`
	Target          string   `json:"target"`
	Profile         *Profile `json:"profile,omitempty"`
	HasMemberships  bool     `json:"has_memberships"`
	HasEmployerLink bool     `json:"has_employer_link"`
	HasClientLink   bool     `json:"has_client_link"`
}

// Decide builds the decision for a step. Login and logout decisions carry no
// session: both mean the client holds no trusted identity.
func Decide(step Step, profile *Profile) RouteDecision {
	if step == StepLogin || step == StepLogout {
		profile = nil
	}
	decision := RouteDecision{
		Step:    step,
		Target:  step.Target(),
		Profile: profile,
	}
	if profile != nil {
		decision.HasMemberships = len(profile.Memberships) > 0
		decision.HasEmployerLink = profile.HasActiveMembershipIn(LabourRoles)
		decision.HasClientLink = profile.HasActiveMembershipIn(ProfessionalRoles)
	}
	return decision
}
