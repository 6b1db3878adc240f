// Package identity validates bearer credentials against the remote identity
// endpoint and normalizes the response into a session profile.
package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/session_gateway/internal/app/domain/session"
	"github.com/R3E-Network/session_gateway/internal/app/metrics"
	"github.com/R3E-Network/session_gateway/pkg/logger"
)

// FailureKind classifies a validation failure. The three-way split is the
// core contract: auth and malformed failures require the caller to invalidate
// local credentials, network failures never do on their own.
type FailureKind int

const (
	// FailureNetwork covers transport errors and unexpected server statuses.
	FailureNetwork FailureKind = iota
	// FailureAuth covers absent or rejected credentials.
	FailureAuth
	// FailureMalformed covers success responses whose body violates the
	// identity contract. Equivalent to FailureAuth in side effect: the
	// profile cannot be trusted.
	FailureMalformed
)

// String returns the metric label for the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureAuth:
		return "auth_error"
	case FailureMalformed:
		return "malformed_error"
	default:
		return "network_error"
	}
}

// InvalidatesCredentials reports whether the failure obliges the caller to
// clear local credentials.
func (k FailureKind) InvalidatesCredentials() bool {
	return k == FailureAuth || k == FailureMalformed
}

// ValidationError is a classified validation failure.
type ValidationError struct {
	Kind FailureKind
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session validation: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("session validation: %s", e.Kind)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func failure(kind FailureKind, err error) *ValidationError {
	metrics.RecordValidationOutcome(kind.String())
	return &ValidationError{Kind: kind, Err: err}
}

// Validator validates a bearer credential and produces a session profile.
type Validator interface {
	Validate(ctx context.Context, credential string) (session.Profile, error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, credential string) (session.Profile, error)

func (f ValidatorFunc) Validate(ctx context.Context, credential string) (session.Profile, error) {
	return f(ctx, credential)
}

// Client calls the remote who-am-I endpoint.
type Client struct {
	client    *http.Client
	endpoint  *url.URL
	jwtSecret string
	log       *logger.Logger
}

// NewClient constructs a validator for the given identity endpoint. When
// jwtSecret is non-empty, credentials that parse as expired JWTs are rejected
// locally without a network round trip.
func NewClient(client *http.Client, endpoint, jwtSecret string, log *logger.Logger) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("identity endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse identity endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("identity")
	}
	return &Client{
		client:    client,
		endpoint:  parsed,
		jwtSecret: strings.TrimSpace(jwtSecret),
		log:       log,
	}, nil
}

// Validate issues a single request to the identity endpoint and classifies
// the outcome. An absent credential short-circuits without I/O.
func (c *Client) Validate(ctx context.Context, credential string) (session.Profile, error) {
	if strings.TrimSpace(credential) == "" {
		return session.Profile{}, failure(FailureAuth, fmt.Errorf("credential absent"))
	}

	if err := c.rejectExpiredLocally(credential); err != nil {
		return session.Profile{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.String(), nil)
	if err != nil {
		return session.Profile{}, failure(FailureNetwork, fmt.Errorf("build identity request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return session.Profile{}, failure(FailureNetwork, fmt.Errorf("identity request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return session.Profile{}, failure(FailureAuth, fmt.Errorf("identity status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return session.Profile{}, failure(FailureNetwork, fmt.Errorf("identity status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return session.Profile{}, failure(FailureNetwork, fmt.Errorf("read identity response: %w", err))
	}

	profile, err := normalize(body)
	if err != nil {
		c.log.WithError(err).Warn("identity response failed structural validation")
		return session.Profile{}, failure(FailureMalformed, err)
	}

	metrics.RecordValidationOutcome("success")
	return profile, nil
}

// rejectExpiredLocally parses the credential as a JWT when a secret is
// configured and fails fast on expired tokens. Any other parse outcome falls
// through to the remote call.
func (c *Client) rejectExpiredLocally(credential string) error {
	if c.jwtSecret == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(c.jwtSecret), nil
	})
	if err != nil && errors.Is(err, jwt.ErrTokenExpired) {
		c.log.Debug("credential expired, rejected without remote call")
		return failure(FailureAuth, jwt.ErrTokenExpired)
	}
	return nil
}

// normalize applies the identity contract to a success body: authenticated
// must be literal true and profile must be an object. Absent optional fields
// receive documented defaults; the category fallback is left to the gate
// evaluator.
func normalize(body []byte) (session.Profile, error) {
	if !gjson.ValidBytes(body) {
		return session.Profile{}, fmt.Errorf("body is not valid JSON")
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return session.Profile{}, fmt.Errorf("body is not an object")
	}

	authenticated := root.Get("authenticated")
	if !authenticated.Exists() || authenticated.Type != gjson.True {
		return session.Profile{}, fmt.Errorf("authenticated flag missing or not true")
	}

	rawProfile := root.Get("profile")
	if !rawProfile.Exists() || !rawProfile.IsObject() {
		return session.Profile{}, fmt.Errorf("profile missing or not an object")
	}

	profile := session.Profile{
		UserID:              rawProfile.Get("id").String(),
		Phone:               rawProfile.Get("phone").String(),
		Language:            rawProfile.Get("language").String(),
		Category:            rawProfile.Get("category").String(),
		Role:                rawProfile.Get("role").String(),
		OnboardingCompleted: rawProfile.Get("onboarding_complete").Bool(),
	}
	if profile.UserID == "" {
		return session.Profile{}, fmt.Errorf("profile id missing")
	}
	if profile.Phone == "" {
		return session.Profile{}, fmt.Errorf("profile phone missing")
	}

	root.Get("memberships").ForEach(func(_, m gjson.Result) bool {
		orgID := m.Get("organizationId").String()
		if orgID == "" {
			orgID = m.Get("id").String()
		}
		profile.Memberships = append(profile.Memberships, session.Membership{
			OrganizationID: orgID,
			Role:           m.Get("role").String(),
			Status:         session.MembershipStatus(strings.ToLower(m.Get("status").String())),
		})
		return true
	})

	return profile, nil
}
