package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/R3E-Network/session_gateway/internal/app/gates"
	"github.com/R3E-Network/session_gateway/internal/app/metrics"
	"github.com/R3E-Network/session_gateway/internal/app/services/boot"
	"github.com/R3E-Network/session_gateway/internal/app/services/identity"
	"github.com/R3E-Network/session_gateway/internal/app/storage"
	"github.com/R3E-Network/session_gateway/internal/app/storage/memory"
	"github.com/R3E-Network/session_gateway/internal/app/system"
	"github.com/R3E-Network/session_gateway/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil store defaults to the
// in-memory implementation.
type Stores struct {
	Credentials storage.CredentialStore
}

// Options tunes application construction.
type Options struct {
	// IdentityEndpoint is the remote who-am-I URL. Required unless dev
	// overrides skip remote validation.
	IdentityEndpoint string
	// IdentityJWTSecret enables the local expiry fast path when set.
	IdentityJWTSecret string
	// IdentityTimeout bounds the identity call; defaults to 10s.
	IdentityTimeout time.Duration
	// DefaultCategory overrides the gate evaluator's terminal category
	// fallback.
	DefaultCategory string
	// Overrides carries the dev-mode boot shortcuts.
	Overrides boot.DevOverrides
	// SweepMaxIdle and SweepSchedule tune orchestrator pruning.
	SweepMaxIdle  time.Duration
	SweepSchedule string
}

// Application ties the boot engine together and manages its lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Credentials storage.CredentialStore
	Boot        *boot.Registry
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if stores.Credentials == nil {
		stores.Credentials = memory.New()
	}

	evaluator := gates.NewEvaluator(
		gates.WithDefaultCategory(opts.DefaultCategory),
		gates.WithFallbackObserver(func(userID, category string) {
			metrics.RecordCategoryFallback()
			log.WithFields(map[string]interface{}{
				"user_id":  userID,
				"category": category,
			}).Warn("profile missing category and role, default applied")
		}),
	)

	var validator identity.Validator
	if opts.IdentityEndpoint != "" {
		timeout := opts.IdentityTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client, err := identity.NewClient(
			&http.Client{Timeout: timeout},
			opts.IdentityEndpoint,
			opts.IdentityJWTSecret,
			log.WithField("component", "identity"),
		)
		if err != nil {
			return nil, fmt.Errorf("configure identity client: %w", err)
		}
		validator = client
	} else if !opts.Overrides.SkipRemoteValidation {
		return nil, fmt.Errorf("identity endpoint is required")
	}

	registry := boot.NewRegistry(boot.Deps{
		Credentials: stores.Credentials,
		Validator:   validator,
		Evaluator:   evaluator,
		Overrides:   opts.Overrides,
		Log:         log.WithField("component", "boot"),
	})

	manager := system.NewManager()
	sweeper := boot.NewSweeper(registry, opts.SweepMaxIdle, opts.SweepSchedule, log.WithField("component", "boot-sweeper"))
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register sweeper: %w", err)
	}

	return &Application{
		manager:     manager,
		log:         log,
		Credentials: stores.Credentials,
		Boot:        registry,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
