// Package runtime assembles the gateway from configuration and manages the
// HTTP server lifecycle.
package runtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	app "github.com/R3E-Network/session_gateway/internal/app"
	"github.com/R3E-Network/session_gateway/internal/app/domain/session"
	"github.com/R3E-Network/session_gateway/internal/app/httpapi"
	"github.com/R3E-Network/session_gateway/internal/app/services/boot"
	"github.com/R3E-Network/session_gateway/internal/app/storage"
	"github.com/R3E-Network/session_gateway/internal/app/storage/memory"
	"github.com/R3E-Network/session_gateway/internal/app/storage/postgres"
	"github.com/R3E-Network/session_gateway/internal/app/storage/redis"
	"github.com/R3E-Network/session_gateway/internal/config"
	"github.com/R3E-Network/session_gateway/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg    *config.Config
	log    *logger.Logger
	app    *app.Application
	server *http.Server
	db     *sql.DB
}

// NewApplication constructs an application from the config file at path.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).WithField("service", "session-gateway")

	credentials, db, err := buildCredentialStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure store: %w", err)
	}

	overrides, err := buildOverrides(cfg, log)
	if err != nil {
		return nil, err
	}

	application, err := app.New(
		app.Stores{Credentials: credentials},
		app.Options{
			IdentityEndpoint:  cfg.Identity.Endpoint,
			IdentityJWTSecret: cfg.Identity.JWTSecret,
			IdentityTimeout:   cfg.IdentityTimeout(),
			DefaultCategory:   cfg.Boot.DefaultCategory,
			Overrides:         overrides,
			SweepMaxIdle:      cfg.SweepMaxIdle(),
			SweepSchedule:     cfg.Boot.SweepSchedule,
		},
		log,
	)
	if err != nil {
		return nil, err
	}

	handler := httpapi.NewHandler(application, httpapi.Options{
		RateLimitPerSecond: cfg.Server.RateLimitPerSecond,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
	}, log.WithField("component", "httpapi"))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
	}

	return &Application{
		cfg:    cfg,
		log:    log,
		app:    application,
		server: server,
		db:     db,
	}, nil
}

// Run starts background services and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, background services, and the
// database handle.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping services")
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

func buildCredentialStore(cfg *config.Config) (storage.CredentialStore, *sql.DB, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "", "memory":
		return memory.New(), nil, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		store := postgres.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, db, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr: cfg.Storage.RedisAddr,
			DB:   cfg.Storage.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		return redis.New(client, cfg.RedisTTL()), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func buildOverrides(cfg *config.Config, log *logger.Logger) (boot.DevOverrides, error) {
	overrides := boot.DevOverrides{SkipRemoteValidation: cfg.Dev.SkipRemoteValidation}
	if !overrides.SkipRemoteValidation {
		return overrides, nil
	}

	log.Warn("remote session validation disabled by dev override")

	if cfg.Dev.MockProfilePath == "" {
		return overrides, nil
	}
	data, err := os.ReadFile(cfg.Dev.MockProfilePath)
	if err != nil {
		return overrides, fmt.Errorf("read mock profile: %w", err)
	}
	var profile session.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return overrides, fmt.Errorf("parse mock profile: %w", err)
	}
	overrides.MockProfile = &profile
	return overrides, nil
}
