package boot

import (
	"sync"
	"time"

	"github.com/R3E-Network/session_gateway/internal/app/gates"
	"github.com/R3E-Network/session_gateway/internal/app/services/identity"
	"github.com/R3E-Network/session_gateway/internal/app/storage"
	"github.com/R3E-Network/session_gateway/internal/app/storage/memory"
	"github.com/R3E-Network/session_gateway/pkg/logger"
)

// Deps are the shared collaborators orchestrators are built from.
type Deps struct {
	Credentials storage.CredentialStore
	Validator   identity.Validator
	Evaluator   *gates.Evaluator
	Overrides   DevOverrides
	Log         *logger.Logger
}

// Registry keeps one independently constructed orchestrator per client ID.
// Orchestrators are created on demand and pruned after idling; pruning only
// drops the cached decision, never stored credentials.
type Registry struct {
	deps Deps
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	orchestrator *Orchestrator
	lastUsed     time.Time
}

// NewRegistry constructs a registry. A nil credential store defaults to the
// in-memory implementation; a nil evaluator and logger default likewise.
func NewRegistry(deps Deps) *Registry {
	if deps.Credentials == nil {
		deps.Credentials = memory.New()
	}
	if deps.Evaluator == nil {
		deps.Evaluator = gates.NewEvaluator()
	}
	if deps.Log == nil {
		deps.Log = logger.NewDefault("boot")
	}
	return &Registry{
		deps:    deps,
		now:     time.Now,
		entries: make(map[string]*registryEntry),
	}
}

// ForClient returns the orchestrator for the client, creating it on first
// use.
func (r *Registry) ForClient(clientID string) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[clientID]; ok {
		entry.lastUsed = r.now()
		return entry.orchestrator
	}

	orchestrator := New(
		storage.ForClient(r.deps.Credentials, clientID),
		r.deps.Validator,
		r.deps.Evaluator,
		r.deps.Overrides,
		r.deps.Log.WithField("client_id", clientID),
	)
	r.entries[clientID] = &registryEntry{orchestrator: orchestrator, lastUsed: r.now()}
	return orchestrator
}

// Remove drops the orchestrator for the client, if any.
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, clientID)
}

// Sweep prunes orchestrators idle for longer than maxIdle and reports how
// many were removed. Running orchestrators are left alone.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	removed := 0
	for clientID, entry := range r.entries {
		if entry.lastUsed.After(cutoff) {
			continue
		}
		if entry.orchestrator.State() == StateRunning {
			continue
		}
		delete(r.entries, clientID)
		removed++
	}
	return removed
}

// Len reports the number of live orchestrators.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
