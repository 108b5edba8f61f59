package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/swarmworks/hivegate/src/models"
)

type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
	KindCloud  Kind = "cloud"
)

type Status string

const (
	// StatusConnected means the last probe against the live backend succeeded.
	StatusConnected Status = "connected"
	// StatusConfigured means the backend has credentials but has never been
	// probed. It is optimistically treated as usable; probing a cloud
	// backend costs tokens, so it only happens on demand.
	StatusConfigured Status = "configured"
	// StatusDisconnected means the last probe failed.
	StatusDisconnected Status = "disconnected"
)

// Backend is one configured inference provider. The registry exclusively
// owns the set of Backends for the process lifetime; clients are built once
// at startup and never hot-reloaded.
type Backend struct {
	Name           string
	Kind           Kind
	Model          string
	ReasoningModel string
	Default        bool
	Client         models.BackendClient

	status Status // guarded by the registry mutex
}

type Registry struct {
	mu           sync.RWMutex
	backends     map[string]*Backend
	order        []string
	defaultName  string
	probeTimeout time.Duration
}

func New(probeTimeout time.Duration) *Registry {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Registry{
		backends:     make(map[string]*Backend),
		probeTimeout: probeTimeout,
	}
}

// Register adds a backend descriptor at startup. Duplicate names and a
// second default flag are configuration errors.
func (r *Registry) Register(b *Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b.Name == "" {
		return &models.ConfigError{Reason: "backend name is empty"}
	}
	if _, exists := r.backends[b.Name]; exists {
		return &models.ConfigError{Reason: fmt.Sprintf("duplicate backend name %q", b.Name)}
	}
	if b.Default {
		if r.defaultName != "" {
			return &models.ConfigError{Reason: fmt.Sprintf("backends %q and %q both flagged default", r.defaultName, b.Name)}
		}
		r.defaultName = b.Name
	}
	if b.status == "" {
		if b.Kind == KindCloud {
			b.status = StatusConfigured
		} else {
			b.status = StatusDisconnected
		}
	}
	r.backends[b.Name] = b
	r.order = append(r.order, b.Name)
	return nil
}

// Validate checks the invariants that only hold once every backend is
// registered: at least one backend, exactly one default.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.backends) == 0 {
		return &models.ConfigError{Reason: "no backends configured"}
	}
	if r.defaultName == "" {
		return &models.ConfigError{Reason: "no backend flagged default"}
	}
	return nil
}

func (r *Registry) Get(name string) (*Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, &models.UnknownBackendError{Name: name}
	}
	return b, nil
}

// ByKind returns the first registered backend of the given kind.
func (r *Registry) ByKind(kind Kind) (*Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if b := r.backends[name]; b.Kind == kind {
			return b, true
		}
	}
	return nil, false
}

func (r *Registry) Default() *Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends[r.defaultName]
}

// IsUsable reports whether a backend may be routed to: connected, or
// configured-but-never-probed. Unknown names are simply not usable.
func (r *Registry) IsUsable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return false
	}
	return b.status == StatusConnected || b.status == StatusConfigured
}

// AnyUsable reports whether at least one registered backend is usable.
func (r *Registry) AnyUsable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.backends {
		if b.status == StatusConnected || b.status == StatusConfigured {
			return true
		}
	}
	return false
}

func (r *Registry) Status(name string) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if b, ok := r.backends[name]; ok {
		return b.status
	}
	return StatusDisconnected
}

// Probe runs a liveness check against the live backend and records the
// result. This is the only place availability state is written; routing
// and dispatch never mutate it.
func (r *Registry) Probe(ctx context.Context, name string) (Status, error) {
	b, err := r.Get(name)
	if err != nil {
		return StatusDisconnected, err
	}

	pctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	status := StatusDisconnected
	if b.Client.Probe(pctx) {
		status = StatusConnected
	}

	r.mu.Lock()
	b.status = status
	r.mu.Unlock()

	return status, nil
}

// List returns a snapshot of every backend in registration order.
func (r *Registry) List() []models.BackendHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.BackendHealth, 0, len(r.order))
	for _, name := range r.order {
		b := r.backends[name]
		out = append(out, models.BackendHealth{
			Name:    b.Name,
			Kind:    string(b.Kind),
			Status:  string(b.status),
			Default: b.Default,
		})
	}
	return out
}
