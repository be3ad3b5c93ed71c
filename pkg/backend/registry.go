package backend

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Factory constructs a backend from validated settings.
// The logger is never nil.
type Factory func(ctx context.Context, s Settings, logger *slog.Logger) (Backend, error)

// Registration describes a registered backend kind.
type Registration struct {
	Kind     Kind
	Required []string
	Factory  Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[Kind]Registration)
)

// Register adds a backend factory to the registry together with the settings
// that must be present for that kind.
// Called by backend implementations in their init() functions.
func Register(kind Kind, required []string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	kind = Kind(strings.ToLower(string(kind)))
	registry[kind] = Registration{Kind: kind, Required: required, Factory: factory}
}

// Unregister removes a backend kind. Intended for tests that register fakes.
func Unregister(kind Kind) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, Kind(strings.ToLower(string(kind))))
}

// Lookup retrieves a registration by kind name. Kind names are case-insensitive.
func Lookup(kind string) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	r, ok := registry[Kind(strings.ToLower(kind))]
	return r, ok
}

// New validates settings against the registration for s.Kind and constructs the backend.
// A nil logger uses a discard logger.
func New(ctx context.Context, s Settings, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if s.Kind == "" {
		return nil, &ConfigError{Adapter: s.Name, Msg: "adapter kind not specified"}
	}

	reg, ok := Lookup(s.Kind)
	if !ok {
		return nil, &UnknownKindError{Kind: s.Kind, Available: Kinds()}
	}

	if err := s.Require(reg.Required...); err != nil {
		return nil, err
	}

	logger.Debug("creating backend", slog.String("adapter", s.Name), slog.String("kind", string(reg.Kind)))
	return reg.Factory(ctx, s, logger.With(slog.String("adapter", s.Name)))
}

// Kinds returns all registered kind names (sorted).
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for kind := range registry {
		names = append(names, string(kind))
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend kind is registered.
func IsRegistered(kind string) bool {
	_, ok := Lookup(kind)
	return ok
}
