// Package dispatch owns the backends of one pipeline run: it creates each
// named adapter on first use, hands out the cached instance afterwards and
// closes every instance exactly once.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/querypipe/pkg/backend"
)

// SettingsSource resolves adapter names to backend settings.
// *config.Document satisfies it.
type SettingsSource interface {
	Settings(name string) (backend.Settings, error)
}

// Dispatcher caches one backend per adapter name. It is safe for concurrent
// use: different adapters are constructed in parallel, and concurrent
// requests for the same adapter share a single construction.
type Dispatcher struct {
	source SettingsSource
	logger *slog.Logger

	mu     sync.Mutex
	slots  map[string]*slot
	order  []string
	closed bool
}

// slot is one adapter's construction. done is closed once b or err is set.
type slot struct {
	done chan struct{}
	b    backend.Backend
	err  error
}

// New creates a dispatcher. A nil logger uses a discard logger.
func New(source SettingsSource, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		source: source,
		logger: logger,
		slots:  make(map[string]*slot),
	}
}

// Get returns the backend for name, constructing it on first request.
// A failed construction is not cached; the next Get tries again.
func (d *Dispatcher) Get(ctx context.Context, name string) (backend.Backend, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, backend.ErrClosed
	}
	if s, ok := d.slots[name]; ok {
		d.mu.Unlock()
		select {
		case <-s.done:
			return s.b, s.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s := &slot{done: make(chan struct{})}
	d.slots[name] = s
	d.mu.Unlock()

	b, kind, err := d.build(ctx, name)

	d.mu.Lock()
	switch {
	case err != nil:
		delete(d.slots, name)
	case d.closed:
		// CloseAll ran while this adapter was being built.
		if cerr := b.Close(); cerr != nil {
			d.logger.Warn("failed to close adapter", slog.String("adapter", name), slog.String("error", cerr.Error()))
		}
		b, err = nil, backend.ErrClosed
	default:
		d.order = append(d.order, name)
		d.logger.Debug("adapter instantiated", slog.String("adapter", name), slog.String("kind", kind))
	}
	s.b, s.err = b, err
	d.mu.Unlock()
	close(s.done)

	return b, err
}

func (d *Dispatcher) build(ctx context.Context, name string) (backend.Backend, string, error) {
	s, err := d.source.Settings(name)
	if err != nil {
		return nil, "", err
	}
	b, err := backend.New(ctx, s, d.logger)
	if err != nil {
		return nil, s.Kind, err
	}
	return b, s.Kind, nil
}

// Query runs text on the named adapter.
func (d *Dispatcher) Query(ctx context.Context, name, text string) ([]backend.Row, error) {
	b, err := d.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return b.Query(ctx, text)
}

// Names lists instantiated adapters in creation order.
func (d *Dispatcher) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

// Close closes and forgets the named adapter. A later Get builds a new
// instance. Closing an adapter that was never instantiated does nothing.
func (d *Dispatcher) Close(name string) error {
	d.mu.Lock()
	i := -1
	for j, n := range d.order {
		if n == name {
			i = j
			break
		}
	}
	if i < 0 {
		d.mu.Unlock()
		return nil
	}
	b := d.slots[name].b
	delete(d.slots, name)
	d.order = append(d.order[:i], d.order[i+1:]...)
	d.mu.Unlock()

	if err := b.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}

// CloseAll closes every instantiated backend in creation order. A failure is
// logged and does not stop the remaining closes; all failures are returned
// joined. Calling CloseAll again does nothing.
func (d *Dispatcher) CloseAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	for _, name := range d.order {
		if err := d.slots[name].b.Close(); err != nil {
			d.logger.Warn("failed to close adapter",
				slog.String("adapter", name),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	d.slots = nil
	d.order = nil
	return errors.Join(errs...)
}
