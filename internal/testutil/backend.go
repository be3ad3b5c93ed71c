package testutil

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/leapstack-labs/querypipe/pkg/backend"
)

// FakeBackend is an in-memory backend that records its calls.
type FakeBackend struct {
	Name string

	mu      sync.Mutex
	results map[string][]backend.Row
	fail    map[string]error
	closeFn func() error
	queries []string
	closes  int
}

// Query returns the rows registered for text, or an error if text was
// registered to fail. Unknown queries return no rows.
func (f *FakeBackend) Query(_ context.Context, text string) ([]backend.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	if err, ok := f.fail[text]; ok {
		return nil, err
	}
	if rows, ok := f.results[text]; ok {
		return rows, nil
	}
	return []backend.Row{}, nil
}

// Close counts the call and returns the configured close error, if any.
func (f *FakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

// Queries returns every statement received, in order.
func (f *FakeBackend) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// Closes returns how many times Close was called.
func (f *FakeBackend) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// FakeKind registers a fake backend kind for the duration of a test and
// tracks every instance it creates.
type FakeKind struct {
	Kind backend.Kind

	mu        sync.Mutex
	results   map[string][]backend.Row
	fail      map[string]error
	closeErr  map[string]error
	gates     map[string]chan struct{}
	instances []*FakeBackend
}

// RegisterFakeKind registers a fake kind named after the test. The kind
// requires the "database" setting so required-field validation is exercised.
func RegisterFakeKind(t testing.TB) *FakeKind {
	t.Helper()
	name := "fake_" + strings.NewReplacer("/", "_", " ", "_").Replace(strings.ToLower(t.Name()))
	fk := &FakeKind{
		Kind:     backend.Kind(name),
		results:  make(map[string][]backend.Row),
		fail:     make(map[string]error),
		closeErr: make(map[string]error),
		gates:    make(map[string]chan struct{}),
	}
	backend.Register(fk.Kind, []string{"database"}, fk.factory)
	t.Cleanup(func() { backend.Unregister(fk.Kind) })
	return fk
}

// Returns makes every instance answer text with rows.
func (fk *FakeKind) Returns(text string, rows ...backend.Row) *FakeKind {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	fk.results[text] = rows
	return fk
}

// Fails makes every instance fail text with err.
func (fk *FakeKind) Fails(text string, err error) *FakeKind {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	fk.fail[text] = err
	return fk
}

// FailsClose makes the instance for adapter name fail on Close.
func (fk *FakeKind) FailsClose(name string) *FakeKind {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	fk.closeErr[name] = errors.New("close failed")
	return fk
}

// Holds makes construction of adapter name wait until release is called.
func (fk *FakeKind) Holds(name string) (release func()) {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	gate := make(chan struct{})
	fk.gates[name] = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Instances returns the backends created so far, in creation order.
func (fk *FakeKind) Instances() []*FakeBackend {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	return append([]*FakeBackend(nil), fk.instances...)
}

func (fk *FakeKind) factory(ctx context.Context, s backend.Settings, _ *slog.Logger) (backend.Backend, error) {
	fk.mu.Lock()
	gate := fk.gates[s.Name]
	fk.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fk.mu.Lock()
	defer fk.mu.Unlock()

	b := &FakeBackend{Name: s.Name, results: fk.results, fail: fk.fail}
	if err, ok := fk.closeErr[s.Name]; ok {
		b.closeFn = func() error { return err }
	}
	fk.instances = append(fk.instances, b)
	return b, nil
}
