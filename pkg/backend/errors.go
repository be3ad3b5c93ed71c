package backend

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration classifies every error caused by the configuration rather
// than by a data source. Test with errors.Is.
var ErrConfiguration = errors.New("configuration error")

// ErrClosed is returned when a backend is used after Close.
var ErrClosed = errors.New("backend is closed")

// ConfigError is a generic configuration or usage error raised by a backend
// before it touches its data source.
type ConfigError struct {
	Adapter string
	Msg     string
	Err     error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.Adapter != "" {
		fmt.Fprintf(&b, "adapter %q: ", e.Adapter)
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is reports ErrConfiguration as a match.
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// MissingSettingsError is returned when required settings for a kind are absent.
type MissingSettingsError struct {
	Adapter string
	Kind    string
	Fields  []string
}

func (e *MissingSettingsError) Error() string {
	return fmt.Sprintf("missing required settings for %s adapter %q: %s",
		e.Kind, e.Adapter, strings.Join(e.Fields, ", "))
}

// Is reports ErrConfiguration as a match.
func (e *MissingSettingsError) Is(target error) bool { return target == ErrConfiguration }

// UnknownKindError is returned when an adapter declares a kind nobody registered.
type UnknownKindError struct {
	Kind      string
	Available []string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unsupported adapter kind %q (available: %s)", e.Kind, strings.Join(e.Available, ", "))
}

// Is reports ErrConfiguration as a match.
func (e *UnknownKindError) Is(target error) bool { return target == ErrConfiguration }

// QueryError wraps a failure reported by a data source while executing a query.
type QueryError struct {
	Kind string
	// StatusCode is set by the HTTP backend for non-success responses.
	StatusCode int
	Err        error
}

func (e *QueryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s query failed with status %d: %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s query failed: %v", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ResponseParseError is returned when a response body does not have the
// shape the backend expects.
type ResponseParseError struct {
	Format string // "csv" or "json"
	Err    error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("failed to parse %s response: %v", e.Format, e.Err)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }
