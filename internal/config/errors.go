package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/querypipe/pkg/backend"
)

// ConfigurationError reports a problem with the pipeline document or the
// initial data. It matches backend.ErrConfiguration with errors.Is.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is reports backend.ErrConfiguration as a match.
func (e *ConfigurationError) Is(target error) bool { return target == backend.ErrConfiguration }

// MissingSectionsError is returned when required top-level sections are absent.
type MissingSectionsError struct {
	Sections []string
}

func (e *MissingSectionsError) Error() string {
	return "missing required config sections: " + strings.Join(e.Sections, ", ")
}

// Is reports backend.ErrConfiguration as a match.
func (e *MissingSectionsError) Is(target error) bool { return target == backend.ErrConfiguration }

// IsConfigurationError reports whether err was caused by configuration rather
// than by a data source.
func IsConfigurationError(err error) bool {
	return errors.Is(err, backend.ErrConfiguration)
}
