// Package config provides the typed model of a querypipe pipeline document:
// named adapter settings, ordered query steps and the output template.
// Documents are YAML, loaded with koanf.
package config

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/querypipe/pkg/backend"
)

// Required top-level sections of a pipeline document.
const (
	SectionAdapterSettings = "adapter_settings"
	SectionQueries         = "queries"
	SectionOutput          = "output"
)

// RequiredSections lists every section a document must declare.
var RequiredSections = []string{SectionAdapterSettings, SectionQueries, SectionOutput}

// AdapterSettings holds the configuration for one named adapter.
// The adapter field is the backend kind; which other fields matter depends on it.
type AdapterSettings struct {
	Adapter string `koanf:"adapter"`

	// File databases (sqlite3, duckdb); database name for networked ones
	Database string `koanf:"database"`

	// Networked databases
	PoolName string `koanf:"pool_name"`
	PoolSize int    `koanf:"pool_size"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`

	// HTTP
	BaseURL     string            `koanf:"base_url"`
	BasePath    string            `koanf:"base_path"`
	BasePayload map[string]any    `koanf:"base_payload"`
	BaseHeaders map[string]string `koanf:"base_headers"`
	HTTPMethod  string            `koanf:"http_method"`
	Timeout     string            `koanf:"timeout"` // Go duration, e.g. "10s"

	// Params holds kind-specific options (e.g. duckdb extensions, postgres sslmode).
	Params map[string]any `koanf:"params"`
}

// QueryStep is one step of the pipeline. Table is the dotted context path
// the results are stored under.
type QueryStep struct {
	Table   string `koanf:"table"`
	Adapter string `koanf:"adapter"`
	Query   string `koanf:"query"`
}

// OutputSpec describes the final document.
type OutputSpec struct {
	Template string `koanf:"template"`
	// TemplateContext is static data exposed to the template under the
	// template_context key.
	TemplateContext map[string]any `koanf:"template_context"`
}

// Document is a parsed pipeline document. It is not modified after loading.
type Document struct {
	Adapters map[string]AdapterSettings `koanf:"adapter_settings"`
	Queries  []QueryStep                `koanf:"queries"`
	Output   OutputSpec                 `koanf:"output"`

	// Path is the file the document was loaded from, if any.
	Path string `koanf:"-"`
}

// Settings converts the named adapter entry into backend settings.
func (d *Document) Settings(name string) (backend.Settings, error) {
	a, ok := d.Adapters[name]
	if !ok {
		return backend.Settings{}, &ConfigurationError{Msg: fmt.Sprintf("unknown adapter %q", name)}
	}
	return a.ToSettings(name)
}

// AdapterNames returns the declared adapter names in sorted order.
func (d *Document) AdapterNames() []string {
	return sortedKeys(d.Adapters)
}

// ToSettings converts a to backend.Settings, parsing the timeout.
func (a AdapterSettings) ToSettings(name string) (backend.Settings, error) {
	s := backend.Settings{
		Name:        name,
		Kind:        a.Adapter,
		Database:    a.Database,
		PoolName:    a.PoolName,
		PoolSize:    a.PoolSize,
		User:        a.User,
		Password:    a.Password,
		Host:        a.Host,
		Port:        a.Port,
		BaseURL:     a.BaseURL,
		BasePath:    a.BasePath,
		BasePayload: a.BasePayload,
		BaseHeaders: a.BaseHeaders,
		HTTPMethod:  a.HTTPMethod,
		Params:      a.Params,
	}
	if a.Timeout != "" {
		d, err := time.ParseDuration(a.Timeout)
		if err != nil {
			return backend.Settings{}, &ConfigurationError{
				Msg: fmt.Sprintf("adapter %q: invalid timeout %q", name, a.Timeout),
				Err: err,
			}
		}
		s.Timeout = d
	}
	return s, nil
}
