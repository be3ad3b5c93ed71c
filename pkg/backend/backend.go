// Package backend defines the query contract that every querypipe data source
// implements, together with the registry that maps a configured adapter kind
// to its implementation.
//
// Concrete backends live in pkg/backends/ subdirectories and register
// themselves from init(). Import pkg/backends/all to enable every built-in kind.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Row is a single result row keyed by column name.
type Row = map[string]any

// Backend defines the interface that all data source backends must implement.
type Backend interface {
	// Query executes one statement and returns every row it produced, in order.
	Query(ctx context.Context, text string) ([]Row, error)

	// Close releases the resources held by the backend. It is idempotent.
	Close() error
}

// Pinger is implemented by backends that can verify connectivity without
// running a user query.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Kind identifies a backend implementation.
type Kind string

// Built-in backend kinds.
const (
	KindSQLite    Kind = "sqlite3"
	KindDuckDB    Kind = "duckdb"
	KindMySQL     Kind = "mysql"
	KindMySQL2    Kind = "mysql2"
	KindPostgres  Kind = "postgres"
	KindSQLServer Kind = "sqlserver"
	KindHTTP      Kind = "http"
)

// DefaultPoolSize is the connection pool size used by networked SQL backends
// when pool_size is not configured.
const DefaultPoolSize = 5

// DefaultHTTPTimeout bounds a single HTTP backend request when no timeout is configured.
const DefaultHTTPTimeout = 30 * time.Second

// Settings holds the validated configuration for one named adapter.
// Which fields matter depends on Kind.
type Settings struct {
	Name string
	Kind string

	// File databases (sqlite3, duckdb) and the database name of networked ones
	Database string

	// Networked databases
	PoolName string
	PoolSize int
	User     string
	Password string
	Host     string
	Port     int

	// HTTP
	BaseURL     string
	BasePath    string
	BasePayload map[string]any
	BaseHeaders map[string]string
	HTTPMethod  string
	Timeout     time.Duration

	// Params holds kind-specific options, decoded by each backend with DecodeParams.
	Params map[string]any
}

// Field returns the string form of a named setting, or "" when it is unset.
// Names follow the configuration document keys (e.g. "base_url").
func (s Settings) Field(name string) string {
	switch name {
	case "database":
		return s.Database
	case "pool_name":
		return s.PoolName
	case "user":
		return s.User
	case "password":
		return s.Password
	case "host":
		return s.Host
	case "port":
		if s.Port == 0 {
			return ""
		}
		return fmt.Sprintf("%d", s.Port)
	case "base_url":
		return s.BaseURL
	case "base_path":
		return s.BasePath
	case "http_method":
		return s.HTTPMethod
	default:
		return ""
	}
}

// Require checks that every named field is present and non-empty.
// The returned error lists all missing fields in the order they were requested.
func (s Settings) Require(fields ...string) error {
	var missing []string
	for _, f := range fields {
		if s.Field(f) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &MissingSettingsError{Adapter: s.Name, Kind: s.Kind, Fields: missing}
	}
	return nil
}

// EffectivePoolSize returns PoolSize, or DefaultPoolSize when unset.
func (s Settings) EffectivePoolSize() int {
	if s.PoolSize <= 0 {
		return DefaultPoolSize
	}
	return s.PoolSize
}

// DecodeParams decodes Params into target using mapstructure tags.
// Numeric strings are accepted for numeric fields.
func (s Settings) DecodeParams(target any) error {
	if len(s.Params) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(s.Params); err != nil {
		return &ConfigError{Adapter: s.Name, Msg: "invalid params", Err: err}
	}
	return nil
}
