package duckdb

import (
	"fmt"
	"sort"
	"strings"
)

// Params holds DuckDB-specific configuration.
// Parsed from backend.Settings.Params using mapstructure.
type Params struct {
	// Extensions to install and load (e.g., "httpfs", "json")
	Extensions []string `mapstructure:"extensions"`

	// Secrets for cloud storage authentication
	Secrets []SecretConfig `mapstructure:"secrets"`

	// Settings to apply at session level (e.g., memory_limit, threads)
	Settings map[string]string `mapstructure:"settings"`
}

// SecretConfig defines a DuckDB secret for cloud storage.
type SecretConfig struct {
	// Type: "s3", "gcs", "azure", "r2"
	Type string `mapstructure:"type"`

	// Provider: "config", "credential_chain", ...
	Provider string `mapstructure:"provider"`

	Region   string `mapstructure:"region"`
	KeyID    string `mapstructure:"key_id"`
	Secret   string `mapstructure:"secret"`
	Endpoint string `mapstructure:"endpoint"`
	Scope    string `mapstructure:"scope"`
}

// setupStatements returns the statements run on each fresh connection,
// in order: extensions, secrets, then settings.
func (p Params) setupStatements() []string {
	var stmts []string
	for _, ext := range p.Extensions {
		stmts = append(stmts, "INSTALL "+ext, "LOAD "+ext)
	}
	for _, s := range p.Secrets {
		stmts = append(stmts, s.createStatement())
	}

	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stmts = append(stmts, fmt.Sprintf("SET %s = '%s'", k, escape(p.Settings[k])))
	}
	return stmts
}

func (s SecretConfig) createStatement() string {
	opts := []string{"TYPE " + s.Type}
	add := func(key, val string) {
		if val != "" {
			opts = append(opts, fmt.Sprintf("%s '%s'", key, escape(val)))
		}
	}
	if s.Provider != "" {
		opts = append(opts, "PROVIDER "+s.Provider)
	}
	add("REGION", s.Region)
	add("KEY_ID", s.KeyID)
	add("SECRET", s.Secret)
	add("ENDPOINT", s.Endpoint)
	add("SCOPE", s.Scope)
	return fmt.Sprintf("CREATE OR REPLACE SECRET (%s)", strings.Join(opts, ", "))
}

func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
