// Package sqlite provides the sqlite3 backend for querypipe.
//
// The database file is opened fresh for every query and closed afterwards.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/querypipe/pkg/backend"

	_ "modernc.org/sqlite" // sqlite driver
)

// Params holds sqlite-specific configuration from the adapter's params mapping.
type Params struct {
	// Pragmas applied to each fresh connection (e.g. busy_timeout: 5000).
	Pragmas map[string]string `mapstructure:"pragmas"`
}

// New creates a sqlite3 backend reading the file named by s.Database.
func New(_ context.Context, s backend.Settings, logger *slog.Logger) (backend.Backend, error) {
	var params Params
	if err := s.DecodeParams(&params); err != nil {
		return nil, err
	}

	return &backend.FileDB{
		Kind:   backend.KindSQLite,
		Driver: "sqlite",
		DSN:    s.Database,
		Setup:  pragmaStatements(params.Pragmas),
		Logger: logger,
	}, nil
}

func pragmaStatements(pragmas map[string]string) []string {
	if len(pragmas) == 0 {
		return nil
	}
	keys := make([]string, 0, len(pragmas))
	for k := range pragmas {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	stmts := make([]string, 0, len(keys))
	for _, k := range keys {
		stmts = append(stmts, fmt.Sprintf("PRAGMA %s = %s", k, pragmas[k]))
	}
	return stmts
}
