// Package duckdb provides the DuckDB backend for querypipe.
package duckdb

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/querypipe/pkg/backend"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// New creates a DuckDB backend. Use ":memory:" as the database for an
// in-memory database; note that nothing persists between queries then.
func New(_ context.Context, s backend.Settings, logger *slog.Logger) (backend.Backend, error) {
	var params Params
	if err := s.DecodeParams(&params); err != nil {
		return nil, err
	}

	return &backend.FileDB{
		Kind:   backend.KindDuckDB,
		Driver: "duckdb",
		DSN:    s.Database,
		Setup:  params.setupStatements(),
		Logger: logger,
	}, nil
}

func init() {
	backend.Register(backend.KindDuckDB, []string{"database"}, New)
}
