// Package postgres provides the PostgreSQL backend for querypipe.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/querypipe/pkg/backend"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

// Params holds PostgreSQL-specific configuration.
type Params struct {
	SSLMode string `mapstructure:"sslmode"`
}

// New opens a pooled PostgreSQL backend.
func New(ctx context.Context, s backend.Settings, logger *slog.Logger) (backend.Backend, error) {
	var params Params
	if err := s.DecodeParams(&params); err != nil {
		return nil, err
	}
	dsn := buildPostgresDSN(s, params)

	logger.Debug("connecting to postgres", slog.String("host", s.Host), slog.String("database", s.Database))

	return backend.OpenPool(ctx, backend.KindPostgres, "pgx", dsn, s, logger)
}

// buildPostgresDSN constructs a key=value PostgreSQL connection string.
func buildPostgresDSN(s backend.Settings, params Params) string {
	sslmode := params.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		s.Host, s.Port, s.Database, sslmode)

	if s.User != "" {
		dsn += fmt.Sprintf(" user=%s", s.User)
	}
	if s.Password != "" {
		dsn += fmt.Sprintf(" password=%s", s.Password)
	}
	return dsn
}

func init() {
	backend.Register(backend.KindPostgres, []string{"user", "password", "host", "port", "database"}, New)
}
