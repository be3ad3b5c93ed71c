// Package sqlserver provides the Microsoft SQL Server backend for querypipe.
package sqlserver

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"github.com/leapstack-labs/querypipe/pkg/backend"
	"github.com/microsoft/go-mssqldb/msdsn"

	_ "github.com/microsoft/go-mssqldb" // sqlserver driver
)

// Params holds SQL Server-specific configuration.
type Params struct {
	Encrypt                string `mapstructure:"encrypt"`
	TrustServerCertificate string `mapstructure:"trust_server_certificate"`
	AppName                string `mapstructure:"app_name"`
}

// New opens a pooled SQL Server backend.
func New(ctx context.Context, s backend.Settings, logger *slog.Logger) (backend.Backend, error) {
	dsn, err := buildDSN(s)
	if err != nil {
		return nil, err
	}

	logger.Debug("connecting to sqlserver", slog.String("host", s.Host), slog.String("database", s.Database))

	return backend.OpenPool(ctx, backend.KindSQLServer, "sqlserver", dsn, s, logger)
}

// buildDSN builds a sqlserver:// URL and validates it before any connection attempt.
func buildDSN(s backend.Settings) (string, error) {
	var params Params
	if err := s.DecodeParams(&params); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("database", s.Database)
	if params.Encrypt != "" {
		q.Set("encrypt", params.Encrypt)
	}
	if params.TrustServerCertificate != "" {
		q.Set("TrustServerCertificate", params.TrustServerCertificate)
	}
	if params.AppName != "" {
		q.Set("app name", params.AppName)
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(s.User, s.Password),
		Host:     net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		RawQuery: q.Encode(),
	}
	dsn := u.String()

	if _, err := msdsn.Parse(dsn); err != nil {
		return "", &backend.ConfigError{Adapter: s.Name, Msg: "invalid sqlserver connection settings", Err: err}
	}
	return dsn, nil
}

func init() {
	backend.Register(backend.KindSQLServer, []string{"user", "password", "host", "port", "database"}, New)
}
