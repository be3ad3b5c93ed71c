// Package mysql provides the MySQL backend for querypipe.
// It registers both the "mysql" and "mysql2" kinds, which behave identically.
package mysql

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/leapstack-labs/querypipe/pkg/backend"
)

// Required lists the settings every MySQL adapter must declare.
var Required = []string{"user", "password", "host", "port", "database"}

// Params holds MySQL-specific configuration.
type Params struct {
	TLS     string `mapstructure:"tls"`
	Charset string `mapstructure:"charset"`
	// Timeout is the dial timeout (e.g. "5s").
	Timeout string `mapstructure:"timeout"`
}

// New opens a pooled MySQL backend.
func New(ctx context.Context, s backend.Settings, logger *slog.Logger) (backend.Backend, error) {
	dsn, err := buildDSN(s)
	if err != nil {
		return nil, err
	}

	logger.Debug("connecting to mysql",
		slog.String("host", s.Host),
		slog.String("database", s.Database),
		slog.Int("pool_size", s.EffectivePoolSize()))

	return backend.OpenPool(ctx, backend.Kind(s.Kind), "mysql", dsn, s, logger)
}

func buildDSN(s backend.Settings) (string, error) {
	var params Params
	if err := s.DecodeParams(&params); err != nil {
		return "", err
	}

	cfg := mysql.NewConfig()
	cfg.User = s.User
	cfg.Passwd = s.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	cfg.DBName = s.Database
	cfg.TLSConfig = params.TLS
	if params.Charset != "" {
		cfg.Params = map[string]string{"charset": params.Charset}
	}
	if params.Timeout != "" {
		d, err := time.ParseDuration(params.Timeout)
		if err != nil {
			return "", &backend.ConfigError{Adapter: s.Name, Msg: fmt.Sprintf("invalid timeout %q", params.Timeout), Err: err}
		}
		cfg.Timeout = d
	}
	return cfg.FormatDSN(), nil
}

func init() {
	backend.Register(backend.KindMySQL, Required, New)
	backend.Register(backend.KindMySQL2, Required, New)
}
