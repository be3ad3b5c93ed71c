package commands

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/querypipe/internal/cli/config"
	pipecfg "github.com/leapstack-labs/querypipe/internal/config"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Doc    *pipecfg.Document
}

// NewCommandContext loads the pipeline document named by the CLI settings.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())

	doc, err := pipecfg.Load(cfg.File)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded pipeline document", "path", doc.Path, "adapters", len(doc.Adapters), "steps", len(doc.Queries))

	return &CommandContext{Cfg: cfg, Logger: logger, Doc: doc}, nil
}

// parseInitialData parses the --initial-data flag value; empty means no data.
func parseInitialData(s string) (map[string]any, error) {
	if s == "" {
		return map[string]any{}, nil
	}
	data, err := pipecfg.ParseInitialData(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --initial-data: %w", err)
	}
	return data, nil
}
