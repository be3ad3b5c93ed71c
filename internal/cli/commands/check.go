package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	pipecfg "github.com/leapstack-labs/querypipe/internal/config"
	"github.com/leapstack-labs/querypipe/internal/dispatch"
	"github.com/leapstack-labs/querypipe/pkg/backend"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Check statuses.
const (
	statusOK     = "ok"
	statusFailed = "failed"
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	Timeout     time.Duration
	Concurrency int
}

// CheckResult is the outcome of checking one adapter.
type CheckResult struct {
	Adapter  string
	Kind     string
	Status   string
	Duration time.Duration
	Err      error
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that every adapter can be reached",
		Long: `Open every adapter declared in the pipeline document, ping it when the
backend supports it, and close it again. No query step is executed.

The command fails when at least one adapter cannot be reached.`,
		Example: `  querypipe check --file report.yaml
  querypipe check --file report.yaml --timeout 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "Per-adapter connection timeout")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 4, "Adapters checked in parallel")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *CheckOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	results := checkAdapters(cmd.Context(), cmdCtx.Doc, opts, cmdCtx.Logger)
	renderCheck(cmd.OutOrStdout(), results)

	var failed []error
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", r.Adapter, r.Err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d adapters failed: %w", len(failed), len(results), errors.Join(failed...))
	}
	return nil
}

// checkAdapters checks every adapter of doc concurrently through one
// dispatcher. Results are in adapter name order.
func checkAdapters(ctx context.Context, doc *pipecfg.Document, opts *CheckOptions, logger *slog.Logger) []CheckResult {
	names := doc.AdapterNames()
	results := make([]CheckResult, len(names))

	d := dispatch.New(doc, logger)
	defer func() {
		if err := d.CloseAll(); err != nil {
			logger.Warn("adapter teardown failed", "error", err.Error())
		}
	}()

	var g errgroup.Group
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}

	for i, name := range names {
		g.Go(func() error {
			results[i] = checkAdapter(ctx, d, doc, name, opts.Timeout, logger)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func checkAdapter(ctx context.Context, d *dispatch.Dispatcher, doc *pipecfg.Document, name string, timeout time.Duration, logger *slog.Logger) (res CheckResult) {
	res = CheckResult{Adapter: name, Kind: doc.Adapters[name].Adapter, Status: statusOK}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res.Err = reach(ctx, d, name)
	if res.Err != nil {
		res.Status = statusFailed
		logger.Debug("adapter check failed", "adapter", name, "error", res.Err.Error())
	}
	return res
}

// reach instantiates the adapter, pings it when the backend supports it,
// then closes it.
func reach(ctx context.Context, d *dispatch.Dispatcher, name string) error {
	b, err := d.Get(ctx, name)
	if err != nil {
		return err
	}

	var pingErr error
	if p, ok := b.(backend.Pinger); ok {
		pingErr = p.Ping(ctx)
	}
	return errors.Join(pingErr, d.Close(name))
}

func renderCheck(w io.Writer, results []CheckResult) {
	title := cases.Title(language.English)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Adapter", "Kind", "Status", "Time", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Time", Align: text.AlignRight},
		{Name: "Error", WidthMax: 60},
	})

	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		t.AppendRow(table.Row{r.Adapter, r.Kind, title.String(r.Status), r.Duration.Round(time.Millisecond), errText})
	}
	t.Render()
}
