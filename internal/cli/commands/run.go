package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/querypipe/internal/cli/config"
	pipecfg "github.com/leapstack-labs/querypipe/internal/config"
	"github.com/leapstack-labs/querypipe/internal/pipeline"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// watchDebounce is how long run --watch waits after the last change event.
const watchDebounce = 200 * time.Millisecond

// RunOptions holds options for the run command.
type RunOptions struct {
	InitialData string
	Output      string
	DumpContext string
	Watch       bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline and print the output document",
		Long: `Execute every query step of the pipeline document in order, threading
each step's results into the context, then render the output template.

The document is printed to stdout unless --output names a file; missing
parent directories are created.`,
		Example: `  # Run a pipeline
  querypipe run --file report.yaml

  # Seed the context and write the document to a file
  querypipe run --file report.yaml --initial-data region=eu,year=2024 -o out/report.md

  # Re-run whenever the document changes
  querypipe run --file report.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.InitialData, "initial-data", "", "Initial context as key1=value1,key2=value2")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Write the output document to this file")
	cmd.Flags().StringVar(&opts.DumpContext, "dump-context", "", "Also print the final context to stderr (json|yaml)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Re-run when the pipeline document changes")

	_ = cmd.RegisterFlagCompletionFunc("dump-context", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	switch opts.DumpContext {
	case "", "json", "yaml":
	default:
		return fmt.Errorf("invalid --dump-context %q: expected json or yaml", opts.DumpContext)
	}

	initial, err := parseInitialData(opts.InitialData)
	if err != nil {
		return err
	}

	if !opts.Watch {
		return runOnce(cmd, opts, initial)
	}
	return runWatch(cmd, opts, initial)
}

func runOnce(cmd *cobra.Command, opts *RunOptions, initial map[string]any) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	p, err := pipeline.New(cmdCtx.Doc, pipeline.WithLogger(cmdCtx.Logger))
	if err != nil {
		return err
	}

	res, err := p.Run(cmd.Context(), initial)
	if err != nil {
		return err
	}

	if err := writeOutput(cmd.OutOrStdout(), opts.Output, res.Output); err != nil {
		return err
	}
	if opts.Output != "" {
		cmdCtx.Logger.Info("output written", "path", opts.Output)
	}

	if opts.DumpContext != "" {
		return dumpContext(cmd.ErrOrStderr(), opts.DumpContext, res.Data)
	}
	return nil
}

// writeOutput prints doc to w, or writes it to path creating parent
// directories as needed.
func writeOutput(w io.Writer, path, doc string) error {
	if path == "" {
		_, err := fmt.Fprintln(w, doc)
		return err
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil { //nolint:gosec // output documents are not secret
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func dumpContext(w io.Writer, format string, data map[string]any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// runWatch runs the pipeline, then again after every change to the
// document until the command context is cancelled. Failed runs are logged
// and do not stop watching.
func runWatch(cmd *cobra.Command, opts *RunOptions, initial map[string]any) error {
	ctx := cmd.Context()
	logger := config.GetLogger(ctx)
	file := config.GetConfig(ctx).File

	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors often replace the file instead of writing it.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", file, err)
	}

	rerun := func() {
		if err := runOnce(cmd, opts, initial); err != nil {
			logger.Error("run failed", "error", err.Error())
		}
	}

	rerun()
	logger.Info("watching for changes", "file", file)
	return watchLoop(ctx, watcher, abs, logger, rerun)
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, logger *slog.Logger, onChange func()) error {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || filepath.Clean(event.Name) != path {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(watchDebounce)
			pending = timer.C
		case <-pending:
			pending = nil
			logger.Info("change detected", "file", filepath.Base(path))
			if _, err := pipecfg.Load(path); err != nil {
				logger.Error("invalid pipeline document", "error", err.Error())
				continue
			}
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err.Error())
		}
	}
}
