package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/querypipe/internal/dispatch"
	"github.com/leapstack-labs/querypipe/internal/pipeline"
	"github.com/leapstack-labs/querypipe/pkg/backend"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// ExecOptions holds options for the exec command.
type ExecOptions struct {
	Adapter string
	Input   string
	Format  string
}

// NewExecCommand creates the exec command.
func NewExecCommand() *cobra.Command {
	opts := &ExecOptions{}

	cmd := &cobra.Command{
		Use:   "exec [SQL]",
		Short: "Run ad-hoc statements on one adapter",
		Long: `Execute statements directly on a named adapter of the pipeline document,
without templating, and print the returned rows.

The query text is taken from the arguments, from --input, or from stdin
when it is piped. Several statements separated by ";" are run in order
and their rows concatenated.`,
		Example: `  # Query a database adapter
  querypipe exec --file report.yaml --adapter db1 "SELECT * FROM users"

  # Read the statement from a file and print JSON
  querypipe exec --file report.yaml --adapter db1 --input q.sql --format json

  # Pipe a request body to an HTTP adapter
  echo '{"endpoint": "users"}' | querypipe exec --file report.yaml --adapter api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Adapter, "adapter", "a", "", "Adapter name from adapter_settings")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read the query from a file")
	cmd.Flags().StringVar(&opts.Format, "format", FormatTable, "Output format: table, json, csv, md, yaml")
	_ = cmd.MarkFlagRequired("adapter")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return RowFormats, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runExec(cmd *cobra.Command, args []string, opts *ExecOptions) error {
	text, err := readQueryText(cmd, args, opts.Input)
	if err != nil {
		return err
	}

	stmts := pipeline.SplitStatements(text)
	if len(stmts) == 0 {
		return errors.New("no query given: pass SQL as an argument, use --input, or pipe it on stdin")
	}

	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	d := dispatch.New(cmdCtx.Doc, cmdCtx.Logger)
	defer func() {
		if err := d.CloseAll(); err != nil {
			cmdCtx.Logger.Warn("adapter teardown failed", "error", err.Error())
		}
	}()

	rows := []backend.Row{}
	for _, stmt := range stmts {
		cmdCtx.Logger.Debug("executing statement", "adapter", opts.Adapter, "query", stmt)
		result, err := d.Query(cmd.Context(), opts.Adapter, stmt)
		if err != nil {
			return fmt.Errorf("query failed on adapter %s: %w", opts.Adapter, err)
		}
		rows = append(rows, result...)
	}

	return renderRows(cmd.OutOrStdout(), rows, opts.Format)
}

// readQueryText picks the query source: arguments, then --input, then piped stdin.
func readQueryText(cmd *cobra.Command, args []string, input string) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case input != "":
		content, err := os.ReadFile(input) //nolint:gosec // user-supplied query file
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return string(content), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		return "", nil
	}
	content, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(content), nil
}
