package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/leapstack-labs/querypipe/internal/pipeline"
	"github.com/spf13/cobra"
)

// RenderOptions holds options for the render command.
type RenderOptions struct {
	InitialData string
	Format      string
}

// RenderOutput is the JSON output of the render command.
type RenderOutput struct {
	Target     string   `json:"target"`
	Table      string   `json:"table,omitempty"`
	Adapter    string   `json:"adapter,omitempty"`
	Statements []string `json:"statements,omitempty"`
	Output     string   `json:"output,omitempty"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	opts := &RenderOptions{}

	cmd := &cobra.Command{
		Use:   "render <step-index|output>",
		Short: "Render a query step or the output template without executing it",
		Long: `Render the query text of one step, or the output template, against the
initial data only. No adapter is opened and nothing is executed.

Query text is split into statements on ";" exactly as a run would.
Templates that refer to results of earlier steps fail to render unless
those values are supplied with --initial-data.`,
		Example: `  # Render the first step
  querypipe render --file report.yaml 0

  # Render with initial data, as JSON
  querypipe render --file report.yaml --initial-data region=eu 1 --format json

  # Preview the output template
  querypipe render --file report.yaml output --initial-data name=Ann`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.InitialData, "initial-data", "", "Initial context as key1=value1,key2=value2")
	cmd.Flags().StringVar(&opts.Format, "format", "text", "Output format: text, json")

	return cmd
}

func runRender(cmd *cobra.Command, target string, opts *RenderOptions) error {
	data, err := parseInitialData(opts.InitialData)
	if err != nil {
		return err
	}

	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	p, err := pipeline.New(cmdCtx.Doc, pipeline.WithLogger(cmdCtx.Logger))
	if err != nil {
		return err
	}

	out := RenderOutput{Target: target}
	if target == "output" {
		out.Output, err = p.RenderOutput(data)
		if err != nil {
			return err
		}
	} else {
		i, convErr := strconv.Atoi(target)
		if convErr != nil {
			return fmt.Errorf("invalid step %q: expected a step index or \"output\"", target)
		}
		out.Statements, err = p.RenderStep(i, data)
		if err != nil {
			return fmt.Errorf("failed to render step %d: %w", i, err)
		}
		out.Table = cmdCtx.Doc.Queries[i].Table
		out.Adapter = cmdCtx.Doc.Queries[i].Adapter
	}

	w := cmd.OutOrStdout()
	switch opts.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "text", "":
		if target == "output" {
			_, err = fmt.Fprintln(w, out.Output)
			return err
		}
		for _, stmt := range out.Statements {
			if _, err := fmt.Fprintf(w, "%s;\n", stmt); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (expected text or json)", opts.Format)
	}
}
