package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	pipecfg "github.com/leapstack-labs/querypipe/internal/config"
	"github.com/spf13/cobra"
)

// PlanOptions holds options for the plan command.
type PlanOptions struct {
	Format string
}

// PlanOutput is the JSON output of the plan command.
type PlanOutput struct {
	Adapters []PlanAdapter `json:"adapters"`
	Steps    []PlanStep    `json:"steps"`
	Output   PlanTemplate  `json:"output"`
}

// PlanAdapter describes one configured adapter. Credentials are never included.
type PlanAdapter struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// PlanStep describes one query step.
type PlanStep struct {
	Index   int    `json:"index"`
	Table   string `json:"table"`
	Adapter string `json:"adapter"`
	Query   string `json:"query"`
}

// PlanTemplate summarizes the output section.
type PlanTemplate struct {
	TemplateBytes   int      `json:"template_bytes"`
	TemplateContext []string `json:"template_context"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	opts := &PlanOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the adapters and steps of a pipeline without running it",
		Long: `Load and validate the pipeline document, then list its adapters and its
query steps in execution order. Nothing is connected or executed.`,
		Example: `  querypipe plan --file report.yaml
  querypipe plan --file report.yaml --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "table", "Output format: table, json")

	return cmd
}

func runPlan(cmd *cobra.Command, opts *PlanOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	plan := buildPlan(cmdCtx.Doc)

	switch opts.Format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	case "table", "":
		renderPlan(cmd.OutOrStdout(), plan)
		return nil
	default:
		return fmt.Errorf("unknown format %q (expected table or json)", opts.Format)
	}
}

func buildPlan(doc *pipecfg.Document) PlanOutput {
	plan := PlanOutput{
		Adapters: []PlanAdapter{},
		Steps:    make([]PlanStep, 0, len(doc.Queries)),
		Output: PlanTemplate{
			TemplateBytes:   len(doc.Output.Template),
			TemplateContext: []string{},
		},
	}

	for _, name := range doc.AdapterNames() {
		a := doc.Adapters[name]
		plan.Adapters = append(plan.Adapters, PlanAdapter{Name: name, Kind: a.Adapter, Target: adapterTarget(a)})
	}
	for i, q := range doc.Queries {
		plan.Steps = append(plan.Steps, PlanStep{Index: i, Table: q.Table, Adapter: q.Adapter, Query: q.Query})
	}
	for k := range doc.Output.TemplateContext {
		plan.Output.TemplateContext = append(plan.Output.TemplateContext, k)
	}
	slices.Sort(plan.Output.TemplateContext)
	return plan
}

// adapterTarget describes where an adapter connects to.
func adapterTarget(a pipecfg.AdapterSettings) string {
	switch {
	case a.BaseURL != "":
		return strings.TrimRight(a.BaseURL, "/") + a.BasePath
	case a.Host != "":
		target := a.Host
		if a.Port != 0 {
			target += ":" + strconv.Itoa(a.Port)
		}
		if a.Database != "" {
			target += "/" + a.Database
		}
		return target
	default:
		return a.Database
	}
}

func renderPlan(w io.Writer, plan PlanOutput) {
	adapters := table.NewWriter()
	adapters.SetOutputMirror(w)
	adapters.SetStyle(table.StyleLight)
	adapters.SetTitle("Adapters")
	adapters.AppendHeader(table.Row{"Name", "Kind", "Target"})
	for _, a := range plan.Adapters {
		adapters.AppendRow(table.Row{a.Name, a.Kind, a.Target})
	}
	adapters.Render()

	steps := table.NewWriter()
	steps.SetOutputMirror(w)
	steps.SetStyle(table.StyleLight)
	steps.SetTitle("Steps")
	steps.AppendHeader(table.Row{"#", "Table", "Adapter", "Query"})
	for _, s := range plan.Steps {
		steps.AppendRow(table.Row{s.Index, s.Table, s.Adapter, firstLine(s.Query, 60)})
	}
	steps.Render()

	ctxKeys := "none"
	if len(plan.Output.TemplateContext) > 0 {
		ctxKeys = strings.Join(plan.Output.TemplateContext, ", ")
	}
	_, _ = fmt.Fprintf(w, "Output: %d-byte template, template_context keys: %s\n", plan.Output.TemplateBytes, ctxKeys)
}

// firstLine returns the first non-empty line of s, cut to limit runes.
func firstLine(s string, limit int) string {
	line := ""
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	if r := []rune(line); len(r) > limit {
		return string(r[:limit-3]) + "..."
	}
	return line
}
