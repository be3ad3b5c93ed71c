// Package pipeline runs a pipeline document: each query step is rendered
// against the accumulated context, executed on its adapter and merged back
// into the context, then the output template is rendered.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/google/uuid"
	"github.com/leapstack-labs/querypipe/internal/assemble"
	"github.com/leapstack-labs/querypipe/internal/config"
	"github.com/leapstack-labs/querypipe/internal/dispatch"
	"github.com/leapstack-labs/querypipe/internal/template"
	"github.com/leapstack-labs/querypipe/pkg/backend"
)

// TemplateContextKey is the context key under which output.template_context
// is exposed to the output template.
const TemplateContextKey = "template_context"

// Renderer renders template text against a data map.
type Renderer interface {
	Render(name, text string, data map[string]any) (string, error)
}

// Dispatcher routes queries to named adapters and closes them.
// *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Get(ctx context.Context, adapter string) (backend.Backend, error)
	Query(ctx context.Context, adapter, text string) ([]backend.Row, error)
	CloseAll() error
}

// DispatcherFactory creates the dispatcher for one run.
type DispatcherFactory func(source dispatch.SettingsSource, logger *slog.Logger) Dispatcher

// State is the lifecycle state of a run.
type State int

// Run states, in order.
const (
	StateLoaded State = iota
	StateExecuting
	StateRendering
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateExecuting:
		return "executing"
	case StateRendering:
		return "rendering"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Pipeline executes one document. A Pipeline may be run several times;
// every run gets its own context and adapters.
type Pipeline struct {
	doc           *config.Document
	renderer      Renderer
	newDispatcher DispatcherFactory
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRenderer replaces the default template engine.
func WithRenderer(r Renderer) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.renderer = r
		}
	}
}

// WithDispatcherFactory replaces the default adapter dispatcher.
func WithDispatcherFactory(f DispatcherFactory) Option {
	return func(p *Pipeline) {
		if f != nil {
			p.newDispatcher = f
		}
	}
}

// New validates doc and returns a pipeline in the loaded state.
func New(doc *config.Document, opts ...Option) (*Pipeline, error) {
	if doc == nil {
		return nil, &config.ConfigurationError{Msg: "no pipeline document"}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		doc:      doc,
		renderer: template.NewEngine(),
		newDispatcher: func(source dispatch.SettingsSource, logger *slog.Logger) Dispatcher {
			return dispatch.New(source, logger)
		},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Result is the outcome of a successful run.
type Result struct {
	RunID  string
	Output string
	// Data is the final query context, without the template context.
	Data map[string]any
}

// Run executes every step in order and renders the output. The initial map
// is copied, never modified. Adapters opened by the run are closed before
// Run returns, whatever the outcome; close failures are only logged.
func (p *Pipeline) Run(ctx context.Context, initial map[string]any) (*Result, error) {
	runID := uuid.New().String()
	logger := p.logger.With("run_id", runID)

	data := make(map[string]any, len(initial))
	maps.Copy(data, initial)

	d := p.newDispatcher(p.doc, logger)
	defer func() {
		if err := d.CloseAll(); err != nil {
			logger.Warn("adapter teardown failed", "error", err.Error())
		}
		logger.Debug("pipeline state", "state", StateClosed.String())
	}()

	logger.Info("starting run", "steps", len(p.doc.Queries))
	logger.Debug("pipeline state", "state", StateLoaded.String())

	for i, step := range p.doc.Queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Debug("pipeline state", "state", StateExecuting.String(), "step", i, "table", step.Table)

		rows, err := p.runStep(ctx, logger, d, i, step, data)
		if err != nil {
			phase := "query"
			if template.IsTemplateError(err) {
				phase = "render"
			}
			logger.Info("run failed", "step", i, "phase", phase, "error", err.Error())
			return nil, &StepError{Index: i, Table: step.Table, Adapter: step.Adapter, Err: err}
		}
		assemble.Assemble(data, step.Table, rows)
		logger.Debug("step completed", "step", i, "table", step.Table, "rows", len(rows))
	}

	logger.Debug("pipeline state", "state", StateRendering.String())
	output, err := p.renderOutput(data)
	if err != nil {
		logger.Info("run failed", "error", err.Error())
		return nil, err
	}

	logger.Info("run completed", "bytes", len(output))
	return &Result{RunID: runID, Output: output, Data: data}, nil
}

func (p *Pipeline) runStep(ctx context.Context, logger *slog.Logger, d Dispatcher, i int, step config.QueryStep, data map[string]any) ([]backend.Row, error) {
	text, err := p.renderer.Render(stepName(i), step.Query, data)
	if err != nil {
		return nil, err
	}

	// The adapter is resolved even when the text holds no statement.
	if _, err := d.Get(ctx, step.Adapter); err != nil {
		return nil, err
	}

	rows := []backend.Row{}
	for _, stmt := range SplitStatements(text) {
		logger.Debug("executing statement", "step", i, "adapter", step.Adapter, "query", stmt)
		result, err := d.Query(ctx, step.Adapter, stmt)
		if err != nil {
			return nil, err
		}
		rows = append(rows, result...)
	}
	return rows, nil
}

func (p *Pipeline) renderOutput(data map[string]any) (string, error) {
	tc := p.doc.Output.TemplateContext
	if tc == nil {
		tc = map[string]any{}
	}

	view := make(map[string]any, len(data)+1)
	maps.Copy(view, data)
	view[TemplateContextKey] = tc

	out, err := p.renderer.Render("output", p.doc.Output.Template, view)
	if err != nil {
		return "", fmt.Errorf("failed to render output: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// RenderStep renders the query text of step i against data only, without
// executing anything.
func (p *Pipeline) RenderStep(i int, data map[string]any) ([]string, error) {
	if i < 0 || i >= len(p.doc.Queries) {
		return nil, &config.ConfigurationError{
			Msg: fmt.Sprintf("step %d out of range (document has %d steps)", i, len(p.doc.Queries)),
		}
	}
	text, err := p.renderer.Render(stepName(i), p.doc.Queries[i].Query, data)
	if err != nil {
		return nil, err
	}
	return SplitStatements(text), nil
}

// RenderOutput renders the output template against data plus the template
// context, without executing any step.
func (p *Pipeline) RenderOutput(data map[string]any) (string, error) {
	return p.renderOutput(data)
}

// SplitStatements splits rendered query text on ";" and drops fragments that
// are empty after trimming whitespace.
func SplitStatements(text string) []string {
	var stmts []string
	for _, part := range strings.Split(text, ";") {
		if s := strings.TrimSpace(part); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

func stepName(i int) string {
	return fmt.Sprintf("queries[%d]", i)
}
