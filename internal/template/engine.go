package template

import (
	"fmt"

	starctx "github.com/leapstack-labs/querypipe/internal/starlark"
)

// Engine renders named template text against a data map. Every call builds
// a fresh, frozen execution context, so an Engine is safe for concurrent use.
type Engine struct {
	opts []starctx.ContextOption
}

// NewEngine creates an engine. Options are applied to every execution context.
func NewEngine(opts ...starctx.ContextOption) *Engine {
	return &Engine{opts: opts}
}

// Render parses text and renders it with data exposed as globals.
// name is used as the file name in error positions.
func (e *Engine) Render(name, text string, data map[string]any) (string, error) {
	tmpl, err := ParseString(text, name)
	if err != nil {
		return "", err
	}

	ctx, err := starctx.NewExecutionContext(data, e.opts...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}

	return Render(tmpl, ctx)
}
