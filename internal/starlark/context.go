package starlark

import (
	"fmt"
	"maps"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ExecutionContext holds the globals that template expressions are
// evaluated against: the built-in filters plus the pipeline context.
type ExecutionContext struct {
	globals starlark.StringDict
	filters starlark.StringDict
}

// ContextOption is a functional option for configuring ExecutionContext.
type ContextOption func(*ExecutionContext)

// WithFilters adds extra filters, replacing built-ins of the same name.
func WithFilters(filters starlark.StringDict) ContextOption {
	return func(ctx *ExecutionContext) {
		maps.Copy(ctx.filters, filters)
	}
}

// NewExecutionContext builds an execution context over data. Top-level data
// keys become globals and shadow filters of the same name.
func NewExecutionContext(data map[string]any, opts ...ContextOption) (*ExecutionContext, error) {
	ctx := &ExecutionContext{filters: Filters()}
	for _, opt := range opts {
		opt(ctx)
	}

	ctx.globals = make(starlark.StringDict, len(ctx.filters)+len(data))
	maps.Copy(ctx.globals, ctx.filters)
	for k, v := range data {
		sv, err := GoToStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("context key %q: %w", k, err)
		}
		ctx.globals[k] = sv
		delete(ctx.filters, k)
	}
	ctx.globals.Freeze()
	return ctx, nil
}

// IsFilter reports whether name can appear on the right of a pipe. A filter
// shadowed by a data key is not one.
func (ctx *ExecutionContext) IsFilter(name string) bool {
	_, ok := ctx.filters[name]
	return ok
}

// Eval evaluates one template expression. locals, if any, shadow the
// globals; file and line are used in error messages.
func (ctx *ExecutionContext) Eval(expr, file string, line int, locals starlark.StringDict) (starlark.Value, error) {
	env := ctx.globals
	if len(locals) > 0 {
		env = make(starlark.StringDict, len(ctx.globals)+len(locals))
		maps.Copy(env, ctx.globals)
		maps.Copy(env, locals)
	}

	opts := &syntax.FileOptions{}
	parsed, err := opts.ParseExpr(file, expr, 0)
	if err != nil {
		return nil, &EvalError{File: file, Line: line, Expr: expr, Message: err.Error()}
	}
	parsed = rewritePipes(parsed, func(name string) bool {
		if _, local := locals[name]; local {
			return false
		}
		return ctx.IsFilter(name)
	})

	thread := &starlark.Thread{Name: file, Print: func(*starlark.Thread, string) {}}
	v, err := starlark.EvalExprOptions(opts, thread, parsed, env)
	if err != nil {
		return nil, &EvalError{File: file, Line: line, Expr: expr, Message: err.Error()}
	}
	return v, nil
}

// EvalString evaluates expr and renders the result with ValueString.
func (ctx *ExecutionContext) EvalString(expr, file string, line int, locals starlark.StringDict) (string, error) {
	v, err := ctx.Eval(expr, file, line, locals)
	if err != nil {
		return "", err
	}
	return ValueString(v), nil
}

// ValueString renders a value for template output: strings verbatim,
// None as empty, everything else in Starlark notation.
func ValueString(v starlark.Value) string {
	switch val := v.(type) {
	case starlark.String:
		return string(val)
	case starlark.NoneType:
		return ""
	default:
		return v.String()
	}
}

// EvalError is a failed expression evaluation.
type EvalError struct {
	File    string
	Line    int
	Expr    string
	Message string
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: error evaluating %q: %s", e.File, e.Line, e.Expr, e.Message)
	}
	return fmt.Sprintf("%s: error evaluating %q: %s", e.File, e.Expr, e.Message)
}
