package template

import (
	"fmt"
	"strings"

	starctx "github.com/leapstack-labs/querypipe/internal/starlark"
	"go.starlark.net/starlark"
)

// RenderString parses and renders input in one step.
func RenderString(input, file string, ctx *starctx.ExecutionContext) (string, error) {
	tmpl, err := ParseString(input, file)
	if err != nil {
		return "", err
	}
	return Render(tmpl, ctx)
}

// Render evaluates a parsed template against ctx.
func Render(tmpl *Template, ctx *starctx.ExecutionContext) (string, error) {
	r := &renderer{ctx: ctx, file: tmpl.File}
	if err := r.renderNodes(tmpl.Nodes, nil); err != nil {
		return "", err
	}
	return r.out.String(), nil
}

type renderer struct {
	ctx  *starctx.ExecutionContext
	file string
	out  strings.Builder
}

func (r *renderer) renderNodes(nodes []Node, locals starlark.StringDict) error {
	for _, node := range nodes {
		var err error
		switch n := node.(type) {
		case *TextNode:
			r.out.WriteString(n.Text)
		case *ExprNode:
			err = r.renderExpr(n, locals)
		case *ForBlock:
			err = r.renderFor(n, locals)
		case *IfBlock:
			err = r.renderIf(n, locals)
		default:
			err = NewRenderErrorf(node.Pos(), "unexpected node %T", node)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) renderExpr(n *ExprNode, locals starlark.StringDict) error {
	if n.Expr == "" {
		return NewRenderError(n.Pos(), "empty expression")
	}
	s, err := r.ctx.EvalString(n.Expr, r.file, n.Pos().Line, locals)
	if err != nil {
		return WrapRenderError(n.Pos(), "expression failed", err)
	}
	r.out.WriteString(s)
	return nil
}

func (r *renderer) renderFor(n *ForBlock, locals starlark.StringDict) error {
	v, err := r.ctx.Eval(n.IterExpr, r.file, n.Pos().Line, locals)
	if err != nil {
		return WrapRenderError(n.Pos(), "loop expression failed", err)
	}
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return NewRenderErrorf(n.Pos(), "cannot iterate over %s", v.Type())
	}

	vars := n.Vars()
	iter := iterable.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		scope := make(starlark.StringDict, len(locals)+len(vars))
		for k, val := range locals {
			scope[k] = val
		}
		if err := bindLoopVars(scope, vars, item); err != nil {
			return WrapRenderError(n.Pos(), "cannot bind loop variables", err)
		}
		if err := r.renderNodes(n.Body, scope); err != nil {
			return err
		}
	}
	return nil
}

func bindLoopVars(scope starlark.StringDict, vars []string, item starlark.Value) error {
	if len(vars) == 1 {
		scope[vars[0]] = item
		return nil
	}
	seq, ok := item.(starlark.Indexable)
	if !ok {
		return fmt.Errorf("cannot unpack %s into %d variables", item.Type(), len(vars))
	}
	if seq.Len() != len(vars) {
		return fmt.Errorf("cannot unpack %d values into %d variables", seq.Len(), len(vars))
	}
	for i, name := range vars {
		scope[name] = seq.Index(i)
	}
	return nil
}

func (r *renderer) renderIf(n *IfBlock, locals starlark.StringDict) error {
	ok, err := r.truth(n.Condition, n.Pos(), locals)
	if err != nil {
		return err
	}
	if ok {
		return r.renderNodes(n.Body, locals)
	}

	for _, branch := range n.ElseIfs {
		ok, err := r.truth(branch.Condition, branch.pos, locals)
		if err != nil {
			return err
		}
		if ok {
			return r.renderNodes(branch.Body, locals)
		}
	}

	return r.renderNodes(n.Else, locals)
}

func (r *renderer) truth(cond string, pos Position, locals starlark.StringDict) (bool, error) {
	v, err := r.ctx.Eval(cond, r.file, pos.Line, locals)
	if err != nil {
		return false, WrapRenderError(pos, "condition failed", err)
	}
	return bool(v.Truth()), nil
}
