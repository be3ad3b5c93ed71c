package starlark

import "go.starlark.net/syntax"

// pipeLevel ranks "|" and the operators that Starlark binds more tightly
// than it. A filter pipe binds tighter than any of them, so these operator
// runs are flattened and regrouped after filters are applied.
var pipeLevel = map[syntax.Token]int{
	syntax.PIPE:       1,
	syntax.CIRCUMFLEX: 2,
	syntax.AMP:        3,
	syntax.LTLT:       4,
	syntax.GTGT:       4,
	syntax.PLUS:       5,
	syntax.MINUS:      5,
	syntax.STAR:       6,
	syntax.PERCENT:    6,
	syntax.SLASH:      6,
	syntax.SLASHSLASH: 6,
}

// rewritePipes turns filter pipelines anywhere in e into nested calls:
//
//	users | length                      -> length(users)
//	rows | find_by_key_value("id", 3)   -> find_by_key_value(rows, "id", 3)
//	xs | length + 1                     -> length(xs) + 1
//	2 * xs | length                     -> 2 * length(xs)
//
// "a | b" is only a pipe when b is a filter name or a call of one, so
// bitwise and union expressions are left alone. e is modified in place.
func rewritePipes(e syntax.Expr, isFilter func(name string) bool) syntax.Expr {
	r := &pipeRewriter{isFilter: isFilter}
	return r.expr(e)
}

type pipeRewriter struct {
	isFilter func(name string) bool
}

type binaryOp struct {
	tok syntax.Token
	pos syntax.Position
}

func (r *pipeRewriter) expr(e syntax.Expr) syntax.Expr {
	switch x := e.(type) {
	case nil:
		return nil
	case *syntax.BinaryExpr:
		if _, ok := pipeLevel[x.Op]; ok {
			return r.operatorRun(x)
		}
		x.X = r.expr(x.X)
		x.Y = r.expr(x.Y)
	case *syntax.UnaryExpr:
		x.X = r.expr(x.X)
	case *syntax.ParenExpr:
		x.X = r.expr(x.X)
	case *syntax.CallExpr:
		x.Fn = r.expr(x.Fn)
		r.list(x.Args)
	case *syntax.DotExpr:
		x.X = r.expr(x.X)
	case *syntax.IndexExpr:
		x.X = r.expr(x.X)
		x.Y = r.expr(x.Y)
	case *syntax.SliceExpr:
		x.X = r.expr(x.X)
		x.Lo = r.expr(x.Lo)
		x.Hi = r.expr(x.Hi)
		x.Step = r.expr(x.Step)
	case *syntax.ListExpr:
		r.list(x.List)
	case *syntax.TupleExpr:
		r.list(x.List)
	case *syntax.DictExpr:
		r.list(x.List)
	case *syntax.DictEntry:
		x.Key = r.expr(x.Key)
		x.Value = r.expr(x.Value)
	case *syntax.CondExpr:
		x.Cond = r.expr(x.Cond)
		x.True = r.expr(x.True)
		x.False = r.expr(x.False)
	case *syntax.Comprehension:
		x.Body = r.expr(x.Body)
		for _, clause := range x.Clauses {
			switch c := clause.(type) {
			case *syntax.ForClause:
				c.X = r.expr(c.X)
			case *syntax.IfClause:
				c.Cond = r.expr(c.Cond)
			}
		}
	case *syntax.LambdaExpr:
		x.Body = r.expr(x.Body)
	}
	return e
}

func (r *pipeRewriter) list(exprs []syntax.Expr) {
	for i, e := range exprs {
		exprs[i] = r.expr(e)
	}
}

// operatorRun handles a maximal run of "|" and tighter binary operators.
// Each pipe into a filter is folded into its left neighbour before the run
// is regrouped by precedence.
func (r *pipeRewriter) operatorRun(b *syntax.BinaryExpr) syntax.Expr {
	var (
		operands []syntax.Expr
		ops      []binaryOp
	)
	r.flatten(b, &operands, &ops)

	kept := []syntax.Expr{operands[0]}
	var keptOps []binaryOp
	for i, op := range ops {
		next := operands[i+1]
		if op.tok == syntax.PIPE {
			if call := r.filterCall(kept[len(kept)-1], next); call != nil {
				kept[len(kept)-1] = call
				continue
			}
		}
		kept = append(kept, next)
		keptOps = append(keptOps, op)
	}
	return regroup(kept, keptOps)
}

func (r *pipeRewriter) flatten(e syntax.Expr, operands *[]syntax.Expr, ops *[]binaryOp) {
	if b, ok := e.(*syntax.BinaryExpr); ok {
		if _, run := pipeLevel[b.Op]; run {
			r.flatten(b.X, operands, ops)
			*ops = append(*ops, binaryOp{tok: b.Op, pos: b.OpPos})
			r.flatten(b.Y, operands, ops)
			return
		}
	}
	*operands = append(*operands, r.expr(e))
}

// filterCall returns the call applying filter to target, or nil when filter
// does not name a filter.
func (r *pipeRewriter) filterCall(target, filter syntax.Expr) syntax.Expr {
	switch f := filter.(type) {
	case *syntax.Ident:
		if r.isFilter(f.Name) {
			return &syntax.CallExpr{Fn: f, Lparen: f.NamePos, Args: []syntax.Expr{target}, Rparen: f.NamePos}
		}
	case *syntax.CallExpr:
		if id, ok := f.Fn.(*syntax.Ident); ok && r.isFilter(id.Name) {
			f.Args = append([]syntax.Expr{target}, f.Args...)
			return f
		}
	}
	return nil
}

// regroup rebuilds left-associative binary expressions from operands and
// the operators between them.
func regroup(operands []syntax.Expr, ops []binaryOp) syntax.Expr {
	vals := []syntax.Expr{operands[0]}
	var pending []binaryOp

	reduce := func() {
		op := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		x, y := vals[len(vals)-2], vals[len(vals)-1]
		vals = append(vals[:len(vals)-2], &syntax.BinaryExpr{X: x, OpPos: op.pos, Op: op.tok, Y: y})
	}

	for i, op := range ops {
		for len(pending) > 0 && pipeLevel[pending[len(pending)-1].tok] >= pipeLevel[op.tok] {
			reduce()
		}
		pending = append(pending, op)
		vals = append(vals, operands[i+1])
	}
	for len(pending) > 0 {
		reduce()
	}
	return vals[0]
}
