// Package template renders query and output templates.
//
// Templates mix literal text with Starlark expressions in {{ expr }}, control
// flow in {* stmt *} and comments in {# ... #}. Expressions may use pipe
// filters ({{ rows | length }}), which are rewritten to plain calls before
// evaluation.
package template

import "strings"

// Position tracks source location for error reporting.
type Position struct {
	File   string
	Line   int
	Column int
}

// Node is the interface for all template AST nodes.
type Node interface {
	Pos() Position
	node() // marker method to restrict implementation
}

// nodeBase provides common Position handling for all nodes.
type nodeBase struct {
	pos Position
}

func (n *nodeBase) Pos() Position { return n.pos }
func (n *nodeBase) node()         {}

// TextNode represents literal text (passed through unchanged).
type TextNode struct {
	nodeBase
	Text string
}

// ExprNode represents a {{ expr }} expression.
// The Expr field contains the Starlark expression source (without delimiters).
type ExprNode struct {
	nodeBase
	Expr string
}

// StmtKind identifies a {* ... *} statement by its keyword.
type StmtKind int

// Statement kinds.
const (
	StmtUnknown StmtKind = iota
	StmtFor              // {* for x in items: *}
	StmtEndFor           // {* endfor *}
	StmtIf               // {* if cond: *}
	StmtElif             // {* elif cond: *}
	StmtElse             // {* else: *}
	StmtEndIf            // {* endif *}
)

var stmtKeywords = [...]string{
	StmtUnknown: "unknown",
	StmtFor:     "for",
	StmtEndFor:  "endfor",
	StmtIf:      "if",
	StmtElif:    "elif",
	StmtElse:    "else",
	StmtEndIf:   "endif",
}

func (k StmtKind) String() string {
	if k < 0 || int(k) >= len(stmtKeywords) {
		return stmtKeywords[StmtUnknown]
	}
	return stmtKeywords[k]
}

// lookupStmt returns the kind introduced by keyword, or StmtUnknown.
func lookupStmt(keyword string) StmtKind {
	for k, kw := range stmtKeywords {
		if k != int(StmtUnknown) && kw == keyword {
			return StmtKind(k)
		}
	}
	return StmtUnknown
}

// StmtNode is a single classified statement tag. The parser folds
// statements into ForBlock and IfBlock nodes; StmtNode never appears in a
// parsed Template.
type StmtNode struct {
	nodeBase
	Kind    StmtKind
	Expr    string // condition (if, elif) or iterable (for)
	VarName string // for only
}

// ForBlock is a for loop with its body.
type ForBlock struct {
	nodeBase
	VarName  string // one name, or comma separated names to unpack each item
	IterExpr string
	Body     []Node
}

// Vars returns the loop variable names.
func (f *ForBlock) Vars() []string {
	parts := strings.Split(f.VarName, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// IfBlock is an if statement with its elif and else branches.
type IfBlock struct {
	nodeBase
	Condition string
	Body      []Node
	ElseIfs   []Branch
	Else      []Node // nil without else; empty for an empty else
}

// Branch is one elif branch.
type Branch struct {
	Condition string
	Body      []Node
	pos       Position
}

// Template is a parsed template. File names the template in errors.
type Template struct {
	Nodes []Node
	File  string
}
