package template

import (
	"errors"
	"fmt"
)

// Error is implemented by every error the template package returns.
type Error interface {
	error
	Position() Position
}

// IsTemplateError reports whether err, or an error it wraps, came from
// lexing, parsing or rendering a template.
func IsTemplateError(err error) bool {
	var te Error
	return errors.As(err, &te)
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// located is embedded by the concrete error types.
type located struct {
	pos Position
	msg string
}

func (e *located) Position() Position { return e.pos }
func (e *located) Error() string      { return e.pos.String() + ": " + e.msg }

// LexError is an unterminated delimiter or string.
type LexError struct{ located }

// NewLexError creates a lexer error.
func NewLexError(pos Position, msg string) *LexError {
	return &LexError{located{pos: pos, msg: msg}}
}

// ParseError is a malformed statement.
type ParseError struct{ located }

// NewParseErrorf creates a parser error.
func NewParseErrorf(pos Position, format string, args ...any) *ParseError {
	return &ParseError{located{pos: pos, msg: fmt.Sprintf(format, args...)}}
}

// RenderError is a failure while evaluating a parsed template. Cause holds
// the Starlark evaluation error, if any.
type RenderError struct {
	located
	Cause error
}

// NewRenderError creates a render error.
func NewRenderError(pos Position, msg string) *RenderError {
	return &RenderError{located: located{pos: pos, msg: msg}}
}

// NewRenderErrorf creates a render error from a format string.
func NewRenderErrorf(pos Position, format string, args ...any) *RenderError {
	return NewRenderError(pos, fmt.Sprintf(format, args...))
}

// WrapRenderError creates a render error caused by err.
func WrapRenderError(pos Position, msg string, err error) *RenderError {
	return &RenderError{located: located{pos: pos, msg: msg}, Cause: err}
}

func (e *RenderError) Error() string {
	if e.Cause == nil {
		return e.located.Error()
	}
	return fmt.Sprintf("%s: %v", e.located.Error(), e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// UnmatchedBlockError is a block opener without its closer, or a closer
// without its opener. BlockKind is the offending statement.
type UnmatchedBlockError struct {
	located
	BlockKind StmtKind
}

var unmatchedMessages = map[StmtKind]string{
	StmtFor:    "unclosed 'for' block (missing 'endfor')",
	StmtIf:     "unclosed 'if' block (missing 'endif')",
	StmtEndFor: "'endfor' without matching 'for'",
	StmtEndIf:  "'endif' without matching 'if'",
	StmtElse:   "'else' without matching 'if'",
	StmtElif:   "'elif' without matching 'if'",
}

// NewUnmatchedBlockError creates an unmatched block error for kind.
func NewUnmatchedBlockError(pos Position, kind StmtKind) *UnmatchedBlockError {
	msg, ok := unmatchedMessages[kind]
	if !ok {
		msg = "unmatched block: " + kind.String()
	}
	return &UnmatchedBlockError{located: located{pos: pos, msg: msg}, BlockKind: kind}
}
