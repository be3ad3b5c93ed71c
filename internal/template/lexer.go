package template

import (
	"strings"
	"unicode/utf8"
)

// TokenType identifies the type of token.
type TokenType int

// TokenType constants for template token types.
const (
	TokenText TokenType = iota // literal text
	TokenExpr                  // content between {{ and }}
	TokenStmt                  // content between {* and *}
	TokenEOF
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "TEXT"
	case TokenExpr:
		return "EXPR"
	case TokenStmt:
		return "STMT"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Delimiters recognised by the lexer.
const (
	exprOpen     = "{{"
	exprClose    = "}}"
	stmtOpen     = "{*"
	stmtClose    = "*}"
	commentOpen  = "{#"
	commentClose = "#}"
)

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string
	Pos   Position
}

// Lexer tokenizes a template string.
// Comments ({# ... #}) are consumed and never produce tokens.
type Lexer struct {
	input string
	file  string
	pos   int
	line  int
	col   int

	startLine int
	startCol  int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input, file string) *Lexer {
	return &Lexer{input: input, file: file, line: 1, col: 1}
}

// Tokenize converts the input into a slice of tokens ending with TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) next() (Token, error) {
	for {
		if l.pos >= len(l.input) {
			return Token{Type: TokenEOF, Pos: l.position()}, nil
		}
		switch {
		case l.at(commentOpen):
			if err := l.skipComment(); err != nil {
				return Token{}, err
			}
			continue
		case l.at(exprOpen):
			return l.scanTag(TokenExpr, exprOpen, exprClose, true, "unclosed expression: missing '}}'")
		case l.at(stmtOpen):
			return l.scanTag(TokenStmt, stmtOpen, stmtClose, false, "unclosed statement: missing '*}'")
		default:
			return l.scanText(), nil
		}
	}
}

func (l *Lexer) scanText() Token {
	l.mark()
	start := l.pos
	for l.pos < len(l.input) && !l.atDelimiter() {
		l.advance()
	}
	return Token{Type: TokenText, Value: l.input[start:l.pos], Pos: l.startPosition()}
}

// scanTag scans a delimited tag. Quoted strings inside the tag are skipped
// as a unit so that a closing delimiter inside a literal does not end it.
// When nested is true, braces are tracked so dict literals can appear in
// expressions.
func (l *Lexer) scanTag(typ TokenType, open, closeDelim string, nested bool, unclosed string) (Token, error) {
	l.mark()
	l.skipN(len(open))
	start := l.pos
	depth := 0

	for l.pos < len(l.input) {
		if depth == 0 && l.at(closeDelim) {
			value := strings.TrimSpace(l.input[start:l.pos])
			l.skipN(len(closeDelim))
			return Token{Type: typ, Value: value, Pos: l.startPosition()}, nil
		}

		switch r := l.peek(); {
		case r == '"' || r == '\'':
			if !l.skipQuoted(r) {
				return Token{}, NewLexError(l.startPosition(), unclosed)
			}
			continue
		case nested && r == '{':
			depth++
		case nested && r == '}' && depth > 0:
			depth--
		}
		l.advance()
	}

	return Token{}, NewLexError(l.startPosition(), unclosed)
}

func (l *Lexer) skipComment() error {
	l.mark()
	l.skipN(len(commentOpen))
	for l.pos < len(l.input) {
		if l.at(commentClose) {
			l.skipN(len(commentClose))
			return nil
		}
		l.advance()
	}
	return NewLexError(l.startPosition(), "unclosed comment: missing '#}'")
}

// skipQuoted advances past a quoted literal starting at the current
// position. It reports false if the literal is not terminated.
func (l *Lexer) skipQuoted(quote rune) bool {
	l.advance()
	for l.pos < len(l.input) {
		switch l.peek() {
		case '\\':
			l.advance()
		case quote:
			l.advance()
			return true
		}
		l.advance()
	}
	return false
}

func (l *Lexer) atDelimiter() bool {
	return l.at(exprOpen) || l.at(stmtOpen) || l.at(commentOpen)
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

func (l *Lexer) skipN(n int) {
	for i := 0; i < n; i++ {
		l.advance()
	}
}

func (l *Lexer) at(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

func (l *Lexer) mark() {
	l.startLine = l.line
	l.startCol = l.col
}

func (l *Lexer) position() Position {
	return Position{File: l.file, Line: l.line, Column: l.col}
}

func (l *Lexer) startPosition() Position {
	return Position{File: l.file, Line: l.startLine, Column: l.startCol}
}
