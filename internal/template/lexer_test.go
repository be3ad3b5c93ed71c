package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tok struct {
	typ TokenType
	val string
}

func tokenize(t *testing.T, input string) []Token {
	t.Helper()
	tokens, err := NewLexer(input, "test.tmpl").Tokenize()
	require.NoError(t, err, "input %q", input)
	return tokens
}

func TestLexer_Tokens(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []tok
	}{
		{
			name:     "plain text",
			input:    "SELECT * FROM users",
			expected: []tok{{TokenText, "SELECT * FROM users"}, {TokenEOF, ""}},
		},
		{
			name:  "simple expression",
			input: "SELECT {{ column }} FROM users",
			expected: []tok{
				{TokenText, "SELECT "},
				{TokenExpr, "column"},
				{TokenText, " FROM users"},
				{TokenEOF, ""},
			},
		},
		{
			name:  "adjacent expressions",
			input: "{{ a }} + {{ b }}",
			expected: []tok{
				{TokenExpr, "a"},
				{TokenText, " + "},
				{TokenExpr, "b"},
				{TokenEOF, ""},
			},
		},
		{
			name:     "statement",
			input:    "{* for x in items: *}",
			expected: []tok{{TokenStmt, "for x in items:"}, {TokenEOF, ""}},
		},
		{
			name:     "dict literal",
			input:    `{{ {"key": "value"} }}`,
			expected: []tok{{TokenExpr, `{"key": "value"}`}, {TokenEOF, ""}},
		},
		{
			name:     "closing delimiter inside string",
			input:    `{{ "a}}b" }}`,
			expected: []tok{{TokenExpr, `"a}}b"`}, {TokenEOF, ""}},
		},
		{
			name:     "escaped quote inside string",
			input:    `{{ 'it\'s' }}`,
			expected: []tok{{TokenExpr, `'it\'s'`}, {TokenEOF, ""}},
		},
		{
			name:     "statement delimiter inside string",
			input:    `{* if x == "*}": *}`,
			expected: []tok{{TokenStmt, `if x == "*}":`}, {TokenEOF, ""}},
		},
		{
			name:  "comment dropped",
			input: "a{# ignored {{ x }} #}b",
			expected: []tok{
				{TokenText, "a"},
				{TokenText, "b"},
				{TokenEOF, ""},
			},
		},
		{
			name:     "empty expression",
			input:    "{{ }}",
			expected: []tok{{TokenExpr, ""}, {TokenEOF, ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := tokenize(t, tt.input)
			require.Len(t, tokens, len(tt.expected))
			for i, exp := range tt.expected {
				assert.Equal(t, exp.typ, tokens[i].Type, "token[%d] type", i)
				assert.Equal(t, exp.val, tokens[i].Value, "token[%d] value", i)
			}
		})
	}
}

func TestLexer_BlockStructure(t *testing.T) {
	input := `{* if rows: *}
{* for row in rows: *}
    {{ row.name }},
{* endfor *}
{* else: *}
none
{* endif *}`

	var types []TokenType
	for _, tk := range tokenize(t, input) {
		types = append(types, tk.Type)
	}

	assert.Equal(t, []TokenType{
		TokenStmt, // if
		TokenText,
		TokenStmt, // for
		TokenText,
		TokenExpr,
		TokenText,
		TokenStmt, // endfor
		TokenText,
		TokenStmt, // else
		TokenText,
		TokenStmt, // endif
		TokenEOF,
	}, types)
}

func TestLexer_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"unclosed expression", "SELECT {{ column FROM users", 1},
		{"unclosed statement", "{* for x in items: SELECT", 1},
		{"unclosed comment", "a\n{# never closed", 2},
		{"unterminated string", `{{ "abc }}`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLexer(tt.input, "test.tmpl").Tokenize()
			require.Error(t, err)

			var lexErr *LexError
			require.ErrorAs(t, err, &lexErr)
			assert.Equal(t, tt.line, lexErr.Position().Line)
			assert.Equal(t, "test.tmpl", lexErr.Position().File)
		})
	}
}

func TestLexer_PositionTracking(t *testing.T) {
	tokens := tokenize(t, "line1\nline2\n  {{ expr }}")

	require.Equal(t, TokenExpr, tokens[1].Type)
	assert.Equal(t, 3, tokens[1].Pos.Line)
	assert.Equal(t, 3, tokens[1].Pos.Column)
}

func TestLexer_WhitespaceTrimmedInsideDelimiters(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"{{  x  }}", "x"},
		{"{{x}}", "x"},
		{"{{  x + y  }}", "x + y"},
		{"{*  for x in y:  *}", "for x in y:"},
		{"{{\n  db1.users | length\n}}", "db1.users | length"},
	}

	for _, tt := range tests {
		tokens := tokenize(t, tt.input)
		assert.Equal(t, tt.expected, tokens[0].Value, "input %q", tt.input)
	}
}
