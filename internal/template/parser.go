package template

import (
	"slices"
	"strings"
	"unicode"
)

// ParseString tokenizes and parses a template.
func ParseString(input, file string) (*Template, error) {
	tokens, err := NewLexer(input, file).Tokenize()
	if err != nil {
		return nil, err
	}
	return Parse(tokens, file)
}

// Parse builds a template from lexer tokens, pairing control statements
// into ForBlock and IfBlock nodes.
func Parse(tokens []Token, file string) (*Template, error) {
	p := &parser{tokens: tokens}
	nodes, end, err := p.parseNodes()
	if err != nil {
		return nil, err
	}
	if end != nil {
		return nil, NewUnmatchedBlockError(end.pos, end.Kind)
	}
	return &Template{Nodes: nodes, File: file}, nil
}

type parser struct {
	tokens []Token
	pos    int
}

// parseNodes consumes nodes until EOF or until a statement whose kind is in
// terminators. The terminating statement is returned so the caller can
// decide how to continue. Any other closing statement is an error.
func (p *parser) parseNodes(terminators ...StmtKind) ([]Node, *StmtNode, error) {
	var nodes []Node
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		p.pos++

		switch tok.Type {
		case TokenEOF:
			return nodes, nil, nil
		case TokenText:
			nodes = append(nodes, &TextNode{nodeBase: nodeBase{pos: tok.Pos}, Text: tok.Value})
		case TokenExpr:
			nodes = append(nodes, &ExprNode{nodeBase: nodeBase{pos: tok.Pos}, Expr: tok.Value})
		case TokenStmt:
			stmt, err := parseStatement(tok)
			if err != nil {
				return nil, nil, err
			}
			switch {
			case slices.Contains(terminators, stmt.Kind):
				return nodes, stmt, nil
			case stmt.Kind == StmtFor:
				block, err := p.parseFor(stmt)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, block)
			case stmt.Kind == StmtIf:
				block, err := p.parseIf(stmt)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, block)
			default:
				return nil, nil, NewUnmatchedBlockError(stmt.pos, stmt.Kind)
			}
		}
	}
	return nodes, nil, nil
}

func (p *parser) parseFor(stmt *StmtNode) (*ForBlock, error) {
	body, end, err := p.parseNodes(StmtEndFor)
	if err != nil {
		return nil, err
	}
	if end == nil {
		return nil, NewUnmatchedBlockError(stmt.pos, StmtFor)
	}
	return &ForBlock{
		nodeBase: stmt.nodeBase,
		VarName:  stmt.VarName,
		IterExpr: stmt.Expr,
		Body:     body,
	}, nil
}

func (p *parser) parseIf(stmt *StmtNode) (*IfBlock, error) {
	block := &IfBlock{nodeBase: stmt.nodeBase, Condition: stmt.Expr}

	body, end, err := p.parseNodes(StmtElif, StmtElse, StmtEndIf)
	if err != nil {
		return nil, err
	}
	block.Body = body

	for {
		if end == nil {
			return nil, NewUnmatchedBlockError(stmt.pos, StmtIf)
		}
		switch end.Kind {
		case StmtEndIf:
			return block, nil
		case StmtElif:
			branch := Branch{Condition: end.Expr, pos: end.pos}
			branch.Body, end, err = p.parseNodes(StmtElif, StmtElse, StmtEndIf)
			if err != nil {
				return nil, err
			}
			block.ElseIfs = append(block.ElseIfs, branch)
		case StmtElse:
			elseBody, next, err := p.parseNodes(StmtElif, StmtElse, StmtEndIf)
			if err != nil {
				return nil, err
			}
			if next != nil && next.Kind != StmtEndIf {
				return nil, NewParseErrorf(next.pos, "'%s' after 'else'", next.Kind)
			}
			if elseBody == nil {
				elseBody = []Node{}
			}
			block.Else = elseBody
			end = next
		}
	}
}

// parseStatement classifies the content of a {* ... *} tag.
// A trailing colon is optional.
func parseStatement(tok Token) (*StmtNode, error) {
	src := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(tok.Value), ":"))
	keyword, rest, _ := strings.Cut(src, " ")
	rest = strings.TrimSpace(rest)

	stmt := &StmtNode{nodeBase: nodeBase{pos: tok.Pos}, Kind: lookupStmt(keyword)}

	switch stmt.Kind {
	case StmtFor:
		vars, iter, ok := strings.Cut(rest, " in ")
		vars, iter = strings.TrimSpace(vars), strings.TrimSpace(iter)
		if !ok || iter == "" {
			return nil, NewParseErrorf(tok.Pos, "invalid for statement %q: expected 'for <name> in <expr>'", tok.Value)
		}
		for _, name := range strings.Split(vars, ",") {
			if !isIdentifier(strings.TrimSpace(name)) {
				return nil, NewParseErrorf(tok.Pos, "invalid loop variable %q", strings.TrimSpace(name))
			}
		}
		stmt.VarName = vars
		stmt.Expr = iter
	case StmtIf, StmtElif:
		if rest == "" {
			return nil, NewParseErrorf(tok.Pos, "'%s' requires a condition", keyword)
		}
		stmt.Expr = rest
	case StmtElse, StmtEndFor, StmtEndIf:
		if rest != "" {
			return nil, NewParseErrorf(tok.Pos, "unexpected text after '%s': %q", keyword, rest)
		}
	default:
		return nil, NewParseErrorf(tok.Pos, "unknown statement %q", keyword)
	}

	return stmt, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
