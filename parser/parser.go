// Package parser builds the AST of package ast from a lexer.Token stream.
// Like the lexer, the parser is an out-of-scope collaborator per spec.md
// section 1, implemented thin: one statement per source line (the teacher's
// own convention - KTStephano-GVM/vm/compile.go processes input strictly
// line by line), with the one necessary exception that a label and an
// instruction may share a line ("_start: mov q0,1" in spec.md section 8's
// hello-world example).
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"nyx/ast"
	"nyx/lexer"
)

// Parser consumes a token slice and an interner shared with the rest of the
// compile pipeline (so identifiers defined in one file resolve to the same
// ID when referenced from an included file).
type Parser struct {
	file    string
	toks    []lexer.Token
	pos     int
	interner *ast.Interner
}

// New returns a parser over toks, interning identifiers into interner.
func New(file string, toks []lexer.Token, interner *ast.Interner) *Parser {
	return &Parser{file: file, toks: toks, interner: interner}
}

// ParseFile parses the complete statement list of a file.
func (p *Parser) ParseFile() ([]ast.Stmt, error) {
	var out []ast.Stmt
	for {
		for p.peek().Kind == lexer.Newline {
			p.next()
		}
		if p.peek().Kind == lexer.EOF {
			return out, nil
		}
		lineStmts, err := p.parseLineStatements()
		if err != nil {
			return nil, err
		}
		out = append(out, lineStmts...)
		if p.peek().Kind != lexer.EOF {
			if p.peek().Kind != lexer.Newline {
				return nil, p.errorf("expected end of line, got %q", p.peek().Text)
			}
			p.next()
		}
	}
}

func (p *Parser) peek() lexer.Token {
	return p.toks[p.pos]
}

func (p *Parser) peekAt(n int) lexer.Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *Parser) next() lexer.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%s: %s", p.peek().Span, fmt.Sprintf(format, args...))
}

func (p *Parser) expect(k lexer.Kind, what string) (lexer.Token, error) {
	if p.peek().Kind != k {
		return lexer.Token{}, p.errorf("expected %s, got %q", what, p.peek().Text)
	}
	return p.next(), nil
}

func (p *Parser) parseLineStatements() ([]ast.Stmt, error) {
	var out []ast.Stmt
	for {
		if p.peek().Kind == lexer.Newline || p.peek().Kind == lexer.EOF {
			break
		}
		stmt, err := p.parseOneStatement()
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
		if _, ok := stmt.(*ast.LabelStmt); ok {
			continue
		}
		break
	}
	return out, nil
}

func (p *Parser) parseOneStatement() (ast.Stmt, error) {
	tok := p.peek()
	switch tok.Kind {
	case lexer.Hash:
		return p.parsePreprocessorDirective()
	case lexer.Dot:
		return p.parseDotDirective()
	case lexer.Ident:
		if p.peekAt(1).Kind == lexer.Colon {
			name := p.next()
			p.next() // colon
			return ast.NewLabelStmt(name.Span, p.interner.Intern(name.Text)), nil
		}
		return p.parseInstruction()
	default:
		return nil, p.errorf("unexpected token %q", tok.Text)
	}
}

func (p *Parser) parseDotDirective() (ast.Stmt, error) {
	start := p.next() // '.'
	name, err := p.expect(lexer.Ident, "directive name")
	if err != nil {
		return nil, err
	}
	span := start.Span.Merge(name.Span)
	switch strings.ToLower(name.Text) {
	case "section":
		sec, err := p.expect(lexer.Ident, "section name")
		if err != nil {
			return nil, err
		}
		return ast.NewSectionStmt(span, strings.ToLower(sec.Text)), nil
	case "entry":
		target, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ast.NewEntryStmt(span, target), nil
	case "ascii", "asciz":
		str, err := p.expect(lexer.String, "string literal")
		if err != nil {
			return nil, err
		}
		return ast.NewAsciiStmt(span, p.interner.Intern(str.Text), strings.ToLower(name.Text) == "asciz"), nil
	case "extern":
		id, err := p.expect(lexer.Ident, "extern name")
		if err != nil {
			return nil, err
		}
		return ast.NewExternStmt(span, p.interner.Intern(id.Text)), nil
	default:
		return nil, p.errorf("unknown directive .%s", name.Text)
	}
}

func (p *Parser) parsePreprocessorDirective() (ast.Stmt, error) {
	start := p.next() // '#'
	name, err := p.expect(lexer.Ident, "preprocessor directive")
	if err != nil {
		return nil, err
	}
	span := start.Span.Merge(name.Span)
	switch strings.ToLower(name.Text) {
	case "define":
		id, err := p.expect(lexer.Ident, "macro name")
		if err != nil {
			return nil, err
		}
		var value ast.Expr
		if p.peek().Kind != lexer.Newline && p.peek().Kind != lexer.EOF {
			value, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		return ast.NewDefineStmt(span, p.interner.Intern(id.Text), value), nil
	case "include":
		str, err := p.expect(lexer.String, "include path")
		if err != nil {
			return nil, err
		}
		return ast.NewIncludeStmt(span, p.interner.Intern(str.Text)), nil
	case "ifdef", "ifndef":
		id, err := p.expect(lexer.Ident, "macro name")
		if err != nil {
			return nil, err
		}
		return ast.NewIfdefStmt(span, p.interner.Intern(id.Text), strings.ToLower(name.Text) == "ifndef"), nil
	case "else":
		return ast.NewElseStmt(span), nil
	case "endif":
		return ast.NewEndifStmt(span), nil
	case "error":
		msg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ast.NewErrorStmt(span, msg), nil
	default:
		return nil, p.errorf("unknown preprocessor directive #%s", name.Text)
	}
}

var dataDirectives = map[string]ast.DataSize{
	"db": ast.Byte,
	"dw": ast.Word,
	"dd": ast.Dword,
	"dq": ast.Qword,
}

func (p *Parser) parseInstruction() (ast.Stmt, error) {
	mnemonicTok := p.next()
	mnemonic := strings.ToLower(mnemonicTok.Text)

	if size, ok := dataDirectives[mnemonic]; ok {
		values, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		return ast.NewDataDeclStmt(mnemonicTok.Span, size, values), nil
	}
	if mnemonic == "resb" {
		count, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ast.NewResbStmt(mnemonicTok.Span, count), nil
	}

	var operands []ast.Expr
	if p.peek().Kind != lexer.Newline && p.peek().Kind != lexer.EOF {
		var err error
		operands, err = p.parseExprList()
		if err != nil {
			return nil, err
		}
	}
	return ast.NewInstrStmt(mnemonicTok.Span, mnemonic, operands), nil
}

func (p *Parser) parseExprList() ([]ast.Expr, error) {
	var out []ast.Expr
	// A leading data-size keyword (sti/push/pop) is its own operand and may
	// be followed by the next operand without a comma: `push qword q0`.
	if tok := p.peek(); tok.Kind == lexer.Ident {
		if _, ok := ast.ParseDataSize(strings.ToLower(tok.Text)); ok {
			size, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			out = append(out, size)
			switch p.peek().Kind {
			case lexer.Newline, lexer.EOF:
				return out, nil
			case lexer.Comma:
				p.next()
			}
		}
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	out = append(out, first)
	for p.peek().Kind == lexer.Comma {
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// parseExpr parses the flat, left-associative binary operator chain fixed
// by SPEC_FULL.md: {+ - * / | & ^} with no precedence beyond left-to-right.
func (p *Parser) parseExpr() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := binOpFor(p.peek().Kind)
		if !ok {
			return left, nil
		}
		opTok := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinaryExpr(left.Span().Merge(right.Span()), op, left, right)
		_ = opTok
	}
}

func binOpFor(k lexer.Kind) (string, bool) {
	switch k {
	case lexer.Plus:
		return "+", true
	case lexer.Minus:
		return "-", true
	case lexer.Star:
		return "*", true
	case lexer.Slash:
		return "/", true
	case lexer.Pipe:
		return "|", true
	case lexer.Amp:
		return "&", true
	case lexer.Caret:
		return "^", true
	default:
		return "", false
	}
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	switch p.peek().Kind {
	case lexer.Minus:
		tok := p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewUnaryExpr(tok.Span.Merge(x.Span()), "-", x), nil
	case lexer.Tilde:
		tok := p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewUnaryExpr(tok.Span.Merge(x.Span()), "~", x), nil
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	tok := p.peek()
	switch tok.Kind {
	case lexer.Int:
		p.next()
		v, err := parseIntLiteral(tok.Text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tok.Span, err)
		}
		return ast.NewIntLiteral(tok.Span, v), nil
	case lexer.Float:
		p.next()
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tok.Span, err)
		}
		return ast.NewFloatLiteral(tok.Span, v), nil
	case lexer.String:
		p.next()
		return ast.NewStringLiteral(tok.Span, p.interner.Intern(tok.Text)), nil
	case lexer.Char:
		p.next()
		return ast.NewIntLiteral(tok.Span, int64(tok.Text[0])), nil
	case lexer.LBrack:
		return p.parseAddress()
	case lexer.Ident:
		p.next()
		lower := strings.ToLower(tok.Text)
		if reg, ok := ast.ParseRegisterName(lower); ok {
			return ast.NewRegisterExpr(tok.Span, reg), nil
		}
		if size, ok := ast.ParseDataSize(lower); ok {
			return ast.NewDataSizeExpr(tok.Span, size), nil
		}
		return ast.NewIdentifier(tok.Span, p.interner.Intern(tok.Text)), nil
	default:
		return nil, p.errorf("expected expression, got %q", tok.Text)
	}
}

func (p *Parser) parseAddress() (ast.Expr, error) {
	open := p.next() // '['
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	var offset ast.Expr
	if p.peek().Kind == lexer.Plus || p.peek().Kind == lexer.Minus {
		neg := p.peek().Kind == lexer.Minus
		opTok := p.next()
		off, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if neg {
			off = ast.NewUnaryExpr(opTok.Span.Merge(off.Span()), "-", off)
		}
		offset = off
	}
	close, err := p.expect(lexer.RBrack, "]")
	if err != nil {
		return nil, err
	}
	return ast.NewAddressExpr(open.Span.Merge(close.Span), base, offset), nil
}

func parseIntLiteral(text string) (int64, error) {
	switch {
	case strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X"):
		v, err := strconv.ParseUint(text[2:], 16, 64)
		return int64(v), err
	case strings.HasPrefix(text, "0b") || strings.HasPrefix(text, "0B"):
		v, err := strconv.ParseUint(text[2:], 2, 64)
		return int64(v), err
	case strings.HasPrefix(text, "0o") || strings.HasPrefix(text, "0O"):
		v, err := strconv.ParseUint(text[2:], 8, 64)
		return int64(v), err
	default:
		v, err := strconv.ParseUint(text, 10, 64)
		return int64(v), err
	}
}

// ParseSource is the convenience entry point used by the preprocessor's
// include handling and the CLI: lex then parse a single file's text.
func ParseSource(file, src string, interner *ast.Interner) ([]ast.Stmt, error) {
	toks, err := lexer.New(file, src).Tokenize()
	if err != nil {
		return nil, err
	}
	return New(file, toks, interner).ParseFile()
}
