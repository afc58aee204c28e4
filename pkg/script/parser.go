package script

import (
	"fmt"
	"strconv"
)

// Parse turns source text into an ordered statement list with source spans.
// The statement stream is the unit of capture: the engine instruments each
// top-level statement (and, for control constructs, each body statement).
func Parse(src string) ([]Stmt, error) {
	lex := newLexer(src)
	var toks []token
	for {
		tok, err := lex.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.typ == tokEOF {
			break
		}
	}
	p := &parser{toks: toks, lex: lex}
	return p.parseProgram()
}

type parser struct {
	toks []token
	pos  int
	lex  *lexer
}

func (p *parser) cur() token { return p.toks[p.pos] }

func (p *parser) la(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) skipNewlines() {
	for p.cur().typ == tokNewline {
		p.advance()
	}
}

func (p *parser) errf(tok token, format string, args ...any) error {
	return fmt.Errorf("%d:%d: %s", tok.line, tok.col, fmt.Sprintf(format, args...))
}

func (p *parser) expectOp(lit string) (token, error) {
	tok := p.cur()
	if tok.typ != tokOp || tok.lit != lit {
		return tok, p.errf(tok, "expected %q, found %q", lit, tok.lit)
	}
	return p.advance(), nil
}

func (p *parser) endStatement() error {
	tok := p.cur()
	switch tok.typ {
	case tokNewline:
		p.advance()
		return nil
	case tokEOF:
		return nil
	case tokOp:
		if tok.lit == "}" {
			return nil // block close terminates the last statement
		}
	}
	return p.errf(tok, "expected end of statement, found %q", tok.lit)
}

func (p *parser) parseProgram() ([]Stmt, error) {
	var stmts []Stmt
	p.skipNewlines()
	for p.cur().typ != tokEOF {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		p.skipNewlines()
	}
	return stmts, nil
}

// base builds the span/text bookkeeping for a statement starting at tok.
// The label is the first source line of the statement (block headers label
// the whole construct).
func (p *parser) base(start, end token) stmtBase {
	return stmtBase{
		span: Span{StartLine: start.line, StartCol: start.col, EndLine: end.line, EndCol: end.col},
		text: p.lex.lineText(start.line),
	}
}

func (p *parser) parseStmt() (Stmt, error) {
	tok := p.cur()
	if tok.typ == tokIdent {
		switch tok.lit {
		case "if":
			return p.parseIf()
		case "for":
			return p.parseFor()
		case "while":
			return p.parseWhile()
		case "repeat":
			return p.parseRepeat()
		case "func":
			return p.parseFunc()
		case "return":
			return p.parseReturn()
		case "source":
			return p.parseSource()
		}
		// Assignment: ident = expr (but not ==).
		if p.la(1).typ == tokOp && p.la(1).lit == "=" {
			return p.parseAssign()
		}
	}
	// Bare expression statement.
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	end := p.toks[p.pos-1]
	if err := p.endStatement(); err != nil {
		return nil, err
	}
	return &ExprStmt{stmtBase: p.base(tok, end), X: x}, nil
}

func (p *parser) parseAssign() (Stmt, error) {
	name := p.advance()
	p.advance() // =
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	end := p.toks[p.pos-1]
	if err := p.endStatement(); err != nil {
		return nil, err
	}
	return &AssignStmt{stmtBase: p.base(name, end), Name: name.lit, Value: x}, nil
}

// parseBlock parses `{ stmts }`, allowing newlines after the brace.
func (p *parser) parseBlock() ([]Stmt, token, error) {
	if _, err := p.expectOp("{"); err != nil {
		return nil, token{}, err
	}
	var stmts []Stmt
	p.skipNewlines()
	for {
		tok := p.cur()
		if tok.typ == tokEOF {
			return nil, token{}, p.errf(tok, "unexpected end of script, expected \"}\"")
		}
		if tok.typ == tokOp && tok.lit == "}" {
			end := p.advance()
			return stmts, end, nil
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, token{}, err
		}
		stmts = append(stmts, stmt)
		p.skipNewlines()
	}
}

func (p *parser) parseIf() (Stmt, error) {
	start := p.advance() // if
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, end, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var els []Stmt
	if p.cur().typ == tokIdent && p.cur().lit == "else" {
		p.advance()
		// else if chains parse as a single-statement else block.
		if p.cur().typ == tokIdent && p.cur().lit == "if" {
			chained, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			els = []Stmt{chained}
			end = p.toks[p.pos-1]
		} else {
			els, end, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
		}
	}
	if err := p.endStatement(); err != nil {
		return nil, err
	}
	return &IfStmt{stmtBase: p.base(start, end), Cond: cond, Then: then, Else: els}, nil
}

func (p *parser) parseFor() (Stmt, error) {
	start := p.advance() // for
	name := p.cur()
	if name.typ != tokIdent {
		return nil, p.errf(name, "expected loop variable, found %q", name.lit)
	}
	p.advance()
	if p.cur().typ != tokIdent || p.cur().lit != "in" {
		return nil, p.errf(p.cur(), "expected \"in\", found %q", p.cur().lit)
	}
	p.advance()
	iter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, end, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if err := p.endStatement(); err != nil {
		return nil, err
	}
	return &ForStmt{stmtBase: p.base(start, end), Var: name.lit, Iterable: iter, Body: body}, nil
}

func (p *parser) parseWhile() (Stmt, error) {
	start := p.advance() // while
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, end, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if err := p.endStatement(); err != nil {
		return nil, err
	}
	return &WhileStmt{stmtBase: p.base(start, end), Cond: cond, Body: body}, nil
}

func (p *parser) parseRepeat() (Stmt, error) {
	start := p.advance() // repeat
	count, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, end, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if err := p.endStatement(); err != nil {
		return nil, err
	}
	return &RepeatStmt{stmtBase: p.base(start, end), Count: count, Body: body}, nil
}

func (p *parser) parseFunc() (Stmt, error) {
	start := p.advance() // func
	name := p.cur()
	if name.typ != tokIdent {
		return nil, p.errf(name, "expected function name, found %q", name.lit)
	}
	p.advance()
	if _, err := p.expectOp("("); err != nil {
		return nil, err
	}
	var params []string
	for {
		tok := p.cur()
		if tok.typ == tokOp && tok.lit == ")" {
			p.advance()
			break
		}
		if tok.typ != tokIdent {
			return nil, p.errf(tok, "expected parameter name, found %q", tok.lit)
		}
		params = append(params, tok.lit)
		p.advance()
		if p.cur().typ == tokOp && p.cur().lit == "," {
			p.advance()
		}
	}
	body, end, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if err := p.endStatement(); err != nil {
		return nil, err
	}
	return &FuncStmt{stmtBase: p.base(start, end), Name: name.lit, Params: params, Body: body}, nil
}

func (p *parser) parseReturn() (Stmt, error) {
	start := p.advance() // return
	var x Expr
	if tok := p.cur(); tok.typ != tokNewline && tok.typ != tokEOF && !(tok.typ == tokOp && tok.lit == "}") {
		var err error
		x, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	end := p.toks[p.pos-1]
	if err := p.endStatement(); err != nil {
		return nil, err
	}
	return &ReturnStmt{stmtBase: p.base(start, end), Value: x}, nil
}

func (p *parser) parseSource() (Stmt, error) {
	start := p.advance() // source
	tok := p.cur()
	if tok.typ != tokString {
		return nil, p.errf(tok, "expected script path string after source")
	}
	p.advance()
	if err := p.endStatement(); err != nil {
		return nil, err
	}
	return &SourceStmt{stmtBase: p.base(start, tok), Path: tok.lit}, nil
}

// Expression parsing: classic precedence-climbing recursive descent.

var binaryPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3,
	"<": 4, "<=": 4, ">": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

func (p *parser) parseExpr() (Expr, error) {
	return p.parseBinary(1)
}

func (p *parser) parseBinary(minPrec int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.cur()
		if tok.typ != tokOp {
			return left, nil
		}
		prec, ok := binaryPrec[tok.lit]
		if !ok || prec < minPrec {
			return left, nil
		}
		p.advance()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{
			exprBase: exprBase{span: spanOf(left)},
			Op:       tok.lit,
			Left:     left,
			Right:    right,
		}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	tok := p.cur()
	if tok.typ == tokOp && (tok.lit == "-" || tok.lit == "!") {
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{exprBase: exprBase{span: tokSpan(tok)}, Op: tok.lit, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.cur().typ == tokOp && p.cur().lit == "[" {
		p.advance()
		idx, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectOp("]"); err != nil {
			return nil, err
		}
		x = &IndexExpr{exprBase: exprBase{span: spanOf(x)}, X: x, Index: idx}
	}
	return x, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.cur()
	switch tok.typ {
	case tokNumber:
		p.advance()
		f, err := strconv.ParseFloat(tok.lit, 64)
		if err != nil {
			return nil, p.errf(tok, "bad number %q", tok.lit)
		}
		return &NumberLit{exprBase: exprBase{span: tokSpan(tok)}, Value: f}, nil

	case tokString:
		p.advance()
		return &StringLit{exprBase: exprBase{span: tokSpan(tok)}, Value: tok.lit}, nil

	case tokIdent:
		switch tok.lit {
		case "true", "false":
			p.advance()
			return &BoolLit{exprBase: exprBase{span: tokSpan(tok)}, Value: tok.lit == "true"}, nil
		case "nil":
			p.advance()
			return &NilLit{exprBase: exprBase{span: tokSpan(tok)}}, nil
		}
		p.advance()
		if p.cur().typ == tokOp && p.cur().lit == "(" {
			return p.parseCall(tok)
		}
		return &Ident{exprBase: exprBase{span: tokSpan(tok)}, Name: tok.lit}, nil

	case tokOp:
		switch tok.lit {
		case "(":
			p.advance()
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return x, nil
		case "[":
			return p.parseList()
		}
	}
	return nil, p.errf(tok, "unexpected token %q", tok.lit)
}

func (p *parser) parseCall(callee token) (Expr, error) {
	p.advance() // (
	var args []Expr
	for {
		tok := p.cur()
		if tok.typ == tokOp && tok.lit == ")" {
			p.advance()
			break
		}
		if tok.typ == tokEOF {
			return nil, p.errf(tok, "unexpected end of script in call")
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.cur().typ == tokOp && p.cur().lit == "," {
			p.advance()
		}
	}
	return &CallExpr{exprBase: exprBase{span: tokSpan(callee)}, Callee: callee.lit, Args: args}, nil
}

func (p *parser) parseList() (Expr, error) {
	start := p.advance() // [
	var elems []Expr
	for {
		tok := p.cur()
		if tok.typ == tokOp && tok.lit == "]" {
			p.advance()
			break
		}
		if tok.typ == tokEOF {
			return nil, p.errf(tok, "unexpected end of script in list")
		}
		el, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, el)
		if p.cur().typ == tokOp && p.cur().lit == "," {
			p.advance()
		}
	}
	return &ListLit{exprBase: exprBase{span: tokSpan(start)}, Elems: elems}, nil
}

func tokSpan(tok token) Span {
	return Span{StartLine: tok.line, StartCol: tok.col, EndLine: tok.line, EndCol: tok.col + len(tok.lit)}
}

func spanOf(x Expr) Span { return x.ExprSpan() }
