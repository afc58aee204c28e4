package script

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokNewline
	tokIdent
	tokNumber
	tokString
	tokOp
)

type token struct {
	typ  tokenType
	lit  string
	line int
	col  int
}

// lexer turns source text into a token stream with line/column positions.
// The newline token is significant: it terminates statements.
type lexer struct {
	src   []rune
	pos   int
	line  int
	col   int
	lines []string
}

func newLexer(src string) *lexer {
	return &lexer{
		src:   []rune(src),
		line:  1,
		col:   1,
		lines: strings.Split(src, "\n"),
	}
}

// lineText returns the raw source of a 1-based line, for statement labels.
func (l *lexer) lineText(line int) string {
	if line < 1 || line > len(l.lines) {
		return ""
	}
	return strings.TrimSpace(l.lines[line-1])
}

func (l *lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *lexer) advance() rune {
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

// next returns the next token. Comments run from '#' to end of line and are
// skipped; the terminating newline is still emitted.
func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) {
		r := l.peek()
		switch {
		case r == '#':
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
		case r == '\n' || r == ';':
			tok := token{typ: tokNewline, lit: string(r), line: l.line, col: l.col}
			l.advance()
			return tok, nil
		case r == ' ' || r == '\t' || r == '\r':
			l.advance()
		case unicode.IsDigit(r):
			return l.scanNumber(), nil
		case r == '"':
			return l.scanString()
		case unicode.IsLetter(r) || r == '_':
			return l.scanIdent(), nil
		default:
			return l.scanOp()
		}
	}
	return token{typ: tokEOF, line: l.line, col: l.col}, nil
}

func (l *lexer) scanNumber() token {
	line, col := l.line, l.col
	var b strings.Builder
	for l.pos < len(l.src) && (unicode.IsDigit(l.peek()) || l.peek() == '.') {
		b.WriteRune(l.advance())
	}
	return token{typ: tokNumber, lit: b.String(), line: line, col: col}
}

func (l *lexer) scanString() (token, error) {
	line, col := l.line, l.col
	l.advance() // opening quote
	var b strings.Builder
	for {
		if l.pos >= len(l.src) || l.peek() == '\n' {
			return token{}, fmt.Errorf("%d:%d: unterminated string", line, col)
		}
		r := l.advance()
		if r == '"' {
			break
		}
		if r == '\\' && l.pos < len(l.src) {
			switch esc := l.advance(); esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case '"':
				b.WriteRune('"')
			case '\\':
				b.WriteRune('\\')
			default:
				return token{}, fmt.Errorf("%d:%d: unknown escape \\%c", line, col, esc)
			}
			continue
		}
		b.WriteRune(r)
	}
	return token{typ: tokString, lit: b.String(), line: line, col: col}, nil
}

func (l *lexer) scanIdent() token {
	line, col := l.line, l.col
	var b strings.Builder
	for l.pos < len(l.src) && (unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_') {
		b.WriteRune(l.advance())
	}
	return token{typ: tokIdent, lit: b.String(), line: line, col: col}
}

// twoCharOps are recognized before their single-char prefixes.
var twoCharOps = []string{"==", "!=", "<=", ">=", "&&", "||"}

const singleCharOps = "+-*/%<>=!(),[]{}"

func (l *lexer) scanOp() (token, error) {
	line, col := l.line, l.col
	two := string(l.peek()) + string(l.peekAt(1))
	for _, op := range twoCharOps {
		if two == op {
			l.advance()
			l.advance()
			return token{typ: tokOp, lit: op, line: line, col: col}, nil
		}
	}
	r := l.peek()
	if strings.ContainsRune(singleCharOps, r) {
		l.advance()
		return token{typ: tokOp, lit: string(r), line: line, col: col}, nil
	}
	return token{}, fmt.Errorf("%d:%d: unexpected character %q", line, col, r)
}
