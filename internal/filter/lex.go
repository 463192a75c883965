package filter

import (
	"strconv"
	"strings"
	"unicode"
)

type tokKind int

const (
	tokWord tokKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokEOF
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func lex(s string) ([]token, error) {
	var out []token
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '`':
			j := i + 1
			for j < len(rs) && rs[j] != '`' {
				j++
			}
			if j >= len(rs) {
				return nil, &SyntaxError{Expr: s, Pos: i, Msg: "unterminated quoted column"}
			}
			out = append(out, token{kind: tokIdent, text: string(rs[i+1 : j]), pos: i})
			i = j + 1
		case r == '\'' || r == '"':
			j := i + 1
			var b strings.Builder
			for j < len(rs) && rs[j] != r {
				if rs[j] == '\\' && j+1 < len(rs) {
					j++
				}
				b.WriteRune(rs[j])
				j++
			}
			if j >= len(rs) {
				return nil, &SyntaxError{Expr: s, Pos: i, Msg: "unterminated string"}
			}
			out = append(out, token{kind: tokString, text: b.String(), pos: i})
			i = j + 1
		case strings.ContainsRune("<>=!", r):
			j := i + 1
			if j < len(rs) && rs[j] == '=' {
				j++
			}
			op := string(rs[i:j])
			switch op {
			case "=":
				op = "=="
			case "!":
				return nil, &SyntaxError{Expr: s, Pos: i, Msg: "unexpected '!'"}
			}
			out = append(out, token{kind: tokOp, text: op, pos: i})
			i = j
		case r == '-' || r == '+' || r == '.' || unicode.IsDigit(r):
			j := i + 1
			for j < len(rs) && (unicode.IsDigit(rs[j]) || strings.ContainsRune(".eE", rs[j]) || ((rs[j] == '-' || rs[j] == '+') && (rs[j-1] == 'e' || rs[j-1] == 'E'))) {
				j++
			}
			text := string(rs[i:j])
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, &SyntaxError{Expr: s, Pos: i, Msg: "bad number " + strconv.Quote(text)}
			}
			out = append(out, token{kind: tokNumber, text: text, pos: i})
			i = j
		case r == '_' || unicode.IsLetter(r):
			j := i + 1
			for j < len(rs) && (rs[j] == '_' || rs[j] == '.' || unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j])) {
				j++
			}
			out = append(out, token{kind: tokWord, text: string(rs[i:j]), pos: i})
			i = j
		default:
			return nil, &SyntaxError{Expr: s, Pos: i, Msg: "unexpected character " + strconv.QuoteRune(r)}
		}
	}
	if len(out) == 0 {
		return nil, &SyntaxError{Expr: s, Msg: "empty expression"}
	}
	return out, nil
}

type parser struct {
	src  string
	toks []token
	i    int
}

func (p *parser) done() bool { return p.i >= len(p.toks) }

func (p *parser) next() token {
	if p.done() {
		return token{kind: tokEOF, pos: len(p.src)}
	}
	t := p.toks[p.i]
	p.i++
	return t
}

func (p *parser) errAt(t token, msg string) error {
	return &SyntaxError{Expr: p.src, Pos: t.pos, Msg: msg}
}

func (p *parser) word(t token, w string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, w)
}

func (p *parser) cond() (Cond, error) {
	t := p.next()
	if (t.kind != tokWord && t.kind != tokIdent) || (t.kind == tokWord && isKeyword(t.text)) {
		return Cond{}, p.errAt(t, "expected column name")
	}
	c := Cond{Column: t.text}
	op := p.next()
	if p.word(op, "is") {
		n := p.next()
		if p.word(n, "not") {
			c.Op = IsNotNull
			n = p.next()
		} else {
			c.Op = IsNull
		}
		if !p.word(n, "null") {
			return Cond{}, p.errAt(n, "expected 'null'")
		}
		return c, nil
	}
	if op.kind != tokOp {
		return Cond{}, p.errAt(op, "expected comparison operator")
	}
	c.Op = Op(op.text)
	v := p.next()
	switch {
	case v.kind == tokNumber:
		f, _ := strconv.ParseFloat(v.text, 64)
		c.Value = f
	case v.kind == tokString:
		c.Value = v.text
	case p.word(v, "true"), p.word(v, "false"):
		c.Value = strings.EqualFold(v.text, "true")
	case v.kind == tokWord && !isKeyword(v.text):
		c.Value = v.text
	default:
		return Cond{}, p.errAt(v, "expected literal")
	}
	return c, nil
}
