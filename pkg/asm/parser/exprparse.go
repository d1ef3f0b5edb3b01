package parser

import (
	"fmt"
	"strings"

	"github.com/brackenfield/gbtk/pkg/asm/expr"
	"github.com/brackenfield/gbtk/pkg/asm/lexer"
)

// ExprParser turns a token stream into an expr.Node tree, implementing the
// operator-precedence grammar of spec.md §4.4: `||` binds loosest, `**`
// (fixed-point power) tightest among binary operators, with unary
// `- ~ !` binding tighter still and parentheses overriding everything.
//
// Token access goes through peekFn/nextFn rather than a Lexer directly so
// a caller driving a larger statement grammar (Driver) can share its own
// one-token lookahead buffer with the expression parser instead of each
// keeping an independent, easily-desynchronized copy.
type ExprParser struct {
	peekFn func() (lexer.Token, error)
	nextFn func() (lexer.Token, error)
}

// NewExprParser wraps lx for standalone expression parsing (tests, or any
// caller that doesn't need to interleave expression parsing with its own
// statement-level lookahead).
func NewExprParser(lx *lexer.Lexer) *ExprParser {
	var peeked *lexer.Token
	peek := func() (lexer.Token, error) {
		if peeked == nil {
			t, err := lx.NextToken()
			if err != nil {
				return lexer.Token{}, err
			}
			peeked = &t
		}
		return *peeked, nil
	}
	next := func() (lexer.Token, error) {
		t, err := peek()
		if err != nil {
			return t, err
		}
		peeked = nil
		return t, nil
	}
	return &ExprParser{peekFn: peek, nextFn: next}
}

func (p *ExprParser) peek() (lexer.Token, error) { return p.peekFn() }
func (p *ExprParser) next() (lexer.Token, error) { return p.nextFn() }

func (p *ExprParser) expect(k lexer.TokenKind) (lexer.Token, error) {
	t, err := p.next()
	if err != nil {
		return t, err
	}
	if t.Kind != k {
		return t, fmt.Errorf("unexpected token %s in expression", t)
	}
	return t, nil
}

// Peek exposes the next token without consuming it, so callers driving a
// larger statement grammar (operand lists, directive arguments) can decide
// whether what follows is even an expression.
func (p *ExprParser) Peek() (lexer.Token, error) { return p.peek() }

var binPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"|":  3,
	"^":  4,
	"&":  5,
	"==": 6, "!=": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
	"**": 11,
}

var binOp = map[string]expr.Op{
	"||": expr.OpLogOr, "&&": expr.OpLogAnd,
	"|": expr.OpOr, "^": expr.OpXor, "&": expr.OpAnd,
	"==": expr.OpEq, "!=": expr.OpNe,
	"<": expr.OpLt, ">": expr.OpGt, "<=": expr.OpLe, ">=": expr.OpGe,
	"<<": expr.OpShl, ">>": expr.OpShr,
	"+": expr.OpAdd, "-": expr.OpSub,
	"*": expr.OpMul, "/": expr.OpDiv, "%": expr.OpMod,
	"**": expr.OpExp,
}

// ParseExpr parses one expression at the lowest precedence.
func (p *ExprParser) ParseExpr() (*expr.Node, error) {
	return p.parseBin(0)
}

func (p *ExprParser) parseBin(minPrec int) (*expr.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t, err := p.peek()
		if err != nil {
			return nil, err
		}
		if t.Kind != lexer.TokOp {
			break
		}
		prec, ok := binPrec[t.Text]
		if !ok || prec < minPrec {
			break
		}
		p.next()
		nextMin := prec + 1
		if t.Text == "**" { // right-associative
			nextMin = prec
		}
		right, err := p.parseBin(nextMin)
		if err != nil {
			return nil, err
		}
		left = expr.Binary(binOp[t.Text], left, right)
	}
	return left, nil
}

func (p *ExprParser) parseUnary() (*expr.Node, error) {
	t, err := p.peek()
	if err != nil {
		return nil, err
	}
	if t.Kind == lexer.TokOp {
		switch t.Text {
		case "-":
			p.next()
			operand, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return expr.Unary(expr.OpNeg, operand), nil
		case "~":
			p.next()
			operand, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return expr.Unary(expr.OpNot, operand), nil
		case "!":
			p.next()
			operand, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return expr.Unary(expr.OpLogNot, operand), nil
		}
	}
	return p.parsePrimary()
}

var intrinsicNames = map[string]bool{
	"HIGH": true, "LOW": true, "BANK": true, "SIZEOF": true, "STARTOF": true,
	"ISCONST": true, "DEF": true,
	"SIN": true, "COS": true, "TAN": true,
	"ASIN": true, "ACOS": true, "ATAN": true, "ATAN2": true,
	"POW": true, "LOG": true, "ROUND": true, "CEIL": true, "FLOOR": true,
}

func (p *ExprParser) parsePrimary() (*expr.Node, error) {
	t, err := p.next()
	if err != nil {
		return nil, err
	}
	switch t.Kind {
	case lexer.TokNumber:
		return expr.Const(t.Num), nil

	case lexer.TokLParen:
		n, err := p.parseBin(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokRParen); err != nil {
			return nil, err
		}
		return n, nil

	case lexer.TokIdent:
		if t.Text == "@" {
			return expr.PC(), nil
		}
		if intrinsicNames[strings.ToUpper(t.Text)] {
			peeked, err := p.peek()
			if err == nil && peeked.Kind == lexer.TokLParen {
				return p.parseIntrinsic(strings.ToUpper(t.Text))
			}
		}
		return expr.Sym(t.Text), nil

	case lexer.TokString:
		return expr.Sym(t.Text), nil

	default:
		return nil, fmt.Errorf("unexpected token %s in expression", t)
	}
}

// parseIntrinsic parses the argument list of a known intrinsic function.
// BANK/SIZEOF/STARTOF take a single literal symbol or section-name
// argument rather than a full expression (pkg/asm/expr's evalIntrinsic
// requires Args[0] to be a bare KindSymbol node for these three).
func (p *ExprParser) parseIntrinsic(name string) (*expr.Node, error) {
	if _, err := p.expect(lexer.TokLParen); err != nil {
		return nil, err
	}

	var args []*expr.Node
	if name == "BANK" || name == "SIZEOF" || name == "STARTOF" {
		t, err := p.next()
		if err != nil {
			return nil, err
		}
		if t.Kind != lexer.TokIdent && t.Kind != lexer.TokString {
			return nil, fmt.Errorf("%s: expects a symbol or section name literal", name)
		}
		args = append(args, expr.Sym(t.Text))
	} else {
		t, err := p.peek()
		if err != nil {
			return nil, err
		}
		if t.Kind != lexer.TokRParen {
			for {
				a, err := p.parseBin(0)
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				t, err = p.peek()
				if err != nil {
					return nil, err
				}
				if t.Kind == lexer.TokComma {
					p.next()
					continue
				}
				break
			}
		}
	}

	if _, err := p.expect(lexer.TokRParen); err != nil {
		return nil, err
	}
	return expr.Intrinsic(name, args...), nil
}
