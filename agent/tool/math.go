package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/dustin/go-humanize"
)

const ToolMathEvaluate = "math_evaluate"

// Digits, whitespace, decimal points, operators, parentheses and k/m/b/t magnitude suffixes.
var mathExpressionPattern = regexp.MustCompile(`^[\d\s\+\-\*/%\^\(\)\.,_kKmMbBtT]+$`)

var magnitudes = map[byte]float64{
	'k': 1e3,
	'm': 1e6,
	'b': 1e9,
	't': 1e12,
}

type MathEvaluateOutput struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
	// Result with thousands separators, and a short SI form for large magnitudes.
	Formatted string `json:"formatted"`
	Short     string `json:"short,omitempty"`
}

func MathEvaluate() Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: ToolMathEvaluate,
			Desc: "Evaluate an arithmetic expression for market sizing, e.g. (2.5b * 0.03) / 12. " +
				"Supports + - * / % ^, parentheses and k/m/b/t suffixes for thousand, million, billion, trillion.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"expression": {Type: schema.String, Desc: "Expression to evaluate", Required: true},
			}),
		},
		Handler: func(_ context.Context, _ RunContext, args map[string]any) (Result, error) {
			expression, err := argString(args, "expression", true)
			if err != nil {
				return Result{}, err
			}
			if err := validateMathExpression(expression); err != nil {
				return Result{}, err
			}
			value, err := evaluateMathExpression(expression)
			if err != nil {
				return Result{}, err
			}
			out, _ := json.Marshal(MathEvaluateOutput{
				Expression: expression,
				Result:     value,
				Formatted:  humanize.CommafWithDigits(value, 2),
				Short:      shortMagnitude(value),
			})
			return Text(string(out)), nil
		},
	}
}

// shortMagnitude renders 2.5e9 as "2.5 billion"; values under a thousand get no short form.
func shortMagnitude(v float64) string {
	abs := math.Abs(v)
	if abs < 1e3 {
		return ""
	}
	for _, m := range []struct {
		scale float64
		name  string
	}{{1e12, "trillion"}, {1e9, "billion"}, {1e6, "million"}, {1e3, "thousand"}} {
		if abs >= m.scale {
			return humanize.FtoaWithDigits(v/m.scale, 2) + " " + m.name
		}
	}
	return ""
}

func validateMathExpression(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return errors.New("expression is empty")
	}
	if !mathExpressionPattern.MatchString(expression) {
		return errors.New("expression contains invalid characters")
	}
	depth := 0
	for _, ch := range expression {
		if ch == '(' {
			depth++
		} else if ch == ')' {
			if depth--; depth < 0 {
				return errors.New("expression has unbalanced parentheses")
			}
		}
	}
	if depth != 0 {
		return errors.New("expression has unbalanced parentheses")
	}
	return nil
}

/* ------------------------------- evaluator -------------------------------- */

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	op    byte
	value float64
	pos   int
}

func tokenize(expr string) ([]token, error) {
	var out []token
	for i := 0; i < len(expr); {
		ch := expr[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n':
			i++
		case ch == '(':
			out = append(out, token{kind: tokLParen, pos: i})
			i++
		case ch == ')':
			out = append(out, token{kind: tokRParen, pos: i})
			i++
		case strings.IndexByte("+-*/%^", ch) >= 0:
			out = append(out, token{kind: tokOp, op: ch, pos: i})
			i++
		case (ch >= '0' && ch <= '9') || ch == '.':
			start := i
			for i < len(expr) && (expr[i] >= '0' && expr[i] <= '9' || expr[i] == '.' || expr[i] == ',' || expr[i] == '_') {
				i++
			}
			raw := strings.NewReplacer(",", "", "_", "").Replace(expr[start:i])
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q at position %d", expr[start:i], start)
			}
			if i < len(expr) {
				if mult, ok := magnitudes[lower(expr[i])]; ok {
					value *= mult
					i++
				}
			}
			out = append(out, token{kind: tokNumber, value: value, pos: start})
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", ch, i)
		}
	}
	return out, nil
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// binding power per binary operator; ^ is right-associative
var precedence = map[byte]int{'+': 1, '-': 1, '*': 2, '/': 2, '%': 2, '^': 4}

const unaryPrecedence = 3

type evaluator struct {
	tokens []token
	pos    int
}

func evaluateMathExpression(expression string) (float64, error) {
	tokens, err := tokenize(expression)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, errors.New("expression is empty")
	}
	e := &evaluator{tokens: tokens}
	value, err := e.expr(0)
	if err != nil {
		return 0, err
	}
	if e.pos < len(e.tokens) {
		return 0, fmt.Errorf("unexpected token at position %d", e.tokens[e.pos].pos)
	}
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, errors.New("result is not a finite number")
	}
	return value, nil
}

func (e *evaluator) expr(minPrec int) (float64, error) {
	left, err := e.operand()
	if err != nil {
		return 0, err
	}
	for e.pos < len(e.tokens) {
		tok := e.tokens[e.pos]
		if tok.kind != tokOp {
			break
		}
		prec := precedence[tok.op]
		if prec < minPrec {
			break
		}
		e.pos++
		next := prec + 1
		if tok.op == '^' {
			next = prec
		}
		right, err := e.expr(next)
		if err != nil {
			return 0, err
		}
		if left, err = apply(tok.op, left, right); err != nil {
			return 0, err
		}
	}
	return left, nil
}

func (e *evaluator) operand() (float64, error) {
	if e.pos >= len(e.tokens) {
		return 0, errors.New("unexpected end of expression")
	}
	tok := e.tokens[e.pos]
	e.pos++
	switch tok.kind {
	case tokNumber:
		return tok.value, nil
	case tokLParen:
		value, err := e.expr(0)
		if err != nil {
			return 0, err
		}
		if e.pos >= len(e.tokens) || e.tokens[e.pos].kind != tokRParen {
			return 0, fmt.Errorf("missing closing parenthesis for position %d", tok.pos)
		}
		e.pos++
		return value, nil
	case tokOp:
		if tok.op == '-' || tok.op == '+' {
			value, err := e.expr(unaryPrecedence)
			if err != nil {
				return 0, err
			}
			if tok.op == '-' {
				value = -value
			}
			return value, nil
		}
	}
	return 0, fmt.Errorf("expected number at position %d", tok.pos)
}

func apply(op byte, a, b float64) (float64, error) {
	switch op {
	case '+':
		return a + b, nil
	case '-':
		return a - b, nil
	case '*':
		return a * b, nil
	case '/':
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		return a / b, nil
	case '%':
		if b == 0 {
			return 0, errors.New("modulo by zero")
		}
		return math.Mod(a, b), nil
	case '^':
		return math.Pow(a, b), nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}
