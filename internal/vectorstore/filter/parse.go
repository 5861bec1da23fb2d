package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/Knetic/govaluate"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("invalid filter expression")

// keywords rewritten to govaluate operators before lexing.
var keywords = map[string]string{
	"and":   "&&",
	"or":    "||",
	"not":   "!",
	"in":    "in",
	"true":  "true",
	"false": "false",
}

// Parse parses expr. An empty or blank expression yields a nil Node, which
// matches every record.
func Parse(expr string) (Node, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}

	compiled, err := govaluate.NewEvaluableExpression(normalize(expr))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrSyntax, expr, err)
	}

	p := &parser{tokens: compiled.Tokens()}
	node, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrSyntax, expr, err)
	}
	if !p.done() {
		return nil, fmt.Errorf("%w: %q: unexpected %v", ErrSyntax, expr, p.peek().Value)
	}
	return node, nil
}

// normalize maps word operators and bracketed lists onto govaluate syntax.
// Quoted strings are copied untouched unless they follow like.
func normalize(expr string) string {
	var b strings.Builder
	runes := []rune(expr)
	like := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			j := i + 1
			for j < len(runes) && runes[j] != r {
				if runes[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(runes) {
				// Unterminated; govaluate reports it.
				b.WriteString(string(runes[i:]))
				i = len(runes)
				continue
			}
			if like {
				b.WriteString(likePattern(runes[i+1 : j]))
				like = false
			} else {
				b.WriteString(quoteLiteral(r, runes[i+1:j]))
			}
			i = j
		case r == '[':
			b.WriteRune('(')
		case r == ']':
			b.WriteRune(')')
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_' || runes[j] == '.') {
				j++
			}
			word := string(runes[i:j])
			if strings.EqualFold(word, "like") {
				b.WriteString(" =~ ")
				like = true
			} else if op, ok := keywords[strings.ToLower(word)]; ok {
				b.WriteString(" " + op + " ")
			} else {
				b.WriteString(word)
			}
			i = j - 1
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// quoteLiteral rewrites a string literal so that govaluate, which ends a
// string at either quote character, keeps the other one inside it.
func quoteLiteral(quote rune, body []rune) string {
	var b strings.Builder
	b.WriteRune(quote)
	for k := 0; k < len(body); k++ {
		switch c := body[k]; {
		case c == '\\' && k+1 < len(body):
			b.WriteRune(c)
			k++
			b.WriteRune(body[k])
		case c == '"' || c == '\'':
			b.WriteRune('\\')
			b.WriteRune(c)
		default:
			b.WriteRune(c)
		}
	}
	b.WriteRune(quote)
	return b.String()
}

// likePattern turns the body of a quoted like pattern into a quoted,
// anchored regular expression. % matches any run of characters.
func likePattern(body []rune) string {
	var re strings.Builder
	re.WriteString("^")
	for i := 0; i < len(body); i++ {
		switch c := body[i]; {
		case c == '\\' && i+1 < len(body):
			i++
			re.WriteString(regexp.QuoteMeta(string(body[i])))
		case c == '%':
			re.WriteString(".*")
		default:
			re.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	re.WriteString("$")

	quoted := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `'`, `\'`).Replace(re.String())
	return `"` + quoted + `"`
}

type parser struct {
	tokens []govaluate.ExpressionToken
	pos    int
}

func (p *parser) done() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() govaluate.ExpressionToken {
	if p.done() {
		return govaluate.ExpressionToken{Kind: govaluate.UNKNOWN, Value: "end of expression"}
	}
	return p.tokens[p.pos]
}

func (p *parser) next() govaluate.ExpressionToken {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) is(kind govaluate.TokenKind, value string) bool {
	t := p.peek()
	if t.Kind != kind {
		return false
	}
	s, _ := t.Value.(string)
	return value == "" || s == value
}

func (p *parser) parseOr() (Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for p.is(govaluate.LOGICALOP, "||") {
		p.next()
		n, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, n)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &Or{Terms: terms}, nil
}

func (p *parser) parseAnd() (Node, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms := []Node{first}
	for p.is(govaluate.LOGICALOP, "&&") {
		p.next()
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, n)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &And{Terms: terms}, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.is(govaluate.PREFIX, "!") {
		p.next()
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Expr: n}, nil
	}
	if p.is(govaluate.CLAUSE, "") {
		p.next()
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.is(govaluate.CLAUSE_CLOSE, "") {
			return nil, fmt.Errorf("expected ')', got %v", p.peek().Value)
		}
		p.next()
		return n, nil
	}
	return p.parseComparison()
}

// operand is either a field reference or a literal value.
type operand struct {
	field   string
	value   any
	isField bool
}

func (p *parser) parseOperand() (operand, error) {
	t := p.next()
	switch t.Kind {
	case govaluate.VARIABLE:
		return operand{field: t.Value.(string), isField: true}, nil
	case govaluate.NUMERIC, govaluate.STRING, govaluate.BOOLEAN, govaluate.TIME, govaluate.PATTERN:
		return operand{value: t.Value}, nil
	case govaluate.PREFIX:
		if s, _ := t.Value.(string); s == "-" && p.peek().Kind == govaluate.NUMERIC {
			return operand{value: -p.next().Value.(float64)}, nil
		}
	}
	return operand{}, fmt.Errorf("expected field or literal, got %v", t.Value)
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if !p.is(govaluate.COMPARATOR, "") {
		// A bare field is shorthand for field == true.
		if left.isField {
			return &Compare{Field: left.field, Op: OpEq, Value: true}, nil
		}
		return nil, fmt.Errorf("expected comparison after %v", left.value)
	}
	op := p.next().Value.(string)

	if op == "in" {
		if !left.isField {
			return nil, errors.New("left side of 'in' must be a field")
		}
		values, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return &In{Field: left.field, Values: values}, nil
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	cmp := Op(op)
	switch {
	case left.isField && !right.isField:
		return newCompare(left.field, cmp, right.value)
	case !left.isField && right.isField:
		if cmp == OpMatch || cmp == OpNotMatch {
			return nil, errors.New("pattern must be on the right side of a match")
		}
		return newCompare(right.field, mirror(cmp), left.value)
	default:
		return nil, errors.New("comparison needs exactly one field and one literal")
	}
}

func (p *parser) parseList() ([]any, error) {
	if !p.is(govaluate.CLAUSE, "") {
		return nil, fmt.Errorf("expected list after 'in', got %v", p.peek().Value)
	}
	p.next()

	var values []any
	for {
		o, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if o.isField {
			return nil, fmt.Errorf("list values must be literals, got field %s", o.field)
		}
		values = append(values, o.value)

		if p.is(govaluate.SEPARATOR, "") {
			p.next()
			continue
		}
		if p.is(govaluate.CLAUSE_CLOSE, "") {
			p.next()
			return values, nil
		}
		return nil, fmt.Errorf("expected ',' or ')' in list, got %v", p.peek().Value)
	}
}

func newCompare(field string, op Op, value any) (Node, error) {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		if _, ok := value.(*regexp.Regexp); ok {
			return nil, fmt.Errorf("pattern literal used with %s", op)
		}
	case OpMatch, OpNotMatch:
		if _, ok := value.(*regexp.Regexp); !ok {
			return nil, fmt.Errorf("%s needs a string pattern", op)
		}
	default:
		return nil, fmt.Errorf("unsupported operator %s", op)
	}
	if t, ok := value.(time.Time); ok {
		value = t.UTC()
	}
	return &Compare{Field: field, Op: op, Value: value}, nil
}

// mirror returns the operator that keeps the comparison true when its
// operands are swapped.
func mirror(op Op) Op {
	switch op {
	case OpGt:
		return OpLt
	case OpGte:
		return OpLte
	case OpLt:
		return OpGt
	case OpLte:
		return OpGte
	default:
		return op
	}
}
