// Package filter parses and evaluates the boolean predicates accepted by
// vector store search and scan operations.
//
// Expressions compare scalar fields against literals:
//
//	view_count > 1000 and source_type == "video"
//	title =~ "(?i)apple" || id in ["a", "b"]
//	uri like "https://www.youtube.com/%"
//	not (like_count <= 10)
//
// Tokens are produced by govaluate; the expression tree is built here so
// that each backend can either evaluate it in process or translate it into
// its native filter language.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Op is a comparison operator.
type Op string

// Comparison operators.
const (
	OpEq       Op = "=="
	OpNe       Op = "!="
	OpGt       Op = ">"
	OpGte      Op = ">="
	OpLt       Op = "<"
	OpLte      Op = "<="
	OpMatch    Op = "=~"
	OpNotMatch Op = "!~"
)

// Node is an element of a parsed expression.
type Node interface {
	// Fields appends the field names referenced by the node.
	Fields(dst []string) []string
	String() string
}

// And is satisfied when every term is satisfied.
type And struct{ Terms []Node }

// Or is satisfied when any term is satisfied.
type Or struct{ Terms []Node }

// Not negates its operand.
type Not struct{ Expr Node }

// Compare compares a field against a literal. Value holds a float64,
// string, bool, time.Time or, for the match operators, *regexp.Regexp.
type Compare struct {
	Field string
	Op    Op
	Value any
}

// In is satisfied when the field equals one of Values.
type In struct {
	Field  string
	Values []any
}

// Fields implements Node.
func (n *And) Fields(dst []string) []string { return termFields(dst, n.Terms) }

// Fields implements Node.
func (n *Or) Fields(dst []string) []string { return termFields(dst, n.Terms) }

// Fields implements Node.
func (n *Not) Fields(dst []string) []string { return n.Expr.Fields(dst) }

// Fields implements Node.
func (n *Compare) Fields(dst []string) []string { return append(dst, n.Field) }

// Fields implements Node.
func (n *In) Fields(dst []string) []string { return append(dst, n.Field) }

func (n *And) String() string { return joinTerms(n.Terms, " && ") }
func (n *Or) String() string  { return joinTerms(n.Terms, " || ") }
func (n *Not) String() string { return "!(" + n.Expr.String() + ")" }

func (n *Compare) String() string {
	return fmt.Sprintf("%s %s %s", n.Field, n.Op, formatLiteral(n.Value))
}

func (n *In) String() string {
	parts := make([]string, len(n.Values))
	for i, v := range n.Values {
		parts[i] = formatLiteral(v)
	}
	return fmt.Sprintf("%s in [%s]", n.Field, strings.Join(parts, ", "))
}

func termFields(dst []string, terms []Node) []string {
	for _, t := range terms {
		dst = t.Fields(dst)
	}
	return dst
}

func joinTerms(terms []Node, sep string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = "(" + t.String() + ")"
	}
	return strings.Join(parts, sep)
}

func formatLiteral(v any) string {
	switch x := v.(type) {
	case string:
		return fmt.Sprintf("%q", x)
	case time.Time:
		return fmt.Sprintf("%q", x.Format(time.RFC3339Nano))
	case *regexp.Regexp:
		return fmt.Sprintf("%q", x.String())
	default:
		return fmt.Sprint(x)
	}
}

// Quote returns s as a double-quoted string literal for use in an
// expression. Both quote characters are escaped.
func Quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, `'`, `\'`).Replace(s) + `"`
}
