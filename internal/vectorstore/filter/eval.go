package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind is the scalar type of a field as seen by filters.
type Kind int

// Field kinds.
const (
	KindNumber Kind = iota + 1
	KindString
	KindBool
)

// Lookup resolves a field name to its kind. ok is false for fields that
// cannot be filtered on.
type Lookup func(field string) (kind Kind, ok bool)

// Check verifies that every field referenced by node exists and that every
// literal is comparable with its field.
func Check(node Node, lookup Lookup) error {
	switch n := node.(type) {
	case nil:
		return nil
	case *And:
		return checkTerms(n.Terms, lookup)
	case *Or:
		return checkTerms(n.Terms, lookup)
	case *Not:
		return Check(n.Expr, lookup)
	case *Compare:
		kind, ok := lookup(n.Field)
		if !ok {
			return fmt.Errorf("%w: unknown field %q", ErrSyntax, n.Field)
		}
		return checkLiteral(n.Field, kind, n.Op, n.Value)
	case *In:
		kind, ok := lookup(n.Field)
		if !ok {
			return fmt.Errorf("%w: unknown field %q", ErrSyntax, n.Field)
		}
		for _, v := range n.Values {
			if err := checkLiteral(n.Field, kind, OpEq, v); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported node %T", ErrSyntax, node)
	}
}

func checkTerms(terms []Node, lookup Lookup) error {
	for _, t := range terms {
		if err := Check(t, lookup); err != nil {
			return err
		}
	}
	return nil
}

func checkLiteral(field string, kind Kind, op Op, value any) error {
	ok := false
	switch value.(type) {
	case float64:
		ok = kind == KindNumber
	case string, time.Time:
		ok = kind == KindString
	case *regexp.Regexp:
		ok = kind == KindString
	case bool:
		ok = kind == KindBool && (op == OpEq || op == OpNe)
	}
	if !ok {
		return fmt.Errorf("%w: cannot compare field %q with %s", ErrSyntax, field, formatLiteral(value))
	}
	return nil
}

// Eval reports whether record satisfies node. A nil node matches
// everything. Fields missing from the record never satisfy a comparison.
func Eval(node Node, record map[string]any) bool {
	switch n := node.(type) {
	case nil:
		return true
	case *And:
		for _, t := range n.Terms {
			if !Eval(t, record) {
				return false
			}
		}
		return true
	case *Or:
		for _, t := range n.Terms {
			if Eval(t, record) {
				return true
			}
		}
		return false
	case *Not:
		return !Eval(n.Expr, record)
	case *Compare:
		v, ok := record[n.Field]
		if !ok {
			return false
		}
		return compare(v, n.Op, n.Value)
	case *In:
		v, ok := record[n.Field]
		if !ok {
			return false
		}
		for _, want := range n.Values {
			if compare(v, OpEq, want) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func compare(got any, op Op, want any) bool {
	switch w := want.(type) {
	case float64:
		g, ok := ToFloat(got)
		return ok && ordered(cmpFloat(g, w), op)
	case string:
		g, ok := got.(string)
		return ok && ordered(strings.Compare(g, w), op)
	case time.Time:
		s, ok := got.(string)
		if !ok {
			return false
		}
		g, ok := ParseTime(s)
		return ok && ordered(g.Compare(w), op)
	case bool:
		g, ok := got.(bool)
		if !ok {
			return false
		}
		return (g == w) == (op == OpEq)
	case *regexp.Regexp:
		g, ok := got.(string)
		if !ok {
			return false
		}
		return w.MatchString(g) == (op == OpMatch)
	}
	return false
}

func ordered(c int, op Op) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	default:
		return false
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ToFloat converts numeric record values to float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case uint32:
		return float64(x), true
	default:
		return 0, false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses the date formats stored in publish_date style fields.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
