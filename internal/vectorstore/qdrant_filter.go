package vectorstore

import (
	"github.com/qdrant/go-client/qdrant"

	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore/filter"
)

// translateFilter converts a checked expression into a Qdrant filter.
// It returns false when any part of the expression has no exact Qdrant
// equivalent; callers then evaluate the expression themselves.
func translateFilter(node filter.Node, schema Schema) (*qdrant.Filter, bool) {
	if node == nil {
		return nil, true
	}
	cond, ok := translateNode(node, schema)
	if !ok {
		return nil, false
	}
	return &qdrant.Filter{Must: []*qdrant.Condition{cond}}, true
}

func translateNode(node filter.Node, schema Schema) (*qdrant.Condition, bool) {
	switch n := node.(type) {
	case *filter.And:
		conds, ok := translateTerms(n.Terms, schema)
		if !ok {
			return nil, false
		}
		return qdrant.NewFilterAsCondition(&qdrant.Filter{Must: conds}), true
	case *filter.Or:
		conds, ok := translateTerms(n.Terms, schema)
		if !ok {
			return nil, false
		}
		return qdrant.NewFilterAsCondition(&qdrant.Filter{Should: conds}), true
	case *filter.Not:
		cond, ok := translateNode(n.Expr, schema)
		if !ok {
			return nil, false
		}
		return negate(cond), true
	case *filter.Compare:
		return translateCompare(n, schema)
	case *filter.In:
		return translateIn(n, schema)
	default:
		return nil, false
	}
}

func translateTerms(terms []filter.Node, schema Schema) ([]*qdrant.Condition, bool) {
	conds := make([]*qdrant.Condition, 0, len(terms))
	for _, t := range terms {
		c, ok := translateNode(t, schema)
		if !ok {
			return nil, false
		}
		conds = append(conds, c)
	}
	return conds, true
}

func translateCompare(n *filter.Compare, schema Schema) (*qdrant.Condition, bool) {
	f, ok := schema.Field(n.Field)
	if !ok {
		return nil, false
	}

	switch v := n.Value.(type) {
	case float64:
		if f.Type != FieldInt64 && f.Type != FieldFloat64 {
			return nil, false
		}
		r := &qdrant.Range{}
		switch n.Op {
		case filter.OpEq, filter.OpNe:
			r.Gte, r.Lte = qdrant.PtrOf(v), qdrant.PtrOf(v)
		case filter.OpGt:
			r.Gt = qdrant.PtrOf(v)
		case filter.OpGte:
			r.Gte = qdrant.PtrOf(v)
		case filter.OpLt:
			r.Lt = qdrant.PtrOf(v)
		case filter.OpLte:
			r.Lte = qdrant.PtrOf(v)
		default:
			return nil, false
		}
		cond := qdrant.NewRange(f.Name, r)
		if n.Op == filter.OpNe {
			return negate(cond), true
		}
		return cond, true

	case string:
		if f.Type != FieldString {
			return nil, false
		}
		switch n.Op {
		case filter.OpEq:
			return qdrant.NewMatchKeyword(f.Name, v), true
		case filter.OpNe:
			return negate(qdrant.NewMatchKeyword(f.Name, v)), true
		default:
			return nil, false
		}

	case bool:
		if f.Type != FieldBool {
			return nil, false
		}
		switch n.Op {
		case filter.OpEq:
			return qdrant.NewMatchBool(f.Name, v), true
		case filter.OpNe:
			return qdrant.NewMatchBool(f.Name, !v), true
		default:
			return nil, false
		}
	}

	// Regular expressions and date literals are evaluated in process.
	return nil, false
}

func translateIn(n *filter.In, schema Schema) (*qdrant.Condition, bool) {
	f, ok := schema.Field(n.Field)
	if !ok || len(n.Values) == 0 {
		return nil, false
	}

	if f.Type == FieldString {
		keywords := make([]string, 0, len(n.Values))
		for _, v := range n.Values {
			s, ok := v.(string)
			if !ok {
				return nil, false
			}
			keywords = append(keywords, s)
		}
		return qdrant.NewMatchKeywords(f.Name, keywords...), true
	}

	conds := make([]*qdrant.Condition, 0, len(n.Values))
	for _, v := range n.Values {
		c, ok := translateCompare(&filter.Compare{Field: n.Field, Op: filter.OpEq, Value: v}, schema)
		if !ok {
			return nil, false
		}
		conds = append(conds, c)
	}
	return qdrant.NewFilterAsCondition(&qdrant.Filter{Should: conds}), true
}

func negate(cond *qdrant.Condition) *qdrant.Condition {
	return qdrant.NewFilterAsCondition(&qdrant.Filter{MustNot: []*qdrant.Condition{cond}})
}
