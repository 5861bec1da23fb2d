package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore/filter"
)

// FieldType is the storage type of a field.
type FieldType string

// Supported field types.
const (
	FieldInt64       FieldType = "int64"
	FieldFloat64     FieldType = "float64"
	FieldString      FieldType = "string"
	FieldBool        FieldType = "bool"
	FieldFloatVector FieldType = "float_vector"
)

// Metric is the distance function of a collection.
type Metric string

// Supported metrics. Distances always grow with dissimilarity:
// L2 is the Euclidean distance, IP is the negated inner product and COSINE
// is one minus the cosine similarity.
const (
	MetricL2     Metric = "L2"
	MetricIP     Metric = "IP"
	MetricCosine Metric = "COSINE"
)

// DefaultMaxStringLength bounds string fields that do not set MaxLength.
const DefaultMaxStringLength = 65535

// Field declares one column of a collection.
type Field struct {
	Name      string    `json:"name"`
	Type      FieldType `json:"type"`
	Primary   bool      `json:"primary,omitempty"`
	AutoID    bool      `json:"auto_id,omitempty"`  // primary key assigned by the store
	Required  bool      `json:"required,omitempty"` // record builders must not default it
	MaxLength int       `json:"max_length,omitempty"`
	Dim       int       `json:"dim,omitempty"` // float_vector only
}

// IndexDescriptor names the index algorithm and distance metric.
type IndexDescriptor struct {
	Algorithm string         `json:"algorithm"`
	Metric    Metric         `json:"metric"`
	Params    map[string]int `json:"params,omitempty"`
}

// DefaultIndex is IVF_FLAT over Euclidean distance.
func DefaultIndex() IndexDescriptor {
	return IndexDescriptor{
		Algorithm: "IVF_FLAT",
		Metric:    MetricL2,
		Params:    map[string]int{"nlist": 128},
	}
}

// Schema is the ordered field list of a collection plus its index.
type Schema struct {
	Description string          `json:"description,omitempty"`
	Fields      []Field         `json:"fields"`
	Index       IndexDescriptor `json:"index"`
}

// Validate reports ErrSchemaError unless the schema has exactly one primary
// key, exactly one embedding field with a positive dimension, unique field
// names and known types.
func (s Schema) Validate() error {
	var primaries, vectors int
	seen := make(map[string]bool, len(s.Fields))

	for _, f := range s.Fields {
		if f.Name == "" {
			return schemaErr("field name is empty")
		}
		if seen[f.Name] {
			return schemaErr("duplicate field %q", f.Name)
		}
		seen[f.Name] = true

		switch f.Type {
		case FieldInt64, FieldFloat64, FieldString, FieldBool:
		case FieldFloatVector:
			vectors++
			if f.Dim <= 0 {
				return schemaErr("embedding field %q needs a positive dim, got %d", f.Name, f.Dim)
			}
			if f.Primary {
				return schemaErr("embedding field %q cannot be the primary key", f.Name)
			}
		default:
			return schemaErr("field %q has unknown type %q", f.Name, f.Type)
		}

		if f.Primary {
			primaries++
			if f.Type != FieldInt64 && f.Type != FieldString {
				return schemaErr("primary key %q must be int64 or string", f.Name)
			}
			if f.AutoID && f.Type != FieldInt64 {
				return schemaErr("auto_id primary key %q must be int64", f.Name)
			}
		} else if f.AutoID {
			return schemaErr("auto_id set on non-primary field %q", f.Name)
		}
	}

	if primaries != 1 {
		return schemaErr("schema needs exactly one primary key field, got %d", primaries)
	}
	if vectors != 1 {
		return schemaErr("schema needs exactly one embedding field, got %d", vectors)
	}

	switch s.Index.Metric {
	case MetricL2, MetricIP, MetricCosine, "":
	default:
		return schemaErr("unknown metric %q", s.Index.Metric)
	}
	return nil
}

// Field returns the named field.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// PrimaryField returns the primary key field of a valid schema.
func (s Schema) PrimaryField() Field {
	for _, f := range s.Fields {
		if f.Primary {
			return f
		}
	}
	return Field{}
}

// VectorField returns the embedding field of a valid schema.
func (s Schema) VectorField() Field {
	for _, f := range s.Fields {
		if f.Type == FieldFloatVector {
			return f
		}
	}
	return Field{}
}

// Dim returns the embedding dimension.
func (s Schema) Dim() int {
	return s.VectorField().Dim
}

// Metric returns the distance metric, defaulting to L2.
func (s Schema) Metric() Metric {
	if s.Index.Metric == "" {
		return MetricL2
	}
	return s.Index.Metric
}

// ScalarFields returns the names of all non-embedding fields in order.
func (s Schema) ScalarFields() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Type != FieldFloatVector {
			names = append(names, f.Name)
		}
	}
	return names
}

// filterKind exposes scalar fields to filter.Check.
func (s Schema) filterKind(name string) (filter.Kind, bool) {
	f, ok := s.Field(name)
	if !ok {
		return 0, false
	}
	switch f.Type {
	case FieldInt64, FieldFloat64:
		return filter.KindNumber, true
	case FieldString:
		return filter.KindString, true
	case FieldBool:
		return filter.KindBool, true
	default:
		return 0, false
	}
}

// compileFilter parses expr and checks it against the schema.
func (s Schema) compileFilter(op, expr string) (filter.Node, error) {
	node, err := filter.Parse(expr)
	if err != nil {
		return nil, ragerr.Wrap(op, ragerr.ErrInvalidArgument, err)
	}
	if err := filter.Check(node, s.filterKind); err != nil {
		return nil, ragerr.Wrap(op, ragerr.ErrInvalidArgument, err)
	}
	return node, nil
}

// outputFields resolves the projection of a query. An empty request selects
// every scalar field. The primary key is always included.
func (s Schema) outputFields(op string, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return s.ScalarFields(), nil
	}

	pk := s.PrimaryField().Name
	out := []string{pk}
	for _, name := range requested {
		if _, ok := s.Field(name); !ok {
			return nil, ragerr.New(op, ragerr.ErrInvalidArgument, "unknown output field %q", name)
		}
		if name != pk {
			out = append(out, name)
		}
	}
	return out, nil
}

func schemaErr(format string, args ...any) error {
	return ragerr.New("vectorstore.schema", ragerr.ErrSchemaError, format, args...)
}

// fmtDim is used by dimension mismatch messages.
func fmtDim(field string, want, got int) string {
	return fmt.Sprintf("field %q expects dimension %d, got %d", field, want, got)
}
