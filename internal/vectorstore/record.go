package vectorstore

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore/filter"
)

// checkDimensions verifies every record's embedding length before anything
// is written.
func checkDimensions(op string, schema Schema, records []Record) error {
	vf := schema.VectorField()
	for i, rec := range records {
		v, ok := rec[vf.Name]
		if !ok {
			return ragerr.New(op, ragerr.ErrSchemaError, "record %d: missing embedding field %q", i, vf.Name)
		}
		vec, ok := toVector(v)
		if !ok {
			return ragerr.New(op, ragerr.ErrSchemaError, "record %d: field %q is %T, want []float32", i, vf.Name, v)
		}
		if len(vec) != vf.Dim {
			return ragerr.New(op, ragerr.ErrDimensionMismatch, "record %d: %s", i, fmtDim(vf.Name, vf.Dim, len(vec)))
		}
	}
	return nil
}

// normalizeRecord returns a copy of rec with canonical Go types: int64,
// float64, string, bool and []float32. The embedding is returned separately
// and is not part of the returned scalar record. Auto-id primary keys must
// be absent; every other schema field must be present and no extra fields
// are allowed.
func normalizeRecord(op string, schema Schema, rec Record) (Record, []float32, error) {
	out := make(Record, len(schema.Fields))
	var vec []float32

	for name := range rec {
		if _, ok := schema.Field(name); !ok {
			return nil, nil, ragerr.New(op, ragerr.ErrSchemaError, "unknown field %q", name)
		}
	}

	for _, f := range schema.Fields {
		v, present := rec[f.Name]
		if f.AutoID {
			if present {
				return nil, nil, ragerr.New(op, ragerr.ErrSchemaError, "field %q is assigned by the store", f.Name)
			}
			continue
		}
		if !present {
			return nil, nil, ragerr.New(op, ragerr.ErrSchemaError, "missing field %q", f.Name)
		}

		if f.Type == FieldFloatVector {
			var ok bool
			vec, ok = toVector(v)
			if !ok {
				return nil, nil, ragerr.New(op, ragerr.ErrSchemaError, "field %q is %T, want []float32", f.Name, v)
			}
			if len(vec) != f.Dim {
				return nil, nil, ragerr.New(op, ragerr.ErrDimensionMismatch, "%s", fmtDim(f.Name, f.Dim, len(vec)))
			}
			continue
		}

		cv, err := coerce(f, v)
		if err != nil {
			return nil, nil, ragerr.Wrap(op, ragerr.ErrSchemaError, err)
		}
		out[f.Name] = cv
	}
	return out, vec, nil
}

func coerce(f Field, v any) (any, error) {
	switch f.Type {
	case FieldInt64:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		case uint64:
			if x > math.MaxInt64 {
				break
			}
			return int64(x), nil
		case float64:
			if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
				return int64(x), nil
			}
		}
	case FieldFloat64:
		if x, ok := filter.ToFloat(v); ok {
			return x, nil
		}
	case FieldString:
		if s, ok := v.(string); ok {
			limit := f.MaxLength
			if limit <= 0 {
				limit = DefaultMaxStringLength
			}
			if utf8.RuneCountInString(s) > limit {
				return nil, fieldErr(f, "exceeds max length %d", limit)
			}
			return s, nil
		}
	case FieldBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fieldErr(f, "cannot hold %T", v)
}

func toVector(v any) ([]float32, bool) {
	switch x := v.(type) {
	case []float32:
		return x, true
	case []float64:
		out := make([]float32, len(x))
		for i, f := range x {
			out[i] = float32(f)
		}
		return out, true
	default:
		return nil, false
	}
}

// project copies the requested fields of a stored row.
func project(values Record, vec []float32, vectorField string, fields []string) Record {
	out := make(Record, len(fields))
	for _, name := range fields {
		if name == vectorField {
			out[name] = append([]float32(nil), vec...)
			continue
		}
		if v, ok := values[name]; ok {
			out[name] = v
		}
	}
	return out
}

func fieldErr(f Field, format string, args ...any) error {
	return fmt.Errorf("field %q %s", f.Name, fmt.Sprintf(format, args...))
}
