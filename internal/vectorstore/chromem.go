package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime"

	chromem "github.com/philippgille/chromem-go"
)

// Layout of a collection inside chromem:
//
//   - one document per row, ID row-<seq>, Content holding the JSON encoded
//     row (scalar values and the raw embedding), Metadata holding the scalar
//     values as strings;
//   - one metadata document, ID __collection, holding the schema and the
//     sequence counters.
//
// chromem normalizes every embedding it stores, so the raw vector is kept in
// Content and the chromem embedding is only a unit-length placeholder.
const (
	mirrorSchemaVersion = "1"
	mirrorMetaID        = "__collection"
)

var errNoEmbeddingFunc = errors.New("documents must carry precomputed embeddings")

// noEmbedding is installed as the chromem embedding func so that a missing
// vector never triggers a call to a remote embedding API.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

type mirrorMeta struct {
	Schema  Schema `json:"schema"`
	NextSeq int64  `json:"next_seq"`
	NextPK  int64  `json:"next_pk"`
}

type mirrorRow struct {
	Seq    int64          `json:"seq"`
	Values map[string]any `json:"values"`
	Vector []float32      `json:"vector"`
}

func rowID(seq int64) string {
	return fmt.Sprintf("row-%012d", seq)
}

var writeMirrorMeta = func(ctx context.Context, c *localCollection, nextSeq, nextPK int64) error {
	content, err := json.Marshal(mirrorMeta{Schema: c.schema, NextSeq: nextSeq, NextPK: nextPK})
	if err != nil {
		return fmt.Errorf("encoding collection metadata: %w", err)
	}
	return c.mirror.AddDocument(ctx, chromem.Document{
		ID:        mirrorMetaID,
		Metadata:  map[string]string{"schema_version": mirrorSchemaVersion},
		Embedding: []float32{1},
		Content:   string(content),
	})
}

func readMirrorMeta(ctx context.Context, col *chromem.Collection) (*mirrorMeta, error) {
	doc, err := col.GetByID(ctx, mirrorMetaID)
	if err != nil {
		return nil, err
	}
	var meta mirrorMeta
	if err := json.Unmarshal([]byte(doc.Content), &meta); err != nil {
		return nil, fmt.Errorf("decoding collection metadata: %w", err)
	}
	return &meta, nil
}

func mirrorRows(ctx context.Context, c *localCollection, rows []*row) error {
	if len(rows) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(rows))
	for i, r := range rows {
		content, err := json.Marshal(mirrorRow{Seq: r.seq, Values: r.values, Vector: r.vector})
		if err != nil {
			return fmt.Errorf("encoding row %d: %w", r.seq, err)
		}
		docs[i] = chromem.Document{
			ID:        rowID(r.seq),
			Metadata:  stringMetadata(r.values),
			Embedding: placeholderEmbedding(r.vector),
			Content:   string(content),
		}
	}
	if err := c.mirror.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("persisting rows: %w", err)
	}
	return nil
}

func unmirrorRows(ctx context.Context, c *localCollection, rows []*row) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = rowID(r.seq)
	}
	return c.mirror.Delete(ctx, nil, nil, ids...)
}

// readMirrorRows reads every persisted row in insertion order. Sequence
// numbers without a document belong to deleted rows.
func readMirrorRows(ctx context.Context, c *localCollection) ([]*row, error) {
	rows := make([]*row, 0, max(c.mirror.Count()-1, 0))
	for seq := int64(0); seq < c.nextSeq; seq++ {
		doc, err := c.mirror.GetByID(ctx, rowID(seq))
		if err != nil {
			continue
		}

		var stored mirrorRow
		if err := json.Unmarshal([]byte(doc.Content), &stored); err != nil {
			return nil, fmt.Errorf("decoding row %d: %w", seq, err)
		}
		values := make(Record, len(stored.Values))
		for _, f := range c.schema.Fields {
			v, ok := stored.Values[f.Name]
			if !ok || f.Type == FieldFloatVector {
				continue
			}
			cv, err := coerce(f, v)
			if err != nil {
				return nil, fmt.Errorf("decoding row %d: %w", seq, err)
			}
			values[f.Name] = cv
		}
		rows = append(rows, &row{seq: stored.Seq, values: values, vector: stored.Vector})
	}
	return rows, nil
}

func stringMetadata(values Record) map[string]string {
	m := make(map[string]string, len(values))
	for k, v := range values {
		m[k] = fmt.Sprint(v)
	}
	return m
}

// placeholderEmbedding returns a unit vector chromem accepts without
// producing NaNs for zero vectors.
func placeholderEmbedding(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		if len(out) > 0 {
			out[0] = 1
		}
		return out
	}
	n := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}
