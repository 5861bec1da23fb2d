package records

import (
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore"
)

// Field names shared by the standard collections.
const (
	FieldPK             = "pk"
	FieldID             = "id"
	FieldEmbeddings     = "embeddings"
	FieldStart          = "start"
	FieldEnd            = "end"
	FieldTranscriptPath = "transcript_path"
	FieldChunkHash      = "chunk_hash"
)

// DefaultDimension matches sentence-transformers/all-MiniLM-L6-v2.
const DefaultDimension = 384

// MetadataSchema is the schema of the per-source metadata collection. Its
// embedding is computed from the source description.
func MetadataSchema(dim int) vectorstore.Schema {
	return vectorstore.Schema{
		Description: "one row per ingested source",
		Fields: []vectorstore.Field{
			{Name: FieldPK, Type: vectorstore.FieldInt64, Primary: true, AutoID: true},
			{Name: FieldID, Type: vectorstore.FieldString, Required: true, MaxLength: 2048},
			{Name: "uri", Type: vectorstore.FieldString, MaxLength: 2048},
			{Name: "source_type", Type: vectorstore.FieldString, MaxLength: 100},
			{Name: "title", Type: vectorstore.FieldString, MaxLength: 1000},
			{Name: "description", Type: vectorstore.FieldString},
			{Name: "publish_date", Type: vectorstore.FieldString, MaxLength: 50},
			{Name: "view_count", Type: vectorstore.FieldInt64},
			{Name: "like_count", Type: vectorstore.FieldInt64},
			{Name: "dislike_count", Type: vectorstore.FieldInt64},
			{Name: "comment_count", Type: vectorstore.FieldInt64},
			{Name: FieldEmbeddings, Type: vectorstore.FieldFloatVector, Dim: dim},
		},
		Index: vectorstore.DefaultIndex(),
	}
}

// TranscriptSchema is the schema of the chunk collection. Chunk text is not
// stored; it is read back from transcript_path using start and end, and
// checked against chunk_hash.
func TranscriptSchema(dim int) vectorstore.Schema {
	return vectorstore.Schema{
		Description: "one row per transcript chunk",
		Fields: []vectorstore.Field{
			{Name: FieldPK, Type: vectorstore.FieldInt64, Primary: true, AutoID: true},
			{Name: FieldID, Type: vectorstore.FieldString, Required: true, MaxLength: 2048},
			{Name: FieldStart, Type: vectorstore.FieldInt64, Required: true},
			{Name: FieldEnd, Type: vectorstore.FieldInt64, Required: true},
			{Name: FieldTranscriptPath, Type: vectorstore.FieldString, Required: true, MaxLength: 4096},
			{Name: FieldChunkHash, Type: vectorstore.FieldString, MaxLength: 64},
			{Name: FieldEmbeddings, Type: vectorstore.FieldFloatVector, Dim: dim},
		},
		Index: vectorstore.DefaultIndex(),
	}
}
