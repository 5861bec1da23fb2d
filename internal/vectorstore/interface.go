package vectorstore

import (
	"context"
)

// Store is a collection-oriented vector store.
//
// Implementations are safe for concurrent use. Errors wrap the kinds in
// package ragerr.
type Store interface {
	// CreateCollection creates name with schema, replacing any existing
	// collection of the same name. Returns ErrSchemaError for invalid schemas.
	CreateCollection(ctx context.Context, name string, schema Schema) error

	// Insert appends records and returns their primary keys. Inserted
	// records are visible to the next Search or GetAll.
	//
	// Returns ErrUnknownCollection if name was not created by this store,
	// ErrDimensionMismatch if any embedding has the wrong length and
	// ErrSchemaError if a record does not match the schema. Nothing is
	// written when an error is returned.
	Insert(ctx context.Context, name string, records []Record) ([]any, error)

	// Search returns at most k records nearest to query that satisfy
	// filterExpr, ordered by ascending distance. Ties keep insertion order.
	Search(ctx context.Context, name string, query []float32, k int, filterExpr string, outputFields []string) ([]SearchResult, error)

	// GetAll returns records satisfying filterExpr in insertion order.
	// limit <= 0 means no limit. No matches yields an empty slice.
	GetAll(ctx context.Context, name string, filterExpr string, outputFields []string, limit int) ([]Record, error)

	// Delete removes records satisfying filterExpr and returns how many
	// were removed. An empty expression removes every record.
	Delete(ctx context.Context, name string, filterExpr string) (int, error)

	// DescribeCollection returns the schema, state and size of name.
	DescribeCollection(ctx context.Context, name string) (*CollectionInfo, error)

	// DropCollection removes name. Dropping an unknown name succeeds.
	DropCollection(ctx context.Context, name string) error

	// ListCollections returns the live collection names, sorted.
	ListCollections(ctx context.Context) ([]string, error)

	// Close releases the backend. The store is unusable afterwards.
	Close() error
}

// Embedder turns text into vectors.
type Embedder interface {
	// EmbedDocuments returns one vector per text, in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
