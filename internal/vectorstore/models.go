package vectorstore

// Record is one row of a collection keyed by field name. Embedding fields
// hold []float32.
type Record map[string]any

// SearchResult is one ranked hit.
type SearchResult struct {
	Record   Record  `json:"record"`
	Distance float32 `json:"distance"`
}

// CollectionState is the lifecycle stage of a collection.
type CollectionState string

// Collection lifecycle. Uninitialized and Dropped collections are never
// reported by DescribeCollection; they answer ErrUnknownCollection.
const (
	StateCreated CollectionState = "created"
	StateLoaded  CollectionState = "loaded"
)

// CollectionInfo describes a live collection.
type CollectionInfo struct {
	Name     string          `json:"name"`
	Schema   Schema          `json:"schema"`
	State    CollectionState `json:"state"`
	RowCount int64           `json:"row_count"`
	Provider string          `json:"provider"`
}
