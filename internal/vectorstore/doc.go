// Package vectorstore stores schema-typed embedding records in named
// collections and answers exact nearest-neighbour and filtered scan queries.
//
// Two providers implement Store:
//
//   - "local" (default): an in-process index persisted through chromem-go.
//     No external services are required.
//   - "qdrant": a Qdrant server reached over gRPC.
//
// # Collections
//
// A collection is created from a Schema that declares exactly one primary
// key field and exactly one float_vector field. Creating a collection that
// already exists drops the old one first. Every inserted record must carry
// exactly the declared fields and an embedding of the declared dimension.
//
// Each collection moves through Created, Loaded and Dropped. Insert, Search
// and GetAll load a created collection on first use. A dropped collection
// answers ErrUnknownCollection until it is created again.
//
// # Search
//
// Search returns at most k records ordered by ascending distance under the
// collection metric. The filter expression is applied before ranking, so the
// result always equals the k nearest records among those that satisfy it.
// Equal distances keep insertion order.
//
//	store, err := vectorstore.NewLocalStore(vectorstore.LocalConfig{Path: dir}, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	if err := store.CreateCollection(ctx, "transcript_collection", schema); err != nil {
//	    return err
//	}
//	results, err := store.Search(ctx, "transcript_collection", query, 5,
//	    "view_count > 1000", []string{"title"})
//
// Filter syntax is documented in package filter.
package vectorstore
