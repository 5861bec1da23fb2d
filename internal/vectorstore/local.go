package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore/filter"
)

const providerLocal = "local"

// LocalConfig configures the embedded store.
type LocalConfig struct {
	// Path is the directory for persistent storage. Empty keeps everything
	// in memory for the lifetime of the process.
	Path string

	// Compress enables gzip compression of persisted documents.
	Compress bool
}

// LocalStore is an exact-search Store that keeps rows in memory and
// persists them through chromem-go.
//
// Search scans every row of the collection under the collection metric, so
// filtered and unfiltered results are exact.
type LocalStore struct {
	mu          sync.RWMutex
	db          *chromem.DB
	path        string
	collections map[string]*localCollection
	logger      *zap.Logger
	closed      bool
}

type localCollection struct {
	name    string
	schema  Schema
	state   CollectionState
	rows    []*row
	nextSeq int64
	nextPK  int64
	mirror  *chromem.Collection
}

// row is one stored record. values holds every scalar field including the
// primary key.
type row struct {
	seq    int64
	values Record
	vector []float32
}

// NewLocalStore opens the store at cfg.Path, restoring collections that
// were persisted by a previous process.
func NewLocalStore(cfg LocalConfig, logger *zap.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	path := ""
	if cfg.Path != "" {
		expanded, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(expanded, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", expanded, err)
		}
		db, err = chromem.NewPersistentDB(expanded, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		path = expanded
	} else {
		db = chromem.NewDB()
	}

	s := &LocalStore{
		db:          db,
		path:        path,
		collections: make(map[string]*localCollection),
		logger:      logger,
	}
	if err := s.restore(context.Background()); err != nil {
		return nil, err
	}

	logger.Info("local vector store initialized",
		zap.String("path", path),
		zap.Bool("compress", cfg.Compress),
		zap.Int("collections", len(s.collections)),
	)
	return s, nil
}

// restore registers every persisted collection in the Created state.
func (s *LocalStore) restore(ctx context.Context) error {
	for name, col := range s.db.ListCollections() {
		meta, err := readMirrorMeta(ctx, col)
		if err != nil {
			s.logger.Warn("skipping persisted collection without metadata",
				zap.String("collection", name), zap.Error(err))
			continue
		}
		if err := meta.Schema.Validate(); err != nil {
			return fmt.Errorf("restoring collection %s: %w", name, err)
		}
		s.collections[name] = &localCollection{
			name:    name,
			schema:  meta.Schema,
			state:   StateCreated,
			nextSeq: meta.NextSeq,
			nextPK:  meta.NextPK,
			mirror:  col,
		}
	}
	return nil
}

// CreateCollection implements Store.
func (s *LocalStore) CreateCollection(ctx context.Context, name string, schema Schema) (err error) {
	ctx, span := tracer.Start(ctx, "LocalStore.CreateCollection")
	span.SetAttributes(collectionAttr(name))
	defer func(start time.Time) { observe(span, providerLocal, "create_collection", start, err) }(time.Now())

	const op = "vectorstore.create_collection"
	if err := ValidateCollectionName(name); err != nil {
		return ragerr.Wrap(op, ragerr.ErrInvalidArgument, err)
	}
	if err := schema.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed(op)
	}

	if _, exists := s.collections[name]; exists {
		s.logger.Info("replacing existing collection", zap.String("collection", name))
	}
	delete(s.collections, name)
	if err := s.db.DeleteCollection(name); err != nil {
		return ragerr.Wrap(op, ragerr.ErrUnexpectedBackend, err)
	}

	col, err := s.db.CreateCollection(name, map[string]string{"schema_version": mirrorSchemaVersion}, noEmbedding)
	if err != nil {
		return ragerr.Wrap(op, ragerr.ErrUnexpectedBackend, err)
	}

	c := &localCollection{
		name:   name,
		schema: schema,
		state:  StateCreated,
		nextPK: 1,
		mirror: col,
	}
	if err := writeMirrorMeta(ctx, c, c.nextSeq, c.nextPK); err != nil {
		return ragerr.Wrap(op, ragerr.ErrUnexpectedBackend, err)
	}
	s.collections[name] = c

	s.logger.Debug("collection created",
		zap.String("collection", name),
		zap.Int("dim", schema.Dim()),
		zap.String("metric", string(schema.Metric())),
	)
	return nil
}

// Insert implements Store.
func (s *LocalStore) Insert(ctx context.Context, name string, records []Record) (ids []any, err error) {
	ctx, span := tracer.Start(ctx, "LocalStore.Insert")
	span.SetAttributes(collectionAttr(name))
	defer func(start time.Time) { observe(span, providerLocal, "insert", start, err) }(time.Now())

	const op = "vectorstore.insert"

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(op, name)
	if err != nil {
		return nil, err
	}
	if err := s.load(ctx, c); err != nil {
		return nil, err
	}
	if err := checkDimensions(op, c.schema, records); err != nil {
		return nil, err
	}

	pkName := c.schema.PrimaryField().Name
	autoID := c.schema.PrimaryField().AutoID
	nextSeq, nextPK := c.nextSeq, c.nextPK

	rows := make([]*row, 0, len(records))
	ids = make([]any, 0, len(records))
	for _, rec := range records {
		values, vec, err := normalizeRecord(op, c.schema, rec)
		if err != nil {
			return nil, err
		}
		if autoID {
			values[pkName] = nextPK
			nextPK++
		}
		rows = append(rows, &row{seq: nextSeq, values: values, vector: vec})
		ids = append(ids, values[pkName])
		nextSeq++
	}

	if err := mirrorRows(ctx, c, rows); err != nil {
		return nil, ragerr.Wrap(op, ragerr.ErrUnexpectedBackend, err)
	}
	if err := writeMirrorMeta(ctx, c, nextSeq, nextPK); err != nil {
		// Without the advanced counters the mirrored rows would be
		// invisible on reload and their sequence numbers reused.
		if derr := unmirrorRows(ctx, c, rows); derr != nil {
			s.logger.Warn("removing mirrored rows after failed insert",
				zap.String("collection", name), zap.Error(derr))
		}
		return nil, ragerr.Wrap(op, ragerr.ErrUnexpectedBackend, err)
	}

	c.rows = append(c.rows, rows...)
	c.nextSeq, c.nextPK = nextSeq, nextPK
	RecordsInserted.WithLabelValues(providerLocal, name).Add(float64(len(rows)))
	return ids, nil
}

// Search implements Store.
func (s *LocalStore) Search(ctx context.Context, name string, query []float32, k int, filterExpr string, outputFields []string) (results []SearchResult, err error) {
	ctx, span := tracer.Start(ctx, "LocalStore.Search")
	span.SetAttributes(collectionAttr(name))
	defer func(start time.Time) { observe(span, providerLocal, "search", start, err) }(time.Now())

	const op = "vectorstore.search"
	if k <= 0 {
		return nil, ragerr.New(op, ragerr.ErrInvalidArgument, "k must be positive, got %d", k)
	}

	c, release, err := s.readCollection(ctx, op, name)
	if err != nil {
		return nil, err
	}
	defer release()

	if len(query) != c.schema.Dim() {
		return nil, ragerr.New(op, ragerr.ErrDimensionMismatch, "query: %s", fmtDim(c.schema.VectorField().Name, c.schema.Dim(), len(query)))
	}
	node, err := c.schema.compileFilter(op, filterExpr)
	if err != nil {
		return nil, err
	}
	fields, err := c.schema.outputFields(op, outputFields)
	if err != nil {
		return nil, err
	}

	metric := c.schema.Metric()
	cands := make([]candidate, 0, len(c.rows))
	for _, r := range c.rows {
		if !filter.Eval(node, r.values) {
			continue
		}
		cands = append(cands, candidate{seq: r.seq, distance: Distance(metric, query, r.vector), row: r})
	}

	vf := c.schema.VectorField().Name
	top := topK(cands, k)
	results = make([]SearchResult, len(top))
	for i, cand := range top {
		results[i] = SearchResult{
			Record:   project(cand.row.values, cand.row.vector, vf, fields),
			Distance: cand.distance,
		}
	}
	return results, nil
}

// GetAll implements Store.
func (s *LocalStore) GetAll(ctx context.Context, name string, filterExpr string, outputFields []string, limit int) (records []Record, err error) {
	ctx, span := tracer.Start(ctx, "LocalStore.GetAll")
	span.SetAttributes(collectionAttr(name))
	defer func(start time.Time) { observe(span, providerLocal, "get_all", start, err) }(time.Now())

	const op = "vectorstore.get_all"

	c, release, err := s.readCollection(ctx, op, name)
	if err != nil {
		return nil, err
	}
	defer release()

	node, err := c.schema.compileFilter(op, filterExpr)
	if err != nil {
		return nil, err
	}
	fields, err := c.schema.outputFields(op, outputFields)
	if err != nil {
		return nil, err
	}

	vf := c.schema.VectorField().Name
	records = []Record{}
	for _, r := range c.rows {
		if limit > 0 && len(records) >= limit {
			break
		}
		if filter.Eval(node, r.values) {
			records = append(records, project(r.values, r.vector, vf, fields))
		}
	}
	return records, nil
}

// Delete implements Store.
func (s *LocalStore) Delete(ctx context.Context, name string, filterExpr string) (n int, err error) {
	ctx, span := tracer.Start(ctx, "LocalStore.Delete")
	span.SetAttributes(collectionAttr(name))
	defer func(start time.Time) { observe(span, providerLocal, "delete", start, err) }(time.Now())

	const op = "vectorstore.delete"

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(op, name)
	if err != nil {
		return 0, err
	}
	node, err := c.schema.compileFilter(op, filterExpr)
	if err != nil {
		return 0, err
	}
	if err := s.load(ctx, c); err != nil {
		return 0, err
	}

	var ids []string
	kept := c.rows[:0:0]
	for _, r := range c.rows {
		if filter.Eval(node, r.values) {
			ids = append(ids, rowID(r.seq))
		} else {
			kept = append(kept, r)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := c.mirror.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, ragerr.Wrap(op, ragerr.ErrUnexpectedBackend, err)
	}
	c.rows = kept
	return len(ids), nil
}

// DescribeCollection implements Store.
func (s *LocalStore) DescribeCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	const op = "vectorstore.describe_collection"

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.lookup(op, name)
	if err != nil {
		return nil, err
	}

	count := int64(len(c.rows))
	if c.state == StateCreated {
		// Rows are not loaded yet; the mirror also holds the metadata document.
		count = int64(max(c.mirror.Count()-1, 0))
	}
	return &CollectionInfo{
		Name:     name,
		Schema:   c.schema,
		State:    c.state,
		RowCount: count,
		Provider: providerLocal,
	}, nil
}

// DropCollection implements Store.
func (s *LocalStore) DropCollection(ctx context.Context, name string) (err error) {
	_, span := tracer.Start(ctx, "LocalStore.DropCollection")
	span.SetAttributes(collectionAttr(name))
	defer func(start time.Time) { observe(span, providerLocal, "drop_collection", start, err) }(time.Now())

	const op = "vectorstore.drop_collection"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed(op)
	}

	delete(s.collections, name)
	if err := s.db.DeleteCollection(name); err != nil {
		return ragerr.Wrap(op, ragerr.ErrUnexpectedBackend, err)
	}
	return nil
}

// ListCollections implements Store.
func (s *LocalStore) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed("vectorstore.list_collections")
	}

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Close implements Store. Persisted data stays on disk.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.collections = nil
	s.logger.Debug("local vector store closed", zap.String("path", s.path))
	return nil
}

// lookup returns the live collection. Callers hold s.mu.
func (s *LocalStore) lookup(op, name string) (*localCollection, error) {
	if s.closed {
		return nil, errClosed(op)
	}
	c, ok := s.collections[name]
	if !ok {
		return nil, ragerr.New(op, ragerr.ErrUnknownCollection, "collection %q does not exist", name)
	}
	return c, nil
}

// readCollection returns a loaded collection under the read lock. The
// returned release func must be called when the caller is done.
func (s *LocalStore) readCollection(ctx context.Context, op, name string) (*localCollection, func(), error) {
	for {
		s.mu.RLock()
		c, err := s.lookup(op, name)
		if err != nil {
			s.mu.RUnlock()
			return nil, nil, err
		}
		if c.state == StateLoaded {
			return c, s.mu.RUnlock, nil
		}
		s.mu.RUnlock()

		s.mu.Lock()
		c, err = s.lookup(op, name)
		if err == nil {
			err = s.load(ctx, c)
		}
		s.mu.Unlock()
		if err != nil {
			return nil, nil, err
		}
	}
}

// load moves a collection from Created to Loaded, reading persisted rows.
// Callers hold the write lock.
func (s *LocalStore) load(ctx context.Context, c *localCollection) error {
	if c.state == StateLoaded {
		return nil
	}
	rows, err := readMirrorRows(ctx, c)
	if err != nil {
		return ragerr.Wrap("vectorstore.load", ragerr.ErrUnexpectedBackend, err)
	}
	c.rows = rows
	c.state = StateLoaded

	s.logger.Debug("collection loaded",
		zap.String("collection", c.name),
		zap.Int("rows", len(rows)),
	)
	return nil
}

func errClosed(op string) error {
	return ragerr.New(op, ragerr.ErrUnexpectedBackend, "store is closed")
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

var _ Store = (*LocalStore)(nil)
