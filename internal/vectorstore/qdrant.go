package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/transcriptrag/internal/ragerr"
	"github.com/fyrsmithlabs/transcriptrag/internal/vectorstore/filter"
)

const providerQdrant = "qdrant"

// Reserved payload keys. User fields may not start with a double underscore.
const (
	payloadSeq     = "__seq"
	payloadSchema  = "__schema"
	payloadNextSeq = "__next_seq"
	payloadNextPK  = "__next_pk"
)

// metaPointID holds the collection schema and counters. Data points use
// ids from 1 upwards, so scroll order equals insertion order.
const metaPointID = 0

// tieWindow extra points are fetched per search so that equal distances at
// the k boundary can be reordered by insertion sequence. Ties running past
// the window fall back to a full scan.
const tieWindow = 16

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// APIKey authenticates against Qdrant Cloud. Optional.
	APIKey string

	// UseTLS enables TLS encryption for the gRPC connection.
	UseTLS bool

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// CircuitBreakerThreshold is the number of consecutive failures before
	// calls are rejected without reaching the server.
	// Default: 5
	CircuitBreakerThreshold int

	// CircuitBreakerCooldown is how long an open circuit rejects calls.
	// Default: 30s
	CircuitBreakerCooldown time.Duration

	// ScrollPageSize bounds each scroll request.
	// Default: 256
	ScrollPageSize uint32
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024 // 50MB
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.CircuitBreakerCooldown == 0 {
		c.CircuitBreakerCooldown = 30 * time.Second
	}
	if c.ScrollPageSize == 0 {
		c.ScrollPageSize = 256
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return errors.New("qdrant host required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid qdrant port: %d", c.Port)
	}
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("invalid max message size: %d", c.MaxMessageSize)
	}
	return nil
}

// IsTransientError reports whether err is a gRPC failure that may succeed
// when repeated: unavailability, deadlines, aborts and exhausted resources.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore is a Store backed by a Qdrant server over gRPC.
//
// Each collection keeps its schema and counters in a reserved metadata
// point, so collections created by earlier processes are restored on
// startup. Searches run with exact=true. Filters that Qdrant cannot express
// (regular expressions, string ordering, date comparisons) are evaluated in
// process over a full scroll of the collection.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	mu          sync.RWMutex
	collections map[string]*qdrantCollection
	closed      bool

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

type qdrantCollection struct {
	name    string
	schema  Schema
	state   CollectionState
	nextSeq int64
	nextPK  int64
}

// NewQdrantStore connects to Qdrant, checks its health and restores the
// collections created by earlier processes.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, ragerr.Wrap("vectorstore.connect", ragerr.ErrUnexpectedBackend, err)
	}

	store := &QdrantStore{
		client:      client,
		config:      config,
		logger:      logger,
		collections: make(map[string]*qdrantCollection),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.healthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := store.restore(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant vector store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Int("collections", len(store.collections)),
	)
	return store, nil
}

func (s *QdrantStore) healthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.HealthCheck")
	defer span.End()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		return s.backendErr("vectorstore.health_check", err)
	}
	return nil
}

// restore registers collections that carry a metadata point. Collections
// without one were not created by this package and are ignored.
func (s *QdrantStore) restore(ctx context.Context) error {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return s.backendErr("vectorstore.restore", err)
	}
	for _, name := range names {
		points, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: name,
			Ids:            []*qdrant.PointId{qdrant.NewIDNum(metaPointID)},
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil || len(points) == 0 {
			continue
		}
		c, err := decodeMeta(name, points[0].GetPayload())
		if err != nil {
			s.logger.Warn("skipping qdrant collection with unreadable metadata",
				zap.String("collection", name), zap.Error(err))
			continue
		}
		s.collections[name] = c
	}
	return nil
}

// CreateCollection implements Store.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string, schema Schema) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.CreateCollection")
	span.SetAttributes(collectionAttr(name))
	defer func(start time.Time) { observe(span, providerQdrant, "create_collection", start, err) }(time.Now())

	const op = "vectorstore.create_collection"
	if err := ValidateCollectionName(name); err != nil {
		return ragerr.Wrap(op, ragerr.ErrInvalidArgument, err)
	}
	if err := schema.Validate(); err != nil {
		return err
	}
	for _, f := range schema.Fields {
		if strings.HasPrefix(f.Name, "__") {
			return schemaErr("field name %q is reserved", f.Name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(op); err != nil {
		return err
	}

	delete(s.collections, name)
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return s.backendErr(op, err)
	}
	if exists {
		s.logger.Info("replacing existing collection", zap.String("collection", name))
		if err := s.client.DeleteCollection(ctx, name); err != nil {
			return s.backendErr(op, err)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(schema.Dim()),
			Distance: qdrantDistance(schema.Metric()),
		}),
	})
	if err != nil {
		return s.backendErr(op, err)
	}

	for _, f := range schema.Fields {
		ft, ok := qdrantFieldType(f.Type)
		if !ok {
			continue
		}
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			FieldName:      f.Name,
			FieldType:      qdrant.PtrOf(ft),
		})
		if err != nil {
			return s.backendErr(op, err)
		}
	}

	c := &qdrantCollection{name: name, schema: schema, state: StateCreated, nextSeq: 1, nextPK: 1}
	meta, err := encodeMeta(c, c.nextSeq, c.nextPK)
	if err != nil {
		return ragerr.Wrap(op, ragerr.ErrUnexpectedBackend, err)
	}
	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{meta},
	}); err != nil {
		return s.backendErr(op, err)
	}
	s.recordSuccess()
	s.collections[name] = c

	s.logger.Debug("collection created",
		zap.String("collection", name),
		zap.Int("dim", schema.Dim()),
		zap.String("metric", string(schema.Metric())),
	)
	return nil
}

// Insert implements Store.
func (s *QdrantStore) Insert(ctx context.Context, name string, records []Record) (ids []any, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Insert")
	span.SetAttributes(collectionAttr(name))
	defer func(start time.Time) { observe(span, providerQdrant, "insert", start, err) }(time.Now())

	const op = "vectorstore.insert"

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(op, name)
	if err != nil {
		return nil, err
	}
	if err := checkDimensions(op, c.schema, records); err != nil {
		return nil, err
	}

	pkName := c.schema.PrimaryField().Name
	autoID := c.schema.PrimaryField().AutoID
	nextSeq, nextPK := c.nextSeq, c.nextPK

	points := make([]*qdrant.PointStruct, 0, len(records)+1)
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
		payload, err := qdrant.TryValueMap(map[string]any(values))
		if err != nil {
			return nil, ragerr.Wrap(op, ragerr.ErrSchemaError, err)
		}
		payload[payloadSeq] = qdrant.NewValueInt(nextSeq)
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(nextSeq)),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: payload,
		})
		ids = append(ids, values[pkName])
		nextSeq++
	}
	if len(ids) == 0 {
		return ids, nil
	}

	meta, err := encodeMeta(c, nextSeq, nextPK)
	if err != nil {
		return nil, ragerr.Wrap(op, ragerr.ErrUnexpectedBackend, err)
	}
	points = append(points, meta)

	if err := s.allow(op); err != nil {
		return nil, err
	}
	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	}); err != nil {
		return nil, s.backendErr(op, err)
	}
	s.recordSuccess()

	c.nextSeq, c.nextPK = nextSeq, nextPK
	c.state = StateLoaded
	RecordsInserted.WithLabelValues(providerQdrant, name).Add(float64(len(ids)))
	return ids, nil
}

// Search implements Store.
func (s *QdrantStore) Search(ctx context.Context, name string, query []float32, k int, filterExpr string, outputFields []string) (results []SearchResult, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Search")
	span.SetAttributes(collectionAttr(name))
	defer func(start time.Time) { observe(span, providerQdrant, "search", start, err) }(time.Now())

	const op = "vectorstore.search"
	if k <= 0 {
		return nil, ragerr.New(op, ragerr.ErrInvalidArgument, "k must be positive, got %d", k)
	}

	c, err := s.prepare(op, name)
	if err != nil {
		return nil, err
	}
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
	vf := c.schema.VectorField().Name
	wantVectors := slices.Contains(fields, vf)

	qf, native := translateFilter(node, c.schema)
	if !native {
		return s.searchLocally(ctx, op, c, query, k, node, fields)
	}

	if err := s.allow(op); err != nil {
		return nil, err
	}
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQueryDense(query),
		Filter:         withoutMeta(qf),
		Params:         &qdrant.SearchParams{Exact: qdrant.PtrOf(true)},
		Limit:          qdrant.PtrOf(uint64(k + tieWindow)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(wantVectors),
	})
	if err != nil {
		return nil, s.backendErr(op, err)
	}
	s.recordSuccess()

	metric := c.schema.Metric()
	cands := make([]candidate, 0, len(hits))
	for _, h := range hits {
		r := decodePoint(c.schema, h.GetPayload(), vectorData(h.GetVectors()))
		cands = append(cands, candidate{
			seq:      r.seq,
			distance: distanceFromScore(metric, h.GetScore()),
			row:      r,
		})
	}
	if tieUnresolved(cands, k, k+tieWindow) {
		s.logger.Debug("distance tie beyond search window, scanning collection",
			zap.String("collection", name), zap.Int("k", k))
		return s.searchLocally(ctx, op, c, query, k, node, fields)
	}
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

// tieUnresolved reports whether a page of limit hits cannot settle the
// top k: the page is full and its last hit ties the k-th distance, so
// points with that distance and a lower sequence may not have been
// returned. cands is sorted in place.
func tieUnresolved(cands []candidate, k, limit int) bool {
	if k <= 0 || len(cands) < limit || len(cands) < k {
		return false
	}
	cands = topK(cands, len(cands))
	return cands[k-1].distance == cands[len(cands)-1].distance
}

// searchLocally scores every matching point in process.
func (s *QdrantStore) searchLocally(ctx context.Context, op string, c *qdrantCollection, query []float32, k int, node filter.Node, fields []string) ([]SearchResult, error) {
	metric := c.schema.Metric()
	vf := c.schema.VectorField().Name

	var cands []candidate
	err := s.scroll(ctx, op, c, nil, true, func(r *row) bool {
		if filter.Eval(node, r.values) {
			cands = append(cands, candidate{seq: r.seq, distance: Distance(metric, query, r.vector), row: r})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	top := topK(cands, k)
	results := make([]SearchResult, len(top))
	for i, cand := range top {
		results[i] = SearchResult{
			Record:   project(cand.row.values, cand.row.vector, vf, fields),
			Distance: cand.distance,
		}
	}
	return results, nil
}

// GetAll implements Store.
func (s *QdrantStore) GetAll(ctx context.Context, name string, filterExpr string, outputFields []string, limit int) (records []Record, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.GetAll")
	span.SetAttributes(collectionAttr(name))
	defer func(start time.Time) { observe(span, providerQdrant, "get_all", start, err) }(time.Now())

	const op = "vectorstore.get_all"

	c, err := s.prepare(op, name)
	if err != nil {
		return nil, err
	}
	node, err := c.schema.compileFilter(op, filterExpr)
	if err != nil {
		return nil, err
	}
	fields, err := c.schema.outputFields(op, outputFields)
	if err != nil {
		return nil, err
	}
	vf := c.schema.VectorField().Name
	qf, native := translateFilter(node, c.schema)

	records = []Record{}
	err = s.scroll(ctx, op, c, qf, slices.Contains(fields, vf), func(r *row) bool {
		if limit > 0 && len(records) >= limit {
			return false
		}
		if native || filter.Eval(node, r.values) {
			records = append(records, project(r.values, r.vector, vf, fields))
		}
		return limit <= 0 || len(records) < limit
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Delete implements Store.
func (s *QdrantStore) Delete(ctx context.Context, name string, filterExpr string) (n int, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Delete")
	span.SetAttributes(collectionAttr(name))
	defer func(start time.Time) { observe(span, providerQdrant, "delete", start, err) }(time.Now())

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
	qf, native := translateFilter(node, c.schema)

	var ids []*qdrant.PointId
	err = s.scroll(ctx, op, c, qf, false, func(r *row) bool {
		if native || filter.Eval(node, r.values) {
			ids = append(ids, qdrant.NewIDNum(uint64(r.seq)))
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.allow(op); err != nil {
		return 0, err
	}
	if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorIDs(ids),
	}); err != nil {
		return 0, s.backendErr(op, err)
	}
	s.recordSuccess()
	return len(ids), nil
}

// DescribeCollection implements Store.
func (s *QdrantStore) DescribeCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	const op = "vectorstore.describe_collection"

	c, err := s.prepare(op, name)
	if err != nil {
		return nil, err
	}
	if err := s.allow(op); err != nil {
		return nil, err
	}
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Filter:         withoutMeta(nil),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, s.backendErr(op, err)
	}
	s.recordSuccess()

	s.mu.RLock()
	state := c.state
	s.mu.RUnlock()
	return &CollectionInfo{
		Name:     name,
		Schema:   c.schema,
		State:    state,
		RowCount: int64(count),
		Provider: providerQdrant,
	}, nil
}

// DropCollection implements Store.
func (s *QdrantStore) DropCollection(ctx context.Context, name string) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.DropCollection")
	span.SetAttributes(collectionAttr(name))
	defer func(start time.Time) { observe(span, providerQdrant, "drop_collection", start, err) }(time.Now())

	const op = "vectorstore.drop_collection"

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(op); err != nil {
		return err
	}

	delete(s.collections, name)
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return s.backendErr(op, err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return s.backendErr(op, err)
	}
	s.recordSuccess()
	return nil
}

// ListCollections implements Store.
func (s *QdrantStore) ListCollections(_ context.Context) ([]string, error) {
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

// Close implements Store.
func (s *QdrantStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.collections = nil
	return s.client.Close()
}

// prepare returns a collection snapshot, marking it loaded.
func (s *QdrantStore) prepare(op, name string) (*qdrantCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.lookup(op, name)
	if err != nil {
		return nil, err
	}
	c.state = StateLoaded
	snapshot := *c
	return &snapshot, nil
}

func (s *QdrantStore) lookup(op, name string) (*qdrantCollection, error) {
	if err := s.ready(op); err != nil {
		return nil, err
	}
	c, ok := s.collections[name]
	if !ok {
		return nil, ragerr.New(op, ragerr.ErrUnknownCollection, "collection %q does not exist", name)
	}
	return c, nil
}

func (s *QdrantStore) ready(op string) error {
	if s.closed {
		return errClosed(op)
	}
	return s.allow(op)
}

// scroll pages through the data points of c in id order, calling fn for
// each until it returns false.
func (s *QdrantStore) scroll(ctx context.Context, op string, c *qdrantCollection, qf *qdrant.Filter, withVectors bool, fn func(*row) bool) error {
	var offset *qdrant.PointId
	for {
		if err := s.allow(op); err != nil {
			return err
		}
		points, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: c.name,
			Filter:         withoutMeta(qf),
			Offset:         offset,
			Limit:          qdrant.PtrOf(s.config.ScrollPageSize),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(withVectors),
		})
		if err != nil {
			return s.backendErr(op, err)
		}
		s.recordSuccess()

		for _, p := range points {
			if !fn(decodePoint(c.schema, p.GetPayload(), vectorData(p.GetVectors()))) {
				return nil
			}
		}
		if next == nil || len(points) == 0 {
			return nil
		}
		offset = next
	}
}

// backendErr classifies a client error and feeds the circuit breaker.
func (s *QdrantStore) backendErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ragerr.Wrap(op, ragerr.ErrTimeout, err)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case grpccodes.NotFound:
			return ragerr.Wrap(op, ragerr.ErrUnknownCollection, err)
		case grpccodes.DeadlineExceeded:
			s.recordFailure()
			return ragerr.Wrap(op, ragerr.ErrTimeout, err)
		case grpccodes.InvalidArgument:
			return ragerr.Wrap(op, ragerr.ErrInvalidArgument, err)
		}
	}
	if IsTransientError(err) {
		s.recordFailure()
	}
	return ragerr.Wrap(op, ragerr.ErrUnexpectedBackend, err)
}

func (s *QdrantStore) allow(op string) error {
	if s.isCircuitOpen() {
		return ragerr.New(op, ragerr.ErrUnexpectedBackend, "circuit breaker open after %d failures", s.config.CircuitBreakerThreshold)
	}
	return nil
}

func (s *QdrantStore) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *QdrantStore) recordSuccess() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *QdrantStore) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()

	if s.circuitBreaker.failures >= s.config.CircuitBreakerThreshold {
		if time.Since(s.circuitBreaker.lastFail) > s.config.CircuitBreakerCooldown {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// withoutMeta excludes the metadata point from f.
func withoutMeta(f *qdrant.Filter) *qdrant.Filter {
	out := &qdrant.Filter{}
	if f != nil {
		out.Must = []*qdrant.Condition{qdrant.NewFilterAsCondition(f)}
	}
	out.MustNot = []*qdrant.Condition{qdrant.NewHasID(qdrant.NewIDNum(metaPointID))}
	return out
}

func encodeMeta(c *qdrantCollection, nextSeq, nextPK int64) (*qdrant.PointStruct, error) {
	raw, err := json.Marshal(c.schema)
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDNum(metaPointID),
		Vectors: qdrant.NewVectorsDense(placeholderEmbedding(make([]float32, c.schema.Dim()))),
		Payload: map[string]*qdrant.Value{
			payloadSchema:  qdrant.NewValueString(string(raw)),
			payloadNextSeq: qdrant.NewValueInt(nextSeq),
			payloadNextPK:  qdrant.NewValueInt(nextPK),
		},
	}, nil
}

func decodeMeta(name string, payload map[string]*qdrant.Value) (*qdrantCollection, error) {
	raw, ok := payload[payloadSchema]
	if !ok {
		return nil, errors.New("missing schema")
	}
	var schema Schema
	if err := json.Unmarshal([]byte(raw.GetStringValue()), &schema); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &qdrantCollection{
		name:    name,
		schema:  schema,
		state:   StateCreated,
		nextSeq: payload[payloadNextSeq].GetIntegerValue(),
		nextPK:  payload[payloadNextPK].GetIntegerValue(),
	}, nil
}

// decodePoint converts a payload back into a row with canonical types.
func decodePoint(schema Schema, payload map[string]*qdrant.Value, vec []float32) *row {
	values := make(Record, len(payload))
	for _, f := range schema.Fields {
		v, ok := payload[f.Name]
		if !ok {
			continue
		}
		switch k := v.GetKind().(type) {
		case *qdrant.Value_IntegerValue:
			if f.Type == FieldFloat64 {
				values[f.Name] = float64(k.IntegerValue)
			} else {
				values[f.Name] = k.IntegerValue
			}
		case *qdrant.Value_DoubleValue:
			if f.Type == FieldInt64 {
				values[f.Name] = int64(k.DoubleValue)
			} else {
				values[f.Name] = k.DoubleValue
			}
		case *qdrant.Value_StringValue:
			values[f.Name] = k.StringValue
		case *qdrant.Value_BoolValue:
			values[f.Name] = k.BoolValue
		}
	}
	return &row{
		seq:    payload[payloadSeq].GetIntegerValue(),
		values: values,
		vector: vec,
	}
}

func vectorData(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if out == nil {
		return nil
	}
	if dense := out.GetDense(); dense != nil {
		return dense.GetData()
	}
	return out.GetData() //nolint:staticcheck // servers before 1.13 only fill data
}

func qdrantDistance(m Metric) qdrant.Distance {
	switch m {
	case MetricIP:
		return qdrant.Distance_Dot
	case MetricCosine:
		return qdrant.Distance_Cosine
	default:
		return qdrant.Distance_Euclid
	}
}

// distanceFromScore maps a Qdrant score onto the store's distance scale.
// Euclid scores are already distances; Dot and Cosine are similarities.
func distanceFromScore(m Metric, score float32) float32 {
	switch m {
	case MetricIP:
		return -score
	case MetricCosine:
		return 1 - score
	default:
		return score
	}
}

func qdrantFieldType(t FieldType) (qdrant.FieldType, bool) {
	switch t {
	case FieldInt64:
		return qdrant.FieldType_FieldTypeInteger, true
	case FieldFloat64:
		return qdrant.FieldType_FieldTypeFloat, true
	case FieldString:
		return qdrant.FieldType_FieldTypeKeyword, true
	case FieldBool:
		return qdrant.FieldType_FieldTypeBool, true
	default:
		return 0, false
	}
}

var _ Store = (*QdrantStore)(nil)
