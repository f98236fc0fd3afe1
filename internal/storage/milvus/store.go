package milvus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/objones25/fuzzgroup/internal/storage"
	"github.com/objones25/fuzzgroup/internal/storage/monitor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the Milvus store
type Config struct {
	Addr           string
	CollectionName string
	Dimension      int
	BatchSize      int
	MaxRetries     int
	Timeout        time.Duration
}

const (
	defaultCollection = "thesis_records"
	defaultDimension  = 384
	defaultBatchSize  = 500
	defaultTimeout    = 30 * time.Second
	storeLabel        = "milvus"

	idField    = "id"
	titleField = "title"
)

// VectorFields names the vector column of each record field, in field order
var VectorFields = []string{
	"title_vector",
	"category_vector",
	"expected_result_vector",
	"problem_solve_vector",
}

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrRecordNotReady    = errors.New("record has no vector for every field")
)

// Ensure Store implements RecordSource
var _ storage.RecordSource = (*Store)(nil)

// Store reads and writes record vectors in a Milvus collection
type Store struct {
	client     client.Client
	collection string
	dimension  int
	batchSize  int
	maxRetries int
	timeout    time.Duration
	logger     zerolog.Logger
}

// New connects to Milvus and makes sure the collection exists
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr cannot be empty")
	}
	if cfg.CollectionName == "" {
		cfg.CollectionName = defaultCollection
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = defaultDimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	connCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	c, err := client.NewGrpcClient(connCtx, cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus: %w", err)
	}

	s := newStore(c, cfg)
	if err := s.EnsureCollection(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize collection: %w", err)
	}
	return s, nil
}

func newStore(c client.Client, cfg Config) *Store {
	return &Store{
		client:     c,
		collection: cfg.CollectionName,
		dimension:  cfg.Dimension,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.Timeout,
		logger:     log.With().Str("component", "milvus").Logger(),
	}
}

// withRetry executes an operation with retry logic
func (s *Store) withRetry(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			case <-time.After(time.Second * time.Duration(attempt)):
			}
		}

		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		lastErr = op(opCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("operation failed after %d attempts: %w", s.maxRetries, lastErr)
}

// Schema describes the record collection
func Schema(collection string, dimension int) *entity.Schema {
	fields := []*entity.Field{
		{
			Name:       idField,
			DataType:   entity.FieldTypeVarChar,
			PrimaryKey: true,
			TypeParams: map[string]string{
				"max_length": "256",
			},
		},
		{
			Name:     titleField,
			DataType: entity.FieldTypeVarChar,
			TypeParams: map[string]string{
				"max_length": "1024",
			},
		},
	}
	for _, name := range VectorFields {
		fields = append(fields, &entity.Field{
			Name:     name,
			DataType: entity.FieldTypeFloatVector,
			TypeParams: map[string]string{
				"dim": strconv.Itoa(dimension),
			},
		})
	}
	return &entity.Schema{
		CollectionName: collection,
		Description:    "Thesis record embeddings, one vector per text field",
		Fields:         fields,
	}
}

// EnsureCollection creates, indexes and loads the collection if it is missing
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return s.client.LoadCollection(ctx, s.collection, false)
	}

	start := time.Now()
	if err := s.client.CreateCollection(ctx, Schema(s.collection, s.dimension), 2); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// every vector field needs an index before the collection can be loaded
	for _, name := range VectorFields {
		idx, err := entity.NewIndexIvfFlat(entity.L2, 128)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := s.client.CreateIndex(ctx, s.collection, name, idx, false); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", name, err)
		}
	}

	if err := s.client.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	s.logger.Info().
		Str("collection", s.collection).
		Int("dimension", s.dimension).
		Dur("took", time.Since(start)).
		Msg("Created collection")
	return nil
}

// Insert writes the vectors of ready records in batches
func (s *Store) Insert(ctx context.Context, records []*storage.Record) (err error) {
	start := time.Now()
	defer func() { monitor.Observe(storeLabel, "insert", start, err) }()

	for lo := 0; lo < len(records); lo += s.batchSize {
		hi := min(lo+s.batchSize, len(records))
		columns, err := buildColumns(records[lo:hi], s.dimension)
		if err != nil {
			return storage.NewOpError("insert", "", err)
		}
		err = s.withRetry(ctx, func(ctx context.Context) error {
			_, err := s.client.Insert(ctx, s.collection, "", columns...)
			return err
		})
		if err != nil {
			return storage.NewOpError("insert", "", err)
		}
	}

	if len(records) > 0 {
		if err := s.client.Flush(ctx, s.collection, false); err != nil {
			return storage.NewOpError("flush", s.collection, err)
		}
	}
	return nil
}

// Records loads record vectors by ID. Unknown IDs are skipped.
func (s *Store) Records(ctx context.Context, ids []string) (records []*storage.Record, err error) {
	start := time.Now()
	defer func() { monitor.Observe(storeLabel, "records", start, err) }()

	if len(ids) == 0 {
		return nil, nil
	}

	outputFields := append([]string{idField, titleField}, VectorFields...)
	found := make(map[string]*storage.Record, len(ids))

	for lo := 0; lo < len(ids); lo += s.batchSize {
		hi := min(lo+s.batchSize, len(ids))
		expr := idExpr(ids[lo:hi])

		var chunk []*storage.Record
		err := s.withRetry(ctx, func(ctx context.Context) error {
			result, err := s.client.Query(ctx, s.collection, []string{}, expr, outputFields)
			if err != nil {
				return err
			}
			chunk, err = decodeColumns(result)
			return err
		})
		if err != nil {
			return nil, storage.NewOpError("records", "", err)
		}
		for _, r := range chunk {
			found[r.ID] = r
		}
	}

	records = make([]*storage.Record, 0, len(found))
	for _, id := range ids {
		if r, ok := found[id]; ok {
			records = append(records, r)
		}
	}

	s.logger.Debug().
		Int("requested", len(ids)).
		Int("found", len(records)).
		Dur("took", time.Since(start)).
		Msg("Loaded record vectors")
	return records, nil
}

// Health checks that the collection is reachable
func (s *Store) Health(ctx context.Context) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		exists, err := s.client.HasCollection(ctx, s.collection)
		if err != nil {
			return fmt.Errorf("failed to check collection: %w", err)
		}
		if !exists {
			return fmt.Errorf("collection %s does not exist", s.collection)
		}
		return nil
	})
}

// Close closes the client connection
func (s *Store) Close() error {
	return s.client.Close()
}

// idExpr builds a boolean expression matching the given primary keys
func idExpr(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return fmt.Sprintf("%s in [%s]", idField, strings.Join(quoted, ","))
}

// buildColumns converts records into insert columns
func buildColumns(records []*storage.Record, dimension int) ([]entity.Column, error) {
	ids := make([]string, len(records))
	titles := make([]string, len(records))
	vectors := make([][][]float32, len(VectorFields))
	for f := range vectors {
		vectors[f] = make([][]float32, len(records))
	}

	for i, r := range records {
		if !r.Ready(len(VectorFields)) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotReady, r.ID)
		}
		ids[i] = r.ID
		titles[i] = r.Title
		for f, v := range r.Vectors {
			if len(v) != dimension {
				return nil, fmt.Errorf("%w: record %s field %d has %d, want %d",
					ErrDimensionMismatch, r.ID, f, len(v), dimension)
			}
			vectors[f][i] = v
		}
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(idField, ids),
		entity.NewColumnVarChar(titleField, titles),
	}
	for f, name := range VectorFields {
		columns = append(columns, entity.NewColumnFloatVector(name, dimension, vectors[f]))
	}
	return columns, nil
}

// decodeColumns turns a query result into records
func decodeColumns(columns []entity.Column) ([]*storage.Record, error) {
	var ids []string
	var titles []string
	vectors := make([][][]float32, len(VectorFields))

	for _, col := range columns {
		switch name := col.Name(); name {
		case idField:
			c, ok := col.(*entity.ColumnVarChar)
			if !ok {
				return nil, fmt.Errorf("column %s: unexpected type %T", name, col)
			}
			ids = c.Data()
		case titleField:
			c, ok := col.(*entity.ColumnVarChar)
			if !ok {
				return nil, fmt.Errorf("column %s: unexpected type %T", name, col)
			}
			titles = c.Data()
		default:
			f := fieldIndex(name)
			if f < 0 {
				continue
			}
			c, ok := col.(*entity.ColumnFloatVector)
			if !ok {
				return nil, fmt.Errorf("column %s: unexpected type %T", name, col)
			}
			vectors[f] = c.Data()
		}
	}

	records := make([]*storage.Record, len(ids))
	for i, id := range ids {
		r := &storage.Record{ID: id, Vectors: make([][]float32, len(VectorFields))}
		if i < len(titles) {
			r.Title = titles[i]
		}
		for f := range VectorFields {
			if i < len(vectors[f]) {
				r.Vectors[f] = vectors[f][i]
			}
		}
		records[i] = r
	}
	return records, nil
}

func fieldIndex(name string) int {
	for i, n := range VectorFields {
		if n == name {
			return i
		}
	}
	return -1
}
