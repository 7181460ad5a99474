package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/Aman-CERP/docsearch/pkg/document"
)

// Payload keys written to every Qdrant point.
const (
	payloadChunkID      = "chunk_id"
	payloadParentDocID  = "parent_doc_id"
	payloadTextContent  = "text_content"
	payloadMetadata     = "metadata"
	payloadOriginal     = "original_json_obj"
	payloadOriginalHash = "original_json_obj_hash"
)

// pointNamespace derives Qdrant point UUIDs from chunk IDs, which need not be UUIDs.
var pointNamespace = uuid.MustParse("6f1c4a52-9a3e-4e0b-8d2c-2b7f5d0e9c41")

// QdrantConfig holds the Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host   string `yaml:"host,omitempty"`
	Port   int    `yaml:"port,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty"`

	// MaxMessageSize bounds gRPC messages in bytes (default 50MB).
	MaxMessageSize int `yaml:"max_message_size,omitempty"`
}

// QdrantCollection implements VectorCollection on a Qdrant server.
type QdrantCollection struct {
	mu     sync.RWMutex
	name   string
	client *qdrant.Client
	dims   int
	closed bool
}

var _ VectorCollection = (*QdrantCollection)(nil)

// NewQdrantCollection connects to Qdrant. The connection is lazy; no
// request is made until the first operation.
func NewQdrantCollection(name string, cfg QdrantConfig) (*QdrantCollection, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 50 * 1024 * 1024
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &QdrantCollection{name: name, client: client}, nil
}

// Name returns the collection name.
func (c *QdrantCollection) Name() string { return c.name }

// Exists asks the server whether the collection exists.
func (c *QdrantCollection) Exists(ctx context.Context) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false, fmt.Errorf("collection is closed")
	}
	return c.client.CollectionExists(ctx, c.name)
}

// Create creates a cosine collection of the given dimension if missing.
func (c *QdrantCollection) Create(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("invalid dimension %d", dims)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("collection is closed")
	}
	exists, err := c.client.CollectionExists(ctx, c.name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", c.name, err)
	}
	if !exists {
		err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dims),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", c.name, err)
		}
	}
	c.dims = dims
	return nil
}

// Upsert writes points and waits for the write to be applied.
func (c *QdrantCollection) Upsert(ctx context.Context, points []VectorPoint) error {
	if len(points) == 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("collection is closed")
	}

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		if c.dims > 0 && len(p.Vector) != c.dims {
			return ErrDimensionMismatch{Expected: c.dims, Got: len(p.Vector)}
		}
		payload, err := pointPayload(p.Document)
		if err != nil {
			return fmt.Errorf("encoding payload for %s: %w", p.ID, err)
		}
		qpoints[i] = &qdrant.PointStruct{
			Id:      pointID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		}
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.name,
		Wait:           qdrant.PtrOf(true),
		Points:         qpoints,
	})
	if err != nil {
		return fmt.Errorf("upserting into %s: %w", c.name, err)
	}
	return nil
}

// Delete removes points by chunk ID.
func (c *QdrantCollection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("collection is closed")
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.name,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", c.name, err)
	}
	return nil
}

// Query pushes the threshold and the string, integer and boolean filter
// keys down to Qdrant, then re-checks every filter key locally.
func (c *QdrantCollection) Query(ctx context.Context, q VectorQuery) ([]VectorHit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("collection is closed")
	}
	if c.dims > 0 && len(q.Vector) != c.dims {
		return nil, ErrDimensionMismatch{Expected: c.dims, Got: len(q.Vector)}
	}

	filter, complete := buildFilter(q.Filter)

	limit := q.Limit
	if limit <= 0 || !complete {
		count, err := c.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: c.name,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", c.name, err)
		}
		limit = int(count)
	}
	if limit == 0 {
		return []VectorHit{}, nil
	}

	points, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQuery(q.Vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(float32(q.Threshold)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         filter,
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.name, err)
	}

	hits := make([]VectorHit, 0, len(points))
	for _, p := range points {
		doc, err := documentFromPayload(p.GetPayload())
		if err != nil {
			return nil, err
		}
		if !q.Filter.Matches(doc.Metadata) {
			continue
		}
		hits = append(hits, VectorHit{
			ID:       doc.ChunkID,
			Document: doc,
			Score:    clampScore(float64(p.GetScore())),
		})
	}
	return rankHits(hits, q.Threshold, q.Limit), nil
}

// Count returns the exact point count.
func (c *QdrantCollection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, fmt.Errorf("collection is closed")
	}
	count, err := c.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Drop deletes the collection if it exists.
func (c *QdrantCollection) Drop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("collection is closed")
	}
	exists, err := c.client.CollectionExists(ctx, c.name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", c.name, err)
	}
	if exists {
		if err := c.client.DeleteCollection(ctx, c.name); err != nil {
			return fmt.Errorf("deleting collection %s: %w", c.name, err)
		}
	}
	c.dims = 0
	return nil
}

// Close closes the gRPC connection.
func (c *QdrantCollection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

// pointID maps a chunk ID to a stable UUID point ID.
func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(chunkID)).String())
}

// buildFilter converts the pushable filter keys into Qdrant conditions on
// metadata.<key>. complete is false when some key could only be checked locally.
func buildFilter(f document.Filter) (*qdrant.Filter, bool) {
	if len(f) == 0 {
		return nil, true
	}

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	complete := true
	conditions := make([]*qdrant.Condition, 0, len(keys))
	for _, k := range keys {
		field := fieldCondition(payloadMetadata+"."+k, f[k])
		if field == nil {
			complete = false
			continue
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{Field: field},
		})
	}
	if len(conditions) == 0 {
		return nil, false
	}
	return &qdrant.Filter{Must: conditions}, complete
}

// fieldCondition returns the server-side clause for one filter key, or nil
// for values only the local check can handle (nil, or integers a float64
// cannot hold exactly).
//
// Numbers become a closed range [v, v] rather than an integer match, since
// Qdrant stores 2 and 2.0 under different payload types and only a range
// matches both.
func fieldCondition(key string, v any) *qdrant.FieldCondition {
	switch val := v.(type) {
	case string:
		return &qdrant.FieldCondition{Key: key, Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: val}}}
	case bool:
		return &qdrant.FieldCondition{Key: key, Match: &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: val}}}
	}
	n, ok := exactFloat(v)
	if !ok {
		return nil
	}
	return &qdrant.FieldCondition{Key: key, Range: &qdrant.Range{Gte: qdrant.PtrOf(n), Lte: qdrant.PtrOf(n)}}
}

// maxExactInt is the largest magnitude below which every integer is a float64.
const maxExactInt = 1 << 53

// exactFloat converts a numeric filter value to float64 when no precision is
// lost.
func exactFloat(v any) (float64, bool) {
	var i int64
	switch val := v.(type) {
	case float64:
		return val, !math.IsNaN(val)
	case float32:
		return float64(val), !math.IsNaN(float64(val))
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return exactFloat(n)
		}
		f, err := val.Float64()
		return f, err == nil && !math.IsNaN(f)
	case int:
		i = int64(val)
	case int8:
		i = int64(val)
	case int16:
		i = int64(val)
	case int32:
		i = int64(val)
	case int64:
		i = val
	case uint:
		if uint64(val) > maxExactInt {
			return 0, false
		}
		i = int64(val)
	case uint8:
		i = int64(val)
	case uint16:
		i = int64(val)
	case uint32:
		i = int64(val)
	case uint64:
		if val > maxExactInt {
			return 0, false
		}
		i = int64(val)
	default:
		return 0, false
	}
	if i > maxExactInt || i < -maxExactInt {
		return 0, false
	}
	return float64(i), true
}

// pointPayload encodes a document as a Qdrant payload. Metadata becomes a
// nested struct so it can be filtered; the opaque payload is stored as a
// JSON string.
func pointPayload(doc document.SearchableDocument) (map[string]*qdrant.Value, error) {
	meta := make(map[string]*qdrant.Value, len(doc.Metadata))
	for k, v := range doc.Metadata {
		qv, err := scalarValue(v)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		meta[k] = qv
	}

	original, err := json.Marshal(doc.Original)
	if err != nil {
		return nil, fmt.Errorf("encoding original payload: %w", err)
	}

	return map[string]*qdrant.Value{
		payloadChunkID:      stringValue(doc.ChunkID),
		payloadParentDocID:  stringValue(doc.ParentDocID),
		payloadTextContent:  stringValue(doc.TextContent),
		payloadOriginal:     stringValue(string(original)),
		payloadOriginalHash: stringValue(doc.OriginalHash),
		payloadMetadata: {Kind: &qdrant.Value_StructValue{
			StructValue: &qdrant.Struct{Fields: meta},
		}},
	}, nil
}

// documentFromPayload reverses pointPayload. Integers come back as int64.
func documentFromPayload(payload map[string]*qdrant.Value) (document.SearchableDocument, error) {
	doc := document.SearchableDocument{
		ChunkID:      payload[payloadChunkID].GetStringValue(),
		ParentDocID:  payload[payloadParentDocID].GetStringValue(),
		TextContent:  payload[payloadTextContent].GetStringValue(),
		OriginalHash: payload[payloadOriginalHash].GetStringValue(),
	}

	if fields := payload[payloadMetadata].GetStructValue().GetFields(); len(fields) > 0 {
		doc.Metadata = make(map[string]any, len(fields))
		for k, v := range fields {
			doc.Metadata[k] = fromValue(v)
		}
	}

	if raw := payload[payloadOriginal].GetStringValue(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &doc.Original); err != nil {
			return doc, fmt.Errorf("decoding original payload of %s: %w", doc.ChunkID, err)
		}
	}
	return doc, nil
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

// scalarValue converts a metadata scalar to a Qdrant value.
func scalarValue(v any) (*qdrant.Value, error) {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}, nil
	case string:
		return stringValue(val), nil
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}, nil
	case int:
		return intValue(int64(val)), nil
	case int8:
		return intValue(int64(val)), nil
	case int16:
		return intValue(int64(val)), nil
	case int32:
		return intValue(int64(val)), nil
	case int64:
		return intValue(val), nil
	case uint:
		return intValue(int64(val)), nil
	case uint8:
		return intValue(int64(val)), nil
	case uint16:
		return intValue(int64(val)), nil
	case uint32:
		return intValue(int64(val)), nil
	case uint64:
		if val > math.MaxInt64 {
			return doubleValue(float64(val)), nil
		}
		return intValue(int64(val)), nil
	case float32:
		return doubleValue(float64(val)), nil
	case float64:
		return doubleValue(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return intValue(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, err
		}
		return doubleValue(f), nil
	default:
		return nil, fmt.Errorf("unsupported metadata type %T", v)
	}
}

func intValue(i int64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: i}}
}

func doubleValue(f float64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: f}}
}

func fromValue(v *qdrant.Value) any {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	default:
		return nil
	}
}
