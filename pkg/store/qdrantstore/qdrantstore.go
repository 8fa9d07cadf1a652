// Package qdrantstore provides a Qdrant-backed store driver using the
// official gRPC client. Scope components and record fields are kept in the
// point payload; tombstoning flips a payload flag that search filters out.
package qdrantstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/store"
)

const (
	// DefaultCollectionName is the default collection for memory records.
	DefaultCollectionName = "engram"

	// DefaultPort is Qdrant's default gRPC port.
	DefaultPort = 6334
)

// Driver implements store.Driver using Qdrant.
type Driver struct {
	client     *qdrant.Client
	collection string
	logger     *zap.Logger
}

// Config holds configuration for the Qdrant store driver.
type Config struct {
	// Host is the Qdrant server host (e.g., "localhost").
	Host string

	// Port is the Qdrant gRPC port. Defaults to DefaultPort if zero.
	Port int

	// CollectionName is the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// Dimensions is the embedding vector size, required when the collection
	// does not exist yet.
	Dimensions uint
}

// NewDriver creates a new Qdrant store driver and ensures the collection exists.
func NewDriver(ctx context.Context, c Config, logger *zap.Logger) (*Driver, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}

	port := c.Port
	if port == 0 {
		port = DefaultPort
	}

	collection := c.CollectionName
	if collection == "" {
		collection = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: c.Host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", store.ErrUnavailable, err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection %q: %v", store.ErrUnavailable, collection, err)
	}

	if !exists {
		if c.Dimensions == 0 {
			client.Close()
			return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0 when creating collection %q", collection)
		}

		err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %q: %w", collection, err)
		}
	}

	logger.Info("connected to qdrant",
		zap.String("host", c.Host),
		zap.Int("port", port),
		zap.String("collection", collection),
	)

	return &Driver{
		client:     client,
		collection: collection,
		logger:     logger,
	}, nil
}

// Upsert stores a record, replacing any existing point with the same ID.
func (d *Driver) Upsert(ctx context.Context, rec *memory.Record) error {
	metadata := make(map[string]any, len(rec.Metadata))
	for k, v := range rec.Metadata {
		metadata[k] = v
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(rec.ID),
		Vectors: qdrant.NewVectors(rec.Embedding...),
		Payload: qdrant.NewValueMap(map[string]any{
			"user_id":    rec.Scope.UserID,
			"agent_id":   rec.Scope.AgentID,
			"run_id":     rec.Scope.RunID,
			"content":    rec.Content,
			"metadata":   metadata,
			"version":    int64(rec.Version),
			"tombstoned": rec.Tombstoned,
			"created_at": rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			"updated_at": rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}),
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("%w: upserting point %s: %v", store.ErrUnavailable, rec.ID, err)
	}

	d.logger.Debug("upserted record into qdrant",
		zap.String("memory_id", rec.ID),
		zap.Int("version", rec.Version),
	)

	return nil
}

// Get retrieves a record by ID, including tombstoned records.
func (d *Driver) Get(ctx context.Context, id string) (*memory.Record, error) {
	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: retrieving point %s: %v", store.ErrUnavailable, id, err)
	}

	if len(points) == 0 {
		return nil, store.ErrNotFound
	}

	rec, err := recordFromPayload(id, points[0].GetPayload())
	if err != nil {
		return nil, err
	}

	if vec := points[0].GetVectors().GetVector(); vec != nil {
		rec.Embedding = vec.GetData()
	}

	return rec, nil
}

// Search returns up to k live records in the scope ranked by similarity.
func (d *Driver) Search(ctx context.Context, scope memory.Scope, embedding []float32, k int) ([]store.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(k)),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("user_id", scope.UserID),
				qdrant.NewMatch("agent_id", scope.AgentID),
				qdrant.NewMatch("run_id", scope.RunID),
			},
			MustNot: []*qdrant.Condition{
				qdrant.NewMatchBool("tombstoned", true),
			},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: querying collection %q: %v", store.ErrUnavailable, d.collection, err)
	}

	results := make([]store.SearchResult, 0, len(points))
	for _, p := range points {
		rec, err := recordFromPayload(p.GetId().GetUuid(), p.GetPayload())
		if err != nil {
			return nil, err
		}

		results = append(results, store.SearchResult{
			Record: rec,
			Score:  p.GetScore(),
		})
	}

	d.logger.Debug("queried qdrant",
		zap.String("scope", scope.Key()),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Tombstone logically deletes a record by flipping its payload flag.
// The point (and its vector) is retained but excluded from Search.
func (d *Driver) Tombstone(ctx context.Context, id string) error {
	// Qdrant's SetPayload succeeds silently for unknown IDs, so probe first
	// to preserve the driver contract.
	if _, err := d.Get(ctx, id); err != nil {
		return err
	}

	_, err := d.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: d.collection,
		Payload: qdrant.NewValueMap(map[string]any{
			"tombstoned": true,
			"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
		}),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewID(id)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("%w: tombstoning point %s: %v", store.ErrUnavailable, id, err)
	}

	return nil
}

// Close closes the underlying gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

// recordFromPayload rebuilds a memory.Record from a point payload.
func recordFromPayload(id string, payload map[string]*qdrant.Value) (*memory.Record, error) {
	rec := &memory.Record{
		ID: id,
		Scope: memory.Scope{
			UserID:  payload["user_id"].GetStringValue(),
			AgentID: payload["agent_id"].GetStringValue(),
			RunID:   payload["run_id"].GetStringValue(),
		},
		Content:    payload["content"].GetStringValue(),
		Version:    int(payload["version"].GetIntegerValue()),
		Tombstoned: payload["tombstoned"].GetBoolValue(),
	}

	if fields := payload["metadata"].GetStructValue().GetFields(); len(fields) > 0 {
		rec.Metadata = make(map[string]string, len(fields))
		for k, v := range fields {
			rec.Metadata[k] = v.GetStringValue()
		}
	}

	for field, dst := range map[string]*time.Time{
		"created_at": &rec.CreatedAt,
		"updated_at": &rec.UpdatedAt,
	} {
		raw := payload[field].GetStringValue()
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s for point %s: %w", field, id, err)
		}
		*dst = ts
	}

	return rec, nil
}

var _ store.Driver = (*Driver)(nil)
