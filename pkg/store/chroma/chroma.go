// Package chroma provides a Chroma-backed store driver using its REST API.
//
// Record fields ride in the document metadata (Chroma metadata values must be
// scalar, so caller metadata keys are flattened under a "meta." prefix) and
// the fact text is the document body. Search filters tombstones and scope
// server-side via a `where` clause.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/store"
)

const (
	// DefaultCollectionName is the default collection for memory records.
	DefaultCollectionName = "engram"

	metaPrefix = "meta."
)

// Driver implements store.Driver using Chroma's REST API.
type Driver struct {
	baseURL        string
	collectionName string
	collectionID   string
	httpClient     *http.Client
	logger         *zap.Logger
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string
}

// NewDriver creates a new Chroma store driver.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}

	d := &Driver{
		baseURL:        c.URL,
		collectionName: collectionName,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}

	collectionID, err := d.getOrCreateCollection(context.Background())
	if err != nil {
		return nil, fmt.Errorf("getting or creating collection %q: %w", collectionName, err)
	}
	d.collectionID = collectionID

	logger.Info("connected to Chroma",
		zap.String("url", c.URL),
		zap.String("collection", collectionName),
		zap.String("collection_id", collectionID),
	)

	return d, nil
}

// getOrCreateCollection gets an existing collection or creates a new one.
func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections/%s", d.baseURL, d.collectionName)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("creating get request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sending get request: %v", store.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var collection chromaCollection
		if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
			return "", fmt.Errorf("decoding collection response: %w", err)
		}
		return collection.ID, nil
	}

	// Collection doesn't exist, create it
	createURL := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections", d.baseURL)
	createBody := map[string]string{"name": d.collectionName}
	jsonBody, err := json.Marshal(createBody)
	if err != nil {
		return "", fmt.Errorf("marshaling create request: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, "POST", createURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("creating create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err = d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sending create request: %v", store.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to create collection: status %d: %s", resp.StatusCode, string(body))
	}

	var collection chromaCollection
	if err := json.NewDecoder(resp.Body).Decode(&collection); err != nil {
		return "", fmt.Errorf("decoding create response: %w", err)
	}

	return collection.ID, nil
}

// Upsert stores a record, replacing any existing record with the same ID.
func (d *Driver) Upsert(ctx context.Context, rec *memory.Record) error {
	reqBody := chromaUpsertRequest{
		IDs:        []string{rec.ID},
		Embeddings: [][]float32{rec.Embedding},
		Documents:  []string{rec.Content},
		Metadatas:  []map[string]any{recordMetadata(rec)},
	}

	if err := d.post(ctx, "upsert", reqBody, nil); err != nil {
		return fmt.Errorf("upserting record %s: %w", rec.ID, err)
	}

	d.logger.Debug("upserted record into chroma",
		zap.String("memory_id", rec.ID),
		zap.Int("version", rec.Version),
	)

	return nil
}

// Get retrieves a record by ID, including tombstoned records.
func (d *Driver) Get(ctx context.Context, id string) (*memory.Record, error) {
	reqBody := chromaGetRequest{
		IDs:     []string{id},
		Include: []string{"metadatas", "documents", "embeddings"},
	}

	var getResp chromaGetResponse
	if err := d.post(ctx, "get", reqBody, &getResp); err != nil {
		return nil, fmt.Errorf("getting record %s: %w", id, err)
	}

	if len(getResp.IDs) == 0 {
		return nil, store.ErrNotFound
	}

	var md map[string]any
	if len(getResp.Metadatas) > 0 {
		md = getResp.Metadatas[0]
	}

	rec, err := recordFromMetadata(id, md)
	if err != nil {
		return nil, err
	}

	if len(getResp.Documents) > 0 {
		rec.Content = getResp.Documents[0]
	}
	if len(getResp.Embeddings) > 0 {
		rec.Embedding = getResp.Embeddings[0]
	}

	return rec, nil
}

// Search returns up to k live records in the scope ranked by similarity.
func (d *Driver) Search(ctx context.Context, scope memory.Scope, embedding []float32, k int) ([]store.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	reqBody := chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        k,
		Where: map[string]any{
			"$and": []map[string]any{
				{"user_id": scope.UserID},
				{"agent_id": scope.AgentID},
				{"run_id": scope.RunID},
				{"tombstoned": false},
			},
		},
		Include: []string{"metadatas", "documents", "distances"},
	}

	var queryResp chromaQueryResponse
	if err := d.post(ctx, "query", reqBody, &queryResp); err != nil {
		return nil, fmt.Errorf("querying collection %q: %w", d.collectionName, err)
	}

	// Process first group (we only query with one embedding)
	if len(queryResp.IDs) == 0 || len(queryResp.IDs[0]) == 0 {
		return nil, nil
	}

	ids := queryResp.IDs[0]
	distances := queryResp.Distances[0]

	var metadatas []map[string]any
	if len(queryResp.Metadatas) > 0 {
		metadatas = queryResp.Metadatas[0]
	}

	var documents []string
	if len(queryResp.Documents) > 0 {
		documents = queryResp.Documents[0]
	}

	results := make([]store.SearchResult, 0, len(ids))
	for i, id := range ids {
		var md map[string]any
		if i < len(metadatas) {
			md = metadatas[i]
		}

		rec, err := recordFromMetadata(id, md)
		if err != nil {
			return nil, err
		}

		if i < len(documents) {
			rec.Content = documents[i]
		}

		result := store.SearchResult{Record: rec}

		// Convert distance to similarity score: lower distance = higher similarity
		if i < len(distances) {
			result.Score = 1.0 / (1.0 + distances[i])
		}

		results = append(results, result)
	}

	d.logger.Debug("queried chroma",
		zap.String("scope", scope.Key()),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Tombstone logically deletes a record by rewriting its metadata flag.
func (d *Driver) Tombstone(ctx context.Context, id string) error {
	rec, err := d.Get(ctx, id)
	if err != nil {
		return err
	}

	rec.Tombstoned = true
	rec.UpdatedAt = time.Now().UTC()

	return d.Upsert(ctx, rec)
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

// post sends a JSON request to a collection endpoint and optionally decodes
// the response into out.
func (d *Driver) post(ctx context.Context, endpoint string, body any, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", endpoint, err)
	}

	url := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections/%s/%s", d.baseURL, d.collectionID, endpoint)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sending %s request: %v", store.ErrUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s failed: status %d: %s", endpoint, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}

	return nil
}

// recordMetadata flattens a record into Chroma's scalar-only metadata map.
func recordMetadata(rec *memory.Record) map[string]any {
	md := map[string]any{
		"user_id":    rec.Scope.UserID,
		"agent_id":   rec.Scope.AgentID,
		"run_id":     rec.Scope.RunID,
		"version":    rec.Version,
		"tombstoned": rec.Tombstoned,
		"created_at": rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	for k, v := range rec.Metadata {
		md[metaPrefix+k] = v
	}

	return md
}

// recordFromMetadata rebuilds a record from the flattened metadata map.
func recordFromMetadata(id string, md map[string]any) (*memory.Record, error) {
	rec := &memory.Record{ID: id}
	if md == nil {
		return rec, nil
	}

	rec.Scope = memory.Scope{
		UserID:  stringValue(md, "user_id"),
		AgentID: stringValue(md, "agent_id"),
		RunID:   stringValue(md, "run_id"),
	}

	// JSON numbers decode as float64.
	if v, ok := md["version"].(float64); ok {
		rec.Version = int(v)
	}
	if v, ok := md["tombstoned"].(bool); ok {
		rec.Tombstoned = v
	}

	for field, dst := range map[string]*time.Time{
		"created_at": &rec.CreatedAt,
		"updated_at": &rec.UpdatedAt,
	} {
		raw := stringValue(md, field)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s for record %s: %w", field, id, err)
		}
		*dst = ts
	}

	for k, v := range md {
		name, ok := strings.CutPrefix(k, metaPrefix)
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]string)
		}
		rec.Metadata[name] = s
	}

	return rec, nil
}

func stringValue(md map[string]any, key string) string {
	if v, ok := md[key].(string); ok {
		return v
	}
	return ""
}

var _ store.Driver = (*Driver)(nil)
