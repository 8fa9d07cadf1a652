// Package sqlitevec provides a SQLite-backed store driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/store"
)

// overfetchFactor widens the raw KNN query so that scope filtering applied
// after the vec0 MATCH still yields k results in mixed-scope databases.
const overfetchFactor = 8

// Driver implements store.Driver using SQLite with the sqlite-vec extension.
type Driver struct {
	db     *sql.DB
	logger *zap.Logger
}

// Config holds configuration for the sqlite-vec store driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	// Must match the embedder's output size.
	Dimensions uint
}

// NewDriver creates a new SQLite store driver backed by sqlite-vec.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// Record table. vec0 virtual tables use integer rowids, so the record
	// table doubles as the mapping from string memory IDs to rowids.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			memory_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			version INTEGER NOT NULL,
			tombstoned INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating memories table: %w", err)
	}

	// vec0 virtual table for vector storage and KNN queries.
	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS memory_embeddings USING vec0(embedding float[%d])`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec store driver initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &Driver{
		db:     db,
		logger: logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Upsert stores a record, replacing any existing record with the same ID.
func (d *Driver) Upsert(ctx context.Context, rec *memory.Record) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %s: %w", rec.ID, err)
	}

	embBlob := serializeFloat32(rec.Embedding)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", store.ErrUnavailable, err)
	}
	defer tx.Rollback()

	var existingRowID int64
	err = tx.QueryRowContext(ctx,
		`SELECT rowid FROM memories WHERE memory_id = ?`, rec.ID,
	).Scan(&existingRowID)

	switch err {
	case nil:
		// Record exists — update fields and replace the embedding.
		if _, err := tx.ExecContext(ctx, `
			UPDATE memories
			SET content = ?, metadata = ?, version = ?, tombstoned = ?, updated_at = ?
			WHERE rowid = ?`,
			rec.Content, string(metadata), rec.Version, boolToInt(rec.Tombstoned),
			rec.UpdatedAt.UTC(), existingRowID,
		); err != nil {
			return fmt.Errorf("updating record %s: %w", rec.ID, err)
		}

		// vec0 does not support UPDATE, replace via DELETE + INSERT.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM memory_embeddings WHERE rowid = ?`, existingRowID,
		); err != nil {
			return fmt.Errorf("deleting old embedding for %s: %w", rec.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_embeddings(rowid, embedding) VALUES (?, ?)`,
			existingRowID, embBlob,
		); err != nil {
			return fmt.Errorf("re-inserting embedding for %s: %w", rec.ID, err)
		}
	case sql.ErrNoRows:
		result, err := tx.ExecContext(ctx, `
			INSERT INTO memories(memory_id, user_id, agent_id, run_id, content, metadata, version, tombstoned, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Scope.UserID, rec.Scope.AgentID, rec.Scope.RunID,
			rec.Content, string(metadata), rec.Version, boolToInt(rec.Tombstoned),
			rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting record %s: %w", rec.ID, err)
		}

		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting rowid for %s: %w", rec.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_embeddings(rowid, embedding) VALUES (?, ?)`,
			rowID, embBlob,
		); err != nil {
			return fmt.Errorf("inserting embedding for %s: %w", rec.ID, err)
		}
	default:
		return fmt.Errorf("checking for existing record %s: %w", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", store.ErrUnavailable, err)
	}

	d.logger.Debug("upserted record into sqlite-vec",
		zap.String("memory_id", rec.ID),
		zap.Int("version", rec.Version),
	)

	return nil
}

// Get retrieves a record by ID, including tombstoned records.
func (d *Driver) Get(ctx context.Context, id string) (*memory.Record, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT m.rowid, m.memory_id, m.user_id, m.agent_id, m.run_id,
			m.content, m.metadata, m.version, m.tombstoned, m.created_at, m.updated_at
		FROM memories m
		WHERE m.memory_id = ?`, id)

	rec, rowID, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying record %s: %w", id, err)
	}

	// Tombstoned records have no embedding row; ignore the miss.
	var embBlob []byte
	err = d.db.QueryRowContext(ctx,
		`SELECT embedding FROM memory_embeddings WHERE rowid = ?`, rowID,
	).Scan(&embBlob)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("querying embedding for %s: %w", id, err)
	}

	if len(embBlob) > 0 {
		embedding, err := deserializeFloat32(embBlob)
		if err != nil {
			return nil, fmt.Errorf("deserializing embedding for %s: %w", id, err)
		}
		rec.Embedding = embedding
	}

	return rec, nil
}

// Search returns up to k live records in the scope ranked by similarity.
// The vec0 MATCH is scope-blind, so the KNN over-fetches and the scope and
// tombstone filters are applied on the joined rows.
func (d *Driver) Search(ctx context.Context, scope memory.Scope, embedding []float32, k int) ([]store.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	queryBlob := serializeFloat32(embedding)

	rows, err := d.db.QueryContext(ctx, `
		SELECT m.memory_id, m.user_id, m.agent_id, m.run_id,
			m.content, m.metadata, m.version, m.tombstoned, m.created_at, m.updated_at,
			ve.distance
		FROM memory_embeddings ve
		INNER JOIN memories m ON m.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
			AND m.tombstoned = 0
			AND m.user_id = ? AND m.agent_id = ? AND m.run_id = ?
		ORDER BY ve.distance
	`, queryBlob, k*overfetchFactor, scope.UserID, scope.AgentID, scope.RunID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying vectors: %v", store.ErrUnavailable, err)
	}
	defer rows.Close()

	var results []store.SearchResult
	for rows.Next() {
		var (
			rec        memory.Record
			metadata   string
			tombstoned int
			distance   float64
		)
		if err := rows.Scan(
			&rec.ID, &rec.Scope.UserID, &rec.Scope.AgentID, &rec.Scope.RunID,
			&rec.Content, &metadata, &rec.Version, &tombstoned,
			&rec.CreatedAt, &rec.UpdatedAt, &distance,
		); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}

		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata for %s: %w", rec.ID, err)
		}

		results = append(results, store.SearchResult{
			Record: &rec,
			// Convert distance to similarity score: lower distance = higher similarity
			Score: float32(1.0 / (1.0 + distance)),
		})

		if len(results) == k {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	d.logger.Debug("queried sqlite-vec",
		zap.String("scope", scope.Key()),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Tombstone logically deletes a record. The record row is retained so the ID
// is never reused; the embedding row is dropped so the vec0 KNN never ranks it.
func (d *Driver) Tombstone(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", store.ErrUnavailable, err)
	}
	defer tx.Rollback()

	var rowID int64
	err = tx.QueryRowContext(ctx,
		`SELECT rowid FROM memories WHERE memory_id = ?`, id,
	).Scan(&rowID)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying record %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE memories SET tombstoned = 1, updated_at = ? WHERE rowid = ?`,
		time.Now().UTC(), rowID,
	); err != nil {
		return fmt.Errorf("tombstoning record %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_embeddings WHERE rowid = ?`, rowID,
	); err != nil {
		return fmt.Errorf("removing embedding for %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", store.ErrUnavailable, err)
	}

	return nil
}

// Close closes the underlying database connection.
func (d *Driver) Close() error {
	return d.db.Close()
}

// scanner abstracts *sql.Row / *sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*memory.Record, int64, error) {
	var (
		rec        memory.Record
		rowID      int64
		metadata   string
		tombstoned int
	)
	if err := s.Scan(
		&rowID, &rec.ID, &rec.Scope.UserID, &rec.Scope.AgentID, &rec.Scope.RunID,
		&rec.Content, &metadata, &rec.Version, &tombstoned,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, 0, err
	}

	rec.Tombstoned = tombstoned != 0
	if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
		return nil, 0, fmt.Errorf("unmarshaling metadata: %w", err)
	}

	return &rec, rowID, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ store.Driver = (*Driver)(nil)
