// Package sqlite implements storage.MemoryStore on SQLite via modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/migrations"
	"github.com/engramlabs/engram/pkg/types"
)

// Store implements storage.MemoryStore using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database, configures WAL mode, and applies pending
// schema migrations.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode allows concurrent readers to proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	// Wait instead of failing with SQLITE_BUSY when the connection is held
	// by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	mgr, err := storage.NewMigrationManager(db, migrations.SQLite(), "sqlite")
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := mgr.Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// recordColumns is the canonical column list for SELECTs; scanRecord must
// stay in sync with it.
const recordColumns = `
	id, owner_id, persona_id, content,
	embedding, embedding_dim, embedding_model,
	timestamp, context,
	importance_score, memory_type,
	access_count, last_accessed_at, decay_factor,
	consolidated_from
`

// Insert persists a new record.
func (s *Store) Insert(ctx context.Context, record *types.MemoryRecord) error {
	if record == nil {
		return storage.ErrInvalidInput
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	var consolidatedJSON []byte
	if len(record.ConsolidatedFrom) > 0 {
		var err error
		consolidatedJSON, err = json.Marshal(record.ConsolidatedFrom)
		if err != nil {
			return fmt.Errorf("sqlite: failed to marshal consolidated_from: %w", err)
		}
	}

	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO memories (
			id, owner_id, persona_id, content,
			embedding, embedding_dim, embedding_model,
			timestamp, context,
			importance_score, memory_type,
			access_count, last_accessed_at, decay_factor,
			consolidated_from
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.OwnerID,
		record.PersonaID,
		record.Content,
		nullableBytes(encodeVector(record.Embedding)),
		len(record.Embedding),
		nullableString(record.EmbeddingModel),
		record.Timestamp,
		nullableString(record.Context),
		record.ImportanceScore,
		string(record.MemoryType),
		record.AccessCount,
		nullableTime(record.LastAccessedAt),
		record.DecayFactor,
		nullableBytes(consolidatedJSON),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert memory: %w", err)
	}

	return nil
}

// Get retrieves a record by ID within the scope.
func (s *Store) Get(ctx context.Context, scope storage.Scope, id string) (*types.MemoryRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}

	query := `SELECT ` + recordColumns + ` FROM memories WHERE id = ? AND owner_id = ? AND persona_id = ?`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id, scope.OwnerID, scope.PersonaID))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get memory: %w", err)
	}

	return record, nil
}

// List retrieves records in scope with filtering and pagination.
func (s *Store) List(ctx context.Context, scope storage.Scope, opts storage.ListOptions) ([]types.MemoryRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	opts.Normalize()

	var sb strings.Builder
	sb.WriteString(`SELECT ` + recordColumns + ` FROM memories WHERE owner_id = ? AND persona_id = ?`)
	args := []interface{}{scope.OwnerID, scope.PersonaID}

	if len(opts.Types) > 0 {
		sb.WriteString(" AND memory_type IN (" + placeholders(len(opts.Types)) + ")")
		for _, t := range opts.Types {
			args = append(args, string(t))
		}
	}

	if opts.OnlyEmbedded {
		sb.WriteString(" AND embedding IS NOT NULL AND embedding_dim > 0")
	}

	sb.WriteString(" ORDER BY " + sortColumn(opts.SortBy) + " " + strings.ToUpper(opts.SortOrder))
	// Secondary key keeps ordering stable across identical primary values.
	sb.WriteString(", id ASC")

	if opts.Limit > 0 {
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, opts.Limit, opts.Offset)
	} else if opts.Offset > 0 {
		sb.WriteString(" LIMIT -1 OFFSET ?")
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// Count returns the number of records in scope.
func (s *Store) Count(ctx context.Context, scope storage.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memories WHERE owner_id = ? AND persona_id = ?",
		scope.OwnerID, scope.PersonaID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to count memories: %w", err)
	}

	return count, nil
}

// Stats aggregates per-scope statistics.
func (s *Store) Stats(ctx context.Context, scope storage.Scope) (*storage.ScopeStats, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	stats := &storage.ScopeStats{
		CountByType: make(map[types.MemoryType]int),
	}

	var avgImportance sql.NullFloat64
	var oldest, newest sql.NullTime
	var totalAccess sql.NullInt64
	var approxSize sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			AVG(importance_score),
			MIN(timestamp),
			MAX(timestamp),
			SUM(access_count),
			SUM(LENGTH(content) + COALESCE(LENGTH(embedding), 0))
		FROM memories
		WHERE owner_id = ? AND persona_id = ?
	`, scope.OwnerID, scope.PersonaID).Scan(
		&stats.Count, &avgImportance, &oldest, &newest, &totalAccess, &approxSize,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to aggregate stats: %w", err)
	}

	if avgImportance.Valid {
		stats.AverageImportance = avgImportance.Float64
	}
	if oldest.Valid {
		t := oldest.Time
		stats.OldestTimestamp = &t
	}
	if newest.Valid {
		t := newest.Time
		stats.NewestTimestamp = &t
	}
	if totalAccess.Valid {
		stats.TotalAccessCount = int(totalAccess.Int64)
	}
	if approxSize.Valid {
		stats.ApproxSizeBytes = approxSize.Int64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_type, COUNT(*)
		FROM memories
		WHERE owner_id = ? AND persona_id = ?
		GROUP BY memory_type
	`, scope.OwnerID, scope.PersonaID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to count by type: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var memoryType string
		var count int
		if err := rows.Scan(&memoryType, &count); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan type count: %w", err)
		}
		stats.CountByType[types.MemoryType(memoryType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating type counts: %w", err)
	}

	return stats, nil
}

// Reinforce atomically applies one reinforcement event to a record.
func (s *Store) Reinforce(ctx context.Context, scope storage.Scope, id string, importanceDelta float64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET access_count = access_count + 1,
		    last_accessed_at = ?,
		    importance_score = MIN(1.0, importance_score + ?)
		WHERE id = ? AND owner_id = ? AND persona_id = ?
	`, time.Now().UTC(), importanceDelta, id, scope.OwnerID, scope.PersonaID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to reinforce memory: %w", err)
	}

	return requireRowAffected(result)
}

// UpdateImportance sets the importance score and decay factor of a record.
func (s *Store) UpdateImportance(ctx context.Context, scope storage.Scope, id string, importance, decayFactor float64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET importance_score = ?, decay_factor = ?
		WHERE id = ? AND owner_id = ? AND persona_id = ?
	`, importance, decayFactor, id, scope.OwnerID, scope.PersonaID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update importance: %w", err)
	}

	return requireRowAffected(result)
}

// Delete removes a record by ID.
func (s *Store) Delete(ctx context.Context, scope storage.Scope, id string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM memories WHERE id = ? AND owner_id = ? AND persona_id = ?",
		id, scope.OwnerID, scope.PersonaID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete memory: %w", err)
	}

	return requireRowAffected(result)
}

// DeleteBatch removes the given records in one statement.
func (s *Store) DeleteBatch(ctx context.Context, scope storage.Scope, ids []string) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, scope.OwnerID, scope.PersonaID)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM memories WHERE owner_id = ? AND persona_id = ? AND id IN ("+placeholders(len(ids))+")",
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to batch-delete memories: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteAll removes every record in scope.
func (s *Store) DeleteAll(ctx context.Context, scope storage.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM memories WHERE owner_id = ? AND persona_id = ?",
		scope.OwnerID, scope.PersonaID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to wipe memories: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteOlderThan removes low-importance records created before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, scope storage.Scope, cutoff time.Time, maxImportance float64) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM memories
		WHERE owner_id = ? AND persona_id = ?
		  AND timestamp < ?
		  AND importance_score < ?
	`, scope.OwnerID, scope.PersonaID, cutoff, maxImportance)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to clean up old memories: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// Compile-time assertion that Store satisfies the storage interface.
var _ storage.MemoryStore = (*Store)(nil)

// rowScanner abstracts *sql.Row and *sql.Rows for scanRecord.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord reads one record from a row in recordColumns order.
func scanRecord(row rowScanner) (*types.MemoryRecord, error) {
	var record types.MemoryRecord
	var embeddingBlob []byte
	var embeddingDim int
	var embeddingModel, contextStr, consolidatedJSON sql.NullString
	var lastAccessedAt sql.NullTime
	var memoryType string

	err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&record.PersonaID,
		&record.Content,
		&embeddingBlob,
		&embeddingDim,
		&embeddingModel,
		&record.Timestamp,
		&contextStr,
		&record.ImportanceScore,
		&memoryType,
		&record.AccessCount,
		&lastAccessedAt,
		&record.DecayFactor,
		&consolidatedJSON,
	)
	if err != nil {
		return nil, err
	}

	record.MemoryType = types.MemoryType(memoryType)

	if len(embeddingBlob) > 0 && embeddingDim > 0 {
		vec, err := decodeVector(embeddingBlob, embeddingDim)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding for %s: %w", record.ID, err)
		}
		record.Embedding = vec
	}
	if embeddingModel.Valid {
		record.EmbeddingModel = embeddingModel.String
	}
	if contextStr.Valid {
		record.Context = contextStr.String
	}
	if lastAccessedAt.Valid {
		t := lastAccessedAt.Time
		record.LastAccessedAt = &t
	}
	if consolidatedJSON.Valid && consolidatedJSON.String != "" {
		if err := json.Unmarshal([]byte(consolidatedJSON.String), &record.ConsolidatedFrom); err != nil {
			return nil, fmt.Errorf("failed to unmarshal consolidated_from for %s: %w", record.ID, err)
		}
	}

	return &record, nil
}

// scanRecords drains a result set into a slice.
func scanRecords(rows *sql.Rows) ([]types.MemoryRecord, error) {
	var records []types.MemoryRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memory: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating memories: %w", err)
	}
	return records, nil
}

// sortColumn maps a normalized ListOptions.SortBy value to its column name.
func sortColumn(sortBy string) string {
	switch sortBy {
	case "importance":
		return "importance_score"
	case "access_count":
		return "access_count"
	default:
		return "timestamp"
	}
}

// placeholders returns n comma-separated "?" placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// requireRowAffected converts a zero-row UPDATE/DELETE into ErrNotFound.
func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullableTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}
