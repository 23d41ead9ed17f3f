// Package db provides the embedded SQLite query cache for graphmem.
//
// The database is the fast-query side of the file-based record storage:
// chunk and link JSON files are the source of truth, and this package keeps
// an upsert-friendly mirror with a keyword index for link discovery.
//
// The database runs in embedded mode using ncruces/go-sqlite3 with WAL for
// concurrency support.
//
// Architecture:
//   - Database file: .graphmem/graph.db
//   - WAL mode: Concurrent readers during writes
//   - Schema: chunks, links, chunk_keywords tables
//   - Indexes: Optimized for keyword overlap and neighborhood queries
//
// Workflow:
//  1. Records land in chunks/*.json and links/*.json (editor, CLI, cloud sync)
//  2. Sync daemon watches the directories for changes
//  3. Changes are upserted into the database
//  4. Queries (list, show, neighborhood) hit the database, not the filesystem
package db

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"graphmem/internal/graph/schema"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a referenced chunk hash does not exist.
// Link upserts require both endpoints to pre-exist; chunk upserts never
// return this error.
var ErrNotFound = errors.New("not found")

// RelationRelated is the relation label used by the link-discovery pass.
const RelationRelated = "related"

// DB wraps the SQLite database connection with graph-specific functionality.
type DB struct {
	conn *sql.DB
	path string
}

// UpsertResult reports which branch an upsert took and the stored record state
// after the call.
type UpsertResult struct {
	// Created is true when the record did not exist before this call.
	Created bool
	// UsageCount is the cumulative upsert counter after this call.
	UsageCount int
	// DiscoveredLinks is the number of new links established by the
	// link-discovery pass (chunk upserts only).
	DiscoveredLinks int
}

// Open creates a new database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the database doesn't exist, it will be created; call InitSchema before
// first use.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	db, err := db.Open(".graphmem/graph.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Busy timeout keeps concurrent writers queued instead of failing
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
// This is useful for integrating with other libraries that expect *sql.DB.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
//
// This creates the chunks, links, and chunk_keywords tables along with
// necessary indexes. This is idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	ddl := `
	-- Core tables
	CREATE TABLE IF NOT EXISTS chunks (
		hash TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		source TEXT,
		language TEXT,
		keywords TEXT,   -- JSON array
		embedding BLOB,  -- float32 little-endian, optional
		metadata TEXT,   -- JSON object
		usage_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS links (
		from_hash TEXT NOT NULL,
		to_hash TEXT NOT NULL,
		relation TEXT NOT NULL,  -- related, follows, derived-from, ...
		weight REAL NOT NULL DEFAULT 1.0,
		usage_count INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (from_hash, to_hash, relation),
		FOREIGN KEY (from_hash) REFERENCES chunks(hash) ON DELETE CASCADE,
		FOREIGN KEY (to_hash) REFERENCES chunks(hash) ON DELETE CASCADE
	);

	-- Predicate index for link discovery (keyword -> candidate hashes)
	CREATE TABLE IF NOT EXISTS chunk_keywords (
		keyword TEXT NOT NULL,
		hash TEXT NOT NULL,
		PRIMARY KEY (keyword, hash),
		FOREIGN KEY (hash) REFERENCES chunks(hash) ON DELETE CASCADE
	);

	-- Indexes for common queries
	CREATE INDEX IF NOT EXISTS idx_chunks_language ON chunks(language);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
	CREATE INDEX IF NOT EXISTS idx_links_to ON links(to_hash);
	CREATE INDEX IF NOT EXISTS idx_links_from ON links(from_hash);
	CREATE INDEX IF NOT EXISTS idx_links_relation ON links(relation);
	CREATE INDEX IF NOT EXISTS idx_keywords_hash ON chunk_keywords(hash);
	`

	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// UpsertChunk inserts or updates a chunk in the database.
//
// If no chunk with the hash exists it is created with usage_count 0.
// If it exists, only fields explicitly supplied as non-empty overwrite the
// stored values (coalesce semantics), usage_count is incremented by one, and
// updated_at is restamped. The counter is cumulative: repeating the
// identical upsert is a popularity signal, not a no-op.
//
// In the same transaction, a link-discovery pass establishes "related" links
// from every chunk sharing at least one keyword with the upserted chunk.
// The pass is additive only.
func (db *DB) UpsertChunk(chunk *schema.ChunkFile) (*UpsertResult, error) {
	return db.UpsertChunkContext(context.Background(), chunk)
}

// UpsertChunkContext inserts or updates a chunk with context support.
func (db *DB) UpsertChunkContext(ctx context.Context, chunk *schema.ChunkFile) (*UpsertResult, error) {
	// Coalesce semantics allow a partial record on update, so only the
	// merge identity is required here. The create branch additionally
	// requires content; full file validation stays in the schema package.
	if chunk.Hash == "" {
		return nil, fmt.Errorf("invalid chunk: hash is required")
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result := &UpsertResult{}

	var stored storedChunk
	err = tx.QueryRowContext(ctx,
		`SELECT content, source, language, keywords, embedding, metadata, usage_count, created_at
		 FROM chunks WHERE hash = ?`, chunk.Hash).Scan(
		&stored.content, &stored.source, &stored.language, &stored.keywords,
		&stored.embedding, &stored.metadata, &stored.usageCount, &stored.createdAt)

	switch {
	case err == sql.ErrNoRows:
		// Create branch
		if chunk.Content == "" {
			return nil, fmt.Errorf("invalid chunk %s: content is required on create", chunk.Hash)
		}
		if err := insertChunk(ctx, tx, chunk); err != nil {
			return nil, err
		}
		result.Created = true
		result.UsageCount = 0

	case err != nil:
		return nil, fmt.Errorf("failed to query chunk %s: %w", chunk.Hash, err)

	default:
		// Match branch: coalesce supplied fields over stored values
		merged := stored.coalesce(chunk)
		merged.UsageCount = stored.usageCount + 1
		if err := updateChunk(ctx, tx, merged); err != nil {
			return nil, err
		}
		result.UsageCount = merged.UsageCount
	}

	// Rebuild this chunk's keyword index entries
	keywords := chunk.Keywords
	if !result.Created && len(keywords) == 0 {
		keywords = decodeKeywords(stored.keywords)
	}
	if err := reindexChunkKeywords(ctx, tx, chunk.Hash, keywords); err != nil {
		return nil, err
	}

	// Link-discovery pass: candidates sharing >= 1 keyword gain a
	// candidate -> upserted link if absent. Never removes existing links.
	discovered, err := discoverLinks(ctx, tx, chunk.Hash)
	if err != nil {
		return nil, err
	}
	result.DiscoveredLinks = discovered

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chunk upsert: %w", err)
	}

	return result, nil
}

// storedChunk holds the nullable row image used by the coalesce branch.
type storedChunk struct {
	content    string
	source     sql.NullString
	language   sql.NullString
	keywords   sql.NullString
	embedding  []byte
	metadata   sql.NullString
	usageCount int
	createdAt  string
}

// chunkRow is the merged row written back by the match branch.
type chunkRow struct {
	Hash       string
	Content    string
	Source     string
	Language   string
	Keywords   []string
	Embedding  []float32
	Metadata   map[string]string
	UsageCount int
	CreatedAt  string
	UpdatedAt  string
}

// coalesce merges an incoming record over the stored row: a supplied
// non-empty value wins, an omitted value retains the stored one.
func (s *storedChunk) coalesce(in *schema.ChunkFile) *chunkRow {
	row := &chunkRow{
		Hash:       in.Hash,
		Content:    s.content,
		Source:     s.source.String,
		Language:   s.language.String,
		Keywords:   decodeKeywords(s.keywords),
		Embedding:  decodeEmbedding(s.embedding),
		Metadata:   decodeMetadata(s.metadata),
		CreatedAt:  s.createdAt,
		UpdatedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	if in.Content != "" {
		row.Content = in.Content
	}
	if in.Source != "" {
		row.Source = in.Source
	}
	if in.Language != "" {
		row.Language = in.Language
	}
	if len(in.Keywords) > 0 {
		row.Keywords = in.Keywords
	}
	if len(in.Embedding) > 0 {
		row.Embedding = in.Embedding
	}
	if len(in.Metadata) > 0 {
		row.Metadata = in.Metadata
	}

	return row
}

func insertChunk(ctx context.Context, tx *sql.Tx, chunk *schema.ChunkFile) error {
	now := time.Now()
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = now
	}
	if chunk.UpdatedAt.IsZero() {
		chunk.UpdatedAt = now
	}

	keywordsJSON, err := json.Marshal(chunk.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	metadataJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO chunks (
		hash, content, source, language, keywords, embedding, metadata,
		usage_count, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		chunk.Hash,
		chunk.Content,
		chunk.Source,
		chunk.Language,
		string(keywordsJSON),
		encodeEmbedding(chunk.Embedding),
		string(metadataJSON),
		chunk.CreatedAt.UTC().Format(time.RFC3339),
		chunk.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk %s: %w", chunk.Hash, err)
	}
	return nil
}

func updateChunk(ctx context.Context, tx *sql.Tx, row *chunkRow) error {
	keywordsJSON, err := json.Marshal(row.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	metadataJSON, err := json.Marshal(row.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE chunks SET
		content = ?, source = ?, language = ?, keywords = ?,
		embedding = ?, metadata = ?, usage_count = ?, updated_at = ?
	WHERE hash = ?`,
		row.Content,
		row.Source,
		row.Language,
		string(keywordsJSON),
		encodeEmbedding(row.Embedding),
		string(metadataJSON),
		row.UsageCount,
		row.UpdatedAt,
		row.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to update chunk %s: %w", row.Hash, err)
	}
	return nil
}

// reindexChunkKeywords replaces the keyword index entries for one hash.
func reindexChunkKeywords(ctx context.Context, tx *sql.Tx, hash string, keywords []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_keywords WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("failed to clear keyword index for %s: %w", hash, err)
	}
	for _, kw := range keywords {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO chunk_keywords (keyword, hash) VALUES (?, ?)`, kw, hash); err != nil {
			return fmt.Errorf("failed to index keyword %q: %w", kw, err)
		}
	}
	return nil
}

// discoverLinks establishes candidate -> hash "related" links for every other
// chunk sharing at least one keyword with the given hash. Returns the number
// of links created. Existing links are left untouched.
func discoverLinks(ctx context.Context, tx *sql.Tx, hash string) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
	INSERT OR IGNORE INTO links (from_hash, to_hash, relation, weight, usage_count, created_at, updated_at)
	SELECT DISTINCT other.hash, ?, ?, 1.0, 0, ?, ?
	FROM chunk_keywords own
	JOIN chunk_keywords other ON other.keyword = own.keyword
	WHERE own.hash = ? AND other.hash != ?
	`, hash, RelationRelated, now, now, hash, hash)
	if err != nil {
		return 0, fmt.Errorf("failed to discover links for %s: %w", hash, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count discovered links for %s: %w", hash, err)
	}
	return int(n), nil
}

// UpsertLink inserts or updates a link in the database.
//
// Both endpoints must already exist as chunks; a missing endpoint returns
// ErrNotFound. A new link starts with usage_count 1 and weight 1.0 unless a
// weight was supplied. An existing link has its weight overwritten only when
// supplied (> 0) and its usage_count incremented by one.
func (db *DB) UpsertLink(link *schema.LinkFile) (*UpsertResult, error) {
	return db.UpsertLinkContext(context.Background(), link)
}

// UpsertLinkContext inserts or updates a link with context support.
func (db *DB) UpsertLinkContext(ctx context.Context, link *schema.LinkFile) (*UpsertResult, error) {
	if err := link.Validate(); err != nil {
		return nil, fmt.Errorf("invalid link: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Both endpoints must pre-exist
	for _, hash := range []string{link.From, link.To} {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE hash = ?`, hash).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to check endpoint %s: %w", hash, err)
		}
		if exists == 0 {
			return nil, fmt.Errorf("link endpoint %s: %w", hash, ErrNotFound)
		}
	}

	result := &UpsertResult{}
	now := time.Now().UTC().Format(time.RFC3339)

	var usageCount int
	var weight float64
	err = tx.QueryRowContext(ctx,
		`SELECT usage_count, weight FROM links WHERE from_hash = ? AND to_hash = ? AND relation = ?`,
		link.From, link.To, link.Relation).Scan(&usageCount, &weight)

	switch {
	case err == sql.ErrNoRows:
		w := link.Weight
		if w == 0 {
			w = schema.DefaultWeight
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO links (from_hash, to_hash, relation, weight, usage_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)`,
			link.From, link.To, link.Relation, w,
			link.CreatedAt.UTC().Format(time.RFC3339), now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert link %s--%s--%s: %w", link.From, link.Relation, link.To, err)
		}
		result.Created = true
		result.UsageCount = 1

	case err != nil:
		return nil, fmt.Errorf("failed to query link: %w", err)

	default:
		w := weight
		if link.Weight > 0 {
			w = link.Weight
		}
		usageCount++
		_, err = tx.ExecContext(ctx, `
		UPDATE links SET weight = ?, usage_count = ?, updated_at = ?
		WHERE from_hash = ? AND to_hash = ? AND relation = ?`,
			w, usageCount, now, link.From, link.To, link.Relation)
		if err != nil {
			return nil, fmt.Errorf("failed to update link %s--%s--%s: %w", link.From, link.Relation, link.To, err)
		}
		result.UsageCount = usageCount
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit link upsert: %w", err)
	}

	return result, nil
}

// DeleteChunk removes a chunk from the database.
//
// This cascades to remove links and keyword index entries.
// Returns nil if the chunk doesn't exist (idempotent).
func (db *DB) DeleteChunk(hash string) error {
	return db.DeleteChunkContext(context.Background(), hash)
}

// DeleteChunkContext removes a chunk with context support.
func (db *DB) DeleteChunkContext(ctx context.Context, hash string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM chunks WHERE hash = ?`, hash)
	if err != nil {
		return fmt.Errorf("failed to delete chunk %s: %w", hash, err)
	}
	return nil
}

// DeleteLink removes a link from the database.
//
// Returns nil if the link doesn't exist (idempotent).
func (db *DB) DeleteLink(from, relation, to string) error {
	return db.DeleteLinkContext(context.Background(), from, relation, to)
}

// DeleteLinkContext removes a link with context support.
func (db *DB) DeleteLinkContext(ctx context.Context, from, relation, to string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM links WHERE from_hash = ? AND to_hash = ? AND relation = ?`, from, to, relation)
	if err != nil {
		return fmt.Errorf("failed to delete link %s--%s--%s: %w", from, relation, to, err)
	}
	return nil
}

// ReindexKeywords rebuilds the chunk_keywords table from the stored chunks.
//
// Upserts maintain the index incrementally; this full rebuild repairs drift
// after out-of-band writes and is run periodically by the daemon.
func (db *DB) ReindexKeywords() error {
	return db.ReindexKeywordsContext(context.Background())
}

// ReindexKeywordsContext rebuilds the keyword index with context support.
func (db *DB) ReindexKeywordsContext(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_keywords`); err != nil {
		return fmt.Errorf("failed to clear keyword index: %w", err)
	}

	query := `
	INSERT OR IGNORE INTO chunk_keywords (keyword, hash)
	SELECT json_each.value, chunks.hash
	FROM chunks, json_each(chunks.keywords)
	WHERE json_each.value != ''
	`

	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to rebuild keyword index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reindex: %w", err)
	}

	return nil
}

// GetChunk retrieves a single chunk by hash.
// Returns ErrNotFound if the chunk does not exist.
func (db *DB) GetChunk(hash string) (*schema.ChunkFile, int, error) {
	return db.GetChunkContext(context.Background(), hash)
}

// GetChunkContext retrieves a single chunk by hash with context support.
// The second return value is the chunk's usage_count.
func (db *DB) GetChunkContext(ctx context.Context, hash string) (*schema.ChunkFile, int, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT hash, content, source, language, keywords, embedding, metadata,
	       usage_count, created_at, updated_at
	FROM chunks
	WHERE hash = ?`, hash)

	chunk, usage, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, 0, fmt.Errorf("chunk %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, 0, err
	}
	return chunk, usage, nil
}

// ListChunksFilter configures the ListChunks query.
type ListChunksFilter struct {
	// Language filters by chunk language (empty = all)
	Language string
	// Keyword filters to chunks carrying the keyword (empty = all)
	Keyword string
	// Source filters by source (empty = all)
	Source string
	// Limit restricts the number of results (0 = no limit)
	Limit int
	// Offset skips the first N results (for pagination)
	Offset int
}

// ListChunks retrieves chunks matching the given filters.
// Results are ordered by usage_count DESC, then created_at ASC.
func (db *DB) ListChunks(filter ListChunksFilter) ([]*schema.ChunkFile, error) {
	return db.ListChunksContext(context.Background(), filter)
}

// ListChunksContext retrieves chunks with context support.
func (db *DB) ListChunksContext(ctx context.Context, filter ListChunksFilter) ([]*schema.ChunkFile, error) {
	var conditions []string
	var args []interface{}

	if filter.Language != "" {
		conditions = append(conditions, "c.language = ?")
		args = append(args, filter.Language)
	}

	if filter.Source != "" {
		conditions = append(conditions, "c.source = ?")
		args = append(args, filter.Source)
	}

	if filter.Keyword != "" {
		conditions = append(conditions, "c.hash IN (SELECT hash FROM chunk_keywords WHERE keyword = ?)")
		args = append(args, filter.Keyword)
	}

	query := `
	SELECT c.hash, c.content, c.source, c.language, c.keywords, c.embedding,
	       c.metadata, c.usage_count, c.created_at, c.updated_at
	FROM chunks c
	`

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY c.usage_count DESC, c.created_at ASC"

	// SQLite only accepts OFFSET after LIMIT; LIMIT -1 means unbounded.
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}

	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*schema.ChunkFile
	for rows.Next() {
		chunk, _, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}

	return chunks, nil
}

// GetLink retrieves a single link by its (from, relation, to) triple.
// Returns ErrNotFound if the link does not exist. The second return value
// is the link's usage_count.
func (db *DB) GetLink(from, relation, to string) (*schema.LinkFile, int, error) {
	return db.GetLinkContext(context.Background(), from, relation, to)
}

// GetLinkContext retrieves a single link with context support.
func (db *DB) GetLinkContext(ctx context.Context, from, relation, to string) (*schema.LinkFile, int, error) {
	var link schema.LinkFile
	var usageCount int
	var createdAtStr string

	err := db.conn.QueryRowContext(ctx, `
	SELECT from_hash, to_hash, relation, weight, usage_count, created_at
	FROM links WHERE from_hash = ? AND to_hash = ? AND relation = ?`,
		from, to, relation).Scan(
		&link.From, &link.To, &link.Relation, &link.Weight, &usageCount, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, 0, fmt.Errorf("link %s--%s--%s: %w", from, relation, to, ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query link: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse created_at: %w", err)
	}
	link.CreatedAt = createdAt

	return &link, usageCount, nil
}

// LinksFor returns all links touching the given chunk hash.
// This includes outgoing links (chunk is 'from') and incoming (chunk is 'to').
func (db *DB) LinksFor(hash string) ([]*schema.LinkFile, error) {
	return db.LinksForContext(context.Background(), hash)
}

// LinksForContext returns links with context support.
func (db *DB) LinksForContext(ctx context.Context, hash string) ([]*schema.LinkFile, error) {
	query := `
	SELECT from_hash, to_hash, relation, weight, created_at
	FROM links
	WHERE from_hash = ? OR to_hash = ?
	ORDER BY created_at ASC
	`

	rows, err := db.conn.QueryContext(ctx, query, hash, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []*schema.LinkFile
	for rows.Next() {
		var link schema.LinkFile
		var createdAtStr string

		err := rows.Scan(&link.From, &link.To, &link.Relation, &link.Weight, &createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}

		createdAt, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		link.CreatedAt = createdAt

		links = append(links, &link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	return links, nil
}

// Neighborhood returns the hashes reachable from the given chunk within the
// given depth, following links in either direction.
func (db *DB) Neighborhood(ctx context.Context, hash string, depth int) ([]string, error) {
	if depth < 1 {
		depth = 1
	}

	query := `
	WITH RECURSIVE reach AS (
		-- Base case: the chunk itself at depth 0
		SELECT ? AS hash, 0 AS depth

		UNION

		-- Recursive case: one hop in either direction
		SELECT CASE WHEN l.from_hash = r.hash THEN l.to_hash ELSE l.from_hash END,
		       r.depth + 1
		FROM reach r
		JOIN links l ON l.from_hash = r.hash OR l.to_hash = r.hash
		WHERE r.depth < ?
	)
	SELECT DISTINCT hash FROM reach WHERE hash != ? ORDER BY hash
	`

	rows, err := db.conn.QueryContext(ctx, query, hash, depth, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighborhood of %s: %w", hash, err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan neighborhood row: %w", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating neighborhood: %w", err)
	}

	return hashes, nil
}

// ChunkCount returns the total number of chunks in the database.
func (db *DB) ChunkCount() (int, error) {
	return db.ChunkCountContext(context.Background())
}

// ChunkCountContext returns the total number of chunks with context support.
func (db *DB) ChunkCountContext(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get chunk count: %w", err)
	}
	return count, nil
}

// LinkCount returns the total number of links in the database.
func (db *DB) LinkCount() (int, error) {
	return db.LinkCountContext(context.Background())
}

// LinkCountContext returns the total number of links with context support.
func (db *DB) LinkCountContext(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM links").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get link count: %w", err)
	}
	return count, nil
}

// rowScanner matches both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanChunk scans one chunk row plus its usage_count.
func scanChunk(row rowScanner) (*schema.ChunkFile, int, error) {
	var chunk schema.ChunkFile
	var source, language, keywordsJSON, metadataJSON sql.NullString
	var embedding []byte
	var usageCount int
	var createdAt, updatedAt string

	err := row.Scan(
		&chunk.Hash,
		&chunk.Content,
		&source,
		&language,
		&keywordsJSON,
		&embedding,
		&metadataJSON,
		&usageCount,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("failed to scan chunk: %w", err)
	}

	chunk.Source = source.String
	chunk.Language = language.String
	chunk.Keywords = decodeKeywords(keywordsJSON)
	chunk.Embedding = decodeEmbedding(embedding)
	chunk.Metadata = decodeMetadata(metadataJSON)

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		chunk.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		chunk.UpdatedAt = t
	}

	return &chunk, usageCount, nil
}

func decodeKeywords(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" || ns.String == "null" {
		return []string{}
	}
	var keywords []string
	if err := json.Unmarshal([]byte(ns.String), &keywords); err != nil {
		return []string{}
	}
	return keywords
}

func decodeMetadata(ns sql.NullString) map[string]string {
	if !ns.Valid || ns.String == "" || ns.String == "null" {
		return map[string]string{}
	}
	var metadata map[string]string
	if err := json.Unmarshal([]byte(ns.String), &metadata); err != nil {
		return map[string]string{}
	}
	return metadata
}

// encodeEmbedding packs a float32 vector as little-endian bytes.
// A nil or empty vector is stored as NULL.
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
