// Package sync provides interfaces and implementations for synchronizing
// file-based record storage with the graphmem query cache.
package sync

// Syncer keeps the graph database in sync with file-based record storage.
//
// The syncer is responsible for reading chunk and link files from disk,
// validating them, and updating the graph database accordingly.
// It handles both incremental sync (single file changes) and full sync
// (all files in directory).
//
// The syncer is designed to be resilient - individual file failures should
// not stop the entire sync process. Errors are logged and the sync continues
// with other files.
type Syncer interface {
	// SyncChunk reads a chunk file and upserts it into the graph database.
	//
	// The chunkPath should be an absolute path to a chunk JSON file.
	// The file is read, validated, and upserted; the upsert runs the
	// keyword link-discovery pass.
	//
	// Returns an error if the file cannot be read, is invalid,
	// or the database update fails.
	//
	// Example:
	//   err := syncer.SyncChunk("/path/to/chunks/c9f0ab12.json")
	SyncChunk(chunkPath string) error

	// SyncLink reads a link file and upserts it into the graph database.
	//
	// The linkPath should be an absolute path to a link JSON file.
	// Both endpoints must already exist in the database; syncing a link
	// whose endpoints are missing fails with db.ErrNotFound.
	//
	// Example:
	//   err := syncer.SyncLink("/path/to/links/abc--related--xyz.json")
	SyncLink(linkPath string) error

	// DeleteChunk removes a chunk from the graph database.
	//
	// This should be called when a chunk file is deleted from disk.
	// Links and keyword index entries cascade.
	//
	// Returns nil if the chunk doesn't exist (idempotent).
	DeleteChunk(hash string) error

	// DeleteLink removes a link from the graph database.
	//
	// This should be called when a link file is deleted from disk.
	// Returns nil if the link doesn't exist (idempotent).
	DeleteLink(from, relation, to string) error

	// FullSync performs a complete sync from files to the database.
	//
	// This reads all chunk files from chunksDir and all link files from
	// linksDir, and updates the database to include them. Chunks are synced
	// before links so that link endpoints exist.
	//
	// The sync is resilient - individual file failures are logged but
	// do not stop the entire process. The function returns an error
	// only if a directory cannot be read or a critical database
	// operation fails.
	//
	// After syncing all files, the keyword index is rebuilt.
	//
	// Example:
	//   err := syncer.FullSync("/path/to/chunks", "/path/to/links")
	FullSync(chunksDir, linksDir string) error

	// ReindexKeywords rebuilds the keyword index from stored chunks.
	//
	// This should be called:
	// - After a full sync
	// - Periodically, to repair drift after out-of-band writes
	ReindexKeywords() error
}
