package sync

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"graphmem/internal/graph/db"
	"graphmem/internal/graph/schema"
)

// syncer implements the Syncer interface.
type syncer struct {
	db     *db.DB
	logger *log.Logger
}

// New creates a new Syncer instance.
//
// The database connection must be initialized and have schema created
// before passing to this function.
//
// If logger is nil, a default logger writing to stderr is used.
//
// Example:
//
//	database, err := db.Open(".graphmem/graph.db")
//	if err != nil {
//	    return err
//	}
//	if err := database.InitSchema(); err != nil {
//	    return err
//	}
//	syncer := sync.New(database, nil)
func New(database *db.DB, logger *log.Logger) Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &syncer{
		db:     database,
		logger: logger,
	}
}

// SyncChunk implements Syncer.SyncChunk.
func (s *syncer) SyncChunk(chunkPath string) error {
	chunk, err := schema.ReadChunkFile(chunkPath)
	if err != nil {
		return fmt.Errorf("failed to read chunk file: %w", err)
	}
	chunk.NormalizeKeywords()

	res, err := s.db.UpsertChunk(chunk)
	if err != nil {
		return fmt.Errorf("failed to sync chunk to database: %w", err)
	}

	action := "updated"
	if res.Created {
		action = "created"
	}
	s.logger.Printf("Synced chunk: %s (%s, usage=%d, discovered=%d)",
		chunk.Hash, action, res.UsageCount, res.DiscoveredLinks)
	return nil
}

// SyncLink implements Syncer.SyncLink.
func (s *syncer) SyncLink(linkPath string) error {
	link, err := schema.ReadLinkFile(linkPath)
	if err != nil {
		return fmt.Errorf("failed to read link file: %w", err)
	}

	if _, err := s.db.UpsertLink(link); err != nil {
		return fmt.Errorf("failed to sync link to database: %w", err)
	}

	s.logger.Printf("Synced link: %s --%s--> %s", link.From, link.Relation, link.To)
	return nil
}

// DeleteChunk implements Syncer.DeleteChunk.
func (s *syncer) DeleteChunk(hash string) error {
	if err := s.db.DeleteChunk(hash); err != nil {
		return fmt.Errorf("failed to delete chunk: %w", err)
	}

	s.logger.Printf("Deleted chunk: %s", hash)
	return nil
}

// DeleteLink implements Syncer.DeleteLink.
func (s *syncer) DeleteLink(from, relation, to string) error {
	if err := s.db.DeleteLink(from, relation, to); err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	s.logger.Printf("Deleted link: %s --%s--> %s", from, relation, to)
	return nil
}

// FullSync implements Syncer.FullSync.
func (s *syncer) FullSync(chunksDir, linksDir string) error {
	s.logger.Printf("Starting full sync from chunks=%s, links=%s", chunksDir, linksDir)

	// Track statistics
	var (
		chunksRead   int
		chunksFailed int
		linksRead    int
		linksFailed  int
	)

	// Chunks first so link endpoints exist
	if err := s.syncAllChunks(chunksDir, &chunksRead, &chunksFailed); err != nil {
		return fmt.Errorf("failed to sync chunks: %w", err)
	}

	if err := s.syncAllLinks(linksDir, &linksRead, &linksFailed); err != nil {
		return fmt.Errorf("failed to sync links: %w", err)
	}

	// Rebuild keyword index after syncing all files
	s.logger.Printf("Rebuilding keyword index...")
	if err := s.ReindexKeywords(); err != nil {
		return fmt.Errorf("failed to rebuild keyword index: %w", err)
	}

	s.logger.Printf("Full sync complete: chunks=%d (failed=%d), links=%d (failed=%d)",
		chunksRead, chunksFailed, linksRead, linksFailed)

	return nil
}

// syncAllChunks reads and syncs all chunk files from the directory.
// Individual file failures are logged but don't stop the sync.
func (s *syncer) syncAllChunks(chunksDir string, chunksRead, chunksFailed *int) error {
	if _, err := os.Stat(chunksDir); os.IsNotExist(err) {
		s.logger.Printf("Chunks directory doesn't exist: %s (skipping)", chunksDir)
		return nil
	}

	entries, err := os.ReadDir(chunksDir)
	if err != nil {
		return fmt.Errorf("failed to read chunks directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(chunksDir, entry.Name())

		if err := s.SyncChunk(path); err != nil {
			s.logger.Printf("WARNING: Failed to sync chunk %s: %v", entry.Name(), err)
			*chunksFailed++
			continue
		}

		*chunksRead++
	}

	return nil
}

// syncAllLinks reads and syncs all link files from the directory.
// Individual file failures are logged but don't stop the sync.
func (s *syncer) syncAllLinks(linksDir string, linksRead, linksFailed *int) error {
	if _, err := os.Stat(linksDir); os.IsNotExist(err) {
		s.logger.Printf("Links directory doesn't exist: %s (skipping)", linksDir)
		return nil
	}

	entries, err := os.ReadDir(linksDir)
	if err != nil {
		return fmt.Errorf("failed to read links directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(linksDir, entry.Name())

		if err := s.SyncLink(path); err != nil {
			s.logger.Printf("WARNING: Failed to sync link %s: %v", entry.Name(), err)
			*linksFailed++
			continue
		}

		*linksRead++
	}

	return nil
}

// ReindexKeywords implements Syncer.ReindexKeywords.
func (s *syncer) ReindexKeywords() error {
	if err := s.db.ReindexKeywords(); err != nil {
		return fmt.Errorf("failed to rebuild keyword index: %w", err)
	}

	s.logger.Printf("Keyword index rebuilt")
	return nil
}
