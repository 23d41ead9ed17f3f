package sync

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"graphmem/internal/graph/db"
	"graphmem/internal/graph/schema"
)

// setupTest creates a database, syncer, and workspace directories.
func setupTest(t *testing.T) (Syncer, *db.DB, string, string) {
	t.Helper()

	root := t.TempDir()
	chunksDir := filepath.Join(root, "chunks")
	linksDir := filepath.Join(root, "links")

	database, err := db.Open(filepath.Join(root, "graph.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	s := New(database, log.New(io.Discard, "", 0))
	return s, database, chunksDir, linksDir
}

// writeChunk writes a valid chunk file and returns its path.
func writeChunk(t *testing.T, dir, hash, content string, keywords ...string) string {
	t.Helper()

	now := time.Now().UTC()
	chunk := &schema.ChunkFile{
		Hash:      hash,
		Content:   content,
		Keywords:  keywords,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := schema.WriteChunkFile(dir, chunk); err != nil {
		t.Fatalf("WriteChunkFile() failed: %v", err)
	}
	return filepath.Join(dir, chunk.Filename())
}

func writeLink(t *testing.T, dir, from, relation, to string) string {
	t.Helper()

	link := &schema.LinkFile{
		From:      from,
		To:        to,
		Relation:  relation,
		CreatedAt: time.Now().UTC(),
	}
	if err := schema.WriteLinkFile(dir, link); err != nil {
		t.Fatalf("WriteLinkFile() failed: %v", err)
	}
	return filepath.Join(dir, link.ToFileName())
}

func TestSyncChunk(t *testing.T) {
	s, database, chunksDir, _ := setupTest(t)

	path := writeChunk(t, chunksDir, "c1", "hello", "kw")
	if err := s.SyncChunk(path); err != nil {
		t.Fatalf("SyncChunk() failed: %v", err)
	}

	chunk, usage, err := database.GetChunk("c1")
	if err != nil {
		t.Fatalf("GetChunk() failed: %v", err)
	}
	if chunk.Content != "hello" || usage != 0 {
		t.Errorf("chunk = %+v usage = %d, want content hello usage 0", chunk, usage)
	}
}

func TestSyncChunk_NormalizesKeywords(t *testing.T) {
	s, database, chunksDir, _ := setupTest(t)

	// Keywords are lower-cased before hitting the database
	now := time.Now().UTC()
	raw := filepath.Join(chunksDir, "c1.json")
	if err := os.MkdirAll(chunksDir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	data := `{"hash":"c1","content":"x","keywords":["sqlite","sqlite","wal"],"created_at":"` +
		now.Format(time.RFC3339) + `","updated_at":"` + now.Format(time.RFC3339) + `"}`
	if err := os.WriteFile(raw, []byte(data), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if err := s.SyncChunk(raw); err != nil {
		t.Fatalf("SyncChunk() failed: %v", err)
	}

	chunk, _, err := database.GetChunk("c1")
	if err != nil {
		t.Fatalf("GetChunk() failed: %v", err)
	}
	if len(chunk.Keywords) != 2 {
		t.Errorf("Keywords = %v, want deduped [sqlite wal]", chunk.Keywords)
	}
}

func TestSyncChunk_InvalidFile(t *testing.T) {
	s, _, chunksDir, _ := setupTest(t)

	if err := os.MkdirAll(chunksDir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	bad := filepath.Join(chunksDir, "bad.json")
	if err := os.WriteFile(bad, []byte("{broken"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if err := s.SyncChunk(bad); err == nil {
		t.Error("SyncChunk() accepted an invalid file")
	}
}

func TestSyncLink(t *testing.T) {
	s, database, chunksDir, linksDir := setupTest(t)

	if err := s.SyncChunk(writeChunk(t, chunksDir, "a", "x")); err != nil {
		t.Fatalf("SyncChunk(a) failed: %v", err)
	}
	if err := s.SyncChunk(writeChunk(t, chunksDir, "b", "y")); err != nil {
		t.Fatalf("SyncChunk(b) failed: %v", err)
	}

	if err := s.SyncLink(writeLink(t, linksDir, "a", "follows", "b")); err != nil {
		t.Fatalf("SyncLink() failed: %v", err)
	}

	links, err := database.LinksFor("a")
	if err != nil {
		t.Fatalf("LinksFor() failed: %v", err)
	}
	if len(links) != 1 {
		t.Errorf("len(links) = %d, want 1", len(links))
	}
}

func TestSyncLink_MissingEndpoint(t *testing.T) {
	s, _, _, linksDir := setupTest(t)

	if err := s.SyncLink(writeLink(t, linksDir, "ghost", "follows", "also-ghost")); err == nil {
		t.Error("SyncLink() accepted a link with missing endpoints")
	}
}

func TestDeleteChunkAndLink(t *testing.T) {
	s, database, chunksDir, linksDir := setupTest(t)

	if err := s.SyncChunk(writeChunk(t, chunksDir, "a", "x")); err != nil {
		t.Fatalf("SyncChunk(a) failed: %v", err)
	}
	if err := s.SyncChunk(writeChunk(t, chunksDir, "b", "y")); err != nil {
		t.Fatalf("SyncChunk(b) failed: %v", err)
	}
	if err := s.SyncLink(writeLink(t, linksDir, "a", "follows", "b")); err != nil {
		t.Fatalf("SyncLink() failed: %v", err)
	}

	if err := s.DeleteLink("a", "follows", "b"); err != nil {
		t.Fatalf("DeleteLink() failed: %v", err)
	}
	if err := s.DeleteChunk("a"); err != nil {
		t.Fatalf("DeleteChunk() failed: %v", err)
	}

	count, err := database.ChunkCount()
	if err != nil {
		t.Fatalf("ChunkCount() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("ChunkCount() = %d, want 1", count)
	}
}

func TestFullSync(t *testing.T) {
	s, database, chunksDir, linksDir := setupTest(t)

	writeChunk(t, chunksDir, "a", "x", "shared")
	writeChunk(t, chunksDir, "b", "y", "shared")
	writeLink(t, linksDir, "a", "follows", "b")

	// An unreadable file must not abort the sync
	if err := os.WriteFile(filepath.Join(chunksDir, "bad.json"), []byte("{broken"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if err := s.FullSync(chunksDir, linksDir); err != nil {
		t.Fatalf("FullSync() failed: %v", err)
	}

	chunks, err := database.ChunkCount()
	if err != nil {
		t.Fatalf("ChunkCount() failed: %v", err)
	}
	if chunks != 2 {
		t.Errorf("ChunkCount() = %d, want 2", chunks)
	}

	// Explicit link plus one discovered via shared keyword
	links, err := database.LinkCount()
	if err != nil {
		t.Fatalf("LinkCount() failed: %v", err)
	}
	if links != 2 {
		t.Errorf("LinkCount() = %d, want 2", links)
	}
}

func TestFullSync_MissingDirs(t *testing.T) {
	s, _, _, _ := setupTest(t)

	root := t.TempDir()
	if err := s.FullSync(filepath.Join(root, "no-chunks"), filepath.Join(root, "no-links")); err != nil {
		t.Errorf("FullSync() on missing dirs failed: %v", err)
	}
}
