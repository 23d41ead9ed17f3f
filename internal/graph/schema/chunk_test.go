package schema

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func validChunk() *ChunkFile {
	now := time.Now().UTC()
	return &ChunkFile{
		Hash:      "abc123",
		Content:   "some retrieval text",
		Source:    "docs/intro.md",
		Language:  "en",
		Keywords:  []string{"intro", "docs"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestChunkValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ChunkFile)
		wantErr bool
	}{
		{"valid", func(c *ChunkFile) {}, false},
		{"missing hash", func(c *ChunkFile) { c.Hash = "" }, true},
		{"hash with slash", func(c *ChunkFile) { c.Hash = "a/b" }, true},
		{"hash with space", func(c *ChunkFile) { c.Hash = "a b" }, true},
		{"missing content", func(c *ChunkFile) { c.Content = "" }, true},
		{"empty keyword", func(c *ChunkFile) { c.Keywords = []string{""} }, true},
		{"upper-case keyword", func(c *ChunkFile) { c.Keywords = []string{"Mixed"} }, true},
		{"zero created_at", func(c *ChunkFile) { c.CreatedAt = time.Time{} }, true},
		{"zero updated_at", func(c *ChunkFile) { c.UpdatedAt = time.Time{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk := validChunk()
			tt.mutate(chunk)
			err := chunk.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChunkFilename(t *testing.T) {
	chunk := &ChunkFile{Hash: "abc123"}
	if got := chunk.Filename(); got != "abc123.json" {
		t.Errorf("Filename() = %q, want %q", got, "abc123.json")
	}
}

func TestNormalizeKeywords(t *testing.T) {
	chunk := &ChunkFile{
		Keywords: []string{"SQLite", " wal ", "sqlite", "", "Cache"},
	}
	chunk.NormalizeKeywords()

	want := []string{"sqlite", "wal", "cache"}
	if !reflect.DeepEqual(chunk.Keywords, want) {
		t.Errorf("Keywords = %v, want %v", chunk.Keywords, want)
	}
}

func TestWriteReadChunkFile(t *testing.T) {
	dir := t.TempDir()
	chunk := validChunk()
	chunk.Metadata = map[string]string{"origin": "test"}
	chunk.Embedding = []float32{0.1, 0.2}

	if err := WriteChunkFile(dir, chunk); err != nil {
		t.Fatalf("WriteChunkFile() failed: %v", err)
	}

	got, err := ReadChunkFile(filepath.Join(dir, chunk.Filename()))
	if err != nil {
		t.Fatalf("ReadChunkFile() failed: %v", err)
	}

	if got.Hash != chunk.Hash || got.Content != chunk.Content {
		t.Errorf("round trip lost identity: %+v", got)
	}
	if !reflect.DeepEqual(got.Keywords, chunk.Keywords) {
		t.Errorf("Keywords = %v, want %v", got.Keywords, chunk.Keywords)
	}
	if got.Metadata["origin"] != "test" {
		t.Errorf("Metadata = %v, want origin=test", got.Metadata)
	}
}

func TestWriteChunkFile_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	if err := WriteChunkFile(dir, &ChunkFile{Hash: "x"}); err == nil {
		t.Error("WriteChunkFile() accepted an invalid chunk")
	}
}

func TestReadAllChunkFiles(t *testing.T) {
	dir := t.TempDir()

	good := validChunk()
	if err := WriteChunkFile(dir, good); err != nil {
		t.Fatalf("WriteChunkFile() failed: %v", err)
	}

	// Invalid entries are skipped, not fatal
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write broken file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatalf("failed to write non-json file: %v", err)
	}

	chunks, err := ReadAllChunkFiles(dir)
	if err != nil {
		t.Fatalf("ReadAllChunkFiles() failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Hash != good.Hash {
		t.Errorf("chunks = %+v, want just %s", chunks, good.Hash)
	}
}

func TestReadAllChunkFiles_MissingDir(t *testing.T) {
	chunks, err := ReadAllChunkFiles(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("ReadAllChunkFiles() on missing dir failed: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("chunks = %v, want empty", chunks)
	}
}
