// Package schema provides data structures for graphmem record files.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ChunkFile represents a retrieval chunk stored as an individual JSON file
// in chunks/*.json. The content hash is the merge identity: repeated writes
// with the same hash address the same logical record.
type ChunkFile struct {
	// ===== Core Identification =====
	Hash string `json:"hash"`

	// ===== Content =====
	Content  string `json:"content"`
	Source   string `json:"source,omitempty"`
	Language string `json:"language,omitempty"`

	// ===== Retrieval Signals =====
	Keywords  []string  `json:"keywords,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`

	// ===== Arbitrary Metadata =====
	Metadata map[string]string `json:"metadata,omitempty"`

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the ChunkFile has valid field values.
func (c *ChunkFile) Validate() error {
	if c.Hash == "" {
		return fmt.Errorf("hash is required")
	}
	if strings.ContainsAny(c.Hash, "/\\ ") {
		return fmt.Errorf("hash must not contain path separators or spaces (got %q)", c.Hash)
	}
	if c.Content == "" {
		return fmt.Errorf("content is required")
	}
	for _, kw := range c.Keywords {
		if kw == "" {
			return fmt.Errorf("keywords must not contain empty strings")
		}
		if kw != strings.ToLower(kw) {
			return fmt.Errorf("keywords must be lower-case (got %q)", kw)
		}
	}
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if c.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// Filename returns the canonical filename for this chunk: {hash}.json
func (c *ChunkFile) Filename() string {
	return fmt.Sprintf("%s.json", c.Hash)
}

// SetDefaults applies default values for optional fields.
// This ensures consistent behavior when fields are omitted.
func (c *ChunkFile) SetDefaults() {
	if c.Keywords == nil {
		c.Keywords = []string{}
	}
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
}

// NormalizeKeywords lower-cases and de-duplicates the keyword list in place,
// preserving first-seen order.
func (c *ChunkFile) NormalizeKeywords() {
	seen := make(map[string]bool, len(c.Keywords))
	out := c.Keywords[:0]
	for _, kw := range c.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	c.Keywords = out
}

// ReadChunkFile reads and parses a chunk JSON file from the given path.
// Returns the parsed ChunkFile or an error if reading/parsing fails.
func ReadChunkFile(path string) (*ChunkFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk file %s: %w", path, err)
	}

	var chunk ChunkFile
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("failed to parse chunk file %s: %w", path, err)
	}

	if err := chunk.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunk file %s: %w", path, err)
	}

	return &chunk, nil
}

// WriteChunkFile writes a ChunkFile to disk as JSON.
// The file is written to chunksDir/{hash}.json with pretty-printed formatting.
func WriteChunkFile(chunksDir string, chunk *ChunkFile) error {
	if err := chunk.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid chunk: %w", err)
	}

	if err := os.MkdirAll(chunksDir, 0755); err != nil {
		return fmt.Errorf("failed to create chunks directory: %w", err)
	}

	data, err := json.MarshalIndent(chunk, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chunk %s: %w", chunk.Hash, err)
	}

	path := filepath.Join(chunksDir, chunk.Filename())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write chunk file %s: %w", path, err)
	}

	return nil
}

// ReadAllChunkFiles reads all chunk files from the given directory.
// Invalid files are skipped with a warning to stderr.
func ReadAllChunkFiles(chunksDir string) ([]*ChunkFile, error) {
	entries, err := os.ReadDir(chunksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*ChunkFile{}, nil // Empty directory is valid
		}
		return nil, fmt.Errorf("failed to read chunks directory: %w", err)
	}

	var chunks []*ChunkFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(chunksDir, entry.Name())
		chunk, err := ReadChunkFile(path)
		if err != nil {
			// Log warning but continue processing other files
			fmt.Fprintf(os.Stderr, "Warning: skipping invalid chunk file %s: %v\n", entry.Name(), err)
			continue
		}

		chunks = append(chunks, chunk)
	}

	return chunks, nil
}
