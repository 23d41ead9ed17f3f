package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultWeight is applied to links written without an explicit weight.
const DefaultWeight = 1.0

// LinkFile represents a single relation stored in links/*.json
// Filename convention: {from}--{relation}--{to}.json
type LinkFile struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Relation  string    `json:"relation"`
	Weight    float64   `json:"weight,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the LinkFile has valid field values
func (l *LinkFile) Validate() error {
	if l.From == "" {
		return fmt.Errorf("from is required")
	}
	if l.To == "" {
		return fmt.Errorf("to is required")
	}
	if l.Relation == "" {
		return fmt.Errorf("relation is required")
	}
	if strings.Contains(l.From, "--") || strings.Contains(l.To, "--") || strings.Contains(l.Relation, "--") {
		return fmt.Errorf("from, relation, and to must not contain the '--' separator")
	}
	if l.Weight < 0 {
		return fmt.Errorf("weight must not be negative (got %g)", l.Weight)
	}
	if l.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// ToFileName generates the filename for this link
// Format: {from}--{relation}--{to}.json
func (l *LinkFile) ToFileName() string {
	return fmt.Sprintf("%s--%s--%s.json", l.From, l.Relation, l.To)
}

// FromFileName parses a link filename and returns the components
// Returns (from, relation, to, error)
func FromFileName(filename string) (string, string, string, error) {
	name := strings.TrimSuffix(filename, ".json")

	parts := strings.Split(name, "--")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("invalid filename format: expected {from}--{relation}--{to}.json, got %s", filename)
	}

	from := parts[0]
	relation := parts[1]
	to := parts[2]

	if from == "" || relation == "" || to == "" {
		return "", "", "", fmt.Errorf("invalid filename: from, relation, and to cannot be empty")
	}

	return from, relation, to, nil
}

// ReadLinkFile reads and validates a link file
func ReadLinkFile(path string) (*LinkFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read link file: %w", err)
	}

	var link LinkFile
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("failed to parse link file: %w", err)
	}

	if err := link.Validate(); err != nil {
		return nil, fmt.Errorf("invalid link file: %w", err)
	}

	return &link, nil
}

// WriteLinkFile writes a link file with validation
func WriteLinkFile(dir string, link *LinkFile) error {
	if err := link.Validate(); err != nil {
		return fmt.Errorf("invalid link: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create links directory: %w", err)
	}

	filename := link.ToFileName()
	path := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(link, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal link file: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write link file: %w", err)
	}

	return nil
}

// ListAllLinks lists all link files in the directory
func ListAllLinks(linksDir string) ([]*LinkFile, error) {
	entries, err := os.ReadDir(linksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*LinkFile{}, nil
		}
		return nil, fmt.Errorf("failed to read links directory: %w", err)
	}

	var links []*LinkFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(linksDir, entry.Name())
		link, err := ReadLinkFile(path)
		if err != nil {
			// Skip invalid files but continue processing
			continue
		}
		links = append(links, link)
	}

	return links, nil
}

// ListLinksForChunk lists all link files involving a given chunk hash
// Returns both outgoing links (where chunk is 'from') and incoming (where chunk is 'to')
func ListLinksForChunk(linksDir string, hash string) ([]*LinkFile, error) {
	entries, err := os.ReadDir(linksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*LinkFile{}, nil
		}
		return nil, fmt.Errorf("failed to read links directory: %w", err)
	}

	var links []*LinkFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		// Parse filename to check if it involves this chunk
		from, _, to, err := FromFileName(entry.Name())
		if err != nil {
			// Skip invalid filenames
			continue
		}

		if from == hash || to == hash {
			path := filepath.Join(linksDir, entry.Name())
			link, err := ReadLinkFile(path)
			if err != nil {
				// Skip invalid files but continue processing
				continue
			}
			links = append(links, link)
		}
	}

	return links, nil
}

// DeleteLinkFile deletes a link file
func DeleteLinkFile(linksDir string, from, relation, to string) error {
	filename := fmt.Sprintf("%s--%s--%s.json", from, relation, to)
	path := filepath.Join(linksDir, filename)

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted, no error
		}
		return fmt.Errorf("failed to delete link file: %w", err)
	}

	return nil
}
