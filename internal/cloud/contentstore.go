package cloud

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirContentStore writes downloaded content into a local directory, one
// file per remote id. Pointing it at the chunks inbox makes the sync
// daemon pick downloads up on its next pass.
type DirContentStore struct {
	dir string
}

// NewDirContentStore creates a content store rooted at dir.
// The directory is created on first save.
func NewDirContentStore(dir string) *DirContentStore {
	return &DirContentStore{dir: dir}
}

// Save writes data to dir/{name}, falling back to dir/{id} when the remote
// name is empty or unsafe.
func (s *DirContentStore) Save(id, name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create content directory: %w", err)
	}

	filename := name
	if filename == "" || strings.ContainsAny(filename, "/\\") {
		filename = id
	}

	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write content file %s: %w", path, err)
	}

	return nil
}

// DirProvider serves a local directory as a Provider. Useful for
// directory-to-directory mirroring and for tests; file modification
// times are the remote timestamps.
type DirProvider struct {
	dir string
}

// NewDirProvider creates a provider over the given directory.
func NewDirProvider(dir string) *DirProvider {
	return &DirProvider{dir: dir}
}

// ListFiles implements Provider.ListFiles.
func (p *DirProvider) ListFiles(ctx context.Context) ([]FileMeta, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider directory: %w", err)
	}

	var metas []FileMeta
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		metas = append(metas, FileMeta{
			ID:           entry.Name(),
			Name:         entry.Name(),
			ModifiedTime: info.ModTime(),
		})
	}

	return metas, nil
}

// DownloadFile implements Provider.DownloadFile.
func (p *DirProvider) DownloadFile(ctx context.Context, id string) ([]byte, error) {
	if strings.ContainsAny(id, "/\\") {
		return nil, fmt.Errorf("invalid file id %q", id)
	}

	data, err := os.ReadFile(filepath.Join(p.dir, id))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", id, err)
	}
	return data, nil
}
