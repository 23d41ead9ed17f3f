// Package daemon provides file system watching for the graphmem sync daemon.
package daemon

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileType represents whether the event is for a chunk or link file.
type FileType int

const (
	// TypeChunk indicates a chunk file (chunks/*.json).
	TypeChunk FileType = iota
	// TypeLink indicates a link file (links/*.json).
	TypeLink
)

// String returns a human-readable representation of the file type.
func (ft FileType) String() string {
	switch ft {
	case TypeChunk:
		return "chunk"
	case TypeLink:
		return "link"
	default:
		return "unknown"
	}
}

// FileEvent represents a file system event for chunk or link files.
type FileEvent struct {
	// Path is the absolute path to the file that changed.
	Path string
	// Type indicates whether this is a chunk or link file.
	Type FileType
	// Op is the operation that occurred (create, modify, delete).
	Op EventOp
}

// FileWatcher watches chunk and link directories for changes.
// It uses fsnotify for cross-platform file system event monitoring.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	events    chan FileEvent
	errors    chan error
	done      chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
	chunksDir string
	linksDir  string
}

// NewFileWatcher creates a new FileWatcher instance.
// The watcher must be started with Start() before it will emit events.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the specified directories for changes.
// It monitors both directories for *.json file events.
// Returns an error if the directories cannot be watched.
func (fw *FileWatcher) Start(chunksDir, linksDir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	fw.chunksDir = chunksDir
	fw.linksDir = linksDir

	if err := fw.watcher.Add(chunksDir); err != nil {
		return fmt.Errorf("failed to watch chunks directory %s: %w", chunksDir, err)
	}

	if err := fw.watcher.Add(linksDir); err != nil {
		// Clean up the chunks watch if the links watch fails
		fw.watcher.Remove(chunksDir)
		return fmt.Errorf("failed to watch links directory %s: %w", linksDir, err)
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops watching for file system events and cleans up resources.
// It blocks until the event processing goroutine has exited.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = false
	fw.mu.Unlock()

	// Signal shutdown
	close(fw.done)

	// Close the underlying watcher (this will unblock the event loop)
	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	// Wait for event processing to finish
	fw.wg.Wait()

	// Close channels
	close(fw.events)
	close(fw.errors)

	return nil
}

// Events returns the channel that emits FileEvent notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the channel that emits error notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// processEvents is the main event loop that processes fsnotify events
// and converts them to FileEvent notifications.
func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if fileEvent, ok := fw.convertEvent(event); ok {
				select {
				case fw.events <- fileEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent converts an fsnotify event to a FileEvent.
// Returns (FileEvent, true) if the event should be processed,
// or (FileEvent{}, false) if the event should be ignored.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	// Only process .json files
	if !strings.HasSuffix(event.Name, ".json") {
		return FileEvent{}, false
	}

	// Determine file type based on parent directory
	fileType, ok := fw.determineFileType(event.Name)
	if !ok {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		// Treat rename as delete (the new name will trigger a create)
		op = OpDelete
	default:
		// Ignore chmod and other events
		return FileEvent{}, false
	}

	return FileEvent{
		Path: event.Name,
		Type: fileType,
		Op:   op,
	}, true
}

// determineFileType checks if the file path is in chunks/ or links/
// and returns the corresponding FileType.
func (fw *FileWatcher) determineFileType(path string) (FileType, bool) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, false
	}

	dir := filepath.Dir(absPath)

	absChunksDir, _ := filepath.Abs(fw.chunksDir)
	absLinksDir, _ := filepath.Abs(fw.linksDir)

	if dir == absChunksDir {
		return TypeChunk, true
	}
	if dir == absLinksDir {
		return TypeLink, true
	}

	return 0, false
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}
