// Package daemon provides the sync daemon that orchestrates file watching and
// graph database updates.
//
// The daemon:
// 1. Watches for file changes in chunks/ and links/ directories
// 2. Syncs affected files to the graph database
// 3. Periodically rebuilds the keyword index
// 4. Optionally runs periodic cloud reconciliation passes
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	stdsync "sync"
	"time"

	"graphmem/internal/cloud"
	"graphmem/internal/graph/schema"
	"graphmem/internal/graph/sync"
)

// Notifier receives daemon change events. The dashboard handler implements
// this; a nil notifier disables event publication.
type Notifier interface {
	// ChunkChanged is called after a chunk file was synced or deleted.
	ChunkChanged(hash, action string)
	// LinkChanged is called after a link file was synced or deleted.
	LinkChanged(from, relation, to, action string)
	// SyncCompleted is called after the startup full sync finishes.
	SyncCompleted(duration time.Duration)
	// Reindexed is called after a keyword index rebuild.
	Reindexed()
}

// Config holds configuration for the daemon.
type Config struct {
	// ReindexInterval is how often to rebuild the keyword index
	ReindexInterval time.Duration

	// DebounceInterval is how long to wait before processing file changes
	// This batches rapid updates together
	DebounceInterval time.Duration

	// CloudSyncInterval is how often to run a cloud reconciliation pass.
	// Ignored when no Reconciler is attached.
	CloudSyncInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ReindexInterval:   5 * time.Second,
		DebounceInterval:  100 * time.Millisecond,
		CloudSyncInterval: 30 * time.Second,
		Logger:            log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates file watching and database synchronization.
type Daemon struct {
	syncer    sync.Syncer
	chunksDir string
	linksDir  string
	config    *Config

	reconciler *cloud.Reconciler
	notifier   Notifier

	watcher       *FileWatcher
	changeQueue   map[string]queuedChange
	changeQueueMu stdsync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

type queuedChange struct {
	event    FileEvent
	queuedAt time.Time
}

// New creates a new Daemon instance.
//
// The daemon requires:
//   - syncer: file-to-database sync layer (schema must be initialized)
//   - chunksDir: Directory containing chunk JSON files (chunks/*.json)
//   - linksDir: Directory containing link JSON files (links/*.json)
//
// Use Start() to begin watching and syncing.
func New(syncer sync.Syncer, chunksDir, linksDir string) (*Daemon, error) {
	return NewWithConfig(syncer, chunksDir, linksDir, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(syncer sync.Syncer, chunksDir, linksDir string, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if chunksDir == "" {
		return nil, fmt.Errorf("chunksDir cannot be empty")
	}
	if linksDir == "" {
		return nil, fmt.Errorf("linksDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		syncer:      syncer,
		chunksDir:   chunksDir,
		linksDir:    linksDir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]queuedChange),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// AttachReconciler adds a cloud reconciler whose SyncFiles is run every
// CloudSyncInterval. Must be called before Start.
func (d *Daemon) AttachReconciler(r *cloud.Reconciler) {
	d.reconciler = r
}

// AttachNotifier adds an event sink. Must be called before Start.
func (d *Daemon) AttachNotifier(n Notifier) {
	d.notifier = n
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Perform a full sync from files to database
// 2. Start watching for file changes
// 3. Periodically rebuild the keyword index
// 4. Process file changes with debouncing
// 5. Periodically reconcile the cloud remote, when attached
//
// This blocks until ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	// Perform initial full sync
	start := time.Now()
	if err := d.syncer.FullSync(d.chunksDir, d.linksDir); err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}
	if d.notifier != nil {
		d.notifier.SyncCompleted(time.Since(start))
	}

	if err := d.watcher.Start(d.chunksDir, d.linksDir); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	d.config.Logger.Printf("Watching: %s, %s", d.chunksDir, d.linksDir)

	// Start background goroutines
	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.reindexLoop()

	if d.reconciler != nil {
		d.wg.Add(1)
		go d.cloudSyncLoop()
	}

	// Wait for shutdown
	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	// Signal shutdown
	d.cancel()

	if err := d.watcher.Stop(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	// Wait for goroutines to finish
	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}

			d.config.Logger.Printf("File event: %s %s %s", event.Op, event.Type, event.Path)
			d.queueChange(event)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a file event to the change queue with debouncing.
// A later event for the same path replaces the earlier one.
func (d *Daemon) queueChange(event FileEvent) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[event.Path] = queuedChange{event: event, queuedAt: time.Now()}
}

// processChangeQueue processes queued file changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges syncs files that have been queued for long enough.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()
	needsReindex := false

	// Chunks before links, so a link landing in the same batch as its
	// endpoint chunks finds them already synced.
	for _, fileType := range []FileType{TypeChunk, TypeLink} {
		for path, change := range d.changeQueue {
			if change.event.Type != fileType {
				continue
			}

			// Only process if enough time has passed (debouncing)
			if now.Sub(change.queuedAt) < d.config.DebounceInterval {
				continue
			}

			d.config.Logger.Printf("Processing change: %s", path)

			var err error
			switch change.event.Type {
			case TypeChunk:
				err = d.syncChunkFile(change.event)
				needsReindex = true
			case TypeLink:
				err = d.syncLinkFile(change.event)
			}
			if err != nil {
				d.config.Logger.Printf("Error syncing %s %s: %v", change.event.Type, path, err)
			}

			delete(d.changeQueue, path)
		}
	}

	// Repair the keyword index if chunk keywords may have changed
	if needsReindex {
		if err := d.syncer.ReindexKeywords(); err != nil {
			d.config.Logger.Printf("Error rebuilding keyword index: %v", err)
		} else if d.notifier != nil {
			d.notifier.Reindexed()
		}
	}
}

// syncChunkFile syncs a single chunk file to the database.
func (d *Daemon) syncChunkFile(event FileEvent) error {
	hash := strippedName(event.Path)

	// Check if file was deleted
	if _, err := os.Stat(event.Path); os.IsNotExist(err) {
		if err := d.syncer.DeleteChunk(hash); err != nil {
			return err
		}
		if d.notifier != nil {
			d.notifier.ChunkChanged(hash, "deleted")
		}
		return nil
	}

	if err := d.syncer.SyncChunk(event.Path); err != nil {
		return err
	}
	if d.notifier != nil {
		d.notifier.ChunkChanged(hash, "synced")
	}
	return nil
}

// syncLinkFile syncs a single link file to the database.
func (d *Daemon) syncLinkFile(event FileEvent) error {
	from, relation, to, err := schema.FromFileName(filepath.Base(event.Path))
	if err != nil {
		return fmt.Errorf("failed to parse link filename: %w", err)
	}

	// Check if file was deleted
	if _, statErr := os.Stat(event.Path); os.IsNotExist(statErr) {
		if err := d.syncer.DeleteLink(from, relation, to); err != nil {
			return err
		}
		if d.notifier != nil {
			d.notifier.LinkChanged(from, relation, to, "deleted")
		}
		return nil
	}

	if err := d.syncer.SyncLink(event.Path); err != nil {
		return err
	}
	if d.notifier != nil {
		d.notifier.LinkChanged(from, relation, to, "synced")
	}
	return nil
}

// reindexLoop periodically rebuilds the keyword index.
func (d *Daemon) reindexLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ReindexInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if err := d.syncer.ReindexKeywords(); err != nil {
				d.config.Logger.Printf("Error rebuilding keyword index: %v", err)
			} else if d.notifier != nil {
				d.notifier.Reindexed()
			}
		}
	}
}

// cloudSyncLoop periodically reconciles the cloud remote into the chunks
// directory. Per-file failures inside a pass are already logged by the
// reconciler; listing failures are logged here and retried next tick.
func (d *Daemon) cloudSyncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.CloudSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if err := d.reconciler.SyncFiles(d.ctx); err != nil {
				d.config.Logger.Printf("Cloud sync: %v", err)
			}
		}
	}
}

// strippedName returns the filename without its .json extension.
func strippedName(path string) string {
	filename := filepath.Base(path)
	return filename[:len(filename)-len(".json")]
}
