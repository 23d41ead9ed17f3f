package cloud

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
)

// Reconciler brings the local tracked-file set in line with a remote
// Provider. Only files that are untracked, or strictly newer remotely,
// are downloaded; equal timestamps count as current, which keeps a
// repeated pass over an unchanged remote a no-op.
//
// All methods are safe for concurrent use. SyncFiles holds the
// reconciler's lock for the whole pass, so a second call blocks until
// the first finishes rather than interleaving with it.
type Reconciler struct {
	provider Provider
	store    ContentStore
	logger   *log.Logger

	mu      sync.Mutex
	tracked map[string]*TrackedFile
	order   []string // insertion order of tracked ids
}

// NewReconciler creates a Reconciler over the given provider and content
// store. If logger is nil, a default logger writing to stderr is used.
func NewReconciler(provider Provider, store ContentStore, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(os.Stderr, "[cloud] ", log.LstdFlags)
	}
	return &Reconciler{
		provider: provider,
		store:    store,
		logger:   logger,
		tracked:  make(map[string]*TrackedFile),
	}
}

// SyncFiles performs one reconciliation pass against the remote listing.
//
// A listing failure aborts the pass before any local mutation and is
// returned as a *ListingError. Per-file download or save failures mark the
// tracked entry StatusError, leave its metadata unchanged, and do not stop
// the remaining files; they are joined into the returned error.
//
// Context cancellation stops the pass between files. Updates already
// applied stay applied; nothing is rolled back.
func (r *Reconciler) SyncFiles(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	listing, err := r.provider.ListFiles(ctx)
	if err != nil {
		return &ListingError{Err: err}
	}

	var (
		downloaded int
		skipped    int
		failures   []error
	)

	for _, meta := range listing {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}

		local, ok := r.tracked[meta.ID]
		if ok && !meta.ModifiedTime.After(local.ModifiedTime) {
			// Equal or older than local: already current.
			skipped++
			continue
		}

		if err := r.fetchAndTrack(ctx, meta); err != nil {
			r.logger.Printf("WARNING: %v", err)
			failures = append(failures, err)
			continue
		}
		downloaded++
	}

	r.logger.Printf("Sync pass complete: downloaded=%d, skipped=%d, failed=%d",
		downloaded, skipped, len(failures))

	return errors.Join(failures...)
}

// fetchAndTrack downloads one file, hands the bytes to the content store,
// and only then advances the tracked metadata. A failure anywhere leaves
// the previous metadata in place with StatusError.
func (r *Reconciler) fetchAndTrack(ctx context.Context, meta FileMeta) error {
	data, err := r.provider.DownloadFile(ctx, meta.ID)
	if err != nil {
		r.markError(meta.ID)
		return &DownloadError{ID: meta.ID, Err: err}
	}

	if r.store != nil {
		if err := r.store.Save(meta.ID, meta.Name, data); err != nil {
			r.markError(meta.ID)
			return &DownloadError{ID: meta.ID, Err: err}
		}
	}

	r.trackLocked(&TrackedFile{FileMeta: meta, Status: StatusSynced})
	return nil
}

// markError flags an already-tracked entry without touching its metadata.
// Untracked ids stay untracked: a file we never synced has no local state
// to poison.
func (r *Reconciler) markError(id string) {
	if local, ok := r.tracked[id]; ok {
		local.Status = StatusError
	}
}

// TrackFile inserts or replaces the tracked entry for meta.ID.
// The entry starts as StatusPending unless replacing preserves nothing:
// replacement is wholesale.
func (r *Reconciler) TrackFile(meta FileMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trackLocked(&TrackedFile{FileMeta: meta, Status: StatusPending})
}

// trackLocked inserts or replaces an entry; the caller holds r.mu.
func (r *Reconciler) trackLocked(tf *TrackedFile) {
	if _, ok := r.tracked[tf.ID]; !ok {
		r.order = append(r.order, tf.ID)
	}
	r.tracked[tf.ID] = tf
}

// UntrackFile removes the tracked entry for id, if any.
func (r *Reconciler) UntrackFile(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tracked[id]; !ok {
		return
	}
	delete(r.tracked, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// UpdateSyncStatus mutates the status of a tracked entry in place.
// No-op when the id is not tracked.
func (r *Reconciler) UpdateSyncStatus(id string, status SyncStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if local, ok := r.tracked[id]; ok {
		local.Status = status
	}
}

// TrackedFiles returns a snapshot of the tracked set in insertion order.
// Removals compact the order, so positions are not stable across Untrack.
func (r *Reconciler) TrackedFiles() []TrackedFile {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TrackedFile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.tracked[id])
	}
	return out
}

// Tracked returns the tracked entry for id and whether it exists.
func (r *Reconciler) Tracked(id string) (TrackedFile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	local, ok := r.tracked[id]
	if !ok {
		return TrackedFile{}, false
	}
	return *local, true
}
