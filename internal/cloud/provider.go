// Package cloud provides the remote-file reconciler for graphmem.
//
// A Provider exposes a remote file store through exactly two operations:
// listing and downloading. The Reconciler compares each remote file's
// modification time against its local tracked copy, fetches only files that
// are strictly newer, hands the bytes to a ContentStore, and updates the
// tracked metadata. Content decryption and interpretation are the
// ContentStore's concern, not the reconciler's.
package cloud

import (
	"context"
	"fmt"
	"time"
)

// SyncStatus is the tracked state of one remote file.
type SyncStatus string

const (
	// StatusPending indicates the file is tracked but not yet synced.
	StatusPending SyncStatus = "pending"
	// StatusSynced indicates the local copy matches the tracked metadata.
	StatusSynced SyncStatus = "synced"
	// StatusError indicates the most recent download or save attempt failed.
	StatusError SyncStatus = "error"
)

// FileMeta describes one remote file.
type FileMeta struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ModifiedTime time.Time `json:"modified_time"`
}

// TrackedFile is a FileMeta plus local sync state.
type TrackedFile struct {
	FileMeta
	Status SyncStatus `json:"status"`
}

// Provider is the remote-listing capability the reconciler consumes.
//
// Implementations must be safe for use from a single goroutine; the
// reconciler serializes its own calls.
type Provider interface {
	// ListFiles returns the full remote listing. No pagination: the
	// reconciler full-scans on every pass.
	ListFiles(ctx context.Context) ([]FileMeta, error)

	// DownloadFile fetches the content of one remote file by id.
	DownloadFile(ctx context.Context, id string) ([]byte, error)
}

// ContentStore receives downloaded content. The default implementation
// writes files into the chunks inbox directory; decryption or parsing
// belongs behind this interface.
type ContentStore interface {
	Save(id, name string, data []byte) error
}

// ListingError indicates the remote listing could not be obtained.
// The sync pass aborts before any local mutation.
type ListingError struct {
	Err error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("remote listing failed: %v", e.Err)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}

// DownloadError indicates a single file could not be downloaded or saved.
// It does not abort the sync pass; the file's tracked metadata is left
// unchanged until a later successful attempt.
type DownloadError struct {
	ID  string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed for %s: %v", e.ID, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}
