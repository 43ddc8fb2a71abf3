// Package upload orchestrates concurrent per-file uploads for one batch:
// validation, cancellation, and settled-result aggregation.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/onlyoffice/pipedrive-int/internal/events"
	"github.com/onlyoffice/pipedrive-int/internal/host"
	"github.com/onlyoffice/pipedrive-int/internal/httpx"
	"github.com/onlyoffice/pipedrive-int/internal/logging"
	"github.com/onlyoffice/pipedrive-int/internal/models"
)

// Status is the lifecycle state of one tracked upload entry.
type Status string

const (
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// DefaultMaxBatch is the most files one batch may contain.
const DefaultMaxBatch = 5

// DefaultMaxFileSize is the per-file size ceiling (20 MB), checked before
// any request is issued.
const DefaultMaxFileSize = 20 << 20

// Entry is one tracked file in the session. Mutated in place as its upload
// progresses; removed when the user dismisses it.
type Entry struct {
	ID            string
	Name          string
	Size          int64
	Status        Status
	BackendFileID string
}

// LocalFile is a file the user selected for upload.
type LocalFile struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// Uploader is the backend surface the session needs: send one file, delete
// one persisted file.
type Uploader interface {
	Upload(ctx context.Context, name string, content io.Reader) (*models.File, error)
	Delete(ctx context.Context, fileID string) error
}

var (
	// ErrBatchTooLarge rejects a whole batch over the file-count limit.
	ErrBatchTooLarge = errors.New("upload: too many files in one batch")

	// ErrEntryNotFound is returned for operations on unknown entry ids.
	ErrEntryNotFound = errors.New("upload: entry not found")
)

// BatchResult partitions a settled batch by outcome. Names are file names.
type BatchResult struct {
	Succeeded []string
	Failed    []string
	Cancelled []string
}

// Manager tracks upload entries and their cancellation handles. The handle
// table has exactly two mutation points: insert when an upload starts,
// remove when it settles or is cancelled, so "handle present" always means
// "upload in flight".
type Manager struct {
	uploader Uploader
	commands host.Commands
	logger   *logging.Logger
	bus      *events.Bus

	maxBatch    int
	maxFileSize int64

	mu      sync.Mutex
	entries []*Entry
	cancels map[string]context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus publishes upload events to the given bus.
func WithBus(bus *events.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithMaxBatch overrides the batch file-count limit.
func WithMaxBatch(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxBatch = n
		}
	}
}

// WithMaxFileSize overrides the per-file size ceiling.
func WithMaxFileSize(n int64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxFileSize = n
		}
	}
}

// NewManager creates an upload session manager.
func NewManager(uploader Uploader, commands host.Commands, logger *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		uploader:    uploader,
		commands:    commands,
		logger:      logger,
		maxBatch:    DefaultMaxBatch,
		maxFileSize: DefaultMaxFileSize,
		cancels:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Entries returns a snapshot of the tracked entries in creation order.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = *e
	}
	return out
}

type fileResult struct {
	name      string
	success   bool
	cancelled bool
}

// UploadBatch validates and uploads one batch. Oversized batches are
// rejected wholesale with a single limit notification and the tracked list
// unchanged. Otherwise every file gets an entry in uploading state and all
// uploads run concurrently; after the batch settles, at most two
// notifications summarize successes and failures. Cancellations are silent.
func (m *Manager) UploadBatch(ctx context.Context, files []LocalFile) (*BatchResult, error) {
	if len(files) == 0 {
		return &BatchResult{}, nil
	}
	if len(files) > m.maxBatch {
		m.snackbar(ctx, fmt.Sprintf("You can upload a maximum of %d files at once", m.maxBatch))
		return nil, ErrBatchTooLarge
	}

	ids := make([]string, len(files))
	m.mu.Lock()
	for i, f := range files {
		entry := &Entry{
			ID:     uuid.NewString(),
			Name:   f.Name,
			Size:   f.Size,
			Status: StatusUploading,
		}
		ids[i] = entry.ID
		m.entries = append(m.entries, entry)
	}
	m.mu.Unlock()

	for i, f := range files {
		m.publish(events.EventUploadQueued, ids[i], f.Name, f.Size, nil)
	}

	if err := m.commands.Resize(ctx, host.SizeExpanded); err != nil {
		m.logger.Warn().Err(err).Msg("resize command failed")
	}

	results := make([]fileResult, len(files))
	var wg sync.WaitGroup
	for i := range files {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.uploadOne(ctx, files[i], ids[i])
		}(i)
	}
	wg.Wait()

	batch := &BatchResult{}
	for _, r := range results {
		switch {
		case r.success:
			batch.Succeeded = append(batch.Succeeded, r.name)
		case r.cancelled:
			batch.Cancelled = append(batch.Cancelled, r.name)
		default:
			batch.Failed = append(batch.Failed, r.name)
		}
	}

	m.notifyBatch(ctx, batch)
	return batch, nil
}

// uploadOne runs a single file's upload to a terminal status.
func (m *Manager) uploadOne(ctx context.Context, f LocalFile, id string) fileResult {
	if m.maxFileSize > 0 && f.Size > m.maxFileSize {
		m.setStatus(id, StatusError, "")
		m.publish(events.EventUploadFailed, id, f.Name, f.Size, fmt.Errorf("file exceeds %d bytes", m.maxFileSize))
		return fileResult{name: f.Name}
	}

	content, err := f.Open()
	if err != nil {
		m.setStatus(id, StatusError, "")
		m.publish(events.EventUploadFailed, id, f.Name, f.Size, err)
		return fileResult{name: f.Name}
	}
	defer content.Close()

	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.cancels[id] = cancel
	m.mu.Unlock()

	m.publish(events.EventUploadStarted, id, f.Name, f.Size, nil)

	file, err := m.uploader.Upload(uploadCtx, f.Name, content)

	// Remove the handle before touching the status so a late Cancel is a
	// no-op once settlement has begun.
	m.mu.Lock()
	delete(m.cancels, id)
	m.mu.Unlock()

	if err != nil {
		if httpx.IsCancellation(err) {
			// Either Cancel set the status already, or the batch context was
			// cancelled and the entry is still uploading; both end cancelled.
			m.markCancelled(id)
			m.publish(events.EventUploadCancelled, id, f.Name, f.Size, nil)
			return fileResult{name: f.Name, cancelled: true}
		}
		m.setStatus(id, StatusError, "")
		m.publish(events.EventUploadFailed, id, f.Name, f.Size, err)
		m.logger.Error().Err(err).Str("file", f.Name).Msg("upload failed")
		return fileResult{name: f.Name}
	}

	m.setStatus(id, StatusSuccess, file.ID)
	m.publish(events.EventUploadCompleted, id, f.Name, f.Size, nil)
	return fileResult{name: f.Name, success: true}
}

// Cancel aborts the in-flight upload for the entry. With no registered
// handle (already finished or never started) it is a no-op and reports
// false.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.cancels, id)
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = StatusCancelled
			break
		}
	}
	m.mu.Unlock()

	cancel()
	return true
}

// Remove drops an entry from the session. A successfully uploaded entry
// with a backend id is deleted server-side first; the entry stays in place
// if that delete fails. When the last entry goes, the modal is resized back
// to its compact form.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	var entry *Entry
	for _, e := range m.entries {
		if e.ID == id {
			entry = e
			break
		}
	}
	m.mu.Unlock()

	if entry == nil {
		return ErrEntryNotFound
	}

	if entry.Status == StatusSuccess && entry.BackendFileID != "" {
		if err := m.uploader.Delete(ctx, entry.BackendFileID); err != nil {
			m.snackbar(ctx, fmt.Sprintf("Could not remove file %s", entry.Name))
			return err
		}
		m.snackbar(ctx, fmt.Sprintf("File %s has been removed", entry.Name))
	}

	m.mu.Lock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	empty := len(m.entries) == 0
	m.mu.Unlock()

	if empty {
		if err := m.commands.Resize(ctx, host.SizeCompact); err != nil {
			m.logger.Warn().Err(err).Msg("resize command failed")
		}
	}
	return nil
}

// notifyBatch emits the settled-batch summary: one success toast, one
// failure toast, nothing for cancellations.
func (m *Manager) notifyBatch(ctx context.Context, batch *BatchResult) {
	if n := len(batch.Succeeded); n > 0 {
		if n == 1 {
			m.snackbar(ctx, fmt.Sprintf("File %s has been uploaded", batch.Succeeded[0]))
		} else {
			m.snackbar(ctx, fmt.Sprintf("%d files have been uploaded successfully", n))
		}
	}
	if n := len(batch.Failed); n > 0 {
		if n == 1 {
			m.snackbar(ctx, fmt.Sprintf("Could not upload file %s", batch.Failed[0]))
		} else {
			m.snackbar(ctx, fmt.Sprintf("Could not upload %d file(s)", n))
		}
	}
}

// markCancelled moves a still-uploading entry to cancelled. Idempotent with
// a user-initiated Cancel, which already made the transition.
func (m *Manager) markCancelled(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			if e.Status == StatusUploading {
				e.Status = StatusCancelled
			}
			return
		}
	}
}

func (m *Manager) setStatus(id string, status Status, backendFileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = status
			if backendFileID != "" {
				e.BackendFileID = backendFileID
			}
			return
		}
	}
}

func (m *Manager) publish(t events.EventType, id, name string, size int64, err error) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.NewUploadEvent(t, id, name, size, err))
}

func (m *Manager) snackbar(ctx context.Context, message string) {
	if err := m.commands.ShowSnackbar(ctx, message); err != nil {
		m.logger.Warn().Err(err).Str("message", message).Msg("snackbar command failed")
	}
}
