// Package editor drives the document editor page: config resolution, the
// loading/error/ready lifecycle and editor event handling.
package editor

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/onlyoffice/pipedrive-int/internal/fileutil"
	"github.com/onlyoffice/pipedrive-int/internal/host"
	"github.com/onlyoffice/pipedrive-int/internal/logging"
	"github.com/onlyoffice/pipedrive-int/internal/models"
)

// State is the editor page lifecycle state.
type State string

const (
	// StateLoading covers config resolution and editor spin-up. The page
	// shows a spinner until the editor reports in.
	StateLoading State = "loading"

	// StateError is terminal. Config resolution failed and the page shows
	// the error banner; there is no retry.
	StateError State = "error"

	// StateReady means the editor surface is visible.
	StateReady State = "ready"
)

// Editor widget events that end the loading state or close the page.
const (
	EventDocumentReady = "onDocumentReady"
	EventError         = "onError"
	EventWarning       = "onWarning"
	EventRequestClose  = "onRequestClose"
)

// ErrConfigFailed is the terminal bootstrap failure.
var ErrConfigFailed = errors.New("editor: could not resolve editor configuration")

// ConfigSource resolves the editor widget configuration.
type ConfigSource interface {
	BuildEditorConfig(ctx context.Context, req models.EditorConfigRequest) (*models.EditorConfig, error)
}

// Request carries everything the editor page needs, usually parsed from the
// page URL the action dispatcher built.
type Request struct {
	Token  string
	FileID string
	Name   string
	DealID string
	Key    string
	Lang   string
	Dark   bool
}

// ParseRequest reads a Request from editor page query parameters, applying
// the same defaults the page applies for missing values.
func ParseRequest(values url.Values) Request {
	req := Request{
		Token:  values.Get("token"),
		FileID: values.Get("id"),
		Name:   values.Get("name"),
		DealID: values.Get("deal_id"),
		Key:    values.Get("key"),
		Lang:   values.Get("lng"),
		Dark:   values.Get("dark") == "true",
	}
	if req.Name == "" {
		req.Name = "new.docx"
	}
	if req.DealID == "" {
		req.DealID = "1"
	}
	if req.Key == "" {
		req.Key = fileutil.DocumentKey(req.FileID, "")
	}
	return req
}

// Bootstrap owns one editor page's lifecycle.
type Bootstrap struct {
	source   ConfigSource
	commands host.Commands
	logger   *logging.Logger
	onClose  func()

	mu     sync.RWMutex
	state  State
	err    error
	config *models.EditorConfig
}

// Option configures a Bootstrap.
type Option func(*Bootstrap)

// WithOnClose registers a callback run when the editor asks to close, before
// the host modal is closed.
func WithOnClose(fn func()) Option {
	return func(b *Bootstrap) { b.onClose = fn }
}

// New creates an editor Bootstrap in the loading state.
func New(source ConfigSource, commands host.Commands, logger *logging.Logger, opts ...Option) *Bootstrap {
	b := &Bootstrap{
		source:   source,
		commands: commands,
		logger:   logger,
		state:    StateLoading,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current lifecycle state.
func (b *Bootstrap) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Err returns the terminal bootstrap error, nil unless State is StateError.
func (b *Bootstrap) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// Config returns the resolved editor configuration, nil while loading or
// after a failure.
func (b *Bootstrap) Config() *models.EditorConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config
}

// Load resolves the editor configuration for the request. A failure is
// terminal: the page flips to the error state and stays there.
func (b *Bootstrap) Load(ctx context.Context, req Request) (*models.EditorConfig, error) {
	cfg, err := b.source.BuildEditorConfig(ctx, models.EditorConfigRequest{
		Token:  req.Token,
		FileID: req.FileID,
		Name:   fileutil.TruncateName(req.Name),
		Key:    req.Key,
		DealID: req.DealID,
		Lang:   req.Lang,
		Dark:   req.Dark,
	})
	if err != nil {
		b.logger.Error().Err(err).Str("file", req.Name).Msg("editor config resolution failed")
		b.mu.Lock()
		b.state = StateError
		b.err = ErrConfigFailed
		b.mu.Unlock()
		return nil, ErrConfigFailed
	}

	b.mu.Lock()
	b.config = cfg
	b.mu.Unlock()
	return cfg, nil
}

// HandleEvent processes an event from the editor widget. Ready, error and
// warning events all reveal the editor surface; letting the widget render
// its own error dialog beats hiding it behind the spinner. A close request
// runs the close callback and closes the host modal.
func (b *Bootstrap) HandleEvent(ctx context.Context, name string) {
	switch name {
	case EventDocumentReady, EventError, EventWarning:
		b.mu.Lock()
		if b.state == StateLoading {
			b.state = StateReady
		}
		b.mu.Unlock()
	case EventRequestClose:
		if b.onClose != nil {
			b.onClose()
		}
		if err := b.commands.CloseModal(ctx); err != nil {
			b.logger.Warn().Err(err).Msg("close modal command failed")
		}
	default:
		b.logger.Debug().Str("event", name).Msg("ignoring editor event")
	}
}
