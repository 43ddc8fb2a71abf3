// Package actions serializes the per-file menu operations: open in editor,
// download, rename and delete.
package actions

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/onlyoffice/pipedrive-int/internal/config"
	"github.com/onlyoffice/pipedrive-int/internal/fileutil"
	"github.com/onlyoffice/pipedrive-int/internal/host"
	"github.com/onlyoffice/pipedrive-int/internal/logging"
	"github.com/onlyoffice/pipedrive-int/internal/models"
)

// DefaultReleaseAfter is how long the editor-open latch stays held before a
// timed release lets the same file be acted on again.
const DefaultReleaseAfter = 10 * time.Second

var (
	// ErrBusy means another action already holds the file's latch.
	ErrBusy = errors.New("actions: file action already in progress")

	// ErrUnsupportedFormat means the file cannot be opened in the editor.
	ErrUnsupportedFormat = errors.New("actions: file format is not supported")
)

// Backend is the API surface the dispatcher calls into.
type Backend interface {
	DeleteFile(ctx context.Context, accessToken, fileID string) error
	RenameFile(ctx context.Context, accessToken, fileID, name string) (*models.File, error)
	DownloadURL(ctx context.Context, accessToken, fileID string) (string, error)
}

// Tokens yields the current CRM access token. Satisfied by auth.Provider.
type Tokens interface {
	AccessToken() (string, error)
}

// Navigator moves the frontend to an in-app route such as the editor page.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(ctx context.Context, target string) error

func (f NavigatorFunc) Navigate(ctx context.Context, target string) error { return f(ctx, target) }

// Opener opens an external URL, typically a signed download link.
type Opener interface {
	OpenURL(ctx context.Context, target string) error
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, target string) error

func (f OpenerFunc) OpenURL(ctx context.Context, target string) error { return f(ctx, target) }

// Dispatcher runs file actions with a single-flight latch per file id: while
// one action is in flight for a file, further actions on that file are
// no-ops. Opening the editor holds the latch past the navigation and
// releases it on a timer, absorbing double-clicks.
type Dispatcher struct {
	backend      Backend
	tokens       Tokens
	commands     host.Commands
	navigator    Navigator
	opener       Opener
	cfg          *config.Config
	logger       *logging.Logger
	releaseAfter time.Duration

	mu   sync.Mutex
	busy map[string]bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithReleaseAfter overrides the timed latch release for editor opens.
func WithReleaseAfter(d time.Duration) Option {
	return func(p *Dispatcher) {
		if d > 0 {
			p.releaseAfter = d
		}
	}
}

// New creates a Dispatcher.
func New(backend Backend, tokens Tokens, commands host.Commands, navigator Navigator, opener Opener, cfg *config.Config, logger *logging.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backend:      backend,
		tokens:       tokens,
		commands:     commands,
		navigator:    navigator,
		opener:       opener,
		cfg:          cfg,
		logger:       logger,
		releaseAfter: DefaultReleaseAfter,
		busy:         make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Busy reports whether an action currently holds the file's latch.
func (d *Dispatcher) Busy(fileID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy[fileID]
}

// acquire takes the file's latch, reporting false when already held.
func (d *Dispatcher) acquire(fileID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy[fileID] {
		return false
	}
	d.busy[fileID] = true
	return true
}

func (d *Dispatcher) release(fileID string) {
	d.mu.Lock()
	delete(d.busy, fileID)
	d.mu.Unlock()
}

// OpenInEditor navigates to the editor page for the file. The latch stays
// held after a successful navigation and is released on a timer, so repeat
// clicks while the editor spins up do nothing.
func (d *Dispatcher) OpenInEditor(ctx context.Context, file models.File) error {
	if !fileutil.IsSupported(file.Name) {
		d.snackbar(ctx, fmt.Sprintf("File %s cannot be opened in the editor", file.Name))
		return ErrUnsupportedFormat
	}
	if !d.acquire(file.ID) {
		return ErrBusy
	}

	token, err := d.commands.SignedToken(ctx)
	if err != nil {
		d.release(file.ID)
		d.snackbar(ctx, "Could not open the editor")
		return fmt.Errorf("failed to get signed token: %w", err)
	}

	query := url.Values{}
	query.Set("token", token)
	query.Set("deal_id", file.DealID)
	query.Set("id", file.ID)
	query.Set("name", fileutil.TruncateName(file.Name))
	query.Set("key", fileutil.DocumentKey(file.ID, file.UpdateTime))
	query.Set("lng", d.cfg.Language)
	query.Set("dark", strconv.FormatBool(d.cfg.Dark))

	if err := d.navigator.Navigate(ctx, "/editor?"+query.Encode()); err != nil {
		d.release(file.ID)
		d.snackbar(ctx, "Could not open the editor")
		return fmt.Errorf("failed to open editor: %w", err)
	}

	time.AfterFunc(d.releaseAfter, func() { d.release(file.ID) })
	return nil
}

// Delete removes the file from the deal. On success the latch is kept so no
// further action targets an entry that is about to disappear from the list;
// on failure the latch is released and the file stays actionable.
func (d *Dispatcher) Delete(ctx context.Context, file models.File) error {
	if !d.acquire(file.ID) {
		return ErrBusy
	}

	token, err := d.tokens.AccessToken()
	if err != nil {
		d.release(file.ID)
		d.snackbar(ctx, fmt.Sprintf("Could not delete file %s", file.Name))
		return err
	}

	if err := d.backend.DeleteFile(ctx, token, file.ID); err != nil {
		d.release(file.ID)
		d.snackbar(ctx, fmt.Sprintf("Could not delete file %s", file.Name))
		return err
	}

	d.snackbar(ctx, fmt.Sprintf("File %s has been deleted", file.Name))
	return nil
}

// Download resolves the file's signed download link and hands it to the
// opener. The latch is released when the action settles either way.
func (d *Dispatcher) Download(ctx context.Context, file models.File) error {
	if !d.acquire(file.ID) {
		return ErrBusy
	}
	defer d.release(file.ID)

	token, err := d.tokens.AccessToken()
	if err != nil {
		d.snackbar(ctx, fmt.Sprintf("Could not download file %s", file.Name))
		return err
	}

	link, err := d.backend.DownloadURL(ctx, token, file.ID)
	if err != nil {
		d.snackbar(ctx, fmt.Sprintf("Could not download file %s", file.Name))
		return err
	}

	if err := d.opener.OpenURL(ctx, link); err != nil {
		d.snackbar(ctx, fmt.Sprintf("Could not download file %s", file.Name))
		return err
	}
	return nil
}

// Rename updates the file's display name, preserving its extension. The new
// base name must be non-empty and within the length limit.
func (d *Dispatcher) Rename(ctx context.Context, file models.File, newBase string) (*models.File, error) {
	if err := fileutil.ValidateName(newBase); err != nil {
		return nil, err
	}
	if !d.acquire(file.ID) {
		return nil, ErrBusy
	}
	defer d.release(file.ID)

	newName := newBase
	if ext := fileutil.Ext(file.Name); ext != "" {
		newName = newBase + "." + ext
	}

	token, err := d.tokens.AccessToken()
	if err != nil {
		d.snackbar(ctx, fmt.Sprintf("Could not rename file %s", file.Name))
		return nil, err
	}

	renamed, err := d.backend.RenameFile(ctx, token, file.ID, newName)
	if err != nil {
		d.snackbar(ctx, fmt.Sprintf("Could not rename file %s", file.Name))
		return nil, err
	}
	return renamed, nil
}

func (d *Dispatcher) snackbar(ctx context.Context, message string) {
	if err := d.commands.ShowSnackbar(ctx, message); err != nil {
		d.logger.Warn().Err(err).Str("message", message).Msg("snackbar command failed")
	}
}
