package actions

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onlyoffice/pipedrive-int/internal/config"
	"github.com/onlyoffice/pipedrive-int/internal/fileutil"
	"github.com/onlyoffice/pipedrive-int/internal/host"
	"github.com/onlyoffice/pipedrive-int/internal/logging"
	"github.com/onlyoffice/pipedrive-int/internal/models"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(io.Discard)
}

// fakeBackend scripts the API surface the dispatcher calls.
type fakeBackend struct {
	mu          sync.Mutex
	deleteErr   error
	renameErr   error
	downloadErr error
	deleted     []string
	renamed     map[string]string
	downloadURL string
}

func (b *fakeBackend) DeleteFile(ctx context.Context, accessToken, fileID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.deleted = append(b.deleted, fileID)
	return nil
}

func (b *fakeBackend) RenameFile(ctx context.Context, accessToken, fileID, name string) (*models.File, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.renameErr != nil {
		return nil, b.renameErr
	}
	if b.renamed == nil {
		b.renamed = make(map[string]string)
	}
	b.renamed[fileID] = name
	return &models.File{ID: fileID, Name: name}, nil
}

func (b *fakeBackend) DownloadURL(ctx context.Context, accessToken, fileID string) (string, error) {
	if b.downloadErr != nil {
		return "", b.downloadErr
	}
	return b.downloadURL, nil
}

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) AccessToken() (string, error) { return s.token, s.err }

// navRecorder records navigation targets.
type navRecorder struct {
	mu      sync.Mutex
	targets []string
	err     error
}

func (n *navRecorder) Navigate(ctx context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.targets = append(n.targets, target)
	return nil
}

func (n *navRecorder) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.targets) == 0 {
		return ""
	}
	return n.targets[len(n.targets)-1]
}

type openRecorder struct {
	mu      sync.Mutex
	targets []string
	err     error
}

func (o *openRecorder) OpenURL(ctx context.Context, target string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.targets = append(o.targets, target)
	return nil
}

func testDispatcher(backend *fakeBackend, nav *navRecorder, open *openRecorder, recorder *host.Recorder, opts ...Option) *Dispatcher {
	cfg := config.Default()
	cfg.Language = "de-DE"
	cfg.Dark = true
	return New(backend, staticTokens{token: "access"}, recorder, nav, open, cfg, testLogger(), opts...)
}

var testFile = models.File{
	ID:         "981",
	Name:       "quote.docx",
	UpdateTime: "2026-08-01 10:00:00",
	DealID:     "42",
}

// TestOpenInEditorBuildsTarget verifies the editor URL carries the signed
// token, the derived document key and the connector's locale and theme.
func TestOpenInEditorBuildsTarget(t *testing.T) {
	nav := &navRecorder{}
	d := testDispatcher(&fakeBackend{}, nav, &openRecorder{}, host.NewRecorder("signed-jwt"))

	if err := d.OpenInEditor(context.Background(), testFile); err != nil {
		t.Fatalf("OpenInEditor() error = %v", err)
	}

	target := nav.last()
	if !strings.HasPrefix(target, "/editor?") {
		t.Fatalf("target = %q, want /editor?...", target)
	}

	parsed, err := url.Parse(target)
	if err != nil {
		t.Fatalf("bad target URL: %v", err)
	}
	query := parsed.Query()

	if got := query.Get("token"); got != "signed-jwt" {
		t.Errorf("token = %q, want signed-jwt", got)
	}
	if got := query.Get("id"); got != "981" {
		t.Errorf("id = %q, want 981", got)
	}
	if got := query.Get("deal_id"); got != "42" {
		t.Errorf("deal_id = %q, want 42", got)
	}
	wantKey := fileutil.DocumentKey("981", "2026-08-01 10:00:00")
	if got := query.Get("key"); got != wantKey {
		t.Errorf("key = %q, want %q", got, wantKey)
	}
	if got := query.Get("lng"); got != "de-DE" {
		t.Errorf("lng = %q, want de-DE", got)
	}
	if got := query.Get("dark"); got != "true" {
		t.Errorf("dark = %q, want true", got)
	}
}

// TestOpenInEditorTruncatesLongNames verifies the name parameter is cut to
// the length limit while keeping the extension.
func TestOpenInEditorTruncatesLongNames(t *testing.T) {
	nav := &navRecorder{}
	d := testDispatcher(&fakeBackend{}, nav, &openRecorder{}, host.NewRecorder("tok"))

	long := testFile
	long.Name = strings.Repeat("a", 300) + ".docx"

	if err := d.OpenInEditor(context.Background(), long); err != nil {
		t.Fatalf("OpenInEditor() error = %v", err)
	}

	parsed, _ := url.Parse(nav.last())
	name := parsed.Query().Get("name")
	if len([]rune(name)) != fileutil.MaxNameLength+len(".docx") {
		t.Errorf("name length = %d, want %d", len([]rune(name)), fileutil.MaxNameLength+len(".docx"))
	}
	if !strings.HasSuffix(name, ".docx") {
		t.Errorf("name lost its extension: %q", name)
	}
}

// TestOpenInEditorRejectsUnsupportedFormat verifies unsupported formats are
// refused before any token or navigation work.
func TestOpenInEditorRejectsUnsupportedFormat(t *testing.T) {
	nav := &navRecorder{}
	recorder := host.NewRecorder("tok")
	d := testDispatcher(&fakeBackend{}, nav, &openRecorder{}, recorder)

	zip := testFile
	zip.Name = "archive.zip"

	if err := d.OpenInEditor(context.Background(), zip); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("OpenInEditor(zip) = %v, want ErrUnsupportedFormat", err)
	}
	if nav.last() != "" {
		t.Error("unsupported file must not navigate")
	}
	if d.Busy(zip.ID) {
		t.Error("unsupported file must not hold the latch")
	}
}

// TestOpenInEditorLatchAbsorbsRepeatClicks verifies the latch stays held
// after a successful open and releases on the timer.
func TestOpenInEditorLatchAbsorbsRepeatClicks(t *testing.T) {
	nav := &navRecorder{}
	d := testDispatcher(&fakeBackend{}, nav, &openRecorder{}, host.NewRecorder("tok"),
		WithReleaseAfter(30*time.Millisecond))

	if err := d.OpenInEditor(context.Background(), testFile); err != nil {
		t.Fatalf("first OpenInEditor() error = %v", err)
	}
	if err := d.OpenInEditor(context.Background(), testFile); !errors.Is(err, ErrBusy) {
		t.Fatalf("second OpenInEditor() = %v, want ErrBusy", err)
	}

	// After the timed release the file is actionable again.
	deadline := time.After(2 * time.Second)
	for d.Busy(testFile.ID) {
		select {
		case <-deadline:
			t.Fatal("latch never released")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if err := d.OpenInEditor(context.Background(), testFile); err != nil {
		t.Fatalf("OpenInEditor() after release error = %v", err)
	}
}

// TestOpenInEditorNavigationFailureReleasesLatch verifies a failed
// navigation releases the latch immediately instead of waiting for the
// timer.
func TestOpenInEditorNavigationFailureReleasesLatch(t *testing.T) {
	nav := &navRecorder{err: errors.New("window gone")}
	recorder := host.NewRecorder("tok")
	d := testDispatcher(&fakeBackend{}, nav, &openRecorder{}, recorder,
		WithReleaseAfter(time.Hour))

	if err := d.OpenInEditor(context.Background(), testFile); err == nil {
		t.Fatal("OpenInEditor() should fail")
	}
	if d.Busy(testFile.ID) {
		t.Error("failed navigation must release the latch")
	}

	messages := recorder.SnackbarMessages()
	if len(messages) != 1 || !strings.Contains(messages[0], "Could not open") {
		t.Errorf("snackbars = %v, want one open failure", messages)
	}
}

// TestDeleteKeepsLatchOnSuccess verifies a deleted file stays latched (the
// entry is about to vanish from the list) while a failed delete frees it.
func TestDeleteKeepsLatchOnSuccess(t *testing.T) {
	backend := &fakeBackend{}
	recorder := host.NewRecorder("tok")
	d := testDispatcher(backend, &navRecorder{}, &openRecorder{}, recorder)

	if err := d.Delete(context.Background(), testFile); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !d.Busy(testFile.ID) {
		t.Error("successful delete must keep the latch held")
	}
	if len(backend.deleted) != 1 || backend.deleted[0] != "981" {
		t.Errorf("deleted = %v, want [981]", backend.deleted)
	}

	messages := recorder.SnackbarMessages()
	if len(messages) != 1 || !strings.Contains(messages[0], "has been deleted") {
		t.Errorf("snackbars = %v, want one delete confirmation", messages)
	}
}

// TestDeleteFailureReleasesLatch verifies the file stays actionable after a
// failed delete.
func TestDeleteFailureReleasesLatch(t *testing.T) {
	backend := &fakeBackend{deleteErr: errors.New("forbidden")}
	recorder := host.NewRecorder("tok")
	d := testDispatcher(backend, &navRecorder{}, &openRecorder{}, recorder)

	if err := d.Delete(context.Background(), testFile); err == nil {
		t.Fatal("Delete() should fail")
	}
	if d.Busy(testFile.ID) {
		t.Error("failed delete must release the latch")
	}

	messages := recorder.SnackbarMessages()
	if len(messages) != 1 || !strings.Contains(messages[0], "Could not delete") {
		t.Errorf("snackbars = %v, want one delete failure", messages)
	}
}

// TestDownloadOpensSignedLink verifies the resolved link reaches the opener
// and the latch frees once the action settles.
func TestDownloadOpensSignedLink(t *testing.T) {
	backend := &fakeBackend{downloadURL: "https://files.example.com/signed/981"}
	open := &openRecorder{}
	d := testDispatcher(backend, &navRecorder{}, open, host.NewRecorder("tok"))

	if err := d.Download(context.Background(), testFile); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if len(open.targets) != 1 || open.targets[0] != "https://files.example.com/signed/981" {
		t.Errorf("opened = %v", open.targets)
	}
	if d.Busy(testFile.ID) {
		t.Error("download must release the latch when done")
	}
}

// TestRenamePreservesExtension verifies the new base name is combined with
// the file's original extension and validated first.
func TestRenamePreservesExtension(t *testing.T) {
	backend := &fakeBackend{}
	d := testDispatcher(backend, &navRecorder{}, &openRecorder{}, host.NewRecorder("tok"))

	renamed, err := d.Rename(context.Background(), testFile, "final quote")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if renamed.Name != "final quote.docx" {
		t.Errorf("renamed to %q, want %q", renamed.Name, "final quote.docx")
	}
	if got := backend.renamed["981"]; got != "final quote.docx" {
		t.Errorf("backend saw %q, want %q", got, "final quote.docx")
	}

	// Empty base names are rejected before any request.
	if _, err := d.Rename(context.Background(), testFile, "   "); !errors.Is(err, fileutil.ErrEmptyName) {
		t.Errorf("Rename(blank) = %v, want ErrEmptyName", err)
	}
}

// TestConcurrentActionsOnSameFileSingleFlight verifies only one of many
// simultaneous actions on the same file gets through the latch.
func TestConcurrentActionsOnSameFileSingleFlight(t *testing.T) {
	backend := &fakeBackend{downloadURL: "https://files.example.com/x"}
	open := &openRecorder{}
	d := testDispatcher(backend, &navRecorder{}, open, host.NewRecorder("tok"),
		WithReleaseAfter(time.Hour))

	// OpenInEditor holds the latch; downloads and deletes must bounce.
	if err := d.OpenInEditor(context.Background(), testFile); err != nil {
		t.Fatalf("OpenInEditor() error = %v", err)
	}
	if err := d.Download(context.Background(), testFile); !errors.Is(err, ErrBusy) {
		t.Errorf("Download() while latched = %v, want ErrBusy", err)
	}
	if err := d.Delete(context.Background(), testFile); !errors.Is(err, ErrBusy) {
		t.Errorf("Delete() while latched = %v, want ErrBusy", err)
	}

	// A different file is unaffected.
	other := testFile
	other.ID = "982"
	if err := d.Download(context.Background(), other); err != nil {
		t.Errorf("Download(other) error = %v", err)
	}
}
