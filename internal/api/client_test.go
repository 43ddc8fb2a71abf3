package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onlyoffice/pipedrive-int/internal/config"
	"github.com/onlyoffice/pipedrive-int/internal/host"
	"github.com/onlyoffice/pipedrive-int/internal/httpx"
	"github.com/onlyoffice/pipedrive-int/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(io.Discard)
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.GatewayURL = baseURL
	cfg.CRMURL = baseURL
	return cfg
}

func newTestClient(t *testing.T, handler nethttp.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(testConfig(server.URL), testLogger())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, server
}

// TestNewClientRequiresEndpoints verifies NewClient refuses a config without
// gateway or CRM URLs instead of producing a client that fails every call.
func TestNewClientRequiresEndpoints(t *testing.T) {
	cfg := config.Default()
	if _, err := NewClient(cfg, testLogger()); !errors.Is(err, config.ErrMissingGatewayURL) {
		t.Errorf("NewClient(no gateway) = %v, want ErrMissingGatewayURL", err)
	}

	cfg.GatewayURL = "https://gateway.example.com"
	if _, err := NewClient(cfg, testLogger()); !errors.Is(err, config.ErrMissingCRMURL) {
		t.Errorf("NewClient(no CRM) = %v, want ErrMissingCRMURL", err)
	}
}

// TestGetMeSendsAppContextHeader verifies /api/me is authenticated with the
// app-context header, not a bearer token.
func TestGetMeSendsAppContextHeader(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path != "/api/me" {
			t.Errorf("path = %s, want /api/me", r.URL.Path)
		}
		if got := r.Header.Get("X-Pipedrive-App-Context"); got != "ctx-token" {
			t.Errorf("app-context header = %q, want ctx-token", got)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		io.WriteString(w, `{"response":{"access_token":"crm-token","expires_at":1767225600000}}`)
	}))

	me, err := client.GetMe(context.Background(), "ctx-token")
	if err != nil {
		t.Fatalf("GetMe() error = %v", err)
	}
	if me.Response.AccessToken != "crm-token" {
		t.Errorf("access token = %q", me.Response.AccessToken)
	}
	if me.Response.ExpiresAt != 1767225600000 {
		t.Errorf("expires_at = %d", me.Response.ExpiresAt)
	}
}

// TestListFilesParsesPaginationEnvelope verifies the list call sends the
// cursor and page size and decodes the CRM pagination envelope.
func TestListFilesParsesPaginationEnvelope(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path != "/api/v1/deals/42/files" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Errorf("limit = %q, want 10", got)
		}
		if got := r.URL.Query().Get("start"); got != "10" {
			t.Errorf("start = %q, want 10", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer crm-token" {
			t.Errorf("Authorization = %q", got)
		}
		io.WriteString(w, `{
			"success": true,
			"response": [
				{"id": "981", "name": "quote.docx", "update_time": "2026-08-01 10:00:00", "deal_id": "42"}
			],
			"pagination": {"more_items_in_collection": true, "next_start": 20}
		}`)
	}))

	page, err := client.ListFiles(context.Background(), "crm-token", "42", "10", 10)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(page.Response) != 1 || page.Response[0].Name != "quote.docx" {
		t.Errorf("files = %+v", page.Response)
	}
	if got := page.Cursor(); got != "20" {
		t.Errorf("Cursor() = %q, want 20", got)
	}
}

// TestListFilesCursorEmptyAtEnd verifies the cursor is empty once the server
// reports no more items, even if next_start is still present.
func TestListFilesCursorEmptyAtEnd(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		io.WriteString(w, `{
			"success": true,
			"response": [],
			"pagination": {"more_items_in_collection": false, "next_start": 30}
		}`)
	}))

	page, err := client.ListFiles(context.Background(), "tok", "42", "", 10)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if got := page.Cursor(); got != "" {
		t.Errorf("Cursor() = %q, want empty at end of collection", got)
	}
}

// TestUploadFileSendsMultipart verifies the upload body is multipart with the
// deal id field and the file part.
func TestUploadFileSendsMultipart(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("not multipart: %v", err)
		}
		if got := r.FormValue("deal_id"); got != "42" {
			t.Errorf("deal_id = %q, want 42", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer file.Close()
		if header.Filename != "quote.docx" {
			t.Errorf("filename = %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "document body" {
			t.Errorf("file content = %q", data)
		}
		io.WriteString(w, `{"success": true, "data": {"id": "981", "name": "quote.docx"}}`)
	}))

	file, err := client.UploadFile(context.Background(), "tok", "42", "quote.docx", strings.NewReader("document body"))
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if file.ID != "981" {
		t.Errorf("file id = %q, want 981", file.ID)
	}
}

// TestUploadFileRejectsOversize verifies the size ceiling is enforced before
// any request goes out.
func TestUploadFileRejectsOversize(t *testing.T) {
	requests := 0
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		requests++
	}))

	huge := bytes.NewReader(make([]byte, MaxUploadSize+1))
	if _, err := client.UploadFile(context.Background(), "tok", "42", "huge.bin", huge); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("UploadFile(oversize) = %v, want ErrFileTooLarge", err)
	}
	if requests != 0 {
		t.Errorf("server saw %d requests, want 0", requests)
	}
}

// TestUploadFileCancellationIsBare verifies a user-cancelled upload surfaces
// as plain context.Canceled so the session manager can tell it from a
// failure.
func TestUploadFileCancellationIsBare(t *testing.T) {
	started := make(chan struct{})
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		// Drain the body so the server can notice the client going away;
		// close detection is deferred until the request body hits EOF.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := client.UploadFile(ctx, "tok", "42", "slow.docx", strings.NewReader("body"))
	if err != context.Canceled {
		t.Fatalf("UploadFile(cancelled) = %v, want bare context.Canceled", err)
	}
}

// TestDoJSONSurfacesStatusError verifies non-2xx answers come back as a
// StatusError carrying the code, visible through wrapping.
func TestDoJSONSurfacesStatusError(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.Error(w, "no such deal", nethttp.StatusNotFound)
	}))

	_, err := client.ListFiles(context.Background(), "tok", "404", "", 10)
	if err == nil {
		t.Fatal("ListFiles() should fail")
	}
	if got := httpx.StatusOf(err); got != nethttp.StatusNotFound {
		t.Errorf("StatusOf(err) = %d, want 404", got)
	}
}

// TestDownloadURLStopsAtRedirect verifies the signed link is read from the
// redirect Location instead of following it into object storage.
func TestDownloadURLStopsAtRedirect(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Location", "https://storage.example.com/signed/981")
		w.WriteHeader(nethttp.StatusFound)
	}))

	link, err := client.DownloadURL(context.Background(), "tok", "981")
	if err != nil {
		t.Fatalf("DownloadURL() error = %v", err)
	}
	if link != "https://storage.example.com/signed/981" {
		t.Errorf("link = %q", link)
	}
}

// TestDownloadURLParsesJSONAnswer verifies the JSON fallback for gateways
// that answer 200 instead of redirecting.
func TestDownloadURLParsesJSONAnswer(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		io.WriteString(w, `{"url": "https://storage.example.com/json/981"}`)
	}))

	link, err := client.DownloadURL(context.Background(), "tok", "981")
	if err != nil {
		t.Fatalf("DownloadURL() error = %v", err)
	}
	if link != "https://storage.example.com/json/981" {
		t.Errorf("link = %q", link)
	}
}

// TestTokenSourceTradesSignedTokenForAccessToken verifies the auth source
// chains the host's signed token into /api/me and converts the millisecond
// expiry.
func TestTokenSourceTradesSignedTokenForAccessToken(t *testing.T) {
	client, _ := newTestClient(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if got := r.Header.Get("X-Pipedrive-App-Context"); got != "signed-jwt" {
			t.Errorf("app-context header = %q, want signed-jwt", got)
		}
		io.WriteString(w, `{"response":{"access_token":"crm-token","expires_at":1767225600000}}`)
	}))

	source := client.TokenSource(host.NewRecorder("signed-jwt"))
	token, err := source.FetchToken(context.Background())
	if err != nil {
		t.Fatalf("FetchToken() error = %v", err)
	}
	if token.AccessToken != "crm-token" {
		t.Errorf("access token = %q", token.AccessToken)
	}
	want := time.UnixMilli(1767225600000)
	if !token.ExpiresAt.Equal(want) {
		t.Errorf("expires at = %v, want %v", token.ExpiresAt, want)
	}
}
