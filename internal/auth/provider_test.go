package auth

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/onlyoffice/pipedrive-int/internal/httpx"
	"github.com/onlyoffice/pipedrive-int/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(io.Discard)
}

// TestRefreshStoresToken verifies a successful refresh makes the token
// available to readers.
func TestRefreshStoresToken(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	source := SourceFunc(func(ctx context.Context) (Token, error) {
		return Token{AccessToken: "tok-1", ExpiresAt: now.Add(time.Hour)}, nil
	})

	p := NewProvider(source, testLogger(), WithClock(func() time.Time { return now }))

	if _, err := p.AccessToken(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("AccessToken before refresh = %v, want ErrNotReady", err)
	}

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	token, err := p.AccessToken()
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if token != "tok-1" {
		t.Errorf("AccessToken() = %q, want %q", token, "tok-1")
	}
	if p.Status() != 200 {
		t.Errorf("Status() = %d, want 200", p.Status())
	}
}

// TestRefreshFailureLatchesProvider verifies one failed refresh is terminal:
// the token is cleared, the failing status is recorded, and readers get
// ErrLatched from then on.
func TestRefreshFailureLatchesProvider(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	calls := 0
	source := SourceFunc(func(ctx context.Context) (Token, error) {
		calls++
		if calls == 1 {
			return Token{AccessToken: "tok-1", ExpiresAt: now.Add(time.Hour)}, nil
		}
		return Token{}, &httpx.StatusError{StatusCode: 401}
	})

	p := NewProvider(source, testLogger(), WithClock(func() time.Time { return now }))

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	if err := p.Refresh(context.Background()); err == nil {
		t.Fatal("second Refresh() should fail")
	}

	if !p.Latched() {
		t.Error("Latched() = false after failed refresh")
	}
	if p.Status() != 401 {
		t.Errorf("Status() = %d, want 401", p.Status())
	}
	if _, err := p.AccessToken(); !errors.Is(err, ErrLatched) {
		t.Errorf("AccessToken() error = %v, want ErrLatched", err)
	}
}

// TestRefreshCancellationDoesNotLatch verifies a fetch aborted by context
// cancellation leaves the provider healthy for the next attempt.
func TestRefreshCancellationDoesNotLatch(t *testing.T) {
	source := SourceFunc(func(ctx context.Context) (Token, error) {
		return Token{}, ctx.Err()
	})
	p := NewProvider(source, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Refresh(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Refresh(cancelled ctx) = %v, want context.Canceled", err)
	}
	if p.Latched() {
		t.Error("cancellation must not latch the provider")
	}
}

// TestNeedsRefreshHonorsMargin verifies the margin rule: a token with more
// lifetime than the margin is kept, one inside the margin is refreshed.
func TestNeedsRefreshHonorsMargin(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	expiry := now.Add(60 * time.Second)
	source := SourceFunc(func(ctx context.Context) (Token, error) {
		return Token{AccessToken: "tok", ExpiresAt: expiry}, nil
	})

	p := NewProvider(source, testLogger(), WithClock(clock))
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	// 60s left against a 30s margin: keep.
	if p.needsRefresh() {
		t.Error("needsRefresh() = true with 60s remaining, want false")
	}
	if got := p.nextDelay(); got != 30*time.Second {
		t.Errorf("nextDelay() = %v, want 30s", got)
	}

	// Advance to 25s remaining: inside the margin, refresh is due.
	now = now.Add(35 * time.Second)
	if !p.needsRefresh() {
		t.Error("needsRefresh() = false with 25s remaining, want true")
	}

	// Inside the margin the delay clamps to the floor instead of going
	// negative.
	if got := p.nextDelay(); got != minDelay {
		t.Errorf("nextDelay() = %v, want floor %v", got, minDelay)
	}
}

// TestRunStopsAfterLatch verifies the background loop halts once a refresh
// failure latches the provider instead of hammering the failing endpoint.
func TestRunStopsAfterLatch(t *testing.T) {
	calls := 0
	source := SourceFunc(func(ctx context.Context) (Token, error) {
		calls++
		return Token{}, &httpx.StatusError{StatusCode: 440}
	})

	p := NewProvider(source, testLogger(), WithRetickFloor(time.Millisecond))

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after latch")
	}

	if calls != 1 {
		t.Errorf("source called %d times, want 1 (latch is terminal)", calls)
	}
	if p.Status() != 440 {
		t.Errorf("Status() = %d, want 440", p.Status())
	}
}

// TestResetClearsLatch verifies Reset is the explicit opt-in that makes a
// latched provider usable again.
func TestResetClearsLatch(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	fail := true
	source := SourceFunc(func(ctx context.Context) (Token, error) {
		if fail {
			return Token{}, &httpx.StatusError{StatusCode: 500}
		}
		return Token{AccessToken: "tok-2", ExpiresAt: now.Add(time.Hour)}, nil
	})

	p := NewProvider(source, testLogger(), WithClock(func() time.Time { return now }))

	if err := p.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() should fail")
	}
	if !p.Latched() {
		t.Fatal("provider should be latched")
	}

	p.Reset()
	fail = false

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() after Reset error = %v", err)
	}
	token, err := p.AccessToken()
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if token != "tok-2" {
		t.Errorf("AccessToken() = %q, want %q", token, "tok-2")
	}
}
