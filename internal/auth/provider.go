// Package auth owns the CRM access token: a cached value kept fresh by a
// margin-driven background refresh loop.
package auth

import (
	"context"
	"errors"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/onlyoffice/pipedrive-int/internal/httpx"
	"github.com/onlyoffice/pipedrive-int/internal/logging"
)

// Token is a bearer token with its expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Remaining returns the token lifetime left at now.
func (t Token) Remaining(now time.Time) time.Duration {
	return t.ExpiresAt.Sub(now)
}

// Source fetches a fresh token. The gateway's /api/me endpoint is the
// production source.
type Source interface {
	FetchToken(ctx context.Context) (Token, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (Token, error)

func (f SourceFunc) FetchToken(ctx context.Context) (Token, error) { return f(ctx) }

var (
	// ErrNotReady is returned before the first successful refresh.
	ErrNotReady = errors.New("auth: token not fetched yet")

	// ErrLatched is returned once a refresh failure has latched the
	// provider. Terminal for this provider instance unless Reset is called.
	ErrLatched = errors.New("auth: token refresh failed, session requires restart")
)

// DefaultMargin is the safety margin: a refresh is triggered once remaining
// token lifetime drops below it.
const DefaultMargin = 30 * time.Second

// minDelay keeps the loop from busy-spinning when a token is already inside
// the margin.
const minDelay = time.Second

// Provider caches the CRM access token and refreshes it proactively before
// expiry. The refresh loop is the sole writer; every authenticated request
// path only reads. A single refresh failure latches the provider into a
// permanent error state carrying the failing HTTP status.
type Provider struct {
	source Source
	logger *logging.Logger
	margin time.Duration
	floor  time.Duration
	now    func() time.Time

	mu      sync.Mutex
	token   Token
	fetched bool
	latched bool
	status  int
}

// Option configures a Provider.
type Option func(*Provider)

// WithMargin overrides the refresh safety margin.
func WithMargin(margin time.Duration) Option {
	return func(p *Provider) { p.margin = margin }
}

// WithRetickFloor overrides the minimum delay between ticks. Tests shrink it.
func WithRetickFloor(floor time.Duration) Option {
	return func(p *Provider) { p.floor = floor }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// NewProvider creates a Provider. Call Run to start the refresh loop.
func NewProvider(source Source, logger *logging.Logger, opts ...Option) *Provider {
	p := &Provider{
		source: source,
		logger: logger,
		margin: DefaultMargin,
		floor:  minDelay,
		now:    time.Now,
		status: nethttp.StatusOK,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drives the self-rescheduling refresh loop until ctx is cancelled or a
// refresh failure latches the provider. The first tick fires immediately.
// Owned by the application root; tear down via ctx on shutdown.
func (p *Provider) Run(ctx context.Context) {
	delay := time.Duration(0)
	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if p.Latched() {
			return
		}

		if p.needsRefresh() {
			if err := p.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				// Latched: no further automatic attempts.
				return
			}
		}

		delay = p.nextDelay()
	}
}

// Refresh performs one synchronous fetch attempt. On failure it records the
// failing status (non-HTTP failures map to 500) and latches the provider.
func (p *Provider) Refresh(ctx context.Context) error {
	token, err := p.source.FetchToken(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		status := httpx.StatusOf(err)
		p.mu.Lock()
		p.latched = true
		p.status = status
		p.token = Token{}
		p.mu.Unlock()
		p.logger.Error().Err(err).Int("status", status).Msg("token refresh failed, latching provider")
		return err
	}

	p.mu.Lock()
	p.token = token
	p.fetched = true
	p.status = nethttp.StatusOK
	p.mu.Unlock()
	p.logger.Debug().Time("expires_at", token.ExpiresAt).Msg("token refreshed")
	return nil
}

func (p *Provider) needsRefresh() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.fetched {
		return true
	}
	return p.token.Remaining(p.now()) <= p.margin
}

// nextDelay schedules the next tick at expires_at - now - margin, clamped to
// a floor to avoid zero or negative sleeps.
func (p *Provider) nextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.fetched {
		return p.floor
	}
	delay := p.token.Remaining(p.now()) - p.margin
	if delay < p.floor {
		delay = p.floor
	}
	return delay
}

// AccessToken returns the cached bearer token. ErrLatched after a failed
// refresh; ErrNotReady before the first successful one.
func (p *Provider) AccessToken() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latched {
		return "", ErrLatched
	}
	if !p.fetched {
		return "", ErrNotReady
	}
	return p.token.AccessToken, nil
}

// Latched reports whether a refresh failure has latched the provider.
func (p *Provider) Latched() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latched
}

// Status returns the HTTP status of the last refresh attempt: 200 while
// healthy, the failing code once latched.
func (p *Provider) Status() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Reset clears a latched error so a caller can opt into a manual retry.
// Nothing calls this automatically; the latch is terminal by default.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latched = false
	p.status = nethttp.StatusOK
}
