// Package catalog maintains a paginated, possibly-stale projection of the
// deal's file list.
package catalog

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/onlyoffice/pipedrive-int/internal/events"
	"github.com/onlyoffice/pipedrive-int/internal/models"
)

// DefaultStaleAfter is how long cached results stay fresh before a
// background refetch is due.
const DefaultStaleAfter = 3500 * time.Millisecond

// DefaultRefreshInterval is the background auto-refresh cadence.
const DefaultRefreshInterval = 3500 * time.Millisecond

// Fetcher loads one page of the file list. cursor is "" for the first page
// and otherwise the opaque token from the previous page.
type Fetcher func(ctx context.Context, cursor string, limit int) (*models.FileListPage, error)

// Query is a lazy, restartable sequence of file-list pages. It exposes the
// flattened concatenation of all fetched pages plus explicit next-page
// controls. Concurrent fetches for the same cursor collapse into one call.
type Query struct {
	fetch        Fetcher
	limit        int
	staleAfter   time.Duration
	refreshEvery time.Duration
	bus          *events.Bus
	now          func() time.Time

	group singleflight.Group

	mu         sync.RWMutex
	pages      []*models.FileListPage
	nextCursor string
	hasNext    bool
	started    bool
	loading    bool
	lastErr    error
	fetchedAt  time.Time
}

// Option configures a Query.
type Option func(*Query)

// WithStaleAfter overrides the freshness window.
func WithStaleAfter(d time.Duration) Option {
	return func(q *Query) { q.staleAfter = d }
}

// WithRefreshInterval overrides the background auto-refresh cadence.
func WithRefreshInterval(d time.Duration) Option {
	return func(q *Query) { q.refreshEvery = d }
}

// WithBus publishes catalog events to the given bus.
func WithBus(bus *events.Bus) Option {
	return func(q *Query) { q.bus = bus }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(q *Query) { q.now = now }
}

// New creates a Query over the fetcher with the given page size.
func New(fetch Fetcher, limit int, opts ...Option) *Query {
	q := &Query{
		fetch:        fetch,
		limit:        limit,
		staleAfter:   DefaultStaleAfter,
		refreshEvery: DefaultRefreshInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Files returns the flattened concatenation of all fetched pages.
func (q *Query) Files() []models.File {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []models.File
	for _, page := range q.pages {
		out = append(out, page.Response...)
	}
	return out
}

// HasNextPage reports whether the server advertised more items after the
// last fetched page.
func (q *Query) HasNextPage() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.hasNext
}

// Loading reports whether a fetch is in flight.
func (q *Query) Loading() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.loading
}

// Err returns the error from the most recent fetch, nil after a success.
func (q *Query) Err() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.lastErr
}

// fetchPage loads one page, collapsing concurrent requests for the same
// cursor into a single call.
func (q *Query) fetchPage(ctx context.Context, cursor string) (*models.FileListPage, error) {
	result, err, _ := q.group.Do(cursor, func() (interface{}, error) {
		return q.fetch(ctx, cursor, q.limit)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.FileListPage), nil
}

func (q *Query) setLoading(v bool) {
	q.mu.Lock()
	q.loading = v
	q.mu.Unlock()
}

func (q *Query) recordErr(err error) {
	q.mu.Lock()
	q.lastErr = err
	q.loading = false
	q.mu.Unlock()
	if q.bus != nil {
		q.bus.Publish(events.NewCatalogEvent(events.EventCatalogError, 0, false, err))
	}
}

func (q *Query) publishUpdate() {
	if q.bus == nil {
		return
	}
	q.mu.RLock()
	count := 0
	for _, page := range q.pages {
		count += len(page.Response)
	}
	hasNext := q.hasNext
	q.mu.RUnlock()
	q.bus.Publish(events.NewCatalogEvent(events.EventCatalogUpdated, count, hasNext, nil))
}

// Fetch loads the first page if nothing is cached yet, refetches everything
// if the cache is stale, and is a cheap no-op while results are fresh.
func (q *Query) Fetch(ctx context.Context) error {
	q.mu.RLock()
	started := q.started
	fresh := started && q.now().Sub(q.fetchedAt) < q.staleAfter
	q.mu.RUnlock()

	if fresh {
		return nil
	}
	if started {
		return q.Refetch(ctx)
	}

	q.setLoading(true)
	page, err := q.fetchPage(ctx, "")
	if err != nil {
		q.recordErr(err)
		return err
	}

	q.mu.Lock()
	q.pages = []*models.FileListPage{page}
	q.nextCursor = page.Cursor()
	q.hasNext = q.nextCursor != ""
	q.started = true
	q.loading = false
	q.lastErr = nil
	q.fetchedAt = q.now()
	q.mu.Unlock()

	q.publishUpdate()
	return nil
}

// FetchNextPage loads the next page using the server-provided cursor. A
// no-op when the server reported no more items.
func (q *Query) FetchNextPage(ctx context.Context) error {
	q.mu.RLock()
	hasNext := q.hasNext
	cursor := q.nextCursor
	started := q.started
	q.mu.RUnlock()

	if !started {
		return q.Fetch(ctx)
	}
	if !hasNext {
		return nil
	}

	q.setLoading(true)
	page, err := q.fetchPage(ctx, cursor)
	if err != nil {
		q.recordErr(err)
		return err
	}

	q.mu.Lock()
	q.pages = append(q.pages, page)
	q.nextCursor = page.Cursor()
	q.hasNext = q.nextCursor != ""
	q.loading = false
	q.lastErr = nil
	q.mu.Unlock()

	q.publishUpdate()
	return nil
}

// Refetch reloads every previously fetched page from the start, following
// fresh cursors. The page count is capped at what was loaded before so a
// background refresh never grows the window behind the user's back.
func (q *Query) Refetch(ctx context.Context) error {
	q.mu.RLock()
	pageCount := len(q.pages)
	q.mu.RUnlock()
	if pageCount == 0 {
		pageCount = 1
	}

	q.setLoading(true)

	var pages []*models.FileListPage
	cursor := ""
	for i := 0; i < pageCount; i++ {
		page, err := q.fetchPage(ctx, cursor)
		if err != nil {
			q.recordErr(err)
			return err
		}
		pages = append(pages, page)
		cursor = page.Cursor()
		if cursor == "" {
			break
		}
	}

	q.mu.Lock()
	q.pages = pages
	q.nextCursor = cursor
	q.hasNext = cursor != ""
	q.started = true
	q.loading = false
	q.lastErr = nil
	q.fetchedAt = q.now()
	q.mu.Unlock()

	q.publishUpdate()
	return nil
}

// AutoRefresh refetches in the background on a fixed interval until ctx is
// cancelled. Errors are recorded on the query, not returned; the next tick
// tries again.
func (q *Query) AutoRefresh(ctx context.Context) {
	ticker := time.NewTicker(q.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.mu.RLock()
			stale := !q.started || q.now().Sub(q.fetchedAt) >= q.staleAfter
			q.mu.RUnlock()
			if stale {
				_ = q.Refetch(ctx)
			}
		}
	}
}
