package videos

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/ravikeerthi7606/edustream/internal/api"
	"github.com/ravikeerthi7606/edustream/internal/models"
)

// Defaults for the query engine.
const (
	DefaultStaleTime  = 30 * time.Second
	DefaultCacheSize  = 256
	DefaultRetries    = 1
	DefaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
)

// Fetcher loads one page from the server.
type Fetcher func(ctx context.Context, q Query) (models.CatalogPage, error)

// Snapshot is a page served by the engine. Stale is set when the page is older
// than the stale time and a background refresh has been started.
type Snapshot struct {
	Query     Query
	Page      models.CatalogPage
	FetchedAt time.Time
	Stale     bool
}

type cacheEntry struct {
	namespace Namespace
	page      models.CatalogPage
	fetchedAt time.Time
}

// Engine caches catalog pages by canonical query, coalesces concurrent fetches
// of the same key and serves stale pages while revalidating in the background.
type Engine struct {
	fetch      Fetcher
	staleTime  time.Duration
	cacheSize  int
	retries    int
	retryDelay time.Duration
	now        func() time.Time
	logger     *slog.Logger

	group singleflight.Group
	cache *lru.Cache[string, cacheEntry]

	mu          sync.Mutex
	generations map[Namespace]uint64

	subMu   sync.Mutex
	subs    map[uint64]func(Snapshot)
	nextSub uint64

	background sync.WaitGroup
}

// flight is the shared outcome of one fetch.
type flight struct {
	entry  cacheEntry
	cached bool
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithStaleTime sets how long a resolved page is served without revalidation.
func WithStaleTime(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d >= 0 {
			e.staleTime = d
		}
	}
}

// WithCacheSize bounds the number of cached pages.
func WithCacheSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.cacheSize = n
		}
	}
}

// WithRetries sets how many times a retryable fetch failure is repeated.
func WithRetries(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.retries = n
		}
	}
}

// WithRetryDelay sets the initial backoff between retries; it doubles per attempt.
func WithRetryDelay(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d >= 0 {
			e.retryDelay = d
		}
	}
}

// WithNowFunc overrides the engine clock.
func WithNowFunc(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine returns an Engine that loads pages through fetch.
func NewEngine(fetch Fetcher, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		fetch:       fetch,
		staleTime:   DefaultStaleTime,
		cacheSize:   DefaultCacheSize,
		retries:     DefaultRetries,
		retryDelay:  DefaultRetryDelay,
		now:         time.Now,
		logger:      slog.Default(),
		generations: make(map[Namespace]uint64),
		subs:        make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "catalog_engine"))

	cache, err := lru.New[string, cacheEntry](e.cacheSize)
	if err != nil {
		return nil, err
	}
	e.cache = cache
	return e, nil
}

// Read returns the page for q. A fresh cached page is returned as is; a stale
// one is returned immediately while a refresh runs in the background. Without
// a cached page Read blocks on the (possibly shared) fetch. Errors are never
// cached.
func (e *Engine) Read(ctx context.Context, q Query) (Snapshot, error) {
	if e == nil || e.fetch == nil {
		return Snapshot{}, ErrFetcherUnavailable
	}
	q = q.Normalize()

	if entry, ok := e.cache.Get(q.Key()); ok {
		snap := Snapshot{Query: q, Page: entry.page, FetchedAt: entry.fetchedAt}
		if e.now().Sub(entry.fetchedAt) < e.staleTime {
			return snap, nil
		}
		snap.Stale = true
		e.revalidate(ctx, q)
		return snap, nil
	}

	res, err := e.load(ctx, q)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Query: q, Page: res.entry.page, FetchedAt: res.entry.fetchedAt}, nil
}

// OnRefresh registers fn to receive every page a background refresh stores.
// fn runs on the refresh goroutine. The returned func cancels the registration.
func (e *Engine) OnRefresh(fn func(Snapshot)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

func (e *Engine) publish(snap Snapshot) {
	e.subMu.Lock()
	subs := make([]func(Snapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Peek returns the cached page for q without fetching.
func (e *Engine) Peek(q Query) (Snapshot, bool) {
	q = q.Normalize()
	entry, ok := e.cache.Peek(q.Key())
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		Query:     q,
		Page:      entry.page,
		FetchedAt: entry.fetchedAt,
		Stale:     e.now().Sub(entry.fetchedAt) >= e.staleTime,
	}, true
}

// Invalidate drops every cached page in the given namespaces. Fetches that
// started before the call complete for their waiters but are not cached, and
// later reads never join them.
func (e *Engine) Invalidate(namespaces ...Namespace) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ns := range namespaces {
		e.generations[ns]++
	}
	for _, key := range e.cache.Keys() {
		entry, ok := e.cache.Peek(key)
		if !ok {
			continue
		}
		for _, ns := range namespaces {
			if entry.namespace == ns {
				e.cache.Remove(key)
				break
			}
		}
	}

	e.logger.Debug("catalog invalidated", slog.Any("namespaces", namespaces))
}

// Wait blocks until background refreshes have finished.
func (e *Engine) Wait() {
	e.background.Wait()
}

func (e *Engine) generation(ns Namespace) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generations[ns]
}

func (e *Engine) revalidate(ctx context.Context, q Query) {
	ctx = context.WithoutCancel(ctx)
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		res, err := e.load(ctx, q)
		if err != nil {
			e.logger.Warn("background refresh failed", slog.String("key", q.Key()), slog.String("error", err.Error()))
			return
		}
		// A page fetched across an invalidation is not announced.
		if res.cached {
			e.publish(Snapshot{Query: q, Page: res.entry.page, FetchedAt: res.entry.fetchedAt})
		}
	}()
}

// load fetches q once per key and generation; concurrent callers share the
// result. The shared fetch does not inherit the caller's cancellation, so a
// caller that gives up only stops waiting. The page is cached only if the
// namespace was not invalidated while the fetch was in flight.
func (e *Engine) load(ctx context.Context, q Query) (flight, error) {
	key := q.Key()
	gen := e.generation(q.Namespace)
	name := key + "#" + strconv.FormatUint(gen, 10)
	fetchCtx := context.WithoutCancel(ctx)

	ch := e.group.DoChan(name, func() (any, error) {
		page, err := e.fetchWithRetry(fetchCtx, q)
		if err != nil {
			return nil, err
		}
		entry := cacheEntry{namespace: q.Namespace, page: page, fetchedAt: e.now()}

		e.mu.Lock()
		cached := e.generations[q.Namespace] == gen
		if cached {
			e.cache.Add(key, entry)
		}
		e.mu.Unlock()
		return flight{entry: entry, cached: cached}, nil
	})

	select {
	case <-ctx.Done():
		return flight{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return flight{}, res.Err
		}
		return res.Val.(flight), nil
	}
}

func (e *Engine) fetchWithRetry(ctx context.Context, q Query) (models.CatalogPage, error) {
	delay := e.retryDelay
	for attempt := 0; ; attempt++ {
		page, err := e.fetch(ctx, q)
		if err == nil {
			return page, nil
		}
		if attempt >= e.retries || !api.IsRetryable(err) || ctx.Err() != nil {
			return models.CatalogPage{}, err
		}

		e.logger.Debug("retrying catalog fetch", slog.String("key", q.Key()), slog.Int("attempt", attempt+1), slog.String("error", err.Error()))

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return models.CatalogPage{}, err
			case <-timer.C:
			}
			delay = min(delay*2, maxRetryDelay)
		}
	}
}
