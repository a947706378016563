package videos

import (
	"context"
	"sync"
	"time"

	"github.com/ravikeerthi7606/edustream/internal/models"
)

// Display is what a paginated listing should show right now.
type Display struct {
	// Query is the most recently requested query.
	Query Query
	// DataQuery is the query Page belongs to. It differs from Query while the
	// requested page is loading and the previous page stays on screen.
	DataQuery Query
	Page      models.CatalogPage
	FetchedAt time.Time
	HasData   bool
	Loading   bool
	Stale     bool
	Err       error
	// Revision increases with every change to the display, so a consumer
	// receiving updates from several goroutines can drop out-of-order ones.
	Revision uint64
}

// Placeholder reports whether the page shown belongs to an earlier query.
func (d Display) Placeholder() bool {
	return d.HasData && d.DataQuery.Key() != d.Query.Key()
}

// Dimmed reports whether the page shown should be presented as out of date.
func (d Display) Dimmed() bool {
	return d.Placeholder() || d.Stale
}

// View keeps the previous page visible while the next one loads, and applies
// results strictly by query key so a late response for an abandoned query
// never replaces the page of the current one. Pages refreshed in the
// background replace a stale page of the requested query.
type View struct {
	engine   *Engine
	onChange func(Display)
	stop     func()

	mu      sync.Mutex
	display Display
}

// NewView returns a View reading through engine. onChange, when set, is called
// with every display update. Close releases the engine subscription.
func NewView(engine *Engine, onChange func(Display)) *View {
	v := &View{engine: engine, onChange: onChange}
	v.stop = engine.OnRefresh(v.refreshed)
	return v
}

// Close stops applying background refreshes.
func (v *View) Close() {
	v.stop()
}

// Current returns the display state.
func (v *View) Current() Display {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.display
}

// Load requests q and blocks until it resolves. Callers may issue Loads
// concurrently; only the result for the latest requested query is applied.
func (v *View) Load(ctx context.Context, q Query) (Display, error) {
	v.Select(q)
	return v.Resolve(ctx, q)
}

// Select makes q the requested query without waiting for it. A cached page for
// q is shown at once; otherwise the previous page stays visible while loading.
func (v *View) Select(q Query) Display {
	q = q.Normalize()

	v.mu.Lock()
	v.display.Query = q
	v.display.Err = nil
	if snap, ok := v.engine.Peek(q); ok {
		v.apply(snap)
	} else {
		v.display.Loading = true
	}
	v.display.Revision++
	pending := v.display
	v.mu.Unlock()

	v.notify(pending)
	return pending
}

// Resolve reads q and applies the result if q is still the requested query.
// It returns ErrSuperseded, without applying anything, when it is not.
func (v *View) Resolve(ctx context.Context, q Query) (Display, error) {
	q = q.Normalize()

	v.mu.Lock()
	if v.display.Query.Key() != q.Key() {
		current := v.display
		v.mu.Unlock()
		return current, ErrSuperseded
	}
	v.mu.Unlock()

	snap, err := v.engine.Read(ctx, q)

	v.mu.Lock()
	if v.display.Query.Key() != q.Key() {
		current := v.display
		v.mu.Unlock()
		return current, ErrSuperseded
	}
	switch {
	case err != nil:
		v.display.Loading = false
		v.display.Err = err
	case v.holdsNewer(snap):
		v.display.Loading = false
	default:
		v.apply(snap)
	}
	v.display.Revision++
	current := v.display
	v.mu.Unlock()

	v.notify(current)
	return current, err
}

// refreshed applies a background refresh if it belongs to the requested query.
func (v *View) refreshed(snap Snapshot) {
	v.mu.Lock()
	if v.display.Query.Key() != snap.Query.Key() || v.holdsNewer(snap) {
		v.mu.Unlock()
		return
	}
	v.apply(snap)
	v.display.Err = nil
	v.display.Revision++
	current := v.display
	v.mu.Unlock()

	v.notify(current)
}

// holdsNewer reports whether the display already shows a later fetch of
// snap's query. It must be called with v.mu held.
func (v *View) holdsNewer(snap Snapshot) bool {
	return v.display.HasData &&
		v.display.DataQuery.Key() == snap.Query.Key() &&
		v.display.FetchedAt.After(snap.FetchedAt)
}

// apply must be called with v.mu held.
func (v *View) apply(snap Snapshot) {
	v.display.DataQuery = snap.Query
	v.display.Page = snap.Page
	v.display.FetchedAt = snap.FetchedAt
	v.display.HasData = true
	v.display.Loading = false
	v.display.Stale = snap.Stale
}

func (v *View) notify(d Display) {
	if v.onChange != nil {
		v.onChange(d)
	}
}
