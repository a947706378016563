package videos

import (
	"sync"
	"time"
)

// DefaultSearchDebounce is how long search input must be quiet before a query is issued.
const DefaultSearchDebounce = 300 * time.Millisecond

// Debouncer emits only the last value pushed once no new value has arrived for
// the configured delay.
type Debouncer[T any] struct {
	delay time.Duration
	emit  func(T)

	// emitting serialises emits so Flush returns only after an emit that
	// was already firing has finished.
	emitting sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	pending bool
	value   T
}

// NewDebouncer returns a Debouncer calling emit on its own goroutine.
func NewDebouncer[T any](delay time.Duration, emit func(T)) *Debouncer[T] {
	if delay < 0 {
		delay = 0
	}
	return &Debouncer[T]{delay: delay, emit: emit}
}

// Push records v and restarts the quiet period.
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	d.value = v
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}

	seq := d.seq
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
}

// Flush emits the pending value immediately, if any.
func (d *Debouncer[T]) Flush() {
	d.emitting.Lock()
	defer d.emitting.Unlock()

	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	v, ok := d.value, d.pending
	d.pending = false
	d.mu.Unlock()

	if ok {
		d.emit(v)
	}
}

// Stop discards the pending value.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	d.pending = false
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.emitting.Lock()
	defer d.emitting.Unlock()

	d.mu.Lock()
	if seq != d.seq || !d.pending {
		d.mu.Unlock()
		return
	}
	v := d.value
	d.pending = false
	d.mu.Unlock()

	d.emit(v)
}
