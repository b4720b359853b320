package source

import (
	"sync"

	"github.com/shaunagostinho/geobroker/internal/position"
)

// delivery implements the shared start/stop gating and last-known caching
// for concrete sources. The underlying transport keeps producing fixes once
// connected; delivery forwards them to the sink only while live updates or
// best-watching updates are started, and caches the newest fix either way.
type delivery struct {
	mu          sync.Mutex
	sink        func(position.Fix)
	started     bool
	bestStarted bool
	last        *position.Fix
}

func (d *delivery) Subscribe(fn func(position.Fix)) {
	d.mu.Lock()
	d.sink = fn
	d.mu.Unlock()
}

func (d *delivery) StartUpdates() {
	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
}

func (d *delivery) StopUpdates() {
	d.mu.Lock()
	d.started = false
	d.mu.Unlock()
}

func (d *delivery) StartBestUpdates() {
	d.mu.Lock()
	d.bestStarted = true
	d.mu.Unlock()
}

func (d *delivery) StopBestUpdates() {
	d.mu.Lock()
	d.bestStarted = false
	d.mu.Unlock()
}

func (d *delivery) LastKnown() (position.Fix, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return position.Fix{}, false
	}
	return *d.last, true
}

// deliver caches the fix and forwards it to the sink if any update mode is
// active. Called from the transport goroutine.
func (d *delivery) deliver(f position.Fix) {
	d.mu.Lock()
	cp := f
	d.last = &cp
	sink := d.sink
	active := d.started || d.bestStarted
	d.mu.Unlock()

	if active && sink != nil {
		sink(f)
	}
}
