package broker

import (
	"log"
	"sync"
	"time"

	"github.com/shaunagostinho/geobroker/internal/position"
	"github.com/shaunagostinho/geobroker/internal/source"
)

// ResultFunc receives an asynchronous outcome: exactly one of fix or err is
// non-nil. Watch and best-position callbacks are invoked repeatedly with a
// fix and stay open; one-shot callbacks fire once. Callbacks run on the
// broker's dispatcher goroutine and must not block.
type ResultFunc func(fix *position.Fix, err *position.Error)

// FixHook observes routed fixes (for the CSV logger). Runs on the
// dispatcher; must not block.
type FixHook func(kind string, fix position.Fix)

// Broker mediates between applications and the two position sources. All
// shared state — the per-source subscription tables, the accepted best fix,
// the foreground flag — is owned by a single dispatcher goroutine; every
// source delivery, timer expiry, and application request is marshalled onto
// it, so no two events are processed concurrently.
type Broker struct {
	cfg Config

	events chan func()
	done   chan struct{}
	closed sync.Once

	// Injectable for tests.
	now   func() time.Time
	after func(d time.Duration, fn func()) func()

	high *sourceState
	low  *sourceState

	best bestState
	hook FixHook
}

// New creates a Broker over the two sources and starts its dispatcher.
func New(cfg Config, high, low source.Source) *Broker {
	b := newBroker(cfg, high, low)
	b.start()
	return b
}

func newBroker(cfg Config, high, low source.Source) *Broker {
	b := &Broker{
		cfg:    cfg.withDefaults(),
		events: make(chan func(), 64),
		done:   make(chan struct{}),
		now:    time.Now,
		high:   newSourceState(high),
		low:    newSourceState(low),
	}
	b.after = func(d time.Duration, fn func()) func() {
		t := time.AfterFunc(d, fn)
		return func() { t.Stop() }
	}
	b.best.foreground = true
	return b
}

func (b *Broker) start() {
	b.high.src.Subscribe(func(f position.Fix) {
		b.post(func() { b.onFix(b.high, f) })
	})
	b.low.src.Subscribe(func(f position.Fix) {
		b.post(func() { b.onFix(b.low, f) })
	})
	go b.loop()
}

func (b *Broker) loop() {
	for {
		select {
		case fn := <-b.events:
			fn()
		case <-b.done:
			return
		}
	}
}

// post marshals fn onto the dispatcher. Events posted after Close are
// dropped; a fix already in flight when a cancellation lands may still be
// delivered, which callers tolerate.
func (b *Broker) post(fn func()) {
	select {
	case b.events <- fn:
	case <-b.done:
	}
}

// SetHook installs the fix observer. Safe to call while running.
func (b *Broker) SetHook(h FixHook) {
	b.post(func() { b.hook = h })
}

// Available reports whether at least one underlying provider is enabled.
func (b *Broker) Available() bool {
	return b.high.src.Available() || b.low.src.Available()
}

// GetLocation resolves a single position: from the chosen source's cache
// when fresh enough (the low-power fast path), otherwise from a live
// one-shot subscription with a deadline. cb fires exactly once.
func (b *Broker) GetLocation(highAccuracy bool, maxAge, timeout time.Duration, cb ResultFunc) {
	if timeout <= 0 {
		timeout = b.cfg.DefaultTimeout
	}
	b.post(func() {
		if !b.Available() {
			cb(nil, position.Unavailable())
			return
		}
		st := b.pick(highAccuracy)
		if last, ok := st.src.LastKnown(); ok && b.now().UnixMilli()-last.Time <= maxAge.Milliseconds() {
			fc := last
			b.observe("cached", fc)
			cb(&fc, nil)
			return
		}
		b.addOneShot(st, timeout, cb)
	})
}

// AddWatch registers a continuous watch under id on the chosen source. A
// second call with the same id replaces the prior watch.
func (b *Broker) AddWatch(id string, highAccuracy bool, cb ResultFunc) {
	b.post(func() {
		if !b.Available() {
			cb(nil, position.Unavailable())
			return
		}
		b.addWatch(b.pick(highAccuracy), id, cb)
	})
}

// ClearWatch removes the watch with this id from both sources. Idempotent
// if the id is absent.
func (b *Broker) ClearWatch(id string) {
	b.post(func() { b.clearWatch(id) })
}

// WatchBestPosition starts best-effort arbitration across both sources.
// The callback receives every accepted best fix and stays open.
func (b *Broker) WatchBestPosition(cb ResultFunc) {
	b.post(func() {
		if !b.Available() {
			cb(nil, position.Unavailable())
			return
		}
		b.watchBest(cb)
	})
}

// ForceStop clears every outstanding request and watch on both sources and
// stops both unconditionally, from any state.
func (b *Broker) ForceStop() {
	b.post(func() { b.forceStop() })
}

// OnPause suspends best-watching while the host application is in the
// background. No-op unless best-watching was requested.
func (b *Broker) OnPause() {
	b.post(func() {
		b.best.foreground = false
		if b.best.requested {
			log.Printf("[broker] paused, suspending best-watching")
			b.stopBestWatching()
		}
	})
}

// OnResume restores best-watching on return to the foreground.
func (b *Broker) OnResume() {
	b.post(func() {
		b.best.foreground = true
		if b.best.requested {
			log.Printf("[broker] resumed, restarting best-watching")
			b.startBestWatching()
		}
	})
}

// Close tears the broker down: force-stop, release both sources, stop the
// dispatcher. Blocks until teardown has been processed.
func (b *Broker) Close() {
	b.closed.Do(func() {
		released := make(chan struct{})
		b.post(func() {
			b.forceStop()
			if err := b.high.src.Close(); err != nil {
				log.Printf("[broker] closing %s: %v", b.high.src.Name(), err)
			}
			if err := b.low.src.Close(); err != nil {
				log.Printf("[broker] closing %s: %v", b.low.src.Name(), err)
			}
			close(released)
		})
		<-released
		close(b.done)
	})
}

func (b *Broker) pick(highAccuracy bool) *sourceState {
	if highAccuracy {
		return b.high
	}
	return b.low
}

func (b *Broker) both() [2]*sourceState {
	return [2]*sourceState{b.high, b.low}
}

func (b *Broker) observe(kind string, f position.Fix) {
	if b.hook != nil {
		b.hook(kind, f)
	}
}

// onFix routes one source delivery: resolve pending one-shots, feed active
// watches, and hand the fix to best-position arbitration when that mode is
// on for this source.
func (b *Broker) onFix(st *sourceState, f position.Fix) {
	if st.active {
		for id, req := range st.oneShots {
			delete(st.oneShots, id)
			req.cancel()
			fc := f
			b.observe("oneshot", fc)
			req.cb(&fc, nil)
		}
		for _, w := range st.watches {
			fc := f
			b.observe("watch", fc)
			w.cb(&fc, nil)
		}
		b.stopIfIdle(st)
	}
	if st.bestActive {
		b.onBestCandidate(f)
	}
}
