package broker

import (
	"log"

	"github.com/shaunagostinho/geobroker/internal/position"
)

// bestState drives best-effort mode across both sources: Idle until a
// best-position request arrives, Watching while both sources race, and
// Quiescing between an accepted fix and the re-arm tick. Owned by the
// dispatcher.
type bestState struct {
	accepted    *position.Fix
	requested   bool // a best-position watcher exists
	watching    bool
	foreground  bool
	subs        []ResultFunc
	cancelRearm func()
}

func (b *Broker) watchBest(cb ResultFunc) {
	b.best.requested = true
	b.best.subs = append(b.best.subs, cb)
	b.startBestWatching()
}

func (b *Broker) startBestWatching() {
	for _, st := range b.both() {
		if !st.bestActive {
			st.bestActive = true
			st.src.StartBestUpdates()
		}
	}
	b.best.watching = true
}

func (b *Broker) stopBestWatching() {
	for _, st := range b.both() {
		if st.bestActive {
			st.bestActive = false
			st.src.StopBestUpdates()
			b.stopIfIdle(st)
		}
	}
	b.best.watching = false
}

// onBestCandidate arbitrates one fix against the accepted best. On accept:
// record it, quiesce both sources, deliver to every best-position watcher
// with keep-open semantics, and arm the re-arm timer.
func (b *Broker) onBestCandidate(f position.Fix) {
	if !Better(f, b.best.accepted, b.cfg) {
		return
	}

	fc := f
	b.best.accepted = &fc
	b.stopBestWatching()
	log.Printf("[broker] accepted best fix from %s source (accuracy %.0fm)", f.Source, f.Accuracy)

	b.observe("best", fc)
	for _, cb := range b.best.subs {
		v := fc
		cb(&v, nil)
	}

	if b.best.cancelRearm != nil {
		b.best.cancelRearm()
	}
	b.best.cancelRearm = b.after(b.cfg.RearmInterval, func() {
		b.post(func() { b.rearm() })
	})
}

// rearm fires after the quiescent interval. In the background the restart
// is suppressed; OnResume picks it up instead.
func (b *Broker) rearm() {
	b.best.cancelRearm = nil
	if !b.best.requested || !b.best.foreground {
		return
	}
	b.startBestWatching()
}
