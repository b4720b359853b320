package broker

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shaunagostinho/geobroker/internal/position"
	"github.com/shaunagostinho/geobroker/internal/source"
)

// sourceState is the per-source subscription table: pending one-shot
// requests, named watches, and the two activity flags. Owned by the
// dispatcher.
type sourceState struct {
	src        source.Source
	active     bool // live updates started (one-shots / watches)
	bestActive bool // best-watching updates started
	oneShots   map[string]*oneShot
	watches    map[string]*watch
}

func newSourceState(src source.Source) *sourceState {
	return &sourceState{
		src:      src,
		oneShots: make(map[string]*oneShot),
		watches:  make(map[string]*watch),
	}
}

// oneShot resolves exactly once, by a fix or by its deadline; whichever
// happens first removes it from the table and cancels the loser.
type oneShot struct {
	id     string
	cb     ResultFunc
	cancel func()
}

// watch delivers every qualifying fix under its id until cleared.
type watch struct {
	id string
	cb ResultFunc
}

func (b *Broker) addOneShot(st *sourceState, timeout time.Duration, cb ResultFunc) {
	req := &oneShot{id: uuid.NewString(), cb: cb}
	st.oneShots[req.id] = req
	b.startUpdates(st)

	id := req.id
	req.cancel = b.after(timeout, func() {
		b.post(func() { b.expireOneShot(st, id) })
	})
}

// expireOneShot fires the timeout for a still-pending request. A request
// already resolved by a fix is a no-op here.
func (b *Broker) expireOneShot(st *sourceState, id string) {
	req, ok := st.oneShots[id]
	if !ok {
		return
	}
	delete(st.oneShots, id)
	req.cb(nil, position.Timeout("no position fix before the deadline"))
	b.stopIfIdle(st)
}

func (b *Broker) addWatch(st *sourceState, id string, cb ResultFunc) {
	st.watches[id] = &watch{id: id, cb: cb}
	b.startUpdates(st)
}

// clearWatch removes id from both sources; the id alone does not say which
// source owns it, so each table is checked independently.
func (b *Broker) clearWatch(id string) {
	for _, st := range b.both() {
		if _, ok := st.watches[id]; ok {
			delete(st.watches, id)
			b.stopIfIdle(st)
		}
	}
}

func (b *Broker) startUpdates(st *sourceState) {
	if !st.active {
		st.active = true
		st.src.StartUpdates()
	}
}

// stopIfIdle stops a source's live updates once it has no outstanding
// requests or watches and is not in best-watching mode.
func (b *Broker) stopIfIdle(st *sourceState) {
	if st.active && len(st.oneShots) == 0 && len(st.watches) == 0 && !st.bestActive {
		st.active = false
		st.src.StopUpdates()
	}
}

// forceStop clears every request and watch on both sources and stops both
// unconditionally. The accepted best fix deliberately survives: it remains
// the reference point for the next arbitration round.
func (b *Broker) forceStop() {
	log.Printf("[broker] force stop")
	for _, st := range b.both() {
		for id, req := range st.oneShots {
			delete(st.oneShots, id)
			req.cancel()
		}
		st.watches = make(map[string]*watch)
		st.active = false
		st.bestActive = false
		st.src.StopUpdates()
		st.src.StopBestUpdates()
	}
	if b.best.cancelRearm != nil {
		b.best.cancelRearm()
		b.best.cancelRearm = nil
	}
	b.best.requested = false
	b.best.watching = false
	b.best.subs = nil
}
