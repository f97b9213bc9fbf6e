// Package event implements per-session subscriptions and the debounced
// fan-out of characteristic value changes to subscribed HAP sessions
// (subscription tracking and debounced fan-out to event sinks).
package event

import (
	"sync"
	"time"
)

// Change describes a single characteristic value change ready for
// delivery to a subscriber.
type Change struct {
	Aid   uint64
	IID   uint64
	Value interface{}
}

// Sink receives coalesced changes for delivery over its session's transport.
// session.Session implements this.
type Sink interface {
	// ID uniquely identifies the session, used only for excluding the
	// originator of a client-initiated write from its own fan-out.
	ID() string
	Enqueue(Change)
}

// Dispatcher owns every active session's subscription set and coalesces
// rapid repeated updates to the same characteristic into a single,
// debounced delivery carrying the latest value.
type Dispatcher struct {
	debounce time.Duration

	mutex    sync.Mutex
	sessions map[string]Sink
	subs     map[string]map[uint64]bool // sessionID -> set of (aid<<32|iid)

	pending map[uint64]*pendingChange
}

type pendingChange struct {
	value      interface{}
	originator string
	timer      *time.Timer
}

// New creates a Dispatcher that coalesces repeated updates to the same
// characteristic within one debounce window.
func New(debounce time.Duration) *Dispatcher {
	return &Dispatcher{
		debounce: debounce,
		sessions: map[string]Sink{},
		subs:     map[string]map[uint64]bool{},
		pending:  map[uint64]*pendingChange{},
	}
}

func key(aid, iid uint64) uint64 { return aid<<32 | iid }

// Register adds a session so it may subscribe to characteristics.
func (d *Dispatcher) Register(s Sink) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.sessions[s.ID()] = s
	if _, ok := d.subs[s.ID()]; !ok {
		d.subs[s.ID()] = map[uint64]bool{}
	}
}

// Unregister drops a session and all of its subscriptions, e.g. on
// disconnect.
func (d *Dispatcher) Unregister(s Sink) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	delete(d.sessions, s.ID())
	delete(d.subs, s.ID())
}

// Subscribe toggles session s's subscription to (aid,iid).
func (d *Dispatcher) Subscribe(s Sink, aid, iid uint64, subscribed bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	set, ok := d.subs[s.ID()]
	if !ok {
		set = map[uint64]bool{}
		d.subs[s.ID()] = set
	}
	if subscribed {
		set[key(aid, iid)] = true
	} else {
		delete(set, key(aid, iid))
	}
}

// IsSubscribed reports whether session s currently subscribes to (aid,iid).
func (d *Dispatcher) IsSubscribed(s Sink, aid, iid uint64) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.subs[s.ID()][key(aid, iid)]
}

// Publish records a value change for (aid,iid), originated by originator
// (nil for server-originated changes). Delivery is debounced: a change
// arriving within d.debounce of a prior pending change for the same
// characteristic replaces its value rather than queuing a second delivery,
// per invariant 3 (subscribers see the final value, not every intermediate
// one).
func (d *Dispatcher) Publish(aid, iid uint64, value interface{}, originator Sink) {
	originatorID := ""
	if originator != nil {
		originatorID = originator.ID()
	}

	d.mutex.Lock()
	k := key(aid, iid)
	if pc, ok := d.pending[k]; ok {
		pc.value = value
		pc.originator = originatorID
		d.mutex.Unlock()
		return
	}

	pc := &pendingChange{value: value, originator: originatorID}
	d.pending[k] = pc
	d.mutex.Unlock()

	pc.timer = time.AfterFunc(d.debounce, func() {
		d.flush(aid, iid, k)
	})
}

func (d *Dispatcher) flush(aid, iid, k uint64) {
	d.mutex.Lock()
	pc, ok := d.pending[k]
	if !ok {
		d.mutex.Unlock()
		return
	}
	delete(d.pending, k)

	change := Change{Aid: aid, IID: iid, Value: pc.value}
	var targets []Sink
	for id, sink := range d.sessions {
		if id == pc.originator {
			continue
		}
		if d.subs[id][k] {
			targets = append(targets, sink)
		}
	}
	d.mutex.Unlock()

	for _, sink := range targets {
		sink.Enqueue(change)
	}
}
