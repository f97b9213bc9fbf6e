package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/brutella/hap/event"
)

// PreparedWrite is a pending-write token created by PUT /prepare, valid
// until Deadline.
type PreparedWrite struct {
	PID      uint64
	Deadline time.Time
}

// Session tracks everything specific to one TCP connection beyond the wire
// transport itself: its identity for event-dispatcher exclusion, its
// outgoing event queue, and any in-flight prepared-write token.
type Session struct {
	id   string
	Conn *Conn

	mutex    sync.Mutex
	prepared *PreparedWrite

	events    chan event.Change
	stop      chan struct{}
	closeOnce sync.Once

	// ControllerUsername is set once pair-verify M3 succeeds.
	ControllerUsername string
}

var nextSessionID uint64
var sessionIDMutex sync.Mutex

func newSessionID() string {
	sessionIDMutex.Lock()
	defer sessionIDMutex.Unlock()
	nextSessionID++
	return fmt.Sprintf("sess-%d", nextSessionID)
}

// New creates a Session wrapping conn with a bounded outgoing event queue.
// A full queue signals a stalled reader; per the overflow-handling
// design, overflow closes the connection rather than blocking the
// dispatcher or silently dropping the oldest event.
func New(conn *Conn) *Session {
	return &Session{
		id:     newSessionID(),
		Conn:   conn,
		events: make(chan event.Change, 256),
		stop:   make(chan struct{}),
	}
}

// ID implements event.Sink.
func (s *Session) ID() string { return s.id }

// Enqueue implements event.Sink. It never blocks: a full queue means the
// session's writer loop has stalled, so rather than drop the event silently
// or block the dispatcher, the connection itself is closed — the writer
// loop's next read/write will observe the closed Conn and unwind.
func (s *Session) Enqueue(c event.Change) {
	select {
	case s.events <- c:
	default:
		s.Conn.Close()
	}
}

// Events returns the channel the session's HTTP writer loop drains to emit
// EVENT/1.0 frames.
func (s *Session) Events() <-chan event.Change { return s.events }

// Stopped returns a channel closed once Close has been called, so the
// writer loop draining Events can unblock when the connection goes away.
func (s *Session) Stopped() <-chan struct{} { return s.stop }

// Close signals the writer loop to stop. Safe to call more than once or
// concurrently with Enqueue.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
}

// SetPrepared stores a new prepared-write token valid until ttl elapses.
func (s *Session) SetPrepared(pid uint64, ttl time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.prepared = &PreparedWrite{PID: pid, Deadline: time.Now().Add(ttl)}
}

// ConsumePrepared validates pid against the stored token and its deadline.
// A matching, unexpired token is consumed (one-shot); anything else returns
// false so the caller can reply with -70410 (invalid pid).
func (s *Session) ConsumePrepared(pid uint64) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.prepared == nil || s.prepared.PID != pid {
		return false
	}
	ok := time.Now().Before(s.prepared.Deadline)
	s.prepared = nil
	return ok
}

// ExpirePrepared drops a stale prepared-write token without waiting for a
// PUT /characteristics to discover it past its deadline. Used by the
// server's periodic sweep so a controller that never follows up on
// PUT /prepare doesn't hold a reservation indefinitely.
func (s *Session) ExpirePrepared() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.prepared != nil && !time.Now().Before(s.prepared.Deadline) {
		s.prepared = nil
	}
}
