// Package server implements the request pipeline: HTTP/1.1 framing inside
// the encrypted transport, routing to HAP endpoints, and the pairing
// handshakes that upgrade a connection into that transport.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/db"
	"github.com/brutella/hap/event"
	"github.com/brutella/hap/log"
	"github.com/brutella/hap/pair"
	"github.com/brutella/hap/session"
)

// PrepareTTL is how long a PUT /prepare token stays redeemable when the
// request carries no ttl of its own; it also sets the sweep interval
// (PrepareTTL/2).
const PrepareTTL = 30 * time.Second

// Config bundles everything the request pipeline needs; the top-level
// package assembles it from persisted state before calling New.
type Config struct {
	Container  *accessory.Container
	Identity   *db.Identity
	Pairings   *db.Pairings
	Dispatcher *event.Dispatcher
}

// Server owns the HTTP/1.1 request pipeline and the per-connection
// pairing/session state layered on top of a plain net.Listener.
type Server struct {
	cfg Config

	coordinator *pair.Coordinator
	http        *http.Server
	listener    net.Listener

	connsMutex sync.Mutex
	conns      map[net.Conn]*connState

	stopSweep context.CancelFunc
}

// connState is the per-TCP-connection pairing/session bookkeeping attached
// via http.Server's ConnState/ConnContext hooks.
type connState struct {
	conn   *session.Conn
	sess   *session.Session
	setup  *pair.Setup
	verify *pair.Verify

	mutex sync.Mutex
}

type ctxKey int

const connStateKey ctxKey = 0

// New wires a Server around cfg. Call Serve to start accepting connections.
func New(cfg Config) *Server {
	s := &Server{
		cfg:         cfg,
		coordinator: pair.NewCoordinator(cfg.Identity, cfg.Pairings),
		conns:       map[net.Conn]*connState{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/pair-setup", s.handlePairSetup)
	mux.HandleFunc("/pair-verify", s.handlePairVerify)
	mux.HandleFunc("/accessories", s.requireVerified(s.handleAccessories))
	mux.HandleFunc("/characteristics", s.requireVerified(s.handleCharacteristics))
	mux.HandleFunc("/prepare", s.requireVerified(s.handlePrepare))
	mux.HandleFunc("/pairings", s.requireVerified(s.handlePairings))
	mux.HandleFunc("/identify", s.handleIdentify)

	s.http = &http.Server{
		Handler:     mux,
		ConnContext: s.connContext,
		ConnState:   s.connState,
	}
	return s
}

// Serve accepts connections on ln until the server is stopped. It wraps ln
// so every accepted connection upgrades through session.Conn, starts the
// prepared-write sweeper, and blocks like http.Server.Serve.
func (s *Server) Serve(ln net.Listener) error {
	s.listener = newHAPListener(ln)

	sweepCtx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	go s.sweepPrepared(sweepCtx)

	log.Server.Info().Str("addr", ln.Addr().String()).Msg("hap server listening")
	return s.http.Serve(s.listener)
}

// Shutdown gracefully stops accepting new requests and closes idle
// connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopSweep != nil {
		s.stopSweep()
	}
	return s.http.Shutdown(ctx)
}

// sweepPrepared periodically expires prepared-write tokens whose TTL has
// elapsed without a following PUT /characteristics, so a reservation never
// outlives a controller that abandons the two-step commit.
func (s *Server) sweepPrepared(ctx context.Context) {
	ticker := time.NewTicker(PrepareTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connsMutex.Lock()
			sessions := make([]*connState, 0, len(s.conns))
			for _, cs := range s.conns {
				sessions = append(sessions, cs)
			}
			s.connsMutex.Unlock()

			for _, cs := range sessions {
				cs.mutex.Lock()
				sess := cs.sess
				cs.mutex.Unlock()
				if sess != nil {
					sess.ExpirePrepared()
				}
			}
		}
	}
}

func (s *Server) connContext(ctx context.Context, c net.Conn) context.Context {
	hc, ok := c.(*session.Conn)
	if !ok {
		return ctx
	}

	s.connsMutex.Lock()
	cs, ok := s.conns[c]
	if !ok {
		cs = &connState{conn: hc}
		s.conns[c] = cs
	}
	s.connsMutex.Unlock()

	return context.WithValue(ctx, connStateKey, cs)
}

func (s *Server) connState(c net.Conn, state http.ConnState) {
	if _, ok := c.(*session.Conn); !ok {
		return
	}

	switch state {
	case http.StateNew:
		s.connsMutex.Lock()
		if _, ok := s.conns[c]; !ok {
			s.conns[c] = &connState{conn: c.(*session.Conn)}
		}
		s.connsMutex.Unlock()

	case http.StateClosed, http.StateHijacked:
		s.connsMutex.Lock()
		cs, ok := s.conns[c]
		delete(s.conns, c)
		s.connsMutex.Unlock()

		if ok && cs.sess != nil {
			s.cfg.Dispatcher.Unregister(cs.sess)
			cs.sess.Close()
			log.Session.Info().Str("session", cs.sess.ID()).Msg("session closed")
		}
	}
}

// CloseAllSessions forcibly closes every established connection. Used when
// the last admin pairing is removed: every existing session was
// authenticated against a controller identity that no longer has any
// standing, so none of them may continue.
func (s *Server) CloseAllSessions() {
	s.connsMutex.Lock()
	conns := make([]*connState, 0, len(s.conns))
	for _, cs := range s.conns {
		conns = append(conns, cs)
	}
	s.connsMutex.Unlock()

	for _, cs := range conns {
		cs.mutex.Lock()
		conn := cs.conn
		cs.mutex.Unlock()
		if conn != nil {
			conn.Close()
		}
	}
}

func connStateFromContext(ctx context.Context) *connState {
	cs, _ := ctx.Value(connStateKey).(*connState)
	return cs
}

// requireVerified rejects requests on a connection that has not completed
// pair-verify: every non-pairing endpoint requires an established,
// encrypted session.
func (s *Server) requireVerified(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cs := connStateFromContext(r.Context())
		if cs == nil || cs.sess == nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
