// Package server implements the request pipeline: HTTP/1.1 framing inside
// the encrypted transport, routing to HAP endpoints, and the pairing
// handshakes that upgrade a connection into that transport (components F
// through the request pipeline, wired together).
package server

import (
	"net"

	"github.com/brutella/hap/session"
)

// hapListener wraps a net.Listener so every accepted connection is upgraded
// to a session.Conn before being handed to http.Server, matching the
// the listener wrapping every accepted connection upgrades through.
type hapListener struct {
	net.Listener
}

func newHAPListener(ln net.Listener) *hapListener {
	return &hapListener{Listener: ln}
}

func (l *hapListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return session.NewConn(c), nil
}
