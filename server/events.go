package server

import (
	"encoding/json"
	"fmt"

	"github.com/brutella/hap/log"
	"github.com/brutella/hap/session"
)

// pushEvents drains sess's outgoing queue for the lifetime of the
// connection, writing each coalesced change as an unsolicited EVENT/1.0
// message directly onto the encrypted transport. It returns once the
// connection is closed, since a write against it then fails.
func (s *Server) pushEvents(sess *session.Session) {
	for {
		select {
		case <-sess.Stopped():
			return
		case change := <-sess.Events():
			body, err := json.Marshal(map[string]interface{}{
				"characteristics": []map[string]interface{}{
					{"aid": change.Aid, "iid": change.IID, "value": change.Value},
				},
			})
			if err != nil {
				log.Session.Error().Err(err).Msg("marshal event body")
				continue
			}

			frame := fmt.Sprintf("EVENT/1.0 200 OK\r\nContent-Type: application/hap+json\r\nContent-Length: %d\r\n\r\n%s",
				len(body), body)

			if _, err := sess.Conn.Write([]byte(frame)); err != nil {
				log.Session.Debug().Str("session", sess.ID()).Err(err).Msg("event push failed, dropping session")
				return
			}
		}
	}
}
