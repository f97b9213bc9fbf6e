package server

import (
	"io"
	"net/http"

	"github.com/brutella/hap/log"
	"github.com/brutella/hap/pair"
	"github.com/brutella/hap/session"
	"github.com/brutella/hap/tlv8"
)

const tlv8ContentType = "application/pairing+tlv8"

func readTLV8(r *http.Request) ([]tlv8.Item, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return tlv8.Decode(body)
}

func writeTLV8(w http.ResponseWriter, items []tlv8.Item) {
	w.Header().Set("Content-Type", tlv8ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(tlv8.Encode(items...))
}

// handlePairSetup dispatches M1/M3/M5 pair-setup requests, keyed by the
// TLV8 state tag, to a per-connection pair.Setup created on first use.
func (s *Server) handlePairSetup(w http.ResponseWriter, r *http.Request) {
	items, err := readTLV8(r)
	if err != nil {
		http.Error(w, "bad tlv8", http.StatusBadRequest)
		return
	}

	state, _ := tlv8.GetByte(items, pair.TagState)

	cs := connStateFromContext(r.Context())
	if cs == nil {
		http.Error(w, "no connection state", http.StatusInternalServerError)
		return
	}

	cs.mutex.Lock()
	if pair.State(state) == pair.StateM1 {
		setup, err := s.coordinator.Begin(false)
		if err != nil {
			cs.mutex.Unlock()
			writeTLV8(w, []tlv8.Item{
				{Tag: pair.TagState, Value: []byte{byte(pair.StateM2)}},
				{Tag: pair.TagError, Value: []byte{byte(pair.ErrorUnavailable)}},
			})
			return
		}
		cs.setup = setup
	}
	setup := cs.setup
	cs.mutex.Unlock()

	if setup == nil {
		http.Error(w, "pair-setup not started", http.StatusBadRequest)
		return
	}

	var resp []tlv8.Item
	switch pair.State(state) {
	case pair.StateM1:
		resp, err = setup.HandleM1(items)
	case pair.StateM3:
		resp, err = setup.HandleM3(items)
	case pair.StateM5:
		resp, err = setup.HandleM5(items)
	default:
		http.Error(w, "unexpected state", http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Pairing.Error().Err(err).Msg("pair-setup handler error")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeTLV8(w, resp)
}

// handlePairVerify dispatches M1/M3 pair-verify requests and, on success,
// upgrades the connection's two transport directions independently at the
// points the handshake requires.
func (s *Server) handlePairVerify(w http.ResponseWriter, r *http.Request) {
	items, err := readTLV8(r)
	if err != nil {
		http.Error(w, "bad tlv8", http.StatusBadRequest)
		return
	}

	state, _ := tlv8.GetByte(items, pair.TagState)

	cs := connStateFromContext(r.Context())
	if cs == nil {
		http.Error(w, "no connection state", http.StatusInternalServerError)
		return
	}

	cs.mutex.Lock()
	if pair.State(state) == pair.StateM1 {
		cs.verify = pair.NewVerify(s.cfg.Identity, s.cfg.Pairings)
	}
	verify := cs.verify
	cs.mutex.Unlock()

	if verify == nil {
		http.Error(w, "pair-verify not started", http.StatusBadRequest)
		return
	}

	switch pair.State(state) {
	case pair.StateM1:
		resp, err := verify.HandleM1(items)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeTLV8(w, resp)

	case pair.StateM3:
		resp, keys, err := verify.HandleM3(items)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if keys != nil {
			// Read side upgrades immediately so the controller's next
			// request (already in flight behind this response) decodes
			// correctly; write side upgrades only after M4 is flushed
			// plaintext.
			if err := cs.conn.UpgradeRead(keys.ReadKey); err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			writeTLV8(w, resp)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			if err := cs.conn.UpgradeWrite(keys.WriteKey); err != nil {
				log.Pairing.Error().Err(err).Msg("upgrade write cipher")
				return
			}

			sess := session.New(cs.conn)
			sess.ControllerUsername = keys.Username
			cs.mutex.Lock()
			cs.sess = sess
			cs.mutex.Unlock()
			s.cfg.Dispatcher.Register(sess)
			log.Session.Info().Str("session", sess.ID()).Str("controller", keys.Username).Msg("session established")
			go s.pushEvents(sess)
			return
		}
		writeTLV8(w, resp)

	default:
		http.Error(w, "unexpected state", http.StatusBadRequest)
	}
}
