package server

import (
	"net/http"

	"github.com/brutella/hap/log"
	"github.com/brutella/hap/pair"
	"github.com/brutella/hap/tlv8"
)

// handlePairings serves POST /pairings: add/remove/list operations on the
// paired-controller registry, restricted to admins.
func (s *Server) handlePairings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	items, err := readTLV8(r)
	if err != nil {
		http.Error(w, "bad tlv8", http.StatusBadRequest)
		return
	}

	cs := connStateFromContext(r.Context())
	if cs == nil || cs.sess == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	pc := pair.NewPairingsController(s.cfg.Pairings)
	resp, err := pc.Handle(cs.sess.ControllerUsername, items)
	if err != nil {
		log.Pairing.Warn().Err(err).Msg("/pairings request rejected")
		writeTLV8(w, []tlv8.Item{
			{Tag: pair.TagState, Value: []byte{byte(pair.StateM2)}},
			{Tag: pair.TagError, Value: []byte{byte(pair.ErrorAuthentication)}},
		})
		return
	}

	writeTLV8(w, resp)
}
