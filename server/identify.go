package server

import "net/http"

// handleIdentify serves POST /identify: fires every accessory's identify
// callback, but only while the server has no paired admin yet — once an
// admin exists, identification happens through the Identify characteristic
// write instead.
func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if s.cfg.Pairings.HasAdmin() {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	for _, a := range s.cfg.Container.Accessories {
		a.Identify()
	}

	w.WriteHeader(http.StatusNoContent)
}
