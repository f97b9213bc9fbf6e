package server

import (
	"encoding/json"
	"net/http"
)

// handleAccessories serves GET /accessories: the full attribute database.
func (s *Server) handleAccessories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/hap+json")
	json.NewEncoder(w).Encode(s.cfg.Container.Serialize())
}
