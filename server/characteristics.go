package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/brutella/hap/characteristic"
)

type charID struct {
	Aid uint64
	Iid uint64
}

func parseIDs(raw string) ([]charID, bool) {
	var out []charID
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(pair, ".", 2)
		if len(parts) != 2 {
			return nil, false
		}
		aid, err1 := strconv.ParseUint(parts[0], 10, 64)
		iid, err2 := strconv.ParseUint(parts[1], 10, 64)
		if err1 != nil || err2 != nil {
			return nil, false
		}
		out = append(out, charID{Aid: aid, Iid: iid})
	}
	return out, true
}

// handleCharacteristics serves GET and PUT /characteristics: reads and
// writes against the attribute database, with HAP's partial-success
// semantics when a request names more than one characteristic.
func (s *Server) handleCharacteristics(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getCharacteristics(w, r)
	case http.MethodPut:
		s.putCharacteristics(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) getCharacteristics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ids, ok := parseIDs(q.Get("id"))
	if !ok || len(ids) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	cs := connStateFromContext(r.Context())

	opts := characteristic.JSONOptions{
		IncludeMeta:  q.Get("meta") == "1",
		IncludePerms: q.Get("perms") == "1",
		IncludeType:  q.Get("type") == "1",
		IncludeEvent: q.Get("ev") == "1",
	}

	type result struct {
		body   map[string]interface{}
		status characteristic.Status
	}
	results := make([]result, len(ids))
	anyError := false

	for i, id := range ids {
		a := s.cfg.Container.ByAid(id.Aid)
		if a == nil {
			results[i] = result{status: characteristic.StatusResourceDoesNotExist}
			anyError = true
			continue
		}
		c := a.CharacteristicByIID(id.Iid)
		if c == nil {
			results[i] = result{status: characteristic.StatusResourceDoesNotExist}
			anyError = true
			continue
		}
		if !c.HasPerm(characteristic.PermRead) {
			results[i] = result{status: characteristic.StatusNotPermitted}
			anyError = true
			continue
		}

		subscribed := false
		if cs != nil && cs.sess != nil {
			subscribed = s.cfg.Dispatcher.IsSubscribed(cs.sess, id.Aid, id.Iid)
		}
		results[i] = result{body: c.Serialize(id.Aid, opts, subscribed)}
	}

	out := make([]map[string]interface{}, len(results))
	for i, res := range results {
		if res.body != nil {
			out[i] = res.body
			continue
		}
		out[i] = map[string]interface{}{
			"aid":    ids[i].Aid,
			"iid":    ids[i].Iid,
			"status": int(res.status),
		}
	}

	w.Header().Set("Content-Type", "application/hap+json")
	if anyError {
		w.WriteHeader(http.StatusMultiStatus)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"characteristics": out})
}

type charWrite struct {
	Aid   uint64           `json:"aid"`
	Iid   uint64           `json:"iid"`
	Value *json.RawMessage `json:"value,omitempty"`
	Ev    *bool            `json:"ev,omitempty"`
	R     bool             `json:"r,omitempty"`
}

// charWriteBody is the PUT /characteristics request body. PID is a single
// top-level field, not per-entry: a timed write covers the whole request,
// matching the one-token-per-session bookkeeping in session.Session and
// the top-level PID prepareBody uses for PUT /prepare.
type charWriteBody struct {
	Characteristics []charWrite `json:"characteristics"`
	PID             *uint64     `json:"pid,omitempty"`
}

func (s *Server) putCharacteristics(w http.ResponseWriter, r *http.Request) {
	var body charWriteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	cs := connStateFromContext(r.Context())

	validPID := true
	if body.PID != nil {
		validPID = cs != nil && cs.sess != nil && cs.sess.ConsumePrepared(*body.PID)
	}

	type result struct {
		aid, iid  uint64
		status    characteristic.Status
		readBack  interface{}
		hasRead   bool
	}
	results := make([]result, len(body.Characteristics))
	anyError := false
	anyReadBack := false

	for i, w0 := range body.Characteristics {
		res := result{aid: w0.Aid, iid: w0.Iid}

		if !validPID {
			res.status = characteristic.StatusInvalidPID
			results[i] = res
			anyError = true
			continue
		}

		a := s.cfg.Container.ByAid(w0.Aid)
		var c *characteristic.Characteristic
		if a != nil {
			c = a.CharacteristicByIID(w0.Iid)
		}
		if c == nil {
			res.status = characteristic.StatusResourceDoesNotExist
			results[i] = res
			anyError = true
			continue
		}

		if w0.Ev != nil {
			if !c.HasPerm(characteristic.PermEvents) {
				res.status = characteristic.StatusNotPermitted
				results[i] = res
				anyError = true
				continue
			}
			if cs != nil && cs.sess != nil {
				s.cfg.Dispatcher.Subscribe(cs.sess, w0.Aid, w0.Iid, *w0.Ev)
			}
		}

		if w0.Value != nil {
			if !c.HasPerm(characteristic.PermWrite) {
				res.status = characteristic.StatusNotPermitted
				results[i] = res
				anyError = true
				continue
			}
			var v interface{}
			if err := json.Unmarshal(*w0.Value, &v); err != nil {
				res.status = characteristic.StatusInvalidValue
				results[i] = res
				anyError = true
				continue
			}

			var originator interface{}
			if cs != nil && cs.sess != nil {
				originator = cs.sess
			}
			coerced, err := c.ClientUpdateValue(v, originator)
			if err != nil {
				if cerr, ok := err.(*characteristic.Error); ok {
					res.status = cerr.Status
				} else {
					res.status = characteristic.StatusInvalidValue
				}
				results[i] = res
				anyError = true
				continue
			}

			if cs != nil && cs.sess != nil {
				s.cfg.Dispatcher.Publish(w0.Aid, w0.Iid, coerced, cs.sess)
			} else {
				s.cfg.Dispatcher.Publish(w0.Aid, w0.Iid, coerced, nil)
			}

			if w0.R && c.HasPerm(characteristic.PermWriteResponse) {
				res.readBack = coerced
				res.hasRead = true
				anyReadBack = true
			}
		}

		results[i] = res
	}

	if !anyError && !anyReadBack {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	out := make([]map[string]interface{}, len(results))
	for i, res := range results {
		item := map[string]interface{}{"aid": res.aid, "iid": res.iid}
		if res.status != characteristic.StatusSuccess {
			item["status"] = int(res.status)
		} else {
			item["status"] = int(characteristic.StatusSuccess)
		}
		if res.hasRead {
			item["value"] = res.readBack
		}
		out[i] = item
	}

	w.Header().Set("Content-Type", "application/hap+json")
	if anyError {
		w.WriteHeader(http.StatusMultiStatus)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"characteristics": out})
}
