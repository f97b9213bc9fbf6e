package pair

import (
	"fmt"

	"github.com/brutella/hap/db"
	"github.com/brutella/hap/tlv8"
)

// PairingsController implements the admin-only POST /pairings operations:
// add, remove and list paired controllers.
type PairingsController struct {
	pairings *db.Pairings
}

// NewPairingsController wraps the persisted registry for /pairings use.
func NewPairingsController(pairings *db.Pairings) *PairingsController {
	return &PairingsController{pairings: pairings}
}

// ErrNotAdmin is returned when a non-admin controller attempts a mutating
// /pairings operation.
var ErrNotAdmin = fmt.Errorf("pair: caller is not an admin")

// Handle dispatches a decoded /pairings request body on behalf of
// requester, returning the TLV8 response body.
func (pc *PairingsController) Handle(requester string, items []tlv8.Item) ([]tlv8.Item, error) {
	method, ok := tlv8.GetByte(items, TagMethod)
	if !ok {
		return nil, fmt.Errorf("pair: /pairings missing method")
	}

	caller, found := pc.pairings.Get(requester)
	if !found || caller.Permission != db.PermAdmin {
		if Method(method) != MethodListPairings {
			return nil, ErrNotAdmin
		}
		// list-pairings is admin-only too: no non-admin exception is carved
		// out, so every method on this endpoint requires the admin check
		// above to have passed.
		return nil, ErrNotAdmin
	}

	switch Method(method) {
	case MethodAddPairing:
		return pc.add(items)
	case MethodRemovePairing:
		return pc.remove(items)
	case MethodListPairings:
		return pc.list()
	default:
		return nil, fmt.Errorf("pair: /pairings unknown method %d", method)
	}
}

func (pc *PairingsController) add(items []tlv8.Item) ([]tlv8.Item, error) {
	username, ok := tlv8.Get(items, TagIdentifier)
	if !ok {
		return nil, fmt.Errorf("pair: add-pairing missing identifier")
	}
	ltpk, ok := tlv8.Get(items, TagPublicKey)
	if !ok {
		return nil, fmt.Errorf("pair: add-pairing missing public key")
	}
	permByte, _ := tlv8.GetByte(items, TagPermissions)

	perm := db.PermUser
	if permByte == 0x01 {
		perm = db.PermAdmin
	}

	if err := pc.pairings.Add(string(username), ltpk, perm); err != nil {
		return nil, err
	}

	return []tlv8.Item{{Tag: TagState, Value: []byte{byte(StateM2)}}}, nil
}

func (pc *PairingsController) remove(items []tlv8.Item) ([]tlv8.Item, error) {
	username, ok := tlv8.Get(items, TagIdentifier)
	if !ok {
		return nil, fmt.Errorf("pair: remove-pairing missing identifier")
	}
	if err := pc.pairings.Remove(string(username)); err != nil {
		return nil, err
	}
	return []tlv8.Item{{Tag: TagState, Value: []byte{byte(StateM2)}}}, nil
}

func (pc *PairingsController) list() ([]tlv8.Item, error) {
	out := []tlv8.Item{{Tag: TagState, Value: []byte{byte(StateM2)}}}
	for _, c := range pc.pairings.List() {
		perm := byte(0x00)
		if c.Permission == db.PermAdmin {
			perm = 0x01
		}
		out = append(out,
			tlv8.Item{Tag: TagIdentifier, Value: []byte(c.Username)},
			tlv8.Item{Tag: TagPublicKey, Value: c.PublicKey},
			tlv8.Item{Tag: TagPermissions, Value: []byte{perm}},
		)
	}
	return out, nil
}
