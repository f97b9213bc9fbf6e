package db

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
)

// Permission is the controller's authorization level within the pairing
// registry: only admins may add/remove/list other pairings.
type Permission int

const (
	PermUser Permission = iota
	PermAdmin
)

// Controller is a single paired controller's persisted tuple.
type Controller struct {
	Username   string     `json:"username"`
	PublicKey  []byte     `json:"public_key"`
	Permission Permission `json:"permission"`
}

// LTPK returns the controller's long-term Ed25519 public key.
func (c Controller) LTPK() ed25519.PublicKey { return ed25519.PublicKey(c.PublicKey) }

// Pairings is the in-memory, persisted registry of every paired controller.
// A single mutex serializes all mutation and persistence, so adding one
// controller can never race with removing another or with a concurrent
// persist.
type Pairings struct {
	mutex       sync.Mutex
	store       Store
	controllers map[string]Controller
	onChange    func(hasAdmin bool)
}

// SetOnChange registers fn to be called, with the registry's current
// HasAdmin state, after every successful Add or Remove. Used to keep mDNS
// advertisement and live sessions in sync with pairing state without this
// package depending on either.
func (p *Pairings) SetOnChange(fn func(hasAdmin bool)) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.onChange = fn
}

func (p *Pairings) notifyChangeLocked() {
	if p.onChange == nil {
		return
	}
	hasAdmin := false
	for _, c := range p.controllers {
		if c.Permission == PermAdmin {
			hasAdmin = true
			break
		}
	}
	fn := p.onChange
	go fn(hasAdmin)
}

const pairingsKey = "pairings"

// LoadPairings loads the persisted registry, or starts empty on first run.
func LoadPairings(store Store) (*Pairings, error) {
	p := &Pairings{store: store, controllers: map[string]Controller{}}

	raw, err := store.Get(pairingsKey)
	if err == ErrNotFound {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: load pairings: %w", err)
	}

	var records []pairingRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("db: decode pairings: %w", err)
	}
	for _, r := range records {
		pub, err := base64.StdEncoding.DecodeString(r.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("db: decode pairing public key: %w", err)
		}
		p.controllers[r.Username] = Controller{Username: r.Username, PublicKey: pub, Permission: Permission(r.Permission)}
	}
	return p, nil
}

type pairingRecord struct {
	Username   string `json:"username"`
	PublicKey  string `json:"public_key"`
	Permission int    `json:"permission"`
}

// IsEmpty reports whether no controller is currently paired.
func (p *Pairings) IsEmpty() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.controllers) == 0
}

// HasAdmin reports whether an admin controller is already paired; pair-setup
// is only permitted while this is false (the pair-setup M1 "already paired"
// check).
func (p *Pairings) HasAdmin() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, c := range p.controllers {
		if c.Permission == PermAdmin {
			return true
		}
	}
	return false
}

// Get looks up a controller by username.
func (p *Pairings) Get(username string) (Controller, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	c, ok := p.controllers[username]
	return c, ok
}

// Add persists a new controller, making it admin if it is the very first
// one ever paired.
func (p *Pairings) Add(username string, pub ed25519.PublicKey, perm Permission) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.controllers) == 0 {
		perm = PermAdmin
	}
	p.controllers[username] = Controller{Username: username, PublicKey: []byte(pub), Permission: perm}
	if err := p.persistLocked(); err != nil {
		return err
	}
	p.notifyChangeLocked()
	return nil
}

// Remove deletes a controller by username. If the removed controller was
// the only paired admin, the entire registry is wiped (scenario 6: removing
// the last admin resets the server to an unpaired state).
func (p *Pairings) Remove(username string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	delete(p.controllers, username)

	hasAdmin := false
	for _, c := range p.controllers {
		if c.Permission == PermAdmin {
			hasAdmin = true
			break
		}
	}
	if !hasAdmin {
		p.controllers = map[string]Controller{}
	}
	if err := p.persistLocked(); err != nil {
		return err
	}
	p.notifyChangeLocked()
	return nil
}

// List returns every paired controller, in no particular order.
func (p *Pairings) List() []Controller {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	out := make([]Controller, 0, len(p.controllers))
	for _, c := range p.controllers {
		out = append(out, c)
	}
	return out
}

// Count returns the number of paired controllers.
func (p *Pairings) Count() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.controllers)
}

func (p *Pairings) persistLocked() error {
	records := make([]pairingRecord, 0, len(p.controllers))
	for _, c := range p.controllers {
		records = append(records, pairingRecord{
			Username:   c.Username,
			PublicKey:  base64.StdEncoding.EncodeToString(c.PublicKey),
			Permission: int(c.Permission),
		})
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("db: encode pairings: %w", err)
	}
	if err := p.store.Set(pairingsKey, raw); err != nil {
		return fmt.Errorf("db: persist pairings: %w", err)
	}
	return nil
}
