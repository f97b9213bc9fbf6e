package db

import (
	"encoding/json"
	"fmt"
	"sync"
)

const iidManagerKey = "iids"

// IIDManager maps (aid, type, display name) to a stable iid across
// restarts.
// Accessory construction normally allocates iids monotonically in a fixed
// order (see accessory.New), which already yields restart-stable iids for
// the static AccessoryInformation block; this manager exists for the
// dynamic services an embedding program adds at runtime, where
// construction order is not guaranteed to repeat between process starts.
type IIDManager struct {
	mutex sync.Mutex
	store Store
	byKey map[string]uint64
	next  map[uint64]uint64 // next free iid per aid
}

type iidEntry struct {
	Aid         uint64 `json:"aid"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	IID         uint64 `json:"iid"`
}

// LoadIIDManager loads the persisted map, starting empty on first run.
func LoadIIDManager(store Store) (*IIDManager, error) {
	m := &IIDManager{store: store, byKey: map[string]uint64{}, next: map[uint64]uint64{}}

	raw, err := store.Get(iidManagerKey)
	if err == ErrNotFound {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: load iid manager: %w", err)
	}

	var entries []iidEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("db: decode iid manager: %w", err)
	}
	for _, e := range entries {
		m.byKey[m.key(e.Aid, e.Type, e.DisplayName)] = e.IID
		if e.IID >= m.next[e.Aid] {
			m.next[e.Aid] = e.IID + 1
		}
	}
	return m, nil
}

func (m *IIDManager) key(aid uint64, typ, displayName string) string {
	return fmt.Sprintf("%d/%s/%s", aid, typ, displayName)
}

// IIDFor returns the stable iid for (aid, type, displayName), allocating
// and persisting a fresh one (starting after whatever iids are already
// reserved for aid) the first time it's seen.
func (m *IIDManager) IIDFor(aid uint64, typ, displayName string, reserveFrom uint64) (uint64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	k := m.key(aid, typ, displayName)
	if iid, ok := m.byKey[k]; ok {
		return iid, nil
	}

	if m.next[aid] < reserveFrom {
		m.next[aid] = reserveFrom
	}
	iid := m.next[aid]
	m.next[aid] = iid + 1
	m.byKey[k] = iid

	if err := m.persistLocked(); err != nil {
		return 0, err
	}
	return iid, nil
}

func (m *IIDManager) persistLocked() error {
	entries := make([]iidEntry, 0, len(m.byKey))
	for k, iid := range m.byKey {
		var aid uint64
		var typ, name string
		fmt.Sscanf(k, "%d/", &aid)
		// Re-split manually since type/name may contain '/'.
		rest := k[len(fmt.Sprintf("%d/", aid)):]
		for i := 0; i < len(rest); i++ {
			if rest[i] == '/' {
				typ = rest[:i]
				name = rest[i+1:]
				break
			}
		}
		entries = append(entries, iidEntry{Aid: aid, Type: typ, DisplayName: name, IID: iid})
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("db: encode iid manager: %w", err)
	}
	if err := m.store.Set(iidManagerKey, raw); err != nil {
		return fmt.Errorf("db: persist iid manager: %w", err)
	}
	return nil
}
