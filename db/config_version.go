package db

import (
	"encoding/binary"
	"fmt"
	"sync"
)

const configVersionKey = "config_version"

// ConfigVersion is the persisted, monotonically increasing c# counter. It
// only advances when accessory topology changes, never for value-only
// changes, never on a value-only characteristic write.
type ConfigVersion struct {
	mutex sync.Mutex
	store Store
	value uint32
}

// LoadConfigVersion loads the persisted counter, defaulting to 1 on first
// run (mirrors HAP's s#=1 state number convention: c# also starts at 1).
func LoadConfigVersion(store Store) (*ConfigVersion, error) {
	cv := &ConfigVersion{store: store, value: 1}

	raw, err := store.Get(configVersionKey)
	if err == ErrNotFound {
		if err := cv.persistLocked(); err != nil {
			return nil, err
		}
		return cv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: load config version: %w", err)
	}
	if len(raw) != 4 {
		return nil, fmt.Errorf("db: corrupt config version record")
	}
	cv.value = binary.BigEndian.Uint32(raw)
	return cv, nil
}

// Value returns the current counter.
func (cv *ConfigVersion) Value() uint32 {
	cv.mutex.Lock()
	defer cv.mutex.Unlock()
	return cv.value
}

// Bump increments and persists the counter, wrapping a 32-bit overflow back
// to 1 rather than 0 (0 is not a valid c# per the HAP TXT record contract).
func (cv *ConfigVersion) Bump() (uint32, error) {
	cv.mutex.Lock()
	defer cv.mutex.Unlock()

	cv.value++
	if cv.value == 0 {
		cv.value = 1
	}
	if err := cv.persistLocked(); err != nil {
		return 0, err
	}
	return cv.value, nil
}

func (cv *ConfigVersion) persistLocked() error {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint32(raw, cv.value)
	if err := cv.store.Set(configVersionKey, raw); err != nil {
		return fmt.Errorf("db: persist config version: %w", err)
	}
	return nil
}
