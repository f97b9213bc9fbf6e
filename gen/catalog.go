// Package gen loads the static Apple-defined service/characteristic type
// catalog. The catalog itself is loadable data rather than hand-maintained
// Go source, embedded here as JSON and parsed lazily, once, process-wide —
// a process-wide global-cache loader, but behind an injectable handle so
// tests can substitute a fixture.
package gen

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
)

//go:embed characteristics.json
var characteristicsJSON []byte

//go:embed services.json
var servicesJSON []byte

// CharacteristicTemplate is one entry of the characteristic catalog.
type CharacteristicTemplate struct {
	UUID        string   `json:"uuid"`
	Format      string   `json:"format"`
	Perms       []string `json:"perms"`
	Unit        string   `json:"unit,omitempty"`
	MinValue    *float64 `json:"min_value,omitempty"`
	MaxValue    *float64 `json:"max_value,omitempty"`
	StepValue   *float64 `json:"step_value,omitempty"`
	MaxLen      *int     `json:"max_len,omitempty"`
	ValidValues []int    `json:"valid_values,omitempty"`
}

// ServiceTemplate is one entry of the service catalog: its UUID plus the
// names of characteristics (looked up in the characteristic catalog) that
// are required or optional members.
type ServiceTemplate struct {
	UUID     string   `json:"uuid"`
	Required []string `json:"required"`
	Optional []string `json:"optional"`
}

// Catalog is an injectable handle over the loaded service/characteristic
// templates, rather than a bare package global, so a test can swap it out.
type Catalog struct {
	Characteristics map[string]CharacteristicTemplate
	Services        map[string]ServiceTemplate
}

var (
	once    sync.Once
	cached  *Catalog
	loadErr error
)

// Default returns the process-wide catalog parsed from the embedded JSON,
// loading it lazily on first use and caching the result thereafter.
func Default() (*Catalog, error) {
	once.Do(func() {
		cached, loadErr = parse(characteristicsJSON, servicesJSON)
	})
	return cached, loadErr
}

// Load parses an arbitrary pair of catalog JSON documents, for tests that
// want a fixture catalog instead of the embedded default.
func Load(characteristics, services []byte) (*Catalog, error) {
	return parse(characteristics, services)
}

func parse(characteristics, services []byte) (*Catalog, error) {
	var chars map[string]CharacteristicTemplate
	if err := json.Unmarshal(characteristics, &chars); err != nil {
		return nil, fmt.Errorf("gen: parse characteristic catalog: %w", err)
	}

	var svcs map[string]ServiceTemplate
	if err := json.Unmarshal(services, &svcs); err != nil {
		return nil, fmt.Errorf("gen: parse service catalog: %w", err)
	}

	return &Catalog{Characteristics: chars, Services: svcs}, nil
}

// Characteristic looks up a characteristic template by its catalog name.
func (c *Catalog) Characteristic(name string) (CharacteristicTemplate, bool) {
	t, ok := c.Characteristics[name]
	return t, ok
}

// Service looks up a service template by its catalog name.
func (c *Catalog) Service(name string) (ServiceTemplate, bool) {
	t, ok := c.Services[name]
	return t, ok
}
