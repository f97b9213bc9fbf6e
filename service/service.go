// Package service implements the named grouping of characteristics that
// sits between an Accessory and its Characteristics in the HAP attribute
// tree.
package service

import "github.com/brutella/hap/characteristic"

// Service groups related characteristics under a single HAP service type.
type Service struct {
	IID             uint64
	Type            string
	Primary         bool
	Hidden          bool
	Linked          []uint64
	Characteristics []*characteristic.Characteristic
}

// New creates an empty service of the given type.
func New(typ string) *Service {
	return &Service{Type: typ}
}

// AddCharacteristic appends c to the service.
func (s *Service) AddCharacteristic(c *characteristic.Characteristic) {
	s.Characteristics = append(s.Characteristics, c)
}

// CharacteristicByType returns the first characteristic of the given HAP
// type, or nil.
func (s *Service) CharacteristicByType(typ string) *characteristic.Characteristic {
	for _, c := range s.Characteristics {
		if c.Type == typ {
			return c
		}
	}
	return nil
}

// Serialize renders the service (and its characteristics) as a HAP JSON
// object for GET /accessories.
func (s *Service) Serialize(aid uint64) map[string]interface{} {
	chars := make([]map[string]interface{}, len(s.Characteristics))
	for i, c := range s.Characteristics {
		chars[i] = c.FullJSON(aid)
	}

	out := map[string]interface{}{
		"iid":             s.IID,
		"type":            s.Type,
		"characteristics": chars,
	}
	if s.Primary {
		out["primary"] = true
	}
	if s.Hidden {
		out["hidden"] = true
	}
	if len(s.Linked) > 0 {
		out["linked"] = s.Linked
	}
	return out
}
