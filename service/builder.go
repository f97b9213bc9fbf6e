package service

import (
	"fmt"

	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/gen"
)

// Builder instantiates services and characteristics from the static
// catalog (component D), caching nothing itself — the catalog is already
// cached by gen.Default — so callers can use a fixture Catalog in tests.
type Builder struct {
	catalog *gen.Catalog
}

// NewBuilder wraps catalog for use by NewService/NewCharacteristic.
func NewBuilder(catalog *gen.Catalog) *Builder {
	return &Builder{catalog: catalog}
}

// NewCharacteristic instantiates a single characteristic by its catalog
// name (e.g. "Brightness"), applying its default constraints.
func (b *Builder) NewCharacteristic(name string) (*characteristic.Characteristic, error) {
	tmpl, ok := b.catalog.Characteristic(name)
	if !ok {
		return nil, fmt.Errorf("service: unknown characteristic %q", name)
	}

	c := characteristic.New(tmpl.UUID, characteristic.Format(tmpl.Format))
	c.Description = name
	for _, p := range tmpl.Perms {
		c.Perms = append(c.Perms, characteristic.Permission(p))
	}
	if tmpl.Unit != "" {
		c.Unit = characteristic.Unit(tmpl.Unit)
	}
	if tmpl.MinValue != nil {
		c.Constraints.MinValue = *tmpl.MinValue
	}
	if tmpl.MaxValue != nil {
		c.Constraints.MaxValue = *tmpl.MaxValue
	}
	if tmpl.StepValue != nil {
		c.Constraints.StepValue = *tmpl.StepValue
	}
	if tmpl.MaxLen != nil {
		c.Constraints.MaxLen = tmpl.MaxLen
	}
	if tmpl.ValidValues != nil {
		c.Constraints.ValidValues = tmpl.ValidValues
	}

	return c, nil
}

// NewService instantiates a service by its catalog name with all of its
// mandatory characteristics attached (component D's get_service).
func (b *Builder) NewService(name string) (*Service, error) {
	tmpl, ok := b.catalog.Service(name)
	if !ok {
		return nil, fmt.Errorf("service: unknown service %q", name)
	}

	s := New(tmpl.UUID)
	for _, charName := range tmpl.Required {
		c, err := b.NewCharacteristic(charName)
		if err != nil {
			return nil, err
		}
		s.AddCharacteristic(c)
	}
	return s, nil
}

// AddOptionalCharacteristic instantiates and attaches an optional member of
// the named service template by characteristic name.
func (b *Builder) AddOptionalCharacteristic(s *Service, serviceName, charName string) error {
	tmpl, ok := b.catalog.Service(serviceName)
	if !ok {
		return fmt.Errorf("service: unknown service %q", serviceName)
	}
	found := false
	for _, n := range tmpl.Optional {
		if n == charName {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("service: %q is not an optional characteristic of %q", charName, serviceName)
	}

	c, err := b.NewCharacteristic(charName)
	if err != nil {
		return err
	}
	s.AddCharacteristic(c)
	return nil
}
