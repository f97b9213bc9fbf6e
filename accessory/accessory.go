// Package accessory implements the top-level unit exposed to HomeKit: a
// collection of Services under an accessory id (aid), plus the special
// Bridge container that multiplexes many accessories behind one paired
// connection.
package accessory

import (
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/db"
	"github.com/brutella/hap/service"
)

// Category is the icon hint HomeKit uses to choose a default icon/behavior.
type Category int

const (
	CategoryOther       Category = 1
	CategoryBridge      Category = 2
	CategoryFan         Category = 3
	CategoryGarageDoor  Category = 4
	CategoryLightbulb   Category = 5
	CategoryDoorLock    Category = 6
	CategoryOutlet      Category = 7
	CategorySwitch      Category = 8
	CategoryThermostat  Category = 9
	CategorySensor      Category = 10
	CategorySecuritySystem Category = 11
	CategoryCamera      Category = 17
)

// Well-known HAP UUIDs for the mandatory AccessoryInformation service.
const (
	TypeAccessoryInformation = "3E"

	TypeIdentify         = "14"
	TypeManufacturer     = "20"
	TypeModel            = "21"
	TypeName             = "23"
	TypeSerialNumber     = "30"
	TypeFirmwareRevision = "52"
)

// Info bundles the identifying strings every accessory must expose via its
// AccessoryInformation service.
type Info struct {
	Name             string
	Manufacturer     string
	Model            string
	SerialNumber     string
	FirmwareRevision string
}

// IdentifyFunc is invoked when a controller calls POST /identify (pre-pair)
// or writes to Identify (post-pair).
type IdentifyFunc func()

// Accessory is a unit of the HAP attribute tree: an aid and an ordered list
// of services, always beginning with AccessoryInformation at iid 1.
type Accessory struct {
	Aid      uint64
	Category Category
	Services []*service.Service

	Info *service.Service

	idents  []IdentifyFunc
	iidNext uint64
	iids    *db.IIDManager
}

// SetIIDManager attaches mgr so every later AddService call resolves its
// iids through it instead of the bare in-memory counter. a.Aid must already
// be set (i.e. a has been added to its Container) for this to take effect,
// since the manager keys on aid; until then AddService falls back to the
// monotonic counter exactly as if no manager were attached. This gives
// services and characteristics added at runtime a restart-stable iid, which
// the fixed layout New already gives the static AccessoryInformation block.
func (a *Accessory) SetIIDManager(mgr *db.IIDManager) {
	a.iids = mgr
}

// New creates an accessory whose first service is AccessoryInformation,
// with Identify=2, Manufacturer=3, Model=4, Name=5, SerialNumber=6,
// FirmwareRevision=7 — the fixed iid layout HomeKit controllers expect for
// end-to-end scenario 2.
func New(info Info, category Category) *Accessory {
	a := &Accessory{Category: category, iidNext: 1}

	infoSvc := service.New(TypeAccessoryInformation)
	infoSvc.IID = a.nextIID()
	a.Info = infoSvc

	identify := characteristic.New(TypeIdentify, characteristic.FormatBool)
	identify.IID = a.nextIID()
	identify.Perms = []characteristic.Permission{characteristic.PermWrite}
	infoSvc.AddCharacteristic(identify)

	manufacturer := newStringChar(a, TypeManufacturer, info.Manufacturer)
	infoSvc.AddCharacteristic(manufacturer)

	model := newStringChar(a, TypeModel, info.Model)
	infoSvc.AddCharacteristic(model)

	name := newStringChar(a, TypeName, info.Name)
	infoSvc.AddCharacteristic(name)

	serial := newStringChar(a, TypeSerialNumber, info.SerialNumber)
	infoSvc.AddCharacteristic(serial)

	firmware := newStringChar(a, TypeFirmwareRevision, info.FirmwareRevision)
	infoSvc.AddCharacteristic(firmware)

	identify.SetSetFunc(func(v interface{}) error {
		if b, ok := v.(bool); ok && b {
			a.fireIdentify()
		}
		return nil
	})

	a.Services = append(a.Services, infoSvc)
	return a
}

func newStringChar(a *Accessory, typ, value string) *characteristic.Characteristic {
	c := characteristic.New(typ, characteristic.FormatString)
	c.IID = a.nextIID()
	c.Perms = []characteristic.Permission{characteristic.PermRead}
	c.SetValue(value)
	return c
}

func (a *Accessory) nextIID() uint64 {
	iid := a.iidNext
	a.iidNext++
	return iid
}

// AddService appends a service, assigning it (and its characteristics)
// iids. With an IIDManager attached (see SetIIDManager) and a.Aid already
// set, iids are resolved through it and stay stable across restarts even if
// services are added in a different order next time; otherwise they're
// assigned fresh from the monotonic counter, as before.
func (a *Accessory) AddService(s *service.Service) {
	if a.iids != nil && a.Aid != 0 {
		name := serviceDisplayName(s)
		if iid, err := a.iids.IIDFor(a.Aid, s.Type, name, a.iidNext); err == nil {
			s.IID = iid
			a.bumpIIDNext(iid)
			for _, c := range s.Characteristics {
				if cIID, err := a.iids.IIDFor(a.Aid, s.Type+"/"+c.Type, name, a.iidNext); err == nil {
					c.IID = cIID
					a.bumpIIDNext(cIID)
					continue
				}
				c.IID = a.nextIID()
			}
			a.Services = append(a.Services, s)
			return
		}
	}

	s.IID = a.nextIID()
	for _, c := range s.Characteristics {
		c.IID = a.nextIID()
	}
	a.Services = append(a.Services, s)
}

func (a *Accessory) bumpIIDNext(iid uint64) {
	if iid >= a.iidNext {
		a.iidNext = iid + 1
	}
}

// serviceDisplayName returns s's Name characteristic value, if it has one,
// so the iid manager's key distinguishes two services of the same type on
// the same accessory (e.g. two Lightbulb services on one bridge fixture).
func serviceDisplayName(s *service.Service) string {
	c := s.CharacteristicByType(TypeName)
	if c == nil {
		return ""
	}
	if v, ok := c.ValueOrNil().(string); ok {
		return v
	}
	return ""
}

// OnIdentify registers fn to run when this accessory is identified.
func (a *Accessory) OnIdentify(fn IdentifyFunc) {
	a.idents = append(a.idents, fn)
}

func (a *Accessory) fireIdentify() {
	for _, fn := range a.idents {
		fn()
	}
}

// Identify runs every registered identify callback directly, used by
// POST /identify (the pre-pair identification path, which bypasses the
// Identify characteristic write used post-pair).
func (a *Accessory) Identify() {
	a.fireIdentify()
}

// ServiceByType returns the first service of the given HAP type, or nil.
func (a *Accessory) ServiceByType(typ string) *service.Service {
	for _, s := range a.Services {
		if s.Type == typ {
			return s
		}
	}
	return nil
}

// CharacteristicByIID searches every service for a characteristic with the
// given iid.
func (a *Accessory) CharacteristicByIID(iid uint64) *characteristic.Characteristic {
	for _, s := range a.Services {
		for _, c := range s.Characteristics {
			if c.IID == iid {
				return c
			}
		}
	}
	return nil
}

// Serialize renders the accessory as a HAP JSON object for GET /accessories.
func (a *Accessory) Serialize() map[string]interface{} {
	services := make([]map[string]interface{}, len(a.Services))
	for i, s := range a.Services {
		services[i] = s.Serialize(a.Aid)
	}
	return map[string]interface{}{
		"aid":      a.Aid,
		"services": services,
	}
}
