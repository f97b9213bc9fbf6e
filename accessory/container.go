package accessory

import (
	"fmt"
	"sort"

	"github.com/brutella/hap/characteristic"
)

// Container owns every accessory a server exposes and assigns stable aids:
// 1 for the primary/bridge accessory, 2.. for the rest in the order they
// were added — generalized to track structural changes for mDNS, and
// from "first is bridge" to an explicit IsBridge flag.
type Container struct {
	Accessories []*Accessory
	IsBridge    bool

	nextAid uint64
}

// NewContainer creates an empty container. The first accessory added via
// AddAccessory becomes aid 1.
func NewContainer() *Container {
	return &Container{nextAid: 1}
}

// AddAccessory assigns the next aid and appends a.
func (ct *Container) AddAccessory(a *Accessory) {
	a.Aid = ct.nextAid
	ct.nextAid++
	ct.Accessories = append(ct.Accessories, a)
}

// ByAid finds the accessory with the given aid.
func (ct *Container) ByAid(aid uint64) *Accessory {
	for _, a := range ct.Accessories {
		if a.Aid == aid {
			return a
		}
	}
	return nil
}

// Serialize renders every accessory for GET /accessories, in aid order.
func (ct *Container) Serialize() map[string]interface{} {
	out := make([]map[string]interface{}, len(ct.Accessories))
	for i, a := range ct.Accessories {
		out[i] = a.Serialize()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["aid"].(uint64) < out[j]["aid"].(uint64)
	})
	return map[string]interface{}{"accessories": out}
}

// StructuralDigest returns a byte slice capturing everything about topology
// that should bump the config version when it changes: aids, iids, types,
// formats, perms and constraints — but never characteristic values. See
// mdns.Advertiser.
func (ct *Container) StructuralDigest() []byte {
	var buf []byte
	for _, a := range ct.Accessories {
		buf = append(buf, digestUint(a.Aid)...)
		for _, s := range a.Services {
			buf = append(buf, digestUint(s.IID)...)
			buf = append(buf, s.Type...)
			for _, c := range s.Characteristics {
				buf = append(buf, digestUint(c.IID)...)
				buf = append(buf, c.Type...)
				buf = append(buf, string(c.Format)...)
				for _, p := range c.Perms {
					buf = append(buf, string(p)...)
				}
				buf = append(buf, digestConstraint(c)...)
			}
		}
	}
	return buf
}

func digestUint(v uint64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}

func digestConstraint(c *characteristic.Characteristic) []byte {
	return []byte(fmt.Sprintf("%v|%v|%v|%v|%v|%v",
		c.Constraints.MinValue, c.Constraints.MaxValue, c.Constraints.StepValue,
		c.Constraints.MaxLen, c.Constraints.ValidValues, c.Constraints.ValidValuesRange))
}
