// Package characteristic implements the typed, permissioned attribute model
// described by the HAP attribute tree: the leaf nodes that carry actual
// values, constraints, and read/write/notify semantics.
package characteristic

import (
	"fmt"
	"sync"
)

// Format enumerates the wire formats a characteristic value may take.
type Format string

const (
	FormatBool    Format = "bool"
	FormatUint8   Format = "uint8"
	FormatUint16  Format = "uint16"
	FormatUint32  Format = "uint32"
	FormatUint64  Format = "uint64"
	FormatInt32   Format = "int"
	FormatFloat   Format = "float"
	FormatString  Format = "string"
	FormatTLV8    Format = "tlv8"
	FormatData    Format = "data"
)

// Permission enumerates the access flags a characteristic may carry.
type Permission string

const (
	PermRead                   Permission = "pr"
	PermWrite                  Permission = "pw"
	PermEvents                 Permission = "ev"
	PermHidden                 Permission = "hd"
	PermAdditionalAuthorization Permission = "aa"
	PermTimedWrite             Permission = "tw"
	PermWriteResponse          Permission = "wr"
)

// Unit enumerates the optional physical unit hint for numeric characteristics.
type Unit string

const (
	UnitCelsius    Unit = "celsius"
	UnitPercentage Unit = "percentage"
	UnitArcDegrees Unit = "arcdegrees"
	UnitLux        Unit = "lux"
	UnitSeconds    Unit = "seconds"
)

// Status is a per-characteristic HAP result code.
type Status int

const (
	StatusSuccess                  Status = 0
	StatusNotPermitted             Status = -70401
	StatusResourceBusy             Status = -70402
	StatusCannotNow                Status = -70403
	StatusOutOfResources           Status = -70404
	StatusOperationTimedOut        Status = -70405
	StatusResourceDoesNotExist     Status = -70406
	StatusInvalidValue             Status = -70407
	StatusInsufficientAuthorization Status = -70408
	StatusInvalidPID               Status = -70410
)

// Error reports a coercion/write failure as a Status code, carried through
// the per-characteristic partial-success machinery of the HAP handlers.
type Error struct {
	Status Status
	Msg    string
}

func (e *Error) Error() string { return fmt.Sprintf("characteristic: %s (status %d)", e.Msg, e.Status) }

// GetFunc is invoked when a read-permitted characteristic's value is
// fetched; it may run synchronously or return an error if unavailable.
type GetFunc func() (interface{}, error)

// SetFunc is invoked after ClientUpdateValue has coerced a new value and
// before it is stored; it may reject the write by returning an error, in
// which case the value is not stored.
type SetFunc func(value interface{}) error

// ValueUpdateFunc is notified whenever a value changes, whether the change
// originated at the server (via SetValue) or a client (via ClientUpdateValue,
// in which case conn identifies the originating session so it can be
// excluded from fan-out).
type ValueUpdateFunc func(c *Characteristic, newValue, oldValue interface{}, conn interface{})

// Constraints bounds and enumerates the legal values for a characteristic.
type Constraints struct {
	MinValue        interface{}
	MaxValue        interface{}
	StepValue       interface{}
	MaxLen          *int
	MaxDataLen      *int
	ValidValues     []int
	ValidValuesRange []int
}

// Characteristic is a typed, permissioned attribute of a Service.
type Characteristic struct {
	IID         uint64
	Type        string
	Format      Format
	Perms       []Permission
	Description string
	Unit        Unit
	Constraints Constraints

	mutex sync.RWMutex
	value interface{}

	getter GetFunc
	setter SetFunc

	onUpdate     []ValueUpdateFunc
	onUpdateConn []ValueUpdateFunc
}

// New creates a characteristic of the given HAP type and format.
func New(typ string, format Format) *Characteristic {
	return &Characteristic{Type: typ, Format: format}
}

// HasPerm reports whether the characteristic declares permission p.
func (c *Characteristic) HasPerm(p Permission) bool {
	for _, perm := range c.Perms {
		if perm == p {
			return true
		}
	}
	return false
}

// Value returns the current stored value, calling the getter callback first
// if one is registered.
func (c *Characteristic) Value() (interface{}, error) {
	c.mutex.RLock()
	getter := c.getter
	c.mutex.RUnlock()

	if getter != nil {
		v, err := getter()
		if err != nil {
			return nil, err
		}
		c.mutex.Lock()
		c.value = v
		c.mutex.Unlock()
		return v, nil
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.value, nil
}

// ValueOrNil is Value without error handling, used by serialization paths
// that have already established read permission.
func (c *Characteristic) ValueOrNil() interface{} {
	v, _ := c.Value()
	return v
}

// OnValueUpdate registers a callback fired for server-originated changes.
func (c *Characteristic) OnValueUpdate(fn ValueUpdateFunc) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onUpdate = append(c.onUpdate, fn)
}

// OnValueUpdateFromConn registers a callback fired for client-originated
// changes, receiving the originating session identifier.
func (c *Characteristic) OnValueUpdateFromConn(fn ValueUpdateFunc) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onUpdateConn = append(c.onUpdateConn, fn)
}

// SetGetFunc installs the read callback.
func (c *Characteristic) SetGetFunc(fn GetFunc) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.getter = fn
}

// SetSetFunc installs the write callback, invoked by ClientUpdateValue after
// coercion.
func (c *Characteristic) SetSetFunc(fn SetFunc) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.setter = fn
}

// SetValue is the server-originated update path: it stores v verbatim
// (coercion is the server author's responsibility, since the server itself
// is the typed source) and fires the OnValueUpdate callbacks, through which
// hap.NewServer publishes the change to every subscriber, including the
// caller's own session if any.
func (c *Characteristic) SetValue(v interface{}) {
	c.mutex.Lock()
	old := c.value
	c.value = v
	listeners := append([]ValueUpdateFunc(nil), c.onUpdate...)
	c.mutex.Unlock()

	for _, fn := range listeners {
		fn(c, v, old, nil)
	}
}

// ClientUpdateValue is the controller-originated write path: it coerces v
// against the characteristic's format and constraints, invokes the setter
// callback (if any), stores the coerced value, and fires events to every
// subscriber except conn, the originating session.
func (c *Characteristic) ClientUpdateValue(v interface{}, conn interface{}) (interface{}, error) {
	coerced, err := Coerce(v, c.Format, c.Constraints)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	setter := c.setter
	c.mutex.Unlock()

	if setter != nil {
		if err := setter(coerced); err != nil {
			return nil, err
		}
	}

	c.mutex.Lock()
	old := c.value
	c.value = coerced
	connListeners := append([]ValueUpdateFunc(nil), c.onUpdateConn...)
	c.mutex.Unlock()

	for _, fn := range connListeners {
		fn(c, coerced, old, conn)
	}

	return coerced, nil
}
