package tree

import (
	"fmt"
	"reflect"
	"sync"
)

// EventingMode is a state variable's `sendEvents` policy (spec.md §3:
// "eventing = {no, yes, multicast}"). UDA multicast eventing still fans a
// change out through GENA's ordinary per-subscriber NOTIFY path here
// (spec.md §1 scopes multicast UDP delivery out as a non-goal beyond
// SSDP); the mode is tracked so a caller inspecting the tree — or a future
// multicast delivery path — can tell a multicast-declared variable apart
// from a plain evented one instead of losing that distinction at parse
// time.
type EventingMode int

const (
	EventingNone EventingMode = iota
	EventingUnicast
	EventingMulticast
)

func (m EventingMode) String() string {
	switch m {
	case EventingUnicast:
		return "yes"
	case EventingMulticast:
		return "multicast"
	default:
		return "no"
	}
}

// StateVariable is the immutable descriptor of a service's state variable:
// its type, constraints, and eventing policy. The mutable value lives in a
// separate valueCell so the descriptor can be shared read-only.
type StateVariable struct {
	name          string
	varType       StateVarType
	eventing      EventingMode
	defaultValue  interface{}
	valueRange    *ValueRange
	allowedValues []interface{}
	description   string
}

func NewStateVariable(name string, t StateVarType) *StateVariable {
	return &StateVariable{name: name, varType: t}
}

func (v *StateVariable) Name() string       { return v.name }
func (v *StateVariable) Type() StateVarType { return v.varType }

// Eventing returns the variable's full three-valued eventing mode.
func (v *StateVariable) Eventing() EventingMode { return v.eventing }

// SetEventing sets the variable's eventing mode.
func (v *StateVariable) SetEventing(m EventingMode) { v.eventing = m }

// IsEvented reports whether this variable emits GENA NOTIFYs at all — true
// for both EventingUnicast and EventingMulticast (spec.md §3: "evented
// flag = disjunction of evented state variables").
func (v *StateVariable) IsEvented() bool { return v.eventing != EventingNone }

// IsMulticastEvented reports whether this variable was declared
// sendEvents="multicast" specifically.
func (v *StateVariable) IsMulticastEvented() bool { return v.eventing == EventingMulticast }

// SetEvented is a convenience for callers that only need the two-valued
// on/off distinction; it maps true to EventingUnicast.
func (v *StateVariable) SetEvented(e bool) {
	if e {
		v.eventing = EventingUnicast
	} else {
		v.eventing = EventingNone
	}
}

func (v *StateVariable) Description() string          { return v.description }
func (v *StateVariable) SetDescription(d string)      { v.description = d }
func (v *StateVariable) Range() *ValueRange           { return v.valueRange }
func (v *StateVariable) AllowedValues() []interface{} { return v.allowedValues }

func (v *StateVariable) SetDefault(value interface{}) error {
	cv, err := v.varType.Cast(value)
	if err != nil {
		return fmt.Errorf("%s: invalid default value: %w", v.name, err)
	}
	v.defaultValue = cv
	return nil
}

func (v *StateVariable) DefaultValue() interface{} {
	if v.defaultValue != nil {
		return v.defaultValue
	}
	return zeroValue(v.varType)
}

func (v *StateVariable) SetRange(min, max interface{}) error {
	r, err := NewValueRange(v.varType, min, max)
	if err != nil {
		return fmt.Errorf("%s: %w", v.name, err)
	}
	v.valueRange = r
	return nil
}

func (v *StateVariable) SetAllowedValues(values ...interface{}) error {
	cast := make([]interface{}, 0, len(values))
	for _, val := range values {
		cv, err := v.varType.Cast(val)
		if err != nil {
			return fmt.Errorf("%s: invalid allowed value %v: %w", v.name, val, err)
		}
		cast = append(cast, cv)
	}
	v.allowedValues = cast
	return nil
}

// Validate checks value (already expected to be of the right Go
// representation per Cast) against the range and allowed-value constraints.
func (v *StateVariable) Validate(value interface{}) error {
	if v.valueRange != nil {
		ok, err := v.varType.InRange(value, v.valueRange)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: value %v out of range [%v,%v]", v.name, value, v.valueRange.min, v.valueRange.max)
		}
	}
	if len(v.allowedValues) > 0 {
		found := false
		for _, allowed := range v.allowedValues {
			if reflect.DeepEqual(allowed, value) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: value %v not in allowed value list", v.name, value)
		}
	}
	return nil
}

func zeroValue(t StateVarType) interface{} {
	switch t {
	case TypeUI1:
		return uint8(0)
	case TypeUI2:
		return uint16(0)
	case TypeUI4:
		return uint32(0)
	case TypeI1:
		return int8(0)
	case TypeI2:
		return int16(0)
	case TypeI4, TypeInt:
		return int32(0)
	case TypeR4, TypeR8, TypeNumber, TypeFixed14_4:
		return float64(0)
	case TypeBoolean:
		return false
	case TypeString, TypeChar:
		return ""
	default:
		return nil
	}
}

// valueCell is the single mutable field behind a StateVariable: its current
// value, guarded by its own lock so concurrent action handlers on different
// variables never contend with one another.
type valueCell struct {
	mu    sync.Mutex
	model *StateVariable
	value interface{}
}

func newValueCell(model *StateVariable) *valueCell {
	return &valueCell{model: model, value: model.DefaultValue()}
}

func (c *valueCell) get() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// withLock is the scoped acquisition primitive: it locks the cell, invokes
// fn with the current value, casts/validates whatever fn returns, stores it
// on success, and always unlocks — including when fn panics or returns an
// error partway through.
func (c *valueCell) withLock(fn func(current interface{}) (interface{}, error)) (changed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fn(c.value)
	if err != nil {
		return false, err
	}
	if next == nil {
		return false, nil
	}
	cast, err := c.model.varType.Cast(next)
	if err != nil {
		return false, fmt.Errorf("%s: %w", c.model.name, err)
	}
	if err := c.model.Validate(cast); err != nil {
		return false, err
	}
	changed = !reflect.DeepEqual(cast, c.value)
	c.value = cast
	return changed, nil
}
