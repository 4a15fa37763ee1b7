package tree

import "fmt"

// ValueRange is an inclusive [min, max] constraint on a state variable's value.
type ValueRange struct {
	min interface{}
	max interface{}
}

// NewValueRange casts min/max into t's representation and orders them.
func NewValueRange(t StateVarType, min, max interface{}) (*ValueRange, error) {
	cmin, err := t.Cast(min)
	if err != nil {
		return nil, fmt.Errorf("min value %v is not castable to %s: %w", min, t, err)
	}
	cmax, err := t.Cast(max)
	if err != nil {
		return nil, fmt.Errorf("max value %v is not castable to %s: %w", max, t, err)
	}
	if t.Cmp(cmin, cmax) > 0 {
		cmin, cmax = cmax, cmin
	}
	return &ValueRange{min: cmin, max: cmax}, nil
}

func (r *ValueRange) Min() interface{} { return r.min }
func (r *ValueRange) Max() interface{} { return r.max }
