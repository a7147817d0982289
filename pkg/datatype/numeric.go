package datatype

import (
	"harnsnode/pkg/runtime/constant"
	"math"
)

const DefaultRelResolution = 1.2e-7

var _ DataType = (*FloatRange)(nil)
var _ DataType = (*IntRange)(nil)

type FloatOption func(*FloatRange)

func WithUnit(unit string) FloatOption {
	return func(f *FloatRange) {
		f.unit = unit
	}
}

// WithResolution sets the absolute and relative resolution used to snap
// values lying just outside the limits onto them.
func WithResolution(abs, rel float64) FloatOption {
	return func(f *FloatRange) {
		f.absResolution = abs
		f.relResolution = rel
	}
}

// FloatRange restricts a double to [Min, Max]. Use math.Inf for open ends.
type FloatRange struct {
	Min           float64
	Max           float64
	unit          string
	absResolution float64
	relResolution float64
}

func NewFloatRange(min, max float64, opts ...FloatOption) *FloatRange {
	f := &FloatRange{
		Min:           min,
		Max:           max,
		relResolution: DefaultRelResolution,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.Min > f.Max {
		panic("datatype: FloatRange min must not exceed max")
	}
	return f
}

func (f *FloatRange) Kind() constant.DataKind { return constant.DOUBLE }

func (f *FloatRange) Unit() string { return f.unit }

func (f *FloatRange) Validate(value interface{}) (interface{}, error) {
	v, ok := toFloat(value)
	if !ok {
		return nil, invalid("can not convert %v (%T) to double", value, value)
	}
	if math.IsNaN(v) {
		return nil, invalid("NaN is not allowed")
	}
	// infinities are never snapped, they pass only an unbounded end
	if !math.IsInf(v, 0) {
		prec := math.Max(f.absResolution, math.Abs(v)*f.relResolution)
		if f.Min-prec <= v && v < f.Min {
			v = f.Min
		}
		if f.Max < v && v <= f.Max+prec {
			v = f.Max
		}
	}
	if v < f.Min || v > f.Max {
		return nil, invalid("%g must be between %g and %g", v, f.Min, f.Max)
	}
	return v, nil
}

func (f *FloatRange) Describe() Description {
	d := Description{"type": constant.DOUBLE.String()}
	if !math.IsInf(f.Min, -1) {
		d["min"] = f.Min
	}
	if !math.IsInf(f.Max, 1) {
		d["max"] = f.Max
	}
	if len(f.unit) > 0 {
		d["unit"] = f.unit
	}
	return d
}

type IntRange struct {
	Min  int64
	Max  int64
	unit string
}

func NewIntRange(min, max int64, unit string) *IntRange {
	if min > max {
		panic("datatype: IntRange min must not exceed max")
	}
	return &IntRange{Min: min, Max: max, unit: unit}
}

func (i *IntRange) Kind() constant.DataKind { return constant.INT }

func (i *IntRange) Unit() string { return i.unit }

func (i *IntRange) Validate(value interface{}) (interface{}, error) {
	v, ok := toInt(value)
	if !ok {
		return nil, invalid("can not convert %v (%T) to int", value, value)
	}
	if v < i.Min || v > i.Max {
		return nil, invalid("%d must be between %d and %d", v, i.Min, i.Max)
	}
	return v, nil
}

func (i *IntRange) Describe() Description {
	d := Description{"type": constant.INT.String(), "min": i.Min, "max": i.Max}
	if len(i.unit) > 0 {
		d["unit"] = i.unit
	}
	return d
}
