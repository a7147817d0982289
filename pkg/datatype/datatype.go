// Package datatype holds the value constraints parameters are declared with.
// Every DataType validates raw input into one normalized Go representation:
//
//	FloatRange -> float64
//	IntRange   -> int64
//	Enum       -> int64
//	Bool       -> bool
//	String     -> string
//	Struct     -> map[string]interface{}
//	StatusType -> StatusValue
//
// Validation is pure and idempotent, so a normalized value validates to itself.
package datatype

import (
	"encoding/json"
	"fmt"
	"harnsnode/pkg/runtime/constant"
	"math"
)

type DataType interface {
	Kind() constant.DataKind
	// Validate returns the normalized value or an error wrapping constant.ErrValidation.
	Validate(value interface{}) (interface{}, error)
	// Unit is for display only, no conversion happens.
	Unit() string
	Describe() Description
}

// Description is the exported metadata of a datatype.
type Description map[string]interface{}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", constant.ErrValidation, fmt.Sprintf(format, args...))
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
	}
	// integral floats, as decoded from JSON
	if f, ok := toFloat(value); ok && f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return int64(f), true
	}
	return 0, false
}
