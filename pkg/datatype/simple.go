package datatype

import (
	"harnsnode/pkg/runtime/constant"
	"unicode/utf8"
)

var _ DataType = Bool{}
var _ DataType = (*String)(nil)

type Bool struct{}

func (Bool) Kind() constant.DataKind { return constant.BOOL }

func (Bool) Unit() string { return "" }

func (Bool) Validate(value interface{}) (interface{}, error) {
	if b, ok := value.(bool); ok {
		return b, nil
	}
	if i, ok := toInt(value); ok && (i == 0 || i == 1) {
		return i == 1, nil
	}
	return nil, invalid("%v (%T) is not a boolean", value, value)
}

func (Bool) Describe() Description {
	return Description{"type": constant.BOOL.String()}
}

// String bounds the length in characters. MaxChars 0 means unbounded.
type String struct {
	MinChars int
	MaxChars int
}

func NewString(minChars, maxChars int) *String {
	return &String{MinChars: minChars, MaxChars: maxChars}
}

func (s *String) Kind() constant.DataKind { return constant.STRING }

func (s *String) Unit() string { return "" }

func (s *String) Validate(value interface{}) (interface{}, error) {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return nil, invalid("%v (%T) is not a string", value, value)
	}
	if !utf8.ValidString(str) {
		return nil, invalid("string is not valid utf-8")
	}
	n := utf8.RuneCountInString(str)
	if n < s.MinChars {
		return nil, invalid("string must have at least %d characters", s.MinChars)
	}
	if s.MaxChars > 0 && n > s.MaxChars {
		return nil, invalid("string must not exceed %d characters", s.MaxChars)
	}
	return str, nil
}

func (s *String) Describe() Description {
	d := Description{"type": constant.STRING.String()}
	if s.MinChars > 0 {
		d["minchars"] = s.MinChars
	}
	if s.MaxChars > 0 {
		d["maxchars"] = s.MaxChars
	}
	return d
}
