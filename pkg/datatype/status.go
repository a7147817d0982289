package datatype

import (
	"fmt"
	"harnsnode/pkg/runtime/constant"
	"k8s.io/apimachinery/pkg/util/sets"
)

var _ DataType = (*StatusType)(nil)

// StatusValue is the normalized value of a status parameter.
type StatusValue struct {
	Code constant.StatusCode `json:"code"`
	Text string              `json:"text"`
}

func (s StatusValue) String() string {
	return fmt.Sprintf("%s %s", s.Code, s.Text)
}

// StatusType restricts the codes a module may report.
type StatusType struct {
	allowed sets.Set[constant.StatusCode]
}

// NewStatusType with no codes allows IDLE, WARN, ERROR and DISABLED.
func NewStatusType(codes ...constant.StatusCode) *StatusType {
	if len(codes) == 0 {
		codes = []constant.StatusCode{constant.IDLE, constant.WARN, constant.ERROR, constant.DISABLED}
	}
	for _, c := range codes {
		if !c.Valid() {
			panic(fmt.Sprintf("datatype: invalid status code %d", int(c)))
		}
	}
	return &StatusType{allowed: sets.New[constant.StatusCode](codes...)}
}

func (s *StatusType) Kind() constant.DataKind { return constant.STATUS }

func (s *StatusType) Unit() string { return "" }

func (s *StatusType) Allows(code constant.StatusCode) bool {
	return s.allowed.Has(code)
}

// Validate accepts a StatusValue, a (code, text) pair or a {"code","text"} map.
// Codes may be given by name or number.
func (s *StatusType) Validate(value interface{}) (interface{}, error) {
	var code, text interface{}
	switch v := value.(type) {
	case StatusValue:
		code, text = v.Code, v.Text
	case *StatusValue:
		if v == nil {
			return nil, invalid("nil status")
		}
		code, text = v.Code, v.Text
	case []interface{}:
		if len(v) != 2 {
			return nil, invalid("status must be a (code, text) pair")
		}
		code, text = v[0], v[1]
	case map[string]interface{}:
		code, text = v["code"], v["text"]
	default:
		return nil, invalid("%v (%T) is not a status", value, value)
	}

	var sc constant.StatusCode
	switch c := code.(type) {
	case constant.StatusCode:
		sc = c
	case string:
		v, ok := constant.StringToStatusCode[c]
		if !ok {
			return nil, invalid("unknown status code %q", c)
		}
		sc = v
	default:
		n, ok := toInt(code)
		if !ok {
			return nil, invalid("can not convert %v (%T) to status code", code, code)
		}
		sc = constant.StatusCode(n)
	}
	if !s.allowed.Has(sc) {
		return nil, invalid("status code %s is not allowed", sc)
	}
	t, ok := text.(string)
	if !ok && text != nil {
		return nil, invalid("status text %v (%T) is not a string", text, text)
	}
	return StatusValue{Code: sc, Text: t}, nil
}

func (s *StatusType) Describe() Description {
	codes := make([]string, 0, s.allowed.Len())
	for _, c := range []constant.StatusCode{constant.DISABLED, constant.IDLE, constant.WARN, constant.BUSY, constant.ERROR} {
		if s.allowed.Has(c) {
			codes = append(codes, c.String())
		}
	}
	return Description{"type": constant.STATUS.String(), "codes": codes}
}
