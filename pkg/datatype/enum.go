package datatype

import (
	"harnsnode/pkg/runtime/constant"
	"sort"
)

var _ DataType = (*Enum)(nil)

type EnumMember struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Enum accepts member names or member values and normalizes to the value.
type Enum struct {
	name    string
	members []EnumMember
	byName  map[string]int64
	byValue map[int64]string
}

func NewEnum(name string, members ...EnumMember) *Enum {
	e := &Enum{
		name:    name,
		byName:  make(map[string]int64, len(members)),
		byValue: make(map[int64]string, len(members)),
	}
	for _, m := range members {
		if _, ok := e.byName[m.Name]; ok {
			panic("datatype: duplicate enum member " + m.Name)
		}
		if _, ok := e.byValue[m.Value]; ok {
			panic("datatype: duplicate enum value for " + m.Name)
		}
		e.byName[m.Name] = m.Value
		e.byValue[m.Value] = m.Name
		e.members = append(e.members, m)
	}
	sort.Slice(e.members, func(i, j int) bool { return e.members[i].Value < e.members[j].Value })
	return e
}

func (e *Enum) Kind() constant.DataKind { return constant.ENUM }

func (e *Enum) Unit() string { return "" }

func (e *Enum) Validate(value interface{}) (interface{}, error) {
	if s, ok := value.(string); ok {
		if v, ok := e.byName[s]; ok {
			return v, nil
		}
		return nil, invalid("%q is not a member of enum %s", s, e.name)
	}
	v, ok := toInt(value)
	if !ok {
		return nil, invalid("can not convert %v (%T) to enum %s", value, value, e.name)
	}
	if _, ok := e.byValue[v]; !ok {
		return nil, invalid("%d is not a member of enum %s", v, e.name)
	}
	return v, nil
}

// Name returns the member name of a value.
func (e *Enum) Name(value int64) (string, bool) {
	name, ok := e.byValue[value]
	return name, ok
}

func (e *Enum) Members() []EnumMember {
	return append([]EnumMember(nil), e.members...)
}

func (e *Enum) Describe() Description {
	members := make(map[string]int64, len(e.members))
	for _, m := range e.members {
		members[m.Name] = m.Value
	}
	return Description{"type": constant.ENUM.String(), "name": e.name, "members": members}
}
