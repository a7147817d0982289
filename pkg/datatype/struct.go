package datatype

import (
	"fmt"
	"harnsnode/pkg/runtime/constant"
	"k8s.io/apimachinery/pkg/util/sets"
)

var _ DataType = (*Struct)(nil)

type Member struct {
	Name string
	Type DataType
}

// Struct validates a record member by member and fails as a whole.
type Struct struct {
	members  map[string]DataType
	order    []string
	optional sets.Set[string]
}

func NewStruct(members []Member, optional ...string) *Struct {
	s := &Struct{
		members:  make(map[string]DataType, len(members)),
		optional: sets.New[string](optional...),
	}
	for _, m := range members {
		if _, ok := s.members[m.Name]; ok {
			panic("datatype: duplicate struct member " + m.Name)
		}
		s.members[m.Name] = m.Type
		s.order = append(s.order, m.Name)
	}
	return s
}

func (s *Struct) Kind() constant.DataKind { return constant.STRUCT }

func (s *Struct) Unit() string { return "" }

func (s *Struct) Validate(value interface{}) (interface{}, error) {
	raw, ok := value.(map[string]interface{})
	if !ok {
		return nil, invalid("%v (%T) is not a struct", value, value)
	}
	for name := range raw {
		if _, ok := s.members[name]; !ok {
			return nil, invalid("unknown struct member %q", name)
		}
	}
	out := make(map[string]interface{}, len(raw))
	for _, name := range s.order {
		v, ok := raw[name]
		if !ok {
			if s.optional.Has(name) {
				continue
			}
			return nil, invalid("missing struct member %q", name)
		}
		nv, err := s.members[name].Validate(v)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", name, err)
		}
		out[name] = nv
	}
	return out, nil
}

func (s *Struct) Member(name string) (DataType, bool) {
	dt, ok := s.members[name]
	return dt, ok
}

func (s *Struct) Describe() Description {
	members := make(map[string]Description, len(s.members))
	for name, dt := range s.members {
		members[name] = dt.Describe()
	}
	d := Description{"type": constant.STRUCT.String(), "members": members}
	if s.optional.Len() > 0 {
		d["optional"] = sets.List(s.optional)
	}
	return d
}
