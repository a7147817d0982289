package module

import (
	"fmt"
	"harnsnode/pkg/datatype"
	"harnsnode/pkg/runtime/constant"
)

type StatusEntry struct {
	Code constant.StatusCode
	Text string
}

// StatusMapper translates raw hardware status codes into standardized
// status values. K may be a struct to key on code tuples.
type StatusMapper[K comparable] struct {
	entries map[K]datatype.StatusValue
}

// NewStatusMapper rejects entries whose code is not a standardized status.
func NewStatusMapper[K comparable](entries map[K]StatusEntry) (*StatusMapper[K], error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("empty status map")
	}
	sm := &StatusMapper[K]{entries: make(map[K]datatype.StatusValue, len(entries))}
	for raw, e := range entries {
		if !e.Code.Valid() {
			return nil, fmt.Errorf("status map entry %v: invalid status code %d", raw, int(e.Code))
		}
		sm.entries[raw] = datatype.StatusValue{Code: e.Code, Text: e.Text}
	}
	return sm, nil
}

func MustStatusMapper[K comparable](entries map[K]StatusEntry) *StatusMapper[K] {
	sm, err := NewStatusMapper(entries)
	if err != nil {
		panic(err)
	}
	return sm
}

// Lookup fails with constant.ErrUnmappedStatus for codes absent from the map.
func (sm *StatusMapper[K]) Lookup(raw K) (datatype.StatusValue, error) {
	v, ok := sm.entries[raw]
	if !ok {
		return datatype.StatusValue{}, fmt.Errorf("%w: %v", constant.ErrUnmappedStatus, raw)
	}
	return v, nil
}

// Values lists every status the map can produce.
func (sm *StatusMapper[K]) Values() []datatype.StatusValue {
	values := make([]datatype.StatusValue, 0, len(sm.entries))
	for _, v := range sm.entries {
		values = append(values, v)
	}
	return values
}
