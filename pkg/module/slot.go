package module

import (
	"harnsnode/pkg/runtime"
	"harnsnode/pkg/runtime/constant"
	"reflect"
	"sync"
	"time"
)

// Notifier receives change events. Notify is called with the slot locked
// and must not block or call back into the module.
type Notifier interface {
	Notify(ev runtime.ChangeEvent)
}

type NotifierFunc func(ev runtime.ChangeEvent)

func (f NotifierFunc) Notify(ev runtime.ChangeEvent) { f(ev) }

// Slot holds the cached value of one parameter of one module.
type Slot struct {
	mu        sync.Mutex
	module    string
	param     *Parameter
	value     interface{}
	set       bool
	timestamp time.Time
	notifier  Notifier
}

func newSlot(module string, param *Parameter, notifier Notifier) *Slot {
	return &Slot{module: module, param: param, notifier: notifier}
}

func (s *Slot) Parameter() *Parameter {
	return s.param
}

// Get returns the cached value, false while unset.
func (s *Slot) Get() (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Value{Value: s.value, Timestamp: s.timestamp}, s.set
}

// update validates raw and caches it. The event, if any, is emitted before
// the lock is released so cache and notification are observed together.
func (s *Slot) update(raw interface{}, ts time.Time) (Value, error) {
	v, err := s.param.DataType.Validate(raw)
	if err != nil {
		return Value{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := !s.set || !reflect.DeepEqual(s.value, v)
	s.value = v
	s.set = true
	s.timestamp = ts
	if s.notifier != nil && (changed || s.param.Update == constant.UpdateAlways) {
		s.notifier.Notify(runtime.ChangeEvent{
			Module:    s.module,
			Parameter: s.param.Name,
			Value:     v,
			Timestamp: ts,
			Internal:  s.param.Internal,
		})
	}
	return Value{Value: v, Timestamp: ts}, nil
}
