// Package module turns parameter declarations into validated, cached and
// observable module state. Reads and writes are dispatched through the
// accessor table of the module's class; driver accessors are never called
// directly.
package module

import (
	"context"
	"errors"
	"fmt"
	"harnsnode/pkg/datatype"
	"harnsnode/pkg/link"
	"harnsnode/pkg/runtime"
	"harnsnode/pkg/runtime/constant"
	"sync"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
)

type Module struct {
	name        string
	description string
	uri         string
	class       *Class
	link        *link.Link
	slots       map[string]*Slot

	// configured values the device was unreachable for, retried by Poll
	mu      sync.Mutex
	pending map[string]interface{}
}

// New builds a module with every slot unset except parameters with a default.
// l may be nil for modules without hardware.
func New(desc runtime.ModuleDescriptor, class *Class, l *link.Link, notifier Notifier) (*Module, error) {
	if !runtime.IsValidName(desc.Name) {
		return nil, fmt.Errorf("invalid module name %q", desc.Name)
	}
	if class.Link != nil && l == nil {
		return nil, fmt.Errorf("module %s: class %s needs a device link", desc.Name, class.ID)
	}
	m := &Module{
		name:        desc.Name,
		description: desc.Description,
		uri:         desc.URI,
		class:       class,
		link:        l,
		slots:       make(map[string]*Slot, len(class.params)),
		pending:     make(map[string]interface{}),
	}
	if len(m.description) == 0 {
		m.description = class.Description
	}
	now := time.Now()
	for _, p := range class.params {
		s := newSlot(m.name, p, notifier)
		m.slots[p.Name] = s
		if p.Default != nil {
			if _, err := s.update(p.Default, now); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Module) Name() string { return m.name }

func (m *Module) Description() string { return m.description }

func (m *Module) Class() *Class { return m.class }

// Link returns the shared device link, nil for modules without hardware.
func (m *Module) Link() *link.Link { return m.link }

func (m *Module) Meta() *runtime.ModuleMeta {
	meta := &runtime.ModuleMeta{
		Name:        m.name,
		Class:       m.class.ID,
		Description: m.description,
		URI:         m.uri,
	}
	if m.link != nil {
		meta.LinkState = m.link.State().String()
	}
	for _, p := range m.class.params {
		if p.Exported() {
			meta.Parameters = append(meta.Parameters, p.Name)
		}
	}
	return meta
}

func (m *Module) slot(name string) (*Slot, error) {
	s, ok := m.slots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", constant.ErrParameterNotFound, m.name, name)
	}
	return s, nil
}

// Read runs the read path: the hardware accessor if one is registered,
// otherwise the cached value. Accessor failures leave the cache untouched.
func (m *Module) Read(ctx context.Context, name string) (Value, error) {
	s, err := m.slot(name)
	if err != nil {
		return Value{}, err
	}
	read := m.class.accessors[name].read
	if read == nil {
		v, ok := s.Get()
		if !ok {
			return Value{}, fmt.Errorf("%w: %s.%s", constant.ErrNotInitialized, m.name, name)
		}
		return v, nil
	}
	raw, err := read(ctx, m)
	if err != nil {
		klog.V(2).InfoS("Failed to read parameter", "module", m.name, "param", name, "err", err)
		return Value{}, err
	}
	return s.update(raw, time.Now())
}

// Write validates value, hands it to the hardware accessor if one is
// registered and caches what the hardware accepted.
func (m *Module) Write(ctx context.Context, name string, value interface{}) (Value, error) {
	s, err := m.slot(name)
	if err != nil {
		return Value{}, err
	}
	if s.param.Readonly() {
		return Value{}, fmt.Errorf("%w: %s.%s", constant.ErrReadOnly, m.name, name)
	}
	v, err := s.param.DataType.Validate(value)
	if err != nil {
		return Value{}, fmt.Errorf("%s.%s: %w", m.name, name, err)
	}
	if write := m.class.accessors[name].write; write != nil {
		ret, err := write(ctx, m, v)
		if err != nil {
			klog.V(2).InfoS("Failed to write parameter", "module", m.name, "param", name, "err", err)
			return Value{}, err
		}
		if ret != nil {
			v = ret
		}
	}
	m.mu.Lock()
	delete(m.pending, name)
	m.mu.Unlock()
	return s.update(v, time.Now())
}

// Update sets a parameter from driver code, readonly ones included. It
// validates, caches and notifies like any other update but never reaches
// hardware.
func (m *Module) Update(name string, value interface{}) (Value, error) {
	s, err := m.slot(name)
	if err != nil {
		return Value{}, err
	}
	return s.update(value, time.Now())
}

// SetStatus is Update of the status parameter.
func (m *Module) SetStatus(code constant.StatusCode, text string) error {
	_, err := m.Update(ParamStatus, datatype.StatusValue{Code: code, Text: text})
	return err
}

// Cached returns the cached value without reaching hardware.
func (m *Module) Cached(name string) (Value, bool) {
	s, ok := m.slots[name]
	if !ok {
		return Value{}, false
	}
	return s.Get()
}

// Query sends a command over the module's device link and returns the
// value of the name=value reply.
func (m *Module) Query(ctx context.Context, command string) (string, error) {
	if m.link == nil {
		return "", fmt.Errorf("%w: module %s has no device link", constant.ErrConnection, m.name)
	}
	return m.link.Query(ctx, command)
}

// Initialize applies configured values in declaration order. Every value is
// validated before any is applied. Readonly parameters are cached
// directly, writable ones go through the write path. Write failures do not
// stop initialization; values the device could not be reached for are kept
// and written by the next Poll before anything is read back.
func (m *Module) Initialize(ctx context.Context, values map[string]interface{}) error {
	var errs []error
	for name, v := range values {
		s, err := m.slot(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := s.param.DataType.Validate(v); err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", m.name, name, err))
		}
	}
	if len(errs) > 0 {
		return utilerrors.NewAggregate(errs)
	}

	for _, p := range m.class.params {
		v, ok := values[p.Name]
		if !ok {
			continue
		}
		if p.Readonly() {
			if _, err := m.Update(p.Name, v); err != nil {
				return err
			}
			continue
		}
		if _, err := m.Write(ctx, p.Name, v); err != nil {
			klog.ErrorS(err, "Failed to apply configured value", "module", m.name, "param", p.Name)
			if unreachable(err) {
				m.mu.Lock()
				m.pending[p.Name] = v
				m.mu.Unlock()
			}
		}
	}
	return nil
}

func unreachable(err error) bool {
	return errors.Is(err, constant.ErrConnection) || errors.Is(err, constant.ErrTimeout)
}

// Pending lists the configured values still waiting for the device, in
// declaration order.
func (m *Module) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, p := range m.class.params {
		if _, ok := m.pending[p.Name]; ok {
			names = append(names, p.Name)
		}
	}
	return names
}

// applyPending writes the values Initialize could not apply. Values the
// device rejects are dropped, unreachable ones stay for the next round.
func (m *Module) applyPending(ctx context.Context) error {
	for _, name := range m.Pending() {
		m.mu.Lock()
		v, ok := m.pending[name]
		m.mu.Unlock()
		if !ok {
			continue
		}
		_, err := m.Write(ctx, name, v)
		if err == nil {
			klog.InfoS("Applied configured value", "module", m.name, "param", name)
			continue
		}
		if unreachable(err) {
			return fmt.Errorf("%s.%s: %w", m.name, name, err)
		}
		klog.ErrorS(err, "Dropped configured value", "module", m.name, "param", name)
		m.mu.Lock()
		delete(m.pending, name)
		m.mu.Unlock()
	}
	return nil
}

// Persistent returns the cached values of persistent parameters.
func (m *Module) Persistent() map[string]interface{} {
	values := make(map[string]interface{})
	for _, p := range m.class.params {
		if !p.Persistent {
			continue
		}
		if v, ok := m.slots[p.Name].Get(); ok {
			values[p.Name] = v.Value
		}
	}
	return values
}

// Poll reads every parameter with a hardware reader once. Configured values
// still pending are written first; nothing is read while one is left.
func (m *Module) Poll(ctx context.Context) error {
	if err := m.applyPending(ctx); err != nil {
		return err
	}
	var errs []error
	for _, name := range m.class.polled {
		if _, err := m.Read(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", m.name, name, err))
			if errors.Is(err, constant.ErrConnection) {
				// the rest would fail the same way
				break
			}
		}
	}
	return utilerrors.NewAggregate(errs)
}

// PollInterval is the cached pollinterval, 0 for classes without one.
func (m *Module) PollInterval() time.Duration {
	v, ok := m.Cached(ParamPollInterval)
	if !ok {
		return 0
	}
	f, ok := v.Value.(float64)
	if !ok {
		return 0
	}
	return seconds(f)
}

// Run polls until ctx is done. The interval is re-read after every poll.
func (m *Module) Run(ctx context.Context) {
	if len(m.class.polled) == 0 {
		return
	}
	for {
		interval := m.PollInterval()
		if interval <= 0 {
			return
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if err := m.Poll(ctx); err != nil {
			klog.V(2).InfoS("Failed to poll module", "module", m.name, "err", err)
		}
	}
}
