package module

import (
	"context"
	"fmt"
	"harnsnode/pkg/datatype"
	"harnsnode/pkg/link"
	"harnsnode/pkg/runtime"
	"harnsnode/pkg/runtime/constant"
	"sort"
	"sync"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// ReadFunc fetches a parameter from hardware. The result is validated and
// cached by the engine.
type ReadFunc func(ctx context.Context, m *Module) (interface{}, error)

// WriteFunc sends an already validated value to hardware and returns the
// value the hardware accepted, or nil to cache the value as sent.
type WriteFunc func(ctx context.Context, m *Module, value interface{}) (interface{}, error)

// accessor is one row of the dispatch table. A nil read is a pure cache
// read, a nil write caches the validated value.
type accessor struct {
	read  ReadFunc
	write WriteFunc
}

// StatusTable is implemented by StatusMapper.
type StatusTable interface {
	Values() []datatype.StatusValue
}

// LinkSpec is the line protocol a class speaks.
type LinkSpec struct {
	Terminator     string
	Identification []link.Probe
}

// Class is a module implementation: the parameter declarations and the
// accessor table built from them.
type Class struct {
	ID          string
	Description string
	Link        *LinkSpec

	params    []*Parameter
	byName    map[string]*Parameter
	accessors map[string]accessor
	polled    []string

	readers      map[string]ReadFunc
	writers      map[string]WriteFunc
	statusTables []StatusTable
}

type ClassOption func(*Class)

func WithParameters(params ...*Parameter) ClassOption {
	return func(c *Class) {
		c.params = append(c.params, params...)
	}
}

func WithReader(name string, f ReadFunc) ClassOption {
	return func(c *Class) {
		c.readers[name] = f
	}
}

func WithWriter(name string, f WriteFunc) ClassOption {
	return func(c *Class) {
		c.writers[name] = f
	}
}

// WithStatusMap checks every status the table can produce against the
// status parameter when the class is built.
func WithStatusMap(t StatusTable) ClassOption {
	return func(c *Class) {
		c.statusTables = append(c.statusTables, t)
	}
}

func WithLink(terminator string, probes ...link.Probe) ClassOption {
	return func(c *Class) {
		c.Link = &LinkSpec{Terminator: terminator, Identification: probes}
	}
}

// Readable declares value, status and pollinterval.
func Readable(description string, value datatype.DataType) ClassOption {
	return func(c *Class) {
		c.params = append(c.params, ValueParameter(description, value), StatusParameter(), PollIntervalParameter())
	}
}

// Writable is Readable plus a target parameter.
func Writable(description string, value, target datatype.DataType) ClassOption {
	return func(c *Class) {
		Readable(description, value)(c)
		c.params = append(c.params, TargetParameter("target value of the module", target))
	}
}

// Drivable is Writable with BUSY among the allowed status codes.
func Drivable(description string, value, target datatype.DataType) ClassOption {
	return func(c *Class) {
		c.params = append(c.params,
			ValueParameter(description, value),
			StatusParameter(constant.IDLE, constant.WARN, constant.BUSY, constant.ERROR, constant.DISABLED),
			PollIntervalParameter(),
			TargetParameter("target value of the module", target))
	}
}

// NewClass builds the accessor table: every declared parameter gets the
// default cache accessors unless the driver registered its own. A status
// parameter is added when none is declared.
func NewClass(id, description string, opts ...ClassOption) (*Class, error) {
	c := &Class{
		ID:          id,
		Description: description,
		byName:      make(map[string]*Parameter),
		accessors:   make(map[string]accessor),
		readers:     make(map[string]ReadFunc),
		writers:     make(map[string]WriteFunc),
	}
	for _, opt := range opts {
		opt(c)
	}

	var errs []error
	for _, p := range c.params {
		switch {
		case !runtime.IsValidName(p.Name):
			errs = append(errs, fmt.Errorf("invalid parameter name %q", p.Name))
			continue
		case p.DataType == nil:
			errs = append(errs, fmt.Errorf("parameter %s has no datatype", p.Name))
			continue
		}
		if _, ok := c.byName[p.Name]; ok {
			errs = append(errs, fmt.Errorf("duplicate parameter %s", p.Name))
			continue
		}
		if p.Default != nil {
			if _, err := p.DataType.Validate(p.Default); err != nil {
				errs = append(errs, fmt.Errorf("default of %s: %v", p.Name, err))
			}
		}
		c.byName[p.Name] = p
	}
	if _, ok := c.byName[ParamStatus]; !ok {
		sp := StatusParameter()
		c.params = append(c.params, sp)
		c.byName[sp.Name] = sp
	}

	for name, f := range c.readers {
		if _, ok := c.byName[name]; !ok {
			errs = append(errs, fmt.Errorf("reader for undeclared parameter %s", name))
			continue
		}
		a := c.accessors[name]
		a.read = f
		c.accessors[name] = a
	}
	for name, f := range c.writers {
		p, ok := c.byName[name]
		if !ok {
			errs = append(errs, fmt.Errorf("writer for undeclared parameter %s", name))
			continue
		}
		if p.Readonly() {
			errs = append(errs, fmt.Errorf("writer for readonly parameter %s", name))
			continue
		}
		a := c.accessors[name]
		a.write = f
		c.accessors[name] = a
	}

	if st, ok := c.byName[ParamStatus].DataType.(*datatype.StatusType); ok {
		for _, table := range c.statusTables {
			for _, v := range table.Values() {
				if !st.Allows(v.Code) {
					errs = append(errs, fmt.Errorf("status map yields %s, not allowed for %s", v.Code, id))
				}
			}
		}
	} else if len(c.statusTables) > 0 {
		errs = append(errs, fmt.Errorf("status parameter of %s is not a status type", id))
	}

	for _, p := range c.params {
		if c.accessors[p.Name].read != nil {
			c.polled = append(c.polled, p.Name)
		}
	}
	// value and status first, as they change most
	rank := func(name string) int {
		switch name {
		case ParamValue:
			return 0
		case ParamStatus:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(c.polled, func(i, j int) bool { return rank(c.polled[i]) < rank(c.polled[j]) })

	if len(errs) > 0 {
		return nil, fmt.Errorf("class %s: %v", id, utilerrors.NewAggregate(errs))
	}
	return c, nil
}

// MustClass is NewClass for package level declarations.
func MustClass(id, description string, opts ...ClassOption) *Class {
	c, err := NewClass(id, description, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Parameters returns the declarations in declaration order.
func (c *Class) Parameters() []*Parameter {
	return append([]*Parameter(nil), c.params...)
}

func (c *Class) Parameter(name string) (*Parameter, bool) {
	p, ok := c.byName[name]
	return p, ok
}

// HasReader reports whether reading name reaches hardware.
func (c *Class) HasReader(name string) bool {
	return c.accessors[name].read != nil
}

// Registry resolves class ids from configuration.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

func NewRegistry(classes ...*Class) *Registry {
	r := &Registry{classes: make(map[string]*Class)}
	for _, c := range classes {
		r.classes[c.ID] = c
	}
	return r
}

func (r *Registry) Register(c *Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classes[c.ID]; ok {
		return fmt.Errorf("class %s already registered", c.ID)
	}
	r.classes[c.ID] = c
	return nil
}

func (r *Registry) Get(id string) (*Class, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", constant.ErrClassNotFound, id)
	}
	return c, nil
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.classes))
	for id := range r.classes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
