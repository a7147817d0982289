package runtime

import (
	"github.com/mitchellh/mapstructure"
	"k8s.io/klog/v2"
	"sort"
	"strings"
)

type lessTypeFunc func(m1, m2 *ModuleMeta) bool

type typeSorter struct {
	ms        []*ModuleMeta
	lessFuncs []lessTypeFunc
}

func ByModule(less ...lessTypeFunc) *typeSorter {
	return &typeSorter{
		lessFuncs: less,
	}
}
func (ms *typeSorter) Sort(modules []*ModuleMeta) {
	ms.ms = modules
	sort.Sort(ms)
}

func (ms *typeSorter) Len() int {
	return len(ms.ms)
}

func (ms *typeSorter) Swap(i, j int) {
	ms.ms[i], ms.ms[j] = ms.ms[j], ms.ms[i]
}

func (ms *typeSorter) Less(i, j int) bool {
	return ms.less(ms.ms[i], ms.ms[j])
}

func (ms *typeSorter) less(p, q *ModuleMeta) bool {
	// Try all but the last comparison.
	var k int
	for k = 0; k < len(ms.lessFuncs)-1; k++ {
		less := ms.lessFuncs[k]
		switch {
		case less(p, q):
			return true
		case less(q, p):
			return false
		}
	}
	return ms.lessFuncs[k](p, q)
}

func (ms *typeSorter) Insert(modules []*ModuleMeta, m *ModuleMeta) []*ModuleMeta {
	i := sort.Search(len(modules), func(i int) bool { return ms.less(m, modules[i]) })
	modules = append(modules, m)
	copy(modules[i+1:], modules[i:])
	modules[i] = m
	return modules
}

type NameFilterFunc struct {
	Eq         string
	In         []string
	Contains   string
	StartsWith string
	EndsWith   string
}

// ModuleFilter selects modules by name and class. Name is either a plain
// string or a NameFilterFunc in map form, e.g. {"startsWith": "he"}.
type ModuleFilter struct {
	Name  interface{}
	Class string
}

type predicateType func(m *ModuleMeta) bool

func ParseModuleFilter(filter *ModuleFilter) []predicateType {
	predicates := make([]predicateType, 0)
	if filter == nil {
		return predicates
	}

	// class
	if len(filter.Class) > 0 {
		p := func(m *ModuleMeta) bool {
			return filter.Class == m.Class
		}
		predicates = append(predicates, p)
	}

	// name
	if filter.Name != nil {
		if name, ok := filter.Name.(string); ok {
			p := func(m *ModuleMeta) bool {
				return name == m.Name
			}
			predicates = append(predicates, p)
		} else {
			var ff NameFilterFunc
			if err := mapstructure.Decode(filter.Name, &ff); err != nil {
				klog.V(3).InfoS("Failed to parse filter.name", "err", err)
			}
			// eq
			if len(ff.Eq) > 0 {
				p := func(m *ModuleMeta) bool {
					return ff.Eq == m.Name
				}
				predicates = append(predicates, p)
			}
			// in
			if len(ff.In) > 0 {
				p := func(m *ModuleMeta) bool {
					for _, name := range ff.In {
						if name == m.Name {
							return true
						}
					}
					return false
				}
				predicates = append(predicates, p)
			}
			// contains
			if len(ff.Contains) > 0 {
				p := func(m *ModuleMeta) bool {
					return strings.Contains(m.Name, ff.Contains)
				}
				predicates = append(predicates, p)
			}
			// startsWith
			if len(ff.StartsWith) > 0 {
				p := func(m *ModuleMeta) bool {
					return strings.HasPrefix(m.Name, strings.TrimSpace(ff.StartsWith))
				}
				predicates = append(predicates, p)
			}
			// endsWith
			if len(ff.EndsWith) > 0 {
				p := func(m *ModuleMeta) bool {
					return strings.HasSuffix(m.Name, strings.TrimSpace(ff.EndsWith))
				}
				predicates = append(predicates, p)
			}
		}
	}

	return predicates
}

// Match reports whether m satisfies every predicate.
func Match(m *ModuleMeta, predicates []predicateType) bool {
	for _, p := range predicates {
		if !p(m) {
			return false
		}
	}
	return true
}
