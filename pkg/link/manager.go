package link

import (
	"context"
	"fmt"
	"sync"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
)

type entry struct {
	link *Link
	refs int
}

// Manager shares one Link per uri between all modules naming it. A link
// lives until its last reference is released.
type Manager struct {
	mu        sync.Mutex
	links     map[string]*entry
	overrides map[string]Config
	opts      []Option
}

func NewManager(opts ...Option) *Manager {
	return &Manager{
		links:     make(map[string]*entry),
		overrides: make(map[string]Config),
		opts:      opts,
	}
}

// SetConfig registers settings for a uri, used when its link is first created.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[cfg.URI] = cfg
}

// Acquire returns the link for cfg.URI, creating it on first use. Settings
// registered with SetConfig take precedence over cfg for a new link, an
// existing link keeps its settings.
func (m *Manager) Acquire(cfg Config) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.links[cfg.URI]; ok {
		e.refs++
		return e.link, nil
	}
	if o, ok := m.overrides[cfg.URI]; ok {
		if len(o.Identification) == 0 {
			o.Identification = cfg.Identification
		}
		if len(o.Terminator) == 0 {
			o.Terminator = cfg.Terminator
		}
		cfg = o
	}
	l, err := New(cfg, m.opts...)
	if err != nil {
		return nil, err
	}
	m.links[cfg.URI] = &entry{link: l, refs: 1}
	klog.V(2).InfoS("Created device link", "uri", cfg.URI)
	return l, nil
}

// Release drops one reference and closes the link with the last one.
func (m *Manager) Release(l *Link) error {
	m.mu.Lock()
	e, ok := m.links[l.URI()]
	if !ok || e.link != l {
		m.mu.Unlock()
		return fmt.Errorf("link %s is not managed", l.URI())
	}
	e.refs--
	if e.refs > 0 {
		m.mu.Unlock()
		return nil
	}
	delete(m.links, l.URI())
	m.mu.Unlock()
	klog.V(2).InfoS("Closing device link", "uri", l.URI())
	return l.Close()
}

func (m *Manager) Links() []*Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls := make([]*Link, 0, len(m.links))
	for _, e := range m.links {
		ls = append(ls, e.link)
	}
	return ls
}

// Shutdown closes every link regardless of references.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	links := m.links
	m.links = make(map[string]*entry)
	m.mu.Unlock()

	var errs []error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for uri, e := range links {
			if err := e.link.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %v", uri, err))
			}
		}
	}()
	select {
	case <-done:
		return utilerrors.NewAggregate(errs)
	case <-ctx.Done():
		return ctx.Err()
	}
}
