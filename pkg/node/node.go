// Package node groups modules under one addressable unit and exposes the
// operations a relay needs: listing, reading, writing and subscribing.
package node

import (
	"context"
	"errors"
	"fmt"
	"harnsnode/pkg/broadcast"
	"harnsnode/pkg/generic"
	"harnsnode/pkg/link"
	"harnsnode/pkg/module"
	"harnsnode/pkg/runtime"
	"harnsnode/pkg/runtime/constant"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
)

var ErrModuleExists = errors.New("module already exists")

// initialPollLimit bounds the modules polled in parallel by Start.
const initialPollLimit = 8

type Option func(*Node)

func WithRegistry(r *module.Registry) Option {
	return func(n *Node) {
		n.registry = r
	}
}

func WithLinkManager(m *link.Manager) Option {
	return func(n *Node) {
		n.links = m
	}
}

// WithLinkConfig registers per uri link settings.
func WithLinkConfig(cfgs ...link.Config) Option {
	return func(n *Node) {
		n.linkConfigs = append(n.linkConfigs, cfgs...)
	}
}

func WithParameterStore(s *generic.ParameterStore) Option {
	return func(n *Node) {
		n.store = s
	}
}

func WithBroadcaster(b *broadcast.Broadcaster) Option {
	return func(n *Node) {
		n.broadcaster = b
	}
}

// WithCloser runs c on Shutdown, closers run in reverse order of registration.
func WithCloser(c runtime.LabeledCloser) Option {
	return func(n *Node) {
		n.closers = append(n.closers, c)
	}
}

type Node struct {
	meta        *runtime.NodeMeta
	registry    *module.Registry
	links       *link.Manager
	linkConfigs []link.Config
	store       *generic.ParameterStore
	broadcaster *broadcast.Broadcaster
	closers     []runtime.LabeledCloser

	mu      sync.RWMutex
	modules map[string]*module.Module

	cancel  context.CancelFunc
	pollers sync.WaitGroup
}

func New(meta *runtime.NodeMeta, opts ...Option) *Node {
	n := &Node{
		meta:    meta,
		modules: make(map[string]*module.Module),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.registry == nil {
		n.registry = module.NewRegistry()
	}
	if n.links == nil {
		n.links = link.NewManager()
	}
	for _, cfg := range n.linkConfigs {
		n.links.SetConfig(cfg)
	}
	if n.broadcaster == nil {
		n.broadcaster = broadcast.NewBroadcaster()
	}
	if n.store != nil {
		n.broadcaster.Subscribe(broadcast.SinkFunc(n.persist), broadcast.WithInternal(), broadcast.WithName("persistence"))
	}
	return n
}

func (n *Node) Meta() *runtime.NodeMeta {
	return n.meta
}

func (n *Node) Registry() *module.Registry {
	return n.registry
}

// AddModule builds the module described by desc. Persisted values are
// restored for persistent parameters the descriptor does not set, then all
// values are applied through the write path.
func (n *Node) AddModule(ctx context.Context, desc runtime.ModuleDescriptor) (*module.Module, error) {
	n.mu.RLock()
	_, exists := n.modules[desc.Name]
	n.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrModuleExists, desc.Name)
	}

	class, err := n.registry.Get(desc.Class)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", desc.Name, err)
	}

	var l *link.Link
	if class.Link != nil {
		if len(desc.URI) == 0 {
			return nil, fmt.Errorf("module %s: class %s needs a uri", desc.Name, class.ID)
		}
		l, err = n.links.Acquire(link.Config{
			URI:            desc.URI,
			Terminator:     class.Link.Terminator,
			Identification: class.Link.Identification,
		})
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", desc.Name, err)
		}
	}
	release := func() {
		if l != nil {
			if err := n.links.Release(l); err != nil {
				klog.V(2).InfoS("Failed to release link", "module", desc.Name, "err", err)
			}
		}
	}

	m, err := module.New(desc, class, l, n.broadcaster)
	if err != nil {
		release()
		return nil, err
	}
	if err := m.Initialize(ctx, n.initialValues(desc, class)); err != nil {
		release()
		return nil, err
	}

	n.mu.Lock()
	if _, exists := n.modules[desc.Name]; exists {
		n.mu.Unlock()
		release()
		return nil, fmt.Errorf("%w: %s", ErrModuleExists, desc.Name)
	}
	n.modules[desc.Name] = m
	n.mu.Unlock()

	if n.store != nil {
		if values := m.Persistent(); len(values) > 0 {
			if err := n.store.Save(m.Name(), values); err != nil {
				klog.ErrorS(err, "Failed to save persistent parameters", "module", m.Name())
			}
		}
	}
	klog.InfoS("Added module", "module", m.Name(), "class", class.ID, "uri", desc.URI)
	return m, nil
}

func (n *Node) initialValues(desc runtime.ModuleDescriptor, class *module.Class) map[string]interface{} {
	values := make(map[string]interface{}, len(desc.Parameters))
	for k, v := range desc.Parameters {
		values[k] = v
	}
	if n.store == nil {
		return values
	}
	persisted, err := n.store.Load(desc.Name)
	if err != nil {
		if !os.IsNotExist(err) {
			klog.ErrorS(err, "Failed to load persistent parameters", "module", desc.Name)
		}
		return values
	}
	for k, v := range persisted {
		if _, given := values[k]; given {
			continue
		}
		if p, ok := class.Parameter(k); ok && p.Persistent {
			values[k] = v
		} else {
			klog.V(2).InfoS("Dropped persisted value of unknown parameter", "module", desc.Name, "param", k)
		}
	}
	return values
}

func (n *Node) persist(ev runtime.ChangeEvent) error {
	m, err := n.Module(ev.Module)
	if err != nil {
		// still initializing, AddModule saves once it is done
		return nil
	}
	if p, ok := m.Class().Parameter(ev.Parameter); !ok || !p.Persistent {
		return nil
	}
	return n.store.Save(m.Name(), m.Persistent())
}

// PruneParameters deletes persisted records of modules the node does not have.
func (n *Node) PruneParameters() error {
	if n.store == nil {
		return nil
	}
	stored, err := n.store.Modules()
	if err != nil {
		return err
	}
	n.mu.RLock()
	var orphans []string
	for _, name := range stored {
		if _, ok := n.modules[name]; !ok {
			orphans = append(orphans, name)
		}
	}
	n.mu.RUnlock()

	var errs []error
	for _, name := range orphans {
		klog.InfoS("Removing persistent parameters of unknown module", "module", name)
		if err := n.store.Delete(name); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}

func (n *Node) Module(name string) (*module.Module, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	m, ok := n.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", constant.ErrModuleNotFound, name)
	}
	return m, nil
}

// ListModules returns the matching modules ordered by name.
func (n *Node) ListModules(filter *runtime.ModuleFilter) []*runtime.ModuleMeta {
	predicates := runtime.ParseModuleFilter(filter)
	sorter := runtime.ByModule(func(m1, m2 *runtime.ModuleMeta) bool { return m1.Name < m2.Name })

	n.mu.RLock()
	defer n.mu.RUnlock()
	metas := make([]*runtime.ModuleMeta, 0, len(n.modules))
	for _, m := range n.modules {
		meta := m.Meta()
		if runtime.Match(meta, predicates) {
			metas = sorter.Insert(metas, meta)
		}
	}
	return metas
}

// ListParameters describes the exported parameters of a module.
func (n *Node) ListParameters(name string) ([]runtime.ParameterMeta, error) {
	m, err := n.Module(name)
	if err != nil {
		return nil, err
	}
	var params []runtime.ParameterMeta
	for _, p := range m.Class().Parameters() {
		if p.Exported() {
			params = append(params, p.Meta())
		}
	}
	return params, nil
}

func (n *Node) exported(name, param string) (*module.Module, error) {
	m, err := n.Module(name)
	if err != nil {
		return nil, err
	}
	if p, ok := m.Class().Parameter(param); !ok || !p.Exported() {
		return nil, fmt.Errorf("%w: %s.%s", constant.ErrParameterNotFound, name, param)
	}
	return m, nil
}

func (n *Node) Read(ctx context.Context, name, param string) (module.Value, error) {
	m, err := n.exported(name, param)
	if err != nil {
		return module.Value{}, err
	}
	return m.Read(ctx, param)
}

func (n *Node) Write(ctx context.Context, name, param string, value interface{}) (module.Value, error) {
	m, err := n.exported(name, param)
	if err != nil {
		return module.Value{}, err
	}
	return m.Write(ctx, param, value)
}

// Subscribe registers sink for changes of exported parameters.
func (n *Node) Subscribe(name string, sink broadcast.Sink) (string, func()) {
	return n.broadcaster.Subscribe(sink, broadcast.WithName(name))
}

// Start polls every module once, then starts the pollers. Initial poll
// failures are logged, a device that is down at start is retried by its poller.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.cancel != nil {
		n.mu.Unlock()
		return fmt.Errorf("node %s already started", n.meta.Name)
	}
	ctx, n.cancel = context.WithCancel(ctx)
	modules := make([]*module.Module, 0, len(n.modules))
	for _, m := range n.modules {
		modules = append(modules, m)
	}
	n.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(initialPollLimit)
	for _, m := range modules {
		m := m
		g.Go(func() error {
			if err := m.Poll(gctx); err != nil {
				klog.ErrorS(err, "Initial poll failed", "module", m.Name())
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, m := range modules {
		n.pollers.Add(1)
		go func(m *module.Module) {
			defer n.pollers.Done()
			m.Run(ctx)
		}(m)
	}
	klog.InfoS("Node started", "node", n.meta.Name, "modules", len(modules))
	return nil
}

// Shutdown stops the pollers, closes every device link and the
// broadcaster, then runs the registered closers.
func (n *Node) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	var errs []error
	done := make(chan struct{})
	go func() {
		n.pollers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("pollers: %w", ctx.Err()))
	}

	if err := n.links.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("links: %w", err))
	}
	if err := n.broadcaster.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("broadcaster: %w", err))
	}
	for i := len(n.closers) - 1; i >= 0; i-- {
		c := n.closers[i]
		if err := c.Closer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Label, err))
		}
	}
	klog.InfoS("Node stopped", "node", n.meta.Name)
	return utilerrors.NewAggregate(errs)
}
