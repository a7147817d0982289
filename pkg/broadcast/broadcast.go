// Package broadcast fans change events out to subscribers. Notify never
// blocks: every subscriber owns an unbounded queue drained by its own
// goroutine, so a slow sink delays only itself.
package broadcast

import (
	"context"
	"harnsnode/pkg/runtime"
	"harnsnode/pkg/utils/uuidutil"
	"sync"

	"k8s.io/klog/v2"
)

// Sink receives events in the order they were accepted.
type Sink interface {
	Deliver(ev runtime.ChangeEvent) error
}

type SinkFunc func(ev runtime.ChangeEvent) error

func (f SinkFunc) Deliver(ev runtime.ChangeEvent) error { return f(ev) }

type SubscribeOption func(*subscriber)

// WithInternal also delivers events of internal parameters.
func WithInternal() SubscribeOption {
	return func(s *subscriber) {
		s.internal = true
	}
}

// WithName labels the subscriber in logs and metrics.
func WithName(name string) SubscribeOption {
	return func(s *subscriber) {
		s.name = name
	}
}

type subscriber struct {
	id       string
	name     string
	sink     Sink
	internal bool

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []runtime.ChangeEvent
	closed bool
	done   chan struct{}
}

func (s *subscriber) push(ev runtime.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, ev)
	queueDepth.WithLabelValues(s.name).Set(float64(len(s.queue)))
	s.cond.Signal()
}

func (s *subscriber) stop() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}

// run delivers until stopped, then flushes what is still queued.
func (s *subscriber) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		queueDepth.WithLabelValues(s.name).Set(0)
		s.mu.Unlock()

		for _, ev := range batch {
			if err := s.sink.Deliver(ev); err != nil {
				recordDelivery(s.name, false)
				klog.V(2).InfoS("Failed to deliver change event", "subscriber", s.name, "module", ev.Module, "param", ev.Parameter, "err", err)
				continue
			}
			recordDelivery(s.name, true)
		}
	}
}

type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]*subscriber)}
}

// Notify queues ev for every subscriber. Events of internal parameters only
// reach subscribers registered WithInternal.
func (b *Broadcaster) Notify(ev runtime.ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if ev.Internal && !s.internal {
			continue
		}
		s.push(ev)
	}
}

// Subscribe registers sink and returns its id and a cancel func. Cancel
// waits until events queued before it was called are delivered.
func (b *Broadcaster) Subscribe(sink Sink, opts ...SubscribeOption) (string, func()) {
	s := &subscriber{
		id:   uuidutil.ShortUUID(),
		sink: sink,
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	if len(s.name) == 0 {
		s.name = s.id
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.done)
		return s.id, func() {}
	}
	b.subs[s.id] = s
	b.mu.Unlock()
	go s.run()
	klog.V(2).InfoS("Subscribed to change events", "subscriber", s.name)

	var once sync.Once
	return s.id, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s.id)
			b.mu.Unlock()
			s.stop()
			<-s.done
		})
	}
}

func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops accepting subscribers and waits for queued events to be
// delivered or ctx to end.
func (b *Broadcaster) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	for _, s := range subs {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
