// Package link manages line oriented request/reply connections to devices.
// A Link owns one transport and one worker goroutine. Callers queue
// requests, the worker runs them strictly one at a time in FIFO order.
package link

import (
	"context"
	"errors"
	"fmt"
	"harnsnode/pkg/runtime/constant"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"k8s.io/klog/v2"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Identifying
	Connected
	Failed
	Closed
)

var StateToString = map[State]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Identifying:  "identifying",
	Connected:    "connected",
	Failed:       "failed",
	Closed:       "closed",
}

func (s State) String() string {
	return StateToString[s]
}

const (
	DefaultTerminator     = "\n"
	DefaultTimeout        = 2 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultDrainTimeout   = 100 * time.Millisecond
)

// Probe is one identification exchange. Pattern must match the start of the reply.
type Probe struct {
	Command string `json:"command"`
	Pattern string `json:"pattern"`
}

type Config struct {
	URI        string
	Terminator string
	// Identification runs once per successful transport connect.
	Identification []Probe
	// Timeout bounds a single exchange.
	Timeout        time.Duration
	ConnectTimeout time.Duration
	// DrainTimeout is how long a late reply to a timed out request is
	// waited for before the next request is sent.
	DrainTimeout time.Duration
	Backoff      BackoffConfig
	// MaxRetries bounds automatic reconnects after a failure, 0 is unbounded.
	// Requests arriving after the backoff elapsed always trigger an attempt.
	MaxRetries int
}

func (c *Config) complete() {
	if len(c.Terminator) == 0 {
		c.Terminator = DefaultTerminator
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
}

type Option func(*Link)

// WithDialer replaces the transport dialer.
func WithDialer(d Dialer) Option {
	return func(l *Link) {
		l.dial = d
	}
}

// WithStateListener is called from the worker on every state transition.
func WithStateListener(f func(uri string, from, to State)) Option {
	return func(l *Link) {
		l.listeners = append(l.listeners, f)
	}
}

type probe struct {
	Probe
	re *regexp.Regexp
}

type result struct {
	reply string
	err   error
}

type request struct {
	ctx         context.Context
	command     string
	expect      string
	connectOnly bool
	done        chan result
}

func (r *request) finish(reply string, err error) {
	r.done <- result{reply: reply, err: err}
}

type Link struct {
	cfg       Config
	addr      *Address
	probes    []probe
	dial      Dialer
	listeners []func(uri string, from, to State)

	state    *atomic.Int32
	requests chan *request
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	// owned by the worker
	messenger Messenger
	backoff   *Backoff
	retryAt   time.Time
	retries   int
	lastErr   error
	stale     int
	undrained bool
	timer     *time.Timer
}

// New validates the configuration and starts the worker. The transport is
// opened lazily on the first request or by Connect.
func New(cfg Config, opts ...Option) (*Link, error) {
	cfg.complete()
	addr, err := ParseURI(cfg.URI)
	if err != nil {
		return nil, err
	}

	l := &Link{
		cfg:      cfg,
		addr:     addr,
		dial:     Dial,
		state:    atomic.NewInt32(int32(Disconnected)),
		requests: make(chan *request),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		backoff:  NewBackoff(cfg.Backoff),
	}
	for _, p := range cfg.Identification {
		re, err := regexp.Compile("^(?:" + p.Pattern + ")")
		if err != nil {
			return nil, fmt.Errorf("invalid identification pattern %q: %v", p.Pattern, err)
		}
		l.probes = append(l.probes, probe{Probe: p, re: re})
	}
	for _, opt := range opts {
		opt(l)
	}

	recordState(cfg.URI, Disconnected)
	go l.run()
	return l, nil
}

func (l *Link) URI() string {
	return l.cfg.URI
}

func (l *Link) Terminator() string {
	return l.cfg.Terminator
}

func (l *Link) State() State {
	return State(l.state.Load())
}

// Connect opens the transport and runs identification if not connected yet.
func (l *Link) Connect(ctx context.Context) error {
	_, err := l.submit(ctx, &request{ctx: ctx, connectOnly: true, done: make(chan result, 1)})
	return err
}

// Communicate sends one command and returns the raw reply line.
// If ctx ends while the exchange is in flight the worker still finishes it
// before serving the next request.
func (l *Link) Communicate(ctx context.Context, command string) (string, error) {
	return l.communicate(ctx, command, "")
}

// Query sends a <name> or <name>=<value> command and returns the value of
// the matching <name>=<value> reply.
func (l *Link) Query(ctx context.Context, command string) (string, error) {
	reply, err := l.communicate(ctx, command, CommandName(command))
	if err != nil {
		return "", err
	}
	return ParseReply(command, reply)
}

// communicate submits command. A non-empty expect names the reply, lines
// with another name are taken for late replies while any are outstanding.
func (l *Link) communicate(ctx context.Context, command, expect string) (string, error) {
	if strings.Contains(command, l.cfg.Terminator) {
		return "", fmt.Errorf("%w: command %q contains the line terminator", constant.ErrProtocol, command)
	}
	return l.submit(ctx, &request{ctx: ctx, command: command, expect: expect, done: make(chan result, 1)})
}

func (l *Link) submit(ctx context.Context, req *request) (string, error) {
	select {
	case l.requests <- req:
	case <-ctx.Done():
		return "", contextError(ctx)
	case <-l.stopCh:
		return "", constant.ErrLinkClosed
	}
	select {
	case res := <-req.done:
		return res.reply, res.err
	case <-ctx.Done():
		return "", contextError(ctx)
	}
}

func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", constant.ErrTimeout, ctx.Err())
	}
	return ctx.Err()
}

// Close stops the worker, fails queued requests and closes the transport.
// An exchange in flight is allowed to finish.
func (l *Link) Close() error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	<-l.doneCh
	return nil
}

func (l *Link) run() {
	defer close(l.doneCh)
	for {
		select {
		case <-l.stopCh:
			l.stopTimer()
			l.failQueued(constant.ErrLinkClosed)
			l.disconnect()
			l.setState(Closed)
			return
		case <-l.retryC():
			l.timer = nil
			klog.V(2).InfoS("Reconnecting device link", "uri", l.cfg.URI, "attempt", l.retries)
			_ = l.connect()
		case req := <-l.requests:
			l.serve(req)
		}
	}
}

func (l *Link) retryC() <-chan time.Time {
	if l.State() != Failed || (l.cfg.MaxRetries > 0 && l.retries >= l.cfg.MaxRetries) {
		l.stopTimer()
		return nil
	}
	if l.timer == nil {
		l.timer = time.NewTimer(time.Until(l.retryAt))
	}
	return l.timer.C
}

func (l *Link) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Link) serve(req *request) {
	if req.ctx.Err() != nil {
		req.finish("", contextError(req.ctx))
		return
	}
	if err := l.ensureConnected(); err != nil {
		req.finish("", err)
		return
	}
	if req.connectOnly {
		req.finish("", nil)
		return
	}

	start := time.Now()
	reply, err := l.exchange(req.command, req.expect)
	switch {
	case err == nil:
		recordExchange(l.cfg.URI, "ok", time.Since(start))
		req.finish(reply, nil)
	case errors.Is(err, constant.ErrTimeout):
		recordExchange(l.cfg.URI, "timeout", time.Since(start))
		l.stale++
		l.undrained = true
		req.finish("", err)
	default:
		recordExchange(l.cfg.URI, "error", time.Since(start))
		cerr := l.fail(fmt.Errorf("%w: %s: %v", constant.ErrConnection, l.cfg.URI, err))
		req.finish("", cerr)
		l.failQueued(cerr)
	}
}

func (l *Link) ensureConnected() error {
	switch l.State() {
	case Connected:
		return nil
	case Failed:
		if time.Now().Before(l.retryAt) {
			return l.lastErr
		}
	}
	return l.connect()
}

func (l *Link) connect() error {
	l.stopTimer()
	l.setState(Connecting)
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.ConnectTimeout)
	m, err := l.dial(ctx, l.addr, l.cfg.Terminator)
	cancel()
	if err != nil {
		return l.fail(fmt.Errorf("%w: connect %s: %v", constant.ErrConnection, l.cfg.URI, err))
	}
	l.messenger = m
	l.stale = 0
	l.undrained = false

	l.setState(Identifying)
	for _, p := range l.probes {
		reply, err := l.exchange(p.Command, "")
		if err != nil {
			return l.fail(fmt.Errorf("%w: %w: probe %q on %s: %v", constant.ErrConnection, constant.ErrIdentification, p.Command, l.cfg.URI, err))
		}
		if !p.re.MatchString(reply) {
			return l.fail(fmt.Errorf("%w: %w: probe %q on %s replied %q, expected %q", constant.ErrConnection, constant.ErrIdentification, p.Command, l.cfg.URI, reply, p.Pattern))
		}
	}

	recordConnect(l.cfg.URI, true)
	l.backoff.Reset()
	l.retries = 0
	l.lastErr = nil
	l.setState(Connected)
	return nil
}

// fail closes the transport and schedules the next reconnect.
func (l *Link) fail(err error) error {
	l.disconnect()
	recordConnect(l.cfg.URI, false)
	l.lastErr = err
	delay := l.backoff.Next()
	l.retryAt = time.Now().Add(delay)
	l.retries++
	klog.ErrorS(err, "Device link failed", "uri", l.cfg.URI, "retryIn", delay)
	l.setState(Failed)
	return err
}

func (l *Link) disconnect() {
	if l.messenger != nil {
		if err := l.messenger.Close(); err != nil {
			klog.V(2).InfoS("Failed to close transport", "uri", l.cfg.URI, "err", err)
		}
		l.messenger = nil
	}
}

func (l *Link) failQueued(err error) {
	for {
		select {
		case req := <-l.requests:
			req.finish("", err)
		default:
			return
		}
	}
}

// exchange sends command and reads its reply. While late replies are
// outstanding, lines not named expect are discarded as one of them.
func (l *Link) exchange(command, expect string) (string, error) {
	if l.undrained {
		l.drainStale()
		l.undrained = false
	}
	klog.V(4).InfoS("Sending", "uri", l.cfg.URI, "command", command)
	if err := l.messenger.Send([]byte(command + l.cfg.Terminator)); err != nil {
		return "", err
	}
	deadline := time.Now().Add(l.cfg.Timeout)
	for {
		reply, err := l.messenger.ReadLine(deadline)
		if errors.Is(err, errReadTimeout) {
			return "", fmt.Errorf("%w: no reply to %q from %s within %s", constant.ErrTimeout, command, l.cfg.URI, l.cfg.Timeout)
		}
		if err != nil {
			return "", err
		}
		klog.V(4).InfoS("Received", "uri", l.cfg.URI, "reply", reply)
		if l.stale > 0 && len(expect) > 0 && replyName(reply) != expect {
			klog.V(2).InfoS("Discarded late reply", "uri", l.cfg.URI, "command", command, "reply", reply)
			l.stale--
			continue
		}
		return reply, nil
	}
}

// drainStale discards late replies arriving within the drain window. Replies
// still missing afterwards stay counted for exchange to recognise.
func (l *Link) drainStale() {
	deadline := time.Now().Add(l.cfg.DrainTimeout)
	for l.stale > 0 {
		line, err := l.messenger.ReadLine(deadline)
		if err != nil {
			break
		}
		klog.V(2).InfoS("Discarded late reply", "uri", l.cfg.URI, "reply", line)
		l.stale--
	}
	l.messenger.Discard()
}

func (l *Link) setState(s State) {
	from := State(l.state.Swap(int32(s)))
	if from == s {
		return
	}
	recordState(l.cfg.URI, s)
	klog.V(2).InfoS("Device link state changed", "uri", l.cfg.URI, "from", from, "to", s)
	for _, f := range l.listeners {
		f(l.cfg.URI, from, s)
	}
}
