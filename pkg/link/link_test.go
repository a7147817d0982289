package link

import (
	"context"
	"harnsnode/pkg/link/linktest"
	"harnsnode/pkg/runtime/constant"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func newServer(t *testing.T, handler linktest.Handler) *linktest.Server {
	t.Helper()
	s, err := linktest.NewServer("127.0.0.1:0", "\n", handler)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newLink(t *testing.T, cfg Config) *Link {
	t.Helper()
	l, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		command string
		reply   string
		want    string
		wantErr bool
	}{
		{command: "h", reply: "h=57.3", want: "57.3"},
		{command: "hem=500", reply: "hem=500", want: "500"},
		{command: "hem=500", reply: "hem=499.5", want: "499.5"},
		{command: "cid", reply: "cid=CCU4=v2", want: "CCU4=v2"},
		{command: "h", reply: "hsf=0", wantErr: true},
		{command: "h", reply: "57.3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.reply, func(t *testing.T) {
			got, err := ParseReply(tt.command, tt.reply)
			if tt.wantErr {
				assert.ErrorIs(t, err, constant.ErrProtocol)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseURI(t *testing.T) {
	addr, err := ParseURI("tcp://ccu4:3001")
	require.NoError(t, err)
	assert.Equal(t, &Address{Scheme: SchemeTCP, Location: "ccu4:3001"}, addr)

	addr, err = ParseURI("localhost:3001")
	require.NoError(t, err)
	assert.Equal(t, SchemeTCP, addr.Scheme)

	addr, err = ParseURI("serial:///dev/ttyUSB0?baudrate=115200&parity=even&bytesize=7&stopbits=2")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", addr.Location)
	assert.Equal(t, &serial.Mode{BaudRate: 115200, DataBits: 7, Parity: serial.EvenParity, StopBits: serial.TwoStopBits}, addr.Mode)

	for _, uri := range []string{"tcp://nohost", "udp://host:1", "serial://", "serial:///dev/tty0?parity=weird"} {
		_, err = ParseURI(uri)
		assert.Error(t, err, uri)
	}
}

func TestQueryAndSet(t *testing.T) {
	s := newServer(t, linktest.Echo(map[string]string{"h": "57.3"}))
	l := newLink(t, Config{URI: s.URI()})
	assert.Equal(t, Disconnected, l.State())

	v, err := l.Query(context.Background(), "h")
	require.NoError(t, err)
	assert.Equal(t, "57.3", v)
	assert.Equal(t, Connected, l.State())

	v, err = l.Query(context.Background(), "hem=500")
	require.NoError(t, err)
	assert.Equal(t, "500", v)
	assert.Equal(t, []string{"h", "hem=500"}, s.Lines())
}

func TestProtocolErrorKeepsConnection(t *testing.T) {
	s := newServer(t, func(line string) linktest.Reply {
		if line == "bad" {
			return linktest.Reply{Line: "other=1"}
		}
		return linktest.Reply{Line: line + "=1"}
	})
	l := newLink(t, Config{URI: s.URI()})

	_, err := l.Query(context.Background(), "bad")
	assert.ErrorIs(t, err, constant.ErrProtocol)
	assert.Equal(t, Connected, l.State())

	v, err := l.Query(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestRequestsAreSerialized(t *testing.T) {
	s := newServer(t, func(line string) linktest.Reply {
		return linktest.Reply{Line: line + "=" + line, Delay: 20 * time.Millisecond}
	})
	l := newLink(t, Config{URI: s.URI()})

	commands := []string{"a", "b", "c", "d", "e"}
	var wg sync.WaitGroup
	for _, c := range commands {
		wg.Add(1)
		go func(c string) {
			defer wg.Done()
			v, err := l.Query(context.Background(), c)
			assert.NoError(t, err)
			assert.Equal(t, c, v)
		}(c)
	}
	wg.Wait()

	received := s.Received()
	replied := s.Replied()
	require.Len(t, received, len(commands))
	require.Len(t, replied, len(commands))
	for i := 1; i < len(received); i++ {
		assert.False(t, received[i].At.Before(replied[i-1]), "request %d sent before reply %d", i, i-1)
	}
}

func TestTimeoutThenNextReadSucceeds(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	s := newServer(t, func(line string) linktest.Reply {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return linktest.Reply{Line: "h=1", Delay: 150 * time.Millisecond}
		}
		return linktest.Reply{Line: "h=2"}
	})
	l := newLink(t, Config{URI: s.URI(), Timeout: 50 * time.Millisecond, DrainTimeout: 500 * time.Millisecond})

	_, err := l.Query(context.Background(), "h")
	assert.ErrorIs(t, err, constant.ErrTimeout)
	assert.Equal(t, Connected, l.State())

	v, err := l.Query(context.Background(), "h")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestReplyLaterThanDrainWindow(t *testing.T) {
	var mu sync.Mutex
	first := true
	s := newServer(t, func(line string) linktest.Reply {
		mu.Lock()
		defer mu.Unlock()
		if line == "h" && first {
			first = false
			return linktest.Reply{Line: "h=late", Delay: 600 * time.Millisecond}
		}
		return linktest.Reply{Line: line + "=ok"}
	})
	l := newLink(t, Config{URI: s.URI(), Timeout: 300 * time.Millisecond})

	_, err := l.Query(context.Background(), "h")
	require.ErrorIs(t, err, constant.ErrTimeout)

	for _, command := range []string{"hsf", "h", "hem", "hsf", "h"} {
		v, err := l.Query(context.Background(), command)
		require.NoError(t, err, command)
		assert.Equal(t, "ok", v, command)
	}
	assert.Equal(t, Connected, l.State())
}

func TestMismatchedReplyWithoutLateReply(t *testing.T) {
	s := newServer(t, func(line string) linktest.Reply {
		return linktest.Reply{Line: "hsf=0"}
	})
	l := newLink(t, Config{URI: s.URI(), Timeout: 200 * time.Millisecond})

	_, err := l.Query(context.Background(), "h")
	assert.ErrorIs(t, err, constant.ErrProtocol)
	assert.Equal(t, Connected, l.State())
}

func TestAbandonedRequestKeepsFIFO(t *testing.T) {
	s := newServer(t, func(line string) linktest.Reply {
		if line == "a" {
			return linktest.Reply{Line: "a=1", Delay: 100 * time.Millisecond}
		}
		return linktest.Reply{Line: line + "=2"}
	})
	l := newLink(t, Config{URI: s.URI(), Timeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Query(ctx, "a")
	assert.ErrorIs(t, err, constant.ErrTimeout)

	v, err := l.Query(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestIdentification(t *testing.T) {
	s := newServer(t, func(line string) linktest.Reply {
		if line == "cid" {
			return linktest.Reply{Line: "CCU4v2.1"}
		}
		return linktest.Reply{Line: line + "=0"}
	})
	l := newLink(t, Config{URI: s.URI(), Identification: []Probe{{Command: "cid", Pattern: "CCU4.*"}}})

	require.NoError(t, l.Connect(context.Background()))
	assert.Equal(t, Connected, l.State())
	_, err := l.Query(context.Background(), "h")
	require.NoError(t, err)
	assert.Equal(t, []string{"cid", "h"}, s.Lines())
}

func TestIdentificationMismatch(t *testing.T) {
	s := newServer(t, func(line string) linktest.Reply {
		return linktest.Reply{Line: "XYZ"}
	})
	var mu sync.Mutex
	var states []State
	l, err := New(Config{
		URI:            s.URI(),
		Identification: []Probe{{Command: "cid", Pattern: "CCU4.*"}},
		Backoff:        BackoffConfig{Initial: time.Minute},
	}, WithStateListener(func(uri string, from, to State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, to)
	}))
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Query(context.Background(), "h")
	assert.ErrorIs(t, err, constant.ErrConnection)
	assert.ErrorIs(t, err, constant.ErrIdentification)
	assert.Equal(t, Failed, l.State())

	_, err = l.Query(context.Background(), "h")
	assert.ErrorIs(t, err, constant.ErrConnection)
	assert.Equal(t, []string{"cid"}, s.Lines())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Connecting, Identifying, Failed}, states)
}

func TestTransportFailureReconnects(t *testing.T) {
	s := newServer(t, func(line string) linktest.Reply {
		if line == "slow" {
			return linktest.Reply{Line: "slow=1", Delay: 200 * time.Millisecond}
		}
		return linktest.Reply{Line: line + "=1"}
	})
	l := newLink(t, Config{URI: s.URI(), Backoff: BackoffConfig{Initial: 10 * time.Millisecond, Max: 20 * time.Millisecond}})

	errCh := make(chan error, 1)
	go func() {
		_, err := l.Query(context.Background(), "slow")
		errCh <- err
	}()
	require.Eventually(t, func() bool { return len(s.Lines()) == 1 }, time.Second, 5*time.Millisecond)
	s.DropConnections()

	err := <-errCh
	assert.ErrorIs(t, err, constant.ErrConnection)
	require.Eventually(t, func() bool { return l.State() == Connected }, 2*time.Second, 5*time.Millisecond)

	v, err := l.Query(context.Background(), "h")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestClose(t *testing.T) {
	s := newServer(t, linktest.Echo(map[string]string{"h": "1"}))
	l, err := New(Config{URI: s.URI()})
	require.NoError(t, err)
	_, err = l.Query(context.Background(), "h")
	require.NoError(t, err)

	require.NoError(t, l.Close())
	assert.Equal(t, Closed, l.State())
	_, err = l.Query(context.Background(), "h")
	assert.ErrorIs(t, err, constant.ErrLinkClosed)
}

func TestCommandWithTerminator(t *testing.T) {
	l := newLink(t, Config{URI: "tcp://127.0.0.1:1"})
	_, err := l.Communicate(context.Background(), "h\nh")
	assert.ErrorIs(t, err, constant.ErrProtocol)
}

func TestBackoff(t *testing.T) {
	b := NewBackoff(BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Multiplier: 2})
	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}, got)
	assert.Equal(t, 5, b.Attempts())
	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func TestManagerSharesLinks(t *testing.T) {
	s := newServer(t, linktest.Echo(map[string]string{"h": "1"}))
	m := NewManager()

	l1, err := m.Acquire(Config{URI: s.URI()})
	require.NoError(t, err)
	l2, err := m.Acquire(Config{URI: s.URI()})
	require.NoError(t, err)
	assert.Same(t, l1, l2)
	assert.Len(t, m.Links(), 1)

	require.NoError(t, m.Release(l1))
	assert.NotEqual(t, Closed, l2.State())
	require.NoError(t, m.Release(l2))
	assert.Equal(t, Closed, l2.State())
	assert.Empty(t, m.Links())
	assert.Error(t, m.Release(l2))
}
