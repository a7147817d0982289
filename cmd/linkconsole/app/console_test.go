package app

import (
	"bytes"
	"context"
	"harnsnode/pkg/drivers/ccu4/ccu4sim"
	"harnsnode/pkg/link"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lines []string

func (l *lines) Readline() (string, error) {
	if len(*l) == 0 {
		return "", io.EOF
	}
	line := (*l)[0]
	*l = (*l)[1:]
	return line, nil
}

func newConsole(t *testing.T) (*console, *bytes.Buffer, *ccu4sim.Simulator) {
	t.Helper()
	sim, err := ccu4sim.New("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(sim.Close)

	o := &consoleOptions{URI: sim.URI(), Terminator: `\n`, Timeout: time.Second, IdentifyCommand: "cid", IdentifyPattern: "^CCU4"}
	l, err := link.New(o.linkConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	out := &bytes.Buffer{}
	return &console{link: l, out: out}, out, sim
}

func TestConsole(t *testing.T) {
	c, out, sim := newConsole(t)
	in := &lines{"h", "", "hem=500", ":query hfu", ":state", ":bogus", ":query", ":quit", "never"}
	require.NoError(t, c.run(context.Background(), in))

	s := out.String()
	assert.Contains(t, s, "h=57.3\n")
	assert.Contains(t, s, "hem=500\n")
	assert.Contains(t, s, "\n100\n")
	assert.Contains(t, s, "connected\n")
	assert.Contains(t, s, "unknown command :bogus")
	assert.Contains(t, s, "usage: :query <name>")
	assert.Equal(t, []string{"cid", "h", "hem=500", "hfu"}, sim.Lines())
	assert.Equal(t, []string{"never"}, []string(*in))
}

func TestConsoleErrors(t *testing.T) {
	c, out, sim := newConsole(t)
	sim.SetIdentity("LS370")
	assert.False(t, c.handle(context.Background(), "h"))
	assert.Contains(t, out.String(), "error: ")
}

func TestLinkConfig(t *testing.T) {
	o := &consoleOptions{URI: "tcp://ccu4:3001", Terminator: `\r\n`}
	cfg := o.linkConfig()
	assert.Equal(t, "\r\n", cfg.Terminator)
	assert.Empty(t, cfg.Identification)
}
