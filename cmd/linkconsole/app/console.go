package app

import (
	"context"
	"errors"
	"fmt"
	"harnsnode/pkg/link"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

const (
	ComponentConsole = "harns-linkconsole"
)

type consoleOptions struct {
	URI             string
	Terminator      string
	Timeout         time.Duration
	IdentifyCommand string
	IdentifyPattern string
}

func (o *consoleOptions) linkConfig() link.Config {
	cfg := link.Config{
		URI:        o.URI,
		Terminator: strings.NewReplacer(`\r`, "\r", `\n`, "\n").Replace(o.Terminator),
		Timeout:    o.Timeout,
	}
	if len(o.IdentifyCommand) > 0 {
		cfg.Identification = []link.Probe{{Command: o.IdentifyCommand, Pattern: o.IdentifyPattern}}
	}
	return cfg
}

func NewConsoleCmd() *cobra.Command {
	o := &consoleOptions{Terminator: `\n`, Timeout: link.DefaultTimeout}
	cmd := &cobra.Command{
		Use:          ComponentConsole,
		Short:        "Send raw lines to a device link",
		Long:         `The link console opens a device link the way the node does and sends every typed line as a request, printing the reply.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(o.URI) == 0 {
				return errors.New("--uri is required")
			}
			l, err := link.New(o.linkConfig())
			if err != nil {
				return err
			}
			defer l.Close()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          fmt.Sprintf("%s> ", l.URI()),
				InterruptPrompt: "^C",
				EOFPrompt:       ":quit",
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()

			c := &console{link: l, out: rl.Stdout()}
			return c.run(cmd.Context(), rl)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&o.URI, "uri", "u", o.URI, "Device uri, tcp://host:port or serial:///dev/ttyUSB0?baud=9600")
	fs.StringVar(&o.Terminator, "terminator", o.Terminator, `Line terminator, \r and \n are unescaped`)
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Reply timeout")
	fs.StringVar(&o.IdentifyCommand, "identify-command", o.IdentifyCommand, "Identification request sent after connecting")
	fs.StringVar(&o.IdentifyPattern, "identify-pattern", o.IdentifyPattern, "Regular expression the identification reply must match")
	return cmd
}

type console struct {
	link *link.Link
	out  io.Writer
}

type lineReader interface {
	Readline() (string, error)
}

func (c *console) run(ctx context.Context, rl lineReader) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.printHelp()
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}
		if quit := c.handle(ctx, line); quit {
			return nil
		}
	}
}

// handle executes one console line and reports whether the console should
// stop.
func (c *console) handle(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if len(input) == 0 {
		return false
	}
	if !strings.HasPrefix(input, ":") {
		c.reply(c.link.Communicate(ctx, input))
		return false
	}

	parts := strings.SplitN(input, " ", 2)
	switch parts[0] {
	case ":quit", ":q":
		return true
	case ":help", ":h":
		c.printHelp()
	case ":state":
		fmt.Fprintln(c.out, c.link.State())
	case ":connect":
		if err := c.link.Connect(ctx); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		} else {
			fmt.Fprintln(c.out, c.link.State())
		}
	case ":query":
		if len(parts) < 2 || len(strings.TrimSpace(parts[1])) == 0 {
			fmt.Fprintln(c.out, "usage: :query <name>")
			return false
		}
		c.reply(c.link.Query(ctx, strings.TrimSpace(parts[1])))
	default:
		fmt.Fprintf(c.out, "unknown command %s, try :help\n", parts[0])
	}
	return false
}

func (c *console) reply(reply string, err error) {
	if err != nil {
		klog.V(2).InfoS("Request failed", "uri", c.link.URI(), "err", err)
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, reply)
}

func (c *console) printHelp() {
	fmt.Fprint(c.out, `Lines are sent as they are typed. Console commands:
  :query <name>  send <name> and print the value of the name=value reply
  :state         print the link state
  :connect       connect now
  :help          show this help
  :quit          leave
`)
}
