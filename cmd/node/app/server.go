package app

import (
	"context"
	"harnsnode/cmd/node/config"
	"harnsnode/cmd/node/options"
	"harnsnode/pkg/generic"
	baseoptions "harnsnode/pkg/generic/options"
	"harnsnode/pkg/version"
	"harnsnode/pkg/version/verflag"
	"harnsnode/pkg/web"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	utilserrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
)

const (
	ComponentNode = "harns-node"
)

func NewNodeCmd() *cobra.Command {
	cleanFlagSet := pflag.NewFlagSet(ComponentNode, pflag.ContinueOnError)
	o := options.NewDefaultOptions()
	cmd := &cobra.Command{
		Use:                ComponentNode,
		Long:               `The harns node serves the modules of laboratory instruments: it talks to the devices, caches and validates their parameters and publishes changes.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// initial flag parse, since we disable cobra's flag parsing
			if err := cleanFlagSet.Parse(args); err != nil {
				klog.ErrorS(err, "Failed to parse flag")
				_ = cmd.Usage()
				os.Exit(1)
			}

			// check if there are non-flag arguments in the command line
			cmds := cleanFlagSet.Args()
			if len(cmds) > 0 {
				klog.ErrorS(nil, "Unknown command", "command", cmds[0])
				_ = cmd.Usage()
				os.Exit(1)
			}

			// short-circuit on help
			baseoptions.PrintHelpAndExitIfRequested(cmd, cleanFlagSet)

			// short-circuit on defaultconfig
			baseoptions.PrintDefaultConfigAndExitIfRequested(options.NewDefaultOptions(), cleanFlagSet)

			// short-circuit on verflag
			verflag.PrintAndExitIfRequested()

			if err := baseoptions.ParseAndApplyConfigFile(o, args); err != nil {
				return err
			}

			if errs := options.Validate(o); len(errs) != 0 {
				return utilserrors.NewAggregate(errs)
			}

			// To help debugging, immediately log version
			klog.InfoS("Starting node", "version", version.Get())
			return run(o)
		},
	}

	verflag.AddFlags(cleanFlagSet)
	o.AddFlags(cleanFlagSet)
	o.AddBaseFlags(cmd, cleanFlagSet)

	return cmd
}

func run(o *options.Options) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := o.Config(ctx)
	if err != nil {
		return err
	}

	exit, err := start(ctx, o.Port, c)
	if err != nil {
		return err
	}
	klog.InfoS("Server started", "port", o.Port, "node", c.Node.Meta().Name)
	// Graceful shutdown
	// Wait for interrupt signal to gracefully shutdown the server
	exitCh := make(chan os.Signal, 1)
	// kill (no param) default send syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	// kill -9 is syscall.SIGKILL but can't be catch, so don't need add it
	signal.Notify(exitCh, syscall.SIGINT, syscall.SIGTERM)
	<-exitCh
	sctx, scancel := context.WithTimeout(context.Background(), o.Wait.Duration)
	defer scancel()

	exit(sctx)
	return nil
}

// start serves c on port. The node is shut down again if anything fails.
func start(ctx context.Context, port string, c *config.Config) (exit func(context.Context), err error) {
	defer func() {
		if err == nil {
			return
		}
		if serr := c.Node.Shutdown(ctx); serr != nil {
			klog.ErrorS(serr, "Failed to shutdown node")
		}
	}()

	server, err := web.NewServer(generic.Default(), port, c)
	if err != nil {
		return nil, err
	}
	if err := c.Node.Start(ctx); err != nil {
		return nil, err
	}
	return server.Serve()
}
