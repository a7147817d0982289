package options

import (
	"context"
	"fmt"
	"harnsnode/cmd/node/config"
	"harnsnode/pkg/broadcast"
	"harnsnode/pkg/drivers/ccu4"
	"harnsnode/pkg/drivers/hostinfo"
	"harnsnode/pkg/generic"
	baseoptions "harnsnode/pkg/generic/options"
	"harnsnode/pkg/module"
	"harnsnode/pkg/node"
	"harnsnode/pkg/runtime"
	"harnsnode/pkg/storage"
	"time"

	"github.com/spf13/pflag"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
)

type Options struct {
	Port       string          `json:"port"`
	Wait       metav1.Duration `json:"graceful-timeout"`
	StorageDir string          `json:"storage-dir"`
	CertFile   string          `json:"tls-cert-file,omitempty"`
	KeyFile    string          `json:"tls-private-key-file,omitempty"`
	config.NodeDescriptor
	baseoptions.BaseOptions
}

const (
	_defaultPort = "32200"
	_defaultWait = 15 * time.Second
	_defaultName = "harnsnode"
)

func NewDefaultOptions() *Options {
	return &Options{
		Port:           _defaultPort,
		Wait:           metav1.Duration{Duration: _defaultWait},
		StorageDir:     storage.DefaultStorePath,
		NodeDescriptor: config.NodeDescriptor{Name: _defaultName},
		BaseOptions:    baseoptions.NewDefaultBaseOptions(),
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Port, "port", "P", o.Port, "Port exposed")
	fs.DurationVar(&o.Wait.Duration, "graceful-timeout", o.Wait.Duration, "The duration for which the server gracefully wait for existing connections to finish - e.g. 15s or 1m")
	fs.StringVar(&o.StorageDir, "storage-dir", o.StorageDir, "Directory holding the node identity and persistent parameters")
	fs.StringVar(&o.CertFile, "tls-cert-file", o.CertFile, "File containing the x509 certificate for HTTPS, HTTP is served if omitted")
	fs.StringVar(&o.KeyFile, "tls-private-key-file", o.KeyFile, "File containing the x509 private key matching --tls-cert-file")
	fs.StringVar(&o.Name, "name", o.Name, "Name of the node, overrides the configuration file")
}

// Registry holds every module class this binary ships.
func Registry() (*module.Registry, error) {
	r := module.NewRegistry()
	for _, register := range []func(*module.Registry) error{ccu4.Register, hostinfo.Register} {
		if err := register(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Config builds the node and its modules. Modules failing to build are all
// reported, the node is not started then.
func (o *Options) Config(ctx context.Context) (*config.Config, error) {
	meta, err := node.LoadMeta(o.StorageDir, o.Name, o.Description)
	if err != nil {
		return nil, err
	}
	store, err := generic.NewParameterStore(o.StorageDir, o.Name)
	if err != nil {
		return nil, err
	}
	registry, err := Registry()
	if err != nil {
		return nil, err
	}

	broadcaster := broadcast.NewBroadcaster()
	opts := []node.Option{
		node.WithRegistry(registry),
		node.WithParameterStore(store),
		node.WithBroadcaster(broadcaster),
	}
	for i := range o.Links {
		opts = append(opts, node.WithLinkConfig(o.Links[i].LinkConfig()))
	}

	if o.MQTT != nil {
		cfg := o.MQTT.MQTTConfig()
		if len(cfg.ClientID) == 0 {
			cfg.ClientID = fmt.Sprintf("%s-%s", o.Name, meta.ID)
		}
		client, err := broadcast.NewMQTTClient(cfg)
		if err != nil {
			return nil, err
		}
		sink, err := broadcast.NewMQTTSink(client, cfg)
		if err != nil {
			client.Disconnect(0)
			return nil, err
		}
		broadcaster.Subscribe(sink, broadcast.WithName("mqtt"))
		opts = append(opts, node.WithCloser(runtime.LabeledCloser{
			Label: "mqtt",
			Closer: func(context.Context) error {
				client.Disconnect(250)
				return nil
			},
		}))
	}

	n := node.New(meta, opts...)
	var errs []error
	for _, desc := range o.Modules {
		if _, err := n.AddModule(ctx, desc); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		if err := n.Shutdown(ctx); err != nil {
			klog.ErrorS(err, "Failed to release node resources")
		}
		return nil, utilerrors.NewAggregate(errs)
	}
	if err := n.PruneParameters(); err != nil {
		klog.ErrorS(err, "Failed to prune persistent parameters")
	}

	return &config.Config{
		Node:     n,
		CertFile: o.CertFile,
		KeyFile:  o.KeyFile,
	}, nil
}
