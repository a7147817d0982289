package config

import (
	"harnsnode/pkg/broadcast"
	"harnsnode/pkg/link"
	"harnsnode/pkg/node"
	"harnsnode/pkg/runtime"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

type Config struct {
	Node     *node.Node
	CertFile string
	KeyFile  string
}

// NodeDescriptor is the node section of the configuration file.
type NodeDescriptor struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	Links       []LinkDescriptor           `json:"links,omitempty"`
	MQTT        *MQTTDescriptor            `json:"mqtt,omitempty"`
	Modules     []runtime.ModuleDescriptor `json:"modules"`
}

// LinkDescriptor overrides the device link settings of one uri.
type LinkDescriptor struct {
	URI            string          `json:"uri"`
	Terminator     string          `json:"terminator,omitempty"`
	Identification []link.Probe    `json:"identification,omitempty"`
	Timeout        metav1.Duration `json:"timeout,omitempty"`
	ConnectTimeout metav1.Duration `json:"connectTimeout,omitempty"`
	DrainTimeout   metav1.Duration `json:"drainTimeout,omitempty"`
	BackoffInitial metav1.Duration `json:"backoffInitial,omitempty"`
	BackoffMax     metav1.Duration `json:"backoffMax,omitempty"`
	MaxRetries     int             `json:"maxRetries,omitempty"`
}

func (d *LinkDescriptor) LinkConfig() link.Config {
	return link.Config{
		URI:            d.URI,
		Terminator:     d.Terminator,
		Identification: d.Identification,
		Timeout:        d.Timeout.Duration,
		ConnectTimeout: d.ConnectTimeout.Duration,
		DrainTimeout:   d.DrainTimeout.Duration,
		Backoff: link.BackoffConfig{
			Initial: d.BackoffInitial.Duration,
			Max:     d.BackoffMax.Duration,
		},
		MaxRetries: d.MaxRetries,
	}
}

type MQTTDescriptor struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"clientId,omitempty"`
	Username    string          `json:"username,omitempty"`
	Password    string          `json:"password,omitempty"`
	TopicPrefix string          `json:"topicPrefix,omitempty"`
	Format      string          `json:"format,omitempty"`
	QoS         byte            `json:"qos,omitempty"`
	Retained    bool            `json:"retained,omitempty"`
	Timeout     metav1.Duration `json:"timeout,omitempty"`
}

func (d *MQTTDescriptor) MQTTConfig() broadcast.MQTTConfig {
	return broadcast.MQTTConfig{
		Broker:      d.Broker,
		ClientID:    d.ClientID,
		Username:    d.Username,
		Password:    d.Password,
		TopicPrefix: d.TopicPrefix,
		Format:      d.Format,
		QoS:         d.QoS,
		Retained:    d.Retained,
		Timeout:     d.Timeout.Duration,
	}
}
