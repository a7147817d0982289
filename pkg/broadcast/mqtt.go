package broadcast

import (
	"fmt"
	"harnsnode/pkg/runtime"
	"path"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"k8s.io/klog/v2"
)

const (
	mqttTimeout        = 3 * time.Second
	DefaultTopicPrefix = "harnsnode"
)

type MQTTConfig struct {
	Broker      string        `json:"broker"`
	ClientID    string        `json:"clientId,omitempty"`
	Username    string        `json:"username,omitempty"`
	Password    string        `json:"password,omitempty"`
	TopicPrefix string        `json:"topicPrefix,omitempty"`
	Format      string        `json:"format,omitempty"`
	QoS         byte          `json:"qos,omitempty"`
	Retained    bool          `json:"retained,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// NewMQTTClient connects to cfg.Broker. The client reconnects on its own
// after the first successful connect.
func NewMQTTClient(cfg MQTTConfig) (mqtt.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = mqttTimeout
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout).
		SetOnConnectHandler(func(mqtt.Client) {
			klog.InfoS("Connected to MQTT broker", "broker", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			klog.ErrorS(err, "Lost connection to MQTT broker", "broker", cfg.Broker)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect to MQTT broker %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %v", cfg.Broker, err)
	}
	return client, nil
}

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes every event to <prefix>/<module>/<parameter>.
type MQTTSink struct {
	client   Publisher
	prefix   string
	codec    Codec
	qos      byte
	retained bool
	timeout  time.Duration
}

func NewMQTTSink(client Publisher, cfg MQTTConfig) (*MQTTSink, error) {
	codec, err := NewCodec(cfg.Format)
	if err != nil {
		return nil, err
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid MQTT qos %d", cfg.QoS)
	}
	s := &MQTTSink{
		client:   client,
		prefix:   cfg.TopicPrefix,
		codec:    codec,
		qos:      cfg.QoS,
		retained: cfg.Retained,
		timeout:  cfg.Timeout,
	}
	if len(s.prefix) == 0 {
		s.prefix = DefaultTopicPrefix
	}
	if s.timeout <= 0 {
		s.timeout = mqttTimeout
	}
	return s, nil
}

func (s *MQTTSink) Topic(ev runtime.ChangeEvent) string {
	return path.Join(s.prefix, ev.Module, ev.Parameter)
}

func (s *MQTTSink) Deliver(ev runtime.ChangeEvent) error {
	publishData := runtime.NewPublishData(ev)
	payload, err := s.codec.Marshal(publishData)
	if err != nil {
		return err
	}
	topic := s.Topic(ev)
	token := s.client.Publish(topic, s.qos, s.retained, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return err
	}
	klog.V(5).InfoS("Succeed to publish MQTT", "topic", topic, "data", publishData)
	return nil
}
