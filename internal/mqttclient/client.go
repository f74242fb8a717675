// Package mqttclient connects the gateway to an MQTT broker so that nearby
// devices can publish records without going through HTTP.
package mqttclient

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Options configures the broker connection.
type Options struct {
	BrokerURL string
	ClientID  string
}

type subscription struct {
	qos     byte
	handler mqtt.MessageHandler
}

// Client keeps a broker connection alive in the background and restores
// every registered subscription each time the connection is (re)established.
type Client struct {
	raw mqtt.Client

	mu   sync.Mutex
	subs map[string]subscription
}

// ClientID returns prefix with a random suffix so that two gateways sharing
// a configuration do not kick each other off the broker.
func ClientID(prefix string) string {
	if prefix == "" {
		prefix = "field-gateway"
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

// New prepares a client for opts. No connection is attempted until Connect.
func New(opts Options) *Client {
	c := &Client{subs: make(map[string]subscription)}

	o := mqtt.NewClientOptions()
	o.AddBroker(opts.BrokerURL)
	o.SetClientID(opts.ClientID)
	o.SetCleanSession(true)
	o.SetAutoReconnect(true)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(2 * time.Second)
	o.SetOnConnectHandler(c.onConnect)
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logrus.WithError(err).Warn("MQTT connection lost, reconnecting")
	})

	c.raw = mqtt.NewClient(o)
	return c
}

// Connect starts connecting and waits at most timeout for the first
// connection. When the broker is not reachable in time the client keeps
// retrying in the background and Connect returns nil.
func (c *Client) Connect(timeout time.Duration) error {
	token := c.raw.Connect()
	if !token.WaitTimeout(timeout) {
		logrus.WithField("timeout", timeout).Warn("MQTT broker not reachable yet, retrying in background")
		return nil
	}
	return token.Error()
}

// Subscribe registers handler for topic. The subscription is made now if the
// client is connected and again after every reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if !c.raw.IsConnected() {
		return nil
	}
	token := c.raw.Subscribe(topic, qos, handler)
	token.Wait()
	return token.Error()
}

// onConnect runs on paho's connect goroutine after each successful connect.
// A clean session drops server-side subscriptions, so all are made again.
func (c *Client) onConnect(raw mqtt.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		subs[topic] = s
	}
	c.mu.Unlock()

	logrus.WithField("subscriptions", len(subs)).Info("MQTT connected")
	for topic, s := range subs {
		token := raw.Subscribe(topic, s.qos, s.handler)
		if token.Wait() && token.Error() != nil {
			logrus.WithError(token.Error()).WithField("topic", topic).Error("MQTT subscribe failed")
		}
	}
}

func (c *Client) Close() {
	c.raw.Disconnect(250)
}
