package mqttclient

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"field-gateway/internal/errs"
	"field-gateway/internal/ingest"
	"field-gateway/internal/model"
)

// Submitter accepts validated submissions.
type Submitter interface {
	Submit(ctx context.Context, sub model.Submission) (int64, error)
}

// Subscriber stores every JSON record published on a topic.
type Subscriber struct {
	client  *Client
	sink    Submitter
	topic   string
	qos     byte
	timeout time.Duration
}

func NewSubscriber(c *Client, sink Submitter, topic string, qos byte) *Subscriber {
	return &Subscriber{client: c, sink: sink, topic: topic, qos: qos, timeout: 5 * time.Second}
}

func (s *Subscriber) Start() error {
	logrus.WithField("topic", s.topic).Info("Registering MQTT records subscription")
	return s.client.Subscribe(s.topic, s.qos, s.handle)
}

func (s *Subscriber) handle(_ mqtt.Client, msg mqtt.Message) {
	log := logrus.WithField("topic", msg.Topic())
	id, err := s.process(msg.Payload())
	if err != nil {
		log.WithError(err).Warn("Dropping MQTT record")
		return
	}
	log.WithField("id", id).Debug("Stored MQTT record")
}

// process decodes a payload shaped like the HTTP data endpoint body and
// stores it.
func (s *Subscriber) process(body []byte) (int64, error) {
	var p ingest.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return 0, errs.Malformed("invalid json: %v", err)
	}
	sub, err := p.Submission()
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.sink.Submit(ctx, sub)
}
