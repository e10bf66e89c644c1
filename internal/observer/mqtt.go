package observer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// MQTTPublisher is the MQTT subset the Publisher uses.
type MQTTPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	// Client is the MQTT connection. Required.
	Client MQTTPublisher

	// Topics builds the observation topics. Defaults to mqtt.NewTopics("").
	Topics mqtt.Topics

	// QoS for every message. Defaults to 1.
	QoS byte

	// Status reports the current server status for server/status.
	// Optional; without it only the registration flag is published.
	Status func() sesame.Status

	QueueSize int
	Now       func() time.Time
}

// Publisher mirrors core notifications onto the observation topics:
// trigger events (not retained), trigger state, lock state and server
// status (retained).
type Publisher struct {
	*worker
	sesame.NopObserver

	client MQTTPublisher
	topics mqtt.Topics
	qos    byte
	status func() sesame.Status
	now    func() time.Time
}

var _ sesame.Observer = (*Publisher)(nil)

// NewPublisher creates a Publisher. Call Start before notifications flow.
func NewPublisher(opts PublisherOptions) *Publisher {
	if opts.Topics == (mqtt.Topics{}) {
		opts.Topics = mqtt.NewTopics("")
	}
	if opts.QoS == 0 {
		opts.QoS = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{
		worker: newWorker("mqtt", opts.QueueSize),
		client: opts.Client,
		topics: opts.Topics,
		qos:    opts.QoS,
		status: opts.Status,
		now:    opts.Now,
	}
}

// TriggerEvent publishes the event and the trigger's new state.
func (p *Publisher) TriggerEvent(t sesame.TriggerSnapshot, e sesame.Event) {
	p.send(p.topics.TriggerEvent(t.Name), newTriggerEventMessage(t, e), false)
	p.TriggerConnection(t)
}

// TriggerConnection publishes the trigger's state.
func (p *Publisher) TriggerConnection(t sesame.TriggerSnapshot) {
	p.send(p.topics.TriggerState(t.Name), newTriggerStateMessage(t, p.now()), true)
}

// LockState publishes the lock's state.
func (p *Publisher) LockState(l sesame.LockSnapshot) {
	p.send(p.topics.LockState(l.ID), newLockStateMessage(l, p.now()), true)
}

// Registration publishes the server status.
func (p *Publisher) Registration(registered bool) {
	st := sesame.Status{Registered: registered}
	if p.status != nil {
		st = p.status()
		st.Registered = registered
	}
	p.ServerStatus(st)
}

// ServerStatus publishes st on server/status.
func (p *Publisher) ServerStatus(st sesame.Status) {
	p.send(p.topics.ServerStatus(), newServerStatusMessage(st, p.now()), true)
}

func (p *Publisher) send(topic string, msg any, retained bool) {
	payload, err := json.Marshal(msg)
	if err != nil {
		p.log().Error("failed to marshal observation", "topic", topic, "error", err)
		return
	}
	p.enqueue(func(context.Context) {
		if err := p.client.Publish(topic, payload, p.qos, retained); err != nil {
			p.log().Warn("failed to publish observation", "topic", topic, "error", err)
		}
	})
}
