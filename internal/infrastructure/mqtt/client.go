package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/config"
)

// Logger is the logging subset the client uses.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one message on a paho goroutine. It must return
// quickly; a returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// Client is a broker connection that remembers its subscriptions and
// replays them after every reconnect. Handler panics are recovered and
// logged. Safe for concurrent use.
type Client struct {
	conn   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics
	up     atomic.Bool

	mu           sync.Mutex
	routes       map[string]route
	onConnect    []func()
	onDisconnect []func(err error)
	logger       Logger
}

type route struct {
	qos     byte
	handler MessageHandler
}

// Connect dials the broker and blocks until the first session is up. While
// connected the availability topic holds a retained online message; the
// will replaces it with offline if the session dies.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		topics: NewTopics(cfg.TopicPrefix),
		routes: make(map[string]route),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })

	c.conn = pahomqtt.NewClient(opts)
	if err := await(c.conn.Connect(), defaultConnectTimeout); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	// The paho connect handler may not have run yet.
	c.up.Store(true)
	return c, nil
}

// Topics returns the topic builders for the configured prefix.
func (c *Client) Topics() Topics { return c.topics }

// QoS returns the configured default QoS.
func (c *Client) QoS() byte { return byte(c.cfg.QoS) }

// SetLogger sets the logger for connection loss and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// OnConnect registers fn to run after every (re)connect, once
// subscriptions have been replayed.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
}

// OnDisconnect registers fn to run when the session is lost.
func (c *Client) OnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = append(c.onDisconnect, fn)
	c.mu.Unlock()
}

func (c *Client) connected() {
	c.up.Store(true)

	c.mu.Lock()
	replay := make(map[string]route, len(c.routes))
	for topic, r := range c.routes {
		replay[topic] = r
	}
	hooks := append([]func(){}, c.onConnect...)
	c.mu.Unlock()

	for topic, r := range replay {
		c.conn.Subscribe(topic, r.qos, c.deliver(r.handler))
	}
	c.conn.Publish(c.topics.Availability(), c.QoS(), true,
		availabilityPayload(statusOnline, c.cfg.Broker.ClientID, ""))

	for _, fn := range hooks {
		fn()
	}
}

func (c *Client) lost(err error) {
	c.up.Store(false)

	c.mu.Lock()
	logger := c.logger
	hooks := append([]func(error){}, c.onDisconnect...)
	c.mu.Unlock()

	if logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}
	for _, fn := range hooks {
		fn(err)
	}
}

// IsConnected reports whether the session is up.
func (c *Client) IsConnected() bool {
	return c != nil && c.conn != nil && c.up.Load() && c.conn.IsConnected()
}

// HealthCheck returns ErrNotConnected while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close marks the server offline on the availability topic and
// disconnects. Safe on a nil or never-connected client.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	if c.IsConnected() {
		//nolint:errcheck // Best effort; the will covers a failed publish
		await(c.conn.Publish(c.topics.Availability(), c.QoS(), true,
			availabilityPayload(statusOffline, c.cfg.Broker.ClientID, "graceful_shutdown")), defaultPublishTimeout)
	}
	c.conn.Disconnect(defaultDisconnectQuiesce)
	c.up.Store(false)
	return nil
}
