package mqtt

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/config"
)

// testConfig returns a configuration for a local broker at 127.0.0.1:1883.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "sesame-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix: "graylogic/sesame-test",
	}
}

// connectOrSkip connects to the local broker, skipping the test when none
// is listening.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(cfg.Broker.Host, "1883"), 200*time.Millisecond)
	if err != nil {
		t.Skipf("no MQTT broker at %s:1883: %v", cfg.Broker.Host, err)
	}
	conn.Close()

	cfg.Broker.ClientID = clientID
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// Offline Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("graylogic/sesame")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"availability", topics.Availability(), "graylogic/sesame/availability"},
		{"server status", topics.ServerStatus(), "graylogic/sesame/server/status"},
		{"trigger event", topics.TriggerEvent("front-door"), "graylogic/sesame/trigger/front-door/event"},
		{"trigger state", topics.TriggerState("front-door"), "graylogic/sesame/trigger/front-door/state"},
		{"all trigger events", topics.AllTriggerEvents(), "graylogic/sesame/trigger/+/event"},
		{"lock state", topics.LockState("shared"), "graylogic/sesame/lock/shared/state"},
		{"lock set", topics.LockSet("shared"), "graylogic/sesame/lock/shared/set"},
		{"all lock sets", topics.AllLockSets(), "graylogic/sesame/lock/+/set"},
		{"all", topics.AllTopics(), "graylogic/sesame/#"},
		{"wildcards escaped", topics.TriggerState("a/b+#"), "graylogic/sesame/trigger/a_b__/state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNewTopicsPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", DefaultTopicPrefix},
		{"/home/locks/", "home/locks"},
		{"custom", "custom"},
	}
	for _, tt := range tests {
		if got := NewTopics(tt.prefix).Prefix(); got != tt.want {
			t.Errorf("NewTopics(%q).Prefix() = %q, want %q", tt.prefix, got, tt.want)
		}
	}
	if got := (Topics{}).ServerStatus(); got != DefaultTopicPrefix+"/server/status" {
		t.Errorf("zero Topics ServerStatus() = %q", got)
	}
}

func TestLockIDFromSetTopic(t *testing.T) {
	topics := NewTopics("graylogic/sesame")

	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"graylogic/sesame/lock/shared/set", "shared", true},
		{"graylogic/sesame/lock/garage/set", "garage", true},
		{"graylogic/sesame/lock/shared/state", "", false},
		{"graylogic/sesame/lock//set", "", false},
		{"graylogic/sesame/lock/a/b/set", "", false},
		{"other/lock/shared/set", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, ok := topics.LockIDFromSetTopic(tt.topic)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("LockIDFromSetTopic() = (%q, %v), want (%q, %v)", id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "sesame"
	cfg.Auth.Password = "secret"
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "sesame-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "sesame" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not applied")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
}

func TestBuildClientOptionsDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect = config.MQTTReconnectConfig{}

	opts := buildClientOptions(cfg)

	if opts.Servers[0].Scheme != "tcp" {
		t.Errorf("scheme = %q, want tcp", opts.Servers[0].Scheme)
	}
	if opts.ConnectRetryInterval != time.Second {
		t.Errorf("ConnectRetryInterval = %v, want 1s", opts.ConnectRetryInterval)
	}
	if opts.MaxReconnectInterval != time.Minute {
		t.Errorf("MaxReconnectInterval = %v, want 1m", opts.MaxReconnectInterval)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, NewTopics("graylogic/sesame"), "sesame-test")

	if !opts.WillEnabled || !opts.WillRetained {
		t.Fatal("LWT should be enabled and retained")
	}
	if opts.WillTopic != "graylogic/sesame/availability" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	var msg availability
	if err := json.Unmarshal(opts.WillPayload, &msg); err != nil {
		t.Fatalf("LWT payload is not JSON: %v", err)
	}
	if msg.Status != statusOffline || msg.Reason != "unexpected_disconnect" {
		t.Errorf("LWT payload = %+v", msg)
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{}

	if err := c.Publish("", nil, 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("a", nil, 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3: error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Publish("a", make([]byte, maxPayloadSize+1), 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversize: error = %v, want ErrPublishFailed", err)
	}
	if err := c.Publish("a", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := &Client{routes: make(map[string]route)}
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: error = %v", err)
	}
	if err := c.Subscribe("a", 5, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 5: error = %v", err)
	}
	if err := c.Subscribe("a", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: error = %v", err)
	}
	if err := c.Subscribe("a", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Error("failed subscription should not be tracked")
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if (&Client{}).IsConnected() {
		t.Error("unconnected client reports connected")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Broker Tests
// =============================================================================

func TestConnectInvalidBroker(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999
	cfg.Reconnect.InitialDelay = 1

	if _, err := Connect(cfg); err == nil {
		t.Skip("something is listening on port 19999")
	} else if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connectOrSkip(t, "sesame-test-roundtrip")
	topics := client.Topics()

	var (
		mu       sync.Mutex
		received []string
		done     = make(chan struct{}, 1)
	)
	err := client.Subscribe(topics.AllLockSets(), 1, func(topic string, payload []byte) error {
		id, _ := topics.LockIDFromSetTopic(topic)
		mu.Lock()
		received = append(received, id+"="+string(payload))
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topics.AllLockSets()) {
		t.Error("subscription not tracked")
	}

	if err := client.Publish(topics.LockSet("shared"), []byte("LOCK"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "shared=LOCK" {
		t.Errorf("received = %v", received)
	}

	if err := client.Unsubscribe(topics.AllLockSets()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after unsubscribe", client.SubscriptionCount())
	}
}

func TestHandlerErrorAndPanicRecovered(t *testing.T) {
	client := connectOrSkip(t, "sesame-test-panic")
	topic := client.Topics().TriggerEvent("panic")

	done := make(chan struct{}, 2)
	err := client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		done <- struct{}{}
		if string(payload) == "panic" {
			panic("boom")
		}
		return errors.New("handler failed")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for _, body := range []string{"panic", "error"} {
		if err := client.Publish(topic, []byte(body), 1, false); err != nil {
			t.Fatalf("Publish(%s) error = %v", body, err)
		}
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("%s message not delivered", body)
		}
	}
	if !client.IsConnected() {
		t.Error("client disconnected after handler panic")
	}
}
