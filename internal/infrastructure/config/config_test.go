package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sesame.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/sesame-test.db"
mqtt:
  broker:
    host: "broker.local"
  qos: 1
security:
  jwt:
    secret: "`+testSecret+`"
sesame:
  uuid: "6f6ad4b0-5c1f-4a3e-9d2b-0123456789ab"
  max_sessions: 5
  poll_interval: 50ms
  echo_origin: true
  lock:
    name: "Front gate"
  triggers:
    - name: front
      address: "c1:22:33:44:55:66"
      publish_connection: false
    - name: garage
      uuid: "00000000-0000-0000-0000-aabbccddeeff"
      lock:
        id: garage-lock
        name: Garage
        initial_state: unlocked
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/sesame-test.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT broker = %+v, want host from file and default port", cfg.MQTT.Broker)
	}
	s := cfg.Sesame
	if s.MaxSessions != 5 || s.PollInterval != 50*time.Millisecond || !s.EchoOrigin {
		t.Errorf("Sesame = %+v", s)
	}
	if s.Lock.ID != "shared" || s.Lock.Name != "Front gate" || s.Lock.InitialState != "locked" {
		t.Errorf("Sesame.Lock = %+v, want defaults merged with file", s.Lock)
	}
	if len(s.Triggers) != 2 {
		t.Fatalf("Triggers = %d, want 2", len(s.Triggers))
	}
	if s.Triggers[0].PublishesConnection() || !s.Triggers[0].PublishesHistoryTag() {
		t.Error("publish flags not applied")
	}
	addr, err := s.Triggers[1].PeerAddress()
	if err != nil {
		t.Fatalf("PeerAddress() error = %v", err)
	}
	if addr.String() != "ea:bb:cc:dd:ee:ff" {
		t.Errorf("uuid-derived address = %s", addr)
	}
	if s.Triggers[1].Lock == nil || s.Triggers[1].Lock.ID != "garage-lock" {
		t.Errorf("garage lock = %+v", s.Triggers[1].Lock)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("SESAME_UUID", "6f6ad4b0-5c1f-4a3e-9d2b-0123456789ab")
	t.Setenv("SESAME_JWT_SECRET", testSecret)
	t.Setenv("SESAME_API_PORT", "9999")
	t.Setenv("SESAME_MQTT_PORT", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.API.Port != 9999 {
		t.Errorf("API.Port = %d, want 9999", cfg.API.Port)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT port = %d, want default on bad override", cfg.MQTT.Broker.Port)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SESAME_DATABASE_PATH", "/env/sesame.db")
	t.Setenv("SESAME_MQTT_HOST", "mqtt.env")
	t.Setenv("SESAME_MQTT_USERNAME", "user")
	t.Setenv("SESAME_MQTT_PASSWORD", "pass")
	t.Setenv("SESAME_API_HOST", "127.0.0.1")
	t.Setenv("SESAME_INFLUXDB_TOKEN", "tok")
	t.Setenv("SESAME_LOG_LEVEL", "debug")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	checks := map[string][2]string{
		"database.path":  {cfg.Database.Path, "/env/sesame.db"},
		"mqtt.host":      {cfg.MQTT.Broker.Host, "mqtt.env"},
		"mqtt.username":  {cfg.MQTT.Auth.Username, "user"},
		"mqtt.password":  {cfg.MQTT.Auth.Password, "pass"},
		"api.host":       {cfg.API.Host, "127.0.0.1"},
		"influxdb.token": {cfg.InfluxDB.Token, "tok"},
		"logging.level":  {cfg.Logging.Level, "debug"},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", name, c[0], c[1])
		}
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = testSecret
	cfg.Sesame.UUID = "6f6ad4b0-5c1f-4a3e-9d2b-0123456789ab"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"bad port", func(c *Config) { c.API.Port = 0 }, "api.port"},
		{"missing jwt secret", func(c *Config) { c.Security.JWT.Secret = "" }, "security.jwt.secret is required"},
		{"short jwt secret", func(c *Config) { c.Security.JWT.Secret = "short" }, "at least 32"},
		{"api disabled skips jwt", func(c *Config) { c.API.Enabled = false; c.Security.JWT.Secret = "" }, ""},
		{"influx without url", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
		{"missing uuid", func(c *Config) { c.Sesame.UUID = "" }, "sesame.uuid is required"},
		{"bad uuid", func(c *Config) { c.Sesame.UUID = "abc" }, "not a valid UUID"},
		{"max sessions low", func(c *Config) { c.Sesame.MaxSessions = 0 }, "max_sessions"},
		{"max sessions high", func(c *Config) { c.Sesame.MaxSessions = 10 }, "max_sessions"},
		{"bad initial state", func(c *Config) { c.Sesame.Lock.InitialState = "ajar" }, "initial_state"},
		{"trigger without address", func(c *Config) {
			c.Sesame.Triggers = []TriggerConfig{{Name: "a"}}
		}, "one of address or uuid"},
		{"trigger with both", func(c *Config) {
			c.Sesame.Triggers = []TriggerConfig{{Name: "a", Address: "c0:00:00:00:00:01", UUID: "6f6ad4b0-5c1f-4a3e-9d2b-0123456789ab"}}
		}, "only one of"},
		{"duplicate trigger name", func(c *Config) {
			c.Sesame.Triggers = []TriggerConfig{
				{Name: "a", Address: "c0:00:00:00:00:01"},
				{Name: "a", Address: "c0:00:00:00:00:02"},
			}
		}, "duplicated"},
		{"duplicate address", func(c *Config) {
			c.Sesame.Triggers = []TriggerConfig{
				{Name: "a", Address: "c0:00:00:00:00:01"},
				{Name: "b", Address: "C0-00-00-00-00-01"},
			}
		}, "already used"},
		{"lock clashes with shared", func(c *Config) {
			c.Sesame.Triggers = []TriggerConfig{{Name: "a", Address: "c0:00:00:00:00:01", Lock: &LockConfig{ID: "shared"}}}
		}, "lock.id \"shared\" is duplicated"},
		{"daemon without binary", func(c *Config) { c.Engine.Daemon.Enabled = true }, "engine.daemon.binary"},
		{"daemon negative restarts", func(c *Config) {
			c.Engine.Daemon = DaemonConfig{Enabled: true, Binary: "/usr/local/bin/sesame-bled", MaxRestarts: -1}
		}, "max_restarts"},
		{"daemon disabled skips binary", func(c *Config) { c.Engine.Daemon.Binary = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Path = ""
	cfg.Sesame.UUID = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	if !strings.Contains(err.Error(), "database.path") || !strings.Contains(err.Error(), "sesame.uuid") {
		t.Errorf("Validate() error = %v, want both problems", err)
	}
}

func TestTimeouts(t *testing.T) {
	cfg := defaultConfig()
	if cfg.ReadTimeout() != 30*time.Second || cfg.WriteTimeout() != 30*time.Second || cfg.IdleTimeout() != 60*time.Second {
		t.Error("timeouts do not match defaults")
	}
}
