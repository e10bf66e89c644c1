package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Sesame    SesameConfig    `yaml:"sesame"`
	Engine    EngineConfig    `yaml:"engine"`
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix is the root of the observation topics.
	TopicPrefix string `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeouts, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	// AccessTokenTTL is the lifetime of minted tokens, in minutes.
	AccessTokenTTL int    `yaml:"access_token_ttl"`
	Issuer         string `yaml:"issuer"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SesameConfig describes the SESAME server and its triggers.
type SesameConfig struct {
	// UUID is the device UUID the server advertises.
	UUID string `yaml:"uuid"`
	// MaxSessions is the number of concurrent peer sessions (1-9).
	MaxSessions int `yaml:"max_sessions"`
	// PollInterval is the engine poll period.
	PollInterval time.Duration `yaml:"poll_interval"`
	// EchoOrigin re-sends status to the peer whose command changed it.
	EchoOrigin bool `yaml:"echo_origin"`

	// Lock is the server-wide shared lock.
	Lock LockConfig `yaml:"lock"`

	Triggers []TriggerConfig `yaml:"triggers"`

	// Automations run actions when a trigger fires an event.
	Automations []AutomationConfig `yaml:"automations"`
}

// LockConfig describes a lock entity.
type LockConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	InitialState string `yaml:"initial_state"`
}

// TriggerConfig describes one peer. Exactly one of Address and UUID is set.
type TriggerConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	UUID    string `yaml:"uuid"`

	// Lock binds a private lock entity to the trigger.
	Lock *LockConfig `yaml:"lock"`

	PublishHistoryTag *bool `yaml:"publish_history_tag"`
	PublishConnection *bool `yaml:"publish_connection"`
}

// AutomationConfig binds actions to one event of one trigger.
type AutomationConfig struct {
	Name    string         `yaml:"name"`
	Trigger string         `yaml:"trigger"`
	On      string         `yaml:"on"`
	Actions []ActionConfig `yaml:"actions"`
}

// ActionConfig is one automation step: a lock control, an MQTT publish, or
// a pure delay.
type ActionConfig struct {
	Lock  string `yaml:"lock"`
	State string `yaml:"state"`

	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	Retain  bool   `yaml:"retain"`

	Delay           time.Duration `yaml:"delay"`
	Parallel        bool          `yaml:"parallel"`
	ContinueOnError bool          `yaml:"continue_on_error"`
}

// EngineConfig describes the link to the BLE protocol daemon.
type EngineConfig struct {
	// TopicPrefix is the root of the engine topics.
	TopicPrefix string `yaml:"topic_prefix"`
	// BeginTimeout bounds the engine start handshake.
	BeginTimeout time.Duration `yaml:"begin_timeout"`

	// Daemon optionally runs the engine daemon as a supervised child.
	Daemon DaemonConfig `yaml:"daemon"`
}

// DaemonConfig describes the supervised engine daemon process.
type DaemonConfig struct {
	Enabled bool     `yaml:"enabled"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`

	RestartDelay    time.Duration `yaml:"restart_delay"`
	MaxRestartDelay time.Duration `yaml:"max_restart_delay"`
	MaxRestarts     int           `yaml:"max_restarts"`
	StopTimeout     time.Duration `yaml:"stop_timeout"`

	// WatchdogInterval is how often the daemon's readiness is checked.
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides and validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/sesame.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-sesame",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "graylogic/sesame",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "sesame",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
				Issuer:         "graylogic-sesame",
			},
		},
		Metrics: MetricsConfig{Enabled: true},
		Sesame: SesameConfig{
			MaxSessions:  3,
			PollInterval: sesame.DefaultPollInterval,
			Lock: LockConfig{
				ID:           sesame.DefaultSharedLockID,
				Name:         "SESAME",
				InitialState: "locked",
			},
		},
		Engine: EngineConfig{
			TopicPrefix:  "graylogic/sesame/engine",
			BeginTimeout: 10 * time.Second,
			Daemon: DaemonConfig{
				RestartDelay:     2 * time.Second,
				MaxRestartDelay:  2 * time.Minute,
				StopTimeout:      10 * time.Second,
				WatchdogInterval: 30 * time.Second,
			},
		},
	}
}

// applyEnvOverrides applies SESAME_SECTION_KEY environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SESAME_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("SESAME_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SESAME_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SESAME_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SESAME_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("SESAME_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SESAME_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("SESAME_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("SESAME_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("SESAME_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	if v := os.Getenv("SESAME_UUID"); v != "" {
		cfg.Sesame.UUID = v
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		// Tokens grant control of physical locks.
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set SESAME_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	errs = append(errs, c.Sesame.validate()...)

	if c.Engine.Daemon.Enabled {
		if c.Engine.Daemon.Binary == "" {
			errs = append(errs, "engine.daemon.binary is required when the daemon is enabled")
		}
		if c.Engine.Daemon.MaxRestarts < 0 {
			errs = append(errs, "engine.daemon.max_restarts must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *SesameConfig) validate() []string {
	var errs []string

	if s.UUID == "" {
		errs = append(errs, "sesame.uuid is required (set SESAME_UUID environment variable)")
	} else if _, err := uuid.Parse(s.UUID); err != nil {
		errs = append(errs, fmt.Sprintf("sesame.uuid %q is not a valid UUID", s.UUID))
	}
	if s.MaxSessions < 1 || s.MaxSessions > 9 {
		errs = append(errs, "sesame.max_sessions must be between 1 and 9")
	}
	if s.PollInterval <= 0 {
		errs = append(errs, "sesame.poll_interval must be positive")
	}
	if s.Lock.ID == "" {
		errs = append(errs, "sesame.lock.id is required")
	}
	if _, err := sesame.ParseLockState(s.Lock.InitialState); err != nil {
		errs = append(errs, fmt.Sprintf("sesame.lock.initial_state: %v", err))
	}

	names := make(map[string]bool)
	addrs := make(map[sesame.PeerAddress]string)
	locks := map[string]bool{s.Lock.ID: true}
	for i, t := range s.Triggers {
		field := fmt.Sprintf("sesame.triggers[%d]", i)
		if t.Name == "" {
			errs = append(errs, field+".name is required")
		} else if names[t.Name] {
			errs = append(errs, fmt.Sprintf("%s.name %q is duplicated", field, t.Name))
		}
		names[t.Name] = true

		addr, err := t.PeerAddress()
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", field, err))
		} else if other, dup := addrs[addr]; dup {
			errs = append(errs, fmt.Sprintf("%s address %s is already used by %q", field, addr, other))
		} else {
			addrs[addr] = t.Name
		}

		if t.Lock != nil {
			if t.Lock.ID == "" {
				errs = append(errs, field+".lock.id is required")
			} else if locks[t.Lock.ID] {
				errs = append(errs, fmt.Sprintf("%s.lock.id %q is duplicated", field, t.Lock.ID))
			}
			locks[t.Lock.ID] = true
			if t.Lock.InitialState != "" {
				if _, err := sesame.ParseLockState(t.Lock.InitialState); err != nil {
					errs = append(errs, fmt.Sprintf("%s.lock.initial_state: %v", field, err))
				}
			}
		}
	}
	return errs
}

// PeerAddress resolves the trigger's address from Address or UUID.
func (t TriggerConfig) PeerAddress() (sesame.PeerAddress, error) {
	switch {
	case t.Address != "" && t.UUID != "":
		return sesame.PeerAddress{}, fmt.Errorf("only one of address and uuid may be set")
	case t.Address != "":
		return sesame.ParseAddress(t.Address)
	case t.UUID != "":
		return sesame.AddressFromUUID(t.UUID)
	default:
		return sesame.PeerAddress{}, fmt.Errorf("one of address or uuid is required")
	}
}

// PublishesHistoryTag reports whether the history tag is published.
// Defaults to true.
func (t TriggerConfig) PublishesHistoryTag() bool {
	return t.PublishHistoryTag == nil || *t.PublishHistoryTag
}

// PublishesConnection reports whether connectivity is published.
// Defaults to true.
func (t TriggerConfig) PublishesConnection() bool {
	return t.PublishConnection == nil || *t.PublishConnection
}

// ReadTimeout returns the API read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
