package config

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the overall gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Local    DatabaseConfig `yaml:"local"`
	Remote   RemoteConfig   `yaml:"remote"`
	Sync     SyncConfig     `yaml:"sync"`
	Hardware HardwareConfig `yaml:"hardware"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the HTTP ingestion endpoint configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateBurst       int     `yaml:"rate_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	StatusSample    int     `yaml:"status_sample"`
}

// DatabaseConfig holds the local store connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // sqlite | postgres
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// RemoteConfig holds the cloud store connection configuration.
type RemoteConfig struct {
	DSN                   string        `yaml:"dsn"`
	ConnectTimeoutSeconds int           `yaml:"connect_timeout_seconds"`
	InsertTimeoutSeconds  int           `yaml:"insert_timeout_seconds"`
	InsertTimeout         time.Duration `yaml:"-"`
}

// SyncConfig holds the synchronization engine schedule.
type SyncConfig struct {
	IntervalSeconds      int           `yaml:"interval_seconds"`
	Interval             time.Duration `yaml:"-"`
	RetryIntervalSeconds int           `yaml:"retry_interval_seconds"`
	RetryInterval        time.Duration `yaml:"-"`
	PriorityTypes        []string      `yaml:"priority_types"`
}

// HardwareConfig describes the attached sensor and actuator links.
// Continuous sensors are stored once per sample interval; input events are
// stored on every press. BeepOnPress and LCDTemperature enable local
// feedback on the actuator board without going through command records.
type HardwareConfig struct {
	Driver                string        `yaml:"driver"` // serial | sim | none
	SensorPort            string        `yaml:"sensor_port"`
	ActuatorPort          string        `yaml:"actuator_port"`
	Baud                  int           `yaml:"baud"`
	ReadTimeoutMS         int           `yaml:"read_timeout_ms"`
	PollIntervalMS        int           `yaml:"poll_interval_ms"`
	PollInterval          time.Duration `yaml:"-"`
	SampleIntervalSeconds int           `yaml:"sample_interval_seconds"`
	SampleInterval        time.Duration `yaml:"-"`
	DeviceName            string        `yaml:"device_name"`
	BeepOnPress           bool          `yaml:"beep_on_press"`
	LCDTemperature        bool          `yaml:"lcd_temperature"`
}

// DispatchConfig controls the command dispatch poller.
type DispatchConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
	RecentLimit     int           `yaml:"recent_limit"`
	MaxAgeSeconds   int           `yaml:"max_age_seconds"`
	MaxAge          time.Duration `yaml:"-"`
}

// MQTTConfig holds the optional inbound MQTT ingestion settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default and derives durations.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 5001
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateBurst <= 0 {
		cfg.Server.RateBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 2
	}
	if cfg.Server.StatusSample <= 0 {
		cfg.Server.StatusSample = 1
	}

	if cfg.Local.Driver == "" {
		cfg.Local.Driver = "sqlite"
	}
	if cfg.Local.DSN == "" && cfg.Local.Driver == "sqlite" {
		cfg.Local.DSN = "gateway.db"
	}
	if cfg.Local.MaxOpenConns <= 0 {
		if cfg.Local.Driver == "sqlite" {
			// sqlite serializes writers; one connection avoids SQLITE_BUSY.
			cfg.Local.MaxOpenConns = 1
		} else {
			cfg.Local.MaxOpenConns = 4
		}
	}
	if cfg.Local.MaxIdleConns <= 0 {
		cfg.Local.MaxIdleConns = 1
	}
	if cfg.Local.ConnMaxLifetimeMinutes <= 0 {
		cfg.Local.ConnMaxLifetimeMinutes = 30
	}

	if cfg.Remote.ConnectTimeoutSeconds <= 0 {
		cfg.Remote.ConnectTimeoutSeconds = 5
	}
	if cfg.Remote.InsertTimeoutSeconds <= 0 {
		cfg.Remote.InsertTimeoutSeconds = 10
	}
	cfg.Remote.InsertTimeout = time.Duration(cfg.Remote.InsertTimeoutSeconds) * time.Second

	if cfg.Sync.IntervalSeconds <= 0 {
		cfg.Sync.IntervalSeconds = 60
	}
	cfg.Sync.Interval = time.Duration(cfg.Sync.IntervalSeconds) * time.Second
	if cfg.Sync.RetryIntervalSeconds <= 0 {
		cfg.Sync.RetryIntervalSeconds = 30
	}
	cfg.Sync.RetryInterval = time.Duration(cfg.Sync.RetryIntervalSeconds) * time.Second
	if cfg.Sync.PriorityTypes == nil {
		cfg.Sync.PriorityTypes = []string{"button", "joystick"}
	}

	if cfg.Hardware.Driver == "" {
		cfg.Hardware.Driver = "none"
	}
	if cfg.Hardware.Baud <= 0 {
		cfg.Hardware.Baud = 9600
	}
	if cfg.Hardware.ReadTimeoutMS <= 0 {
		cfg.Hardware.ReadTimeoutMS = 1000
	}
	if cfg.Hardware.PollIntervalMS <= 0 {
		cfg.Hardware.PollIntervalMS = 500
	}
	cfg.Hardware.PollInterval = time.Duration(cfg.Hardware.PollIntervalMS) * time.Millisecond
	if cfg.Hardware.SampleIntervalSeconds <= 0 {
		cfg.Hardware.SampleIntervalSeconds = 60
	}
	cfg.Hardware.SampleInterval = time.Duration(cfg.Hardware.SampleIntervalSeconds) * time.Second
	if cfg.Hardware.DeviceName == "" {
		cfg.Hardware.DeviceName = "RPi Sensor"
	}

	if cfg.Dispatch.IntervalSeconds <= 0 {
		cfg.Dispatch.IntervalSeconds = 2
	}
	cfg.Dispatch.Interval = time.Duration(cfg.Dispatch.IntervalSeconds) * time.Second
	if cfg.Dispatch.RecentLimit <= 0 {
		logrus.Debug("dispatch.recent_limit is not set or invalid; defaulting to 10")
		cfg.Dispatch.RecentLimit = 10
	}
	if cfg.Dispatch.MaxAgeSeconds <= 0 {
		cfg.Dispatch.MaxAgeSeconds = 120
	}
	cfg.Dispatch.MaxAge = time.Duration(cfg.Dispatch.MaxAgeSeconds) * time.Second

	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "gateway/records"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
