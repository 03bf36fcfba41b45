// Package config loads the bridge configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sudotouchwoman/golang-serial-scope/pkg/probe"
	"github.com/sudotouchwoman/golang-serial-scope/pkg/stream"
)

type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Probe   ProbeConfig   `yaml:"probe"`
	Stream  StreamConfig  `yaml:"stream"`
	Session SessionConfig `yaml:"session"`
	HTTP    HTTPConfig    `yaml:"http"`
	GRPC    GRPCConfig    `yaml:"grpc"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
}

type SerialConfig struct {
	// Ports replaces OS enumeration when not empty.
	Ports    []string `yaml:"ports"`
	Baudrate int      `yaml:"baudrate"`
}

type ProbeConfig struct {
	Request     string        `yaml:"request"`
	Token       string        `yaml:"token"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	Window      time.Duration `yaml:"window"`
}

type StreamConfig struct {
	StartCommand string        `yaml:"start_command"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	Settle       time.Duration `yaml:"settle"`
	ReadBuffer   int           `yaml:"read_buffer"`
}

type SessionConfig struct {
	Retry         bool          `yaml:"retry"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

type HTTPConfig struct {
	Addr          string        `yaml:"addr"`
	Static        string        `yaml:"static"`
	ClientTimeout time.Duration `yaml:"client_timeout"`
	ClientBuffer  int           `yaml:"client_buffer"`
}

type GRPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type MQTTConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Topic   string        `yaml:"topic"`
	Timeout time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Channel  string `yaml:"channel"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// LoadConfig reads path on top of GetDefaultConfig, so omitted keys keep
// their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func GetDefaultConfig() *Config {
	pd := probe.DefaultConfig()
	sd := stream.DefaultConfig()
	return &Config{
		Serial: SerialConfig{
			Baudrate: pd.Baudrate,
		},
		Probe: ProbeConfig{
			Request:     string(pd.Request),
			Token:       pd.Token,
			ReadTimeout: pd.ReadTimeout,
			Window:      pd.Window,
		},
		Stream: StreamConfig{
			StartCommand: string(sd.StartCommand),
			ReadTimeout:  sd.ReadTimeout,
			Settle:       sd.Settle,
			ReadBuffer:   sd.ReadBuffer,
		},
		Session: SessionConfig{
			Retry:         false,
			RetryInterval: 5 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:          "localhost:8080",
			ClientTimeout: 30 * time.Second,
			ClientBuffer:  64,
		},
		GRPC: GRPCConfig{
			Enabled: false,
			Addr:    "localhost:8081",
		},
		MQTT: MQTTConfig{
			URL:     "mqtt://localhost:1883",
			Topic:   "scope/samples",
			Timeout: time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			Channel:  "scope_samples",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

var ErrInvalid = errors.New("invalid config")

func (c *Config) Validate() error {
	switch {
	case c.Serial.Baudrate <= 0:
		return fmt.Errorf("%w: serial.baudrate must be positive", ErrInvalid)
	case c.Probe.Token == "":
		return fmt.Errorf("%w: probe.token is empty", ErrInvalid)
	case c.Probe.Request == "":
		return fmt.Errorf("%w: probe.request is empty", ErrInvalid)
	case c.Probe.ReadTimeout <= 0 || c.Probe.Window <= 0:
		return fmt.Errorf("%w: probe timeouts must be positive", ErrInvalid)
	case c.Stream.ReadTimeout <= 0:
		return fmt.Errorf("%w: stream.read_timeout must be positive", ErrInvalid)
	case c.Stream.ReadBuffer <= 0:
		return fmt.Errorf("%w: stream.read_buffer must be positive", ErrInvalid)
	case c.Session.Retry && c.Session.RetryInterval <= 0:
		return fmt.Errorf("%w: session.retry_interval must be positive", ErrInvalid)
	case c.MQTT.Enabled && c.MQTT.Topic == "":
		return fmt.Errorf("%w: mqtt.topic is empty", ErrInvalid)
	case c.MQTT.Enabled && c.MQTT.Timeout <= 0:
		return fmt.Errorf("%w: mqtt.timeout must be positive", ErrInvalid)
	case c.Redis.Enabled && c.Redis.Channel == "":
		return fmt.Errorf("%w: redis.channel is empty", ErrInvalid)
	}
	return nil
}

func (c *Config) ProbeConfig() probe.Config {
	cfg := probe.DefaultConfig()
	cfg.Baudrate = c.Serial.Baudrate
	cfg.Request = []byte(c.Probe.Request)
	cfg.Token = c.Probe.Token
	cfg.ReadTimeout = c.Probe.ReadTimeout
	cfg.Window = c.Probe.Window
	return cfg
}

func (c *Config) StreamConfig() stream.Config {
	return stream.Config{
		Baudrate:     c.Serial.Baudrate,
		ReadTimeout:  c.Stream.ReadTimeout,
		StartCommand: []byte(c.Stream.StartCommand),
		Settle:       c.Stream.Settle,
		ReadBuffer:   c.Stream.ReadBuffer,
	}
}
