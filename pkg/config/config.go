package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/indiproto/indi-go/pkg/client"
	"github.com/indiproto/indi-go/pkg/connection"
	"github.com/indiproto/indi-go/pkg/transport"
	"github.com/indiproto/indi-go/pkg/version"
	"github.com/indiproto/indi-go/pkg/wire"
)

// Environment variables that override the file.
const (
	EnvHost     = "INDI_HOST"
	EnvPort     = "INDI_PORT"
	EnvLogLevel = "INDI_LOG_LEVEL"
)

// Config is the root configuration structure for INDI client tools.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Watch     []WatchConfig   `yaml:"watch"`
	BLOB      []BLOBConfig    `yaml:"blob"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains the INDI server connection settings.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ResetOnDisconnect bool          `yaml:"reset_on_disconnect"`
	ProtocolVersion   string        `yaml:"protocol_version"`
}

// WatchConfig restricts the session to a device, or to some of its
// properties when Properties is not empty.
type WatchConfig struct {
	Device     string   `yaml:"device"`
	Properties []string `yaml:"properties"`
}

// BLOBConfig sets the BLOB policy for a device or one of its properties.
type BLOBConfig struct {
	Device   string `yaml:"device"`
	Property string `yaml:"property"`
	Mode     string `yaml:"mode"`
}

// ReconnectConfig controls automatic reconnection.
type ReconnectConfig struct {
	Enabled                  bool `yaml:"enabled"`
	connection.BackoffConfig `yaml:",inline"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// ProtocolLog is the path of a protocol capture file (empty = off).
	ProtocolLog string `yaml:"protocol_log"`
}

// Load reads, parses and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML data on top of the defaults, applies environment
// overrides and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the default settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            transport.DefaultPort,
			ConnectTimeout:  transport.DefaultConfig().ConnectTimeout,
			ProtocolVersion: version.Current,
		},
		Reconnect: ReconnectConfig{
			Enabled:       true,
			BackoffConfig: connection.DefaultBackoffConfig(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvHost); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Host == "" {
		errs = append(errs, "server.host is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Server.ConnectTimeout < 0 || c.Server.WriteTimeout < 0 {
		errs = append(errs, "server timeouts must not be negative")
	}
	if c.Server.ProtocolVersion != "" {
		if v, err := version.Parse(c.Server.ProtocolVersion); err != nil {
			errs = append(errs, "server.protocol_version: "+err.Error())
		} else if !v.Compatible(version.MustParse(version.Current)) {
			errs = append(errs, fmt.Sprintf("server.protocol_version %s is not compatible with %s", v, version.Current))
		}
	}

	for i, w := range c.Watch {
		if w.Device == "" {
			errs = append(errs, fmt.Sprintf("watch[%d].device is required", i))
		}
	}
	for i, b := range c.BLOB {
		if b.Device == "" {
			errs = append(errs, fmt.Sprintf("blob[%d].device is required", i))
		}
		if _, err := wire.ParseBLOBHandling(b.Mode); err != nil {
			errs = append(errs, fmt.Sprintf("blob[%d].mode: %v", i, err))
		}
	}

	if err := c.Reconnect.BackoffConfig.Validate(); err != nil {
		errs = append(errs, "reconnect."+err.Error())
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ClientConfig returns the client configuration for the server section.
// Loggers and handlers are left for the caller to set.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		Host:              c.Server.Host,
		Port:              c.Server.Port,
		ConnectTimeout:    c.Server.ConnectTimeout,
		WriteTimeout:      c.Server.WriteTimeout,
		ResetOnDisconnect: c.Server.ResetOnDisconnect,
		ProtocolVersion:   c.Server.ProtocolVersion,
	}
}

// Apply registers the configured watches and BLOB modes on c. Call it
// before Connect so they are part of the initial requests.
func (c *Config) Apply(cl *client.Client) error {
	for _, w := range c.Watch {
		if len(w.Properties) == 0 {
			if err := cl.WatchDevice(w.Device); err != nil {
				return fmt.Errorf("watch %s: %w", w.Device, err)
			}
			continue
		}
		for _, p := range w.Properties {
			if err := cl.WatchProperty(w.Device, p); err != nil {
				return fmt.Errorf("watch %s.%s: %w", w.Device, p, err)
			}
		}
	}
	for _, b := range c.BLOB {
		mode, err := wire.ParseBLOBHandling(b.Mode)
		if err != nil {
			return err
		}
		if err := cl.SetBLOBMode(mode, b.Device, b.Property); err != nil {
			return fmt.Errorf("blob %s: %w", b.Device, err)
		}
	}
	return nil
}
