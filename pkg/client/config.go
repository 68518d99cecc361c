package client

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/indiproto/indi-go/pkg/log"
	"github.com/indiproto/indi-go/pkg/transport"
	"github.com/indiproto/indi-go/pkg/version"
)

// Config configures a Client.
type Config struct {
	// Host is the INDI server host (default: localhost).
	Host string

	// Port is the INDI server port (default: 7624).
	Port int

	// ConnectTimeout bounds the dial (default: 5s).
	ConnectTimeout time.Duration

	// WriteTimeout bounds each write (0 = no timeout).
	WriteTimeout time.Duration

	// ResetOnDisconnect clears devices, watches and BLOB modes when a
	// session ends. Otherwise devices are kept until the next Connect
	// and watches and BLOB modes are replayed.
	ResetOnDisconnect bool

	// ProtocolVersion is sent in getProperties (default: version.Current).
	ProtocolVersion string

	// Logger receives operational logs (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events (optional).
	ProtocolLogger log.Logger

	// ErrorHandler receives per-element errors (optional). It runs on the
	// listener goroutine.
	ErrorHandler func(err error)
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            transport.DefaultPort,
		ConnectTimeout:  transport.DefaultConfig().ConnectTimeout,
		ProtocolVersion: version.Current,
	}
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = def.ProtocolVersion
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	v, err := version.Parse(c.ProtocolVersion)
	if err != nil {
		return fmt.Errorf("protocol version: %w", err)
	}
	if !v.Compatible(version.MustParse(version.Current)) {
		return fmt.Errorf("protocol version %s is not compatible with %s", v, version.Current)
	}
	return nil
}
