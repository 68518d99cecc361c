// Command indi-client is an interactive INDI client.
//
// It connects to an INDI server, keeps a live model of the server's devices
// and lets the user inspect and change properties.
//
// Usage:
//
//	indi-client [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-host string          INDI server host (overrides config)
//	-port int             INDI server port (overrides config)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write a protocol capture file (.ilog)
//	-interactive          Enable interactive command mode
//	-discover             Browse for INDI servers and connect to the first one
//	-no-reconnect         Do not reconnect after the server drops the session
//
// Examples:
//
//	# Connect to a local server with the console
//	indi-client -interactive
//
//	# Connect to a discovered server and capture the traffic
//	indi-client -discover -protocol-log session.ilog
//
//	# Use a configuration file
//	indi-client -config indi-client.yaml -interactive
//
// Interactive Commands:
//
//	connect [host[:port]]      - Connect to the server
//	disconnect                 - End the session
//	devices                    - List devices
//	props <device>             - Show properties
//	get <path>                 - Print property values
//	set <assignment>           - Send new property values
//	watch <device>[.<prop>]    - Restrict the session
//	blob <mode> <device>       - Set BLOB delivery
//	enable/disable <device>    - Connect or disconnect a driver
//	discover                   - Browse for INDI servers
//	status                     - Show client status
//	quit                       - Exit
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/indiproto/indi-go/cmd/indi-client/interactive"
	"github.com/indiproto/indi-go/pkg/client"
	"github.com/indiproto/indi-go/pkg/config"
	"github.com/indiproto/indi-go/pkg/connection"
	"github.com/indiproto/indi-go/pkg/discovery"
	plog "github.com/indiproto/indi-go/pkg/log"
	"github.com/indiproto/indi-go/pkg/transport"
)

// Flags holds the command-line flags.
type Flags struct {
	ConfigFile  string
	Host        string
	Port        int
	LogLevel    string
	ProtocolLog string
	Interactive bool
	Discover    bool
	NoReconnect bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.Host, "host", "", "INDI server host (overrides config)")
	flag.IntVar(&flags.Port, "port", 0, "INDI server port (overrides config)")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write a protocol capture file (.ilog)")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable interactive command mode")
	flag.BoolVar(&flags.Discover, "discover", false, "Browse for INDI servers and connect to the first one")
	flag.BoolVar(&flags.NoReconnect, "no-reconnect", false, "Do not reconnect after the server drops the session")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(flags)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	setupLogging(cfg.Logging.Level)

	log.Println("INDI Client")
	log.Println("===========")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	browser, err := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	if err != nil {
		log.Printf("mDNS discovery unavailable: %v", err)
		browser = nil
	}

	if flags.Discover && browser != nil {
		if err := useDiscoveredServer(ctx, browser, cfg); err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
	}
	log.Printf("Server: %s:%d", cfg.Server.Host, cfg.Server.Port)

	clientConfig := cfg.ClientConfig()
	clientConfig.Logger = slog.Default()
	clientConfig.ErrorHandler = func(err error) {
		log.Printf("[ERROR] %v", err)
	}

	if cfg.Logging.ProtocolLog != "" {
		fileLogger, err := plog.NewFileLogger(cfg.Logging.ProtocolLog)
		if err != nil {
			log.Fatalf("Failed to open protocol log: %v", err)
		}
		defer fileLogger.Close()
		clientConfig.ProtocolLogger = fileLogger
		log.Printf("Protocol capture: %s", fileLogger.Path())
	}

	var c *client.Client
	manager := connection.NewManager(
		func(ctx context.Context) error { return c.Connect(ctx) },
		func(code int) error { return c.Disconnect(code) },
	)
	manager.SetAutoReconnect(cfg.Reconnect.Enabled)
	manager.SetBackoff(cfg.Reconnect.BackoffConfig)
	manager.SetLogger(slog.Default())
	manager.OnReconnecting(func(attempt int, delay time.Duration) {
		log.Printf("[RECONNECT] Attempt %d in %s", attempt, delay.Round(time.Millisecond))
	})
	manager.StartReconnectLoop()
	defer manager.Close()

	c, err = client.New(clientConfig, connection.WatchExits(&eventPrinter{}, manager))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	if err := cfg.Apply(c); err != nil {
		log.Fatalf("Failed to apply configuration: %v", err)
	}

	if err := manager.Connect(ctx); err != nil {
		log.Printf("Failed to connect: %v", err)
		if !flags.Interactive {
			os.Exit(1)
		}
	}

	if flags.Interactive {
		console, err := interactive.New(c, manager, browserOrNil(browser))
		if err != nil {
			log.Fatalf("Failed to create interactive console: %v", err)
		}
		// Redirect log output through readline to avoid interfering with input
		log.SetOutput(console.Stdout())
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
		// Context was cancelled (e.g., by interactive quit command)
	}

	log.Println("Shutting down...")
	cancel()

	if err := manager.Disconnect(transport.ExitNormal); err != nil {
		log.Printf("Error disconnecting: %v", err)
	}
	if browser != nil {
		browser.Stop()
	}

	log.Println("Goodbye!")
}

// loadConfig reads the configuration file, if any, and applies flags on top.
func loadConfig(f Flags) (*config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		loaded, err := config.Load(f.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.Host != "" {
		cfg.Server.Host = f.Host
	}
	if f.Port != 0 {
		cfg.Server.Port = f.Port
	}
	if f.LogLevel != "" {
		cfg.Logging.Level = f.LogLevel
	}
	if f.ProtocolLog != "" {
		cfg.Logging.ProtocolLog = f.ProtocolLog
	}
	if f.NoReconnect {
		cfg.Reconnect.Enabled = false
	}
	return cfg, cfg.Validate()
}

// useDiscoveredServer points cfg at the first server found via mDNS.
func useDiscoveredServer(ctx context.Context, browser discovery.Browser, cfg *config.Config) error {
	log.Println("Browsing for INDI servers...")
	findCtx, cancel := context.WithTimeout(ctx, interactive.DiscoverTimeout)
	defer cancel()

	servers, err := browser.FindAll(findCtx)
	if err != nil && len(servers) == 0 {
		return err
	}
	if len(servers) == 0 {
		return discovery.ErrNotFound
	}

	s := servers[0]
	log.Printf("Found %s (%s)", s.Instance, s.Address())
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	cfg.Server.Host = host
	cfg.Server.Port = int(s.Port)
	return nil
}

// browserOrNil avoids passing a typed nil pointer as a Browser.
func browserOrNil(b *discovery.MDNSBrowser) discovery.Browser {
	if b == nil {
		return nil
	}
	return b
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
		slogLevel = slog.LevelDebug
	case "warn":
		log.SetFlags(log.Ltime)
		slogLevel = slog.LevelWarn
	case "error":
		log.SetFlags(log.Ltime)
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	slog.SetLogLoggerLevel(slogLevel)
}
