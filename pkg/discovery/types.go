package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/indiproto/indi-go/pkg/transport"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of INDI servers.
	ServiceType = "_indi._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the INDI port assumed when an entry carries none.
	DefaultPort = transport.DefaultPort

	// BrowseTimeout is the default timeout for FindAll.
	BrowseTimeout = 5 * time.Second
)

// TXT record keys.
const (
	TXTKeyVersion    = "ver"     // INDI protocol version (optional)
	TXTKeyTXTVersion = "txtvers" // TXT layout version (optional)
)

// Discovery errors.
var (
	ErrInvalidTXTRecord = errors.New("invalid TXT record format")
	ErrIncompatible     = errors.New("incompatible protocol version")
	ErrNotFound         = errors.New("server not found")
)

// Server is an INDI server seen on the network.
type Server struct {
	// Instance is the advertised server name.
	Instance string

	// Host is the advertised host name, e.g. "observatory.local.".
	Host string

	// Port is the INDI port.
	Port uint16

	// Addresses holds the IPv4 and IPv6 addresses seen for the server.
	Addresses []string

	// Version is the protocol version from the TXT record, if any.
	Version string
}

// Address returns host:port for dialing. The first known address is
// preferred over the host name.
func (s *Server) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds FindAll when the context has no deadline.
	// Default: 5 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}
