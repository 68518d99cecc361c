package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// MDNSBrowser implements the Browser interface using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig

	mu      sync.Mutex
	stopped bool
	cancels []context.CancelFunc
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) (*MDNSBrowser, error) {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	return &MDNSBrowser{config: config}, nil
}

// Browse searches for INDI servers. Servers are aggregated by instance
// name; a server is reported once, when it is first seen.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *Server, error) {
	ctx, err := b.track(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan *Server)
	go func() {
		defer close(out)
		b.run(ctx, func(srv *Server, added bool) bool {
			if !added {
				return true
			}
			select {
			case out <- srv:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out, nil
}

// FindAll collects servers until ctx is done or the browse timeout elapses.
// Running out of time is not an error.
func (b *MDNSBrowser) FindAll(ctx context.Context) ([]*Server, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}
	ctx, err := b.track(ctx)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, nil), nil
}

// Find returns the server named instance.
func (b *MDNSBrowser) Find(ctx context.Context, instance string) (*Server, error) {
	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case srv, ok := <-results:
			if !ok {
				return nil, ErrNotFound
			}
			if srv.Instance == instance {
				return srv, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Stop stops all active browsing operations.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

// track derives a context that Stop cancels.
func (b *MDNSBrowser) track(ctx context.Context) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil, context.Canceled
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancels = append(b.cancels, cancel)
	return ctx, nil
}

// run browses until ctx is done and returns the aggregated servers. notify,
// if set, sees every added or updated server and stops the browse by
// returning false.
func (b *MDNSBrowser) run(ctx context.Context, notify func(srv *Server, added bool) bool) []*Server {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}()

	set := newServerSet()
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return set.list()
			}
			srv, added := set.add(fromZeroconf(entry))
			if srv != nil && notify != nil && !notify(srv, added) {
				return set.list()
			}
		case entry, ok := <-removed:
			if !ok {
				continue
			}
			set.remove(fromZeroconf(entry))
		case <-ctx.Done():
			return set.list()
		}
	}
}

// browserOptions returns zeroconf client options based on config.
func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// fromZeroconf converts a zeroconf entry to a ServiceEntry.
func fromZeroconf(entry *zeroconf.ServiceEntry) *ServiceEntry {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return &ServiceEntry{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     uint16(entry.Port),
		Text:     entry.Text,
		Addrs:    addrs,
	}
}

// Ensure MDNSBrowser implements Browser interface.
var _ Browser = (*MDNSBrowser)(nil)
