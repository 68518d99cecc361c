package discovery

import (
	"context"
	"sort"
)

// Browser finds INDI servers.
type Browser interface {
	// Browse reports servers as they appear. The channel is closed when ctx
	// is done or Stop is called.
	Browse(ctx context.Context) (<-chan *Server, error)

	// FindAll collects the servers seen until ctx is done (or the browse
	// timeout elapses) and returns them sorted by instance name.
	FindAll(ctx context.Context) ([]*Server, error)

	// Find returns the first server whose instance name is instance.
	Find(ctx context.Context, instance string) (*Server, error)

	// Stop stops all active browsing operations.
	Stop()
}

// ServiceEntry is a resolved mDNS entry, independent of the mDNS library.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToServer converts a ServiceEntry to a Server.
func (e *ServiceEntry) ToServer() (*Server, error) {
	info, err := DecodeServerTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	return &Server{
		Instance:  e.Instance,
		Host:      e.Host,
		Port:      port,
		Addresses: append([]string(nil), e.Addrs...),
		Version:   info.Version,
	}, nil
}

// serverSet aggregates entries by instance name.
type serverSet struct {
	servers map[string]*Server
}

func newServerSet() *serverSet {
	return &serverSet{servers: make(map[string]*Server)}
}

// add merges entry into the set. It returns the server and true when the
// instance was not known before.
func (s *serverSet) add(entry *ServiceEntry) (*Server, bool) {
	srv, err := entry.ToServer()
	if err != nil {
		return nil, false
	}
	if existing, found := s.servers[srv.Instance]; found {
		existing.Addresses = mergeAddresses(existing.Addresses, srv.Addresses)
		return existing, false
	}
	s.servers[srv.Instance] = srv
	return srv, true
}

// remove drops the addresses of entry and forgets the server once none
// are left. It reports whether the server was forgotten.
func (s *serverSet) remove(entry *ServiceEntry) bool {
	existing, found := s.servers[entry.Instance]
	if !found {
		return false
	}
	existing.Addresses = removeAddresses(existing.Addresses, entry.Addrs)
	if len(existing.Addresses) == 0 {
		delete(s.servers, entry.Instance)
		return true
	}
	return false
}

// list returns a snapshot sorted by instance name.
func (s *serverSet) list() []*Server {
	out := make([]*Server, 0, len(s.servers))
	for _, srv := range s.servers {
		cp := *srv
		cp.Addresses = append([]string(nil), srv.Addresses...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses returns addresses without the ones in gone.
func removeAddresses(addresses, gone []string) []string {
	toRemove := make(map[string]bool, len(gone))
	for _, addr := range gone {
		toRemove[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
