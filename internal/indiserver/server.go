// Package indiserver is a minimal in-process INDI server for tests.
//
// It accepts TCP connections, decodes client commands with the same wire
// decoder the client uses, and lets tests script replies.
package indiserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/indiproto/indi-go/pkg/log"
	"github.com/indiproto/indi-go/pkg/wire"
)

// Config configures a Server.
type Config struct {
	// Address to listen on (default "127.0.0.1:0").
	Address string

	// Logger for protocol capture (optional).
	Logger log.Logger

	// OnConnect is called when a client connects.
	OnConnect func(conn *Conn)

	// OnDisconnect is called when a client connection ends.
	OnDisconnect func(conn *Conn)

	// OnElement is called for every command received.
	OnElement func(conn *Conn, el *wire.Element)
}

// Server accepts INDI client connections.
type Server struct {
	config   Config
	listener net.Listener

	conns   map[*Conn]struct{}
	connsMu sync.RWMutex
	connCh  chan *Conn

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a server. Call Start to begin listening.
func New(config Config) *Server {
	if config.Address == "" {
		config.Address = "127.0.0.1:0"
	}
	return &Server{
		config: config,
		conns:  make(map[*Conn]struct{}),
		connCh: make(chan *Conn, 16),
	}
}

// Start listens and accepts connections in the background.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and all connections and waits for them.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address as host:port.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// Accept waits for the next client connection.
func (s *Server) Accept(timeout time.Duration) (*Conn, error) {
	select {
	case conn := <-s.connCh:
		return conn, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no client connected within %v", timeout)
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		nc, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(nc)
	}
}

func (s *Server) handleConnection(nc net.Conn) {
	defer s.wg.Done()

	conn := &Conn{
		conn:     nc,
		server:   s,
		connID:   uuid.New().String(),
		received: make(chan *wire.Element, 256),
	}

	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()

	if s.config.OnConnect != nil {
		s.config.OnConnect(conn)
	}
	select {
	case s.connCh <- conn:
	default:
	}

	conn.readLoop()

	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(conn)
	}
}

// Conn is the server side of one client connection.
type Conn struct {
	conn      net.Conn
	server    *Server
	connID    string
	closeOnce sync.Once
	writeMu   sync.Mutex
	received  chan *wire.Element
}

// ConnID returns the unique connection identifier.
func (c *Conn) ConnID() string {
	return c.connID
}

// RemoteAddr returns the client address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SendString writes raw XML to the client.
func (c *Conn) SendString(xml string) error {
	return c.Send([]byte(xml))
}

// Send writes raw bytes to the client.
func (c *Conn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(data)
	if err == nil && c.server.config.Logger != nil {
		c.server.config.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.connID,
			Direction:    log.DirectionOut,
			Layer:        log.LayerTransport,
			Frame:        log.NewFrameEvent(data),
		})
	}
	return err
}

// Close closes the connection. The client observes end of stream.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Next waits for the next command received from the client.
func (c *Conn) Next(timeout time.Duration) (*wire.Element, error) {
	select {
	case el, ok := <-c.received:
		if !ok {
			return nil, fmt.Errorf("connection closed")
		}
		return el, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no command received within %v", timeout)
	}
}

func (c *Conn) readLoop() {
	defer close(c.received)

	dec := wire.NewDecoder(c.conn)
	for {
		el, err := dec.Next()
		if err != nil {
			return
		}
		if c.server.config.OnElement != nil {
			c.server.config.OnElement(c, el)
		}
		select {
		case c.received <- el:
		default:
		}
	}
}
