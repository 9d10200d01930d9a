package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/danmuck/portal/internal/endpoint"
	"github.com/danmuck/portal/internal/observability"
	"github.com/danmuck/portal/internal/transport"
)

// StubFactory builds the dispatch target for one accepted peer.
type StubFactory func(conn *Connection, clientID uint64) endpoint.Stub

// ServerConfig configures a MultiServer.
type ServerConfig struct {
	SocketPath string
	Endpoint   endpoint.Endpoint
	NewStub    StubFactory
	Logger     zerolog.Logger
	// OnConnect runs after a peer's connection is published to the
	// client table.
	OnConnect func(c *Connection)
	// OnDisconnect runs after a dead connection is removed from the
	// table.
	OnDisconnect func(clientID uint64)
	// MaxFrameBytes overrides the per-connection frame limit when
	// nonzero.
	MaxFrameBytes uint32
}

func (cfg ServerConfig) validate() error {
	if cfg.SocketPath == "" {
		return errors.New("ipc: server config missing socket path")
	}
	if cfg.Endpoint.Magic == 0 || len(cfg.Endpoint.Messages) == 0 {
		return errors.New("ipc: server config missing endpoint schema")
	}
	if cfg.NewStub == nil {
		return errors.New("ipc: server config missing stub factory")
	}
	return nil
}

// MultiServer listens on a local socket and owns one Connection per
// accepted peer, keyed by a client id that is never reused while the
// server lives.
type MultiServer struct {
	cfg      ServerConfig
	log      zerolog.Logger
	listener *net.UnixListener

	// limiter paces accept-failure retries so a persistent failure
	// (fd exhaustion) cannot spin the loop.
	limiter *rate.Limiter

	mu           sync.Mutex
	clients      map[uint64]*Connection
	nextClientID uint64
}

// Listen binds the server socket, removing a stale socket file left by
// a previous run.
func Listen(cfg ServerConfig) (*MultiServer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := os.Remove(cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ipc: removing stale socket %s: %w", cfg.SocketPath, err)
	}
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: cfg.SocketPath, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("ipc: listening on %s: %w", cfg.SocketPath, err)
	}
	return &MultiServer{
		cfg:      cfg,
		log:      cfg.Logger,
		listener: listener,
		limiter:  rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
		clients:  make(map[uint64]*Connection),
	}, nil
}

// SocketPath returns the bound socket path.
func (s *MultiServer) SocketPath() string {
	return s.cfg.SocketPath
}

// Serve accepts peers until ctx is cancelled. Accept failures are
// logged and retried; they never terminate the server. On return every
// live connection is closed and the socket file removed.
func (s *MultiServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	s.log.Info().Str("socket", s.cfg.SocketPath).Str("endpoint", s.cfg.Endpoint.Name).Msg("portal server listening")

	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Error().Err(err).Msg("accept failed")
			observability.RecordAcceptFailure(s.cfg.Endpoint.Name)
			if err := s.limiter.Wait(ctx); err != nil {
				break
			}
			continue
		}
		s.adopt(ctx, conn)
	}

	s.closeAll()
	os.Remove(s.cfg.SocketPath)
	return nil
}

// adopt builds and publishes the Connection for one accepted peer.
func (s *MultiServer) adopt(ctx context.Context, uc *net.UnixConn) {
	s.mu.Lock()
	s.nextClientID++
	id := s.nextClientID
	s.mu.Unlock()

	log := s.log.With().Uint64("client_id", id).Logger()
	conn := NewConnection(transport.New(uc), s.cfg.Endpoint, Options{
		Logger:        log,
		ClientID:      id,
		MaxFrameBytes: s.cfg.MaxFrameBytes,
		OnClose: func(c *Connection, reason error) {
			s.drop(c.ClientID())
		},
	})
	stub := s.cfg.NewStub(conn, id)

	s.mu.Lock()
	s.clients[id] = conn
	s.mu.Unlock()
	observability.RecordAccept(s.cfg.Endpoint.Name)
	log.Debug().Msg("peer connected")

	if err := conn.Start(ctx, stub); err != nil {
		// Factory wired a stub for the wrong endpoint; config bug.
		log.Error().Err(err).Msg("rejecting peer")
		conn.Close()
		return
	}
	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(conn)
	}
}

// drop removes a dead connection from the table.
func (s *MultiServer) drop(id uint64) {
	s.mu.Lock()
	_, ok := s.clients[id]
	if ok {
		delete(s.clients, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	observability.RecordDisconnect(s.cfg.Endpoint.Name)
	s.log.Debug().Uint64("client_id", id).Msg("peer disconnected")
	if s.cfg.OnDisconnect != nil {
		s.cfg.OnDisconnect(id)
	}
}

// Client looks up a live connection by id.
func (s *MultiServer) Client(id uint64) (*Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	return c, ok
}

// ClientCount reports the number of live connections.
func (s *MultiServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Broadcast posts an asynchronous message to every live connection.
// Per-connection failures are logged; the rest of the fanout proceeds.
func (s *MultiServer) Broadcast(msg endpoint.Message) {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.clients))
	for _, c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.Post(msg); err != nil {
			s.log.Warn().Err(err).Uint64("client_id", c.ClientID()).Msg("broadcast failed")
		}
	}
}

func (s *MultiServer) closeAll() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.clients))
	for _, c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
