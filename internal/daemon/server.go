// Package daemon implements the privileged side of the mbtool protocol.
//
// The server accepts connections on a Unix socket, checks the peer's
// credentials, negotiates the protocol version and then answers requests
// one at a time per connection. Connections are independent and share no
// mutable state beyond the journal; file handles opened on a connection
// are private to it and closed when it ends.
//
// Usage:
//
//	srv := daemon.NewServer(daemon.Config{AllowedUIDs: []uint32{1000}}, daemon.NewHandler(version.Version), j, logger)
//	ln, err := daemon.Listen("/run/mbtool/daemon.sock")
//	go srv.Serve(ctx, ln)
//	coord.Register("daemon", srv)
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Anik1199/DualBootPatcher/internal/fsops"
)

// DefaultHandshakeTimeout bounds the version exchange after connect.
const DefaultHandshakeTimeout = 10 * time.Second

// Config holds server settings.
type Config struct {
	// AllowedUIDs may connect in addition to root.
	AllowedUIDs []uint32
	// RequestTimeout bounds a single request. Zero means no limit.
	RequestTimeout time.Duration
	// HandshakeTimeout defaults to DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
}

// Server is the daemon's connection acceptor.
type Server struct {
	cfg       Config
	handler   *Handler
	recorder  Recorder
	logger    *slog.Logger
	authorize func(Peer) bool
	peerCreds func(net.Conn) (Peer, error)

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// NewServer creates a server. recorder may be nil.
func NewServer(cfg Config, handler *Handler, recorder Recorder, logger *slog.Logger) *Server {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Server{
		cfg:       cfg,
		handler:   handler,
		recorder:  recorder,
		logger:    logger.With(slog.String("component", "daemon")),
		authorize: uidPolicy(cfg.AllowedUIDs),
		peerCreds: peerCredentials,
		conns:     make(map[net.Conn]struct{}),
	}
}

// Listen creates the Unix socket at path, replacing a stale one. The
// socket is world-connectable; access is decided per connection from the
// peer's credentials.
func Listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		ln.Close()
		return nil, fmt.Errorf("set socket permissions: %w", err)
	}
	return ln, nil
}

// Serve accepts connections until ctx is cancelled or Shutdown is called.
// It returns nil in both cases.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.logger.Info("daemon listening", slog.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosing() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", slog.String("error", err.Error()))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go func() {
			defer s.untrack(conn)
			s.newSession(conn).run(ctx)
		}()
	}
}

// ServeConn runs one session on an already accepted connection and blocks
// until it ends.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	if !s.track(conn) {
		conn.Close()
		return
	}
	defer s.untrack(conn)
	s.newSession(conn).run(ctx)
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Listening reports whether Serve is accepting connections.
func (s *Server) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil && !s.closing
}

func (s *Server) newSession(conn net.Conn) *session {
	id := uuid.NewString()
	return &session{
		id:     id,
		conn:   conn,
		server: s,
		logger: s.logger.With(slog.String("conn_id", id)),
		files:  fsops.NewHandles(),
	}
}

// Shutdown stops accepting, closes every open connection (cancelling the
// requests running on them) and waits for the sessions to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("daemon stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
