package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/Anik1199/DualBootPatcher/internal/fsops"
	"github.com/Anik1199/DualBootPatcher/internal/protocol"
)

// session is one client connection. Files opened through it belong to
// it alone and are closed when it ends, however it ends.
type session struct {
	id     string
	conn   net.Conn
	server *Server
	logger *slog.Logger
	peer   Peer
	files  *fsops.Handles
}

func (s *session) run(ctx context.Context) {
	defer s.conn.Close()
	defer s.releaseFiles()
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	if !s.handshake() {
		return
	}

	for {
		payload, err := protocol.ReadFrame(s.conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				s.logger.Debug("client disconnected")
			} else {
				s.logger.Warn("failed to read request", slog.String("error", err.Error()))
			}
			return
		}

		req, err := protocol.DecodeRequest(payload)
		if err != nil {
			s.logger.Error("received invalid buffer", slog.String("error", err.Error()))
			return
		}

		if !s.serve(ctx, req) {
			return
		}
	}
}

// handshake checks the peer and negotiates the protocol version. It
// returns false if the session must end.
func (s *session) handshake() bool {
	s.conn.SetDeadline(time.Now().Add(s.server.cfg.HandshakeTimeout))
	defer s.conn.SetDeadline(time.Time{})

	peer, err := s.server.peerCreds(s.conn)
	if err != nil {
		s.logger.Warn("cannot identify peer", slog.String("error", err.Error()))
		protocol.WriteToken(s.conn, protocol.ReplyDeny)
		return false
	}
	s.peer = peer
	s.logger = s.logger.With(slog.Int("peer_pid", int(peer.PID)), slog.Uint64("peer_uid", uint64(peer.UID)))

	if !s.server.authorize(peer) {
		s.logger.Warn("rejected connection from unauthorized peer")
		protocol.WriteToken(s.conn, protocol.ReplyDeny)
		return false
	}
	if err := protocol.WriteToken(s.conn, protocol.ReplyAllow); err != nil {
		return false
	}

	v, err := protocol.ReadVersion(s.conn)
	if err != nil {
		s.logger.Warn("failed to read protocol version", slog.String("error", err.Error()))
		return false
	}
	if v != protocol.ProtocolVersion {
		s.logger.Warn("unsupported protocol version", slog.Int("version", int(v)))
		protocol.WriteToken(s.conn, protocol.ReplyUnsupported)
		return false
	}
	if err := protocol.WriteToken(s.conn, protocol.ReplyOK); err != nil {
		return false
	}

	s.logger.Debug("client connected", slog.Int("version", int(v)))
	return true
}

// serve runs one request and writes its response. It returns false if the
// connection must be closed.
func (s *session) serve(ctx context.Context, req protocol.Request) bool {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if t := s.server.cfg.RequestTimeout; t > 0 {
		reqCtx, cancel = context.WithTimeout(reqCtx, t)
		defer cancel()
	}

	var peerGone atomic.Bool
	stop := s.watchPeer(func() {
		peerGone.Store(true)
		cancel()
	})
	resp, entry := s.server.handler.Handle(reqCtx, s.files, req)
	stop()

	entry.ConnID = s.id
	entry.PeerUID = s.peer.UID
	if peerGone.Load() {
		entry.Error = "peer disconnected during request"
	}
	if s.server.recorder != nil {
		if err := s.server.recorder.Append(entry); err != nil {
			s.logger.Warn("failed to journal request", slog.String("error", err.Error()))
		}
	}
	s.logger.Info("request handled", logAttrs(entry)...)

	if peerGone.Load() {
		s.logger.Info("client went away before the response was sent")
		return false
	}
	if err := protocol.WriteFrame(s.conn, protocol.EncodeResponse(resp)); err != nil {
		s.logger.Warn("failed to write response", slog.String("error", err.Error()))
		return false
	}
	return true
}

func (s *session) releaseFiles() {
	if n := s.files.CloseAll(); n > 0 {
		s.logger.Info("closed files left open by client", slog.Int("count", n))
	}
}

// watchPeer reads from the connection while a request runs. Clients never
// send while waiting for a response, so any read result other than the
// deadline set by stop means the peer closed the connection or broke the
// protocol; onGone is called in that case.
func (s *session) watchPeer(onGone func()) (stop func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		var b [1]byte
		_, err := s.conn.Read(b[:])
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return
		}
		onGone()
	}()

	return func() {
		s.conn.SetReadDeadline(time.Unix(1, 0))
		<-done
		s.conn.SetReadDeadline(time.Time{})
	}
}
