// Package client talks to the privileged mbtool daemon over its Unix socket.
//
// A Conn carries one request at a time. Each Call writes one framed
// Request and blocks until the matching Response arrives, so requests are
// never pipelined. Any failure of the channel itself (write, read, decode,
// deadline, cancellation) closes the connection and leaves it Broken;
// further calls fail immediately with a *protocol.TransportError.
//
// Usage:
//
//	conn, err := client.Dial(ctx, "/run/mbtool/daemon.sock", client.Options{Logger: logger})
//	resp, err := conn.PathCopy(ctx, "/data/a", "/data/b")
//	if f, failed := resp.Failure(); failed {
//	    logger.Warn("copy failed", "error", f.Message())
//	}
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Anik1199/DualBootPatcher/internal/protocol"
)

// DefaultSocketPath is where the daemon listens unless configured otherwise.
const DefaultSocketPath = "/run/mbtool/daemon.sock"

// ErrBroken is returned (wrapped in a TransportError) by calls on a
// connection that already failed.
var ErrBroken = errors.New("connection is broken")

// State is the position of a connection in its request cycle.
type State int32

const (
	StateIdle State = iota
	StateSent
	StateReceived
	StateBroken
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSent:
		return "sent"
	case StateReceived:
		return "received"
	case StateBroken:
		return "broken"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options configures Dial.
type Options struct {
	// DialTimeout bounds connecting to the socket. Zero means 5 seconds.
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Conn is a handshaken connection to the daemon.
type Conn struct {
	nc     net.Conn
	logger *slog.Logger

	mu        sync.Mutex // serializes calls
	state     atomic.Int32
	closeOnce sync.Once
}

// Available reports whether the daemon socket accepts connections.
func Available(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Dial connects to the daemon socket and performs the handshake.
func Dial(ctx context.Context, socketPath string, opts Options) (*Conn, error) {
	timeout := opts.DialTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	nc, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, &protocol.TransportError{Op: "dial", Err: err}
	}
	return Open(ctx, nc, opts.Logger)
}

// Open performs the handshake on an established connection and takes
// ownership of it. The connection is closed if the handshake fails.
func Open(ctx context.Context, nc net.Conn, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{nc: nc, logger: logger.With("component", "client")}
	if err := c.handshake(ctx); err != nil {
		nc.Close()
		c.state.Store(int32(StateClosed))
		return nil, err
	}
	return c, nil
}

func (c *Conn) handshake(ctx context.Context) error {
	stop := c.bindContext(ctx)
	defer stop()

	reply, err := protocol.ReadToken(c.nc)
	if err != nil {
		return c.transportErr(ctx, "handshake", err)
	}
	switch reply {
	case protocol.ReplyAllow:
	case protocol.ReplyDeny:
		return &protocol.HandshakeError{Reply: reply, Err: protocol.ErrAccessDenied}
	default:
		return &protocol.HandshakeError{Reply: reply, Err: errors.New("unexpected credential reply")}
	}

	if err := protocol.WriteVersion(c.nc, protocol.ProtocolVersion); err != nil {
		return c.transportErr(ctx, "handshake", err)
	}

	reply, err = protocol.ReadToken(c.nc)
	if err != nil {
		return c.transportErr(ctx, "handshake", err)
	}
	switch reply {
	case protocol.ReplyOK:
		c.logger.Debug("handshake complete", "version", protocol.ProtocolVersion)
		return nil
	case protocol.ReplyUnsupported:
		return &protocol.HandshakeError{Reply: reply, Err: protocol.ErrVersionUnsupported}
	default:
		return &protocol.HandshakeError{Reply: reply, Err: errors.New("unexpected version reply")}
	}
}

// State returns the connection's current state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Call sends req and waits for its response. The returned response always
// has the type that answers req.
//
// Errors:
//   - *protocol.TransportError: the channel failed; the operation may or
//     may not have been performed. The connection is now Broken.
//   - protocol.ErrInvalidRequest, protocol.ErrUnsupportedRequest: the
//     daemon refused the request. The connection stays usable.
//
// A response with success=false is not an error; inspect its Failure.
func (c *Conn) Call(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	want, ok := protocol.ResponseTypeFor(req.RequestType())
	if !ok {
		return nil, fmt.Errorf("no response type for request %s", req.RequestType())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateBroken:
		return nil, &protocol.TransportError{Op: "call", Err: ErrBroken}
	case StateClosed:
		return nil, &protocol.TransportError{Op: "call", Err: net.ErrClosed}
	}

	stop := c.bindContext(ctx)
	defer stop()

	if err := protocol.WriteFrame(c.nc, protocol.EncodeRequest(req)); err != nil {
		return nil, c.fail(ctx, "write", err)
	}
	c.state.Store(int32(StateSent))

	payload, err := protocol.ReadFrame(c.nc)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("connection closed before response")
		}
		return nil, c.fail(ctx, "read", err)
	}

	resp, err := protocol.DecodeResponse(payload)
	if err != nil {
		return nil, c.fail(ctx, "decode", err)
	}
	c.state.Store(int32(StateReceived))

	switch resp.ResponseType() {
	case protocol.ResponseInvalid:
		c.state.Store(int32(StateIdle))
		return nil, protocol.ErrInvalidRequest
	case protocol.ResponseUnsupported:
		c.state.Store(int32(StateIdle))
		return nil, protocol.ErrUnsupportedRequest
	case want:
		c.state.Store(int32(StateIdle))
		return resp, nil
	default:
		return nil, c.fail(ctx, "read", &protocol.UnexpectedReplyError{Want: want, Got: resp.ResponseType()})
	}
}

// Close closes the connection. It may be called concurrently with Call,
// which then fails with a transport error.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		err = c.nc.Close()
	})
	return err
}

// bindContext maps ctx onto connection deadlines. Cancellation forces
// pending I/O to fail at once. The returned func clears the deadline; if
// the cancellation callback already started, it waits for it first so the
// past deadline cannot land after the reset.
func (c *Conn) bindContext(ctx context.Context) func() {
	if d, ok := ctx.Deadline(); ok {
		c.nc.SetDeadline(d)
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		c.nc.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		if !stop() {
			<-fired
		}
		c.nc.SetDeadline(time.Time{})
	}
}

// fail marks the connection broken and closes it.
func (c *Conn) fail(ctx context.Context, op string, err error) error {
	terr := c.transportErr(ctx, op, err)
	c.logger.Warn("connection broken", "op", op, "error", terr.Error())
	c.closeOnce.Do(func() {
		c.nc.Close()
	})
	if c.State() != StateClosed {
		c.state.Store(int32(StateBroken))
	}
	return terr
}

func (c *Conn) transportErr(ctx context.Context, op string, err error) *protocol.TransportError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else if d, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) && !time.Now().Before(d) {
		// The socket deadline can fire just ahead of the context timer.
		err = context.DeadlineExceeded
	}
	return &protocol.TransportError{Op: op, Err: err}
}
