// server_test.go drives whole sessions: the handshake, request dispatch,
// connection handling after bad input, and journaling of every answer.
package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Anik1199/DualBootPatcher/internal/client"
	"github.com/Anik1199/DualBootPatcher/internal/journal"
	"github.com/Anik1199/DualBootPatcher/internal/protocol"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memRecorder struct {
	mu      sync.Mutex
	entries []*journal.Entry
}

func (r *memRecorder) Append(e *journal.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *memRecorder) all() []*journal.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*journal.Entry(nil), r.entries...)
}

// newTestServer returns a server that sees every peer as uid 1000.
func newTestServer(rec Recorder) *Server {
	s := NewServer(Config{AllowedUIDs: []uint32{1000}, HandshakeTimeout: 2 * time.Second}, NewHandler("9.3.0"), rec, nopLogger())
	s.peerCreds = func(net.Conn) (Peer, error) {
		return Peer{PID: 42, UID: 1000, GID: 1000}, nil
	}
	return s
}

// servePipe runs a session on one end of a pipe and returns the other.
func servePipe(t *testing.T, s *Server) (net.Conn, <-chan struct{}) {
	t.Helper()
	clientSide, daemonSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ServeConn(context.Background(), daemonSide)
	}()
	t.Cleanup(func() {
		clientSide.Close()
		<-done
	})
	return clientSide, done
}

func openClient(t *testing.T, s *Server) *client.Conn {
	t.Helper()
	nc, _ := servePipe(t, s)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Open(ctx, nc, nopLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return c
}

func waitClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
	}
}

func TestSession_Requests(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "boot.img")
	if err := os.WriteFile(src, []byte("kernel"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &memRecorder{}
	c := openClient(t, newTestServer(rec))
	ctx := context.Background()

	v, err := c.GetVersion(ctx)
	if err != nil || v != "9.3.0" {
		t.Fatalf("GetVersion = %q, %v", v, err)
	}

	resp, err := c.PathCopy(ctx, src, filepath.Join(dir, "copy.img"))
	if err != nil {
		t.Fatalf("PathCopy: %v", err)
	}
	if !resp.Success {
		t.Errorf("expected success, got %#v", resp)
	}

	resp, err = c.PathCopy(ctx, filepath.Join(dir, "missing"), filepath.Join(dir, "x"))
	if err != nil {
		t.Fatalf("PathCopy: %v", err)
	}
	f, failed := resp.Failure()
	if !failed || f.Message() != "no such file or directory" {
		t.Errorf("unexpected failure %v %q", failed, f.Message())
	}

	entries := rec.all()
	if len(entries) != 3 {
		t.Fatalf("expected 3 journal entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.ConnID == "" || e.PeerUID != 1000 {
			t.Errorf("entry missing connection info: %+v", e)
		}
	}
	if entries[2].Outcome != journal.OutcomeFailure {
		t.Errorf("expected failure outcome, got %s", entries[2].Outcome)
	}
}

func TestSession_InvalidKeepsConnection(t *testing.T) {
	c := openClient(t, newTestServer(nil))
	ctx := context.Background()

	if _, err := c.PathChmod(ctx, "/tmp/x", 0o4755); !errors.Is(err, protocol.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := c.FileRead(ctx, 7, 16); !errors.Is(err, protocol.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for an unknown handle, got %v", err)
	}
	resp, err := c.PathCopy(ctx, "", "/tmp/x")
	if err != nil {
		t.Fatalf("PathCopy with empty source: %v", err)
	}
	if f, failed := resp.Failure(); !failed || f.Message() != "no such file or directory" {
		t.Errorf("expected errno failure for empty source, got %#v", resp)
	}
	if _, err := c.GetVersion(ctx); err != nil {
		t.Fatalf("connection unusable after Invalid: %v", err)
	}
}

// rawHandshake performs the client side of the handshake by hand.
func rawHandshake(t *testing.T, nc net.Conn, version int32) string {
	t.Helper()
	nc.SetDeadline(time.Now().Add(5 * time.Second))
	reply, err := protocol.ReadToken(nc)
	if err != nil {
		t.Fatalf("read access reply: %v", err)
	}
	if reply != protocol.ReplyAllow {
		return reply
	}
	if err := protocol.WriteVersion(nc, version); err != nil {
		t.Fatalf("write version: %v", err)
	}
	reply, err = protocol.ReadToken(nc)
	if err != nil {
		t.Fatalf("read version reply: %v", err)
	}
	return reply
}

func TestSession_UnknownRequestTypeIsUnsupported(t *testing.T) {
	nc, _ := servePipe(t, newTestServer(nil))
	if reply := rawHandshake(t, nc, protocol.ProtocolVersion); reply != protocol.ReplyOK {
		t.Fatalf("handshake reply %q", reply)
	}

	env := protocol.NewRecord(protocol.RequestSchema)
	env.SetUint8(0, 200)
	for i := 0; i < 2; i++ {
		if err := protocol.WriteFrame(nc, protocol.Encode(env)); err != nil {
			t.Fatal(err)
		}
		payload, err := protocol.ReadFrame(nc)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp, err := protocol.DecodeResponse(payload)
		if err != nil {
			t.Fatal(err)
		}
		if resp.ResponseType() != protocol.ResponseUnsupported {
			t.Errorf("request %d: got %s", i, resp.ResponseType())
		}
	}
}

func TestSession_UndecodableFrameClosesConnection(t *testing.T) {
	nc, done := servePipe(t, newTestServer(nil))
	if reply := rawHandshake(t, nc, protocol.ProtocolVersion); reply != protocol.ReplyOK {
		t.Fatalf("handshake reply %q", reply)
	}
	if err := protocol.WriteFrame(nc, []byte{0xff, 0xff, 0xff, 0x7f, 1, 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := protocol.ReadFrame(nc); err == nil {
		t.Fatal("expected the connection to close")
	}
	waitClosed(t, done)
}

func TestSession_Handshake(t *testing.T) {
	tests := []struct {
		name    string
		peer    Peer
		peerErr error
		version int32
		want    string
	}{
		{"allowed", Peer{UID: 1000}, nil, protocol.ProtocolVersion, protocol.ReplyOK},
		{"root", Peer{UID: 0}, nil, protocol.ProtocolVersion, protocol.ReplyOK},
		{"other uid", Peer{UID: 2000}, nil, protocol.ProtocolVersion, protocol.ReplyDeny},
		{"no credentials", Peer{}, errNoCredentials, protocol.ProtocolVersion, protocol.ReplyDeny},
		{"old version", Peer{UID: 1000}, nil, 2, protocol.ReplyUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(nil)
			s.peerCreds = func(net.Conn) (Peer, error) { return tt.peer, tt.peerErr }
			nc, done := servePipe(t, s)

			if got := rawHandshake(t, nc, tt.version); got != tt.want {
				t.Fatalf("reply = %q, want %q", got, tt.want)
			}
			if tt.want != protocol.ReplyOK {
				waitClosed(t, done)
			}
		})
	}
}

func TestSession_ClientClosesMidRequest(t *testing.T) {
	rec := &memRecorder{}
	nc, done := servePipe(t, newTestServer(rec))
	if reply := rawHandshake(t, nc, protocol.ProtocolVersion); reply != protocol.ReplyOK {
		t.Fatalf("handshake reply %q", reply)
	}

	req := protocol.EncodeRequest(protocol.PathGetDirectorySizeRequest{Path: protocol.String(t.TempDir())})
	if err := protocol.WriteFrame(nc, req); err != nil {
		t.Fatal(err)
	}
	nc.Close()
	waitClosed(t, done)

	if e := rec.all(); len(e) != 1 {
		t.Errorf("expected the request to be journaled once, got %d", len(e))
	}
}

// openFDs returns the targets of this process's open descriptors.
func openFDs(t *testing.T) map[string]bool {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("cannot list descriptors: %v", err)
	}
	targets := make(map[string]bool, len(entries))
	for _, e := range entries {
		if target, err := os.Readlink(filepath.Join("/proc/self/fd", e.Name())); err == nil {
			targets[target] = true
		}
	}
	return targets
}

func TestSession_FileHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.img")
	rec := &memRecorder{}
	c := openClient(t, newTestServer(rec))
	ctx := context.Background()

	open, err := c.FileOpen(ctx, path, []protocol.OpenFlag{protocol.OpenReadWrite, protocol.OpenCreate}, 0o600)
	if err != nil || !open.Success {
		t.Fatalf("FileOpen = %+v, %v", open, err)
	}
	if w, err := c.FileWrite(ctx, open.ID, []byte("android")); err != nil || w.BytesWritten != 7 {
		t.Fatalf("FileWrite = %+v, %v", w, err)
	}
	if s, err := c.FileSeek(ctx, open.ID, 2, protocol.SeekSet); err != nil || s.Offset != 2 {
		t.Fatalf("FileSeek = %+v, %v", s, err)
	}
	r, err := c.FileRead(ctx, open.ID, 64)
	if err != nil || string(r.Data) != "droid" || r.BytesRead != 5 {
		t.Fatalf("FileRead = %+v, %v", r, err)
	}
	st, err := c.FileStat(ctx, open.ID)
	if err != nil || st.Stat == nil || st.Stat.Size != 7 {
		t.Fatalf("FileStat = %+v, %v", st, err)
	}
	if cl, err := c.FileClose(ctx, open.ID); err != nil || !cl.Success {
		t.Fatalf("FileClose = %+v, %v", cl, err)
	}
	if _, err := c.FileRead(ctx, open.ID, 1); !errors.Is(err, protocol.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest after close, got %v", err)
	}

	for _, e := range rec.all()[:6] {
		if e.Handle == nil || *e.Handle != open.ID {
			t.Errorf("entry %s missing handle: %+v", e.Request, e)
		}
	}
}

func TestSession_HandlesArePerConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.img")
	if err := os.WriteFile(path, []byte("kernel"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := newTestServer(nil)
	ctx := context.Background()

	first := openClient(t, s)
	open, err := first.FileOpen(ctx, path, []protocol.OpenFlag{protocol.OpenReadOnly}, 0)
	if err != nil || !open.Success {
		t.Fatalf("FileOpen = %+v, %v", open, err)
	}

	second := openClient(t, s)
	if _, err := second.FileRead(ctx, open.ID, 6); !errors.Is(err, protocol.ErrInvalidRequest) {
		t.Errorf("expected another connection's handle to be Invalid, got %v", err)
	}
	if r, err := first.FileRead(ctx, open.ID, 6); err != nil || string(r.Data) != "kernel" {
		t.Errorf("FileRead on owning connection = %+v, %v", r, err)
	}
}

func TestSession_DisconnectReleasesHandles(t *testing.T) {
	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "a.img"), filepath.Join(dir, "b.img")}

	nc, done := servePipe(t, newTestServer(nil))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Open(ctx, nc, nopLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for _, p := range paths {
		resp, err := c.FileOpen(ctx, p, []protocol.OpenFlag{protocol.OpenWriteOnly, protocol.OpenCreate}, 0o644)
		if err != nil || !resp.Success {
			t.Fatalf("FileOpen(%s) = %+v, %v", p, resp, err)
		}
	}

	fds := openFDs(t)
	for _, p := range paths {
		if !fds[p] {
			t.Fatalf("%s is not open while the session runs", p)
		}
	}

	c.Close()
	waitClosed(t, done)

	fds = openFDs(t)
	for _, p := range paths {
		if fds[p] {
			t.Errorf("%s still open after the client disconnected", p)
		}
	}
}

func TestServer_UnixSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "d.sock")
	ln, err := Listen(sock)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	fi, err := os.Stat(sock)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o666 {
		t.Errorf("socket mode %o", fi.Mode().Perm())
	}

	rec := &memRecorder{}
	s := NewServer(Config{}, NewHandler("9.3.0"), rec, nopLogger())
	// Tests may run unprivileged; admit whoever runs them.
	s.authorize = func(Peer) bool { return true }
	served := make(chan error, 1)
	go func() { served <- s.Serve(context.Background(), ln) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, sock, client.Options{Logger: nopLogger()})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if v, err := c.GetVersion(ctx); err != nil || v != "9.3.0" {
		t.Fatalf("GetVersion = %q, %v", v, err)
	}
	if e := rec.all(); len(e) != 1 || e[0].PeerUID != uint32(os.Getuid()) {
		t.Errorf("unexpected journal %+v", e)
	}

	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-served; err != nil {
		t.Errorf("Serve returned %v", err)
	}
	if _, err := c.GetVersion(ctx); err == nil {
		t.Error("expected call on a shut down server to fail")
	}
}

func TestServer_ListenReplacesStaleSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "d.sock")
	if err := os.WriteFile(sock, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	ln, err := Listen(sock)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln.Close()
}
