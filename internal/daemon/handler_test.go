package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Anik1199/DualBootPatcher/internal/fsops"
	"github.com/Anik1199/DualBootPatcher/internal/journal"
	"github.com/Anik1199/DualBootPatcher/internal/protocol"
)

func TestHandle_PathCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("boot image"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewHandler("9.3.0")
	resp, entry := h.Handle(context.Background(), nil, protocol.PathCopyRequest{Source: &src, Target: &dst})
	pc, ok := resp.(protocol.PathCopyResponse)
	if !ok || !pc.Success {
		t.Fatalf("expected successful PathCopyResponse, got %#v", resp)
	}
	if got, _ := os.ReadFile(dst); string(got) != "boot image" {
		t.Errorf("target has %q", got)
	}
	if entry.Outcome != journal.OutcomeSuccess || entry.Request != "PathCopyRequest" {
		t.Errorf("unexpected entry %+v", entry)
	}

	resp, entry = h.Handle(context.Background(), nil, protocol.PathCopyRequest{Source: protocol.String(filepath.Join(dir, "missing")), Target: &dst})
	pc = resp.(protocol.PathCopyResponse)
	if pc.Success || pc.ErrorMsg == nil {
		t.Fatalf("expected failure with message, got %#v", pc)
	}
	if *pc.ErrorMsg != "no such file or directory" {
		t.Errorf("unexpected message %q", *pc.ErrorMsg)
	}
	if entry.Outcome != journal.OutcomeFailure || entry.Error != *pc.ErrorMsg {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestHandle_EmptyPathsRunTheOperation(t *testing.T) {
	h := NewHandler("9.3.0")
	dst := filepath.Join(t.TempDir(), "dst")
	tests := []struct {
		name string
		req  protocol.Request
	}{
		{"copy empty source", protocol.PathCopyRequest{Source: protocol.String(""), Target: &dst}},
		{"chmod empty path", protocol.PathChmodRequest{Path: protocol.String(""), Mode: 0o644}},
		{"dirsize empty path", protocol.PathGetDirectorySizeRequest{Path: protocol.String("")}},
		{"open empty path", protocol.FileOpenRequest{Path: protocol.String("")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, entry := h.Handle(context.Background(), fsops.NewHandles(), tt.req)
			res, ok := resp.(protocol.Result)
			if !ok {
				t.Fatalf("expected an operation result, got %#v", resp)
			}
			f, failed := res.Failure()
			if !failed || f.Message() != "no such file or directory" {
				t.Errorf("expected ENOENT failure, got %v %q", failed, f.Message())
			}
			if entry.Outcome != journal.OutcomeFailure {
				t.Errorf("unexpected outcome %s", entry.Outcome)
			}
		})
	}
}

func TestHandle_InvalidRequests(t *testing.T) {
	h := NewHandler("9.3.0")
	tests := []struct {
		name string
		req  protocol.Request
	}{
		{"copy without source", protocol.PathCopyRequest{Target: protocol.String("/tmp/x")}},
		{"copy without target", protocol.PathCopyRequest{Source: protocol.String("/tmp/x")}},
		{"chmod without path", protocol.PathChmodRequest{Mode: 0o644}},
		{"chmod setuid", protocol.PathChmodRequest{Path: protocol.String("/tmp/x"), Mode: 0o4755}},
		{"chmod file type bits", protocol.PathChmodRequest{Path: protocol.String("/tmp/x"), Mode: 0o100644}},
		{"dirsize without path", protocol.PathGetDirectorySizeRequest{}},
		{"open without path", protocol.FileOpenRequest{Flags: []protocol.OpenFlag{protocol.OpenReadOnly}}},
		{"open setuid perms", protocol.FileOpenRequest{Path: protocol.String("/tmp/x"), Perms: 0o4755}},
		{"read unknown handle", protocol.FileReadRequest{ID: 9, Count: 1}},
		{"write unknown handle", protocol.FileWriteRequest{ID: 9, Data: []byte("x")}},
		{"seek unknown handle", protocol.FileSeekRequest{ID: 9}},
		{"stat unknown handle", protocol.FileStatRequest{ID: 9}},
		{"chmod unknown handle", protocol.FileChmodRequest{ID: 9, Mode: 0o644}},
		{"close unknown handle", protocol.FileCloseRequest{ID: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, entry := h.Handle(context.Background(), fsops.NewHandles(), tt.req)
			if _, ok := resp.(protocol.InvalidResponse); !ok {
				t.Fatalf("expected InvalidResponse, got %#v", resp)
			}
			if entry.Outcome != journal.OutcomeInvalid {
				t.Errorf("expected invalid outcome, got %s", entry.Outcome)
			}
		})
	}
}

func TestHandle_Unsupported(t *testing.T) {
	h := NewHandler("9.3.0")
	for _, req := range []protocol.Request{
		protocol.UnknownRequest{Type: 200},
		protocol.UnknownRequest{Type: protocol.RequestNone},
	} {
		resp, entry := h.Handle(context.Background(), nil, req)
		if _, ok := resp.(protocol.UnsupportedResponse); !ok {
			t.Errorf("%v: expected UnsupportedResponse, got %#v", req, resp)
		}
		if entry.Outcome != journal.OutcomeUnsupported {
			t.Errorf("%v: unexpected outcome %s", req, entry.Outcome)
		}
	}
}

func TestHandle_ChmodAndDirectorySize(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a")
	if err := os.WriteFile(file, make([]byte, 100), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "skip"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skip", "b"), make([]byte, 50), 0o600); err != nil {
		t.Fatal(err)
	}

	h := NewHandler("9.3.0")
	resp, _ := h.Handle(context.Background(), nil, protocol.PathChmodRequest{Path: &file, Mode: 0o640})
	if r := resp.(protocol.PathChmodResponse); !r.Success {
		t.Fatalf("chmod failed: %#v", r)
	}
	fi, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o640 {
		t.Errorf("mode = %o, want 640", fi.Mode().Perm())
	}

	resp, _ = h.Handle(context.Background(), nil, protocol.PathGetDirectorySizeRequest{Path: &dir, Exclusions: []string{"skip"}})
	r := resp.(protocol.PathGetDirectorySizeResponse)
	if !r.Success || r.Size != 100 {
		t.Errorf("unexpected response %#v", r)
	}
}

func TestHandle_Version(t *testing.T) {
	resp, entry := NewHandler("9.3.0-r7").Handle(context.Background(), nil, protocol.MbGetVersionRequest{})
	if r := resp.(protocol.MbGetVersionResponse); r.Version != "9.3.0-r7" {
		t.Errorf("version = %q", r.Version)
	}
	if entry.Outcome != journal.OutcomeSuccess {
		t.Errorf("unexpected outcome %s", entry.Outcome)
	}
}

func TestHandle_FileHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.img")
	files := fsops.NewHandles()
	h := NewHandler("9.3.0")
	ctx := context.Background()

	resp, entry := h.Handle(ctx, files, protocol.FileOpenRequest{
		Path:  &path,
		Flags: []protocol.OpenFlag{protocol.OpenReadWrite, protocol.OpenCreate, protocol.OpenTruncate},
		Perms: 0o600,
	})
	open, ok := resp.(protocol.FileOpenResponse)
	if !ok || !open.Success {
		t.Fatalf("open failed: %#v", resp)
	}
	if entry.Handle == nil || *entry.Handle != open.ID {
		t.Errorf("entry does not record handle: %+v", entry)
	}

	resp, _ = h.Handle(ctx, files, protocol.FileWriteRequest{ID: open.ID, Data: []byte("ANDROID!header")})
	if w := resp.(protocol.FileWriteResponse); !w.Success || w.BytesWritten != 14 {
		t.Fatalf("write: %#v", w)
	}

	resp, _ = h.Handle(ctx, files, protocol.FileSeekRequest{ID: open.ID, Offset: 8, Whence: protocol.SeekSet})
	if sk := resp.(protocol.FileSeekResponse); !sk.Success || sk.Offset != 8 {
		t.Fatalf("seek: %#v", sk)
	}

	resp, _ = h.Handle(ctx, files, protocol.FileReadRequest{ID: open.ID, Count: 64})
	if r := resp.(protocol.FileReadResponse); !r.Success || string(r.Data) != "header" || r.BytesRead != 6 {
		t.Fatalf("read: %#v", r)
	}

	resp, _ = h.Handle(ctx, files, protocol.FileStatRequest{ID: open.ID})
	st := resp.(protocol.FileStatResponse)
	if !st.Success || st.Stat == nil || st.Stat.Size != 14 || st.Stat.Mode&0o777 != 0o600 {
		t.Fatalf("stat: %#v", st)
	}

	resp, _ = h.Handle(ctx, files, protocol.FileChmodRequest{ID: open.ID, Mode: 0o644})
	if c := resp.(protocol.FileChmodResponse); !c.Success {
		t.Fatalf("chmod: %#v", c)
	}
	resp, _ = h.Handle(ctx, files, protocol.FileChmodRequest{ID: open.ID, Mode: 0o6755})
	if _, ok := resp.(protocol.InvalidResponse); !ok {
		t.Errorf("expected setuid chmod to be invalid, got %#v", resp)
	}

	resp, _ = h.Handle(ctx, files, protocol.FileSeekRequest{ID: open.ID, Whence: 7})
	if _, ok := resp.(protocol.InvalidResponse); !ok {
		t.Errorf("expected bad whence to be invalid, got %#v", resp)
	}
	resp, _ = h.Handle(ctx, files, protocol.FileWriteRequest{ID: open.ID})
	if _, ok := resp.(protocol.InvalidResponse); !ok {
		t.Errorf("expected write without data to be invalid, got %#v", resp)
	}

	resp, _ = h.Handle(ctx, files, protocol.FileCloseRequest{ID: open.ID})
	if c := resp.(protocol.FileCloseResponse); !c.Success {
		t.Fatalf("close: %#v", c)
	}
	resp, _ = h.Handle(ctx, files, protocol.FileReadRequest{ID: open.ID, Count: 1})
	if _, ok := resp.(protocol.InvalidResponse); !ok {
		t.Errorf("expected closed handle to be invalid, got %#v", resp)
	}
}

func TestHandle_FileOpenFailure(t *testing.T) {
	files := fsops.NewHandles()
	resp, _ := NewHandler("9.3.0").Handle(context.Background(), files, protocol.FileOpenRequest{
		Path:  protocol.String(filepath.Join(t.TempDir(), "missing")),
		Flags: []protocol.OpenFlag{protocol.OpenReadOnly},
	})
	o := resp.(protocol.FileOpenResponse)
	if o.Success || o.ErrorMsg == nil || *o.ErrorMsg != "no such file or directory" {
		t.Errorf("unexpected response %#v", o)
	}
	if files.Len() != 0 {
		t.Error("failed open registered a handle")
	}
}

func TestUIDPolicy(t *testing.T) {
	allow := uidPolicy([]uint32{1000})
	for uid, want := range map[uint32]bool{0: true, 1000: true, 1001: false} {
		if got := allow(Peer{UID: uid}); got != want {
			t.Errorf("uid %d: got %v, want %v", uid, got, want)
		}
	}
}
