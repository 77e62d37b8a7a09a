package fsops

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestHandles_ReadWriteSeek(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.img")
	h := NewHandles()

	id, err := h.Open(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if id != 0 {
		t.Errorf("expected first id 0, got %d", id)
	}

	n, err := h.Write(id, []byte("0123456789"))
	if err != nil || n != 10 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	off, err := h.Seek(id, -4, io.SeekEnd)
	if err != nil || off != 6 {
		t.Fatalf("Seek = %d, %v", off, err)
	}
	data, err := h.Read(id, 100)
	if err != nil || string(data) != "6789" {
		t.Fatalf("Read = %q, %v", data, err)
	}
	data, err = h.Read(id, 100)
	if err != nil || len(data) != 0 {
		t.Fatalf("expected empty read at end of file, got %q, %v", data, err)
	}

	st, err := h.Stat(id)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if st.Size != 10 || st.Mode&0o777 != 0o600 {
		t.Errorf("unexpected stat size=%d mode=%o", st.Size, st.Mode)
	}

	if err := h.Chmod(id, 0o640); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if fi, _ := os.Stat(path); fi.Mode().Perm() != 0o640 {
		t.Errorf("mode = %o", fi.Mode().Perm())
	}
	if err := h.Chmod(id, 0o4755); !errors.Is(err, ErrModeNotAllowed) {
		t.Errorf("expected ErrModeNotAllowed, got %v", err)
	}

	if err := h.Close(id); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := h.Read(id, 1); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("expected ErrUnknownHandle after close, got %v", err)
	}
}

func TestHandles_IDsAreNotReused(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a"), 1)
	h := NewHandles()

	first, err := h.Open(filepath.Join(dir, "a"), os.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	h.Close(first)
	second, err := h.Open(filepath.Join(dir, "a"), os.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Errorf("id %d reused", first)
	}
}

func TestHandles_OpenErrors(t *testing.T) {
	dir := t.TempDir()
	h := NewHandles()

	_, err := h.Open(filepath.Join(dir, "missing"), os.O_RDONLY, 0)
	if ErrorText(err) != "no such file or directory" {
		t.Errorf("unexpected error text %q", ErrorText(err))
	}
	if _, err := h.Open(filepath.Join(dir, "suid"), os.O_CREATE|os.O_WRONLY, 0o4755); !errors.Is(err, ErrModeNotAllowed) {
		t.Errorf("expected ErrModeNotAllowed, got %v", err)
	}
	if h.Len() != 0 {
		t.Errorf("failed opens left %d handles", h.Len())
	}
}

func TestHandles_ReadIsCapped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big")
	writeFile(t, path, MaxReadChunk+10)
	h := NewHandles()
	id, err := h.Open(path, os.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	data, err := h.Read(id, 1<<40)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(data) > MaxReadChunk {
		t.Errorf("read %d bytes, cap is %d", len(data), MaxReadChunk)
	}
}

func TestHandles_CloseAll(t *testing.T) {
	dir := t.TempDir()
	h := NewHandles()
	for _, name := range []string{"a", "b", "c"} {
		if _, err := h.Open(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if n := h.CloseAll(); n != 3 {
		t.Errorf("CloseAll = %d, want 3", n)
	}
	if h.Len() != 0 || h.Has(0) {
		t.Error("handles remain after CloseAll")
	}
}
