package fsops

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// MaxReadChunk caps a single handle read so the response fits in one frame.
const MaxReadChunk = 1 << 20

// ErrUnknownHandle is returned for ids that were never issued on this table
// or were already closed.
var ErrUnknownHandle = errors.New("unknown file handle")

// Handles is the set of files one client connection has open. Ids are
// issued in order starting at zero and are never reused within a table.
// A Handles is not safe for concurrent use; a connection serves one request
// at a time.
type Handles struct {
	files map[int32]*os.File
	next  int32
}

func NewHandles() *Handles {
	return &Handles{files: make(map[int32]*os.File)}
}

// Open opens path with the given os.OpenFile flags and returns its id.
// perm only matters when the file is created and must hold permission
// bits only.
func (h *Handles) Open(path string, flag int, perm uint32) (int32, error) {
	if !ValidMode(perm) {
		return 0, ErrModeNotAllowed
	}
	f, err := os.OpenFile(path, flag, fs.FileMode(perm))
	if err != nil {
		return 0, err
	}
	id := h.next
	h.next++
	h.files[id] = f
	return id, nil
}

// Has reports whether id refers to an open file.
func (h *Handles) Has(id int32) bool {
	_, ok := h.files[id]
	return ok
}

func (h *Handles) get(id int32) (*os.File, error) {
	f, ok := h.files[id]
	if !ok {
		return nil, ErrUnknownHandle
	}
	return f, nil
}

// Read reads up to count bytes, capped at MaxReadChunk. End of file is a
// successful empty read.
func (h *Handles) Read(id int32, count uint64) ([]byte, error) {
	f, err := h.get(id)
	if err != nil {
		return nil, err
	}
	if count > MaxReadChunk {
		count = MaxReadChunk
	}
	buf := make([]byte, count)
	n, err := f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func (h *Handles) Write(id int32, data []byte) (int, error) {
	f, err := h.get(id)
	if err != nil {
		return 0, err
	}
	return f.Write(data)
}

// Seek moves the offset of id; whence is io.SeekStart, io.SeekCurrent or
// io.SeekEnd.
func (h *Handles) Seek(id int32, offset int64, whence int) (int64, error) {
	f, err := h.get(id)
	if err != nil {
		return 0, err
	}
	return f.Seek(offset, whence)
}

func (h *Handles) Stat(id int32) (*unix.Stat_t, error) {
	f, err := h.get(id)
	if err != nil {
		return nil, err
	}
	raw, err := f.SyscallConn()
	if err != nil {
		return nil, err
	}
	var st unix.Stat_t
	var statErr error
	if err := raw.Control(func(fd uintptr) {
		statErr = unix.Fstat(int(fd), &st)
	}); err != nil {
		return nil, err
	}
	if statErr != nil {
		return nil, &fs.PathError{Op: "fstat", Path: f.Name(), Err: statErr}
	}
	return &st, nil
}

// Chmod sets the permission bits of id under the same rules as Chmod.
func (h *Handles) Chmod(id int32, mode uint32) error {
	f, err := h.get(id)
	if err != nil {
		return err
	}
	if !ValidMode(mode) {
		return ErrModeNotAllowed
	}
	return f.Chmod(fs.FileMode(mode))
}

// Close releases id. The id is forgotten even if closing the file fails.
func (h *Handles) Close(id int32) error {
	f, err := h.get(id)
	if err != nil {
		return err
	}
	delete(h.files, id)
	return f.Close()
}

// CloseAll closes every open file and returns how many there were.
func (h *Handles) CloseAll() int {
	n := len(h.files)
	for id, f := range h.files {
		f.Close()
		delete(h.files, id)
	}
	return n
}

// Len returns the number of open files.
func (h *Handles) Len() int {
	return len(h.files)
}
