package daemon

import (
	"io"
	"os"

	"github.com/Anik1199/DualBootPatcher/internal/fsops"
	"github.com/Anik1199/DualBootPatcher/internal/journal"
	"github.com/Anik1199/DualBootPatcher/internal/protocol"
)

var openFlags = map[protocol.OpenFlag]int{
	protocol.OpenAppend:    os.O_APPEND,
	protocol.OpenCreate:    os.O_CREATE,
	protocol.OpenExclusive: os.O_EXCL,
	protocol.OpenReadOnly:  os.O_RDONLY,
	protocol.OpenReadWrite: os.O_RDWR,
	protocol.OpenTruncate:  os.O_TRUNC,
	protocol.OpenWriteOnly: os.O_WRONLY,
}

var seekWhence = map[protocol.Whence]int{
	protocol.SeekSet:     io.SeekStart,
	protocol.SeekCurrent: io.SeekCurrent,
	protocol.SeekEnd:     io.SeekEnd,
}

// handleFile serves the handle-based requests against the connection's
// table. Ids not open in files are Invalid.
func handleFile(files *fsops.Handles, req protocol.Request, entry *journal.Entry) protocol.Response {
	if files == nil {
		return protocol.InvalidResponse{}
	}

	switch r := req.(type) {
	case protocol.FileOpenRequest:
		entry.Paths = paths(r.Path)
		entry.Mode = r.Perms
		if r.Path == nil || !fsops.ValidMode(r.Perms) {
			return protocol.InvalidResponse{}
		}
		flag := 0
		for _, f := range r.Flags {
			flag |= openFlags[f]
		}
		id, err := files.Open(*r.Path, flag, r.Perms)
		if err != nil {
			return protocol.FileOpenResponse{ErrorMsg: errorMsg(err)}
		}
		entry.Handle = &id
		return protocol.FileOpenResponse{Success: true, ID: id}

	case protocol.FileCloseRequest:
		entry.Handle = &r.ID
		if !files.Has(r.ID) {
			return protocol.InvalidResponse{}
		}
		if err := files.Close(r.ID); err != nil {
			return protocol.FileCloseResponse{ErrorMsg: errorMsg(err)}
		}
		return protocol.FileCloseResponse{Success: true}

	case protocol.FileReadRequest:
		entry.Handle = &r.ID
		if !files.Has(r.ID) {
			return protocol.InvalidResponse{}
		}
		data, err := files.Read(r.ID, r.Count)
		if err != nil {
			return protocol.FileReadResponse{ErrorMsg: errorMsg(err)}
		}
		return protocol.FileReadResponse{Success: true, BytesRead: uint64(len(data)), Data: data}

	case protocol.FileWriteRequest:
		entry.Handle = &r.ID
		if !files.Has(r.ID) || r.Data == nil {
			return protocol.InvalidResponse{}
		}
		n, err := files.Write(r.ID, r.Data)
		if err != nil {
			return protocol.FileWriteResponse{ErrorMsg: errorMsg(err)}
		}
		return protocol.FileWriteResponse{Success: true, BytesWritten: uint64(n)}

	case protocol.FileSeekRequest:
		entry.Handle = &r.ID
		whence, ok := seekWhence[r.Whence]
		if !files.Has(r.ID) || !ok {
			return protocol.InvalidResponse{}
		}
		off, err := files.Seek(r.ID, r.Offset, whence)
		if err != nil {
			return protocol.FileSeekResponse{ErrorMsg: errorMsg(err)}
		}
		return protocol.FileSeekResponse{Success: true, Offset: off}

	case protocol.FileStatRequest:
		entry.Handle = &r.ID
		if !files.Has(r.ID) {
			return protocol.InvalidResponse{}
		}
		st, err := files.Stat(r.ID)
		if err != nil {
			return protocol.FileStatResponse{ErrorMsg: errorMsg(err)}
		}
		return protocol.FileStatResponse{Success: true, Stat: &protocol.StructStat{
			Dev:     uint64(st.Dev),
			Ino:     uint64(st.Ino),
			Mode:    uint32(st.Mode),
			Nlink:   uint64(st.Nlink),
			UID:     st.Uid,
			GID:     st.Gid,
			Rdev:    uint64(st.Rdev),
			Size:    int64(st.Size),
			Blksize: int64(st.Blksize),
			Blocks:  int64(st.Blocks),
			Atime:   int64(st.Atim.Sec),
			Mtime:   int64(st.Mtim.Sec),
			Ctime:   int64(st.Ctim.Sec),
		}}

	case protocol.FileChmodRequest:
		entry.Handle = &r.ID
		entry.Mode = r.Mode
		if !files.Has(r.ID) || !fsops.ValidMode(r.Mode) {
			return protocol.InvalidResponse{}
		}
		if err := files.Chmod(r.ID, r.Mode); err != nil {
			return protocol.FileChmodResponse{ErrorMsg: errorMsg(err)}
		}
		return protocol.FileChmodResponse{Success: true}
	}
	return protocol.UnsupportedResponse{}
}
