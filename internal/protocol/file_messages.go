package protocol

import "fmt"

// OpenFlag is one open(2) flag of a FileOpenRequest.
type OpenFlag uint8

const (
	OpenAppend OpenFlag = iota
	OpenCreate
	OpenExclusive
	OpenReadOnly
	OpenReadWrite
	OpenTruncate
	OpenWriteOnly
)

func (f OpenFlag) String() string {
	switch f {
	case OpenAppend:
		return "APPEND"
	case OpenCreate:
		return "CREAT"
	case OpenExclusive:
		return "EXCL"
	case OpenReadOnly:
		return "RDONLY"
	case OpenReadWrite:
		return "RDWR"
	case OpenTruncate:
		return "TRUNC"
	case OpenWriteOnly:
		return "WRONLY"
	default:
		return fmt.Sprintf("OpenFlag(%d)", uint8(f))
	}
}

// Whence selects the origin of a FileSeekRequest.
type Whence uint8

const (
	SeekSet Whence = iota
	SeekCurrent
	SeekEnd
)

// File handle messages. A handle id is only meaningful on the connection
// that opened it and is released when that connection ends.
var (
	FileOpenRequestSchema = NewSchema("FileOpenRequest",
		Field{Index: 0, Name: "path", Type: TypeString},
		Field{Index: 1, Name: "flags", Type: TypeBytes},
		Field{Index: 2, Name: "perms", Type: TypeUint32},
	)
	FileOpenResponseSchema = NewSchema("FileOpenResponse",
		Field{Index: 0, Name: "success", Type: TypeBool},
		Field{Index: 1, Name: "error_msg", Type: TypeString},
		Field{Index: 2, Name: "id", Type: TypeInt32},
	)
	FileCloseRequestSchema = NewSchema("FileCloseRequest",
		Field{Index: 0, Name: "id", Type: TypeInt32},
	)
	FileCloseResponseSchema = NewSchema("FileCloseResponse",
		Field{Index: 0, Name: "success", Type: TypeBool},
		Field{Index: 1, Name: "error_msg", Type: TypeString},
	)
	FileReadRequestSchema = NewSchema("FileReadRequest",
		Field{Index: 0, Name: "id", Type: TypeInt32},
		Field{Index: 1, Name: "count", Type: TypeUint64},
	)
	FileReadResponseSchema = NewSchema("FileReadResponse",
		Field{Index: 0, Name: "success", Type: TypeBool},
		Field{Index: 1, Name: "error_msg", Type: TypeString},
		Field{Index: 2, Name: "bytes_read", Type: TypeUint64},
		Field{Index: 3, Name: "data", Type: TypeBytes},
	)
	FileWriteRequestSchema = NewSchema("FileWriteRequest",
		Field{Index: 0, Name: "id", Type: TypeInt32},
		Field{Index: 1, Name: "data", Type: TypeBytes},
	)
	FileWriteResponseSchema = NewSchema("FileWriteResponse",
		Field{Index: 0, Name: "success", Type: TypeBool},
		Field{Index: 1, Name: "error_msg", Type: TypeString},
		Field{Index: 2, Name: "bytes_written", Type: TypeUint64},
	)
	FileSeekRequestSchema = NewSchema("FileSeekRequest",
		Field{Index: 0, Name: "id", Type: TypeInt32},
		Field{Index: 1, Name: "offset", Type: TypeInt64},
		Field{Index: 2, Name: "whence", Type: TypeUint8},
	)
	FileSeekResponseSchema = NewSchema("FileSeekResponse",
		Field{Index: 0, Name: "success", Type: TypeBool},
		Field{Index: 1, Name: "error_msg", Type: TypeString},
		Field{Index: 2, Name: "offset", Type: TypeInt64},
	)
	FileStatRequestSchema = NewSchema("FileStatRequest",
		Field{Index: 0, Name: "id", Type: TypeInt32},
	)
	StructStatSchema = NewSchema("StructStat",
		Field{Index: 0, Name: "st_dev", Type: TypeUint64},
		Field{Index: 1, Name: "st_ino", Type: TypeUint64},
		Field{Index: 2, Name: "st_mode", Type: TypeUint32},
		Field{Index: 3, Name: "st_nlink", Type: TypeUint64},
		Field{Index: 4, Name: "st_uid", Type: TypeUint32},
		Field{Index: 5, Name: "st_gid", Type: TypeUint32},
		Field{Index: 6, Name: "st_rdev", Type: TypeUint64},
		Field{Index: 7, Name: "st_size", Type: TypeInt64},
		Field{Index: 8, Name: "st_blksize", Type: TypeInt64},
		Field{Index: 9, Name: "st_blocks", Type: TypeInt64},
		Field{Index: 10, Name: "st_atime", Type: TypeInt64},
		Field{Index: 11, Name: "st_mtime", Type: TypeInt64},
		Field{Index: 12, Name: "st_ctime", Type: TypeInt64},
	)
	FileStatResponseSchema = NewSchema("FileStatResponse",
		Field{Index: 0, Name: "success", Type: TypeBool},
		Field{Index: 1, Name: "error_msg", Type: TypeString},
		Field{Index: 2, Name: "stat", Type: TypeTable, Schema: StructStatSchema},
	)
	FileChmodRequestSchema = NewSchema("FileChmodRequest",
		Field{Index: 0, Name: "id", Type: TypeInt32},
		Field{Index: 1, Name: "mode", Type: TypeUint32},
	)
	FileChmodResponseSchema = NewSchema("FileChmodResponse",
		Field{Index: 0, Name: "success", Type: TypeBool},
		Field{Index: 1, Name: "error_msg", Type: TypeString},
	)
)

// FileOpenRequest opens Path and returns a handle id. Flags outside the
// known set are ignored. Perms applies when the file is created.
type FileOpenRequest struct {
	Path  *string
	Flags []OpenFlag
	Perms uint32
}

func (FileOpenRequest) RequestType() RequestType { return RequestFileOpen }

func (m FileOpenRequest) record() *Record {
	r := NewRecord(FileOpenRequestSchema)
	setOptString(r, 0, m.Path)
	if m.Flags != nil {
		raw := make([]byte, len(m.Flags))
		for i, f := range m.Flags {
			raw[i] = byte(f)
		}
		r.SetBytes(1, raw)
	}
	r.SetUint32(2, m.Perms)
	return r
}

type FileOpenResponse struct {
	Success  bool
	ErrorMsg *string
	ID       int32
}

func (FileOpenResponse) ResponseType() ResponseType { return ResponseFileOpen }

func (m FileOpenResponse) record() *Record {
	r := resultRecord(FileOpenResponseSchema, m.Success, m.ErrorMsg)
	r.SetInt32(2, m.ID)
	return r
}

func (m FileOpenResponse) Failure() (OperationFailure, bool) {
	return failure("file open", m.Success, m.ErrorMsg)
}

type FileCloseRequest struct {
	ID int32
}

func (FileCloseRequest) RequestType() RequestType { return RequestFileClose }

func (m FileCloseRequest) record() *Record {
	r := NewRecord(FileCloseRequestSchema)
	r.SetInt32(0, m.ID)
	return r
}

type FileCloseResponse struct {
	Success  bool
	ErrorMsg *string
}

func (FileCloseResponse) ResponseType() ResponseType { return ResponseFileClose }

func (m FileCloseResponse) record() *Record {
	return resultRecord(FileCloseResponseSchema, m.Success, m.ErrorMsg)
}

func (m FileCloseResponse) Failure() (OperationFailure, bool) {
	return failure("file close", m.Success, m.ErrorMsg)
}

// FileReadRequest reads up to Count bytes at the handle's offset. The
// daemon may return fewer bytes; zero bytes with success means end of file.
type FileReadRequest struct {
	ID    int32
	Count uint64
}

func (FileReadRequest) RequestType() RequestType { return RequestFileRead }

func (m FileReadRequest) record() *Record {
	r := NewRecord(FileReadRequestSchema)
	r.SetInt32(0, m.ID)
	r.SetUint64(1, m.Count)
	return r
}

type FileReadResponse struct {
	Success   bool
	ErrorMsg  *string
	BytesRead uint64
	Data      []byte
}

func (FileReadResponse) ResponseType() ResponseType { return ResponseFileRead }

func (m FileReadResponse) record() *Record {
	r := resultRecord(FileReadResponseSchema, m.Success, m.ErrorMsg)
	r.SetUint64(2, m.BytesRead)
	if m.Data != nil {
		r.SetBytes(3, m.Data)
	}
	return r
}

func (m FileReadResponse) Failure() (OperationFailure, bool) {
	return failure("file read", m.Success, m.ErrorMsg)
}

// FileWriteRequest writes Data at the handle's offset. A nil Data is
// absent on the wire and rejected as invalid.
type FileWriteRequest struct {
	ID   int32
	Data []byte
}

func (FileWriteRequest) RequestType() RequestType { return RequestFileWrite }

func (m FileWriteRequest) record() *Record {
	r := NewRecord(FileWriteRequestSchema)
	r.SetInt32(0, m.ID)
	if m.Data != nil {
		r.SetBytes(1, m.Data)
	}
	return r
}

type FileWriteResponse struct {
	Success      bool
	ErrorMsg     *string
	BytesWritten uint64
}

func (FileWriteResponse) ResponseType() ResponseType { return ResponseFileWrite }

func (m FileWriteResponse) record() *Record {
	r := resultRecord(FileWriteResponseSchema, m.Success, m.ErrorMsg)
	r.SetUint64(2, m.BytesWritten)
	return r
}

func (m FileWriteResponse) Failure() (OperationFailure, bool) {
	return failure("file write", m.Success, m.ErrorMsg)
}

type FileSeekRequest struct {
	ID     int32
	Offset int64
	Whence Whence
}

func (FileSeekRequest) RequestType() RequestType { return RequestFileSeek }

func (m FileSeekRequest) record() *Record {
	r := NewRecord(FileSeekRequestSchema)
	r.SetInt32(0, m.ID)
	r.SetInt64(1, m.Offset)
	r.SetUint8(2, uint8(m.Whence))
	return r
}

// FileSeekResponse carries the resulting offset from the start of the file.
type FileSeekResponse struct {
	Success  bool
	ErrorMsg *string
	Offset   int64
}

func (FileSeekResponse) ResponseType() ResponseType { return ResponseFileSeek }

func (m FileSeekResponse) record() *Record {
	r := resultRecord(FileSeekResponseSchema, m.Success, m.ErrorMsg)
	r.SetInt64(2, m.Offset)
	return r
}

func (m FileSeekResponse) Failure() (OperationFailure, bool) {
	return failure("file seek", m.Success, m.ErrorMsg)
}

type FileStatRequest struct {
	ID int32
}

func (FileStatRequest) RequestType() RequestType { return RequestFileStat }

func (m FileStatRequest) record() *Record {
	r := NewRecord(FileStatRequestSchema)
	r.SetInt32(0, m.ID)
	return r
}

// StructStat mirrors struct stat. Times are seconds since the epoch.
type StructStat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint64
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    int64
	Blksize int64
	Blocks  int64
	Atime   int64
	Mtime   int64
	Ctime   int64
}

func (s StructStat) record() *Record {
	r := NewRecord(StructStatSchema)
	r.SetUint64(0, s.Dev)
	r.SetUint64(1, s.Ino)
	r.SetUint32(2, s.Mode)
	r.SetUint64(3, s.Nlink)
	r.SetUint32(4, s.UID)
	r.SetUint32(5, s.GID)
	r.SetUint64(6, s.Rdev)
	r.SetInt64(7, s.Size)
	r.SetInt64(8, s.Blksize)
	r.SetInt64(9, s.Blocks)
	r.SetInt64(10, s.Atime)
	r.SetInt64(11, s.Mtime)
	r.SetInt64(12, s.Ctime)
	return r
}

func structStatFrom(r *Record) *StructStat {
	return &StructStat{
		Dev:     r.Uint64(0),
		Ino:     r.Uint64(1),
		Mode:    r.Uint32(2),
		Nlink:   r.Uint64(3),
		UID:     r.Uint32(4),
		GID:     r.Uint32(5),
		Rdev:    r.Uint64(6),
		Size:    r.Int64(7),
		Blksize: r.Int64(8),
		Blocks:  r.Int64(9),
		Atime:   r.Int64(10),
		Mtime:   r.Int64(11),
		Ctime:   r.Int64(12),
	}
}

type FileStatResponse struct {
	Success  bool
	ErrorMsg *string
	Stat     *StructStat
}

func (FileStatResponse) ResponseType() ResponseType { return ResponseFileStat }

func (m FileStatResponse) record() *Record {
	r := resultRecord(FileStatResponseSchema, m.Success, m.ErrorMsg)
	if m.Stat != nil {
		r.SetTable(2, m.Stat.record())
	}
	return r
}

func (m FileStatResponse) Failure() (OperationFailure, bool) {
	return failure("file stat", m.Success, m.ErrorMsg)
}

// FileChmodRequest sets the permission bits of an open handle. The same
// mode restrictions as PathChmodRequest apply.
type FileChmodRequest struct {
	ID   int32
	Mode uint32
}

func (FileChmodRequest) RequestType() RequestType { return RequestFileChmod }

func (m FileChmodRequest) record() *Record {
	r := NewRecord(FileChmodRequestSchema)
	r.SetInt32(0, m.ID)
	r.SetUint32(1, m.Mode)
	return r
}

type FileChmodResponse struct {
	Success  bool
	ErrorMsg *string
}

func (FileChmodResponse) ResponseType() ResponseType { return ResponseFileChmod }

func (m FileChmodResponse) record() *Record {
	return resultRecord(FileChmodResponseSchema, m.Success, m.ErrorMsg)
}

func (m FileChmodResponse) Failure() (OperationFailure, bool) {
	return failure("file chmod", m.Success, m.ErrorMsg)
}

func decodeFileRequest(typ RequestType, r *Record) Request {
	switch typ {
	case RequestFileOpen:
		var flags []OpenFlag
		if raw := r.Bytes(1); raw != nil {
			flags = make([]OpenFlag, len(raw))
			for i, b := range raw {
				flags[i] = OpenFlag(b)
			}
		}
		return FileOpenRequest{Path: r.OptString(0), Flags: flags, Perms: r.Uint32(2)}
	case RequestFileClose:
		return FileCloseRequest{ID: r.Int32(0)}
	case RequestFileRead:
		return FileReadRequest{ID: r.Int32(0), Count: r.Uint64(1)}
	case RequestFileWrite:
		return FileWriteRequest{ID: r.Int32(0), Data: r.Bytes(1)}
	case RequestFileSeek:
		return FileSeekRequest{ID: r.Int32(0), Offset: r.Int64(1), Whence: Whence(r.Uint8(2))}
	case RequestFileStat:
		return FileStatRequest{ID: r.Int32(0)}
	case RequestFileChmod:
		return FileChmodRequest{ID: r.Int32(0), Mode: r.Uint32(1)}
	default:
		return UnknownRequest{Type: typ}
	}
}

func decodeFileResponse(typ ResponseType, r *Record) (Response, error) {
	switch typ {
	case ResponseFileOpen:
		return FileOpenResponse{Success: r.Bool(0), ErrorMsg: r.OptString(1), ID: r.Int32(2)}, nil
	case ResponseFileClose:
		return FileCloseResponse{Success: r.Bool(0), ErrorMsg: r.OptString(1)}, nil
	case ResponseFileRead:
		return FileReadResponse{
			Success:   r.Bool(0),
			ErrorMsg:  r.OptString(1),
			BytesRead: r.Uint64(2),
			Data:      r.Bytes(3),
		}, nil
	case ResponseFileWrite:
		return FileWriteResponse{Success: r.Bool(0), ErrorMsg: r.OptString(1), BytesWritten: r.Uint64(2)}, nil
	case ResponseFileSeek:
		return FileSeekResponse{Success: r.Bool(0), ErrorMsg: r.OptString(1), Offset: r.Int64(2)}, nil
	case ResponseFileStat:
		st, err := r.Table(2, StructStatSchema)
		if err != nil {
			return nil, err
		}
		resp := FileStatResponse{Success: r.Bool(0), ErrorMsg: r.OptString(1)}
		if st != nil {
			resp.Stat = structStatFrom(st)
		}
		return resp, nil
	case ResponseFileChmod:
		return FileChmodResponse{Success: r.Bool(0), ErrorMsg: r.OptString(1)}, nil
	default:
		return nil, &DecodeError{Schema: ResponseSchema.Name, Reason: fmt.Sprintf("unknown response type %s", typ)}
	}
}
