package protocol

import "fmt"

// RequestType is the union discriminator of a Request envelope.
type RequestType uint8

const (
	RequestNone RequestType = iota
	RequestPathCopy
	RequestPathChmod
	RequestPathGetDirectorySize
	RequestMbGetVersion
	RequestFileOpen
	RequestFileClose
	RequestFileRead
	RequestFileWrite
	RequestFileSeek
	RequestFileStat
	RequestFileChmod
)

func (t RequestType) String() string {
	switch t {
	case RequestNone:
		return "None"
	case RequestPathCopy:
		return "PathCopyRequest"
	case RequestPathChmod:
		return "PathChmodRequest"
	case RequestPathGetDirectorySize:
		return "PathGetDirectorySizeRequest"
	case RequestMbGetVersion:
		return "MbGetVersionRequest"
	case RequestFileOpen:
		return "FileOpenRequest"
	case RequestFileClose:
		return "FileCloseRequest"
	case RequestFileRead:
		return "FileReadRequest"
	case RequestFileWrite:
		return "FileWriteRequest"
	case RequestFileSeek:
		return "FileSeekRequest"
	case RequestFileStat:
		return "FileStatRequest"
	case RequestFileChmod:
		return "FileChmodRequest"
	default:
		return fmt.Sprintf("RequestType(%d)", uint8(t))
	}
}

// ResponseType is the union discriminator of a Response envelope.
type ResponseType uint8

const (
	ResponseNone ResponseType = iota
	ResponseInvalid
	ResponseUnsupported
	ResponsePathCopy
	ResponsePathChmod
	ResponsePathGetDirectorySize
	ResponseMbGetVersion
	ResponseFileOpen
	ResponseFileClose
	ResponseFileRead
	ResponseFileWrite
	ResponseFileSeek
	ResponseFileStat
	ResponseFileChmod
)

func (t ResponseType) String() string {
	switch t {
	case ResponseNone:
		return "None"
	case ResponseInvalid:
		return "Invalid"
	case ResponseUnsupported:
		return "Unsupported"
	case ResponsePathCopy:
		return "PathCopyResponse"
	case ResponsePathChmod:
		return "PathChmodResponse"
	case ResponsePathGetDirectorySize:
		return "PathGetDirectorySizeResponse"
	case ResponseMbGetVersion:
		return "MbGetVersionResponse"
	case ResponseFileOpen:
		return "FileOpenResponse"
	case ResponseFileClose:
		return "FileCloseResponse"
	case ResponseFileRead:
		return "FileReadResponse"
	case ResponseFileWrite:
		return "FileWriteResponse"
	case ResponseFileSeek:
		return "FileSeekResponse"
	case ResponseFileStat:
		return "FileStatResponse"
	case ResponseFileChmod:
		return "FileChmodResponse"
	default:
		return fmt.Sprintf("ResponseType(%d)", uint8(t))
	}
}

// ResponseTypeFor returns the response type that answers a request type.
func ResponseTypeFor(t RequestType) (ResponseType, bool) {
	switch t {
	case RequestPathCopy:
		return ResponsePathCopy, true
	case RequestPathChmod:
		return ResponsePathChmod, true
	case RequestPathGetDirectorySize:
		return ResponsePathGetDirectorySize, true
	case RequestMbGetVersion:
		return ResponseMbGetVersion, true
	case RequestFileOpen:
		return ResponseFileOpen, true
	case RequestFileClose:
		return ResponseFileClose, true
	case RequestFileRead:
		return ResponseFileRead, true
	case RequestFileWrite:
		return ResponseFileWrite, true
	case RequestFileSeek:
		return ResponseFileSeek, true
	case RequestFileStat:
		return ResponseFileStat, true
	case RequestFileChmod:
		return ResponseFileChmod, true
	default:
		return ResponseNone, false
	}
}

// Envelope schemas. The payload field is a union member whose schema is
// selected by the type field.
var (
	RequestSchema = NewSchema("Request",
		Field{Index: 0, Name: "request_type", Type: TypeUint8},
		Field{Index: 1, Name: "request", Type: TypeTable},
	)
	ResponseSchema = NewSchema("Response",
		Field{Index: 0, Name: "response_type", Type: TypeUint8},
		Field{Index: 1, Name: "response", Type: TypeTable},
	)
)

// Message schemas.
var (
	PathCopyRequestSchema = NewSchema("PathCopyRequest",
		Field{Index: 0, Name: "source", Type: TypeString},
		Field{Index: 1, Name: "target", Type: TypeString},
	)
	PathCopyResponseSchema = NewSchema("PathCopyResponse",
		Field{Index: 0, Name: "success", Type: TypeBool, Default: false},
		Field{Index: 1, Name: "error_msg", Type: TypeString},
	)
	PathChmodRequestSchema = NewSchema("PathChmodRequest",
		Field{Index: 0, Name: "path", Type: TypeString},
		Field{Index: 1, Name: "mode", Type: TypeUint32},
	)
	PathChmodResponseSchema = NewSchema("PathChmodResponse",
		Field{Index: 0, Name: "success", Type: TypeBool},
		Field{Index: 1, Name: "error_msg", Type: TypeString},
	)
	PathGetDirectorySizeRequestSchema = NewSchema("PathGetDirectorySizeRequest",
		Field{Index: 0, Name: "path", Type: TypeString},
		Field{Index: 1, Name: "exclusions", Type: TypeStringVector},
	)
	PathGetDirectorySizeResponseSchema = NewSchema("PathGetDirectorySizeResponse",
		Field{Index: 0, Name: "success", Type: TypeBool},
		Field{Index: 1, Name: "error_msg", Type: TypeString},
		Field{Index: 2, Name: "size", Type: TypeUint64},
	)
	MbGetVersionRequestSchema  = NewSchema("MbGetVersionRequest")
	MbGetVersionResponseSchema = NewSchema("MbGetVersionResponse",
		Field{Index: 0, Name: "version", Type: TypeString},
	)
	InvalidSchema     = NewSchema("Invalid")
	UnsupportedSchema = NewSchema("Unsupported")
)

var requestSchemas = map[RequestType]*Schema{
	RequestPathCopy:             PathCopyRequestSchema,
	RequestPathChmod:            PathChmodRequestSchema,
	RequestPathGetDirectorySize: PathGetDirectorySizeRequestSchema,
	RequestMbGetVersion:         MbGetVersionRequestSchema,
	RequestFileOpen:             FileOpenRequestSchema,
	RequestFileClose:            FileCloseRequestSchema,
	RequestFileRead:             FileReadRequestSchema,
	RequestFileWrite:            FileWriteRequestSchema,
	RequestFileSeek:             FileSeekRequestSchema,
	RequestFileStat:             FileStatRequestSchema,
	RequestFileChmod:            FileChmodRequestSchema,
}

var responseSchemas = map[ResponseType]*Schema{
	ResponseInvalid:              InvalidSchema,
	ResponseUnsupported:          UnsupportedSchema,
	ResponsePathCopy:             PathCopyResponseSchema,
	ResponsePathChmod:            PathChmodResponseSchema,
	ResponsePathGetDirectorySize: PathGetDirectorySizeResponseSchema,
	ResponseMbGetVersion:         MbGetVersionResponseSchema,
	ResponseFileOpen:             FileOpenResponseSchema,
	ResponseFileClose:            FileCloseResponseSchema,
	ResponseFileRead:             FileReadResponseSchema,
	ResponseFileWrite:            FileWriteResponseSchema,
	ResponseFileSeek:             FileSeekResponseSchema,
	ResponseFileStat:             FileStatResponseSchema,
	ResponseFileChmod:            FileChmodResponseSchema,
}

// Request is a typed request message.
type Request interface {
	RequestType() RequestType
	record() *Record
}

// Response is a typed response message.
type Response interface {
	ResponseType() ResponseType
	record() *Record
}

// Result is implemented by responses carrying a success flag.
type Result interface {
	Response
	// Failure returns the failure details when success is false.
	Failure() (OperationFailure, bool)
}

// String returns a pointer to s, for the optional string fields of
// requests.
func String(s string) *string {
	return &s
}

// PathCopyRequest asks the daemon to copy the contents of Source to Target.
// A nil field is absent on the wire; an empty one is sent as "".
type PathCopyRequest struct {
	Source *string
	Target *string
}

func (PathCopyRequest) RequestType() RequestType { return RequestPathCopy }

func (m PathCopyRequest) record() *Record {
	r := NewRecord(PathCopyRequestSchema)
	setOptString(r, 0, m.Source)
	setOptString(r, 1, m.Target)
	return r
}

// PathCopyResponse reports the outcome of a path copy. A missing success
// field reads as false and a missing error_msg as nil.
type PathCopyResponse struct {
	Success  bool
	ErrorMsg *string
}

func (PathCopyResponse) ResponseType() ResponseType { return ResponsePathCopy }

func (m PathCopyResponse) record() *Record {
	return resultRecord(PathCopyResponseSchema, m.Success, m.ErrorMsg)
}

func (m PathCopyResponse) Failure() (OperationFailure, bool) {
	return failure("path copy", m.Success, m.ErrorMsg)
}

// PathChmodRequest asks the daemon to change the permission bits of Path.
type PathChmodRequest struct {
	Path *string
	Mode uint32
}

func (PathChmodRequest) RequestType() RequestType { return RequestPathChmod }

func (m PathChmodRequest) record() *Record {
	r := NewRecord(PathChmodRequestSchema)
	setOptString(r, 0, m.Path)
	r.SetUint32(1, m.Mode)
	return r
}

type PathChmodResponse struct {
	Success  bool
	ErrorMsg *string
}

func (PathChmodResponse) ResponseType() ResponseType { return ResponsePathChmod }

func (m PathChmodResponse) record() *Record {
	return resultRecord(PathChmodResponseSchema, m.Success, m.ErrorMsg)
}

func (m PathChmodResponse) Failure() (OperationFailure, bool) {
	return failure("path chmod", m.Success, m.ErrorMsg)
}

// PathGetDirectorySizeRequest asks for the total size of the tree under
// Path. Exclusions name top-level entries to skip.
type PathGetDirectorySizeRequest struct {
	Path       *string
	Exclusions []string
}

func (PathGetDirectorySizeRequest) RequestType() RequestType { return RequestPathGetDirectorySize }

func (m PathGetDirectorySizeRequest) record() *Record {
	r := NewRecord(PathGetDirectorySizeRequestSchema)
	setOptString(r, 0, m.Path)
	if m.Exclusions != nil {
		r.SetStrings(1, m.Exclusions)
	}
	return r
}

type PathGetDirectorySizeResponse struct {
	Success  bool
	ErrorMsg *string
	Size     uint64
}

func (PathGetDirectorySizeResponse) ResponseType() ResponseType {
	return ResponsePathGetDirectorySize
}

func (m PathGetDirectorySizeResponse) record() *Record {
	r := resultRecord(PathGetDirectorySizeResponseSchema, m.Success, m.ErrorMsg)
	r.SetUint64(2, m.Size)
	return r
}

func (m PathGetDirectorySizeResponse) Failure() (OperationFailure, bool) {
	return failure("directory size", m.Success, m.ErrorMsg)
}

type MbGetVersionRequest struct{}

func (MbGetVersionRequest) RequestType() RequestType { return RequestMbGetVersion }

func (MbGetVersionRequest) record() *Record { return NewRecord(MbGetVersionRequestSchema) }

type MbGetVersionResponse struct {
	Version string
}

func (MbGetVersionResponse) ResponseType() ResponseType { return ResponseMbGetVersion }

func (m MbGetVersionResponse) record() *Record {
	r := NewRecord(MbGetVersionResponseSchema)
	r.SetString(0, m.Version)
	return r
}

// InvalidResponse is sent when a request lacks required fields or carries
// values the daemon refuses to act on.
type InvalidResponse struct{}

func (InvalidResponse) ResponseType() ResponseType { return ResponseInvalid }
func (InvalidResponse) record() *Record            { return NewRecord(InvalidSchema) }

// UnsupportedResponse is sent for request types the daemon does not know.
type UnsupportedResponse struct{}

func (UnsupportedResponse) ResponseType() ResponseType { return ResponseUnsupported }
func (UnsupportedResponse) record() *Record            { return NewRecord(UnsupportedSchema) }

// UnknownRequest is what DecodeRequest yields for a request type this side
// does not implement. It cannot be encoded.
type UnknownRequest struct {
	Type RequestType
}

func (m UnknownRequest) RequestType() RequestType { return m.Type }

func (m UnknownRequest) record() *Record {
	panic(fmt.Sprintf("protocol: cannot encode unknown request type %d", uint8(m.Type)))
}

func setOptString(r *Record, index int, v *string) {
	if v != nil {
		r.SetString(index, *v)
	}
}

func resultRecord(schema *Schema, success bool, msg *string) *Record {
	r := NewRecord(schema)
	r.SetBool(0, success)
	setOptString(r, 1, msg)
	return r
}

func failure(op string, success bool, msg *string) (OperationFailure, bool) {
	if success {
		return OperationFailure{}, false
	}
	return OperationFailure{Op: op, ErrorMsg: msg}, true
}

// EncodeRequest wraps req in a Request envelope.
func EncodeRequest(req Request) []byte {
	env := NewRecord(RequestSchema)
	env.SetUint8(0, uint8(req.RequestType()))
	env.SetTable(1, req.record())
	return Encode(env)
}

// EncodeResponse wraps resp in a Response envelope.
func EncodeResponse(resp Response) []byte {
	env := NewRecord(ResponseSchema)
	env.SetUint8(0, uint8(resp.ResponseType()))
	env.SetTable(1, resp.record())
	return Encode(env)
}

// DecodeRequest decodes a Request envelope. A buffer that fails
// verification returns a *DecodeError. An unknown request type is not an
// error: it decodes to UnknownRequest so the daemon can answer Unsupported.
// A known type whose payload table is missing decodes with every field
// absent. String fields keep their presence: absent is nil, "" is not.
func DecodeRequest(buf []byte) (Request, error) {
	env, err := Decode(RequestSchema, buf)
	if err != nil {
		return nil, err
	}
	typ := RequestType(env.Uint8(0))
	schema, ok := requestSchemas[typ]
	if !ok {
		return UnknownRequest{Type: typ}, nil
	}
	r, err := payload(env, schema)
	if err != nil {
		return nil, err
	}

	switch typ {
	case RequestPathCopy:
		return PathCopyRequest{Source: r.OptString(0), Target: r.OptString(1)}, nil
	case RequestPathChmod:
		return PathChmodRequest{Path: r.OptString(0), Mode: r.Uint32(1)}, nil
	case RequestPathGetDirectorySize:
		return PathGetDirectorySizeRequest{Path: r.OptString(0), Exclusions: r.Strings(1)}, nil
	case RequestMbGetVersion:
		return MbGetVersionRequest{}, nil
	default:
		return decodeFileRequest(typ, r), nil
	}
}

// DecodeResponse decodes a Response envelope. Unlike requests, an unknown
// response type is a *DecodeError: the client cannot interpret it.
func DecodeResponse(buf []byte) (Response, error) {
	env, err := Decode(ResponseSchema, buf)
	if err != nil {
		return nil, err
	}
	typ := ResponseType(env.Uint8(0))
	schema, ok := responseSchemas[typ]
	if !ok {
		return nil, &DecodeError{Schema: ResponseSchema.Name, Reason: fmt.Sprintf("unknown response type %s", typ)}
	}
	r, err := payload(env, schema)
	if err != nil {
		return nil, err
	}

	switch typ {
	case ResponseInvalid:
		return InvalidResponse{}, nil
	case ResponseUnsupported:
		return UnsupportedResponse{}, nil
	case ResponsePathCopy:
		return PathCopyResponse{Success: r.Bool(0), ErrorMsg: r.OptString(1)}, nil
	case ResponsePathChmod:
		return PathChmodResponse{Success: r.Bool(0), ErrorMsg: r.OptString(1)}, nil
	case ResponsePathGetDirectorySize:
		return PathGetDirectorySizeResponse{
			Success:  r.Bool(0),
			ErrorMsg: r.OptString(1),
			Size:     r.Uint64(2),
		}, nil
	case ResponseMbGetVersion:
		return MbGetVersionResponse{Version: r.String(0)}, nil
	default:
		return decodeFileResponse(typ, r)
	}
}

func payload(env *Record, schema *Schema) (*Record, error) {
	r, err := env.Table(1, schema)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = NewRecord(schema)
	}
	return r, nil
}
