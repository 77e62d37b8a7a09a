package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/Anik1199/DualBootPatcher/internal/fsops"
	"github.com/Anik1199/DualBootPatcher/internal/journal"
	"github.com/Anik1199/DualBootPatcher/internal/protocol"
)

// Recorder receives an entry for every request the daemon answers.
type Recorder interface {
	Append(e *journal.Entry) error
}

// Handler performs requests. It holds no per-connection state, so one
// Handler serves every connection; open file handles live in the
// connection's own table passed to Handle.
type Handler struct {
	version string
}

// NewHandler returns a Handler that reports version for MbGetVersion.
func NewHandler(version string) *Handler {
	return &Handler{version: version}
}

// Handle performs req and returns the response to send along with a
// journal entry describing it. Requests missing a required field, naming a
// handle not open in files, or asking for a disallowed mode are answered
// with Invalid; unknown request types with Unsupported. A string field
// that is present but empty is not missing: the operation runs and fails
// with the system's error text.
func (h *Handler) Handle(ctx context.Context, files *fsops.Handles, req protocol.Request) (protocol.Response, *journal.Entry) {
	start := time.Now()
	entry := &journal.Entry{Time: start, Request: req.RequestType().String()}

	var resp protocol.Response
	switch r := req.(type) {
	case protocol.PathCopyRequest:
		entry.Paths = paths(r.Source, r.Target)
		if r.Source == nil || r.Target == nil {
			resp = protocol.InvalidResponse{}
			break
		}
		if err := fsops.CopyContents(ctx, *r.Source, *r.Target); err != nil {
			resp = protocol.PathCopyResponse{ErrorMsg: errorMsg(err)}
		} else {
			resp = protocol.PathCopyResponse{Success: true}
		}

	case protocol.PathChmodRequest:
		entry.Paths = paths(r.Path)
		entry.Mode = r.Mode
		if r.Path == nil || !fsops.ValidMode(r.Mode) {
			resp = protocol.InvalidResponse{}
			break
		}
		if err := fsops.Chmod(*r.Path, r.Mode); err != nil {
			resp = protocol.PathChmodResponse{ErrorMsg: errorMsg(err)}
		} else {
			resp = protocol.PathChmodResponse{Success: true}
		}

	case protocol.PathGetDirectorySizeRequest:
		entry.Paths = paths(r.Path)
		if r.Path == nil {
			resp = protocol.InvalidResponse{}
			break
		}
		size, err := fsops.DirectorySize(ctx, *r.Path, r.Exclusions)
		if err != nil {
			resp = protocol.PathGetDirectorySizeResponse{ErrorMsg: errorMsg(err)}
		} else {
			resp = protocol.PathGetDirectorySizeResponse{Success: true, Size: size}
		}

	case protocol.MbGetVersionRequest:
		resp = protocol.MbGetVersionResponse{Version: h.version}

	case protocol.FileOpenRequest, protocol.FileCloseRequest, protocol.FileReadRequest,
		protocol.FileWriteRequest, protocol.FileSeekRequest, protocol.FileStatRequest,
		protocol.FileChmodRequest:
		resp = handleFile(files, req, entry)

	default:
		resp = protocol.UnsupportedResponse{}
	}

	entry.DurationMs = time.Since(start).Milliseconds()
	entry.Outcome, entry.Error = outcome(resp)
	return resp, entry
}

func paths(ps ...*string) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func errorMsg(err error) *string {
	msg := fsops.ErrorText(err)
	return &msg
}

func outcome(resp protocol.Response) (string, string) {
	switch r := resp.(type) {
	case protocol.InvalidResponse:
		return journal.OutcomeInvalid, ""
	case protocol.UnsupportedResponse:
		return journal.OutcomeUnsupported, ""
	case protocol.Result:
		if f, failed := r.Failure(); failed {
			return journal.OutcomeFailure, f.Message()
		}
	}
	return journal.OutcomeSuccess, ""
}

func logAttrs(e *journal.Entry) []any {
	attrs := []any{
		slog.String("request", e.Request),
		slog.String("outcome", e.Outcome),
		slog.Int64("duration_ms", e.DurationMs),
	}
	if len(e.Paths) > 0 {
		attrs = append(attrs, slog.Any("paths", e.Paths))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	return attrs
}
