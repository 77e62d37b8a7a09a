package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame size limits.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
	// MaxPayloadSize is the largest payload a frame may carry (16 MiB).
	MaxPayloadSize = 16 * 1024 * 1024
	// maxHandshakeSize bounds handshake frames, which carry short tokens.
	maxHandshakeSize = 64
)

// FrameErrorKind classifies framing errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated length prefix or payload.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a payload exceeding the size limit.
	FrameErrorTooLarge
	// FrameErrorWrite indicates the frame could not be written completely.
	FrameErrorWrite
)

// FrameError represents a framing failure.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// WriteFrame writes payload preceded by its length. Prefix and payload go
// out in one Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return &FrameError{Kind: FrameErrorWrite, Msg: "failed to write frame", Err: err}
	}
	return nil
}

// ReadFrame reads one frame and returns its payload.
//
// Errors:
//   - io.EOF: the stream ended cleanly before any byte of a new frame
//   - *FrameError with Kind=FrameErrorPartial: the stream ended mid-frame
//   - *FrameError with Kind=FrameErrorTooLarge: the length exceeds the limit
func ReadFrame(r io.Reader) ([]byte, error) {
	return readFrame(r, MaxPayloadSize)
}

func readFrame(r io.Reader, limit int) ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	size := binary.LittleEndian.Uint32(lengthBuf[:])
	if uint64(size) > uint64(limit) {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", size, limit),
		}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read payload", Err: err}
	}
	return payload, nil
}

// WriteToken writes a handshake token such as ReplyAllow.
func WriteToken(w io.Writer, token string) error {
	return WriteFrame(w, []byte(token))
}

// ReadToken reads a handshake token.
func ReadToken(r io.Reader) (string, error) {
	payload, err := readFrame(r, maxHandshakeSize)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// WriteVersion sends the client's protocol version.
func WriteVersion(w io.Writer, version int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(version))
	return WriteFrame(w, buf[:])
}

// ReadVersion reads the client's protocol version.
func ReadVersion(r io.Reader) (int32, error) {
	payload, err := readFrame(r, maxHandshakeSize)
	if err != nil {
		return 0, err
	}
	if len(payload) != 4 {
		return 0, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  fmt.Sprintf("version frame has %d bytes, want 4", len(payload)),
		}
	}
	return int32(binary.LittleEndian.Uint32(payload)), nil
}
