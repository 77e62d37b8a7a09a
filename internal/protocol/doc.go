// Package protocol defines version 3 of the wire protocol spoken between the
// unprivileged mbctl client and the privileged mbtool daemon over a Unix
// domain socket.
//
// Framing:
//
//	+----------------------+---------------------------+
//	| uint32 LE length (4) | payload (length bytes)    |
//	+----------------------+---------------------------+
//
// Each payload is a FlatBuffers buffer. Messages are described by an
// explicit Schema (field index, type, default) and encoded and decoded by a
// single schema-driven codec, so no per-message accessor code exists.
// Missing fields decode to their declared defaults, and fields unknown to
// the reader are ignored, which keeps old clients and new daemons (or the
// reverse) compatible.
//
// Session:
//
//  1. daemon -> client: "ALLOW" or "DENY" (peer credential check)
//  2. client -> daemon: protocol version, int32 LE
//  3. daemon -> client: "OK" or "UNSUPPORTED"
//  4. client -> daemon: Request, daemon -> client: Response, repeated.
//
// Exactly one Response answers each Request and requests are never
// pipelined. A channel that closes before the response arrives leaves the
// outcome of the operation unknown; see TransportError.
package protocol

// ProtocolVersion is the version negotiated during the handshake.
const ProtocolVersion = 3

// Handshake replies. Each is sent as a single frame.
const (
	ReplyAllow       = "ALLOW"
	ReplyDeny        = "DENY"
	ReplyOK          = "OK"
	ReplyUnsupported = "UNSUPPORTED"
)
