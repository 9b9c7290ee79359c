/*
Package protocol implements the length-framed binary wire format shared by
the server and client dispatchers.

Commands are centralized here to remove hard-coded dependencies between the
transport layer and the store.
*/
package protocol

import "errors"

// MessageType tags the three message kinds sharing the common envelope.
type MessageType uint8

const (
	TypeGet MessageType = iota
	TypeSet
	TypeGetResponse
)

const (
	// EnvelopeSize is the total_size + type prefix present on every message.
	EnvelopeSize = 4 + 1

	// MaxMessageSize caps a single framed message, including the envelope.
	MaxMessageSize = 1 << 20 // 1 MiB

	// ReadBufferSize must strictly exceed MaxMessageSize so that any single
	// message fits entirely in the buffer after compaction.
	ReadBufferSize = 4 << 20 // 4 MiB
)

var (
	ErrTruncated       = errors.New("protocol: truncated message")
	ErrTrailingBytes   = errors.New("protocol: trailing bytes after payload")
	ErrUnknownType     = errors.New("protocol: unknown message type")
	ErrZeroRequestID   = errors.New("protocol: request_id cannot be zero")
	ErrMessageTooBig   = errors.New("protocol: total_size exceeds MaxMessageSize")
	ErrMessageTooSmall = errors.New("protocol: total_size smaller than envelope")
)

// Get is a client request to read a key's current value.
type Get struct {
	Key       string
	RequestID uint16
}

// Set is a client request to write a key's value. Sets have no response.
type Set struct {
	Key   string
	Value []byte
}

// GetResponse answers a Get, echoing its RequestID verbatim.
type GetResponse struct {
	Key       string
	RequestID uint16
	Reads     uint64
	Writes    uint64
	Value     []byte
}

// NotFoundSentinel is the literal value returned in place of a GetResponse's
// Value when the key does not exist. Preserved verbatim for wire
// compatibility with existing clients; a cleaner design would use
// a dedicated found/not-found flag, but that is a protocol change, not a
// re-implementation choice.
const NotFoundSentinel = "not found"
