package protocol

import "encoding/binary"

/*
Wire format (little-endian, no padding):

	total_size : u32   (including these 4 bytes)
	type       : u8
	payload    : type-specific

Strings are encoded as a u32 length followed by that many bytes.

The codec is pure: it has no knowledge of sockets, timers, or the store. It
only serializes and parses complete, in-memory byte slices.
*/

// Serialize encodes msg into a complete framed message, envelope included.
// msg must be one of *Get, *Set, or *GetResponse.
func Serialize(msg any) []byte {
	switch m := msg.(type) {
	case *Get:
		return serializeGet(m)
	case *Set:
		return serializeSet(m)
	case *GetResponse:
		return serializeGetResponse(m)
	default:
		panic("protocol: unsupported message type")
	}
}

func serializeGet(m *Get) []byte {
	size := EnvelopeSize + strSize(m.Key) + 2
	buf := make([]byte, size)
	w := newWriter(buf)
	w.uint32(uint32(size))
	w.uint8(uint8(TypeGet))
	w.str(m.Key)
	w.uint16(m.RequestID)
	return buf
}

func serializeSet(m *Set) []byte {
	size := EnvelopeSize + strSize(m.Key) + byteStrSize(m.Value)
	buf := make([]byte, size)
	w := newWriter(buf)
	w.uint32(uint32(size))
	w.uint8(uint8(TypeSet))
	w.str(m.Key)
	w.bytes(m.Value)
	return buf
}

func serializeGetResponse(m *GetResponse) []byte {
	size := EnvelopeSize + strSize(m.Key) + 2 + 8 + 8 + byteStrSize(m.Value)
	buf := make([]byte, size)
	w := newWriter(buf)
	w.uint32(uint32(size))
	w.uint8(uint8(TypeGetResponse))
	w.str(m.Key)
	w.uint16(m.RequestID)
	w.uint64(m.Reads)
	w.uint64(m.Writes)
	w.bytes(m.Value)
	return buf
}

func strSize(s string) int     { return 4 + len(s) }
func byteStrSize(b []byte) int { return 4 + len(b) }

// ParseServerMessage decodes a frame (envelope included) received by the
// server: either a Get or a Set. frame must be exactly one complete message
// as delimited by its own total_size field.
func ParseServerMessage(frame []byte) (any, error) {
	r, typ, err := newFrameReader(frame)
	if err != nil {
		return nil, err
	}

	switch MessageType(typ) {
	case TypeGet:
		key, err := r.str()
		if err != nil {
			return nil, err
		}
		reqID, err := r.uint16()
		if err != nil {
			return nil, err
		}
		if !r.atEnd() {
			return nil, ErrTrailingBytes
		}
		if reqID == 0 {
			return nil, ErrZeroRequestID
		}
		return &Get{Key: key, RequestID: reqID}, nil

	case TypeSet:
		key, err := r.str()
		if err != nil {
			return nil, err
		}
		value, err := r.bytes()
		if err != nil {
			return nil, err
		}
		if !r.atEnd() {
			return nil, ErrTrailingBytes
		}
		return &Set{Key: key, Value: value}, nil

	default:
		return nil, ErrUnknownType
	}
}

// ParseClientMessage decodes a frame received by the client: a GetResponse.
func ParseClientMessage(frame []byte) (*GetResponse, error) {
	r, typ, err := newFrameReader(frame)
	if err != nil {
		return nil, err
	}
	if MessageType(typ) != TypeGetResponse {
		return nil, ErrUnknownType
	}

	key, err := r.str()
	if err != nil {
		return nil, err
	}
	reqID, err := r.uint16()
	if err != nil {
		return nil, err
	}
	reads, err := r.uint64()
	if err != nil {
		return nil, err
	}
	writes, err := r.uint64()
	if err != nil {
		return nil, err
	}
	value, err := r.bytes()
	if err != nil {
		return nil, err
	}
	if !r.atEnd() {
		return nil, ErrTrailingBytes
	}
	if reqID == 0 {
		return nil, ErrZeroRequestID
	}

	return &GetResponse{
		Key:       key,
		RequestID: reqID,
		Reads:     reads,
		Writes:    writes,
		Value:     value,
	}, nil
}

// MessageTotalSize peeks the u32 total_size header of a frame without
// otherwise interpreting it. buf must contain at least 4 bytes.
func MessageTotalSize(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[:4])
}

// --- low level writer/reader -------------------------------------------------

type writer struct {
	buf []byte
	off int
}

func newWriter(buf []byte) *writer { return &writer{buf: buf} }

func (w *writer) uint8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *writer) uint16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[w.off:], v)
	w.off += 2
}

func (w *writer) uint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *writer) uint64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

func (w *writer) bytes(b []byte) {
	w.uint32(uint32(len(b)))
	w.off += copy(w.buf[w.off:], b)
}

func (w *writer) str(s string) {
	w.uint32(uint32(len(s)))
	w.off += copy(w.buf[w.off:], s)
}

// frameReader reads a frame's payload after the envelope has been stripped.
type frameReader struct {
	buf []byte
	off int
}

// newFrameReader validates the envelope (the frame holds at least the
// envelope, total_size does not exceed MaxMessageSize, and total_size equals
// the frame length) and returns a reader positioned at the start of the
// payload, along with the message type byte. The type byte itself is
// checked by the caller.
func newFrameReader(frame []byte) (*frameReader, uint8, error) {
	if len(frame) < EnvelopeSize {
		return nil, 0, ErrTruncated
	}
	size := binary.LittleEndian.Uint32(frame[0:4])
	if size > MaxMessageSize {
		return nil, 0, ErrMessageTooBig
	}
	if int(size) != len(frame) {
		return nil, 0, ErrTruncated
	}
	typ := frame[4]
	return &frameReader{buf: frame, off: 5}, typ, nil
}

func (r *frameReader) atEnd() bool { return r.off == len(r.buf) }

func (r *frameReader) need(n int) error {
	if len(r.buf)-r.off < n {
		return ErrTruncated
	}
	return nil
}

func (r *frameReader) uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *frameReader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *frameReader) lenPrefixed() ([]byte, error) {
	if err := r.need(4); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}

func (r *frameReader) str() (string, error) {
	b, err := r.lenPrefixed()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *frameReader) bytes() ([]byte, error) {
	return r.lenPrefixed()
}
