package protocol

import "sync/atomic"

// requestIDCounter is a process-wide monotonic counter for client-generated
// request ids. It wraps at uint16 but always skips zero, which is reserved
// as an invalid id.
var requestIDCounter atomic.Uint32

// NextRequestID returns the next request id for a GET sent by this process.
func NextRequestID() uint16 {
	for {
		next := requestIDCounter.Add(1)
		id := uint16(next)
		if id != 0 {
			return id
		}
		// id wrapped to zero: the Add above already consumed that slot,
		// loop again to get the following one.
	}
}
