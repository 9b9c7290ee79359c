/*
Package client implements the client side of the protocol: a dispatcher
that decodes GET_RESPONSE frames and routes each one, by request id, to the
caller waiting on it, plus a thin synchronous request helper built on top
of it. Used
by tests and by the cmd/kvload load generator.
*/
package client

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dimatd/kvstore/protocol"
	"github.com/dimatd/kvstore/transport"
)

// Dispatcher implements transport.Dispatcher for the client side: it
// decodes each frame as a GetResponse and routes it to whichever caller is
// waiting on that RequestID.
type Dispatcher struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	pending map[uint16]chan *protocol.GetResponse
}

// NewDispatcher constructs a client Dispatcher.
func NewDispatcher(log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Dispatcher{
		log:     log,
		pending: make(map[uint16]chan *protocol.GetResponse),
	}
}

// Dispatch decodes frame and delivers it to the goroutine awaiting that
// request ID, if any. A response for an ID nobody is waiting on is logged
// and dropped, not treated as a protocol error.
func (d *Dispatcher) Dispatch(c *transport.Connection, frame []byte) error {
	resp, err := protocol.ParseClientMessage(frame)
	if err != nil {
		return err
	}

	d.mu.Lock()
	ch, ok := d.pending[resp.RequestID]
	if ok {
		delete(d.pending, resp.RequestID)
	}
	d.mu.Unlock()

	if !ok {
		d.log.Debugw("response for unknown or expired request id", "request_id", resp.RequestID)
		return nil
	}
	ch <- resp
	return nil
}

func (d *Dispatcher) register(id uint16) chan *protocol.GetResponse {
	ch := make(chan *protocol.GetResponse, 1)
	d.mu.Lock()
	d.pending[id] = ch
	d.mu.Unlock()
	return ch
}

func (d *Dispatcher) forget(id uint16) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

// Session is a connected client: a transport.Connection paired with a
// Dispatcher, offering synchronous Get/Set helpers on top of the
// fire-and-forget wire protocol.
type Session struct {
	conn *transport.Connection
	disp *Dispatcher
}

// Dial connects to addr and starts servicing the connection.
func Dial(addr string, log *zap.SugaredLogger, opts transport.Options) (*Session, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %q: %w", addr, err)
	}

	disp := NewDispatcher(log)
	c := transport.New(nc, disp, log, opts)
	c.Start()

	return &Session{conn: c, disp: disp}, nil
}

// Close tears down the underlying connection.
func (s *Session) Close() {
	s.conn.Close()
}

// Set sends a fire-and-forget SET command.
func (s *Session) Set(key string, value []byte) {
	s.conn.Send(protocol.Serialize(&protocol.Set{Key: key, Value: value}))
}

// Get sends a GET and blocks until the matching response arrives or timeout
// elapses.
func (s *Session) Get(key string, timeout time.Duration) (*protocol.GetResponse, error) {
	reqID := protocol.NextRequestID()
	ch := s.disp.register(reqID)

	s.conn.Send(protocol.Serialize(&protocol.Get{Key: key, RequestID: reqID}))

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(timeout):
		s.disp.forget(reqID)
		return nil, fmt.Errorf("client: timed out waiting for response to request %d", reqID)
	}
}
