/*
Package transport implements the per-socket asynchronous state machine
shared by the server and client sides of the protocol: framed reads with
partial-read tolerance, an ordered outbound queue, an idle-timeout
watchdog, and coordinated teardown.

A callback-based reactor would need every in-flight completion to hold a
weak reference to the connection and upgrade it inside the callback,
returning immediately if the connection has already been torn down. Go's
goroutine-per-loop model gets the same safety property structurally
instead: each of the three goroutines below (reader, writer, idle watchdog)
owns its loop directly and exits as soon as the shared done channel is
closed, so there is never a dangling callback that could touch a destroyed
Connection — nothing needs a separate weak-reference upgrade step.
*/
package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dimatd/kvstore/protocol"
)

// Dispatcher decodes and handles exactly one complete, envelope-validated
// frame. It may call c.Send to queue a response on the same connection.
// Returning an error (a protocol violation) closes the connection; no
// attempt is made to resynchronize the stream.
type Dispatcher interface {
	Dispatch(c *Connection, frame []byte) error
}

// Options configures a Connection's buffers and timeouts. Zero values
// select the package's compile-time defaults.
type Options struct {
	IdleTimeout    time.Duration
	ReadBufferSize int
	MaxMessageSize uint32
	OutboundQueue  int
}

func (o Options) withDefaults() Options {
	if o.IdleTimeout == 0 {
		o.IdleTimeout = 30 * time.Second
	}
	if o.ReadBufferSize == 0 {
		o.ReadBufferSize = protocol.ReadBufferSize
	}
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = protocol.MaxMessageSize
	}
	if o.OutboundQueue == 0 {
		o.OutboundQueue = 256
	}
	return o
}

// Connection owns the full lifecycle of one TCP socket: reads, an ordered
// outbound queue, idle-timeout enforcement, and teardown.
type Connection struct {
	conn       net.Conn
	dispatcher Dispatcher
	log        *zap.SugaredLogger
	opts       Options

	outbound chan []byte
	activity chan struct{}
	done     chan struct{}
	closed   atomic.Bool
	closeOne sync.Once
	wg       sync.WaitGroup
}

// New constructs a Connection bound to dispatcher. Call Start to begin
// servicing it.
func New(conn net.Conn, dispatcher Dispatcher, log *zap.SugaredLogger, opts Options) *Connection {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Connection{
		conn:       conn,
		dispatcher: dispatcher,
		log:        log.With("remote_addr", conn.RemoteAddr().String()),
		opts:       opts.withDefaults(),
		outbound:   make(chan []byte, opts.withDefaults().OutboundQueue),
		activity:   make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Start begins the read loop, write loop, and idle watchdog. It is not
// idempotent: a second call starts a second set of loops against the same
// socket. acceptor.go and client.Dial each call it exactly once per
// connection.
func (c *Connection) Start() {
	c.wg.Add(3)
	go c.readLoop()
	go c.writeLoop()
	go c.idleWatchdog()
}

// Send schedules msg onto the outbound queue. It never blocks past the
// queue's capacity and is a no-op once the connection is closing.
func (c *Connection) Send(frame []byte) {
	if c.closed.Load() {
		return
	}
	c.kickActivity()
	select {
	case c.outbound <- frame:
	case <-c.done:
	}
}

// Close initiates a graceful, idempotent shutdown: it closes the
// underlying socket (unblocking any in-flight read/write) and signals all
// three loops to exit via done.
func (c *Connection) Close() {
	c.closeOne.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.conn.Close()
	})
}

// Wait blocks until the read loop, write loop, and idle watchdog have all
// exited.
func (c *Connection) Wait() {
	c.wg.Wait()
}

func (c *Connection) kickActivity() {
	select {
	case c.activity <- struct{}{}:
	default:
	}
}

// readLoop implements the inbound framing algorithm:
// advance the watermark by what was just read, then repeatedly peek
// total_size and extract complete messages, finally compacting the
// buffer's remaining tail down to index 0.
func (c *Connection) readLoop() {
	defer c.wg.Done()
	defer c.Close()

	buf := make([]byte, c.opts.ReadBufferSize)
	unparsed := 0

	for {
		n, err := c.conn.Read(buf[unparsed:])
		if err != nil {
			c.logReadError(err)
			return
		}
		c.kickActivity()

		total := unparsed + n
		offset := 0

		for {
			if total-offset < 4 {
				break
			}
			size := protocol.MessageTotalSize(buf[offset : offset+4])
			if size < protocol.EnvelopeSize || size > c.opts.MaxMessageSize {
				c.log.Errorw("oversize or undersize frame, closing connection", "total_size", size)
				return
			}
			if uint32(total-offset) < size {
				break
			}

			frame := make([]byte, size)
			copy(frame, buf[offset:offset+int(size)])
			if err := c.dispatcher.Dispatch(c, frame); err != nil {
				c.log.Errorw("protocol error, closing connection", "error", err)
				return
			}

			offset += int(size)
		}

		if offset > 0 && offset < total {
			copy(buf, buf[offset:total])
		}
		unparsed = total - offset
	}
}

func (c *Connection) logReadError(err error) {
	if c.closed.Load() {
		return
	}
	if errors.Is(err, io.EOF) {
		c.log.Debugw("connection closed by peer")
		return
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.log.Debugw("read timeout")
		return
	}
	c.log.Errorw("read error", "error", err)
}

// writeLoop pops at most one outbound frame at a time and writes it,
// preserving send() call order for this connection. select (rather than
// ranging over outbound) lets Close unblock it even when the queue is
// empty, without ever closing a channel producers might still send on.
func (c *Connection) writeLoop() {
	defer c.wg.Done()
	defer c.Close()

	for {
		select {
		case frame := <-c.outbound:
			c.kickActivity()
			if _, err := c.conn.Write(frame); err != nil {
				if !c.closed.Load() {
					c.log.Errorw("write error", "error", err)
				}
				return
			}
		case <-c.done:
			return
		}
	}
}

// idleWatchdog closes the connection if no inbound or outbound activity
// occurs for opts.IdleTimeout. It is re-armed by kickActivity, called on
// every completed read, every send, and the start of every write.
func (c *Connection) idleWatchdog() {
	defer c.wg.Done()

	timer := time.NewTimer(c.opts.IdleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-c.activity:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.opts.IdleTimeout)
		case <-timer.C:
			c.log.Debugw("idle timeout, closing connection")
			c.Close()
			return
		case <-c.done:
			return
		}
	}
}
