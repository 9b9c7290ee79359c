/*
Package server implements the server side of the protocol: translating
decoded GET/SET commands into store operations and, for GETs, building the
response frame.
*/
package server

import (
	"go.uber.org/zap"

	"github.com/dimatd/kvstore/protocol"
	"github.com/dimatd/kvstore/store"
	"github.com/dimatd/kvstore/transport"
)

// Dispatcher implements transport.Dispatcher against a shared Store. One
// Dispatcher is constructed per accepted connection; all of them share the
// same underlying *store.Store.
type Dispatcher struct {
	store *store.Store
	log   *zap.SugaredLogger
}

// NewDispatcher constructs a Dispatcher bound to s.
func NewDispatcher(s *store.Store, log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Dispatcher{store: s, log: log}
}

// Dispatch decodes frame as a server-bound message (Get or Set) and applies
// it to the store. A decode error is returned unchanged so the caller
// (transport.Connection) closes the connection.
func (d *Dispatcher) Dispatch(c *transport.Connection, frame []byte) error {
	msg, err := protocol.ParseServerMessage(frame)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *protocol.Get:
		d.handleGet(c, m)
	case *protocol.Set:
		d.handleSet(m)
	}
	return nil
}

func (d *Dispatcher) handleGet(c *transport.Connection, m *protocol.Get) {
	value, reads, writes, ok := d.store.Get(m.Key)
	if !ok {
		value = []byte(protocol.NotFoundSentinel)
		reads, writes = 0, 0
	}

	c.Send(protocol.Serialize(&protocol.GetResponse{
		Key:       m.Key,
		RequestID: m.RequestID,
		Reads:     reads,
		Writes:    writes,
		Value:     value,
	}))
}

func (d *Dispatcher) handleSet(m *protocol.Set) {
	d.store.Set(m.Key, m.Value)
	d.log.Debugw("set applied", "key", m.Key, "value_size", len(m.Value))
}
