// Package hubtest provides a recording hub.Conn for tests.
package hubtest

import (
	"sync"

	"fitrank/backend/internal/hub"
)

// Conn records every message emitted to it.
type Conn struct {
	id string

	mu   sync.Mutex
	msgs []hub.Message
	err  error
}

func NewConn(id string) *Conn { return &Conn{id: id} }

func (c *Conn) ID() string { return c.id }

func (c *Conn) Emit(msg hub.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

// Messages returns a copy of everything emitted so far.
func (c *Conn) Messages() []hub.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]hub.Message(nil), c.msgs...)
}

// Events returns the names of the emitted messages in order.
func (c *Conn) Events() []string {
	msgs := c.Messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Event
	}
	return out
}

// SetErr changes the error Emit returns.
func (c *Conn) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}
