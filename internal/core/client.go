package core

import (
	"context"
	"sync"
)

const defaultBuffer = 64

// Client is a live connection as seen by the core layer.
// Commands are consumed in order by the hub; Events is never closed, watch
// Done to know when the hub finished cleaning up after the connection.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event

	mu        sync.RWMutex
	closed    bool
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// NewClient constructs a client with initialized channels.
// A non-positive buffer falls back to the default size.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Client{
		ID:       id,
		Commands: make(chan *Command, buffer),
		Events:   make(chan *Event, buffer),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Submit admits a command for processing. It returns ErrConnectionClosed once
// Close has been called, so late events are rejected instead of lost. A Submit
// blocked on a full queue gives up as soon as Close starts.
func (c *Client) Submit(ctx context.Context, cmd *Command) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.Commands <- cmd:
		return nil
	case <-c.closing:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting commands. Already admitted commands are still
// processed before the hub runs disconnect cleanup. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		// Wake blocked Submits first; they hold the read lock.
		close(c.closing)
		c.mu.Lock()
		c.closed = true
		close(c.Commands)
		c.mu.Unlock()
	})
}

// Done is closed after the hub has unwound the connection.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
