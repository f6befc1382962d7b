// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled connections.
// Use Conn to script inbound events and inspect the media sent by the code
// under test.
//
// Example:
//
//	p := &mock.Provider{}
//	conn, _ := p.Connect(ctx, cfg)
//	p.LastConn().Emit(live.Opened{})
//	p.LastConn().End(live.Errored{Err: errBoom})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/kisanlive/pkg/provider/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Cfg is the SessionConfig passed to Connect.
	Cfg live.SessionConfig
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// Gate, if non-nil, makes Connect wait until it is closed or the context
	// is cancelled. Use it to hold a session in the connecting state.
	Gate chan struct{}

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities live.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall

	conns []*Conn
}

// Connect records the call and returns a new Conn, or ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Conn, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Cfg: cfg})
	gate, connectErr := p.Gate, p.ConnectErr
	c := NewConn()
	p.conns = append(p.conns, c)
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if connectErr != nil {
		return nil, connectErr
	}
	return c, nil
}

// Name returns ProviderName or "mock".
func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Capabilities returns ProviderCapabilities.
func (p *Provider) Capabilities() live.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderCapabilities
}

// Conns returns every connection created by Connect, including ones whose
// Connect call failed or was cancelled.
func (p *Provider) Conns() []*Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Conn, len(p.conns))
	copy(out, p.conns)
	return out
}

// LastConn returns the most recently created connection, or nil.
func (p *Provider) LastConn() *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) == 0 {
		return nil
	}
	return p.conns[len(p.conns)-1]
}

// Ensure Provider implements live.Provider at compile time.
var _ live.Provider = (*Provider)(nil)

// Conn is a mock implementation of live.Conn.
type Conn struct {
	mu     sync.Mutex
	events chan live.Event
	closed bool

	// SendErr, if non-nil, is returned by SendRealtimeInput.
	SendErr error

	sent       []live.Blob
	closeCalls int
}

// NewConn returns an open Conn with a buffered event channel.
func NewConn() *Conn {
	return &Conn{events: make(chan live.Event, 256)}
}

// Emit delivers ev to the consumer. It reports false if the connection is
// closed or the buffer is full.
func (c *Conn) Emit(ev live.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// End emits final, when non-nil, and closes the event channel as a remote
// hang-up would.
func (c *Conn) End(final live.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if final != nil {
		select {
		case c.events <- final:
		default:
		}
	}
	c.closed = true
	close(c.events)
}

// SendRealtimeInput records a copy of in.
func (c *Conn) SendRealtimeInput(_ context.Context, in live.Blob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return live.ErrClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	in.Data = append([]byte(nil), in.Data...)
	c.sent = append(c.sent, in)
	return nil
}

// Events implements live.Conn.
func (c *Conn) Events() <-chan live.Event { return c.events }

// Close closes the event channel. Safe to call multiple times.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

// Sent returns copies of every blob passed to SendRealtimeInput.
func (c *Conn) Sent() []live.Blob {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]live.Blob, len(c.sent))
	copy(out, c.sent)
	return out
}

// CloseCalls returns how many times Close was called.
func (c *Conn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// Closed reports whether the connection was closed locally or remotely.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Ensure Conn implements live.Conn at compile time.
var _ live.Conn = (*Conn)(nil)
