// Package fastclient implements the Fast protocol's client multiplexer:
// submitting RPCs, correlating responses by request id, exposing lazy
// result streams, and tearing down in-flight requests on
// detach/close/fatal error.
//
// A single background goroutine (dispatchLoop) owns the connection's read
// side and routes inbound messages to per-request state keyed by the id
// assigned at Send time, under a mutex-guarded map since each id also
// carries its own state transitions, not just a channel handoff.
package fastclient

import (
	"net"
	"sync"
	"time"

	"github.com/fastproto/fast/fasterr"
	"github.com/fastproto/fast/fastlog"
	"github.com/fastproto/fast/framing"
	"github.com/fastproto/fast/reqid"
	"github.com/fastproto/fast/wire"
)

// Config configures a Client.
type Config struct {
	Transport       net.Conn
	Log             fastlog.Logger
	NRecentRequests int
}

// Opts customizes one RPC call.
type Opts struct {
	Timeout          time.Duration
	IgnoreNullValues bool
}

// recentEntry is one completed-request summary kept for introspection.
type recentEntry struct {
	id      uint32
	method  string
	success bool
}

// Client is the Fast protocol client multiplexer.
type Client struct {
	stream *framing.Stream
	ids    *reqid.Allocator
	log    fastlog.Logger

	mu        sync.Mutex
	live      map[uint32]*request
	recent    []recentEntry
	recentCap int
	detached  bool
	closed    bool

	errC chan error
}

// New constructs a Client over cfg.Transport and starts its dispatch loop.
func New(cfg Config) *Client {
	log := cfg.Log
	if log == nil {
		log = fastlog.Nop
	}
	n := cfg.NRecentRequests
	if n <= 0 {
		n = 32
	}
	c := &Client{
		stream:    framing.NewStream(cfg.Transport, wire.NewCodec(), log),
		ids:       reqid.New(),
		log:       log,
		live:      make(map[uint32]*request),
		recentCap: n,
		errC:      make(chan error, 1),
	}
	go c.dispatchLoop()
	return c
}

// Errors returns the channel a fatal protocol violation is reported on.
// After a value is received here the client is unusable.
func (c *Client) Errors() <-chan error { return c.errC }

// Rpc submits method(args) and returns its lazy result stream.
func (c *Client) Rpc(method string, args []any, opts Opts) *ResultStream {
	rs := newResultStream()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		rs.terminate(fasterr.New(fasterr.KindConnectionClosed, "ConnectionClosed", "client is closed"))
		return rs
	}
	if c.detached {
		c.mu.Unlock()
		rs.terminate(fasterr.New(fasterr.KindDetached, "Detached", "client has detached"))
		return rs
	}

	id, gen, err := c.ids.Alloc()
	if err != nil {
		c.mu.Unlock()
		rs.terminate(err)
		return rs
	}

	req := &request{
		id:               id,
		gen:              gen,
		method:           method,
		stream:           rs,
		state:            stateSending,
		ignoreNullValues: opts.IgnoreNullValues,
	}
	c.live[id] = req
	c.mu.Unlock()

	if args == nil {
		args = []any{}
	}
	msg := &wire.Message{
		Type: wire.TypeData,
		ID:   id,
		Meta: wire.Meta{Name: method, UTS: time.Now().UnixMilli()},
		Data: args,
	}

	if err := c.stream.Send(msg); err != nil {
		c.completeLocked(id, err)
		return rs
	}

	c.mu.Lock()
	if r, ok := c.live[id]; ok {
		r.state = stateAwait
		if opts.Timeout > 0 {
			r.timer = time.AfterFunc(opts.Timeout, func() { c.onTimeout(id) })
		}
	}
	c.mu.Unlock()

	return rs
}

// Detach stops further response delivery without closing the transport:
// every live request fails locally with "detached", but its id stays held
// so the dispatch loop can keep running and silently discard whatever the
// server eventually sends for it, the same grace-period treatment a timed
// out request gets.
func (c *Client) Detach() {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}
	c.detached = true
	reqs := make([]*request, 0, len(c.live))
	for _, r := range c.live {
		if r.state == stateDone || r.state == stateFailed {
			continue
		}
		r.state = stateFailed
		r.discarded = true
		reqs = append(reqs, r)
	}
	c.mu.Unlock()

	for _, r := range reqs {
		c.terminateRequest(r, fasterr.New(fasterr.KindDetached, "Detached", "client has detached"))
	}
}

// Close closes the underlying transport and terminates all live requests
// with "connection-closed". Requests already failed locally by a timeout or
// by Detach keep the error they were given.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	reqs := c.drainLiveLocked()
	c.mu.Unlock()

	for _, r := range reqs {
		c.terminateRequest(r, fasterr.New(fasterr.KindConnectionClosed, "ConnectionClosed", "connection was closed"))
	}
	return c.stream.Close()
}

// LiveCount returns the number of currently in-flight requests.
func (c *Client) LiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// RecentCount returns the number of completed requests retained for
// introspection.
func (c *Client) RecentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recent)
}

func (c *Client) drainLiveLocked() []*request {
	reqs := make([]*request, 0, len(c.live))
	for _, r := range c.live {
		if r.discarded {
			// Already terminated locally (timeout or Detach); its stream
			// must not be terminated a second time.
			continue
		}
		reqs = append(reqs, r)
	}
	c.live = make(map[uint32]*request)
	return reqs
}

func (c *Client) terminateRequest(r *request, err error) {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.state = stateFailed
	r.stream.terminate(err)
}

// onTimeout fires when opts.Timeout elapses for a still-outstanding
// request. The id is held live (not released) so a subsequent late reply
// can still be recognized and discarded rather than mis-routed to a
// reallocated id.
func (c *Client) onTimeout(id uint32) {
	c.mu.Lock()
	r, ok := c.live[id]
	if !ok || r.state == stateDone || r.state == stateFailed {
		c.mu.Unlock()
		return
	}
	r.state = stateFailed
	r.discarded = true
	c.mu.Unlock()

	r.stream.terminate(fasterr.New(fasterr.KindTimeout, "Timeout", "rpc timed out"))
}

// completeLocked handles a send-time failure: the request never reached
// AWAIT, so it's released immediately (no terminator to wait for).
func (c *Client) completeLocked(id uint32, err error) {
	c.mu.Lock()
	r, ok := c.live[id]
	if ok {
		delete(c.live, id)
	}
	c.mu.Unlock()
	c.ids.Release(id)
	if ok {
		c.terminateRequest(r, err)
	}
}

func (c *Client) recordRecent(id uint32, method string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = append(c.recent, recentEntry{id: id, method: method, success: success})
	if len(c.recent) > c.recentCap {
		c.recent = c.recent[len(c.recent)-c.recentCap:]
	}
}

// dispatchLoop is the single-logical-thread owner of this connection's
// inbound messages: it never runs concurrently with itself, so
// all state transitions below are free of per-message races.
func (c *Client) dispatchLoop() {
	for {
		select {
		case msg, ok := <-c.stream.Messages():
			if !ok {
				return
			}
			c.handleMessage(msg)
		case err, ok := <-c.stream.Errors():
			if !ok {
				return
			}
			c.failAll(fasterr.Wrap(err))
			return
		}
	}
}

func (c *Client) handleMessage(msg *wire.Message) {
	c.mu.Lock()
	r, ok := c.live[msg.ID]
	if !ok {
		c.mu.Unlock()
		// Unsolicited or stale id: a protocol violation. Fatal to the whole connection.
		c.failAll(fasterr.New(fasterr.KindUnsolicitedID, "UnsolicitedID", "reply for unknown request id").
			WithInfo(map[string]any{"id": msg.ID}))
		return
	}
	if r.discarded {
		// Discarded silently for the remainder of the id's grace period
		// until a real terminator arrives.
		switch msg.Type {
		case wire.TypeEnd, wire.TypeError:
			delete(c.live, msg.ID)
			c.ids.Release(msg.ID)
		}
		c.mu.Unlock()
		return
	}

	switch msg.Type {
	case wire.TypeData:
		r.appendData(msg.Data)
		c.mu.Unlock()
	case wire.TypeEnd:
		delete(c.live, msg.ID)
		r.state = stateDone
		c.mu.Unlock()
		r.appendData(msg.Data)
		c.ids.Release(msg.ID)
		c.recordRecent(r.id, r.method, true)
		r.stream.terminate(nil)
	case wire.TypeError:
		delete(c.live, msg.ID)
		r.state = stateFailed
		c.mu.Unlock()
		c.ids.Release(msg.ID)
		c.recordRecent(r.id, r.method, false)
		var errInfo map[string]any
		name, message := "RemoteError", "rpc failed"
		if msg.Err != nil {
			name = msg.Err.Name
			message = msg.Err.Message
			errInfo = msg.Err.Info
		}
		r.stream.terminate(fasterr.New(fasterr.KindHandlerFailure, name, message).WithInfo(errInfo))
	default:
		c.mu.Unlock()
	}
}

func (c *Client) failAll(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	reqs := c.drainLiveLocked()
	c.mu.Unlock()

	for _, r := range reqs {
		c.terminateRequest(r, err)
	}

	select {
	case c.errC <- err:
	default:
	}
	close(c.errC)
	c.stream.Close()
}
