package fastserver

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/fastproto/fast/fasterr"
	"github.com/fastproto/fast/framing"
	"github.com/fastproto/fast/reqid"
	"github.com/fastproto/fast/wire"
)

// serverConnState is the per-request state machine on the server side:
// NEW -> RUNNING -> COMPLETING -> DONE.
type serverConnState int

const (
	reqNew serverConnState = iota
	reqRunning
	reqCompleting
	reqDone
)

// connection is one accepted connection's dispatcher state: its frame
// stream, its request-id allocator (for collision detection against the
// ids the client chose), its per-request state machine, and the
// in-flight handler goroutines it's tracking for graceful shutdown.
//
// Uses a per-connection WaitGroup to track in-flight handler goroutines
// so a graceful shutdown can wait for every streaming handler to emit its
// terminator before tearing the connection down.
type connection struct {
	id     string
	srv    *Server
	stream *framing.Stream
	ids    *reqid.Allocator

	mu   sync.Mutex
	reqs map[uint32]serverConnState
	wg   sync.WaitGroup
}

func newConnection(srv *Server, s *framing.Stream) *connection {
	return &connection{
		id:     uuid.NewString(),
		srv:    srv,
		stream: s,
		ids:    reqid.New(),
		reqs:   make(map[uint32]serverConnState),
	}
}

func (c *connection) run() {
	defer c.teardown()
	c.srv.log.Debugf("conn %s: accepted", c.id)
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
			c.srv.log.Errorf("conn %s: fatal: %v", c.id, err)
			return
		}
	}
}

func (c *connection) handleMessage(msg *wire.Message) {
	switch msg.Type {
	case wire.TypeEnd, wire.TypeError:
		// Only the server replies with terminators; receiving one from the
		// client is a protocol violation.
		c.srv.log.Errorf("conn %s: client sent terminator type %v for id %d", c.id, msg.Type, msg.ID)
		c.stream.Close()
		return
	case wire.TypeData:
		c.handleData(msg)
	}
}

func (c *connection) handleData(msg *wire.Message) {
	if _, ok := c.ids.ClaimIfAbsent(msg.ID); !ok {
		// A DATA message reusing a live id is a protocol violation: Fast
		// requests are one-shot from client to server.
		c.srv.log.Errorf("conn %s: duplicate live request id %d", c.id, msg.ID)
		c.stream.Close()
		return
	}

	if c.srv.isClosing() {
		c.ids.Release(msg.ID)
		c.replyError(msg.ID, msg.Meta.Name, fasterr.New(fasterr.KindServerClosing, "ServerClosing", "server is shutting down"))
		return
	}

	handler, ok := c.srv.lookup(msg.Meta.Name)
	if !ok {
		c.ids.Release(msg.ID)
		c.replyError(msg.ID, msg.Meta.Name, fasterr.New(fasterr.KindUnknownMethod, "UnknownMethod", "method not registered: "+msg.Meta.Name))
		return
	}

	if c.srv.limiter != nil && !c.srv.limiter.Allow() {
		c.ids.Release(msg.ID)
		c.replyError(msg.ID, msg.Meta.Name, fasterr.New(fasterr.KindRateLimited, "RateLimited", "rate limit exceeded"))
		return
	}

	c.mu.Lock()
	c.reqs[msg.ID] = reqNew
	c.mu.Unlock()

	c.wg.Add(1)
	c.srv.trackRequest(1)

	rc := &RequestContext{
		id:     msg.ID,
		method: msg.Meta.Name,
		argv:   msg.Data,
		stream: c.stream,
		log:    c.srv.log,
		done: func() {
			c.mu.Lock()
			delete(c.reqs, msg.ID)
			c.mu.Unlock()
			c.ids.Release(msg.ID)
			c.wg.Done()
			c.srv.trackRequest(-1)
		},
	}

	c.mu.Lock()
	c.reqs[msg.ID] = reqRunning
	c.mu.Unlock()

	go handler(context.Background(), rc)
}

func (c *connection) replyError(id uint32, method string, err *fasterr.Error) {
	msg := &wire.Message{
		Type: wire.TypeError,
		ID:   id,
		Meta: wire.Meta{Name: method},
		Err:  &wire.ErrorData{Name: err.Name, Message: err.Message, Info: err.Info},
	}
	if sendErr := c.stream.Send(msg); sendErr != nil {
		c.srv.log.Warnf("conn %s: reply-error send failed: %v", c.id, sendErr)
	}
}

func (c *connection) teardown() {
	c.wg.Wait()
	c.stream.Close()
	c.srv.log.Debugf("conn %s: destroyed", c.id)
	c.srv.connDestroyed(c)
}
