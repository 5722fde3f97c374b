// Package fastserver implements the Fast protocol's server dispatcher:
// accepting connections, routing requests to registered handlers, managing
// response streams, and orchestrating graceful shutdown.
//
// Methods are registered once at startup in a plain name-to-handler map, a
// per-connection read loop dispatches each inbound request to its own
// goroutine, and responses are a stream (argv/write/end/fail) rather than
// a single reply.
package fastserver

import (
	"context"

	"github.com/fastproto/fast/fasterr"
	"github.com/fastproto/fast/fastlog"
	"github.com/fastproto/fast/framing"
	"github.com/fastproto/fast/wire"
)

// Handler is invoked once per inbound request, with a RequestContext to
// read its arguments and emit its response stream.
type Handler func(ctx context.Context, rpc *RequestContext)

// RequestContext is the handler-facing view of one in-flight request.
type RequestContext struct {
	id     uint32
	method string
	argv   []any

	stream *framing.Stream
	log    fastlog.Logger

	done func()

	finished bool
}

// Argv returns the request's argument array, always present.
func (rc *RequestContext) Argv() []any { return rc.argv }

// Write enqueues one data item onto the response stream. It reports
// whether the outbound queue still has room for more without blocking.
// Calling Write after End/Fail is a no-op, logged as a warning.
func (rc *RequestContext) Write(item any) bool {
	if rc.finished {
		rc.log.Warnf("write after terminator on request %d (%s)", rc.id, rc.method)
		return false
	}
	msg := &wire.Message{
		Type: wire.TypeData,
		ID:   rc.id,
		Meta: wire.Meta{Name: rc.method},
		Data: []any{item},
	}
	if err := rc.stream.Send(msg); err != nil {
		rc.log.Warnf("write failed on request %d: %v", rc.id, err)
		return false
	}
	return rc.stream.Ready()
}

// End terminates the request successfully, optionally delivering one
// final item.
func (rc *RequestContext) End(item ...any) {
	if rc.finished {
		rc.log.Warnf("end after terminator on request %d (%s)", rc.id, rc.method)
		return
	}
	rc.finished = true
	data := []any{}
	if len(item) > 0 {
		data = item
	}
	msg := &wire.Message{
		Type: wire.TypeEnd,
		ID:   rc.id,
		Meta: wire.Meta{Name: rc.method},
		Data: data,
	}
	if err := rc.stream.Send(msg); err != nil {
		rc.log.Warnf("end failed on request %d: %v", rc.id, err)
	}
	rc.done()
}

// Fail terminates the request with an error.
func (rc *RequestContext) Fail(err *fasterr.Error) {
	if rc.finished {
		rc.log.Warnf("fail after terminator on request %d (%s)", rc.id, rc.method)
		return
	}
	rc.finished = true
	ed := wire.ErrorData{Name: err.Name, Message: err.Message, Info: err.Info}
	msg := &wire.Message{
		Type: wire.TypeError,
		ID:   rc.id,
		Meta: wire.Meta{Name: rc.method},
		Err:  &ed,
	}
	if sendErr := rc.stream.Send(msg); sendErr != nil {
		rc.log.Warnf("fail-send failed on request %d: %v", rc.id, sendErr)
	}
	rc.done()
}
