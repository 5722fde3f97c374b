package fastclient

import "time"

// state is the client-side request state machine.
type state int

const (
	stateInit state = iota
	stateSending
	stateAwait
	stateDone
	stateFailed
)

// request tracks one in-flight client-side RPC.
type request struct {
	id     uint32
	gen    uint64
	method string
	stream *ResultStream

	state            state
	ignoreNullValues bool
	timer            *time.Timer

	// discarded marks a request whose ResultStream was already terminated
	// locally (by a timeout or by Detach) while the id is still held live,
	// so a late reply doesn't get routed to a reallocated id. Such replies
	// are discarded instead of being delivered; the id is only released
	// once a real terminator (END/ERROR) arrives for it.
	discarded bool
}

func (r *request) appendData(items []any) {
	for _, item := range items {
		if r.ignoreNullValues && item == nil {
			continue
		}
		r.stream.push(item)
	}
}
