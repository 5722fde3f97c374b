package framing

import (
	"io"
	"net"
	"sync"

	"github.com/fastproto/fast/fasterr"
	"github.com/fastproto/fast/fastlog"
	"github.com/fastproto/fast/wire"
)

// outQueueSize bounds the outbound write queue; Ready reports false once it
// is full, mirroring the "ready to write more" signal a
// streaming handler's write is expected to report.
const outQueueSize = 256

// inQueueSize bounds the inbound decoded-message queue. When full, the
// read loop blocks pushing into it, which pauses further socket reads —
// inbound back-pressure by pausing reads when the consumer's queue is
// saturated.
const inQueueSize = 256

// Stream is a duplex message-oriented adapter over a raw byte connection.
// Callers never see bytes: Messages() yields decoded messages, Send()
// accepts structured messages to encode and write.
//
// The write side serializes frames onto the connection through a single
// background loop so that concurrent senders never interleave partial
// frames.
type Stream struct {
	conn  net.Conn
	codec *wire.Codec
	log   fastlog.Logger

	msgC chan *wire.Message
	errC chan error

	writeQueue chan *wire.Message
	writeErrMu sync.Mutex
	writeErr   error

	drainMu sync.Mutex
	drainCh chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewStream wraps conn and starts the background read and write loops.
func NewStream(conn net.Conn, codec *wire.Codec, log fastlog.Logger) *Stream {
	if log == nil {
		log = fastlog.Nop
	}
	s := &Stream{
		conn:       conn,
		codec:      codec,
		log:        log,
		msgC:       make(chan *wire.Message, inQueueSize),
		errC:       make(chan error, 1),
		writeQueue: make(chan *wire.Message, outQueueSize),
		drainCh:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.readLoop()
	go s.writeLoop()
	return s
}

// Messages returns the channel of decoded inbound messages. It is closed
// after a fatal read error (see Errors) or a clean half-close.
func (s *Stream) Messages() <-chan *wire.Message { return s.msgC }

// Errors returns the channel that receives at most one fatal error before
// Messages is closed.
func (s *Stream) Errors() <-chan error { return s.errC }

// Ready reports whether the outbound queue has room for another message
// without blocking.
func (s *Stream) Ready() bool { return len(s.writeQueue) < outQueueSize }

// Drain returns a channel that closes the next time the outbound queue
// empties out.
func (s *Stream) Drain() <-chan struct{} {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()
	return s.drainCh
}

// Send enqueues msg for the write loop, which encodes and writes it. It
// returns an error once the stream is closed, and blocks only if the
// outbound queue is completely full; callers that want non-blocking
// back-pressure should check Ready() first.
func (s *Stream) Send(msg *wire.Message) error {
	select {
	case <-s.done:
		return fasterr.New(fasterr.KindConnectionClosed, "ConnectionClosed", "stream is closed")
	case s.writeQueue <- msg:
		return nil
	}
}

// Close closes the underlying connection and stops both loops.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) readLoop() {
	defer close(s.msgC)

	dec := NewDecoder(s.codec)
	buf := make([]byte, 64*1024)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			msgs, decErr := dec.Feed(buf[:n])
			for _, m := range msgs {
				select {
				case s.msgC <- m:
				case <-s.done:
					return
				}
			}
			if decErr != nil {
				s.fail(decErr)
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				if dec.Pending() > 0 {
					s.fail(fasterr.New(fasterr.KindTruncatedFrame, "TruncatedFrame", "connection closed mid-frame"))
				}
				return
			}
			select {
			case <-s.done:
				return
			default:
			}
			s.fail(fasterr.Wrap(err))
			return
		}
	}
}

func (s *Stream) fail(err error) {
	select {
	case s.errC <- err:
	default:
	}
	s.log.Errorf("frame stream fatal: %v", err)
}

func (s *Stream) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.writeQueue:
			frame, err := s.codec.Encode(msg)
			if err != nil {
				s.log.Errorf("encode failed: %v", err)
				continue
			}
			if _, err := s.conn.Write(frame); err != nil {
				select {
				case <-s.done:
				default:
					s.fail(fasterr.Wrap(err))
				}
				return
			}
			if len(s.writeQueue) == 0 {
				s.signalDrain()
			}
		}
	}
}

func (s *Stream) signalDrain() {
	s.drainMu.Lock()
	old := s.drainCh
	s.drainCh = make(chan struct{})
	s.drainMu.Unlock()
	close(old)
}
