// Package framing implements the Fast protocol's frame stream:
// splitting an arbitrary byte stream into decoded messages, and merging
// messages back into bytes, with back-pressure in both directions.
//
// A reader that decodes exactly one frame per call via io.ReadFull against
// a blocking io.Reader works fine when every frame arrives whole. Fast
// additionally requires that splitting the wire bytes at ANY boundary and
// feeding the halves separately reproduces the same message sequence —
// which means the decode side must tolerate partial frames arriving across
// multiple reads, not just read until a full frame is available. Decoder
// implements that incremental accumulation explicitly; Stream (stream.go)
// drives it from a real connection.
package framing

import (
	"github.com/fastproto/fast/wire"
)

// Decoder incrementally assembles complete wire.Messages out of an
// arbitrary sequence of byte chunks fed to it via Feed.
type Decoder struct {
	codec *wire.Codec
	buf   []byte
}

// NewDecoder returns a Decoder using codec for frame validation.
func NewDecoder(codec *wire.Codec) *Decoder {
	return &Decoder{codec: codec}
}

// Feed appends chunk to the internal buffer and extracts as many complete
// frames as are now available. A non-nil error is always protocol-fatal
// and Feed must not be called again after one.
func (d *Decoder) Feed(chunk []byte) ([]*wire.Message, error) {
	if len(chunk) > 0 {
		d.buf = append(d.buf, chunk...)
	}

	var out []*wire.Message
	for {
		if len(d.buf) < wire.HeaderSize {
			return out, nil
		}
		hdr, err := d.codec.DecodeHeader(d.buf[:wire.HeaderSize])
		if err != nil {
			return out, err
		}
		frameLen := wire.HeaderSize + int(hdr.BodyLen)
		if len(d.buf) < frameLen {
			return out, nil
		}
		body := d.buf[wire.HeaderSize:frameLen]
		msg, err := d.codec.DecodeBody(hdr, body)
		if err != nil {
			return out, err
		}
		out = append(out, msg)

		// Advance past the consumed frame. Copy avoids retaining the whole
		// growing backing array across many small frames.
		remaining := len(d.buf) - frameLen
		next := make([]byte, remaining)
		copy(next, d.buf[frameLen:])
		d.buf = next
	}
}

// Pending reports how many unconsumed bytes are buffered. A non-zero value
// when the underlying stream reaches EOF is a truncated-frame protocol
// violation.
func (d *Decoder) Pending() int { return len(d.buf) }
