package framing

import (
	"testing"

	"github.com/fastproto/fast/wire"
)

func encodeSequence(t *testing.T, msgs []*wire.Message) []byte {
	t.Helper()
	c := wire.NewCodec()
	var all []byte
	for _, m := range msgs {
		frame, err := c.Encode(m)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		all = append(all, frame...)
	}
	return all
}

func sampleMessages() []*wire.Message {
	return []*wire.Message{
		{Type: wire.TypeData, ID: 1, Meta: wire.Meta{Name: "echo"}, Data: []any{"a"}},
		{Type: wire.TypeData, ID: 1, Meta: wire.Meta{Name: "echo"}, Data: []any{"b", "c"}},
		{Type: wire.TypeEnd, ID: 1, Meta: wire.Meta{Name: "echo"}, Data: []any{}},
		{Type: wire.TypeData, ID: 2, Meta: wire.Meta{Name: "sleep"}, Data: []any{}},
		{Type: wire.TypeError, ID: 2, Meta: wire.Meta{Name: "sleep"}, Err: &wire.ErrorData{Name: "Boom", Message: "bad"}},
	}
}

// TestSplitAtEveryBoundary checks the core framing invariant: for all
// byte streams produced by an encoder, splitting the stream at any byte
// boundary and feeding the halves separately reproduces the same message
// sequence.
func TestSplitAtEveryBoundary(t *testing.T) {
	msgs := sampleMessages()
	all := encodeSequence(t, msgs)

	for split := 0; split <= len(all); split++ {
		codec := wire.NewCodec()
		dec := NewDecoder(codec)

		first, err := dec.Feed(all[:split])
		if err != nil {
			t.Fatalf("split %d: unexpected error on first half: %v", split, err)
		}
		second, err := dec.Feed(all[split:])
		if err != nil {
			t.Fatalf("split %d: unexpected error on second half: %v", split, err)
		}

		got := append(first, second...)
		if len(got) != len(msgs) {
			t.Fatalf("split %d: got %d messages, want %d", split, len(got), len(msgs))
		}
		for i := range msgs {
			if got[i].ID != msgs[i].ID || got[i].Type != msgs[i].Type {
				t.Fatalf("split %d: message %d mismatch: got %+v, want %+v", split, i, got[i], msgs[i])
			}
		}
		if dec.Pending() != 0 {
			t.Fatalf("split %d: expected no pending bytes, got %d", split, dec.Pending())
		}
	}
}

// TestSplitByteAtATime feeds one byte at a time to exercise the most
// aggressive fragmentation.
func TestSplitByteAtATime(t *testing.T) {
	msgs := sampleMessages()
	all := encodeSequence(t, msgs)

	codec := wire.NewCodec()
	dec := NewDecoder(codec)
	var got []*wire.Message
	for i := 0; i < len(all); i++ {
		out, err := dec.Feed(all[i : i+1])
		if err != nil {
			t.Fatalf("byte %d: unexpected error: %v", i, err)
		}
		got = append(got, out...)
	}
	if len(got) != len(msgs) {
		t.Fatalf("got %d messages, want %d", len(got), len(msgs))
	}
}

func TestPendingNonZeroOnPartialFrame(t *testing.T) {
	msgs := sampleMessages()
	all := encodeSequence(t, msgs)

	codec := wire.NewCodec()
	dec := NewDecoder(codec)
	// Feed everything but the last 3 bytes of the last frame.
	if _, err := dec.Feed(all[:len(all)-3]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Pending() == 0 {
		t.Fatalf("expected pending bytes for a partial final frame")
	}
}
