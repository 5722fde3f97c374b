package framing

import (
	"net"
	"testing"
	"time"

	"github.com/fastproto/fast/wire"
)

func TestStreamRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	codec := wire.NewCodec()
	sa := NewStream(a, codec, nil)
	sb := NewStream(b, codec, nil)
	defer sa.Close()
	defer sb.Close()

	msg := &wire.Message{Type: wire.TypeData, ID: 1, Meta: wire.Meta{Name: "echo"}, Data: []any{"hi"}}
	if err := sa.Send(msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case got := <-sb.Messages():
		if got.ID != 1 || got.Data[0] != "hi" {
			t.Fatalf("unexpected message: %+v", got)
		}
	case err := <-sb.Errors():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestStreamTruncatedFrameIsFatal(t *testing.T) {
	a, b := net.Pipe()
	codec := wire.NewCodec()
	sb := NewStream(b, codec, nil)
	defer sb.Close()

	msg := &wire.Message{Type: wire.TypeData, ID: 1, Data: []any{"x"}}
	frame, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	go func() {
		a.Write(frame[:len(frame)-2])
		a.Close()
	}()

	select {
	case <-sb.Messages():
		t.Fatal("did not expect a message from a truncated frame")
	case err := <-sb.Errors():
		if err == nil {
			t.Fatal("expected a fatal error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fatal error")
	}
}

func TestStreamDrainSignalsAfterQueueEmpties(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	codec := wire.NewCodec()
	sa := NewStream(a, codec, nil)
	defer sa.Close()

	// Drain a few messages on the far end so writes can complete.
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := b.Read(buf); err != nil {
				return
			}
		}
	}()

	drain := sa.Drain()
	if err := sa.Send(&wire.Message{Type: wire.TypeData, ID: 1, Data: []any{}}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case <-drain:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for drain signal")
	}
}
