package fastserver

import (
	"context"
	"net"
	"testing"

	"github.com/fastproto/fast/wire"
)

func TestRateLimitRejectsExcessRequests(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	srv := New(Config{}, WithRateLimit(0.001, 1))
	srv.RegisterRpcMethod("echo", func(_ context.Context, rpc *RequestContext) {
		rpc.End()
	})
	go srv.Serve(serverConn)

	cli := newWireClient(clientConn)

	cli.send(t, &wire.Message{Type: wire.TypeData, ID: 1, Meta: wire.Meta{Name: "echo"}, Data: []any{}})
	first := cli.recv(t)
	if first.Type != wire.TypeEnd {
		t.Fatalf("expected first request to succeed, got %v: %+v", first.Type, first.Err)
	}

	cli.send(t, &wire.Message{Type: wire.TypeData, ID: 2, Meta: wire.Meta{Name: "echo"}, Data: []any{}})
	second := cli.recv(t)
	if second.Type != wire.TypeError {
		t.Fatalf("expected second request to be rate-limited, got %v", second.Type)
	}
	if second.Err.Name != "RateLimited" {
		t.Fatalf("expected RateLimited error, got %q", second.Err.Name)
	}
}
