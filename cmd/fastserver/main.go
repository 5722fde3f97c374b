// Command fastserver runs a Fast protocol server exposing a handful of
// demo methods (echo, date, sleep, words, yes) for manual testing against
// cmd/fastclient or any other Fast client.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/fastproto/fast/fasterr"
	"github.com/fastproto/fast/fastlog"
	"github.com/fastproto/fast/fastserver"
)

var options struct {
	addr      string
	rateLimit float64
	burst     int
}

func argParse() {
	flag.StringVar(&options.addr, "addr", "127.0.0.1:9998", "address to listen on")
	flag.Float64Var(&options.rateLimit, "rate", 0, "requests/sec admission limit shared by all connections, 0 disables it")
	flag.IntVar(&options.burst, "burst", 1, "burst size for -rate")
	flag.Parse()
}

func main() {
	argParse()

	lis, err := net.Listen("tcp", options.addr)
	if err != nil {
		log.Fatalf("listen failed: %v", err)
	}
	fmt.Printf("fastserver listening on %v\n", options.addr)

	opts := []fastserver.Option{}
	if options.rateLimit > 0 {
		opts = append(opts, fastserver.WithRateLimit(options.rateLimit, options.burst))
	}

	srv := fastserver.New(fastserver.Config{
		Log:      fastlog.Default(),
		Acceptor: lis,
	}, opts...)

	registerDemoMethods(srv)

	if err := srv.Run(); err != nil {
		log.Fatalf("serve loop exited: %v", err)
	}
}

func registerDemoMethods(srv *fastserver.Server) {
	srv.RegisterRpcMethod("echo", func(_ context.Context, rpc *fastserver.RequestContext) {
		for _, v := range rpc.Argv() {
			rpc.Write(map[string]any{"value": v})
		}
		rpc.End()
	})

	srv.RegisterRpcMethod("date", func(_ context.Context, rpc *fastserver.RequestContext) {
		if len(rpc.Argv()) != 0 {
			rpc.Fail(fasterr.New(fasterr.KindArgValidation, "VError", "expected no arguments"))
			return
		}
		now := time.Now().UTC()
		rpc.End(map[string]any{"timestamp": float64(now.Unix()), "iso8601": now.Format(time.RFC3339)})
	})

	srv.RegisterRpcMethod("sleep", func(_ context.Context, rpc *fastserver.RequestContext) {
		ms := float64(0)
		if len(rpc.Argv()) > 0 {
			if m, ok := rpc.Argv()[0].(map[string]any); ok {
				ms, _ = m["ms"].(float64)
			}
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		rpc.End()
	})

	srv.RegisterRpcMethod("words", func(_ context.Context, rpc *fastserver.RequestContext) {
		if len(rpc.Argv()) == 0 {
			rpc.Fail(fasterr.New(fasterr.KindArgValidation, "VError", "missing arguments"))
			return
		}
		text, ok := rpc.Argv()[0].(string)
		if !ok {
			rpc.Fail(fasterr.New(fasterr.KindArgValidation, "VError", "expected a string argument"))
			return
		}
		for _, w := range strings.Fields(text) {
			rpc.Write(w)
		}
		rpc.End()
	})

	srv.RegisterRpcMethod("yes", func(_ context.Context, rpc *fastserver.RequestContext) {
		if len(rpc.Argv()) == 0 {
			rpc.Fail(fasterr.New(fasterr.KindArgValidation, "VError", "missing arguments"))
			return
		}
		arg, _ := rpc.Argv()[0].(map[string]any)
		count, _ := arg["count"].(float64)
		value := arg["value"]
		if count < 1 || count > 10240 {
			rpc.Fail(fasterr.New(fasterr.KindArgValidation, "VError", "count must be an integer in range [1, 10240]").
				WithInfo(map[string]any{"foundValue": count, "minValue": float64(1), "maxValue": float64(10240)}))
			return
		}
		for i := 0; i < int(count); i++ {
			rpc.Write(map[string]any{"value": value})
		}
		rpc.End()
	})
}
