// Command fastclient dials a Fast protocol server and issues a single RPC,
// printing every item it streams back. Meant for manual exercising of
// cmd/fastserver's demo methods.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/fastproto/fast/fastclient"
	"github.com/fastproto/fast/fastlog"
)

var options struct {
	addr    string
	method  string
	args    string
	timeout time.Duration
}

func argParse() {
	flag.StringVar(&options.addr, "addr", "127.0.0.1:9998", "server address")
	flag.StringVar(&options.method, "method", "echo", "method to invoke")
	flag.StringVar(&options.args, "args", "[]", "JSON array of arguments")
	flag.DurationVar(&options.timeout, "timeout", 5*time.Second, "per-request timeout, 0 disables it")
	flag.Parse()
}

func main() {
	argParse()

	var args []any
	if err := json.Unmarshal([]byte(options.args), &args); err != nil {
		log.Fatalf("invalid -args JSON: %v", err)
	}

	conn, err := net.Dial("tcp", options.addr)
	if err != nil {
		log.Fatalf("dial failed: %v", err)
	}

	cli := fastclient.New(fastclient.Config{
		Transport: conn,
		Log:       fastlog.Default(),
	})
	defer cli.Close()

	rs := cli.Rpc(options.method, args, fastclient.Opts{Timeout: options.timeout})
	for {
		select {
		case item, ok := <-rs.Items():
			if !ok {
				if err := rs.Err(); err != nil {
					log.Fatalf("rpc failed: %v", err)
				}
				fmt.Println("done")
				return
			}
			b, _ := json.Marshal(item)
			fmt.Println(string(b))
		case <-rs.Done():
			if err := rs.Err(); err != nil {
				log.Fatalf("rpc failed: %v", err)
			}
			return
		}
	}
}
