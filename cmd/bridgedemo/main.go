// Command bridgedemo wires a single bridgeable Counter across a real
// websocket connection, exercising SendRoot/GetRoot, the throttled flush,
// and a round-tripped method call end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bridgekit/bridge/bridge"
	"github.com/bridgekit/bridge/magic"
	"github.com/bridgekit/bridge/object"
	"github.com/bridgekit/bridge/transport"
)

// Counter is the demo's one bridgeable object: a server-owned value with a
// method that mutates state and tells the bridge it changed, matching the
// "simple property update" scenario. It does not embed bridge.Bridgeable:
// doing so would put Close/Emit/Update themselves on the wire surface,
// which this demo has no use for.
type Counter struct {
	Count int
}

func (c *Counter) Increment(n int) int {
	c.Count += n
	bridge.Update(c, "Count")
	return c.Count
}

func main() {
	mode := flag.String("mode", "server", `"server" or "client"`)
	addr := flag.String("addr", "localhost:8085", "address to listen on or dial")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("bridgedemo: failed to build logger: %v", err)
	}
	defer logger.Sync()

	switch *mode {
	case "server":
		runServer(*addr, logger)
	case "client":
		runClient(*addr, logger)
	default:
		log.Fatalf("bridgedemo: unknown -mode %q", *mode)
	}
}

func runServer(addr string, logger *zap.Logger) {
	magic.BridgifyClass(&Counter{})
	upgrader := transport.Upgrader{}

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		t, err := upgrader.Accept(w, r, transport.DefaultWebSocketOptions())
		if err != nil {
			logger.Warn("bridgedemo: upgrade failed", zap.Error(err))
			return
		}

		opts := bridge.DefaultOptions()
		opts.Logger = logger
		state := bridge.New(t, opts)

		counter := &Counter{}
		if err := state.SendRoot(counter); err != nil {
			logger.Warn("bridgedemo: send root failed", zap.Error(err))
			return
		}
		logger.Info("bridgedemo: client connected", zap.String("session", bridge.NewSessionID()))
	})

	logger.Info("bridgedemo: server listening", zap.String("addr", addr))
	log.Fatal(http.ListenAndServe(addr, nil))
}

func runClient(addr string, logger *zap.Logger) {
	url := fmt.Sprintf("ws://%s/ws", addr)
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("bridgedemo: dial failed: %v", err)
	}
	t := transport.NewWebSocketTransport(conn, transport.DefaultWebSocketOptions())

	opts := bridge.DefaultOptions()
	opts.Logger = logger
	state := bridge.New(t, opts)
	defer state.Close(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	root, err := state.GetRoot(ctx)
	if err != nil {
		log.Fatalf("bridgedemo: get root failed: %v", err)
	}
	proxy, ok := root.(*object.Proxy)
	if !ok {
		log.Fatalf("bridgedemo: root is not a proxy: %T", root)
	}

	promise, err := proxy.Call(ctx, "Increment", 5)
	if err != nil {
		log.Fatalf("bridgedemo: call failed: %v", err)
	}
	result, err := promise.Await(ctx)
	if err != nil {
		log.Fatalf("bridgedemo: await failed: %v", err)
	}
	fmt.Printf("Increment(5) -> %v\n", result)

	// The change record for Count arrives on its own throttled flush; give
	// it a moment to land before reading the mirrored property.
	time.Sleep(100 * time.Millisecond)
	count, _ := proxy.Get("Count")
	fmt.Printf("Count mirrored locally as %v\n", count)
}
