// Command comedyhour runs the Chatbot Comedy Hour: two LLM comedians trading
// jokes, in the browser (serve) or in the terminal (run).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "comedyhour: %v\n", err)
		os.Exit(1)
	}
}
