package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/patrikhermansson/redis-hnsw/cmd"
)

// main is the entry point of the application.
// Logging is configured from DEBUG_HNSW when the core package loads and may be
// overridden by the configuration; an interrupt cancels the running command.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
