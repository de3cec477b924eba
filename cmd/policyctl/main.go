package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/liamcoop/policies/internal/logger"
)

// Version information (set via ldflags during build)
var Version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Diagnostics go to stderr so stdout stays machine readable
	logger.SetOutput(os.Stderr)

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
