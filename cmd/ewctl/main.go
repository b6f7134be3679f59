package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tchandler/eventworks/internal/cli/standard"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := standard.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
