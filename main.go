// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/uatu-sec/riskgate/cmd"
)

// main is the entry point for the riskgate CLI.
func main() {
	// Listen for interrupt signals so an in-flight scoring run can shut
	// down gracefully.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
