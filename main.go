// ./main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/cmd"
)

// main is the entry point for the explorer CLI.
func main() {
	// Interrupts cancel the run context; the state machine pauses and
	// checkpoints the session so it can resume later.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
