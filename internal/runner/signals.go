// Package runner sequences startup and shutdown of the long-running
// services cmd/server wires together (the HTTP listener, the compensation
// worker), adapted from plaenen-eventstore's pkg/runner: services start in
// registration order and stop in reverse order under a bounded timeout.
package runner

import (
	"os"
	"os/signal"
	"syscall"
)

// WaitForShutdownSignal blocks until the process receives SIGINT or SIGTERM.
func WaitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
}
