// Command kickrunner drives a worker at a fixed frame rate and exposes its
// state over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Swind/go-kick-runner/cmd/kickrunner/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.Execute(ctx)
	stop()
	os.Exit(code)
}
