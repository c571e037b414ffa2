// Command ledger-admin is the operator CLI for the engagement ledger.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/target/engagement-ledger/config"
	"github.com/target/engagement-ledger/internal/bootstrap"
)

func main() {
	logger := bootstrap.InitLogger(config.LogConfig{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &adminApp{logger: logger, connect: connectRuntime}
	root := newRootCmd(app)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.ErrorContext(ctx, "command failed", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}
