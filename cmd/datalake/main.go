package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joseph-ayodele/datalake-etl/internal/common"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for usage and configuration problems, 1 otherwise.
func exitCode(err error) int {
	if errors.Is(err, common.ErrInvalidInput) || errors.Is(err, common.ErrValidation) {
		return 2
	}
	return 1
}
