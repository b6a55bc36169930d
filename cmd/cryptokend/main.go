// Cryptoken wallet service daemon.
//
// Usage:
//
//	cryptokend [--ledger-url=... --token-seed=... --myr-seed=...]  Run service
//	cryptokend --help                                             Show help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/cryptoken/config"
	"github.com/Klingon-tech/cryptoken/internal/node"
)

func main() {
	cfg, _, err := config.Load("cryptokend")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := node.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := n.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		n.Stop()
		os.Exit(1)
	}

	<-ctx.Done()

	n.Stop()
}
