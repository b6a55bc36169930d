// Reference ledger daemon for development and testing.
//
// Usage:
//
//	ledgerd [--ledger-listen=... --ledger-db=badger|memory]  Run ledger
//	ledgerd --help                                           Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/cryptoken/config"
	"github.com/Klingon-tech/cryptoken/internal/node"
)

func main() {
	cfg, _, err := config.Load("ledgerd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	l, err := node.NewLedger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := l.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		l.Stop()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	l.Stop()
}
