// hsmctl drives the Lustre HSM archive lifecycle from the command line.
//
// It registers files for archiving, releases their disk copies, recalls
// them from tape and reports their HSM state. Every state-changing
// operation can be journalled in SQLite, published over MQTT and recorded
// in InfluxDB, depending on configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Cancels on Ctrl+C and SIGTERM; in-flight lfs commands are killed.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// run executes the command line in args, separated from main for testability.
func run(ctx context.Context, args []string) error {
	root := newRootCmd(os.Stdout, os.Stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
