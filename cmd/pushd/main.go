// Command pushd runs the push notification API.
//
//	pushd serve        start the HTTP server (default)
//	pushd vapid-keys   print a fresh VAPID key pair as env lines
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "pushd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		return serve(ctx, args)
	case "vapid-keys":
		return vapidKeys(os.Stdout, args)
	case "-h", "--help", "help":
		fmt.Fprintln(os.Stdout, "usage: pushd [serve|vapid-keys] [flags]")
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
