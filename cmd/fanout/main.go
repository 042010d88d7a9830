// Command fanout runs a target once per item of a list or file set, in
// parallel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nibzard/fanout/cmd"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	err := cmd.Run(ctx, os.Args[1:])
	code := cmd.ExitCode(ctx, err)
	switch code {
	case cmd.ExitOK:
		return
	case cmd.ExitInterrupted:
		fmt.Fprintf(os.Stderr, "\nInterrupted\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}
