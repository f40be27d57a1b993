package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/formscan/internal/cli"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cli.Version, cli.BuildTime, cli.GitCommit = Version, BuildTime, GitCommit

	// Interrupting cancels the running session. Its log is still written.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, &cli.App{}, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "formscan: %v\n", err)
		stop()
		os.Exit(1)
	}
}
