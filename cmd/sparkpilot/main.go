package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshmcq/sparkpilot/internal/app"
	"github.com/joshmcq/sparkpilot/internal/config"
)

func main() {
	mode := flag.String("mode", "", "run mode: api, provisioner, scheduler, or reconciler (overrides SPARKPILOT_MODE)")
	once := flag.Bool("once", false, "perform a single pass and exit (background-loop modes only, overrides ONCE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override env vars.
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *once {
		cfg.Once = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
