package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"SignalScanner/internal/app"
	"SignalScanner/internal/config"
	"SignalScanner/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run a single pipeline pass and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		os.Exit(1)
	}

	if *once {
		err = application.RunOnce(ctx)
		if closeErr := application.Close(); err == nil {
			err = closeErr
		}
	} else {
		err = application.Run(ctx)
	}

	if err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
