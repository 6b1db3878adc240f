// Command gateway runs the session gateway: the boot and session gate engine
// behind the REST API consumed by the UI shell.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/R3E-Network/session_gateway/internal/app/runtime"
	"github.com/R3E-Network/session_gateway/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	log := logger.NewDefault("gateway")

	application, err := runtime.NewApplication(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to initialise application")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.WithError(err).Error("application terminated")
		os.Exit(1)
	}

	if err := application.Shutdown(context.Background()); err != nil {
		log.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}
}
