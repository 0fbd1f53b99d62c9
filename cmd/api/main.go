package main

import (
	"log"

	"github.com/eventagg/aggregator/internal/logging"
	"github.com/eventagg/aggregator/internal/supervisor"
)

func main() {
	container, err := supervisor.New()
	if err != nil {
		log.Fatalf("failed to initialize aggregator: %v", err)
	}

	logging.Info("log-event aggregator initialized", logging.F{
		"version": container.Config.Version,
		"port":    container.Config.Server.Port,
	})

	if err := container.Start(); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
