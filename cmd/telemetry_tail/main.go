// Telemetry tail prints the readings streamed by the telemetry API.
// Depends on the telemetry API being online.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/config"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/feed"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
)

func main() {
	if err := config.LoadTelemetryTailConfig(); err != nil {
		log.Fatalf("Failed to load telemetry tail config: %v", err)
	}

	// TELEMETRY_API_HOST overrides the configured host
	host := os.Getenv("TELEMETRY_API_HOST")
	if host == "" {
		host = config.ActiveTelemetryTailConfig.TelemetryAPIHost
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	feed.NewListener(host).Listen(ctx, handleReading)
}

func handleReading(reading types.Reading) {
	fmt.Println(string(reading.ToJsonBytes()))
}
