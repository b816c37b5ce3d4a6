// Telemetry API runs the acquisition worker and serves its readings to dashboards.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/acquisition"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/broadcast"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/config"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/metrics"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/mqttforward"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/simulation"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/transport"
)

const maxCommandLength = 256

func main() {
	if err := config.LoadTelemetryAPIConfig(); err != nil {
		log.Fatalf("Failed to load telemetry API config: %v", err)
	}
	cfg := config.ActiveTelemetryAPIConfig

	collector := metrics.NewCollector()
	hub := broadcast.NewHub()

	worker := acquisition.NewWorker(acquisition.Options{
		Connection: cfg.Connection(),
		Transport: transport.Options{
			Recorder: collector,
			Simulation: simulation.Options{
				NodeIDs:       cfg.SimulationNodes,
				QueueCapacity: cfg.SimulationQueueCapacity,
			},
		},
		Recorder: collector,
	})
	collector.BindSimulation(worker.Transport())
	worker.Subscribe(hub.Subscriber())

	if cfg.MqttBroker != "" {
		forwarder, err := mqttforward.NewForwarder(mqttforward.Config{
			Broker:      cfg.MqttBroker,
			Username:    cfg.MqttUsername,
			Password:    cfg.MqttPassword,
			TopicPrefix: cfg.MqttTopicPrefix,
		})
		if err != nil {
			log.Fatalf("Invalid MQTT config: %v", err)
		}
		// Paho keeps retrying in the background; readings flow once connected.
		if err := forwarder.Connect(); err != nil {
			log.Printf("MQTT forwarding unavailable: %v", err)
		}
		defer forwarder.Disconnect()
		worker.Subscribe(forwarder.Subscriber())
	}

	if err := worker.Start(); err != nil {
		log.Fatalf("Failed to start acquisition worker: %v", err)
	}
	defer worker.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"message": "Cold Chain Telemetry API",
			"status":  worker.State().String(),
			"mode":    worker.Transport().Mode().String(),
		})
	})
	mux.HandleFunc("/latest", hub.HandleLatest)
	mux.HandleFunc("/ws", hub.HandleWebSocket)
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/command", func(w http.ResponseWriter, r *http.Request) {
		handleCommand(w, r, worker.Transport())
	})

	server := &http.Server{Addr: cfg.ListenAddr(), Handler: mux}
	go func() {
		log.Printf("Starting Cold Chain Telemetry API on %s", cfg.ListenAddr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
}

// Forwards the request body to the gateway and answers with its reply line.
func handleCommand(w http.ResponseWriter, r *http.Request, t *transport.Manager) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(map[string]string{"error": "POST required"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandLength))
	if err != nil || len(body) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "empty command"})
		return
	}

	if ok, err := t.SendText(string(body)); !ok {
		msg := "command not sent"
		if err != nil {
			msg = err.Error()
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": msg})
		return
	}

	reply, err := t.ReceiveText()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"reply": reply})
}
