package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/mqttforward"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/pathing"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/simulation"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/transport"
)

var (
	ActiveTelemetryAPIConfig  *TelemetryAPIConfig
	ActiveTelemetryTailConfig *TelemetryTailConfig
)

func DefaultTelemetryAPIConfig() TelemetryAPIConfig {
	return TelemetryAPIConfig{
		SerialDevice:            "/dev/ttyUSB0",
		Baudrate:                115200,
		Simulate:                false,
		SimulationNodes:         append([]int(nil), simulation.DefaultNodeIDs...),
		SimulationQueueCapacity: simulation.DefaultQueueCapacity,
		ListenAddress:           "0.0.0.0",
		ListenPort:              9040,
		MqttTopicPrefix:         mqttforward.DefaultTopicPrefix,
	}
}

func LoadTelemetryAPIConfig() error {
	cfg, err := loadOrCreate("telemetry_api.toml", DefaultTelemetryAPIConfig())
	if err != nil {
		return err
	}
	ActiveTelemetryAPIConfig = cfg
	return nil
}

func LoadTelemetryTailConfig() error {
	cfg, err := loadOrCreate("telemetry_tail.toml", TelemetryTailConfig{
		TelemetryAPIHost: "localhost:9040",
	})
	if err != nil {
		return err
	}
	ActiveTelemetryTailConfig = cfg
	return nil
}

// Connection maps the config onto the transport's connection pair.
func (c *TelemetryAPIConfig) Connection() transport.ConnectionConfig {
	if c.Simulate {
		return transport.SimulationConfig()
	}
	return transport.ConnectionConfig{Address: c.SerialDevice, Rate: c.Baudrate}
}

func (c *TelemetryAPIConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.ListenPort)
}

// Writes defaults to the config dir on first run, loads the file otherwise.
// Keys missing from an existing file keep their default value.
func loadOrCreate[T any](name string, defaults T) (*T, error) {
	dir := pathing.GetConfigDir()
	configPath := filepath.Join(dir, name)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := pathing.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("failed to create config dir: %w", err)
		}
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return nil, err
		}
		defer cfgFile.Close()
		if err := toml.NewEncoder(cfgFile).Encode(defaults); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return &defaults, nil
	}

	config := defaults
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}
	return &config, nil
}
