package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/simulation"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
)

// Reserved connection pair that selects the simulator.
const (
	SimulationAddress = "-1"
	SimulationRate    = -1
)

const ReadTimeout = time.Second

// Canned reply of the simulated text channel.
const SimulatedTextReply = "[SIMULATION] text received"

var ErrTransportClosed = errors.New("transport not configured or closed")

// ConfigurationError means the serial device could not be opened.
type ConfigurationError struct {
	Address string
	Rate    int
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("could not open serial port %s at %d baud: %v", e.Address, e.Rate, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// TransientIOError wraps a read that timed out or was interrupted.
type TransientIOError struct {
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient read error: %v", e.Err)
}

func (e *TransientIOError) Unwrap() error {
	return e.Err
}

type Mode int

const (
	ModeUnconfigured Mode = iota
	ModeReal
	ModeSimulation
)

func (m Mode) String() string {
	switch m {
	case ModeReal:
		return "real"
	case ModeSimulation:
		return "simulation"
	default:
		return "unconfigured"
	}
}

// ConnectionConfig identifies the sensor gateway to talk to.
type ConnectionConfig struct {
	Address string
	Rate    int
}

func SimulationConfig() ConnectionConfig {
	return ConnectionConfig{Address: SimulationAddress, Rate: SimulationRate}
}

func (c ConnectionConfig) IsSimulation() bool {
	return c.Address == SimulationAddress && c.Rate == SimulationRate
}

// Transport is one concrete data source. Receive returns ok=false when
// nothing arrived within ReadTimeout.
type Transport interface {
	Receive(ctx context.Context) (reading types.Reading, ok bool, err error)
	SendText(msg string) (bool, error)
	ReceiveText() (string, error)
	Close() error
}

// PortOpener opens the serial device. Tests swap it for in-memory pipes.
type PortOpener func(address string, rate int) (io.ReadWriteCloser, error)

// Recorder receives transport level counters.
type Recorder interface {
	DecodeFailed()
	ReadFailed()
}

type Options struct {
	Opener     PortOpener
	Simulation simulation.Options
	Recorder   Recorder
}

// Manager selects a Transport once, in Configure, and owns it until Close.
type Manager struct {
	opts Options

	mu        sync.RWMutex
	transport Transport
	mode      Mode
	closed    bool
	lastError error
}
