package transport

import (
	"context"
	"log"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/simulation"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
)

func NewManager(opts Options) *Manager {
	if opts.Opener == nil {
		opts.Opener = OpenSerialPort
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Manager{opts: opts}
}

// Configure selects simulation for the reserved (-1, -1) pair and real
// hardware otherwise. Failures are logged and reported as false.
// A manager is configured at most once.
func (m *Manager) Configure(address string, rate int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.transport != nil {
		log.Printf("Transport already configured or closed, ignoring %s@%d", address, rate)
		return false
	}

	if (ConnectionConfig{Address: address, Rate: rate}).IsSimulation() {
		log.Println("Simulation mode enabled")
		engine := simulation.NewEngine(m.opts.Simulation)
		t, err := newSimulatedTransport(engine)
		if err != nil {
			m.lastError = err
			log.Printf("Failed to start simulation: %v", err)
			return false
		}
		m.transport = t
		m.mode = ModeSimulation
		return true
	}

	port, err := m.opts.Opener(address, rate)
	if err != nil {
		m.lastError = &ConfigurationError{Address: address, Rate: rate, Err: err}
		log.Printf("Failed to open serial port %s: %v", address, err)
		return false
	}

	m.transport = newRealTransport(port, m.opts.Recorder)
	m.mode = ModeReal
	log.Printf("Connected to sensor gateway on %s", address)
	return true
}

// Receive waits up to ReadTimeout for one reading.
func (m *Manager) Receive(ctx context.Context) (types.Reading, bool, error) {
	t, err := m.active()
	if err != nil {
		return types.Reading{}, false, err
	}
	return t.Receive(ctx)
}

func (m *Manager) SendText(msg string) (bool, error) {
	t, err := m.active()
	if err != nil {
		return false, err
	}
	return t.SendText(msg)
}

func (m *Manager) ReceiveText() (string, error) {
	t, err := m.active()
	if err != nil {
		return "", err
	}
	return t.ReceiveText()
}

// Close stops the simulator or closes the serial port. Safe to call repeatedly
// and on a manager that was never configured.
func (m *Manager) Close() error {
	m.mu.Lock()
	t := m.transport
	m.transport = nil
	m.closed = true
	m.mu.Unlock()

	if t == nil {
		return nil
	}
	return t.Close()
}

func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// LastError is the reason of the most recent failed Configure.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

func (m *Manager) active() (Transport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed || m.transport == nil {
		return nil, ErrTransportClosed
	}
	return m.transport, nil
}

type nopRecorder struct{}

func (nopRecorder) DecodeFailed() {}
func (nopRecorder) ReadFailed()   {}

// SimulationStats reports the simulator queue. ok is false outside simulation mode.
func (m *Manager) SimulationStats() (queued int, dropped uint64, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sim, isSim := m.transport.(*simulatedTransport)
	if !isSim {
		return 0, 0, false
	}
	return sim.Engine().QueueLength(), sim.Engine().Dropped(), true
}
