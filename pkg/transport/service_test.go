package transport

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/simulation"
)

type countingRecorder struct {
	decode atomic.Int32
	read   atomic.Int32
}

func (r *countingRecorder) DecodeFailed() { r.decode.Add(1) }
func (r *countingRecorder) ReadFailed()   { r.read.Add(1) }

func TestUseBeforeConfigureFails(t *testing.T) {
	m := NewManager(Options{})
	ctx := context.Background()

	if _, _, err := m.Receive(ctx); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed from Receive, got %v", err)
	}
	if _, err := m.SendText("ping"); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed from SendText, got %v", err)
	}
	if _, err := m.ReceiveText(); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed from ReceiveText, got %v", err)
	}
	if m.Mode() != ModeUnconfigured {
		t.Fatalf("expected unconfigured mode, got %s", m.Mode())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	m := NewManager(Options{})
	if err := m.Close(); err != nil {
		t.Fatalf("close on unconfigured manager: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if m.Configure(SimulationAddress, SimulationRate) {
		t.Fatalf("configure after close should be rejected")
	}
}

func TestSimulationModeDeliversReadings(t *testing.T) {
	m := NewManager(Options{})
	if !m.Configure(SimulationAddress, SimulationRate) {
		t.Fatalf("simulation configure must succeed")
	}
	defer m.Close()

	if m.Mode() != ModeSimulation {
		t.Fatalf("expected simulation mode, got %s", m.Mode())
	}

	for attempt := 0; attempt < 12; attempt++ {
		reading, ok, err := m.Receive(context.Background())
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if !ok {
			continue
		}
		if reading.NodeID < 0 || reading.NodeID > 2 {
			t.Fatalf("unexpected node id %d", reading.NodeID)
		}
		return
	}
	t.Fatalf("no simulated reading within 12 receives")
}

func TestSimulationReceiveTimesOutEmpty(t *testing.T) {
	m := NewManager(Options{Simulation: simulation.Options{NodeIDs: []int{9}}})
	if !m.Configure(SimulationAddress, SimulationRate) {
		t.Fatalf("simulation configure must succeed")
	}
	defer m.Close()

	// Drain the first tick; the next is ~10s away.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok, _ := m.Receive(context.Background()); ok {
			break
		}
	}

	start := time.Now()
	_, ok, err := m.Receive(context.Background())
	if err != nil || ok {
		t.Fatalf("expected empty result, got ok=%v err=%v", ok, err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond || elapsed > 2*time.Second {
		t.Fatalf("expected ~1s timeout, took %v", elapsed)
	}

	queued, _, isSim := m.SimulationStats()
	if !isSim || queued != 0 {
		t.Fatalf("unexpected simulation stats queued=%d sim=%v", queued, isSim)
	}
}

func TestSimulationTextChannel(t *testing.T) {
	m := NewManager(Options{})
	m.Configure(SimulationAddress, SimulationRate)
	defer m.Close()

	if ok, err := m.SendText("LED ON"); !ok || err != nil {
		t.Fatalf("simulated send should succeed, got %v %v", ok, err)
	}
	if text, err := m.ReceiveText(); err != nil || text != SimulatedTextReply {
		t.Fatalf("unexpected simulated reply %q %v", text, err)
	}
}

func TestReceiveAfterCloseFails(t *testing.T) {
	m := NewManager(Options{})
	m.Configure(SimulationAddress, SimulationRate)
	m.Close()

	if _, _, err := m.Receive(context.Background()); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
	if _, err := m.SendText("x"); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
}

func TestConfigureOnlyOnce(t *testing.T) {
	port := newFakePort()
	m := NewManager(Options{Opener: openerFor(port)})
	if !m.Configure("/dev/ttyUSB0", 115200) {
		t.Fatalf("expected real configure to succeed")
	}
	defer m.Close()

	if m.Configure(SimulationAddress, SimulationRate) {
		t.Fatalf("mode must not switch mid-session")
	}
	if m.Mode() != ModeReal {
		t.Fatalf("expected real mode, got %s", m.Mode())
	}
}

func TestConfigureRealFailure(t *testing.T) {
	openErr := errors.New("no such device")
	m := NewManager(Options{Opener: func(string, int) (io.ReadWriteCloser, error) {
		return nil, openErr
	}})

	if m.Configure("COM7", 115200) {
		t.Fatalf("expected configure to fail")
	}

	var cfgErr *ConfigurationError
	if !errors.As(m.LastError(), &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", m.LastError())
	}
	if cfgErr.Address != "COM7" || cfgErr.Rate != 115200 || !errors.Is(cfgErr, openErr) {
		t.Fatalf("unexpected configuration error: %+v", cfgErr)
	}
	if _, _, err := m.Receive(context.Background()); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed after failed configure, got %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close after failed configure: %v", err)
	}
}

func TestRealMalformedLineThenValid(t *testing.T) {
	port := newFakePort()
	recorder := &countingRecorder{}
	m := NewManager(Options{Opener: openerFor(port), Recorder: recorder})
	m.Configure("/dev/ttyUSB0", 115200)
	defer m.Close()

	port.feed("{not json\n{\"id\":2,\"ta\":21.5,\"bat\":90}\n")

	_, ok, err := m.Receive(context.Background())
	if err != nil || ok {
		t.Fatalf("malformed line should give empty result, got ok=%v err=%v", ok, err)
	}
	if recorder.decode.Load() != 1 {
		t.Fatalf("expected 1 decode failure, got %d", recorder.decode.Load())
	}

	reading, ok, err := m.Receive(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected reading, got ok=%v err=%v", ok, err)
	}
	if reading.NodeID != 2 || reading.AmbientTemp != 21.5 || reading.Battery != 90 || reading.Humidity != -255 {
		t.Fatalf("unexpected reading %+v", reading)
	}
}

func TestRealTimeoutAndPartialLine(t *testing.T) {
	port := newFakePort()
	m := NewManager(Options{Opener: openerFor(port)})
	m.Configure("/dev/ttyUSB0", 115200)
	defer m.Close()

	if _, ok, err := m.Receive(context.Background()); ok || err != nil {
		t.Fatalf("idle port should give empty result, got ok=%v err=%v", ok, err)
	}

	port.feed(`{"id":1,`)
	if _, ok, err := m.Receive(context.Background()); ok || err != nil {
		t.Fatalf("partial line should give empty result, got ok=%v err=%v", ok, err)
	}

	port.feed("\"h\":40.5}\n")
	reading, ok, err := m.Receive(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected completed line, got ok=%v err=%v", ok, err)
	}
	if reading.NodeID != 1 || reading.Humidity != 40.5 {
		t.Fatalf("unexpected reading %+v", reading)
	}
}

func TestRealEmptyLine(t *testing.T) {
	port := newFakePort()
	m := NewManager(Options{Opener: openerFor(port)})
	m.Configure("/dev/ttyUSB0", 115200)
	defer m.Close()

	port.feed("\r\n")
	if _, ok, err := m.Receive(context.Background()); ok || err != nil {
		t.Fatalf("empty line should give empty result, got ok=%v err=%v", ok, err)
	}
}

func TestRealTextChannel(t *testing.T) {
	port := newFakePort()
	m := NewManager(Options{Opener: openerFor(port)})
	m.Configure("/dev/ttyUSB0", 115200)

	if ok, err := m.SendText("STATUS\n"); !ok || err != nil {
		t.Fatalf("send failed: %v %v", ok, err)
	}
	if got := port.writtenString(); got != "STATUS\n" {
		t.Fatalf("unexpected bytes written %q", got)
	}

	port.feed("OK 3 nodes\r\n")
	if text, err := m.ReceiveText(); err != nil || text != "OK 3 nodes" {
		t.Fatalf("unexpected text %q %v", text, err)
	}
	if text, err := m.ReceiveText(); err != nil || text != "" {
		t.Fatalf("expected empty text on timeout, got %q %v", text, err)
	}

	m.Close()
	if !port.isClosed() {
		t.Fatalf("expected port to be closed")
	}
}

func TestConnectionConfig(t *testing.T) {
	if !SimulationConfig().IsSimulation() {
		t.Fatalf("reserved pair must select simulation")
	}
	for _, cfg := range []ConnectionConfig{
		{Address: "-1", Rate: 115200},
		{Address: "/dev/ttyUSB0", Rate: -1},
		{Address: "COM7", Rate: 115200},
	} {
		if cfg.IsSimulation() {
			t.Fatalf("%+v must select real hardware", cfg)
		}
	}
}
