package transport

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/simulation"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
)

type simulatedTransport struct {
	engine    *simulation.Engine
	done      chan struct{}
	closeOnce sync.Once
}

func newSimulatedTransport(engine *simulation.Engine) (*simulatedTransport, error) {
	if err := engine.Start(context.Background()); err != nil {
		return nil, err
	}
	return &simulatedTransport{
		engine: engine,
		done:   make(chan struct{}),
	}, nil
}

func (t *simulatedTransport) Receive(ctx context.Context) (types.Reading, bool, error) {
	timer := time.NewTimer(ReadTimeout)
	defer timer.Stop()

	select {
	case reading := <-t.engine.Readings():
		return reading, true, nil
	case <-timer.C:
		return types.Reading{}, false, nil
	case <-t.done:
		return types.Reading{}, false, ErrTransportClosed
	case <-ctx.Done():
		return types.Reading{}, false, ctx.Err()
	}
}

func (t *simulatedTransport) SendText(msg string) (bool, error) {
	log.Printf("[SIMULATION] Sending: %s", msg)
	return true, nil
}

func (t *simulatedTransport) ReceiveText() (string, error) {
	return SimulatedTextReply, nil
}

func (t *simulatedTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.engine.Stop()
	})
	return nil
}

// Engine exposes the simulator for queue statistics.
func (t *simulatedTransport) Engine() *simulation.Engine {
	return t.engine
}
