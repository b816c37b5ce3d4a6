package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/transport"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
)

func NewWorker(opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = DefaultErrorBackoff
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	return &Worker{
		opts:    opts,
		manager: transport.NewManager(opts.Transport),
	}
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

// Transport gives access to the text channel and queue statistics.
func (w *Worker) Transport() *transport.Manager {
	return w.manager
}

// Subscribe registers sub and returns a func that removes it again.
func (w *Worker) Subscribe(sub Subscriber) (unsubscribe func()) {
	w.subsMu.Lock()
	w.nextID++
	id := w.nextID
	w.subs = append(w.subs, subscription{id: id, sub: sub})
	w.subsMu.Unlock()

	return func() {
		w.subsMu.Lock()
		defer w.subsMu.Unlock()
		for i, s := range w.subs {
			if s.id == id {
				w.subs = append(w.subs[:i:i], w.subs[i+1:]...)
				return
			}
		}
	}
}

// Start configures the transport and runs the polling loop in the background.
// A failed configuration is reported as an error event; the loop runs anyway.
func (w *Worker) Start() error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	switch w.State() {
	case StateIdle:
	case StateStopping, StateStopped:
		return ErrWorkerStopped
	default:
		return ErrWorkerStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.state.Store(int32(StateConfiguring))

	go w.run(ctx)
	return nil
}

// Stop ends the loop, closes the transport and waits for the loop to exit.
// No events are delivered once Stop returns. Safe to call repeatedly.
func (w *Worker) Stop() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	switch w.State() {
	case StateStopped:
		return
	case StateIdle:
		w.state.Store(int32(StateStopped))
		if err := w.manager.Close(); err != nil {
			log.Printf("Error closing transport: %v", err)
		}
		return
	}

	w.state.Store(int32(StateStopping))
	w.cancel()
	if err := w.manager.Close(); err != nil {
		log.Printf("Error closing transport: %v", err)
	}
	<-w.done
	w.state.Store(int32(StateStopped))
	log.Println("Acquisition worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	conn := w.opts.Connection
	if !w.manager.Configure(conn.Address, conn.Rate) {
		msg := fmt.Sprintf("could not configure serial port %s", conn.Address)
		if err := w.manager.LastError(); err != nil {
			msg = fmt.Sprintf("could not configure serial port: %v", err)
		}
		w.emitError(ctx, msg)
	}

	if !w.state.CompareAndSwap(int32(StateConfiguring), int32(StateRunning)) {
		return
	}
	log.Printf("Acquisition worker running (%s mode)", w.manager.Mode())

	for {
		delay := w.opts.PollInterval
		if err := w.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.emitError(ctx, fmt.Sprintf("serial read error: %v", err))
			delay = w.opts.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// poll performs one receive. Panics are turned into errors so the loop survives.
func (w *Worker) poll(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered from panic: %v", r)
		}
	}()

	reading, ok, err := w.manager.Receive(ctx)
	if err != nil {
		// Degraded after a failed configure: nothing to read.
		if errors.Is(err, transport.ErrTransportClosed) {
			return nil
		}
		return err
	}
	if ok {
		w.publish(ctx, reading)
	}
	return nil
}

func (w *Worker) publish(ctx context.Context, reading types.Reading) {
	if ctx.Err() != nil {
		return
	}
	w.opts.Recorder.ReadingPublished(reading)
	for _, s := range w.snapshot() {
		if s.sub.OnData == nil {
			continue
		}
		if err := deliver(func() { s.sub.OnData(reading) }); err != nil {
			log.Printf("Subscriber failed on reading from node %d: %v", reading.NodeID, err)
			w.emitError(ctx, fmt.Sprintf("subscriber failed: %v", err))
		}
	}
}

func (w *Worker) emitError(ctx context.Context, message string) {
	if ctx.Err() != nil {
		return
	}
	log.Printf("Acquisition error: %s", message)
	w.opts.Recorder.ErrorEmitted()
	for _, s := range w.snapshot() {
		if s.sub.OnError == nil {
			continue
		}
		if err := deliver(func() { s.sub.OnError(message) }); err != nil {
			log.Printf("Subscriber failed on error event: %v", err)
		}
	}
}

func (w *Worker) snapshot() []subscription {
	w.subsMu.RLock()
	defer w.subsMu.RUnlock()
	subs := make([]subscription, len(w.subs))
	copy(subs, w.subs)
	return subs
}

func deliver(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}

type nopRecorder struct{}

func (nopRecorder) ReadingPublished(types.Reading) {}
func (nopRecorder) ErrorEmitted()                  {}
