package acquisition

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/transport"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultErrorBackoff = 500 * time.Millisecond
)

var (
	ErrWorkerStopped = errors.New("worker already stopped")
	ErrWorkerStarted = errors.New("worker already started")
)

type State int32

const (
	StateIdle State = iota
	StateConfiguring
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Subscriber receives worker events on the worker goroutine.
// Either callback may be nil. Callbacks must not call Worker.Stop directly,
// it waits for the worker goroutine; use `go w.Stop()` instead.
type Subscriber struct {
	OnData  func(reading types.Reading)
	OnError func(message string)
}

type Recorder interface {
	ReadingPublished(reading types.Reading)
	ErrorEmitted()
}

type Options struct {
	Connection   transport.ConnectionConfig
	Transport    transport.Options
	PollInterval time.Duration
	ErrorBackoff time.Duration
	Recorder     Recorder
}

type subscription struct {
	id  uint64
	sub Subscriber
}

// Worker polls a transport from its own goroutine and fans readings out
// to subscribers.
type Worker struct {
	opts    Options
	manager *transport.Manager
	state   atomic.Int32

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}

	subsMu sync.RWMutex
	subs   []subscription
	nextID uint64
}
