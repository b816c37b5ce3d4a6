package simulation

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval      = 10 * time.Second
	DefaultJitter        = 2 * time.Second
	DefaultQueueCapacity = 1024
)

var DefaultNodeIDs = []int{0, 1, 2}

var ErrAlreadyRunning = errors.New("simulation already running")

type Options struct {
	NodeIDs  []int
	Interval time.Duration
	// Zero means DefaultJitter, negative disables jitter.
	Jitter time.Duration
	// Readings beyond this many unconsumed ones evict the oldest.
	QueueCapacity int
	// Non-zero seeds make every node's signal reproducible.
	Seed uint64
}

// Node is the runtime state of one synthetic sensor.
// It exists only while the engine runs.
type Node struct {
	ID            int
	PhaseOffset   float64
	SampleCounter int

	rng *rand.Rand
}

// Engine runs one generator goroutine per node, all feeding a single channel.
type Engine struct {
	opts     Options
	readings chan types.Reading
	dropped  atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
	nodes  []*Node
}
