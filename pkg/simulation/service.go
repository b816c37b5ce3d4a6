package simulation

import (
	"context"
	"log"
	"math"
	"math/rand/v2"
	"time"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
	"golang.org/x/sync/errgroup"
)

func NewEngine(opts Options) *Engine {
	if len(opts.NodeIDs) == 0 {
		opts.NodeIDs = DefaultNodeIDs
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Jitter == 0 {
		opts.Jitter = DefaultJitter
	}
	if opts.Jitter < 0 || opts.Jitter >= opts.Interval {
		opts.Jitter = 0
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}

	return &Engine{
		opts:     opts,
		readings: make(chan types.Reading, opts.QueueCapacity),
	}
}

// NewNode draws the node's phase offset once, uniform over [0, 2π).
func NewNode(id int, rng *rand.Rand) *Node {
	return &Node{
		ID:          id,
		PhaseOffset: rng.Float64() * 2 * math.Pi,
		rng:         rng,
	}
}

// Next computes the node's next sample and advances its counter.
func (n *Node) Next() types.Reading {
	phase := n.PhaseOffset + float64(n.SampleCounter)*0.1
	n.SampleCounter++

	ambient := 22 + 3*math.Sin(phase)
	probe := ambient + 2 + 0.5*math.Sin(phase+1.5)
	humidity := 45 + 10*math.Sin(phase-1)
	light := 300 + 150*math.Sin(phase+0.5)
	dewPoint := probe - (100-humidity)/5
	battery := 80 + 10*math.Sin(phase/2)
	accel := 0.3 + 0.2*math.Sin(phase*3.1+float64(n.ID)) + (n.rng.Float64()*0.1 - 0.05)

	return types.Reading{
		NodeID:       n.ID,
		AmbientTemp:  round(ambient, 2),
		ProbeTemp:    round(probe, 2),
		Humidity:     round(humidity, 2),
		Light:        round(light, 2),
		DewPoint:     round(dewPoint, 2),
		Battery:      round(battery, 2),
		Acceleration: round(accel, 3),
	}
}

// Start launches every node. Nodes emit their first sample immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	e.cancel = cancel
	e.group = group
	e.nodes = make([]*Node, 0, len(e.opts.NodeIDs))

	for _, id := range e.opts.NodeIDs {
		node := NewNode(id, e.newRand(id))
		e.nodes = append(e.nodes, node)
		group.Go(func() error {
			return e.runNode(ctx, node)
		})
	}

	log.Printf("Simulation started with %d nodes", len(e.nodes))
	return nil
}

// Stop cancels all nodes and waits for them to exit. Safe to call repeatedly.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, group := e.cancel, e.group
	e.cancel, e.group, e.nodes = nil, nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if err := group.Wait(); err != nil {
		log.Printf("Simulation node exited with error: %v", err)
	}
	log.Println("Simulation stopped")
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

// Readings is the receive side of the queue shared by all nodes.
func (e *Engine) Readings() <-chan types.Reading {
	return e.readings
}

// Dropped is the number of readings evicted because nobody consumed them.
func (e *Engine) Dropped() uint64 {
	return e.dropped.Load()
}

func (e *Engine) QueueLength() int {
	return len(e.readings)
}

func (e *Engine) runNode(ctx context.Context, node *Node) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		e.publish(node.Next())
		timer.Reset(e.nextInterval(node.rng))
	}
}

// publish never blocks: a full queue drops its oldest reading.
func (e *Engine) publish(reading types.Reading) {
	for {
		select {
		case e.readings <- reading:
			return
		default:
		}

		select {
		case <-e.readings:
			e.dropped.Add(1)
		default:
		}
	}
}

func (e *Engine) nextInterval(rng *rand.Rand) time.Duration {
	offset := (rng.Float64()*2 - 1) * float64(e.opts.Jitter)
	return e.opts.Interval + time.Duration(offset)
}

func (e *Engine) newRand(id int) *rand.Rand {
	if e.opts.Seed != 0 {
		return rand.New(rand.NewPCG(e.opts.Seed, uint64(id)))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
