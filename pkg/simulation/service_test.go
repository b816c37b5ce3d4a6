package simulation

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"
)

func TestNodeSignalRelations(t *testing.T) {
	node := NewNode(1, rand.New(rand.NewPCG(7, 1)))
	if node.PhaseOffset < 0 || node.PhaseOffset >= 2*math.Pi {
		t.Fatalf("phase offset out of range: %v", node.PhaseOffset)
	}

	for i := 0; i < 500; i++ {
		r := node.Next()
		if r.NodeID != 1 {
			t.Fatalf("expected node 1, got %d", r.NodeID)
		}
		// Inputs are rounded before the comparison, so allow a few cents of drift.
		if want := r.ProbeTemp - (100-r.Humidity)/5; math.Abs(r.DewPoint-want) > 0.02 {
			t.Fatalf("dew point %v does not match derived %v", r.DewPoint, want)
		}
		if r.AmbientTemp < 19 || r.AmbientTemp > 25 {
			t.Fatalf("ambient temp out of range: %v", r.AmbientTemp)
		}
		if r.Humidity < 35 || r.Humidity > 55 {
			t.Fatalf("humidity out of range: %v", r.Humidity)
		}
		if r.Light < 150 || r.Light > 450 {
			t.Fatalf("light out of range: %v", r.Light)
		}
		if r.Battery < 70 || r.Battery > 90 {
			t.Fatalf("battery out of range: %v", r.Battery)
		}
		if r.Acceleration < 0.05 || r.Acceleration > 0.55 {
			t.Fatalf("acceleration out of range: %v", r.Acceleration)
		}
		if r.AmbientTemp != math.Round(r.AmbientTemp*100)/100 {
			t.Fatalf("ambient temp not rounded to 2 places: %v", r.AmbientTemp)
		}
	}
	if node.SampleCounter != 500 {
		t.Fatalf("expected sample counter 500, got %d", node.SampleCounter)
	}
}

func TestSeededNodesAreReproducible(t *testing.T) {
	a := NewNode(2, rand.New(rand.NewPCG(42, 2)))
	b := NewNode(2, rand.New(rand.NewPCG(42, 2)))
	for i := 0; i < 10; i++ {
		if ra, rb := a.Next(), b.Next(); ra != rb {
			t.Fatalf("sample %d differs: %+v vs %+v", i, ra, rb)
		}
	}
}

func TestEngineEmitsFromEveryNode(t *testing.T) {
	engine := NewEngine(Options{Interval: 20 * time.Millisecond, Jitter: 5 * time.Millisecond})
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer engine.Stop()

	seen := map[int]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < len(DefaultNodeIDs) {
		select {
		case r := <-engine.Readings():
			if r.NodeID < 0 || r.NodeID > 2 {
				t.Fatalf("unexpected node id %d", r.NodeID)
			}
			seen[r.NodeID] = true
		case <-deadline:
			t.Fatalf("only saw nodes %v", seen)
		}
	}
}

func TestEngineStartTwice(t *testing.T) {
	engine := NewEngine(Options{})
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer engine.Stop()

	if err := engine.Start(context.Background()); err != ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestEngineStopIsPromptAndIdempotent(t *testing.T) {
	engine := NewEngine(Options{})
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Nodes are asleep for ~10s after their first tick.
	time.Sleep(50 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		engine.Stop()
		engine.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop did not return")
	}
	if engine.Running() {
		t.Fatalf("engine still running after stop")
	}

	for len(engine.Readings()) > 0 {
		<-engine.Readings()
	}
	time.Sleep(50 * time.Millisecond)
	if n := engine.QueueLength(); n != 0 {
		t.Fatalf("expected no readings after stop, got %d", n)
	}
}

func TestEngineDropsOldestWhenFull(t *testing.T) {
	engine := NewEngine(Options{NodeIDs: []int{5}, Interval: time.Millisecond, QueueCapacity: 2, Seed: 1})
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	engine.Stop()

	if engine.Dropped() == 0 {
		t.Fatalf("expected dropped readings")
	}
	if n := engine.QueueLength(); n > 2 {
		t.Fatalf("queue exceeded capacity: %d", n)
	}

	first := <-engine.Readings()
	second := <-engine.Readings()
	if first.NodeID != 5 || second.NodeID != 5 {
		t.Fatalf("unexpected node ids %d %d", first.NodeID, second.NodeID)
	}
}

func TestEngineStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	engine := NewEngine(Options{NodeIDs: []int{0}, Interval: 5 * time.Millisecond})
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	time.Sleep(30 * time.Millisecond)
	for len(engine.Readings()) > 0 {
		<-engine.Readings()
	}
	time.Sleep(30 * time.Millisecond)
	if n := engine.QueueLength(); n != 0 {
		t.Fatalf("expected node to stop with parent context, got %d readings", n)
	}
	engine.Stop()
}

func TestDefaultTickIntervalIsJittered(t *testing.T) {
	engine := NewEngine(Options{})
	if engine.opts.Jitter != DefaultJitter {
		t.Fatalf("expected default jitter %v, got %v", DefaultJitter, engine.opts.Jitter)
	}

	rng := rand.New(rand.NewPCG(3, 0))
	distinct := map[time.Duration]bool{}
	for i := 0; i < 200; i++ {
		d := engine.nextInterval(rng)
		if d < 8*time.Second || d > 12*time.Second {
			t.Fatalf("interval %v outside [8s, 12s]", d)
		}
		distinct[d] = true
	}
	if len(distinct) < 2 {
		t.Fatalf("intervals are not jittered: %v", distinct)
	}
}

func TestNegativeJitterDisablesIt(t *testing.T) {
	engine := NewEngine(Options{Interval: time.Second, Jitter: -1})
	rng := rand.New(rand.NewPCG(3, 0))
	for i := 0; i < 20; i++ {
		if d := engine.nextInterval(rng); d != time.Second {
			t.Fatalf("expected fixed 1s interval, got %v", d)
		}
	}
}
