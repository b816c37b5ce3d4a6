package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimulationSource reports the simulator queue; see transport.Manager.
type SimulationSource interface {
	SimulationStats() (queued int, dropped uint64, ok bool)
}

// Collector instruments the acquisition core on its own registry.
type Collector struct {
	registry *prometheus.Registry

	readings       *prometheus.CounterVec
	lastReading    *prometheus.GaugeVec
	errors         prometheus.Counter
	decodeFailures prometheus.Counter
	readFailures   prometheus.Counter

	sourceMu sync.RWMutex
	source   SimulationSource
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_readings_total",
			Help: "Readings published to subscribers, per node.",
		}, []string{"node_id"}),
		lastReading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "telemetry_last_reading_timestamp_seconds",
			Help: "Unix time of the latest reading, per node.",
		}, []string{"node_id"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_error_events_total",
			Help: "Error events emitted by the acquisition worker.",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_decode_failures_total",
			Help: "Wire records that could not be decoded.",
		}),
		readFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_read_failures_total",
			Help: "Serial reads that failed with something other than a timeout.",
		}),
	}

	queueLength := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "telemetry_simulation_queue_length",
		Help: "Simulated readings waiting to be received.",
	}, func() float64 {
		queued, _, _ := c.simulationStats()
		return float64(queued)
	})
	dropped := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "telemetry_simulation_dropped_total",
		Help: "Simulated readings evicted from a full queue.",
	}, func() float64 {
		_, n, _ := c.simulationStats()
		return float64(n)
	})

	c.registry.MustRegister(
		c.readings, c.lastReading, c.errors, c.decodeFailures, c.readFailures,
		queueLength, dropped,
	)
	return c
}

// BindSimulation attaches the source behind the simulation queue metrics.
func (c *Collector) BindSimulation(source SimulationSource) {
	c.sourceMu.Lock()
	defer c.sourceMu.Unlock()
	c.source = source
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ReadingPublished(reading types.Reading) {
	node := strconv.Itoa(reading.NodeID)
	c.readings.WithLabelValues(node).Inc()
	c.lastReading.WithLabelValues(node).Set(float64(time.Now().Unix()))
}

func (c *Collector) ErrorEmitted() {
	c.errors.Inc()
}

func (c *Collector) DecodeFailed() {
	c.decodeFailures.Inc()
}

func (c *Collector) ReadFailed() {
	c.readFailures.Inc()
}

func (c *Collector) simulationStats() (int, uint64, bool) {
	c.sourceMu.RLock()
	defer c.sourceMu.RUnlock()
	if c.source == nil {
		return 0, 0, false
	}
	return c.source.SimulationStats()
}
