// Package metrics exports container events to Prometheus.
//
// Metric names are fixed and carry no per-container labels, so cardinality
// stays constant no matter how many containers a process creates.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/orbit/internal/container"
)

// Prometheus implements container.Metrics.
type Prometheus struct {
	submitted   prometheus.Counter
	completed   prometheus.Counter
	failed      prometheus.Counter
	dropped     prometheus.Counter
	pending     prometheus.Gauge
	reductions  prometheus.Counter
	posted      prometheus.Counter
	effectDrops prometheus.Counter
	subscribers prometheus.Gauge
}

var _ container.Metrics = (*Prometheus)(nil)

// New creates the collectors and registers them on reg.
// Panics if any collector is already registered on reg.
func New(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orbit_operations_submitted_total",
			Help: "Total operations accepted by Submit",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orbit_operations_completed_total",
			Help: "Total operations that returned without error",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orbit_operations_failed_total",
			Help: "Total operations that returned an error",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orbit_operations_dropped_total",
			Help: "Total operations skipped because only the first operation may run",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orbit_operations_pending",
			Help: "Operations admitted but not yet launched, as last reported",
		}),
		reductions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orbit_reductions_total",
			Help: "Total committed state reductions",
		}),
		posted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orbit_side_effects_posted_total",
			Help: "Total side effects placed in a buffer",
		}),
		effectDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orbit_side_effects_dropped_total",
			Help: "Total side effects discarded by a drop overflow policy",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orbit_state_subscribers",
			Help: "Active state stream subscribers across all containers",
		}),
	}

	reg.MustRegister(
		p.submitted, p.completed, p.failed, p.dropped, p.pending,
		p.reductions, p.posted, p.effectDrops, p.subscribers,
	)
	return p
}

func (p *Prometheus) OperationSubmitted()     { p.submitted.Inc() }
func (p *Prometheus) OperationCompleted()     { p.completed.Inc() }
func (p *Prometheus) OperationFailed()        { p.failed.Inc() }
func (p *Prometheus) OperationDropped()       { p.dropped.Inc() }
func (p *Prometheus) PendingOperations(n int) { p.pending.Set(float64(n)) }
func (p *Prometheus) Reduced()                { p.reductions.Inc() }
func (p *Prometheus) SideEffectPosted()       { p.posted.Inc() }
func (p *Prometheus) SideEffectDropped()      { p.effectDrops.Inc() }

func (p *Prometheus) SubscribersChanged(delta int) { p.subscribers.Add(float64(delta)) }

// Serve exposes g on addr under /metrics until the server fails.
// Returns the server so callers can shut it down.
func Serve(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
	return server
}
