// Telemetry wires the same per-provider concerns as the teacher's
// providers/guards/telemetry.go hand-rolled atomic counters (cache
// hit/miss, request/success/failure, rate limits, circuit opens, backoffs,
// latency) onto real prometheus client_golang collectors instead of a
// hand-rolled CSV exporter.
package resilience

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signalwatch_provider_cache_hits_total",
		Help: "Price cache hits per provider chain.",
	}, []string{"provider"})

	cacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signalwatch_provider_cache_misses_total",
		Help: "Price cache misses per provider chain.",
	}, []string{"provider"})

	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signalwatch_provider_requests_total",
		Help: "Provider calls attempted, labeled by outcome (success|failure).",
	}, []string{"provider", "outcome"})

	rateLimitWaits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signalwatch_provider_rate_limit_waits_total",
		Help: "Times a provider was skipped because waiting on its token bucket failed.",
	}, []string{"provider"})

	circuitOpens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signalwatch_provider_circuit_opens_total",
		Help: "Circuit breaker open-state rejections per provider.",
	}, []string{"provider"})

	backoffRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signalwatch_provider_backoff_retries_total",
		Help: "Retry attempts taken after a transient failure, per provider.",
	}, []string{"provider"})

	requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signalwatch_provider_request_duration_seconds",
		Help:    "Provider call latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
)

// Telemetry is a thin per-provider facade over the package-level collectors,
// registered once into a prometheus.Registerer at startup.
type Telemetry struct {
	provider string
}

func NewTelemetry(provider string) *Telemetry {
	return &Telemetry{provider: provider}
}

// Register adds every collector to reg. Safe to call once per process;
// callers registering a second Telemetry for a different provider do not
// need to call this again since the collectors are shared and labeled.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{cacheHits, cacheMisses, requestsTotal, rateLimitWaits, circuitOpens, backoffRetries, requestLatency} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func (t *Telemetry) RecordCacheHit()  { cacheHits.WithLabelValues(t.provider).Inc() }
func (t *Telemetry) RecordCacheMiss() { cacheMisses.WithLabelValues(t.provider).Inc() }

func (t *Telemetry) RecordSuccess(latency time.Duration) {
	requestsTotal.WithLabelValues(t.provider, "success").Inc()
	requestLatency.WithLabelValues(t.provider).Observe(latency.Seconds())
}

func (t *Telemetry) RecordFailure(latency time.Duration) {
	requestsTotal.WithLabelValues(t.provider, "failure").Inc()
	requestLatency.WithLabelValues(t.provider).Observe(latency.Seconds())
}

func (t *Telemetry) RecordRateLimitWait() { rateLimitWaits.WithLabelValues(t.provider).Inc() }
func (t *Telemetry) RecordCircuitOpen()   { circuitOpens.WithLabelValues(t.provider).Inc() }
func (t *Telemetry) RecordBackoffRetry()  { backoffRetries.WithLabelValues(t.provider).Inc() }
