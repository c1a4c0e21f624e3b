package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Collector exposes engine and publisher activity to prometheus,
// through its own registry.
type Collector struct {
	reg *prometheus.Registry

	Loads        *prometheus.CounterVec // result label: ok|error
	LoadDuration prometheus.Histogram

	Searches       prometheus.Counter
	SearchMatches  prometheus.Histogram
	SearchDuration prometheus.Histogram

	ActiveSessions   prometheus.Gauge
	SessionsStarted  prometheus.Counter
	SessionsFinished prometheus.Counter
	SessionsStopped  prometheus.Counter
	TickDuration     prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	SpeedMultiplier prometheus.Gauge
	TickInterval    prometheus.Gauge // seconds
}

func NewCollector(speedMultiplier float64, tickInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "findbus_loads_total",
			Help: "Dataset loads, by result.",
		}, []string{"result"}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "findbus_load_duration_seconds",
			Help:    "Time to fetch, parse and index the datasets.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		Searches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "findbus_searches_total",
			Help: "Total trip searches.",
		}),
		SearchMatches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "findbus_search_matches",
			Help:    "Number of trips matched per search.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "findbus_search_duration_seconds",
			Help:    "Duration of trip searches.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "findbus_active_sessions",
			Help: "Number of simulations currently ticking.",
		}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "findbus_sessions_started_total",
			Help: "Total simulations started.",
		}),
		SessionsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "findbus_sessions_finished_total",
			Help: "Total simulations run to the end of their trip.",
		}),
		SessionsStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "findbus_sessions_stopped_total",
			Help: "Total simulations stopped or replaced before finishing.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "findbus_tick_duration_seconds",
			Help:    "Duration of simulation ticks, including sinks.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 15),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "findbus_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "findbus_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "findbus_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "findbus_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		SpeedMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "findbus_speed_multiplier",
			Help: "Simulation speed multiplier.",
		}),
		TickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "findbus_tick_interval_seconds",
			Help: "Simulation tick interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.Loads, c.LoadDuration,
		c.Searches, c.SearchMatches, c.SearchDuration,
		c.ActiveSessions, c.SessionsStarted, c.SessionsFinished, c.SessionsStopped, c.TickDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.SpeedMultiplier, c.TickInterval,
	)

	c.SpeedMultiplier.Set(speedMultiplier)
	c.TickInterval.Set(tickInterval.Seconds())

	return c
}

func (c *Collector) LoadObserve(d time.Duration, err error) {
	c.LoadDuration.Observe(d.Seconds())
	if err != nil {
		c.Loads.WithLabelValues("error").Inc()
		return
	}
	c.Loads.WithLabelValues("ok").Inc()
}

func (c *Collector) SearchObserve(d time.Duration, matches int) {
	c.Searches.Inc()
	c.SearchMatches.Observe(float64(matches))
	c.SearchDuration.Observe(d.Seconds())
}

func (c *Collector) SessionStarted() {
	c.SessionsStarted.Inc()
	c.ActiveSessions.Set(1)
}

func (c *Collector) SessionFinished() {
	c.SessionsFinished.Inc()
	c.ActiveSessions.Set(0)
}

func (c *Collector) SessionStopped() {
	c.SessionsStopped.Inc()
	c.ActiveSessions.Set(0)
}

func (c *Collector) TickObserve(d time.Duration) {
	c.TickDuration.Observe(d.Seconds())
}

func (c *Collector) NATSPublishedInc()  { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) {
	c.PublishDuration.Observe(d.Seconds())
}
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("Serving metrics")
	return srv
}
