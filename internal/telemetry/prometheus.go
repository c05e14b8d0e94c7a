package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()
	once     sync.Once
)

func counterFunc(name, help string, c *Counter) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "sniper",
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(c.Value()) })
}

func gaugeFunc(name, help string, fn func() float64) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sniper",
		Name:      name,
		Help:      help,
	}, fn)
}

// Registry exposes the registry the Metrics struct is exported through.
func Registry() *prometheus.Registry {
	registerOnce()
	return registry
}

func registerOnce() {
	once.Do(func() {
		registry.MustRegister(
			prometheus.NewGoCollector(),
			counterFunc("runs_started_total", "Sequencer runs started.", &Metrics.RunsStarted),
			counterFunc("runs_succeeded_total", "Runs that reached SELL_CONFIRMED.", &Metrics.RunsSucceeded),
			counterFunc("runs_failed_total", "Runs that ended in FAILED.", &Metrics.RunsFailed),
			counterFunc("orders_sent_total", "Orders accepted by the exchange.", &Metrics.OrdersSent),
			counterFunc("order_errors_total", "Order placements that failed.", &Metrics.OrderErrors),
			counterFunc("exchange_calls_total", "HTTP round trips to the exchange.", &Metrics.ExchangeCalls),
			gaugeFunc("open_positions", "Confirmed buys without a confirmed take-profit.",
				func() float64 { return float64(Metrics.OpenPositions.Value()) }),
			gaugeFunc("listings_scheduled", "Listings armed in the scheduler.",
				func() float64 { return float64(Metrics.ListingsScheduled.Value()) }),
			gaugeFunc("round_trip_p50_seconds", "Median exchange round trip.",
				func() float64 { return Metrics.RoundTripLatency.P50().Seconds() }),
			gaugeFunc("round_trip_p99_seconds", "p99 exchange round trip.",
				func() float64 { return Metrics.RoundTripLatency.P99().Seconds() }),
		)
	})
}

// Handler exposes the Prometheus metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}
