package metrics

import (
	"net/http"

	"github.com/Allenxuxu/toolkit/sync/atomic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultMetricsPath = "/metrics"

var (
	Enable atomic.Bool
	rg     = prometheus.NewRegistry()
)

var (
	LoopIterations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reactor_loop_iterations_total",
	})

	ActiveWatchers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reactor_active_watchers",
	}, []string{"kind"})

	PollDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reactor_poll_duration_microseconds",
		},
	)

	DispatchDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reactor_dispatch_duration_microseconds",
		},
	)
)

func PrometheusMustRegister(cs ...prometheus.Collector) {
	rg.MustRegister(cs...)
}

func MustRun(path, address string) {
	if path == "" {
		path = defaultMetricsPath
	}

	rg.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
		LoopIterations,
		ActiveWatchers,
		PollDuration,
		DispatchDuration,
	)

	Enable.Set(true)
	defer Enable.Set(false)

	http.Handle(path, promhttp.HandlerFor(rg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(address, nil); err != nil {
		panic(err)
	}
}
