package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	Allocations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skipay",
		Name:      "allocations_total",
		Help:      "Card requests by outcome.",
	}, []string{"outcome"})

	Settlements = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skipay",
		Name:      "settlements_total",
		Help:      "Trader confirmations by outcome.",
	}, []string{"outcome"})

	Swept = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skipay",
		Name:      "swept_transactions_total",
		Help:      "Transactions retired by the expiry sweeper, by resulting status.",
	}, []string{"status"})

	TradersDisabled = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skipay",
		Name:      "traders_disabled_total",
		Help:      "Traders forced out of work mode, by reason.",
	}, []string{"reason"})

	CapacityReleased = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "skipay",
		Name:      "capacity_released_total",
		Help:      "Card reservations returned after cancellation, expiry or failed creation.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
