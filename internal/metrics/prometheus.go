package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "perennial_dash"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry            *prometheus.Registry
	marketFetches       prometheus.Counter
	marketFetchFailures prometheus.Counter
	orderFetchFailures  prometheus.Counter
	approvals           prometheus.Counter
	ordersSubmitted     prometheus.Counter
	ordersFailed        prometheus.Counter
	priceUpdates        prometheus.Counter
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	p := &Prometheus{
		registry:            registry,
		marketFetches:       newCounter("market_fetches_total", "Total number of market snapshot fetches."),
		marketFetchFailures: newCounter("market_fetch_failures_total", "Total number of failed market snapshot fetches."),
		orderFetchFailures:  newCounter("order_fetch_failures_total", "Total number of failed open-order queries."),
		approvals:           newCounter("approvals_total", "Total number of collateral approvals sent."),
		ordersSubmitted:     newCounter("orders_submitted_total", "Total number of limit orders submitted."),
		ordersFailed:        newCounter("orders_failed_total", "Total number of limit order submission failures."),
		priceUpdates:        newCounter("price_updates_total", "Total number of accepted price feed updates."),
	}
	registry.MustRegister(
		p.marketFetches,
		p.marketFetchFailures,
		p.orderFetchFailures,
		p.approvals,
		p.ordersSubmitted,
		p.ordersFailed,
		p.priceUpdates,
	)
	p.Metrics = &Metrics{
		MarketFetches:       promCounter{p.marketFetches},
		MarketFetchFailures: promCounter{p.marketFetchFailures},
		OrderFetchFailures:  promCounter{p.orderFetchFailures},
		Approvals:           promCounter{p.approvals},
		OrdersSubmitted:     promCounter{p.ordersSubmitted},
		OrdersFailed:        promCounter{p.ordersFailed},
		PriceUpdates:        promCounter{p.priceUpdates},
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
