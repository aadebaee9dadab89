package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	MarketFetches       Counter
	MarketFetchFailures Counter
	OrderFetchFailures  Counter
	Approvals           Counter
	OrdersSubmitted     Counter
	OrdersFailed        Counter
	PriceUpdates        Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		MarketFetches:       n,
		MarketFetchFailures: n,
		OrderFetchFailures:  n,
		Approvals:           n,
		OrdersSubmitted:     n,
		OrdersFailed:        n,
		PriceUpdates:        n,
	}
}
