package dashboard

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"perennial-dash/internal/data"
)

const errFetchMarkets = "Failed to fetch markets"

type MarketsView struct {
	Status  Status        `json:"status"`
	Markets []data.Market `json:"markets"`
	Error   string        `json:"error,omitempty"`
}

// MarketsCard lists markets. It loads on mount and on refresh.
type MarketsCard struct {
	loader  MarketsLoader
	log     *zap.Logger
	machine *Machine

	mu      sync.Mutex
	markets []data.Market
	err     string
}

func NewMarketsCard(loader MarketsLoader, log *zap.Logger) *MarketsCard {
	return &MarketsCard{loader: loader, log: log, machine: NewMachine()}
}

func (c *MarketsCard) Load(ctx context.Context) {
	c.machine.Apply(EventFetch)
	c.setErr("")
	markets, err := c.loader.FetchMarkets(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.log.Error("error fetching markets", zap.Error(err))
		c.setErr(errFetchMarkets)
		c.machine.Apply(EventFail)
		return
	}
	c.mu.Lock()
	c.markets = markets
	c.mu.Unlock()
	c.machine.Apply(EventResolve)
}

func (c *MarketsCard) setErr(msg string) {
	c.mu.Lock()
	c.err = msg
	c.mu.Unlock()
}

func (c *MarketsCard) View() MarketsView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return MarketsView{
		Status:  c.machine.Status(),
		Markets: append([]data.Market(nil), c.markets...),
		Error:   c.err,
	}
}
