package dashboard

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"perennial-dash/internal/data"
)

const errFetchPortfolio = "Failed to fetch portfolio data"

type PortfolioView struct {
	Authenticated bool             `json:"authenticated"`
	Status        Status           `json:"status"`
	OpenOrders    []data.OpenOrder `json:"openOrders"`
	Error         string           `json:"error,omitempty"`
}

// PortfolioCard shows the connected wallet's open orders.
type PortfolioCard struct {
	loader  PortfolioLoader
	auth    Auth
	log     *zap.Logger
	machine *Machine

	mu     sync.Mutex
	orders []data.OpenOrder
	err    string
}

func NewPortfolioCard(loader PortfolioLoader, auth Auth, log *zap.Logger) *PortfolioCard {
	return &PortfolioCard{loader: loader, auth: auth, log: log, machine: NewMachine()}
}

// Load is a no-op until a wallet is connected.
func (c *PortfolioCard) Load(ctx context.Context) {
	if !c.auth.Authenticated() {
		return
	}
	addr, ok := c.auth.Address()
	if !ok {
		return
	}
	c.machine.Apply(EventFetch)
	c.setErr("")
	portfolio, err := c.loader.FetchPortfolioData(ctx, addr.Hex())
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.log.Error("error fetching portfolio data", zap.Error(err))
		c.setErr(errFetchPortfolio)
		c.machine.Apply(EventFail)
		return
	}
	c.mu.Lock()
	c.orders = portfolio.OpenOrders
	c.mu.Unlock()
	c.machine.Apply(EventResolve)
}

// Reset drops cached orders, used on disconnect.
func (c *PortfolioCard) Reset() {
	c.mu.Lock()
	c.orders = nil
	c.err = ""
	c.mu.Unlock()
	c.machine.Apply(EventReset)
}

func (c *PortfolioCard) setErr(msg string) {
	c.mu.Lock()
	c.err = msg
	c.mu.Unlock()
}

func (c *PortfolioCard) View() PortfolioView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PortfolioView{
		Authenticated: c.auth.Authenticated(),
		Status:        c.machine.Status(),
		OpenOrders:    append([]data.OpenOrder(nil), c.orders...),
		Error:         c.err,
	}
}
