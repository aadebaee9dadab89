package dashboard

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"perennial-dash/internal/data"
	"perennial-dash/internal/perennial"
)

type MarketsLoader interface {
	FetchMarkets(ctx context.Context) ([]data.Market, error)
}

type PortfolioLoader interface {
	FetchPortfolioData(ctx context.Context, user string) (data.PortfolioData, error)
}

type Trader interface {
	OpenPosition(ctx context.Context, tx perennial.Transactor, params data.TradeParams) (string, error)
	ClosePosition(ctx context.Context, tx perennial.Transactor, params data.ClosePositionParams) (string, error)
}

// Auth is the wallet session as seen by the cards.
type Auth interface {
	Ready() bool
	Authenticated() bool
	Address() (common.Address, bool)
	Transactor() (perennial.Transactor, bool)
	Login(ctx context.Context) error
	Logout()
}

// Backend bundles every data operation the page needs.
type Backend interface {
	MarketsLoader
	PortfolioLoader
	Trader
}
