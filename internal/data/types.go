package data

// Market is a listed market with its latest price.
type Market struct {
	Address      string `json:"address"`
	Name         string `json:"name"`
	Token        string `json:"token"`
	CurrentPrice string `json:"currentPrice"`
}

// OpenOrder is a pending trigger order shaped for display.
type OpenOrder struct {
	ID                string `json:"id"`
	MarketAddress     string `json:"marketAddress"`
	MarketName        string `json:"marketName"`
	Side              string `json:"side"`
	Amount            string `json:"amount"`
	LimitPrice        string `json:"limitPrice"`
	TriggerComparison string `json:"triggerComparison"`
	Status            string `json:"status"`
	Timestamp         string `json:"timestamp"`
}

// PortfolioData pairs the account's open orders with the market list.
type PortfolioData struct {
	OpenOrders []OpenOrder `json:"openOrders"`
	Markets    []Market    `json:"markets"`
}

// TradeParams opens a position. An empty LimitPrice means none was given.
type TradeParams struct {
	MarketAddress string
	Side          string
	Amount        string
	LimitPrice    string
}

// ClosePositionParams closes a position. Amount defaults to DefaultCloseAmount.
type ClosePositionParams struct {
	MarketAddress string
	Amount        string
	LimitPrice    string
	Side          string
}

const DefaultCloseAmount = "1"
