package dashboard

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"perennial-dash/internal/data"
	"perennial-dash/internal/perennial"
)

const (
	errOpenFields  = "Please fill in all fields and connect wallet"
	errCloseFields = "Please select a market and connect wallet"
	errOpenFailed  = "Failed to open position"
	errCloseFailed = "Failed to close position"
)

// Form is the position form input. Empty strings mean the field is unset.
type Form struct {
	Market     string `json:"market"`
	Side       string `json:"side"`
	Amount     string `json:"amount"`
	LimitPrice string `json:"limitPrice"`
}

type PositionsView struct {
	Authenticated bool          `json:"authenticated"`
	MarketsStatus Status        `json:"marketsStatus"`
	Markets       []data.Market `json:"markets"`
	Form          Form          `json:"form"`
	Status        Status        `json:"status"`
	Error         string        `json:"error,omitempty"`
	Success       string        `json:"success,omitempty"`
}

// PositionManager opens and closes positions for the connected wallet.
type PositionManager struct {
	markets MarketsLoader
	trader  Trader
	auth    Auth
	log     *zap.Logger

	marketsMachine *Machine
	submitMachine  *Machine

	mu      sync.Mutex
	list    []data.Market
	form    Form
	errMsg  string
	success string
}

func NewPositionManager(markets MarketsLoader, trader Trader, auth Auth, log *zap.Logger) *PositionManager {
	return &PositionManager{
		markets:        markets,
		trader:         trader,
		auth:           auth,
		log:            log,
		marketsMachine: NewMachine(),
		submitMachine:  NewMachine(),
		form:           Form{Side: string(perennial.SideLong)},
	}
}

// LoadMarkets fills the market selector and selects the first market when
// none is selected. It is a no-op until a wallet is connected.
func (p *PositionManager) LoadMarkets(ctx context.Context) {
	if !p.auth.Authenticated() {
		return
	}
	p.marketsMachine.Apply(EventFetch)
	markets, err := p.markets.FetchMarkets(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.log.Error("error loading markets", zap.Error(err))
		p.marketsMachine.Apply(EventFail)
		return
	}
	p.mu.Lock()
	p.list = markets
	if len(markets) > 0 && p.form.Market == "" {
		p.form.Market = markets[0].Address
	}
	p.mu.Unlock()
	p.marketsMachine.Apply(EventResolve)
}

// SetForm replaces the form input. Sides other than short fall back to long.
func (p *PositionManager) SetForm(form Form) {
	side := strings.ToLower(strings.TrimSpace(form.Side))
	if side != string(perennial.SideShort) {
		side = string(perennial.SideLong)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.form = Form{
		Market:     strings.TrimSpace(form.Market),
		Side:       side,
		Amount:     strings.TrimSpace(form.Amount),
		LimitPrice: strings.TrimSpace(form.LimitPrice),
	}
}

// Open submits the form as a new position.
func (p *PositionManager) Open(ctx context.Context) {
	p.mu.Lock()
	form := p.form
	p.mu.Unlock()
	tx, ok := p.auth.Transactor()
	if !ok || !p.auth.Authenticated() || form.Amount == "" || form.Market == "" {
		p.fail(errOpenFields)
		return
	}
	p.begin()
	hash, err := p.trader.OpenPosition(ctx, tx, data.TradeParams{
		MarketAddress: form.Market,
		Side:          form.Side,
		Amount:        form.Amount,
		LimitPrice:    form.LimitPrice,
	})
	if err != nil {
		p.log.Error("error opening position", zap.Error(err))
		p.fail(messageOr(err, errOpenFailed))
		return
	}
	p.mu.Lock()
	p.success = "Position opened! Transaction: " + hash
	p.form.Amount = ""
	p.form.LimitPrice = ""
	p.mu.Unlock()
	p.submitMachine.Apply(EventResolve)
}

// Close submits a close for the selected market. The amount input is not
// sent.
func (p *PositionManager) Close(ctx context.Context) {
	p.mu.Lock()
	form := p.form
	p.mu.Unlock()
	tx, ok := p.auth.Transactor()
	if !ok || !p.auth.Authenticated() || form.Market == "" {
		p.fail(errCloseFields)
		return
	}
	p.begin()
	hash, err := p.trader.ClosePosition(ctx, tx, data.ClosePositionParams{
		MarketAddress: form.Market,
		Side:          form.Side,
		LimitPrice:    form.LimitPrice,
	})
	if err != nil {
		p.log.Error("error closing position", zap.Error(err))
		p.fail(messageOr(err, errCloseFailed))
		return
	}
	p.mu.Lock()
	p.success = "Position closed! Transaction: " + hash
	p.form.LimitPrice = ""
	p.mu.Unlock()
	p.submitMachine.Apply(EventResolve)
}

func (p *PositionManager) begin() {
	p.mu.Lock()
	p.errMsg = ""
	p.success = ""
	p.mu.Unlock()
	p.submitMachine.Apply(EventFetch)
}

func (p *PositionManager) fail(msg string) {
	p.mu.Lock()
	p.errMsg = msg
	p.success = ""
	p.mu.Unlock()
	if p.submitMachine.Status() != StatusLoading {
		p.submitMachine.Apply(EventFetch)
	}
	p.submitMachine.Apply(EventFail)
}

// Reset clears markets and messages, used on disconnect.
func (p *PositionManager) Reset() {
	p.mu.Lock()
	p.list = nil
	p.errMsg = ""
	p.success = ""
	p.form = Form{Side: string(perennial.SideLong)}
	p.mu.Unlock()
	p.marketsMachine.Apply(EventReset)
	p.submitMachine.Apply(EventReset)
}

func (p *PositionManager) View() PositionsView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PositionsView{
		Authenticated: p.auth.Authenticated(),
		MarketsStatus: p.marketsMachine.Status(),
		Markets:       append([]data.Market(nil), p.list...),
		Form:          p.form,
		Status:        p.submitMachine.Status(),
		Error:         p.errMsg,
		Success:       p.success,
	}
}

func messageOr(err error, fallback string) string {
	if err == nil || strings.TrimSpace(err.Error()) == "" {
		return fallback
	}
	return err.Error()
}
