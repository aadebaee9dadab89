// Package dashboard holds the state of the four dashboard cards and the page
// that composes them.
package dashboard

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type PageView struct {
	Wallet    WalletView    `json:"wallet"`
	Portfolio PortfolioView `json:"portfolio"`
	Positions PositionsView `json:"positions"`
	Markets   MarketsView   `json:"markets"`
}

// Page composes the cards. Loads started by the page run on the page context
// and are dropped once the page is unmounted.
type Page struct {
	Wallet    *WalletCard
	Portfolio *PortfolioCard
	Positions *PositionManager
	Markets   *MarketsCard

	log *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPage(backend Backend, auth Auth, log *zap.Logger) *Page {
	if log == nil {
		log = zap.NewNop()
	}
	return &Page{
		Wallet:    NewWalletCard(auth, log.Named("wallet")),
		Portfolio: NewPortfolioCard(backend, auth, log.Named("portfolio")),
		Positions: NewPositionManager(backend, backend, auth, log.Named("positions")),
		Markets:   NewMarketsCard(backend, log.Named("markets")),
		log:       log,
	}
}

// Mount starts the initial loads in the background.
func (p *Page) Mount(parent context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.ctx, p.cancel = context.WithCancel(parent)
	ctx := p.ctx
	p.mu.Unlock()

	p.spawn(ctx, p.Markets.Load)
	p.spawn(ctx, p.Portfolio.Load)
	p.spawn(ctx, p.Positions.LoadMarkets)
}

// Unmount cancels in-flight loads. Results arriving later are discarded.
func (p *Page) Unmount() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
}

// Wait blocks until every background load has returned.
func (p *Page) Wait() {
	p.wg.Wait()
}

// Connect logs in and starts the wallet-gated loads.
func (p *Page) Connect(ctx context.Context) error {
	if err := p.Wallet.Connect(ctx); err != nil {
		return err
	}
	if pageCtx, ok := p.context(); ok {
		p.spawn(pageCtx, p.Portfolio.Load)
		p.spawn(pageCtx, p.Positions.LoadMarkets)
	}
	return nil
}

func (p *Page) Disconnect() {
	p.Wallet.Disconnect()
	p.Portfolio.Reset()
	p.Positions.Reset()
}

func (p *Page) View() PageView {
	return PageView{
		Wallet:    p.Wallet.View(),
		Portfolio: p.Portfolio.View(),
		Positions: p.Positions.View(),
		Markets:   p.Markets.View(),
	}
}

func (p *Page) context() (context.Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil || p.ctx.Err() != nil {
		return nil, false
	}
	return p.ctx, true
}

func (p *Page) spawn(ctx context.Context, load func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		load(ctx)
	}()
}
