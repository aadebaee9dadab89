package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"perennial-dash/internal/data"
	"perennial-dash/internal/perennial"
)

type fakeAuth struct {
	mu       sync.Mutex
	ready    bool
	authed   bool
	addr     common.Address
	loginErr error
}

func (f *fakeAuth) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeAuth) Authenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authed
}

func (f *fakeAuth) Address() (common.Address, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addr, f.authed
}

func (f *fakeAuth) Transactor() (perennial.Transactor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.authed {
		return nil, false
	}
	return fakeTx{from: f.addr}, true
}

func (f *fakeAuth) Login(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return f.loginErr
	}
	f.authed = true
	return nil
}

func (f *fakeAuth) Logout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authed = false
}

type fakeTx struct{ from common.Address }

func (f fakeTx) From() common.Address { return f.from }

func (f fakeTx) Transact(context.Context, common.Address, []byte) (common.Hash, error) {
	return common.Hash{}, nil
}

type fakeBackend struct {
	mu          sync.Mutex
	markets     []data.Market
	marketsErr  error
	portfolio   data.PortfolioData
	block       chan struct{}
	openParams  []data.TradeParams
	closeParams []data.ClosePositionParams
	writeErr    error
}

func (f *fakeBackend) FetchMarkets(ctx context.Context) ([]data.Market, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.markets, f.marketsErr
}

func (f *fakeBackend) FetchPortfolioData(context.Context, string) (data.PortfolioData, error) {
	return f.portfolio, nil
}

func (f *fakeBackend) OpenPosition(_ context.Context, _ perennial.Transactor, params data.TradeParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openParams = append(f.openParams, params)
	if f.writeErr != nil {
		return "", f.writeErr
	}
	return "0xopen", nil
}

func (f *fakeBackend) ClosePosition(_ context.Context, _ perennial.Transactor, params data.ClosePositionParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeParams = append(f.closeParams, params)
	if f.writeErr != nil {
		return "", f.writeErr
	}
	return "0xclose", nil
}

var (
	ethMarket = data.Market{Address: "0x6e710fDDE613609C5044813db674D4da35a593FB", Name: "Ethereum", Token: "eth", CurrentPrice: "3,000.00"}
	btcMarket = data.Market{Address: "0xFEb2588d42768f0dCeF6652E138d3C9D306e1FaB", Name: "Bitcoin", Token: "btc", CurrentPrice: "60,000.00"}
	userAddr  = common.HexToAddress("0x1234567890abcdef1234567890abcdef1234abcd")
)

func TestMachineTransitions(t *testing.T) {
	m := NewMachine()
	if m.Status() != StatusIdle {
		t.Fatalf("expected idle, got %s", m.Status())
	}
	if m.Apply(EventResolve) != StatusIdle {
		t.Fatalf("resolve from idle should not change state")
	}
	if m.Apply(EventFetch) != StatusLoading {
		t.Fatalf("expected loading")
	}
	if m.Apply(EventFail) != StatusError {
		t.Fatalf("expected error")
	}
	if m.Apply(EventFetch) != StatusLoading {
		t.Fatalf("expected refetch from error")
	}
	if m.Apply(EventResolve) != StatusSuccess {
		t.Fatalf("expected success")
	}
	if m.Apply(EventFail) != StatusSuccess {
		t.Fatalf("fail from success should not change state")
	}
	if m.Apply(EventReset) != StatusIdle {
		t.Fatalf("expected reset to idle")
	}
}

func TestMarketsCardLoad(t *testing.T) {
	card := NewMarketsCard(&fakeBackend{markets: []data.Market{btcMarket, ethMarket}}, zap.NewNop())
	card.Load(context.Background())
	view := card.View()
	if view.Status != StatusSuccess || len(view.Markets) != 2 || view.Error != "" {
		t.Fatalf("unexpected view %+v", view)
	}

	card = NewMarketsCard(&fakeBackend{marketsErr: errors.New("boom")}, zap.NewNop())
	card.Load(context.Background())
	view = card.View()
	if view.Status != StatusError || view.Error != "Failed to fetch markets" {
		t.Fatalf("unexpected error view %+v", view)
	}
}

func TestPortfolioCardAuthGated(t *testing.T) {
	auth := &fakeAuth{ready: true, addr: userAddr}
	backend := &fakeBackend{portfolio: data.PortfolioData{OpenOrders: []data.OpenOrder{{ID: "1"}}}}
	card := NewPortfolioCard(backend, auth, zap.NewNop())
	card.Load(context.Background())
	if view := card.View(); view.Status != StatusIdle || view.Authenticated {
		t.Fatalf("expected idle unauthenticated view, got %+v", view)
	}
	auth.authed = true
	card.Load(context.Background())
	view := card.View()
	if view.Status != StatusSuccess || len(view.OpenOrders) != 1 {
		t.Fatalf("unexpected view %+v", view)
	}
	card.Reset()
	if view := card.View(); view.Status != StatusIdle || len(view.OpenOrders) != 0 {
		t.Fatalf("expected reset view, got %+v", view)
	}
}

func TestPositionManagerValidation(t *testing.T) {
	auth := &fakeAuth{ready: true, addr: userAddr}
	backend := &fakeBackend{}
	pm := NewPositionManager(backend, backend, auth, zap.NewNop())

	pm.SetForm(Form{Market: ethMarket.Address, Amount: "1"})
	pm.Open(context.Background())
	if view := pm.View(); view.Error != "Please fill in all fields and connect wallet" || view.Status != StatusError {
		t.Fatalf("expected open validation error, got %+v", view)
	}
	pm.Close(context.Background())
	if view := pm.View(); view.Error != "Please select a market and connect wallet" {
		t.Fatalf("expected close validation error, got %+v", view)
	}

	auth.authed = true
	pm.SetForm(Form{Market: ethMarket.Address})
	pm.Open(context.Background())
	if view := pm.View(); view.Error != "Please fill in all fields and connect wallet" {
		t.Fatalf("expected missing amount error, got %+v", view)
	}
	if len(backend.openParams) != 0 || len(backend.closeParams) != 0 {
		t.Fatalf("expected no submissions")
	}
}

func TestPositionManagerOpenAndClose(t *testing.T) {
	auth := &fakeAuth{ready: true, authed: true, addr: userAddr}
	backend := &fakeBackend{markets: []data.Market{ethMarket, btcMarket}}
	pm := NewPositionManager(backend, backend, auth, zap.NewNop())
	pm.LoadMarkets(context.Background())
	if view := pm.View(); view.Form.Market != ethMarket.Address || view.MarketsStatus != StatusSuccess {
		t.Fatalf("expected first market preselected, got %+v", view)
	}

	pm.SetForm(Form{Market: "btc", Side: "SHORT", Amount: "2", LimitPrice: "61000"})
	pm.Open(context.Background())
	view := pm.View()
	if view.Success != "Position opened! Transaction: 0xopen" || view.Status != StatusSuccess {
		t.Fatalf("unexpected open view %+v", view)
	}
	if view.Form.Amount != "" || view.Form.LimitPrice != "" || view.Form.Market != "btc" {
		t.Fatalf("expected amount and limit cleared, got %+v", view.Form)
	}
	if got := backend.openParams[0]; got.MarketAddress != "btc" || got.Side != "short" || got.Amount != "2" || got.LimitPrice != "61000" {
		t.Fatalf("unexpected open params %+v", got)
	}

	pm.SetForm(Form{Market: ethMarket.Address, Side: "long", Amount: "5", LimitPrice: "2900"})
	pm.Close(context.Background())
	view = pm.View()
	if view.Success != "Position closed! Transaction: 0xclose" {
		t.Fatalf("unexpected close view %+v", view)
	}
	if view.Form.Amount != "5" || view.Form.LimitPrice != "" {
		t.Fatalf("expected only limit cleared on close, got %+v", view.Form)
	}
	if got := backend.closeParams[0]; got.Amount != "" || got.Side != "long" || got.LimitPrice != "2900" {
		t.Fatalf("unexpected close params %+v", got)
	}
}

func TestPositionManagerShowsWriteError(t *testing.T) {
	auth := &fakeAuth{ready: true, authed: true, addr: userAddr}
	backend := &fakeBackend{writeErr: errors.New("execution reverted: insufficient collateral")}
	pm := NewPositionManager(backend, backend, auth, zap.NewNop())
	pm.SetForm(Form{Market: "eth", Amount: "1"})
	pm.Open(context.Background())
	view := pm.View()
	if view.Error != "execution reverted: insufficient collateral" || view.Success != "" || view.Status != StatusError {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Form.Amount != "1" {
		t.Fatalf("expected inputs kept on failure")
	}
}

func TestWalletCardBadge(t *testing.T) {
	auth := &fakeAuth{addr: userAddr}
	card := NewWalletCard(auth, zap.NewNop())
	if view := card.View(); view.Ready || view.Authenticated || view.Badge != "" {
		t.Fatalf("unexpected not-ready view %+v", view)
	}
	auth.ready = true
	if err := card.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	view := card.View()
	if view.Badge != "0x1234...abcd" || view.Address != userAddr.Hex() {
		t.Fatalf("unexpected badge %+v", view)
	}
	card.Disconnect()
	if view := card.View(); view.Authenticated || view.Badge != "" {
		t.Fatalf("expected disconnected view, got %+v", view)
	}
	auth.loginErr = errors.New("no wallet available")
	if err := card.Connect(context.Background()); err == nil || card.View().Error != "no wallet available" {
		t.Fatalf("expected login error in view")
	}
}

func TestShortAddress(t *testing.T) {
	if got := ShortAddress("0xabc"); got != "0xabc" {
		t.Fatalf("expected short input unchanged, got %q", got)
	}
}

func TestPageMountLoadsAndConnect(t *testing.T) {
	auth := &fakeAuth{ready: true, addr: userAddr}
	backend := &fakeBackend{
		markets:   []data.Market{ethMarket},
		portfolio: data.PortfolioData{OpenOrders: []data.OpenOrder{{ID: "o1"}}},
	}
	page := NewPage(backend, auth, zap.NewNop())
	page.Mount(context.Background())
	page.Wait()
	view := page.View()
	if view.Markets.Status != StatusSuccess || len(view.Markets.Markets) != 1 {
		t.Fatalf("expected markets loaded on mount, got %+v", view.Markets)
	}
	if view.Portfolio.Status != StatusIdle || view.Positions.MarketsStatus != StatusIdle {
		t.Fatalf("expected auth-gated cards idle before connect")
	}

	if err := page.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	page.Wait()
	view = page.View()
	if view.Portfolio.Status != StatusSuccess || len(view.Portfolio.OpenOrders) != 1 {
		t.Fatalf("expected portfolio loaded after connect, got %+v", view.Portfolio)
	}
	if view.Positions.Form.Market != ethMarket.Address {
		t.Fatalf("expected market preselected after connect, got %+v", view.Positions.Form)
	}

	page.Disconnect()
	view = page.View()
	if view.Wallet.Authenticated || len(view.Portfolio.OpenOrders) != 0 || len(view.Positions.Markets) != 0 {
		t.Fatalf("expected cleared view after disconnect, got %+v", view)
	}
	page.Unmount()
}

func TestPageUnmountDropsLateResults(t *testing.T) {
	backend := &fakeBackend{markets: []data.Market{ethMarket}, block: make(chan struct{})}
	page := NewPage(backend, &fakeAuth{}, zap.NewNop())
	page.Mount(context.Background())
	page.Unmount()
	done := make(chan struct{})
	go func() {
		page.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loads did not stop after unmount")
	}
	close(backend.block)
	if view := page.View().Markets; len(view.Markets) != 0 || view.Status == StatusSuccess {
		t.Fatalf("expected results dropped after unmount, got %+v", view)
	}
}
