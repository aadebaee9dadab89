package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"perennial-dash/internal/config"
	"perennial-dash/internal/dashboard"
	"perennial-dash/internal/data"
	"perennial-dash/internal/perennial"
	"perennial-dash/internal/state"
)

type fakeAuth struct {
	mu     sync.Mutex
	authed bool
	addr   common.Address
}

func (f *fakeAuth) Ready() bool { return true }

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
	if !f.Authenticated() {
		return nil, false
	}
	return fakeTx{from: f.addr}, true
}

func (f *fakeAuth) Login(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	mu     sync.Mutex
	opened []data.TradeParams
}

func (f *fakeBackend) FetchMarkets(context.Context) ([]data.Market, error) {
	return []data.Market{{
		Address:      "0x6e710fDDE613609C5044813db674D4da35a593FB",
		Name:         "Ethereum",
		Token:        "eth",
		CurrentPrice: "3,000.00",
	}}, nil
}

func (f *fakeBackend) FetchPortfolioData(context.Context, string) (data.PortfolioData, error) {
	return data.PortfolioData{OpenOrders: []data.OpenOrder{{ID: "o1", MarketName: "ETH", Side: "long", Status: "pending"}}}, nil
}

func (f *fakeBackend) OpenPosition(_ context.Context, _ perennial.Transactor, params data.TradeParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, params)
	return "0xfeed", nil
}

func (f *fakeBackend) ClosePosition(context.Context, perennial.Transactor, data.ClosePositionParams) (string, error) {
	return "", errors.New("execution reverted")
}

type fakeJournal struct{ limit int }

func (f *fakeJournal) Submissions(_ context.Context, limit int) ([]state.Submission, error) {
	f.limit = limit
	return []state.Submission{{ID: "s1", Kind: "open", TxHash: "0xfeed"}}, nil
}

func newTestServer(t *testing.T) (http.Handler, *dashboard.Page, *fakeBackend, *fakeJournal) {
	t.Helper()
	backend := &fakeBackend{}
	auth := &fakeAuth{addr: common.HexToAddress("0x1234567890abcdef1234567890abcdef1234abcd")}
	page := dashboard.NewPage(backend, auth, zap.NewNop())
	page.Mount(context.Background())
	page.Wait()
	t.Cleanup(page.Unmount)
	journal := &fakeJournal{}
	enabled := true
	srv, err := New(Options{
		Metrics:        config.MetricsConfig{Enabled: &enabled, Path: "/metrics"},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("perennial_dash_up 1")) }),
		Page:           page,
		Journal:        journal,
		Log:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv.srv.Handler, page, backend, journal
}

func do(t *testing.T, h http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIndexRendersCards(t *testing.T) {
	h, _, _, _ := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Ethereum", "$3,000.00", "Connect Wallet", "0x6e71...93FB"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected page to contain %q", want)
		}
	}
}

func TestConnectAndOpenPosition(t *testing.T) {
	h, page, backend, _ := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/wallet/connect", url.Values{})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	page.Wait()

	rec = do(t, h, http.MethodPost, "/positions/open", url.Values{
		"market":     {"0x6e710fDDE613609C5044813db674D4da35a593FB"},
		"side":       {"short"},
		"amount":     {"1.5"},
		"limitPrice": {"2900"},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	if len(backend.opened) != 1 || backend.opened[0].Side != "short" || backend.opened[0].Amount != "1.5" {
		t.Fatalf("unexpected submissions %+v", backend.opened)
	}

	rec = do(t, h, http.MethodGet, "/api/page", nil)
	var view dashboard.PageView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Positions.Success != "Position opened! Transaction: 0xfeed" {
		t.Fatalf("unexpected positions view %+v", view.Positions)
	}
	if !view.Wallet.Authenticated || view.Wallet.Badge != "0x1234...abcd" {
		t.Fatalf("unexpected wallet view %+v", view.Wallet)
	}
	if len(view.Portfolio.OpenOrders) != 1 {
		t.Fatalf("expected portfolio loaded after connect, got %+v", view.Portfolio)
	}

	rec = do(t, h, http.MethodGet, "/", nil)
	if !strings.Contains(rec.Body.String(), "Position opened! Transaction: 0xfeed") {
		t.Fatalf("expected success banner in page")
	}
}

func TestClosePositionShowsError(t *testing.T) {
	h, page, _, _ := newTestServer(t)
	do(t, h, http.MethodPost, "/wallet/connect", url.Values{})
	page.Wait()
	do(t, h, http.MethodPost, "/positions/close", url.Values{"market": {"eth"}, "side": {"long"}})
	if got := page.View().Positions.Error; got != "execution reverted" {
		t.Fatalf("expected write error surfaced, got %q", got)
	}
}

func TestOpenWithoutWalletShowsValidation(t *testing.T) {
	h, page, backend, _ := newTestServer(t)
	do(t, h, http.MethodPost, "/positions/open", url.Values{"market": {"eth"}, "amount": {"1"}})
	if got := page.View().Positions.Error; got != "Please fill in all fields and connect wallet" {
		t.Fatalf("unexpected error %q", got)
	}
	if len(backend.opened) != 0 {
		t.Fatalf("expected nothing submitted")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h, _, _, _ := newTestServer(t)
	if rec := do(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "perennial_dash_up") {
		t.Fatalf("metrics: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSubmissionsEndpoint(t *testing.T) {
	h, _, _, journal := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/submissions?limit=5", nil)
	if rec.Code != http.StatusOK || journal.limit != 5 || !strings.Contains(rec.Body.String(), "0xfeed") {
		t.Fatalf("unexpected response %d %s (limit %d)", rec.Code, rec.Body.String(), journal.limit)
	}
	if rec := do(t, h, http.MethodGet, "/api/submissions?limit=x", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestNewRequiresPage(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error")
	}
}
