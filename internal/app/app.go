package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"perennial-dash/internal/alerts"
	"perennial-dash/internal/config"
	"perennial-dash/internal/dashboard"
	"perennial-dash/internal/data"
	"perennial-dash/internal/history"
	"perennial-dash/internal/metrics"
	"perennial-dash/internal/perennial"
	"perennial-dash/internal/pyth"
	"perennial-dash/internal/server"
	"perennial-dash/internal/state"
	"perennial-dash/internal/state/sqlite"
	"perennial-dash/internal/wallet"
)

// ChainClient is the RPC surface the app needs: contract reads for market
// snapshots and the transaction backend for the wallet.
type ChainClient interface {
	ethereum.ContractCaller
	wallet.Backend
	Close()
}

type App struct {
	cfg     *config.Config
	log     *zap.Logger
	chain   ChainClient
	store   state.Store
	prom    *metrics.Prometheus
	metrics *metrics.Metrics
	sdk     *perennial.SDK
	book    *pyth.Book
	stream  *pyth.Stream
	history *history.Writer
	data    *data.Service
	session *wallet.Session
	page    *dashboard.Page
	server  *server.Server
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout(cfg.Chain.Timeout))
	defer cancel()
	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", cfg.Chain.RPCURL, err)
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		client.Close()
		return nil, err
	}
	hist, err := history.New(cfg.History, log.Named("history"))
	if err != nil {
		client.Close()
		_ = store.Close()
		return nil, fmt.Errorf("history: %w", err)
	}
	return build(cfg, log, client, store, hist)
}

func dialTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 30 * time.Second
	}
	return timeout
}

// build wires every component around an already opened chain client, store
// and history writer.
func build(cfg *config.Config, log *zap.Logger, chain ChainClient, store state.Store, hist *history.Writer) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if store == nil {
		store = state.NewMemory()
	}
	prom := metrics.NewPrometheus()
	a := &App{
		cfg:     cfg,
		log:     log,
		chain:   chain,
		store:   store,
		prom:    prom,
		metrics: prom.Metrics,
		history: hist,
	}

	var prices perennial.PriceSource
	if cfg.PriceFeed.EnabledValue() {
		a.book = pyth.NewBook(cfg.PriceFeed.Feeds)
		client := pyth.NewClient(cfg.PriceFeed.URL, cfg.PriceFeed.ReconnectDelay, cfg.PriceFeed.PingInterval, log.Named("pyth"))
		a.stream = pyth.NewStream(client, a.book, log.Named("pyth"))
		a.stream.OnUpdate(a.onPriceUpdate)
		prices = a.book
	}

	a.sdk = perennial.New(perennial.Options{
		Versions: timedReader{reader: perennial.NewChainReader(chain), timeout: cfg.Chain.Timeout},
		Orders:   perennial.NewGraphClient(cfg.Indexer.URL, cfg.Indexer.Timeout, log.Named("graph")),
		Prices:   prices,
		Log:      log.Named("sdk"),
	})

	var notifier data.Notifier
	if cfg.Telegram.Enabled {
		notifier = alerts.NewNotifier(alerts.NewTelegram(cfg.Telegram, log.Named("telegram")), log.Named("alerts"))
	}
	var recorder data.Recorder
	if hist != nil {
		recorder = hist
	}
	a.data = data.New(data.Options{
		SDK:           a.sdk,
		Allowed:       cfg.Markets.Allowed,
		Decimals:      cfg.Orders.Decimals,
		MaxOpenOrders: cfg.Orders.MaxOpenOrders,
		Metrics:       a.metrics,
		Journal:       store,
		History:       recorder,
		Notifier:      notifier,
		Log:           log.Named("data"),
	})

	a.session = wallet.NewSession(cfg.Chain, cfg.Wallet, chain, store, log.Named("wallet"))
	a.page = dashboard.NewPage(a.data, a.session, log.Named("dashboard"))

	srv, err := server.New(server.Options{
		HTTP:           cfg.HTTP,
		Metrics:        cfg.Metrics,
		MetricsHandler: prom.Handler(),
		Page:           a.page,
		Journal:        a.data,
		Log:            log.Named("http"),
	})
	if err != nil {
		return nil, err
	}
	a.server = srv
	return a, nil
}

// Run serves the dashboard until ctx is cancelled. The HTTP server, the
// price stream and the history writer run side by side; the first to fail
// stops the others.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	initCtx, cancel := context.WithTimeout(ctx, dialTimeout(a.cfg.Chain.Timeout))
	if err := a.session.Init(initCtx); err != nil {
		a.log.Warn("wallet session not ready", zap.Error(err))
	} else {
		a.log.Info("wallet session ready", zap.String("chain", a.cfg.Chain.Name))
	}
	cancel()

	g, gctx := errgroup.WithContext(ctx)
	a.page.Mount(gctx)
	defer func() {
		a.page.Unmount()
		a.page.Wait()
	}()

	g.Go(func() error {
		return a.server.Run(gctx)
	})
	if a.stream != nil {
		g.Go(func() error {
			err := a.stream.Run(gctx)
			if gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("price stream: %w", err)
		})
	}
	if a.history != nil {
		g.Go(func() error {
			return a.history.Run(gctx)
		})
	}
	err := g.Wait()
	if err == nil || errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	return err
}

func (a *App) close() {
	if a.data != nil {
		a.data.Wait()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn("history close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("state store close failed", zap.Error(err))
		}
	}
	if a.chain != nil {
		a.chain.Close()
	}
}

func (a *App) onPriceUpdate(u pyth.Update) {
	a.metrics.PriceUpdates.Inc()
	if a.history == nil || u.Version.Price == nil {
		return
	}
	a.history.EnqueuePrice(history.PriceSample{
		Time:   time.Unix(int64(u.Version.Timestamp), 0).UTC(),
		Market: strings.ToLower(u.Key),
		Source: "pyth",
		Price:  decimal.NewFromBigInt(u.Version.Price, -pyth.PriceDecimals).String(),
		Valid:  u.Version.Valid,
	})
}

// timedReader bounds each oracle read by the configured RPC timeout.
type timedReader struct {
	reader  perennial.VersionReader
	timeout time.Duration
}

func (t timedReader) LatestVersion(ctx context.Context, market common.Address) (perennial.OracleVersion, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.reader.LatestVersion(ctx, market)
}
