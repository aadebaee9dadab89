// Package data is the read/write layer between the dashboard and the
// Perennial client. Reads degrade to empty results; writes return the
// transaction hash or the failure.
package data

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"perennial-dash/internal/alerts"
	"perennial-dash/internal/contracts"
	"perennial-dash/internal/format"
	"perennial-dash/internal/history"
	"perennial-dash/internal/metrics"
	"perennial-dash/internal/perennial"
	"perennial-dash/internal/state"
)

const notifyTimeout = 10 * time.Second

// SDK is the part of the Perennial client the service calls.
type SDK interface {
	MarketSnapshots(ctx context.Context) (*perennial.MarketSnapshots, error)
	OpenOrders(ctx context.Context, q perennial.OpenOrdersQuery) ([]perennial.OpenOrderRecord, error)
	Approve(ctx context.Context, tx perennial.Transactor, amount *big.Int) (common.Hash, error)
	LimitOrder(ctx context.Context, tx perennial.Transactor, order perennial.LimitOrder) (common.Hash, error)
}

// Notifier receives successful submissions.
type Notifier interface {
	Submission(ctx context.Context, alert alerts.SubmissionAlert)
}

type Recorder interface {
	EnqueueSubmission(sub history.Submission)
}

type Options struct {
	SDK           SDK
	Allowed       []string
	Decimals      int
	MaxOpenOrders int
	Metrics       *metrics.Metrics
	Journal       state.Store
	History       Recorder
	Notifier      Notifier
	Log           *zap.Logger
}

type Service struct {
	sdk       SDK
	allowed   map[string]struct{}
	decimals  int
	maxOrders int
	metrics   *metrics.Metrics
	journal   state.Store
	history   Recorder
	notifier  Notifier
	log       *zap.Logger
	now       func() time.Time
	pending   sync.WaitGroup
}

func New(opts Options) *Service {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	allowedList := opts.Allowed
	if len(allowedList) == 0 {
		allowedList = []string{contracts.KeyBTC, contracts.KeyETH}
	}
	allowed := make(map[string]struct{}, len(allowedList))
	for _, key := range allowedList {
		allowed[strings.ToLower(strings.TrimSpace(key))] = struct{}{}
	}
	decimals := opts.Decimals
	if decimals <= 0 {
		decimals = format.DefaultDecimals
	}
	maxOrders := opts.MaxOpenOrders
	if maxOrders <= 0 {
		maxOrders = 100
	}
	return &Service{
		sdk:       opts.SDK,
		allowed:   allowed,
		decimals:  decimals,
		maxOrders: maxOrders,
		metrics:   m,
		journal:   opts.Journal,
		history:   opts.History,
		notifier:  opts.Notifier,
		log:       log,
		now:       time.Now,
	}
}

// FetchMarkets returns the allow-listed markets with their latest price.
// Failures are logged and yield an empty list; only a cancelled ctx is
// returned as an error.
func (s *Service) FetchMarkets(ctx context.Context) ([]Market, error) {
	s.metrics.MarketFetches.Inc()
	snaps, err := s.sdk.MarketSnapshots(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.metrics.MarketFetchFailures.Inc()
		s.log.Error("error fetching markets", zap.Error(err))
		return []Market{}, nil
	}
	markets := make([]Market, 0, len(s.allowed))
	if snaps == nil {
		return markets, nil
	}
	for key, snap := range snaps.Market {
		if snap == nil {
			continue
		}
		if _, ok := s.allowed[strings.ToLower(key)]; !ok {
			continue
		}
		price := "0"
		if latest, ok := snap.LatestPrice(); ok {
			price = format.Units(latest, format.DefaultDecimals)
		}
		markets = append(markets, Market{
			Address:      snap.Market.Hex(),
			Name:         format.TokenDisplayName(key),
			Token:        key,
			CurrentPrice: price,
		})
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].Token < markets[j].Token })
	return markets, nil
}

// FetchOpenOrders returns the non-maker open orders of user across the
// supported markets. Failures yield an empty list.
func (s *Service) FetchOpenOrders(ctx context.Context, user string) ([]OpenOrder, error) {
	if !common.IsHexAddress(strings.TrimSpace(user)) {
		s.log.Warn("open orders requested for invalid address", zap.String("address", user))
		return []OpenOrder{}, nil
	}
	records, err := s.sdk.OpenOrders(ctx, perennial.OpenOrdersQuery{
		Address: common.HexToAddress(strings.TrimSpace(user)),
		Markets: contracts.MarketAddressList(),
		First:   s.maxOrders,
		Skip:    0,
		IsMaker: false,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.metrics.OrderFetchFailures.Inc()
		s.log.Error("error fetching open orders", zap.Error(err))
		return []OpenOrder{}, nil
	}
	orders := make([]OpenOrder, 0, len(records))
	for _, rec := range records {
		orders = append(orders, s.projectOrder(rec))
	}
	return orders, nil
}

func (s *Service) projectOrder(rec perennial.OpenOrderRecord) OpenOrder {
	order := OpenOrder{
		ID:                rec.ID,
		MarketName:        "Unknown",
		Side:              string(perennial.SideLong),
		Amount:            "0",
		LimitPrice:        "0",
		TriggerComparison: rec.Comparison,
		Status:            rec.Status,
	}
	if rec.Market != nil {
		order.MarketAddress = rec.Market.Hex()
		if key, ok := contracts.MarketKey(*rec.Market); ok {
			order.MarketName = strings.ToUpper(key)
		}
	}
	if rec.Side != nil && *rec.Side != "" {
		order.Side = string(*rec.Side)
	}
	if rec.Delta != nil && rec.Delta.Sign() != 0 {
		order.Amount = format.Units(rec.Delta, s.decimals)
	}
	if rec.Price != nil && rec.Price.Sign() != 0 {
		order.LimitPrice = format.Units(rec.Price, s.decimals)
	}
	if order.Status == "" {
		order.Status = "pending"
	}
	if rec.BlockTimestamp != nil && *rec.BlockTimestamp != 0 {
		order.Timestamp = time.Unix(*rec.BlockTimestamp, 0).UTC().Format("2006-01-02T15:04:05.000Z")
	}
	return order
}

// FetchPortfolioData loads markets and open orders concurrently. If either
// read fails both collections come back empty.
func (s *Service) FetchPortfolioData(ctx context.Context, user string) (PortfolioData, error) {
	var markets []Market
	var orders []OpenOrder
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		markets, err = s.FetchMarkets(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		orders, err = s.FetchOpenOrders(gctx, user)
		return err
	})
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return PortfolioData{}, ctxErr
		}
		s.log.Error("error fetching portfolio data", zap.Error(err))
		return PortfolioData{OpenOrders: []OpenOrder{}, Markets: []Market{}}, nil
	}
	return PortfolioData{OpenOrders: orders, Markets: markets}, nil
}

var errNoWalletAddress = errors.New("no wallet address")
