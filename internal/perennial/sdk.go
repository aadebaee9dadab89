package perennial

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"perennial-dash/internal/contracts"
)

// VersionReader reads the latest on-chain oracle version of a market.
type VersionReader interface {
	LatestVersion(ctx context.Context, market common.Address) (OracleVersion, error)
}

// OrderIndexer lists trigger orders from the indexer.
type OrderIndexer interface {
	OpenOrders(ctx context.Context, q OpenOrdersQuery) ([]OpenOrderRecord, error)
}

// PriceSource supplies off-chain price samples keyed by market key.
type PriceSource interface {
	Latest(key string) (OracleVersion, bool)
}

type SDK struct {
	versions VersionReader
	orders   OrderIndexer
	prices   PriceSource
	addrs    contracts.Addresses
	markets  map[string]common.Address
	log      *zap.Logger
}

type Options struct {
	Versions  VersionReader
	Orders    OrderIndexer
	Prices    PriceSource
	Addresses contracts.Addresses
	// Markets maps snapshot keys to market addresses; defaults to the registry.
	Markets map[string]common.Address
	Log     *zap.Logger
}

func New(opts Options) *SDK {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	addrs := opts.Addresses
	if addrs == (contracts.Addresses{}) {
		addrs = contracts.Default
	}
	markets := opts.Markets
	if len(markets) == 0 {
		markets = contracts.MarketsByKey()
	}
	return &SDK{
		versions: opts.Versions,
		orders:   opts.Orders,
		prices:   opts.Prices,
		addrs:    addrs,
		markets:  markets,
		log:      log,
	}
}

// Addresses returns the deployment the SDK writes to.
func (s *SDK) Addresses() contracts.Addresses {
	return s.addrs
}

// MarketSnapshots reads every configured market concurrently. A market whose
// chain read fails still appears when the price source has a sample for it.
func (s *SDK) MarketSnapshots(ctx context.Context) (*MarketSnapshots, error) {
	if s.versions == nil {
		return nil, errors.New("version reader not configured")
	}
	keys := make([]string, 0, len(s.markets))
	for key := range s.markets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var mu sync.Mutex
	out := &MarketSnapshots{Market: make(map[string]*MarketSnapshot, len(keys))}
	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		key := key
		market := s.markets[key]
		g.Go(func() error {
			snap, err := s.snapshot(gctx, key, market)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", key, err)
			}
			mu.Lock()
			out.Market[key] = snap
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SDK) snapshot(ctx context.Context, key string, market common.Address) (*MarketSnapshot, error) {
	snap := &MarketSnapshot{Key: key, Market: market}
	onchain, err := s.versions.LatestVersion(ctx, market)
	if err == nil {
		snap.Versions = append(snap.Versions, onchain)
	}
	if s.prices != nil {
		if sample, ok := s.prices.Latest(key); ok && sample.Price != nil {
			if err != nil || sample.Timestamp > onchain.Timestamp {
				snap.Versions = append([]OracleVersion{sample}, snap.Versions...)
			}
		}
	}
	if len(snap.Versions) == 0 {
		return nil, err
	}
	if err != nil {
		s.log.Warn("oracle read failed, using price feed", zap.String("market", key), zap.Error(err))
	}
	return snap, nil
}

func (s *SDK) OpenOrders(ctx context.Context, q OpenOrdersQuery) ([]OpenOrderRecord, error) {
	if s.orders == nil {
		return nil, errors.New("order indexer not configured")
	}
	return s.orders.OpenOrders(ctx, q)
}

// ApproveCalldata builds the USDC approval granting the MultiInvoker amount.
func (s *SDK) ApproveCalldata(amount *big.Int) (common.Address, []byte, error) {
	data, err := EncodeApprove(s.addrs.MultiInvoker, amount)
	if err != nil {
		return common.Address{}, nil, err
	}
	return s.addrs.USDC, data, nil
}

// LimitOrderCalldata builds the MultiInvoker call placing order.
func (s *SDK) LimitOrderCalldata(order LimitOrder) (common.Address, []byte, error) {
	data, err := EncodeLimitOrder(order)
	if err != nil {
		return common.Address{}, nil, err
	}
	return s.addrs.MultiInvoker, data, nil
}

func (s *SDK) Approve(ctx context.Context, tx Transactor, amount *big.Int) (common.Hash, error) {
	if tx == nil {
		return common.Hash{}, errors.New("transactor required")
	}
	to, data, err := s.ApproveCalldata(amount)
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Transact(ctx, to, data)
}

func (s *SDK) LimitOrder(ctx context.Context, tx Transactor, order LimitOrder) (common.Hash, error) {
	if tx == nil {
		return common.Hash{}, errors.New("transactor required")
	}
	if order.Account == (common.Address{}) {
		order.Account = tx.From()
	}
	to, data, err := s.LimitOrderCalldata(order)
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Transact(ctx, to, data)
}
