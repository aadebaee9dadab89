package perennial

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"perennial-dash/internal/contracts"
)

type fakeVersions struct {
	versions map[common.Address]OracleVersion
	err      error
}

func (f *fakeVersions) LatestVersion(_ context.Context, market common.Address) (OracleVersion, error) {
	if f.err != nil {
		return OracleVersion{}, f.err
	}
	v, ok := f.versions[market]
	if !ok {
		return OracleVersion{}, errors.New("no version")
	}
	return v, nil
}

type fakePrices map[string]OracleVersion

func (f fakePrices) Latest(key string) (OracleVersion, bool) {
	v, ok := f[key]
	return v, ok
}

type recordingTx struct {
	from  common.Address
	calls []struct {
		to   common.Address
		data []byte
	}
}

func (r *recordingTx) From() common.Address { return r.from }

func (r *recordingTx) Transact(_ context.Context, to common.Address, data []byte) (common.Hash, error) {
	r.calls = append(r.calls, struct {
		to   common.Address
		data []byte
	}{to, data})
	return common.HexToHash("0x01"), nil
}

func TestMarketSnapshotsPrependsNewerFeedSample(t *testing.T) {
	eth := contracts.Default.Markets.PythEthUsdc
	btc := contracts.Default.Markets.PythBtcUsdc
	sdk := New(Options{
		Versions: &fakeVersions{versions: map[common.Address]OracleVersion{
			eth: {Timestamp: 100, Price: big.NewInt(3_000_000_000), Valid: true},
			btc: {Timestamp: 100, Price: big.NewInt(60_000_000_000), Valid: true},
		}},
		Prices: fakePrices{
			contracts.KeyETH: {Timestamp: 200, Price: big.NewInt(3_100_000_000), Valid: true},
			contracts.KeyBTC: {Timestamp: 50, Price: big.NewInt(1), Valid: true},
		},
	})
	snaps, err := sdk.MarketSnapshots(context.Background())
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	ethSnap := snaps.Market[contracts.KeyETH]
	if len(ethSnap.Versions) != 2 || ethSnap.Versions[0].Price.Int64() != 3_100_000_000 {
		t.Fatalf("expected feed sample first, got %+v", ethSnap.Versions)
	}
	btcSnap := snaps.Market[contracts.KeyBTC]
	if len(btcSnap.Versions) != 1 || btcSnap.Versions[0].Price.Int64() != 60_000_000_000 {
		t.Fatalf("expected stale feed sample ignored, got %+v", btcSnap.Versions)
	}
}

func TestMarketSnapshotsFallsBackToFeed(t *testing.T) {
	sdk := New(Options{
		Versions: &fakeVersions{err: errors.New("rpc down")},
		Prices:   fakePrices{contracts.KeyETH: {Timestamp: 1, Price: big.NewInt(7)}},
		Markets:  map[string]common.Address{contracts.KeyETH: contracts.Default.Markets.PythEthUsdc},
	})
	snaps, err := sdk.MarketSnapshots(context.Background())
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if price, ok := snaps.Market[contracts.KeyETH].LatestPrice(); !ok || price.Int64() != 7 {
		t.Fatalf("expected feed price, got %v", price)
	}

	sdk = New(Options{Versions: &fakeVersions{err: errors.New("rpc down")}})
	if _, err := sdk.MarketSnapshots(context.Background()); err == nil {
		t.Fatalf("expected error without any source")
	}
}

func TestApproveAndLimitOrderTargets(t *testing.T) {
	tx := &recordingTx{from: common.HexToAddress("0xaaaa")}
	sdk := New(Options{})
	if _, err := sdk.Approve(context.Background(), tx, big.NewInt(10)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := sdk.LimitOrder(context.Background(), tx, LimitOrder{
		Market:     contracts.Default.Markets.PythBtcUsdc,
		Side:       SideLong,
		Comparison: CompareGTE,
		Delta:      big.NewInt(10),
	}); err != nil {
		t.Fatalf("limit order: %v", err)
	}
	if len(tx.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(tx.calls))
	}
	if tx.calls[0].to != contracts.Default.USDC {
		t.Fatalf("approve should target USDC, got %s", tx.calls[0].to.Hex())
	}
	spender, _, err := DecodeApprove(tx.calls[0].data)
	if err != nil || spender != contracts.Default.MultiInvoker {
		t.Fatalf("approve spender should be the MultiInvoker, got %s (%v)", spender.Hex(), err)
	}
	if tx.calls[1].to != contracts.Default.MultiInvoker {
		t.Fatalf("order should target MultiInvoker, got %s", tx.calls[1].to.Hex())
	}
	order, err := DecodeLimitOrder(tx.calls[1].data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if order.Account != tx.from {
		t.Fatalf("expected account defaulted to signer, got %s", order.Account.Hex())
	}
}

type fakeCaller struct {
	oracle common.Address
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := marketABI.MethodById(msg.Data)
	if err == nil && method.Name == "oracle" {
		return method.Outputs.Pack(f.oracle)
	}
	method, err = oracleABI.MethodById(msg.Data)
	if err != nil {
		return nil, err
	}
	if *msg.To != f.oracle {
		return nil, errors.New("latest called on wrong contract")
	}
	return method.Outputs.Pack(oracleVersionWire{
		Timestamp: big.NewInt(1700000000),
		Price:     big.NewInt(2_950_123_456),
		Valid:     true,
	})
}

func TestChainReaderLatestVersion(t *testing.T) {
	reader := NewChainReader(&fakeCaller{oracle: common.HexToAddress("0x0e0e")})
	version, err := reader.LatestVersion(context.Background(), contracts.Default.Markets.PythEthUsdc)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if version.Timestamp != 1700000000 || version.Price.Int64() != 2_950_123_456 || !version.Valid {
		t.Fatalf("unexpected version %+v", version)
	}
}
