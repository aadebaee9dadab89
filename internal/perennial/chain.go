package perennial

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ChainReader reads market and oracle state through eth_call.
type ChainReader struct {
	caller ethereum.ContractCaller
}

func NewChainReader(caller ethereum.ContractCaller) *ChainReader {
	return &ChainReader{caller: caller}
}

// Oracle returns the oracle address configured for a market.
func (r *ChainReader) Oracle(ctx context.Context, market common.Address) (common.Address, error) {
	out, err := r.call(ctx, market, marketABI, "oracle")
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, errors.New("oracle() returned a non-address")
	}
	return addr, nil
}

// LatestVersion returns the newest committed oracle version of a market.
func (r *ChainReader) LatestVersion(ctx context.Context, market common.Address) (OracleVersion, error) {
	oracle, err := r.Oracle(ctx, market)
	if err != nil {
		return OracleVersion{}, fmt.Errorf("market %s oracle: %w", market.Hex(), err)
	}
	out, err := r.call(ctx, oracle, oracleABI, "latest")
	if err != nil {
		return OracleVersion{}, fmt.Errorf("oracle %s latest: %w", oracle.Hex(), err)
	}
	wire, ok := abi.ConvertType(out[0], new(oracleVersionWire)).(*oracleVersionWire)
	if !ok || wire.Price == nil {
		return OracleVersion{}, errors.New("latest() returned an unexpected tuple")
	}
	version := OracleVersion{Price: wire.Price, Valid: wire.Valid}
	if wire.Timestamp != nil && wire.Timestamp.IsUint64() {
		version.Timestamp = wire.Timestamp.Uint64()
	}
	return version, nil
}

func (r *ChainReader) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	if r == nil || r.caller == nil {
		return nil, errors.New("chain reader not configured")
	}
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return out, nil
}
