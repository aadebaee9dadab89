package perennial

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const marketABIJSON = `[
  {"inputs":[],"name":"oracle","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const oracleABIJSON = `[
  {"inputs":[],"name":"latest","outputs":[{"components":[{"name":"timestamp","type":"uint256"},{"name":"price","type":"int256"},{"name":"valid","type":"bool"}],"name":"","type":"tuple"}],"stateMutability":"view","type":"function"}
]`

const erc20ABIJSON = `[
  {"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const multiInvokerABIJSON = `[
  {"inputs":[{"name":"account","type":"address"},{"components":[{"name":"action","type":"uint8"},{"name":"args","type":"bytes"}],"name":"invocations","type":"tuple[]"}],"name":"invoke","outputs":[],"stateMutability":"payable","type":"function"}
]`

// ActionPlaceOrder is the MultiInvoker action id for placing a trigger order.
const ActionPlaceOrder uint8 = 3

var (
	marketABI       = mustParseABI(marketABIJSON)
	oracleABI       = mustParseABI(oracleABIJSON)
	erc20ABI        = mustParseABI(erc20ABIJSON)
	multiInvokerABI = mustParseABI(multiInvokerABIJSON)

	placeOrderArgs = mustPlaceOrderArgs()
)

type invocation struct {
	Action uint8
	Args   []byte
}

type triggerOrderWire struct {
	Side       uint8
	Comparison int8
	Fee        *big.Int
	Price      *big.Int
	Delta      *big.Int
}

type oracleVersionWire struct {
	Timestamp *big.Int
	Price     *big.Int
	Valid     bool
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

func mustPlaceOrderArgs() abi.Arguments {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	orderType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "side", Type: "uint8"},
		{Name: "comparison", Type: "int8"},
		{Name: "fee", Type: "uint256"},
		{Name: "price", Type: "int256"},
		{Name: "delta", Type: "int256"},
	})
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Name: "market", Type: addressType}, {Name: "order", Type: orderType}}
}

// EncodeApprove builds ERC-20 approve calldata.
func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, errors.New("approve amount must be >= 0")
	}
	return erc20ABI.Pack("approve", spender, amount)
}

// EncodeLimitOrder builds MultiInvoker.invoke calldata placing one trigger order.
func EncodeLimitOrder(order LimitOrder) ([]byte, error) {
	side, err := order.Side.Code()
	if err != nil {
		return nil, err
	}
	comparison, err := order.Comparison.Code()
	if err != nil {
		return nil, err
	}
	if order.Delta == nil || order.Delta.Sign() == 0 {
		return nil, errors.New("order delta must be non-zero")
	}
	price := order.LimitPrice
	if price == nil {
		price = new(big.Int)
	}
	args, err := placeOrderArgs.Pack(order.Market, triggerOrderWire{
		Side:       side,
		Comparison: comparison,
		Fee:        new(big.Int),
		Price:      price,
		Delta:      order.Delta,
	})
	if err != nil {
		return nil, fmt.Errorf("pack place order: %w", err)
	}
	return multiInvokerABI.Pack("invoke", order.Account, []invocation{{Action: ActionPlaceOrder, Args: args}})
}

// DecodeLimitOrder reverses EncodeLimitOrder for a single place-order invocation.
func DecodeLimitOrder(data []byte) (LimitOrder, error) {
	method, err := multiInvokerABI.MethodById(data)
	if err != nil {
		return LimitOrder{}, err
	}
	if method.Name != "invoke" {
		return LimitOrder{}, fmt.Errorf("unexpected method %s", method.Name)
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return LimitOrder{}, err
	}
	account, ok := values[0].(common.Address)
	if !ok {
		return LimitOrder{}, errors.New("invoke account is not an address")
	}
	invs, ok := abi.ConvertType(values[1], new([]invocation)).(*[]invocation)
	if !ok || len(*invs) != 1 {
		return LimitOrder{}, errors.New("expected exactly one invocation")
	}
	inv := (*invs)[0]
	if inv.Action != ActionPlaceOrder {
		return LimitOrder{}, fmt.Errorf("unexpected action %d", inv.Action)
	}
	orderValues, err := placeOrderArgs.Unpack(inv.Args)
	if err != nil {
		return LimitOrder{}, err
	}
	market, ok := orderValues[0].(common.Address)
	if !ok {
		return LimitOrder{}, errors.New("order market is not an address")
	}
	wire, ok := abi.ConvertType(orderValues[1], new(triggerOrderWire)).(*triggerOrderWire)
	if !ok {
		return LimitOrder{}, errors.New("order tuple has unexpected shape")
	}
	side, ok := sideFromCode(int(wire.Side))
	if !ok {
		return LimitOrder{}, fmt.Errorf("unknown side code %d", wire.Side)
	}
	comparison, ok := comparisonFromCode(int(wire.Comparison))
	if !ok {
		return LimitOrder{}, fmt.Errorf("unknown comparison code %d", wire.Comparison)
	}
	return LimitOrder{
		Market:     market,
		Account:    account,
		Side:       side,
		Comparison: comparison,
		LimitPrice: wire.Price,
		Delta:      wire.Delta,
	}, nil
}

// DecodeApprove reverses EncodeApprove.
func DecodeApprove(data []byte) (common.Address, *big.Int, error) {
	method, err := erc20ABI.MethodById(data)
	if err != nil {
		return common.Address{}, nil, err
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, err
	}
	spender, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, nil, errors.New("approve spender is not an address")
	}
	amount, ok := values[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, errors.New("approve amount is not an integer")
	}
	return spender, amount, nil
}
