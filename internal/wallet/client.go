package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Backend is the subset of ethclient.Client used to read chain state and send
// transactions.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Gas estimates are padded by gasBufferNum/gasBufferDen.
const (
	gasBufferNum = 12
	gasBufferDen = 10
)

// Client signs EIP-1559 transactions with a local key.
type Client struct {
	backend Backend
	signer  *Signer
	chainID *big.Int
	log     *zap.Logger
}

func NewClient(backend Backend, signer *Signer, chainID *big.Int, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{backend: backend, signer: signer, chainID: chainID, log: log}
}

func (c *Client) From() common.Address {
	return c.signer.Address()
}

// BuildTx fills nonce, fee caps and gas limit for a call to to.
func (c *Client) BuildTx(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	if c.backend == nil {
		return nil, errors.New("rpc backend not configured")
	}
	from := c.From()
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas tip: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(baseFee, big.NewInt(2)))
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas = gas * gasBufferNum / gasBufferDen
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	}), nil
}

// Transact builds, signs and sends a transaction, returning its hash.
func (c *Client) Transact(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	tx, err := c.BuildTx(ctx, to, data)
	if err != nil {
		return common.Hash{}, err
	}
	signed, err := c.signer.SignTx(tx, c.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	c.log.Info("transaction sent",
		zap.String("hash", signed.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", signed.Nonce()),
		zap.Uint64("gas", signed.Gas()),
	)
	return signed.Hash(), nil
}
