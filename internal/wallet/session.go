// Package wallet binds a local signing key to the dashboard: it loads the key,
// checks the connected chain and signs transactions for the trading client.
//
// The embedded wallet keeps its private key unencrypted in the state store. It
// is meant for test networks only; fund it accordingly.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"perennial-dash/internal/config"
	"perennial-dash/internal/perennial"
	"perennial-dash/internal/state"
)

var ErrNoWallet = errors.New("no wallet available")

// Session tracks whether a wallet is connected and exposes its signing client.
type Session struct {
	chain   config.ChainConfig
	wallet  config.WalletConfig
	backend Backend
	store   state.Store
	log     *zap.Logger
	getenv  func(string) string

	mu            sync.RWMutex
	ready         bool
	chainID       *big.Int
	authenticated bool
	client        *Client
}

func NewSession(chain config.ChainConfig, walletCfg config.WalletConfig, backend Backend, store state.Store, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		chain:   chain,
		wallet:  walletCfg,
		backend: backend,
		store:   store,
		log:     log,
		getenv:  os.Getenv,
	}
}

// Init confirms the RPC endpoint serves a supported chain. The session is
// ready once Init succeeds.
func (s *Session) Init(ctx context.Context) error {
	if s.backend == nil {
		return errors.New("rpc backend not configured")
	}
	id, err := s.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	if !id.IsInt64() || !s.chain.Supports(id.Int64()) {
		return fmt.Errorf("unsupported chain id %s", id)
	}
	s.mu.Lock()
	s.ready = true
	s.chainID = id
	s.mu.Unlock()
	return nil
}

func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Address returns the connected wallet address.
func (s *Session) Address() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticated || s.client == nil {
		return common.Address{}, false
	}
	return s.client.From(), true
}

// Client returns the signing client of the connected wallet.
func (s *Session) Client() (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticated || s.client == nil {
		return nil, false
	}
	return s.client, true
}

// Transactor is Client typed for the trading layer.
func (s *Session) Transactor() (perennial.Transactor, bool) {
	client, ok := s.Client()
	if !ok {
		return nil, false
	}
	return client, true
}

// Login connects a wallet: the key from the configured env var when set,
// otherwise the embedded wallet when the policy allows one.
func (s *Session) Login(ctx context.Context) error {
	if s.Authenticated() {
		return nil
	}
	if !s.Ready() {
		if err := s.Init(ctx); err != nil {
			return err
		}
	}
	signer, source, err := s.loadSigner(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.client = NewClient(s.backend, signer, s.chainID, s.log)
	s.authenticated = true
	s.mu.Unlock()
	s.log.Info("wallet connected", zap.String("address", signer.Address().Hex()), zap.String("source", source))
	return nil
}

func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authenticated && s.client != nil {
		s.log.Info("wallet disconnected", zap.String("address", s.client.From().Hex()))
	}
	s.authenticated = false
	s.client = nil
}

func (s *Session) loadSigner(ctx context.Context) (*Signer, string, error) {
	if env := strings.TrimSpace(s.wallet.PrivateKeyEnv); env != "" {
		if key := strings.TrimSpace(s.getenv(env)); key != "" {
			signer, err := NewSigner(key)
			if err != nil {
				return nil, "", fmt.Errorf("%s: %w", env, err)
			}
			return signer, "env", nil
		}
	}
	if s.wallet.EmbeddedPolicy != config.EmbeddedPolicyUsersWithoutWallets {
		return nil, "", fmt.Errorf("%w: set %s", ErrNoWallet, s.wallet.PrivateKeyEnv)
	}
	signer, ok, err := LoadEmbedded(ctx, s.store)
	if err != nil {
		return nil, "", err
	}
	if ok {
		return signer, "embedded", nil
	}
	signer, err = GenerateSigner()
	if err != nil {
		return nil, "", err
	}
	if err := SaveEmbedded(ctx, s.store, signer); err != nil {
		return nil, "", fmt.Errorf("save embedded wallet: %w", err)
	}
	s.log.Info("embedded wallet created", zap.String("address", signer.Address().Hex()))
	return signer, "embedded", nil
}
