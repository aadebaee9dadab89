package wallet

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type Signer struct {
	privKey *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(hexKey string) (*Signer, error) {
	clean := strings.TrimSpace(hexKey)
	if clean == "" {
		return nil, errors.New("private key is required")
	}
	clean = strings.TrimPrefix(clean, "0x")
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, err
	}
	return signerFromKey(key), nil
}

// GenerateSigner creates a fresh random key.
func GenerateSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return signerFromKey(key), nil
}

func signerFromBytes(raw []byte) (*Signer, error) {
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, err
	}
	return signerFromKey(key), nil
}

func signerFromKey(key *ecdsa.PrivateKey) *Signer {
	return &Signer{privKey: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) keyBytes() []byte {
	return crypto.FromECDSA(s.privKey)
}

// HexKey returns the 0x-prefixed private key.
func (s *Signer) HexKey() string {
	return hexutil.Encode(s.keyBytes())
}

func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if chainID == nil {
		return nil, errors.New("chain id is required")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privKey)
}
