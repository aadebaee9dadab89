package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"perennial-dash/internal/state"
)

const embeddedWalletKey = "wallet:embedded"

type embeddedRecord struct {
	Address     string `msgpack:"address"`
	Key         []byte `msgpack:"key"`
	CreatedAtMS int64  `msgpack:"created_at_ms"`
}

// LoadEmbedded returns the persisted embedded wallet, if one exists.
func LoadEmbedded(ctx context.Context, store state.Store) (*Signer, bool, error) {
	if store == nil {
		return nil, false, errors.New("state store not configured")
	}
	raw, ok, err := store.Get(ctx, embeddedWalletKey)
	if err != nil || !ok {
		return nil, false, err
	}
	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode embedded wallet: %w", err)
	}
	var rec embeddedRecord
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return nil, false, fmt.Errorf("decode embedded wallet: %w", err)
	}
	signer, err := signerFromBytes(rec.Key)
	if err != nil {
		return nil, false, err
	}
	if rec.Address != "" && rec.Address != signer.Address().Hex() {
		return nil, false, errors.New("embedded wallet address does not match its key")
	}
	return signer, true, nil
}

// SaveEmbedded persists signer as the embedded wallet. The key is stored in
// plain form; only the store file's permissions protect it.
func SaveEmbedded(ctx context.Context, store state.Store, signer *Signer) error {
	if store == nil {
		return errors.New("state store not configured")
	}
	payload, err := msgpack.Marshal(embeddedRecord{
		Address:     signer.Address().Hex(),
		Key:         signer.keyBytes(),
		CreatedAtMS: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return store.Set(ctx, embeddedWalletKey, base64.StdEncoding.EncodeToString(payload))
}
