package dashboard

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type WalletView struct {
	Ready         bool   `json:"ready"`
	Authenticated bool   `json:"authenticated"`
	Address       string `json:"address,omitempty"`
	Badge         string `json:"badge,omitempty"`
	Error         string `json:"error,omitempty"`
}

// WalletCard connects and disconnects the wallet session.
type WalletCard struct {
	auth Auth
	log  *zap.Logger

	mu      sync.Mutex
	lastErr string
}

func NewWalletCard(auth Auth, log *zap.Logger) *WalletCard {
	return &WalletCard{auth: auth, log: log}
}

func (w *WalletCard) Connect(ctx context.Context) error {
	if err := w.auth.Login(ctx); err != nil {
		w.log.Warn("wallet login failed", zap.Error(err))
		w.setErr(err.Error())
		return err
	}
	w.setErr("")
	return nil
}

func (w *WalletCard) Disconnect() {
	w.auth.Logout()
	w.setErr("")
}

func (w *WalletCard) setErr(msg string) {
	w.mu.Lock()
	w.lastErr = msg
	w.mu.Unlock()
}

func (w *WalletCard) View() WalletView {
	w.mu.Lock()
	lastErr := w.lastErr
	w.mu.Unlock()
	view := WalletView{Ready: w.auth.Ready(), Authenticated: w.auth.Authenticated(), Error: lastErr}
	if addr, ok := w.auth.Address(); ok && view.Authenticated {
		view.Address = addr.Hex()
		view.Badge = ShortAddress(view.Address)
	} else if view.Authenticated {
		view.Badge = "Connected"
	}
	return view
}

// ShortAddress renders 0x1234...abcd.
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
