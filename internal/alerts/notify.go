package alerts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Sender delivers a plain-text message.
type Sender interface {
	Send(ctx context.Context, message string) error
}

// SubmissionAlert describes a transaction sent for the wallet.
type SubmissionAlert struct {
	Kind       string
	Market     string
	Side       string
	Amount     string
	LimitPrice string
	TxHash     string
}

// Notifier formats submission alerts and sends them, logging failures instead
// of returning them.
type Notifier struct {
	sender Sender
	log    *zap.Logger
}

func NewNotifier(sender Sender, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{sender: sender, log: log}
}

func (n *Notifier) Submission(ctx context.Context, alert SubmissionAlert) {
	if n == nil || n.sender == nil {
		return
	}
	if err := n.sender.Send(ctx, FormatSubmission(alert)); err != nil {
		n.log.Warn("submission alert failed", zap.String("tx", alert.TxHash), zap.Error(err))
	}
}

func FormatSubmission(alert SubmissionAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Position %s: %s %s", alert.Kind, strings.ToUpper(alert.Side), alert.Market)
	if alert.Amount != "" {
		fmt.Fprintf(&b, "\namount: %s", alert.Amount)
	}
	if alert.LimitPrice != "" {
		fmt.Fprintf(&b, "\nlimit: %s", alert.LimitPrice)
	}
	fmt.Fprintf(&b, "\ntx: %s", alert.TxHash)
	return b.String()
}
