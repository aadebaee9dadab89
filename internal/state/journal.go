package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const journalPrefix = "journal:"

// Submission is one transaction sent on behalf of the wallet.
type Submission struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Account     string `json:"account"`
	Market      string `json:"market"`
	Side        string `json:"side"`
	Amount      string `json:"amount"`
	LimitPrice  string `json:"limit_price"`
	TxHash      string `json:"tx_hash"`
	CreatedAtMS int64  `json:"created_at_ms"`
}

// RecordSubmission assigns an id and timestamp when missing and persists sub.
func RecordSubmission(ctx context.Context, store Store, sub Submission) (Submission, error) {
	if store == nil {
		return sub, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAtMS == 0 {
		sub.CreatedAtMS = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		return sub, err
	}
	return sub, store.Set(ctx, journalKey(sub), string(payload))
}

// ListSubmissions returns up to limit submissions, newest first. limit <= 0
// returns all of them.
func ListSubmissions(ctx context.Context, store Store, limit int) ([]Submission, error) {
	if store == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := store.List(ctx, journalPrefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	out := make([]Submission, 0, len(keys))
	for _, k := range keys {
		if limit > 0 && len(out) >= limit {
			break
		}
		if strings.TrimSpace(raw[k]) == "" {
			continue
		}
		var sub Submission
		if err := json.Unmarshal([]byte(raw[k]), &sub); err != nil {
			return nil, fmt.Errorf("journal entry %s: %w", k, err)
		}
		out = append(out, sub)
	}
	return out, nil
}

func journalKey(sub Submission) string {
	return fmt.Sprintf("%s%016d:%s", journalPrefix, sub.CreatedAtMS, sub.ID)
}
