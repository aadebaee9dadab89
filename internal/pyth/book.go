// Package pyth streams Pyth Hermes price updates into an in-memory book keyed
// by market key.
package pyth

import (
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"perennial-dash/internal/perennial"
)

// PriceDecimals is the fixed-point scale of book prices.
const PriceDecimals = 6

type Update struct {
	Key     string
	FeedID  string
	Version perennial.OracleVersion
}

// Book holds the newest sample per market key. The zero value is not usable;
// build one with NewBook.
type Book struct {
	mu     sync.RWMutex
	feeds  map[string]string
	prices map[string]perennial.OracleVersion
}

// NewBook takes a market key to Pyth feed id map.
func NewBook(feeds map[string]string) *Book {
	byID := make(map[string]string, len(feeds))
	for key, id := range feeds {
		byID[normalizeID(id)] = strings.ToLower(key)
	}
	return &Book{feeds: byID, prices: make(map[string]perennial.OracleVersion)}
}

// FeedIDs returns the subscribed ids in 0x form.
func (b *Book) FeedIDs() []string {
	ids := make([]string, 0, len(b.feeds))
	for id := range b.feeds {
		ids = append(ids, "0x"+id)
	}
	return ids
}

func (b *Book) Latest(key string) (perennial.OracleVersion, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.prices[strings.ToLower(key)]
	return v, ok
}

// Apply stores u unless the book already holds a newer sample.
func (b *Book) Apply(u Update) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.prices[u.Key]; ok && cur.Timestamp > u.Version.Timestamp {
		return false
	}
	b.prices[u.Key] = u.Version
	return true
}

type wireMessage struct {
	Type      string    `json:"type"`
	PriceFeed *wireFeed `json:"price_feed"`
	Error     string    `json:"error"`
	Status    string    `json:"status"`
}

type wireFeed struct {
	ID    string    `json:"id"`
	Price wirePrice `json:"price"`
}

type wirePrice struct {
	Price       json.Number `json:"price"`
	Conf        json.Number `json:"conf"`
	Expo        int32       `json:"expo"`
	PublishTime int64       `json:"publish_time"`
}

var errNotPriceUpdate = errors.New("not a price update")

// Parse decodes a Hermes price_update message for a known feed.
func (b *Book) Parse(raw []byte) (Update, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Update{}, err
	}
	if msg.Type != "price_update" || msg.PriceFeed == nil {
		return Update{}, errNotPriceUpdate
	}
	id := normalizeID(msg.PriceFeed.ID)
	key, ok := b.feeds[id]
	if !ok {
		return Update{}, errors.New("unknown feed " + msg.PriceFeed.ID)
	}
	price, err := scalePrice(msg.PriceFeed.Price.Price.String(), msg.PriceFeed.Price.Expo)
	if err != nil {
		return Update{}, err
	}
	ts := msg.PriceFeed.Price.PublishTime
	if ts < 0 {
		ts = 0
	}
	return Update{
		Key:    key,
		FeedID: "0x" + id,
		Version: perennial.OracleVersion{
			Timestamp: uint64(ts),
			Price:     price,
			Valid:     price.Sign() > 0,
		},
	}, nil
}

// scalePrice converts mantissa*10^expo into a PriceDecimals fixed-point
// integer, truncating extra precision.
func scalePrice(mantissa string, expo int32) (*big.Int, error) {
	m, ok := new(big.Int).SetString(strings.TrimSpace(mantissa), 10)
	if !ok {
		return nil, errors.New("invalid price mantissa " + strconv.Quote(mantissa))
	}
	return decimal.NewFromBigInt(m, expo).Shift(PriceDecimals).Truncate(0).BigInt(), nil
}

func normalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.TrimPrefix(id, "0x")
}
