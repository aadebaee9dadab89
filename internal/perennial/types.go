package perennial

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type Side string

const (
	SideMaker Side = "maker"
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ParseSide accepts the lower-case side names used by forms and the indexer.
func ParseSide(raw string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(raw))) {
	case SideMaker:
		return SideMaker, nil
	case SideLong:
		return SideLong, nil
	case SideShort:
		return SideShort, nil
	}
	return "", fmt.Errorf("unknown side %q", raw)
}

// Code is the on-chain enum value of the side.
func (s Side) Code() (uint8, error) {
	switch s {
	case SideMaker:
		return 0, nil
	case SideLong:
		return 1, nil
	case SideShort:
		return 2, nil
	}
	return 0, fmt.Errorf("unknown side %q", string(s))
}

func sideFromCode(code int) (Side, bool) {
	switch code {
	case 0:
		return SideMaker, true
	case 1:
		return SideLong, true
	case 2:
		return SideShort, true
	}
	return "", false
}

type TriggerComparison string

const (
	CompareLT  TriggerComparison = "lt"
	CompareLTE TriggerComparison = "lte"
	CompareEQ  TriggerComparison = "eq"
	CompareGTE TriggerComparison = "gte"
	CompareGT  TriggerComparison = "gt"
)

// Code is the signed on-chain encoding of the comparison.
func (c TriggerComparison) Code() (int8, error) {
	switch c {
	case CompareLT:
		return -2, nil
	case CompareLTE:
		return -1, nil
	case CompareEQ:
		return 0, nil
	case CompareGTE:
		return 1, nil
	case CompareGT:
		return 2, nil
	}
	return 0, fmt.Errorf("unknown trigger comparison %q", string(c))
}

func comparisonFromCode(code int) (TriggerComparison, bool) {
	switch code {
	case -2:
		return CompareLT, true
	case -1:
		return CompareLTE, true
	case 0:
		return CompareEQ, true
	case 1:
		return CompareGTE, true
	case 2:
		return CompareGT, true
	}
	return "", false
}

// OracleVersion is one price sample. Price is Fixed6.
type OracleVersion struct {
	Timestamp uint64
	Price     *big.Int
	Valid     bool
}

type MarketSnapshot struct {
	Key    string
	Market common.Address
	// Versions are ordered newest first.
	Versions []OracleVersion
}

// LatestPrice returns the price of the newest version, if any.
func (s *MarketSnapshot) LatestPrice() (*big.Int, bool) {
	if s == nil || len(s.Versions) == 0 || s.Versions[0].Price == nil {
		return nil, false
	}
	return s.Versions[0].Price, true
}

type MarketSnapshots struct {
	Market map[string]*MarketSnapshot
}

type OpenOrdersQuery struct {
	Address common.Address
	Markets []common.Address
	First   int
	Skip    int
	IsMaker bool
}

// OpenOrderRecord is an indexer row. Any field the indexer omitted or sent
// malformed stays at its zero value or nil.
type OpenOrderRecord struct {
	ID             string
	Market         *common.Address
	Side           *Side
	Comparison     string
	Price          *big.Int
	Delta          *big.Int
	Status         string
	BlockTimestamp *int64
}

type LimitOrder struct {
	Market     common.Address
	Account    common.Address
	Side       Side
	Comparison TriggerComparison
	LimitPrice *big.Int
	Delta      *big.Int
}

// Transactor signs and submits a transaction carrying data to the contract at to.
type Transactor interface {
	From() common.Address
	Transact(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
}
