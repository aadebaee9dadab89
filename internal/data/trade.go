package data

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"perennial-dash/internal/alerts"
	"perennial-dash/internal/contracts"
	"perennial-dash/internal/history"
	"perennial-dash/internal/perennial"
	"perennial-dash/internal/state"
)

// OpenTrigger is the trigger comparison used when opening side.
func OpenTrigger(side perennial.Side) perennial.TriggerComparison {
	if side == perennial.SideShort {
		return perennial.CompareLTE
	}
	return perennial.CompareGTE
}

// CloseTrigger is the trigger comparison used when closing side.
func CloseTrigger(side perennial.Side) perennial.TriggerComparison {
	if side == perennial.SideShort {
		return perennial.CompareGTE
	}
	return perennial.CompareLTE
}

// ParseAmount converts a decimal string into a fixed-point integer with the
// given number of decimals. Digits beyond that precision are truncated.
func ParseAmount(raw string, decimals int) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("amount is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// OpenPosition approves the MultiInvoker for the amount, then places a limit
// order with a positive delta.
func (s *Service) OpenPosition(ctx context.Context, tx perennial.Transactor, params TradeParams) (string, error) {
	order, err := s.PlanOpen(txAccount(tx), params)
	if err != nil {
		s.log.Error("error opening position", zap.Error(err))
		return "", err
	}
	if _, err := s.sdk.Approve(ctx, tx, order.Delta); err != nil {
		s.metrics.OrdersFailed.Inc()
		s.log.Error("error opening position", zap.String("step", "approve"), zap.Error(err))
		return "", err
	}
	s.metrics.Approvals.Inc()
	hash, err := s.submit(ctx, tx, order)
	if err != nil {
		s.log.Error("error opening position", zap.Error(err))
		return "", err
	}
	s.recordSubmission(ctx, "opened", order, params.Amount, params.LimitPrice, hash)
	return hash, nil
}

// ClosePosition places a limit order with a negative delta. No approval is
// sent.
func (s *Service) ClosePosition(ctx context.Context, tx perennial.Transactor, params ClosePositionParams) (string, error) {
	order, err := s.PlanClose(txAccount(tx), params)
	if err != nil {
		s.log.Error("error closing position", zap.Error(err))
		return "", err
	}
	hash, err := s.submit(ctx, tx, order)
	if err != nil {
		s.log.Error("error closing position", zap.Error(err))
		return "", err
	}
	s.recordSubmission(ctx, "closed", order, closeAmount(params), params.LimitPrice, hash)
	return hash, nil
}

// PlanOpen returns the order OpenPosition would place for account. The
// order's Delta is also the approval amount.
func (s *Service) PlanOpen(account common.Address, params TradeParams) (perennial.LimitOrder, error) {
	return s.buildOrder(account, params.MarketAddress, params.Side, params.Amount, params.LimitPrice, true)
}

// PlanClose returns the order ClosePosition would place for account.
func (s *Service) PlanClose(account common.Address, params ClosePositionParams) (perennial.LimitOrder, error) {
	return s.buildOrder(account, params.MarketAddress, params.Side, closeAmount(params), params.LimitPrice, false)
}

func closeAmount(params ClosePositionParams) string {
	if amount := strings.TrimSpace(params.Amount); amount != "" {
		return amount
	}
	return DefaultCloseAmount
}

func txAccount(tx perennial.Transactor) common.Address {
	if tx == nil {
		return common.Address{}
	}
	return tx.From()
}

func (s *Service) buildOrder(account common.Address, market, rawSide, amount, limit string, open bool) (perennial.LimitOrder, error) {
	if account == (common.Address{}) {
		return perennial.LimitOrder{}, errNoWalletAddress
	}
	marketAddr, ok := contracts.ResolveMarket(market)
	if !ok {
		return perennial.LimitOrder{}, fmt.Errorf("unknown market %q", market)
	}
	side, err := perennial.ParseSide(rawSide)
	if err != nil {
		return perennial.LimitOrder{}, err
	}
	size, err := ParseAmount(amount, s.decimals)
	if err != nil {
		return perennial.LimitOrder{}, err
	}
	if size.Sign() <= 0 {
		return perennial.LimitOrder{}, errors.New("amount must be greater than zero")
	}
	price := new(big.Int)
	if strings.TrimSpace(limit) != "" {
		if price, err = ParseAmount(limit, s.decimals); err != nil {
			return perennial.LimitOrder{}, fmt.Errorf("limit price: %w", err)
		}
		if price.Sign() < 0 {
			return perennial.LimitOrder{}, errors.New("limit price must not be negative")
		}
	}
	order := perennial.LimitOrder{
		Market:     marketAddr,
		Account:    account,
		Side:       side,
		LimitPrice: price,
		Delta:      size,
	}
	if open {
		order.Comparison = OpenTrigger(side)
	} else {
		order.Comparison = CloseTrigger(side)
		order.Delta = new(big.Int).Neg(size)
	}
	return order, nil
}

func (s *Service) submit(ctx context.Context, tx perennial.Transactor, order perennial.LimitOrder) (string, error) {
	hash, err := s.sdk.LimitOrder(ctx, tx, order)
	if err != nil {
		s.metrics.OrdersFailed.Inc()
		return "", err
	}
	s.metrics.OrdersSubmitted.Inc()
	s.log.Info("limit order submitted",
		zap.String("market", order.Market.Hex()),
		zap.String("side", string(order.Side)),
		zap.String("comparison", string(order.Comparison)),
		zap.String("delta", order.Delta.String()),
		zap.String("tx", hash.Hex()),
	)
	return hash.Hex(), nil
}

func (s *Service) recordSubmission(ctx context.Context, kind string, order perennial.LimitOrder, amount, limit, hash string) {
	market := contracts.DisplayMarketName(order.Market.Hex())
	now := s.now()
	if s.journal != nil {
		if _, err := state.RecordSubmission(ctx, s.journal, state.Submission{
			Kind:        kind,
			Account:     order.Account.Hex(),
			Market:      order.Market.Hex(),
			Side:        string(order.Side),
			Amount:      amount,
			LimitPrice:  limit,
			TxHash:      hash,
			CreatedAtMS: now.UnixMilli(),
		}); err != nil {
			s.log.Warn("journal write failed", zap.String("tx", hash), zap.Error(err))
		}
	}
	if s.history != nil {
		s.history.EnqueueSubmission(history.Submission{
			Time:       now,
			Kind:       kind,
			Account:    order.Account.Hex(),
			Market:     market,
			Side:       string(order.Side),
			Amount:     amount,
			LimitPrice: limit,
			TxHash:     hash,
		})
	}
	if s.notifier != nil {
		alert := alerts.SubmissionAlert{
			Kind:       kind,
			Market:     market,
			Side:       string(order.Side),
			Amount:     amount,
			LimitPrice: limit,
			TxHash:     hash,
		}
		// The hash is already known; the alert must not hold up the caller.
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			defer cancel()
			s.notifier.Submission(notifyCtx, alert)
		}()
	}
}

// Wait blocks until in-flight submission alerts have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// Submissions lists journaled submissions, newest first.
func (s *Service) Submissions(ctx context.Context, limit int) ([]state.Submission, error) {
	return state.ListSubmissions(ctx, s.journal, limit)
}
