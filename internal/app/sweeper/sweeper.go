// Package sweeper retires transactions whose time ran out and takes
// unresponsive traders out of work mode.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/ledger"
	"github.com/devkekops/skipay/internal/app/logger"
	"github.com/devkekops/skipay/internal/app/settlement"
	"github.com/devkekops/skipay/internal/app/storage"
)

const DefaultInterval = time.Minute

type Result struct {
	Expired   int
	Cancelled int
	Disabled  []string
}

type Sweeper struct {
	txs      storage.Transactions
	machine  *settlement.Machine
	ledger   *ledger.Ledger
	interval time.Duration
	now      func() time.Time
}

func New(txs storage.Transactions, machine *settlement.Machine, l *ledger.Ledger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		txs:      txs,
		machine:  machine,
		ledger:   l,
		interval: interval,
		now:      time.Now,
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// SweepTrader is the lazy sweep run when a trader lists their transactions.
func (s *Sweeper) SweepTrader(ctx context.Context, traderID string) (Result, error) {
	return s.sweep(ctx, storage.TxFilter{TraderID: traderID})
}

// SweepAll covers every trader, independent of anyone's activity.
func (s *Sweeper) SweepAll(ctx context.Context) (Result, error) {
	return s.sweep(ctx, storage.TxFilter{})
}

func (s *Sweeper) sweep(ctx context.Context, f storage.TxFilter) (Result, error) {
	var res Result
	f.Statuses = []entity.TransactionStatus{entity.TxPending, entity.TxUserConfirmed}
	open, err := s.txs.ListTransactions(ctx, f)
	if err != nil {
		return res, fmt.Errorf("list open transactions: %w", err)
	}

	now := s.now()
	penalized := make(map[string]bool)
	var errs []error
	for _, t := range open {
		if !now.After(t.ExpiresAt.Time) {
			continue
		}
		switch t.Status {
		case entity.TxUserConfirmed:
			ok, err := s.machine.Expire(ctx, t.ID, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("expire %s: %w", t.ID, err))
				continue
			}
			if ok {
				res.Expired++
				penalized[t.TraderID] = true
				logger.Logger.Warn().Str("transaction_id", t.ID).Str("trader_id", t.TraderID).Msg("transaction expired")
			}
		case entity.TxPending:
			ok, err := s.machine.CancelStale(ctx, t.ID, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("cancel %s: %w", t.ID, err))
				continue
			}
			if ok {
				res.Cancelled++
			}
		}
	}

	// An expired transaction is no longer user_confirmed, so a later pass
	// cannot find it again: its trader is disabled now or never.
	for traderID := range penalized {
		if _, err := s.disable(ctx, traderID); err != nil {
			errs = append(errs, fmt.Errorf("disable trader %s: %w", traderID, err))
			continue
		}
		res.Disabled = append(res.Disabled, traderID)
	}
	return res, errors.Join(errs...)
}

// disable runs detached so a cancelled sweep still penalizes what it expired.
func (s *Sweeper) disable(ctx context.Context, traderID string) (entity.Trader, error) {
	ctx, cancel := storage.Detached(ctx)
	defer cancel()
	return s.ledger.DisableWork(ctx, traderID, ledger.ReasonUnresponsive)
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			logger.Logger.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			res, err := s.SweepAll(ctx)
			if err != nil {
				logger.Logger.Error().Err(err).Msg("expiry sweep incomplete")
			}
			if res.Expired > 0 || res.Cancelled > 0 {
				logger.Logger.Info().
					Int("expired", res.Expired).
					Int("cancelled", res.Cancelled).
					Strs("disabled_traders", res.Disabled).
					Msg("expiry sweep")
			}
		}
	}
}
