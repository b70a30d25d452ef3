// Package capacity tracks card spending limits and usage. It is the only
// writer of Card.CurrentUsage.
package capacity

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/devkekops/skipay/internal/app/entity"
	"github.com/devkekops/skipay/internal/app/logger"
	"github.com/devkekops/skipay/internal/app/metrics"
	"github.com/devkekops/skipay/internal/app/storage"
)

const DefaultCurrency = "UAH"

func Remaining(c entity.Card) decimal.Decimal {
	return c.Limit.Sub(c.CurrentUsage)
}

type NewCard struct {
	CardNumber string
	BankName   string
	HolderName string
	CardName   string
	Limit      decimal.Decimal
	Currency   string
}

// CardUpdate carries the optional administrative changes; nil fields are kept.
type CardUpdate struct {
	Limit    *decimal.Decimal
	Status   *entity.CardStatus
	CardName *string
}

type Tracker struct {
	cards storage.Cards
}

func New(cards storage.Cards) *Tracker {
	return &Tracker{cards: cards}
}

func (t *Tracker) AddCard(ctx context.Context, traderID string, in NewCard) (entity.Card, error) {
	if !in.Limit.IsPositive() {
		return entity.Card{}, fmt.Errorf("card limit: %w", entity.ErrInvalidAmount)
	}
	if strings.TrimSpace(in.CardNumber) == "" || strings.TrimSpace(in.BankName) == "" {
		return entity.Card{}, fmt.Errorf("card number and bank name are required: %w", entity.ErrInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	card := entity.Card{
		TraderID:     traderID,
		CardNumber:   in.CardNumber,
		BankName:     in.BankName,
		HolderName:   in.HolderName,
		CardName:     in.CardName,
		Limit:        entity.RoundMoney(in.Limit),
		CurrentUsage: decimal.Zero,
		Status:       entity.CardActive,
		Currency:     currency,
	}
	if err := t.cards.CreateCard(ctx, &card); err != nil {
		return entity.Card{}, err
	}
	return card, nil
}

// Reserve consumes amount of the card's remaining capacity.
func (t *Tracker) Reserve(ctx context.Context, cardID string, amount decimal.Decimal) (entity.Card, error) {
	return t.cards.UpdateCard(ctx, cardID, func(c *entity.Card) error {
		if Remaining(*c).LessThan(amount) {
			return fmt.Errorf("card %s has %s left, need %s: %w", c.ID, Remaining(*c), amount, entity.ErrCapacityExceeded)
		}
		c.CurrentUsage = c.CurrentUsage.Add(amount)
		return nil
	})
}

// Release returns a reservation. Usage never drops below zero, which matters
// when an administrative reset happened in between.
func (t *Tracker) Release(ctx context.Context, cardID string, amount decimal.Decimal) error {
	_, err := t.cards.UpdateCard(ctx, cardID, func(c *entity.Card) error {
		c.CurrentUsage = decimal.Max(decimal.Zero, c.CurrentUsage.Sub(amount))
		return nil
	})
	if err != nil {
		return fmt.Errorf("release %s on card %s: %w", amount, cardID, err)
	}
	metrics.CapacityReleased.Inc()
	logger.Logger.Debug().Str("card_id", cardID).Str("amount", amount.String()).Msg("capacity released")
	return nil
}

// Update applies trader-side changes. A card owned by someone else is
// reported as not found.
func (t *Tracker) Update(ctx context.Context, traderID, cardID string, upd CardUpdate) (entity.Card, error) {
	if upd.Limit != nil && !upd.Limit.IsPositive() {
		return entity.Card{}, fmt.Errorf("card limit: %w", entity.ErrInvalidAmount)
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return entity.Card{}, fmt.Errorf("card status %q: %w", *upd.Status, entity.ErrInvalidInput)
	}
	return t.cards.UpdateCard(ctx, cardID, func(c *entity.Card) error {
		if c.TraderID != traderID || c.Status == entity.CardDeleted {
			return fmt.Errorf("card %s: %w", cardID, entity.ErrNotFound)
		}
		if upd.Limit != nil {
			c.Limit = entity.RoundMoney(*upd.Limit)
		}
		if upd.Status != nil {
			c.Status = *upd.Status
		}
		if upd.CardName != nil {
			c.CardName = *upd.CardName
		}
		return nil
	})
}

func (t *Tracker) ResetUsage(ctx context.Context, cardID string) (entity.Card, error) {
	c, err := t.cards.UpdateCard(ctx, cardID, func(c *entity.Card) error {
		c.CurrentUsage = decimal.Zero
		return nil
	})
	if err != nil {
		return c, err
	}
	logger.Logger.Info().Str("card_id", cardID).Msg("card usage reset")
	return c, nil
}

// Delete takes a card out of service for good. Open transactions on it still
// release their reservation when they end.
func (t *Tracker) Delete(ctx context.Context, traderID, cardID string) error {
	_, err := t.cards.UpdateCard(ctx, cardID, func(c *entity.Card) error {
		if c.TraderID != traderID || c.Status == entity.CardDeleted {
			return fmt.Errorf("card %s: %w", cardID, entity.ErrNotFound)
		}
		c.Status = entity.CardDeleted
		return nil
	})
	if err != nil {
		return err
	}
	logger.Logger.Info().Str("card_id", cardID).Str("trader_id", traderID).Msg("card deleted")
	return nil
}

// Cards lists the trader's cards that have not been deleted.
func (t *Tracker) Cards(ctx context.Context, traderID string) ([]entity.Card, error) {
	all, err := t.cards.ListCardsByTrader(ctx, traderID)
	if err != nil {
		return nil, err
	}
	return Live(all), nil
}

// Live drops deleted cards.
func Live(cards []entity.Card) []entity.Card {
	out := make([]entity.Card, 0, len(cards))
	for _, c := range cards {
		if c.Status != entity.CardDeleted {
			out = append(out, c)
		}
	}
	return out
}
