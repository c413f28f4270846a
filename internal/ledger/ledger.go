// Package ledger is the write boundary for trade records. Every record
// entering the journal passes through validation and the idempotent upsert
// here, regardless of which broker or import path produced it.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "trade-journal/internal/errors"
	"trade-journal/internal/logging"
	"trade-journal/internal/models"
	"trade-journal/internal/store"
)

// Ledger validates and persists trade records.
type Ledger struct {
	store  store.DataStore
	logger zerolog.Logger
}

// New creates a ledger over the given store.
func New(st store.DataStore, logger zerolog.Logger) *Ledger {
	return &Ledger{store: st, logger: logger}
}

// Upsert validates and inserts a trade record. When a record with the same
// (userId, broker, brokerOrderId) already exists the stored record is
// returned unchanged and created is false; the incoming fields are discarded.
// First write wins.
func (l *Ledger) Upsert(ctx context.Context, t *models.TradeRecord) (*models.TradeRecord, bool, error) {
	if err := Validate(t); err != nil {
		return nil, false, err
	}

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Status == "" {
		t.Status = defaultStatus(t)
	}

	created, err := l.store.InsertTrade(ctx, t)
	if err != nil {
		return nil, false, apperrors.NewStorageError("insert trade", err)
	}

	if !created {
		existing, err := l.store.GetTradeByOrderID(ctx, t.UserID, t.Broker, t.BrokerOrderID)
		if err != nil {
			return nil, false, apperrors.NewStorageError("get trade", err)
		}
		if existing == nil {
			// The row vanished between the failed insert and the read.
			return nil, false, apperrors.ErrDataNotFound
		}
		l.logger.Debug().
			Str("broker_order_id", t.BrokerOrderID).
			Str("broker", string(t.Broker)).
			Msg("duplicate trade ignored")
		return existing, false, nil
	}

	logging.LogTradeIngested(logging.WithUser(l.logger, t.UserID), string(t.Broker), t.BrokerOrderID, t.Symbol, string(t.Type), t.Quantity)
	return t, true, nil
}

// Validate checks a trade record against the ledger's admission rules.
func Validate(t *models.TradeRecord) error {
	if t == nil {
		return apperrors.NewValidationError("trade", nil, "trade is nil")
	}
	if strings.TrimSpace(t.UserID) == "" {
		return apperrors.NewValidationError("userId", t.UserID, "user id is required")
	}
	if strings.TrimSpace(t.BrokerOrderID) == "" {
		return apperrors.NewValidationError("brokerOrderId", t.BrokerOrderID, "broker order id is required")
	}
	if !t.Broker.IsValid() {
		return apperrors.NewValidationError("broker", string(t.Broker), "unknown broker")
	}
	if strings.TrimSpace(t.Symbol) == "" {
		return apperrors.NewValidationError("symbol", t.Symbol, "symbol is required")
	}
	if t.Quantity <= 0 {
		return apperrors.NewValidationError("quantity", t.Quantity, "quantity must be positive")
	}

	switch t.Type {
	case models.TradeBuy:
		if t.EntryPrice == nil || t.EntryTime == nil {
			return apperrors.NewValidationError("entryPrice", nil, "buy trade requires entry price and entry time")
		}
		if *t.EntryPrice <= 0 {
			return apperrors.NewValidationError("entryPrice", *t.EntryPrice, "entry price must be positive")
		}
	case models.TradeSell:
		if t.ExitPrice == nil || t.ExitTime == nil {
			return apperrors.NewValidationError("exitPrice", nil, "sell trade requires exit price and exit time")
		}
		if *t.ExitPrice <= 0 {
			return apperrors.NewValidationError("exitPrice", *t.ExitPrice, "exit price must be positive")
		}
	default:
		return apperrors.NewValidationError("type", string(t.Type), "trade type must be BUY or SELL")
	}

	return nil
}

func defaultStatus(t *models.TradeRecord) models.OrderStatus {
	if t.Type == models.TradeSell {
		return models.OrderClosed
	}
	return models.OrderOpen
}
