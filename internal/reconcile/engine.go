// Package reconcile maintains position aggregates and realized PnL under a
// weighted average cost model. Each trade is folded into its position exactly
// once, in execution order, and a sell's realized PnL is derived from the
// average buy price standing at the moment the sell is applied.
package reconcile

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "trade-journal/internal/errors"
	"trade-journal/internal/logging"
	"trade-journal/internal/models"
	"trade-journal/internal/store"
)

// Engine folds trades into positions and computes realized PnL.
type Engine struct {
	store  store.DataStore
	logger zerolog.Logger

	// userLocks serializes recompute against incremental reconciles for the
	// same user. Reconcile takes the read side so independent positions
	// still proceed in parallel; RecomputeAll takes the write side.
	userMu    sync.Mutex
	userLocks map[string]*sync.RWMutex

	// posLocks serializes reconciles touching the same position identity.
	posMu    sync.Mutex
	posLocks map[models.PositionKey]*sync.Mutex
}

// NewEngine creates a reconciliation engine over the given store.
func NewEngine(st store.DataStore, logger zerolog.Logger) *Engine {
	return &Engine{
		store:     st,
		logger:    logger,
		userLocks: make(map[string]*sync.RWMutex),
		posLocks:  make(map[models.PositionKey]*sync.Mutex),
	}
}

func (e *Engine) userLock(userID string) *sync.RWMutex {
	e.userMu.Lock()
	defer e.userMu.Unlock()
	if l, ok := e.userLocks[userID]; ok {
		return l
	}
	l := &sync.RWMutex{}
	e.userLocks[userID] = l
	return l
}

func (e *Engine) positionLock(key models.PositionKey) *sync.Mutex {
	e.posMu.Lock()
	defer e.posMu.Unlock()
	if l, ok := e.posLocks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	e.posLocks[key] = l
	return l
}

// Reconcile folds a single trade into its position and returns the realized
// PnL for a sell, or nil when none applies. The caller persists the returned
// PnL onto the trade record via the store.
//
// BUY adds shares at the trade price and re-blends the average cost. SELL
// realizes (exitPrice - avgBuyPrice) * soldQty against the standing average,
// where soldQty is clamped to the held quantity. A sell with no standing
// position yields nil PnL and writes no position row.
func (e *Engine) Reconcile(ctx context.Context, t *models.TradeRecord) (*float64, error) {
	key := models.PositionKey{UserID: t.UserID, Symbol: t.Symbol, Exchange: t.Exchange}

	ul := e.userLock(t.UserID)
	ul.RLock()
	defer ul.RUnlock()

	pl := e.positionLock(key)
	pl.Lock()
	defer pl.Unlock()

	pos, err := e.store.GetPosition(ctx, key)
	if err != nil {
		return nil, apperrors.NewStorageError("get position", err)
	}

	pnl, pos, persist := applyTrade(pos, t)
	if persist {
		if err := e.store.SavePosition(ctx, pos); err != nil {
			return nil, apperrors.NewStorageError("save position", err)
		}
	}

	avg := 0.0
	qty := 0
	if pos != nil {
		avg = pos.AvgBuyPrice
		qty = pos.Quantity
	}
	logging.LogReconcile(logging.WithUser(e.logger, t.UserID), t.ID, t.Symbol, pnl, qty, avg)

	return pnl, nil
}

// applyTrade folds a trade into a position snapshot. It returns the realized
// PnL (sells only), the updated position, and whether the position should be
// persisted. pos may be nil for a first trade; the returned position is a
// fresh value, never the input.
func applyTrade(pos *models.Position, t *models.TradeRecord) (*float64, *models.Position, bool) {
	switch t.Type {
	case models.TradeBuy:
		next := models.Position{
			UserID:      t.UserID,
			Symbol:      t.Symbol,
			Exchange:    t.Exchange,
			LastTradeID: t.ID,
			LastUpdated: time.Now(),
		}
		price := *t.EntryPrice
		if pos == nil || pos.Quantity <= 0 {
			next.Quantity = t.Quantity
			next.TotalCost = float64(t.Quantity) * price
		} else {
			next.Quantity = pos.Quantity + t.Quantity
			next.TotalCost = pos.TotalCost + float64(t.Quantity)*price
		}
		next.AvgBuyPrice = next.TotalCost / float64(next.Quantity)
		return nil, &next, true

	case models.TradeSell:
		if pos == nil || pos.Quantity <= 0 {
			// Naked sell. Nothing to realize against; the trade stays
			// unreconciled and no position row is created.
			return nil, pos, false
		}

		soldQty := t.Quantity
		if soldQty > pos.Quantity {
			soldQty = pos.Quantity
		}

		pnl := round2(float64(soldQty) * (*t.ExitPrice - pos.AvgBuyPrice))

		next := models.Position{
			UserID:      pos.UserID,
			Symbol:      pos.Symbol,
			Exchange:    pos.Exchange,
			Quantity:    pos.Quantity - soldQty,
			AvgBuyPrice: pos.AvgBuyPrice,
			LastTradeID: t.ID,
			LastUpdated: time.Now(),
		}
		if next.Quantity == 0 {
			next.AvgBuyPrice = 0
			next.TotalCost = 0
		} else {
			next.TotalCost = float64(next.Quantity) * next.AvgBuyPrice
		}
		return &pnl, &next, true
	}

	return nil, pos, false
}

// ReconcileAndStamp reconciles a trade and persists any realized PnL back
// onto the trade record.
func (e *Engine) ReconcileAndStamp(ctx context.Context, t *models.TradeRecord) (*float64, error) {
	pnl, err := e.Reconcile(ctx, t)
	if err != nil {
		return nil, err
	}
	if t.Type == models.TradeSell {
		if err := e.store.UpdateTradePnL(ctx, t.ID, pnl); err != nil {
			return pnl, apperrors.NewStorageError("update trade pnl", err)
		}
		t.PnL = pnl
	}
	return pnl, nil
}

// RecomputeAll rebuilds every position and realized PnL for a user from the
// full trade history. Existing positions are discarded and trades are
// replayed in execution order; the result is identical regardless of the
// order the trades originally arrived in.
func (e *Engine) RecomputeAll(ctx context.Context, userID string) error {
	ul := e.userLock(userID)
	ul.Lock()
	defer ul.Unlock()

	trades, err := e.store.GetTradesForReplay(ctx, userID)
	if err != nil {
		return apperrors.NewStorageError("load trades for replay", err)
	}

	if err := e.store.DeletePositions(ctx, userID); err != nil {
		return apperrors.NewStorageError("delete positions", err)
	}

	positions := make(map[models.PositionKey]*models.Position)
	for i := range trades {
		t := &trades[i]
		key := models.PositionKey{UserID: t.UserID, Symbol: t.Symbol, Exchange: t.Exchange}

		pnl, next, persist := applyTrade(positions[key], t)
		if persist {
			positions[key] = next
		}

		if t.Type == models.TradeSell {
			if err := e.store.UpdateTradePnL(ctx, t.ID, pnl); err != nil {
				return apperrors.NewStorageError("update trade pnl", err)
			}
		}
	}

	for _, pos := range positions {
		if err := e.store.SavePosition(ctx, pos); err != nil {
			return apperrors.NewStorageError("save position", err)
		}
	}

	e.logger.Info().
		Str("user_id", userID).
		Int("trades", len(trades)).
		Int("positions", len(positions)).
		Msg("positions recomputed from trade history")

	return nil
}

// round2 rounds to two decimal places, the precision realized PnL is stored
// at.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
