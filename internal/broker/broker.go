// Package broker provides trade-source adapters. Each adapter fetches raw
// executions from one broker and normalizes them into the canonical trade
// tuple the ledger accepts.
package broker

import (
	"context"
	"time"

	apperrors "trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// RawTrade is one execution as reported by a broker, before normalization.
type RawTrade struct {
	OrderID   string
	Symbol    string
	Exchange  string
	Segment   string
	Side      string
	Product   string
	Quantity  int
	Price     float64
	Timestamp time.Time
}

// Adapter fetches and normalizes trades from a single broker.
type Adapter interface {
	// Name identifies the broker this adapter serves.
	Name() models.Broker

	// FetchTrades returns raw executions since the given time.
	FetchTrades(ctx context.Context, since time.Time) ([]RawTrade, error)

	// Normalize converts a raw execution into the canonical trade tuple.
	// The returned record carries no ID; the ledger assigns one.
	Normalize(userID string, raw RawTrade) (*models.TradeRecord, error)
}

// HistoricalProvider supplies daily candles for feature construction. Not
// every adapter can serve it.
type HistoricalProvider interface {
	GetDailyCandles(ctx context.Context, symbol string, exchange models.Exchange, from, to time.Time) ([]models.Candle, error)
}

// Registry maps broker names to adapters.
type Registry struct {
	adapters map[models.Broker]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.Broker]Adapter)}
}

// Register adds an adapter for its broker name.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter for a broker, or ErrBrokerUnknown.
func (r *Registry) Get(broker models.Broker) (Adapter, error) {
	a, ok := r.adapters[broker]
	if !ok {
		return nil, apperrors.ErrBrokerUnknown
	}
	return a, nil
}

// Brokers lists the registered broker names.
func (r *Registry) Brokers() []models.Broker {
	names := make([]models.Broker, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// normalizeRaw applies the side-dependent field mapping shared by the REST
// adapters. BUY populates the entry pair, SELL the exit pair.
func normalizeRaw(userID string, broker models.Broker, raw RawTrade) (*models.TradeRecord, error) {
	side := models.TradeType(raw.Side)
	if side != models.TradeBuy && side != models.TradeSell {
		return nil, apperrors.NewValidationError("side", raw.Side, "trade side must be BUY or SELL")
	}

	t := &models.TradeRecord{
		UserID:        userID,
		Broker:        broker,
		BrokerOrderID: raw.OrderID,
		Symbol:        raw.Symbol,
		Exchange:      models.Exchange(raw.Exchange),
		Segment:       models.Segment(raw.Segment),
		Type:          side,
		Product:       models.ProductType(raw.Product),
		Quantity:      raw.Quantity,
	}
	if t.Exchange == "" {
		t.Exchange = models.NSE
	}
	if t.Segment == "" {
		t.Segment = models.SegmentEquity
	}
	if t.Product == "" {
		t.Product = models.ProductCNC
	}

	price := raw.Price
	ts := raw.Timestamp
	if side == models.TradeBuy {
		t.EntryPrice = &price
		t.EntryTime = &ts
		t.Status = models.OrderOpen
	} else {
		t.ExitPrice = &price
		t.ExitTime = &ts
		t.Status = models.OrderClosed
	}

	return t, nil
}
