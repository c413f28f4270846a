package models

import "time"

// TradeRecord represents one executed fill as stored in the ledger.
//
// The idempotence key is (UserID, Broker, BrokerOrderID); the trade's own
// generated ID exists only for foreign-key convenience. Exactly one of the
// entry pair (BUY) or exit pair (SELL) is populated; the other stays nil.
// PnL, Status and PatternID are the only fields mutated after creation:
// PnL and Status by the reconciliation engine, PatternID by the classifier.
type TradeRecord struct {
	ID            string
	UserID        string
	Broker        Broker
	BrokerOrderID string

	Symbol   string
	Exchange Exchange
	Segment  Segment
	Type     TradeType
	Product  ProductType
	Quantity int

	EntryPrice *float64
	EntryTime  *time.Time
	ExitPrice  *float64
	ExitTime   *time.Time

	PnL       *float64
	Status    OrderStatus
	PatternID *string

	CreatedAt time.Time
}

// TradeTime returns the trade's execution time: entry time for a BUY,
// exit time for a SELL. Zero time if the adapter left it unset.
func (t *TradeRecord) TradeTime() time.Time {
	if t.Type == TradeBuy && t.EntryTime != nil {
		return *t.EntryTime
	}
	if t.Type == TradeSell && t.ExitTime != nil {
		return *t.ExitTime
	}
	return time.Time{}
}

// Price returns the populated price field for the trade's side.
func (t *TradeRecord) Price() *float64 {
	if t.Type == TradeBuy {
		return t.EntryPrice
	}
	return t.ExitPrice
}

// Position is the aggregate holding state per (user, symbol, exchange),
// maintained by weighted-average-cost accounting. TotalCost is an explicit
// field kept equal to Quantity*AvgBuyPrice by every mutation, not recomputed
// on read.
type Position struct {
	UserID      string
	Symbol      string
	Exchange    Exchange
	Quantity    int
	AvgBuyPrice float64
	TotalCost   float64
	LastTradeID string
	LastUpdated time.Time
}

// Key returns the position's identity key.
func (p *Position) Key() PositionKey {
	return PositionKey{UserID: p.UserID, Symbol: p.Symbol, Exchange: p.Exchange}
}

// PositionKey identifies one position aggregate.
type PositionKey struct {
	UserID   string
	Symbol   string
	Exchange Exchange
}

// Candle represents daily OHLCV data used for feature construction.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}
