// Package models provides domain models for the trading journal.
package models

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO" // F&O
	CDS Exchange = "CDS" // Currency
	MCX Exchange = "MCX" // Commodity
)

// Segment represents a market segment.
type Segment string

const (
	SegmentEquity     Segment = "EQUITY"
	SegmentDerivative Segment = "DERIVATIVE"
	SegmentCurrency   Segment = "CURRENCY"
	SegmentCommodity  Segment = "COMMODITY"
)

// TradeType represents the side of an executed trade.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductCNC  ProductType = "CNC"  // Delivery
	ProductNRML ProductType = "NRML" // F&O Normal
)

// OrderStatus represents the lifecycle status of a trade record.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "OPEN"
	OrderClosed    OrderStatus = "CLOSED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Broker identifies the source of a trade record.
type Broker string

const (
	BrokerZerodha  Broker = "ZERODHA"
	BrokerDhan     Broker = "DHAN"
	BrokerAngelOne Broker = "ANGELONE"
	BrokerCSV      Broker = "CSV"
)

// IsValid reports whether b is a known broker.
func (b Broker) IsValid() bool {
	switch b {
	case BrokerZerodha, BrokerDhan, BrokerAngelOne, BrokerCSV:
		return true
	}
	return false
}
