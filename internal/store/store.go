// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"trade-journal/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Trades
	InsertTrade(ctx context.Context, trade *models.TradeRecord) (created bool, err error)
	GetTradeByOrderID(ctx context.Context, userID string, broker models.Broker, brokerOrderID string) (*models.TradeRecord, error)
	GetTrades(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error)
	GetTradesForReplay(ctx context.Context, userID string) ([]models.TradeRecord, error)
	UpdateTradePnL(ctx context.Context, tradeID string, pnl *float64) error
	UpdateTradePattern(ctx context.Context, tradeID, patternID string) error

	// Positions
	GetPosition(ctx context.Context, key models.PositionKey) (*models.Position, error)
	GetPositions(ctx context.Context, userID string) ([]models.Position, error)
	SavePosition(ctx context.Context, position *models.Position) error
	DeletePositions(ctx context.Context, userID string) error

	// Candles (daily price cache for feature construction)
	SaveCandles(ctx context.Context, symbol string, candles []models.Candle) error
	GetRecentCandles(ctx context.Context, symbol string, before time.Time, limit int) ([]models.Candle, error)

	// Analytics
	GetTradeStats(ctx context.Context, userID string, dateRange DateRange) (*TradeStats, error)
	GetPnLGroups(ctx context.Context, userID string, groupBy GroupBy, dateRange DateRange) ([]GroupStat, error)
	GetDailyPnL(ctx context.Context, userID string, dateRange DateRange) ([]DailyPnL, error)

	// Sync bookkeeping
	GetLastSync(broker models.Broker) time.Time
	SetLastSync(broker models.Broker, t time.Time) error

	// Lifecycle
	Close() error
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	UserID    string
	Symbol    string
	Broker    models.Broker
	Type      models.TradeType
	Status    models.OrderStatus
	PatternID string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// DateRange represents a date range. Zero values mean unbounded.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// GroupBy selects the grouping dimension for PnL aggregation.
type GroupBy string

const (
	GroupBySymbol  GroupBy = "symbol"
	GroupByProduct GroupBy = "product"
	GroupByPattern GroupBy = "pattern_id"
)

// TradeStats holds aggregate statistics over closed trades.
type TradeStats struct {
	TotalTrades  int
	ClosedTrades int
	TotalPnL     float64
	AvgPnL       float64
	WinCount     int
	LossCount    int
	WinRate      float64
	AvgWin       float64
	AvgLoss      float64
	BestTrade    float64
	WorstTrade   float64
}

// GroupStat holds aggregate PnL for one group (symbol, product, or pattern).
type GroupStat struct {
	Key      string
	Trades   int
	TotalPnL float64
	AvgPnL   float64
	WinRate  float64
}

// DailyPnL is one day's realized PnL.
type DailyPnL struct {
	Date   time.Time
	PnL    float64
	Trades int
}
