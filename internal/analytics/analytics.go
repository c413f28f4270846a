// Package analytics composes read-side aggregations over closed trades for
// the stats and insights surfaces.
package analytics

import (
	"context"
	"time"

	"trade-journal/internal/store"
)

// Summary is the full analytics view for a user over a date range.
type Summary struct {
	UserID    string            `json:"userId"`
	From      time.Time         `json:"from,omitempty"`
	To        time.Time         `json:"to,omitempty"`
	Stats     store.TradeStats  `json:"stats"`
	BySymbol  []store.GroupStat `json:"bySymbol"`
	ByProduct []store.GroupStat `json:"byProduct"`
	ByPattern []store.GroupStat `json:"byPattern"`
	Daily     []store.DailyPnL  `json:"daily"`
}

// Service answers analytics queries.
type Service struct {
	store store.DataStore
}

// NewService creates an analytics service.
func NewService(st store.DataStore) *Service {
	return &Service{store: st}
}

// Summarize builds the full analytics view for a user.
func (s *Service) Summarize(ctx context.Context, userID string, dateRange store.DateRange) (*Summary, error) {
	stats, err := s.store.GetTradeStats(ctx, userID, dateRange)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		UserID: userID,
		From:   dateRange.Start,
		To:     dateRange.End,
		Stats:  *stats,
	}

	if summary.BySymbol, err = s.store.GetPnLGroups(ctx, userID, store.GroupBySymbol, dateRange); err != nil {
		return nil, err
	}
	if summary.ByProduct, err = s.store.GetPnLGroups(ctx, userID, store.GroupByProduct, dateRange); err != nil {
		return nil, err
	}
	if summary.ByPattern, err = s.store.GetPnLGroups(ctx, userID, store.GroupByPattern, dateRange); err != nil {
		return nil, err
	}
	if summary.Daily, err = s.store.GetDailyPnL(ctx, userID, dateRange); err != nil {
		return nil, err
	}

	return summary, nil
}

// Streaks computes the longest winning and losing streaks from the daily
// PnL series.
func Streaks(daily []store.DailyPnL) (bestWin, worstLoss int) {
	curWin, curLoss := 0, 0
	for _, d := range daily {
		switch {
		case d.PnL > 0:
			curWin++
			curLoss = 0
		case d.PnL < 0:
			curLoss++
			curWin = 0
		default:
			curWin, curLoss = 0, 0
		}
		if curWin > bestWin {
			bestWin = curWin
		}
		if curLoss > worstLoss {
			worstLoss = curLoss
		}
	}
	return bestWin, worstLoss
}

// MaxDrawdown computes the deepest peak-to-trough fall of the cumulative
// daily PnL curve.
func MaxDrawdown(daily []store.DailyPnL) float64 {
	var cum, peak, maxDD float64
	for _, d := range daily {
		cum += d.PnL
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
