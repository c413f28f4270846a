package broker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trade-journal/internal/models"
)

func writeTradebook(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradebook.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write tradebook: %v", err)
	}
	return path
}

func TestCSVFetchTradesParsesRows(t *testing.T) {
	path := writeTradebook(t, `order_id,symbol,exchange,side,product,quantity,price,trade_time
ORD-1,SBIN,NSE,BUY,CNC,10,625.50,2026-08-03 10:15:00
ORD-2,SBIN,NSE,SELL,CNC,10,640.00,2026-08-04 14:30:00
`)
	adapter := NewCSVAdapter(path, models.NSE, models.ProductCNC)

	raws, err := adapter.FetchTrades(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("got %d rows, want 2", len(raws))
	}
	if raws[0].OrderID != "ORD-1" || raws[0].Side != "BUY" || raws[0].Price != 625.50 {
		t.Errorf("first row parsed wrong: %+v", raws[0])
	}
	if raws[1].Timestamp != time.Date(2026, 8, 4, 14, 30, 0, 0, time.UTC) {
		t.Errorf("second row timestamp = %v", raws[1].Timestamp)
	}
}

func TestCSVFetchTradesFiltersBySince(t *testing.T) {
	path := writeTradebook(t, `order_id,symbol,exchange,side,product,quantity,price,trade_time
ORD-1,SBIN,NSE,BUY,CNC,10,625.50,2026-08-03 10:15:00
ORD-2,SBIN,NSE,SELL,CNC,10,640.00,2026-08-04 14:30:00
`)
	adapter := NewCSVAdapter(path, models.NSE, models.ProductCNC)

	since := time.Date(2026, 8, 3, 23, 59, 59, 0, time.UTC)
	raws, err := adapter.FetchTrades(context.Background(), since)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(raws) != 1 || raws[0].OrderID != "ORD-2" {
		t.Errorf("since filter kept %+v, want only ORD-2", raws)
	}
}

func TestCSVFetchTradesRejectsBadTime(t *testing.T) {
	path := writeTradebook(t, `order_id,symbol,exchange,side,product,quantity,price,trade_time
ORD-1,SBIN,NSE,BUY,CNC,10,625.50,yesterday
`)
	adapter := NewCSVAdapter(path, models.NSE, models.ProductCNC)

	if _, err := adapter.FetchTrades(context.Background(), time.Time{}); err == nil {
		t.Fatal("expected error for unparseable trade_time")
	}
}

func TestCSVNormalizeAppliesDefaults(t *testing.T) {
	adapter := NewCSVAdapter("unused.csv", models.BSE, models.ProductMIS)

	ts := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	trade, err := adapter.Normalize("user-1", RawTrade{
		OrderID:   "ORD-1",
		Symbol:    "SBIN",
		Side:      "BUY",
		Quantity:  5,
		Price:     620,
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if trade.Exchange != models.BSE {
		t.Errorf("exchange = %s, want configured default BSE", trade.Exchange)
	}
	if trade.Product != models.ProductMIS {
		t.Errorf("product = %s, want configured default MIS", trade.Product)
	}
	if trade.Segment != models.SegmentEquity {
		t.Errorf("segment = %s, want EQUITY", trade.Segment)
	}
	if trade.EntryPrice == nil || *trade.EntryPrice != 620 || trade.EntryTime == nil {
		t.Error("buy should populate the entry pair")
	}
	if trade.ExitPrice != nil || trade.ExitTime != nil {
		t.Error("buy should leave the exit pair nil")
	}
}

func TestCSVNormalizeRejectsUnknownSide(t *testing.T) {
	adapter := NewCSVAdapter("unused.csv", models.NSE, models.ProductCNC)

	_, err := adapter.Normalize("user-1", RawTrade{
		OrderID:  "ORD-1",
		Symbol:   "SBIN",
		Side:     "SHORT",
		Quantity: 5,
		Price:    620,
	})
	if err == nil {
		t.Fatal("expected error for unknown side")
	}
}
