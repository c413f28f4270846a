package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"trade-journal/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(t.TempDir() + "/store_test.db")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testTrade(orderID string) *models.TradeRecord {
	price := 100.0
	at := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	return &models.TradeRecord{
		ID:            uuid.New().String(),
		UserID:        "user-1",
		Broker:        models.BrokerZerodha,
		BrokerOrderID: orderID,
		Symbol:        "RELIANCE",
		Exchange:      models.NSE,
		Segment:       models.SegmentEquity,
		Type:          models.TradeBuy,
		Product:       models.ProductCNC,
		Quantity:      10,
		EntryPrice:    &price,
		EntryTime:     &at,
		Status:        models.OrderOpen,
		CreatedAt:     time.Now(),
	}
}

func TestInsertTradeIdempotence(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := testTrade("order-1")
	created, err := st.InsertTrade(ctx, first)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !created {
		t.Fatal("first insert: created = false, want true")
	}

	// Same identity key with different fields; first write must win.
	second := testTrade("order-1")
	second.Quantity = 999
	price := 777.0
	second.EntryPrice = &price

	created, err = st.InsertTrade(ctx, second)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if created {
		t.Fatal("duplicate insert: created = true, want false")
	}

	stored, err := st.GetTradeByOrderID(ctx, "user-1", models.BrokerZerodha, "order-1")
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if stored == nil {
		t.Fatal("expected stored trade")
	}
	if stored.ID != first.ID {
		t.Errorf("stored id = %s, want first writer's %s", stored.ID, first.ID)
	}
	if stored.Quantity != 10 {
		t.Errorf("stored quantity = %d, want first writer's 10", stored.Quantity)
	}
	if stored.EntryPrice == nil || *stored.EntryPrice != 100.0 {
		t.Errorf("stored entry price = %v, want first writer's 100", stored.EntryPrice)
	}
}

func TestInsertTradeSameOrderIDDifferentBroker(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a := testTrade("shared-order")
	b := testTrade("shared-order")
	b.Broker = models.BrokerDhan

	if created, err := st.InsertTrade(ctx, a); err != nil || !created {
		t.Fatalf("insert a: created=%v err=%v", created, err)
	}
	if created, err := st.InsertTrade(ctx, b); err != nil || !created {
		t.Fatalf("insert b: created=%v err=%v, order ids only collide within a broker", created, err)
	}
}

func TestInsertTradeConcurrentUpserts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	const writers = 8
	results := make([]bool, writers)
	var wg sync.WaitGroup

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := st.InsertTrade(ctx, testTrade("race-order"))
			if err != nil {
				t.Errorf("writer %d: %v", i, err)
				return
			}
			results[i] = created
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, created := range results {
		if created {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}

	trades, err := st.GetTrades(ctx, TradeFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("get trades: %v", err)
	}
	if len(trades) != 1 {
		t.Errorf("stored trades = %d, want 1", len(trades))
	}
}

func TestGetTradesForReplayOrdersByExecutionTime(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Insert out of execution order
	times := []time.Time{
		time.Date(2026, 8, 3, 14, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC),
	}
	for i, at := range times {
		tr := testTrade(uuid.New().String())
		entry := at
		tr.EntryTime = &entry
		if created, err := st.InsertTrade(ctx, tr); err != nil || !created {
			t.Fatalf("insert %d: created=%v err=%v", i, created, err)
		}
	}

	trades, err := st.GetTradesForReplay(ctx, "user-1")
	if err != nil {
		t.Fatalf("replay query: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("trades = %d, want 3", len(trades))
	}
	for i := 1; i < len(trades); i++ {
		if trades[i].TradeTime().Before(trades[i-1].TradeTime()) {
			t.Errorf("replay order violated at %d: %v before %v", i, trades[i].TradeTime(), trades[i-1].TradeTime())
		}
	}
}

func TestUpdateTradePnL(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tr := testTrade("pnl-order")
	if created, err := st.InsertTrade(ctx, tr); err != nil || !created {
		t.Fatalf("insert: created=%v err=%v", created, err)
	}

	pnl := 1234.56
	if err := st.UpdateTradePnL(ctx, tr.ID, &pnl); err != nil {
		t.Fatalf("update pnl: %v", err)
	}

	stored, err := st.GetTradeByOrderID(ctx, tr.UserID, tr.Broker, tr.BrokerOrderID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if stored.PnL == nil || *stored.PnL != 1234.56 {
		t.Errorf("pnl = %v, want 1234.56", stored.PnL)
	}
	if stored.Status != models.OrderClosed {
		t.Errorf("status = %s, want CLOSED after pnl stamp", stored.Status)
	}

	// Clearing leaves the status alone
	if err := st.UpdateTradePnL(ctx, tr.ID, nil); err != nil {
		t.Fatalf("clear pnl: %v", err)
	}
	stored, err = st.GetTradeByOrderID(ctx, tr.UserID, tr.Broker, tr.BrokerOrderID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if stored.PnL != nil {
		t.Errorf("pnl = %v, want nil after clear", *stored.PnL)
	}
	if stored.Status != models.OrderClosed {
		t.Errorf("status = %s, clearing pnl must not touch status", stored.Status)
	}
}

func TestSavePositionUpsert(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	pos := &models.Position{
		UserID:      "user-1",
		Symbol:      "TCS",
		Exchange:    models.NSE,
		Quantity:    100,
		AvgBuyPrice: 3500,
		TotalCost:   350000,
		LastUpdated: time.Now(),
	}
	if err := st.SavePosition(ctx, pos); err != nil {
		t.Fatalf("save: %v", err)
	}

	pos.Quantity = 50
	pos.TotalCost = 175000
	if err := st.SavePosition(ctx, pos); err != nil {
		t.Fatalf("second save: %v", err)
	}

	positions, err := st.GetPositions(ctx, "user-1")
	if err != nil {
		t.Fatalf("get positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1 (upsert, not append)", len(positions))
	}
	if positions[0].Quantity != 50 {
		t.Errorf("quantity = %d, want 50", positions[0].Quantity)
	}
}

func TestGetTradeStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	pnls := []float64{100, -50, 200}
	for _, p := range pnls {
		tr := testTrade(uuid.New().String())
		if created, err := st.InsertTrade(ctx, tr); err != nil || !created {
			t.Fatalf("insert: created=%v err=%v", created, err)
		}
		pnl := p
		if err := st.UpdateTradePnL(ctx, tr.ID, &pnl); err != nil {
			t.Fatalf("stamp pnl: %v", err)
		}
	}
	// One open trade without pnl
	if created, err := st.InsertTrade(ctx, testTrade(uuid.New().String())); err != nil || !created {
		t.Fatalf("insert open: created=%v err=%v", created, err)
	}

	stats, err := st.GetTradeStats(ctx, "user-1", DateRange{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalTrades != 4 {
		t.Errorf("total = %d, want 4", stats.TotalTrades)
	}
	if stats.ClosedTrades != 3 {
		t.Errorf("closed = %d, want 3", stats.ClosedTrades)
	}
	if stats.TotalPnL != 250 {
		t.Errorf("total pnl = %v, want 250", stats.TotalPnL)
	}
	if stats.WinCount != 2 || stats.LossCount != 1 {
		t.Errorf("wins/losses = %d/%d, want 2/1", stats.WinCount, stats.LossCount)
	}
}
