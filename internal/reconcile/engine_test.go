package reconcile

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trade-journal/internal/models"
	"trade-journal/internal/store"
)

const testUser = "user-1"

func newTestEngine(t *testing.T) (*Engine, store.DataStore) {
	t.Helper()

	dbPath := t.TempDir() + "/reconcile_test.db"
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
		os.Remove(dbPath)
	})

	return NewEngine(st, zerolog.Nop()), st
}

func buyTrade(symbol string, qty int, price float64, at time.Time) *models.TradeRecord {
	return &models.TradeRecord{
		ID:            uuid.New().String(),
		UserID:        testUser,
		Broker:        models.BrokerCSV,
		BrokerOrderID: uuid.New().String(),
		Symbol:        symbol,
		Exchange:      models.NSE,
		Segment:       models.SegmentEquity,
		Type:          models.TradeBuy,
		Product:       models.ProductCNC,
		Quantity:      qty,
		EntryPrice:    &price,
		EntryTime:     &at,
		Status:        models.OrderOpen,
		CreatedAt:     time.Now(),
	}
}

func sellTrade(symbol string, qty int, price float64, at time.Time) *models.TradeRecord {
	t := buyTrade(symbol, qty, price, at)
	t.Type = models.TradeSell
	t.EntryPrice = nil
	t.EntryTime = nil
	t.ExitPrice = &price
	t.ExitTime = &at
	t.Status = models.OrderClosed
	return t
}

func ingest(t *testing.T, st store.DataStore, trade *models.TradeRecord) {
	t.Helper()
	created, err := st.InsertTrade(context.Background(), trade)
	if err != nil {
		t.Fatalf("failed to insert trade: %v", err)
	}
	if !created {
		t.Fatalf("expected trade %s to be created", trade.ID)
	}
}

func TestReconcileBuyBlendsAverageCost(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	b1 := buyTrade("RELIANCE", 100, 50, base)
	b2 := buyTrade("RELIANCE", 100, 70, base.Add(time.Hour))
	ingest(t, st, b1)
	ingest(t, st, b2)

	if _, err := engine.Reconcile(ctx, b1); err != nil {
		t.Fatalf("reconcile buy 1: %v", err)
	}
	if _, err := engine.Reconcile(ctx, b2); err != nil {
		t.Fatalf("reconcile buy 2: %v", err)
	}

	pos, err := st.GetPosition(ctx, models.PositionKey{UserID: testUser, Symbol: "RELIANCE", Exchange: models.NSE})
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if pos == nil {
		t.Fatal("expected position to exist")
	}
	if pos.Quantity != 200 {
		t.Errorf("quantity = %d, want 200", pos.Quantity)
	}
	if pos.AvgBuyPrice != 60 {
		t.Errorf("avgBuyPrice = %v, want 60", pos.AvgBuyPrice)
	}
	if pos.TotalCost != 12000 {
		t.Errorf("totalCost = %v, want 12000", pos.TotalCost)
	}
}

func TestReconcileSellRealizesPnLAgainstAverage(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	trades := []*models.TradeRecord{
		buyTrade("TCS", 100, 50, base),
		buyTrade("TCS", 100, 70, base.Add(time.Hour)),
		sellTrade("TCS", 50, 90, base.Add(2*time.Hour)),
	}
	for _, tr := range trades {
		ingest(t, st, tr)
	}

	var pnl *float64
	for _, tr := range trades {
		var err error
		pnl, err = engine.Reconcile(ctx, tr)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
	}

	if pnl == nil {
		t.Fatal("expected realized pnl on sell")
	}
	if *pnl != 1500.00 {
		t.Errorf("pnl = %v, want 1500.00", *pnl)
	}

	pos, err := st.GetPosition(ctx, models.PositionKey{UserID: testUser, Symbol: "TCS", Exchange: models.NSE})
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if pos.Quantity != 150 {
		t.Errorf("remaining quantity = %d, want 150", pos.Quantity)
	}
	if pos.AvgBuyPrice != 60 {
		t.Errorf("avgBuyPrice = %v, want 60 (a sell must not change the average)", pos.AvgBuyPrice)
	}
}

func TestReconcileFullCloseResetsCostBasis(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	buy := buyTrade("INFY", 10, 100, base)
	sell := sellTrade("INFY", 10, 150, base.Add(time.Hour))
	ingest(t, st, buy)
	ingest(t, st, sell)

	if _, err := engine.Reconcile(ctx, buy); err != nil {
		t.Fatalf("reconcile buy: %v", err)
	}
	pnl, err := engine.Reconcile(ctx, sell)
	if err != nil {
		t.Fatalf("reconcile sell: %v", err)
	}
	if pnl == nil || *pnl != 500.00 {
		t.Fatalf("pnl = %v, want 500.00", pnl)
	}

	pos, err := st.GetPosition(ctx, models.PositionKey{UserID: testUser, Symbol: "INFY", Exchange: models.NSE})
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if pos.Quantity != 0 {
		t.Errorf("quantity = %d, want 0", pos.Quantity)
	}
	if pos.AvgBuyPrice != 0 {
		t.Errorf("avgBuyPrice = %v, want 0 after full close", pos.AvgBuyPrice)
	}
	if pos.TotalCost != 0 {
		t.Errorf("totalCost = %v, want 0 after full close", pos.TotalCost)
	}
}

func TestReconcileNakedSellYieldsNilPnLAndNoPosition(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	sell := sellTrade("SBIN", 10, 500, time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC))
	ingest(t, st, sell)

	pnl, err := engine.Reconcile(ctx, sell)
	if err != nil {
		t.Fatalf("reconcile naked sell: %v", err)
	}
	if pnl != nil {
		t.Errorf("pnl = %v, want nil for naked sell", *pnl)
	}

	pos, err := st.GetPosition(ctx, models.PositionKey{UserID: testUser, Symbol: "SBIN", Exchange: models.NSE})
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if pos != nil {
		t.Errorf("position = %+v, want none for naked sell", pos)
	}
}

func TestReconcileOversellClampsToHeldQuantity(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	buy := buyTrade("ITC", 10, 100, base)
	sell := sellTrade("ITC", 25, 120, base.Add(time.Hour))
	ingest(t, st, buy)
	ingest(t, st, sell)

	if _, err := engine.Reconcile(ctx, buy); err != nil {
		t.Fatalf("reconcile buy: %v", err)
	}
	pnl, err := engine.Reconcile(ctx, sell)
	if err != nil {
		t.Fatalf("reconcile oversell: %v", err)
	}

	// Only the 10 held shares realize PnL; the excess 15 are ignored.
	if pnl == nil || *pnl != 200.00 {
		t.Fatalf("pnl = %v, want 200.00", pnl)
	}

	pos, err := st.GetPosition(ctx, models.PositionKey{UserID: testUser, Symbol: "ITC", Exchange: models.NSE})
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if pos.Quantity != 0 {
		t.Errorf("quantity = %d, want 0 (never negative)", pos.Quantity)
	}
}

func TestRecomputeAllReproducesIncrementalState(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	buy := buyTrade("HDFC", 10, 100, base)
	sell := sellTrade("HDFC", 10, 150, base.Add(time.Hour))
	ingest(t, st, buy)
	ingest(t, st, sell)

	if _, err := engine.ReconcileAndStamp(ctx, buy); err != nil {
		t.Fatalf("reconcile buy: %v", err)
	}
	if _, err := engine.ReconcileAndStamp(ctx, sell); err != nil {
		t.Fatalf("reconcile sell: %v", err)
	}

	if err := engine.RecomputeAll(ctx, testUser); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	pos, err := st.GetPosition(ctx, models.PositionKey{UserID: testUser, Symbol: "HDFC", Exchange: models.NSE})
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if pos.Quantity != 0 || pos.AvgBuyPrice != 0 || pos.TotalCost != 0 {
		t.Errorf("position after recompute = %+v, want fully closed", pos)
	}

	stored, err := st.GetTradeByOrderID(ctx, testUser, sell.Broker, sell.BrokerOrderID)
	if err != nil {
		t.Fatalf("get sell trade: %v", err)
	}
	if stored.PnL == nil || *stored.PnL != 500.00 {
		t.Errorf("sell pnl after recompute = %v, want 500.00", stored.PnL)
	}
	if stored.Status != models.OrderClosed {
		t.Errorf("sell status = %s, want CLOSED", stored.Status)
	}
}

func TestRecomputeAllIsDeterministic(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	trades := []*models.TradeRecord{
		buyTrade("LT", 30, 3500, base),
		buyTrade("LT", 20, 3600, base.Add(time.Hour)),
		sellTrade("LT", 25, 3700, base.Add(2*time.Hour)),
		buyTrade("LT", 10, 3550, base.Add(3*time.Hour)),
	}
	for _, tr := range trades {
		ingest(t, st, tr)
		if _, err := engine.ReconcileAndStamp(ctx, tr); err != nil {
			t.Fatalf("reconcile: %v", err)
		}
	}

	if err := engine.RecomputeAll(ctx, testUser); err != nil {
		t.Fatalf("first recompute: %v", err)
	}
	first, err := st.GetPositions(ctx, testUser)
	if err != nil {
		t.Fatalf("get positions: %v", err)
	}

	if err := engine.RecomputeAll(ctx, testUser); err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	second, err := st.GetPositions(ctx, testUser)
	if err != nil {
		t.Fatalf("get positions: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("position count changed between recomputes: %d vs %d", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		if a.Symbol != b.Symbol || a.Quantity != b.Quantity || a.AvgBuyPrice != b.AvgBuyPrice || a.TotalCost != b.TotalCost {
			t.Errorf("position %s differs between recomputes: %+v vs %+v", a.Symbol, a, b)
		}
	}
}
