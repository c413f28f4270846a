// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"trade-journal/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[models.Broker]time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[models.Broker]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Trade ledger; one row per executed fill.
	-- The UNIQUE constraint on (user_id, broker, broker_order_id) is the
	-- idempotence guarantee for repeated syncs and re-imports.
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		broker TEXT NOT NULL,
		broker_order_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		exchange TEXT NOT NULL,
		segment TEXT NOT NULL,
		trade_type TEXT NOT NULL,
		product TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		entry_price REAL,
		entry_time DATETIME,
		exit_price REAL,
		exit_time DATETIME,
		pnl REAL,
		status TEXT NOT NULL,
		pattern_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, broker, broker_order_id)
	);

	-- Position aggregates; one row per (user, symbol, exchange).
	CREATE TABLE IF NOT EXISTS positions (
		user_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		exchange TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		avg_buy_price REAL NOT NULL,
		total_cost REAL NOT NULL,
		last_trade_id TEXT,
		last_updated DATETIME NOT NULL,
		UNIQUE(user_id, symbol, exchange)
	);

	-- Daily candles cached for pattern feature construction.
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timestamp)
	);

	-- Sync status table
	CREATE TABLE IF NOT EXISTS sync_status (
		broker TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Create indexes for performance
	CREATE INDEX IF NOT EXISTS idx_trades_user ON trades(user_id);
	CREATE INDEX IF NOT EXISTS idx_trades_user_symbol ON trades(user_id, symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades(entry_time);
	CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);
	CREATE INDEX IF NOT EXISTS idx_positions_user ON positions(user_id);
	CREATE INDEX IF NOT EXISTS idx_candles_symbol ON candles(symbol, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Trades Methods
// ============================================================================

const tradeColumns = `id, user_id, broker, broker_order_id, symbol, exchange, segment, trade_type, product, quantity, entry_price, entry_time, exit_price, exit_time, pnl, status, pattern_id, created_at`

// InsertTrade inserts a trade record, returning created=false when a record
// with the same (user_id, broker, broker_order_id) already exists. The
// uniqueness check is enforced by the storage layer, not check-then-insert,
// so two concurrent inserts for the same key resolve to exactly one row.
func (s *SQLiteStore) InsertTrade(ctx context.Context, t *models.TradeRecord) (bool, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, t.Broker, t.BrokerOrderID, t.Symbol, t.Exchange, t.Segment, t.Type, t.Product, t.Quantity,
		t.EntryPrice, t.EntryTime, t.ExitPrice, t.ExitTime, t.PnL, t.Status, t.PatternID, t.CreatedAt)
	if err != nil {
		// Translate the duplicate-key failure into the idempotent contract:
		// the losing writer sees created=false, never an error.
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert trade: %w", err)
	}
	return true, nil
}

// GetTradeByOrderID retrieves a trade by its idempotence key.
// Returns nil when no record exists.
func (s *SQLiteStore) GetTradeByOrderID(ctx context.Context, userID string, broker models.Broker, brokerOrderID string) (*models.TradeRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE user_id = ? AND broker = ? AND broker_order_id = ?
	`, userID, broker, brokerOrderID)

	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return t, nil
}

// GetTrades retrieves trades matching the filter, newest first.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error) {
	query := "SELECT " + tradeColumns + " FROM trades WHERE 1=1"
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Broker != "" {
		query += " AND broker = ?"
		args = append(args, filter.Broker)
	}
	if filter.Type != "" {
		query += " AND trade_type = ?"
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.PatternID != "" {
		query += " AND pattern_id = ?"
		args = append(args, filter.PatternID)
	}
	if !filter.StartDate.IsZero() {
		query += " AND COALESCE(entry_time, exit_time) >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND COALESCE(entry_time, exit_time) <= ?"
		args = append(args, filter.EndDate)
	}

	query += " ORDER BY COALESCE(entry_time, exit_time) DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryTrades(ctx, query, args...)
}

// GetTradesForReplay retrieves all of a user's trades in replay order:
// trade execution time ascending, tie-broken by ingestion order (rowid) so
// repeated replays are deterministic even for equal timestamps.
func (s *SQLiteStore) GetTradesForReplay(ctx context.Context, userID string) ([]models.TradeRecord, error) {
	return s.queryTrades(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE user_id = ?
		ORDER BY COALESCE(entry_time, exit_time) ASC, rowid ASC
	`, userID)
}

func (s *SQLiteStore) queryTrades(ctx context.Context, query string, args ...interface{}) ([]models.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, *t)
	}

	return trades, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for scanTrade.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row scanner) (*models.TradeRecord, error) {
	var t models.TradeRecord
	var entryPrice, exitPrice, pnl sql.NullFloat64
	var entryTime, exitTime sql.NullTime
	var patternID sql.NullString

	err := row.Scan(&t.ID, &t.UserID, &t.Broker, &t.BrokerOrderID, &t.Symbol, &t.Exchange, &t.Segment,
		&t.Type, &t.Product, &t.Quantity, &entryPrice, &entryTime, &exitPrice, &exitTime,
		&pnl, &t.Status, &patternID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	if entryPrice.Valid {
		t.EntryPrice = &entryPrice.Float64
	}
	if entryTime.Valid {
		t.EntryTime = &entryTime.Time
	}
	if exitPrice.Valid {
		t.ExitPrice = &exitPrice.Float64
	}
	if exitTime.Valid {
		t.ExitTime = &exitTime.Time
	}
	if pnl.Valid {
		t.PnL = &pnl.Float64
	}
	if patternID.Valid {
		t.PatternID = &patternID.String
	}

	return &t, nil
}

// UpdateTradePnL stamps a realized PnL onto a trade and marks it CLOSED.
// A nil pnl clears the field and leaves the status untouched (an
// unreconcilable SELL keeps whatever status the adapter assigned).
func (s *SQLiteStore) UpdateTradePnL(ctx context.Context, tradeID string, pnl *float64) error {
	var result sql.Result
	var err error
	if pnl != nil {
		result, err = s.db.ExecContext(ctx, `
			UPDATE trades SET pnl = ?, status = ? WHERE id = ?
		`, *pnl, models.OrderClosed, tradeID)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE trades SET pnl = NULL WHERE id = ?
		`, tradeID)
	}
	if err != nil {
		return fmt.Errorf("failed to update trade pnl: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("trade not found: %s", tradeID)
	}
	return nil
}

// UpdateTradePattern stamps a pattern label onto a trade.
func (s *SQLiteStore) UpdateTradePattern(ctx context.Context, tradeID, patternID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE trades SET pattern_id = ? WHERE id = ?
	`, patternID, tradeID)
	if err != nil {
		return fmt.Errorf("failed to update trade pattern: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("trade not found: %s", tradeID)
	}
	return nil
}

// ============================================================================
// Positions Methods
// ============================================================================

// GetPosition retrieves a position by its identity key. Returns nil when the
// position does not exist.
func (s *SQLiteStore) GetPosition(ctx context.Context, key models.PositionKey) (*models.Position, error) {
	var p models.Position
	var lastTradeID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, symbol, exchange, quantity, avg_buy_price, total_cost, last_trade_id, last_updated
		FROM positions WHERE user_id = ? AND symbol = ? AND exchange = ?
	`, key.UserID, key.Symbol, key.Exchange).Scan(
		&p.UserID, &p.Symbol, &p.Exchange, &p.Quantity, &p.AvgBuyPrice, &p.TotalCost, &lastTradeID, &p.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	if lastTradeID.Valid {
		p.LastTradeID = lastTradeID.String
	}
	return &p, nil
}

// GetPositions retrieves all positions for a user, ordered by symbol for
// stable output.
func (s *SQLiteStore) GetPositions(ctx context.Context, userID string) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, symbol, exchange, quantity, avg_buy_price, total_cost, last_trade_id, last_updated
		FROM positions WHERE user_id = ? ORDER BY symbol ASC, exchange ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		var lastTradeID sql.NullString
		if err := rows.Scan(&p.UserID, &p.Symbol, &p.Exchange, &p.Quantity, &p.AvgBuyPrice, &p.TotalCost, &lastTradeID, &p.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		if lastTradeID.Valid {
			p.LastTradeID = lastTradeID.String
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// SavePosition persists a position as a single atomic upsert, so a failed
// write cannot leave a half-updated aggregate.
func (s *SQLiteStore) SavePosition(ctx context.Context, p *models.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (user_id, symbol, exchange, quantity, avg_buy_price, total_cost, last_trade_id, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, symbol, exchange) DO UPDATE SET
			quantity = excluded.quantity,
			avg_buy_price = excluded.avg_buy_price,
			total_cost = excluded.total_cost,
			last_trade_id = excluded.last_trade_id,
			last_updated = excluded.last_updated
	`, p.UserID, p.Symbol, p.Exchange, p.Quantity, p.AvgBuyPrice, p.TotalCost, p.LastTradeID, p.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// DeletePositions removes all positions for a user. Used only by the full
// recompute path.
func (s *SQLiteStore) DeletePositions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete positions: %w", err)
	}
	return nil
}

// ============================================================================
// Candles Methods
// ============================================================================

// SaveCandles saves daily candles to the cache.
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, symbol, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetRecentCandles retrieves up to limit daily candles ending at the given
// time, oldest first.
func (s *SQLiteStore) GetRecentCandles(ctx context.Context, symbol string, before time.Time, limit int) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume FROM (
			SELECT timestamp, open, high, low, close, volume
			FROM candles
			WHERE symbol = ? AND timestamp <= ?
			ORDER BY timestamp DESC
			LIMIT ?
		) ORDER BY timestamp ASC
	`, symbol, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}

	return candles, rows.Err()
}

// ============================================================================
// Analytics Methods
// ============================================================================

// GetTradeStats aggregates realized PnL statistics over closed trades.
func (s *SQLiteStore) GetTradeStats(ctx context.Context, userID string, dateRange DateRange) (*TradeStats, error) {
	stats := &TradeStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trades WHERE user_id = ?
	`, userID).Scan(&stats.TotalTrades)
	if err != nil {
		return nil, fmt.Errorf("failed to count trades: %w", err)
	}

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(pnl), 0),
			COALESCE(AVG(pnl), 0),
			SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END),
			SUM(CASE WHEN pnl < 0 THEN 1 ELSE 0 END),
			COALESCE(AVG(CASE WHEN pnl > 0 THEN pnl END), 0),
			COALESCE(AVG(CASE WHEN pnl < 0 THEN pnl END), 0),
			COALESCE(MAX(pnl), 0),
			COALESCE(MIN(pnl), 0)
		FROM trades
		WHERE user_id = ? AND pnl IS NOT NULL
	`
	args := []interface{}{userID}
	query, args = appendRangeFilter(query, args, dateRange)

	var winCount, lossCount sql.NullInt64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.ClosedTrades, &stats.TotalPnL, &stats.AvgPnL,
		&winCount, &lossCount, &stats.AvgWin, &stats.AvgLoss,
		&stats.BestTrade, &stats.WorstTrade)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trade stats: %w", err)
	}

	if winCount.Valid {
		stats.WinCount = int(winCount.Int64)
	}
	if lossCount.Valid {
		stats.LossCount = int(lossCount.Int64)
	}
	if stats.ClosedTrades > 0 {
		stats.WinRate = float64(stats.WinCount) / float64(stats.ClosedTrades) * 100
	}

	return stats, nil
}

// GetPnLGroups aggregates realized PnL grouped by symbol, product, or pattern.
func (s *SQLiteStore) GetPnLGroups(ctx context.Context, userID string, groupBy GroupBy, dateRange DateRange) ([]GroupStat, error) {
	var column string
	switch groupBy {
	case GroupBySymbol:
		column = "symbol"
	case GroupByProduct:
		column = "product"
	case GroupByPattern:
		column = "COALESCE(pattern_id, 'UNCLASSIFIED')"
	default:
		return nil, fmt.Errorf("unsupported grouping: %s", groupBy)
	}

	query := `
		SELECT ` + column + `,
			COUNT(*),
			COALESCE(SUM(pnl), 0),
			COALESCE(AVG(pnl), 0),
			COALESCE(AVG(CASE WHEN pnl > 0 THEN 1.0 ELSE 0.0 END) * 100, 0)
		FROM trades
		WHERE user_id = ? AND pnl IS NOT NULL
	`
	args := []interface{}{userID}
	query, args = appendRangeFilter(query, args, dateRange)
	query += " GROUP BY " + column + " ORDER BY SUM(pnl) DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pnl groups: %w", err)
	}
	defer rows.Close()

	var groups []GroupStat
	for rows.Next() {
		var g GroupStat
		if err := rows.Scan(&g.Key, &g.Trades, &g.TotalPnL, &g.AvgPnL, &g.WinRate); err != nil {
			return nil, fmt.Errorf("failed to scan pnl group: %w", err)
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

// GetDailyPnL aggregates realized PnL per exit date.
func (s *SQLiteStore) GetDailyPnL(ctx context.Context, userID string, dateRange DateRange) ([]DailyPnL, error) {
	query := `
		SELECT DATE(exit_time), COALESCE(SUM(pnl), 0), COUNT(*)
		FROM trades
		WHERE user_id = ? AND pnl IS NOT NULL AND exit_time IS NOT NULL
	`
	args := []interface{}{userID}
	query, args = appendRangeFilter(query, args, dateRange)
	query += " GROUP BY DATE(exit_time) ORDER BY DATE(exit_time) ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily pnl: %w", err)
	}
	defer rows.Close()

	var days []DailyPnL
	for rows.Next() {
		var d DailyPnL
		var date string
		if err := rows.Scan(&date, &d.PnL, &d.Trades); err != nil {
			return nil, fmt.Errorf("failed to scan daily pnl: %w", err)
		}
		if parsed, err := time.Parse("2006-01-02", date); err == nil {
			d.Date = parsed
		}
		days = append(days, d)
	}

	return days, rows.Err()
}

func appendRangeFilter(query string, args []interface{}, dateRange DateRange) (string, []interface{}) {
	if !dateRange.Start.IsZero() {
		query += " AND COALESCE(exit_time, entry_time) >= ?"
		args = append(args, dateRange.Start)
	}
	if !dateRange.End.IsZero() {
		query += " AND COALESCE(exit_time, entry_time) <= ?"
		args = append(args, dateRange.End)
	}
	return query, args
}

// ============================================================================
// Sync Methods
// ============================================================================

// GetLastSync returns the last sync time for a broker.
func (s *SQLiteStore) GetLastSync(broker models.Broker) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[broker]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastSync time.Time
	err := s.db.QueryRow(`
		SELECT last_sync FROM sync_status WHERE broker = ?
	`, broker).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[broker] = lastSync
	s.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a broker.
func (s *SQLiteStore) SetLastSync(broker models.Broker, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_status (broker, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, broker, t, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	s.mu.Lock()
	s.syncTimes[broker] = t
	s.mu.Unlock()

	return nil
}
