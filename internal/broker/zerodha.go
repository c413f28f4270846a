package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// ZerodhaAdapter fetches executions from Zerodha Kite Connect. It also
// serves daily candles for feature construction, which the other adapters
// cannot.
type ZerodhaAdapter struct {
	client        *kiteconnect.Client
	apiKey        string
	apiSecret     string
	userID        string
	accessToken   string
	tokenPath     string
	authenticated bool
	tokens        map[string]int
	mu            sync.RWMutex
}

// ZerodhaConfig holds configuration for the Zerodha adapter.
type ZerodhaConfig struct {
	APIKey    string
	APISecret string
	UserID    string
	TokenPath string
}

// NewZerodhaAdapter creates a Zerodha adapter. Any saved session is loaded
// automatically.
func NewZerodhaAdapter(cfg ZerodhaConfig) *ZerodhaAdapter {
	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		tokenPath = filepath.Join(homeDir, ".config", "trade-journal", "zerodha-session.json")
	}

	z := &ZerodhaAdapter{
		client:    kiteconnect.New(cfg.APIKey),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		userID:    cfg.UserID,
		tokenPath: tokenPath,
		tokens:    make(map[string]int),
	}

	_ = z.loadSession()

	return z
}

// Name identifies this adapter.
func (z *ZerodhaAdapter) Name() models.Broker {
	return models.BrokerZerodha
}

// sessionData represents persisted session data.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login verifies the saved session or reports the URL the user must visit
// to obtain a fresh request token.
func (z *ZerodhaAdapter) Login(ctx context.Context) error {
	if err := z.loadSession(); err == nil && z.IsAuthenticated() {
		if _, err := z.client.GetUserProfile(); err == nil {
			return nil
		}
	}

	loginURL := z.client.GetLoginURL()
	return fmt.Errorf("authentication required: visit %s and complete login, then call CompleteLogin with the request token: %w", loginURL, apperrors.ErrNotAuthenticated)
}

// CompleteLogin completes the OAuth flow with the request token.
func (z *ZerodhaAdapter) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := z.client.GenerateSession(requestToken, z.apiSecret)
	if err != nil {
		return apperrors.NewBrokerError(string(models.BrokerZerodha), "SESSION", "failed to generate session", err)
	}

	z.mu.Lock()
	z.accessToken = session.AccessToken
	z.authenticated = true
	z.client.SetAccessToken(session.AccessToken)
	z.mu.Unlock()

	return z.saveSession(session.AccessToken)
}

// IsAuthenticated returns whether a session is active.
func (z *ZerodhaAdapter) IsAuthenticated() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.authenticated
}

func (z *ZerodhaAdapter) loadSession() error {
	data, err := os.ReadFile(z.tokenPath)
	if err != nil {
		return err
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}

	if time.Now().After(session.ExpiresAt) {
		return apperrors.ErrSessionExpired
	}

	z.mu.Lock()
	z.accessToken = session.AccessToken
	z.authenticated = true
	z.client.SetAccessToken(session.AccessToken)
	z.mu.Unlock()

	return nil
}

func (z *ZerodhaAdapter) saveSession(accessToken string) error {
	if err := os.MkdirAll(filepath.Dir(z.tokenPath), 0700); err != nil {
		return err
	}

	// Kite access tokens expire at 6 AM IST the next day
	loc, _ := time.LoadLocation("Asia/Kolkata")
	now := time.Now().In(loc)
	expiresAt := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, loc)

	session := sessionData{
		AccessToken: accessToken,
		UserID:      z.userID,
		ExpiresAt:   expiresAt,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return os.WriteFile(z.tokenPath, data, 0600)
}

// FetchTrades returns the day's executions. Kite only exposes the current
// trading day's tradebook over the API, so since is used to drop already
// seen fills, not to paginate history.
func (z *ZerodhaAdapter) FetchTrades(ctx context.Context, since time.Time) ([]RawTrade, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	trades, err := z.client.GetTrades()
	if err != nil {
		return nil, apperrors.NewBrokerError(string(models.BrokerZerodha), "TRADES", "failed to fetch trades", err)
	}

	var raws []RawTrade
	for _, t := range trades {
		ts := t.FillTimestamp.Time
		if !since.IsZero() && !ts.After(since) {
			continue
		}
		raws = append(raws, RawTrade{
			OrderID:   t.OrderID,
			Symbol:    t.TradingSymbol,
			Exchange:  t.Exchange,
			Side:      t.TransactionType,
			Product:   t.Product,
			Quantity:  int(t.Quantity),
			Price:     t.AveragePrice,
			Timestamp: ts,
		})
	}

	return raws, nil
}

// Normalize converts a raw Kite execution to the canonical trade tuple.
func (z *ZerodhaAdapter) Normalize(userID string, raw RawTrade) (*models.TradeRecord, error) {
	raw.Segment = string(segmentForExchange(models.Exchange(raw.Exchange)))
	return normalizeRaw(userID, models.BrokerZerodha, raw)
}

// GetDailyCandles fetches daily OHLCV candles for a symbol.
func (z *ZerodhaAdapter) GetDailyCandles(ctx context.Context, symbol string, exchange models.Exchange, from, to time.Time) ([]models.Candle, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	token, err := z.instrumentToken(symbol, exchange)
	if err != nil {
		return nil, err
	}

	data, err := z.client.GetHistoricalData(token, "day", from, to, false, false)
	if err != nil {
		return nil, apperrors.NewBrokerError(string(models.BrokerZerodha), "HISTORICAL", "failed to fetch candles", err)
	}

	candles := make([]models.Candle, len(data))
	for i, d := range data {
		candles[i] = models.Candle{
			Timestamp: d.Date.Time,
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    int64(d.Volume),
		}
	}

	return candles, nil
}

// instrumentToken resolves a symbol to its Kite instrument token, caching
// the full instrument dump on first use.
func (z *ZerodhaAdapter) instrumentToken(symbol string, exchange models.Exchange) (int, error) {
	key := string(exchange) + ":" + symbol

	z.mu.RLock()
	if token, ok := z.tokens[key]; ok {
		z.mu.RUnlock()
		return token, nil
	}
	z.mu.RUnlock()

	instruments, err := z.client.GetInstruments()
	if err != nil {
		return 0, apperrors.NewBrokerError(string(models.BrokerZerodha), "INSTRUMENTS", "failed to fetch instruments", err)
	}

	z.mu.Lock()
	for _, inst := range instruments {
		z.tokens[inst.Exchange+":"+inst.Tradingsymbol] = inst.InstrumentToken
	}
	token, ok := z.tokens[key]
	z.mu.Unlock()

	if !ok {
		return 0, apperrors.NewDataError("instrument", symbol, "instrument not found", apperrors.ErrDataNotFound)
	}
	return token, nil
}

func segmentForExchange(exchange models.Exchange) models.Segment {
	switch exchange {
	case models.NFO:
		return models.SegmentDerivative
	case models.CDS:
		return models.SegmentCurrency
	case models.MCX:
		return models.SegmentCommodity
	default:
		return models.SegmentEquity
	}
}
