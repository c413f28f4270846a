package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	apperrors "trade-journal/internal/errors"
	"trade-journal/internal/models"
)

const angelOneBaseURL = "https://apiconnect.angelbroking.com"

// AngelOneAdapter fetches executions from the AngelOne SmartAPI. Login uses
// a TOTP generated from the registered secret, so syncs can run unattended.
type AngelOneAdapter struct {
	apiKey     string
	clientCode string
	pin        string
	totpSecret string
	baseURL    string
	httpClient *http.Client

	mu       sync.RWMutex
	jwtToken string
}

// AngelOneConfig holds configuration for the AngelOne adapter.
type AngelOneConfig struct {
	APIKey     string
	ClientCode string
	PIN        string
	TOTPSecret string
	BaseURL    string
}

// NewAngelOneAdapter creates an AngelOne adapter.
func NewAngelOneAdapter(cfg AngelOneConfig) *AngelOneAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = angelOneBaseURL
	}
	return &AngelOneAdapter{
		apiKey:     cfg.APIKey,
		clientCode: cfg.ClientCode,
		pin:        cfg.PIN,
		totpSecret: cfg.TOTPSecret,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name identifies this adapter.
func (a *AngelOneAdapter) Name() models.Broker {
	return models.BrokerAngelOne
}

type angelOneLoginResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		JwtToken string `json:"jwtToken"`
	} `json:"data"`
}

// Login authenticates with a freshly generated TOTP.
func (a *AngelOneAdapter) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(a.totpSecret, time.Now())
	if err != nil {
		return apperrors.NewBrokerError(string(models.BrokerAngelOne), "TOTP", "failed to generate totp", err)
	}

	body, err := json.Marshal(map[string]string{
		"clientcode": a.clientCode,
		"password":   a.pin,
		"totp":       code,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/rest/auth/angelbroking/user/v1/loginByPassword", bytes.NewReader(body))
	if err != nil {
		return err
	}
	a.setHeaders(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return apperrors.NewBrokerError(string(models.BrokerAngelOne), "LOGIN", "login request failed", err)
	}
	defer resp.Body.Close()

	var loginResp angelOneLoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return apperrors.NewBrokerError(string(models.BrokerAngelOne), "DECODE", "failed to decode login response", err)
	}
	if !loginResp.Status || loginResp.Data.JwtToken == "" {
		return apperrors.NewBrokerError(string(models.BrokerAngelOne), "LOGIN", loginResp.Message, apperrors.ErrNotAuthenticated)
	}

	a.mu.Lock()
	a.jwtToken = loginResp.Data.JwtToken
	a.mu.Unlock()

	return nil
}

// IsAuthenticated returns whether a session token is held.
func (a *AngelOneAdapter) IsAuthenticated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.jwtToken != ""
}

// angelOneTrade is one row of the SmartAPI tradebook response.
type angelOneTrade struct {
	OrderID         string `json:"orderid"`
	Exchange        string `json:"exchange"`
	TransactionType string `json:"transactiontype"`
	ProductType     string `json:"producttype"`
	TradingSymbol   string `json:"tradingsymbol"`
	FillSize        string `json:"fillsize"`
	FillPrice       string `json:"fillprice"`
	FillTime        string `json:"filltime"`
}

type angelOneTradeBookResponse struct {
	Status bool            `json:"status"`
	Data   []angelOneTrade `json:"data"`
}

// FetchTrades returns the day's executions from the SmartAPI tradebook,
// logging in first when no session is held.
func (a *AngelOneAdapter) FetchTrades(ctx context.Context, since time.Time) ([]RawTrade, error) {
	if !a.IsAuthenticated() {
		if err := a.Login(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.baseURL+"/rest/secure/angelbroking/order/v1/getTradeBook", nil)
	if err != nil {
		return nil, err
	}
	a.setHeaders(req)
	a.mu.RLock()
	req.Header.Set("Authorization", "Bearer "+a.jwtToken)
	a.mu.RUnlock()

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewBrokerError(string(models.BrokerAngelOne), "TRADES", "failed to fetch trades", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		a.mu.Lock()
		a.jwtToken = ""
		a.mu.Unlock()
		return nil, apperrors.ErrSessionExpired
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewBrokerError(string(models.BrokerAngelOne), fmt.Sprintf("HTTP_%d", resp.StatusCode), "tradebook request failed", nil)
	}

	var book angelOneTradeBookResponse
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, apperrors.NewBrokerError(string(models.BrokerAngelOne), "DECODE", "failed to decode tradebook", err)
	}

	var raws []RawTrade
	for _, t := range book.Data {
		ts := parseAngelOneTime(t.FillTime)
		if !since.IsZero() && !ts.After(since) {
			continue
		}
		raws = append(raws, RawTrade{
			OrderID:   t.OrderID,
			Symbol:    t.TradingSymbol,
			Exchange:  t.Exchange,
			Side:      t.TransactionType,
			Product:   mapAngelOneProduct(t.ProductType),
			Quantity:  atoiSafe(t.FillSize),
			Price:     atofSafe(t.FillPrice),
			Timestamp: ts,
		})
	}

	return raws, nil
}

// Normalize converts a raw SmartAPI execution to the canonical trade tuple.
func (a *AngelOneAdapter) Normalize(userID string, raw RawTrade) (*models.TradeRecord, error) {
	raw.Segment = string(segmentForExchange(models.Exchange(raw.Exchange)))
	return normalizeRaw(userID, models.BrokerAngelOne, raw)
}

func (a *AngelOneAdapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")
	req.Header.Set("X-PrivateKey", a.apiKey)
}

func mapAngelOneProduct(product string) string {
	switch product {
	case "INTRADAY":
		return string(models.ProductMIS)
	case "CARRYFORWARD":
		return string(models.ProductNRML)
	default:
		return string(models.ProductCNC)
	}
}

func parseAngelOneTime(v string) time.Time {
	// Fill times arrive as HH:MM:SS for the current trading day
	if t, err := time.Parse("15:04:05", v); err == nil {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location())
	}
	if t, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
		return t
	}
	return time.Time{}
}

func atoiSafe(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}

func atofSafe(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}
