package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "trade-journal/internal/errors"
	"trade-journal/internal/models"
)

const dhanBaseURL = "https://api.dhan.co/v2"

// DhanAdapter fetches executions from the Dhan REST API. Dhan publishes no
// Go SDK, so this adapter speaks the HTTP API directly.
type DhanAdapter struct {
	clientID    string
	accessToken string
	baseURL     string
	httpClient  *http.Client
}

// DhanConfig holds configuration for the Dhan adapter.
type DhanConfig struct {
	ClientID    string
	AccessToken string
	BaseURL     string
}

// NewDhanAdapter creates a Dhan adapter.
func NewDhanAdapter(cfg DhanConfig) *DhanAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = dhanBaseURL
	}
	return &DhanAdapter{
		clientID:    cfg.ClientID,
		accessToken: cfg.AccessToken,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Name identifies this adapter.
func (d *DhanAdapter) Name() models.Broker {
	return models.BrokerDhan
}

// dhanTrade is one row of the Dhan tradebook response.
type dhanTrade struct {
	OrderID         string  `json:"orderId"`
	ExchangeSegment string  `json:"exchangeSegment"`
	TransactionType string  `json:"transactionType"`
	ProductType     string  `json:"productType"`
	TradingSymbol   string  `json:"tradingSymbol"`
	TradedQuantity  int     `json:"tradedQuantity"`
	TradedPrice     float64 `json:"tradedPrice"`
	ExchangeTime    string  `json:"exchangeTime"`
}

// FetchTrades returns the day's executions from the Dhan tradebook.
func (d *DhanAdapter) FetchTrades(ctx context.Context, since time.Time) ([]RawTrade, error) {
	if d.accessToken == "" {
		return nil, apperrors.ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/trades", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("access-token", d.accessToken)
	req.Header.Set("client-id", d.clientID)
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewBrokerError(string(models.BrokerDhan), "TRADES", "failed to fetch trades", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, apperrors.ErrSessionExpired
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewBrokerError(string(models.BrokerDhan), fmt.Sprintf("HTTP_%d", resp.StatusCode), "tradebook request failed", nil)
	}

	var trades []dhanTrade
	if err := json.NewDecoder(resp.Body).Decode(&trades); err != nil {
		return nil, apperrors.NewBrokerError(string(models.BrokerDhan), "DECODE", "failed to decode tradebook", err)
	}

	var raws []RawTrade
	for _, t := range trades {
		ts := parseDhanTime(t.ExchangeTime)
		if !since.IsZero() && !ts.After(since) {
			continue
		}
		exchange, segment := splitDhanSegment(t.ExchangeSegment)
		raws = append(raws, RawTrade{
			OrderID:   t.OrderID,
			Symbol:    t.TradingSymbol,
			Exchange:  exchange,
			Segment:   segment,
			Side:      t.TransactionType,
			Product:   mapDhanProduct(t.ProductType),
			Quantity:  t.TradedQuantity,
			Price:     t.TradedPrice,
			Timestamp: ts,
		})
	}

	return raws, nil
}

// Normalize converts a raw Dhan execution to the canonical trade tuple.
func (d *DhanAdapter) Normalize(userID string, raw RawTrade) (*models.TradeRecord, error) {
	return normalizeRaw(userID, models.BrokerDhan, raw)
}

// splitDhanSegment maps Dhan's combined segment codes, e.g. NSE_EQ or
// NSE_FNO, to the canonical exchange and segment pair.
func splitDhanSegment(code string) (exchange, segment string) {
	parts := strings.SplitN(code, "_", 2)
	exchange = parts[0]
	segment = string(models.SegmentEquity)
	if len(parts) == 2 {
		switch parts[1] {
		case "FNO":
			segment = string(models.SegmentDerivative)
			if exchange == "NSE" {
				exchange = string(models.NFO)
			}
		case "CURRENCY":
			segment = string(models.SegmentCurrency)
		case "COMM":
			segment = string(models.SegmentCommodity)
		}
	}
	return exchange, segment
}

func mapDhanProduct(product string) string {
	switch product {
	case "INTRADAY":
		return string(models.ProductMIS)
	case "MARGIN":
		return string(models.ProductNRML)
	default:
		return string(models.ProductCNC)
	}
}

func parseDhanTime(v string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
