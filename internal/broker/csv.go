package broker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "trade-journal/internal/errors"
	"trade-journal/internal/models"
	"trade-journal/internal/performance"
)

// CSVAdapter imports trades from a manually exported tradebook file. It
// exists for brokers with no usable API and for backfilling history.
type CSVAdapter struct {
	path            string
	defaultExchange models.Exchange
	defaultProduct  models.ProductType
}

// NewCSVAdapter creates an adapter reading the given CSV file. Rows missing
// an exchange or product column fall back to the given defaults.
func NewCSVAdapter(path string, defaultExchange models.Exchange, defaultProduct models.ProductType) *CSVAdapter {
	return &CSVAdapter{
		path:            path,
		defaultExchange: defaultExchange,
		defaultProduct:  defaultProduct,
	}
}

// Name identifies this adapter.
func (c *CSVAdapter) Name() models.Broker {
	return models.BrokerCSV
}

// csvTrade is one row of the import file. Column names follow the common
// tradebook export format.
type csvTrade struct {
	OrderID  string  `csv:"order_id"`
	Symbol   string  `csv:"symbol"`
	Exchange string  `csv:"exchange"`
	Side     string  `csv:"side"`
	Product  string  `csv:"product"`
	Quantity int     `csv:"quantity"`
	Price    float64 `csv:"price"`
	Time     string  `csv:"trade_time"`
}

// csvBatchSize bounds how many parsed rows are held before conversion.
const csvBatchSize = 500

// FetchTrades streams the CSV file row by row. since filters rows by trade
// time.
func (c *CSVAdapter) FetchTrades(ctx context.Context, since time.Time) ([]RawTrade, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, apperrors.NewDataError("csv", c.path, "failed to open import file", err)
	}
	defer f.Close()

	var raws []RawTrade
	row := 1 // header
	batcher := performance.NewBatchProcessor(csvBatchSize, func(rows []csvTrade) error {
		for _, r := range rows {
			row++
			ts, err := parseCSVTime(r.Time)
			if err != nil {
				return apperrors.NewDataError("csv", c.path, fmt.Sprintf("row %d: bad trade_time %q", row, r.Time), err)
			}
			if !since.IsZero() && !ts.After(since) {
				continue
			}
			raws = append(raws, RawTrade{
				OrderID:   r.OrderID,
				Symbol:    r.Symbol,
				Exchange:  r.Exchange,
				Side:      r.Side,
				Product:   r.Product,
				Quantity:  r.Quantity,
				Price:     r.Price,
				Timestamp: ts,
			})
		}
		return nil
	})

	if err := gocsv.UnmarshalToCallback(f, func(r csvTrade) error {
		return batcher.Add(r)
	}); err != nil {
		return nil, apperrors.NewDataError("csv", c.path, "failed to parse import file", err)
	}
	if err := batcher.Flush(); err != nil {
		return nil, err
	}

	return raws, nil
}

// Normalize converts a raw CSV row to the canonical trade tuple.
func (c *CSVAdapter) Normalize(userID string, raw RawTrade) (*models.TradeRecord, error) {
	if raw.Exchange == "" {
		raw.Exchange = string(c.defaultExchange)
	}
	if raw.Product == "" {
		raw.Product = string(c.defaultProduct)
	}
	if raw.Segment == "" {
		raw.Segment = string(segmentForExchange(models.Exchange(raw.Exchange)))
	}
	return normalizeRaw(userID, models.BrokerCSV, raw)
}

func parseCSVTime(v string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, v)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
