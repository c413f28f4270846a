// Package sync runs the fetch-normalize-ingest-reconcile pipeline for each
// configured broker. The pipeline is safe to run repeatedly; the ledger's
// idempotent upsert makes re-runs and overlapping runs converge on the same
// stored state.
package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trade-journal/internal/broker"
	"trade-journal/internal/ledger"
	"trade-journal/internal/logging"
	"trade-journal/internal/models"
	"trade-journal/internal/pattern"
	"trade-journal/internal/performance"
	"trade-journal/internal/reconcile"
	"trade-journal/internal/store"
	"trade-journal/pkg/utils"
)

// Pipeline orchestrates a sync run.
type Pipeline struct {
	registry   *broker.Registry
	ledger     *ledger.Ledger
	engine     *reconcile.Engine
	store      store.DataStore
	classifier *pattern.Classifier
	history    broker.HistoricalProvider
	pool       *performance.WorkerPool
	limiter    *performance.RateLimiter
	minObs     int
	logger     zerolog.Logger
}

// Options configures optional pipeline collaborators.
type Options struct {
	// Classifier labels newly ingested trades. Nil disables classification.
	Classifier *pattern.Classifier
	// History supplies daily candles when the store cache is short.
	History broker.HistoricalProvider
	// Workers sizes the background classification pool.
	Workers int
	// MinObservations is the candle count below which classification is
	// skipped.
	MinObservations int
}

// Result summarizes one broker's sync run.
type Result struct {
	Broker     models.Broker
	Fetched    int
	Created    int
	Duplicates int
	Reconciled int
	Failed     int
	Duration   time.Duration
}

// NewPipeline creates a sync pipeline.
func NewPipeline(registry *broker.Registry, lg *ledger.Ledger, engine *reconcile.Engine, st store.DataStore, opts Options, logger zerolog.Logger) *Pipeline {
	minObs := opts.MinObservations
	if minObs < pattern.MinObservations {
		minObs = pattern.MinObservations
	}
	p := &Pipeline{
		registry:   registry,
		ledger:     lg,
		engine:     engine,
		store:      st,
		classifier: opts.Classifier,
		history:    opts.History,
		pool:       performance.NewWorkerPool(opts.Workers),
		limiter:    performance.NewRateLimiter(3, 5),
		minObs:     minObs,
		logger:     logger,
	}
	p.pool.Start()
	return p
}

// Close drains the background classification pool.
func (p *Pipeline) Close() {
	p.pool.Stop()
}

// SyncBroker runs the pipeline for one broker. A trade that fails to
// reconcile counts as failed and holds back the sync watermark so the next
// run retries it; the remaining trades in the batch still proceed.
func (p *Pipeline) SyncBroker(ctx context.Context, userID string, name models.Broker) (*Result, error) {
	adapter, err := p.registry.Get(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	since := p.store.GetLastSync(name)

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	raws, err := utils.RetryWithResult(ctx, utils.DefaultRetryConfig(), func() ([]broker.RawTrade, error) {
		return adapter.FetchTrades(ctx, since)
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Broker: name, Fetched: len(raws)}
	watermark := since

	for _, raw := range raws {
		trade, err := adapter.Normalize(userID, raw)
		if err != nil {
			p.logger.Warn().Err(err).
				Str("broker", string(name)).
				Str("order_id", raw.OrderID).
				Msg("skipping unnormalizable trade")
			result.Failed++
			continue
		}

		stored, created, err := p.ledger.Upsert(ctx, trade)
		if err != nil {
			p.logger.Error().Err(err).
				Str("broker", string(name)).
				Str("order_id", raw.OrderID).
				Msg("trade ingestion failed")
			result.Failed++
			continue
		}

		if !created {
			result.Duplicates++
			continue
		}
		result.Created++

		// Reconcile only freshly created records; re-reconciling a
		// duplicate would double-book its PnL.
		if _, err := p.engine.ReconcileAndStamp(ctx, stored); err != nil {
			p.logger.Error().Err(err).
				Str("trade_id", stored.ID).
				Msg("reconciliation failed, trade left for retry")
			result.Failed++
			continue
		}
		result.Reconciled++

		if ts := stored.TradeTime(); ts.After(watermark) {
			watermark = ts
		}

		p.submitClassification(stored)
	}

	// Advance the watermark only on a clean run so failed trades are
	// refetched next time.
	if result.Failed == 0 && watermark.After(since) {
		if err := p.store.SetLastSync(name, watermark); err != nil {
			p.logger.Warn().Err(err).Str("broker", string(name)).Msg("failed to record sync watermark")
		}
	}

	result.Duration = time.Since(start)
	logging.LogSyncSummary(p.logger, string(name), result.Fetched, result.Created, result.Reconciled, result.Failed, result.Duration)

	return result, nil
}

// SyncAll runs the pipeline for every named broker in order.
func (p *Pipeline) SyncAll(ctx context.Context, userID string, brokers []models.Broker) ([]Result, error) {
	var results []Result
	for _, name := range brokers {
		res, err := p.SyncBroker(ctx, userID, name)
		if err != nil {
			p.logger.Error().Err(err).Str("broker", string(name)).Msg("broker sync failed")
			results = append(results, Result{Broker: name, Failed: 1})
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}

// submitClassification queues pattern classification for a trade. The work
// is fire-and-forget: a failed or slow classification never blocks or rolls
// back the reconciliation that already happened.
func (p *Pipeline) submitClassification(t *models.TradeRecord) {
	if p.classifier == nil {
		return
	}

	tradeID := t.ID
	symbol := t.Symbol
	exchange := t.Exchange
	tradeTime := t.TradeTime()

	queued := p.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := p.classifyTrade(ctx, tradeID, symbol, exchange, tradeTime); err != nil {
			p.logger.Debug().Err(err).
				Str("trade_id", tradeID).
				Str("symbol", symbol).
				Msg("pattern classification skipped")
		}
	})
	if !queued {
		p.logger.Warn().
			Str("trade_id", tradeID).
			Str("symbol", symbol).
			Msg("classification queue full, trade left unclassified")
	}
}

func (p *Pipeline) classifyTrade(ctx context.Context, tradeID, symbol string, exchange models.Exchange, at time.Time) error {
	candles, err := p.loadCandles(ctx, symbol, exchange, at)
	if err != nil {
		return err
	}

	features, err := pattern.BuildFeatures(candles, p.minObs)
	if err != nil {
		return err
	}

	result, err := p.classifier.Classify(features)
	if err != nil {
		return err
	}

	if err := p.store.UpdateTradePattern(ctx, tradeID, result.PatternID); err != nil {
		return err
	}

	logging.LogClassification(p.logger, tradeID, symbol, result.PatternID, result.Distance, result.Fallback)
	return nil
}

// loadCandles serves trailing daily candles from the cache, refilling it
// from the historical provider when short.
func (p *Pipeline) loadCandles(ctx context.Context, symbol string, exchange models.Exchange, before time.Time) ([]models.Candle, error) {
	candles, err := p.store.GetRecentCandles(ctx, symbol, before, p.minObs+1)
	if err != nil {
		return nil, err
	}
	if len(candles) >= p.minObs || p.history == nil {
		return candles, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return candles, err
	}

	from := before.AddDate(0, 0, -(p.minObs * 2))
	fetched, err := p.history.GetDailyCandles(ctx, symbol, exchange, from, before)
	if err != nil {
		return candles, err
	}
	if err := p.store.SaveCandles(ctx, symbol, fetched); err != nil {
		return candles, err
	}

	return p.store.GetRecentCandles(ctx, symbol, before, p.minObs+1)
}
