package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/username/stockfolio/backend/src/logger"
	"github.com/username/stockfolio/backend/src/model"
)

// FetchJobConfig controls the background price refresher.
type FetchJobConfig struct {
	Symbols  []string
	Interval time.Duration
}

// PriceFetchJob periodically pulls daily history for every watchlist symbol
// and upserts the bars into the price catalog.
type PriceFetchJob struct {
	db         *sql.DB
	marketData MarketDataService
	cfg        FetchJobConfig
}

func NewPriceFetchJob(db *sql.DB, marketData MarketDataService, cfg FetchJobConfig) *PriceFetchJob {
	return &PriceFetchJob{
		db:         db,
		marketData: marketData,
		cfg:        cfg,
	}
}

// Run refreshes once immediately, then on every interval tick until the
// context is cancelled. Intended to be launched in its own goroutine.
func (j *PriceFetchJob) Run(ctx context.Context) {
	logger.L.Info("Price fetch job starting", "symbols", len(j.cfg.Symbols), "interval", j.cfg.Interval.String())

	j.RefreshAll(ctx)

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.L.Info("Price fetch job stopping", "reason", ctx.Err())
			return
		case <-ticker.C:
			j.RefreshAll(ctx)
		}
	}
}

// RefreshAll walks the watchlist once. A symbol that fails is logged and
// skipped so one bad ticker does not starve the rest of the list.
func (j *PriceFetchJob) RefreshAll(ctx context.Context) {
	for _, symbol := range j.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		stored, err := j.refreshSymbol(ctx, symbol)
		if err != nil {
			logger.L.Warn("Price refresh failed for symbol", "symbol", symbol, "error", err)
			continue
		}
		logger.L.Info("Price refresh complete for symbol", "symbol", symbol, "barsStored", stored)
	}
}

func (j *PriceFetchJob) refreshSymbol(ctx context.Context, symbol string) (int, error) {
	bars, err := j.marketData.FetchDailyHistory(ctx, symbol)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, bar := range bars {
		if err := model.UpsertStockPrice(j.db, bar); err != nil {
			logger.L.Error("Failed to upsert daily bar", "symbol", symbol, "date", bar.Date, "error", err)
			continue
		}
		stored++
	}
	return stored, nil
}
