package model

import (
	"database/sql"
	"time"

	"github.com/username/stockfolio/backend/src/logger"
)

// StockPrice represents one trading day's OHLCV bar for a symbol.
type StockPrice struct {
	ID        int64   `json:"id,omitempty"`
	Symbol    string  `json:"symbol"`
	Date      string  `json:"date"` // YYYY-MM-DD
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	UpdatedAt time.Time
}

// UpsertStockPrice saves a daily bar, overwriting any prior values for the
// same (symbol, date) key. A later fetch for the same day replaces the row.
func UpsertStockPrice(db *sql.DB, bar StockPrice) error {
	query := `
        INSERT INTO stock_prices (symbol, date, open, high, low, close, volume, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(symbol, date) DO UPDATE SET
            open = excluded.open,
            high = excluded.high,
            low = excluded.low,
            close = excluded.close,
            volume = excluded.volume,
            updated_at = excluded.updated_at;
    `
	_, err := db.Exec(query, bar.Symbol, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, time.Now())
	if err != nil {
		logger.L.Error("Failed to upsert stock price", "symbol", bar.Symbol, "date", bar.Date, "error", err)
	}
	return err
}

// GetLatestStockPrice returns the bar with the most recent date for a symbol.
func GetLatestStockPrice(db *sql.DB, symbol string) (*StockPrice, error) {
	query := `
	SELECT id, symbol, date, open, high, low, close, volume, updated_at
	FROM stock_prices
	WHERE symbol = ?
	ORDER BY date DESC
	LIMIT 1`
	row := db.QueryRow(query, symbol)

	var bar StockPrice
	err := row.Scan(&bar.ID, &bar.Symbol, &bar.Date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume, &bar.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &bar, nil
}

// GetStockPricesSince returns all bars for a symbol with date >= startDate,
// ordered by date ascending.
func GetStockPricesSince(db *sql.DB, symbol, startDate string) ([]StockPrice, error) {
	query := `
	SELECT id, symbol, date, open, high, low, close, volume, updated_at
	FROM stock_prices
	WHERE symbol = ? AND date >= ?
	ORDER BY date ASC`
	rows, err := db.Query(query, symbol, startDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []StockPrice
	for rows.Next() {
		var bar StockPrice
		if err := rows.Scan(&bar.ID, &bar.Symbol, &bar.Date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume, &bar.UpdatedAt); err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}
