package model

import (
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/stockfolio/backend/src/logger"
	_ "modernc.org/sqlite"
)

const testSchema = `
CREATE TABLE users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    password TEXT NOT NULL,
    auth_provider TEXT NOT NULL DEFAULT 'local',
    balance REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    token TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    user_agent TEXT,
    client_ip TEXT,
    is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE stock_prices (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    date TEXT NOT NULL,
    open REAL NOT NULL,
    high REAL NOT NULL,
    low REAL NOT NULL,
    close REAL NOT NULL,
    volume INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(symbol, date)
);
CREATE TABLE contact_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    email TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertStockPrice_OverwritesSameDay(t *testing.T) {
	db := newTestDB(t)

	bar := StockPrice{Symbol: "AAPL", Date: "2026-08-28", Open: 10, High: 12, Low: 9, Close: 11, Volume: 100}
	require.NoError(t, UpsertStockPrice(db, bar))

	bar.Close = 11.5
	bar.Volume = 150
	require.NoError(t, UpsertStockPrice(db, bar))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM stock_prices WHERE symbol = 'AAPL'").Scan(&count))
	assert.Equal(t, 1, count)

	latest, err := GetLatestStockPrice(db, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 11.5, latest.Close)
	assert.Equal(t, int64(150), latest.Volume)
}

func TestGetLatestStockPrice(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, UpsertStockPrice(db, StockPrice{Symbol: "TSLA", Date: "2026-08-26", Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10}))
	require.NoError(t, UpsertStockPrice(db, StockPrice{Symbol: "TSLA", Date: "2026-08-28", Open: 2, High: 3, Low: 2, Close: 2.5, Volume: 20}))
	require.NoError(t, UpsertStockPrice(db, StockPrice{Symbol: "TSLA", Date: "2026-08-27", Open: 1.5, High: 2.5, Low: 1.5, Close: 2, Volume: 15}))

	latest, err := GetLatestStockPrice(db, "TSLA")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-28", latest.Date)

	_, err = GetLatestStockPrice(db, "MISSING")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestGetStockPricesSince_AscendingAndFiltered(t *testing.T) {
	db := newTestDB(t)

	for _, date := range []string{"2026-08-25", "2026-08-26", "2026-08-27", "2026-08-28"} {
		require.NoError(t, UpsertStockPrice(db, StockPrice{Symbol: "KO", Date: date, Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10}))
	}
	require.NoError(t, UpsertStockPrice(db, StockPrice{Symbol: "DIS", Date: "2026-08-28", Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10}))

	bars, err := GetStockPricesSince(db, "KO", "2026-08-26")
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, "2026-08-26", bars[0].Date)
	assert.Equal(t, "2026-08-28", bars[2].Date)
	for _, bar := range bars {
		assert.Equal(t, "KO", bar.Symbol)
	}
}
