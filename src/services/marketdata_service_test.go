package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/stockfolio/backend/src/model"
)

const sampleDailyPayload = `{
	"Meta Data": {
		"2. Symbol": "AAPL",
		"3. Last Refreshed": "2026-08-28"
	},
	"Time Series (Daily)": {
		"2026-08-28": {"1. open": "230.10", "2. high": "233.00", "3. low": "229.50", "4. close": "232.40", "5. volume": "41200300"},
		"2026-08-27": {"1. open": "228.00", "2. high": "231.20", "3. low": "227.10", "4. close": "230.05", "5. volume": "38800100"}
	}
}`

func newFastMarketDataService(baseURL string) *marketDataServiceImpl {
	svc := NewMarketDataService(baseURL, "test-key").(*marketDataServiceImpl)
	svc.limiter.SetLimit(1000)
	return svc
}

func TestFetchDailyHistory_ParsesAndSortsBars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "TIME_SERIES_DAILY", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		fmt.Fprint(w, sampleDailyPayload)
	}))
	defer server.Close()

	svc := newFastMarketDataService(server.URL)
	bars, err := svc.FetchDailyHistory(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "2026-08-27", bars[0].Date)
	assert.Equal(t, "2026-08-28", bars[1].Date)
	assert.Equal(t, 232.40, bars[1].Close)
	assert.Equal(t, int64(41200300), bars[1].Volume)
	assert.Equal(t, "AAPL", bars[0].Symbol)
}

func TestFetchDailyHistory_EmptySeriesIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Meta Data": {}, "Time Series (Daily)": {}}`)
	}))
	defer server.Close()

	svc := newFastMarketDataService(server.URL)
	_, err := svc.FetchDailyHistory(context.Background(), "NOPE")
	assert.Error(t, err)
}

func TestFetchDailyHistory_ProviderErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Error Message": "Invalid API call."}`)
	}))
	defer server.Close()

	svc := newFastMarketDataService(server.URL)
	_, err := svc.FetchDailyHistory(context.Background(), "BAD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API call")
}

func TestFetchDailyHistory_SkipsMalformedBars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"Time Series (Daily)": {
				"2026-08-28": {"1. open": "10", "2. high": "11", "3. low": "9", "4. close": "10.5", "5. volume": "100"},
				"2026-08-27": {"1. open": "oops", "2. high": "11", "3. low": "9", "4. close": "10.5", "5. volume": "100"}
			}
		}`)
	}))
	defer server.Close()

	svc := newFastMarketDataService(server.URL)
	bars, err := svc.FetchDailyHistory(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "2026-08-28", bars[0].Date)
}

type stubMarketData struct {
	bars map[string][]model.StockPrice
	err  error
}

func (s *stubMarketData) FetchDailyHistory(ctx context.Context, symbol string) ([]model.StockPrice, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.bars[symbol], nil
}

func TestPriceFetchJob_RefreshAllStoresBars(t *testing.T) {
	db := newTestDB(t)

	stub := &stubMarketData{bars: map[string][]model.StockPrice{
		"AAPL": {
			{Symbol: "AAPL", Date: "2026-08-27", Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10},
			{Symbol: "AAPL", Date: "2026-08-28", Open: 1.5, High: 2.5, Low: 1.4, Close: 2, Volume: 12},
		},
		"TSLA": {
			{Symbol: "TSLA", Date: "2026-08-28", Open: 3, High: 4, Low: 3, Close: 3.5, Volume: 20},
		},
	}}

	job := NewPriceFetchJob(db, stub, FetchJobConfig{
		Symbols:  []string{"AAPL", "TSLA", "EMPTY"},
		Interval: time.Hour,
	})
	job.RefreshAll(context.Background())

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM stock_prices").Scan(&n))
	assert.Equal(t, 3, n)

	latest, err := model.GetLatestStockPrice(db, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-28", latest.Date)
}

func TestPriceFetchJob_RunStopsOnCancel(t *testing.T) {
	db := newTestDB(t)
	job := NewPriceFetchJob(db, &stubMarketData{}, FetchJobConfig{
		Symbols:  []string{"AAPL"},
		Interval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch job did not stop after context cancellation")
	}
}
