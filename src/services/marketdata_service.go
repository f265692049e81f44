package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/username/stockfolio/backend/src/logger"
	"github.com/username/stockfolio/backend/src/model"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const marketDataUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// --- API Response Structs ---

// dailySeriesResponse mirrors the provider's TIME_SERIES_DAILY payload.
// Bar values arrive as strings keyed by numbered field names.
type dailySeriesResponse struct {
	MetaData struct {
		Symbol        string `json:"2. Symbol"`
		LastRefreshed string `json:"3. Last Refreshed"`
	} `json:"Meta Data"`
	TimeSeries map[string]dailyBarPayload `json:"Time Series (Daily)"`
	Note       string                     `json:"Note"`
	ErrorMsg   string                     `json:"Error Message"`
}

type dailyBarPayload struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

// --- Service Implementation ---

type marketDataServiceImpl struct {
	httpClient http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// NewMarketDataService builds the client for the external daily-bar provider.
// Outbound calls are paced by a rate limiter so a full watchlist refresh
// stays under the provider's per-minute quota.
func NewMarketDataService(baseURL, apiKey string) MarketDataService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	client := http.Client{
		Jar:     jar,
		Timeout: 20 * time.Second,
	}

	return &marketDataServiceImpl{
		httpClient: client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Every(15*time.Second), 1),
	}
}

func (s *marketDataServiceImpl) FetchDailyHistory(ctx context.Context, symbol string) ([]model.StockPrice, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", "compact")
	params.Set("datatype", "json")
	params.Set("apikey", s.apiKey)
	requestURL := fmt.Sprintf("%s/query?%s", s.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", marketDataUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call market data API: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market data API returned non-OK status %d", resp.StatusCode)
	}

	var payload dailySeriesResponse
	if err := json.Unmarshal(bodyBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode market data response: %w", err)
	}
	if payload.ErrorMsg != "" {
		return nil, fmt.Errorf("market data API returned an error: %s", payload.ErrorMsg)
	}
	if payload.Note != "" {
		return nil, fmt.Errorf("market data API throttled the request: %s", payload.Note)
	}
	if len(payload.TimeSeries) == 0 {
		return nil, fmt.Errorf("no daily series found for symbol %s", symbol)
	}

	bars := make([]model.StockPrice, 0, len(payload.TimeSeries))
	for date, raw := range payload.TimeSeries {
		bar, err := raw.toStockPrice(symbol, date)
		if err != nil {
			logger.L.Warn("Skipping malformed daily bar", "symbol", symbol, "date", date, "error", err)
			continue
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars, nil
}

func (p dailyBarPayload) toStockPrice(symbol, date string) (model.StockPrice, error) {
	var bar model.StockPrice
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return bar, fmt.Errorf("invalid bar date %q: %w", date, err)
	}

	open, err := strconv.ParseFloat(p.Open, 64)
	if err != nil {
		return bar, fmt.Errorf("invalid open: %w", err)
	}
	high, err := strconv.ParseFloat(p.High, 64)
	if err != nil {
		return bar, fmt.Errorf("invalid high: %w", err)
	}
	low, err := strconv.ParseFloat(p.Low, 64)
	if err != nil {
		return bar, fmt.Errorf("invalid low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(p.Close, 64)
	if err != nil {
		return bar, fmt.Errorf("invalid close: %w", err)
	}
	volume, err := strconv.ParseInt(p.Volume, 10, 64)
	if err != nil {
		return bar, fmt.Errorf("invalid volume: %w", err)
	}

	return model.StockPrice{
		Symbol: symbol,
		Date:   date,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}
