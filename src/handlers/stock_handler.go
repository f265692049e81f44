package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/username/stockfolio/backend/src/database"
	"github.com/username/stockfolio/backend/src/logger"
	"github.com/username/stockfolio/backend/src/model"
	"github.com/username/stockfolio/backend/src/security/validation"
)

type StockHandler struct{}

func NewStockHandler() *StockHandler {
	return &StockHandler{}
}

// rangeStartDate maps a named range to the inclusive start date for the
// catalog query. Unknown ranges fall back to the full history.
func rangeStartDate(rangeName string, now time.Time) string {
	switch rangeName {
	case "5d":
		return now.AddDate(0, 0, -5).Format("2006-01-02")
	case "1m":
		return now.AddDate(0, -1, 0).Format("2006-01-02")
	case "6m":
		return now.AddDate(0, -6, 0).Format("2006-01-02")
	case "1y":
		return now.AddDate(-1, 0, 0).Format("2006-01-02")
	default: // "max" and anything else
		return "1970-01-01"
	}
}

// HandleGetStockRange serves GET /stocks?symbol=...&range=..., bars ordered
// by date ascending.
func (h *StockHandler) HandleGetStockRange(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	rangeName := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("range")))

	if err := validation.ValidateSymbol(symbol); err != nil {
		sendJSONError(w, err.Error(), codeValidationFailed, http.StatusBadRequest)
		return
	}

	startDate := rangeStartDate(rangeName, time.Now())
	bars, err := model.GetStockPricesSince(database.DB, symbol, startDate)
	if err != nil {
		logger.L.Error("Failed to fetch price range", "symbol", symbol, "startDate", startDate, "error", err)
		sendJSONError(w, "Failed to fetch stock prices", codeInternalError, http.StatusInternalServerError)
		return
	}

	if bars == nil {
		bars = []model.StockPrice{}
	}
	writeJSON(w, http.StatusOK, bars)
}

// HandleGetLatestStock serves GET /stock/{symbol}: the most recent bar.
func (h *StockHandler) HandleGetLatestStock(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))

	if err := validation.ValidateSymbol(symbol); err != nil {
		sendJSONError(w, err.Error(), codeValidationFailed, http.StatusBadRequest)
		return
	}

	bar, err := model.GetLatestStockPrice(database.DB, symbol)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendJSONError(w, "No price data for symbol", codeNotFound, http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to fetch latest price", "symbol", symbol, "error", err)
		sendJSONError(w, "Failed to fetch stock price", codeInternalError, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, bar)
}
