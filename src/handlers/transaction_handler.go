package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/username/stockfolio/backend/src/logger"
	"github.com/username/stockfolio/backend/src/model"
	"github.com/username/stockfolio/backend/src/security/validation"
	"github.com/username/stockfolio/backend/src/services"
)

type TransactionHandler struct {
	portfolioService services.PortfolioService
}

func NewTransactionHandler(portfolioService services.PortfolioService) *TransactionHandler {
	return &TransactionHandler{portfolioService: portfolioService}
}

func (h *TransactionHandler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		UserEmail string  `json:"userEmail"`
		Symbol    string  `json:"symbol"`
		Price     float64 `json:"price"`
		Quantity  int     `json:"quantity"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		sendJSONError(w, "Invalid request body", codeInvalidRequest, http.StatusBadRequest)
		return
	}

	requestBody.UserEmail = strings.ToLower(strings.TrimSpace(requestBody.UserEmail))
	requestBody.Symbol = strings.ToUpper(strings.TrimSpace(requestBody.Symbol))
	if err := validation.ValidateSymbol(requestBody.Symbol); err != nil {
		sendJSONError(w, err.Error(), codeValidationFailed, http.StatusBadRequest)
		return
	}

	newBalance, err := h.portfolioService.ExecuteBuy(requestBody.UserEmail, requestBody.Symbol, requestBody.Price, requestBody.Quantity)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Purchase settled",
		"balance": newBalance,
	})
}

func (h *TransactionHandler) HandleSell(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		UserEmail     string  `json:"userEmail"`
		Symbol        string  `json:"symbol"`
		Quantity      int     `json:"quantity"`
		CurrentPrice  float64 `json:"currentPrice"`
		TransactionID int64   `json:"transactionId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		sendJSONError(w, "Invalid request body", codeInvalidRequest, http.StatusBadRequest)
		return
	}

	requestBody.UserEmail = strings.ToLower(strings.TrimSpace(requestBody.UserEmail))

	result, err := h.portfolioService.ExecuteSell(requestBody.UserEmail, requestBody.TransactionID, requestBody.Quantity, requestBody.CurrentPrice)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Sale settled",
		"balance":  result.NewBalance,
		"proceeds": result.Proceeds,
	})
}

func (h *TransactionHandler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "userEmail")))

	holdings, err := h.portfolioService.ListHoldings(email)
	if err != nil {
		logger.L.Error("Failed to list holdings", "email", email, "error", err)
		sendJSONError(w, "Failed to fetch holdings", codeInternalError, http.StatusInternalServerError)
		return
	}

	// An account with no open lots gets an empty array, not null.
	if holdings == nil {
		holdings = []services.HoldingWithQuote{}
	}
	writeJSON(w, http.StatusOK, holdings)
}

func (h *TransactionHandler) HandleDeleteLot(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	lotID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		sendJSONError(w, "Invalid transaction id", codeInvalidRequest, http.StatusBadRequest)
		return
	}

	if err := h.portfolioService.DeleteLot(lotID); err != nil {
		sendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Transaction deleted"})
}

func (h *TransactionHandler) HandleGetProfit(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "email")))

	profit, err := h.portfolioService.ComputeProfit(email)
	if err != nil {
		logger.L.Error("Failed to compute profit", "email", email, "error", err)
		sendJSONError(w, "Failed to compute profit", codeInternalError, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]float64{"profit": profit})
}

func (h *TransactionHandler) HandleGetStockLogs(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "email")))

	logs, err := h.portfolioService.ActivityLog(email)
	if err != nil {
		logger.L.Error("Failed to fetch stock logs", "email", email, "error", err)
		sendJSONError(w, "Failed to fetch stock logs", codeInternalError, http.StatusInternalServerError)
		return
	}

	if logs == nil {
		logs = []model.StockLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
