package services

import (
	"context"
	"errors"
	"time"

	"github.com/username/stockfolio/backend/src/model"
)

// Cache tuning shared by the service layer and main.
const (
	DefaultCacheExpiration = 5 * time.Minute
	CacheCleanupInterval   = 10 * time.Minute
)

// Common service errors. Handlers map these to HTTP statuses and stable
// error codes with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrDuplicateEmail    = errors.New("email address already in use")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// HoldingWithQuote is an open lot annotated with the latest known close for
// mark-to-market display. LatestClose is nil when no bar exists yet.
type HoldingWithQuote struct {
	model.Holding
	LatestClose *float64 `json:"latestClose,omitempty"`
	LatestDate  string   `json:"latestDate,omitempty"`
}

// SellResult reports the outcome of a settled sell.
type SellResult struct {
	Proceeds   float64 `json:"proceeds"`
	NewBalance float64 `json:"balance"`
	LotRemoved bool    `json:"lotRemoved"`
}

// PortfolioService is the transaction/balance/position core. Every settlement
// operation is serialized per account and applied in a single database
// transaction: either all of its effects persist or none do.
type PortfolioService interface {
	// ExecuteBuy debits the account, creates a lot and appends a BUY record.
	// Returns the new balance.
	ExecuteBuy(email, symbol string, unitPrice float64, quantity int) (float64, error)
	// ExecuteSell decrements or removes a lot, credits the proceeds and
	// appends a SELL record, all atomically.
	ExecuteSell(email string, lotID int64, quantity int, currentPrice float64) (*SellResult, error)
	// Deposit credits a strictly positive amount and returns the new balance.
	Deposit(email string, amount float64) (float64, error)
	// ComputeProfit is the sum of SELL totals minus BUY totals over the
	// account's activity log.
	ComputeProfit(email string) (float64, error)
	ListHoldings(email string) ([]HoldingWithQuote, error)
	ActivityLog(email string) ([]model.StockLog, error)
	DeleteLot(lotID int64) error
}

// MarketDataService fetches daily OHLCV history from the external provider.
type MarketDataService interface {
	FetchDailyHistory(ctx context.Context, symbol string) ([]model.StockPrice, error)
}
