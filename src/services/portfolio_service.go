package services

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/stockfolio/backend/src/logger"
	"github.com/username/stockfolio/backend/src/model"
)

type portfolioServiceImpl struct {
	db         *sql.DB
	quoteCache *cache.Cache
	locks      sync.Map // email -> *sync.Mutex
}

func NewPortfolioService(db *sql.DB, quoteCache *cache.Cache) PortfolioService {
	return &portfolioServiceImpl{
		db:         db,
		quoteCache: quoteCache,
	}
}

// accountLock returns the mutex serializing settlements for one account.
// Two concurrent buys (or sells) for the same email must not both pass the
// balance/quantity check before either commits.
func (s *portfolioServiceImpl) accountLock(email string) *sync.Mutex {
	m, _ := s.locks.LoadOrStore(email, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func (s *portfolioServiceImpl) ExecuteBuy(email, symbol string, unitPrice float64, quantity int) (float64, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	if unitPrice <= 0 {
		return 0, ErrInvalidAmount
	}

	mu := s.accountLock(email)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin buy transaction: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	var balance float64
	err = tx.QueryRow("SELECT id, balance FROM users WHERE email = ?", email).Scan(&userID, &balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	totalCost := unitPrice * float64(quantity)
	if balance < totalCost {
		return 0, ErrInsufficientFunds
	}

	newBalance := balance - totalCost
	now := time.Now()
	if _, err = tx.Exec("UPDATE users SET balance = ?, updated_at = ? WHERE id = ?", newBalance, now, userID); err != nil {
		return 0, err
	}
	if _, err = tx.Exec(
		"INSERT INTO holdings (user_email, symbol, price, quantity, created_at) VALUES (?, ?, ?, ?, ?)",
		email, symbol, unitPrice, quantity, now,
	); err != nil {
		return 0, err
	}
	if _, err = tx.Exec(
		"INSERT INTO stock_logs (user_email, symbol, price, quantity, total, kind, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		email, symbol, unitPrice, quantity, totalCost, model.LogKindBuy, now,
	); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit buy transaction: %w", err)
	}

	logger.L.Info("Buy settled", "email", email, "symbol", symbol, "quantity", quantity, "totalCost", totalCost, "newBalance", newBalance)
	return newBalance, nil
}

func (s *portfolioServiceImpl) ExecuteSell(email string, lotID int64, quantity int, currentPrice float64) (*SellResult, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if currentPrice <= 0 {
		return nil, ErrInvalidAmount
	}

	mu := s.accountLock(email)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin sell transaction: %w", err)
	}
	defer tx.Rollback()

	var symbol string
	var remaining int
	err = tx.QueryRow("SELECT symbol, quantity FROM holdings WHERE id = ? AND user_email = ?", lotID, email).Scan(&symbol, &remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// A sell exceeding the remaining quantity is rejected, never clamped.
	if quantity > remaining {
		return nil, ErrInvalidQuantity
	}

	now := time.Now()
	lotRemoved := quantity == remaining
	if lotRemoved {
		if _, err = tx.Exec("DELETE FROM holdings WHERE id = ?", lotID); err != nil {
			return nil, err
		}
	} else {
		if _, err = tx.Exec("UPDATE holdings SET quantity = quantity - ? WHERE id = ?", quantity, lotID); err != nil {
			return nil, err
		}
	}

	proceeds := currentPrice * float64(quantity)

	var userID int64
	var balance float64
	err = tx.QueryRow("SELECT id, balance FROM users WHERE email = ?", email).Scan(&userID, &balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	newBalance := balance + proceeds
	if _, err = tx.Exec("UPDATE users SET balance = ?, updated_at = ? WHERE id = ?", newBalance, now, userID); err != nil {
		return nil, err
	}

	if _, err = tx.Exec(
		"INSERT INTO stock_logs (user_email, symbol, price, quantity, total, kind, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		email, symbol, currentPrice, quantity, proceeds, model.LogKindSell, now,
	); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit sell transaction: %w", err)
	}

	logger.L.Info("Sell settled", "email", email, "lotID", lotID, "symbol", symbol, "quantity", quantity, "proceeds", proceeds, "lotRemoved", lotRemoved)
	return &SellResult{Proceeds: proceeds, NewBalance: newBalance, LotRemoved: lotRemoved}, nil
}

func (s *portfolioServiceImpl) Deposit(email string, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	mu := s.accountLock(email)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin deposit transaction: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	var balance float64
	err = tx.QueryRow("SELECT id, balance FROM users WHERE email = ?", email).Scan(&userID, &balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	newBalance := balance + amount
	if _, err = tx.Exec("UPDATE users SET balance = ?, updated_at = ? WHERE id = ?", newBalance, time.Now(), userID); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit deposit transaction: %w", err)
	}

	logger.L.Info("Deposit applied", "email", email, "amount", amount, "newBalance", newBalance)
	return newBalance, nil
}

func (s *portfolioServiceImpl) ComputeProfit(email string) (float64, error) {
	var profit float64
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(CASE WHEN kind = 'SELL' THEN total ELSE -total END), 0)
		FROM stock_logs
		WHERE user_email = ?`, email).Scan(&profit)
	if err != nil {
		return 0, err
	}
	return profit, nil
}

func (s *portfolioServiceImpl) ListHoldings(email string) ([]HoldingWithQuote, error) {
	holdings, err := model.GetHoldingsByEmail(s.db, email)
	if err != nil {
		return nil, err
	}

	annotated := make([]HoldingWithQuote, 0, len(holdings))
	for _, h := range holdings {
		hq := HoldingWithQuote{Holding: h}
		if bar, err := s.latestBar(h.Symbol); err == nil {
			closePrice := bar.Close
			hq.LatestClose = &closePrice
			hq.LatestDate = bar.Date
		} else if !errors.Is(err, sql.ErrNoRows) {
			logger.L.Warn("Could not annotate holding with latest price", "symbol", h.Symbol, "error", err)
		}
		annotated = append(annotated, hq)
	}
	return annotated, nil
}

// latestBar resolves the most recent bar for a symbol through the quote
// cache so a portfolio listing does not hit the catalog once per lot.
func (s *portfolioServiceImpl) latestBar(symbol string) (*model.StockPrice, error) {
	cacheKey := "latest:" + symbol
	if cached, found := s.quoteCache.Get(cacheKey); found {
		return cached.(*model.StockPrice), nil
	}
	bar, err := model.GetLatestStockPrice(s.db, symbol)
	if err != nil {
		return nil, err
	}
	s.quoteCache.Set(cacheKey, bar, cache.DefaultExpiration)
	return bar, nil
}

func (s *portfolioServiceImpl) ActivityLog(email string) ([]model.StockLog, error) {
	return model.GetStockLogsByEmail(s.db, email)
}

func (s *portfolioServiceImpl) DeleteLot(lotID int64) error {
	res, err := s.db.Exec("DELETE FROM holdings WHERE id = ?", lotID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
