package model

import (
	"database/sql"
	"time"
)

// Holding is one open purchase lot: shares acquired in a single buy with
// the quantity still unsold. It is decremented on partial sells and deleted
// when the remaining quantity reaches zero.
type Holding struct {
	ID        int64     `json:"id"`
	UserEmail string    `json:"userEmail"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"date"`
}

// StockLog is an append-only activity record for a settled buy or sell.
// It is the sole source for profit and transaction-history reporting.
type StockLog struct {
	ID        int64     `json:"id"`
	UserEmail string    `json:"userEmail"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	Total     float64   `json:"total"`
	Kind      string    `json:"kind"` // "BUY" or "SELL"
	CreatedAt time.Time `json:"date"`
}

const (
	LogKindBuy  = "BUY"
	LogKindSell = "SELL"
)

type ContactMessage struct {
	ID        int64     `json:"id,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// GetHoldingsByEmail returns the user's open lots, newest first.
func GetHoldingsByEmail(db *sql.DB, email string) ([]Holding, error) {
	query := `
	SELECT id, user_email, symbol, price, quantity, created_at
	FROM holdings
	WHERE user_email = ?
	ORDER BY created_at DESC, id DESC`
	rows, err := db.Query(query, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []Holding
	for rows.Next() {
		var h Holding
		if err := rows.Scan(&h.ID, &h.UserEmail, &h.Symbol, &h.Price, &h.Quantity, &h.CreatedAt); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// GetStockLogsByEmail returns the user's activity records, newest first.
func GetStockLogsByEmail(db *sql.DB, email string) ([]StockLog, error) {
	query := `
	SELECT id, user_email, symbol, price, quantity, total, kind, created_at
	FROM stock_logs
	WHERE user_email = ?
	ORDER BY created_at DESC, id DESC`
	rows, err := db.Query(query, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []StockLog
	for rows.Next() {
		var l StockLog
		if err := rows.Scan(&l.ID, &l.UserEmail, &l.Symbol, &l.Price, &l.Quantity, &l.Total, &l.Kind, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (m *ContactMessage) Create(db *sql.DB) error {
	m.CreatedAt = time.Now()
	query := `
	INSERT INTO contact_messages (name, email, message, created_at)
	VALUES (?, ?, ?, ?)`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(m.Name, m.Email, m.Message, m.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}
