package model

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrDuplicateEmail reports an insert that lost the race against another
// registration for the same address. Callers map it to a conflict reply.
var ErrDuplicateEmail = errors.New("email address already in use")

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Password     string    `json:"-"`
	AuthProvider string    `json:"auth_provider,omitempty"`
	Balance      float64   `json:"balance"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) HashPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
}

func (u *User) CreateUser(db *sql.DB) error {
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.AuthProvider == "" {
		u.AuthProvider = "local"
	}

	query := `
	INSERT INTO users (username, email, password, auth_provider, balance, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(
		u.Username,
		u.Email,
		u.Password,
		u.AuthProvider,
		u.Balance,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return ErrDuplicateEmail
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

func GetUserByID(db *sql.DB, id int64) (*User, error) {
	query := `
	SELECT id, username, email, password, auth_provider, balance, created_at, updated_at
	FROM users
	WHERE id = ?`
	return scanUserRow(db.QueryRow(query, id))
}

func GetUserByEmail(db *sql.DB, email string) (*User, error) {
	query := `
	SELECT id, username, email, password, auth_provider, balance, created_at, updated_at
	FROM users
	WHERE email = ?`
	return scanUserRow(db.QueryRow(query, email))
}

func scanUserRow(row *sql.Row) (*User, error) {
	var user User
	var authProvider sql.NullString

	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.Password,
		&authProvider, &user.Balance,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}

	user.AuthProvider = authProvider.String
	return &user, nil
}

// UpdateProfile applies partial updates to the user's display name and balance.
func (u *User) UpdateProfile(db *sql.DB, name *string, balance *float64) error {
	if name != nil {
		u.Username = *name
	}
	if balance != nil {
		u.Balance = *balance
	}
	u.UpdatedAt = time.Now()

	query := `
	UPDATE users
	SET username = ?, balance = ?, updated_at = ?
	WHERE id = ?`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(u.Username, u.Balance, u.UpdatedAt, u.ID)
	return err
}

func (u *User) UpdatePassword(db *sql.DB, newPasswordHash string) error {
	u.Password = newPasswordHash
	u.UpdatedAt = time.Now()

	query := `
	UPDATE users
	SET password = ?, updated_at = ?
	WHERE id = ?`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(u.Password, u.UpdatedAt, u.ID)
	return err
}

type Session struct {
	ID           int       `json:"id"`
	UserID       int64     `json:"user_id"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	UserAgent    string    `json:"user_agent"`
	ClientIP     string    `json:"client_ip"`
	IsBlocked    bool      `json:"is_blocked"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func CreateSession(db *sql.DB, session *Session) error {
	query := `
	INSERT INTO sessions (user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	session.CreatedAt = time.Now()
	_, err = stmt.Exec(
		session.UserID,
		session.Token,
		session.RefreshToken,
		session.UserAgent,
		session.ClientIP,
		session.IsBlocked,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return err
}

func GetSessionByToken(db *sql.DB, token string) (*Session, error) {
	query := `
	SELECT id, user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at
	FROM sessions
	WHERE token = ? AND is_blocked = FALSE AND expires_at > ?`
	return scanSessionRow(db.QueryRow(query, token, time.Now()), "session not found, expired, or blocked")
}

func GetSessionByRefreshToken(db *sql.DB, refreshToken string) (*Session, error) {
	query := `
	SELECT id, user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at
	FROM sessions
	WHERE refresh_token = ? AND is_blocked = FALSE AND expires_at > ?`
	return scanSessionRow(db.QueryRow(query, refreshToken, time.Now()), "refresh session not found, expired, or blocked")
}

func scanSessionRow(row *sql.Row, notFoundMsg string) (*Session, error) {
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.RefreshToken,
		&session.UserAgent,
		&session.ClientIP,
		&session.IsBlocked,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(notFoundMsg)
		}
		return nil, err
	}
	return &session, nil
}

func DeleteSessionByToken(db *sql.DB, token string) error {
	query := `DELETE FROM sessions WHERE token = ?`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(token)
	return err
}

func DeleteSessionByRefreshToken(db *sql.DB, refreshToken string) error {
	query := `DELETE FROM sessions WHERE refresh_token = ?`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(refreshToken)
	return err
}
