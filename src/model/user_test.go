package model

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCreateAndLookup(t *testing.T) {
	db := newTestDB(t)

	user := &User{Username: "alice", Email: "alice@test.com"}
	require.NoError(t, user.HashPassword("secret123"))
	require.NoError(t, user.CreateUser(db))
	assert.NotZero(t, user.ID)
	assert.Equal(t, "local", user.AuthProvider)

	found, err := GetUserByEmail(db, "alice@test.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.NoError(t, found.CheckPassword("secret123"))
	assert.Error(t, found.CheckPassword("wrong"))

	_, err = GetUserByEmail(db, "nobody@test.com")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	dup := &User{Username: "alice2", Email: "alice@test.com", Password: "x"}
	assert.ErrorIs(t, dup.CreateUser(db), ErrDuplicateEmail)
}

func TestUpdateProfile_PartialUpdate(t *testing.T) {
	db := newTestDB(t)

	user := &User{Username: "bob", Email: "bob@test.com", Password: "x", Balance: 100}
	require.NoError(t, user.CreateUser(db))

	newName := "bobby"
	require.NoError(t, user.UpdateProfile(db, &newName, nil))

	found, err := GetUserByEmail(db, "bob@test.com")
	require.NoError(t, err)
	assert.Equal(t, "bobby", found.Username)
	assert.Equal(t, 100.0, found.Balance)

	newBalance := 250.0
	require.NoError(t, found.UpdateProfile(db, nil, &newBalance))
	found, err = GetUserByEmail(db, "bob@test.com")
	require.NoError(t, err)
	assert.Equal(t, "bobby", found.Username)
	assert.Equal(t, 250.0, found.Balance)
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)

	user := &User{Username: "dave", Email: "dave@test.com", Password: "x"}
	require.NoError(t, user.CreateUser(db))

	session := &Session{
		UserID:       user.ID,
		Token:        "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	require.NoError(t, CreateSession(db, session))

	found, err := GetSessionByToken(db, "access-token")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.UserID)

	byRefresh, err := GetSessionByRefreshToken(db, "refresh-token")
	require.NoError(t, err)
	assert.Equal(t, found.ID, byRefresh.ID)

	require.NoError(t, DeleteSessionByToken(db, "access-token"))
	_, err = GetSessionByToken(db, "access-token")
	assert.Error(t, err)
}

func TestSessionExpiredNotReturned(t *testing.T) {
	db := newTestDB(t)

	user := &User{Username: "eve", Email: "eve@test.com", Password: "x"}
	require.NoError(t, user.CreateUser(db))

	session := &Session{
		UserID:       user.ID,
		Token:        "stale-token",
		RefreshToken: "stale-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	require.NoError(t, CreateSession(db, session))

	_, err := GetSessionByToken(db, "stale-token")
	assert.Error(t, err)
}

func TestContactMessageCreate(t *testing.T) {
	db := newTestDB(t)

	msg := &ContactMessage{Name: "carol", Email: "carol@test.com", Message: "hello there"}
	require.NoError(t, msg.Create(db))
	assert.NotZero(t, msg.ID)

	var stored string
	require.NoError(t, db.QueryRow("SELECT message FROM contact_messages WHERE id = ?", msg.ID).Scan(&stored))
	assert.Equal(t, "hello there", stored)
}
