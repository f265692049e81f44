package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/username/stockfolio/backend/src/config"
	"github.com/username/stockfolio/backend/src/database"
	"github.com/username/stockfolio/backend/src/logger"
	"github.com/username/stockfolio/backend/src/model"
	"github.com/username/stockfolio/backend/src/security"
	"github.com/username/stockfolio/backend/src/security/validation"
	"github.com/username/stockfolio/backend/src/services"
)

type contextKey string

const userIDContextKey contextKey = "userID"

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
var passwordRegex = regexp.MustCompile(`^.{6,}$`)

// Stable machine-readable error codes returned alongside messages.
const (
	codeInvalidRequest    = "INVALID_REQUEST"
	codeValidationFailed  = "VALIDATION_FAILED"
	codeInvalidCredential = "INVALID_CREDENTIAL"
	codeDuplicateEmail    = "DUPLICATE_EMAIL"
	codeNotFound          = "NOT_FOUND"
	codeInsufficientFunds = "INSUFFICIENT_FUNDS"
	codeInvalidQuantity   = "INVALID_QUANTITY"
	codeInvalidAmount     = "INVALID_AMOUNT"
	codeInternalError     = "INTERNAL_ERROR"
)

type UserHandler struct {
	authService      *security.AuthService
	portfolioService services.PortfolioService
}

func NewUserHandler(authService *security.AuthService, portfolioService services.PortfolioService) *UserHandler {
	return &UserHandler{
		authService:      authService,
		portfolioService: portfolioService,
	}
}

func sendJSONError(w http.ResponseWriter, message, code string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	logger.L.Warn("Sending JSON error to client", "message", message, "code", code, "statusCode", statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// sendServiceError maps service sentinel errors onto HTTP statuses and codes.
func sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		sendJSONError(w, "Resource not found", codeNotFound, http.StatusNotFound)
	case errors.Is(err, services.ErrInvalidCredential):
		sendJSONError(w, "Invalid email or password", codeInvalidCredential, http.StatusUnauthorized)
	case errors.Is(err, services.ErrDuplicateEmail):
		sendJSONError(w, "Email address already in use", codeDuplicateEmail, http.StatusConflict)
	case errors.Is(err, services.ErrInsufficientFunds):
		sendJSONError(w, "Insufficient balance", codeInsufficientFunds, http.StatusBadRequest)
	case errors.Is(err, services.ErrInvalidQuantity):
		sendJSONError(w, "Invalid quantity", codeInvalidQuantity, http.StatusBadRequest)
	case errors.Is(err, services.ErrInvalidAmount):
		sendJSONError(w, "Invalid amount", codeInvalidAmount, http.StatusBadRequest)
	default:
		logger.L.Error("Unexpected service error", "error", err)
		sendJSONError(w, "Internal server error", codeInternalError, http.StatusInternalServerError)
	}
}

func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		sendJSONError(w, "Invalid request body", codeInvalidRequest, http.StatusBadRequest)
		return
	}

	// Sanitization
	credentials.Name = validation.SanitizeText(strings.TrimSpace(credentials.Name))
	credentials.Email = strings.ToLower(validation.SanitizeText(strings.TrimSpace(credentials.Email)))
	credentials.Password = strings.TrimSpace(credentials.Password)

	if credentials.Name == "" && strings.Contains(credentials.Email, "@") {
		credentials.Name = strings.Split(credentials.Email, "@")[0]
	}

	// Validation
	if err := validation.ValidateStringNotEmpty(credentials.Name, "Name"); err != nil {
		sendJSONError(w, err.Error(), codeValidationFailed, http.StatusBadRequest)
		return
	}
	if err := validation.ValidateStringMaxLength(credentials.Name, 50, "Name"); err != nil {
		sendJSONError(w, err.Error(), codeValidationFailed, http.StatusBadRequest)
		return
	}
	if err := validation.ValidateStringNotEmpty(credentials.Email, "Email"); err != nil {
		sendJSONError(w, err.Error(), codeValidationFailed, http.StatusBadRequest)
		return
	}
	if !emailRegex.MatchString(credentials.Email) {
		sendJSONError(w, "Invalid email format", codeValidationFailed, http.StatusBadRequest)
		return
	}
	if err := validation.ValidateStringNotEmpty(credentials.Password, "Password"); err != nil {
		sendJSONError(w, err.Error(), codeValidationFailed, http.StatusBadRequest)
		return
	}
	if !passwordRegex.MatchString(credentials.Password) {
		sendJSONError(w, "Password must be at least 6 characters long", codeValidationFailed, http.StatusBadRequest)
		return
	}

	// Check email uniqueness
	_, err := model.GetUserByEmail(database.DB, credentials.Email)
	if err == nil {
		sendJSONError(w, "Email address already in use", codeDuplicateEmail, http.StatusConflict)
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		logger.L.Error("Error checking email uniqueness", "error", err)
		sendJSONError(w, "Failed to process registration", codeInternalError, http.StatusInternalServerError)
		return
	}

	hashedPassword, err := h.authService.HashPassword(credentials.Password)
	if err != nil {
		logger.L.Error("Failed to hash password", "error", err)
		sendJSONError(w, "Failed to process registration", codeInternalError, http.StatusInternalServerError)
		return
	}

	user := &model.User{
		Username:     credentials.Name,
		Email:        credentials.Email,
		Password:     hashedPassword,
		AuthProvider: "local",
		Balance:      0,
	}

	if err := user.CreateUser(database.DB); err != nil {
		// The uniqueness pre-check races against concurrent registrations;
		// the UNIQUE constraint is the authoritative answer.
		if errors.Is(err, model.ErrDuplicateEmail) {
			sendJSONError(w, "Email address already in use", codeDuplicateEmail, http.StatusConflict)
			return
		}
		logger.L.Error("Failed to create user in DB", "error", err)
		sendJSONError(w, "Failed to create user", codeInternalError, http.StatusInternalServerError)
		return
	}

	logger.L.Info("User registered", "userID", user.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Registration successful. You can now log in."})
}

func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	logger.L.Debug("Login request received", "remoteAddr", r.RemoteAddr)

	var credentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		logger.L.Warn("Invalid request body for login", "error", err)
		sendJSONError(w, "Invalid request body", codeInvalidRequest, http.StatusBadRequest)
		return
	}

	credentials.Email = strings.ToLower(validation.SanitizeText(strings.TrimSpace(credentials.Email)))

	user, err := model.GetUserByEmail(database.DB, credentials.Email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.L.Error("User lookup by email failed for login", "error", err)
		}
		// Identical reply for unknown email and bad password.
		sendJSONError(w, "Invalid email or password", codeInvalidCredential, http.StatusUnauthorized)
		return
	}

	if err := user.CheckPassword(credentials.Password); err != nil {
		logger.L.Warn("Password check failed for login", "userID", user.ID)
		sendJSONError(w, "Invalid email or password", codeInvalidCredential, http.StatusUnauthorized)
		return
	}

	accessToken, refreshToken, err := h.issueSession(user, r)
	if err != nil {
		sendJSONError(w, "Failed to create session", codeInternalError, http.StatusInternalServerError)
		return
	}

	logger.L.Info("User login successful, tokens generated", "userID", user.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Login successful",
		"sessionToken": accessToken,
		"refreshToken": refreshToken,
		"user": map[string]interface{}{
			"id":       user.ID,
			"name":     user.Username,
			"email":    user.Email,
			"balance":  user.Balance,
			"provider": user.AuthProvider,
		},
	})
}

// issueSession generates the token pair and persists the session row.
func (h *UserHandler) issueSession(user *model.User, r *http.Request) (string, string, error) {
	userIDStr := fmt.Sprintf("%d", user.ID)
	accessToken, err := h.authService.GenerateToken(userIDStr)
	if err != nil {
		logger.L.Error("Failed to generate access token", "userID", user.ID, "error", err)
		return "", "", err
	}

	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		logger.L.Error("Failed to generate refresh token", "userID", user.ID, "error", err)
		return "", "", err
	}

	session := &model.Session{
		UserID:       user.ID,
		Token:        accessToken,
		RefreshToken: refreshToken,
		UserAgent:    r.UserAgent(),
		ClientIP:     r.RemoteAddr,
		IsBlocked:    false,
		ExpiresAt:    time.Now().Add(config.Cfg.RefreshTokenExpiry),
	}
	if err := model.CreateSession(database.DB, session); err != nil {
		logger.L.Error("Failed to create session", "userID", user.ID, "error", err)
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (h *UserHandler) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		RefreshToken string `json:"refreshToken"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		sendJSONError(w, "Invalid request body", codeInvalidRequest, http.StatusBadRequest)
		return
	}

	if requestBody.RefreshToken == "" {
		sendJSONError(w, "Refresh token is required", codeValidationFailed, http.StatusBadRequest)
		return
	}

	oldSession, err := model.GetSessionByRefreshToken(database.DB, requestBody.RefreshToken)
	if err != nil {
		logger.L.Warn("Refresh token lookup failed or token invalid/expired", "error", err)
		sendJSONError(w, "Invalid or expired refresh token", codeInvalidCredential, http.StatusUnauthorized)
		return
	}

	if err := model.DeleteSessionByRefreshToken(database.DB, requestBody.RefreshToken); err != nil {
		logger.L.Error("Failed to delete old session during refresh", "refreshTokenPrefix", requestBody.RefreshToken[:min(10, len(requestBody.RefreshToken))], "error", err)
	}

	user, err := model.GetUserByID(database.DB, oldSession.UserID)
	if err != nil {
		logger.L.Error("User lookup failed on refresh", "userID", oldSession.UserID, "error", err)
		sendJSONError(w, "Invalid session", codeInvalidCredential, http.StatusUnauthorized)
		return
	}

	newAccessToken, newRefreshToken, err := h.issueSession(user, r)
	if err != nil {
		sendJSONError(w, "Failed to create new session on refresh", codeInternalError, http.StatusInternalServerError)
		return
	}

	logger.L.Info("Token refreshed successfully", "userID", oldSession.UserID)
	writeJSON(w, http.StatusOK, map[string]string{
		"sessionToken": newAccessToken,
		"refreshToken": newRefreshToken,
	})
}

func (h *UserHandler) LogoutUserHandler(w http.ResponseWriter, r *http.Request) {
	logger.L.Info("Logout request received")

	tokenString := bearerToken(r)
	if tokenString != "" {
		if err := model.DeleteSessionByToken(database.DB, tokenString); err != nil {
			logger.L.Warn("Failed to delete session on logout", "tokenPrefix", tokenString[:min(10, len(tokenString))], "error", err)
		} else {
			logger.L.Info("Session invalidated successfully on logout", "tokenPrefix", tokenString[:min(10, len(tokenString))])
		}
	} else {
		logger.L.Warn("Logout attempt with no token in Authorization header")
	}

	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return authHeader
}

func (h *UserHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "email")))

	user, err := model.GetUserByEmail(database.DB, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendJSONError(w, "User not found", codeNotFound, http.StatusNotFound)
			return
		}
		logger.L.Error("User lookup failed", "error", err)
		sendJSONError(w, "Failed to fetch user", codeInternalError, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    user.Username,
		"email":   user.Email,
		"balance": user.Balance,
	})
}

func (h *UserHandler) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Email   string   `json:"email"`
		Name    *string  `json:"name"`
		Balance *float64 `json:"balance"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		sendJSONError(w, "Invalid request body", codeInvalidRequest, http.StatusBadRequest)
		return
	}

	requestBody.Email = strings.ToLower(strings.TrimSpace(requestBody.Email))
	if err := validation.ValidateStringNotEmpty(requestBody.Email, "Email"); err != nil {
		sendJSONError(w, err.Error(), codeValidationFailed, http.StatusBadRequest)
		return
	}
	if requestBody.Name != nil {
		sanitized := validation.SanitizeText(strings.TrimSpace(*requestBody.Name))
		if err := validation.ValidateStringNotEmpty(sanitized, "Name"); err != nil {
			sendJSONError(w, err.Error(), codeValidationFailed, http.StatusBadRequest)
			return
		}
		requestBody.Name = &sanitized
	}

	user, err := model.GetUserByEmail(database.DB, requestBody.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendJSONError(w, "User not found", codeNotFound, http.StatusNotFound)
			return
		}
		logger.L.Error("User lookup failed for update", "error", err)
		sendJSONError(w, "Failed to update user", codeInternalError, http.StatusInternalServerError)
		return
	}

	if err := user.UpdateProfile(database.DB, requestBody.Name, requestBody.Balance); err != nil {
		logger.L.Error("Failed to update user profile", "userID", user.ID, "error", err)
		sendJSONError(w, "Failed to update user", codeInternalError, http.StatusInternalServerError)
		return
	}

	logger.L.Info("User profile updated", "userID", user.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "User updated successfully",
		"user": map[string]interface{}{
			"name":    user.Username,
			"email":   user.Email,
			"balance": user.Balance,
		},
	})
}

func (h *UserHandler) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Email           string `json:"email"`
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		sendJSONError(w, "Invalid request body", codeInvalidRequest, http.StatusBadRequest)
		return
	}

	requestBody.Email = strings.ToLower(strings.TrimSpace(requestBody.Email))
	requestBody.NewPassword = strings.TrimSpace(requestBody.NewPassword)
	if !passwordRegex.MatchString(requestBody.NewPassword) {
		sendJSONError(w, "Password must be at least 6 characters long", codeValidationFailed, http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByEmail(database.DB, requestBody.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendJSONError(w, "User not found", codeNotFound, http.StatusNotFound)
			return
		}
		logger.L.Error("User lookup failed for password change", "error", err)
		sendJSONError(w, "Failed to change password", codeInternalError, http.StatusInternalServerError)
		return
	}

	if err := user.CheckPassword(requestBody.CurrentPassword); err != nil {
		logger.L.Warn("Current password check failed for password change", "userID", user.ID)
		sendJSONError(w, "Current password is incorrect", codeInvalidCredential, http.StatusBadRequest)
		return
	}

	newHash, err := h.authService.HashPassword(requestBody.NewPassword)
	if err != nil {
		logger.L.Error("Failed to hash new password", "userID", user.ID, "error", err)
		sendJSONError(w, "Failed to change password", codeInternalError, http.StatusInternalServerError)
		return
	}

	if err := user.UpdatePassword(database.DB, newHash); err != nil {
		logger.L.Error("Failed to persist new password", "userID", user.ID, "error", err)
		sendJSONError(w, "Failed to change password", codeInternalError, http.StatusInternalServerError)
		return
	}

	logger.L.Info("Password changed successfully", "userID", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (h *UserHandler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "email")))

	user, err := model.GetUserByEmail(database.DB, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendJSONError(w, "User not found", codeNotFound, http.StatusNotFound)
			return
		}
		logger.L.Error("User lookup failed for balance", "error", err)
		sendJSONError(w, "Failed to fetch balance", codeInternalError, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]float64{"balance": user.Balance})
}

// UpdateBalanceHandler credits a deposit. Amounts must be strictly positive;
// negative adjustments only ever happen inside settlements.
func (h *UserHandler) UpdateBalanceHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Email  string  `json:"email"`
		Amount float64 `json:"amount"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		sendJSONError(w, "Invalid request body", codeInvalidRequest, http.StatusBadRequest)
		return
	}

	requestBody.Email = strings.ToLower(strings.TrimSpace(requestBody.Email))
	newBalance, err := h.portfolioService.Deposit(requestBody.Email, requestBody.Amount)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Balance updated successfully",
		"balance": newBalance,
	})
}
