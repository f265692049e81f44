package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/username/stockfolio/backend/src/database"
	"github.com/username/stockfolio/backend/src/logger"
	"github.com/username/stockfolio/backend/src/model"
)

const requestIDContextKey contextKey = "requestID"

// NotFoundHandler answers unmatched routes. API paths get the structured
// JSON error shape; anything else gets the plain 404 page.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		sendJSONError(w, "Route not found", codeNotFound, http.StatusNotFound)
		return
	}
	http.NotFound(w, r)
}

// ContextualLoggerMiddleware attaches a request-scoped logger carrying a
// fresh request ID to the context.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()

		ctxLogger := logger.L.With(slog.String("requestID", requestID))

		ctx := logger.ToContext(r.Context(), ctxLogger)
		ctx = context.WithValue(ctx, requestIDContextKey, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware validates the bearer token and its backing session, then
// enriches the contextual logger with the user ID.
func (h *UserHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger := logger.FromContext(r.Context())

		tokenString := bearerToken(r)
		if tokenString == "" {
			ctxLogger.Debug("AuthMiddleware: Authorization header missing", "path", r.URL.Path)
			sendJSONError(w, "Authorization header required", codeInvalidCredential, http.StatusUnauthorized)
			return
		}

		userIDStr, err := h.authService.ValidateToken(tokenString)
		if err != nil {
			ctxLogger.Warn("AuthMiddleware: Token validation failed", "path", r.URL.Path, "error", err)
			sendJSONError(w, "Invalid or expired token", codeInvalidCredential, http.StatusUnauthorized)
			return
		}

		if _, err = model.GetSessionByToken(database.DB, tokenString); err != nil {
			ctxLogger.Warn("AuthMiddleware: Session validation failed", "path", r.URL.Path, "error", err)
			sendJSONError(w, "Invalid or expired session", codeInvalidCredential, http.StatusUnauthorized)
			return
		}

		userIDInt, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil {
			ctxLogger.Error("AuthMiddleware: Invalid user ID format in token", "userIDStr", userIDStr, "error", err)
			sendJSONError(w, "Invalid user ID in token", codeInternalError, http.StatusInternalServerError)
			return
		}

		enrichedLogger := ctxLogger.With(slog.Int64("userID", userIDInt))
		ctx := logger.ToContext(r.Context(), enrichedLogger)
		ctx = context.WithValue(ctx, userIDContextKey, userIDInt)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
