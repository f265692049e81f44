package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/username/stockfolio/backend/src/database"
	"github.com/username/stockfolio/backend/src/logger"
	"github.com/username/stockfolio/backend/src/model"
	"github.com/username/stockfolio/backend/src/security/validation"
)

type ContactHandler struct{}

func NewContactHandler() *ContactHandler {
	return &ContactHandler{}
}

func (h *ContactHandler) HandleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Message string `json:"message"`
	}

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		sendJSONError(w, "Invalid request body", codeInvalidRequest, http.StatusBadRequest)
		return
	}

	requestBody.Name = validation.SanitizeText(strings.TrimSpace(requestBody.Name))
	requestBody.Email = strings.ToLower(validation.SanitizeText(strings.TrimSpace(requestBody.Email)))
	requestBody.Message = validation.StripUnprintable(validation.SanitizeText(strings.TrimSpace(requestBody.Message)))

	if err := validation.ValidateStringNotEmpty(requestBody.Name, "Name"); err != nil {
		sendJSONError(w, err.Error(), codeValidationFailed, http.StatusBadRequest)
		return
	}
	if err := validation.ValidateStringNotEmpty(requestBody.Email, "Email"); err != nil {
		sendJSONError(w, err.Error(), codeValidationFailed, http.StatusBadRequest)
		return
	}
	if !emailRegex.MatchString(requestBody.Email) {
		sendJSONError(w, "Invalid email format", codeValidationFailed, http.StatusBadRequest)
		return
	}
	if err := validation.ValidateStringNotEmpty(requestBody.Message, "Message"); err != nil {
		sendJSONError(w, err.Error(), codeValidationFailed, http.StatusBadRequest)
		return
	}
	if err := validation.ValidateStringMaxLength(requestBody.Message, validation.MaxMessageLength, "Message"); err != nil {
		sendJSONError(w, err.Error(), codeValidationFailed, http.StatusBadRequest)
		return
	}

	msg := &model.ContactMessage{
		Name:    requestBody.Name,
		Email:   requestBody.Email,
		Message: requestBody.Message,
	}
	if err := msg.Create(database.DB); err != nil {
		logger.L.Error("Failed to store contact message", "error", err)
		sendJSONError(w, "Failed to store message", codeInternalError, http.StatusInternalServerError)
		return
	}

	logger.L.Info("Contact message stored", "id", msg.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Message received"})
}
