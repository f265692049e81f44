package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/username/stockfolio/backend/src/config"
	"github.com/username/stockfolio/backend/src/database"
	"github.com/username/stockfolio/backend/src/logger"
	"github.com/username/stockfolio/backend/src/model"
)

var (
	googleOauthConfig *oauth2.Config
	oauthStateString  = "random-string-for-security"
)

var errLocalAccountExists = errors.New("account already exists with local credentials")

// findOrCreateGoogleUser resolves the account for a verified Google identity.
// New accounts start with a zero balance like every other registration. An
// unexpected lookup failure is returned as-is so a transient storage error
// never turns into a duplicate create attempt.
func findOrCreateGoogleUser(db *sql.DB, email, name string) (*model.User, error) {
	user, err := model.GetUserByEmail(db, email)
	if err == nil {
		if user.AuthProvider == "local" || user.Password != "" {
			return nil, errLocalAccountExists
		}
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	newUser := &model.User{
		Username:     name,
		Email:        email,
		Password:     "",
		AuthProvider: "google",
		Balance:      0,
	}
	if newUser.Username == "" {
		newUser.Username = email
	}
	if err := newUser.CreateUser(db); err != nil {
		return nil, err
	}
	return newUser, nil
}

func InitializeGoogleOAuthConfig() {
	googleOauthConfig = &oauth2.Config{
		RedirectURL:  config.Cfg.GoogleRedirectURL,
		ClientID:     config.Cfg.GoogleClientID,
		ClientSecret: config.Cfg.GoogleClientSecret,
		Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
		Endpoint:     google.Endpoint,
	}
}

func (h *UserHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	url := googleOauthConfig.AuthCodeURL(oauthStateString)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func (h *UserHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("state") != oauthStateString {
		logger.L.Warn("Invalid OAuth state from Google callback")
		http.Redirect(w, r, "/signin?error=invalid_state", http.StatusTemporaryRedirect)
		return
	}

	code := r.FormValue("code")
	token, err := googleOauthConfig.Exchange(context.Background(), code)
	if err != nil {
		logger.L.Error("Failed to exchange code for token", "error", err)
		http.Redirect(w, r, "/signin?error=token_exchange_failed", http.StatusTemporaryRedirect)
		return
	}

	response, err := http.Get("https://www.googleapis.com/oauth2/v2/userinfo?access_token=" + token.AccessToken)
	if err != nil {
		logger.L.Error("Failed to get user info from Google", "error", err)
		http.Redirect(w, r, "/signin?error=userinfo_failed", http.StatusTemporaryRedirect)
		return
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		logger.L.Error("Failed to read user info response body", "error", err)
		http.Redirect(w, r, "/signin?error=userinfo_read_failed", http.StatusTemporaryRedirect)
		return
	}

	var googleUser struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Verified bool   `json:"verified_email"`
		ID       string `json:"id"`
	}
	if err := json.Unmarshal(contents, &googleUser); err != nil {
		logger.L.Error("Failed to unmarshal Google user info", "error", err)
		http.Redirect(w, r, "/signin?error=userinfo_parse_failed", http.StatusTemporaryRedirect)
		return
	}

	if !googleUser.Verified {
		http.Redirect(w, r, "/signin?error=email_not_verified_by_google", http.StatusTemporaryRedirect)
		return
	}

	user, err := findOrCreateGoogleUser(database.DB, googleUser.Email, googleUser.Name)
	if err != nil {
		if errors.Is(err, errLocalAccountExists) {
			logger.L.Warn("Google login attempt for existing local account", "email", googleUser.Email)
			http.Redirect(w, r, "/signin?error=email_already_exists_local", http.StatusTemporaryRedirect)
			return
		}
		logger.L.Error("Failed to resolve Google account", "error", err)
		http.Redirect(w, r, "/signin?error=user_creation_failed", http.StatusTemporaryRedirect)
		return
	}

	userForFrontend := struct {
		ID           int64   `json:"id"`
		Name         string  `json:"name"`
		Email        string  `json:"email"`
		AuthProvider string  `json:"auth_provider"`
		Balance      float64 `json:"balance"`
	}{
		ID:           user.ID,
		Name:         user.Username,
		Email:        user.Email,
		AuthProvider: user.AuthProvider,
		Balance:      user.Balance,
	}

	userJSON, err := json.Marshal(userForFrontend)
	if err != nil {
		logger.L.Error("Failed to marshal user object for frontend", "error", err)
		http.Redirect(w, r, "/signin?error=user_data_build_failed", http.StatusTemporaryRedirect)
		return
	}

	appToken, _, err := h.issueSession(user, r)
	if err != nil {
		http.Redirect(w, r, "/signin?error=token_generation_failed", http.StatusTemporaryRedirect)
		return
	}

	redirectURL := fmt.Sprintf("%s/auth/google/callback?token=%s&user=%s",
		config.Cfg.FrontendBaseURL,
		appToken,
		url.QueryEscape(string(userJSON)))
	http.Redirect(w, r, redirectURL, http.StatusTemporaryRedirect)
}
