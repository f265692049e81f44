package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port           string
	DatabasePath   string
	LogLevel       string
	RateLimitBurst int

	// Security settings
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	// Market data settings
	MarketDataBaseURL  string
	MarketDataAPIKey   string
	WatchlistSymbols   []string
	PriceFetchInterval time.Duration

	// Google OAuth settings
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Frontend URL for reference (e.g., CORS, redirects)
	FrontendBaseURL string
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	// 1. Try loading from the current directory (standard behavior)
	errEnv := godotenv.Load()

	// 2. If not found, try loading from the parent directory (common when running from /backend)
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables (expected in production).")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getRequiredEnv("JWT_SECRET")

	accessTokenExpiry := getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 60*time.Minute)
	refreshTokenExpiry := getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 168*time.Hour) // 7 days

	frontendBaseURL := getEnv("APP_BASE_URL", "http://localhost:3000")
	apiBaseURL := getEnv("API_BASE_URL", "http://localhost:8080")
	googleRedirectURL := getEnv("GOOGLE_REDIRECT_URL", apiBaseURL+"/api/auth/google/callback")

	Cfg = &AppConfig{
		// Core
		Port:           getEnv("PORT", "8080"),
		DatabasePath:   getEnv("DATABASE_PATH", "./stockfolio.db"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 30),

		// Security
		JWTSecret:          jwtSecret,
		AccessTokenExpiry:  accessTokenExpiry,
		RefreshTokenExpiry: refreshTokenExpiry,

		// Market data
		MarketDataBaseURL:  getEnv("MARKET_DATA_BASE_URL", "https://www.alphavantage.co"),
		MarketDataAPIKey:   getEnv("MARKET_DATA_API_KEY", ""),
		WatchlistSymbols:   getSymbolList("WATCHLIST_SYMBOLS"),
		PriceFetchInterval: getEnvAsDuration("PRICE_FETCH_INTERVAL", 24*time.Hour),

		// Google OAuth
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  googleRedirectURL,

		// URLs
		FrontendBaseURL: frontendBaseURL,
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, FrontendURL=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.FrontendBaseURL)
	log.Printf("Watchlist symbols loaded: %d", len(Cfg.WatchlistSymbols))
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

// getRequiredEnv retrieves an environment variable or terminates the application if not set.
func getRequiredEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set or is empty. Application cannot start securely.", key)
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getSymbolList retrieves and parses the comma-separated watchlist of stock symbols.
func getSymbolList(key string) []string {
	symbolsStr := getEnv(key, "AAPL,GOOGL,AMZN,TSLA,NVDA,MSFT,JPM,V,KO,DIS")
	symbols := strings.Split(symbolsStr, ",")
	out := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol != "" {
			out = append(out, symbol)
		}
	}
	return out
}
