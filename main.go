package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/username/stockfolio/backend/src/config"
	"github.com/username/stockfolio/backend/src/database"
	"github.com/username/stockfolio/backend/src/handlers"
	"github.com/username/stockfolio/backend/src/logger"
	"github.com/username/stockfolio/backend/src/security"
	"github.com/username/stockfolio/backend/src/services"
	"golang.org/x/time/rate"
)

func proxyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			r.URL.Scheme = "https"
			r.TLS = &tls.ConnectionState{}
		}
		next.ServeHTTP(w, r)
	})
}

var limiter *rate.Limiter

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000":    true,
			config.Cfg.FrontendBaseURL: true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, Cookie, If-None-Match")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), config.Cfg.RateLimitBurst)

	logger.L.Info("Stockfolio backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)

	quoteCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	handlers.InitializeGoogleOAuthConfig()

	authService := security.NewAuthService(config.Cfg.JWTSecret)
	portfolioService := services.NewPortfolioService(database.DB, quoteCache)
	marketDataService := services.NewMarketDataService(config.Cfg.MarketDataBaseURL, config.Cfg.MarketDataAPIKey)

	fetchJob := services.NewPriceFetchJob(database.DB, marketDataService, services.FetchJobConfig{
		Symbols:  config.Cfg.WatchlistSymbols,
		Interval: config.Cfg.PriceFetchInterval,
	})
	jobCtx, cancelJob := context.WithCancel(context.Background())
	defer cancelJob()
	go fetchJob.Run(jobCtx)

	userHandler := handlers.NewUserHandler(authService, portfolioService)
	txHandler := handlers.NewTransactionHandler(portfolioService)
	stockHandler := handlers.NewStockHandler()
	contactHandler := handlers.NewContactHandler()

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(proxyHeadersMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Stockfolio Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Post("/register", userHandler.RegisterUserHandler)
			r.Post("/login", userHandler.LoginUserHandler)
			r.Post("/auth/refresh", userHandler.RefreshTokenHandler)
			r.With(userHandler.AuthMiddleware).Post("/auth/logout", userHandler.LogoutUserHandler)
			r.Get("/auth/google/login", userHandler.HandleGoogleLogin)
			r.Get("/auth/google/callback", userHandler.HandleGoogleCallback)

			r.Post("/contact", contactHandler.HandleSubmitMessage)
			r.Get("/stocks", stockHandler.HandleGetStockRange)
			r.Get("/stock/{symbol}", stockHandler.HandleGetLatestStock)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(userHandler.AuthMiddleware)

			r.Get("/users/{email}", userHandler.GetUserHandler)
			r.Patch("/users/update", userHandler.UpdateUserHandler)
			r.Post("/users/change-password", userHandler.ChangePasswordHandler)
			r.Get("/users/{email}/balance", userHandler.GetBalanceHandler)
			r.Post("/users/update-balance", userHandler.UpdateBalanceHandler)

			r.Post("/transactions/buy", txHandler.HandleBuy)
			r.Post("/transactions/sell", txHandler.HandleSell)
			r.Get("/transactions/{userEmail}", txHandler.HandleGetHoldings)
			r.Delete("/transactions/{id}", txHandler.HandleDeleteLot)
			r.Get("/profit/{email}", txHandler.HandleGetProfit)
			r.Get("/stock-logs/{email}", txHandler.HandleGetStockLogs)
		})
	})

	r.NotFound(handlers.NotFoundHandler)

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
