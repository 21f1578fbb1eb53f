package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/citylinebank/backend/internal/auth"
	"github.com/citylinebank/backend/internal/database"
	"github.com/citylinebank/backend/internal/engine"
	"github.com/citylinebank/backend/internal/fx"
	"github.com/citylinebank/backend/internal/ledger"
	mW "github.com/citylinebank/backend/internal/middleware"
	"github.com/citylinebank/backend/internal/notify"
	"github.com/citylinebank/backend/internal/services"
	"github.com/citylinebank/backend/internal/store"
)

// @title Cityline Bank API
// @version 1.0
// @description Retail banking ledger with two-phase transfer approval
// @host localhost:8080
// @BasePath /api
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")
	viper.BindEnv("approval.threshold", "APPROVAL_THRESHOLD")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	accounts := store.NewAccountStore(db)
	if err := accounts.Seed(context.Background(), store.DefaultSeed, auth.HashPin); err != nil {
		log.Fatalf("Failed to seed accounts: %v", err)
	}

	txnLedger := ledger.New(db)
	notifier := notify.NewQueueNotifier(redisClient)
	eng := engine.New(db, accounts, txnLedger, notifier, auth.HashPin)
	sessions := auth.NewSessions(redisClient)

	authService := services.NewAuthService(accounts, sessions, eng)
	bankingService := services.NewBankingService(eng)
	adminService := services.NewAdminService(eng)
	fxService := services.NewFxService(fx.NewService(redisClient))

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]bool{"ok": false})
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/login", authService.Login)
		r.Get("/fx", fxService.Rate)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.Auth(sessions))

			r.Post("/logout", authService.Logout)
			r.Get("/me", authService.Me)
			r.Patch("/me", authService.UpdateEmail)
			r.Get("/config", authService.Config)

			r.Post("/deposit", bankingService.Deposit)
			r.Post("/withdraw", bankingService.Withdraw)
			r.Post("/transfer", bankingService.Transfer)
			r.Get("/transactions", bankingService.Transactions)
			r.Get("/transactions/{txnId}", bankingService.GetTransaction)
			r.Get("/pending-transfers", bankingService.PendingTransfers)

			// Admin endpoints (role gate on top of auth)
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireAdmin)

				r.Get("/admin/accounts", adminService.ListAccounts)
				r.Post("/admin/accounts", adminService.CreateAccount)
				r.Get("/admin/accounts/{accountNo}", adminService.GetAccount)
				r.Patch("/admin/accounts/{accountNo}/email", adminService.UpdateEmail)
				r.Post("/admin/accounts/{accountNo}/adjust", adminService.AdjustBalance)
				r.Post("/admin/accounts/{accountNo}/freeze", adminService.SetFreeze)
				r.Post("/admin/transactions/{txnId}/approve", adminService.Approve)
				r.Post("/admin/transactions/{txnId}/reject", adminService.Reject)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
