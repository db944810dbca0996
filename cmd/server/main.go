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
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/PotenzaFelip/ApiFinanceira/docs"
	"github.com/PotenzaFelip/ApiFinanceira/internal/config"
	"github.com/PotenzaFelip/ApiFinanceira/internal/database"
	"github.com/PotenzaFelip/ApiFinanceira/internal/handlers"
	mW "github.com/PotenzaFelip/ApiFinanceira/internal/middleware"
	"github.com/PotenzaFelip/ApiFinanceira/internal/services"
)

// @title Financeira API
// @version 1.0
// @description Account ledger API: people, accounts, cards, movements, transfers and reversals
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.ReadInConfig()

	viper.SetEnvPrefix("")

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

	viper.BindEnv("compliance.auth_url", "COMPLIANCE_AUTH_URL")
	viper.BindEnv("compliance.api_key", "COMPLIANCE_API_KEY")
	viper.BindEnv("compliance.base_url_cpf", "COMPLIANCE_BASE_URL_CPF")
	viper.BindEnv("compliance.base_url_cnpj", "COMPLIANCE_BASE_URL_CNPJ")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Financeira API"
	docs.SwaggerInfo.Description = "Account ledger API: people, accounts, cards, movements, transfers and reversals"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize dependencies
	db := database.InitDatabase()
	defer db.Close()

	if err := database.EnsureSchema(db); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	ledgerCfg := config.LoadLedgerConfig()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	tokens := services.NewCachedTokenProvider(httpClient,
		viper.GetString("compliance.auth_url"),
		viper.GetString("compliance.api_key"))
	complianceService := services.NewComplianceService(httpClient, tokens)

	ledgerService := services.NewLedgerService(db, ledgerCfg)
	historyService := services.NewHistoryService(db)
	accountService := services.NewAccountService(db, ledgerCfg)
	cardService := services.NewCardService(db)
	authService := services.NewAuthService(db, redisClient, complianceService)

	transactionHandler := handlers.NewTransactionHandler(ledgerService, historyService)
	accountHandler := handlers.NewAccountHandler(accountService)
	cardHandler := handlers.NewCardHandler(cardService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/profile", authService.GetProfile)

			r.Post("/accounts", accountHandler.CreateAccount)
			r.Get("/accounts", accountHandler.ListAccounts)
			r.Get("/accounts/{accountId}/balance", accountHandler.GetBalance)

			r.Post("/accounts/{accountId}/transactions", transactionHandler.CreateMovement)
			r.Get("/accounts/{accountId}/transactions", transactionHandler.ListTransactions)
			r.Post("/accounts/{accountId}/transactions/internal", transactionHandler.CreateTransfer)
			r.Post("/accounts/{accountId}/transactions/{transactionId}/revert", transactionHandler.RevertTransaction)

			r.Post("/accounts/{accountId}/cards", cardHandler.CreateCard)
			r.Get("/accounts/{accountId}/cards", cardHandler.ListAccountCards)
			r.Get("/cards", cardHandler.ListPersonCards)
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
