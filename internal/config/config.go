package config

import (
	"os"
	"strconv"
	"time"

	"nftflip/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	DatabaseURL   string
	JWTSecret     string
	AllowedOrigin string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Match timing
	DepositWindow time.Duration
	ChoiceTimeout time.Duration
	ChargeTimeout time.Duration

	// Escrow collaborator
	EscrowEndpoint string

	// API limits
	APIRateLimit  int
	APIRateWindow time.Duration

	LogLevel string
	LogJSON  bool
}

// Load reads the config from env (.env is honored when present)
func Load() *Config {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	return &Config{
		AppPort:       port,
		DatabaseURL:   dbURL,
		JWTSecret:     jwtSecret,
		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		DepositWindow: envSeconds("DEPOSIT_WINDOW_SECONDS", 120),
		ChoiceTimeout: envSeconds("CHOICE_TIMEOUT_SECONDS", 30),
		ChargeTimeout: envSeconds("CHARGE_TIMEOUT_SECONDS", 10),

		EscrowEndpoint: os.Getenv("ESCROW_ENDPOINT"),

		APIRateLimit:  envInt("API_RATE_LIMIT", 60),
		APIRateWindow: envSeconds("API_RATE_WINDOW_SECONDS", 60),

		LogLevel: os.Getenv("LOG_LEVEL"),
		LogJSON:  os.Getenv("LOG_JSON") == "true",
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envSeconds(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Second
}
