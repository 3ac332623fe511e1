package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBSource string
	Port     string
	Env      string

	// Wager limits, integer cents.
	MinBet int64
	MaxBet int64

	// Cash-out is rejected below this multiplier.
	MinCashout float64

	// Multiplier growth rate per second and house edge of the crash sampler.
	GrowthRate float64
	HouseEdge  float64
	MaxCrash   float64

	// PLAYING rounds older than this are swept to CRASHED.
	RoundTimeout time.Duration
	SweepEvery   time.Duration

	// Payment session limits, integer cents.
	DepositMin  int64
	DepositMax  int64
	WithdrawMin int64
	WithdrawMax int64

	SessionTTL      time.Duration
	MaxPollAttempts int
	ProviderTimeout time.Duration

	// Welcome and referral bonus amounts, integer cents.
	WelcomeBonus  int64
	ReferralBonus int64

	// Optional per-operator provider endpoints. Empty means simulation.
	ProviderURLs map[string]string
	ProviderKey  string
}

func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	cfg := &Config{
		DBSource: dbSource,
		Port:     getEnv("SERVER_PORT", "8080"),
		Env:      getEnv("ENVIRONMENT", "development"),

		MinBet:     getEnvInt("MIN_BET", 100),
		MaxBet:     getEnvInt("MAX_BET", 1000000),
		MinCashout: getEnvFloat("MIN_CASHOUT", 1.2),

		GrowthRate: getEnvFloat("GROWTH_RATE", 0.08),
		HouseEdge:  getEnvFloat("HOUSE_EDGE", 0.03),
		MaxCrash:   getEnvFloat("MAX_CRASH", 500.0),

		RoundTimeout: getEnvDuration("ROUND_TIMEOUT", 2*time.Minute),
		SweepEvery:   getEnvDuration("SWEEP_INTERVAL", 15*time.Second),

		DepositMin:  getEnvInt("DEPOSIT_MIN", 50000),
		DepositMax:  getEnvInt("DEPOSIT_MAX", 100000000),
		WithdrawMin: getEnvInt("WITHDRAW_MIN", 100000),
		WithdrawMax: getEnvInt("WITHDRAW_MAX", 50000000),

		SessionTTL:      getEnvDuration("SESSION_TTL", 10*time.Minute),
		MaxPollAttempts: int(getEnvInt("MAX_POLL_ATTEMPTS", 5)),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),

		WelcomeBonus:  getEnvInt("WELCOME_BONUS", 50000),
		ReferralBonus: getEnvInt("REFERRAL_BONUS", 100000),

		ProviderKey: os.Getenv("PROVIDER_API_KEY"),
	}

	cfg.ProviderURLs = map[string]string{}
	for _, op := range []string{"airtel", "moov", "mobicash"} {
		if url := os.Getenv("PROVIDER_URL_" + strings.ToUpper(op)); url != "" {
			cfg.ProviderURLs[op] = url
		}
	}

	if cfg.MinBet <= 0 || cfg.MaxBet < cfg.MinBet {
		return nil, fmt.Errorf("invalid bet range [%d, %d]", cfg.MinBet, cfg.MaxBet)
	}
	if cfg.MinCashout < 1.0 {
		return nil, fmt.Errorf("MIN_CASHOUT must be at least 1.0, got %v", cfg.MinCashout)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
