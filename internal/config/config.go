// Package config loads the engine's configuration from the environment:
// typed sub-structs, getEnv/getEnvAsInt/getEnvAsInt64/getEnvAsFloat/
// getEnvAsDuration helpers, and
// sane defaults so the binary runs without a .env file.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every configuration input recognized by the core.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Money      MoneyConfig
	Trust      TrustConfig
	Routing    RoutingConfig
	Retry      RetryConfig
	Circuit    CircuitConfig
	Webhook    WebhookConfig
	Payout     PayoutConfig
	Approval   ApprovalConfig
	Processors ProcessorsConfig
	Cache      CacheConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode + "&prepare_threshold=0"
}

type RedisConfig struct {
	URL      string
	Password string
}

// MoneyConfig carries the hard amount bounds and fee rates. All amounts
// are integer minor units (cents), never dollars and never floats.
type MoneyConfig struct {
	MaxTransactionAmount            int64
	MinTransactionAmount            int64
	PlatformFeeRateBps              int64
	ProcessingFeeRateBpsByProcessor map[string]int64
}

// TrustConfig carries the Trust Engine's decision thresholds and signal
// weights. Weights must sum to 1.0; NewEngine normalizes otherwise.
type TrustConfig struct {
	AutoAllowThreshold   float64
	BlockThreshold       float64
	AutoApproveLimit     int64
	ManualReviewLimit    int64
	BlockLimit           int64
	RefundAllowThreshold float64
	WeightDevice         float64
	WeightNetwork        float64
	WeightPayment        float64
	WeightBehavioral     float64
	WeightPlatform       float64
}

// RoutingConfig carries the Router's default primary MID, used when no rule
// matches. Canary settings live on each RoutingRule, not here.
type RoutingConfig struct {
	DefaultPrimaryMID string
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// CircuitConfig tunes the per-processor circuit breaker.
type CircuitConfig struct {
	ErrorRatio  float64
	MinRequests int
	Window      time.Duration
}

type WebhookConfig struct {
	ToleranceSeconds int64
}

type PayoutConfig struct {
	MinimumsByMethod map[string]int64
	DefaultDeadline  time.Duration
}

type ApprovalConfig struct {
	SweepInterval time.Duration
}

// ProcessorEndpoint configures one adapter's outbound surface.
type ProcessorEndpoint struct {
	BaseURL       string
	APISecret     string
	WebhookSecret string
	Timeout       time.Duration
}

type ProcessorsConfig struct {
	CCBill   ProcessorEndpoint
	SegPay   ProcessorEndpoint
	CoinGate ProcessorEndpoint
}

type CacheConfig struct {
	RefreshInterval time.Duration
}

// Load reads configuration from the environment, falling back to sane
// development defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "fanztrust"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Money: MoneyConfig{
			MaxTransactionAmount: getEnvAsInt64("MAX_TRANSACTION_AMOUNT_CENTS", 5_000_000),
			MinTransactionAmount: getEnvAsInt64("MIN_TRANSACTION_AMOUNT_CENTS", 50),
			PlatformFeeRateBps:   getEnvAsInt64("PLATFORM_FEE_RATE_BPS", 500),
			ProcessingFeeRateBpsByProcessor: map[string]int64{
				"ccbill":   getEnvAsInt64("PROCESSING_FEE_BPS_CCBILL", 290),
				"segpay":   getEnvAsInt64("PROCESSING_FEE_BPS_SEGPAY", 350),
				"coingate": getEnvAsInt64("PROCESSING_FEE_BPS_COINGATE", 100),
			},
		},
		Trust: TrustConfig{
			AutoAllowThreshold:   getEnvAsFloat("TRUST_AUTO_ALLOW_THRESHOLD", 70),
			BlockThreshold:       getEnvAsFloat("TRUST_BLOCK_THRESHOLD", 30),
			AutoApproveLimit:     getEnvAsInt64("TRUST_AUTO_APPROVE_LIMIT_CENTS", 20_000),
			ManualReviewLimit:    getEnvAsInt64("TRUST_MANUAL_REVIEW_LIMIT_CENTS", 100_000),
			BlockLimit:           getEnvAsInt64("TRUST_BLOCK_LIMIT_CENTS", 500_000),
			RefundAllowThreshold: getEnvAsFloat("TRUST_REFUND_ALLOW_THRESHOLD", 60),
			WeightDevice:         getEnvAsFloat("TRUST_WEIGHT_DEVICE", 0.2),
			WeightNetwork:        getEnvAsFloat("TRUST_WEIGHT_NETWORK", 0.2),
			WeightPayment:        getEnvAsFloat("TRUST_WEIGHT_PAYMENT", 0.25),
			WeightBehavioral:     getEnvAsFloat("TRUST_WEIGHT_BEHAVIORAL", 0.2),
			WeightPlatform:       getEnvAsFloat("TRUST_WEIGHT_PLATFORM", 0.15),
		},
		Routing: RoutingConfig{
			DefaultPrimaryMID: getEnv("ROUTING_DEFAULT_PRIMARY_MID", "ccbill-default"),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", 200*time.Millisecond),
			MaxDelay:    getEnvAsDuration("RETRY_MAX_DELAY", 5*time.Second),
		},
		Circuit: CircuitConfig{
			ErrorRatio:  getEnvAsFloat("CIRCUIT_ERROR_RATIO", 0.5),
			MinRequests: getEnvAsInt("CIRCUIT_MIN_REQUESTS", 10),
			Window:      getEnvAsDuration("CIRCUIT_WINDOW", 30*time.Second),
		},
		Webhook: WebhookConfig{
			ToleranceSeconds: getEnvAsInt64("WEBHOOK_TOLERANCE_SECONDS", 300),
		},
		Payout: PayoutConfig{
			MinimumsByMethod: map[string]int64{
				"bank":   getEnvAsInt64("PAYOUT_MIN_BANK_CENTS", 2000),
				"wallet": getEnvAsInt64("PAYOUT_MIN_WALLET_CENTS", 500),
				"crypto": getEnvAsInt64("PAYOUT_MIN_CRYPTO_CENTS", 1000),
			},
			DefaultDeadline: getEnvAsDuration("PAYOUT_DEADLINE", 60*time.Second),
		},
		Approval: ApprovalConfig{
			SweepInterval: getEnvAsDuration("APPROVAL_SWEEP_INTERVAL", 30*time.Second),
		},
		Processors: ProcessorsConfig{
			CCBill: ProcessorEndpoint{
				BaseURL:       getEnv("CCBILL_BASE_URL", "https://sandbox.ccbill.example"),
				APISecret:     getEnv("CCBILL_API_SECRET", "ccbill-dev-secret"),
				WebhookSecret: getEnv("CCBILL_WEBHOOK_SECRET", "ccbill-dev-webhook"),
				Timeout:       getEnvAsDuration("CCBILL_TIMEOUT", 10*time.Second),
			},
			SegPay: ProcessorEndpoint{
				BaseURL:       getEnv("SEGPAY_BASE_URL", "https://sandbox.segpay.example"),
				APISecret:     getEnv("SEGPAY_API_SECRET", "segpay-dev-secret"),
				WebhookSecret: getEnv("SEGPAY_WEBHOOK_SECRET", "segpay-dev-webhook"),
				Timeout:       getEnvAsDuration("SEGPAY_TIMEOUT", 10*time.Second),
			},
			CoinGate: ProcessorEndpoint{
				BaseURL:       getEnv("COINGATE_BASE_URL", "https://sandbox.coingate.example"),
				APISecret:     getEnv("COINGATE_API_SECRET", "coingate-dev-secret"),
				WebhookSecret: getEnv("COINGATE_WEBHOOK_SECRET", "coingate-dev-webhook"),
				Timeout:       getEnvAsDuration("COINGATE_TIMEOUT", 15*time.Second),
			},
		},
		Cache: CacheConfig{
			RefreshInterval: getEnvAsDuration("CACHE_REFRESH_INTERVAL", 30*time.Second),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
