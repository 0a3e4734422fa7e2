// Package config loads AEEP server configuration from environment
// variables, with Validate() enforcing production-safe values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the AEEP server.
type Config struct {
	// Server Configuration
	ListenAddr  string
	MetricsAddr string
	HealthAddr  string

	// Database Configuration (URL-based, used by store.NewClient)
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int // seconds
	DatabaseMaxLifetime int // seconds
	DatabaseRequired    bool

	// Identity Configuration
	Ed25519KeyPath string // path to this node's Ed25519 private key file
	DataDir        string // base directory for data files

	// Relayer Configuration
	EthereumURL           string
	EthChainID            int64
	EthPrivateKey         string
	AnchorContractAddress string
	RelayerMode           string // "ethereum" or "mock"

	// Negotiation Timing (§4.1 per-transition TTLs)
	TTLRequestToOffer time.Duration
	TTLOfferToAccept  time.Duration
	TTLAcceptToResult time.Duration
	TTLResultToVerify time.Duration
	TTLVerifyToPay    time.Duration
	TTLPayConfirm     time.Duration
	TTLSweepInterval  time.Duration

	// Nonce / Message Retention
	NonceTTL       time.Duration
	MessageTTL     time.Duration
	HeartbeatStale time.Duration // agent availability goes "unknown" after this long unseen

	// Batching Configuration
	BatchMaxSize     int
	BatchMaxAge      time.Duration
	BatchMinSize     int
	BatchTickerEvery time.Duration

	// Push Stream Limits
	StreamMaxPerAgent int
	StreamMaxGlobal   int

	// Trust Scoring
	TrustDecayGraceDays int
	TrustDecayHalfLife  time.Duration

	// Security Configuration
	CORSOrigins []string
	TLSEnabled  bool

	// Rate Limiting
	RateLimitRequests int
	RateLimitWindow   int

	// Firestore Configuration (non-authoritative UI mirror)
	FirestoreEnabled        bool
	FirebaseProjectID       string
	FirebaseCredentialsFile string

	LogLevel string
}

// Load reads configuration from environment variables. Call Validate()
// afterward before starting the service.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("API_PORT", "8080"),
		MetricsAddr: getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("METRICS_PORT", "9090"),
		HealthAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("HEALTH_CHECK_PORT", "8081"),

		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMinConns:    getEnvInt("DATABASE_MIN_CONNS", 5),
		DatabaseMaxIdleTime: getEnvInt("DATABASE_MAX_IDLE_TIME", 300),
		DatabaseMaxLifetime: getEnvInt("DATABASE_MAX_LIFETIME", 3600),
		DatabaseRequired:    getEnvBool("DATABASE_REQUIRED", true),

		Ed25519KeyPath: getEnv("ED25519_KEY_PATH", ""),
		DataDir:        getEnv("DATA_DIR", "./data"),

		EthereumURL:           getEnv("ETHEREUM_URL", ""),
		EthChainID:            getEnvInt64("ETH_CHAIN_ID", 11155111),
		EthPrivateKey:         getEnv("ETH_PRIVATE_KEY", ""),
		AnchorContractAddress: getEnv("ANCHOR_CONTRACT_ADDRESS", ""),
		RelayerMode:           getEnv("RELAYER_MODE", "mock"),

		TTLRequestToOffer: getEnvDuration("TTL_REQUEST_TO_OFFER", 60*time.Second),
		TTLOfferToAccept:  getEnvDuration("TTL_OFFER_TO_ACCEPT", 300*time.Second),
		TTLAcceptToResult: getEnvDuration("TTL_ACCEPT_TO_RESULT", 3600*time.Second),
		TTLResultToVerify: getEnvDuration("TTL_RESULT_TO_VERIFY", 30*time.Second),
		TTLVerifyToPay:    getEnvDuration("TTL_VERIFY_TO_PAY", 60*time.Second),
		TTLPayConfirm:     getEnvDuration("TTL_PAY_CONFIRM", 30*time.Second),
		TTLSweepInterval:  getEnvDuration("TTL_SWEEP_INTERVAL", 15*time.Second),

		NonceTTL:       getEnvDuration("NONCE_TTL", 24*time.Hour),
		MessageTTL:     getEnvDuration("MESSAGE_TTL", 7*24*time.Hour),
		HeartbeatStale: getEnvDuration("HEARTBEAT_STALE_AFTER", 300*time.Second),

		BatchMaxSize:     getEnvInt("BATCH_MAX_SIZE", 256),
		BatchMaxAge:      getEnvDuration("BATCH_MAX_AGE", 5*time.Minute),
		BatchMinSize:     getEnvInt("BATCH_MIN_SIZE", 1),
		BatchTickerEvery: getEnvDuration("BATCH_TICKER_EVERY", 10*time.Second),

		StreamMaxPerAgent: getEnvInt("STREAM_MAX_PER_AGENT", 3),
		StreamMaxGlobal:   getEnvInt("STREAM_MAX_GLOBAL", 100),

		TrustDecayGraceDays: getEnvInt("TRUST_DECAY_GRACE_DAYS", 7),
		TrustDecayHalfLife:  getEnvDuration("TRUST_DECAY_HALF_LIFE", 60*24*time.Hour),

		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		TLSEnabled:  getEnvBool("TLS_ENABLED", true),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnvInt("RATE_LIMIT_WINDOW", 60),

		FirestoreEnabled:        getEnvBool("FIRESTORE_ENABLED", false),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and secure.
func (c *Config) Validate() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required but not set")
	} else if strings.Contains(c.DatabaseURL, "sslmode=disable") {
		errs = append(errs, "DATABASE_URL must use sslmode=require for production security")
	}

	if c.Ed25519KeyPath == "" {
		errs = append(errs, "ED25519_KEY_PATH is required but not set")
	}

	if c.RelayerMode == "ethereum" {
		if c.EthereumURL == "" {
			errs = append(errs, "ETHEREUM_URL is required when RELAYER_MODE=ethereum")
		}
		if c.EthPrivateKey == "" {
			errs = append(errs, "ETH_PRIVATE_KEY is required when RELAYER_MODE=ethereum")
		}
		if c.AnchorContractAddress == "" {
			errs = append(errs, "ANCHOR_CONTRACT_ADDRESS is required when RELAYER_MODE=ethereum")
		}
	}

	if !c.TLSEnabled {
		fmt.Println("WARNING: TLS_ENABLED is false - enable TLS for production security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateForDevelopment performs relaxed validation suitable for local
// development, where a mock relayer and no TLS are expected.
func (c *Config) ValidateForDevelopment() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("development configuration validation failed: DATABASE_URL is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
