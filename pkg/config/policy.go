// Policy configuration loader. Operators override negotiation TTLs and
// fee rate, batch thresholds and trust parameters via a YAML policy file
// with ${VAR_NAME} / ${VAR_NAME:-default} environment substitution.

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PolicyConfig holds operator-tunable negotiation and batching policy,
// loaded from its own file separately from the process environment.
type PolicyConfig struct {
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`

	Negotiation NegotiationPolicy `yaml:"negotiation"`
	Batch       BatchPolicy       `yaml:"batch"`
	Trust       TrustPolicy       `yaml:"trust"`
	Discovery   DiscoveryPolicy   `yaml:"discovery"`
	Security    SecurityPolicy    `yaml:"security"`
}

// NegotiationPolicy mirrors the per-transition TTLs of the negotiation
// state machine.
type NegotiationPolicy struct {
	TTLRequestToOffer Duration `yaml:"ttl_request_to_offer"`
	TTLOfferToAccept  Duration `yaml:"ttl_offer_to_accept"`
	TTLAcceptToResult Duration `yaml:"ttl_accept_to_result"`
	TTLResultToVerify Duration `yaml:"ttl_result_to_verify"`
	TTLVerifyToPay    Duration `yaml:"ttl_verify_to_pay"`
	TTLPayConfirm     Duration `yaml:"ttl_pay_confirm"`
	SweepInterval     Duration `yaml:"sweep_interval"`
	FeeRate           float64  `yaml:"fee_rate"` // fraction of price charged as protocol fee
	ClockSkew         Duration `yaml:"clock_skew"`
	NonceTTL          Duration `yaml:"nonce_ttl"`
}

// BatchPolicy mirrors the Merkle-batching collector thresholds.
type BatchPolicy struct {
	MaxSize         int      `yaml:"max_size"`
	MaxAge          Duration `yaml:"max_age"`
	MinSize         int      `yaml:"min_size"`
	TickerEvery     Duration `yaml:"ticker_every"`
	AutoCloseOnSize bool     `yaml:"auto_close_on_size"`
	AutoCloseOnAge  bool     `yaml:"auto_close_on_age"`
}

// TrustPolicy mirrors the bounded trust-scoring weights.
type TrustPolicy struct {
	WeightAdjusted float64 `yaml:"weight_adjusted"`
	WeightRaw      float64 `yaml:"weight_raw"`
	WeightActivity float64 `yaml:"weight_activity"`
	DisputeWeight  float64 `yaml:"dispute_weight"`
	DecayGraceDays int     `yaml:"decay_grace_days"`
	DecayHalfLife  Duration `yaml:"decay_half_life"`
	DecayAsymptote float64 `yaml:"decay_asymptote"`
}

// DiscoveryPolicy mirrors the agent-registry discovery endpoint's
// pagination defaults and staleness sweep.
type DiscoveryPolicy struct {
	DefaultPageSize int      `yaml:"default_page_size"`
	MaxPageSize     int      `yaml:"max_page_size"`
	HeartbeatStale  Duration `yaml:"heartbeat_stale"`
}

// SecurityPolicy mirrors rate limiting and stream concurrency caps.
type SecurityPolicy struct {
	RateLimit         RateLimitSettings `yaml:"rate_limit"`
	StreamMaxPerAgent int               `yaml:"stream_max_per_agent"`
	StreamMaxGlobal   int               `yaml:"stream_max_global"`
}

// RateLimitSettings contains rate limiting configuration.
type RateLimitSettings struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// Duration wraps time.Duration for YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// LoadPolicyConfig loads policy configuration from a YAML file.
// Environment variables in the format ${VAR_NAME} or ${VAR_NAME:-default}
// are substituted before parsing.
func LoadPolicyConfig(path string) (*PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	cfg := PolicyConfig{Batch: BatchPolicy{AutoCloseOnSize: true, AutoCloseOnAge: true}}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// DefaultPolicyConfig returns the policy defaults used when no policy
// file is configured.
func DefaultPolicyConfig() *PolicyConfig {
	cfg := &PolicyConfig{Batch: BatchPolicy{AutoCloseOnSize: true, AutoCloseOnAge: true}}
	cfg.applyDefaults()
	return cfg
}

func (c *PolicyConfig) applyDefaults() {
	if c.Negotiation.TTLRequestToOffer == 0 {
		c.Negotiation.TTLRequestToOffer = Duration(60 * time.Second)
	}
	if c.Negotiation.TTLOfferToAccept == 0 {
		c.Negotiation.TTLOfferToAccept = Duration(300 * time.Second)
	}
	if c.Negotiation.TTLAcceptToResult == 0 {
		c.Negotiation.TTLAcceptToResult = Duration(3600 * time.Second)
	}
	if c.Negotiation.TTLResultToVerify == 0 {
		c.Negotiation.TTLResultToVerify = Duration(30 * time.Second)
	}
	if c.Negotiation.TTLVerifyToPay == 0 {
		c.Negotiation.TTLVerifyToPay = Duration(60 * time.Second)
	}
	if c.Negotiation.TTLPayConfirm == 0 {
		c.Negotiation.TTLPayConfirm = Duration(30 * time.Second)
	}
	if c.Negotiation.SweepInterval == 0 {
		c.Negotiation.SweepInterval = Duration(15 * time.Second)
	}
	if c.Negotiation.FeeRate == 0 {
		c.Negotiation.FeeRate = 0.025
	}
	if c.Negotiation.ClockSkew == 0 {
		c.Negotiation.ClockSkew = Duration(5 * time.Minute)
	}
	if c.Negotiation.NonceTTL == 0 {
		c.Negotiation.NonceTTL = Duration(24 * time.Hour)
	}

	if c.Batch.MaxSize == 0 {
		c.Batch.MaxSize = 100
	}
	if c.Batch.MaxAge == 0 {
		c.Batch.MaxAge = Duration(5 * time.Minute)
	}
	if c.Batch.MinSize == 0 {
		c.Batch.MinSize = 1
	}
	if c.Batch.TickerEvery == 0 {
		c.Batch.TickerEvery = Duration(30 * time.Second)
	}

	if c.Trust.WeightAdjusted == 0 {
		c.Trust.WeightAdjusted = 0.7
	}
	if c.Trust.WeightRaw == 0 {
		c.Trust.WeightRaw = 0.2
	}
	if c.Trust.WeightActivity == 0 {
		c.Trust.WeightActivity = 0.1
	}
	if c.Trust.DisputeWeight == 0 {
		c.Trust.DisputeWeight = 3
	}
	if c.Trust.DecayGraceDays == 0 {
		c.Trust.DecayGraceDays = 7
	}
	if c.Trust.DecayHalfLife == 0 {
		c.Trust.DecayHalfLife = Duration(60 * 24 * time.Hour)
	}
	if c.Trust.DecayAsymptote == 0 {
		c.Trust.DecayAsymptote = 0.5
	}

	if c.Discovery.DefaultPageSize == 0 {
		c.Discovery.DefaultPageSize = 20
	}
	if c.Discovery.MaxPageSize == 0 {
		c.Discovery.MaxPageSize = 100
	}
	if c.Discovery.HeartbeatStale == 0 {
		c.Discovery.HeartbeatStale = Duration(300 * time.Second)
	}

	if c.Security.RateLimit.RequestsPerMinute == 0 {
		c.Security.RateLimit.RequestsPerMinute = 100
	}
	if c.Security.RateLimit.Burst == 0 {
		c.Security.RateLimit.Burst = 20
	}
	if c.Security.StreamMaxPerAgent == 0 {
		c.Security.StreamMaxPerAgent = 3
	}
	if c.Security.StreamMaxGlobal == 0 {
		c.Security.StreamMaxGlobal = 100
	}
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}

		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks policy values for internal consistency.
func (c *PolicyConfig) Validate() error {
	var errs []string

	if c.Negotiation.FeeRate < 0 || c.Negotiation.FeeRate > 1 {
		errs = append(errs, "negotiation.fee_rate must be between 0 and 1")
	}
	if c.Batch.MinSize > c.Batch.MaxSize {
		errs = append(errs, "batch.min_size cannot exceed batch.max_size")
	}
	w := c.Trust.WeightAdjusted + c.Trust.WeightRaw + c.Trust.WeightActivity
	if w < 0.99 || w > 1.01 {
		errs = append(errs, "trust weights (adjusted+raw+activity) must sum to 1.0")
	}
	if c.Discovery.DefaultPageSize > c.Discovery.MaxPageSize {
		errs = append(errs, "discovery.default_page_size cannot exceed discovery.max_page_size")
	}

	if len(errs) > 0 {
		return fmt.Errorf("policy validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
