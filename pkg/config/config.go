package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jstittsworth/matchup-engine/internal/matchup"
)

type Config struct {
	// Server
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	// Redis
	RedisURL string `mapstructure:"REDIS_URL"`

	// CORS
	CorsOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Datasets
	DatasetTTL           time.Duration `mapstructure:"DATASET_TTL"`
	DatasetSweepSchedule string        `mapstructure:"DATASET_SWEEP_SCHEDULE"`
	ScoreCacheExpiration time.Duration `mapstructure:"SCORE_CACHE_EXPIRATION"`

	// Reports
	ReportSize int `mapstructure:"REPORT_SIZE"`

	// Scoring model defaults (overridable per request)
	MinBaseYPRR                float64 `mapstructure:"MIN_BASE_YPRR"`
	EdgeClamp                  float64 `mapstructure:"EDGE_CLAMP"`
	MaxPenalty                 float64 `mapstructure:"MAX_PENALTY"`
	PenaltyExponent            float64 `mapstructure:"PENALTY_EXPONENT"`
	FullConfidenceThreshold    float64 `mapstructure:"FULL_CONFIDENCE_THRESHOLD"`
	ZeroConfidenceThreshold    float64 `mapstructure:"ZERO_CONFIDENCE_THRESHOLD"`
	RouteShareMode             string  `mapstructure:"ROUTE_SHARE_MODE"`
	RouteShareReference        float64 `mapstructure:"ROUTE_SHARE_REFERENCE"`
	ReferencePercentile        float64 `mapstructure:"REFERENCE_PERCENTILE"`
	QualifiedMinimumRouteShare float64 `mapstructure:"QUALIFIED_MINIMUM_ROUTE_SHARE"`

	// Remote CSV sources
	ReceiverCSVURL          string        `mapstructure:"RECEIVER_CSV_URL"`
	DefenseCSVURL           string        `mapstructure:"DEFENSE_CSV_URL"`
	MatchupCSVURL           string        `mapstructure:"MATCHUP_CSV_URL"`
	ProviderRateLimit       float64       `mapstructure:"PROVIDER_RATE_LIMIT"`
	CircuitBreakerThreshold int           `mapstructure:"CIRCUIT_BREAKER_THRESHOLD"`
	ExternalAPITimeout      time.Duration `mapstructure:"EXTERNAL_API_TIMEOUT"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	viper.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")

	viper.SetDefault("DATASET_TTL", "24h")
	viper.SetDefault("DATASET_SWEEP_SCHEDULE", "@every 10m")
	viper.SetDefault("SCORE_CACHE_EXPIRATION", "1h")
	viper.SetDefault("REPORT_SIZE", 10)

	// Canonical scoring knobs
	viper.SetDefault("MIN_BASE_YPRR", 0.0)
	viper.SetDefault("EDGE_CLAMP", 0.25)
	viper.SetDefault("MAX_PENALTY", 0.8)
	viper.SetDefault("PENALTY_EXPONENT", 2.0)
	viper.SetDefault("FULL_CONFIDENCE_THRESHOLD", 0.5)
	viper.SetDefault("ZERO_CONFIDENCE_THRESHOLD", 0.05)
	viper.SetDefault("ROUTE_SHARE_MODE", "fixed")
	viper.SetDefault("ROUTE_SHARE_REFERENCE", 450.0) // league-leader routes over a season
	viper.SetDefault("REFERENCE_PERCENTILE", 0.95)
	viper.SetDefault("QUALIFIED_MINIMUM_ROUTE_SHARE", 0.0)

	viper.SetDefault("RECEIVER_CSV_URL", "")
	viper.SetDefault("DEFENSE_CSV_URL", "")
	viper.SetDefault("MATCHUP_CSV_URL", "")
	viper.SetDefault("PROVIDER_RATE_LIMIT", 2.0)
	viper.SetDefault("CIRCUIT_BREAKER_THRESHOLD", 5)
	viper.SetDefault("EXTERNAL_API_TIMEOUT", "10s")

	// Read from environment
	viper.AutomaticEnv()

	// Read config file if exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Parse CORS origins from comma-separated string
	if corsStr := viper.GetString("CORS_ORIGINS"); corsStr != "" {
		config.CorsOrigins = strings.Split(corsStr, ",")
	}

	return &config, nil
}

// ScoringDefaults assembles the model configuration applied when a
// request doesn't override the knobs.
func (c *Config) ScoringDefaults() matchup.Config {
	return matchup.Config{
		MinBaseYPRR:                c.MinBaseYPRR,
		EdgeClamp:                  c.EdgeClamp,
		MaxPenalty:                 c.MaxPenalty,
		PenaltyExponent:            c.PenaltyExponent,
		FullConfidenceThreshold:    c.FullConfidenceThreshold,
		ZeroConfidenceThreshold:    c.ZeroConfidenceThreshold,
		RouteShareMode:             matchup.RouteShareMode(c.RouteShareMode),
		RouteShareReference:        c.RouteShareReference,
		ReferencePercentile:        c.ReferencePercentile,
		QualifiedMinimumRouteShare: c.QualifiedMinimumRouteShare,
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
