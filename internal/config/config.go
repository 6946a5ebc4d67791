package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// Upstream chat-completion API.
	OpenAIAPIKey   string   `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL  string   `mapstructure:"OPENAI_BASE_URL"`
	Models         []string `mapstructure:"MODELS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	// Interview tuning.
	TurnCap           int     `mapstructure:"TURN_CAP"`
	StartTemperature  float64 `mapstructure:"START_TEMPERATURE"`
	NextTemperature   float64 `mapstructure:"NEXT_TEMPERATURE"`
	ReportTemperature float64 `mapstructure:"REPORT_TEMPERATURE"`
	MaxTokens         int     `mapstructure:"MAX_TOKENS"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`

	AuthSecret     string   `mapstructure:"AUTH_SECRET"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("MODELS", "gpt-4o-mini,gpt-4o,gpt-3.5-turbo")
	v.SetDefault("REQUEST_TIMEOUT", "60s")
	v.SetDefault("TURN_CAP", 15)
	v.SetDefault("START_TEMPERATURE", 0.6)
	v.SetDefault("NEXT_TEMPERATURE", 0.7)
	v.SetDefault("REPORT_TEMPERATURE", 0.4)
	v.SetDefault("MAX_TOKENS", 1024)
	v.SetDefault("SESSION_TTL", "30m")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("OPENAI_API_KEY")
	v.BindEnv("OPENAI_BASE_URL")
	v.BindEnv("MODELS")
	v.BindEnv("REQUEST_TIMEOUT")
	v.BindEnv("TURN_CAP")
	v.BindEnv("START_TEMPERATURE")
	v.BindEnv("NEXT_TEMPERATURE")
	v.BindEnv("REPORT_TEMPERATURE")
	v.BindEnv("MAX_TOKENS")
	v.BindEnv("SESSION_TTL")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	if cfg.Models == nil {
		models := v.GetString("MODELS")
		if models != "" {
			cfg.Models = strings.Split(models, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ==========================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Bearer-token auth is bypassed — all requests get admin.")
		log.Println("WARNING: Set ENV=production and AUTH_SECRET for production.")
		log.Println("WARNING: ==========================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// the upstream API key and the auth secret are both required, and the tuning
// constants must be sane.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required outside development")
		}
		if c.AuthSecret == "" {
			return fmt.Errorf("AUTH_SECRET is required outside development")
		}
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("MODELS must list at least one model identifier")
	}
	if c.TurnCap <= 0 {
		return fmt.Errorf("TURN_CAP must be positive, got %d", c.TurnCap)
	}
	for name, t := range map[string]float64{
		"START_TEMPERATURE":  c.StartTemperature,
		"NEXT_TEMPERATURE":   c.NextTemperature,
		"REPORT_TEMPERATURE": c.ReportTemperature,
	} {
		if t < 0 || t > 2 {
			return fmt.Errorf("%s must be in [0, 2], got %v", name, t)
		}
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %v", c.SessionTTL)
	}
	return nil
}
