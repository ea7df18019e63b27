package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		// Empty DSN selects the in-memory store.
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Pay struct {
		MerchantID  string `yaml:"merchant_id"`
		SignKey     string `yaml:"sign_key"`
		APIBase     string `yaml:"api_base"`
		NotifyURL   string `yaml:"notify_url"`
		ReturnURL   string `yaml:"return_url"`
		UnitPrice   string `yaml:"unit_price"`
		ProductName string `yaml:"product_name"`
		RequireSign bool   `yaml:"require_sign"`
	} `yaml:"pay"`
	Quota struct {
		FreeLimit int `yaml:"free_limit"`
	} `yaml:"quota"`
	GenAI struct {
		BaseURL        string `yaml:"base_url"`
		FreeAPIKey     string `yaml:"free_api_key"`
		PaidAPIKey     string `yaml:"paid_api_key"`
		FreeModel      string `yaml:"free_model"`
		PaidModel      string `yaml:"paid_model"`
		FallbackModel  string `yaml:"fallback_model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"genai"`
	Worker struct {
		Enabled         bool `yaml:"enabled"`
		IntervalSeconds int  `yaml:"interval_seconds"`
		MinAgeSeconds   int  `yaml:"min_age_seconds"`
	} `yaml:"worker"`
}

func (c *Config) GenAITimeout() time.Duration {
	return time.Duration(c.GenAI.TimeoutSeconds) * time.Second
}

// Load reads configs/config.yaml (or CONFIG_PATH) over built-in defaults,
// then applies environment overrides. Every option has a default usable for
// local testing; merchant id, sign key, and the callback URLs must be
// overridden in any real deployment. A missing config file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.Pay.MerchantID == "" || cfg.Pay.SignKey == "" {
		return nil, errors.New("pay.merchant_id and pay.sign_key are required")
	}
	if cfg.Pay.UnitPrice == "" {
		return nil, errors.New("pay.unit_price is required")
	}
	if cfg.Quota.FreeLimit < 0 {
		return nil, errors.New("quota.free_limit must not be negative")
	}
	return cfg, nil
}

func defaults() *Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Pay.MerchantID = "1221"
	cfg.Pay.SignKey = "change-me"
	cfg.Pay.APIBase = "https://data.kuaizhifu.cn"
	cfg.Pay.NotifyURL = "https://your-domain.com/pay/callback"
	cfg.Pay.ReturnURL = "https://your-domain.com/pay/return"
	cfg.Pay.UnitPrice = "9.9"
	cfg.Pay.ProductName = "CineScript pay-per-use analysis"
	cfg.Pay.RequireSign = true
	cfg.Quota.FreeLimit = 3
	cfg.GenAI.FreeModel = "gemini-2.5-flash"
	cfg.GenAI.PaidModel = "gemini-3-pro-preview"
	cfg.GenAI.FallbackModel = "gemini-2.5-flash"
	cfg.GenAI.TimeoutSeconds = 60
	cfg.Worker.IntervalSeconds = 60
	cfg.Worker.MinAgeSeconds = 120
	return &cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("PAY_MCH_ID"); v != "" {
		cfg.Pay.MerchantID = v
	}
	if v := os.Getenv("PAY_SIGN_KEY"); v != "" {
		cfg.Pay.SignKey = v
	}
	if v := os.Getenv("PAY_API_BASE"); v != "" {
		cfg.Pay.APIBase = v
	}
	if v := os.Getenv("PAY_NOTIFY_URL"); v != "" {
		cfg.Pay.NotifyURL = v
	}
	if v := os.Getenv("PAY_RETURN_URL"); v != "" {
		cfg.Pay.ReturnURL = v
	}
	if v := os.Getenv("PAY_PER_USE_PRICE"); v != "" {
		cfg.Pay.UnitPrice = v
	}
	if v := os.Getenv("PAY_PRODUCT_NAME"); v != "" {
		cfg.Pay.ProductName = v
	}
	if v := os.Getenv("PAY_REQUIRE_SIGN"); v != "" {
		cfg.Pay.RequireSign = boolOr(cfg.Pay.RequireSign, v)
	}
	if v := os.Getenv("FREE_USAGE_LIMIT"); v != "" {
		cfg.Quota.FreeLimit = atoiOr(cfg.Quota.FreeLimit, v)
	}
	if v := os.Getenv("GENAI_BASE_URL"); v != "" {
		cfg.GenAI.BaseURL = v
	}
	// GEMINI_API_KEY is the shared fallback for both tiers.
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		if cfg.GenAI.FreeAPIKey == "" {
			cfg.GenAI.FreeAPIKey = v
		}
		if cfg.GenAI.PaidAPIKey == "" {
			cfg.GenAI.PaidAPIKey = v
		}
	}
	if v := os.Getenv("FREE_GENAI_KEY"); v != "" {
		cfg.GenAI.FreeAPIKey = v
	}
	if v := os.Getenv("PAID_GENAI_KEY"); v != "" {
		cfg.GenAI.PaidAPIKey = v
	}
	if v := os.Getenv("GENAI_FREE_MODEL"); v != "" {
		cfg.GenAI.FreeModel = v
	}
	if v := os.Getenv("GENAI_PAID_MODEL"); v != "" {
		cfg.GenAI.PaidModel = v
	}
	if v := os.Getenv("GENAI_FALLBACK_MODEL"); v != "" {
		cfg.GenAI.FallbackModel = v
	}
	if v := os.Getenv("GENAI_TIMEOUT_SECONDS"); v != "" {
		cfg.GenAI.TimeoutSeconds = atoiOr(cfg.GenAI.TimeoutSeconds, v)
	}
	if v := os.Getenv("WORKER_ENABLED"); v != "" {
		cfg.Worker.Enabled = boolOr(cfg.Worker.Enabled, v)
	}
	if v := os.Getenv("WORKER_INTERVAL_SECONDS"); v != "" {
		cfg.Worker.IntervalSeconds = atoiOr(cfg.Worker.IntervalSeconds, v)
	}
	if v := os.Getenv("WORKER_MIN_AGE_SECONDS"); v != "" {
		cfg.Worker.MinAgeSeconds = atoiOr(cfg.Worker.MinAgeSeconds, v)
	}
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func boolOr(fallback bool, v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
