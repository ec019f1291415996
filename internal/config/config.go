package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config captures the settings shared by the gateway and the CLI.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Watsonx      WatsonxConfig      `yaml:"watsonx"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Logging      LoggingConfig      `yaml:"logging"`
	Rules        RulesConfig        `yaml:"rules"`
	Cache        CacheConfig        `yaml:"cache"`
}

// ServerConfig controls the gateway listeners.
type ServerConfig struct {
	Address         string          `yaml:"address"`
	GRPCAddress     string          `yaml:"grpcAddress"`
	MetricsAddress  string          `yaml:"metricsAddress"`
	GracefulTimeout time.Duration   `yaml:"gracefulTimeout"`
	AllowedOrigins  []string        `yaml:"allowedOrigins"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig bounds orchestration requests per client address.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// OrchestratorConfig configures the client side of POST /api/orchestrate.
type OrchestratorConfig struct {
	BaseURL string `yaml:"baseURL"`
	Path    string `yaml:"path"`
	// Timeout of zero means no client-side deadline.
	Timeout time.Duration `yaml:"timeout"`
}

// WatsonxConfig configures the text-generation backend and its IAM exchange.
type WatsonxConfig struct {
	URL           string        `yaml:"url"`
	APIKey        string        `yaml:"apiKey"`
	ProjectID     string        `yaml:"projectID"`
	ModelID       string        `yaml:"modelID"`
	Version       string        `yaml:"version"`
	IAMURL        string        `yaml:"iamURL"`
	MaxNewTokens  int           `yaml:"maxNewTokens"`
	Temperature   float64       `yaml:"temperature"`
	StopSequences []string      `yaml:"stopSequences"`
	Timeout       time.Duration `yaml:"timeout"`
}

// PipelineConfig controls the staged reveal.
type PipelineConfig struct {
	ReasoningDelay  time.Duration `yaml:"reasoningDelay"`
	GovernanceDelay time.Duration `yaml:"governanceDelay"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RulesConfig controls governance rule-pack loading.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls the Redis-compatible IAM token cache.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	KeyPrefix    string        `yaml:"keyPrefix"`
}

// Load initialises Config from a YAML file, an optional .env file and
// environment overrides, in that order of increasing precedence.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	if path == "" {
		path = os.Getenv("AUTOPILOT_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// loadDotEnv reads AUTOPILOT_ENV_FILE, or ./.env when present. Variables
// already set in the environment win.
func loadDotEnv() error {
	if envFile := os.Getenv("AUTOPILOT_ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8000",
			GRPCAddress:     ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
			RateLimit:       RateLimitConfig{RequestsPerSecond: 2, Burst: 5},
		},
		Orchestrator: OrchestratorConfig{
			BaseURL: "http://localhost:8000",
			Path:    "/api/orchestrate",
		},
		Watsonx: WatsonxConfig{
			ModelID:       "ibm/granite-4-h-small",
			Version:       "2023-05-29",
			IAMURL:        "https://iam.cloud.ibm.com/identity/token",
			MaxNewTokens:  600,
			Temperature:   0.1,
			StopSequences: []string{"}\n\n{"},
			Timeout:       60 * time.Second,
		},
		Pipeline: PipelineConfig{
			ReasoningDelay:  300 * time.Millisecond,
			GovernanceDelay: 300 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Rules:   RulesConfig{Path: "configs/rules/governance.yaml"},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			KeyPrefix:    "incident-autopilot:",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTOPILOT_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("AUTOPILOT_GRPC_ADDRESS"); v != "" {
		cfg.Server.GRPCAddress = v
	}
	if v := os.Getenv("AUTOPILOT_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("AUTOPILOT_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("AUTOPILOT_RATE_LIMIT_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv("AUTOPILOT_RATE_LIMIT_BURST"); v != "" {
		if burst, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit.Burst = burst
		}
	}
	if v := os.Getenv("AUTOPILOT_ORCHESTRATOR_URL"); v != "" {
		cfg.Orchestrator.BaseURL = v
	}
	if v := os.Getenv("AUTOPILOT_ORCHESTRATOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Orchestrator.Timeout = d
		}
	}
	if v := os.Getenv("WATSONX_URL"); v != "" {
		cfg.Watsonx.URL = v
	}
	if v := os.Getenv("WATSONX_API_KEY"); v != "" {
		cfg.Watsonx.APIKey = v
	}
	if v := os.Getenv("WATSONX_PROJECT_ID"); v != "" {
		cfg.Watsonx.ProjectID = v
	}
	if v := os.Getenv("WATSONX_MODEL_ID"); v != "" {
		cfg.Watsonx.ModelID = v
	}
	if v := os.Getenv("WATSONX_IAM_URL"); v != "" {
		cfg.Watsonx.IAMURL = v
	}
	if v := os.Getenv("AUTOPILOT_REASONING_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.ReasoningDelay = d
		}
	}
	if v := os.Getenv("AUTOPILOT_GOVERNANCE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.GovernanceDelay = d
		}
	}
	if v := os.Getenv("AUTOPILOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AUTOPILOT_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("AUTOPILOT_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("AUTOPILOT_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("AUTOPILOT_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("AUTOPILOT_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("AUTOPILOT_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("AUTOPILOT_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("AUTOPILOT_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
