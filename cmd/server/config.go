package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	ai "github.com/spetersoncode/stockagent"
)

// Config holds the server configuration. Values come from an optional TOML
// file named by STOCKAGENT_CONFIG, then from the environment (and .env),
// which wins.
type Config struct {
	// Server
	Port     string `toml:"port"`
	LogLevel string `toml:"log_level"` // debug, info, warn, error
	LogJSON  bool   `toml:"log_json"`

	// Provider selection
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	BaseURL  string `toml:"base_url"`

	// API keys
	AnthropicKey string `toml:"anthropic_api_key"`
	OpenAIKey    string `toml:"openai_api_key"`
	GoogleKey    string `toml:"google_api_key"`
	NewsAPIKey   string `toml:"news_api_key"`

	// Agent
	MaxSteps       int           `toml:"max_steps"`
	Timeout        time.Duration `toml:"timeout"`
	ToolTimeout    time.Duration `toml:"tool_timeout"`
	NativeTools    bool          `toml:"native_tools"`
	SessionTTL     time.Duration `toml:"session_ttl"`
	SessionHistory int           `toml:"session_history"`

	// Market data
	RateLimit float64       `toml:"market_rate_limit"`
	CacheTTL  time.Duration `toml:"market_cache_ttl"`
	CachePath string        `toml:"market_cache_path"`

	// MCPServers are commands of stdio MCP servers whose tools are added to
	// the registry.
	MCPServers []string `toml:"mcp_servers"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Port:           "5000",
		LogLevel:       "info",
		Provider:       string(ai.ProviderOpenAI),
		MaxSteps:       10,
		Timeout:        300 * time.Second,
		ToolTimeout:    30 * time.Second,
		SessionTTL:     time.Hour,
		SessionHistory: 40,
		RateLimit:      5,
		CacheTTL:       5 * time.Minute,
	}
}

// LoadConfig loads configuration from the optional TOML file and the
// environment. It loads a .env file if present (silent fail if not found).
func LoadConfig() (*Config, error) {
	godotenv.Load()

	cfg := DefaultConfig()
	if path := os.Getenv("STOCKAGENT_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvOrDefault("PORT", c.Port)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.LogJSON = getEnvBoolOrDefault("LOG_JSON", c.LogJSON)

	c.Provider = getEnvOrDefault("LLM_PROVIDER", c.Provider)
	c.Model = getEnvOrDefault("LLM_MODEL", getEnvOrDefault("OPENAI_MODEL", c.Model))
	c.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", c.BaseURL)

	c.AnthropicKey = getEnvOrDefault("ANTHROPIC_API_KEY", c.AnthropicKey)
	c.OpenAIKey = getEnvOrDefault("OPENAI_API_KEY", c.OpenAIKey)
	c.GoogleKey = getEnvOrDefault("GOOGLE_API_KEY", c.GoogleKey)
	c.NewsAPIKey = getEnvOrDefault("NEWS_API_KEY", c.NewsAPIKey)

	c.MaxSteps = getEnvIntOrDefault("AGENT_MAX_STEPS", c.MaxSteps)
	c.Timeout = getEnvDurationOrDefault("AGENT_TIMEOUT", c.Timeout)
	c.ToolTimeout = getEnvDurationOrDefault("TOOL_TIMEOUT", c.ToolTimeout)
	c.NativeTools = getEnvBoolOrDefault("AGENT_NATIVE_TOOLS", c.NativeTools)
	c.SessionTTL = getEnvDurationOrDefault("SESSION_TTL", c.SessionTTL)
	c.SessionHistory = getEnvIntOrDefault("SESSION_HISTORY", c.SessionHistory)

	c.RateLimit = getEnvFloatOrDefault("MARKET_RATE_LIMIT", c.RateLimit)
	c.CacheTTL = getEnvDurationOrDefault("MARKET_CACHE_TTL", c.CacheTTL)
	c.CachePath = getEnvOrDefault("MARKET_CACHE_PATH", c.CachePath)

	if v := os.Getenv("MCP_SERVERS"); v != "" {
		c.MCPServers = strings.Split(v, ",")
	}
	c.MCPServers = commands(c.MCPServers)
}

// commands trims each MCP server command and drops blank ones.
func commands(list []string) []string {
	var out []string
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	p, err := ai.ParseProvider(c.Provider)
	if err != nil {
		return err
	}
	c.Provider = string(p)

	switch p {
	case ai.ProviderAnthropic:
		if c.AnthropicKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for anthropic provider")
		}
	case ai.ProviderOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for openai provider")
		}
	case ai.ProviderGoogle:
		if c.GoogleKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required for google provider")
		}
	}

	if c.MaxSteps < 1 {
		return fmt.Errorf("AGENT_MAX_STEPS must be at least 1, got %d", c.MaxSteps)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("MARKET_RATE_LIMIT must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Logger builds the process logger from LogLevel and LogJSON.
func (c *Config) Logger() *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if c.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
