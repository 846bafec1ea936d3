package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the copilot service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Cache      CacheConfig      `yaml:"cache"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Session    SessionConfig    `yaml:"session"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"` // 0 keeps SSE answers unbounded
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxUploadMB     int64 `yaml:"max_upload_mb"`
}

// CacheConfig holds the embedding cache settings.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // none, redis (default: none)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	TTLHours         int      `yaml:"ttl_hours"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings. Documents and queries
// always share this model; only the instruction prefixes differ.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"` // openai, gemini
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	BatchSize           int    `yaml:"batch_size"`
	TimeoutSec          int    `yaml:"timeout_sec"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// GenerationConfig holds chat model settings.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"` // openai, gemini
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// BreakerConfig holds circuit breaker settings shared by both providers.
type BreakerConfig struct {
	MaxRequests  uint32  `yaml:"max_requests"`
	IntervalSec  int     `yaml:"interval_sec"`
	TimeoutSec   int     `yaml:"timeout_sec"`
	FailureRatio float64 `yaml:"failure_ratio"`
	MinRequests  uint32  `yaml:"min_requests"`
}

// ChunkingConfig holds splitter settings, in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	TopK              int `yaml:"top_k"`
	IngestConcurrency int `yaml:"ingest_concurrency"`
}

// PromptConfig holds prompt settings.
type PromptConfig struct {
	InstructionsFile string `yaml:"instructions_file"` // empty: built-in instructions
}

// SessionConfig seeds new sessions.
type SessionConfig struct {
	DefaultReferences []string `yaml:"default_references"`
	WelcomeMessage    string   `yaml:"welcome_message"`
	ExampleQuestions  []string `yaml:"example_questions"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML with ${VAR} expansion, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 64
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = "none"
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = 24 * 7
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 256
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}

	if c.Generation.Provider == "" {
		c.Generation.Provider = "openai"
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 2048
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 120
	}

	if c.Breaker.MaxRequests == 0 {
		c.Breaker.MaxRequests = 5
	}
	if c.Breaker.IntervalSec <= 0 {
		c.Breaker.IntervalSec = 10
	}
	if c.Breaker.TimeoutSec <= 0 {
		c.Breaker.TimeoutSec = 30
	}
	if c.Breaker.FailureRatio <= 0 {
		c.Breaker.FailureRatio = 0.6
	}
	if c.Breaker.MinRequests == 0 {
		c.Breaker.MinRequests = 3
	}

	// An omitted chunking section means 700/50; an explicit size keeps its overlap.
	if c.Chunking.Size <= 0 {
		c.Chunking.Size = 700
		if c.Chunking.Overlap == 0 {
			c.Chunking.Overlap = 50
		}
	}

	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 4
	}
	if c.Retrieval.IngestConcurrency <= 0 {
		c.Retrieval.IngestConcurrency = 4
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Cache.Driver {
	case "none":
	case "redis":
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("cache.addrs is required for driver %q", c.Cache.Driver)
		}
	default:
		return fmt.Errorf("cache.driver must be \"none\" or \"redis\", got %q", c.Cache.Driver)
	}

	if err := validateProvider("embedding", c.Embedding.Provider, c.Embedding.Model); err != nil {
		return err
	}
	if err := validateProvider("generation", c.Generation.Provider, c.Generation.Model); err != nil {
		return err
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be between 0 and 2, got %g", c.Generation.Temperature)
	}

	if c.Breaker.FailureRatio > 1 {
		return fmt.Errorf("breaker.failure_ratio must be at most 1, got %g", c.Breaker.FailureRatio)
	}

	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap (%d) must be in [0, chunking.size %d)",
			c.Chunking.Overlap, c.Chunking.Size)
	}
	return nil
}

func validateProvider(section, provider, model string) error {
	switch provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("%s.provider must be \"openai\" or \"gemini\", got %q", section, provider)
	}
	if model == "" {
		return fmt.Errorf("%s.model is required", section)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
