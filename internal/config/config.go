package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the lexrag configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds the ops server settings (/health, /ready, /metrics).
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds vector store connection settings.
type DatabaseConfig struct {
	Driver             string `yaml:"driver"` // postgres, sqlite (default: postgres)
	DSN                string `yaml:"dsn"`    // postgres connection string or sqlite file path
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec"`
	ConnMaxIdleTimeSec int    `yaml:"conn_max_idle_time_sec"`
	CommandTimeoutMs   int    `yaml:"command_timeout_ms"`
	ReadinessTimeout   int    `yaml:"readiness_timeout_sec"`
	MigrateOnStart     bool   `yaml:"migrate_on_start"`
}

// CommandTimeout returns the per-command deadline.
func (d DatabaseConfig) CommandTimeout() time.Duration {
	return time.Duration(d.CommandTimeoutMs) * time.Millisecond
}

// ConnMaxLifetime returns the pooled connection lifetime.
func (d DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifetimeSec) * time.Second
}

// ConnMaxIdleTime returns how long a pooled connection may sit idle.
func (d DatabaseConfig) ConnMaxIdleTime() time.Duration {
	return time.Duration(d.ConnMaxIdleTimeSec) * time.Second
}

// CacheConfig holds the embedding cache settings.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	KeyPrefix        string   `yaml:"key_prefix"`
	TTLHours         int      `yaml:"ttl_hours"` // 0 = no expiry
	CommandTimeoutMs int      `yaml:"command_timeout_ms"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// CommandTimeout returns the per-command deadline for cache calls.
func (c CacheConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMs) * time.Millisecond
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Providers   map[string]ProviderConfig   `yaml:"providers"`
	Vectorizers map[string]VectorizerConfig `yaml:"vectorizers"`
	// Vectorizer names the entry of Vectorizers used by this deployment.
	Vectorizer string `yaml:"vectorizer"`
	BatchSize  int    `yaml:"batch_size"`
}

// Active returns the selected vectorizer and its provider.
func (e EmbeddingConfig) Active() (VectorizerConfig, ProviderConfig, error) {
	v, ok := e.Vectorizers[e.Vectorizer]
	if !ok {
		return VectorizerConfig{}, ProviderConfig{}, fmt.Errorf("embedding.vectorizers.%s is not defined", e.Vectorizer)
	}
	p, ok := e.Providers[v.Provider]
	if !ok {
		return VectorizerConfig{}, ProviderConfig{}, fmt.Errorf(
			"embedding.vectorizers.%s references unknown provider %q", e.Vectorizer, v.Provider)
	}
	return v, p, nil
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// VectorizerConfig holds vectorizer settings.
type VectorizerConfig struct {
	Provider            string `yaml:"provider"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// ChunkingConfig holds chunking engine tunables.
type ChunkingConfig struct {
	MinTokens           int   `yaml:"min_tokens"`
	TargetTokens        int   `yaml:"target_tokens"`
	MaxTokens           int   `yaml:"max_tokens"`
	OverlapParagraphs   *int  `yaml:"overlap_paragraphs"` // nil = 1, 0 disables overlap
	PreservePageMarkers bool  `yaml:"preserve_page_markers"`
	DetectHeaders       *bool `yaml:"detect_headers"` // nil = true
}

// Overlap returns the number of paragraphs carried into the next chunk.
func (c ChunkingConfig) Overlap() int {
	if c.OverlapParagraphs == nil {
		return 1
	}
	return *c.OverlapParagraphs
}

// HeaderDetection reports whether section headers are detected.
func (c ChunkingConfig) HeaderDetection() bool {
	return c.DetectHeaders == nil || *c.DetectHeaders
}

// RetrievalConfig holds similarity search settings.
type RetrievalConfig struct {
	DefaultLimit     int     `yaml:"default_limit"`
	MaxLimit         int     `yaml:"max_limit"`
	DefaultThreshold float64 `yaml:"default_threshold"`
	// ModelPolicy is "strict" (reject other models, filter search by model) or "record".
	ModelPolicy string `yaml:"model_policy"`
}

// IngestConfig holds ingest pipeline settings.
type IngestConfig struct {
	Concurrency  int `yaml:"concurrency"`
	MaxBatchSize int `yaml:"max_batch_size"`
}

// LoadDotEnv loads a .env file into the process environment if present.
// Variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from a YAML file by environment name (local, test, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetimeSec <= 0 {
		c.Database.ConnMaxLifetimeSec = 1800
	}
	if c.Database.ConnMaxIdleTimeSec <= 0 {
		c.Database.ConnMaxIdleTimeSec = 300
	}
	if c.Database.CommandTimeoutMs <= 0 {
		c.Database.CommandTimeoutMs = 5000
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Cache.CommandTimeoutMs <= 0 {
		c.Cache.CommandTimeoutMs = 200
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "lexrag:emb_cache:"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 256
	}
	if c.Embedding.Vectorizer == "" && len(c.Embedding.Vectorizers) == 1 {
		for name := range c.Embedding.Vectorizers {
			c.Embedding.Vectorizer = name
		}
	}
	if c.Chunking.MinTokens <= 0 {
		c.Chunking.MinTokens = 100
	}
	if c.Chunking.TargetTokens <= 0 {
		c.Chunking.TargetTokens = 500
	}
	if c.Chunking.MaxTokens <= 0 {
		c.Chunking.MaxTokens = 800
	}
	if c.Retrieval.DefaultLimit <= 0 {
		c.Retrieval.DefaultLimit = 5
	}
	if c.Retrieval.MaxLimit <= 0 {
		c.Retrieval.MaxLimit = 100
	}
	if c.Retrieval.ModelPolicy == "" {
		c.Retrieval.ModelPolicy = "strict"
	}
	if c.Ingest.Concurrency <= 0 {
		c.Ingest.Concurrency = 4
	}
	if c.Ingest.MaxBatchSize <= 0 {
		c.Ingest.MaxBatchSize = 100
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be \"postgres\" or \"sqlite\", got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache is enabled")
	}
	if len(c.Embedding.Vectorizers) > 0 {
		v, _, err := c.Embedding.Active()
		if err != nil {
			return err
		}
		if v.Dimensions <= 0 {
			return fmt.Errorf("embedding.vectorizers.%s.dimensions must be positive", c.Embedding.Vectorizer)
		}
	}
	if c.Chunking.MinTokens > c.Chunking.TargetTokens || c.Chunking.TargetTokens > c.Chunking.MaxTokens {
		return fmt.Errorf("chunking tokens must satisfy min <= target <= max, got %d/%d/%d",
			c.Chunking.MinTokens, c.Chunking.TargetTokens, c.Chunking.MaxTokens)
	}
	if c.Chunking.OverlapParagraphs != nil && *c.Chunking.OverlapParagraphs < 0 {
		return fmt.Errorf("chunking.overlap_paragraphs must not be negative")
	}
	if c.Retrieval.DefaultThreshold < 0 || c.Retrieval.DefaultThreshold > 1 {
		return fmt.Errorf("retrieval.default_threshold must be in [0,1], got %v", c.Retrieval.DefaultThreshold)
	}
	if c.Retrieval.DefaultLimit > c.Retrieval.MaxLimit {
		return fmt.Errorf("retrieval.default_limit %d exceeds max_limit %d",
			c.Retrieval.DefaultLimit, c.Retrieval.MaxLimit)
	}
	switch c.Retrieval.ModelPolicy {
	case "strict", "record":
	default:
		return fmt.Errorf("retrieval.model_policy must be \"strict\" or \"record\", got %q", c.Retrieval.ModelPolicy)
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
