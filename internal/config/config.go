// Package config loads and validates the application configuration.
//
// Configuration comes from a YAML file (default: ~/.config/roserade/config.yaml,
// honoring XDG_CONFIG_HOME), with a small set of environment variable
// overrides on top. A .env file in the working directory is loaded first, so
// local development overrides work without exporting anything.
//
// All validation happens here, before the pipeline starts. Components receive
// the resulting immutable Config and never re-validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Chunking strategies and similarity metrics form closed sets. They are
// resolved into concrete implementations once at startup; the strings only
// exist at the configuration boundary.
const (
	StrategyFixed    = "fixed"
	StrategySemantic = "semantic"

	MetricCosine    = "cosine"
	MetricEuclidean = "euclidean"
	MetricDot       = "dot"
)

// ValidationError reports a bad configuration value. It is fatal at startup,
// never raised at per-file granularity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Duration wraps time.Duration so YAML round-trips through human-readable
// strings ("30s", "1m") instead of integer nanoseconds.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if parsed, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	// Plain integers are read as nanoseconds, matching files written
	// before durations were serialized as strings.
	ns, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(ns)
	return nil
}

// DatabaseConfig locates the SQLite index file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig describes the Ollama-compatible embedding endpoint and the
// gateway's batching/retry behavior.
type EmbeddingConfig struct {
	Host        string   `yaml:"host"`
	Model       string   `yaml:"model"`
	Dimension   int      `yaml:"dimension"`
	Timeout     Duration `yaml:"timeout"`
	BatchSize   int      `yaml:"batch_size"`
	MaxRetries  int      `yaml:"max_retries"`
	RetryDelay  Duration `yaml:"retry_delay"`
	MaxInflight int      `yaml:"max_inflight"`
}

// ChunkingConfig selects and parameterizes the segmentation strategy.
// Sizes are measured in runes.
type ChunkingConfig struct {
	Strategy     string `yaml:"strategy"`
	Size         int    `yaml:"size"`
	Overlap      int    `yaml:"overlap"`
	MinChunkSize int    `yaml:"min_chunk_size"`
	MaxChunkSize int    `yaml:"max_chunk_size"`
}

// ProcessingConfig controls file discovery and document-level parallelism.
type ProcessingConfig struct {
	SupportedExtensions []string `yaml:"supported_extensions"`
	ExcludePatterns     []string `yaml:"exclude_patterns"`
	Workers             int      `yaml:"workers"`
}

// SearchConfig controls similarity ranking.
type SearchConfig struct {
	Metric    string  `yaml:"metric"`
	Threshold float64 `yaml:"threshold"`
	Limit     int     `yaml:"limit"`
}

// SchedulerConfig controls recurring indexing jobs.
type SchedulerConfig struct {
	MaxConsecutiveFailures int      `yaml:"max_consecutive_failures"`
	PollInterval           Duration `yaml:"poll_interval"`
}

// Config is the root configuration. It is loaded once and passed explicitly
// to component constructors.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Processing ProcessingConfig `yaml:"processing"`
	Search     SearchConfig     `yaml:"search"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

// Default returns the built-in configuration, used when no config file exists
// and as the base that a config file partially overrides.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(configDir(), "index.db"),
		},
		Embedding: EmbeddingConfig{
			Host:        "http://localhost:11434",
			Model:       "nomic-embed-text",
			Dimension:   768,
			Timeout:     Duration(30 * time.Second),
			BatchSize:   10,
			MaxRetries:  3,
			RetryDelay:  Duration(time.Second),
			MaxInflight: 4,
		},
		Chunking: ChunkingConfig{
			Strategy:     StrategySemantic,
			Size:         512,
			Overlap:      50,
			MinChunkSize: 100,
			MaxChunkSize: 2048,
		},
		Processing: ProcessingConfig{
			SupportedExtensions: []string{".txt", ".md"},
			Workers:             4,
		},
		Search: SearchConfig{
			Metric:    MetricCosine,
			Threshold: 0.0,
			Limit:     10,
		},
		Scheduler: SchedulerConfig{
			MaxConsecutiveFailures: 5,
			PollInterval:           Duration(time.Minute),
		},
	}
}

// DefaultPath returns the default configuration file location, following XDG
// conventions.
func DefaultPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "roserade")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "roserade"
	}
	return filepath.Join(home, ".config", "roserade")
}

// Load reads configuration from the given YAML file path, applies environment
// overrides and validates the result. An empty path means DefaultPath(); a
// missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path, creating parent
// directories. Existing files are left untouched.
func WriteDefault(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROSERADE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ROSERADE_OLLAMA_HOST"); v != "" {
		cfg.Embedding.Host = v
	}
	if v := os.Getenv("ROSERADE_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("ROSERADE_EMBEDDING_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimension = n
		}
	}
}

// Validate checks every constraint the pipeline relies on. It returns a
// *ValidationError for the first violation found.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return &ValidationError{Field: "database.path", Reason: "must not be empty"}
	}

	switch c.Chunking.Strategy {
	case StrategyFixed, StrategySemantic:
	default:
		return &ValidationError{Field: "chunking.strategy", Reason: fmt.Sprintf("unknown strategy %q", c.Chunking.Strategy)}
	}
	if c.Chunking.Size <= 0 {
		return &ValidationError{Field: "chunking.size", Reason: "must be greater than 0"}
	}
	if c.Chunking.Overlap < 0 {
		return &ValidationError{Field: "chunking.overlap", Reason: "must not be negative"}
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return &ValidationError{Field: "chunking.overlap", Reason: "must be strictly less than chunking.size"}
	}
	if c.Chunking.MinChunkSize <= 0 {
		return &ValidationError{Field: "chunking.min_chunk_size", Reason: "must be greater than 0"}
	}
	if c.Chunking.MaxChunkSize < c.Chunking.MinChunkSize {
		return &ValidationError{Field: "chunking.max_chunk_size", Reason: "must be at least chunking.min_chunk_size"}
	}

	if c.Embedding.Host == "" {
		return &ValidationError{Field: "embedding.host", Reason: "must not be empty"}
	}
	if c.Embedding.Model == "" {
		return &ValidationError{Field: "embedding.model", Reason: "must not be empty"}
	}
	if c.Embedding.Dimension <= 0 {
		return &ValidationError{Field: "embedding.dimension", Reason: "must be greater than 0"}
	}
	if c.Embedding.BatchSize <= 0 {
		return &ValidationError{Field: "embedding.batch_size", Reason: "must be greater than 0"}
	}
	if c.Embedding.MaxRetries < 0 {
		return &ValidationError{Field: "embedding.max_retries", Reason: "must not be negative"}
	}
	if c.Embedding.MaxInflight <= 0 {
		return &ValidationError{Field: "embedding.max_inflight", Reason: "must be greater than 0"}
	}

	if c.Processing.Workers <= 0 {
		return &ValidationError{Field: "processing.workers", Reason: "must be greater than 0"}
	}
	if len(c.Processing.SupportedExtensions) == 0 {
		return &ValidationError{Field: "processing.supported_extensions", Reason: "must not be empty"}
	}

	switch c.Search.Metric {
	case MetricCosine, MetricEuclidean, MetricDot:
	default:
		return &ValidationError{Field: "search.metric", Reason: fmt.Sprintf("unknown metric %q", c.Search.Metric)}
	}
	if c.Search.Limit <= 0 {
		return &ValidationError{Field: "search.limit", Reason: "must be greater than 0"}
	}

	if c.Scheduler.MaxConsecutiveFailures <= 0 {
		return &ValidationError{Field: "scheduler.max_consecutive_failures", Reason: "must be greater than 0"}
	}
	return nil
}
