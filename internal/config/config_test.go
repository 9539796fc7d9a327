package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate_Table(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "overlap equal to size",
			mutate: func(c *Config) { c.Chunking.Overlap = c.Chunking.Size },
			field:  "chunking.overlap",
		},
		{
			name:   "overlap greater than size",
			mutate: func(c *Config) { c.Chunking.Overlap = c.Chunking.Size + 1 },
			field:  "chunking.overlap",
		},
		{
			name:   "unknown strategy",
			mutate: func(c *Config) { c.Chunking.Strategy = "magic" },
			field:  "chunking.strategy",
		},
		{
			name:   "unknown metric",
			mutate: func(c *Config) { c.Search.Metric = "manhattan" },
			field:  "search.metric",
		},
		{
			name:   "zero dimension",
			mutate: func(c *Config) { c.Embedding.Dimension = 0 },
			field:  "embedding.dimension",
		},
		{
			name:   "zero batch size",
			mutate: func(c *Config) { c.Embedding.BatchSize = 0 },
			field:  "embedding.batch_size",
		},
		{
			name:   "zero workers",
			mutate: func(c *Config) { c.Processing.Workers = 0 },
			field:  "processing.workers",
		},
		{
			name:   "no supported extensions",
			mutate: func(c *Config) { c.Processing.SupportedExtensions = nil },
			field:  "processing.supported_extensions",
		},
		{
			name:   "max below min chunk size",
			mutate: func(c *Config) { c.Chunking.MaxChunkSize = c.Chunking.MinChunkSize - 1 },
			field:  "chunking.max_chunk_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, StrategySemantic, cfg.Chunking.Strategy)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
chunking:
  strategy: fixed
  size: 256
  overlap: 32
  min_chunk_size: 50
  max_chunk_size: 1024
embedding:
  dimension: 384
  timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StrategyFixed, cfg.Chunking.Strategy)
	assert.Equal(t, 256, cfg.Chunking.Size)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, Duration(5*time.Second), cfg.Embedding.Timeout)
	// Untouched sections keep defaults.
	assert.Equal(t, MetricCosine, cfg.Search.Metric)
}

func TestLoad_InvalidFileFailsAtStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
chunking:
  strategy: fixed
  size: 100
  overlap: 100
  min_chunk_size: 10
  max_chunk_size: 500
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestLoad_IntegerNanosecondDurations(t *testing.T) {
	// Files written before durations were serialized as strings carry
	// plain nanosecond integers.
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
embedding:
  timeout: 30000000000
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Duration(30*time.Second), cfg.Embedding.Timeout)
}

func TestWriteDefault_CreatesAndPreserves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	// Second call must not clobber an existing file.
	require.NoError(t, os.WriteFile(path, []byte("chunking:\n  strategy: fixed\n"), 0o644))
	require.NoError(t, WriteDefault(path))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fixed")
}

func TestWriteDefault_DurationsAreHumanReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timeout: 30s")
	assert.Contains(t, string(data), "retry_delay: 1s")
	assert.Contains(t, string(data), "poll_interval: 1m0s")

	// The generated file loads back to the same values.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Duration(30*time.Second), cfg.Embedding.Timeout)
	assert.Equal(t, Duration(time.Minute), cfg.Scheduler.PollInterval)
}
