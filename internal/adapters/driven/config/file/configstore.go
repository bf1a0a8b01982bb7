// Package file loads docdex configuration: built-in defaults overlaid by
// a TOML config file, overlaid by DOCS_MCP_* environment variables. CLI
// flags are applied last by the command shell.
package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

// envPrefix is the environment variable namespace.
const envPrefix = "DOCS_MCP_"

// ConfigStore resolves the layered configuration. Only the default
// config path is writable; explicitly given files are read-only.
type ConfigStore struct {
	filePath string
	writable bool
}

// NewConfigStore creates a store for the default path
// (~/.docdex/config.toml) when configPath is empty, or a read-only store
// for an explicit file.
func NewConfigStore(configPath string) (*ConfigStore, error) {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir := filepath.Join(home, ".docdex")
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}
		return &ConfigStore{filePath: filepath.Join(dir, "config.toml"), writable: true}, nil
	}
	return &ConfigStore{filePath: configPath, writable: false}, nil
}

// Path returns the config file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// Load resolves the configuration: defaults, then the file, then the
// environment.
func (s *ConfigStore) Load() (domain.Config, error) {
	cfg := domain.DefaultConfig()

	data, err := os.ReadFile(s.filePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No file is fine; defaults plus environment apply.
	case err != nil:
		return cfg, fmt.Errorf("reading config file: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", s.filePath, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Save writes the configuration back to the default path. Explicit
// config files are read-only.
func (s *ConfigStore) Save(cfg domain.Config) error {
	if !s.writable {
		return fmt.Errorf("%w: config file %s is read-only", domain.ErrReadOnly, s.filePath)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// EnvName converts a dotted camelCase config key into its environment
// variable name: app.storePath -> DOCS_MCP_APP_STORE_PATH.
func EnvName(key string) string {
	parts := strings.Split(key, ".")
	for i, part := range parts {
		parts[i] = camelToUpperSnake(part)
	}
	return envPrefix + strings.Join(parts, "_")
}

// camelToUpperSnake converts maxCacheItemSizeBytes to
// MAX_CACHE_ITEM_SIZE_BYTES.
func camelToUpperSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// applyEnv overlays DOCS_MCP_* variables onto the configuration.
// Unparseable values are ignored; the lower layer wins.
func applyEnv(cfg *domain.Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvName(key)); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvName(key)); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flt := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(EnvName(key)); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(EnvName(key)); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("app.storePath", &cfg.App.StorePath)
	boolean("app.telemetryEnabled", &cfg.App.TelemetryEnabled)
	boolean("app.readOnly", &cfg.App.ReadOnly)
	str("app.embeddingModel", &cfg.App.EmbeddingModel)

	num("scraper.maxPages", &cfg.Scraper.MaxPages)
	num("scraper.maxDepth", &cfg.Scraper.MaxDepth)
	num("scraper.maxConcurrency", &cfg.Scraper.MaxConcurrency)
	num("scraper.pageTimeoutMs", &cfg.Scraper.PageTimeoutMs)
	num("scraper.browserTimeoutMs", &cfg.Scraper.BrowserTimeoutMs)
	num("scraper.fetcher.maxRetries", &cfg.Scraper.Fetcher.MaxRetries)
	num("scraper.fetcher.baseDelayMs", &cfg.Scraper.Fetcher.BaseDelayMs)
	num("scraper.fetcher.maxCacheItems", &cfg.Scraper.Fetcher.MaxCacheItems)
	num("scraper.fetcher.maxCacheItemSizeBytes", &cfg.Scraper.Fetcher.MaxCacheItemSizeBytes)
	num("scraper.document.maxSize", &cfg.Scraper.Document.MaxSize)

	num("splitter.minChunkSize", &cfg.Splitter.MinChunkSize)
	num("splitter.preferredChunkSize", &cfg.Splitter.PreferredChunkSize)
	num("splitter.maxChunkSize", &cfg.Splitter.MaxChunkSize)

	num("embeddings.batchSize", &cfg.Embedding.BatchSize)
	num("embeddings.batchChars", &cfg.Embedding.BatchChars)
	num("embeddings.vectorDimension", &cfg.Embedding.VectorDimension)
	num("embeddings.initTimeoutMs", &cfg.Embedding.InitTimeoutMs)
	num("embeddings.requestTimeoutMs", &cfg.Embedding.RequestTimeoutMs)

	flt("search.weightVec", &cfg.Search.WeightVec)
	flt("search.weightFts", &cfg.Search.WeightFts)
	num("search.overfetchFactor", &cfg.Search.OverfetchFactor)
	num("search.vectorMultiplier", &cfg.Search.VectorMultiplier)

	num("assembly.maxChunkDistance", &cfg.Assembly.MaxChunkDistance)
	num("assembly.maxParentChainDepth", &cfg.Assembly.MaxParentChainDepth)
	num("assembly.childLimit", &cfg.Assembly.ChildLimit)
	num("assembly.precedingSiblingsLimit", &cfg.Assembly.PrecedingSiblingsLimit)
	num("assembly.subsequentSiblingsLimit", &cfg.Assembly.SubsequentSiblingsLimit)

	num("db.migrationMaxRetries", &cfg.DB.MigrationMaxRetries)
	num("db.migrationRetryDelayMs", &cfg.DB.MigrationRetryDelayMs)

	num("pipeline.concurrency", &cfg.Pipeline.Concurrency)
	boolean("pipeline.resumeInterrupted", &cfg.Pipeline.ResumeInterrupted)
}
