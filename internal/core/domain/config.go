package domain

// Config is the fully merged runtime configuration. Precedence is
// defaults, then config file, then environment, then CLI flags.
type Config struct {
	App       AppConfig       `toml:"app"`
	Scraper   ScraperConfig   `toml:"scraper"`
	Splitter  SplitterConfig  `toml:"splitter"`
	Embedding EmbeddingConfig `toml:"embeddings"`
	Search    SearchConfig    `toml:"search"`
	Assembly  AssemblyConfig  `toml:"assembly"`
	DB        DBConfig        `toml:"db"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	// StorePath is the data directory holding the database file.
	StorePath string `toml:"storePath"`

	// TelemetryEnabled gates the installation-id file and event hooks.
	TelemetryEnabled bool `toml:"telemetryEnabled"`

	// ReadOnly forbids ingest operations.
	ReadOnly bool `toml:"readOnly"`

	// EmbeddingModel is a provider:model spec, e.g. "openai:text-embedding-3-small".
	EmbeddingModel string `toml:"embeddingModel"`
}

// ScraperConfig bounds crawl behaviour.
type ScraperConfig struct {
	MaxPages         int           `toml:"maxPages"`
	MaxDepth         int           `toml:"maxDepth"`
	MaxConcurrency   int           `toml:"maxConcurrency"`
	PageTimeoutMs    int           `toml:"pageTimeoutMs"`
	BrowserTimeoutMs int           `toml:"browserTimeoutMs"`
	Fetcher          FetcherConfig `toml:"fetcher"`
	Document         DocumentLimit `toml:"document"`
}

// FetcherConfig tunes HTTP retry and the browser resource cache.
type FetcherConfig struct {
	MaxRetries            int `toml:"maxRetries"`
	BaseDelayMs           int `toml:"baseDelayMs"`
	MaxCacheItems         int `toml:"maxCacheItems"`
	MaxCacheItemSizeBytes int `toml:"maxCacheItemSizeBytes"`
}

// DocumentLimit bounds single-document size.
type DocumentLimit struct {
	MaxSize int `toml:"maxSize"`
}

// SplitterConfig holds the character-based chunk size targets.
type SplitterConfig struct {
	MinChunkSize       int `toml:"minChunkSize"`
	PreferredChunkSize int `toml:"preferredChunkSize"`
	MaxChunkSize       int `toml:"maxChunkSize"`
}

// EmbeddingConfig tunes batching and the database vector dimension.
type EmbeddingConfig struct {
	BatchSize        int `toml:"batchSize"`
	BatchChars       int `toml:"batchChars"`
	VectorDimension  int `toml:"vectorDimension"`
	InitTimeoutMs    int `toml:"initTimeoutMs"`
	RequestTimeoutMs int `toml:"requestTimeoutMs"`
}

// SearchConfig tunes hybrid retrieval.
type SearchConfig struct {
	WeightVec        float64 `toml:"weightVec"`
	WeightFts        float64 `toml:"weightFts"`
	OverfetchFactor  int     `toml:"overfetchFactor"`
	VectorMultiplier int     `toml:"vectorMultiplier"`
}

// AssemblyConfig bounds neighborhood expansion.
type AssemblyConfig struct {
	MaxChunkDistance        int `toml:"maxChunkDistance"`
	MaxParentChainDepth     int `toml:"maxParentChainDepth"`
	ChildLimit              int `toml:"childLimit"`
	PrecedingSiblingsLimit  int `toml:"precedingSiblingsLimit"`
	SubsequentSiblingsLimit int `toml:"subsequentSiblingsLimit"`
}

// DBConfig tunes migration retry.
type DBConfig struct {
	MigrationMaxRetries   int `toml:"migrationMaxRetries"`
	MigrationRetryDelayMs int `toml:"migrationRetryDelayMs"`
}

// PipelineConfig tunes the job scheduler.
type PipelineConfig struct {
	// Concurrency is the number of jobs run at once. Default 1.
	Concurrency int `toml:"concurrency"`

	// ResumeInterrupted re-queues scrapes left running by a crash.
	// When false (default), they surface as failed for user action;
	// interrupted refreshes always re-queue.
	ResumeInterrupted bool `toml:"resumeInterrupted"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		App: AppConfig{
			TelemetryEnabled: true,
		},
		Scraper: ScraperConfig{
			MaxPages:         1000,
			MaxDepth:         3,
			MaxConcurrency:   3,
			PageTimeoutMs:    30_000,
			BrowserTimeoutMs: 60_000,
			Fetcher: FetcherConfig{
				MaxRetries:            6,
				BaseDelayMs:           1000,
				MaxCacheItems:         1000,
				MaxCacheItemSizeBytes: 512 * 1024,
			},
			Document: DocumentLimit{
				MaxSize: 10 * 1024 * 1024,
			},
		},
		Splitter: SplitterConfig{
			MinChunkSize:       500,
			PreferredChunkSize: 1500,
			MaxChunkSize:       5000,
		},
		Embedding: EmbeddingConfig{
			BatchSize:        100,
			BatchChars:       50_000,
			VectorDimension:  1536,
			InitTimeoutMs:    5000,
			RequestTimeoutMs: 60_000,
		},
		Search: SearchConfig{
			WeightVec:        1.0,
			WeightFts:        1.0,
			OverfetchFactor:  2,
			VectorMultiplier: 5,
		},
		Assembly: AssemblyConfig{
			MaxChunkDistance:        3,
			MaxParentChainDepth:     4,
			ChildLimit:              3,
			PrecedingSiblingsLimit:  1,
			SubsequentSiblingsLimit: 2,
		},
		DB: DBConfig{
			MigrationMaxRetries:   5,
			MigrationRetryDelayMs: 300,
		},
		Pipeline: PipelineConfig{
			Concurrency: 1,
		},
	}
}
