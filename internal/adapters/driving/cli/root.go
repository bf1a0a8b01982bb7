// Package cli is the thin command shell over the core services. It owns
// flag parsing and output formatting only; all behaviour lives behind
// the driving ports.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	configfile "github.com/custodia-labs/docdex/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docdex/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/docdex/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/docdex/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/core/services"
	"github.com/custodia-labs/docdex/internal/events"
	"github.com/custodia-labs/docdex/internal/fetcher"
	"github.com/custodia-labs/docdex/internal/logger"
	"github.com/custodia-labs/docdex/internal/pipelines"
	"github.com/custodia-labs/docdex/internal/scraper"
	"github.com/custodia-labs/docdex/internal/scraper/strategies"
)

// app bundles the wired core for command handlers.
type app struct {
	cfg     domain.Config
	store   *sqlite.Store
	manager *services.PipelineManager
	search  *services.SearchService
}

// NewRootCommand builds the docdex command tree.
func NewRootCommand() *cobra.Command {
	var (
		verbose    bool
		configPath string
		a          *app
	)

	root := &cobra.Command{
		Use:           "docdex",
		Short:         "Index and search technical documentation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger.SetVerbose(verbose)
			wired, err := wire(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			a = wired
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a != nil {
				a.manager.Stop()
				_ = a.store.Close()
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a read-only config file")

	root.AddCommand(
		newScrapeCommand(func() *app { return a }),
		newRefreshCommand(func() *app { return a }),
		newRemoveCommand(func() *app { return a }),
		newSearchCommand(func() *app { return a }),
		newListCommand(func() *app { return a }),
		newJobsCommand(func() *app { return a }),
	)
	return root
}

// wire assembles the core object graph from configuration.
func wire(ctx context.Context, configPath string) (*app, error) {
	configStore, err := configfile.NewConfigStore(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := configStore.Load()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.NewStore(cfg.App.StorePath,
		sqlite.WithReadOnly(cfg.App.ReadOnly),
		sqlite.WithMigrationRetry(cfg.DB.MigrationMaxRetries,
			time.Duration(cfg.DB.MigrationRetryDelayMs)*time.Millisecond),
	)
	if err != nil {
		return nil, err
	}

	if cfg.App.TelemetryEnabled {
		if err := ensureInstallationID(store.Path()); err != nil {
			logger.Warn("installation id: %v", err)
		}
	}

	provider, err := embeddingProvider(ctx, cfg)
	if err != nil {
		// Missing embedding credentials disable vector search; FTS
		// keeps working.
		logger.Warn("embeddings disabled: %v", err)
		provider = nil
	}
	embedder, err := services.NewEmbeddingCoordinator(provider, cfg.Embedding)
	if err != nil {
		// Dimension mismatch is a configuration error, fatal at startup.
		store.Close()
		return nil, err
	}

	httpFetcher := fetcher.NewHTTP(fetcher.HTTPConfig{
		MaxRetries: cfg.Scraper.Fetcher.MaxRetries,
		BaseDelay:  time.Duration(cfg.Scraper.Fetcher.BaseDelayMs) * time.Millisecond,
		Timeout:    time.Duration(cfg.Scraper.PageTimeoutMs) * time.Millisecond,
	})
	fileFetcher := fetcher.NewFile()

	processor := pipelines.NewProcessor(nil)
	executor := scraper.NewExecutor(
		[]driven.Fetcher{httpFetcher, fileFetcher},
		processor,
		scraper.ExecutorConfig{
			PageTimeout:     time.Duration(cfg.Scraper.PageTimeoutMs) * time.Millisecond,
			MaxDocumentSize: cfg.Scraper.Document.MaxSize,
			Splitter:        cfg.Splitter,
		},
	)

	web := strategies.NewWeb(executor, httpFetcher)
	registry := strategies.NewRegistry(
		strategies.NewGitHub(executor, web),
		strategies.NewNpm(web, httpFetcher),
		strategies.NewPyPI(web, httpFetcher),
		web,
		strategies.NewLocalFile(executor),
	)

	manager := services.NewPipelineManager(
		store, store.JobStore(), registry, events.NewBus(),
		embedder, cfg.Pipeline, cfg.Scraper,
	)
	if err := manager.Start(ctx); err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		store:   store,
		manager: manager,
		search:  services.NewSearchService(store, embedder, cfg.Search, cfg.Assembly),
	}, nil
}

// ensureInstallationID writes the per-process installation id file next
// to the database on first run. Telemetry consumers read it; nothing in
// the core does.
func ensureInstallationID(dbPath string) error {
	idPath := filepath.Join(filepath.Dir(dbPath), "installation.id")
	if _, err := os.Stat(idPath); err == nil {
		return nil
	}
	return os.WriteFile(idPath, []byte(uuid.New().String()+"\n"), 0600)
}

// embeddingProvider builds the provider named by app.embeddingModel
// (provider:model). An empty spec disables embeddings.
func embeddingProvider(ctx context.Context, cfg domain.Config) (driven.EmbeddingService, error) {
	spec := cfg.App.EmbeddingModel
	if spec == "" {
		return nil, fmt.Errorf("no embedding model configured")
	}

	providerName, model, _ := strings.Cut(spec, ":")
	timeout := time.Duration(cfg.Embedding.RequestTimeoutMs) * time.Millisecond

	switch providerName {
	case "openai":
		return openai.NewEmbeddingService(openai.Config{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   model,
			Timeout: timeout,
		})
	case "ollama":
		initCtx, cancel := context.WithTimeout(ctx,
			time.Duration(cfg.Embedding.InitTimeoutMs)*time.Millisecond)
		defer cancel()
		return ollama.NewEmbeddingService(initCtx, ollama.Config{
			BaseURL: os.Getenv("OLLAMA_HOST"),
			Model:   model,
			Timeout: timeout,
		})
	default:
		return nil, fmt.Errorf("%w: embedding provider %q", domain.ErrUnsupportedType, providerName)
	}
}
