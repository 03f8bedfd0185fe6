package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hanif/warden/internal/config"
	"github.com/hanif/warden/internal/logger"
	"github.com/hanif/warden/internal/observability"
	"github.com/hanif/warden/internal/settings"
	"github.com/hanif/warden/pkg/backend"
	"github.com/hanif/warden/pkg/hub"
	"github.com/hanif/warden/pkg/retrieval"
	"github.com/hanif/warden/pkg/toolserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the warden session daemon",
	Long: `Run the session daemon in the foreground. The daemon owns the session
registries, the eviction sweepers, and the shutdown coordinator, and exits
after all live sessions have been drained.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// applyLogLevelOverride lets an explicit --log-level win over the config
// file. The flag carries a default, so its value alone cannot distinguish
// "passed" from "omitted".
func applyLogLevelOverride(cfg *config.Config) {
	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyLogLevelOverride(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		Console:    cfg.Logging.Console,
		Pretty:     cfg.Logging.Pretty,
		MaxSizeMB:  cfg.Logging.MaxSize,
		MaxAgeDays: cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Redact:     cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()
	zl := log.GetZerolog()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	store, err := settings.Open(filepath.Join(cfg.DataDir, "settings.db"), zl)
	if err != nil {
		return fmt.Errorf("failed to open settings store: %w", err)
	}
	defer store.Close()

	if cfg.Catalog.Watch {
		watcher := settings.NewCatalogWatcher(store, cfg.Catalog.File, zl)
		if err := watcher.Start(ctx); err != nil {
			log.Warn().Err(err).Str("file", cfg.Catalog.File).Msg("Catalog watcher not started")
		} else {
			defer watcher.Stop()
		}
	}

	audit, err := observability.NewAuditLogger(cfg.Audit.File)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer audit.Close()

	var lookup retrieval.Lookup
	if cfg.Retrieval.Enabled {
		embedder := retrieval.NewOpenAIEmbedder(cfg.APIKey("openai"), cfg.Retrieval.EmbeddingModel)
		rstore, err := retrieval.NewStore(cfg.Retrieval.Database, embedder, zl)
		if err != nil {
			return fmt.Errorf("failed to open retrieval store: %w", err)
		}
		defer rstore.Close()
		lookup = rstore
	}

	deps := hub.Deps{
		Binder: toolserver.NewBinder(),
		Backends: &backend.APIFactory{
			AnthropicKey: cfg.APIKey("anthropic"),
			OpenAIKey:    cfg.APIKey("openai"),
		},
		Store:     store,
		Retrieval: lookup,
		Audit:     audit,
		Logger:    zl,
	}

	cleanupTimeout := time.Duration(cfg.Sessions.CleanupTimeoutSeconds) * time.Second
	logDir := filepath.Join(cfg.DataDir, "logs")

	interactive, err := hub.NewRegistry(hub.Options{
		Type:           "interactive",
		IdleTimeout:    cfg.Sessions.Interactive.IdleTimeout(),
		CleanupTimeout: cleanupTimeout,
		Restorable:     cfg.Sessions.Interactive.Restorable,
		MaxMessages:    cfg.Sessions.MaxMessages,
		LogDir:         logDir,
		Preamble:       cfg.Sessions.Preamble,
	}, deps)
	if err != nil {
		return fmt.Errorf("failed to create interactive registry: %w", err)
	}

	embedded, err := hub.NewRegistry(hub.Options{
		Type:           "embedded",
		IdleTimeout:    cfg.Sessions.Embedded.IdleTimeout(),
		CleanupTimeout: cleanupTimeout,
		Restorable:     cfg.Sessions.Embedded.Restorable,
		MaxMessages:    cfg.Sessions.MaxMessages,
		LogDir:         logDir,
		Preamble:       cfg.Sessions.Preamble,
	}, deps)
	if err != nil {
		return fmt.Errorf("failed to create embedded registry: %w", err)
	}

	for _, registry := range []*hub.Registry{interactive, embedded} {
		sweeper := hub.NewSweeper(registry)
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("failed to start sweeper for %s registry: %w", registry.Type(), err)
		}
		defer sweeper.Stop()
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
		defer server.Close()
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics endpoint enabled")
	}

	coordinator := hub.NewCoordinator(zl, interactive, embedded)
	done := coordinator.HandleSignals(ctx)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Dur("interactive_idle", cfg.Sessions.Interactive.IdleTimeout()).
		Dur("embedded_idle", cfg.Sessions.Embedded.IdleTimeout()).
		Msg("Warden daemon started")

	<-done
	log.Info().Msg("Warden daemon stopped")

	return nil
}
