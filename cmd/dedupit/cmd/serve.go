package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snowpilotorg/dedupit/internal/api"
	"github.com/snowpilotorg/dedupit/internal/config"
	"github.com/snowpilotorg/dedupit/internal/dedupe"
	"github.com/snowpilotorg/dedupit/internal/embed"
	"github.com/snowpilotorg/dedupit/internal/llm"
	"github.com/snowpilotorg/dedupit/internal/logging"
	"github.com/snowpilotorg/dedupit/internal/merge"
	"github.com/snowpilotorg/dedupit/internal/oracle"
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var configPath string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dedupe HTTP service",
		Long: `Start the HTTP service exposing POST /dedupe and GET /health.

Configuration is loaded from the config file (if present), then environment
overrides (DEDUPIT_* and PORT), then flags.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "dedupit.yaml", "Path to config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides config)")

	return cmd
}

// runServe wires the service and serves until interrupted.
func runServe(ctx context.Context, cfg *config.Config) error {
	cleanup, err := logging.SetupDefault(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.FilePath,
		WriteToStderr: true,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()

	// The embedding model is the expensive load; initialize the shared
	// instance up front so the first request does not pay for it.
	embedder, err := embed.Shared(ctx, embed.FactoryConfig{
		Provider:   embed.ParseProvider(cfg.Embeddings.Provider),
		Model:      cfg.Embeddings.Model,
		OllamaHost: cfg.Embeddings.OllamaHost,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		CacheSize:  cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return fmt.Errorf("initialize embedder: %w", err)
	}

	messages := llm.ClientMessages()
	comparator := oracle.NewComparator(messages, oracle.Config{
		Model: cfg.Oracle.Model,
		Retry: llm.RetryConfig{
			MaxRetries:   cfg.Oracle.MaxRetries,
			InitialDelay: cfg.Oracle.InitialDelay(),
		},
	})
	merger := merge.NewMerger(messages, merge.Config{
		Model: cfg.Merger.Model,
		Retry: llm.RetryConfig{
			MaxRetries:   cfg.Merger.MaxRetries,
			InitialDelay: cfg.Merger.InitialDelay(),
		},
	})

	service := dedupe.NewService(embedder, comparator, merger, dedupe.Options{
		MaxNeighbors:     cfg.Grouping.MaxNeighbors,
		CompareBatchSize: cfg.Grouping.CompareBatchSize,
	})

	router := api.NewRouter(
		api.NewDedupeHandler(service, cfg.Server.MaxRecords, cfg.Server.MaxBodyBytes),
		api.NewHealthHandler(cfg.Server.Port),
	)
	server := api.NewServer(cfg.Server.Port, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
