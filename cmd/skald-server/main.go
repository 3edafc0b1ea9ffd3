// Command skald-server runs the chat-answering agent as an HTTP service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"skald/internal/config"
	"skald/internal/llm"
	"skald/internal/logging"
	"skald/internal/observability"
	"skald/internal/protected"
	serverapp "skald/internal/server/app"
	serverhttp "skald/internal/server/http"
	"skald/internal/tools"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "skald-server",
		Short:         "Chat-answering agent server",
		Long:          "skald-server answers member questions over their document knowledge base, streaming progress events over SSE.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to skald-config.yaml")
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "skald-server 0.1.0")
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	applyLogLevel(cfg.LogLevel)
	logger := logging.NewComponentLogger("Main")
	logger.Info("Starting skald server...")

	metrics, err := observability.NewMetricsCollector(cfg.Metrics)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	tracer, err := observability.NewTracerProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Tracer shutdown: %v", err)
		}
	}()

	backend := protected.NewClient(protected.Config{
		BaseURL:   cfg.Protected.BaseURL,
		AuthToken: cfg.Protected.AuthToken,
		Timeout:   cfg.Protected.Timeout,
	})

	models, err := llm.NewRegistry(buildRegistryConfig(cfg.Models))
	if err != nil {
		return fmt.Errorf("init model registry: %w", err)
	}

	broadcaster := serverapp.NewEventBroadcaster()
	listener := serverapp.NewMultiEventListener(
		broadcaster,
		serverapp.NewMetricsEventListener(metrics),
	)

	chat := serverapp.NewChatService(
		backend,
		models,
		tools.NewRegistry(),
		listener,
		metrics,
		tracer,
		serverapp.ChatServiceConfig{
			SystemPrompt:     cfg.Chat.SystemPrompt,
			MaxTurns:         cfg.Chat.MaxTurns,
			HistoryLimit:     cfg.Chat.HistoryLimit,
			HistoryMaxTokens: cfg.Chat.HistoryMaxTokens,
		},
	)

	server := serverhttp.NewServer(cfg.Server, chat, broadcaster, metrics)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	case sig := <-quit:
		logger.Info("Received %s, shutting down...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func buildRegistryConfig(cfg config.ModelsConfig) llm.RegistryConfig {
	providers := make(map[string]llm.ProviderConfig, len(cfg.Providers))
	for name, provider := range cfg.Providers {
		providers[name] = llm.ProviderConfig{
			BaseURL:     provider.BaseURL,
			APIKey:      provider.APIKey,
			Temperature: provider.Temperature,
			MaxTokens:   provider.MaxTokens,
			Timeout:     provider.Timeout,
		}
	}
	return llm.RegistryConfig{
		Providers:       providers,
		Models:          cfg.Models,
		DefaultProvider: cfg.DefaultProvider,
		DefaultModel:    cfg.DefaultModel,
	}
}

func applyLogLevel(level string) {
	switch level {
	case "debug":
		logging.SetLevel(logging.DEBUG)
	case "warn":
		logging.SetLevel(logging.WARN)
	case "error":
		logging.SetLevel(logging.ERROR)
	default:
		logging.SetLevel(logging.INFO)
	}
}
