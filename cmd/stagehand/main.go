// Command stagehand runs the HTTP API and webhook ingress described in
// section 6 of the specification: business/stage/template administration,
// inbound messages, and platform webhooks, all driving the prepare ->
// select -> extract -> generate pipeline in pkg/orchestrator.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stagehand-run/stagehand/pkg/api"
	"github.com/stagehand-run/stagehand/pkg/auth"
	"github.com/stagehand-run/stagehand/pkg/config"
	"github.com/stagehand-run/stagehand/pkg/llm"
	"github.com/stagehand-run/stagehand/pkg/orchestrator"
	"github.com/stagehand-run/stagehand/pkg/stage"
	"github.com/stagehand-run/stagehand/pkg/store"
	"github.com/stagehand-run/stagehand/pkg/template"
	"github.com/stagehand-run/stagehand/pkg/version"
	"github.com/stagehand-run/stagehand/pkg/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	configureLogging(cfg.LogLevel)

	slog.Info("starting stagehand", "version", version.Full(), "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("error closing store", "error", err)
		}
	}()
	slog.Info("connected to database and applied migrations")

	llmClient := newLLMClient(cfg)
	retryingClient := llm.NewRetryingClient(llmClient, cfg.LLMTimeout, cfg.LLMMaxAttempts)

	registry := template.NewDefaultRegistry(st)
	engine := template.NewEngine(registry)
	machine := stage.New(st)

	orch := orchestrator.New(st, engine, machine, retryingClient, orchestrator.Config{
		LeaseTTL:           cfg.LeaseTTL,
		CircuitBreakerSize: 5,
		HolderID:           hostname() + ":" + version.GitCommit,
	})

	adminLimiter := auth.NewRateLimiter(cfg.RateLimitAdminWritesPerMinute, time.Minute)
	messageLimiter := auth.NewRateLimiter(cfg.RateLimitMessagePerMinute, time.Minute)
	globalLimiter := auth.NewRateLimiter(cfg.RateLimitGlobalPerDay, 24*time.Hour)

	var adapters []webhook.Adapter
	if cfg.PlatformFacebookSecret != "" {
		adapters = append(adapters, webhook.NewMessengerAdapter(
			cfg.PlatformFacebookSecret,
			cfg.PlatformFacebookVerifyToken,
			cfg.PlatformFacebookPageToken,
		))
	}
	if cfg.PlatformWhatsAppSecret != "" {
		adapters = append(adapters, webhook.NewWhatsAppAdapter(
			cfg.PlatformWhatsAppSecret,
			cfg.PlatformWhatsAppVerifyToken,
			cfg.PlatformWhatsAppAccessToken,
			cfg.PlatformWhatsAppPhoneNumberID,
		))
	}
	webhookHandler := webhook.NewHandler(st, orch, adapters...)

	server := api.NewServer(st, orch, webhookHandler, cfg.MasterAPIKey, adminLimiter, messageLimiter, globalLimiter)
	if err := server.ValidateWiring(); err != nil {
		slog.Error("server wiring incomplete", "error", err)
		os.Exit(1)
	}

	go runLeaseSweeper(ctx, st, cfg.LeaseSweepInterval)

	serverErrs := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", ":"+cfg.Port)
		if err := server.Start(":" + cfg.Port); err != nil {
			serverErrs <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serverErrs:
		slog.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during graceful shutdown", "error", err)
	}
	slog.Info("stopped")
}

// newLLMClient selects the provider client per cfg.LLMProvider. Config.Validate
// already rejects any other value, so the default branch is unreachable.
func newLLMClient(cfg config.Config) llm.Client {
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		return llm.NewAnthropicClient(cfg.LLMAPIKey, cfg.LLMModel)
	default:
		return llm.NewOpenAIClient(cfg.LLMAPIKey, cfg.LLMModel)
	}
}

// runLeaseSweeper periodically reclaims conversation leases abandoned by a
// crashed holder, the way the teacher's queue.WorkerPool runs orphan
// detection on a ticker alongside its main request-serving loop.
func runLeaseSweeper(ctx context.Context, st *store.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.ReclaimOrphanedLeases(ctx)
			if err != nil {
				slog.Error("lease sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("reclaimed orphaned leases", "count", n)
			}
		}
	}
}

func configureLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "stagehand"
	}
	return h
}
