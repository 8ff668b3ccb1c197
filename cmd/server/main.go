package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"gwi.com/nova-chat/internal/api"
	"gwi.com/nova-chat/internal/auth"
	"gwi.com/nova-chat/internal/config"
	"gwi.com/nova-chat/internal/core"
	"gwi.com/nova-chat/internal/logging"
	"gwi.com/nova-chat/internal/storage"
	"gwi.com/nova-chat/internal/store"
)

func main() {
	// Command line flag for session cleanup
	pruneFlag := flag.Bool("prune-sessions", false, "Remove expired sessions and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, logger, *pruneFlag); err != nil {
		logger.Fatal().Err(err).Msg("Server stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger, pruneOnly bool) error {
	ctx := context.Background()

	backend, err := newBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store backend: %w", err)
	}
	stores := store.New(backend,
		store.WithLogger(logger),
		store.WithStrict(cfg.StoreStrict),
		store.WithSessionTTL(cfg.SessionTTL),
		store.WithModels(cfg.DefaultModel, cfg.SupportedModels),
		store.WithCredentialPolicy(store.CredentialPolicy{
			UsernameMinLength: cfg.UsernameMinLength,
			PasswordMinLength: cfg.PasswordMinLength,
			RequireMixed:      cfg.PasswordRequireSymbols,
		}),
	)
	defer stores.Close()

	// Handle session cleanup if flag is set
	if pruneOnly {
		n, err := stores.Sessions.PruneExpired(ctx)
		if err != nil {
			return fmt.Errorf("session cleanup failed: %w", err)
		}
		logger.Info().Int("removed", n).Msg("Expired sessions removed")
		return nil
	}

	httpClient := &http.Client{Timeout: cfg.RemoteTimeout}

	var openai *core.OpenAIService
	var fallback core.CompletionService
	if cfg.OpenAIAPIKey != "" {
		openai = core.NewOpenAIService(cfg.OpenAIAPIKey,
			core.WithBaseURL(cfg.OpenAIBaseURL),
			core.WithHTTPClient(httpClient),
			core.WithSpeechModels(cfg.TTSModel, cfg.STTModel),
			core.WithOpenAILogger(logger.With().Str("component", "openai").Logger()),
		)
		fallback = openai
	}
	router := core.NewCompletionRouter(fallback)

	if cfg.GeminiAPIKey != "" {
		gemini, err := core.NewGeminiService(ctx, cfg.GeminiAPIKey, logger.With().Str("component", "gemini").Logger())
		if err != nil {
			return err
		}
		defer gemini.Close()
		router.Route("gemini-", gemini)
	}

	chatOpts := []core.ChatOption{
		core.WithChatLogger(logger.With().Str("component", "chat").Logger()),
		core.WithHistoryWindow(cfg.HistoryWindow),
		core.WithMemoryLimit(cfg.MemoryLimit),
	}
	if openai != nil {
		audio, err := newAudioStorage(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize audio storage: %w", err)
		}
		chatOpts = append(chatOpts, core.WithSpeech(openai, audio))
	}

	chatService := core.NewChatService(stores, router, chatOpts...)
	accountService := core.NewAccountService(stores, auth.NewTokenSigner(cfg.JWTSecret), logger.With().Str("component", "accounts").Logger())

	apiHandler := api.NewAPIHandler(accountService, chatService)
	handler := api.NewRouter(apiHandler, logger)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RemoteTimeout + 30*time.Second, // completions and speech run inside the request
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", serverAddr).Str("store", cfg.StoreBackend).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
	case <-quit:
	}
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info().Msg("Server exiting gracefully")
	return nil
}

func newBackend(cfg *config.Config) (store.Backend, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		return store.NewSQLiteBackend(cfg.DatabaseURL)
	default:
		return store.NewFileBackend(cfg.DataDir)
	}
}

func newAudioStorage(ctx context.Context, cfg *config.Config) (*storage.Storage, error) {
	var backend storage.ObjectStorage
	switch cfg.AudioBackend {
	case "minio":
		m, err := storage.NewMinioStorage(cfg.Minio)
		if err != nil {
			return nil, err
		}
		backend = m
	default:
		d, err := storage.NewDiskStorage(cfg.AudioDir, "")
		if err != nil {
			return nil, err
		}
		backend = d
	}

	s := storage.NewStorage(backend)
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
