package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/zhouzirui/emotion-dashboard/internal/config"
	"github.com/zhouzirui/emotion-dashboard/internal/handler"
	"github.com/zhouzirui/emotion-dashboard/internal/service/capture"
	"github.com/zhouzirui/emotion-dashboard/internal/service/chat"
	"github.com/zhouzirui/emotion-dashboard/internal/service/conversation"
	emotionservice "github.com/zhouzirui/emotion-dashboard/internal/service/emotion"
	"github.com/zhouzirui/emotion-dashboard/internal/service/events"
	"github.com/zhouzirui/emotion-dashboard/internal/service/theme"
	"github.com/zhouzirui/emotion-dashboard/internal/storage/cookie"
	"github.com/zhouzirui/emotion-dashboard/internal/storage/local"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: "15:04:05",
	}))
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("dashboard stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	for _, path := range []string{cfg.Storage.CookieFile, cfg.Storage.SettingsFile} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	jar, err := cookie.Open(cfg.Storage.CookieFile, cfg.Server.Origin)
	if err != nil {
		return err
	}

	settings, err := local.Open(cfg.Storage.SettingsFile)
	if err != nil {
		return err
	}
	if cfg.Chat.SeedToken != "" && settings.Token() == "" {
		if err := settings.SetToken(cfg.Chat.SeedToken); err != nil {
			return err
		}
		logger.Info("bearer token seeded from environment")
	}

	hub := events.NewHub(32)

	store := conversation.NewStore(jar, cfg.Storage.HistoryTTL, hub, logger)
	if err := store.Load(); err != nil {
		if !errors.Is(err, conversation.ErrCorruptHistory) {
			return err
		}
		logger.Warn("discarding unreadable chat history", "err", err)
	}

	client := &http.Client{Jar: jar.HTTPJar(), Timeout: cfg.Backend.Timeout}

	emotionSvc := emotionservice.NewService(emotionservice.Config{
		BaseURL:    cfg.Backend.BaseURL,
		HTTPClient: client,
		Logger:     logger,
	})

	source, err := capture.ParseSource(cfg.Capture.Source, cfg.Capture.InputFormat)
	if err != nil {
		return err
	}
	capturer := capture.NewCapturer(source, emotionSvc, settings, capture.Options{
		Frames:    cfg.Capture.Frames,
		Interval:  cfg.Capture.Interval,
		Publisher: hub,
		Logger:    logger,
	})
	go func() {
		if err := capturer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("capturer stopped", "err", err)
		}
	}()

	workflow := chat.NewService(capturer, emotionSvc, chat.NewDispatcher(cfg.Backend.BaseURL, client), settings, store, chat.Options{
		SettleDelay:     cfg.Capture.SettleDelay,
		TypingCooldown:  cfg.Capture.TypingCooldown,
		TimestampLayout: cfg.Chat.TimestampLayout,
		TextFallback:    cfg.Chat.TextFallback,
		Publisher:       hub,
		Logger:          logger,
	})

	router := handler.NewRouter(handler.Services{
		Workflow:     workflow,
		Conversation: store,
		Capturer:     capturer,
		Emotion:      emotionSvc,
		Theme:        theme.NewService(settings, hub, logger),
		Settings:     settings,
		Hub:          hub,
		Origin:       cfg.Server.Origin,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("emotion dashboard listening",
		"addr", cfg.Server.Addr,
		"backend", cfg.Backend.BaseURL.String(),
		"camera", cfg.Capture.Source,
		"history_entries", store.Len(),
	)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
