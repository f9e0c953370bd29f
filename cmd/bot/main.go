package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"mirror_bot/internal/bot"
	"mirror_bot/internal/cache"
	"mirror_bot/internal/config"
	"mirror_bot/internal/route"
	"mirror_bot/internal/storage"
	"mirror_bot/internal/translate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	refData := cache.New(store, log)
	if err := refData.RefreshAll(ctx); err != nil {
		log.Error("warm cache", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	translator := translate.NewService(
		translate.NewDeepL(httpClient, cfg.DeepLKey, cfg.TargetLang),
		translate.NewGoogle(httpClient, cfg.TargetLang),
		log,
	)
	router := route.NewRouter(&http.Client{Timeout: 15 * time.Second}, refData, cfg.OpenRouterKey, log)

	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		log.Error("list accounts", "error", err)
		os.Exit(1)
	}
	if len(accounts) == 0 {
		log.Error("no accounts configured")
		os.Exit(1)
	}

	log.Info("starting sessions", "accounts", len(accounts))

	var wg sync.WaitGroup
	for _, account := range accounts {
		sourceIDs, err := store.ListSourceIDs(ctx, account.ID)
		if err != nil {
			log.Error("list sources", "account", account.Name, "error", err)
			os.Exit(1)
		}

		session, err := bot.New(account.Token, account.Name, sourceIDs, store, refData,
			translator, router, cfg, log)
		if err != nil {
			log.Error("create session", "account", account.Name, "error", err)
			os.Exit(1)
		}

		account := account
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("session started", "account", account.Name, "sources", len(sourceIDs))
			session.Run(ctx)
		}()
	}

	wg.Wait()
	log.Info("all sessions stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
