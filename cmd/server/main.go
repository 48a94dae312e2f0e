package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memkeep/memkeep/internal/api"
	"github.com/memkeep/memkeep/internal/assemble"
	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/dedup"
	"github.com/memkeep/memkeep/internal/embedding"
	"github.com/memkeep/memkeep/internal/extract"
	"github.com/memkeep/memkeep/internal/index"
	"github.com/memkeep/memkeep/internal/memory"
	"github.com/memkeep/memkeep/internal/quality"
	"github.com/memkeep/memkeep/internal/store"
	"github.com/memkeep/memkeep/internal/tokenizer"
)

func main() {
	// Logger
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// SQLite
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Stores
	records := store.NewRecordStoreWithRetry(db, cfg.LockRetries, time.Duration(cfg.LockRetryMS)*time.Millisecond)
	sessions := store.NewSessionStore(db)
	counters := store.NewCounterStore(db)
	keyword := store.NewKeywordStore(db)

	// Embedder
	var base embedding.Embedder
	switch cfg.Embedder {
	case "ollama":
		ollama := embedding.NewOllamaClient(cfg.OllamaBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDim)
		if err := ollama.HealthCheck(); err != nil {
			logger.Warn("ollama not reachable at startup, will retry on first use", "error", err)
		}
		base = ollama
	default:
		base = embedding.NewLocal(cfg.EmbeddingDim)
	}
	embedder, err := embedding.NewCached(base, cfg.EmbedCacheSize)
	if err != nil {
		logger.Error("failed to create embedding cache", "error", err)
		os.Exit(1)
	}
	defer embedder.Close()

	// Vector index. A failed open is logged inside and search degrades to
	// keyword ranking until a rebuild succeeds.
	idx := index.Open(cfg.IndexDir, embedder, logger)

	// Tokenizer shared by token accounting and assembly
	tokens := tokenizer.New()

	// Extraction patterns
	patterns, err := extract.LoadPatterns(cfg.PatternsPath)
	if err != nil {
		logger.Error("failed to load extraction patterns", "error", err)
		os.Exit(1)
	}

	// Core components
	scorer := quality.New(quality.DefaultPolicy())
	deduper := dedup.New(records, counters, idx, cfg.NearDupThreshold, logger)
	assembler := assemble.New(idx, scorer, tokens, logger)
	assembler.SetStalePolicy(time.Duration(cfg.StaleAfterDays)*24*time.Hour, cfg.DigestTokens)
	extractor := extract.New(patterns, deduper, tokens, logger)

	svc := memory.NewService(memory.Deps{
		Records:      records,
		Sessions:     sessions,
		Counters:     counters,
		Keyword:      keyword,
		Index:        idx,
		Scorer:       scorer,
		Assembler:    assembler,
		Extractor:    extractor,
		Logger:       logger,
		Conversation: memory.NewConversationManager(sessions, deduper, tokens),
		Knowledge:    memory.NewKnowledgeManager(sessions, deduper, tokens),
	})

	// Reconcile the index with the store when it came up empty but the
	// store has records (deleted or corrupt cache directory).
	if count, err := db.RecordCount(); err == nil && count > 0 && idx.Count() == 0 {
		go func() {
			if n, err := svc.RebuildIndex(context.Background()); err != nil {
				logger.Warn("startup index rebuild failed", "error", err)
			} else {
				logger.Info("startup index rebuild complete", "records", n)
			}
		}()
	}

	// Router
	router := api.NewRouter(db, svc, cfg.APIKey, time.Duration(cfg.HookTimeoutMS)*time.Millisecond, logger)

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("memkeep server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
