package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/archonrag/ragcore"
	"github.com/archonrag/ragcore/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addr := flag.String("addr", ":8181", "Listen address")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := ragcore.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			f.Close()
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
		f.Close()
	}

	addrSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "addr" {
			addrSet = true
		}
	})
	if !addrSet && cfg.ServerPort != "" {
		*addr = ":" + cfg.ServerPort
	}

	if v := os.Getenv("ARCHON_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("ARCHON_SERVER_PORT"); v != "" {
		*addr = ":" + v
	}
	if v := os.Getenv("ARCHON_CHAT_PROVIDER"); v != "" {
		cfg.Chat.Provider = v
	}
	if v := os.Getenv("ARCHON_CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if v := os.Getenv("ARCHON_CHAT_BASE_URL"); v != "" {
		cfg.Chat.BaseURL = v
	}
	if v := os.Getenv("ARCHON_CHAT_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}
	if v := os.Getenv("ARCHON_EMBED_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("ARCHON_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("ARCHON_EMBED_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("ARCHON_EMBED_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}

	apiKey := os.Getenv("ARCHON_API_KEY")
	corsOrigins := os.Getenv("ARCHON_CORS_ORIGINS")
	if apiKey == "" {
		apiKey = cfg.APIKey
	}
	if corsOrigins == "" {
		corsOrigins = cfg.CORSOrigins
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := store.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		slog.Error("opening store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	engine, err := ragcore.New(cfg, st, st)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}

	h := newHandler(engine, st)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/knowledge-items/crawl", h.handleCrawl)
	mux.HandleFunc("POST /api/documents/upload", h.handleUpload)
	mux.HandleFunc("POST /api/knowledge-items/{source_id}/refresh", h.handleRefresh)
	mux.HandleFunc("GET /api/progress/{id}", h.handleProgressGet)
	mux.HandleFunc("GET /api/progress/", h.handleProgressList)
	mux.HandleFunc("POST /api/knowledge-items/stop/{progress_id}", h.handleStop)
	mux.HandleFunc("POST /api/rag/query", h.handleRAGQuery)
	mux.HandleFunc("POST /api/rag/code-examples", h.handleRAGCodeExamples)
	mux.HandleFunc("POST /api/knowledge-items/search", h.handleRAGQuery)
	mux.HandleFunc("GET /api/health", h.handleHealth)

	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // crawl/upload responses return immediately; progress is polled separately
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
