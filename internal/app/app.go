package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"redraft/features/stats"
	"redraft/features/transform"
	"redraft/internal/budget"
	"redraft/internal/clock"
	"redraft/internal/config"
	"redraft/internal/middleware"
	"redraft/internal/pipeline"
	"redraft/internal/provider"
	"redraft/internal/provider/gemini"
	"redraft/internal/provider/openai"
	"redraft/internal/text"
	"redraft/internal/worker"
)

type App struct {
	Handler        http.Handler
	Service        *transform.Service
	TaskConsumer   *worker.TaskConsumer
	ResultConsumer *worker.ResultConsumer
	Providers      *provider.Registry

	port int
}

// New wires the pipeline from config. db may be nil to run without the job
// archive; taskPub may be nil to run jobs inline instead of through NSQ.
func New(cfg *config.Config, db *sql.DB, taskPub transform.EventPublisher) (*App, error) {
	clk := clock.Real()

	// Providers
	providers := provider.NewRegistry()
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.NewClient(context.Background(), cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		providers.Register("gemini", client)
	}
	if cfg.OpenAIAPIKey != "" {
		providers.Register("openai", openai.NewClient(cfg.OpenAIAPIKey))
	}
	if len(providers.IDs()) == 0 {
		slog.Warn("no provider api keys configured, submissions will be rejected")
	}

	budgets := budget.NewRegistry(budget.Options{
		RequestsPerWindow: cfg.ProviderRequestsPerWindow,
		Window:            time.Duration(cfg.WindowMs) * time.Millisecond,
		MinSpacing:        time.Duration(cfg.MinRequestSpacingMs) * time.Millisecond,
		MaxWait:           time.Duration(cfg.BudgetMaxWaitMs) * time.Millisecond,
	}, clk)

	// Feature: Transform
	var repo transform.Repository
	var archive stats.ArchiveRepo
	if db != nil {
		pgRepo := transform.NewPostgresRepo(db)
		repo = pgRepo
		archive = pgRepo
	}

	service := transform.NewService(providers, budgets, repo, taskPub, clk, transform.Options{
		ChunkPolicy: text.Policy{
			MaxChunkWords: cfg.MaxChunkWords,
			MinChunkWords: cfg.MinChunkWords,
			LargeDocWords: cfg.ChunkLargeDocWords,
		},
		Retry: pipeline.RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			BaseBackoff: time.Duration(cfg.BaseBackoffMs) * time.Millisecond,
			MaxBackoff:  time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
		},
		CallTimeout: time.Duration(cfg.ProviderTimeoutMs) * time.Millisecond,
	})
	transformHandler := transform.NewHandler(service)

	// Feature: Stats
	statsHandler := stats.NewHandler(service, archive, providers.IDs(), budgets)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /jobs", middleware.CorrelationID(enableCORS(transformHandler.Submit)))
	mux.Handle("GET /jobs/{id}", middleware.CorrelationID(enableCORS(transformHandler.Status)))
	mux.Handle("GET /jobs/{id}/result", middleware.CorrelationID(enableCORS(transformHandler.Result)))
	mux.Handle("POST /jobs/{id}/cancel", middleware.CorrelationID(enableCORS(transformHandler.Cancel)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:        mux,
		Service:        service,
		TaskConsumer:   worker.NewTaskConsumer(service),
		ResultConsumer: worker.NewResultConsumer(),
		Providers:      providers,
		port:           cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
