package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Rozthegray/ledger-guard/internal/api/handlers"
	"github.com/Rozthegray/ledger-guard/internal/api/middleware"
	"github.com/Rozthegray/ledger-guard/internal/categorize"
	"github.com/Rozthegray/ledger-guard/internal/config"
	"github.com/Rozthegray/ledger-guard/internal/extract"
	infraBQ "github.com/Rozthegray/ledger-guard/internal/infra/bigquery"
	"github.com/Rozthegray/ledger-guard/internal/jobs"
	"github.com/Rozthegray/ledger-guard/internal/jobs/inmemory"
	"github.com/Rozthegray/ledger-guard/internal/llm"
	"github.com/Rozthegray/ledger-guard/internal/logger"
	"github.com/Rozthegray/ledger-guard/internal/memory"
	"github.com/Rozthegray/ledger-guard/internal/notify"
	"github.com/Rozthegray/ledger-guard/internal/parse"
	"github.com/Rozthegray/ledger-guard/internal/pipeline"
	"github.com/Rozthegray/ledger-guard/internal/storage"
)

func main() {
	var (
		port       = flag.String("port", "8080", "HTTP server port")
		configPath = flag.String("config", "ledger-guard.toml", "Path to config file")
	)
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.GCP.ProjectID == "" {
		log.Fatal().Msg("GCP project is not configured (set gcp.project_id or LEDGER_GUARD_PROJECT)")
	}
	if cfg.GCP.Bucket == "" {
		log.Fatal().Msg("GCS bucket is not configured (set gcp.bucket or LEDGER_GUARD_BUCKET)")
	}

	ctx := logger.WithContext(context.Background(), log)

	// Model client, shared by the parser and the categorizer.
	model, err := llm.NewClient(ctx, cfg.Model.Name, cfg.Model.EmbeddingModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create model client")
	}

	// Similarity cache over local SQLite.
	cache, err := memory.Open(cfg.Memory.DBPath, model)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open category memory")
	}
	defer cache.Close()

	blobs, err := storage.NewStore(ctx, cfg.GCP.Bucket)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer blobs.Close()

	repo, err := infraBQ.NewRepository(ctx, cfg.GCP.ProjectID, cfg.GCP.Dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create audit repository")
	}
	defer repo.Close()

	var notifier pipeline.Notifier
	if cfg.Notion.Token != "" && cfg.Notion.DatabaseID != "" {
		notifier = notify.NewNotionNotifier(cfg.Notion.Token, cfg.Notion.DatabaseID)
	} else {
		log.Warn().Msg("Notion not configured - completion notices disabled")
	}

	categorizer := categorize.New(cache, model, cfg.Memory.MinSimilarity)
	analyzer := pipeline.NewAnalyzer(pipeline.ChainCategorizer(categorizer), nil, cfg.Pipeline.Permits)
	parser := parse.New(model, cfg.Model.MaxChars)
	auditPipeline := pipeline.NewAuditPipeline(blobs, extract.PlainText{}, parser, analyzer, repo, notifier)

	// In-process job infrastructure. A broker-backed queue replaces this
	// for multi-instance deployments.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Pipeline.QueueBuffer, 0, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		auditJob, ok := job.(*jobs.AuditJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		state := &pipeline.AuditState{
			AuditID:  auditJob.AuditID,
			UserID:   auditJob.UserID,
			URI:      auditJob.URI,
			Filename: auditJob.Filename,
		}
		return auditPipeline.Run(ctx, state)
	}

	go func() {
		log.Info().Msg("Starting audit job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Audit job worker stopped with error")
		}
	}()

	auditsHandler := handlers.NewAuditsHandler(repo, blobs, jobQueue, log)
	analysisHandler := handlers.NewAnalysisHandler(analyzer, repo, log)
	forecastHandler := handlers.NewForecastHandler(repo, cfg.Pipeline.ForecastHorizonMonths, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/audits/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			auditsHandler.UploadStatement(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/audits", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			auditsHandler.ListAudits(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/audits/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			auditID := strings.TrimPrefix(r.URL.Path, "/api/audits/")
			if auditID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Audit ID is required")
				return
			}
			auditsHandler.GetAudit(w, r, auditID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			analysisHandler.Analyze(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/forecast", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			forecastHandler.Forecast(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/runway", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			forecastHandler.Runway(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/balance", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			forecastHandler.RecordBalance(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.UserID(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:    ":" + *port,
		Handler: handler,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
