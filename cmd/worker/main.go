package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

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

// The worker runs the same audit pipeline as the API's in-process
// consumer, as a standalone service for deployments that split ingestion
// from serving.
func main() {
	configPath := flag.String("config", "ledger-guard.toml", "Path to config file")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.GCP.ProjectID == "" {
		log.Fatal().Msg("GCP project is not configured (set gcp.project_id or LEDGER_GUARD_PROJECT)")
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	model, err := llm.NewClient(ctx, cfg.Model.Name, cfg.Model.EmbeddingModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create model client")
	}

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
	}

	categorizer := categorize.New(cache, model, cfg.Memory.MinSimilarity)
	analyzer := pipeline.NewAnalyzer(pipeline.ChainCategorizer(categorizer), nil, cfg.Pipeline.Permits)
	parser := parse.New(model, cfg.Model.MaxChars)
	auditPipeline := pipeline.NewAuditPipeline(blobs, extract.PlainText{}, parser, analyzer, repo, notifier)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Pipeline.QueueBuffer, 0, jobStore)

	log.Info().Msg("Starting worker service")

	handler := func(ctx context.Context, job jobs.Job) error {
		auditJob, ok := job.(*jobs.AuditJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", auditJob.JobID).
			Str("audit_id", auditJob.AuditID).
			Str("uri", auditJob.URI).
			Msg("Processing audit job")

		state := &pipeline.AuditState{
			AuditID:  auditJob.AuditID,
			UserID:   auditJob.UserID,
			URI:      auditJob.URI,
			Filename: auditJob.Filename,
		}
		if err := auditPipeline.Run(ctx, state); err != nil {
			log.Error().
				Err(err).
				Str("job_id", auditJob.JobID).
				Str("audit_id", auditJob.AuditID).
				Msg("Audit pipeline failed")
			return err
		}

		log.Info().
			Str("job_id", auditJob.JobID).
			Str("audit_id", auditJob.AuditID).
			Int("transactions", len(state.Enriched)).
			Int("risk_score", state.RiskScore).
			Msg("Audit pipeline completed")
		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}
