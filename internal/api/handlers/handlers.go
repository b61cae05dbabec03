// Package handlers implements the HTTP endpoints for uploads, audits,
// synchronous analysis, forecasting and job status.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Rozthegray/ledger-guard/internal/api/middleware"
	"github.com/Rozthegray/ledger-guard/internal/domain"
	"github.com/Rozthegray/ledger-guard/internal/forecast"
	infra "github.com/Rozthegray/ledger-guard/internal/infra/bigquery"
	"github.com/Rozthegray/ledger-guard/internal/jobs"
	"github.com/Rozthegray/ledger-guard/internal/pipeline"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Uploader stores raw statement bytes and returns their URI.
type Uploader interface {
	Upload(ctx context.Context, objectName string, r io.Reader) (string, error)
}

// AuditStore is the persistence surface the handlers need.
type AuditStore interface {
	CreateAudit(ctx context.Context, auditID, userID, gcsURI, filename string) error
	GetAudit(ctx context.Context, auditID string) (*infra.AuditRow, error)
	ListAudits(ctx context.Context, userID string, limit int) ([]*infra.AuditRow, error)
	ListAuditTransactions(ctx context.Context, auditID string) ([]domain.EnrichedTransaction, error)
	VendorHistory(ctx context.Context, userID string) (domain.VendorHistory, error)
	RecordBalancePoint(ctx context.Context, userID string, point domain.BalancePoint) error
	BalanceHistory(ctx context.Context, userID string) ([]domain.BalancePoint, error)
}

// AuditsHandler handles statement uploads and audit reports.
type AuditsHandler struct {
	store     AuditStore
	uploads   Uploader
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewAuditsHandler creates an audits handler.
func NewAuditsHandler(store AuditStore, uploads Uploader, publisher jobs.Publisher, log zerolog.Logger) *AuditsHandler {
	return &AuditsHandler{store: store, uploads: uploads, publisher: publisher, log: log}
}

// UploadStatement handles POST /api/audits/upload?filename=...
// It stores the raw statement, creates a PENDING audit record and
// enqueues the audit job, replying 202 immediately.
func (h *AuditsHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserFromContext(ctx)

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		middleware.WriteError(w, http.StatusBadRequest, "filename is required")
		return
	}

	auditID := uuid.NewString()
	objectName := fmt.Sprintf("statements/%s/%s-%s", time.Now().Format("2006/01/02"), auditID, filename)

	uri, err := h.uploads.Upload(ctx, objectName, r.Body)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to store statement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store statement")
		return
	}

	if err := h.store.CreateAudit(ctx, auditID, userID, uri, filename); err != nil {
		h.log.Error().Err(err).Str("audit_id", auditID).Msg("Failed to create audit record")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create audit record")
		return
	}

	// Audit failures are rarely transient, so the job gets no retries; a
	// failed audit is re-run by uploading again.
	job := &jobs.AuditJob{
		AuditID:  auditID,
		UserID:   userID,
		URI:      uri,
		Filename: filename,
	}
	if err := h.publisher.PublishAudit(ctx, job); err != nil {
		h.log.Error().Err(err).Str("audit_id", auditID).Msg("Failed to enqueue audit job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue audit job")
		return
	}

	h.log.Info().Str("audit_id", auditID).Str("job_id", job.JobID).Str("uri", uri).Msg("Audit enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"audit_id": auditID,
		"job_id":   job.JobID,
		"uri":      uri,
		"status":   string(job.Status),
	})
}

// GetAudit handles GET /api/audits/{id}. Completed audits include their
// transactions.
func (h *AuditsHandler) GetAudit(w http.ResponseWriter, r *http.Request, auditID string) {
	ctx := r.Context()

	audit, err := h.store.GetAudit(ctx, auditID)
	if err != nil {
		h.log.Error().Err(err).Str("audit_id", auditID).Msg("Failed to get audit")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get audit")
		return
	}
	if audit == nil {
		middleware.WriteError(w, http.StatusNotFound, "Audit not found")
		return
	}

	resp := map[string]interface{}{"audit": audit}
	if audit.Status == infra.AuditCompleted {
		txs, err := h.store.ListAuditTransactions(ctx, auditID)
		if err != nil {
			h.log.Error().Err(err).Str("audit_id", auditID).Msg("Failed to list audit transactions")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to list audit transactions")
			return
		}
		resp["transactions"] = txs
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// ListAudits handles GET /api/audits.
func (h *AuditsHandler) ListAudits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserFromContext(ctx)

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			limit = n
		}
	}

	audits, err := h.store.ListAudits(ctx, userID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list audits")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list audits")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"audits": audits,
		"count":  len(audits),
	})
}

// AnalysisHandler runs the categorize and anomaly fan-out synchronously
// over a posted batch.
type AnalysisHandler struct {
	analyzer *pipeline.Analyzer
	store    AuditStore
	log      zerolog.Logger
}

// NewAnalysisHandler creates an analysis handler.
func NewAnalysisHandler(analyzer *pipeline.Analyzer, store AuditStore, log zerolog.Logger) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer, store: store, log: log}
}

// Analyze handles POST /api/analyze with a JSON array of candidate
// transactions and returns the enriched batch in the same order.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserFromContext(ctx)

	var candidates []domain.CandidateTransaction
	if err := json.NewDecoder(r.Body).Decode(&candidates); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	history, err := h.store.VendorHistory(ctx, userID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Vendor history unavailable, analyzing without it")
		history = nil
	}

	enriched := h.analyzer.Analyze(ctx, candidates, history)
	if enriched == nil {
		enriched = []domain.EnrichedTransaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, enriched)
}

// ForecastHandler serves balance projections and runway estimates.
type ForecastHandler struct {
	store         AuditStore
	horizonMonths int
	log           zerolog.Logger
}

// NewForecastHandler creates a forecast handler with a default horizon.
func NewForecastHandler(store AuditStore, horizonMonths int, log zerolog.Logger) *ForecastHandler {
	return &ForecastHandler{store: store, horizonMonths: horizonMonths, log: log}
}

// Forecast handles GET /api/forecast?months=N.
func (h *ForecastHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserFromContext(ctx)

	months := h.horizonMonths
	if monthsStr := r.URL.Query().Get("months"); monthsStr != "" {
		n, err := strconv.Atoi(monthsStr)
		if err != nil || n <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "months must be a positive integer")
			return
		}
		months = n
	}

	points, err := h.store.BalanceHistory(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load balance history")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load balance history")
		return
	}

	result := forecast.New(months).Project(points)
	middleware.WriteJSON(w, http.StatusOK, result)
}

// Runway handles GET /api/runway, the linear burn-rate variant.
func (h *ForecastHandler) Runway(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserFromContext(ctx)

	points, err := h.store.BalanceHistory(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load balance history")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load balance history")
		return
	}

	estimate, err := forecast.New(h.horizonMonths).EstimateRunway(points)
	if err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("Need at least %d balance points", forecast.MinPoints))
		return
	}

	middleware.WriteJSON(w, http.StatusOK, estimate)
}

// RecordBalance handles POST /api/balance with {"date": "...", "balance": ...}.
func (h *ForecastHandler) RecordBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserFromContext(ctx)

	var req struct {
		Date    string          `json:"date"`
		Balance decimal.Decimal `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	point := domain.BalancePoint{Date: date, Balance: req.Balance}
	if err := h.store.RecordBalancePoint(ctx, userID, point); err != nil {
		h.log.Error().Err(err).Msg("Failed to record balance point")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to record balance point")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

// JobsHandler exposes background job status.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{store: store, log: log}
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		AuditID: query.Get("audit_id"),
		UserID:  middleware.UserFromContext(ctx),
		Status:  jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
