package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Rozthegray/ledger-guard/internal/domain"
	infra "github.com/Rozthegray/ledger-guard/internal/infra/bigquery"
	"github.com/Rozthegray/ledger-guard/internal/jobs"
	"github.com/Rozthegray/ledger-guard/internal/pipeline"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	audits       map[string]*infra.AuditRow
	transactions map[string][]domain.EnrichedTransaction
	history      domain.VendorHistory
	balances     []domain.BalancePoint
	recorded     []domain.BalancePoint

	createErr  error
	historyErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		audits:       make(map[string]*infra.AuditRow),
		transactions: make(map[string][]domain.EnrichedTransaction),
	}
}

func (f *fakeStore) CreateAudit(ctx context.Context, auditID, userID, gcsURI, filename string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.audits[auditID] = &infra.AuditRow{AuditID: auditID, UserID: userID, GCSURI: gcsURI, Filename: filename, Status: infra.AuditPending}
	return nil
}

func (f *fakeStore) GetAudit(ctx context.Context, auditID string) (*infra.AuditRow, error) {
	return f.audits[auditID], nil
}

func (f *fakeStore) ListAudits(ctx context.Context, userID string, limit int) ([]*infra.AuditRow, error) {
	var rows []*infra.AuditRow
	for _, a := range f.audits {
		if a.UserID == userID {
			rows = append(rows, a)
		}
	}
	return rows, nil
}

func (f *fakeStore) ListAuditTransactions(ctx context.Context, auditID string) ([]domain.EnrichedTransaction, error) {
	return f.transactions[auditID], nil
}

func (f *fakeStore) VendorHistory(ctx context.Context, userID string) (domain.VendorHistory, error) {
	return f.history, f.historyErr
}

func (f *fakeStore) RecordBalancePoint(ctx context.Context, userID string, point domain.BalancePoint) error {
	f.recorded = append(f.recorded, point)
	return nil
}

func (f *fakeStore) BalanceHistory(ctx context.Context, userID string) ([]domain.BalancePoint, error) {
	return f.balances, nil
}

type fakeUploader struct {
	objectName string
	err        error
}

func (f *fakeUploader) Upload(ctx context.Context, objectName string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.objectName = objectName
	io.Copy(io.Discard, r)
	return "gs://bucket/" + objectName, nil
}

type fakePublisher struct {
	published []*jobs.AuditJob
	err       error
}

func (f *fakePublisher) PublishAudit(ctx context.Context, job *jobs.AuditJob) error {
	if f.err != nil {
		return f.err
	}
	job.JobID = "job-1"
	job.Status = jobs.JobStatusPending
	f.published = append(f.published, job)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type staticCategorizer struct{}

func (staticCategorizer) Categorize(ctx context.Context, description string) (domain.Categorization, error) {
	return domain.Categorization{Category: "Software", Source: domain.SourceModel, Confidence: 0.7}, nil
}

func TestUploadStatement(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	h := NewAuditsHandler(store, &fakeUploader{}, publisher, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/audits/upload?filename=march.pdf", strings.NewReader("statement bytes"))
	rec := httptest.NewRecorder()
	h.UploadStatement(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["audit_id"])
	assert.Equal(t, "job-1", resp["job_id"])

	require.Len(t, publisher.published, 1)
	job := publisher.published[0]
	assert.Equal(t, resp["audit_id"], job.AuditID)
	assert.Equal(t, "march.pdf", job.Filename)
	assert.Zero(t, job.MaxRetries, "audit jobs must not retry")
	assert.Contains(t, store.audits, resp["audit_id"])
}

func TestUploadStatement_MissingFilename(t *testing.T) {
	h := NewAuditsHandler(newFakeStore(), &fakeUploader{}, &fakePublisher{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/audits/upload", nil)
	rec := httptest.NewRecorder()
	h.UploadStatement(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadStatement_UploadFailure(t *testing.T) {
	h := NewAuditsHandler(newFakeStore(), &fakeUploader{err: errors.New("bucket gone")}, &fakePublisher{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/audits/upload?filename=x.pdf", nil)
	rec := httptest.NewRecorder()
	h.UploadStatement(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetAudit_NotFound(t *testing.T) {
	h := NewAuditsHandler(newFakeStore(), &fakeUploader{}, &fakePublisher{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/audits/missing", nil)
	rec := httptest.NewRecorder()
	h.GetAudit(rec, req, "missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAudit_CompletedIncludesTransactions(t *testing.T) {
	store := newFakeStore()
	store.audits["a1"] = &infra.AuditRow{AuditID: "a1", Status: infra.AuditCompleted}
	store.transactions["a1"] = []domain.EnrichedTransaction{
		{Description: "Coffee", Category: "Meals"},
	}
	h := NewAuditsHandler(store, &fakeUploader{}, &fakePublisher{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/audits/a1", nil)
	rec := httptest.NewRecorder()
	h.GetAudit(rec, req, "a1")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Transactions []domain.EnrichedTransaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Transactions, 1)
	assert.Equal(t, "Coffee", resp.Transactions[0].Description)
}

func TestAnalyze(t *testing.T) {
	analyzer := pipeline.NewAnalyzer(staticCategorizer{}, nil, 3)
	h := NewAnalysisHandler(analyzer, newFakeStore(), zerolog.Nop())

	body, _ := json.Marshal([]domain.CandidateTransaction{
		{Date: "2026-04-02", Description: "GitHub subscription", Amount: decimal.NewFromInt(20), Vendor: "GitHub"},
		{Date: "2026-04-03", Description: "Opening Balance", Amount: decimal.NewFromInt(900)},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var enriched []domain.EnrichedTransaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enriched))
	require.Len(t, enriched, 1, "boilerplate row must be filtered")
	assert.Equal(t, "GitHub subscription", enriched[0].Description)
	assert.Equal(t, "Software", enriched[0].Category)
}

func TestAnalyze_InvalidBody(t *testing.T) {
	analyzer := pipeline.NewAnalyzer(staticCategorizer{}, nil, 3)
	h := NewAnalysisHandler(analyzer, newFakeStore(), zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyze_HistoryFailureTolerated(t *testing.T) {
	store := newFakeStore()
	store.historyErr = errors.New("warehouse down")
	analyzer := pipeline.NewAnalyzer(staticCategorizer{}, nil, 3)
	h := NewAnalysisHandler(analyzer, store, zerolog.Nop())

	body, _ := json.Marshal([]domain.CandidateTransaction{
		{Description: "Coffee", Amount: decimal.NewFromInt(4)},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func balanceSeries(n int, start float64, step float64) []domain.BalancePoint {
	day0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	points := make([]domain.BalancePoint, n)
	for i := range points {
		points[i] = domain.BalancePoint{
			Date:    day0.AddDate(0, 0, i),
			Balance: decimal.NewFromFloat(start + step*float64(i)),
		}
	}
	return points
}

func TestForecast_InsufficientData(t *testing.T) {
	store := newFakeStore()
	store.balances = balanceSeries(3, 1000, -10)
	h := NewForecastHandler(store, 3, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/forecast", nil)
	rec := httptest.NewRecorder()
	h.Forecast(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.ForecastResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.ForecastInsufficientData, resp.Status)
}

func TestForecast_Danger(t *testing.T) {
	store := newFakeStore()
	store.balances = balanceSeries(10, 500, -50)
	h := NewForecastHandler(store, 3, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/forecast?months=3", nil)
	rec := httptest.NewRecorder()
	h.Forecast(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.ForecastResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.ForecastDanger, resp.Status)
	assert.NotNil(t, resp.CrashDate)
}

func TestForecast_InvalidMonths(t *testing.T) {
	h := NewForecastHandler(newFakeStore(), 3, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/forecast?months=zero", nil)
	rec := httptest.NewRecorder()
	h.Forecast(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunway_InsufficientData(t *testing.T) {
	store := newFakeStore()
	store.balances = balanceSeries(2, 1000, -10)
	h := NewForecastHandler(store, 3, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/runway", nil)
	rec := httptest.NewRecorder()
	h.Runway(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRunway(t *testing.T) {
	store := newFakeStore()
	store.balances = balanceSeries(10, 1000, -10)
	h := NewForecastHandler(store, 3, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/runway", nil)
	rec := httptest.NewRecorder()
	h.Runway(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.RunwayEstimate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Unbounded)
	assert.Greater(t, resp.RunwayDays, 0)
}

func TestRecordBalance(t *testing.T) {
	store := newFakeStore()
	h := NewForecastHandler(store, 3, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/balance", strings.NewReader(`{"date":"2026-04-02","balance":"1050.25"}`))
	rec := httptest.NewRecorder()
	h.RecordBalance(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.recorded, 1)
	assert.Equal(t, "1050.25", store.recorded[0].Balance.String())
}

func TestRecordBalance_BadDate(t *testing.T) {
	h := NewForecastHandler(newFakeStore(), 3, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/balance", strings.NewReader(`{"date":"02/04/2026","balance":"10"}`))
	rec := httptest.NewRecorder()
	h.RecordBalance(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
