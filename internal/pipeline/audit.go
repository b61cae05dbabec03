package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Rozthegray/ledger-guard/internal/anomaly"
	"github.com/Rozthegray/ledger-guard/internal/domain"
	"github.com/Rozthegray/ledger-guard/internal/extract"
	"github.com/Rozthegray/ledger-guard/internal/logger"
)

// ErrNoTransactions means the statement parsed but nothing survived the
// boilerplate filter. The audit job fails with this rather than completing
// with an empty report.
var ErrNoTransactions = errors.New("no transactions found in statement")

// BlobStore fetches uploaded statement bytes by URI.
type BlobStore interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// StatementParser turns raw statement text into candidate transactions.
type StatementParser interface {
	Parse(ctx context.Context, text string) ([]domain.CandidateTransaction, error)
}

// AuditRepository persists audit lifecycle and results.
type AuditRepository interface {
	MarkRunning(ctx context.Context, auditID string) error
	MarkFailed(ctx context.Context, auditID string, cause error)
	Complete(ctx context.Context, auditID string, txs []domain.EnrichedTransaction, riskScore int) error
	VendorHistory(ctx context.Context, userID string) (domain.VendorHistory, error)
}

// Notifier announces a finished audit. Delivery is best-effort; a notify
// failure never fails the audit.
type Notifier interface {
	AuditCompleted(ctx context.Context, auditID, filename string, txCount, riskScore int) error
}

// AuditState holds the shared state across all audit steps.
type AuditState struct {
	AuditID  string
	UserID   string
	URI      string
	Filename string

	RawBytes   []byte
	Text       string
	Candidates []domain.CandidateTransaction
	History    domain.VendorHistory
	Enriched   []domain.EnrichedTransaction
	RiskScore  int
}

// Step is a single stage of the audit pipeline.
type Step interface {
	Execute(ctx context.Context, state *AuditState) error
}

// AuditPipeline executes a sequence of steps in order. The first failing
// step marks the audit FAILED and aborts the run.
type AuditPipeline struct {
	steps []Step
	repo  AuditRepository
}

// NewAuditPipeline assembles the standard audit flow over the given
// collaborators. notifier may be nil.
func NewAuditPipeline(blobs BlobStore, extractor extract.TextExtractor, parser StatementParser, analyzer *Analyzer, repo AuditRepository, notifier Notifier) *AuditPipeline {
	return &AuditPipeline{
		repo: repo,
		steps: []Step{
			&startAuditStep{repo: repo},
			&fetchStatementStep{blobs: blobs},
			&extractTextStep{extractor: extractor},
			&parseStatementStep{parser: parser},
			&loadHistoryStep{repo: repo},
			&analyzeStep{analyzer: analyzer},
			&persistResultsStep{repo: repo},
			&notifyStep{notifier: notifier},
		},
	}
}

// Run executes all steps sequentially against state.
func (p *AuditPipeline) Run(ctx context.Context, state *AuditState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			p.repo.MarkFailed(ctx, state.AuditID, err)
			return fmt.Errorf("audit step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// startAuditStep moves the audit record to RUNNING.
type startAuditStep struct {
	repo AuditRepository
}

func (s *startAuditStep) Execute(ctx context.Context, state *AuditState) error {
	return s.repo.MarkRunning(ctx, state.AuditID)
}

// fetchStatementStep downloads the uploaded statement bytes.
type fetchStatementStep struct {
	blobs BlobStore
}

func (s *fetchStatementStep) Execute(ctx context.Context, state *AuditState) error {
	data, err := s.blobs.Fetch(ctx, state.URI)
	if err != nil {
		return err
	}
	state.RawBytes = data
	return nil
}

// extractTextStep pulls raw text out of the statement. Too little text
// means a scanned image and fails the audit with extract.ErrNoText.
type extractTextStep struct {
	extractor extract.TextExtractor
}

func (s *extractTextStep) Execute(ctx context.Context, state *AuditState) error {
	text, err := s.extractor.Extract(state.RawBytes)
	if err != nil {
		return err
	}
	state.Text = text
	return nil
}

// parseStatementStep runs the model parse with its regex fallback.
type parseStatementStep struct {
	parser StatementParser
}

func (s *parseStatementStep) Execute(ctx context.Context, state *AuditState) error {
	txs, err := s.parser.Parse(ctx, state.Text)
	if err != nil {
		return err
	}
	state.Candidates = txs
	return nil
}

// loadHistoryStep fetches vendor history for anomaly scoring. A storage
// failure here downgrades every verdict to "no history" instead of
// failing the audit.
type loadHistoryStep struct {
	repo AuditRepository
}

func (s *loadHistoryStep) Execute(ctx context.Context, state *AuditState) error {
	history, err := s.repo.VendorHistory(ctx, state.UserID)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).
			Str("audit_id", state.AuditID).
			Msg("Vendor history unavailable, scoring without it")
		return nil
	}
	state.History = history
	return nil
}

// analyzeStep runs the categorize and anomaly fan-out.
type analyzeStep struct {
	analyzer *Analyzer
}

func (s *analyzeStep) Execute(ctx context.Context, state *AuditState) error {
	enriched := s.analyzer.Analyze(ctx, state.Candidates, state.History)
	if len(enriched) == 0 {
		return ErrNoTransactions
	}
	state.Enriched = enriched
	state.RiskScore = anomaly.DocumentRiskScore(enriched)
	return nil
}

// persistResultsStep writes the enriched transactions and the document
// risk score, marking the audit COMPLETED.
type persistResultsStep struct {
	repo AuditRepository
}

func (s *persistResultsStep) Execute(ctx context.Context, state *AuditState) error {
	return s.repo.Complete(ctx, state.AuditID, state.Enriched, state.RiskScore)
}

// notifyStep announces the finished audit. Failures are logged only.
type notifyStep struct {
	notifier Notifier
}

func (s *notifyStep) Execute(ctx context.Context, state *AuditState) error {
	if s.notifier == nil {
		return nil
	}
	err := s.notifier.AuditCompleted(ctx, state.AuditID, state.Filename, len(state.Enriched), state.RiskScore)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).
			Str("audit_id", state.AuditID).
			Msg("Completion notification failed")
	}
	return nil
}
