// Package pipeline runs the transaction analysis fan-out and the audit job
// steps around it.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Rozthegray/ledger-guard/internal/anomaly"
	"github.com/Rozthegray/ledger-guard/internal/categorize"
	"github.com/Rozthegray/ledger-guard/internal/domain"
	"github.com/Rozthegray/ledger-guard/internal/logger"
	"github.com/shopspring/decimal"
)

// DefaultPermits bounds in-flight categorization calls. The hosted model
// backend rate-limits aggressively; three concurrent calls stays under it.
const DefaultPermits = 3

// ignorePhrases mark statement summary rows that must not be scored as
// transactions. Matching is case-insensitive substring.
var ignorePhrases = []string{
	"Total Money In",
	"Total Money Out",
	"Opening Balance",
	"Closing Balance",
	"Statement Period",
	"Page 1 of",
	"Brought Forward",
}

// Categorizer labels one transaction description.
type Categorizer interface {
	Categorize(ctx context.Context, description string) (domain.Categorization, error)
}

// ScoreFunc flags one amount against vendor history.
type ScoreFunc func(amount decimal.Decimal, vendor string, history domain.VendorHistory) domain.AuditVerdict

// Analyzer fans Categorizer and anomaly scoring out over a batch with
// bounded concurrency.
type Analyzer struct {
	categorizer Categorizer
	score       ScoreFunc
	permits     int
}

// NewAnalyzer creates an Analyzer. permits <= 0 selects DefaultPermits and
// a nil score selects the statistical scorer.
func NewAnalyzer(categorizer Categorizer, score ScoreFunc, permits int) *Analyzer {
	if permits <= 0 {
		permits = DefaultPermits
	}
	if score == nil {
		score = anomaly.Score
	}
	return &Analyzer{categorizer: categorizer, score: score, permits: permits}
}

// Analyze filters out boilerplate rows, then categorizes and scores the
// survivors concurrently. Output order matches input order, and a failure
// on one transaction never aborts the batch.
func (a *Analyzer) Analyze(ctx context.Context, candidates []domain.CandidateTransaction, history domain.VendorHistory) []domain.EnrichedTransaction {
	clean := filterBoilerplate(candidates)
	log := logger.FromContext(ctx)
	log.Info().
		Int("candidates", len(candidates)).
		Int("filtered", len(candidates)-len(clean)).
		Msg("Analyzing transaction batch")

	results := make([]domain.EnrichedTransaction, len(clean))
	sem := make(chan struct{}, a.permits)

	var wg sync.WaitGroup
	for i, tx := range clean {
		wg.Add(1)
		go func(i int, tx domain.CandidateTransaction) {
			defer wg.Done()
			results[i] = a.analyzeOne(ctx, tx, history, sem)
		}(i, tx)
	}
	wg.Wait()

	return results
}

// analyzeOne categorizes under a permit, then scores without one. The
// anomaly check is local math and must not occupy a model permit.
func (a *Analyzer) analyzeOne(ctx context.Context, tx domain.CandidateTransaction, history domain.VendorHistory, sem chan struct{}) domain.EnrichedTransaction {
	cat := a.categorizeGuarded(ctx, tx.Description, sem)

	vendor := tx.Vendor
	if vendor == "" {
		vendor = "Unknown"
	}
	verdict := a.score(tx.Amount, vendor, history)

	return domain.EnrichedTransaction{
		Date:               tx.Date,
		Description:        tx.Description,
		Amount:             tx.Amount,
		Vendor:             tx.Vendor,
		Category:           cat.Category,
		CategorySource:     cat.Source,
		CategoryConfidence: cat.Confidence,
		IsAnomaly:          verdict.Status == domain.AuditStatusAlert,
		RiskScore:          verdict.RiskScore,
		AuditReason:        verdict.Note,
	}
}

// categorizeGuarded holds a permit for the duration of the categorization
// call and converts any failure, error or panic, into the System Error
// label so the rest of the batch proceeds.
func (a *Analyzer) categorizeGuarded(ctx context.Context, description string, sem chan struct{}) (cat domain.Categorization) {
	cat = domain.Categorization{
		Category:   "System Error",
		Source:     domain.SourceFallback,
		Confidence: 0.0,
	}

	defer func() {
		if r := recover(); r != nil {
			log := logger.FromContext(ctx)
			log.Error().
				Str("description", description).
				Interface("panic", r).
				Msg("Categorizer panicked, marking transaction as System Error")
		}
	}()

	sem <- struct{}{}
	defer func() { <-sem }()

	got, err := a.categorizer.Categorize(ctx, description)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).
			Str("description", description).
			Msg("Categorization failed, marking transaction as System Error")
		return cat
	}
	return got
}

// filterBoilerplate drops summary rows so totals are not double-counted
// as transactions.
func filterBoilerplate(candidates []domain.CandidateTransaction) []domain.CandidateTransaction {
	clean := make([]domain.CandidateTransaction, 0, len(candidates))
	for _, tx := range candidates {
		if !isBoilerplate(tx.Description) {
			clean = append(clean, tx)
		}
	}
	return clean
}

func isBoilerplate(description string) bool {
	desc := strings.ToLower(description)
	for _, phrase := range ignorePhrases {
		if strings.Contains(desc, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// ChainCategorizer adapts the three-tier chain, which never fails on its
// own, to the Analyzer's error-returning interface.
func ChainCategorizer(c *categorize.Categorizer) Categorizer {
	return chainCategorizer{chain: c}
}

type chainCategorizer struct {
	chain *categorize.Categorizer
}

func (c chainCategorizer) Categorize(ctx context.Context, description string) (domain.Categorization, error) {
	if err := ctx.Err(); err != nil {
		return domain.Categorization{}, fmt.Errorf("categorize %q: %w", description, err)
	}
	return c.chain.Categorize(ctx, description), nil
}
