// Package categorize resolves transaction descriptions to spending
// categories through an ordered chain of strategies: similarity cache,
// model classification, keyword rules. Each tier either answers or hands
// off to the next; the chain as a whole never fails.
package categorize

import (
	"context"
	"strings"

	"github.com/Rozthegray/ledger-guard/internal/domain"
	"github.com/Rozthegray/ledger-guard/internal/llm"
	"github.com/Rozthegray/ledger-guard/internal/logger"
	"github.com/Rozthegray/ledger-guard/internal/memory"
)

// DefaultMinSimilarity is the cache-recall threshold: matches at or below
// it are ignored and resolution moves on to the model.
const DefaultMinSimilarity = 0.85

// ModelConfidence is the fixed confidence assigned to model labels; the
// model does not report calibrated confidence.
const ModelConfidence = 0.7

// FallbackConfidence marks keyword-rule labels as low-trust for callers.
const FallbackConfidence = 0.1

// SimilarityCache is the nearest-neighbor lookup over previously
// categorized descriptions. Both methods are best-effort from the
// categorizer's point of view.
type SimilarityCache interface {
	Lookup(ctx context.Context, description string) (*memory.Match, error)
	Remember(ctx context.Context, description, category string) error
}

// Categorizer resolves descriptions to categories.
type Categorizer struct {
	cache         SimilarityCache // may be nil when no cache is configured
	model         llm.TextModel
	minSimilarity float64
}

// New creates a Categorizer. cache may be nil; minSimilarity <= 0 selects
// DefaultMinSimilarity.
func New(cache SimilarityCache, model llm.TextModel, minSimilarity float64) *Categorizer {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	return &Categorizer{cache: cache, model: model, minSimilarity: minSimilarity}
}

// Categorize resolves a description. It never returns an error: cache
// failures fall through to the model, model failures fall through to the
// keyword rules, and the keyword tier always answers.
func (c *Categorizer) Categorize(ctx context.Context, description string) domain.Categorization {
	if result := c.fromMemory(ctx, description); result != nil {
		return *result
	}
	if result := c.fromModel(ctx, description); result != nil {
		return *result
	}
	return keywordCategorize(description)
}

// fromMemory is the similarity-cache tier. Any failure here is swallowed;
// this tier must never abort categorization.
func (c *Categorizer) fromMemory(ctx context.Context, description string) *domain.Categorization {
	if c.cache == nil {
		return nil
	}

	match, err := c.cache.Lookup(ctx, description)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Similarity cache lookup failed, skipping tier")
		return nil
	}
	if match == nil || match.Score <= c.minSimilarity {
		return nil
	}

	return &domain.Categorization{
		Category:   match.Category,
		Source:     domain.SourceMemory,
		Confidence: match.Score,
	}
}

// fromModel is the classification tier. On success the answer is written
// back to the cache best-effort so future lookups hit the memory tier.
func (c *Categorizer) fromModel(ctx context.Context, description string) *domain.Categorization {
	log := logger.FromContext(ctx)

	raw, err := c.model.Generate(ctx, classificationPrompt+description)
	if err != nil {
		log.Warn().Err(err).Str("description", description).Msg("Model categorization failed, using keyword fallback")
		return nil
	}

	category := strings.TrimSpace(raw)
	if category == "" {
		log.Warn().Str("description", description).Msg("Model returned empty category, using keyword fallback")
		return nil
	}

	if c.cache != nil {
		if err := c.cache.Remember(ctx, description, category); err != nil {
			log.Warn().Err(err).Msg("Failed to write categorization to similarity cache")
		}
	}

	return &domain.Categorization{
		Category:   category,
		Source:     domain.SourceModel,
		Confidence: ModelConfidence,
	}
}

// classificationPrompt demands exactly one category label; the
// description is appended after it.
const classificationPrompt = "You are an expert accountant. Categorize this bank transaction description " +
	"into ONE standard accounting category (e.g. Software, Office Supplies, Travel, Payroll, Utility).\n" +
	"Return ONLY the category name. No periods. No extra words.\n\n" +
	"Transaction: "
