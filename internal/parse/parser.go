// Package parse converts raw statement text into candidate transactions.
// The primary path asks the model for a strict JSON array; a deterministic
// regex fallback covers model failures and unparsable output.
package parse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Rozthegray/ledger-guard/internal/domain"
	"github.com/Rozthegray/ledger-guard/internal/llm"
	"github.com/Rozthegray/ledger-guard/internal/logger"
	"github.com/shopspring/decimal"
)

// DefaultMaxChars bounds the statement text sent in a single model request.
const DefaultMaxChars = 20000

// Parser extracts candidate transactions from raw statement text.
type Parser struct {
	model    llm.TextModel
	maxChars int
}

// New creates a Parser. maxChars <= 0 selects DefaultMaxChars.
func New(model llm.TextModel, maxChars int) *Parser {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Parser{model: model, maxChars: maxChars}
}

// Parse extracts transactions from rawText.
//
// A rate-limited model call fails the whole operation with a
// *llm.RateLimitedError; it is not retried here. Any other model failure,
// and any model output that cannot be parsed as a bounded JSON array,
// falls back to regex extraction over the full (untruncated) text. An
// empty result is not an error; callers decide what that means.
func (p *Parser) Parse(ctx context.Context, rawText string) ([]domain.CandidateTransaction, error) {
	log := logger.FromContext(ctx)

	safeText := rawText
	if len(safeText) > p.maxChars {
		safeText = safeText[:p.maxChars]
	}

	raw, err := p.model.Generate(ctx, extractionPrompt+safeText)
	if err != nil {
		if rl := llm.AsRateLimited(err); rl != nil {
			return nil, rl
		}
		log.Warn().Err(err).Msg("Model extraction failed, switching to regex fallback")
		return fallbackExtract(rawText), nil
	}

	txs, err := decodeTransactionArray(raw)
	if err != nil {
		log.Warn().Err(err).Msg("Model output was not a valid JSON array, switching to regex fallback")
		return fallbackExtract(rawText), nil
	}

	return txs, nil
}

// decodeTransactionArray bounds the model output to its JSON array and
// decodes it into candidates.
func decodeTransactionArray(raw string) ([]domain.CandidateTransaction, error) {
	clean, err := boundJSONArray(raw)
	if err != nil {
		return nil, err
	}

	var items []map[string]interface{}
	if err := json.Unmarshal([]byte(clean), &items); err != nil {
		return nil, fmt.Errorf("decodeTransactionArray: unmarshal: %w", err)
	}

	result := make([]domain.CandidateTransaction, 0, len(items))
	for i, obj := range items {
		date, err := getStringField(obj, "date", true)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		desc, err := getStringField(obj, "description", true)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		amount, err := getNumberField(obj, "amount")
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		vendor, err := getStringField(obj, "vendor", false)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}

		result = append(result, domain.CandidateTransaction{
			Date:        date,
			Description: desc,
			Amount:      amount,
			Vendor:      vendor,
		})
	}

	return result, nil
}

// boundJSONArray strips Markdown fences and any commentary around the
// JSON payload by keeping only the first '[' through the last ']'.
func boundJSONArray(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("boundJSONArray: no JSON array in model output")
	}

	return strings.TrimSpace(s[start : end+1]), nil
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
	if required && strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("required field %q is empty", key)
	}
	return s, nil
}

func getNumberField(m map[string]interface{}, key string) (decimal.Decimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return decimal.Zero, fmt.Errorf("missing required field %q", key)
	}
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val), nil
	case string:
		d, err := decimal.NewFromString(strings.ReplaceAll(val, ",", ""))
		if err != nil {
			return decimal.Zero, fmt.Errorf("field %q: %w", key, err)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("field %q has type %T, want number", key, v)
	}
}
