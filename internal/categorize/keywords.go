package categorize

import (
	"strings"

	"github.com/Rozthegray/ledger-guard/internal/domain"
)

// keywordCategorize is the last tier: fixed substrings matched in a fixed
// priority order over the lower-cased description.
func keywordCategorize(description string) domain.Categorization {
	desc := strings.ToLower(description)

	category := "Uncategorized"
	switch {
	case strings.Contains(desc, "transfer"):
		category = "Transfer"
	case strings.Contains(desc, "net"), strings.Contains(desc, "data"):
		category = "Utilities"
	case strings.Contains(desc, "food"), strings.Contains(desc, "restaurant"):
		category = "Meals"
	}

	return domain.Categorization{
		Category:   category,
		Source:     domain.SourceFallback,
		Confidence: FallbackConfidence,
	}
}
