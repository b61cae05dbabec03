package domain

import (
	"github.com/shopspring/decimal"
)

// CategorySource identifies which tier of the categorizer produced a label.
type CategorySource string

const (
	// SourceMemory means the label was recalled from the similarity cache.
	SourceMemory CategorySource = "memory"
	// SourceModel means the label came from the language model.
	SourceModel CategorySource = "model"
	// SourceFallback means the label came from the keyword rules (or an error path).
	SourceFallback CategorySource = "fallback"
)

// CandidateTransaction is one transaction extracted from raw statement text.
// It has no identity beyond its position in the batch that produced it.
//
// Date is kept as a string: the model and the regex fallback both emit
// ISO "YYYY-MM-DD" when the source date is unambiguous, but the fallback
// preserves the original token when normalization fails.
type CandidateTransaction struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Vendor      string          `json:"vendor,omitempty"`
}

// Categorization is the outcome of resolving a description to a category.
type Categorization struct {
	Category   string         `json:"category"`
	Source     CategorySource `json:"source"`
	Confidence float64        `json:"confidence"` // in [0,1]
}

// AuditVerdict is the outcome of scoring one transaction against vendor history.
type AuditVerdict struct {
	Status    string  `json:"status"` // "OK" or "ALERT"
	RiskScore float64 `json:"risk_score"`
	Note      string  `json:"note"`
}

const (
	AuditStatusOK    = "OK"
	AuditStatusAlert = "ALERT"
)

// EnrichedTransaction is a candidate plus categorization and audit results.
// It is never mutated after the orchestrator produces it.
type EnrichedTransaction struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Vendor      string          `json:"vendor,omitempty"`

	Category           string         `json:"category"`
	CategorySource     CategorySource `json:"category_source"`
	CategoryConfidence float64        `json:"category_confidence"`

	IsAnomaly   bool    `json:"is_anomaly"`
	RiskScore   float64 `json:"risk_score"`
	AuditReason string  `json:"audit_reason"`
}

// VendorHistory maps a vendor name to its past transaction amounts.
// It is read-only input to the anomaly scorer; the storage layer owns it.
type VendorHistory map[string][]decimal.Decimal
