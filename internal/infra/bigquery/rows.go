// Package bigquery persists audit records, their transactions and balance
// history in BigQuery.
package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/Rozthegray/ledger-guard/internal/domain"
	"github.com/shopspring/decimal"
)

// Audit lifecycle statuses as stored in the audits table.
const (
	AuditPending   = "PENDING"
	AuditRunning   = "RUNNING"
	AuditCompleted = "COMPLETED"
	AuditFailed    = "FAILED"
)

// AuditRow is one statement audit in the audits table.
type AuditRow struct {
	AuditID  string `bigquery:"audit_id"`
	UserID   string `bigquery:"user_id"`
	GCSURI   string `bigquery:"gcs_uri"`
	Filename string `bigquery:"original_filename"`

	Status string `bigquery:"status"`

	// RiskScore is the document-level risk in [0,100], set on completion.
	RiskScore        bigquery.NullInt64 `bigquery:"risk_score"`
	TransactionCount bigquery.NullInt64 `bigquery:"transaction_count"`
	ErrorMessage     string             `bigquery:"error_message"`

	CreatedTS  time.Time              `bigquery:"created_ts"`
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"`
}

// TransactionRow is one enriched transaction in the audit_transactions table.
type TransactionRow struct {
	AuditID string `bigquery:"audit_id"`

	// Position preserves statement order within the audit.
	Position int `bigquery:"position"`

	// TransactionDate is NULL when the statement date did not normalize;
	// RawDate always holds the original token.
	TransactionDate bigquery.NullDate `bigquery:"transaction_date"`
	RawDate         string            `bigquery:"raw_date"`

	Description string   `bigquery:"description"`
	Amount      *big.Rat `bigquery:"amount"` // NUMERIC
	Vendor      string   `bigquery:"vendor"`

	Category           string  `bigquery:"category"`
	CategorySource     string  `bigquery:"category_source"`
	CategoryConfidence float64 `bigquery:"category_confidence"`

	IsAnomaly   bool    `bigquery:"is_anomaly"`
	RiskScore   float64 `bigquery:"risk_score"`
	AuditReason string  `bigquery:"audit_reason"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// BalancePointRow is one end-of-day balance observation per user.
type BalancePointRow struct {
	UserID    string    `bigquery:"user_id"`
	PointDate civil.Date `bigquery:"point_date"`
	Balance   *big.Rat  `bigquery:"balance"` // NUMERIC
	CreatedTS time.Time `bigquery:"created_ts"`
}

// toTransactionRow maps an enriched transaction into its storage row.
func toTransactionRow(auditID string, position int, tx domain.EnrichedTransaction, now time.Time) *TransactionRow {
	row := &TransactionRow{
		AuditID:            auditID,
		Position:           position,
		RawDate:            tx.Date,
		Description:        tx.Description,
		Amount:             tx.Amount.Rat(),
		Vendor:             tx.Vendor,
		Category:           tx.Category,
		CategorySource:     string(tx.CategorySource),
		CategoryConfidence: tx.CategoryConfidence,
		IsAnomaly:          tx.IsAnomaly,
		RiskScore:          tx.RiskScore,
		AuditReason:        tx.AuditReason,
		CreatedTS:          now,
	}
	if d, err := civil.ParseDate(tx.Date); err == nil {
		row.TransactionDate = bigquery.NullDate{Date: d, Valid: true}
	}
	return row
}

// toEnrichedTransaction maps a storage row back to the domain shape.
func toEnrichedTransaction(row *TransactionRow) domain.EnrichedTransaction {
	amount := decimal.Zero
	if row.Amount != nil {
		amount = decimal.NewFromBigRat(row.Amount, 2)
	}
	return domain.EnrichedTransaction{
		Date:               row.RawDate,
		Description:        row.Description,
		Amount:             amount,
		Vendor:             row.Vendor,
		Category:           row.Category,
		CategorySource:     domain.CategorySource(row.CategorySource),
		CategoryConfidence: row.CategoryConfidence,
		IsAnomaly:          row.IsAnomaly,
		RiskScore:          row.RiskScore,
		AuditReason:        row.AuditReason,
	}
}
