// Package anomaly flags transactions whose amount is a statistical outlier
// against that vendor's historical spend.
package anomaly

import (
	"fmt"
	"math"

	"github.com/Rozthegray/ledger-guard/internal/domain"
	"github.com/shopspring/decimal"
)

// Risk scores reported by Score. The three levels are deliberate: 0.0
// means there was nothing to compare against, 0.1 means the amount was
// checked and looked normal, 0.9 means it breached the threshold.
const (
	RiskNoHistory = 0.0
	RiskNormal    = 0.1
	RiskAlert     = 0.9
)

// singlePointVariance substitutes for the undefined sample stddev when a
// vendor has exactly one historical amount: 20% of that amount.
const singlePointVariance = 0.2

// Score compares amount against the vendor's history using a one-sided
// mean + 2 sigma threshold. Absence of history is not suspicious; it
// yields OK with a zero risk score.
func Score(amount decimal.Decimal, vendor string, history domain.VendorHistory) domain.AuditVerdict {
	if len(history) == 0 {
		return domain.AuditVerdict{Status: domain.AuditStatusOK, RiskScore: RiskNoHistory, Note: "No history available"}
	}

	amounts := history[vendor]
	if len(amounts) == 0 {
		return domain.AuditVerdict{Status: domain.AuditStatusOK, RiskScore: RiskNoHistory, Note: "New vendor"}
	}

	mean, stddev := meanStddev(amounts)
	if len(amounts) == 1 {
		stddev = mean * singlePointVariance
	}

	threshold := mean + 2*stddev
	current := amount.InexactFloat64()

	if current > threshold {
		return domain.AuditVerdict{
			Status:    domain.AuditStatusAlert,
			RiskScore: RiskAlert,
			Note:      fmt.Sprintf("Spike detected. Usual: %.2f, Current: %.2f", mean, current),
		}
	}

	return domain.AuditVerdict{Status: domain.AuditStatusOK, RiskScore: RiskNormal, Note: "Normal behavior"}
}

// DocumentRiskScore escalates linearly with the number of flagged
// transactions, capped at 100.
func DocumentRiskScore(txs []domain.EnrichedTransaction) int {
	count := 0
	for _, tx := range txs {
		if tx.IsAnomaly {
			count++
		}
	}
	score := count * 20
	if score > 100 {
		score = 100
	}
	return score
}

// meanStddev returns the mean and sample standard deviation. The stddev
// is zero when fewer than two amounts exist; Score substitutes for that
// case before using it.
func meanStddev(amounts []decimal.Decimal) (float64, float64) {
	n := float64(len(amounts))

	var sum float64
	for _, a := range amounts {
		sum += a.InexactFloat64()
	}
	mean := sum / n

	if len(amounts) < 2 {
		return mean, 0
	}

	var sq float64
	for _, a := range amounts {
		d := a.InexactFloat64() - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / (n - 1))
}
