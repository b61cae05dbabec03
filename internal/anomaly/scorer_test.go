package anomaly

import (
	"math"
	"testing"

	"github.com/Rozthegray/ledger-guard/internal/domain"
	"github.com/shopspring/decimal"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestScore_NoHistoryAtAll(t *testing.T) {
	got := Score(dec(9999), "AWS", domain.VendorHistory{})
	if got.Status != domain.AuditStatusOK || got.RiskScore != RiskNoHistory {
		t.Errorf("Score() = %+v, want OK with risk 0.0", got)
	}
}

func TestScore_UnknownVendor(t *testing.T) {
	history := domain.VendorHistory{"Netflix": {dec(15)}}

	got := Score(dec(9999), "AWS", history)
	if got.Status != domain.AuditStatusOK || got.RiskScore != RiskNoHistory {
		t.Errorf("Score() = %+v, want OK with risk 0.0 for a new vendor", got)
	}
}

// With exactly one prior amount A, the substitute variance band makes the
// threshold A + 2*(0.2*A) = 1.4*A.
func TestScore_SinglePointThreshold(t *testing.T) {
	for _, a := range []float64{10, 50, 123.45, 10000} {
		history := domain.VendorHistory{"AWS": {dec(a)}}

		justUnder := Score(dec(a*1.4-0.01), "AWS", history)
		if justUnder.Status != domain.AuditStatusOK {
			t.Errorf("amount just under 1.4*%v flagged: %+v", a, justUnder)
		}
		if justUnder.RiskScore != RiskNormal {
			t.Errorf("checked-and-normal risk = %v, want %v", justUnder.RiskScore, RiskNormal)
		}

		justOver := Score(dec(a*1.4+0.01), "AWS", history)
		if justOver.Status != domain.AuditStatusAlert {
			t.Errorf("amount just over 1.4*%v not flagged: %+v", a, justOver)
		}
		if justOver.RiskScore != RiskAlert {
			t.Errorf("alert risk = %v, want %v", justOver.RiskScore, RiskAlert)
		}
	}
}

func TestScore_MultiPointThreshold(t *testing.T) {
	// mean = 50, sample stddev = 10 -> threshold = 70
	history := domain.VendorHistory{"AWS": {dec(40), dec(50), dec(60)}}

	if got := Score(dec(69), "AWS", history); got.Status != domain.AuditStatusOK {
		t.Errorf("Score(69) = %+v, want OK", got)
	}
	if got := Score(dec(75), "AWS", history); got.Status != domain.AuditStatusAlert {
		t.Errorf("Score(75) = %+v, want ALERT", got)
	}
}

// The test is one-sided: a collapse far below the mean is never flagged.
func TestScore_UpperTailOnly(t *testing.T) {
	history := domain.VendorHistory{"Payroll": {dec(50000), dec(51000), dec(49000)}}

	got := Score(dec(5), "Payroll", history)
	if got.Status != domain.AuditStatusOK {
		t.Errorf("Score() = %+v, low outliers must not alert", got)
	}
}

func TestScore_AlertNoteCarriesMeanAndCurrent(t *testing.T) {
	history := domain.VendorHistory{"AWS": {dec(50)}}

	got := Score(dec(500), "AWS", history)
	if got.Note == "" {
		t.Fatal("expected a human-readable note on alert")
	}
	for _, want := range []string{"50.00", "500.00"} {
		if !contains(got.Note, want) {
			t.Errorf("note %q missing %q", got.Note, want)
		}
	}
}

func TestMeanStddev(t *testing.T) {
	mean, stddev := meanStddev([]decimal.Decimal{dec(40), dec(50), dec(60)})
	if math.Abs(mean-50) > 1e-9 {
		t.Errorf("mean = %v, want 50", mean)
	}
	if math.Abs(stddev-10) > 1e-9 {
		t.Errorf("stddev = %v, want 10 (sample)", stddev)
	}
}

func TestDocumentRiskScore(t *testing.T) {
	mk := func(anomalies, normals int) []domain.EnrichedTransaction {
		txs := make([]domain.EnrichedTransaction, 0, anomalies+normals)
		for i := 0; i < anomalies; i++ {
			txs = append(txs, domain.EnrichedTransaction{IsAnomaly: true})
		}
		for i := 0; i < normals; i++ {
			txs = append(txs, domain.EnrichedTransaction{})
		}
		return txs
	}

	tests := []struct {
		anomalies, normals, want int
	}{
		{0, 10, 0},
		{1, 5, 20},
		{3, 0, 60},
		{5, 2, 100},
		{9, 0, 100}, // capped
	}

	for _, tt := range tests {
		if got := DocumentRiskScore(mk(tt.anomalies, tt.normals)); got != tt.want {
			t.Errorf("DocumentRiskScore(%d anomalies) = %d, want %d", tt.anomalies, got, tt.want)
		}
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
