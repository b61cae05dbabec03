package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ForecastStatus classifies a runway forecast outcome.
type ForecastStatus string

const (
	// ForecastInsufficientData means too few balance points to fit a model.
	ForecastInsufficientData ForecastStatus = "insufficient_data"
	// ForecastSafe means no projected point goes negative within the horizon.
	ForecastSafe ForecastStatus = "SAFE"
	// ForecastDanger means a projected point crosses zero within the horizon.
	ForecastDanger ForecastStatus = "DANGER"
)

// BalancePoint is one observation of the account balance at the end of a day.
type BalancePoint struct {
	Date    time.Time       `json:"date"`
	Balance decimal.Decimal `json:"balance"`
}

// ForecastResult is the outcome of projecting balance over a horizon.
type ForecastResult struct {
	Status ForecastStatus `json:"status"`

	// CrashDate is set only when Status is DANGER: the first projected
	// day with a negative balance, strictly after the last observation.
	CrashDate *time.Time `json:"crash_date,omitempty"`

	// LowestProjectedBalance is set only when Status is SAFE.
	LowestProjectedBalance *float64 `json:"lowest_projected_balance,omitempty"`

	Message string `json:"message,omitempty"`
}

// RunwayEstimate is the linear burn-rate variant of the forecast.
type RunwayEstimate struct {
	CurrentBalance  float64 `json:"current_balance"`
	MonthlyBurnRate float64 `json:"monthly_burn_rate"`

	// Unbounded is true when the balance is flat or growing; RunwayDays
	// and ZeroBalanceDate are meaningless in that case.
	Unbounded       bool       `json:"unbounded"`
	RunwayDays      int        `json:"runway_days,omitempty"`
	ZeroBalanceDate *time.Time `json:"zero_balance_date,omitempty"`
}
