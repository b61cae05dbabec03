package forecast

import (
	"testing"
	"time"

	"github.com/Rozthegray/ledger-guard/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(start time.Time, balances ...float64) []domain.BalancePoint {
	points := make([]domain.BalancePoint, len(balances))
	for i, b := range balances {
		points[i] = domain.BalancePoint{
			Date:    start.AddDate(0, 0, i),
			Balance: decimal.NewFromFloat(b),
		}
	}
	return points
}

var day0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestProject_InsufficientData(t *testing.T) {
	f := New(3)

	for n := 0; n < MinPoints; n++ {
		balances := make([]float64, n)
		for i := range balances {
			balances[i] = 1000
		}
		got := f.Project(series(day0, balances...))
		assert.Equal(t, domain.ForecastInsufficientData, got.Status, "with %d points", n)
		assert.Nil(t, got.CrashDate)
	}
}

func TestProject_SteadyDeclineIsDanger(t *testing.T) {
	// 500, 400, 300, 200, 100: about 100 per day of burn.
	points := series(day0, 500, 400, 300, 200, 100)

	got := New(3).Project(points)

	require.Equal(t, domain.ForecastDanger, got.Status)
	require.NotNil(t, got.CrashDate)
	assert.True(t, got.CrashDate.After(points[len(points)-1].Date),
		"crash date %v must be strictly after the last observation", got.CrashDate)
	assert.Nil(t, got.LowestProjectedBalance)
}

func TestProject_GrowingBalanceIsSafe(t *testing.T) {
	points := series(day0, 1000, 1100, 1200, 1300, 1400, 1500, 1600, 1700)

	got := New(3).Project(points)

	require.Equal(t, domain.ForecastSafe, got.Status)
	require.NotNil(t, got.LowestProjectedBalance)
	assert.GreaterOrEqual(t, *got.LowestProjectedBalance, 0.0)
	assert.Nil(t, got.CrashDate)
}

func TestProject_UnsortedInputIsHandled(t *testing.T) {
	points := series(day0, 500, 400, 300, 200, 100)
	points[0], points[4] = points[4], points[0]

	got := New(3).Project(points)

	assert.Equal(t, domain.ForecastDanger, got.Status)
}

func TestProject_SlowDeclineOutlivesShortHorizon(t *testing.T) {
	// Roughly 1 per day of burn from 10000: insolvency is years away.
	balances := make([]float64, 30)
	for i := range balances {
		balances[i] = 10000 - float64(i)
	}

	got := New(1).Project(series(day0, balances...))

	assert.Equal(t, domain.ForecastSafe, got.Status)
}

func TestEstimateRunway_InsufficientData(t *testing.T) {
	_, err := New(3).EstimateRunway(series(day0, 100, 90, 80))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEstimateRunway_LinearBurn(t *testing.T) {
	// 10 per day of decline, so about 300 per month.
	balances := make([]float64, 10)
	for i := range balances {
		balances[i] = 1000 - 10*float64(i)
	}
	points := series(day0, balances...)

	got, err := New(3).EstimateRunway(points)
	require.NoError(t, err)

	assert.False(t, got.Unbounded)
	assert.InDelta(t, 910, got.CurrentBalance, 1e-9)
	assert.InDelta(t, 300, got.MonthlyBurnRate, 20)
	assert.InDelta(t, 91, float64(got.RunwayDays), 6)
	require.NotNil(t, got.ZeroBalanceDate)
	assert.True(t, got.ZeroBalanceDate.After(points[len(points)-1].Date))
}

func TestEstimateRunway_GrowingBalanceIsUnbounded(t *testing.T) {
	balances := make([]float64, 10)
	for i := range balances {
		balances[i] = 1000 + 50*float64(i)
	}

	got, err := New(3).EstimateRunway(series(day0, balances...))
	require.NoError(t, err)

	assert.True(t, got.Unbounded)
	assert.Zero(t, got.RunwayDays)
	assert.Nil(t, got.ZeroBalanceDate)
}

func TestSolve(t *testing.T) {
	// 2x + y = 5, x + 3y = 10 -> x = 1, y = 3
	a := [][]float64{{2, 1}, {1, 3}}
	b := []float64{5, 10}

	x := solve(a, b)

	assert.InDelta(t, 1, x[0], 1e-9)
	assert.InDelta(t, 3, x[1], 1e-9)
}
