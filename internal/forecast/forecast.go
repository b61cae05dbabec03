// Package forecast projects future account balance from daily balance
// history and reports either a projected insolvency date or the lowest
// balance expected over the horizon.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Rozthegray/ledger-guard/internal/domain"
)

// MinPoints is the smallest balance history a model can be fitted on.
const MinPoints = 5

// seasonalPeriodDays is the monthly cycle length used for the harmonic
// terms. Yearly and daily seasonality are not modeled; balance history
// rarely spans a year and intra-day movement is invisible at daily grain.
const seasonalPeriodDays = 30.5

// maxHarmonicOrder caps the number of sin/cos pairs in the seasonal
// component. Short histories get fewer pairs so the fit stays determined.
const maxHarmonicOrder = 5

const daysPerMonth = 30

// ErrInsufficientData is returned by EstimateRunway when the history is
// shorter than MinPoints.
var ErrInsufficientData = errors.New("forecast: not enough balance history")

// Forecaster fits a trend plus monthly-seasonality model over balance
// history and projects it forward day by day.
type Forecaster struct {
	horizonMonths int
}

// New creates a Forecaster projecting horizonMonths * 30 days ahead.
// A non-positive horizon defaults to three months.
func New(horizonMonths int) *Forecaster {
	if horizonMonths <= 0 {
		horizonMonths = 3
	}
	return &Forecaster{horizonMonths: horizonMonths}
}

// Project fits the model and scans the projected days, strictly after the
// last observation, for the first negative balance.
func (f *Forecaster) Project(points []domain.BalancePoint) domain.ForecastResult {
	if len(points) < MinPoints {
		return domain.ForecastResult{
			Status:  domain.ForecastInsufficientData,
			Message: fmt.Sprintf("Need at least %d balance points, got %d", MinPoints, len(points)),
		}
	}

	model := fit(points)
	lastDate := model.lastDate
	lastT := model.lastT

	horizonDays := f.horizonMonths * daysPerMonth
	lowest := math.Inf(1)

	for day := 1; day <= horizonDays; day++ {
		projected := model.at(lastT + float64(day))
		if projected < 0 {
			crash := lastDate.AddDate(0, 0, day)
			return domain.ForecastResult{
				Status:    domain.ForecastDanger,
				CrashDate: &crash,
				Message:   fmt.Sprintf("Projected balance goes negative on %s", crash.Format("2006-01-02")),
			}
		}
		if projected < lowest {
			lowest = projected
		}
	}

	return domain.ForecastResult{
		Status:                 domain.ForecastSafe,
		LowestProjectedBalance: &lowest,
		Message:                "Balance stays positive across the horizon",
	}
}

// EstimateRunway is the linear variant: it reduces the projection to a
// single 30-day burn figure and extrapolates that rate forward.
func (f *Forecaster) EstimateRunway(points []domain.BalancePoint) (domain.RunwayEstimate, error) {
	if len(points) < MinPoints {
		return domain.RunwayEstimate{}, ErrInsufficientData
	}

	model := fit(points)
	current := model.points[len(model.points)-1].Balance.InexactFloat64()
	projected := model.at(model.lastT + daysPerMonth)

	burn := current - projected
	if burn <= 1e-9 {
		return domain.RunwayEstimate{
			CurrentBalance:  current,
			MonthlyBurnRate: burn,
			Unbounded:       true,
		}, nil
	}

	perDay := burn / daysPerMonth
	runwayDays := int(math.Floor(current / perDay))
	zeroDate := model.lastDate.AddDate(0, 0, runwayDays)

	return domain.RunwayEstimate{
		CurrentBalance:  current,
		MonthlyBurnRate: burn,
		RunwayDays:      runwayDays,
		ZeroBalanceDate: &zeroDate,
	}, nil
}

// fittedModel is a trend plus harmonic regression over days since the
// first observation.
type fittedModel struct {
	points   []domain.BalancePoint
	coeffs   []float64
	order    int
	lastDate time.Time
	lastT    float64
}

// at evaluates the model at t days since the first observation.
func (m *fittedModel) at(t float64) float64 {
	row := featureRow(t, m.order)
	var v float64
	for i, c := range m.coeffs {
		v += c * row[i]
	}
	return v
}

// fit sorts the history, builds the design matrix and solves the normal
// equations by Gaussian elimination. A small ridge term keeps the system
// solvable when harmonic columns are nearly collinear on short histories.
func fit(points []domain.BalancePoint) *fittedModel {
	sorted := make([]domain.BalancePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	order := (len(sorted) - 2) / 2
	if order > maxHarmonicOrder {
		order = maxHarmonicOrder
	}
	if order < 1 {
		order = 1
	}

	origin := sorted[0].Date
	n := len(sorted)
	cols := 2 + 2*order

	rows := make([][]float64, n)
	ys := make([]float64, n)
	for i, p := range sorted {
		t := p.Date.Sub(origin).Hours() / 24
		rows[i] = featureRow(t, order)
		ys[i] = p.Balance.InexactFloat64()
	}

	// Normal equations: (X'X + lambda*I) c = X'y.
	ata := make([][]float64, cols)
	atb := make([]float64, cols)
	for i := range ata {
		ata[i] = make([]float64, cols)
	}
	for r := 0; r < n; r++ {
		for i := 0; i < cols; i++ {
			for j := 0; j < cols; j++ {
				ata[i][j] += rows[r][i] * rows[r][j]
			}
			atb[i] += rows[r][i] * ys[r]
		}
	}
	for i := 0; i < cols; i++ {
		ata[i][i] += 1e-6
	}

	last := sorted[n-1]
	return &fittedModel{
		points:   sorted,
		coeffs:   solve(ata, atb),
		order:    order,
		lastDate: last.Date,
		lastT:    last.Date.Sub(origin).Hours() / 24,
	}
}

func featureRow(t float64, order int) []float64 {
	row := make([]float64, 2+2*order)
	row[0] = 1
	row[1] = t
	for k := 1; k <= order; k++ {
		angle := 2 * math.Pi * float64(k) * t / seasonalPeriodDays
		row[2*k] = math.Sin(angle)
		row[2*k+1] = math.Cos(angle)
	}
	return row
}

// solve runs Gaussian elimination with partial pivoting. The matrix is
// modified in place; the caller does not reuse it.
func solve(a [][]float64, b []float64) []float64 {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		if a[col][col] == 0 {
			continue
		}
		for r := col + 1; r < n; r++ {
			factor := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		if a[r][r] == 0 {
			continue
		}
		sum := b[r]
		for c := r + 1; c < n; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x
}
