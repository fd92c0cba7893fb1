// Package risk implements C8: turning a sequence of closed Trades into the
// equity curve, period-return series, and derived scalars the spec calls
// RiskMetrics. Decimal trade data is converted to float64 at this boundary —
// the statistics below are not re-verified against a ledger, so the
// precision discipline C1-C7 carry through decimal.Decimal is no longer
// needed past this point.
package risk

import (
	"math"

	"marketsim/internal/trade"
)

// DefaultPeriodsPerYear and DefaultRiskFreeRate are the §6.4 defaults;
// Analyzer carries them as plain fields so a caller can override them.
const (
	DefaultPeriodsPerYear = 252.0
	DefaultRiskFreeRate   = 0.02
)

// Metrics are the derived risk/return scalars of §3/§4.8.
type Metrics struct {
	TotalReturn   float64
	MaxDrawdown   float64 // percentage, in [0,100]
	Sharpe        float64
	Sortino       float64
	Calmar        float64
	Volatility    float64
	WinRate       float64
	ProfitFactor  float64
	Expectancy    float64
	NTrades       int
}

// Analyzer computes Metrics from a trade sequence, with the annualization
// convention (periods/year, risk-free rate) fixed at construction.
type Analyzer struct {
	PeriodsPerYear float64
	RiskFreeRate   float64
}

// New returns an Analyzer using the §6.4 defaults.
func New() *Analyzer {
	return &Analyzer{PeriodsPerYear: DefaultPeriodsPerYear, RiskFreeRate: DefaultRiskFreeRate}
}

// Analyze builds the equity curve from initialCapital and trades (in the
// order they closed) and derives Metrics from it.
func (a *Analyzer) Analyze(initialCapital float64, trades []*trade.Trade) Metrics {
	m := Metrics{NTrades: len(trades)}
	if len(trades) == 0 {
		return m
	}

	equity := make([]float64, len(trades)+1)
	equity[0] = initialCapital
	for i, t := range trades {
		profit, _ := t.Profit.Float64()
		equity[i+1] = equity[i] + profit
	}

	final := equity[len(equity)-1]
	if initialCapital != 0 {
		m.TotalReturn = (final - initialCapital) / initialCapital
	}

	m.MaxDrawdown = maxDrawdownPct(equity)

	returns := periodReturns(equity)
	m.Volatility = stdev(returns) * math.Sqrt(a.PeriodsPerYear)

	rfPerPeriod := math.Pow(1+a.RiskFreeRate, 1/a.PeriodsPerYear) - 1
	m.Sharpe = a.sharpe(returns, rfPerPeriod)
	m.Sortino = a.sortino(returns, rfPerPeriod)

	if m.MaxDrawdown == 0 {
		m.Calmar = math.Inf(1)
	} else {
		m.Calmar = m.TotalReturn / (m.MaxDrawdown / 100)
	}

	winRate, avgWin, avgLoss, profitFactor := tradeStats(trades)
	m.WinRate = winRate
	m.ProfitFactor = profitFactor
	m.Expectancy = winRate*avgWin - (1-winRate)*avgLoss

	return m
}

// sharpe returns the annualized Sharpe ratio of returns over risk-free
// rfPerPeriod, or +Inf/-Inf (0 for an exactly zero mean excess) when the
// excess-return series has zero dispersion (a flat or single-point series) — the explicit sentinel §8
// requires instead of a division by zero.
func (a *Analyzer) sharpe(returns []float64, rfPerPeriod float64) float64 {
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - rfPerPeriod
	}
	sd := stdev(excess)
	if sd == 0 {
		return sentinelForMean(mean(excess))
	}
	return (mean(excess) / sd) * math.Sqrt(a.PeriodsPerYear)
}

// sortino mirrors sharpe but divides by downside deviation: the RMS of only
// the returns below rfPerPeriod.
func (a *Analyzer) sortino(returns []float64, rfPerPeriod float64) float64 {
	var sumSq float64
	var n int
	for _, r := range returns {
		if r < rfPerPeriod {
			d := r - rfPerPeriod
			sumSq += d * d
			n++
		}
	}
	if n == 0 {
		return sentinelForMean(mean(returns) - rfPerPeriod)
	}
	downside := math.Sqrt(sumSq / float64(n))
	if downside == 0 {
		return sentinelForMean(mean(returns) - rfPerPeriod)
	}
	return ((mean(returns) - rfPerPeriod) / downside) * math.Sqrt(a.PeriodsPerYear)
}

// sentinelForMean is the zero-dispersion Sharpe/Sortino sentinel: +Inf for a
// positive excess return, -Inf for a negative one, 0 for an exactly flat
// series (no edge to speak of).
func sentinelForMean(excess float64) float64 {
	switch {
	case excess > 0:
		return math.Inf(1)
	case excess < 0:
		return math.Inf(-1)
	default:
		return 0
	}
}

func tradeStats(trades []*trade.Trade) (winRate, avgWin, avgLoss, profitFactor float64) {
	var wins, losses int
	var winSum, lossSum float64
	for _, t := range trades {
		profit, _ := t.Profit.Float64()
		switch {
		case profit > 0:
			wins++
			winSum += profit
		case profit < 0:
			losses++
			lossSum += -profit
		}
	}
	if len(trades) > 0 {
		winRate = float64(wins) / float64(len(trades))
	}
	if wins > 0 {
		avgWin = winSum / float64(wins)
	}
	if losses > 0 {
		avgLoss = lossSum / float64(losses)
	}
	if losses == 0 {
		profitFactor = math.Inf(1)
	} else {
		profitFactor = winSum / lossSum
	}
	return
}

func periodReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (equity[i]-equity[i-1])/equity[i-1])
	}
	return out
}

// maxDrawdownPct walks equity with a running high-water mark, returning the
// maximum (hwm-cap)/hwm*100 observed, per §4.7/§4.8.
func maxDrawdownPct(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	hwm := equity[0]
	maxDD := 0.0
	for _, eq := range equity {
		if eq > hwm {
			hwm = eq
		}
		if hwm <= 0 {
			continue
		}
		dd := (hwm - eq) / hwm * 100
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdev is the population standard deviation (divides by n, not n-1): the
// return series here is the full observed sequence, not a sample drawn from
// a larger population.
func stdev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}
