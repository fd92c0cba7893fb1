package risk

import (
	"fmt"
	"math"

	"marketsim/internal/bar"
)

// Conservative per-trade risk and stop-distance defaults, carried over from
// the live-trading risk policy this backtest kernel was distilled from:
// risking more than 2% of equity or placing a stop inside 1%/outside 10% of
// entry is the kind of sizing mistake a strategy shouldn't be allowed to make
// silently.
const (
	DefaultMaxRiskPerTrade = 0.02
	DefaultMinStopDistance = 0.01
	DefaultMaxStopDistance = 0.10
)

// ValidateStopDistance checks that a stop-loss price sits within
// [DefaultMinStopDistance, DefaultMaxStopDistance] of entry, expressed as a
// fraction of entry. A stop too close risks being shaken out by noise; a
// stop too far defeats the point of having one.
func ValidateStopDistance(entry, stopLoss float64) error {
	if entry <= 0 {
		return fmt.Errorf("risk: entry must be positive, got %v", entry)
	}
	frac := math.Abs(entry-stopLoss) / entry
	if frac < DefaultMinStopDistance {
		return fmt.Errorf("risk: stop distance %.4f below minimum %.4f", frac, DefaultMinStopDistance)
	}
	if frac > DefaultMaxStopDistance {
		return fmt.Errorf("risk: stop distance %.4f above maximum %.4f", frac, DefaultMaxStopDistance)
	}
	return nil
}

// PositionSize is the §4.8 sizing helper: the whole-unit quantity that risks
// riskPct percent of portfolioValue given a distance between entry and stop.
// Returns 0 for any nonpositive input rather than a negative or infinite
// size.
func PositionSize(portfolioValue, riskPct, entry, stopLoss float64) float64 {
	if portfolioValue <= 0 || riskPct <= 0 || entry <= 0 || stopLoss <= 0 {
		return 0
	}
	distance := math.Abs(entry - stopLoss)
	if distance <= 0 {
		return 0
	}
	riskAmount := portfolioValue * riskPct / 100
	return math.Floor(riskAmount / distance)
}

// PercentStop returns a stop-loss price pct below (long) or above (short)
// entry.
func PercentStop(entry, pct float64, long bool) float64 {
	if long {
		return entry * (1 - pct)
	}
	return entry * (1 + pct)
}

// FixedAmountStop returns a stop-loss price a fixed currency amount below
// (long) or above (short) entry.
func FixedAmountStop(entry, amount float64, long bool) float64 {
	if long {
		return entry - amount
	}
	return entry + amount
}

// ATR computes the average true range over the last n bars of series (or
// fewer, if shorter), using the standard max(high-low, |high-prevClose|,
// |low-prevClose|) true-range definition.
func ATR(series *bar.TimeSeries, n int) float64 {
	all := series.All()
	if len(all) < 2 {
		return 0
	}
	start := len(all) - n
	if start < 1 {
		start = 1
	}
	var sum float64
	count := 0
	for i := start; i < len(all); i++ {
		high, _ := all[i].High.Float64()
		low, _ := all[i].Low.Float64()
		prevClose, _ := all[i-1].Close.Float64()
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		sum += tr
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// ATRStop returns a stop-loss price a multiple of ATR away from entry.
func ATRStop(entry float64, series *bar.TimeSeries, n int, multiple float64, long bool) float64 {
	atr := ATR(series, n)
	if long {
		return entry - multiple*atr
	}
	return entry + multiple*atr
}

// ChandelierStop returns the classic Chandelier exit: the highest high (long)
// or lowest low (short) over the last n bars, offset by a multiple of ATR.
func ChandelierStop(series *bar.TimeSeries, n int, multiple float64, long bool) float64 {
	all := series.All()
	if len(all) == 0 {
		return 0
	}
	start := len(all) - n
	if start < 0 {
		start = 0
	}
	atr := ATR(series, n)

	if long {
		highest, _ := all[start].High.Float64()
		for i := start + 1; i < len(all); i++ {
			h, _ := all[i].High.Float64()
			if h > highest {
				highest = h
			}
		}
		return highest - multiple*atr
	}

	lowest, _ := all[start].Low.Float64()
	for i := start + 1; i < len(all); i++ {
		l, _ := all[i].Low.Float64()
		if l < lowest {
			lowest = l
		}
	}
	return lowest + multiple*atr
}

// BollingerStop returns the lower band (long) or upper band (short) of a
// Bollinger Band computed over the last n closes with the given standard-
// deviation multiple — a volatility-adaptive stop.
func BollingerStop(series *bar.TimeSeries, n int, multiple float64, long bool) float64 {
	closes := series.ClosePricesLastN(n)
	if len(closes) == 0 {
		return 0
	}
	floats := make([]float64, len(closes))
	var sum float64
	for i, c := range closes {
		v, _ := c.Float64()
		floats[i] = v
		sum += v
	}
	avg := sum / float64(len(floats))
	var sumSq float64
	for _, v := range floats {
		d := v - avg
		sumSq += d * d
	}
	sd := math.Sqrt(sumSq / float64(len(floats)))

	if long {
		return avg - multiple*sd
	}
	return avg + multiple*sd
}
