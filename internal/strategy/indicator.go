package strategy

import "github.com/shopspring/decimal"

// sma returns the simple moving average of the last n closes, or a zero
// Decimal and false if fewer than n closes are available yet.
func sma(closes []decimal.Decimal, n int) (decimal.Decimal, bool) {
	if n <= 0 || len(closes) < n {
		return decimal.Zero, false
	}
	window := closes[len(closes)-n:]
	sum := decimal.Zero
	for _, c := range window {
		sum = sum.Add(c)
	}
	return sum.Div(decimal.NewFromInt(int64(n))), true
}

// rsi computes the Wilder relative-strength index over the last n+1 closes
// (n price changes), or false if not enough closes are available yet.
func rsi(closes []decimal.Decimal, n int) (decimal.Decimal, bool) {
	if n <= 0 || len(closes) < n+1 {
		return decimal.Zero, false
	}
	window := closes[len(closes)-(n+1):]
	gainSum, lossSum := decimal.Zero, decimal.Zero
	for i := 1; i < len(window); i++ {
		delta := window[i].Sub(window[i-1])
		if delta.IsPositive() {
			gainSum = gainSum.Add(delta)
		} else {
			lossSum = lossSum.Add(delta.Abs())
		}
	}
	nd := decimal.NewFromInt(int64(n))
	avgGain := gainSum.Div(nd)
	avgLoss := lossSum.Div(nd)
	if avgLoss.IsZero() {
		return decimal.NewFromInt(100), true
	}
	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	value := hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
	return value, true
}
