// Package trade defines the closed round-trip record that the order
// execution simulator emits whenever a fill closes a position.
package trade

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is immutable once constructed, created at the moment a Position
// closes (§4.5).
type Trade struct {
	Symbol    string
	EntryTime time.Time
	// EntryPrice and EntryQty come from the closing fill's originating
	// position leg (see Design Note "Trade reconstruction by journal
	// walk" — this is the Position.avg_price/originating_order path, not a
	// journal search).
	EntryPrice decimal.Decimal
	EntryQty   decimal.Decimal
	ExitTime   time.Time
	ExitPrice  decimal.Decimal
	ExitQty    decimal.Decimal

	CommissionTotal decimal.Decimal
	Profit          decimal.Decimal
	ProfitPct       decimal.Decimal
	IsLong          bool

	CapitalAfterTrade decimal.Decimal

	StopLossHit   bool
	TakeProfitHit bool
}
