package telemetry

import "github.com/google/uuid"

// NewRunID returns a fresh identifier for one BacktestEngine.Run
// invocation. Unlike order IDs (internal/order.NextID, which
// must be strictly monotonic), run IDs only need to be unique, so a UUID is
// the right fit here.
func NewRunID() string {
	return "run_" + uuid.NewString()
}
