package telemetry

import "context"

type contextKey string

const (
	runIDKey contextKey = "run_id"
	taskIDKey contextKey = "task_id"
	symbolKey contextKey = "symbol"
)

// RunInfo carries correlation identifiers through a context: RunID
// identifies one BacktestEngine.Run or evaluator sweep/window, TaskID
// identifies one parameter-sweep task within it, and Symbol narrows a log
// line to the bar currently being processed.
type RunInfo struct {
	RunID  string
	TaskID string
	Symbol string
}

// WithRunInfo attaches non-empty fields of info to ctx.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	if info.RunID != "" {
		ctx = context.WithValue(ctx, runIDKey, info.RunID)
	}
	if info.TaskID != "" {
		ctx = context.WithValue(ctx, taskIDKey, info.TaskID)
	}
	if info.Symbol != "" {
		ctx = context.WithValue(ctx, symbolKey, info.Symbol)
	}
	return ctx
}

// RunInfoFromContext reads back whatever WithRunInfo attached.
func RunInfoFromContext(ctx context.Context) RunInfo {
	info := RunInfo{}
	if v, ok := ctx.Value(runIDKey).(string); ok {
		info.RunID = v
	}
	if v, ok := ctx.Value(taskIDKey).(string); ok {
		info.TaskID = v
	}
	if v, ok := ctx.Value(symbolKey).(string); ok {
		info.Symbol = v
	}
	return info
}
