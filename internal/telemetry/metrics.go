package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments engine operation. Exposed via the default Prometheus
// registry so a host process can serve /metrics the usual way; this module
// itself never starts an HTTP server (dashboards/CLIs are out of scope).
var (
	barsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsim_bars_processed_total",
			Help: "Bars dispatched by the backtest event loop.",
		},
		[]string{"symbol"},
	)

	ordersFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsim_orders_filled_total",
			Help: "Orders that filled, by order type and side.",
		},
		[]string{"type", "side"},
	)

	ordersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsim_orders_rejected_total",
			Help: "Orders that did not fill (execution misses), by reason.",
		},
		[]string{"reason"},
	)

	tradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsim_trades_closed_total",
			Help: "Closed trades, by result (win|loss) and exit reason.",
		},
		[]string{"result", "reason"},
	)

	equityGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketsim_equity",
			Help: "Portfolio total value at the latest processed bar, by run_id.",
		},
		[]string{"run_id"},
	)

	evaluatorTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsim_evaluator_tasks_total",
			Help: "Parameter-sweep tasks completed, by outcome (ok|error).",
		},
		[]string{"outcome"},
	)

	walkForwardWindows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketsim_walk_forward_windows_total",
			Help: "Walk-forward train/test windows evaluated.",
		},
	)

	loaderBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketsim_loader_breaker_trips_total",
			Help: "Circuit breaker trips guarding the historical-data loader, by source.",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(
		barsProcessed, ordersFilled, ordersRejected, tradesClosed,
		equityGauge, evaluatorTasks, walkForwardWindows, loaderBreakerTrips,
	)
}

// IncBarsProcessed records one bar dispatched for symbol.
func IncBarsProcessed(symbol string) { barsProcessed.WithLabelValues(symbol).Inc() }

// IncOrderFilled records a filled order.
func IncOrderFilled(orderType, side string) { ordersFilled.WithLabelValues(orderType, side).Inc() }

// IncOrderRejected records an execution miss.
func IncOrderRejected(reason string) { ordersRejected.WithLabelValues(reason).Inc() }

// IncTradeClosed records a closed trade, result being "win" or "loss" and
// reason being "signal", "stop_loss", or "take_profit".
func IncTradeClosed(result, reason string) { tradesClosed.WithLabelValues(result, reason).Inc() }

// SetEquity records the portfolio's total value at the latest bar of run.
func SetEquity(runID string, value float64) { equityGauge.WithLabelValues(runID).Set(value) }

// IncEvaluatorTask records one completed parameter-sweep task.
func IncEvaluatorTask(outcome string) { evaluatorTasks.WithLabelValues(outcome).Inc() }

// IncWalkForwardWindow records one evaluated walk-forward window.
func IncWalkForwardWindow() { walkForwardWindows.Inc() }

// IncLoaderBreakerTrip records a circuit breaker trip for a loader source.
func IncLoaderBreakerTrip(source string) { loaderBreakerTrips.WithLabelValues(source).Inc() }
