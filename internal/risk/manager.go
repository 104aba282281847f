// Package risk implements the portfolio drawdown state machine, position
// caps, expiration-cliff policy, and correlation-spike watcher. It mirrors
// the teacher's mutex-protected manager-with-snapshot shape: callers update
// state through narrow methods and read it back via Snapshot/GetRiskSnapshot
// style accessors rather than touching fields directly.
package risk

import (
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"arbcore/internal/coreerr"
	"arbcore/pkg/types"
)

// Config tunes the risk manager.
type Config struct {
	WarnDrawdown              float64 // default 0.10
	ReduceDrawdown            float64 // default 0.20
	StopDrawdown              float64 // default 0.30
	MaxSinglePosition         float64 // fraction of equity, default 0.10
	MaxClusterExposure        float64 // fraction of equity, default 0.50
	MinPositionSize           float64 // dollars, mirrors sizing.Config.MinPositionSize
	MinDaysToExpiration       float64 // default 0.2
	CorrelationWindow         int     // default 30
	CorrelationSpikeThreshold float64 // relative, default 0.50
}

// DefaultConfig mirrors the reference defaults.
func DefaultConfig() Config {
	return Config{
		WarnDrawdown:              0.10,
		ReduceDrawdown:            0.20,
		StopDrawdown:              0.30,
		MaxSinglePosition:         0.10,
		MaxClusterExposure:        0.50,
		MinPositionSize:           10,
		MinDaysToExpiration:       0.2,
		CorrelationWindow:         30,
		CorrelationSpikeThreshold: 0.50,
	}
}

// PositionSnapshot is the minimal shape the risk manager needs to reason
// about one open position for approval, expiration, and reduction ranking.
type PositionSnapshot struct {
	Ticker            string
	Series            string // cluster key
	ExposureDollars   float64
	UnrealizedPnL     float64
	DaysToExpiration  float64
}

// Metrics is a point-in-time readout of the portfolio risk state.
type Metrics struct {
	Equity           float64
	PeakEquity       float64
	Drawdown         float64
	Action           types.DrawdownAction
	ClusterExposure  map[string]float64
}

// Manager owns peak equity, the drawdown state, and cluster exposure
// tracking. All operations are synchronous, matching the single-threaded
// per-tick contract; the mutex exists to let Snapshot-style reads happen
// from a metrics-scrape goroutine without racing the main loop.
type Manager struct {
	mu sync.Mutex

	cfg    Config
	logger *slog.Logger

	equity     float64
	peakEquity float64

	// stickyFloor is the most restrictive action reached so far this
	// session; recomputed actions are clamped down to it so STOP never
	// auto-recovers (see DESIGN.md Open Question 1).
	stickyFloor types.DrawdownAction

	correlationHistory map[string][]float64 // cluster -> rolling readings

	metrics *promMetrics
}

type promMetrics struct {
	equity    prometheus.Gauge
	drawdown  prometheus.Gauge
	action    *prometheus.GaugeVec
	killState prometheus.Gauge
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	m := &promMetrics{
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbcore_portfolio_equity_dollars",
			Help: "Current mark-to-market portfolio equity.",
		}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbcore_portfolio_drawdown_ratio",
			Help: "Current drawdown from peak equity, as a fraction.",
		}),
		action: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arbcore_drawdown_action",
			Help: "1 for the currently active drawdown action, 0 otherwise.",
		}, []string{"action"}),
		killState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbcore_drawdown_stop_active",
			Help: "1 if the STOP drawdown action is in effect.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.equity, m.drawdown, m.action, m.killState)
	}
	return m
}

// New constructs a Manager. Pass a non-nil prometheus.Registerer (e.g.
// prometheus.NewRegistry()) to expose metrics, or nil to skip registration
// (tests typically pass nil).
func New(cfg Config, logger *slog.Logger, reg prometheus.Registerer) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:                cfg,
		logger:             logger.With("component", "risk_manager"),
		stickyFloor:        types.DrawdownNone,
		correlationHistory: make(map[string][]float64),
		metrics:            newPromMetrics(reg),
	}
}

// UpdateAccountValue feeds a fresh equity reading and recomputes the
// drawdown action. The returned action is clamped to never be less
// restrictive than any action previously observed this session.
func (m *Manager) UpdateAccountValue(equity float64) types.DrawdownAction {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.equity = equity
	if equity > m.peakEquity {
		m.peakEquity = equity
	}

	action := m.determineDrawdownAction()
	if !action.MoreRestrictiveThan(m.stickyFloor) {
		action = m.stickyFloor
	} else {
		m.stickyFloor = action
	}

	m.metrics.equity.Set(equity)
	if m.peakEquity > 0 {
		m.metrics.drawdown.Set((m.peakEquity - equity) / m.peakEquity)
	}
	for _, a := range []types.DrawdownAction{types.DrawdownNone, types.DrawdownWarning, types.DrawdownReduce, types.DrawdownStop} {
		v := 0.0
		if a == action {
			v = 1
		}
		m.metrics.action.WithLabelValues(string(a)).Set(v)
	}
	if action == types.DrawdownStop {
		m.metrics.killState.Set(1)
	} else {
		m.metrics.killState.Set(0)
	}

	if action != types.DrawdownNone {
		m.logger.Warn("drawdown action", "action", action, "equity", equity, "peak", m.peakEquity)
	}
	return action
}

func (m *Manager) determineDrawdownAction() types.DrawdownAction {
	if m.peakEquity <= 0 {
		return types.DrawdownNone
	}
	dd := (m.peakEquity - m.equity) / m.peakEquity
	switch {
	case dd >= m.cfg.StopDrawdown:
		return types.DrawdownStop
	case dd >= m.cfg.ReduceDrawdown:
		return types.DrawdownReduce
	case dd >= m.cfg.WarnDrawdown:
		return types.DrawdownWarning
	default:
		return types.DrawdownNone
	}
}

// Reset clears the sticky STOP floor — the one external, operator-driven
// path back to NONE that the spec reserves for a human decision.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stickyFloor = types.DrawdownNone
	m.peakEquity = m.equity
}

// CurrentAction returns the last computed (sticky-clamped) action without
// feeding a new equity reading.
func (m *Manager) CurrentAction() types.DrawdownAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stickyFloor
}

// ApproveSignal applies the §4.6 per-signal approval rules: reject outright
// under STOP, halve size under REDUCE, reject below min size or over the
// single-position / cluster caps.
func (m *Manager) ApproveSignal(proposedDollars, equity, clusterExposure float64) (approvedDollars float64, err error) {
	m.mu.Lock()
	action := m.stickyFloor
	cfg := m.cfg
	m.mu.Unlock()

	if action == types.DrawdownStop {
		return 0, coreerr.ErrDrawdownStop
	}

	dollars := proposedDollars
	if action == types.DrawdownReduce {
		dollars /= 2
	}
	if dollars < cfg.MinPositionSize {
		return 0, nil
	}
	if equity > 0 && dollars/equity > cfg.MaxSinglePosition {
		return 0, nil
	}
	if equity > 0 && (clusterExposure+dollars)/equity > cfg.MaxClusterExposure {
		return 0, nil
	}
	return dollars, nil
}

// ExpirationCliff flags positions with fewer than MinDaysToExpiration days
// remaining for forced close.
func (m *Manager) ExpirationCliff(positions []PositionSnapshot) []PositionSnapshot {
	m.mu.Lock()
	minDays := m.cfg.MinDaysToExpiration
	m.mu.Unlock()

	var out []PositionSnapshot
	for _, p := range positions {
		if p.DaysToExpiration < minDays {
			out = append(out, p)
		}
	}
	return out
}

// ReductionTargets ranks open positions by unrealized P&L ascending (worst
// first), giving operators/automation a concrete close order once REDUCE
// fires. This supplements §4.6, which specifies the REDUCE trigger but not
// the target selection.
func (m *Manager) ReductionTargets(positions []PositionSnapshot) []PositionSnapshot {
	out := append([]PositionSnapshot(nil), positions...)
	sort.Slice(out, func(i, j int) bool { return out[i].UnrealizedPnL < out[j].UnrealizedPnL })
	return out
}

// RecordCorrelation appends a fresh correlation reading for a cluster and
// reports whether it constitutes a spike relative to the rolling window
// mean.
func (m *Manager) RecordCorrelation(cluster string, reading float64) (spike bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hist := m.correlationHistory[cluster]
	if len(hist) > 0 {
		mean := average(hist)
		if mean != 0 && (reading-mean)/math.Abs(mean) > m.cfg.CorrelationSpikeThreshold {
			spike = true
		}
	}
	hist = append(hist, reading)
	if len(hist) > m.cfg.CorrelationWindow {
		hist = hist[len(hist)-m.cfg.CorrelationWindow:]
	}
	m.correlationHistory[cluster] = hist
	return spike
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// ClusterExposures aggregates dollar exposure by each snapshot's Series
// field, the cluster key.
func ClusterExposures(positions []PositionSnapshot) map[string]float64 {
	out := make(map[string]float64)
	for _, p := range positions {
		out[p.Series] += p.ExposureDollars
	}
	return out
}

// GetRiskSnapshot returns a read-only view of current risk state.
func (m *Manager) GetRiskSnapshot(positions []PositionSnapshot) Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	dd := 0.0
	if m.peakEquity > 0 {
		dd = (m.peakEquity - m.equity) / m.peakEquity
	}
	return Metrics{
		Equity:          m.equity,
		PeakEquity:      m.peakEquity,
		Drawdown:        dd,
		Action:          m.stickyFloor,
		ClusterExposure: ClusterExposures(positions),
	}
}
