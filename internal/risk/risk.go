// Package risk implements the Risk Manager of spec §4.10: pre-trade
// feasibility checks, Kelly-style position sizing with small-account caps,
// atomic risk-ledger updates, and the daily-loss kill switch. Grounded on
// the teacher's equity-staged sizing helpers (trader.go's clamp/
// snapToStep/equityStagesBuy-Sell float-staging idiom) generalized from
// fixed equity stages into the spec's explicit risk-amount/size-cap
// formula, and on its dailyPnL/updateDaily day-rollover bookkeeping
// (trader.go) generalized into the Risk Ledger's daily_realized_pnl_pct.
package risk

import (
	"math"
	"sync"

	"github.com/example/sigpipe/internal/config"
	"github.com/example/sigpipe/internal/metrics"
	"github.com/example/sigpipe/internal/suppress"
)

// Ledger is the Risk Ledger entity of spec §3: the single mutable record
// the Risk Manager exclusively owns.
type Ledger struct {
	Equity            float64
	CurrentRiskPct    float64
	OpenPositionsCount int
	DailyRealizedPnLPct float64
	KillSwitched      bool
}

// Manager is the Risk Manager. All fields are guarded by mu; every method
// treats the ledger as compare-and-set (spec §5: "Risk Ledger uses
// compare-and-set updates; concurrent submissions that would jointly
// exceed the cap are rejected for the later one").
type Manager struct {
	cfg config.RiskConfig

	mu     sync.Mutex
	ledger Ledger
}

// New constructs a Manager seeded with the starting equity.
func New(cfg config.RiskConfig, startingEquity float64) *Manager {
	return &Manager{
		cfg:    cfg,
		ledger: Ledger{Equity: startingEquity},
	}
}

// Snapshot returns a copy of the current Risk Ledger, for audit/metrics
// and for internal/state to persist across restarts.
func (m *Manager) Snapshot() Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger
}

// Restore replaces the ledger wholesale, used once at startup to rehydrate
// from a persisted state snapshot (internal/state).
func (m *Manager) Restore(l Ledger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = l
	m.publishLocked()
}

// CheckFeasibility implements spec §4.10's pre-trade check, and satisfies
// suppress.RiskChecker so the Suppression Chain's risk_feasibility gate
// can call straight into this Manager without a reverse import.
func (m *Manager) CheckFeasibility(ticker string, side suppress.Side, score, entry, stop float64) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ledger.KillSwitched {
		return false, "kill_switched"
	}
	if m.ledger.DailyRealizedPnLPct <= -m.cfg.DailyLossLimit {
		return false, "daily_loss_limit"
	}
	if m.ledger.OpenPositionsCount >= m.cfg.MaxPositions {
		return false, "max_positions"
	}
	candidateRiskPct := m.cfg.RiskPerTrade * confidenceAdj(score)
	if m.ledger.CurrentRiskPct+candidateRiskPct > m.cfg.MaxConcurrentRisk {
		return false, "max_concurrent_risk"
	}
	if math.Abs(entry-stop) <= 0 {
		return false, "stop_distance"
	}
	return true, ""
}

// confidenceAdj scales risk_per_trade by the score's magnitude,
// 0.5 + 0.5*min(1, |score|) in [0.5, 1.0], so weakly scored candidates
// risk less than strongly scored ones.
func confidenceAdj(score float64) float64 {
	adj := 0.5 + 0.5*math.Min(1, math.Abs(score))
	return adj
}

// Sizing is the result of SizePosition, spec §4.10's exact formula.
type Sizing struct {
	SizeRisk int
	SizeCap  int
	Size     int
}

// SizePosition computes the Kelly-style, small-account-capped position
// size for a candidate at entry/stop, per spec §4.10:
//
//	risk_amount = equity * risk_per_trade * confidence_adj
//	size_risk  = floor(risk_amount / |entry - stop|)
//	size_cap   = floor((equity * max_equity_exposure) / max(remaining_slots, 1) / entry)
//	size       = min(size_risk, size_cap)
func (m *Manager) SizePosition(score, entry, stop float64, isLeveragedOrInverse bool) Sizing {
	m.mu.Lock()
	defer m.mu.Unlock()

	stopDist := math.Abs(entry - stop)
	if stopDist <= 0 || entry <= 0 {
		return Sizing{}
	}

	riskAmount := m.ledger.Equity * m.cfg.RiskPerTrade * confidenceAdj(score)
	sizeRisk := int(math.Floor(riskAmount / stopDist))

	remainingSlots := m.cfg.MinSlots - m.ledger.OpenPositionsCount
	if remainingSlots < 1 {
		remainingSlots = 1
	}
	sizeCap := int(math.Floor((m.ledger.Equity * m.cfg.MaxEquityExposure) / float64(remainingSlots) / entry))

	size := sizeRisk
	if sizeCap < size {
		size = sizeCap
	}
	if isLeveragedOrInverse && m.cfg.LeveragedShrink > 0 {
		size = int(math.Floor(float64(size) * m.cfg.LeveragedShrink))
	}
	if size < 1 && !m.cfg.FractionalEnabled {
		size = 1
	}
	if size < 0 {
		size = 0
	}

	return Sizing{SizeRisk: sizeRisk, SizeCap: sizeCap, Size: size}
}

// ReserveOnFill atomically applies a fill's realized risk to the ledger
// (spec §4.10: "On fill, the Risk Ledger is updated atomically:
// current_risk_pct += realized candidate_risk_pct").
func (m *Manager) ReserveOnFill(candidateRiskPct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.CurrentRiskPct += candidateRiskPct
	m.ledger.OpenPositionsCount++
	m.publishLocked()
}

// CloseOnFlatten applies the realized PnL of a closed position and
// releases its reserved risk, tripping the kill switch if the daily loss
// limit is crossed.
func (m *Manager) CloseOnFlatten(candidateRiskPct, realizedPnLPct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ledger.CurrentRiskPct -= candidateRiskPct
	if m.ledger.CurrentRiskPct < 0 {
		m.ledger.CurrentRiskPct = 0
	}
	if m.ledger.OpenPositionsCount > 0 {
		m.ledger.OpenPositionsCount--
	}
	m.ledger.DailyRealizedPnLPct += realizedPnLPct
	if m.ledger.DailyRealizedPnLPct <= -m.cfg.DailyLossLimit {
		m.ledger.KillSwitched = true
	}
	m.publishLocked()
}

// ResetDaily clears the daily PnL and kill switch at session rollover,
// the risk-ledger analogue of the teacher's updateDaily day-boundary
// reset (trader.go).
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.DailyRealizedPnLPct = 0
	m.ledger.KillSwitched = false
	m.publishLocked()
}

// SetEquity updates the mark-to-market equity figure used by sizing.
func (m *Manager) SetEquity(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.Equity = equity
}

func (m *Manager) publishLocked() {
	metrics.RiskCurrentPct.Set(m.ledger.CurrentRiskPct)
	metrics.RiskDailyPnLPct.Set(m.ledger.DailyRealizedPnLPct)
	if m.ledger.KillSwitched {
		metrics.KillSwitchTripped.Set(1)
	} else {
		metrics.KillSwitchTripped.Set(0)
	}
}
