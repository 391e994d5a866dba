// Package pipeline wires every other internal/* collaborator into the
// three-cadence scheduler of spec §2/§5: a fast ingestion tick, a medium
// per-ticker signal-generation tick, and a slow housekeeping tick that
// runs the EOD windows, the daily counter rollover, and the periodic
// state save. Grounded on the teacher's runLoop (trader.go) — a single
// goroutine selecting over several independent tickers rather than one
// fused loop — generalized from trader.go's single trade cadence to the
// spec's three named cadences.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/sigpipe/internal/alert"
	"github.com/example/sigpipe/internal/audit"
	"github.com/example/sigpipe/internal/bars"
	"github.com/example/sigpipe/internal/basket"
	"github.com/example/sigpipe/internal/broker"
	"github.com/example/sigpipe/internal/clock"
	"github.com/example/sigpipe/internal/config"
	"github.com/example/sigpipe/internal/dispatch"
	"github.com/example/sigpipe/internal/eod"
	"github.com/example/sigpipe/internal/ingest"
	"github.com/example/sigpipe/internal/llm"
	"github.com/example/sigpipe/internal/llmgate"
	"github.com/example/sigpipe/internal/log"
	"github.com/example/sigpipe/internal/mixer"
	"github.com/example/sigpipe/internal/quote"
	"github.com/example/sigpipe/internal/ratelimit"
	"github.com/example/sigpipe/internal/regime"
	"github.com/example/sigpipe/internal/risk"
	"github.com/example/sigpipe/internal/state"
	"github.com/example/sigpipe/internal/suppress"
	"github.com/rs/zerolog"
)

// stopATRMultiplier and targetRR set the Order Intent's stop/target
// distance from entry: stop is an ATR-scaled distance off entry (the only
// volatility measure the Bar Store's Snapshot exposes), target is a fixed
// reward:risk multiple of that distance off entry — the same two-field
// exit-plan shape as the nested SynapseStrike module's Decision.StopLoss/
// TakeProfit (decision/engine.go), generalized from its day-open/percent-
// target formula to an ATR-anchored one since no fixed reference price
// like "day's open" exists for every ticker in this universe.
const (
	stopATRMultiplier     = 1.5
	targetRR              = 2.0
	defaultHorizonMinutes = 60
)

// Pipeline owns every stateful collaborator and drives them on the three
// cadences named in spec §5. Nothing outside this package reaches into
// the collaborators directly once constructed.
type Pipeline struct {
	cfg    config.Config
	clock  clock.Clock
	cal    *clock.Calendar
	logger zerolog.Logger

	universe []string

	scheduler  *ingest.Scheduler
	barStore   *bars.Store
	limiter    *ratelimit.Limiter
	gate       *llmgate.Gate
	llmSvc     llm.Service
	chain      *suppress.Chain
	basketAgg  *basket.Aggregator
	riskMgr    *risk.Manager
	dispatcher *dispatch.Dispatcher
	flattener  *eod.Flattener
	br         broker.Broker
	auditStore *audit.Store
	stateStore *state.Store
	alerter    alert.Alerter

	mu     sync.Mutex
	dayKey string
}

// New constructs a Pipeline and every collaborator it owns, from a single
// explicitly-built Config (spec §9: "construct all stateful components
// from an explicit configuration object").
func New(cfg config.Config, clk clock.Clock, cal *clock.Calendar, provider quote.Provider, br broker.Broker, llmSvc llm.Service, auditStore *audit.Store, alerter alert.Alerter) *Pipeline {
	limiter := ratelimit.New(clk, cfg.Buckets.TokensA, cfg.Buckets.TokensB, cfg.Buckets.TokensReserve, cfg.Buckets.RefillPeriod)
	barStore := bars.New(cfg.BarRetentionCount)
	scheduler := ingest.New(cfg.Tiers, clk, limiter, barStore, provider)
	gate := llmgate.New(cfg.LLMGate, clk)
	chain := suppress.New(cfg.AntiSpam, clk)
	basketAgg := basket.New(cfg.Baskets, time.Duration(cfg.AntiSpam.ETFLockTTLSeconds)*time.Second, clk)
	riskMgr := risk.New(cfg.Risk, 0)
	dispatcher := dispatch.New(br)
	flattener := eod.New(cfg.EOD, clk, cal, br)
	stateStore := state.New(cfg.StateFile)

	universe := make([]string, 0, len(cfg.Tiers.A.Tickers)+len(cfg.Tiers.B.Tickers)+len(cfg.Tiers.Bench.Tickers))
	universe = append(universe, cfg.Tiers.A.Tickers...)
	universe = append(universe, cfg.Tiers.B.Tickers...)
	universe = append(universe, cfg.Tiers.Bench.Tickers...)

	return &Pipeline{
		cfg: cfg, clock: clk, cal: cal, logger: log.With("pipeline"),
		universe:   universe,
		scheduler:  scheduler,
		barStore:   barStore,
		limiter:    limiter,
		gate:       gate,
		llmSvc:     llmSvc,
		chain:      chain,
		basketAgg:  basketAgg,
		riskMgr:    riskMgr,
		dispatcher: dispatcher,
		flattener:  flattener,
		br:         br,
		auditStore: auditStore,
		stateStore: stateStore,
		alerter:    alerter,
	}
}

// Restore rehydrates every persisted collaborator from the state file, a
// no-op on first boot (spec §4.1 "no persisted state" startup path).
func (p *Pipeline) Restore() error {
	return p.stateStore.Load(p.riskMgr, p.chain, p.basketAgg, p.limiter)
}

// SeedBar feeds a single already-assembled bar directly into the Bar
// Store, bypassing the Quote Ingestor. Used by tests to prime the
// indicator window without a quote provider.
func (p *Pipeline) SeedBar(b bars.Bar) {
	p.barStore.AppendBar(b)
}

// SyncEquity marks the Risk Ledger's equity from the broker's account
// view. Callers run this once at startup (so sizing isn't starved at
// zero equity before the first housekeeping tick) and again on every
// housekeeping tick thereafter.
func (p *Pipeline) SyncEquity(ctx context.Context) error {
	account, err := p.br.GetAccount(ctx)
	if err != nil {
		return err
	}
	p.riskMgr.SetEquity(account.Equity)
	return nil
}

// RunIngestTick drives the fast cadence: one Quote Ingestor wake-up across
// every configured tier (spec §4.4).
func (p *Pipeline) RunIngestTick(ctx context.Context) {
	p.scheduler.Tick(ctx, p.cfg.QuoteTimeout)
}

// RunHousekeepingTick drives the slow cadence: daily counter rollover, the
// EOD close-window flatten, and the opening-window OPG cleanup (spec
// §4.12). Safe to call every housekeeping wake-up; both flatten windows
// are no-ops outside their configured window.
func (p *Pipeline) RunHousekeepingTick(ctx context.Context) {
	if err := p.SyncEquity(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("get account failed; equity mark stale")
	}

	now := p.clock.Now()
	dayKey := p.cal.DayKey(now)

	p.mu.Lock()
	newDay := p.dayKey != dayKey
	p.dayKey = dayKey
	p.mu.Unlock()
	if newDay {
		p.riskMgr.ResetDaily()
	}

	if n, err := p.flattener.RunCloseWindow(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("eod close-window flatten failed")
	} else if n > 0 {
		p.alerter.Post(ctx, fmt.Sprintf("EOD flatten issued for %d open position(s)", n))
	}

	if n, err := p.flattener.RunOPGCleanupWindow(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("opg cleanup flatten failed")
	} else if n > 0 {
		p.alerter.Post(ctx, fmt.Sprintf("OPG cleanup flattened %d residual position(s)", n))
	}

	if err := p.stateStore.Save(p.riskMgr, p.chain, p.basketAgg, p.limiter); err != nil {
		p.logger.Warn().Err(err).Msg("periodic state save failed")
	}
}

// RunSignalTick drives the medium cadence: for every ticker in the
// universe, compute indicators, classify the regime, gate and mix a
// Signal Candidate, push it through the Suppression Chain, and dispatch
// whatever clears every gate — a long as a direct single-name order, a
// short only by feeding the basket aggregator, which may route it into an
// inverse-ETF basket fire (spec §4.5-§4.11).
func (p *Pipeline) RunSignalTick(ctx context.Context) {
	now := p.clock.Now()
	dayKey := p.cal.DayKey(now)
	cutoff := mixer.CutoffFor(p.cfg, p.cal.IsRTH(now))

	positions := newPositionCache(ctx, p.br, p.logger)

	for _, ticker := range p.universe {
		p.evaluateTicker(ctx, ticker, dayKey, cutoff, positions)
	}
}

// Run drives the three cadences until stop is closed or ctx is done, in the teacher's
// style of one goroutine selecting over several independent tickers
// (trader.go's runLoop) rather than a dedicated scheduler abstraction. It
// saves state once more on shutdown to capture anything past the last
// housekeeping tick.
func (p *Pipeline) Run(ctx context.Context, stop <-chan struct{}) {
	if err := p.SyncEquity(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("initial equity sync failed")
	}

	ingestTicker := time.NewTicker(p.cfg.PipelineTick)
	signalTicker := time.NewTicker(p.cfg.SignalTick)
	houseTicker := time.NewTicker(p.cfg.HousekeepingTick)
	defer ingestTicker.Stop()
	defer signalTicker.Stop()
	defer houseTicker.Stop()

	for {
		select {
		case <-stop:
			if err := p.stateStore.Save(p.riskMgr, p.chain, p.basketAgg, p.limiter); err != nil {
				p.logger.Warn().Err(err).Msg("final state save failed")
			}
			return
		case <-ctx.Done():
			if err := p.stateStore.Save(p.riskMgr, p.chain, p.basketAgg, p.limiter); err != nil {
				p.logger.Warn().Err(err).Msg("final state save failed")
			}
			return
		case <-ingestTicker.C:
			p.RunIngestTick(ctx)
		case <-signalTicker.C:
			p.RunSignalTick(ctx)
		case <-houseTicker.C:
			p.RunHousekeepingTick(ctx)
		}
	}
}

func (p *Pipeline) evaluateTicker(ctx context.Context, ticker, dayKey string, cutoff float64, positions *positionCache) {
	w := p.barStore.Window(ticker)
	snap, ok := bars.Compute(w)
	if !ok {
		return
	}
	last := w[len(w)-1]

	reg := regime.Classify(w, snap, regime.DefaultThresholds())
	techScore := regime.TechScore(w, snap, regime.DefaultTechWeights())

	eventType := eventTypeForRegime(reg.Label)
	sentiment, horizonMinutes, llmDenied := p.consultLLM(ctx, dayKey, ticker, eventType, techScore)

	cand := mixer.Mix(mixer.Input{
		TechScore:    techScore,
		Sentiment:    sentiment,
		Regime:       reg.Label,
		IsEdgarEvent: false, // no EDGAR filing feed exists in this universe; see DESIGN.md
	}, cutoff, horizonMinutes)

	side := suppress.Buy
	if cand.Score < 0 {
		side = suppress.Sell
	}
	stop, target := computeStopTarget(last.Close, snap.ATR, side)

	sc := suppress.Candidate{
		Ticker: ticker, Side: side, Score: cand.Score,
		Entry: last.Close, Stop: stop, BarTS: last.TS, DayKey: dayKey,
	}

	reason := suppress.Reason("not_emitted")
	if cand.Emit {
		reason = p.chain.Evaluate(sc, cutoff, llmDenied, p.riskMgr)
	}

	p.recordSignal(ctx, ticker, reg, techScore, sentiment, cand, reason)

	// Data flow is Suppression -> Basket Aggregator (spec §2): a candidate
	// the suppression chain rejected for any reason must not feed the
	// basket window, so only the cleared path below ever calls
	// tryBasketFire.
	if reason != suppress.Emitted {
		return
	}
	p.chain.RecordEmission(sc)

	// A short candidate only feeds basket aggregation; it is never
	// dispatched as a direct single-name short.
	if side == suppress.Sell {
		p.tryBasketFire(ctx, ticker, cand.Score, positions)
		return
	}

	p.dispatchSingleName(ctx, ticker, dayKey, side, cand.Score, last.Close, stop, target)
}

// consultLLM derives a heuristic event_type from the regime classification
// (no EDGAR or news feed exists in this universe, so "vol_spike" is the
// only regime-derived event eligible for the LLM gate's allowlist; all
// other regimes rely on the gate's strong-signal-score bypass), then asks
// the LLM Insight Gate whether to spend a call. llmDenied reports whether
// an eligible event was denied a call it needed, the signal the
// Suppression Chain's llm_gate reason is grounded on.
func (p *Pipeline) consultLLM(ctx context.Context, dayKey, ticker, eventType string, techScore float64) (sentiment float64, horizonMinutes int, llmDenied bool) {
	horizonMinutes = defaultHorizonMinutes
	allowed, reason := p.gate.ShouldCall(dayKey, ticker, eventType, techScore)
	if !allowed {
		llmDenied = eventType != "" && reason != llmgate.ReasonNotEvent
		return 0, horizonMinutes, llmDenied
	}

	text := fmt.Sprintf("ticker=%s event=%s tech_score=%.3f", ticker, eventType, techScore)
	insight, err := p.llmSvc.Analyze(ctx, text, llm.Context{Ticker: ticker, EventType: eventType})
	if err != nil {
		p.logger.Warn().Err(err).Str("ticker", ticker).Msg("llm analyze failed")
		return 0, horizonMinutes, false
	}
	if insight.HorizonMinutes > 0 {
		horizonMinutes = insight.HorizonMinutes
	}
	return insight.Sentiment, horizonMinutes, false
}

func (p *Pipeline) tryBasketFire(ctx context.Context, ticker string, score float64, positions *positionCache) (basket.Fire, bool) {
	fire, _, fired := p.basketAgg.AddShortCandidate(ticker, score, positions)
	if !fired {
		return basket.Fire{}, false
	}

	side := broker.SideBuy
	w := p.barStore.Window(fire.ExecSymbol)
	snap, ok := bars.Compute(w)
	entry := 0.0
	if len(w) > 0 {
		entry = w[len(w)-1].Close
	}
	var stop, target float64
	if ok {
		stop, target = computeStopTarget(entry, snap.ATR, suppress.Buy)
	}

	sizing := p.riskMgr.SizePosition(score, entry, stop, true)
	if sizing.Size < 1 || entry <= 0 {
		p.basketAgg.ReleaseLock(fire.ExecSymbol)
		return fire, false
	}

	in := dispatch.Intent{
		SourceID: "basket|" + fire.BasketID, DayKey: p.cal.DayKey(p.clock.Now()),
		ExecSymbol: fire.ExecSymbol, Side: side, Qty: float64(sizing.Size),
		Entry: entry, Stop: stop, Target: target,
	}
	result, outcome, err := p.dispatcher.Submit(ctx, in)
	if err != nil {
		p.logger.Warn().Err(err).Str("etf", fire.ExecSymbol).Msg("basket dispatch failed")
	}
	if outcome == dispatch.OutcomeAccepted {
		p.riskMgr.ReserveOnFill(p.cfg.Risk.RiskPerTrade)
		p.recordOrder(ctx, fire.ExecSymbol, string(side), float64(sizing.Size), entry, stop, target, dispatch.IdempotencyKey(in), result.Status)
	}
	// The lock is left in place on every path that reaches here (an order
	// was placed, successfully or not) — it expires on its own TTL, which
	// is what keeps three more short candidates within the lock window
	// from producing additional ETF orders (reason etf_lock).
	return fire, true
}

func (p *Pipeline) dispatchSingleName(ctx context.Context, ticker, dayKey string, side suppress.Side, score, entry, stop, target float64) {
	isLeveragedOrInverse := isMember(ticker, p.cfg.InverseETFs) || isMember(ticker, p.cfg.LeveragedETFs)
	sizing := p.riskMgr.SizePosition(score, entry, stop, isLeveragedOrInverse)
	if sizing.Size < 1 {
		return
	}
	brokerSide := broker.SideBuy
	if side == suppress.Sell {
		brokerSide = broker.SideSell
	}

	in := dispatch.Intent{
		SourceID: "signal|" + ticker, DayKey: dayKey,
		ExecSymbol: ticker, Side: brokerSide, Qty: float64(sizing.Size),
		Entry: entry, Stop: stop, Target: target,
	}
	result, outcome, err := p.dispatcher.Submit(ctx, in)
	if err != nil {
		p.logger.Warn().Err(err).Str("ticker", ticker).Msg("dispatch failed")
		return
	}
	if outcome != dispatch.OutcomeAccepted {
		return
	}
	p.riskMgr.ReserveOnFill(p.cfg.Risk.RiskPerTrade)
	p.recordOrder(ctx, ticker, string(brokerSide), float64(sizing.Size), entry, stop, target, dispatch.IdempotencyKey(in), result.Status)
}

func (p *Pipeline) recordSignal(ctx context.Context, ticker string, reg regime.Classification, techScore, sentiment float64, cand mixer.Candidate, reason suppress.Reason) {
	if p.auditStore == nil {
		return
	}
	reasonOrEmit := string(reason)
	if reason == suppress.Emitted {
		reasonOrEmit = "emit"
	}
	row := audit.SignalRow{
		TS: p.clock.Now(), Ticker: ticker, Regime: string(reg.Label),
		Tech: techScore, Sentiment: sentiment, Score: cand.Score,
		ReasonOrEmit: reasonOrEmit, HorizonMin: cand.Horizon, Override: false,
	}
	if err := p.auditStore.RecordSignal(ctx, row); err != nil {
		p.logger.Warn().Err(err).Msg("audit record signal failed")
	}
}

func (p *Pipeline) recordOrder(ctx context.Context, ticker, side string, qty, entry, stop, target float64, idemKey string, status broker.OrderStatus) {
	if p.auditStore == nil {
		return
	}
	row := audit.OrderRow{
		TS: p.clock.Now(), Ticker: ticker, Side: side, Qty: qty,
		Entry: entry, Stop: stop, Target: target, IdemKey: idemKey, Status: string(status),
	}
	if err := p.auditStore.RecordOrder(ctx, row); err != nil {
		p.logger.Warn().Err(err).Msg("audit record order failed")
	}
}

// eventTypeForRegime derives the only event_type this universe can ever
// produce without a real news/filing feed: a detected volatility spike.
// Every other regime relies on llmgate.Gate's strong-signal-score bypass.
func eventTypeForRegime(label regime.Label) string {
	if label == regime.VolSpike {
		return "vol_spike"
	}
	return ""
}

// computeStopTarget anchors the stop distance to ATR (the only
// volatility figure the Bar Store computes) and sets the target at a
// fixed reward:risk multiple of that same distance, on the correct side
// of entry for side.
func computeStopTarget(entry, atr float64, side suppress.Side) (stop, target float64) {
	dist := atr * stopATRMultiplier
	if dist <= 0 {
		dist = entry * 0.01
	}
	if side == suppress.Buy {
		return entry - dist, entry + dist*targetRR
	}
	return entry + dist, entry - dist*targetRR
}

func isMember(ticker string, list []string) bool {
	for _, t := range list {
		if t == ticker {
			return true
		}
	}
	return false
}

// positionCache caches one GetPositions call per signal tick so every
// ticker's basket evaluation shares the same broker snapshot instead of
// issuing one broker round-trip per candidate, and satisfies
// basket.PositionChecker since broker.Broker has no HasPosition method of
// its own (spec §6 names get_positions, not a single-symbol lookup).
type positionCache struct {
	byTicker map[string]float64
}

func newPositionCache(ctx context.Context, br broker.Broker, logger zerolog.Logger) *positionCache {
	pc := &positionCache{byTicker: make(map[string]float64)}
	positions, err := br.GetPositions(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("get positions failed; basket conflict check will pass everything open")
		return pc
	}
	for _, pos := range positions {
		pc.byTicker[pos.Ticker] = pos.Qty
	}
	return pc
}

func (pc *positionCache) HasPosition(symbol string) bool {
	qty, ok := pc.byTicker[symbol]
	return ok && qty != 0
}
