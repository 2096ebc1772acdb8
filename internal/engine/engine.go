package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"alpha-engine/internal/council"
	"alpha-engine/internal/interfaces"
	"alpha-engine/internal/logger"
	"alpha-engine/internal/marketdata"
	"alpha-engine/internal/news"
	"alpha-engine/internal/risk"
	"alpha-engine/internal/state"
	"alpha-engine/internal/store"
	"alpha-engine/internal/trust"
	"alpha-engine/internal/types"
)

const signalsPerTick = 16

// Engine is the orchestrator: it drains the signal queue, walks each
// signal through the trust gate, the council, and the risk gatekeeper,
// and hands authorizations to the execution collaborator. It owns no
// state of its own; everything shared lives in the store.
type Engine struct {
	cfg      *store.Config
	st       *state.Store
	trust    *trust.Engine
	council  *council.Council
	md       *marketdata.Client
	news     *news.Scraper
	executor interfaces.Executor
	now      func() time.Time
}

func New(cfg *store.Config, st *state.Store, tr *trust.Engine, co *council.Council, md *marketdata.Client, sc *news.Scraper, ex interfaces.Executor) *Engine {
	return &Engine{
		cfg:      cfg,
		st:       st,
		trust:    tr,
		council:  co,
		md:       md,
		news:     sc,
		executor: ex,
		now:      time.Now,
	}
}

// Run drains the queue on every tick until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	logger.Info(ctx, "Engine loop started",
		"mode", e.cfg.Mode, "tick_seconds", e.cfg.Engine.TickSeconds)
	ticker := time.NewTicker(time.Duration(e.cfg.Engine.TickSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, sig := range e.st.DequeueSignals(signalsPerTick) {
				e.ProcessSignal(ctx, sig)
			}
		}
	}
}

// ProcessSignal runs one signal through the full decision pipeline.
// Every exit before execution is a deliberate gate, not an error.
func (e *Engine) ProcessSignal(ctx context.Context, sig types.Signal) {
	ctx, span := logger.StartSpan(ctx, "process-signal")
	defer span.End()

	age := sig.Age(e.now())
	maxAge := time.Duration(e.cfg.Consensus.SignalMaxAgeSeconds) * time.Second
	freshness := time.Duration(e.cfg.Consensus.SignalFreshnessSeconds) * time.Second
	if age > maxAge {
		logger.Debug(ctx, "Discarding expired signal",
			"market", sig.MarketRef, "age", age.String())
		return
	}
	stale := age > freshness
	if stale {
		logger.Info(ctx, "Signal past freshness window, proposing with degraded confidence",
			"market", sig.MarketRef, "age", age.String())
	}

	score, coldStart, ok := e.trust.Consider(ctx, sig)
	if !ok {
		logger.Debug(ctx, "Signal below trust bar",
			"source", sig.SourceID, "trust", score)
		return
	}

	if sig.Magnitude < e.cfg.Consensus.MinMagnitude {
		logger.Debug(ctx, "Signal magnitude below minimum",
			"market", sig.MarketRef, "magnitude", sig.Magnitude)
		return
	}

	// Duplicate delivery of an already-decided proposal must never replay
	// authorization or execution.
	proposal := e.council.ProposalFor(sig, e.baseSize(sig))
	if _, decided := e.st.DecisionByProposal(proposal.ProposalID); decided {
		logger.Debug(ctx, "Proposal already decided, dropping duplicate",
			"proposal_id", proposal.ProposalID)
		return
	}

	market, err := e.md.GetMarket(ctx, sig.MarketRef)
	if err != nil {
		e.st.IncrementErrors()
		logger.Warn(ctx, "Market snapshot unavailable", "market", sig.MarketRef, "error", err)
		return
	}
	if market.Resolved {
		logger.Debug(ctx, "Market already resolved", "market", sig.MarketRef)
		return
	}

	var headlines []string
	if e.cfg.News.Enabled && e.news != nil {
		headlines = e.news.Headlines(ctx, market.Question, e.cfg.News.MaxHeadlines)
	}

	rules, err := e.md.MarketRules(ctx, sig.MarketRef)
	if err != nil {
		logger.Debug(ctx, "Market rules unavailable", "market", sig.MarketRef, "error", err)
	}

	volatility := 0.0
	if v, err := e.md.RecentVolatility(ctx, sig.MarketRef, 30); err == nil {
		volatility = v
	} else {
		logger.Warn(ctx, "Volatility unavailable, assuming calm", "market", sig.MarketRef, "error", err)
	}

	vc := types.VoteContext{
		Market:     market,
		Signal:     sig,
		TrustScore: score,
		ColdStart:  coldStart,
		Stale:      stale,
		Portfolio:  e.st.Portfolio(),
		Headlines:  headlines,
		Rules:      rules,
		Volatility: volatility,
	}

	decision, err := e.council.Deliberate(ctx, proposal, vc)
	if err != nil {
		if errors.Is(err, council.ErrInFlight) {
			return
		}
		e.st.IncrementErrors()
		logger.ErrorWithErr(ctx, "Deliberation failed", err, "proposal_id", proposal.ProposalID)
		return
	}
	if decision.Outcome != types.OutcomeApproved {
		return
	}

	proposal.State = types.ProposalApproved
	proposal.Size *= convictionFactor(decision.Votes)

	limits := risk.Limits{
		MaxSingleTrade: e.cfg.Risk.MaxSingleTrade,
		MaxDailyLoss:   e.cfg.Risk.MaxDailyLoss,
		VolatilityVeto: e.cfg.Risk.VolatilityVeto,
		OversizeAction: e.cfg.Risk.OversizeAction,
	}
	result := risk.Evaluate(proposal, e.st.Portfolio(), volatility, limits)
	if !result.Authorized {
		logger.Risk(ctx, proposal.MarketRef, string(result.Reason),
			"proposal_id", proposal.ProposalID, "detail", result.Detail)
		e.st.AddActivity("risk", "WARNING", result.Detail)
		return
	}

	logger.Authorization(ctx, result.Auth.ProposalID, result.Auth.MarketRef,
		string(result.Auth.Direction), result.Auth.Size, result.Auth.Clamped)
	if err := e.executor.Submit(ctx, result.Auth); err != nil {
		e.st.IncrementErrors()
		logger.ErrorWithErr(ctx, "Execution failed", err, "proposal_id", result.Auth.ProposalID)
		return
	}
	e.st.AddActivity("engine", "TRADE",
		"authorized "+string(result.Auth.Direction)+" on "+result.Auth.MarketRef)
}

// baseSize sizes a proposal before consensus: copy a fixed fraction of a
// whale's notional, or scale the single-trade cap by imbalance strength.
func (e *Engine) baseSize(sig types.Signal) float64 {
	switch sig.Kind {
	case types.SignalWhaleTrade:
		return sig.Magnitude * e.cfg.Feeds.Whale.CopyPercentage
	case types.SignalOrderBookImbalance:
		conviction := math.Min(0.95, sig.Magnitude/5.0)
		return e.cfg.Risk.MaxSingleTrade * conviction
	default:
		return 0
	}
}

// convictionFactor is the mean confidence of the YES votes, used to scale
// the approved size. Defaults to 1 when no YES vote carries confidence.
func convictionFactor(votes []types.AgentVote) float64 {
	var sum float64
	var n int
	for _, v := range votes {
		if v.Vote == types.VoteYes {
			sum += v.Confidence
			n++
		}
	}
	if n == 0 || sum == 0 {
		return 1
	}
	return sum / float64(n)
}
