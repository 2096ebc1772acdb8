package trust

import (
	"context"
	"time"

	"alpha-engine/internal/logger"
	"alpha-engine/internal/state"
	"alpha-engine/internal/store"
	"alpha-engine/internal/types"
)

// Engine maintains per-source credibility scores. Profiles live in the
// shared state store; the engine owns the scoring math and the staleness
// policy. Scores are recomputed lazily on read when the cached composite is
// older than the staleness threshold, which bounds recompute cost under
// high query volume.
type Engine struct {
	st  *state.Store
	cfg *store.Config
	now func() time.Time
}

func New(st *state.Store, cfg *store.Config) *Engine {
	return &Engine{st: st, cfg: cfg, now: time.Now}
}

// Score returns the trust score for a source. Unknown sources get the
// cold-start score, below the minimum consideration threshold.
func (e *Engine) Score(ctx context.Context, sourceID string) float64 {
	p, ok := e.st.Profile(sourceID)
	if !ok {
		return e.cfg.Trust.ColdStartScore
	}
	staleness := time.Duration(e.cfg.Trust.StalenessSeconds) * time.Second
	if e.now().Sub(p.LastUpdatedAt) > staleness {
		p = e.recompute(p)
		p.LastUpdatedAt = e.now()
		if err := e.st.SetProfile(p); err != nil {
			logger.ErrorWithErr(ctx, "Rejected trust profile write", err, "source_id", sourceID)
			e.st.IncrementErrors()
			return e.cfg.Trust.ColdStartScore
		}
	}
	return p.TrustScore
}

// Update folds a new observation into a source profile and recomputes the
// composite immediately.
func (e *Engine) Update(ctx context.Context, sourceID string, obs types.SourceObservation) error {
	p, ok := e.st.Profile(sourceID)
	if !ok {
		p = types.SourceProfile{SourceID: sourceID}
	}
	if obs.Alias != "" {
		p.Alias = obs.Alias
	}
	p.AllTimePnL = obs.AllTimePnL
	p.WinRate = clamp01(obs.WinRate)
	p.CapitalEfficiency = capitalEfficiency(obs)
	p.MonthlyConsistency = monthlyConsistency(obs)
	p.CategoryDepth = clamp01(float64(obs.Categories) / float64(e.cfg.Trust.CategoryScale))
	p = e.recompute(p)
	p.LastUpdatedAt = e.now()

	if err := e.st.SetProfile(p); err != nil {
		e.st.IncrementErrors()
		return err
	}
	logger.Debug(ctx, "Trust profile updated",
		"source_id", sourceID,
		"trust_score", p.TrustScore,
		"win_rate", p.WinRate,
	)
	return nil
}

// Consider applies the consideration gate for a signal. Sources below the
// minimum consideration threshold are skipped, except that a cold-start
// whale trade clearing the fresh-wallet notional bar passes flagged rather
// than auto-trusted.
func (e *Engine) Consider(ctx context.Context, sig types.Signal) (score float64, coldStart bool, ok bool) {
	_, known := e.st.Profile(sig.SourceID)

	// First-party feeds carry a fixed configured score; the wallet
	// cold-start machinery is for strangers, not our own infrastructure.
	if sig.Kind == types.SignalOrderBookImbalance && !known {
		score = e.cfg.Trust.FeedScore
		return score, false, score >= e.cfg.Trust.MinConsideration
	}

	score = e.Score(ctx, sig.SourceID)
	coldStart = !known

	if score >= e.cfg.Trust.MinConsideration {
		return score, coldStart, true
	}
	if coldStart && sig.Kind == types.SignalWhaleTrade && sig.Magnitude >= e.cfg.Trust.FreshWalletNotional {
		logger.Warn(ctx, "Cold-start source cleared fresh-wallet bar",
			"source_id", sig.SourceID,
			"notional", sig.Magnitude,
			"bar", e.cfg.Trust.FreshWalletNotional,
		)
		return score, true, true
	}
	return score, coldStart, false
}

// Seed preloads profiles from config so known sources survive a fresh data
// dir.
func (e *Engine) Seed(ctx context.Context, seeds []store.TrustSeed) {
	for _, s := range seeds {
		if _, ok := e.st.Profile(s.SourceID); ok {
			continue
		}
		obs := types.SourceObservation{
			Alias:            s.Alias,
			AllTimePnL:       s.AllTimePnL,
			WinRate:          s.WinRate,
			AvgTradeSize:     s.AvgTradeSize,
			TradeCount:       s.TradeCount,
			ProfitableMonths: s.ProfitableMonths,
			ActiveMonths:     s.ActiveMonths,
			Categories:       s.Categories,
		}
		if err := e.Update(ctx, s.SourceID, obs); err != nil {
			logger.ErrorWithErr(ctx, "Failed to seed trust profile", err, "source_id", s.SourceID)
		}
	}
}

// recompute rebuilds the weighted composite from the profile factors.
// Weights: pnl 30%, win rate 20%, capital efficiency 20%, consistency 15%,
// category depth 15%.
func (e *Engine) recompute(p types.SourceProfile) types.SourceProfile {
	w := e.cfg.Trust.Weights
	pnlFactor := clamp01(p.AllTimePnL / e.cfg.Trust.PnLScale)
	score := w.PnL*pnlFactor +
		w.WinRate*clamp01(p.WinRate) +
		w.CapitalEfficiency*clamp01(p.CapitalEfficiency) +
		w.Consistency*clamp01(p.MonthlyConsistency) +
		w.CategoryDepth*clamp01(p.CategoryDepth)
	p.TrustScore = clamp01(score)
	return p
}

// capitalEfficiency measures profit per dollar deployed.
func capitalEfficiency(obs types.SourceObservation) float64 {
	deployed := obs.AvgTradeSize * float64(obs.TradeCount)
	if deployed <= 0 {
		return 0
	}
	return clamp01(obs.AllTimePnL / deployed)
}

func monthlyConsistency(obs types.SourceObservation) float64 {
	if obs.ActiveMonths <= 0 {
		return 0
	}
	return clamp01(float64(obs.ProfitableMonths) / float64(obs.ActiveMonths))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
