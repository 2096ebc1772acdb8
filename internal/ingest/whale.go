package ingest

import (
	"context"
	"fmt"
	"time"

	"alpha-engine/internal/logger"
	"alpha-engine/internal/marketdata"
	"alpha-engine/internal/state"
	"alpha-engine/internal/store"
	"alpha-engine/internal/trust"
	"alpha-engine/internal/types"
)

const maxSeenTxs = 1000

// walletTrades is the slice of the market-data client the whale watcher
// needs, narrowed for testability.
type walletTrades interface {
	GetWalletTrades(ctx context.Context, wallet string, limit int) ([]types.WhaleTrade, error)
	GetLeaderboard(ctx context.Context, limit int) ([]marketdata.LeaderboardRow, error)
}

// WhaleWatcher polls the trades of a bounded wallet watch-list and turns
// each new qualifying trade into exactly one signal. Transactions are
// deduped by hash across polls with a bounded seen-set. A slow secondary
// ticker refreshes the watch-list stats from the leaderboard through the
// trust engine.
type WhaleWatcher struct {
	cfg   *store.Config
	st    *state.Store
	md    walletTrades
	trust *trust.Engine
	now   func() time.Time

	seen      map[string]struct{}
	seenOrder []string
}

func NewWhaleWatcher(cfg *store.Config, st *state.Store, md *marketdata.Client, tr *trust.Engine) *WhaleWatcher {
	return &WhaleWatcher{
		cfg:   cfg,
		st:    st,
		md:    md,
		trust: tr,
		now:   time.Now,
		seen:  make(map[string]struct{}),
	}
}

func (w *WhaleWatcher) Name() string { return "whale_watcher" }

// Run polls on the configured interval until the context is cancelled.
// A failed poll logs, counts, and waits for the next tick.
func (w *WhaleWatcher) Run(ctx context.Context) error {
	logger.Info(ctx, "Whale watcher active",
		"wallets", len(w.cfg.Feeds.Whale.Watchlist),
		"poll_seconds", w.cfg.Feeds.Whale.PollSeconds)
	w.st.AddActivity(w.Name(), "INFO",
		fmt.Sprintf("tracking %d wallets", len(w.cfg.Feeds.Whale.Watchlist)))

	poll := time.NewTicker(time.Duration(w.cfg.Feeds.Whale.PollSeconds) * time.Second)
	defer poll.Stop()
	refresh := time.NewTicker(time.Duration(w.cfg.Feeds.Whale.LeaderboardRefreshMinutes) * time.Minute)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
			w.Poll(ctx)
		case <-refresh.C:
			w.RefreshLeaderboard(ctx)
		}
	}
}

// Poll checks every watched wallet once. Per-wallet failures do not stop
// the sweep.
func (w *WhaleWatcher) Poll(ctx context.Context) {
	for _, wallet := range w.cfg.Feeds.Whale.Watchlist {
		trades, err := w.md.GetWalletTrades(ctx, wallet, 5)
		if err != nil {
			w.st.IncrementErrors()
			logger.Warn(ctx, "Wallet poll failed", "wallet", wallet, "error", err)
			continue
		}
		for _, t := range trades {
			w.observe(ctx, t)
		}
	}
}

func (w *WhaleWatcher) observe(ctx context.Context, t types.WhaleTrade) {
	if t.TxHash == "" {
		return
	}
	if !w.markSeen(t.TxHash) {
		return
	}

	min := w.cfg.Feeds.Whale.MinTradeSize
	if t.Size < min {
		logger.Debug(ctx, "Ignoring small whale trade",
			"wallet", t.Wallet, "size", t.Size, "min", min)
		return
	}

	observed := t.ObservedAt
	if observed.IsZero() {
		observed = w.now()
	}
	sig := types.Signal{
		SourceID:   t.Wallet,
		Kind:       types.SignalWhaleTrade,
		MarketRef:  t.MarketRef,
		Direction:  t.Direction,
		Magnitude:  t.Size,
		ObservedAt: observed,
		RawPayload: map[string]any{
			"tx_hash": t.TxHash,
			"outcome": t.Outcome,
			"price":   t.Price,
		},
	}
	w.st.EnqueueSignal(sig)
	logger.Signal(ctx, string(sig.Kind), sig.MarketRef, string(sig.Direction), sig.Magnitude,
		"wallet", t.Wallet, "tx_hash", t.TxHash)
	w.st.AddActivity(w.Name(), "INFO",
		fmt.Sprintf("whale trade $%.0f on %s", t.Size, t.MarketRef))
}

// markSeen records a tx hash, reporting false for duplicates. The seen-set
// evicts oldest-first at its bound, so hashes still inside the wallets'
// recent-trades windows stay deduped across polls.
func (w *WhaleWatcher) markSeen(tx string) bool {
	if _, dup := w.seen[tx]; dup {
		return false
	}
	w.seen[tx] = struct{}{}
	w.seenOrder = append(w.seenOrder, tx)
	if len(w.seenOrder) > maxSeenTxs {
		delete(w.seen, w.seenOrder[0])
		w.seenOrder = w.seenOrder[1:]
	}
	return true
}

// RefreshLeaderboard pulls the latest trader stats and folds them into the
// trust engine so watch-list scores track real performance.
func (w *WhaleWatcher) RefreshLeaderboard(ctx context.Context) {
	rows, err := w.md.GetLeaderboard(ctx, 20)
	if err != nil {
		w.st.IncrementErrors()
		logger.Warn(ctx, "Leaderboard refresh failed", "error", err)
		return
	}
	updated := 0
	for _, r := range rows {
		if r.Wallet == "" {
			continue
		}
		err := w.trust.Update(ctx, r.Wallet, types.SourceObservation{
			Alias:            r.Username,
			AllTimePnL:       r.AllTimePnL,
			WinRate:          r.WinRate,
			AvgTradeSize:     r.AvgTradeSize,
			TradeCount:       r.TradeCount,
			ProfitableMonths: r.ProfitableMonths,
			ActiveMonths:     r.ActiveMonths,
			Categories:       r.Categories,
		})
		if err != nil {
			logger.Warn(ctx, "Trust update failed", "wallet", r.Wallet, "error", err)
			continue
		}
		updated++
	}
	logger.Info(ctx, "Leaderboard refreshed", "rows", len(rows), "updated", updated)
}
