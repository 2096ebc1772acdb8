package trust

import (
	"context"
	"math"
	"testing"
	"time"

	"alpha-engine/internal/state"
	"alpha-engine/internal/store"
	"alpha-engine/internal/types"
)

func newTestEngine() (*Engine, *state.Store, *store.Config) {
	cfg := store.DefaultConfig()
	st := state.New(10000)
	return New(st, cfg), st, cfg
}

func TestUnknownSourceGetsColdStartScore(t *testing.T) {
	e, _, cfg := newTestEngine()
	got := e.Score(context.Background(), "0xunknown")
	if got != cfg.Trust.ColdStartScore {
		t.Errorf("expected cold-start score %f, got %f", cfg.Trust.ColdStartScore, got)
	}
}

func TestUpdateComputesWeightedComposite(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()

	err := e.Update(ctx, "0xwhale", types.SourceObservation{
		Alias:            "whale-one",
		AllTimePnL:       500_000, // pnl factor 0.5 at the 1M scale
		WinRate:          0.6,
		AvgTradeSize:     10_000,
		TradeCount:       100, // capital efficiency 500k/1M = 0.5
		ProfitableMonths: 8,
		ActiveMonths:     10, // consistency 0.8
		Categories:       5,  // depth 1.0 at scale 5
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	want := 0.30*0.5 + 0.20*0.6 + 0.20*0.5 + 0.15*0.8 + 0.15*1.0
	got := e.Score(ctx, "0xwhale")
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected composite %f, got %f", want, got)
	}
}

func TestTrustScoreStaysInBounds(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()

	err := e.Update(ctx, "0xgiant", types.SourceObservation{
		AllTimePnL:       1e12,
		WinRate:          5,
		AvgTradeSize:     1,
		TradeCount:       1,
		ProfitableMonths: 100,
		ActiveMonths:     1,
		Categories:       999,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got := e.Score(ctx, "0xgiant")
	if got < 0 || got > 1 {
		t.Errorf("trust score %f outside [0,1]", got)
	}

	if err := e.Update(ctx, "0xloser", types.SourceObservation{AllTimePnL: -1e9}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got = e.Score(ctx, "0xloser")
	if got < 0 || got > 1 {
		t.Errorf("trust score %f outside [0,1]", got)
	}
}

func TestStaleScoreRecomputedOnRead(t *testing.T) {
	e, st, cfg := newTestEngine()
	ctx := context.Background()

	base := time.Now()
	e.now = func() time.Time { return base }

	// Profile with a hand-set score its factors cannot support.
	if err := st.SetProfile(types.SourceProfile{
		SourceID:      "0xstale",
		WinRate:       0.5,
		TrustScore:    0.99,
		LastUpdatedAt: base,
	}); err != nil {
		t.Fatal(err)
	}

	if got := e.Score(ctx, "0xstale"); got != 0.99 {
		t.Errorf("fresh profile should not recompute, got %f", got)
	}

	e.now = func() time.Time {
		return base.Add(time.Duration(cfg.Trust.StalenessSeconds+1) * time.Second)
	}
	got := e.Score(ctx, "0xstale")
	want := 0.20 * 0.5 // only the win-rate factor is populated
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected recomputed score %f, got %f", want, got)
	}

	p, _ := st.Profile("0xstale")
	if !p.LastUpdatedAt.After(base) {
		t.Error("recompute should refresh LastUpdatedAt")
	}
}

func TestConsiderRejectsColdStartWallet(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()

	// A single $50,000 trade from an unseen wallet is not enough.
	sig := types.Signal{
		SourceID:  "0xfresh",
		Kind:      types.SignalWhaleTrade,
		Magnitude: 50_000,
	}
	score, coldStart, ok := e.Consider(ctx, sig)
	if ok {
		t.Error("cold-start wallet below the notional bar must not pass")
	}
	if !coldStart {
		t.Error("unseen wallet should be flagged cold-start")
	}
	if score >= e.cfg.Trust.MinConsideration {
		t.Errorf("cold-start score %f unexpectedly above consideration", score)
	}
}

func TestConsiderPassesFreshWalletOverNotionalBar(t *testing.T) {
	e, _, cfg := newTestEngine()
	ctx := context.Background()

	sig := types.Signal{
		SourceID:  "0xfresh",
		Kind:      types.SignalWhaleTrade,
		Magnitude: cfg.Trust.FreshWalletNotional + 1,
	}
	_, coldStart, ok := e.Consider(ctx, sig)
	if !ok {
		t.Error("fresh wallet over the notional bar should pass, flagged")
	}
	if !coldStart {
		t.Error("passing over the bar must keep the cold-start flag")
	}
}

func TestConsiderTrustsFirstPartyFeed(t *testing.T) {
	e, _, cfg := newTestEngine()
	ctx := context.Background()

	sig := types.Signal{
		SourceID:  "orderbook:BTCUSDT",
		Kind:      types.SignalOrderBookImbalance,
		Magnitude: 3.4,
	}
	score, coldStart, ok := e.Consider(ctx, sig)
	if !ok {
		t.Error("first-party feed should pass the consideration gate")
	}
	if coldStart {
		t.Error("feed sources are not cold starts")
	}
	if score != cfg.Trust.FeedScore {
		t.Errorf("expected feed score %f, got %f", cfg.Trust.FeedScore, score)
	}
}

func TestSeedSkipsExistingProfiles(t *testing.T) {
	e, st, _ := newTestEngine()
	ctx := context.Background()

	if err := e.Update(ctx, "0xknown", types.SourceObservation{WinRate: 0.9, AllTimePnL: 2e6}); err != nil {
		t.Fatal(err)
	}
	before, _ := st.Profile("0xknown")

	e.Seed(ctx, []store.TrustSeed{
		{SourceID: "0xknown", WinRate: 0.1},
		{SourceID: "0xnew", Alias: "seeded", WinRate: 0.7, AllTimePnL: 1e6, ProfitableMonths: 6, ActiveMonths: 10, Categories: 3},
	})

	after, _ := st.Profile("0xknown")
	if after.TrustScore != before.TrustScore {
		t.Error("seed must not overwrite an existing profile")
	}
	p, ok := st.Profile("0xnew")
	if !ok {
		t.Fatal("seed should create missing profile")
	}
	if p.Alias != "seeded" || p.TrustScore <= 0 {
		t.Errorf("unexpected seeded profile: %+v", p)
	}
}
