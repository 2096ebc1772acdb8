package types

import (
	"math"
	"testing"
	"time"
)

func TestDedupeKeyStableWithinBucket(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 10, 0, time.UTC)
	a := Signal{SourceID: "w1", MarketRef: "mkt", Direction: DirectionBuy, ObservedAt: base}
	b := a
	b.ObservedAt = base.Add(2 * time.Minute)

	if a.DedupeKey(5*time.Minute) != b.DedupeKey(5*time.Minute) {
		t.Error("signals in the same bucket should share a dedupe key")
	}

	c := a
	c.ObservedAt = base.Add(6 * time.Minute)
	if a.DedupeKey(5*time.Minute) == c.DedupeKey(5*time.Minute) {
		t.Error("signals in different buckets should not share a dedupe key")
	}
}

func TestDedupeKeyDistinguishesDirectionAndSource(t *testing.T) {
	at := time.Now()
	buy := Signal{SourceID: "w1", MarketRef: "mkt", Direction: DirectionBuy, ObservedAt: at}
	sell := buy
	sell.Direction = DirectionSell
	other := buy
	other.SourceID = "w2"

	if buy.DedupeKey(time.Minute) == sell.DedupeKey(time.Minute) {
		t.Error("opposite directions must not collide")
	}
	if buy.DedupeKey(time.Minute) == other.DedupeKey(time.Minute) {
		t.Error("different sources must not collide")
	}
}

func TestMarketSpread(t *testing.T) {
	cases := []struct {
		yes, no, want float64
	}{
		{0.60, 0.40, 0},
		{0.55, 0.40, 0.05},
		{0.70, 0.35, 0.05},
	}
	for _, tc := range cases {
		m := Market{YesPrice: tc.yes, NoPrice: tc.no}
		if got := m.Spread(); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Spread(%.2f, %.2f) = %f, want %f", tc.yes, tc.no, got, tc.want)
		}
	}
}

func TestSignalAge(t *testing.T) {
	now := time.Now()
	s := Signal{ObservedAt: now.Add(-90 * time.Second)}
	if got := s.Age(now); got != 90*time.Second {
		t.Errorf("expected age 90s, got %v", got)
	}
}
