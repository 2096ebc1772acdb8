package state

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"alpha-engine/internal/types"
)

func TestPortfolioSnapshotIsolation(t *testing.T) {
	s := New(10000)
	if err := s.ApplyFill("mkt-1", types.DirectionBuy, 100, 0.4); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}

	snap := s.Portfolio()
	snap.OpenPositions[0].Size = 999999
	snap.CashBalance = 0

	again := s.Portfolio()
	if again.OpenPositions[0].Size != 100 {
		t.Errorf("snapshot mutation leaked into store: size %f", again.OpenPositions[0].Size)
	}
	if again.CashBalance != 9900 {
		t.Errorf("expected cash 9900, got %f", again.CashBalance)
	}
}

func TestApplyFillRejectsNonPositiveSize(t *testing.T) {
	s := New(1000)
	err := s.ApplyFill("mkt-1", types.DirectionBuy, 0, 0.5)
	if !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("expected invariant violation, got %v", err)
	}
	err = s.ApplyFill("mkt-1", types.DirectionBuy, -5, 0.5)
	if !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("expected invariant violation, got %v", err)
	}
	if n := len(s.Portfolio().OpenPositions); n != 0 {
		t.Errorf("expected no positions, got %d", n)
	}
}

func TestApplyFillAggregatesPosition(t *testing.T) {
	s := New(10000)
	if err := s.ApplyFill("mkt-1", types.DirectionBuy, 100, 0.4); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyFill("mkt-1", types.DirectionBuy, 100, 0.6); err != nil {
		t.Fatal(err)
	}

	p := s.Portfolio()
	if len(p.OpenPositions) != 1 {
		t.Fatalf("expected one aggregated position, got %d", len(p.OpenPositions))
	}
	pos := p.OpenPositions[0]
	if pos.Size != 200 {
		t.Errorf("expected size 200, got %f", pos.Size)
	}
	if pos.AvgPrice != 0.5 {
		t.Errorf("expected avg price 0.5, got %f", pos.AvgPrice)
	}
}

func TestClosePositionFeedsDailyLoss(t *testing.T) {
	s := New(10000)
	if err := s.ApplyFill("mkt-1", types.DirectionBuy, 200, 0.5); err != nil {
		t.Fatal(err)
	}
	if err := s.ClosePosition("mkt-1", types.DirectionBuy, -80); err != nil {
		t.Fatal(err)
	}

	p := s.Portfolio()
	if p.DailyLoss != 80 {
		t.Errorf("expected daily loss 80, got %f", p.DailyLoss)
	}
	if p.RealizedPnL != -80 {
		t.Errorf("expected realized pnl -80, got %f", p.RealizedPnL)
	}
	if len(p.OpenPositions) != 0 {
		t.Errorf("expected position removed, got %d", len(p.OpenPositions))
	}

	s.ResetDaily()
	if got := s.Portfolio().DailyLoss; got != 0 {
		t.Errorf("expected daily loss reset, got %f", got)
	}
}

func TestSetProfileValidatesTrustBounds(t *testing.T) {
	s := New(0)
	bad := []float64{-0.1, 1.1, 2}
	for _, score := range bad {
		err := s.SetProfile(types.SourceProfile{SourceID: "w1", TrustScore: score})
		if !errors.Is(err, ErrInvariantViolation) {
			t.Errorf("trust score %f: expected invariant violation, got %v", score, err)
		}
	}
	if err := s.SetProfile(types.SourceProfile{TrustScore: 0.5}); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("empty source id: expected invariant violation, got %v", err)
	}
	if err := s.SetProfile(types.SourceProfile{SourceID: "w1", TrustScore: 0.5}); err != nil {
		t.Errorf("valid profile rejected: %v", err)
	}
}

func TestSignalQueueFIFO(t *testing.T) {
	s := New(0)
	for i := 0; i < 5; i++ {
		s.EnqueueSignal(types.Signal{SourceID: fmt.Sprintf("s%d", i)})
	}
	if s.QueueDepth() != 5 {
		t.Fatalf("expected depth 5, got %d", s.QueueDepth())
	}

	first := s.DequeueSignals(3)
	if len(first) != 3 {
		t.Fatalf("expected 3 signals, got %d", len(first))
	}
	for i, sig := range first {
		if want := fmt.Sprintf("s%d", i); sig.SourceID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, sig.SourceID)
		}
	}
	rest := s.DequeueSignals(10)
	if len(rest) != 2 || rest[0].SourceID != "s3" {
		t.Errorf("unexpected remainder: %+v", rest)
	}
}

func TestSignalQueueDropsOldestWhenFull(t *testing.T) {
	s := New(0)
	s.maxQueue = 3
	for i := 0; i < 5; i++ {
		s.EnqueueSignal(types.Signal{SourceID: fmt.Sprintf("s%d", i)})
	}
	got := s.DequeueSignals(0)
	if len(got) != 3 {
		t.Fatalf("expected 3 signals, got %d", len(got))
	}
	if got[0].SourceID != "s2" || got[2].SourceID != "s4" {
		t.Errorf("expected oldest dropped, got %+v", got)
	}
}

func TestAppendDecisionRejectsDuplicates(t *testing.T) {
	s := New(0)
	d := types.CouncilDecision{
		ProposalID: "p1",
		Outcome:    types.OutcomeApproved,
		DecidedAt:  time.Now(),
	}
	if err := s.AppendDecision(d); err != nil {
		t.Fatalf("first append: %v", err)
	}
	err := s.AppendDecision(d)
	if !errors.Is(err, ErrDuplicateDecision) {
		t.Errorf("expected duplicate decision error, got %v", err)
	}
}

func TestAppendDecisionRejectsNonTerminal(t *testing.T) {
	s := New(0)
	err := s.AppendDecision(types.CouncilDecision{ProposalID: "p1", Outcome: "VOTING"})
	if !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("expected invariant violation, got %v", err)
	}
}

func TestRecentDecisionsNewestFirst(t *testing.T) {
	s := New(0)
	for i := 0; i < 3; i++ {
		if err := s.AppendDecision(types.CouncilDecision{
			ProposalID: fmt.Sprintf("p%d", i),
			Outcome:    types.OutcomeRejected,
		}); err != nil {
			t.Fatal(err)
		}
	}
	got := s.RecentDecisions(2)
	if len(got) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(got))
	}
	if got[0].ProposalID != "p2" || got[1].ProposalID != "p1" {
		t.Errorf("expected newest first, got %s then %s", got[0].ProposalID, got[1].ProposalID)
	}
}

func TestActivityRingBounded(t *testing.T) {
	s := New(0)
	s.maxActivity = 4
	for i := 0; i < 10; i++ {
		s.AddActivity("test", "INFO", fmt.Sprintf("entry %d", i))
	}
	got := s.Activity(0)
	if len(got) != 4 {
		t.Fatalf("expected ring capped at 4, got %d", len(got))
	}
	if got[0].Message != "entry 9" {
		t.Errorf("expected newest first, got %q", got[0].Message)
	}
}
