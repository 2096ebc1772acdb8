package council

import (
	"context"
	"errors"
	"testing"
	"time"

	"alpha-engine/internal/interfaces"
	"alpha-engine/internal/state"
	"alpha-engine/internal/store"
	"alpha-engine/internal/types"
)

// scriptedVoter returns a fixed vote, optionally after a delay.
type scriptedVoter struct {
	role  types.VoterRole
	vote  types.VoteValue
	delay time.Duration
}

func (v scriptedVoter) Role() types.VoterRole { return v.role }

func (v scriptedVoter) Analyze(ctx context.Context, p types.TradeProposal, _ types.VoteContext) types.AgentVote {
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
		}
	}
	return types.AgentVote{
		ProposalID: p.ProposalID,
		Role:       v.role,
		Vote:       v.vote,
		Confidence: 0.7,
	}
}

func newTestCouncil(voters ...interfaces.Voter) (*Council, *state.Store) {
	cfg := store.DefaultConfig()
	cfg.Consensus.VoteTimeoutSeconds = 1
	st := state.New(10000)
	return New(cfg, st, nil, nil, voters...), st
}

// resolvingMarket reports the market as resolved, as if it settled while
// the council was deliberating.
type resolvingMarket struct{}

func (resolvingMarket) GetMarket(_ context.Context, ref string) (types.Market, error) {
	return types.Market{Ref: ref, Resolved: true}, nil
}

func testProposal(id string) types.TradeProposal {
	return types.TradeProposal{
		ProposalID: id,
		MarketRef:  "mkt-1",
		Direction:  types.DirectionBuy,
		Size:       100,
		CreatedAt:  time.Now(),
		State:      types.ProposalProposed,
	}
}

func liquidMarket() types.VoteContext {
	return types.VoteContext{
		Market: types.Market{
			Ref:       "mkt-1",
			YesPrice:  0.6,
			NoPrice:   0.4,
			Volume24h: 80000,
			Liquidity: 40000,
		},
	}
}

func TestVetoOverridesMajority(t *testing.T) {
	c, _ := newTestCouncil(
		scriptedVoter{role: types.RoleFundamentalist, vote: types.VoteYes},
		scriptedVoter{role: types.RoleSentiment, vote: types.VoteYes},
		scriptedVoter{role: types.RoleRiskManager, vote: types.VoteVeto},
	)
	d, err := c.Deliberate(context.Background(), testProposal("p-veto"), liquidMarket())
	if err != nil {
		t.Fatalf("Deliberate: %v", err)
	}
	if d.Outcome != types.OutcomeRejected {
		t.Errorf("two YES plus a veto must reject, got %s", d.Outcome)
	}
	if d.Reason != ReasonRiskVeto {
		t.Errorf("expected reason %s, got %s", ReasonRiskVeto, d.Reason)
	}
}

func TestYesYesAbstainApproves(t *testing.T) {
	c, _ := newTestCouncil(
		scriptedVoter{role: types.RoleFundamentalist, vote: types.VoteYes},
		scriptedVoter{role: types.RoleSentiment, vote: types.VoteYes},
		scriptedVoter{role: types.RoleRiskManager, vote: types.VoteAbstain},
	)
	d, err := c.Deliberate(context.Background(), testProposal("p-yya"), liquidMarket())
	if err != nil {
		t.Fatalf("Deliberate: %v", err)
	}
	if d.Outcome != types.OutcomeApproved {
		t.Errorf("{YES,YES,ABSTAIN} should approve, got %s (%s)", d.Outcome, d.Reason)
	}
	if d.Consensus != 1.0 {
		t.Errorf("expected consensus 1.0, got %f", d.Consensus)
	}
}

func TestYesNoAbstainRejects(t *testing.T) {
	c, _ := newTestCouncil(
		scriptedVoter{role: types.RoleFundamentalist, vote: types.VoteYes},
		scriptedVoter{role: types.RoleSentiment, vote: types.VoteNo},
		scriptedVoter{role: types.RoleRiskManager, vote: types.VoteAbstain},
	)
	d, err := c.Deliberate(context.Background(), testProposal("p-yna"), liquidMarket())
	if err != nil {
		t.Fatalf("Deliberate: %v", err)
	}
	if d.Outcome != types.OutcomeRejected {
		t.Errorf("{YES,NO,ABSTAIN} should reject, got %s", d.Outcome)
	}
	if d.Reason != ReasonNoConsensus {
		t.Errorf("expected reason %s, got %s", ReasonNoConsensus, d.Reason)
	}
	if d.Consensus != 0.5 {
		t.Errorf("expected consensus 0.5, got %f", d.Consensus)
	}
}

func TestAllAbstainFailsClosed(t *testing.T) {
	c, _ := newTestCouncil(
		scriptedVoter{role: types.RoleFundamentalist, vote: types.VoteAbstain},
		scriptedVoter{role: types.RoleSentiment, vote: types.VoteAbstain},
		scriptedVoter{role: types.RoleRiskManager, vote: types.VoteAbstain},
	)
	d, err := c.Deliberate(context.Background(), testProposal("p-abs"), liquidMarket())
	if err != nil {
		t.Fatalf("Deliberate: %v", err)
	}
	if d.Outcome != types.OutcomeRejected || d.Reason != ReasonAllAbstain {
		t.Errorf("all-abstain should reject with %s, got %s (%s)", ReasonAllAbstain, d.Outcome, d.Reason)
	}
}

func TestExactThresholdApproves(t *testing.T) {
	// 2 of 3 non-abstaining = 0.666..., meeting the 2/3 threshold exactly.
	c, _ := newTestCouncil(
		scriptedVoter{role: types.RoleFundamentalist, vote: types.VoteYes},
		scriptedVoter{role: types.RoleSentiment, vote: types.VoteYes},
		scriptedVoter{role: types.RoleRiskManager, vote: types.VoteNo},
	)
	d, err := c.Deliberate(context.Background(), testProposal("p-tie"), liquidMarket())
	if err != nil {
		t.Fatalf("Deliberate: %v", err)
	}
	if d.Outcome != types.OutcomeApproved {
		t.Errorf("hitting the threshold exactly should approve, got %s (%s)", d.Outcome, d.Reason)
	}
}

func TestDeliberateIsIdempotent(t *testing.T) {
	c, st := newTestCouncil(
		scriptedVoter{role: types.RoleFundamentalist, vote: types.VoteYes},
		scriptedVoter{role: types.RoleSentiment, vote: types.VoteYes},
		scriptedVoter{role: types.RoleRiskManager, vote: types.VoteYes},
	)
	ctx := context.Background()
	first, err := c.Deliberate(ctx, testProposal("p-dup"), liquidMarket())
	if err != nil {
		t.Fatalf("first Deliberate: %v", err)
	}
	second, err := c.Deliberate(ctx, testProposal("p-dup"), liquidMarket())
	if err != nil {
		t.Fatalf("second Deliberate: %v", err)
	}
	if first.DecidedAt != second.DecidedAt || first.Outcome != second.Outcome {
		t.Error("duplicate delivery must return the recorded decision, not a new one")
	}
	if len(st.RecentDecisions(0)) != 1 {
		t.Errorf("expected exactly one terminal decision, got %d", len(st.RecentDecisions(0)))
	}
}

func TestVoteTimeoutRejectsStale(t *testing.T) {
	c, _ := newTestCouncil(
		scriptedVoter{role: types.RoleFundamentalist, vote: types.VoteYes},
		scriptedVoter{role: types.RoleSentiment, vote: types.VoteYes},
		scriptedVoter{role: types.RoleRiskManager, vote: types.VoteYes, delay: 5 * time.Second},
	)
	d, err := c.Deliberate(context.Background(), testProposal("p-slow"), liquidMarket())
	if err != nil {
		t.Fatalf("Deliberate: %v", err)
	}
	if d.Outcome != types.OutcomeRejected || d.Reason != ReasonStale {
		t.Errorf("timeout should reject as %s, got %s (%s)", ReasonStale, d.Outcome, d.Reason)
	}
	if len(d.Votes) != 2 {
		t.Errorf("expected the two collected votes on the record, got %d", len(d.Votes))
	}
}

func TestResolvedMarketRejectsStale(t *testing.T) {
	c, _ := newTestCouncil(
		scriptedVoter{role: types.RoleFundamentalist, vote: types.VoteYes},
	)
	vc := liquidMarket()
	vc.Market.Resolved = true
	d, err := c.Deliberate(context.Background(), testProposal("p-resolved"), vc)
	if err != nil {
		t.Fatalf("Deliberate: %v", err)
	}
	if d.Outcome != types.OutcomeRejected || d.Reason != ReasonStale {
		t.Errorf("resolved market should reject as %s, got %s (%s)", ReasonStale, d.Outcome, d.Reason)
	}
}

func TestMarketResolvingMidVoteRejectsStale(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Consensus.VoteTimeoutSeconds = 1
	st := state.New(10000)
	c := New(cfg, st, nil, resolvingMarket{},
		scriptedVoter{role: types.RoleFundamentalist, vote: types.VoteYes},
		scriptedVoter{role: types.RoleSentiment, vote: types.VoteYes},
		scriptedVoter{role: types.RoleRiskManager, vote: types.VoteYes},
	)

	// The snapshot taken before dispatch is still live; the market settles
	// while the votes come in.
	d, err := c.Deliberate(context.Background(), testProposal("p-midvote"), liquidMarket())
	if err != nil {
		t.Fatalf("Deliberate: %v", err)
	}
	if d.Outcome != types.OutcomeRejected || d.Reason != ReasonStale {
		t.Errorf("approval for a market that resolved mid-vote must reject as %s, got %s (%s)",
			ReasonStale, d.Outcome, d.Reason)
	}
	if len(d.Votes) != 3 {
		t.Errorf("all collected votes belong on the record, got %d", len(d.Votes))
	}
}

func TestProposalForUsesDedupeKey(t *testing.T) {
	c, _ := newTestCouncil()
	at := time.Now()
	sig := types.Signal{
		SourceID:   "0xwhale",
		Kind:       types.SignalWhaleTrade,
		MarketRef:  "mkt-1",
		Direction:  types.DirectionBuy,
		Magnitude:  5000,
		ObservedAt: at,
	}
	a := c.ProposalFor(sig, 500)
	b := c.ProposalFor(sig, 500)
	if a.ProposalID != b.ProposalID {
		t.Error("same signal must map to the same proposal id")
	}
	if a.Direction != types.DirectionBuy || a.Size != 500 {
		t.Errorf("unexpected proposal: %+v", a)
	}
}

func TestInFlightProposalReported(t *testing.T) {
	c, _ := newTestCouncil(
		scriptedVoter{role: types.RoleFundamentalist, vote: types.VoteYes, delay: 300 * time.Millisecond},
	)
	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.Deliberate(ctx, testProposal("p-inflight"), liquidMarket()); err != nil {
			t.Errorf("background Deliberate: %v", err)
		}
	}()

	time.Sleep(50 * time.Millisecond)
	_, err := c.Deliberate(ctx, testProposal("p-inflight"), liquidMarket())
	if !errors.Is(err, ErrInFlight) {
		t.Errorf("expected ErrInFlight, got %v", err)
	}
	<-done
}
