package council

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"alpha-engine/internal/auditlog"
	"alpha-engine/internal/interfaces"
	"alpha-engine/internal/logger"
	"alpha-engine/internal/state"
	"alpha-engine/internal/store"
	"alpha-engine/internal/types"
)

// Decision reasons recorded on terminal outcomes.
const (
	ReasonConsensus   = "CONSENSUS"
	ReasonNoConsensus = "NO_CONSENSUS"
	ReasonRiskVeto    = "RISK_VETO"
	ReasonAllAbstain  = "ALL_ABSTAIN"
	ReasonStale       = "STALE"
)

// ErrInFlight reports a proposal already being deliberated.
var ErrInFlight = errors.New("proposal already in flight")

// marketWatch is the slice of the market-data client the council needs to
// detect a market resolving mid-vote.
type marketWatch interface {
	GetMarket(ctx context.Context, ref string) (types.Market, error)
}

// Council runs the multi-voter consensus protocol: three seats vote
// concurrently, a risk-manager veto overrides everything, and otherwise
// YES-weight over non-abstaining votes must reach the configured threshold.
// It guarantees at most one terminal decision per proposal id.
type Council struct {
	cfg    *store.Config
	st     *state.Store
	audit  *auditlog.Log
	md     marketWatch
	voters []interfaces.Voter

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(cfg *store.Config, st *state.Store, audit *auditlog.Log, md marketWatch, voters ...interfaces.Voter) *Council {
	return &Council{
		cfg:      cfg,
		st:       st,
		audit:    audit,
		md:       md,
		voters:   voters,
		inflight: make(map[string]struct{}),
	}
}

// ProposalFor builds a PROPOSED trade proposal keyed by the signal's stable
// dedupe key, so duplicate signal delivery collapses onto one proposal.
func (c *Council) ProposalFor(sig types.Signal, size float64) types.TradeProposal {
	bucket := time.Duration(c.cfg.Consensus.DedupeBucketSeconds) * time.Second
	return types.TradeProposal{
		ProposalID: sig.DedupeKey(bucket),
		MarketRef:  sig.MarketRef,
		Direction:  sig.Direction,
		Size:       size,
		Signal:     sig,
		CreatedAt:  time.Now(),
		State:      types.ProposalProposed,
	}
}

// Deliberate moves a proposal through VOTING to a terminal decision.
// Re-deliberating an already-decided proposal returns the recorded
// decision; a proposal currently in flight returns ErrInFlight.
func (c *Council) Deliberate(ctx context.Context, proposal types.TradeProposal, vc types.VoteContext) (types.CouncilDecision, error) {
	if d, ok := c.st.DecisionByProposal(proposal.ProposalID); ok {
		return d, nil
	}

	c.mu.Lock()
	if _, busy := c.inflight[proposal.ProposalID]; busy {
		c.mu.Unlock()
		return types.CouncilDecision{}, ErrInFlight
	}
	c.inflight[proposal.ProposalID] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, proposal.ProposalID)
		c.mu.Unlock()
	}()

	// A market that resolved before the council convenes is not worth a
	// deliberation.
	if vc.Market.Resolved {
		return c.finalize(ctx, proposal, types.OutcomeRejected, ReasonStale, 0, nil)
	}

	proposal.State = types.ProposalVoting
	c.st.AddActivity("council", "INFO", fmt.Sprintf("council convened for %s", proposal.MarketRef))

	timeout := time.Duration(c.cfg.Consensus.VoteTimeoutSeconds) * time.Second
	voteCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan types.AgentVote, len(c.voters))
	for _, v := range c.voters {
		go func(v interfaces.Voter) {
			defer func() {
				if r := recover(); r != nil {
					c.st.IncrementErrors()
					logger.Error(voteCtx, "Voter panicked", "role", v.Role(), "panic", fmt.Sprint(r))
					results <- types.AgentVote{
						ProposalID: proposal.ProposalID,
						Role:       v.Role(),
						Vote:       types.VoteAbstain,
						Reasoning:  "voter failure",
						Degraded:   true,
					}
				}
			}()
			results <- v.Analyze(voteCtx, proposal, vc)
		}(v)
	}

	votes := make([]types.AgentVote, 0, len(c.voters))
	timedOut := false
collect:
	for range c.voters {
		select {
		case vote := <-results:
			votes = append(votes, vote)
			logger.Info(ctx, "Vote cast",
				"proposal_id", proposal.ProposalID,
				"role", vote.Role,
				"vote", vote.Vote,
				"confidence", vote.Confidence,
				"degraded", vote.Degraded,
			)
		case <-voteCtx.Done():
			timedOut = true
			break collect
		}
	}

	// A vote past the decision latency bound leaves the market in limbo;
	// fail closed with whatever votes arrived.
	if timedOut {
		return c.finalize(ctx, proposal, types.OutcomeRejected, ReasonStale, 0, votes)
	}

	outcome, reason, consensus := tally(votes, c.cfg.Consensus.Threshold)

	// A market may resolve while the council deliberates; an approval for a
	// settled market is worthless, so re-check before committing.
	if outcome == types.OutcomeApproved && c.md != nil {
		if m, err := c.md.GetMarket(ctx, proposal.MarketRef); err == nil && m.Resolved {
			logger.Warn(ctx, "Market resolved mid-vote",
				"proposal_id", proposal.ProposalID, "market", proposal.MarketRef)
			return c.finalize(ctx, proposal, types.OutcomeRejected, ReasonStale, 0, votes)
		}
	}
	return c.finalize(ctx, proposal, outcome, reason, consensus, votes)
}

// tally aggregates votes. A risk-manager veto rejects unconditionally,
// bypassing the count. ABSTAIN votes are excluded from the denominator;
// hitting the threshold exactly approves. No votes at all fails closed.
func tally(votes []types.AgentVote, threshold float64) (types.DecisionOutcome, string, float64) {
	for _, v := range votes {
		if v.Role == types.RoleRiskManager && v.Vote == types.VoteVeto {
			return types.OutcomeRejected, ReasonRiskVeto, 0
		}
	}

	var yes, nonAbstain int
	for _, v := range votes {
		switch v.Vote {
		case types.VoteYes:
			yes++
			nonAbstain++
		case types.VoteNo, types.VoteVeto:
			nonAbstain++
		}
	}
	if nonAbstain == 0 {
		return types.OutcomeRejected, ReasonAllAbstain, 0
	}
	weight := float64(yes) / float64(nonAbstain)
	if weight >= threshold {
		return types.OutcomeApproved, ReasonConsensus, weight
	}
	return types.OutcomeRejected, ReasonNoConsensus, weight
}

func (c *Council) finalize(ctx context.Context, proposal types.TradeProposal, outcome types.DecisionOutcome, reason string, consensus float64, votes []types.AgentVote) (types.CouncilDecision, error) {
	decision := types.CouncilDecision{
		ProposalID: proposal.ProposalID,
		MarketRef:  proposal.MarketRef,
		Outcome:    outcome,
		Reason:     reason,
		Consensus:  consensus,
		Votes:      votes,
		DecidedAt:  time.Now(),
	}

	if err := c.st.AppendDecision(decision); err != nil {
		if errors.Is(err, state.ErrDuplicateDecision) {
			if d, ok := c.st.DecisionByProposal(proposal.ProposalID); ok {
				return d, nil
			}
		}
		return types.CouncilDecision{}, err
	}
	if c.audit != nil {
		if err := c.audit.AppendDecision(decision); err != nil {
			logger.ErrorWithErr(ctx, "Failed to persist decision", err, "proposal_id", proposal.ProposalID)
			c.st.IncrementErrors()
		}
	}

	logger.Decision(ctx, decision.ProposalID, decision.MarketRef, string(outcome), consensus, reason)
	c.st.AddActivity("council", "INFO",
		fmt.Sprintf("%s %s (%s, consensus %.0f%%)", outcome, proposal.MarketRef, reason, consensus*100))
	return decision, nil
}
