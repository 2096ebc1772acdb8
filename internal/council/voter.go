package council

import (
	"context"
	"time"

	"alpha-engine/internal/interfaces"
	"alpha-engine/internal/logger"
	"alpha-engine/internal/types"
)

// heuristic is a deterministic rule-based fallback for one voter role.
type heuristic func(vc types.VoteContext) (types.VoteValue, float64, string)

// voter is one council seat: reasoning-backed when the collaborator
// answers, rule-based otherwise. The council never sees which path
// produced a vote beyond the Degraded flag.
type voter struct {
	role     types.VoterRole
	system   string
	reasoner interfaces.Reasoner
	fallback heuristic
}

func (v *voter) Role() types.VoterRole { return v.role }

func (v *voter) Analyze(ctx context.Context, proposal types.TradeProposal, vc types.VoteContext) types.AgentVote {
	start := time.Now()

	payload := map[string]any{
		"proposal":     proposal,
		"market":       vc.Market,
		"market_rules": vc.Rules,
		"signal":       vc.Signal,
		"trust_score":  vc.TrustScore,
		"cold_start":   vc.ColdStart,
		"stale":        vc.Stale,
		"portfolio":    vc.Portfolio,
		"headlines":    vc.Headlines,
	}

	if rv, err := v.reasoner.Assess(ctx, v.role, v.system, payload); err == nil {
		return types.AgentVote{
			ProposalID: proposal.ProposalID,
			Role:       v.role,
			Vote:       rv.Vote,
			Confidence: rv.Confidence,
			Reasoning:  rv.Reasoning,
			Latency:    time.Since(start),
		}
	} else {
		logger.Warn(ctx, "Reasoning unavailable, voting on rules",
			"role", v.role,
			"proposal_id", proposal.ProposalID,
			"error", err,
		)
	}

	vote, conf, reason := v.fallback(vc)
	return types.AgentVote{
		ProposalID: proposal.ProposalID,
		Role:       v.role,
		Vote:       vote,
		Confidence: conf,
		Reasoning:  reason,
		Latency:    time.Since(start),
		Degraded:   true,
	}
}
