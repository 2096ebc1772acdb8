package interfaces

import (
	"context"

	"alpha-engine/internal/types"
)

// Voter is one council seat. Implementations may consult the reasoning
// collaborator but must always produce a vote, degrading to their
// rule-based heuristic when reasoning is unavailable.
type Voter interface {
	Role() types.VoterRole
	Analyze(ctx context.Context, proposal types.TradeProposal, vc types.VoteContext) types.AgentVote
}
