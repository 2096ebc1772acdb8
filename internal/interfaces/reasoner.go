package interfaces

import (
	"context"

	"alpha-engine/internal/types"
)

// Reasoner is the reasoning collaborator boundary. Assess may time out or
// error; callers fall back to rule-based heuristics.
type Reasoner interface {
	Assess(ctx context.Context, role types.VoterRole, system string, payload map[string]any) (types.ReasonedVote, error)
}
