package noop

import (
	"context"
	"errors"

	"alpha-engine/internal/types"
)

// ErrNoProvider is returned on every Assess call so voters take their
// rule-based path.
var ErrNoProvider = errors.New("no reasoning provider configured")

// Reasoner is the fallback used when no reasoning collaborator is
// configured. The council still functions; every vote is rule-based and
// flagged degraded.
type Reasoner struct{}

func New() *Reasoner { return &Reasoner{} }

func (r *Reasoner) Assess(ctx context.Context, role types.VoterRole, system string, payload map[string]any) (types.ReasonedVote, error) {
	return types.ReasonedVote{}, ErrNoProvider
}
