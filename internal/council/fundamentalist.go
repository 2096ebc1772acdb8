package council

import (
	"fmt"
	"math"

	"alpha-engine/internal/interfaces"
	"alpha-engine/internal/types"
)

const fundamentalistSystem = `You are The Fundamentalist, a rigorous fact-based analyst on a trading council.
Analyze the market using hard data only: prices, volume, liquidity, the attached headlines and the signal context.
Ignore hype and speculation. Vote YES to take the proposed position, NO to decline, ABSTAIN when the data is insufficient.`

// NewFundamentalist builds the facts-and-volume seat.
func NewFundamentalist(r interfaces.Reasoner) interfaces.Voter {
	return &voter{
		role:     types.RoleFundamentalist,
		system:   fundamentalistSystem,
		reasoner: r,
		fallback: fundamentalistRules,
	}
}

// fundamentalistRules: high volume confirming a mispriced market is the
// only fundamental edge the heuristic trusts.
func fundamentalistRules(vc types.VoteContext) (types.VoteValue, float64, string) {
	m := vc.Market
	mispricing := math.Abs(m.YesPrice - 0.5)

	switch {
	case m.Volume24h > 50000 && mispricing > 0.15:
		conf := math.Min(0.8, 0.5+mispricing)
		return types.VoteYes, conf, fmt.Sprintf(
			"high volume ($%.0f) confirms price direction; mispricing %.1f%% suggests opportunity",
			m.Volume24h, mispricing*100)
	case m.Volume24h < 5000:
		return types.VoteAbstain, 0.3, fmt.Sprintf(
			"insufficient volume ($%.0f) for confident fundamental analysis", m.Volume24h)
	default:
		return types.VoteNo, 0.5, "no clear fundamental edge; price appears fairly valued"
	}
}
