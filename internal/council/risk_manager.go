package council

import (
	"fmt"
	"math"

	"alpha-engine/internal/interfaces"
	"alpha-engine/internal/types"
)

const riskManagerSystem = `You are The Risk Manager on a trading council, the voice of caution.
Protect capital: weigh max-loss scenarios, liquidity, spread and portfolio exposure.
Vote YES when risk is acceptable, ABSTAIN on elevated risk, VETO to kill the trade unconditionally.`

// Rule thresholds for the risk seat. The composite score weighs exit risk
// (liquidity) heaviest, then spread, then thin volume.
const (
	riskVetoScore    = 0.75
	riskCautionScore = 0.5
	minLiquidity     = 10000
)

// NewRiskManager builds the veto-holding seat.
func NewRiskManager(r interfaces.Reasoner) interfaces.Voter {
	return &voter{
		role:     types.RoleRiskManager,
		system:   riskManagerSystem,
		reasoner: r,
		fallback: riskManagerRules,
	}
}

func riskManagerRules(vc types.VoteContext) (types.VoteValue, float64, string) {
	m := vc.Market
	spreadRisk := m.Spread() / 0.10
	liquidityRisk := 1.0 - math.Min(1.0, m.Liquidity/50000)
	volumeRisk := 1.0 - math.Min(1.0, m.Volume24h/100000)
	score := clamp01(0.3*spreadRisk + 0.4*liquidityRisk + 0.3*volumeRisk)

	switch {
	case m.Liquidity < minLiquidity:
		return types.VoteVeto, 0.85, fmt.Sprintf(
			"insufficient liquidity ($%.0f), exit risk too high", m.Liquidity)
	case score > riskVetoScore:
		return types.VoteVeto, 0.9, fmt.Sprintf(
			"risk score %.2f exceeds veto threshold (spread %.2f%%, liquidity $%.0f)",
			score, m.Spread()*100, m.Liquidity)
	case vc.ColdStart:
		return types.VoteAbstain, 0.5, fmt.Sprintf(
			"cold-start source (trust %.2f) flagged; withholding endorsement", vc.TrustScore)
	case vc.Stale:
		return types.VoteAbstain, 0.4, "signal context is stale; withholding endorsement"
	case score > riskCautionScore:
		return types.VoteAbstain, 0.6, fmt.Sprintf("elevated risk (%.2f), no endorsement", score)
	default:
		return types.VoteYes, 0.7, fmt.Sprintf("risk acceptable (%.2f), good liquidity and spread", score)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
