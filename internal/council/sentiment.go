package council

import (
	"fmt"
	"math"

	"alpha-engine/internal/interfaces"
	"alpha-engine/internal/types"
)

const sentimentSystem = `You are The Sentiment Analyst on a trading council.
Read crowd momentum from the market snapshot, the signal and the headlines: rising or falling conviction, tight or loose pricing.
Vote YES to ride a clear trend, NO against it, ABSTAIN on mixed signals.`

// NewSentiment builds the momentum-and-crowd seat.
func NewSentiment(r interfaces.Reasoner) interfaces.Voter {
	return &voter{
		role:     types.RoleSentiment,
		system:   sentimentSystem,
		reasoner: r,
		fallback: sentimentRules,
	}
}

// sentimentRules reads momentum as price displacement weighted by volume.
func sentimentRules(vc types.VoteContext) (types.VoteValue, float64, string) {
	m := vc.Market
	momentum := m.YesPrice - 0.5
	volumeSignal := math.Min(1.0, m.Volume24h/100000)
	score := momentum * volumeSignal

	switch {
	case math.Abs(score) > 0.1:
		direction := "bullish"
		if score < 0 {
			direction = "bearish"
		}
		conf := math.Min(0.75, 0.4+math.Abs(score))
		return types.VoteYes, conf, fmt.Sprintf(
			"strong %s sentiment; momentum score %.2f with volume confirmation", direction, score)
	case m.Spread() < 0.02:
		return types.VoteYes, 0.6, "tight spread indicates strong market consensus"
	default:
		return types.VoteAbstain, 0.4, "mixed signals, no clear sentiment trend"
	}
}
