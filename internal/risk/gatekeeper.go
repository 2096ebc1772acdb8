// Package risk holds the last gate between an approved proposal and an
// order: pure limit checks that either authorize a (possibly clamped)
// size or block with a reason. Nothing here places orders.
package risk

import (
	"fmt"
	"time"

	"alpha-engine/internal/types"
)

// Oversize actions for proposals above the single-trade cap.
const (
	ActionClamp = "CLAMP"
	ActionBlock = "BLOCK"
)

// Limits are the hard limits the gatekeeper enforces.
type Limits struct {
	MaxSingleTrade float64
	MaxDailyLoss   float64
	VolatilityVeto float64
	OversizeAction string
}

// Result is the gatekeeper's verdict for one approved proposal.
type Result struct {
	Authorized bool
	Auth       types.Authorization
	Reason     types.BlockReason
	Detail     string
}

// Evaluate runs the limit checks in order, short-circuiting on the first
// block: single-trade size, then daily loss headroom against the
// worst-case loss of the proposal, then realized volatility. It is a pure
// function of its inputs.
func Evaluate(p types.TradeProposal, portfolio types.PortfolioState, volatility float64, limits Limits) Result {
	size := p.Size
	clamped := false

	if size > limits.MaxSingleTrade {
		if limits.OversizeAction == ActionBlock {
			return Result{
				Reason: types.BlockSizeLimit,
				Detail: fmt.Sprintf("size $%.2f exceeds single-trade limit $%.2f", size, limits.MaxSingleTrade),
			}
		}
		size = limits.MaxSingleTrade
		clamped = true
	}

	// Worst case for a binary position is losing the full stake.
	if portfolio.DailyLoss+size > limits.MaxDailyLoss {
		return Result{
			Reason: types.BlockDailyLossCap,
			Detail: fmt.Sprintf("daily loss $%.2f + worst case $%.2f breaches cap $%.2f",
				portfolio.DailyLoss, size, limits.MaxDailyLoss),
		}
	}

	if volatility > limits.VolatilityVeto {
		return Result{
			Reason: types.BlockVolatilityVeto,
			Detail: fmt.Sprintf("realized volatility %.4f above veto threshold %.4f",
				volatility, limits.VolatilityVeto),
		}
	}

	return Result{
		Authorized: true,
		Auth: types.Authorization{
			ProposalID: p.ProposalID,
			MarketRef:  p.MarketRef,
			Direction:  p.Direction,
			Size:       size,
			Clamped:    clamped,
			IssuedAt:   time.Now(),
		},
	}
}
