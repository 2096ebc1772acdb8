package engine

import (
	"context"

	"alpha-engine/internal/logger"
	"alpha-engine/internal/marketdata"
	"alpha-engine/internal/state"
	"alpha-engine/internal/types"
)

// DryRunExecutor simulates fills against the shared store instead of
// submitting orders. It is the default executor outside LIVE mode.
type DryRunExecutor struct {
	st *state.Store
	md *marketdata.Client
}

func NewDryRunExecutor(st *state.Store, md *marketdata.Client) *DryRunExecutor {
	return &DryRunExecutor{st: st, md: md}
}

func (x *DryRunExecutor) Submit(ctx context.Context, auth types.Authorization) error {
	price := 0.5
	if m, err := x.md.GetMarket(ctx, auth.MarketRef); err == nil && m.YesPrice > 0 {
		price = m.YesPrice
	}
	if err := x.st.ApplyFill(auth.MarketRef, auth.Direction, auth.Size, price); err != nil {
		return err
	}
	logger.Info(ctx, "Simulated fill",
		"proposal_id", auth.ProposalID,
		"market", auth.MarketRef,
		"direction", auth.Direction,
		"size", auth.Size,
		"price", price,
	)
	return nil
}
