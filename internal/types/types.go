package types

import (
	"fmt"
	"math"
	"time"
)

type SignalKind string

const (
	SignalOrderBookImbalance SignalKind = "ORDER_BOOK_IMBALANCE"
	SignalWhaleTrade         SignalKind = "WHALE_TRADE"
)

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Signal is a normalized observation from an external feed indicating
// directional pressure on one market. Immutable once created.
type Signal struct {
	SourceID   string         `json:"source_id"`
	Kind       SignalKind     `json:"kind"`
	MarketRef  string         `json:"market_ref"`
	Direction  Direction      `json:"direction"`
	Magnitude  float64        `json:"magnitude"`
	ObservedAt time.Time      `json:"observed_at"`
	RawPayload map[string]any `json:"raw_payload,omitempty"`
}

func (s Signal) Age(now time.Time) time.Duration {
	return now.Sub(s.ObservedAt)
}

// DedupeKey derives the stable proposal key for this signal. Signals from
// the same source on the same market and direction within one time bucket
// collapse onto a single proposal.
func (s Signal) DedupeKey(bucket time.Duration) string {
	if bucket <= 0 {
		bucket = 5 * time.Minute
	}
	b := s.ObservedAt.UTC().Truncate(bucket).Unix()
	return fmt.Sprintf("%s|%s|%s|%d", s.MarketRef, s.Direction, s.SourceID, b)
}

// SourceObservation carries raw performance stats for a signal source,
// as reported by the leaderboard endpoint or seeded from config.
type SourceObservation struct {
	Alias            string
	AllTimePnL       float64
	WinRate          float64
	AvgTradeSize     float64
	TradeCount       int
	ProfitableMonths int
	ActiveMonths     int
	Categories       int
}

// SourceProfile is the scored credibility record for one tracked source.
// TrustScore is the weighted composite of the five factors and must stay
// within [0,1].
type SourceProfile struct {
	SourceID           string    `json:"source_id"`
	Alias              string    `json:"alias,omitempty"`
	AllTimePnL         float64   `json:"all_time_pnl"`
	WinRate            float64   `json:"win_rate"`
	CapitalEfficiency  float64   `json:"capital_efficiency"`
	MonthlyConsistency float64   `json:"monthly_consistency"`
	CategoryDepth      float64   `json:"category_depth"`
	TrustScore         float64   `json:"trust_score"`
	LastUpdatedAt      time.Time `json:"last_updated_at"`
}

type ProposalState string

const (
	ProposalProposed ProposalState = "PROPOSED"
	ProposalVoting   ProposalState = "VOTING"
	ProposalApproved ProposalState = "APPROVED"
	ProposalRejected ProposalState = "REJECTED"
)

// TradeProposal is a candidate trade awaiting consensus and risk review.
type TradeProposal struct {
	ProposalID string        `json:"proposal_id"`
	MarketRef  string        `json:"market_ref"`
	Direction  Direction     `json:"direction"`
	Size       float64       `json:"size"`
	Signal     Signal        `json:"signal"`
	CreatedAt  time.Time     `json:"created_at"`
	State      ProposalState `json:"state"`
}

type VoterRole string

const (
	RoleFundamentalist VoterRole = "FUNDAMENTALIST"
	RoleSentiment      VoterRole = "SENTIMENT"
	RoleRiskManager    VoterRole = "RISK_MANAGER"
)

type VoteValue string

const (
	VoteYes     VoteValue = "YES"
	VoteNo      VoteValue = "NO"
	VoteAbstain VoteValue = "ABSTAIN"
	VoteVeto    VoteValue = "VETO"
)

// AgentVote is one voter's answer for one proposal. Written once, immutable.
// Degraded marks votes produced by the rule-based fallback instead of the
// reasoning collaborator.
type AgentVote struct {
	ProposalID string        `json:"proposal_id"`
	Role       VoterRole     `json:"role"`
	Vote       VoteValue     `json:"vote"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning"`
	Latency    time.Duration `json:"latency"`
	Degraded   bool          `json:"degraded,omitempty"`
}

type DecisionOutcome string

const (
	OutcomeApproved DecisionOutcome = "APPROVED"
	OutcomeRejected DecisionOutcome = "REJECTED"
)

// CouncilDecision is the terminal, append-only record of one deliberation.
type CouncilDecision struct {
	ProposalID string          `json:"proposal_id"`
	MarketRef  string          `json:"market_ref"`
	Outcome    DecisionOutcome `json:"outcome"`
	Reason     string          `json:"reason"`
	Consensus  float64         `json:"consensus"`
	Votes      []AgentVote     `json:"votes"`
	DecidedAt  time.Time       `json:"decided_at"`
}

type Position struct {
	MarketRef string    `json:"market_ref"`
	Direction Direction `json:"direction"`
	Size      float64   `json:"size"`
	AvgPrice  float64   `json:"avg_price"`
}

// PortfolioState is the process-wide aggregate mutated only through the
// shared state store.
type PortfolioState struct {
	CashBalance   float64    `json:"cash_balance"`
	RealizedPnL   float64    `json:"realized_pnl"`
	DailyLoss     float64    `json:"daily_loss"`
	OpenPositions []Position `json:"open_positions"`
	ErrorCount    int64      `json:"error_count"`
}

// Market is a point-in-time snapshot of one tradeable market, used as
// shared read-only context for the voters.
type Market struct {
	Ref       string  `json:"ref"`
	Question  string  `json:"question"`
	YesPrice  float64 `json:"yes_price"`
	NoPrice   float64 `json:"no_price"`
	Volume24h float64 `json:"volume_24h"`
	Liquidity float64 `json:"liquidity"`
	Resolved  bool    `json:"resolved"`
}

// Spread is the pricing gap for a binary market whose two sides should sum
// to one.
func (m Market) Spread() float64 {
	return math.Abs(1 - (m.YesPrice + m.NoPrice))
}

// WhaleTrade is one raw row from the wallet-trades poll endpoint.
type WhaleTrade struct {
	Wallet     string    `json:"wallet"`
	MarketRef  string    `json:"market_ref"`
	Direction  Direction `json:"direction"`
	Outcome    string    `json:"outcome"`
	Size       float64   `json:"size"`
	Price      float64   `json:"price"`
	TxHash     string    `json:"tx_hash"`
	ObservedAt time.Time `json:"observed_at"`
}

// VoteContext is the shared read-only context handed to every voter.
// Stale marks a signal past the freshness window but under the absolute
// ceiling; such context is low-confidence, not discarded.
type VoteContext struct {
	Market     Market         `json:"market"`
	Signal     Signal         `json:"signal"`
	TrustScore float64        `json:"trust_score"`
	ColdStart  bool           `json:"cold_start"`
	Stale      bool           `json:"stale,omitempty"`
	Portfolio  PortfolioState `json:"portfolio"`
	Headlines  []string       `json:"headlines,omitempty"`
	Rules      string         `json:"rules,omitempty"`
	Volatility float64        `json:"volatility"`
}

// ReasonedVote is the structured answer returned by the reasoning
// collaborator before it is bound to a proposal.
type ReasonedVote struct {
	Vote       VoteValue `json:"vote"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
}

type BlockReason string

const (
	BlockSizeLimit      BlockReason = "SIZE_LIMIT"
	BlockDailyLossCap   BlockReason = "DAILY_LOSS_CAP"
	BlockVolatilityVeto BlockReason = "VOLATILITY_VETO"
)

// Authorization is the token handed to the execution collaborator. It is
// the only path by which an approved proposal may reach an order.
type Authorization struct {
	ProposalID string    `json:"proposal_id"`
	MarketRef  string    `json:"market_ref"`
	Direction  Direction `json:"direction"`
	Size       float64   `json:"size"`
	Clamped    bool      `json:"clamped,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}
