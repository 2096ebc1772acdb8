package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"alpha-engine/internal/types"
)

// ErrInvariantViolation marks a rejected write that would corrupt store
// invariants. Fatal to the offending write only, never to the store.
var ErrInvariantViolation = errors.New("invariant violation")

// ErrDuplicateDecision marks a second terminal decision for a proposal id.
var ErrDuplicateDecision = errors.New("duplicate decision")

// ActivityEntry is one line of the bounded activity log surfaced to the
// presentation collaborator.
type ActivityEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Source  string    `json:"source"`
	Message string    `json:"message"`
}

// Store is the single shared mutable resource of the engine. Each logical
// sub-region (portfolio, profiles, signal queue, decision history, activity
// log) is guarded by its own lock so writers in one region never block
// readers of another. Every read is a copy-out snapshot; no method ever
// returns a reference into internal state.
type Store struct {
	portfolioMu sync.RWMutex
	portfolio   types.PortfolioState

	profilesMu sync.RWMutex
	profiles   map[string]types.SourceProfile

	signalsMu sync.Mutex
	signals   []types.Signal
	maxQueue  int
	dropped   int64

	decisionsMu sync.RWMutex
	decisions   []types.CouncilDecision
	decisionIdx map[string]int

	activityMu  sync.Mutex
	activity    []ActivityEntry
	maxActivity int

	errors atomic.Int64
	start  time.Time
}

func New(startingBalance float64) *Store {
	return &Store{
		portfolio: types.PortfolioState{
			CashBalance: startingBalance,
		},
		profiles:    make(map[string]types.SourceProfile),
		maxQueue:    1024,
		decisionIdx: make(map[string]int),
		maxActivity: 100,
		start:       time.Now(),
	}
}

// Portfolio returns a point-in-time snapshot of the portfolio region.
func (s *Store) Portfolio() types.PortfolioState {
	s.portfolioMu.RLock()
	p := s.portfolio
	p.OpenPositions = append([]types.Position(nil), s.portfolio.OpenPositions...)
	s.portfolioMu.RUnlock()
	p.ErrorCount = s.errors.Load()
	return p
}

// ApplyFill records a reported fill from the execution collaborator and
// updates cash and open positions.
func (s *Store) ApplyFill(marketRef string, dir types.Direction, size, price float64) error {
	if size <= 0 {
		return fmt.Errorf("%w: fill size %.2f must be positive", ErrInvariantViolation, size)
	}
	s.portfolioMu.Lock()
	defer s.portfolioMu.Unlock()

	for i := range s.portfolio.OpenPositions {
		p := &s.portfolio.OpenPositions[i]
		if p.MarketRef == marketRef && p.Direction == dir {
			total := p.AvgPrice*p.Size + price*size
			p.Size += size
			p.AvgPrice = total / p.Size
			s.portfolio.CashBalance -= size
			return nil
		}
	}
	s.portfolio.OpenPositions = append(s.portfolio.OpenPositions, types.Position{
		MarketRef: marketRef,
		Direction: dir,
		Size:      size,
		AvgPrice:  price,
	})
	s.portfolio.CashBalance -= size
	return nil
}

// ClosePosition realizes pnl for a position and removes it. Losses feed the
// daily loss counter consumed by the risk gatekeeper.
func (s *Store) ClosePosition(marketRef string, dir types.Direction, pnl float64) error {
	s.portfolioMu.Lock()
	defer s.portfolioMu.Unlock()

	for i := range s.portfolio.OpenPositions {
		p := s.portfolio.OpenPositions[i]
		if p.MarketRef == marketRef && p.Direction == dir {
			s.portfolio.OpenPositions = append(
				s.portfolio.OpenPositions[:i], s.portfolio.OpenPositions[i+1:]...)
			s.portfolio.CashBalance += p.Size + pnl
			s.portfolio.RealizedPnL += pnl
			if pnl < 0 {
				s.portfolio.DailyLoss += -pnl
			}
			return nil
		}
	}
	return fmt.Errorf("no open position for %s %s", marketRef, dir)
}

// ResetDaily clears the daily loss counter. Called at day rollover.
func (s *Store) ResetDaily() {
	s.portfolioMu.Lock()
	s.portfolio.DailyLoss = 0
	s.portfolioMu.Unlock()
}

// SetProfile upserts a source profile. Trust scores outside [0,1] are an
// invariant violation and the write is rejected.
func (s *Store) SetProfile(p types.SourceProfile) error {
	if p.TrustScore < 0 || p.TrustScore > 1 {
		return fmt.Errorf("%w: trust score %.4f for %s outside [0,1]", ErrInvariantViolation, p.TrustScore, p.SourceID)
	}
	if p.SourceID == "" {
		return fmt.Errorf("%w: empty source id", ErrInvariantViolation)
	}
	s.profilesMu.Lock()
	s.profiles[p.SourceID] = p
	s.profilesMu.Unlock()
	return nil
}

func (s *Store) Profile(sourceID string) (types.SourceProfile, bool) {
	s.profilesMu.RLock()
	p, ok := s.profiles[sourceID]
	s.profilesMu.RUnlock()
	return p, ok
}

func (s *Store) Profiles() []types.SourceProfile {
	s.profilesMu.RLock()
	out := make([]types.SourceProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	s.profilesMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Leaderboard returns the top profiles by trust score for the presentation
// collaborator.
func (s *Store) Leaderboard(limit int) []types.SourceProfile {
	out := s.Profiles()
	sort.Slice(out, func(i, j int) bool { return out[i].TrustScore > out[j].TrustScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// EnqueueSignal appends a signal to the queue, preserving per-source
// observation order. When the queue is full the oldest signal is dropped;
// stale signals are cheaper to lose than fresh ones.
func (s *Store) EnqueueSignal(sig types.Signal) {
	s.signalsMu.Lock()
	if len(s.signals) >= s.maxQueue {
		s.signals = s.signals[1:]
		s.dropped++
	}
	s.signals = append(s.signals, sig)
	s.signalsMu.Unlock()
}

// DequeueSignals removes and returns up to max queued signals in FIFO order.
func (s *Store) DequeueSignals(max int) []types.Signal {
	s.signalsMu.Lock()
	defer s.signalsMu.Unlock()
	if len(s.signals) == 0 {
		return nil
	}
	n := len(s.signals)
	if max > 0 && n > max {
		n = max
	}
	out := make([]types.Signal, n)
	copy(out, s.signals[:n])
	s.signals = s.signals[n:]
	return out
}

func (s *Store) QueueDepth() int {
	s.signalsMu.Lock()
	n := len(s.signals)
	s.signalsMu.Unlock()
	return n
}

// AppendDecision records a terminal council decision. At most one terminal
// decision may exist per proposal id.
func (s *Store) AppendDecision(d types.CouncilDecision) error {
	if d.Outcome != types.OutcomeApproved && d.Outcome != types.OutcomeRejected {
		return fmt.Errorf("%w: non-terminal outcome %q", ErrInvariantViolation, d.Outcome)
	}
	s.decisionsMu.Lock()
	defer s.decisionsMu.Unlock()
	if _, ok := s.decisionIdx[d.ProposalID]; ok {
		return fmt.Errorf("%w: proposal %s", ErrDuplicateDecision, d.ProposalID)
	}
	d.Votes = append([]types.AgentVote(nil), d.Votes...)
	s.decisionIdx[d.ProposalID] = len(s.decisions)
	s.decisions = append(s.decisions, d)
	return nil
}

func (s *Store) DecisionByProposal(proposalID string) (types.CouncilDecision, bool) {
	s.decisionsMu.RLock()
	defer s.decisionsMu.RUnlock()
	i, ok := s.decisionIdx[proposalID]
	if !ok {
		return types.CouncilDecision{}, false
	}
	return copyDecision(s.decisions[i]), true
}

// RecentDecisions returns the newest decisions first.
func (s *Store) RecentDecisions(limit int) []types.CouncilDecision {
	s.decisionsMu.RLock()
	defer s.decisionsMu.RUnlock()
	n := len(s.decisions)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]types.CouncilDecision, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, copyDecision(s.decisions[i]))
	}
	return out
}

func copyDecision(d types.CouncilDecision) types.CouncilDecision {
	d.Votes = append([]types.AgentVote(nil), d.Votes...)
	return d
}

// IncrementErrors bumps the process-wide error counter and returns the new
// value.
func (s *Store) IncrementErrors() int64 {
	return s.errors.Add(1)
}

func (s *Store) ErrorCount() int64 {
	return s.errors.Load()
}

// AddActivity appends to the bounded activity ring, newest first.
func (s *Store) AddActivity(source, level, message string) {
	s.activityMu.Lock()
	s.activity = append([]ActivityEntry{{
		Time:    time.Now(),
		Level:   level,
		Source:  source,
		Message: message,
	}}, s.activity...)
	if len(s.activity) > s.maxActivity {
		s.activity = s.activity[:s.maxActivity]
	}
	s.activityMu.Unlock()
}

func (s *Store) Activity(limit int) []ActivityEntry {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()
	n := len(s.activity)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]ActivityEntry, limit)
	copy(out, s.activity[:limit])
	return out
}

func (s *Store) Uptime() time.Duration {
	return time.Since(s.start)
}
