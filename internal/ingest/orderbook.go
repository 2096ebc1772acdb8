package ingest

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"alpha-engine/internal/logger"
	"alpha-engine/internal/state"
	"alpha-engine/internal/store"
	"alpha-engine/internal/types"
)

// depthFrame is one level-5 depth snapshot off the exchange stream.
// Levels arrive as [price, quantity] string pairs.
type depthFrame struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

// OrderBookWatcher streams depth snapshots over a websocket, tracks
// bid/ask volume imbalance, and emits a directional signal when the ratio
// crosses the configured threshold (buy-wall) or its reciprocal
// (sell-wall) during a volatile stretch. One watcher per symbol.
type OrderBookWatcher struct {
	cfg *store.Config
	st  *state.Store

	backoff Backoff
	dial    func(ctx context.Context, url string) (*websocket.Conn, error)
	now     func() time.Time

	lastSignal time.Time
	prices     []pricePoint
}

type pricePoint struct {
	mid float64
	at  time.Time
}

func NewOrderBookWatcher(cfg *store.Config, st *state.Store) *OrderBookWatcher {
	ob := cfg.Feeds.OrderBook
	return &OrderBookWatcher{
		cfg: cfg,
		st:  st,
		backoff: Backoff{
			Min:    time.Duration(ob.Reconnect.MinMillis) * time.Millisecond,
			Max:    time.Duration(ob.Reconnect.MaxMillis) * time.Millisecond,
			Factor: ob.Reconnect.Factor,
			Jitter: ob.Reconnect.Jitter,
		},
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
		now: time.Now,
	}
}

func (w *OrderBookWatcher) Name() string { return "orderbook:" + w.cfg.Feeds.OrderBook.Symbol }

// Run dials the depth stream and processes frames until the context is
// cancelled. Disconnects retry with capped exponential backoff; no signal
// is ever fabricated to cover a gap.
func (w *OrderBookWatcher) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := w.dial(ctx, w.cfg.Feeds.OrderBook.URL)
		if err != nil {
			attempt++
			w.st.IncrementErrors()
			wait := w.backoff.Next(attempt)
			logger.Warn(ctx, "Depth stream dial failed",
				"source", w.Name(), "attempt", attempt, "retry_in", wait.String(), "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		attempt = 0
		logger.Info(ctx, "Depth stream connected", "source", w.Name(), "url", w.cfg.Feeds.OrderBook.URL)
		w.st.AddActivity(w.Name(), "INFO", "connected to depth stream")

		err = w.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempt++
		w.st.IncrementErrors()
		wait := w.backoff.Next(attempt)
		logger.Warn(ctx, "Depth stream dropped",
			"source", w.Name(), "retry_in", wait.String(), "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (w *OrderBookWatcher) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame depthFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			// Not a depth frame (subscription acks etc.), skip it.
			continue
		}
		w.Observe(ctx, frame)
	}
}

// Observe folds one depth snapshot into the rolling window and emits a
// signal when imbalance and volatility both qualify.
func (w *OrderBookWatcher) Observe(ctx context.Context, frame depthFrame) {
	if len(frame.Bids) == 0 || len(frame.Asks) == 0 {
		return
	}

	var bidVol, askVol float64
	for _, b := range frame.Bids {
		v, _ := strconv.ParseFloat(b[1], 64)
		bidVol += v
	}
	for _, a := range frame.Asks {
		v, _ := strconv.ParseFloat(a[1], 64)
		askVol += v
	}
	if askVol == 0 || bidVol == 0 {
		return
	}

	bestBid, _ := strconv.ParseFloat(frame.Bids[0][0], 64)
	bestAsk, _ := strconv.ParseFloat(frame.Asks[0][0], 64)
	mid := (bestBid + bestAsk) / 2
	now := w.now()

	w.prices = append(w.prices, pricePoint{mid: mid, at: now})
	w.trimWindow(now)

	ratio := bidVol / askVol
	if !w.volatile(mid) {
		return
	}

	cooldown := time.Duration(w.cfg.Feeds.OrderBook.CooldownSeconds) * time.Second
	if now.Sub(w.lastSignal) < cooldown {
		return
	}

	threshold := w.cfg.Feeds.OrderBook.ImbalanceThreshold
	var dir types.Direction
	var magnitude float64
	switch {
	case ratio > threshold:
		dir = types.DirectionBuy
		magnitude = ratio
	case ratio < 1.0/threshold:
		dir = types.DirectionSell
		magnitude = 1.0 / ratio
	default:
		return
	}

	sig := types.Signal{
		SourceID:   w.Name(),
		Kind:       types.SignalOrderBookImbalance,
		MarketRef:  w.cfg.Feeds.OrderBook.MarketRef,
		Direction:  dir,
		Magnitude:  magnitude,
		ObservedAt: now,
		RawPayload: map[string]any{
			"symbol":    w.cfg.Feeds.OrderBook.Symbol,
			"ratio":     ratio,
			"bid_vol":   bidVol,
			"ask_vol":   askVol,
			"mid_price": mid,
		},
	}
	w.st.EnqueueSignal(sig)
	w.lastSignal = now
	logger.Signal(ctx, string(sig.Kind), sig.MarketRef, string(dir), magnitude,
		"source", w.Name(), "ratio", ratio)
	w.st.AddActivity(w.Name(), "INFO", "imbalance signal "+string(dir))
}

func (w *OrderBookWatcher) trimWindow(now time.Time) {
	window := time.Duration(w.cfg.Feeds.OrderBook.WindowSeconds) * time.Second
	cutoff := now.Add(-window)
	idx := 0
	for idx < len(w.prices) && !w.prices[idx].at.After(cutoff) {
		idx++
	}
	if idx > 0 {
		w.prices = w.prices[idx:]
	}
}

// volatile reports whether the mid price moved more than 10bps across the
// current window. Imbalance in a dead market carries no information.
func (w *OrderBookWatcher) volatile(mid float64) bool {
	if len(w.prices) <= 10 || mid == 0 {
		return false
	}
	lo, hi := w.prices[0].mid, w.prices[0].mid
	for _, p := range w.prices[1:] {
		if p.mid < lo {
			lo = p.mid
		}
		if p.mid > hi {
			hi = p.mid
		}
	}
	return (hi-lo)/mid > 0.001
}
