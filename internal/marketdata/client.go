package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"alpha-engine/internal/trace"
	"alpha-engine/internal/types"
)

// Client talks to the market-data collaborator: market snapshots, per-wallet
// trade history, the trader leaderboard and recent prices. It never mutates
// engine state; all failures surface as errors for the caller to degrade on.
type Client struct {
	baseURL string
	hc      *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
}

type marketRow struct {
	Ref         string  `json:"ref"`
	Question    string  `json:"question"`
	Description string  `json:"description"`
	YesPrice    float64 `json:"yes_price"`
	NoPrice     float64 `json:"no_price"`
	Volume24h   float64 `json:"volume_24h"`
	Liquidity   float64 `json:"liquidity"`
	Resolved    bool    `json:"resolved"`
}

func (r marketRow) toMarket() types.Market {
	return types.Market{
		Ref:       r.Ref,
		Question:  r.Question,
		YesPrice:  r.YesPrice,
		NoPrice:   r.NoPrice,
		Volume24h: r.Volume24h,
		Liquidity: r.Liquidity,
		Resolved:  r.Resolved,
	}
}

// GetMarket fetches a point-in-time snapshot of one market.
func (c *Client) GetMarket(ctx context.Context, ref string) (types.Market, error) {
	var row marketRow
	if err := c.getJSON(ctx, "/markets/"+url.PathEscape(ref), nil, &row); err != nil {
		return types.Market{}, err
	}
	return row.toMarket(), nil
}

// MarketRules fetches a market and strips its HTML rules description down
// to plain text for the reasoning prompt.
func (c *Client) MarketRules(ctx context.Context, ref string) (string, error) {
	var row marketRow
	if err := c.getJSON(ctx, "/markets/"+url.PathEscape(ref), nil, &row); err != nil {
		return "", err
	}
	if row.Description == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(row.Description))
	if err != nil {
		return "", err
	}
	doc.Find("script,style").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")
	return text, nil
}

type tradeRow struct {
	Wallet    string  `json:"wallet"`
	MarketRef string  `json:"market_ref"`
	Side      string  `json:"side"`
	Outcome   string  `json:"outcome"`
	Size      float64 `json:"size"`
	Price     float64 `json:"price"`
	TxHash    string  `json:"tx_hash"`
	Timestamp int64   `json:"timestamp"`
}

// GetWalletTrades returns the most recent trades for one wallet, newest
// first.
func (c *Client) GetWalletTrades(ctx context.Context, wallet string, limit int) ([]types.WhaleTrade, error) {
	q := url.Values{"wallet": {wallet}}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var rows []tradeRow
	if err := c.getJSON(ctx, "/trades", q, &rows); err != nil {
		return nil, err
	}
	out := make([]types.WhaleTrade, 0, len(rows))
	for _, r := range rows {
		dir := types.DirectionBuy
		if strings.EqualFold(r.Side, "SELL") {
			dir = types.DirectionSell
		}
		out = append(out, types.WhaleTrade{
			Wallet:     r.Wallet,
			MarketRef:  r.MarketRef,
			Direction:  dir,
			Outcome:    strings.ToUpper(r.Outcome),
			Size:       r.Size,
			Price:      r.Price,
			TxHash:     r.TxHash,
			ObservedAt: time.Unix(r.Timestamp, 0).UTC(),
		})
	}
	return out, nil
}

// LeaderboardRow is one trader entry from the leaderboard endpoint.
type LeaderboardRow struct {
	Wallet           string  `json:"wallet"`
	Username         string  `json:"username"`
	AllTimePnL       float64 `json:"all_time_pnl"`
	WinRate          float64 `json:"win_rate"`
	AvgTradeSize     float64 `json:"avg_trade_size"`
	TradeCount       int     `json:"trade_count"`
	ProfitableMonths int     `json:"profitable_months"`
	ActiveMonths     int     `json:"active_months"`
	Categories       int     `json:"categories"`
}

func (c *Client) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var rows []LeaderboardRow
	if err := c.getJSON(ctx, "/leaderboard", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// RecentVolatility fetches recent prices for a market and returns the
// standard deviation of simple returns, the measure consumed by the risk
// gatekeeper's volatility veto.
func (c *Client) RecentVolatility(ctx context.Context, ref string, n int) (float64, error) {
	q := url.Values{}
	if n > 0 {
		q.Set("limit", fmt.Sprint(n))
	}
	var resp struct {
		Prices []float64 `json:"prices"`
	}
	if err := c.getJSON(ctx, "/prices/"+url.PathEscape(ref), q, &resp); err != nil {
		return 0, err
	}
	return Volatility(resp.Prices), nil
}

// Volatility computes the stddev of simple returns over a price series.
func Volatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	ctx, span := trace.StartSpan(ctx, "marketdata-get")
	defer span.End()

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("marketdata http %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
