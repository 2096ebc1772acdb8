package store

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode    string `yaml:"mode"`
	DataDir string `yaml:"data_dir"`

	Feeds struct {
		OrderBook struct {
			URL                string  `yaml:"url"`
			Symbol             string  `yaml:"symbol"`
			MarketRef          string  `yaml:"market_ref"`
			ImbalanceThreshold float64 `yaml:"imbalance_threshold"`
			WindowSeconds      int     `yaml:"window_seconds"`
			CooldownSeconds    int     `yaml:"cooldown_seconds"`
			Reconnect          struct {
				MinMillis int     `yaml:"min_ms"`
				MaxMillis int     `yaml:"max_ms"`
				Factor    float64 `yaml:"factor"`
				Jitter    float64 `yaml:"jitter"`
			} `yaml:"reconnect"`
		} `yaml:"orderbook"`
		Whale struct {
			PollSeconds               int      `yaml:"poll_seconds"`
			MinTradeSize              float64  `yaml:"min_trade_size"`
			CopyPercentage            float64  `yaml:"copy_percentage"`
			Watchlist                 []string `yaml:"watchlist"`
			LeaderboardRefreshMinutes int      `yaml:"leaderboard_refresh_minutes"`
		} `yaml:"whale"`
	} `yaml:"feeds"`

	MarketData struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"marketdata"`

	Trust struct {
		StalenessSeconds    int     `yaml:"staleness_seconds"`
		ColdStartScore      float64 `yaml:"cold_start_score"`
		FeedScore           float64 `yaml:"feed_score"`
		MinConsideration    float64 `yaml:"min_consideration"`
		FreshWalletNotional float64 `yaml:"fresh_wallet_notional"`
		PnLScale            float64 `yaml:"pnl_scale"`
		CategoryScale       int     `yaml:"category_scale"`
		Weights             struct {
			PnL               float64 `yaml:"pnl"`
			WinRate           float64 `yaml:"win_rate"`
			CapitalEfficiency float64 `yaml:"capital_efficiency"`
			Consistency       float64 `yaml:"consistency"`
			CategoryDepth     float64 `yaml:"category_depth"`
		} `yaml:"weights"`
		Seeds []TrustSeed `yaml:"seeds"`
	} `yaml:"trust"`

	Consensus struct {
		Threshold              float64 `yaml:"threshold"`
		VoteTimeoutSeconds     int     `yaml:"vote_timeout_seconds"`
		SignalFreshnessSeconds int     `yaml:"signal_freshness_seconds"`
		SignalMaxAgeSeconds    int     `yaml:"signal_max_age_seconds"`
		DedupeBucketSeconds    int     `yaml:"dedupe_bucket_seconds"`
		MinMagnitude           float64 `yaml:"min_magnitude"`
	} `yaml:"consensus"`

	Risk struct {
		MaxSingleTrade float64 `yaml:"max_single_trade"`
		MaxDailyLoss   float64 `yaml:"max_daily_loss"`
		VolatilityVeto float64 `yaml:"volatility_veto"`
		OversizeAction string  `yaml:"oversize_action"`
	} `yaml:"risk"`

	LLM struct {
		Provider       string  `yaml:"provider"`
		Model          string  `yaml:"model"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float32 `yaml:"temperature"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
	} `yaml:"llm"`

	News struct {
		Enabled        bool `yaml:"enabled"`
		MaxHeadlines   int  `yaml:"max_headlines"`
		TimeoutSeconds int  `yaml:"timeout_seconds"`
	} `yaml:"news"`

	Engine struct {
		TickSeconds     int     `yaml:"tick_seconds"`
		StartingBalance float64 `yaml:"starting_balance"`
	} `yaml:"engine"`
}

// TrustSeed preloads a source profile so known wallets are not treated as
// cold starts on a fresh data dir.
type TrustSeed struct {
	SourceID         string  `yaml:"source_id"`
	Alias            string  `yaml:"alias"`
	AllTimePnL       float64 `yaml:"all_time_pnl"`
	WinRate          float64 `yaml:"win_rate"`
	AvgTradeSize     float64 `yaml:"avg_trade_size"`
	TradeCount       int     `yaml:"trade_count"`
	ProfitableMonths int     `yaml:"profitable_months"`
	ActiveMonths     int     `yaml:"active_months"`
	Categories       int     `yaml:"categories"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.Consensus.Threshold <= 0 || c.Consensus.Threshold > 1 {
		return fmt.Errorf("consensus.threshold must be in (0,1], got %.2f", c.Consensus.Threshold)
	}
	if c.Risk.MaxSingleTrade <= 0 {
		return fmt.Errorf("risk.max_single_trade must be positive, got %.2f", c.Risk.MaxSingleTrade)
	}
	if c.Risk.MaxDailyLoss <= 0 {
		return fmt.Errorf("risk.max_daily_loss must be positive, got %.2f", c.Risk.MaxDailyLoss)
	}
	if c.Risk.OversizeAction != "CLAMP" && c.Risk.OversizeAction != "BLOCK" {
		return fmt.Errorf("risk.oversize_action must be 'CLAMP' or 'BLOCK', got '%s'", c.Risk.OversizeAction)
	}
	w := c.Trust.Weights
	sum := w.PnL + w.WinRate + w.CapitalEfficiency + w.Consistency + w.CategoryDepth
	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("trust.weights must sum to 1.0, got %.3f", sum)
	}
	if c.Trust.ColdStartScore >= c.Trust.MinConsideration {
		return fmt.Errorf("trust.cold_start_score (%.2f) must stay below trust.min_consideration (%.2f)",
			c.Trust.ColdStartScore, c.Trust.MinConsideration)
	}
	if c.Consensus.SignalFreshnessSeconds > c.Consensus.SignalMaxAgeSeconds {
		return fmt.Errorf("consensus.signal_freshness_seconds must not exceed signal_max_age_seconds")
	}
	return nil
}

// DefaultConfig returns a config with every default applied, as if an
// empty config.yaml had been loaded.
func DefaultConfig() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	ob := &c.Feeds.OrderBook
	if ob.ImbalanceThreshold == 0 {
		ob.ImbalanceThreshold = 3.0
	}
	if ob.WindowSeconds == 0 {
		ob.WindowSeconds = 60
	}
	if ob.CooldownSeconds == 0 {
		ob.CooldownSeconds = 60
	}
	if ob.Reconnect.MinMillis == 0 {
		ob.Reconnect.MinMillis = 250
	}
	if ob.Reconnect.MaxMillis == 0 {
		ob.Reconnect.MaxMillis = 30000
	}
	if ob.Reconnect.Factor == 0 {
		ob.Reconnect.Factor = 2.0
	}
	if c.MarketData.BaseURL == "" {
		c.MarketData.BaseURL = "http://localhost:8090"
	}
	wh := &c.Feeds.Whale
	if wh.PollSeconds == 0 {
		wh.PollSeconds = 30
	}
	if wh.MinTradeSize == 0 {
		wh.MinTradeSize = 1000
	}
	if wh.CopyPercentage == 0 {
		wh.CopyPercentage = 0.10
	}
	if wh.LeaderboardRefreshMinutes == 0 {
		wh.LeaderboardRefreshMinutes = 30
	}
	tr := &c.Trust
	if tr.StalenessSeconds == 0 {
		tr.StalenessSeconds = 300
	}
	if tr.ColdStartScore == 0 {
		tr.ColdStartScore = 0.15
	}
	if tr.FeedScore == 0 {
		tr.FeedScore = 0.60
	}
	if tr.MinConsideration == 0 {
		tr.MinConsideration = 0.30
	}
	if tr.FreshWalletNotional == 0 {
		tr.FreshWalletNotional = 100_000
	}
	if tr.PnLScale == 0 {
		tr.PnLScale = 1_000_000
	}
	if tr.CategoryScale == 0 {
		tr.CategoryScale = 5
	}
	if tr.Weights.PnL == 0 && tr.Weights.WinRate == 0 {
		tr.Weights.PnL = 0.30
		tr.Weights.WinRate = 0.20
		tr.Weights.CapitalEfficiency = 0.20
		tr.Weights.Consistency = 0.15
		tr.Weights.CategoryDepth = 0.15
	}
	cs := &c.Consensus
	if cs.Threshold == 0 {
		cs.Threshold = 2.0 / 3.0
	}
	if cs.VoteTimeoutSeconds == 0 {
		cs.VoteTimeoutSeconds = 20
	}
	if cs.SignalFreshnessSeconds == 0 {
		cs.SignalFreshnessSeconds = 90
	}
	if cs.SignalMaxAgeSeconds == 0 {
		cs.SignalMaxAgeSeconds = 600
	}
	if cs.DedupeBucketSeconds == 0 {
		cs.DedupeBucketSeconds = 300
	}
	if c.Risk.MaxSingleTrade == 0 {
		c.Risk.MaxSingleTrade = 500
	}
	if c.Risk.MaxDailyLoss == 0 {
		c.Risk.MaxDailyLoss = 1000
	}
	if c.Risk.VolatilityVeto == 0 {
		c.Risk.VolatilityVeto = 0.15
	}
	if c.Risk.OversizeAction == "" {
		c.Risk.OversizeAction = "CLAMP"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 512
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 12
	}
	if c.News.MaxHeadlines == 0 {
		c.News.MaxHeadlines = 5
	}
	if c.News.TimeoutSeconds == 0 {
		c.News.TimeoutSeconds = 8
	}
	if c.Engine.TickSeconds == 0 {
		c.Engine.TickSeconds = 2
	}
	if c.Engine.StartingBalance == 0 {
		c.Engine.StartingBalance = 10000
	}
}
