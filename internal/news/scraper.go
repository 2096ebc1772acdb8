package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"alpha-engine/internal/logger"
)

// Scraper pulls recent headlines matching a market question for the
// voters' shared context. Headlines are best-effort: a failed scrape
// yields an empty slice, never an engine error.
type Scraper struct {
	sources []Source
	timeout time.Duration
}

// Source is one scrapeable headline feed.
type Source struct {
	Name       string
	BaseURL    string
	SearchPath string // "{query}" is substituted with the escaped query
	Selectors  Selectors
	RateLimit  time.Duration
}

// Selectors are the CSS hooks for pulling headlines off a source page.
type Selectors struct {
	Container string
	Title     string
}

func NewScraper(timeout time.Duration) *Scraper {
	return &Scraper{
		sources: defaultSources(),
		timeout: timeout,
	}
}

func defaultSources() []Source {
	return []Source{
		{
			Name:       "CoinDesk",
			BaseURL:    "https://www.coindesk.com",
			SearchPath: "/search?s={query}",
			Selectors: Selectors{
				Container: "div.article-card",
				Title:     "h2 a, h3 a",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name:       "TheBlock",
			BaseURL:    "https://www.theblock.co",
			SearchPath: "/search?query={query}",
			Selectors: Selectors{
				Container: "div.searchResult",
				Title:     "a h2, a h3",
			},
			RateLimit: 2 * time.Second,
		},
	}
}

// Headlines fetches up to max headline strings for the query, trying each
// source in turn. Sources failing individually are skipped.
func (s *Scraper) Headlines(ctx context.Context, query string, max int) []string {
	if max <= 0 {
		return nil
	}
	headlines := make([]string, 0, max)
	perSource := max / len(s.sources)
	if perSource < 1 {
		perSource = 1
	}

	for _, src := range s.sources {
		if len(headlines) >= max {
			break
		}
		got, err := s.scrapeSource(ctx, src, query, perSource)
		if err != nil {
			logger.Warn(ctx, "Headline source failed", "source", src.Name, "error", err)
			continue
		}
		headlines = append(headlines, got...)
		time.Sleep(src.RateLimit)
	}
	if len(headlines) > max {
		headlines = headlines[:max]
	}
	logger.Debug(ctx, "Headline scrape done", "query", query, "headlines", len(headlines))
	return headlines
}

func (s *Scraper) scrapeSource(ctx context.Context, src Source, query string, max int) ([]string, error) {
	var headlines []string

	c := colly.NewCollector(
		colly.AllowedDomains(hostname(src.BaseURL)),
		colly.MaxDepth(1),
		colly.Async(false),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	c.OnHTML(src.Selectors.Container, func(e *colly.HTMLElement) {
		if len(headlines) >= max {
			return
		}
		title := strings.TrimSpace(e.ChildText(src.Selectors.Title))
		if title == "" {
			return
		}
		headlines = append(headlines, title)
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.Warn(ctx, "Scraping error", "source", src.Name, "url", r.Request.URL.String(), "error", err)
	})

	searchURL := src.BaseURL + strings.ReplaceAll(src.SearchPath, "{query}", url.QueryEscape(query))
	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", searchURL, err)
	}
	c.Wait()

	return headlines, nil
}

func hostname(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
