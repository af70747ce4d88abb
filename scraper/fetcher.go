package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-prices/config"
	"github.com/gocolly/colly/v2"
)

// Fetcher downloads vendor pages with a desktop browser user agent.
type Fetcher struct {
	collector *colly.Collector
	metrics   *Metrics
}

// NewFetcher builds a fetcher configured from cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics) *Fetcher {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &Fetcher{
		collector: collector,
		metrics:   metrics,
	}
}

// WithTransport swaps the HTTP transport used for every fetch.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch issues a GET for rawURL and returns the response body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("site has no url")
	}

	// Clones share the HTTP backend but keep their own callbacks, so
	// concurrent fetches don't see each other's responses.
	c := f.collector.Clone()

	var (
		body   []byte
		status int
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	start := time.Now()
	err := c.Visit(rawURL)
	f.metrics.ObserveFetch(time.Since(start))

	if err != nil {
		classified := classifyError(err, status)
		category := errorTypeLabel(classified)
		f.metrics.IncFetchError(category)
		slog.Debug("fetch failed",
			slog.String("url", rawURL),
			slog.Int("status", status),
			slog.String("category", category),
			slog.Any("error", err),
		)
		return nil, classified
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body (status %d)", status)
	}
	return body, nil
}
