package scraper

import (
	"fmt"

	"github.com/aluiziolira/go-scrape-prices/config"
	"github.com/aluiziolira/go-scrape-prices/parser"
	"github.com/aluiziolira/go-scrape-prices/pipeline"
)

// Scraper bundles the pieces of a price run built from one configuration.
type Scraper struct {
	Fetcher   *Fetcher
	Processor *Processor
	Runner    *pipeline.Runner
	Metrics   *Metrics
}

// NewScraper builds a fetcher, extractor and processor from cfg and puts
// them behind a runner that reports to notifier.
func NewScraper(cfg *config.Config, store PriceStore, notifier pipeline.Notifier, metrics *Metrics) (*Scraper, error) {
	if store == nil {
		return nil, fmt.Errorf("price store is required")
	}
	format, err := parser.LookupNumberFormat(cfg.NumberFormat)
	if err != nil {
		return nil, err
	}
	extractor, err := parser.NewExtractor(cfg.MatcherCacheSize)
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}

	fetcher := NewFetcher(cfg, metrics)
	processor := NewProcessor(fetcher, extractor, store, format, metrics)

	return &Scraper{
		Fetcher:   fetcher,
		Processor: processor,
		Runner:    pipeline.NewRunner(processor, notifier, cfg.Concurrency),
		Metrics:   metrics,
	}, nil
}
