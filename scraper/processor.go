package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-prices/models"
	"github.com/aluiziolira/go-scrape-prices/parser"
	"github.com/aluiziolira/go-scrape-prices/pipeline"
)

// PageFetcher downloads the raw markup of a page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// PriceStore persists extracted prices under a document id.
type PriceStore interface {
	UpsertPrices(ctx context.Context, documentID string, prices models.Prices) error
}

// Processor walks one site through fetch, parse, extract and persist. Every
// failure is recorded on the site; nothing propagates to the caller.
type Processor struct {
	fetcher   PageFetcher
	extractor *parser.Extractor
	store     PriceStore
	format    parser.NumberFormat
	metrics   *Metrics
}

// NewProcessor wires a processor. format is used for sites that do not set
// their own number format.
func NewProcessor(fetcher PageFetcher, extractor *parser.Extractor, store PriceStore, format parser.NumberFormat, metrics *Metrics) *Processor {
	return &Processor{
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		format:    format,
		metrics:   metrics,
	}
}

// Process runs the site to completion and files it with rec.
func (p *Processor) Process(ctx context.Context, site *models.Site, rec pipeline.Recorder) {
	defer func() {
		if r := recover(); r != nil {
			p.fail(site, rec, wrapStage(site.Stage, fmt.Errorf("panic: %v", r)))
		}
	}()

	prices, err := p.run(ctx, site)
	if err != nil {
		p.fail(site, rec, err)
		return
	}

	site.Prices = &prices
	site.Stage = models.StageSucceeded
	p.metrics.IncSite("succeeded")
	slog.Debug("site succeeded",
		slog.String("site", site.Label()),
		slog.Float64("one_hundred", prices.OneHundred),
		slog.Float64("one_fifty", prices.OneFifty),
		slog.Float64("two_hundred", prices.TwoHundred),
	)
	rec.Succeed(site)
}

func (p *Processor) run(ctx context.Context, site *models.Site) (models.Prices, error) {
	site.Stage = models.StageFetching
	body, err := p.fetcher.Fetch(ctx, site.URL)
	if err != nil {
		return models.Prices{}, ErrFetch{Err: err}
	}

	site.Stage = models.StageParsing
	doc, err := parser.Parse(body)
	if err != nil {
		return models.Prices{}, ErrParse{Err: err}
	}

	site.Stage = models.StageExtracting
	prices, err := p.extract(doc, site)
	if err != nil {
		return models.Prices{}, ErrExtract{Err: err}
	}

	site.Stage = models.StagePersisting
	if err := p.store.UpsertPrices(ctx, site.DocumentID, prices); err != nil {
		return models.Prices{}, ErrPersist{Err: err}
	}
	return prices, nil
}

func (p *Processor) extract(doc *goquery.Document, site *models.Site) (models.Prices, error) {
	format := p.format
	if site.NumberFormat != "" {
		nf, err := parser.LookupNumberFormat(site.NumberFormat)
		if err != nil {
			return models.Prices{}, err
		}
		format = nf
	}

	prices, err := p.extractor.Extract(doc, site.Selector, format)
	if err != nil {
		return models.Prices{}, err
	}
	if tier, missing := prices.MissingTier(); missing {
		return models.Prices{}, fmt.Errorf("no price found for tier %s", tier)
	}
	return prices, nil
}

func (p *Processor) fail(site *models.Site, rec pipeline.Recorder, err error) {
	stage := stageOf(err)
	site.FailedStage = stage
	site.Stage = models.StageFailed
	site.Error = cause(err).Error()

	p.metrics.IncSite("failed")
	p.metrics.IncStageFailure(string(stage))
	slog.Error("site failed",
		slog.String("site", site.Label()),
		slog.String("url", site.URL),
		slog.String("stage", string(stage)),
		slog.Any("error", err),
	)
	rec.Fail(site)
}
