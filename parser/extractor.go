package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-prices/models"
)

// DefaultMatcherCacheSize bounds the number of compiled locators kept around.
const DefaultMatcherCacheSize = 256

// Extractor reads tiered prices out of parsed pages. Compiled locators are
// cached since every run evaluates the same handful of selectors.
type Extractor struct {
	matchers *lru.Cache[string, cascadia.Selector]
}

// NewExtractor builds an extractor with a matcher cache of the given size.
func NewExtractor(cacheSize int) (*Extractor, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultMatcherCacheSize
	}
	cache, err := lru.New[string, cascadia.Selector](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create matcher cache: %w", err)
	}
	return &Extractor{matchers: cache}, nil
}

// Extract resolves sel against doc. Unconfigured tiers inherit the price of
// the next lower configured tier. A NaN price is returned as is; rejecting it
// is up to the caller.
func (e *Extractor) Extract(doc *goquery.Document, sel models.Selector, nf NumberFormat) (models.Prices, error) {
	if doc == nil {
		return models.Prices{}, fmt.Errorf("document is nil")
	}
	if err := sel.Validate(); err != nil {
		return models.Prices{}, err
	}

	if sel.Kind == models.SelectorSingle {
		v, err := e.price(doc, sel.Locator, nf)
		if err != nil {
			return models.Prices{}, err
		}
		return models.UniformPrices(v), nil
	}

	var prices models.Prices
	for _, tier := range models.Tiers {
		locator, ok := sel.Tier(tier)
		if !ok {
			continue
		}
		v, err := e.price(doc, locator, nf)
		if err != nil {
			return models.Prices{}, fmt.Errorf("tier %s: %w", tier, err)
		}
		switch tier {
		case models.Tier100:
			prices = models.UniformPrices(v)
		case models.Tier150:
			prices.OneFifty = v
			prices.TwoHundred = v
		case models.Tier200:
			prices.TwoHundred = v
		}
	}
	return prices, nil
}

func (e *Extractor) price(doc *goquery.Document, locator string, nf NumberFormat) (float64, error) {
	matcher, err := e.matcher(locator)
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(doc.FindMatcher(matcher).Text())
	if text == "" {
		return 0, fmt.Errorf("no match for locator '%s'", locator)
	}
	return ParsePrice(text, nf), nil
}

func (e *Extractor) matcher(locator string) (cascadia.Selector, error) {
	if m, ok := e.matchers.Get(locator); ok {
		return m, nil
	}
	m, err := cascadia.Compile(locator)
	if err != nil {
		return nil, fmt.Errorf("invalid locator '%s': %w", locator, err)
	}
	e.matchers.Add(locator, m)
	return m, nil
}
