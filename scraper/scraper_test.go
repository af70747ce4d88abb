package scraper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-prices/config"
	"github.com/aluiziolira/go-scrape-prices/models"
	"github.com/aluiziolira/go-scrape-prices/parser"
	"github.com/aluiziolira/go-scrape-prices/report"
	"github.com/aluiziolira/go-scrape-prices/store"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: errors.New("Bad Gateway"), statusCode: http.StatusBadGateway, expected: "server_error"},
		{name: "other status", err: errors.New("Gone"), statusCode: http.StatusGone, expected: "http_status"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestStageOfAndCause(t *testing.T) {
	inner := errors.New("boom")
	tests := []struct {
		err   error
		stage models.Stage
	}{
		{err: ErrFetch{Err: inner}, stage: models.StageFetching},
		{err: ErrParse{Err: inner}, stage: models.StageParsing},
		{err: ErrExtract{Err: inner}, stage: models.StageExtracting},
		{err: ErrPersist{Err: inner}, stage: models.StagePersisting},
		{err: inner, stage: models.StageFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			if got := stageOf(tt.err); got != tt.stage {
				t.Fatalf("stageOf = %q, want %q", got, tt.stage)
			}
			if got := cause(tt.err); got != inner {
				t.Fatalf("cause = %v, want %v", got, inner)
			}
		})
	}
}

func TestFetcherHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			const target = "http://vendor.test/prices"

			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", target, httpmock.NewStringResponder(tt.status, ""))

			metrics := NewMetrics()
			f := NewFetcher(config.DefaultConfig(), metrics)
			f.WithTransport(transport)

			_, err := f.Fetch(context.Background(), target)
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			if got := errorTypeLabel(err); got != tt.expected {
				t.Fatalf("label = %q, want %q", got, tt.expected)
			}
			if got := testutil.ToFloat64(metrics.FetchErrorsTotal.WithLabelValues(tt.expected)); got != 1 {
				t.Fatalf("fetch error metric = %v, want 1", got)
			}
		})
	}
}

func TestFetcherSendsUserAgent(t *testing.T) {
	const target = "http://vendor.test/"
	cfg := config.DefaultConfig()

	var gotUA string
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", target, func(req *http.Request) (*http.Response, error) {
		gotUA = req.Header.Get("User-Agent")
		return htmlResponse(`<p class="price">$3.459</p>`), nil
	})

	f := NewFetcher(cfg, nil)
	f.WithTransport(transport)

	body, err := f.Fetch(context.Background(), target)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(string(body), "3.459") {
		t.Fatalf("unexpected body %q", body)
	}
	if gotUA != cfg.UserAgent {
		t.Fatalf("user agent = %q, want %q", gotUA, cfg.UserAgent)
	}
}

func TestFetcherCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(config.DefaultConfig(), nil)
	f.WithTransport(httpmock.NewMockTransport())

	if _, err := f.Fetch(ctx, "http://vendor.test/"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// stubFetcher serves fixed bodies by URL.
type stubFetcher struct {
	pages map[string]string
	err   error
	panic bool
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if s.panic {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, ok := s.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return []byte(body), nil
}

type failingStore struct{}

func (failingStore) UpsertPrices(ctx context.Context, documentID string, prices models.Prices) error {
	return errors.New("write conflict")
}

type recorder struct {
	mu        sync.Mutex
	succeeded []*models.Site
	failed    []*models.Site
}

func (r *recorder) Succeed(site *models.Site) {
	r.mu.Lock()
	r.succeeded = append(r.succeeded, site)
	r.mu.Unlock()
}

func (r *recorder) Fail(site *models.Site) {
	r.mu.Lock()
	r.failed = append(r.failed, site)
	r.mu.Unlock()
}

func newTestProcessor(t *testing.T, fetcher PageFetcher, st PriceStore) *Processor {
	t.Helper()
	extractor, err := parser.NewExtractor(0)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	return NewProcessor(fetcher, extractor, st, parser.FormatUS, NewMetrics())
}

func TestProcessorTieredSuccess(t *testing.T) {
	const page = `<html><body>
		<span class="p100">$3.459</span>
		<span class="p200">$3.259</span>
	</body></html>`

	fetcher := &stubFetcher{pages: map[string]string{"http://a.test/": page}}
	mem := store.NewMemoryStore()
	p := newTestProcessor(t, fetcher, mem)

	site := &models.Site{
		URL:        "http://a.test/",
		DocumentID: "acme",
		Selector:   models.TieredSelector(map[string]string{"100": ".p100", "200": ".p200"}),
	}
	rec := &recorder{}
	p.Process(context.Background(), site, rec)

	if len(rec.succeeded) != 1 || len(rec.failed) != 0 {
		t.Fatalf("succeeded=%d failed=%d, want 1/0 (error %q)", len(rec.succeeded), len(rec.failed), site.Error)
	}
	if site.Stage != models.StageSucceeded || site.Prices == nil {
		t.Fatalf("unexpected site state: %+v", site)
	}
	want := models.Prices{OneHundred: 3.459, OneFifty: 3.459, TwoHundred: 3.259}
	if *site.Prices != want {
		t.Fatalf("prices = %+v, want %+v", *site.Prices, want)
	}
	doc, ok := mem.Get("acme")
	if !ok || doc[store.FieldOneFifty] != 3.459 {
		t.Fatalf("stored document = %v", doc)
	}
}

func TestProcessorFailures(t *testing.T) {
	tests := []struct {
		name      string
		fetcher   *stubFetcher
		store     PriceStore
		selector  models.Selector
		format    string
		stage     models.Stage
		wantError string
	}{
		{
			name:      "fetch error",
			fetcher:   &stubFetcher{err: errors.New("network timeout")},
			selector:  models.SingleSelector(".price"),
			stage:     models.StageFetching,
			wantError: "network timeout",
		},
		{
			name:      "empty page",
			fetcher:   &stubFetcher{pages: map[string]string{"http://a.test/": "   "}},
			selector:  models.SingleSelector(".price"),
			stage:     models.StageParsing,
			wantError: "empty document",
		},
		{
			name:      "missing element",
			fetcher:   &stubFetcher{pages: map[string]string{"http://a.test/": `<p class="other">1.00</p>`}},
			selector:  models.SingleSelector(".price"),
			stage:     models.StageExtracting,
			wantError: "no match for locator '.price'",
		},
		{
			name:      "no number",
			fetcher:   &stubFetcher{pages: map[string]string{"http://a.test/": `<p class="price">Call for pricing</p>`}},
			selector:  models.SingleSelector(".price"),
			stage:     models.StageExtracting,
			wantError: "no price found for tier 100",
		},
		{
			name:      "malformed selector",
			fetcher:   &stubFetcher{pages: map[string]string{"http://a.test/": `<p class="price">1.00</p>`}},
			selector:  models.TieredSelector(map[string]string{"150": ".price"}),
			stage:     models.StageExtracting,
			wantError: "malformed selector",
		},
		{
			name:      "unknown site number format",
			fetcher:   &stubFetcher{pages: map[string]string{"http://a.test/": `<p class="price">1.00</p>`}},
			selector:  models.SingleSelector(".price"),
			format:    "fr",
			stage:     models.StageExtracting,
			wantError: "number format",
		},
		{
			name:      "persist error",
			fetcher:   &stubFetcher{pages: map[string]string{"http://a.test/": `<p class="price">1.00</p>`}},
			store:     failingStore{},
			selector:  models.SingleSelector(".price"),
			stage:     models.StagePersisting,
			wantError: "write conflict",
		},
		{
			name:      "panic",
			fetcher:   &stubFetcher{panic: true},
			selector:  models.SingleSelector(".price"),
			stage:     models.StageFetching,
			wantError: "panic: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.store
			if st == nil {
				st = store.NewMemoryStore()
			}
			p := newTestProcessor(t, tt.fetcher, st)
			site := &models.Site{
				URL:          "http://a.test/",
				DocumentID:   "acme",
				Selector:     tt.selector,
				NumberFormat: tt.format,
			}
			rec := &recorder{}
			p.Process(context.Background(), site, rec)

			if len(rec.failed) != 1 || len(rec.succeeded) != 0 {
				t.Fatalf("succeeded=%d failed=%d, want 0/1", len(rec.succeeded), len(rec.failed))
			}
			if site.Stage != models.StageFailed || site.FailedStage != tt.stage {
				t.Fatalf("stage=%q failed_stage=%q, want failed/%q", site.Stage, site.FailedStage, tt.stage)
			}
			if !strings.Contains(site.Error, tt.wantError) {
				t.Fatalf("error = %q, want it to contain %q", site.Error, tt.wantError)
			}
			if site.Prices != nil {
				t.Fatalf("failed site should carry no prices")
			}
		})
	}
}

func TestProcessorCancelledContextFailsFast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &stubFetcher{pages: map[string]string{"http://a.test/": `<p class="price">1.00</p>`}}
	p := newTestProcessor(t, fetcher, store.NewMemoryStore())
	site := &models.Site{URL: "http://a.test/", DocumentID: "acme", Selector: models.SingleSelector(".price")}
	rec := &recorder{}
	p.Process(ctx, site, rec)

	if len(rec.failed) != 1 || site.FailedStage != models.StageFetching {
		t.Fatalf("expected fetch failure, got stage %q error %q", site.FailedStage, site.Error)
	}
}

type recordingSender struct {
	mu      sync.Mutex
	reports []report.Report
}

func (s *recordingSender) Send(ctx context.Context, r report.Report) error {
	s.mu.Lock()
	s.reports = append(s.reports, r)
	s.mu.Unlock()
	return nil
}

func TestScraper_Integration(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://a.test/", htmlResponder(`<html><body>
		<div class="p100">$10.00</div>
		<div class="p150">$9.00</div>
		<div class="p200">$8.00</div>
	</body></html>`))
	transport.RegisterResponder("GET", "http://b.test/", httpmock.NewErrorResponder(errors.New("network timeout")))
	transport.RegisterResponder("GET", "http://c.test/", htmlResponder(`<html><body><p>No prices today</p></body></html>`))

	mem := store.NewMemoryStore()
	mem.Put("acme", map[string]interface{}{"name": "Acme Oil", "phone": "555-0100"})

	sender := &recordingSender{}
	cfg := config.DefaultConfig()
	cfg.Concurrency = 2

	s, err := NewScraper(cfg, mem, report.NewEmitter(sender), NewMetrics())
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.Fetcher.WithTransport(transport)

	sites := []*models.Site{
		{Name: "Acme", URL: "http://a.test/", DocumentID: "acme", Selector: models.TieredSelector(map[string]string{"100": ".p100", "150": ".p150", "200": ".p200"})},
		{Name: "Bolt", URL: "http://b.test/", DocumentID: "bolt", Selector: models.SingleSelector(".price")},
		{Name: "Coal", URL: "http://c.test/", DocumentID: "coal", Selector: models.SingleSelector(".price")},
	}

	result := s.Runner.Run(context.Background(), sites)

	if len(result.Succeeded) != 1 || len(result.Failed) != 2 {
		t.Fatalf("succeeded=%d failed=%d, want 1/2", len(result.Succeeded), len(result.Failed))
	}
	if result.Succeeded[0].DocumentID != "acme" {
		t.Fatalf("unexpected success %q", result.Succeeded[0].DocumentID)
	}

	failures := map[string]*models.Site{}
	for _, site := range result.Failed {
		failures[site.DocumentID] = site
	}
	if bolt := failures["bolt"]; bolt == nil || bolt.FailedStage != models.StageFetching || !strings.Contains(bolt.Error, "network timeout") {
		t.Fatalf("unexpected bolt outcome: %+v", bolt)
	}
	if coal := failures["coal"]; coal == nil || coal.FailedStage != models.StageExtracting || coal.Error != "no match for locator '.price'" {
		t.Fatalf("unexpected coal outcome: %+v", coal)
	}

	doc, ok := mem.Get("acme")
	if !ok {
		t.Fatalf("acme document missing")
	}
	if doc[store.FieldOneHundred] != 10.0 || doc[store.FieldOneFifty] != 9.0 || doc[store.FieldTwoHundred] != 8.0 {
		t.Fatalf("stored prices = %v", doc)
	}
	if doc["phone"] != "555-0100" {
		t.Fatalf("unrelated fields should survive the upsert: %v", doc)
	}
	if _, ok := mem.Get("bolt"); ok {
		t.Fatalf("failed sites should not be persisted")
	}

	if len(sender.reports) != 1 {
		t.Fatalf("reports sent = %d, want 1", len(sender.reports))
	}
	r := sender.reports[0]
	if r.Total != 3 || r.Successful != 1 || !r.HasFailed || len(r.Failed) != 2 {
		t.Fatalf("unexpected report: %+v", r)
	}
	if got := testutil.ToFloat64(s.Metrics.SitesTotal.WithLabelValues("failed")); got != 2 {
		t.Fatalf("failed site metric = %v, want 2", got)
	}
}

func TestScraperIncompleteSiteFailsAlone(t *testing.T) {
	page := htmlResponder(`<html><body><span class="price">$3.10</span></body></html>`)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://a.test/", page)
	transport.RegisterResponder("GET", "http://b.test/", page)
	transport.RegisterResponder("GET", "http://c.test/", page)

	sites, err := config.ParseSites([]byte(`[
		{"url": "http://a.test/", "document_id": "a", "selector": ".price"},
		{"url": "http://b.test/", "selector": ".price"},
		{"url": "http://c.test/", "document_id": "c", "selector": ".price"}
	]`), ".json")
	if err != nil {
		t.Fatalf("parse sites: %v", err)
	}

	mem := store.NewMemoryStore()
	sender := &recordingSender{}
	s, err := NewScraper(config.DefaultConfig(), mem, report.NewEmitter(sender), nil)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.Fetcher.WithTransport(transport)

	result := s.Runner.Run(context.Background(), sites)

	if result.Total != 3 || len(result.Succeeded) != 2 || len(result.Failed) != 1 {
		t.Fatalf("total=%d succeeded=%d failed=%d, want 3/2/1", result.Total, len(result.Succeeded), len(result.Failed))
	}
	failed := result.Failed[0]
	if failed.URL != "http://b.test/" || failed.FailedStage != models.StagePersisting || !strings.Contains(failed.Error, "document id is empty") {
		t.Fatalf("unexpected failure: %+v", failed)
	}
	if mem.Len() != 2 {
		t.Fatalf("stored documents = %d, want 2", mem.Len())
	}
	if len(sender.reports) != 1 || sender.reports[0].Total != 3 || len(sender.reports[0].Failed) != 1 {
		t.Fatalf("report not sent for the partial run: %+v", sender.reports)
	}
}

func TestFetcherRejectsMissingURL(t *testing.T) {
	f := NewFetcher(config.DefaultConfig(), nil)
	f.WithTransport(httpmock.NewMockTransport())

	if _, err := f.Fetch(context.Background(), " "); err == nil || !strings.Contains(err.Error(), "no url") {
		t.Fatalf("expected missing url error, got %v", err)
	}
}

func TestNewScraperRejectsBadFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.NumberFormat = "fr"
	if _, err := NewScraper(cfg, store.NewMemoryStore(), nil, nil); err == nil {
		t.Fatalf("expected number format error")
	}
}

func BenchmarkProcessor(b *testing.B) {
	page := `<html><body><span class="price">$1,234.56</span></body></html>`
	extractor, err := parser.NewExtractor(0)
	if err != nil {
		b.Fatalf("extractor: %v", err)
	}
	p := NewProcessor(&stubFetcher{pages: map[string]string{"http://a.test/": page}}, extractor, store.NewMemoryStore(), parser.FormatUS, nil)
	rec := &recorder{}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		site := &models.Site{URL: "http://a.test/", DocumentID: "acme", Selector: models.SingleSelector(".price")}
		p.Process(context.Background(), site, rec)
		if site.Prices == nil || math.Abs(site.Prices.OneHundred-1234.56) > 1e-9 {
			b.Fatalf("unexpected prices %+v (error %q)", site.Prices, site.Error)
		}
	}
}

func htmlResponse(body string) *http.Response {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return resp
}

func htmlResponder(body string) httpmock.Responder {
	return httpmock.ResponderFromResponse(htmlResponse(body))
}
