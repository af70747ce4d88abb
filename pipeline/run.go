package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-prices/models"
	"github.com/google/uuid"
)

// Recorder files a processed site under its outcome.
type Recorder interface {
	Succeed(site *models.Site)
	Fail(site *models.Site)
}

// Processor handles one site and files it with the recorder exactly once.
type Processor interface {
	Process(ctx context.Context, site *models.Site, rec Recorder)
}

// Notifier is told about a run once every site has been processed.
type Notifier interface {
	Notify(ctx context.Context, result *models.RunResult)
}

// Outcomes holds the succeeded and failed sites of one run in completion
// order. It is safe for concurrent use.
type Outcomes struct {
	mu        sync.Mutex
	succeeded []*models.Site
	failed    []*models.Site
}

// NewOutcomes returns empty outcome collections.
func NewOutcomes() *Outcomes {
	return &Outcomes{}
}

// Succeed appends site to the succeeded collection.
func (o *Outcomes) Succeed(site *models.Site) {
	o.mu.Lock()
	o.succeeded = append(o.succeeded, site)
	o.mu.Unlock()
}

// Fail appends site to the failed collection.
func (o *Outcomes) Fail(site *models.Site) {
	o.mu.Lock()
	o.failed = append(o.failed, site)
	o.mu.Unlock()
}

// Succeeded returns a copy of the succeeded collection.
func (o *Outcomes) Succeeded() []*models.Site {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*models.Site, len(o.succeeded))
	copy(out, o.succeeded)
	return out
}

// Failed returns a copy of the failed collection.
func (o *Outcomes) Failed() []*models.Site {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*models.Site, len(o.failed))
	copy(out, o.failed)
	return out
}

// Runner drains a batch of sites through a processor on a bounded queue.
type Runner struct {
	processor   Processor
	notifier    Notifier
	concurrency int
}

// NewRunner builds a runner. notifier may be nil.
func NewRunner(processor Processor, notifier Notifier, concurrency int) *Runner {
	return &Runner{
		processor:   processor,
		notifier:    notifier,
		concurrency: concurrency,
	}
}

// Run processes every site and returns once the notifier has been called.
// Each call owns its outcome collections, so independent runs may overlap.
func (r *Runner) Run(ctx context.Context, sites []*models.Site) *models.RunResult {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.RunResult{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
		Total:     len(sites),
	}
	outcomes := NewOutcomes()
	logger := slog.With(slog.String("run_id", result.RunID))

	q := NewQueue(r.concurrency, func() {
		result.EndTime = time.Now()
		result.Succeeded = outcomes.Succeeded()
		result.Failed = outcomes.Failed()
		logger.Info("run drained",
			slog.Int("total", result.Total),
			slog.Int("succeeded", len(result.Succeeded)),
			slog.Int("failed", len(result.Failed)),
			slog.Duration("duration", result.Duration()),
		)
		if r.notifier != nil {
			// The report goes out even if the run was interrupted.
			r.notifier.Notify(context.WithoutCancel(ctx), result)
		}
	})

	logger.Info("run started", slog.Int("sites", len(sites)), slog.Int("concurrency", r.concurrency))
	for _, site := range sites {
		if err := q.Enqueue(func() { r.processor.Process(ctx, site, outcomes) }); err != nil {
			site.Stage = models.StageFailed
			site.Error = err.Error()
			outcomes.Fail(site)
		}
	}
	q.Close()
	q.Wait()

	return result
}
