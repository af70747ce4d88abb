// Package report builds and sends the end of run summary.
package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-prices/models"
)

// DateLayout is the run date format used in subjects and bodies.
const DateLayout = "01/02/2006"

// Report is the summary sent after a run drains.
type Report struct {
	RunID      string
	Date       string
	Year       int
	Total      int
	Successful int
	HasFailed  bool
	Failed     []*models.Site
}

// Compose builds the report for a finished run.
func Compose(result *models.RunResult) Report {
	finished := result.EndTime
	if finished.IsZero() {
		finished = time.Now()
	}
	return Report{
		RunID:      result.RunID,
		Date:       finished.Format(DateLayout),
		Year:       finished.Year(),
		Total:      result.Total,
		Successful: len(result.Succeeded),
		HasFailed:  len(result.Failed) > 0,
		Failed:     result.Failed,
	}
}

// Sender delivers a report.
type Sender interface {
	Send(ctx context.Context, r Report) error
}

// Emitter composes and sends the report. Send failures are logged and
// dropped.
type Emitter struct {
	sender Sender
}

// NewEmitter builds an emitter around sender. With a nil sender the report
// is composed and logged but not sent.
func NewEmitter(sender Sender) *Emitter {
	return &Emitter{sender: sender}
}

// Notify implements pipeline.Notifier.
func (e *Emitter) Notify(ctx context.Context, result *models.RunResult) {
	r := Compose(result)
	logger := slog.With(slog.String("run_id", r.RunID))
	logger.Info("sending report",
		slog.Int("successful", r.Successful),
		slog.Int("failures", len(r.Failed)),
	)

	if e.sender == nil {
		logger.Warn("no report sender configured, report not sent")
		return
	}
	if err := e.sender.Send(ctx, r); err != nil {
		logger.Error("an error occurred while sending the report", slog.Any("error", err))
		return
	}
	logger.Info("report sent", slog.String("date", r.Date))
}
