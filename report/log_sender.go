package report

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// LogSender prints the report as a plain text summary. It is used for dry
// runs and when no SMTP host is configured.
type LogSender struct {
	out io.Writer
}

// NewLogSender writes summaries to out.
func NewLogSender(out io.Writer) *LogSender {
	return &LogSender{out: out}
}

// Send writes the summary.
func (s *LogSender) Send(ctx context.Context, r Report) error {
	separator := strings.Repeat("-", 50)

	var b strings.Builder
	fmt.Fprintln(&b, "\n"+separator)
	fmt.Fprintln(&b, Subject(r))
	fmt.Fprintf(&b, "  Run:           %s\n", r.RunID)
	fmt.Fprintf(&b, "  Total sites:   %d\n", r.Total)
	fmt.Fprintf(&b, "  Successful:    %d\n", r.Successful)
	fmt.Fprintf(&b, "  Failed:        %d\n", len(r.Failed))
	for _, site := range r.Failed {
		fmt.Fprintf(&b, "    - %s [%s]: %s\n", site.Label(), site.FailedStage, site.Error)
	}
	fmt.Fprintln(&b, separator)

	_, err := io.WriteString(s.out, b.String())
	return err
}
