// Package models defines data structures for the price scraper.
package models

import "time"

// Stage names a step of the per-site processing sequence.
type Stage string

const (
	StagePending    Stage = ""
	StageFetching   Stage = "fetching"
	StageParsing    Stage = "parsing"
	StageExtracting Stage = "extracting"
	StagePersisting Stage = "persisting"
	StageSucceeded  Stage = "succeeded"
	StageFailed     Stage = "failed"
)

// Site describes one vendor page to scrape.
//
// Stage, FailedStage, Error and Prices are filled in by the site processor
// while the site moves through a run.
type Site struct {
	Name         string   `json:"name,omitempty" yaml:"name,omitempty"`
	URL          string   `json:"url" yaml:"url"`
	DocumentID   string   `json:"document_id" yaml:"document_id"`
	Selector     Selector `json:"selector" yaml:"selector"`
	NumberFormat string   `json:"number_format,omitempty" yaml:"number_format,omitempty"`

	Stage       Stage   `json:"stage,omitempty" yaml:"-"`
	FailedStage Stage   `json:"failed_stage,omitempty" yaml:"-"`
	Error       string  `json:"error,omitempty" yaml:"-"`
	Prices      *Prices `json:"prices,omitempty" yaml:"-"`
}

// Label returns the name used in logs and reports.
func (s *Site) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.URL
}

// RunResult holds the outcome of one batch of sites.
type RunResult struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Total     int
	Succeeded []*Site
	Failed    []*Site
}

// Duration reports how long the run took.
func (r *RunResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
