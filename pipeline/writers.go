package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/aluiziolira/go-scrape-prices/models"
)

// OutputWriter defines the interface for run snapshot output.
type OutputWriter interface {
	Write(sites []*models.Site) error
	Close() error
	Validate() error
}

// WriteResult writes every site of a run, successes first, then closes and
// validates the writer.
func WriteResult(w OutputWriter, result *models.RunResult) error {
	sites := make([]*models.Site, 0, len(result.Succeeded)+len(result.Failed))
	sites = append(sites, result.Succeeded...)
	sites = append(sites, result.Failed...)

	if err := w.Write(sites); err != nil {
		w.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if len(sites) == 0 {
		return nil
	}
	return w.Validate()
}

// snapshotFile is the output file behind a snapshot writer.
type snapshotFile struct {
	kind string
	file *os.File
}

func createSnapshotFile(filename, kind string) (*snapshotFile, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", kind, err)
	}
	return &snapshotFile{kind: kind, file: f}, nil
}

// close runs flush, then closes the file even when the flush failed.
func (s *snapshotFile) close(flush func() error) error {
	if err := flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush %s writer: %w", s.kind, err)
	}
	return s.file.Close()
}

// validate checks that the file on disk is not empty.
func (s *snapshotFile) validate() error {
	info, err := os.Stat(s.file.Name())
	if err != nil {
		return fmt.Errorf("stat %s file: %w", s.kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", s.kind)
	}
	return nil
}

var csvHeader = []string{"name", "url", "document_id", "stage", "one_hundred", "one_fifty", "two_hundred", "failed_stage", "error"}

// CSVWriter writes site outcomes to CSV.
type CSVWriter struct {
	out    *snapshotFile
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	out, err := createSnapshotFile(filename, "csv")
	if err != nil {
		return nil, err
	}

	cw := &CSVWriter{out: out, writer: csv.NewWriter(out.file)}
	if err := cw.writer.Write(csvHeader); err != nil {
		out.file.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.flush(); err != nil {
		out.file.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}
	return cw, nil
}

// Write appends sites to the CSV output.
func (cw *CSVWriter) Write(sites []*models.Site) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, site := range sites {
		if err := cw.writer.Write(csvRecord(site)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	if err := cw.flush(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.out.close(cw.flush)
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	return cw.out.validate()
}

func (cw *CSVWriter) flush() error {
	cw.writer.Flush()
	return cw.writer.Error()
}

func csvRecord(site *models.Site) []string {
	hundred, fifty, twoHundred := "", "", ""
	if site.Prices != nil {
		hundred = formatPrice(site.Prices.OneHundred)
		fifty = formatPrice(site.Prices.OneFifty)
		twoHundred = formatPrice(site.Prices.TwoHundred)
	}
	return []string{
		site.Name,
		site.URL,
		site.DocumentID,
		string(site.Stage),
		hundred,
		fifty,
		twoHundred,
		string(site.FailedStage),
		site.Error,
	}
}

// JSONWriter writes newline-delimited JSON site records.
type JSONWriter struct {
	out     *snapshotFile
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	out, err := createSnapshotFile(filename, "json")
	if err != nil {
		return nil, err
	}

	buffer := bufio.NewWriter(out.file)
	return &JSONWriter{
		out:     out,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends sites in JSONL format.
func (jw *JSONWriter) Write(sites []*models.Site) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, site := range sites {
		if err := jw.encoder.Encode(site); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.out.close(jw.writer.Flush)
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	return jw.out.validate()
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
