package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aluiziolira/go-scrape-prices/models"
)

// ErrFetch indicates the page could not be downloaded.
type ErrFetch struct {
	Err error
}

func (e ErrFetch) Error() string {
	return fmt.Errorf("fetch: %w", e.Err).Error()
}

func (e ErrFetch) Unwrap() error {
	return e.Err
}

// ErrParse indicates the downloaded markup could not be parsed.
type ErrParse struct {
	Err error
}

func (e ErrParse) Error() string {
	return fmt.Errorf("parse: %w", e.Err).Error()
}

func (e ErrParse) Unwrap() error {
	return e.Err
}

// ErrExtract indicates no usable prices were found on the page.
type ErrExtract struct {
	Err error
}

func (e ErrExtract) Error() string {
	return fmt.Errorf("extract: %w", e.Err).Error()
}

func (e ErrExtract) Unwrap() error {
	return e.Err
}

// ErrPersist indicates the price document could not be written.
type ErrPersist struct {
	Err error
}

func (e ErrPersist) Error() string {
	return fmt.Errorf("persist: %w", e.Err).Error()
}

func (e ErrPersist) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrHTTPStatus indicates the vendor answered with an error status.
type ErrHTTPStatus struct {
	StatusCode int
	Err        error
}

func (e ErrHTTPStatus) Error() string {
	return e.Err.Error()
}

func (e ErrHTTPStatus) Unwrap() error {
	return e.Err
}

// stageOf maps a processing error to the stage that produced it.
func stageOf(err error) models.Stage {
	var fetch ErrFetch
	if errors.As(err, &fetch) {
		return models.StageFetching
	}
	var parse ErrParse
	if errors.As(err, &parse) {
		return models.StageParsing
	}
	var extract ErrExtract
	if errors.As(err, &extract) {
		return models.StageExtracting
	}
	var persist ErrPersist
	if errors.As(err, &persist) {
		return models.StagePersisting
	}
	return models.StageFailed
}

func wrapStage(stage models.Stage, err error) error {
	switch stage {
	case models.StageFetching:
		return ErrFetch{Err: err}
	case models.StageParsing:
		return ErrParse{Err: err}
	case models.StagePersisting:
		return ErrPersist{Err: err}
	default:
		return ErrExtract{Err: err}
	}
}

// cause strips the stage wrapper so the recorded message reads as the
// collaborator reported it.
func cause(err error) error {
	if inner := errors.Unwrap(err); inner != nil {
		switch err.(type) {
		case ErrFetch, ErrParse, ErrExtract, ErrPersist:
			return inner
		}
	}
	return err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		switch status.StatusCode {
		case http.StatusForbidden:
			return "forbidden"
		case http.StatusNotFound:
			return "not_found"
		case http.StatusTooManyRequests:
			return "rate_limited"
		}
		if status.StatusCode >= http.StatusInternalServerError {
			return "server_error"
		}
		return "http_status"
	}
	return "other"
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode >= http.StatusBadRequest {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		return ErrHTTPStatus{StatusCode: statusCode, Err: wrapped}
	}

	return err
}
