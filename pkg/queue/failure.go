// Package queue implements the durable activity-import queue: item store,
// retry/backoff policy and the per-item processing state machine.
package queue

import (
	"fmt"

	httputil "github.com/quantifiedself/ingest-server/pkg/infrastructure/http"
)

// FailureKind is the closed set of ways a queue item can fail. The processor
// matches on it exhaustively; there is no fall-through path.
type FailureKind int

const (
	KindInternal FailureKind = iota
	KindNoCredential
	KindFetchFailed
	KindEmptyResult
	KindConversionFailed
	KindPersistenceFailed
)

func (k FailureKind) String() string {
	switch k {
	case KindNoCredential:
		return "no_credential"
	case KindFetchFailed:
		return "fetch_failed"
	case KindEmptyResult:
		return "empty_result"
	case KindConversionFailed:
		return "conversion_failed"
	case KindPersistenceFailed:
		return "persistence_failed"
	default:
		return "internal"
	}
}

// Failure is a classified processing error. StatusCode is non-zero only for
// fetch failures that reached the vendor and got an HTTP response.
type Failure struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", f.Kind, f.StatusCode, f.Err)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return f.Kind.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func NoCredential(err error) *Failure {
	return &Failure{Kind: KindNoCredential, Err: err}
}

// FetchFailed classifies a download error, extracting the HTTP status when
// the error carries one.
func FetchFailed(err error) *Failure {
	return &Failure{Kind: KindFetchFailed, StatusCode: httputil.StatusOf(err), Err: err}
}

func EmptyResult() *Failure {
	return &Failure{Kind: KindEmptyResult}
}

func ConversionFailed(err error) *Failure {
	return &Failure{Kind: KindConversionFailed, Err: err}
}

func PersistenceFailed(err error) *Failure {
	return &Failure{Kind: KindPersistenceFailed, Err: err}
}

func Internal(err error) *Failure {
	return &Failure{Kind: KindInternal, Err: err}
}
