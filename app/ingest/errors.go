package ingest

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the storage layer.
var (
	// ErrDuplicateItem reports a duplicate GUID on first insert. It is a
	// genuine data integrity issue and is never retried.
	ErrDuplicateItem = errors.New("item already exists")

	// ErrEtagMismatch reports a lost optimistic-concurrency race on the
	// provider record. Conflicts surface, they are not retried here.
	ErrEtagMismatch = errors.New("etag mismatch")
)

// Provider-scoped error operations, mirroring the stages of the pipeline.
const (
	OpFilterExpired = "filter expired content"
	OpAnpaCategory  = "anpa category"
	OpIPTC          = "iptc codes"
	OpRuleSet       = "rule set"
	OpIngestItem    = "ingest item"
)

// ProviderError is a per-item or per-stage processing error recorded against
// a provider. It is caught at the item boundary; the batch continues.
type ProviderError struct {
	Op       string
	Provider string
	GUID     string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.GUID != "" {
		return fmt.Sprintf("provider %s: %s: item %s: %v", e.Provider, e.Op, e.GUID, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func newProviderError(op string, provider *Provider, guid string, err error) *ProviderError {
	name := ""
	if provider != nil {
		name = provider.Name
	}
	return &ProviderError{Op: op, Provider: name, GUID: guid, Err: err}
}

// IngestFileError wraps an unexpected error escaping a whole provider run.
type IngestFileError struct {
	Provider string
	Err      error
}

func (e *IngestFileError) Error() string {
	return fmt.Sprintf("failed to ingest file for provider %s: %v", e.Provider, e.Err)
}

func (e *IngestFileError) Unwrap() error { return e.Err }
