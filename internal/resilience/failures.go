package resilience

import (
	"sync"
	"time"
)

// FailedCall records one enrichment call that exhausted its retries. The
// affected business stays at its last durable status; this queue exists so
// operators can see what went wrong and re-run the failed work later.
type FailedCall struct {
	BusinessID string    `json:"business_id"`
	Service    string    `json:"service"`
	Error      string    `json:"error"`
	ErrorType  string    `json:"error_type"` // "transient" or "permanent"
	Attempts   int       `json:"attempts"`
	FailedAt   time.Time `json:"failed_at"`
}

// Retryable reports whether re-running this call could succeed. Permanent
// failures (400/401/404 class) never become retryable.
func (f FailedCall) Retryable() bool {
	return f.ErrorType == "transient"
}

// FailureLog is a concurrency-safe in-memory record of failed enrichment
// calls for the current process.
type FailureLog struct {
	mu      sync.Mutex
	entries []FailedCall
	nowFunc func() time.Time
}

// NewFailureLog creates an empty failure log.
func NewFailureLog() *FailureLog {
	return &FailureLog{nowFunc: time.Now}
}

// Record appends a failure entry for a business and service.
func (fl *FailureLog) Record(businessID, service string, attempts int, err error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.entries = append(fl.entries, FailedCall{
		BusinessID: businessID,
		Service:    service,
		Error:      err.Error(),
		ErrorType:  ClassifyError(err),
		Attempts:   attempts,
		FailedAt:   fl.nowFunc().UTC(),
	})
}

// Entries returns a copy of all recorded failures in insertion order.
func (fl *FailureLog) Entries() []FailedCall {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	out := make([]FailedCall, len(fl.entries))
	copy(out, fl.entries)
	return out
}

// Retryable returns the business ids of failures worth re-running,
// deduplicated in first-seen order.
func (fl *FailureLog) Retryable() []string {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	seen := make(map[string]bool)
	var ids []string
	for _, e := range fl.entries {
		if e.Retryable() && !seen[e.BusinessID] {
			seen[e.BusinessID] = true
			ids = append(ids, e.BusinessID)
		}
	}
	return ids
}

// Len returns the number of recorded failures.
func (fl *FailureLog) Len() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return len(fl.entries)
}
