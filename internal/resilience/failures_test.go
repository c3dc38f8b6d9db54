package resilience

import (
	"errors"
	"testing"
)

func TestFailureLog_RecordAndEntries(t *testing.T) {
	fl := NewFailureLog()

	fl.Record("biz-1", "nominatim", 3, NewTransientError(errors.New("503"), 503))
	fl.Record("biz-2", "whois", 1, NewPermanentError(errors.New("404"), 404))

	entries := fl.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].BusinessID != "biz-1" || entries[0].ErrorType != "transient" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Service != "whois" || entries[1].ErrorType != "permanent" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
	if fl.Len() != 2 {
		t.Errorf("expected Len 2, got %d", fl.Len())
	}
}

func TestFailureLog_RetryableDeduplicates(t *testing.T) {
	fl := NewFailureLog()

	fl.Record("biz-1", "nominatim", 3, NewTransientError(errors.New("timeout"), 0))
	fl.Record("biz-1", "whois", 3, NewTransientError(errors.New("timeout"), 0))
	fl.Record("biz-2", "whois", 1, NewPermanentError(errors.New("gone"), 404))
	fl.Record("biz-3", "places", 2, NewTransientError(errors.New("502"), 502))

	ids := fl.Retryable()
	if len(ids) != 2 {
		t.Fatalf("expected 2 retryable ids, got %v", ids)
	}
	if ids[0] != "biz-1" || ids[1] != "biz-3" {
		t.Errorf("expected [biz-1 biz-3], got %v", ids)
	}
}

func TestFailedCall_Retryable(t *testing.T) {
	if (FailedCall{ErrorType: "permanent"}).Retryable() {
		t.Error("permanent failures must not be retryable")
	}
	if !(FailedCall{ErrorType: "transient"}).Retryable() {
		t.Error("transient failures should be retryable")
	}
}
