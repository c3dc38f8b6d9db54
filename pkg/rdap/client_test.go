package rdap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestway-partners/leadscout/internal/resilience"
)

func TestRegisteredAt_ParsesRegistrationEvent(t *testing.T) {
	var gotPath, gotUA, gotAccept atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		gotUA.Store(r.Header.Get("User-Agent"))
		gotAccept.Store(r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/rdap+json")
		_, _ = io.WriteString(w, `{
			"events": [
				{"eventAction": "last changed", "eventDate": "2023-04-18T09:12:00Z"},
				{"eventAction": "registration", "eventDate": "2009-05-11T04:00:00Z"},
				{"eventAction": "expiration", "eventDate": "2027-05-11T04:00:00Z"}
			]
		}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))

	registered, err := c.RegisteredAt(context.Background(), "https://www.gablerock.ca/about?ref=x")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2009, 5, 11, 4, 0, 0, 0, time.UTC), registered)

	assert.Equal(t, "/domain/gablerock.ca", gotPath.Load())
	assert.Contains(t, gotUA.Load(), "leadscout")
	assert.Equal(t, "application/rdap+json", gotAccept.Load())
}

func TestDomainAge_Years(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"events": [{"eventAction": "registration", "eventDate": "2016-03-01T00:00:00Z"}]}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	c.nowFunc = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	age, err := c.DomainAge(context.Background(), "gablerock.ca")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, age, 0.01)
}

func TestDomainAge_FutureRegistrationClampsToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"events": [{"eventAction": "registration", "eventDate": "2030-01-01T00:00:00Z"}]}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	c.nowFunc = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	age, err := c.DomainAge(context.Background(), "gablerock.ca")
	require.NoError(t, err)
	assert.Equal(t, 0.0, age)
}

func TestRegisteredAt_NoRecordIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))

	_, err := c.RegisteredAt(context.Background(), "no-such-domain.ca")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoRecord))
	assert.False(t, resilience.IsTransient(err), "missing record must not be retried")
}

func TestRegisteredAt_MissingRegistrationEventIsNoRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"events": [{"eventAction": "expiration", "eventDate": "2027-05-11T04:00:00Z"}]}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))

	_, err := c.RegisteredAt(context.Background(), "gablerock.ca")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoRecord))
	assert.False(t, resilience.IsTransient(err))
}

func TestRegisteredAt_RateLimitedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))

	_, err := c.RegisteredAt(context.Background(), "gablerock.ca")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestRegisteredAt_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))

	_, err := c.RegisteredAt(context.Background(), "gablerock.ca")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestRegisteredAt_ForbiddenIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))

	_, err := c.RegisteredAt(context.Background(), "gablerock.ca")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestRegisteredAt_EmptyDomainSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))

	_, err := c.RegisteredAt(context.Background(), "   ")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Equal(t, int32(0), calls.Load())
}

func TestRegisteredAt_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `registration pending`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))

	_, err := c.RegisteredAt(context.Background(), "gablerock.ca")
	assert.Error(t, err)
}

func TestHostOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.gablerock.ca/about?ref=x#team", "gablerock.ca"},
		{"http://gablerock.ca:8080/", "gablerock.ca"},
		{"WWW.GableRock.CA", "gablerock.ca"},
		{"gablerock.ca", "gablerock.ca"},
		{"  gablerock.ca  ", "gablerock.ca"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hostOf(tt.in), "hostOf(%q)", tt.in)
	}
}

func TestClient_Name(t *testing.T) {
	assert.Equal(t, "rdap", NewClient().Name())
}
