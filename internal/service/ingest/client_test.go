package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestCacheKeyIndependentOfParamOrder(t *testing.T) {
	a := cacheKey("http://example.com/CME", map[string][]string{
		"startDate": {"2026-03-01"},
		"api_key":   {"DEMO_KEY"},
		"endDate":   {"2026-03-15"},
	})
	b := cacheKey("http://example.com/CME", map[string][]string{
		"endDate":   {"2026-03-15"},
		"api_key":   {"DEMO_KEY"},
		"startDate": {"2026-03-01"},
	})
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
	if a != "http://example.com/CME?api_key=DEMO_KEY&endDate=2026-03-15&startDate=2026-03-01" {
		t.Fatalf("unexpected key %q", a)
	}
}

func TestCacheKeyWithoutParams(t *testing.T) {
	if got := cacheKey("http://example.com/x.json", nil); got != "http://example.com/x.json" {
		t.Fatalf("bare url must be its own key, got %q", got)
	}
}

func TestParseTimeTag(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))

	want := time.Date(2026, 3, 15, 11, 30, 0, 0, time.UTC)
	for _, tag := range []string{
		"2026-03-15T11:30:00Z",
		"2026-03-15T11:30:00",
		"2026-03-15 11:30:00",
	} {
		if got := parseTimeTag(tag, clock); !got.Equal(want) {
			t.Fatalf("tag %q: expected %v, got %v", tag, want, got)
		}
	}

	if got := parseTimeTag("garbage", clock); !got.Equal(clock.Now().UTC()) {
		t.Fatalf("malformed tag must fall back to now, got %v", got)
	}
}

func TestParseDONKITime(t *testing.T) {
	want := time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC)
	if got := parseDONKITime("2026-03-15T12:30Z"); !got.Equal(want) {
		t.Fatalf("donki layout: got %v", got)
	}
	if got := parseDONKITime("2026-03-15T12:30:00Z"); !got.Equal(want) {
		t.Fatalf("rfc3339 fallback: got %v", got)
	}
	if got := parseDONKITime("not a time"); !got.IsZero() {
		t.Fatalf("garbage must parse to zero, got %v", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()
	if cfg.NOAABaseURL == "" || cfg.DONKIBaseURL == "" {
		t.Fatalf("base urls must default")
	}
	if cfg.NASAAPIKey != "DEMO_KEY" {
		t.Fatalf("expected DEMO_KEY default, got %q", cfg.NASAAPIKey)
	}
	if cfg.MaxRetries != 3 || cfg.LookbackDays != 30 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestFetchCMEEventsRangeSortsOldestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "test-key" {
			t.Errorf("api_key not forwarded, got query %q", r.URL.RawQuery)
		}
		w.Write([]byte(`[
			{"activityID":"b","startTime":"2026-03-14T08:00Z","cmeAnalyses":[{"speed":900}]},
			{"activityID":"a","startTime":"2026-03-12T02:00Z","cmeAnalyses":[{"speed":600}]}
		]`))
	}))
	defer srv.Close()

	c := NewClient(Config{DONKIBaseURL: srv.URL, NASAAPIKey: "test-key"}, nil, nil)
	events, err := c.FetchCMEEventsRange(context.Background(),
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !events[0].DetectionTime.Before(events[1].DetectionTime) {
		t.Fatalf("events not oldest first")
	}
	if events[0].Speed != 600 || events[1].Speed != 900 {
		t.Fatalf("analysis speeds not carried: %v %v", events[0].Speed, events[1].Speed)
	}
}

func TestFetchSolarFlaresUsesPeakTimeFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"beginTime":"","peakTime":"2026-03-14T10:00Z","classType":"X2.1"}]`))
	}))
	defer srv.Close()

	c := NewClient(Config{DONKIBaseURL: srv.URL}, nil, nil)
	events, err := c.FetchSolarFlares(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Class != "X2.1" {
		t.Fatalf("unexpected events: %+v", events)
	}
	want := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	if !events[0].DetectionTime.Equal(want) {
		t.Fatalf("expected peak time fallback %v, got %v", want, events[0].DetectionTime)
	}
}

func TestGetJSONCachesResponses(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write([]byte(`[{"time_tag":"2026-03-15T11:30:00Z","kp_index":4.5}]`))
	}))
	defer srv.Close()

	c := NewClient(Config{NOAABaseURL: srv.URL, CacheTTL: time.Minute}, nil, nil)
	for i := 0; i < 3; i++ {
		if _, err := c.FetchKpIndex(context.Background()); err != nil {
			t.Fatalf("fetch %d failed: %v", i, err)
		}
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Fatalf("expected a single upstream hit, got %d", got)
	}
}

func TestRequestRetriesThenSucceeds(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"time_tag":"2026-03-15T11:30:00Z","proton_speed":450}]`))
	}))
	defer srv.Close()

	c := NewClient(Config{NOAABaseURL: srv.URL, MaxRetries: 3, BaseBackoff: time.Millisecond}, nil, nil)
	m, err := c.FetchSolarWind(context.Background())
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if m.SolarWindSpeed != 450 {
		t.Fatalf("expected speed 450, got %v", m.SolarWindSpeed)
	}
	if atomic.LoadInt64(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestFetchAllMarksFailedSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{
		NOAABaseURL:  srv.URL,
		DONKIBaseURL: srv.URL,
		MaxRetries:   1,
		BaseBackoff:  time.Millisecond,
	}, nil, nil)

	snap, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("snapshot itself must not fail: %v", err)
	}
	if !snap.SolarWind.Failed() || !snap.CMEEvents.Failed() {
		t.Fatalf("failed sources must carry error markers")
	}
	if snap.Timestamp.IsZero() {
		t.Fatalf("snapshot timestamp missing")
	}
}
