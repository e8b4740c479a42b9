package middleware

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"AstroSense/internal/domain/models"
)

type recordingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{errors: make(map[string]int)}
}

func (r *recordingMetrics) RecordPrediction(sector string)     {}
func (r *recordingMetrics) RecordCompositeScore(score float64) {}
func (r *recordingMetrics) SetActiveAlerts(n int)              {}

func (r *recordingMetrics) RecordLatency(op string, seconds float64) {}

func (r *recordingMetrics) RecordError(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[kind]++
}

func (r *recordingMetrics) errorCount(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors[kind]
}

type stubProc struct {
	mu        sync.Mutex
	processed []*models.Measurement
	fail      bool
}

func (s *stubProc) Process(ctx context.Context, m *models.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("downstream unavailable")
	}
	s.processed = append(s.processed, m)
	return nil
}

func (s *stubProc) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *stubProc) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

func validLiveMeasurement() *models.Measurement {
	return &models.Measurement{
		Timestamp:      time.Now().UTC(),
		SolarWindSpeed: 420,
		Bz:             -3,
		KpIndex:        3,
		ProtonFlux:     15,
	}
}

func TestPipelineRejectsInvalidMeasurements(t *testing.T) {
	metrics := newRecordingMetrics()
	p := NewRealtimePipeline(&stubProc{}, metrics)

	cases := []*models.Measurement{
		nil,
		{}, // zero timestamp
		{Timestamp: time.Now(), KpIndex: 12},
		{Timestamp: time.Now(), SolarWindSpeed: -5},
		{Timestamp: time.Now(), CMESpeed: -100},
	}
	for i, m := range cases {
		if err := p.Process(context.Background(), m); err == nil {
			t.Fatalf("case %d: expected rejection", i)
		}
	}
	if got := metrics.errorCount("pipeline_validate"); got != len(cases) {
		t.Fatalf("expected %d validation errors, got %d", len(cases), got)
	}
}

func TestPipelineThrottlesSilently(t *testing.T) {
	metrics := newRecordingMetrics()
	proc := &stubProc{}
	p := NewRealtimePipeline(proc, metrics, WithMaxRPS(1))

	if err := p.Process(context.Background(), validLiveMeasurement()); err != nil {
		t.Fatalf("first measurement must pass: %v", err)
	}
	// within the same second: dropped without error
	if err := p.Process(context.Background(), validLiveMeasurement()); err != nil {
		t.Fatalf("throttled measurement must not error: %v", err)
	}

	if proc.count() != 1 {
		t.Fatalf("expected 1 processed, got %d", proc.count())
	}
	if metrics.errorCount("pipeline_throttle") != 1 {
		t.Fatalf("throttle drop must be counted")
	}
}

func TestPipelineAppliesTransform(t *testing.T) {
	proc := &stubProc{}
	p := NewRealtimePipeline(proc, newRecordingMetrics(),
		WithTransform(func(m *models.Measurement) *models.Measurement {
			out := *m
			out.SolarWindSpeed = m.SolarWindSpeed * 2
			return &out
		}))

	if err := p.Process(context.Background(), validLiveMeasurement()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := proc.processed[0].SolarWindSpeed; got != 840 {
		t.Fatalf("transform not applied, got %v", got)
	}
}

func TestPipelineRejectsInvalidTransformOutput(t *testing.T) {
	metrics := newRecordingMetrics()
	p := NewRealtimePipeline(&stubProc{}, metrics,
		WithTransform(func(m *models.Measurement) *models.Measurement {
			out := *m
			out.KpIndex = 99
			return &out
		}))

	if err := p.Process(context.Background(), validLiveMeasurement()); err == nil {
		t.Fatalf("invalid transform output must be rejected")
	}
	if metrics.errorCount("pipeline_transform_invalid") != 1 {
		t.Fatalf("transform rejection must be counted")
	}
}

func TestPipelineBuffersOnDownstreamFailure(t *testing.T) {
	metrics := newRecordingMetrics()
	proc := &stubProc{fail: true}
	p := NewRealtimePipeline(proc, metrics, WithBufferSize(2))
	p.maxRPS = 0 // disable throttling for back-to-back calls

	if err := p.Process(context.Background(), validLiveMeasurement()); err == nil {
		t.Fatalf("downstream failure must surface")
	}
	if len(p.bufCh) != 1 {
		t.Fatalf("failed measurement must be buffered, depth %d", len(p.bufCh))
	}

	// fill the remaining slot, then overflow
	if err := p.Process(context.Background(), validLiveMeasurement()); err == nil {
		t.Fatalf("expected error")
	}
	if err := p.Process(context.Background(), validLiveMeasurement()); err == nil {
		t.Fatalf("expected error")
	}
	if metrics.errorCount("pipeline_buffer_full") != 1 {
		t.Fatalf("overflow drop must be counted, got %d", metrics.errorCount("pipeline_buffer_full"))
	}
}

func TestPipelineFlushesBufferWhenDownstreamRecovers(t *testing.T) {
	metrics := newRecordingMetrics()
	proc := &stubProc{fail: true}
	p := NewRealtimePipeline(proc, metrics, WithBufferSize(4))
	p.maxRPS = 0

	if err := p.Process(context.Background(), validLiveMeasurement()); err == nil {
		t.Fatalf("expected downstream error")
	}

	proc.setFail(false)
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for proc.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("buffered measurement never flushed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPipelineStartIsIdempotent(t *testing.T) {
	p := NewRealtimePipeline(&stubProc{}, newRecordingMetrics())
	ctx := context.Background()
	p.Start(ctx)
	p.Start(ctx) // no second goroutine, no panic
	p.Stop()
	p.Stop() // double stop is safe
}
