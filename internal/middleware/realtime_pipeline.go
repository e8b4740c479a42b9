package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"AstroSense/internal/domain/models"
	domrepo "AstroSense/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, m *models.Measurement) error
}

// RealtimePipeline sits between the WebSocket feed and the prediction
// pipeline. It validates, throttles, optionally transforms, and buffers
// when downstream is unavailable.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	maxRPS  int
	bufSize int
	bufCh   chan *models.Measurement
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	// last accepted measurement time, for the throttle window
	lastSeen time.Time
	// simple format transform hook (optional)
	transform func(*models.Measurement) *models.Measurement
	// metrics
	bufDepthGauge func(int)
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max measurements accepted per second.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a transformation hook to modify measurement format.
func WithTransform(fn func(*models.Measurement) *models.Measurement) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:    proc,
		metrics: metrics,
		maxRPS:  20,   // default throttle
		bufSize: 1000, // default buffer
		bufCh:   make(chan *models.Measurement, 1000),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.Measurement, p.bufSize)
	}
	p.bufDepthGauge = func(n int) { p.metrics.RecordLatency("pipeline_buffer_depth", float64(n)) }
	return p
}

// Start launches background flushing of buffered measurements.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case m := <-p.bufCh:
				if m == nil {
					continue
				}
				if err := p.proc.Process(ctx, m); err != nil {
					// exponential backoff with cap
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- m:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards a measurement downstream,
// buffering on errors.
func (p *RealtimePipeline) Process(ctx context.Context, m *models.Measurement) error {
	start := time.Now()
	if err := validateMeasurement(m); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		m = p.transform(m)
		if err := validateMeasurement(m); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(start) {
		// throttled; record and drop silently
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, m); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- m:
			if p.bufDepthGauge != nil {
				p.bufDepthGauge(len(p.bufCh))
			}
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateMeasurement(m *models.Measurement) error {
	if m == nil {
		return fmt.Errorf("measurement nil")
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if m.KpIndex < 0 || m.KpIndex > 9 {
		return fmt.Errorf("kp index out of range")
	}
	if m.SolarWindSpeed < 0 || m.ProtonFlux < 0 || m.CMESpeed < 0 {
		return fmt.Errorf("negative measurement value")
	}
	return nil
}

func (p *RealtimePipeline) allow(now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastSeen.IsZero() || now.Sub(p.lastSeen) >= time.Second/time.Duration(p.maxRPS) {
		p.lastSeen = now
		return true
	}
	return false
}
