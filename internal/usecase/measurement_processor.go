package usecase

import (
	"context"
	"fmt"
	"time"

	"AstroSense/internal/domain/models"
	drepo "AstroSense/internal/domain/repository"
)

// MeasurementProcessor routes pipeline outputs to the configured backends.
// Measurements follow the primary backend; scores and alerts are always both
// stored and published.
// AlertNotifier fans alerts out to an asynchronous delivery channel.
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, a *models.Alert) error
}

type MeasurementProcessor struct {
	pub      drepo.Publisher
	store    drepo.Storage
	metrics  drepo.Metrics
	backend  string
	notifier AlertNotifier
}

// NewMeasurementProcessor creates a new MeasurementProcessor instance.
func NewMeasurementProcessor(
	pub drepo.Publisher,
	store drepo.Storage,
	metrics drepo.Metrics,
	backend string,
) *MeasurementProcessor {
	return &MeasurementProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

// SetNotifier attaches an optional asynchronous alert delivery channel.
func (p *MeasurementProcessor) SetNotifier(n AlertNotifier) { p.notifier = n }

// Process routes a single measurement to the configured backend.
func (p *MeasurementProcessor) Process(ctx context.Context, m *models.Measurement) error {
	if m == nil {
		return fmt.Errorf("measurement is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.PublishMeasurement(ctx, m)
	case "clickhouse":
		err = p.store.StoreMeasurement(ctx, m)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process measurement: %w", err)
	}

	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// ProcessScore stores and publishes a composite score.
func (p *MeasurementProcessor) ProcessScore(ctx context.Context, s *models.CompositeScore) error {
	if s == nil {
		return fmt.Errorf("score is nil")
	}

	start := time.Now()
	if err := p.store.StoreScore(ctx, s); err != nil {
		p.metrics.RecordError("store_score")
		return fmt.Errorf("store score: %w", err)
	}
	if err := p.pub.PublishScore(ctx, s); err != nil {
		p.metrics.RecordError("publish_score")
		return fmt.Errorf("publish score: %w", err)
	}
	p.metrics.RecordLatency("process_score", time.Since(start).Seconds())
	return nil
}

// ProcessAlert stores and publishes an alert.
func (p *MeasurementProcessor) ProcessAlert(ctx context.Context, a *models.Alert) error {
	if a == nil {
		return fmt.Errorf("alert is nil")
	}

	start := time.Now()
	if err := p.store.StoreAlert(ctx, a); err != nil {
		p.metrics.RecordError("store_alert")
		return fmt.Errorf("store alert: %w", err)
	}
	if err := p.pub.PublishAlert(ctx, a); err != nil {
		p.metrics.RecordError("publish_alert")
		return fmt.Errorf("publish alert: %w", err)
	}
	// Notification delivery is best-effort; the alert is already durable.
	if p.notifier != nil {
		if err := p.notifier.NotifyAlert(ctx, a); err != nil {
			p.metrics.RecordError("notify_alert")
		}
	}
	p.metrics.RecordLatency("process_alert", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (p *MeasurementProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
