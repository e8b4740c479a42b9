package repository

import (
	"context"
	"time"

	"AstroSense/internal/domain/models"
)

// MeasurementStream is a live upstream feed of space-weather measurements.
type MeasurementStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Measurement, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher fans predictions and alerts out to downstream consumers.
// Delivery is at-least-once; consumers must tolerate duplicates.
type Publisher interface {
	PublishMeasurement(ctx context.Context, m *models.Measurement) error
	PublishScore(ctx context.Context, s *models.CompositeScore) error
	PublishAlert(ctx context.Context, a *models.Alert) error
	Close() error
}

// Storage persists pipeline outputs as plain rows. Schema management and
// durability guarantees live with the store, not here.
type Storage interface {
	Init(ctx context.Context) error
	StoreMeasurement(ctx context.Context, m *models.Measurement) error
	StoreScore(ctx context.Context, s *models.CompositeScore) error
	StoreAlert(ctx context.Context, a *models.Alert) error
	QueryMeasurements(ctx context.Context, from, to time.Time, limit int) ([]*models.Measurement, error)
	Health(ctx context.Context) error
	Close() error
}

// Metrics abstracts the Prometheus recorder for the pipeline.
type Metrics interface {
	RecordPrediction(sector string)
	RecordError(kind string)
	RecordCompositeScore(score float64)
	RecordLatency(op string, seconds float64)
	SetActiveAlerts(n int)
}
