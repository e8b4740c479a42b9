package usecase

import (
	"context"

	"AstroSense/internal/domain/models"
	drepo "AstroSense/internal/domain/repository"
	mid "AstroSense/internal/middleware"
)

// MeasurementCollector collects measurements from the live feed and runs
// them through the prediction pipeline.
type MeasurementCollector struct {
	stream  drepo.MeasurementStream
	impact  *ImpactPipeline
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
}

// NewMeasurementCollector creates a new MeasurementCollector instance.
func NewMeasurementCollector(stream drepo.MeasurementStream, impact *ImpactPipeline, metrics drepo.Metrics, pipe *mid.RealtimePipeline) *MeasurementCollector {
	return &MeasurementCollector{stream: stream, impact: impact, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the measurement stream is connected.
func (c *MeasurementCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *MeasurementCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	mCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, mCh, errCh)
	return nil
}

func (c *MeasurementCollector) consume(ctx context.Context, mCh <-chan *models.Measurement, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case m := <-mCh:
			if m == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, m)
			} else {
				_ = c.impact.Process(ctx, m)
			}
		}
	}
}

func (c *MeasurementCollector) Stop() error { return c.stream.Close() }

// Shutdown stops the middleware pipeline and closes the stream.
func (c *MeasurementCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
