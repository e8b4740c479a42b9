package service

import (
	"context"

	"AstroSense/internal/domain/models"
)

// RiskEstimator is the statistical-estimator collaborator: a black box that
// maps a fixed-length feature vector to per-sector risk values. Trained
// offline; no contract beyond fixed-length numeric input/output.
type RiskEstimator interface {
	Predict(ctx context.Context, features models.FeatureVector) (map[string]float64, error)
}

// Ingestor fetches the current space-weather picture from upstream sources,
// tolerating partial failure per sub-source.
type Ingestor interface {
	FetchAll(ctx context.Context) (*models.SpaceWeatherSnapshot, error)
}
