package mlmodel

import (
	"context"
	"fmt"
	"time"

	"AstroSense/internal/domain/models"
	"AstroSense/internal/services/physics"
	"AstroSense/pkg/config"
	xhttp "AstroSense/pkg/http"
	applogger "AstroSense/pkg/logger"
)

// HTTPEstimator calls the trained estimator service over HTTP. The model is
// a black box: a 12-component feature vector in, five sector impacts out.
type HTTPEstimator struct {
	baseURL string
	client  *xhttp.Client
	l       *applogger.Logger
}

func NewHTTPEstimator(cfg *config.Config, l *applogger.Logger) *HTTPEstimator {
	timeout := cfg.Estimator.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPEstimator{
		baseURL: cfg.Estimator.ServiceURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		l:       l,
	}
}

type predictReq struct {
	Features     []float64 `json:"features"`
	FeatureNames []string  `json:"feature_names"`
}

type predictResp struct {
	Impacts map[string]float64 `json:"impacts"`
}

// Predict posts the feature vector to the estimator service and returns the
// per-sector impact map on native scales.
func (e *HTTPEstimator) Predict(ctx context.Context, fv models.FeatureVector) (map[string]float64, error) {
	var resp predictResp
	err := e.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     e.baseURL + "/predict",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    predictReq{Features: fv[:], FeatureNames: models.FeatureNames()},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("post predict: %w", err)
	}
	return resp.Impacts, nil
}

// HeuristicEstimator approximates the trained model with smooth weighted
// combinations of the normalized features. It keeps the pipeline serving
// when the estimator service is down.
type HeuristicEstimator struct{}

func NewHeuristicEstimator() *HeuristicEstimator {
	return &HeuristicEstimator{}
}

func (e *HeuristicEstimator) Predict(_ context.Context, fv models.FeatureVector) (map[string]float64, error) {
	kp := fv[models.FeatKpIndex]
	flare := fv[models.FeatFlareClass]
	flux := fv[models.FeatProtonFlux]

	// Southward Bz danger: normalized Bz of 0.5 is 0 nT, below is southward.
	southward := clamp01((0.5 - fv[models.FeatBzField]) * 2.0)
	// Wind above ~500 km/s on the normalized scale.
	windExcess := clamp01((fv[models.FeatSolarWindSpeed] - 0.375) / 0.625)

	aviation := clamp(100*(0.45*flare+0.30*kp+0.15*southward+0.10*windExcess), 0, 100)
	telecom := clamp(100*(0.40*kp+0.30*southward+0.20*windExcess+0.10*flux), 0, 100)
	gpsDrift := 400 * (0.40*kp + 0.30*southward + 0.20*windExcess + 0.10*flux)
	gic := clamp(1+roundHalf(9*(0.50*kp+0.30*southward+0.20*windExcess)), 1, 10)
	drag := clamp(1+roundHalf(9*(0.50*kp+0.30*windExcess+0.20*flux)), 1, 10)

	return map[string]float64{
		physics.KeyAviationBlackout:   aviation,
		physics.KeyTelecomDegradation: telecom,
		physics.KeyGPSDrift:           gpsDrift,
		physics.KeyPowerGridGIC:       gic,
		physics.KeySatelliteDrag:      drag,
	}, nil
}

// FallbackEstimator tries the primary estimator and degrades to the
// heuristic one on error, logging the failover.
type FallbackEstimator struct {
	primary  *HTTPEstimator
	fallback *HeuristicEstimator
	l        *applogger.Logger
}

func NewFallbackEstimator(primary *HTTPEstimator, l *applogger.Logger) *FallbackEstimator {
	return &FallbackEstimator{primary: primary, fallback: NewHeuristicEstimator(), l: l}
}

func (e *FallbackEstimator) Predict(ctx context.Context, fv models.FeatureVector) (map[string]float64, error) {
	if e.primary != nil && e.primary.baseURL != "" {
		impacts, err := e.primary.Predict(ctx, fv)
		if err == nil {
			return impacts, nil
		}
		if e.l != nil {
			e.l.Warn("estimator service unavailable, using heuristic fallback",
				applogger.Error(err))
		}
	}
	return e.fallback.Predict(ctx, fv)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func clamp(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

func roundHalf(f float64) float64 {
	return float64(int(f + 0.5))
}
