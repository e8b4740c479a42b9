package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/alerting"
	"AstroSense/internal/domain/models"
	"AstroSense/internal/services/features"
	"AstroSense/internal/services/fusion"
	"AstroSense/internal/services/normalize"
	"AstroSense/internal/services/physics"
	"AstroSense/internal/services/sectors"
	"AstroSense/internal/services/validate"
)

type fakeEstimator struct {
	out  map[string]float64
	fail bool
}

func (f *fakeEstimator) Predict(ctx context.Context, fv models.FeatureVector) (map[string]float64, error) {
	if f.fail {
		return nil, fmt.Errorf("estimator offline")
	}
	return f.out, nil
}

type pipelineFixture struct {
	pipeline *ImpactPipeline
	pub      *fakePublisher
	store    *fakeStorage
	metrics  *fakeMetrics
	clock    *clockwork.FakeClock
}

func newPipelineFixture(est *fakeEstimator) *pipelineFixture {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	pub := &fakePublisher{}
	store := &fakeStorage{}
	metrics := newFakeMetrics()

	sectorModels := SectorModels{
		Aviation:  sectors.NewAviationPredictor(clock, nil),
		Telecom:   sectors.NewTelecomPredictor(clock, nil),
		GPS:       sectors.NewGPSPredictor(nil),
		PowerGrid: sectors.NewPowerGridPredictor(clock, nil),
		Satellite: sectors.NewSatellitePredictor(clock, nil),
		Composite: sectors.NewCompositeCalculator(clock, nil),
	}

	p := NewImpactPipeline(
		normalize.New(nil),
		features.New(clock, nil),
		physics.New(nil),
		est,
		fusion.NewDefault(nil),
		validate.New(nil),
		sectorModels,
		alerting.NewManager(clock, nil),
		NewMeasurementProcessor(pub, store, metrics, "clickhouse"),
		nil,
		metrics,
		clock,
		nil,
	)
	return &pipelineFixture{pipeline: p, pub: pub, store: store, metrics: metrics, clock: clock}
}

func TestPredictImpactDegradesWithoutEstimator(t *testing.T) {
	fix := newPipelineFixture(&fakeEstimator{fail: true})

	resp, err := fix.pipeline.PredictImpact(context.Background(), models.PredictImpactRequest{
		GeomagneticLatitude: 70,
		GroundConductivity:  0.5,
		GridTopologyFactor:  1.0,
		AltitudeKm:          400,
	})
	if err != nil {
		t.Fatalf("degraded prediction must not fail: %v", err)
	}

	found := false
	for _, d := range resp.Degraded {
		if d == models.DegradedDefault {
			found = true
		}
	}
	if !found {
		t.Fatalf("estimator fallback must be marked degraded: %v", resp.Degraded)
	}
	// with ml set to the physics output the fusion never conflicts
	if len(resp.Fusion.Conflicts) != 0 {
		t.Fatalf("physics-only pass must not conflict: %v", resp.Fusion.Conflicts)
	}
	for field, conf := range resp.Fusion.Confidence {
		if conf != 1.0 {
			t.Fatalf("identical inputs must agree fully, %s got %v", field, conf)
		}
	}
	if fix.metrics.errors["estimator"] != 1 {
		t.Fatalf("estimator failure must be counted, got %v", fix.metrics.errors)
	}
}

func TestPredictImpactReportsConflicts(t *testing.T) {
	fix := newPipelineFixture(&fakeEstimator{out: map[string]float64{"storm_risk": 500}})

	resp, err := fix.pipeline.PredictImpact(context.Background(), models.PredictImpactRequest{
		GeomagneticLatitude: 70,
		GroundConductivity:  0.5,
		GridTopologyFactor:  1.0,
		AltitudeKm:          400,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, c := range resp.Fusion.Conflicts {
		if c.Field == "storm_risk" {
			found = true
			if c.Resolution != "conservative" {
				t.Fatalf("unexpected resolution %q", c.Resolution)
			}
			if c.ResolvedValue != 500 {
				t.Fatalf("conservative resolution must take the max, got %v", c.ResolvedValue)
			}
		}
	}
	if !found {
		t.Fatalf("expected conflict on storm_risk: %v", resp.Fusion.Conflicts)
	}
}

func TestProcessMeasurementRejectsImplausible(t *testing.T) {
	fix := newPipelineFixture(&fakeEstimator{})

	bad := &models.Measurement{
		Timestamp:      fix.clock.Now().UTC(),
		SolarWindSpeed: 5000,
		KpIndex:        3,
	}
	if err := fix.pipeline.ProcessMeasurement(context.Background(), bad); err != nil {
		t.Fatalf("rejection must not surface as an error: %v", err)
	}
	if fix.metrics.errors["validation"] != 1 {
		t.Fatalf("validation failure must be counted, got %v", fix.metrics.errors)
	}
	if fix.store.measurements != 0 || fix.store.scores != 0 {
		t.Fatalf("rejected measurement must not reach the sinks")
	}
}

func TestProcessMeasurementPersistsAndScores(t *testing.T) {
	fix := newPipelineFixture(&fakeEstimator{})

	m := &models.Measurement{
		Timestamp:      fix.clock.Now().UTC(),
		SolarWindSpeed: 450,
		Bz:             -5,
		KpIndex:        4,
		ProtonFlux:     20,
	}
	if err := fix.pipeline.ProcessMeasurement(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fix.store.measurements != 1 {
		t.Fatalf("measurement must be stored, got %d", fix.store.measurements)
	}
	if fix.store.scores != 1 || fix.pub.scores != 1 {
		t.Fatalf("score must be stored and published: store=%d pub=%d", fix.store.scores, fix.pub.scores)
	}
	if fix.store.alerts != 0 {
		t.Fatalf("quiet conditions must not raise alerts")
	}
}

func TestProcessMeasurementRaisesFlashAlert(t *testing.T) {
	fix := newPipelineFixture(&fakeEstimator{})

	m := &models.Measurement{
		Timestamp:      fix.clock.Now().UTC(),
		SolarWindSpeed: 600,
		Bz:             -12,
		KpIndex:        6,
		ProtonFlux:     100,
		FlareClass:     "X2.0",
	}
	if err := fix.pipeline.ProcessMeasurement(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fix.store.alerts != 1 || fix.pub.alerts != 1 {
		t.Fatalf("flash alert must be stored and published: store=%d pub=%d", fix.store.alerts, fix.pub.alerts)
	}
	if fix.metrics.activeAlerts != 1 {
		t.Fatalf("active alert gauge must track the manager, got %d", fix.metrics.activeAlerts)
	}

	resp := fix.pipeline.Alerts(true, false)
	if resp.Count != 1 || resp.Alerts[0].Kind != models.AlertFlash {
		t.Fatalf("unexpected alerts response: %+v", resp)
	}
}

func TestProcessMeasurementRaisesForecastOnCME(t *testing.T) {
	fix := newPipelineFixture(&fakeEstimator{})

	m := &models.Measurement{
		Timestamp:      fix.clock.Now().UTC(),
		SolarWindSpeed: 500,
		Bz:             -8,
		KpIndex:        5,
		ProtonFlux:     50,
		CMESpeed:       1100,
	}
	if err := fix.pipeline.ProcessMeasurement(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp := fix.pipeline.Alerts(false, false)
	if resp.Count != 1 || resp.Alerts[0].Kind != models.AlertForecast {
		t.Fatalf("expected one forecast alert, got %+v", resp)
	}
	if resp.Alerts[0].Forecast == nil || resp.Alerts[0].Forecast.PredictedKpIndex <= 0 {
		t.Fatalf("forecast meta missing: %+v", resp.Alerts[0].Forecast)
	}
}

func TestAlertsIncludesHistoryOnRequest(t *testing.T) {
	fix := newPipelineFixture(&fakeEstimator{})

	m := &models.Measurement{
		Timestamp:      fix.clock.Now().UTC(),
		SolarWindSpeed: 600,
		KpIndex:        6,
		FlareClass:     "X1.0",
	}
	if err := fix.pipeline.ProcessMeasurement(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fix.clock.Advance(3 * time.Hour)
	resp := fix.pipeline.Alerts(false, true)
	if resp.Count != 0 {
		t.Fatalf("expired alert still active: %+v", resp)
	}
	if len(resp.History) != 1 {
		t.Fatalf("expired alert missing from history: %+v", resp)
	}
}
