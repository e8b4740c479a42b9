package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/alerting"
	"AstroSense/internal/domain/models"
	domrepo "AstroSense/internal/domain/repository"
	domsvc "AstroSense/internal/domain/service"
	svcmetrics "AstroSense/internal/service/metrics"
	"AstroSense/internal/services/features"
	"AstroSense/internal/services/fusion"
	"AstroSense/internal/services/normalize"
	"AstroSense/internal/services/physics"
	"AstroSense/internal/services/sectors"
	"AstroSense/internal/services/validate"
	applogger "AstroSense/pkg/logger"
)

// SectorModels bundles the five sector predictors and the composite
// calculator serving live traffic. Backtest replay runs on its own set so
// the composite change log stays isolated.
type SectorModels struct {
	Aviation  *sectors.AviationPredictor
	Telecom   *sectors.TelecomPredictor
	GPS       *sectors.GPSPredictor
	PowerGrid *sectors.PowerGridPredictor
	Satellite *sectors.SatellitePredictor
	Composite *sectors.CompositeCalculator
}

// ImpactPipeline orchestrates one prediction pass: normalize the inputs,
// extract features, run the physics rules and the statistical estimator,
// fuse the two, then drive the sector models, the composite aggregator and
// the alert manager.
type ImpactPipeline struct {
	normalizer *normalize.Engine
	extractor  *features.Extractor
	physics    *physics.Engine
	estimator  domsvc.RiskEstimator
	fusion     *fusion.Combiner
	validator  *validate.Engine
	models     SectorModels
	alerts     *alerting.Manager
	proc       *MeasurementProcessor
	ingestor   domsvc.Ingestor
	metrics    domrepo.Metrics

	clock clockwork.Clock
	l     *applogger.Logger
}

func NewImpactPipeline(
	normalizer *normalize.Engine,
	extractor *features.Extractor,
	physicsEngine *physics.Engine,
	estimator domsvc.RiskEstimator,
	combiner *fusion.Combiner,
	validator *validate.Engine,
	sectorModels SectorModels,
	alerts *alerting.Manager,
	proc *MeasurementProcessor,
	ingestor domsvc.Ingestor,
	metrics domrepo.Metrics,
	clock clockwork.Clock,
	l *applogger.Logger,
) *ImpactPipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ImpactPipeline{
		normalizer: normalizer,
		extractor:  extractor,
		physics:    physicsEngine,
		estimator:  estimator,
		fusion:     combiner,
		validator:  validator,
		models:     sectorModels,
		alerts:     alerts,
		proc:       proc,
		ingestor:   ingestor,
		metrics:    metrics,
		clock:      clock,
		l:          l,
	}
}

// PredictImpact runs one on-demand prediction from request parameters.
// Absent optional measurements keep quiet-sun values; the response carries
// degradation markers instead of errors.
func (p *ImpactPipeline) PredictImpact(ctx context.Context, req models.PredictImpactRequest) (*models.PredictImpactResponse, error) {
	start := p.clock.Now()
	now := start.UTC()

	raw := normalize.RawSample{
		At:             now,
		SolarWindSpeed: req.SolarWindSpeed,
		Bz:             req.Bz,
		KpIndex:        req.KpIndex,
		ProtonFlux:     req.ProtonFlux,
		CMESpeed:       req.CMESpeed,
		FlareClass:     req.FlareClass,
	}
	norm := p.normalizer.NormalizeSample(raw)

	fv, degraded := p.extractor.Extract(norm, req.Bz, req.SolarWindSpeed,
		req.GeographicLatitude, req.GeographicLongitude)

	in := physicsInputs(req)
	phys := p.physics.PredictImpacts(in)

	ml, err := p.estimator.Predict(ctx, fv)
	if err != nil {
		// physics-only pass; the fused result degrades to the rule output
		p.metrics.RecordError("estimator")
		if p.l != nil {
			p.l.Warn("estimator unavailable, physics-only prediction", applogger.Error(err))
		}
		ml = phys
		degraded = append(degraded, models.DegradedDefault)
	}

	fused := p.fusion.Fuse(ml, phys)
	agreement := p.fusion.Confidence(ml, phys)

	cond := conditionsFromRequest(req)
	preds := p.runSectorModels(cond, req)
	composite := p.models.Composite.Calculate(preds)

	for _, sector := range []string{"aviation", "telecom", "gps", "power_grid", "satellite"} {
		p.metrics.RecordPrediction(sector)
	}
	p.metrics.RecordCompositeScore(composite.Score)
	elapsed := p.clock.Since(start).Seconds()
	p.metrics.RecordLatency("predict_impact", elapsed)
	svcmetrics.PredictionLatency.WithLabelValues("predict_impact").Observe(elapsed)

	return &models.PredictImpactResponse{
		Timestamp:   now,
		Predictions: preds,
		Composite:   composite,
		Fusion: models.FusionOutcome{
			Values:     fused.Predictions,
			Confidence: agreement,
			Conflicts:  conflictsToDiscrepancies(fused, now),
		},
		Confidence: p.physics.Confidence(in),
		Degraded:   degraded,
	}, nil
}

// ProcessMeasurement handles one live measurement: validate, feed the
// normalizer history, run the sector models, raise alerts, then persist and
// fan out. Downstream write failures are logged and counted, not returned;
// the feed must not stall on a slow sink.
func (p *ImpactPipeline) ProcessMeasurement(ctx context.Context, m *models.Measurement) error {
	start := p.clock.Now()

	if !p.validator.ValidateRecord(*m) {
		p.metrics.RecordError("validation")
		return nil
	}

	p.normalizer.NormalizeSample(normalize.FromMeasurement(*m))
	bz, wind := m.Bz, m.SolarWindSpeed
	if m.FlareClass != "" {
		p.extractor.RecordFlare(models.FlareEvent{DetectionTime: m.Timestamp, Class: m.FlareClass})
	}
	if m.CMESpeed > 0 {
		p.extractor.RecordCME(models.CMEEvent{DetectionTime: m.Timestamp, Speed: m.CMESpeed})
	}
	p.extractor.RecordMeasurement(&bz, &wind)

	cond := sectors.FromMeasurement(*m)
	if cond.SolarWindSpeed == 0 {
		cond.SolarWindSpeed = sectors.DefaultConditions().SolarWindSpeed
	}
	preds := models.SectorPredictions{
		Aviation:  p.models.Aviation.Predict(cond, 70.0),
		Telecom:   p.models.Telecom.Predict(cond),
		GPS:       p.models.GPS.Predict(cond),
		PowerGrid: p.models.PowerGrid.Predict(cond, 0.5, 1.0),
		Satellite: p.models.Satellite.Predict(cond, 400.0, nil),
	}
	composite := p.models.Composite.Calculate(preds)
	p.metrics.RecordCompositeScore(composite.Score)

	var newAlerts []*models.Alert
	if strings.HasPrefix(strings.ToUpper(m.FlareClass), "X") {
		alert := p.alerts.GenerateFlashAlert(m.FlareClass, m.Timestamp, cond)
		svcmetrics.FlashAlertLatency.Observe(p.clock.Now().Sub(m.Timestamp).Seconds())
		newAlerts = append(newAlerts, alert)
	}
	if m.CMESpeed > 0 {
		forecast := p.alerts.CreateImpactForecast(
			models.CMEEvent{DetectionTime: m.Timestamp, Speed: m.CMESpeed},
			cond, preds, "")
		newAlerts = append(newAlerts, forecast)
	}
	p.alerts.ExpireOldAlerts()
	p.metrics.SetActiveAlerts(len(p.alerts.ActiveAlerts(false)))

	if err := p.proc.Process(ctx, m); err != nil {
		if p.l != nil {
			p.l.Error("measurement sink failed", applogger.Error(err))
		}
	}
	if err := p.proc.ProcessScore(ctx, &composite); err != nil {
		if p.l != nil {
			p.l.Error("score sink failed", applogger.Error(err))
		}
	}
	for _, a := range newAlerts {
		if err := p.proc.ProcessAlert(ctx, a); err != nil {
			if p.l != nil {
				p.l.Error("alert sink failed",
					applogger.String("alert_id", a.ID), applogger.Error(err))
			}
		}
	}

	p.metrics.RecordLatency("process_measurement", p.clock.Since(start).Seconds())
	return nil
}

// Process satisfies the realtime pipeline's processor interface.
func (p *ImpactPipeline) Process(ctx context.Context, m *models.Measurement) error {
	return p.ProcessMeasurement(ctx, m)
}

// FetchData pulls the current space-weather picture from the upstream
// sources and folds successful sub-sources into the normalizer history.
func (p *ImpactPipeline) FetchData(ctx context.Context) (*models.SpaceWeatherSnapshot, error) {
	start := p.clock.Now()
	snap, err := p.ingestor.FetchAll(ctx)
	if err != nil {
		p.metrics.RecordError("ingest")
		return nil, err
	}

	merged := snap.Merge()
	if p.validator.ValidateRecord(merged) {
		p.normalizer.NormalizeSample(normalize.FromMeasurement(merged))
	}
	if !snap.SolarFlares.Failed() && len(snap.SolarFlares.Data) > 0 {
		p.extractor.RecordFlare(snap.SolarFlares.Data[len(snap.SolarFlares.Data)-1])
	}
	if !snap.CMEEvents.Failed() && len(snap.CMEEvents.Data) > 0 {
		p.extractor.RecordCME(snap.CMEEvents.Data[len(snap.CMEEvents.Data)-1])
	}

	elapsed := p.clock.Since(start).Seconds()
	p.metrics.RecordLatency("fetch_data", elapsed)
	svcmetrics.PredictionLatency.WithLabelValues("fetch_data").Observe(elapsed)
	return snap, nil
}

// Alerts returns the active alerts (and optionally the expired history)
// after running expiry at the current time.
func (p *ImpactPipeline) Alerts(prioritized, includeHistory bool) *models.AlertsResponse {
	p.alerts.ExpireOldAlerts()
	active := p.alerts.ActiveAlerts(prioritized)
	p.metrics.SetActiveAlerts(len(active))

	resp := &models.AlertsResponse{
		Timestamp: p.clock.Now().UTC(),
		Count:     len(active),
		Alerts:    active,
	}
	if includeHistory {
		resp.History = p.alerts.History()
	}
	return resp
}

// DiscrepancySummary exposes the fusion conflict log for diagnostics.
func (p *ImpactPipeline) DiscrepancySummary() fusion.DiscrepancySummary {
	return p.fusion.DiscrepancySummary()
}

func (p *ImpactPipeline) runSectorModels(cond sectors.Conditions, req models.PredictImpactRequest) models.SectorPredictions {
	return models.SectorPredictions{
		Aviation:  p.models.Aviation.Predict(cond, req.GeomagneticLatitude),
		Telecom:   p.models.Telecom.Predict(cond),
		GPS:       p.models.GPS.Predict(cond),
		PowerGrid: p.models.PowerGrid.Predict(cond, req.GroundConductivity, req.GridTopologyFactor),
		Satellite: p.models.Satellite.Predict(cond, req.AltitudeKm, nil),
	}
}

func physicsInputs(req models.PredictImpactRequest) physics.Inputs {
	in := physics.QuietDefaults()
	if req.SolarWindSpeed != nil {
		in.WindSpeed = *req.SolarWindSpeed
	}
	if req.Bz != nil {
		in.Bz = *req.Bz
	}
	if req.KpIndex != nil {
		in.KpIndex = *req.KpIndex
	}
	if req.CMESpeed != nil {
		in.CMESpeed = *req.CMESpeed
	}
	in.FlareClass = req.FlareClass
	return in
}

func conditionsFromRequest(req models.PredictImpactRequest) sectors.Conditions {
	cond := sectors.DefaultConditions()
	if req.SolarWindSpeed != nil {
		cond.SolarWindSpeed = *req.SolarWindSpeed
	}
	if req.Bz != nil {
		cond.Bz = *req.Bz
	}
	if req.KpIndex != nil {
		cond.KpIndex = *req.KpIndex
	}
	if req.ProtonFlux != nil {
		cond.ProtonFlux = *req.ProtonFlux
	}
	if req.CMESpeed != nil {
		cond.CMESpeed = *req.CMESpeed
	}
	cond.FlareClass = req.FlareClass
	return cond
}

func conflictsToDiscrepancies(r fusion.Result, at time.Time) []models.Discrepancy {
	if len(r.Conflicts) == 0 {
		return nil
	}
	out := make([]models.Discrepancy, 0, len(r.Conflicts))
	for field, c := range r.Conflicts {
		diff := c.ML - c.Physics
		if diff < 0 {
			diff = -diff
		}
		out = append(out, models.Discrepancy{
			Field:         field,
			MLValue:       c.ML,
			PhysicsValue:  c.Physics,
			Difference:    diff,
			ResolvedValue: c.Resolved,
			Resolution:    "conservative",
			At:            at,
		})
	}
	return out
}
