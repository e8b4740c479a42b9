package backtest

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/domain/models"
	"AstroSense/internal/services/sectors"
	applogger "AstroSense/pkg/logger"
)

const (
	minReplaySpeed = 0.1
	maxReplaySpeed = 10.0

	// synthetic measurement cadence during replay timelines
	measurementInterval = 30 * time.Minute
)

// Predictors bundles the sector models the replay drives. The engine gets its
// own instances so replay never mutates the live composite change log.
type Predictors struct {
	Aviation  *sectors.AviationPredictor
	Telecom   *sectors.TelecomPredictor
	GPS       *sectors.GPSPredictor
	PowerGrid *sectors.PowerGridPredictor
	Satellite *sectors.SatellitePredictor
	Composite *sectors.CompositeCalculator
}

// Engine replays historical event timelines through the prediction chain and
// scores the results against synthesized ground truth. Pause/resume/speed are
// state mutations checked between events, not cancellation.
type Engine struct {
	predictors Predictors

	mu            sync.Mutex
	isPlaying     bool
	position      int
	speed         float64
	sessionActive bool

	rng   *rand.Rand
	clock clockwork.Clock
	l     *applogger.Logger
}

func NewEngine(predictors Predictors, clock clockwork.Clock, l *applogger.Logger) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		predictors: predictors,
		speed:      1.0,
		rng:        rand.New(rand.NewSource(clock.Now().UnixNano())),
		clock:      clock,
		l:          l,
	}
}

// BuildTimeline synthesizes a storm-progression measurement series starting
// at start, merging in any historical CME and flare events, and returns the
// result chronologically sorted.
func (e *Engine) BuildTimeline(start time.Time, hours int, cmes []models.CMEEvent, flares []models.FlareEvent) []models.BacktestEvent {
	end := start.Add(time.Duration(hours) * time.Hour)
	timeline := e.syntheticMeasurements(start, end)

	for _, cme := range cmes {
		ts := cme.DetectionTime
		if ts.IsZero() {
			ts = start
		}
		timeline = append(timeline, models.BacktestEvent{
			Timestamp: ts,
			Type:      models.EventCME,
			Data:      models.Measurement{Timestamp: ts, CMESpeed: cme.Speed},
		})
	}
	for _, flare := range flares {
		ts := flare.DetectionTime
		if ts.IsZero() {
			ts = start
		}
		timeline = append(timeline, models.BacktestEvent{
			Timestamp: ts,
			Type:      models.EventFlare,
			Data:      models.Measurement{Timestamp: ts, FlareClass: flare.Class},
		})
	}

	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Timestamp.Before(timeline[j].Timestamp)
	})

	if e.l != nil {
		e.l.Info("backtest timeline built",
			applogger.Int("events", len(timeline)),
			applogger.String("start", start.Format(time.RFC3339)))
	}
	return timeline
}

// syntheticMeasurements models a storm: a quiet ramp for the first three
// hours, then a main phase peaking at hour three and decaying symmetrically.
func (e *Engine) syntheticMeasurements(start, end time.Time) []models.BacktestEvent {
	var events []models.BacktestEvent

	for current := start; !current.After(end); current = current.Add(measurementInterval) {
		hoursSinceStart := current.Sub(start).Hours()

		var windSpeed, bz, kp float64
		if hoursSinceStart < 3 {
			windSpeed = 400 + hoursSinceStart*20
			bz = -2 - hoursSinceStart*0.5
			kp = 2 + hoursSinceStart*0.3
		} else {
			intensity := 1.0 - abs(hoursSinceStart-3)/3
			if intensity < 0 {
				intensity = 0
			}
			windSpeed = 400 + intensity*300
			bz = -2 - intensity*10
			kp = 2 + intensity*4
		}

		windSpeed += e.rng.Float64()*50 - 25
		bz += e.rng.Float64()*2 - 1
		kp = clampF(kp+e.rng.Float64()*0.5-0.25, 0, 9)

		flareClass := "C"
		if kp > 4 {
			flareClass = "M"
		}
		var cmeSpeed float64
		if hoursSinceStart > 1 && hoursSinceStart < 4 {
			cmeSpeed = 600
		}

		events = append(events, models.BacktestEvent{
			Timestamp: current,
			Type:      models.EventMeasurement,
			Data: models.Measurement{
				Timestamp:      current,
				SolarWindSpeed: windSpeed,
				Bz:             bz,
				KpIndex:        kp,
				ProtonFlux:     maxF(0, 10+kp*10),
				FlareClass:     flareClass,
				CMESpeed:       cmeSpeed,
			},
		})
	}
	return events
}

// Replay walks the timeline strictly in ascending timestamp order, attaching
// predicted and synthesized actual impacts to each measurement event. A pause
// stops the walk at the current position; a later call continues from there.
func (e *Engine) Replay(ctx context.Context, timeline []models.BacktestEvent, speed float64) (int, error) {
	e.mu.Lock()
	e.speed = clampF(speed, minReplaySpeed, maxReplaySpeed)
	e.isPlaying = true
	e.sessionActive = true
	startPos := e.position
	e.mu.Unlock()

	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Timestamp.Before(timeline[j].Timestamp)
	})

	if e.l != nil {
		e.l.Info("backtest replay started",
			applogger.Int("events", len(timeline)),
			applogger.Any("speed", e.ReplayStatus().ReplaySpeed))
	}

	processed := 0
	for i := startPos; i < len(timeline); i++ {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		e.mu.Lock()
		playing := e.isPlaying
		e.position = i
		e.mu.Unlock()
		if !playing {
			break
		}

		ev := &timeline[i]
		if ev.Type == models.EventMeasurement {
			predicted := e.predictEvent(ev.Data)
			ev.Predicted = &predicted
			actual := e.actualImpacts(ev.Data)
			ev.Actual = &actual
		}
		processed++
	}

	e.mu.Lock()
	if e.position >= len(timeline)-1 {
		e.isPlaying = false
		e.position = 0
	}
	e.mu.Unlock()

	if e.l != nil {
		e.l.Info("backtest replay finished", applogger.Int("processed", processed))
	}
	return processed, nil
}

// predictEvent runs the five sector models and the composite calculator over
// one synthetic measurement.
func (e *Engine) predictEvent(m models.Measurement) models.ImpactSet {
	cond := sectors.FromMeasurement(m)

	preds := models.SectorPredictions{
		Aviation:  e.predictors.Aviation.Predict(cond, 70.0),
		Telecom:   e.predictors.Telecom.Predict(cond),
		GPS:       e.predictors.GPS.Predict(cond),
		PowerGrid: e.predictors.PowerGrid.Predict(cond, 0.5, 1.0),
		Satellite: e.predictors.Satellite.Predict(cond, 400.0, nil),
	}
	composite := e.predictors.Composite.Calculate(preds)

	return models.ImpactSet{
		Aviation:       preds.Aviation.RiskValue,
		Telecom:        preds.Telecom.RiskValue,
		GPS:            preds.GPS.RiskValue,
		PowerGrid:      preds.PowerGrid.RiskValue,
		Satellite:      preds.Satellite.RiskValue,
		CompositeScore: composite.Score,
	}
}

// actualImpacts synthesizes ground truth with bounded noise around the same
// driving measurements, independent of the prediction path.
func (e *Engine) actualImpacts(m models.Measurement) models.ImpactSet {
	aviation := clampF(m.KpIndex*12+e.rng.Float64()*20-10, 0, 100)
	telecom := clampF(abs(m.Bz)*4+e.rng.Float64()*10-5, 0, 100)
	gps := maxF(0, abs(m.Bz)*15+m.KpIndex*10+e.rng.Float64()*40-20)
	powerGrid := clampF(float64(int(m.KpIndex+e.rng.Float64()*2-1)), 1, 10)
	satellite := clampF(float64(int((m.SolarWindSpeed-400)/100+e.rng.Float64()*2-1)), 1, 10)

	composite := 0.35*aviation +
		0.25*telecom +
		0.20*(gps/2) +
		0.20*(powerGrid*10)

	return models.ImpactSet{
		Aviation:       aviation,
		Telecom:        telecom,
		GPS:            gps,
		PowerGrid:      powerGrid,
		Satellite:      satellite,
		CompositeScore: composite,
	}
}

// Pause stops the replay at its current position.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isPlaying = false
	if e.l != nil {
		e.l.Info("backtest replay paused", applogger.Int("position", e.position))
	}
}

// Resume marks the replay playable again.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isPlaying = true
}

// Stop ends the session and resets position.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isPlaying = false
	e.sessionActive = false
	e.position = 0
}

// SetSpeed clamps and applies the replay speed multiplier.
func (e *Engine) SetSpeed(speed float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = clampF(speed, minReplaySpeed, maxReplaySpeed)
	return e.speed
}

// ReplayStatus reports position, speed and play state so a caller can switch
// back to live mode without re-deriving anything.
func (e *Engine) ReplayStatus() models.ReplayStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.ReplayStatus{
		IsPlaying:       e.isPlaying,
		CurrentPosition: e.position,
		ReplaySpeed:     e.speed,
		SessionActive:   e.sessionActive,
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func clampF(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
