package physics

import (
	"math"
	"strings"
	"sync"
	"time"

	applogger "AstroSense/pkg/logger"
)

// Impact map keys shared with the fusion combiner and sector models.
const (
	KeyAviationBlackout   = "aviation_hf_blackout"
	KeyTelecomDegradation = "telecom_degradation"
	KeyGPSDrift           = "gps_drift_cm"
	KeyPowerGridGIC       = "power_grid_gic"
	KeySatelliteDrag      = "satellite_drag"
)

const (
	// couplingCeiling normalizes V*Bz^2; a severe storm (V=700, Bz=-20)
	// couples at ~280000.
	couplingCeiling = 300000.0
	strongBzCutoff  = -10.0
	strongWindMin   = 500.0
	strongBoost     = 1.5
	maxLogEntries   = 1000
)

// Inputs are the raw measurements the rules operate on. Zero values are
// meaningful here; callers apply quiet-condition defaults before the call.
type Inputs struct {
	Bz         float64
	WindSpeed  float64
	CMESpeed   float64
	KpIndex    float64
	FlareClass string
}

// QuietDefaults fills the conventional quiet-sun values used when a
// measurement is entirely absent.
func QuietDefaults() Inputs {
	return Inputs{Bz: 0.0, WindSpeed: 400.0, CMESpeed: 0.0, KpIndex: 3.0}
}

// logEntry is one audited rule evaluation.
type logEntry struct {
	At        time.Time
	Inputs    Inputs
	StormRisk float64
	CMEImpact float64
	Blackout  bool
	Impacts   map[string]float64
}

// Engine evaluates deterministic space physics rules. It carries 40% weight
// in the fusion stage and keeps a bounded audit log of evaluations.
type Engine struct {
	mu  sync.Mutex
	log []logEntry
	l   *applogger.Logger
}

// Weight is the engine's share in the fusion blend.
const Weight = 0.4

func New(l *applogger.Logger) *Engine {
	return &Engine{l: l}
}

// StormRisk applies the McPherron relation: storm likelihood scales with
// V*Bz^2 when Bz points southward. Northward Bz yields a minimal floor.
func (e *Engine) StormRisk(bz, windSpeed float64) float64 {
	if bz >= 0 {
		return 0.1
	}
	coupling := windSpeed * bz * bz
	risk := math.Min(coupling/couplingCeiling, 1.0)
	if bz < strongBzCutoff && windSpeed > strongWindMin {
		risk = math.Min(risk*strongBoost, 1.0)
		if e.l != nil {
			e.l.Info("physics: strong McPherron conditions",
				applogger.Any("bz", bz),
				applogger.Any("wind_speed", windSpeed),
				applogger.Any("risk", risk))
		}
	}
	return risk
}

// CMEImpact grades CME severity by launch speed. The raw scale runs past 1.0
// for extreme events but the returned score is capped at 1.0.
func (e *Engine) CMEImpact(cmeSpeed float64) float64 {
	if cmeSpeed <= 0 {
		return 0.0
	}
	var severity float64
	switch {
	case cmeSpeed < 500:
		severity = cmeSpeed / 1000
	case cmeSpeed < 1000:
		severity = 0.5 + (cmeSpeed-500)/1000
	default:
		severity = math.Min(1.0+(cmeSpeed-1000)/2000, 1.5)
	}
	return math.Min(severity, 1.0)
}

// FlareBlackout reports whether the flare class forces an immediate HF radio
// blackout on the sunlit hemisphere. Only X-class qualifies.
func (e *Engine) FlareBlackout(flareClass string) bool {
	if flareClass == "" {
		return false
	}
	if strings.ToUpper(flareClass[:1]) == "X" {
		if e.l != nil {
			e.l.Warn("physics: X-class flare, immediate radio blackout",
				applogger.String("flare_class", flareClass))
		}
		return true
	}
	return false
}

// PredictImpacts evaluates all rules over one measurement and returns the
// five sector impact values on their native scales.
func (e *Engine) PredictImpacts(in Inputs) map[string]float64 {
	stormRisk := e.StormRisk(in.Bz, in.WindSpeed)
	cmeImpact := e.CMEImpact(in.CMESpeed)
	blackout := e.FlareBlackout(in.FlareClass)

	geomag := stormRisk*0.6 + cmeImpact*0.4

	impacts := make(map[string]float64, 5)

	if blackout {
		impacts[KeyAviationBlackout] = 95.0
	} else {
		impacts[KeyAviationBlackout] = math.Min(geomag*80+in.KpIndex*5, 100.0)
	}

	impacts[KeyTelecomDegradation] = math.Min(stormRisk*70+in.KpIndex*8, 100.0)
	impacts[KeyGPSDrift] = geomag*300 + in.KpIndex*20
	impacts[KeyPowerGridGIC] = clampLevel(int(stormRisk*8+in.KpIndex*0.8) + 1)
	impacts[KeySatelliteDrag] = clampLevel(int(geomag*7+in.KpIndex*0.9) + 1)

	e.record(logEntry{
		At:        time.Now().UTC(),
		Inputs:    in,
		StormRisk: stormRisk,
		CMEImpact: cmeImpact,
		Blackout:  blackout,
		Impacts:   impacts,
	})

	if e.l != nil {
		e.l.Debug("physics: impacts evaluated",
			applogger.Any("aviation", impacts[KeyAviationBlackout]),
			applogger.Any("telecom", impacts[KeyTelecomDegradation]),
			applogger.Any("gps_cm", impacts[KeyGPSDrift]))
	}
	return impacts
}

// Confidence estimates how trustworthy the rule output is for the given
// inputs. Strong southward Bz, a fast CME and an X-class flare each raise it.
func (e *Engine) Confidence(in Inputs) float64 {
	confidence := 0.5
	switch {
	case in.Bz < -15:
		confidence += 0.2
	case in.Bz < -10:
		confidence += 0.1
	}
	switch {
	case in.CMESpeed > 800:
		confidence += 0.2
	case in.CMESpeed > 500:
		confidence += 0.1
	}
	if in.FlareClass != "" && strings.ToUpper(in.FlareClass[:1]) == "X" {
		confidence += 0.2
	}
	return math.Min(confidence, 1.0)
}

func (e *Engine) record(entry logEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, entry)
	if len(e.log) > maxLogEntries {
		e.log = e.log[len(e.log)-maxLogEntries:]
	}
}

// EvaluationCount returns how many rule evaluations are retained.
func (e *Engine) EvaluationCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.log)
}

func clampLevel(level int) float64 {
	if level < 1 {
		level = 1
	}
	if level > 10 {
		level = 10
	}
	return float64(level)
}
