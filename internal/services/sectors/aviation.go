package sectors

import (
	"fmt"
	"math"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/domain/models"
	applogger "AstroSense/pkg/logger"
)

// AviationPredictor models HF radio blackout probability and polar route
// exposure. Alerts fire above 70%.
type AviationPredictor struct {
	alertThreshold float64
	clock          clockwork.Clock
	l              *applogger.Logger
}

func NewAviationPredictor(clock clockwork.Clock, l *applogger.Logger) *AviationPredictor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AviationPredictor{alertThreshold: 70.0, clock: clock, l: l}
}

// HFBlackoutProbability combines flare class, Kp, southward Bz and wind
// speed into a 0-100 blackout probability.
func (p *AviationPredictor) HFBlackoutProbability(cond Conditions) float64 {
	var flareProb float64
	if cond.FlareClass != "" {
		switch upperFirst(cond.FlareClass) {
		case 'X':
			flareProb = 90.0
		case 'M':
			flareProb = 60.0
		case 'C':
			flareProb = 30.0
		case 'B':
			flareProb = 10.0
		default:
			flareProb = 5.0
		}
	}

	kpFactor := math.Min(cond.KpIndex*5.0, 30.0)

	var bzFactor float64
	if cond.Bz < 0 {
		bzFactor = math.Min(math.Abs(cond.Bz)*1.5, 20.0)
	}

	var windFactor float64
	if cond.SolarWindSpeed > 500 {
		windFactor = math.Min((cond.SolarWindSpeed-500)/50, 15.0)
	}

	return clampRange(flareProb+kpFactor+bzFactor+windFactor, 0.0, 100.0)
}

// PolarRouteRisk scales Kp-driven radiation exposure by geomagnetic
// latitude. Latitudes above 60 degrees amplify the risk.
func (p *AviationPredictor) PolarRouteRisk(kpIndex, geomagneticLatitude float64) float64 {
	kpRisk := (kpIndex / 9.0) * 60.0

	var latFactor float64
	if geomagneticLatitude >= 60 {
		latFactor = 1.0 + (geomagneticLatitude-60)/30.0
	} else {
		latFactor = geomagneticLatitude / 60.0
	}

	return clampRange(kpRisk*latFactor, 0.0, 100.0)
}

// Predict evaluates the aviation sector for one set of conditions.
func (p *AviationPredictor) Predict(cond Conditions, geomagneticLatitude float64) models.SectorPrediction {
	hfProb := p.HFBlackoutProbability(cond)
	polarRisk := p.PolarRouteRisk(cond.KpIndex, geomagneticLatitude)

	var advisory *models.Advisory
	if hfProb > p.alertThreshold || polarRisk > p.alertThreshold {
		advisory = &models.Advisory{
			Severity: models.SeverityHigh,
			Message: fmt.Sprintf("Aviation risk alert: HF blackout %.1f%%, Polar route risk %.1f",
				hfProb, polarRisk),
			Mitigation: []string{
				"Consider rerouting polar flights to lower latitudes",
				"Prepare backup communication systems",
				"Monitor space weather updates closely",
				"Brief flight crews on potential HF radio disruptions",
			},
		}
		if p.l != nil {
			p.l.Warn("aviation alert generated", applogger.String("message", advisory.Message))
		}
	}

	window := impactWindow(cond, p.clock.Now().UTC())

	classification := models.ClassLow
	if hfProb > p.alertThreshold {
		classification = models.ClassHigh
	} else if hfProb >= 40 {
		classification = models.ClassModerate
	}

	return models.SectorPrediction{
		Sector:         "aviation",
		RiskValue:      hfProb,
		Classification: classification,
		Alert:          advisory,
		Window:         &window,
		Detail: map[string]any{
			"hf_blackout_probability": hfProb,
			"polar_route_risk":        polarRisk,
		},
	}
}
