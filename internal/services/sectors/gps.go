package sectors

import (
	"fmt"
	"math"

	"AstroSense/internal/domain/models"
	applogger "AstroSense/pkg/logger"
)

// GPSRegion describes one latitude band's share of a drift estimate.
type GPSRegion struct {
	Name          string  `json:"name"`
	Amplification float64 `json:"amplification"`
	Drift         float64 `json:"drift"`
}

// GPSDistribution maps latitude bands to amplified drift values.
type GPSDistribution struct {
	Regions          map[string]GPSRegion `json:"regions"`
	GreatestRegion   string               `json:"greatest_impact_region"`
	GreatestDriftCm  float64              `json:"greatest_impact_drift"`
}

// GPSPredictor models ionospheric positional drift in centimeters.
// Thresholds: 50 cm moderate, 200 cm critical.
type GPSPredictor struct {
	moderateThreshold float64
	criticalThreshold float64
	l                 *applogger.Logger
}

func NewGPSPredictor(l *applogger.Logger) *GPSPredictor {
	return &GPSPredictor{moderateThreshold: 50.0, criticalThreshold: 200.0, l: l}
}

// PositionalDrift estimates scintillation-driven drift in cm. Unlike the
// percentage sectors this value is unbounded above.
func (p *GPSPredictor) PositionalDrift(cond Conditions) float64 {
	kpDrift := (cond.KpIndex / 9.0) * 150.0

	var bzDrift float64
	if cond.Bz < 0 {
		bzDrift = math.Abs(cond.Bz) * 5.0
	}

	var windDrift float64
	if cond.SolarWindSpeed > 500 {
		windDrift = (cond.SolarWindSpeed - 500) / 10
	}

	protonDrift := cond.ProtonFlux / 5

	return math.Max(0.0, kpDrift+bzDrift+windDrift+protonDrift)
}

// GeographicDistribution amplifies the base drift per latitude band. Polar
// regions see the largest effect, equatorial bands the smallest.
func (p *GPSPredictor) GeographicDistribution(drift float64) GPSDistribution {
	regions := map[string]GPSRegion{
		"polar":         {Name: "Polar Regions (>60°)", Amplification: 1.5, Drift: drift * 1.5},
		"high_latitude": {Name: "High Latitudes (45-60°)", Amplification: 1.2, Drift: drift * 1.2},
		"mid_latitude":  {Name: "Mid Latitudes (30-45°)", Amplification: 1.0, Drift: drift * 1.0},
		"low_latitude":  {Name: "Low Latitudes (<30°)", Amplification: 0.7, Drift: drift * 0.7},
	}

	greatest, greatestDrift := "", -1.0
	for key, region := range regions {
		if region.Drift > greatestDrift {
			greatest, greatestDrift = key, region.Drift
		}
	}

	return GPSDistribution{
		Regions:         regions,
		GreatestRegion:  greatest,
		GreatestDriftCm: greatestDrift,
	}
}

// Predict evaluates the GPS sector for one set of conditions.
func (p *GPSPredictor) Predict(cond Conditions) models.SectorPrediction {
	drift := p.PositionalDrift(cond)
	distribution := p.GeographicDistribution(drift)

	classification := models.ClassLow
	var advisory *models.Advisory

	switch {
	case drift >= p.criticalThreshold:
		classification = models.ClassCritical
		advisory = &models.Advisory{
			Severity:       models.SeverityCritical,
			Classification: models.ClassCritical,
			Message:        fmt.Sprintf("Critical GPS accuracy warning: %.1f cm drift", drift),
			Mitigation: []string{
				"Use differential GPS corrections where available",
				"Increase position uncertainty margins",
				"Consider alternative navigation systems",
				"Warn users of degraded accuracy",
			},
		}
		if p.l != nil {
			p.l.Warn("gps drift critical", applogger.Any("drift_cm", drift))
		}
	case drift >= p.moderateThreshold:
		classification = models.ClassModerate
		advisory = &models.Advisory{
			Severity:       models.SeverityWarning,
			Classification: models.ClassModerate,
			Message:        fmt.Sprintf("Moderate GPS accuracy warning: %.1f cm drift", drift),
			Mitigation: []string{
				"Monitor GPS accuracy closely",
				"Prepare backup navigation systems",
				"Inform users of potential accuracy degradation",
			},
		}
	}

	return models.SectorPrediction{
		Sector:         "gps",
		RiskValue:      drift,
		Classification: classification,
		Alert:          advisory,
		Detail: map[string]any{
			"positional_drift_cm":     drift,
			"geographic_distribution": distribution,
		},
	}
}
