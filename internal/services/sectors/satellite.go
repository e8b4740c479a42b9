package sectors

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/domain/models"
	applogger "AstroSense/pkg/logger"
)

// Satellite is one tracked spacecraft for fleet prioritization.
type Satellite struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	AltitudeKm  float64 `json:"altitude_km"`
	Criticality float64 `json:"mission_criticality"` // 0-2
}

// SatelliteRisk is a per-spacecraft assessment ordered by priority.
type SatelliteRisk struct {
	SatelliteID   string  `json:"satellite_id"`
	Name          string  `json:"name"`
	AltitudeKm    float64 `json:"altitude_km"`
	Criticality   float64 `json:"mission_criticality"`
	DragRisk      int     `json:"drag_risk"`
	PriorityScore float64 `json:"priority_score"`
}

// SatellitePredictor models storm-driven orbital drag on a 1-10 scale.
// Alerts fire at level 6 and above.
type SatellitePredictor struct {
	alertThreshold int
	clock          clockwork.Clock
	l              *applogger.Logger
}

func NewSatellitePredictor(clock clockwork.Clock, l *applogger.Logger) *SatellitePredictor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SatellitePredictor{alertThreshold: 6, clock: clock, l: l}
}

// OrbitalDragRisk scores atmospheric drag exposure for one altitude. Lower
// orbits sit in denser heated atmosphere and amplify the base risk.
func (p *SatellitePredictor) OrbitalDragRisk(cond Conditions, altitudeKm float64) int {
	kpRisk := (cond.KpIndex / 9.0) * 5.0

	var windRisk float64
	if cond.SolarWindSpeed > 500 {
		windRisk = math.Min((cond.SolarWindSpeed-500)/150, 3.0)
	}

	protonRisk := math.Min(cond.ProtonFlux/200, 2.0)

	var altitudeFactor float64
	switch {
	case altitudeKm < 600:
		altitudeFactor = 1.5
	case altitudeKm < 1000:
		altitudeFactor = 1.2
	default:
		altitudeFactor = 0.8
	}

	total := (kpRisk + windRisk + protonRisk) * altitudeFactor
	level := int(math.Round(total)) + 1
	if level < 1 {
		level = 1
	}
	if level > 10 {
		level = 10
	}
	return level
}

// Prioritize orders a fleet by drag risk weighted with mission criticality,
// highest priority first.
func (p *SatellitePredictor) Prioritize(fleet []Satellite, cond Conditions) []SatelliteRisk {
	prioritized := make([]SatelliteRisk, 0, len(fleet))
	for _, sat := range fleet {
		risk := p.OrbitalDragRisk(cond, sat.AltitudeKm)
		prioritized = append(prioritized, SatelliteRisk{
			SatelliteID:   sat.ID,
			Name:          sat.Name,
			AltitudeKm:    sat.AltitudeKm,
			Criticality:   sat.Criticality,
			DragRisk:      risk,
			PriorityScore: float64(risk) * (1 + sat.Criticality),
		})
	}
	sort.SliceStable(prioritized, func(i, j int) bool {
		return prioritized[i].PriorityScore > prioritized[j].PriorityScore
	})
	if p.l != nil {
		p.l.Info("satellite fleet prioritized", applogger.Int("count", len(prioritized)))
	}
	return prioritized
}

// Predict evaluates the satellite sector at a reference altitude, optionally
// prioritizing a fleet.
func (p *SatellitePredictor) Predict(cond Conditions, altitudeKm float64, fleet []Satellite) models.SectorPrediction {
	dragRisk := p.OrbitalDragRisk(cond, altitudeKm)

	classification := models.ClassModerate
	var advisory *models.Advisory
	if dragRisk >= p.alertThreshold {
		classification = models.ClassHigh
		advisory = &models.Advisory{
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("Satellite orbital drag alert: Risk level %d/10", dragRisk),
			Mitigation: []string{
				"Consider orbit adjustment maneuvers",
				"Monitor orbital parameters closely",
				"Prepare for increased fuel consumption",
				"Update collision avoidance predictions",
				"Coordinate with space traffic management",
			},
		}
		if p.l != nil {
			p.l.Warn("satellite drag risk high",
				applogger.Int("level", dragRisk),
				applogger.Any("altitude_km", altitudeKm))
		}
	}

	// Fleet operators get 24 hours of advance notice before the estimated
	// CME arrival.
	window := leadTimeWindow(cond, p.clock.Now().UTC(), 24*time.Hour, "advance_notice")

	detail := map[string]any{
		"orbital_drag_risk": dragRisk,
		"altitude_km":       altitudeKm,
	}
	if len(fleet) > 0 {
		detail["prioritized_satellites"] = p.Prioritize(fleet, cond)
	}

	return models.SectorPrediction{
		Sector:         "satellite",
		RiskValue:      float64(dragRisk),
		Classification: classification,
		Alert:          advisory,
		Window:         &window,
		Detail:         detail,
	}
}
