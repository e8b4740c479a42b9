package sectors

import (
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/domain/models"
	applogger "AstroSense/pkg/logger"
)

// PowerGridPredictor models geomagnetically induced current (GIC) risk on a
// 1-10 scale. Alerts fire at level 7 and above.
type PowerGridPredictor struct {
	highRiskThreshold int
	clock             clockwork.Clock
	l                 *applogger.Logger
}

func NewPowerGridPredictor(clock clockwork.Clock, l *applogger.Logger) *PowerGridPredictor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PowerGridPredictor{highRiskThreshold: 7, clock: clock, l: l}
}

// GICRisk scores induced-current exposure. Ground conductivity is 0-1 and
// scales into a 0.5-1.0 multiplier; topology factor is 0.5-2.0 where long
// transmission lines push it up.
func (p *PowerGridPredictor) GICRisk(cond Conditions, groundConductivity, gridTopologyFactor float64) int {
	kpRisk := (cond.KpIndex / 9.0) * 6.0

	var bzRisk float64
	if cond.Bz < 0 {
		bzRisk = math.Min(math.Abs(cond.Bz)/10, 3.0)
	}

	var windRisk float64
	if cond.SolarWindSpeed > 500 {
		windRisk = math.Min((cond.SolarWindSpeed-500)/200, 2.0)
	}

	baseRisk := kpRisk + bzRisk + windRisk
	conductivityMult := 0.5 + groundConductivity*0.5
	total := baseRisk * conductivityMult * gridTopologyFactor

	level := int(math.Round(total)) + 1
	if level < 1 {
		level = 1
	}
	if level > 10 {
		level = 10
	}
	return level
}

// Predict evaluates the power grid sector for one set of conditions.
func (p *PowerGridPredictor) Predict(cond Conditions, groundConductivity, gridTopologyFactor float64) models.SectorPrediction {
	gicLevel := p.GICRisk(cond, groundConductivity, gridTopologyFactor)

	classification := models.ClassModerate
	var advisory *models.Advisory
	if gicLevel >= p.highRiskThreshold {
		classification = models.ClassHigh
		advisory = &models.Advisory{
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("High GIC risk alert: Level %d/10", gicLevel),
			Mitigation: []string{
				"Activate transformer protection systems",
				"Reduce grid loading where possible",
				"Monitor transformer temperatures closely",
				"Prepare for potential voltage instabilities",
				"Have emergency response teams on standby",
			},
		}
		if p.l != nil {
			p.l.Warn("power grid GIC risk high", applogger.Int("level", gicLevel))
		}
	}

	// Operators get a 6-hour heads-up before the estimated CME arrival.
	window := leadTimeWindow(cond, p.clock.Now().UTC(), 6*time.Hour, "warning_window")

	return models.SectorPrediction{
		Sector:         "power_grid",
		RiskValue:      float64(gicLevel),
		Classification: classification,
		Alert:          advisory,
		Window:         &window,
		Detail: map[string]any{
			"gic_risk_level":       gicLevel,
			"ground_conductivity":  groundConductivity,
			"grid_topology_factor": gridTopologyFactor,
		},
	}
}
