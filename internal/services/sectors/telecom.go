package sectors

import (
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/domain/models"
	applogger "AstroSense/pkg/logger"
)

// TelecomPredictor models ionospheric signal degradation. Thresholds:
// 30% moderate, 60% severe.
type TelecomPredictor struct {
	moderateThreshold float64
	severeThreshold   float64
	clock             clockwork.Clock
	l                 *applogger.Logger
}

func NewTelecomPredictor(clock clockwork.Clock, l *applogger.Logger) *TelecomPredictor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TelecomPredictor{moderateThreshold: 30.0, severeThreshold: 60.0, clock: clock, l: l}
}

// SignalDegradation combines Kp, southward Bz, fast wind and proton flux
// into a 0-100 degradation percentage.
func (p *TelecomPredictor) SignalDegradation(cond Conditions) float64 {
	kpPart := (cond.KpIndex / 9.0) * 50.0

	var bzPart float64
	if cond.Bz < 0 {
		bzPart = math.Min(math.Abs(cond.Bz)*2.0, 30.0)
	}

	var windPart float64
	if cond.SolarWindSpeed > 500 {
		windPart = math.Min((cond.SolarWindSpeed-500)/40, 20.0)
	}

	protonPart := math.Min(cond.ProtonFlux/100, 15.0)

	return clampRange(kpPart+bzPart+windPart+protonPart, 0.0, 100.0)
}

// Predict evaluates the telecom sector for one set of conditions.
func (p *TelecomPredictor) Predict(cond Conditions) models.SectorPrediction {
	degradation := p.SignalDegradation(cond)

	classification := models.ClassLow
	var advisory *models.Advisory

	switch {
	case degradation >= p.severeThreshold:
		classification = models.ClassSevere
		advisory = &models.Advisory{
			Severity:       models.SeverityCritical,
			Classification: models.ClassSevere,
			Message:        fmt.Sprintf("Severe telecommunications degradation: %.1f%%", degradation),
			Mitigation: []string{
				"Activate backup communication systems",
				"Notify customers of potential service disruptions",
				"Increase monitoring of network performance",
				"Prepare redundant satellite links",
			},
		}
		if p.l != nil {
			p.l.Warn("telecom degradation critical", applogger.Any("degradation_pct", degradation))
		}
	case degradation >= p.moderateThreshold:
		classification = models.ClassModerate
		advisory = &models.Advisory{
			Severity:       models.SeverityWarning,
			Classification: models.ClassModerate,
			Message:        fmt.Sprintf("Moderate telecommunications degradation: %.1f%%", degradation),
			Mitigation: []string{
				"Monitor network performance closely",
				"Prepare backup systems for activation",
				"Inform technical teams of potential issues",
			},
		}
	}

	window := p.impactDuration(cond)

	return models.SectorPrediction{
		Sector:         "telecom",
		RiskValue:      degradation,
		Classification: classification,
		Alert:          advisory,
		Window:         &window,
		Detail: map[string]any{
			"signal_degradation_percent": degradation,
		},
	}
}

// impactDuration stretches the window by storm intensity: CME-driven impacts
// last 4+2*Kp hours after arrival, gradual onsets 6+1.5*Kp hours from now.
func (p *TelecomPredictor) impactDuration(cond Conditions) models.ImpactWindow {
	now := p.clock.Now().UTC()

	if cond.CMESpeed > minMeaningfulCMESpeed {
		start := now.Add(hoursToDuration(cmeTravelHours(cond.CMESpeed)))
		duration := 4.0 + cond.KpIndex*2.0
		return models.ImpactWindow{
			Start: start,
			End:   start.Add(time.Duration(duration * float64(time.Hour))),
			Kind:  "cme_arrival",
		}
	}

	duration := 6.0 + cond.KpIndex*1.5
	return models.ImpactWindow{
		Start: now,
		End:   now.Add(time.Duration(duration * float64(time.Hour))),
		Kind:  "gradual",
	}
}
