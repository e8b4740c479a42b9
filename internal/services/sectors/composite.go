package sectors

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/domain/models"
	applogger "AstroSense/pkg/logger"
)

// Cross-sector weights. GPS and power grid are normalized to the 0-100
// scale before weighting.
const (
	weightAviation  = 0.35
	weightTelecom   = 0.25
	weightGPS       = 0.20
	weightPowerGrid = 0.20

	highAlertThreshold = 70.0
	moderateThreshold  = 40.0

	// maxExpectedDriftCm anchors GPS drift normalization.
	maxExpectedDriftCm = 500.0
)

// CompositeCalculator folds sector risks into one 0-100 score and tracks the
// previous score in a single slot for signed change reporting.
type CompositeCalculator struct {
	mu            sync.Mutex
	lastScore     *float64
	lastTimestamp *time.Time

	clock clockwork.Clock
	l     *applogger.Logger
}

func NewCompositeCalculator(clock clockwork.Clock, l *applogger.Logger) *CompositeCalculator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CompositeCalculator{clock: clock, l: l}
}

// NormalizeGPSDrift maps drift in cm to 0-100 against the expected maximum.
func NormalizeGPSDrift(driftCm float64) float64 {
	return math.Min(driftCm/maxExpectedDriftCm*100.0, 100.0)
}

// NormalizeGICRisk maps a 1-10 GIC level to 0-100.
func NormalizeGICRisk(level int) float64 {
	return clampRange(float64(level-1)/9.0*100.0, 0.0, 100.0)
}

// Score applies the weighted formula to four already-normalized 0-100 risks.
func (c *CompositeCalculator) Score(aviation, telecom, gps, powerGrid float64) float64 {
	composite := weightAviation*aviation +
		weightTelecom*telecom +
		weightGPS*gps +
		weightPowerGrid*powerGrid
	return clampRange(composite, 0.0, 100.0)
}

// ClassifySeverity buckets a composite score.
func ClassifySeverity(score float64) models.Classification {
	switch {
	case score >= highAlertThreshold:
		return models.ClassHigh
	case score >= moderateThreshold:
		return models.ClassModerate
	default:
		return models.ClassLow
	}
}

// Calculate produces the full composite result from sector predictions,
// recording the change against the previous call.
func (c *CompositeCalculator) Calculate(preds models.SectorPredictions) models.CompositeScore {
	now := c.clock.Now().UTC()

	aviationRisk := preds.Aviation.RiskValue
	telecomRisk := preds.Telecom.RiskValue
	gpsRisk := NormalizeGPSDrift(preds.GPS.RiskValue)
	powerGridRisk := NormalizeGICRisk(int(preds.PowerGrid.RiskValue))

	score := c.Score(aviationRisk, telecomRisk, gpsRisk, powerGridRisk)
	severity := ClassifySeverity(score)

	factors := map[string]float64{
		"aviation":   aviationRisk,
		"telecom":    telecomRisk,
		"gps":        gpsRisk,
		"power_grid": powerGridRisk,
	}

	change := c.recordChange(score, now)
	advisory := c.systemAlert(score, factors)

	if c.l != nil {
		c.l.Info("composite score calculated",
			applogger.Any("score", score),
			applogger.String("severity", string(severity)))
	}

	return models.CompositeScore{
		Score:               score,
		Severity:            severity,
		ContributingFactors: factors,
		Alert:               advisory,
		ChangeLog:           change,
		Timestamp:           now,
	}
}

// recordChange swaps the single previous-score slot and reports the signed
// delta. The first call has no previous score or change.
func (c *CompositeCalculator) recordChange(newScore float64, at time.Time) models.ScoreChange {
	c.mu.Lock()
	defer c.mu.Unlock()

	change := models.ScoreChange{Timestamp: at, NewScore: newScore}
	if c.lastScore != nil {
		delta := newScore - *c.lastScore
		change.PreviousScore = c.lastScore
		change.Change = &delta
		change.PreviousTimestamp = c.lastTimestamp
		if math.Abs(delta) > 5.0 && c.l != nil {
			c.l.Info("composite score shifted",
				applogger.Any("previous", *c.lastScore),
				applogger.Any("new", newScore),
				applogger.Any("change", delta))
		}
	}

	score, ts := newScore, at
	c.lastScore = &score
	c.lastTimestamp = &ts
	return change
}

// systemAlert fires a system-wide advisory when the score strictly exceeds
// the high threshold, naming the top two contributors.
func (c *CompositeCalculator) systemAlert(score float64, factors map[string]float64) *models.Advisory {
	if score <= highAlertThreshold {
		return nil
	}

	type contribution struct {
		sector string
		risk   float64
	}
	ranked := make([]contribution, 0, len(factors))
	for sector, risk := range factors {
		ranked = append(ranked, contribution{sector, risk})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].risk > ranked[j].risk })

	top := make([]string, 0, 2)
	for i := 0; i < len(ranked) && i < 2; i++ {
		top = append(top, fmt.Sprintf("%s: %.1f", ranked[i].sector, ranked[i].risk))
	}

	if c.l != nil {
		c.l.Warn("system-wide composite alert",
			applogger.Any("score", score),
			applogger.Strings("contributors", top))
	}

	return &models.Advisory{
		Severity: models.SeverityHigh,
		Message: fmt.Sprintf("High composite risk alert: Overall score %.1f/100 (Contributors: %s, %s)",
			score, top[0], top[len(top)-1]),
		Mitigation: []string{
			"Activate emergency response protocols across all sectors",
			"Increase monitoring frequency for all systems",
			"Prepare backup systems and redundancies",
			"Coordinate response across aviation, telecom, GPS, and power sectors",
			"Issue public advisories for affected services",
		},
	}
}
