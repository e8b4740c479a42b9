package alerting

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"AstroSense/internal/domain/models"
	"AstroSense/internal/services/sectors"
	applogger "AstroSense/pkg/logger"
)

const (
	alertLifetime = 2 * time.Hour
	// flashBudget is a soft performance ceiling. Exceeding it is logged,
	// never cancelled.
	flashBudget = 10 * time.Second

	mergeWindow  = 30 * time.Minute
	mergeBucket  = 5 * time.Minute
	sunEarthKm   = 150_000_000
	maxTravelHrs = 168.0
)

// mergeKey identifies near-duplicate forecasts: same phenomenon kind, same
// 5-minute detection bucket, same coarse location.
type mergeKey struct {
	kind     models.AlertKind
	bucket   int64
	location string
}

type mergeEntry struct {
	alert     *models.Alert
	createdAt time.Time
}

// Manager owns the alert lifecycle: generation, forecast merging,
// prioritization, expiry and history archival. Active and history sets are
// disjoint; an alert moves to history exactly once.
type Manager struct {
	mu      sync.Mutex
	active  []*models.Alert
	history []*models.Alert
	merges  map[mergeKey]mergeEntry

	clock clockwork.Clock
	l     *applogger.Logger
}

func NewManager(clock clockwork.Clock, l *applogger.Logger) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		merges: make(map[mergeKey]mergeEntry),
		clock:  clock,
		l:      l,
	}
}

// GenerateFlashAlert builds and activates an immediate flare alert. The
// 10-second budget from detection is checked and logged, not enforced.
func (m *Manager) GenerateFlashAlert(flareClass string, detectionTime time.Time, cond sectors.Conditions) *models.Alert {
	started := m.clock.Now().UTC()

	severity := flareSeverity(flareClass)
	affected := flareAffectedSectors(flareClass, cond.KpIndex)

	now := m.clock.Now().UTC()
	alert := &models.Alert{
		ID:              uuid.NewString(),
		Kind:            models.AlertFlash,
		Severity:        severity,
		Title:           fmt.Sprintf("FLASH ALERT: %s Solar Flare Detected", flareClass),
		Description: fmt.Sprintf(
			"An %s solar flare was detected at %s. Immediate radio blackout effects are expected. Affected sectors: %s.",
			flareClass, detectionTime.Format(time.RFC3339), strings.Join(affected, ", ")),
		AffectedSectors: affected,
		CreatedAt:       now,
		ExpiresAt:       now.Add(alertLifetime),
		Mitigation:      flareMitigation(affected),
		Flash: &models.FlashMeta{
			FlareClass:    flareClass,
			DetectionTime: detectionTime,
		},
	}

	m.mu.Lock()
	m.active = append(m.active, alert)
	m.mu.Unlock()

	elapsed := m.clock.Now().UTC().Sub(started)
	if m.l != nil {
		m.l.Info("flash alert generated",
			applogger.String("alert_id", alert.ID),
			applogger.String("flare_class", flareClass),
			applogger.Duration("generation_time", elapsed))
	}
	if budget := detectionTime.Add(flashBudget); m.clock.Now().UTC().After(budget) && m.l != nil {
		m.l.Warn("flash alert generation exceeded budget",
			applogger.String("alert_id", alert.ID),
			applogger.Duration("budget", flashBudget))
	}
	return alert
}

// CreateImpactForecast builds a CME arrival forecast with a confidence
// interval, merging it with a near-duplicate forecast when one exists within
// the merge window. Location is a coarse band ("global" when unknown).
func (m *Manager) CreateImpactForecast(cme models.CMEEvent, cond sectors.Conditions, preds models.SectorPredictions, location string) *models.Alert {
	if location == "" {
		location = "global"
	}

	lower, upper, confidence := arrivalConfidence(cme, m.clock.Now().UTC())
	predictedKp := predictKpIndex(cme.Speed, cond)
	severity := forecastSeverity(predictedKp, preds)
	affected := forecastAffectedSectors(preds)

	now := m.clock.Now().UTC()
	alert := &models.Alert{
		ID:              uuid.NewString(),
		Kind:            models.AlertForecast,
		Severity:        severity,
		Title:           fmt.Sprintf("CME IMPACT FORECAST: Arrival Expected in %s", formatTimeUntil(lower, now)),
		Description: fmt.Sprintf(
			"A CME traveling at %.0f km/s is expected to arrive between %s and %s (confidence: %.0f%%). Predicted Kp-index: %.1f. Affected sectors: %s.",
			cme.Speed, lower.Format(time.RFC3339), upper.Format(time.RFC3339),
			confidence, predictedKp, strings.Join(affected, ", ")),
		AffectedSectors: affected,
		CreatedAt:       now,
		ExpiresAt:       now.Add(alertLifetime),
		Mitigation:      forecastMitigation(predictedKp, affected),
		Forecast: &models.ForecastMeta{
			PredictedKpIndex:  predictedKp,
			ArrivalLower:      lower,
			ArrivalUpper:      upper,
			ConfidencePercent: confidence,
			SectorImpacts:     preds,
		},
	}

	key := mergeKey{
		kind:     models.AlertForecast,
		bucket:   cme.DetectionTime.Truncate(mergeBucket).Unix(),
		location: location,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.merges[key]; ok && now.Sub(entry.createdAt) <= mergeWindow {
		merged := m.mergeForecastLocked(entry.alert, alert, now)
		m.merges[key] = mergeEntry{alert: merged, createdAt: now}
		if m.l != nil {
			m.l.Info("forecast merged with near-duplicate",
				applogger.String("alert_id", merged.ID),
				applogger.String("location", location))
		}
		return merged
	}

	m.active = append(m.active, alert)
	m.merges[key] = mergeEntry{alert: alert, createdAt: now}
	if m.l != nil {
		m.l.Info("impact forecast created",
			applogger.String("alert_id", alert.ID),
			applogger.Any("confidence_pct", confidence))
	}
	return alert
}

// mergeForecastLocked folds incoming into existing: confidences average, the
// arrival window widens to the union, and the creation time refreshes so the
// merged alert lives a full lifetime from now.
func (m *Manager) mergeForecastLocked(existing, incoming *models.Alert, now time.Time) *models.Alert {
	ef, nf := existing.Forecast, incoming.Forecast

	ef.ConfidencePercent = (ef.ConfidencePercent + nf.ConfidencePercent) / 2
	if nf.ArrivalLower.Before(ef.ArrivalLower) {
		ef.ArrivalLower = nf.ArrivalLower
	}
	if nf.ArrivalUpper.After(ef.ArrivalUpper) {
		ef.ArrivalUpper = nf.ArrivalUpper
	}
	ef.PredictedKpIndex = nf.PredictedKpIndex
	ef.SectorImpacts = nf.SectorImpacts

	existing.Severity = maxSeverity(existing.Severity, incoming.Severity)
	existing.AffectedSectors = unionSectors(existing.AffectedSectors, incoming.AffectedSectors)
	existing.Description = incoming.Description
	existing.CreatedAt = now
	existing.ExpiresAt = now.Add(alertLifetime)
	return existing
}

// ActiveAlerts expires stale alerts first, then returns the active set,
// optionally prioritized.
func (m *Manager) ActiveAlerts(prioritized bool) []*models.Alert {
	m.ExpireOldAlerts()

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Alert, len(m.active))
	copy(out, m.active)
	if prioritized {
		sort.SliceStable(out, func(i, j int) bool {
			ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank()
			if ri != rj {
				return ri > rj
			}
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	}
	return out
}

// History returns archived alerts, oldest first.
func (m *Manager) History() []*models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Alert, len(m.history))
	copy(out, m.history)
	return out
}

// ExpireOldAlerts moves alerts past their lifetime into history and returns
// how many moved. Expiry is atomic per alert: never visible in both sets.
func (m *Manager) ExpireOldAlerts() int {
	now := m.clock.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	var stillActive []*models.Alert
	expired := 0
	for _, alert := range m.active {
		if alert.IsExpired(now) {
			m.history = append(m.history, alert)
			expired++
			continue
		}
		stillActive = append(stillActive, alert)
	}
	m.active = stillActive

	for key, entry := range m.merges {
		if now.Sub(entry.createdAt) > mergeWindow {
			delete(m.merges, key)
		}
	}

	if expired > 0 && m.l != nil {
		m.l.Info("alerts expired to history", applogger.Int("count", expired))
	}
	return expired
}

// flareSeverity grades a flare class string. X10+ is catastrophic.
func flareSeverity(flareClass string) models.AlertSeverity {
	if flareClass == "" {
		return models.SeverityLow
	}
	switch strings.ToUpper(flareClass[:1]) {
	case "X":
		if mag, err := parseMagnitude(flareClass); err == nil && mag >= 10 {
			return models.SeverityCritical
		}
		return models.SeverityHigh
	case "M":
		return models.SeverityWarning
	case "C":
		return models.SeverityModerate
	default:
		return models.SeverityLow
	}
}

func parseMagnitude(flareClass string) (float64, error) {
	var mag float64
	_, err := fmt.Sscanf(flareClass[1:], "%f", &mag)
	return mag, err
}

func flareAffectedSectors(flareClass string, kpIndex float64) []string {
	seen := make(map[string]struct{})
	var affected []string
	add := func(s string) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			affected = append(affected, s)
		}
	}

	if flareClass != "" {
		switch strings.ToUpper(flareClass[:1]) {
		case "X":
			add("aviation")
			add("telecommunications")
			add("satellite")
		case "M":
			add("aviation")
			add("telecommunications")
		}
	}
	if kpIndex >= 5 {
		add("gps")
		add("power_grid")
	}
	return affected
}

func flareMitigation(affected []string) []string {
	var recs []string
	for _, sector := range affected {
		switch sector {
		case "aviation":
			recs = append(recs,
				"Prepare backup communication systems for aircraft",
				"Brief flight crews on potential HF radio disruptions",
				"Monitor space weather updates closely")
		case "telecommunications":
			recs = append(recs,
				"Activate backup communication systems",
				"Notify customers of potential service disruptions")
		case "gps":
			recs = append(recs, "Warn users of potential GPS accuracy degradation")
		case "power_grid":
			recs = append(recs,
				"Monitor transformer temperatures",
				"Prepare for potential voltage instabilities")
		case "satellite":
			recs = append(recs,
				"Monitor satellite health closely",
				"Prepare for increased radiation exposure")
		}
	}
	return recs
}

// arrivalConfidence estimates the CME arrival interval as nominal transit
// time ±20%, with confidence stepped by launch speed.
func arrivalConfidence(cme models.CMEEvent, now time.Time) (time.Time, time.Time, float64) {
	speed := cme.Speed
	if speed <= 0 {
		speed = 500
	}
	detection := cme.DetectionTime
	if detection.IsZero() {
		detection = now
	}

	travelHours := sunEarthKm / speed / 3600
	if travelHours > maxTravelHrs {
		travelHours = maxTravelHrs
	}
	nominal := detection.Add(time.Duration(travelHours * float64(time.Hour)))

	uncertainty := time.Duration(travelHours * 0.2 * float64(time.Hour))
	lower := nominal.Add(-uncertainty)
	upper := nominal.Add(uncertainty)

	var confidence float64
	switch {
	case speed > 1000:
		confidence = 85.0
	case speed > 700:
		confidence = 75.0
	case speed > 500:
		confidence = 65.0
	default:
		confidence = 50.0
	}
	return lower, upper, confidence
}

// predictKpIndex steps a predicted Kp off the CME speed, bumps it for
// strongly southward Bz, then blends 70/30 with current conditions.
func predictKpIndex(cmeSpeed float64, cond sectors.Conditions) float64 {
	var predicted float64
	switch {
	case cmeSpeed > 1500:
		predicted = 8.0
	case cmeSpeed > 1000:
		predicted = 7.0
	case cmeSpeed > 700:
		predicted = 6.0
	case cmeSpeed > 500:
		predicted = 5.0
	default:
		predicted = 4.0
	}

	if cond.Bz < -10 {
		predicted = minFloat(predicted+1.0, 9.0)
	}

	predicted = predicted*0.7 + cond.KpIndex*0.3
	return minFloat(predicted, 9.0)
}

func forecastSeverity(predictedKp float64, preds models.SectorPredictions) models.AlertSeverity {
	if predictedKp >= 8.0 {
		return models.SeverityCritical
	}

	highRisk := 0
	if preds.Aviation.RiskValue > 80 {
		highRisk++
	}
	if preds.Telecom.RiskValue > 70 {
		highRisk++
	}
	if preds.GPS.RiskValue > 250 {
		highRisk++
	}
	if preds.PowerGrid.RiskValue >= 8 {
		highRisk++
	}

	switch {
	case highRisk >= 3:
		return models.SeverityCritical
	case highRisk >= 2:
		return models.SeverityHigh
	case predictedKp >= 6.0:
		return models.SeverityWarning
	case predictedKp >= 4.0:
		return models.SeverityModerate
	default:
		return models.SeverityLow
	}
}

func forecastAffectedSectors(preds models.SectorPredictions) []string {
	var affected []string
	if preds.Aviation.RiskValue > 30 {
		affected = append(affected, "aviation")
	}
	if preds.Telecom.RiskValue > 20 {
		affected = append(affected, "telecommunications")
	}
	if preds.GPS.RiskValue > 30 {
		affected = append(affected, "gps")
	}
	if preds.PowerGrid.RiskValue >= 5 {
		affected = append(affected, "power_grid")
	}
	if preds.Satellite.RiskValue >= 5 {
		affected = append(affected, "satellite")
	}
	return affected
}

func forecastMitigation(predictedKp float64, affected []string) []string {
	var recs []string
	if predictedKp >= 7.0 {
		recs = append(recs, "Activate emergency response protocols across all sectors")
	}
	for _, sector := range affected {
		switch sector {
		case "aviation":
			recs = append(recs,
				"Consider rerouting polar flights to lower latitudes",
				"Prepare backup communication systems")
		case "telecommunications":
			recs = append(recs,
				"Prepare redundant satellite links",
				"Increase monitoring of network performance")
		case "gps":
			recs = append(recs,
				"Use differential GPS corrections where available",
				"Increase position uncertainty margins")
		case "power_grid":
			recs = append(recs,
				"Activate transformer protection systems",
				"Reduce grid loading where possible")
		case "satellite":
			recs = append(recs,
				"Consider orbit adjustment maneuvers",
				"Prepare for increased fuel consumption")
		}
	}
	return recs
}

func formatTimeUntil(future, now time.Time) string {
	hours := future.Sub(now).Hours()
	switch {
	case hours < 1:
		return "less than 1 hour"
	case hours < 24:
		return fmt.Sprintf("%d hours", int(hours))
	default:
		days := int(hours / 24)
		remaining := int(hours) % 24
		if remaining > 0 {
			return fmt.Sprintf("%d days %d hours", days, remaining)
		}
		return fmt.Sprintf("%d days", days)
	}
}

func maxSeverity(a, b models.AlertSeverity) models.AlertSeverity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

func unionSectors(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
