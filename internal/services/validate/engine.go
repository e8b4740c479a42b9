package validate

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"AstroSense/internal/domain/models"
	"AstroSense/internal/services/normalize"
	applogger "AstroSense/pkg/logger"
)

// Failure is one recorded validation rejection.
type Failure struct {
	At      time.Time `json:"timestamp"`
	Type    string    `json:"failure_type"`
	Message string    `json:"message"`
}

// QualityMetrics tracks the valid/invalid record split since the last reset.
type QualityMetrics struct {
	TotalRecords           int     `json:"total_records"`
	ValidRecords           int     `json:"valid_records"`
	InvalidRecords         int     `json:"invalid_records"`
	CompletenessPercentage float64 `json:"completeness_percentage"`
}

const maxFailures = 500

// Engine checks ingested measurements for completeness, physical
// plausibility and chronological order before they enter the pipeline.
// Rejection here never rejects a prediction request; the normalizer clamps
// instead. This engine gates raw feed records only.
type Engine struct {
	mu       sync.Mutex
	failures []Failure
	metrics  QualityMetrics

	l *applogger.Logger
}

func New(l *applogger.Logger) *Engine {
	return &Engine{metrics: QualityMetrics{CompletenessPercentage: 100.0}, l: l}
}

// ValidateRanges checks every known field of the measurement against the
// shared plausibility ranges.
func (e *Engine) ValidateRanges(m models.Measurement) bool {
	checks := []struct {
		field string
		value float64
		set   bool
	}{
		{"solar_wind_speed", m.SolarWindSpeed, m.SolarWindSpeed != 0},
		{"bz_field", m.Bz, true},
		{"kp_index", m.KpIndex, true},
		{"proton_flux", m.ProtonFlux, true},
		{"cme_speed", m.CMESpeed, m.CMESpeed != 0},
	}

	for _, c := range checks {
		if !c.set {
			continue
		}
		r, ok := normalize.Ranges[c.field]
		if !ok {
			continue
		}
		if c.value < r.Min || c.value > r.Max {
			e.recordFailure("range", fmt.Sprintf(
				"%s=%.3f outside valid range [%.1f, %.1f]", c.field, c.value, r.Min, r.Max))
			return false
		}
	}
	return true
}

// ValidateTimestamps verifies a batch is chronologically ordered. Empty and
// single-record batches are trivially ordered.
func (e *Engine) ValidateTimestamps(records []models.Measurement) bool {
	for i := 1; i < len(records); i++ {
		if records[i].Timestamp.Before(records[i-1].Timestamp) {
			e.recordFailure("chronology", fmt.Sprintf(
				"timestamps not in chronological order at index %d", i))
			return false
		}
	}
	return true
}

// ValidateFlareClass accepts classes A/B/C/M/X with an optional magnitude
// in [0,10).
func (e *Engine) ValidateFlareClass(flareClass string) bool {
	if flareClass == "" {
		return false
	}
	switch strings.ToUpper(flareClass[:1]) {
	case "A", "B", "C", "M", "X":
	default:
		e.recordFailure("flare_class", "invalid flare class: "+flareClass)
		return false
	}
	if len(flareClass) > 1 {
		mag, err := strconv.ParseFloat(flareClass[1:], 64)
		if err != nil || mag < 0 || mag >= 10 {
			e.recordFailure("flare_class", "invalid flare magnitude: "+flareClass)
			return false
		}
	}
	return true
}

// ValidateRecord runs the full validation and counts the record toward
// quality metrics.
func (e *Engine) ValidateRecord(m models.Measurement) bool {
	e.mu.Lock()
	e.metrics.TotalRecords++
	e.mu.Unlock()

	ok := true
	if m.Timestamp.IsZero() {
		e.recordFailure("completeness", "measurement missing timestamp")
		ok = false
	}
	if ok && !e.ValidateRanges(m) {
		ok = false
	}
	if ok && m.FlareClass != "" && !e.ValidateFlareClass(m.FlareClass) {
		ok = false
	}

	e.mu.Lock()
	if ok {
		e.metrics.ValidRecords++
	} else {
		e.metrics.InvalidRecords++
	}
	e.mu.Unlock()
	return ok
}

// QualityMetrics returns the current completeness percentages.
func (e *Engine) QualityMetrics() QualityMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.metrics
	if m.TotalRecords > 0 {
		m.CompletenessPercentage = float64(m.ValidRecords) / float64(m.TotalRecords) * 100
	}
	return m
}

// MeetsQualityThreshold reports whether completeness is at or above the
// given percentage.
func (e *Engine) MeetsQualityThreshold(threshold float64) bool {
	m := e.QualityMetrics()
	if m.CompletenessPercentage < threshold {
		if e.l != nil {
			e.l.Warn("data quality below threshold",
				applogger.Any("completeness_pct", m.CompletenessPercentage),
				applogger.Any("threshold", threshold))
		}
		return false
	}
	return true
}

// Failures returns the recorded rejection log.
func (e *Engine) Failures() []Failure {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Failure, len(e.failures))
	copy(out, e.failures)
	return out
}

// Reset clears metrics and the failure log.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = nil
	e.metrics = QualityMetrics{CompletenessPercentage: 100.0}
}

func (e *Engine) recordFailure(failureType, message string) {
	e.mu.Lock()
	e.failures = append(e.failures, Failure{
		At:      time.Now().UTC(),
		Type:    failureType,
		Message: message,
	})
	if len(e.failures) > maxFailures {
		e.failures = e.failures[len(e.failures)-maxFailures:]
	}
	e.mu.Unlock()

	if e.l != nil {
		e.l.Warn("validation failure",
			applogger.String("type", failureType),
			applogger.String("message", message))
	}
}
