package sectors

import (
	"math"
	"time"

	"AstroSense/internal/domain/models"
)

// Conditions are the raw measurements every sector model reads. Absent
// fields carry quiet-sun defaults applied by FromMeasurement or the caller.
type Conditions struct {
	SolarWindSpeed float64 // km/s
	Bz             float64 // nT
	KpIndex        float64 // 0-9
	ProtonFlux     float64 // pfu
	CMESpeed       float64 // km/s, 0 when no CME in transit
	FlareClass     string  // e.g. "X2.5", empty when none
}

// DefaultConditions are the quiet-sun fallbacks.
func DefaultConditions() Conditions {
	return Conditions{SolarWindSpeed: 400.0, KpIndex: 3.0}
}

// FromMeasurement maps a measurement onto Conditions.
func FromMeasurement(m models.Measurement) Conditions {
	return Conditions{
		SolarWindSpeed: m.SolarWindSpeed,
		Bz:             m.Bz,
		KpIndex:        m.KpIndex,
		ProtonFlux:     m.ProtonFlux,
		CMESpeed:       m.CMESpeed,
		FlareClass:     m.FlareClass,
	}
}

const (
	sunEarthDistanceKm = 150_000_000
	maxTravelHours     = 168.0 // cap estimates at 7 days
	// CMEs slower than this are treated as noise for arrival timing.
	minMeaningfulCMESpeed = 100.0
)

// cmeTravelHours estimates Sun-Earth transit time at constant launch speed.
func cmeTravelHours(cmeSpeed float64) float64 {
	hours := sunEarthDistanceKm / cmeSpeed / 3600.0
	return math.Min(hours, maxTravelHours)
}

// impactWindow derives the expected impact span. X-class flares hit
// immediately, a fast CME hits at its estimated arrival, anything else is a
// gradual onset over the next six hours.
func impactWindow(cond Conditions, now time.Time) models.ImpactWindow {
	if cond.FlareClass != "" && upperFirst(cond.FlareClass) == 'X' {
		return models.ImpactWindow{Start: now, End: now.Add(2 * time.Hour), Kind: "immediate"}
	}
	if cond.CMESpeed > minMeaningfulCMESpeed {
		arrival := now.Add(hoursToDuration(cmeTravelHours(cond.CMESpeed)))
		return models.ImpactWindow{Start: arrival, End: arrival.Add(6 * time.Hour), Kind: "cme_arrival"}
	}
	return models.ImpactWindow{Start: now, End: now.Add(6 * time.Hour), Kind: "gradual"}
}

// leadTimeWindow derives an operator heads-up window that opens lead hours
// before the estimated CME arrival, clamped to now for close arrivals.
// Without a CME in transit the window opens immediately.
func leadTimeWindow(cond Conditions, now time.Time, lead time.Duration, kind string) models.ImpactWindow {
	start := now
	if cond.CMESpeed > minMeaningfulCMESpeed {
		if remaining := hoursToDuration(cmeTravelHours(cond.CMESpeed)) - lead; remaining > 0 {
			start = now.Add(remaining)
		}
	}
	return models.ImpactWindow{Start: start, End: start.Add(lead), Kind: kind}
}

func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}

func upperFirst(s string) byte {
	c := s[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	return c
}

func clampRange(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
