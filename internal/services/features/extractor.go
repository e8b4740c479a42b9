package features

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/domain/models"
	"AstroSense/internal/services/normalize"
	applogger "AstroSense/pkg/logger"
)

const (
	bzRateLookback   = 30 * time.Minute
	varianceLookback = 3 * time.Hour
	// recency horizon for flares; beyond this the signal is fully decayed.
	flareDecayHours = 168.0
	cmeHorizonHours = 72.0
	sunEarthKm      = 150e6
	maxSamples      = 288
)

type timedValue struct {
	at time.Time
	v  float64
}

// Extractor derives the fixed 12-component feature vector consumed by the
// statistical estimator. It keeps short rolling windows of raw Bz and wind
// speed for the temporal components, plus the most recent flare and CME.
type Extractor struct {
	mu        sync.Mutex
	bzHist    []timedValue
	windHist  []timedValue
	lastFlare *models.FlareEvent
	lastCME   *models.CMEEvent

	clock clockwork.Clock
	l     *applogger.Logger
}

// New creates an extractor. The clock is injectable for deterministic tests.
func New(clock clockwork.Clock, l *applogger.Logger) *Extractor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Extractor{clock: clock, l: l}
}

// RecordFlare notes the latest flare for the recency feature.
func (x *Extractor) RecordFlare(ev models.FlareEvent) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.lastFlare = &ev
}

// RecordCME notes the latest CME for the arrival-proximity feature.
func (x *Extractor) RecordCME(ev models.CMEEvent) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.lastCME = &ev
}

// RecordMeasurement appends raw Bz and wind speed to the rolling windows
// without running a full extraction.
func (x *Extractor) RecordMeasurement(bz, windSpeed *float64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	now := x.clock.Now().UTC()
	if bz != nil {
		x.bzHist = appendTrimmed(x.bzHist, timedValue{at: now, v: *bz})
	}
	if windSpeed != nil {
		x.windHist = appendTrimmed(x.windHist, timedValue{at: now, v: *windSpeed})
	}
}

func appendTrimmed(hist []timedValue, tv timedValue) []timedValue {
	hist = append(hist, tv)
	if len(hist) > maxSamples {
		hist = hist[len(hist)-maxSamples:]
	}
	return hist
}

// Extract builds the feature vector from a normalized sample and location.
// Missing components fall back to neutral defaults and are reported in the
// returned degradation list; extraction itself never fails.
func (x *Extractor) Extract(norm normalize.Result, rawBz, rawWindSpeed *float64, lat, lon float64) (models.FeatureVector, []models.Degradation) {
	x.mu.Lock()
	defer x.mu.Unlock()

	now := x.clock.Now().UTC()
	var degraded []models.Degradation

	if rawBz != nil {
		x.bzHist = appendTrimmed(x.bzHist, timedValue{at: now, v: *rawBz})
	}
	if rawWindSpeed != nil {
		x.windHist = appendTrimmed(x.windHist, timedValue{at: now, v: *rawWindSpeed})
	}

	var v models.FeatureVector

	pick := func(idx int, field string, fallback float64) {
		if val, ok := norm.Values[field]; ok {
			v[idx] = val
			if d, marked := norm.Degraded[field]; marked {
				degraded = append(degraded, d)
			}
			return
		}
		v[idx] = fallback
		degraded = append(degraded, models.DegradedDefault)
	}

	pick(models.FeatSolarWindSpeed, "solar_wind_speed", 0.25) // ~400 km/s quiet wind
	pick(models.FeatBzField, "bz_field", 0.5)                 // 0 nT
	pick(models.FeatKpIndex, "kp_index", 0.22)                // Kp ~2
	pick(models.FeatProtonFlux, "proton_flux", 0.0)

	if val, ok := norm.Values["cme_speed"]; ok {
		v[models.FeatCMESpeed] = val
	}

	v[models.FeatFlareClass] = math.Min(norm.FlareClassEncoded/6.0, 1.0)

	v[models.FeatBzRateOfChange] = x.bzRateLocked(now)
	v[models.FeatWindSpeedVariance] = x.windVarianceLocked(now)
	v[models.FeatTimeSinceFlare] = x.timeSinceFlareLocked(now)
	v[models.FeatCMEArrivalProximity] = x.cmeProximityLocked(now)
	v[models.FeatGeomagneticLatitude] = math.Min(math.Abs(lat)/90.0, 1.0)
	v[models.FeatLocalTime] = localTimeFactor(now, lon)

	if len(degraded) > 0 && x.l != nil {
		x.l.Debug("features: extracted with defaults",
			applogger.Int("defaulted_or_imputed", len(degraded)))
	}
	return v, degraded
}

// bzRateLocked normalizes the Bz trend over the last half hour, in nT/hour,
// mapping [-50,+50] onto [0,1]. Neutral 0.5 when history is too thin.
func (x *Extractor) bzRateLocked(now time.Time) float64 {
	cutoff := now.Add(-bzRateLookback)
	var window []timedValue
	for _, tv := range x.bzHist {
		if !tv.at.Before(cutoff) {
			window = append(window, tv)
		}
	}
	if len(window) < 2 {
		return 0.5
	}
	first, last := window[0], window[len(window)-1]
	hours := last.at.Sub(first.at).Hours()
	if hours <= 0 {
		return 0.5
	}
	rate := (last.v - first.v) / hours
	return clamp01((rate + 50.0) / 100.0)
}

// windVarianceLocked scales the 3h wind speed variance; 10000 (km/s)^2
// saturates the component.
func (x *Extractor) windVarianceLocked(now time.Time) float64 {
	cutoff := now.Add(-varianceLookback)
	var vals []float64
	for _, tv := range x.windHist {
		if !tv.at.Before(cutoff) {
			vals = append(vals, tv.v)
		}
	}
	if len(vals) < 2 {
		return 0
	}
	var mean float64
	for _, f := range vals {
		mean += f
	}
	mean /= float64(len(vals))
	var variance float64
	for _, f := range vals {
		d := f - mean
		variance += d * d
	}
	variance /= float64(len(vals))
	return math.Min(variance/10000.0, 1.0)
}

func (x *Extractor) timeSinceFlareLocked(now time.Time) float64 {
	if x.lastFlare == nil {
		return 1.0
	}
	hours := now.Sub(x.lastFlare.DetectionTime).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Min(hours/flareDecayHours, 1.0)
}

// cmeProximityLocked rises toward 1 as the estimated CME arrival approaches,
// using the straight-line Sun-Earth travel time at launch speed.
func (x *Extractor) cmeProximityLocked(now time.Time) float64 {
	if x.lastCME == nil || x.lastCME.Speed <= 0 {
		return 0
	}
	travel := time.Duration(sunEarthKm/x.lastCME.Speed) * time.Second
	arrival := x.lastCME.DetectionTime.Add(travel)
	untilHours := arrival.Sub(now).Hours()
	if untilHours < 0 {
		return 0
	}
	return 1.0 - math.Min(untilHours/cmeHorizonHours, 1.0)
}

// localTimeFactor peaks in the local midnight sector (22:00-02:00), where
// the nightside ionosphere is most vulnerable, and floors at 0.2 in daytime.
func localTimeFactor(now time.Time, lon float64) float64 {
	localHour := math.Mod(float64(now.Hour())+lon/15.0, 24.0)
	if localHour < 0 {
		localHour += 24.0
	}
	if localHour >= 22.0 || localHour <= 2.0 {
		var dist float64
		if localHour >= 22.0 {
			dist = math.Min(24.0-localHour, localHour-22.0)
		} else {
			dist = localHour
		}
		return 1.0 - dist/2.0
	}
	return 0.2
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
