package models

import "time"

// AlertKind separates immediate flare alerts from forward-looking forecasts.
type AlertKind string

const (
	AlertFlash    AlertKind = "FLASH"
	AlertForecast AlertKind = "FORECAST"
)

// AlertSeverity levels, ordered by Rank.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "LOW"
	SeverityModerate AlertSeverity = "MODERATE"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityHigh     AlertSeverity = "HIGH"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// Rank returns the priority order of a severity: CRITICAL is highest.
// Unknown severities rank below LOW so they sort last.
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityWarning:
		return 3
	case SeverityModerate:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// FlashMeta carries the FLASH-specific alert fields.
type FlashMeta struct {
	FlareClass    string    `json:"flare_class"`
	DetectionTime time.Time `json:"detection_time"`
}

// ForecastMeta carries the FORECAST-specific alert fields.
// Invariant: ArrivalLower <= ArrivalUpper and ConfidencePercent in [0,100].
type ForecastMeta struct {
	PredictedKpIndex  float64           `json:"predicted_kp_index"`
	ArrivalLower      time.Time         `json:"arrival_time_lower"`
	ArrivalUpper      time.Time         `json:"arrival_time_upper"`
	ConfidencePercent float64           `json:"confidence_percent"`
	SectorImpacts     SectorPredictions `json:"sector_impacts"`
}

// Alert is a prioritizable, expiring operator notification.
// Invariant: ExpiresAt is always exactly 2 hours after CreatedAt.
type Alert struct {
	ID              string        `json:"alert_id"`
	Kind            AlertKind     `json:"alert_type"`
	Severity        AlertSeverity `json:"severity"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	AffectedSectors []string      `json:"affected_sectors"`
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
	Mitigation      []string      `json:"mitigation_recommendations"`
	// Exactly one of the two is set, matching Kind.
	Flash    *FlashMeta    `json:"flash,omitempty"`
	Forecast *ForecastMeta `json:"forecast,omitempty"`
}

// IsExpired reports whether the alert has expired at the reference time.
// The boundary is inclusive: an alert expires at exactly CreatedAt+2h.
func (a *Alert) IsExpired(ref time.Time) bool {
	return !ref.Before(a.ExpiresAt)
}
