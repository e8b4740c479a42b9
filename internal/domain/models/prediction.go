package models

import "time"

// FeatureDim is the fixed length of a normalized feature vector.
const FeatureDim = 12

// Feature vector component indices. Order is part of the contract with the
// statistical estimator and must not change between training and serving.
const (
	FeatSolarWindSpeed = iota
	FeatBzField
	FeatKpIndex
	FeatProtonFlux
	FeatCMESpeed
	FeatFlareClass
	FeatBzRateOfChange
	FeatWindSpeedVariance
	FeatTimeSinceFlare
	FeatCMEArrivalProximity
	FeatGeomagneticLatitude
	FeatLocalTime
)

// FeatureVector is the 12-component input to the statistical estimator.
// Every component is in [0,1] except the encoded flare-class magnitude,
// which the extractor rescales before it lands here.
type FeatureVector [FeatureDim]float64

// FeatureNames returns component names in vector order.
func FeatureNames() []string {
	return []string{
		"solar_wind_speed_norm",
		"bz_field_norm",
		"kp_index_norm",
		"proton_flux_norm",
		"cme_speed_norm",
		"flare_class_norm",
		"bz_rate_of_change",
		"wind_speed_variance",
		"time_since_last_flare",
		"cme_arrival_proximity",
		"geomagnetic_latitude_factor",
		"local_time_factor",
	}
}

// Classification is the ordinal per-sector risk label.
type Classification string

const (
	ClassLow      Classification = "low"
	ClassModerate Classification = "moderate"
	ClassSevere   Classification = "severe"
	ClassHigh     Classification = "high"
	ClassCritical Classification = "critical"
)

// ImpactWindow is the expected time span of a sector impact.
type ImpactWindow struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
	Kind  string    `json:"type"` // "immediate", "cme_arrival", "gradual"
}

// Degradation flags how a value was obtained when inputs were incomplete.
// Callers can distinguish computed from estimated without error plumbing.
type Degradation string

const (
	DegradedNone    Degradation = ""
	DegradedImputed Degradation = "imputed"
	DegradedDefault Degradation = "defaulted"
	DegradedClamped Degradation = "clamped"
)

// Advisory is an inline sector warning embedded in a prediction response.
// Unlike Alert it has no identity or expiry; the alert manager owns those.
type Advisory struct {
	Severity       AlertSeverity  `json:"severity"`
	Classification Classification `json:"classification,omitempty"`
	Message        string         `json:"message"`
	Mitigation     []string       `json:"mitigation"`
}

// SectorPrediction is one sector model's output for a single call.
type SectorPrediction struct {
	Sector         string         `json:"sector"`
	RiskValue      float64        `json:"risk_value"`
	Classification Classification `json:"classification"`
	Alert          *Advisory      `json:"alert,omitempty"`
	Window         *ImpactWindow  `json:"impact_window,omitempty"`
	Degraded       []Degradation  `json:"degraded,omitempty"`
	// Sector-specific detail left as plain data for the transport layer.
	Detail map[string]any `json:"detail,omitempty"`
}

// SectorPredictions bundles the five sector outputs of one pipeline pass.
type SectorPredictions struct {
	Aviation  SectorPrediction `json:"aviation"`
	Telecom   SectorPrediction `json:"telecom"`
	GPS       SectorPrediction `json:"gps"`
	PowerGrid SectorPrediction `json:"power_grid"`
	Satellite SectorPrediction `json:"satellite"`
}

// ScoreChange compares a composite score against the previous call.
type ScoreChange struct {
	Timestamp         time.Time  `json:"timestamp"`
	NewScore          float64    `json:"new_score"`
	PreviousScore     *float64   `json:"previous_score"`
	Change            *float64   `json:"change"`
	PreviousTimestamp *time.Time `json:"previous_timestamp,omitempty"`
}

// CompositeScore is the weighted cross-sector risk summary.
type CompositeScore struct {
	Score               float64            `json:"composite_score"` // 0-100
	Severity            Classification     `json:"severity"`        // low/moderate/high
	ContributingFactors map[string]float64 `json:"contributing_factors"`
	Alert               *Advisory          `json:"alert,omitempty"`
	ChangeLog           ScoreChange        `json:"change_log"`
	Timestamp           time.Time          `json:"timestamp"`
}

// Discrepancy is one append-only record of an ML/physics conflict and how it
// was resolved. It is never dropped or rewritten after being logged.
type Discrepancy struct {
	Field         string    `json:"field"`
	MLValue       float64   `json:"ml_value"`
	PhysicsValue  float64   `json:"physics_value"`
	Difference    float64   `json:"difference"`
	ResolvedValue float64   `json:"resolved_value"`
	Resolution    string    `json:"resolution"`
	At            time.Time `json:"at"`
}
