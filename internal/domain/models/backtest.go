package models

import "time"

// BacktestEventType tags timeline entries.
type BacktestEventType string

const (
	EventMeasurement BacktestEventType = "measurement"
	EventCME         BacktestEventType = "cme"
	EventFlare       BacktestEventType = "flare"
)

// ImpactSet is one row of per-sector impact values, either predicted or
// synthesized ground truth.
type ImpactSet struct {
	Aviation       float64 `json:"aviation"`        // HF blackout probability, 0-100
	Telecom        float64 `json:"telecom"`         // signal degradation, 0-100
	GPS            float64 `json:"gps"`             // positional drift, cm
	PowerGrid      float64 `json:"power_grid"`      // GIC risk level, 1-10
	Satellite      float64 `json:"satellite"`       // orbital drag risk, 1-10
	CompositeScore float64 `json:"composite_score"` // 0-100
}

// BacktestEvent is a single timeline entry. Predicted/actual impacts are
// attached in place during replay; the timeline is never reordered after
// its initial chronological sort.
type BacktestEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      BacktestEventType `json:"event_type"`
	Data      Measurement       `json:"data"`
	Predicted *ImpactSet        `json:"predicted_impacts,omitempty"`
	Actual    *ImpactSet        `json:"actual_impacts,omitempty"`
}

// SectorAccuracy holds error and correlation metrics for one series.
type SectorAccuracy struct {
	MAE         float64 `json:"mean_absolute_error"`
	RMSE        float64 `json:"root_mean_square_error"`
	MAPE        float64 `json:"mean_absolute_percentage_error"`
	Correlation float64 `json:"correlation_coefficient"`
	SampleCount int     `json:"sample_count"`
}

// AccuracyReport scores a replayed timeline against synthesized actuals.
type AccuracyReport struct {
	EventCount      int                       `json:"event_count"`
	PeriodStart     time.Time                 `json:"period_start"`
	PeriodEnd       time.Time                 `json:"period_end"`
	SectorMetrics   map[string]SectorAccuracy `json:"sector_metrics"`
	OverallMAE      float64                   `json:"overall_mae"`
	OverallCorr     float64                   `json:"overall_correlation"`
	Grade           string                    `json:"accuracy_grade"` // A-F
	Recommendations []string                  `json:"recommendations"`
}

// ReplayStatus reports replay position so a caller can switch back to live
// mode without re-deriving state.
type ReplayStatus struct {
	IsPlaying       bool    `json:"is_playing"`
	CurrentPosition int     `json:"current_position"`
	ReplaySpeed     float64 `json:"replay_speed"`
	SessionActive   bool    `json:"session_active"`
}
