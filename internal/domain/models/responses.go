package models

import "time"

// Responses for the impact-prediction HTTP endpoints.

// FusionOutcome is the transport view of one ML/physics combine pass.
type FusionOutcome struct {
	Values     map[string]float64 `json:"values"`
	Confidence map[string]float64 `json:"confidence"`
	Conflicts  []Discrepancy      `json:"conflicts,omitempty"`
}

// PredictImpactResponse is the full output of one prediction pass.
type PredictImpactResponse struct {
	Timestamp   time.Time         `json:"timestamp"`
	Predictions SectorPredictions `json:"predictions"`
	Composite   CompositeScore    `json:"composite"`
	Fusion      FusionOutcome     `json:"fusion"`
	// Physics-side confidence in [0,1], from input signal strength.
	Confidence float64       `json:"confidence"`
	Degraded   []Degradation `json:"degraded,omitempty"`
}

// AlertsResponse lists active alerts and, on request, the expired history.
type AlertsResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
	Alerts    []*Alert  `json:"alerts"`
	History   []*Alert  `json:"history,omitempty"`
}

// BacktestResponse is the outcome of one replayed historical event.
type BacktestResponse struct {
	EventName string          `json:"event_name"`
	EventDate time.Time       `json:"event_date"`
	Timeline  []BacktestEvent `json:"timeline"`
	Accuracy  AccuracyReport  `json:"accuracy_metrics"`
	Status    ReplayStatus    `json:"replay_status"`
}

// BacktestControlResponse acknowledges a replay control action.
type BacktestControlResponse struct {
	Action    string       `json:"action"`
	Message   string       `json:"message"`
	Status    ReplayStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
}

// BacktestStatusResponse reports replay state for mode switching.
type BacktestStatusResponse struct {
	Status ReplayStatus `json:"replay_status"`
	// True when the caller can switch back to live mode.
	LiveModeAvailable bool      `json:"live_mode_available"`
	Timestamp         time.Time `json:"timestamp"`
}
