package models

// Requests for the impact-prediction HTTP endpoints. Defaults are applied by
// the transport layer before validation; absent optional measurements keep
// their quiet-sun values.

type PredictImpactRequest struct {
	SolarWindSpeed       *float64 `json:"solar_wind_speed" validate:"omitempty,gte=0,lte=5000"`
	Bz                   *float64 `json:"bz" validate:"omitempty,gte=-200,lte=200"`
	KpIndex              *float64 `json:"kp_index" validate:"omitempty,gte=0,lte=9"`
	ProtonFlux           *float64 `json:"proton_flux" validate:"omitempty,gte=0"`
	FlareClass           string   `json:"flare_class" validate:"omitempty,max=8"`
	CMESpeed             *float64 `json:"cme_speed" validate:"omitempty,gte=0,lte=5000"`
	GeomagneticLatitude  float64  `json:"geomagnetic_latitude" default:"70" validate:"gte=-90,lte=90"`
	GroundConductivity   float64  `json:"ground_conductivity" default:"0.5" validate:"gte=0,lte=1"`
	GridTopologyFactor   float64  `json:"grid_topology_factor" default:"1" validate:"gte=0.5,lte=2"`
	AltitudeKm           float64  `json:"altitude_km" default:"400" validate:"gte=100,lte=40000"`
	GeographicLatitude   float64  `json:"latitude" default:"45" validate:"gte=-90,lte=90"`
	GeographicLongitude  float64  `json:"longitude" validate:"gte=-180,lte=180"`
}

type BacktestRequest struct {
	EventDate string  `json:"event_date" validate:"required,datetime=2006-01-02"`
	EventName string  `json:"event_name" default:"Historical Event" validate:"max=64"`
	Hours     int     `json:"hours" default:"12" validate:"gte=1,lte=336"`
	Speed     float64 `json:"speed" default:"1" validate:"gte=0.1,lte=10"`
}

type BacktestControlRequest struct {
	Action string  `json:"action" validate:"required,oneof=play pause stop speed"`
	Speed  float64 `json:"speed" default:"1" validate:"gte=0.1,lte=10"`
}

type AlertsRequest struct {
	Prioritized bool `query:"prioritized" json:"prioritized" default:"true"`
	History     bool `query:"history" json:"history"`
}
