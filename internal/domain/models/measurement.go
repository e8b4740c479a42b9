package models

import "time"

// Measurement is a single space-weather observation. Immutable once captured;
// produced by the ingestion layer and consumed by every downstream component.
type Measurement struct {
	Timestamp      time.Time `json:"timestamp"`
	SolarWindSpeed float64   `json:"solar_wind_speed"` // km/s
	Bz             float64   `json:"bz"`               // nT, southward negative
	KpIndex        float64   `json:"kp_index"`         // 0-9
	ProtonFlux     float64   `json:"proton_flux"`      // particles/cm^2/s/sr
	FlareClass     string    `json:"flare_class"`      // e.g. "X5.0", "M2.3", "" when none
	CMESpeed       float64   `json:"cme_speed"`        // km/s, 0 when no CME
	// Optional observer context used by latitude/longitude-dependent features.
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// CMEEvent is a coronal mass ejection record from the ingestion layer.
type CMEEvent struct {
	DetectionTime time.Time `json:"detection_time"`
	Speed         float64   `json:"speed"` // km/s
	SourceRegion  string    `json:"source_region,omitempty"`
}

// FlareEvent is a solar flare record from the ingestion layer.
type FlareEvent struct {
	DetectionTime time.Time `json:"detection_time"`
	Class         string    `json:"class"` // e.g. "X2.5"
	SourceRegion  string    `json:"source_region,omitempty"`
}

// SourceResult wraps one ingestion sub-source: either data or an error marker.
// Each source may fail independently; the snapshot stays usable either way.
type SourceResult[T any] struct {
	Data T      `json:"data,omitempty"`
	Err  string `json:"error,omitempty"`
}

// Failed reports whether the source returned an error marker.
func (r SourceResult[T]) Failed() bool { return r.Err != "" }

// SpaceWeatherSnapshot is the combined output of fetch-all across NOAA and
// DONKI sources, tolerant of per-source failure.
type SpaceWeatherSnapshot struct {
	Timestamp     time.Time                 `json:"timestamp"`
	SolarWind     SourceResult[Measurement] `json:"solar_wind"`
	MagneticField SourceResult[Measurement] `json:"magnetic_field"`
	KpIndex       SourceResult[Measurement] `json:"kp_index"`
	CMEEvents     SourceResult[[]CMEEvent]  `json:"cme_events"`
	SolarFlares   SourceResult[[]FlareEvent] `json:"solar_flares"`
}

// Merge flattens the per-source snapshot into a single Measurement, taking
// each field from its owning source and leaving zero values for failed ones.
func (s *SpaceWeatherSnapshot) Merge() Measurement {
	m := Measurement{Timestamp: s.Timestamp}
	if !s.SolarWind.Failed() {
		m.SolarWindSpeed = s.SolarWind.Data.SolarWindSpeed
		m.ProtonFlux = s.SolarWind.Data.ProtonFlux
	}
	if !s.MagneticField.Failed() {
		m.Bz = s.MagneticField.Data.Bz
	}
	if !s.KpIndex.Failed() {
		m.KpIndex = s.KpIndex.Data.KpIndex
	}
	if !s.CMEEvents.Failed() && len(s.CMEEvents.Data) > 0 {
		m.CMESpeed = s.CMEEvents.Data[len(s.CMEEvents.Data)-1].Speed
	}
	if !s.SolarFlares.Failed() && len(s.SolarFlares.Data) > 0 {
		m.FlareClass = s.SolarFlares.Data[len(s.SolarFlares.Data)-1].Class
	}
	return m
}
