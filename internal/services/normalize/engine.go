package normalize

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"AstroSense/internal/domain/models"
	applogger "AstroSense/pkg/logger"
)

// Range bounds a physically plausible value span for min-max scaling.
type Range struct {
	Min float64
	Max float64
}

// Ranges are the per-field normalization bounds. Out-of-range inputs are
// clamped to these, never rejected.
var Ranges = map[string]Range{
	"solar_wind_speed": {200.0, 1000.0},
	"bz_field":         {-100.0, 100.0},
	"kp_index":         {0.0, 9.0},
	"proton_flux":      {0.0, 1e6},
	"cme_speed":        {0.0, 3000.0},
	"density":          {0.1, 100.0},
	"temperature":      {1e4, 1e7},
}

// flareClassRank encodes class letters; higher means more intense.
var flareClassRank = map[byte]float64{'A': 1, 'B': 2, 'C': 3, 'M': 4, 'X': 5}

const (
	// maxHistory keeps 24h of 5-minute samples per field.
	maxHistory = 288
	// imputeSamples is the 6-hour median window at 5-minute sampling.
	imputeSamples = 72
	// maxAudit bounds the raw/normalized audit trail per field.
	maxAudit = 1000
)

type sample struct {
	at time.Time
	v  float64
}

// AuditRecord pairs a raw value with its normalized form for later audit.
type AuditRecord struct {
	At         time.Time `json:"timestamp"`
	Raw        float64   `json:"raw"`
	Normalized float64   `json:"normalized"`
}

// RawSample is one measurement with explicit field presence. A nil field is
// missing (to be imputed), not zero.
type RawSample struct {
	At             time.Time
	SolarWindSpeed *float64
	Bz             *float64
	KpIndex        *float64
	ProtonFlux     *float64
	CMESpeed       *float64
	FlareClass     string
}

// FromMeasurement builds a fully present RawSample from a Measurement.
func FromMeasurement(m models.Measurement) RawSample {
	sw, bz, kp, pf, cme := m.SolarWindSpeed, m.Bz, m.KpIndex, m.ProtonFlux, m.CMESpeed
	return RawSample{
		At:             m.Timestamp,
		SolarWindSpeed: &sw,
		Bz:             &bz,
		KpIndex:        &kp,
		ProtonFlux:     &pf,
		CMESpeed:       &cme,
		FlareClass:     m.FlareClass,
	}
}

// Result is the partial normalized vector plus degradation annotations.
type Result struct {
	Values            map[string]float64            // field -> [0,1]
	FlareClassEncoded float64                       // 0 or 1.0-5.9
	Degraded          map[string]models.Degradation // field -> how it was estimated
}

// Engine owns the rolling per-field history, the audit store and the
// min-max transform. Single instance per process; all methods are
// safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	history map[string][]sample
	audit   map[string][]AuditRecord
	l       *applogger.Logger
}

// New creates a normalization engine. Logger may be nil.
func New(l *applogger.Logger) *Engine {
	return &Engine{
		history: make(map[string][]sample),
		audit:   make(map[string][]AuditRecord),
		l:       l,
	}
}

// Normalize clamps value to the field's plausible range and min-max scales
// it to [0,1]. The second return reports whether clamping happened.
func (e *Engine) Normalize(field string, value float64) (float64, bool) {
	r, ok := Ranges[field]
	if !ok {
		if e.l != nil {
			e.l.Warn("normalize: no range for field", applogger.String("field", field))
		}
		return value, false
	}
	clamped := value
	if clamped < r.Min {
		clamped = r.Min
	}
	if clamped > r.Max {
		clamped = r.Max
	}
	wasClamped := clamped != value
	if wasClamped && e.l != nil {
		e.l.Debug("normalize: value clamped",
			applogger.String("field", field),
			applogger.Any("raw", value),
			applogger.Any("clamped", clamped))
	}
	norm := (clamped - r.Min) / (r.Max - r.Min)
	if norm < 0 {
		norm = 0
	}
	if norm > 1 {
		norm = 1
	}
	return norm, wasClamped
}

// Denormalize is the exact inverse of the min-max transform.
func (e *Engine) Denormalize(field string, norm float64) float64 {
	r, ok := Ranges[field]
	if !ok {
		return norm
	}
	return norm*(r.Max-r.Min) + r.Min
}

// EncodeFlareClass maps a class string like "X5.0" to letter rank plus a
// fractional magnitude in [0,0.9]. Unknown or empty classes encode to 0.
func EncodeFlareClass(flareClass string) float64 {
	if flareClass == "" {
		return 0
	}
	letter := strings.ToUpper(flareClass)[0]
	rank, ok := flareClassRank[letter]
	if !ok {
		return 0
	}
	if len(flareClass) > 1 {
		if mag, err := strconv.ParseFloat(flareClass[1:], 64); err == nil {
			frac := mag / 10.0
			if frac > 0.9 {
				frac = 0.9
			}
			if frac < 0 {
				frac = 0
			}
			rank += frac
		}
	}
	return rank
}

// Impute returns the median of the most recent six hours of retained history
// for the field. ok is false when no history exists; the caller must then
// fall back to a component default.
func (e *Engine) Impute(field string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	hist := e.history[field]
	if len(hist) == 0 {
		return 0, false
	}
	start := len(hist) - imputeSamples
	if start < 0 {
		start = 0
	}
	recent := make([]float64, 0, len(hist)-start)
	for _, s := range hist[start:] {
		recent = append(recent, s.v)
	}
	sort.Float64s(recent)
	n := len(recent)
	if n%2 == 1 {
		return recent[n/2], true
	}
	return (recent[n/2-1] + recent[n/2]) / 2, true
}

// observe appends raw history and the raw/normalized audit pair, trimming
// both to their bounds. Caller holds no lock.
func (e *Engine) observe(field string, at time.Time, raw, norm float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := append(e.history[field], sample{at: at, v: raw})
	if len(h) > maxHistory {
		h = h[len(h)-maxHistory:]
	}
	e.history[field] = h

	a := append(e.audit[field], AuditRecord{At: at, Raw: raw, Normalized: norm})
	if len(a) > maxAudit {
		a = a[len(a)-maxAudit:]
	}
	e.audit[field] = a
}

// RawValues returns up to limit of the most recent audit records for a field.
func (e *Engine) RawValues(field string, limit int) []AuditRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := e.audit[field]
	if limit <= 0 || limit > len(a) {
		limit = len(a)
	}
	out := make([]AuditRecord, limit)
	copy(out, a[len(a)-limit:])
	return out
}

// NormalizeSample normalizes every present field, imputes the required
// missing ones from history, and annotates how each value was obtained.
func (e *Engine) NormalizeSample(raw RawSample) Result {
	res := Result{
		Values:   make(map[string]float64),
		Degraded: make(map[string]models.Degradation),
	}
	at := raw.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	fields := []struct {
		name     string
		value    *float64
		required bool
	}{
		{"solar_wind_speed", raw.SolarWindSpeed, true},
		{"bz_field", raw.Bz, true},
		{"kp_index", raw.KpIndex, true},
		{"proton_flux", raw.ProtonFlux, true},
		{"cme_speed", raw.CMESpeed, false},
	}

	for _, f := range fields {
		if f.value != nil {
			norm, clamped := e.Normalize(f.name, *f.value)
			res.Values[f.name] = norm
			if clamped {
				res.Degraded[f.name] = models.DegradedClamped
			}
			e.observe(f.name, at, *f.value, norm)
			continue
		}
		if !f.required {
			continue
		}
		if imputed, ok := e.Impute(f.name); ok {
			norm, _ := e.Normalize(f.name, imputed)
			res.Values[f.name] = norm
			res.Degraded[f.name] = models.DegradedImputed
			if e.l != nil {
				e.l.Info("normalize: imputed missing field",
					applogger.String("field", f.name),
					applogger.Any("median", imputed))
			}
		}
		// No value and no history: the field stays absent and the caller
		// supplies a component default, marking the prediction degraded.
	}

	res.FlareClassEncoded = EncodeFlareClass(raw.FlareClass)
	return res
}
