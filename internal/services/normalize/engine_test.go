package normalize

import (
	"math"
	"testing"
	"time"

	"AstroSense/internal/domain/models"
)

var sampleTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNormalizeMinMax(t *testing.T) {
	e := New(nil)

	got, clamped := e.Normalize("solar_wind_speed", 600)
	if !almostEqual(got, 0.5) || clamped {
		t.Fatalf("expected 0.5 unclamped, got %v clamped=%v", got, clamped)
	}
	got, clamped = e.Normalize("kp_index", 9)
	if !almostEqual(got, 1.0) || clamped {
		t.Fatalf("boundary value must not count as clamped: %v %v", got, clamped)
	}
}

func TestNormalizeClampsOutOfRange(t *testing.T) {
	e := New(nil)

	got, clamped := e.Normalize("solar_wind_speed", 5000)
	if !almostEqual(got, 1.0) || !clamped {
		t.Fatalf("expected clamp to 1.0, got %v clamped=%v", got, clamped)
	}
	got, clamped = e.Normalize("bz_field", -300)
	if !almostEqual(got, 0.0) || !clamped {
		t.Fatalf("expected clamp to 0.0, got %v clamped=%v", got, clamped)
	}
}

func TestNormalizeUnknownFieldPassesThrough(t *testing.T) {
	e := New(nil)
	got, clamped := e.Normalize("mystery", 42)
	if got != 42 || clamped {
		t.Fatalf("unknown field must pass through, got %v", got)
	}
}

func TestDenormalizeInverts(t *testing.T) {
	e := New(nil)
	for _, field := range []string{"solar_wind_speed", "bz_field", "cme_speed"} {
		raw := 0.37
		norm, _ := e.Normalize(field, e.Denormalize(field, raw))
		if !almostEqual(norm, raw) {
			t.Fatalf("%s: round trip %v -> %v", field, raw, norm)
		}
	}
}

func TestEncodeFlareClass(t *testing.T) {
	cases := []struct {
		class string
		want  float64
	}{
		{"", 0},
		{"A", 1},
		{"B2.0", 2.2},
		{"C3.0", 3.3},
		{"M2.3", 4.23},
		{"X5.0", 5.5},
		{"x5.0", 5.5},
		{"X15", 5.9}, // fraction capped at 0.9
		{"Z1.0", 0},  // unknown letter
	}
	for _, c := range cases {
		if got := EncodeFlareClass(c.class); !almostEqual(got, c.want) {
			t.Fatalf("class %q: expected %v, got %v", c.class, c.want, got)
		}
	}
}

func TestImputeMedian(t *testing.T) {
	e := New(nil)
	if _, ok := e.Impute("kp_index"); ok {
		t.Fatalf("impute must fail without history")
	}

	for i, v := range []float64{2, 7, 3, 5, 4} {
		e.observe("kp_index", sampleTime.Add(time.Duration(i)*time.Minute), v, 0)
	}
	got, ok := e.Impute("kp_index")
	if !ok {
		t.Fatalf("expected imputation to succeed")
	}
	if !almostEqual(got, 4) {
		t.Fatalf("expected median 4, got %v", got)
	}

	e.observe("kp_index", sampleTime.Add(6*time.Minute), 6, 0)
	got, _ = e.Impute("kp_index")
	if !almostEqual(got, 4.5) {
		t.Fatalf("even-count median must average middle pair, got %v", got)
	}
}

func TestNormalizeSamplePresentFields(t *testing.T) {
	e := New(nil)
	res := e.NormalizeSample(FromMeasurement(models.Measurement{
		Timestamp:      sampleTime,
		SolarWindSpeed: 600,
		Bz:             -10,
		KpIndex:        4.5,
		ProtonFlux:     100,
		FlareClass:     "M2.0",
	}))

	if !almostEqual(res.Values["solar_wind_speed"], 0.5) {
		t.Fatalf("wind: got %v", res.Values["solar_wind_speed"])
	}
	if !almostEqual(res.Values["bz_field"], 0.45) {
		t.Fatalf("bz: got %v", res.Values["bz_field"])
	}
	if !almostEqual(res.Values["kp_index"], 0.5) {
		t.Fatalf("kp: got %v", res.Values["kp_index"])
	}
	if !almostEqual(res.FlareClassEncoded, 4.2) {
		t.Fatalf("flare encoding: got %v", res.FlareClassEncoded)
	}
	if len(res.Degraded) != 0 {
		t.Fatalf("clean sample must not be degraded: %v", res.Degraded)
	}
}

func TestNormalizeSampleMarksClamped(t *testing.T) {
	e := New(nil)
	sw := 5000.0
	res := e.NormalizeSample(RawSample{At: sampleTime, SolarWindSpeed: &sw})
	if res.Degraded["solar_wind_speed"] != models.DegradedClamped {
		t.Fatalf("expected clamped annotation, got %v", res.Degraded)
	}
}

func TestNormalizeSampleImputesFromHistory(t *testing.T) {
	e := New(nil)
	for i := 0; i < 3; i++ {
		kp := 4.0
		e.NormalizeSample(RawSample{At: sampleTime.Add(time.Duration(i) * time.Minute), KpIndex: &kp})
	}

	res := e.NormalizeSample(RawSample{At: sampleTime.Add(time.Hour)})
	got, ok := res.Values["kp_index"]
	if !ok {
		t.Fatalf("kp must be imputed from history")
	}
	if !almostEqual(got, 4.0/9.0) {
		t.Fatalf("expected normalized median, got %v", got)
	}
	if res.Degraded["kp_index"] != models.DegradedImputed {
		t.Fatalf("imputed field must be annotated, got %v", res.Degraded)
	}
}

func TestNormalizeSampleAbsentWithoutHistory(t *testing.T) {
	e := New(nil)
	res := e.NormalizeSample(RawSample{At: sampleTime})
	if _, ok := res.Values["solar_wind_speed"]; ok {
		t.Fatalf("no value and no history must leave the field absent")
	}
	// optional field never imputes
	if _, ok := res.Values["cme_speed"]; ok {
		t.Fatalf("cme_speed is optional and must stay absent")
	}
}

func TestRawValuesLimit(t *testing.T) {
	e := New(nil)
	for i := 0; i < 20; i++ {
		e.observe("bz_field", sampleTime.Add(time.Duration(i)*time.Minute), float64(i), 0)
	}

	recs := e.RawValues("bz_field", 5)
	if len(recs) != 5 {
		t.Fatalf("expected 5 records, got %d", len(recs))
	}
	if recs[4].Raw != 19 {
		t.Fatalf("expected most recent last, got %v", recs[4].Raw)
	}
	if got := e.RawValues("bz_field", 0); len(got) != 20 {
		t.Fatalf("non-positive limit must return everything, got %d", len(got))
	}
}
