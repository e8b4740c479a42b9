package validate

import (
	"testing"
	"time"

	"AstroSense/internal/domain/models"
)

var recordTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func quietMeasurement() models.Measurement {
	return models.Measurement{
		Timestamp:      recordTime,
		SolarWindSpeed: 400,
		Bz:             -2,
		KpIndex:        3,
		ProtonFlux:     10,
	}
}

func TestValidateRangesAcceptsPlausible(t *testing.T) {
	e := New(nil)
	if !e.ValidateRanges(quietMeasurement()) {
		t.Fatalf("quiet measurement must pass")
	}
	if len(e.Failures()) != 0 {
		t.Fatalf("no failures expected, got %v", e.Failures())
	}
}

func TestValidateRangesRejectsImplausible(t *testing.T) {
	e := New(nil)

	m := quietMeasurement()
	m.SolarWindSpeed = 5000
	if e.ValidateRanges(m) {
		t.Fatalf("implausible wind speed must fail")
	}

	m = quietMeasurement()
	m.Bz = -300
	if e.ValidateRanges(m) {
		t.Fatalf("implausible bz must fail")
	}

	failures := e.Failures()
	if len(failures) != 2 {
		t.Fatalf("expected 2 recorded failures, got %d", len(failures))
	}
	if failures[0].Type != "range" {
		t.Fatalf("unexpected failure type %q", failures[0].Type)
	}
}

func TestValidateRangesSkipsUnsetOptionalFields(t *testing.T) {
	e := New(nil)
	m := quietMeasurement()
	m.SolarWindSpeed = 0 // unset, not implausible
	m.CMESpeed = 0
	if !e.ValidateRanges(m) {
		t.Fatalf("zero wind and cme speed mean absent, must pass")
	}
}

func TestValidateTimestamps(t *testing.T) {
	e := New(nil)

	ordered := []models.Measurement{
		{Timestamp: recordTime},
		{Timestamp: recordTime}, // equal timestamps stay ordered
		{Timestamp: recordTime.Add(time.Minute)},
	}
	if !e.ValidateTimestamps(ordered) {
		t.Fatalf("ordered batch must pass")
	}
	if !e.ValidateTimestamps(nil) {
		t.Fatalf("empty batch is trivially ordered")
	}

	unordered := []models.Measurement{
		{Timestamp: recordTime.Add(time.Minute)},
		{Timestamp: recordTime},
	}
	if e.ValidateTimestamps(unordered) {
		t.Fatalf("out-of-order batch must fail")
	}
}

func TestValidateFlareClass(t *testing.T) {
	e := New(nil)
	cases := []struct {
		class string
		want  bool
	}{
		{"X5.0", true},
		{"x2.5", true},
		{"M", true},
		{"A0.5", true},
		{"", false},
		{"Z1.0", false},
		{"X10", false}, // magnitude rolls over to the next class
		{"Xabc", false},
	}
	for _, c := range cases {
		if got := e.ValidateFlareClass(c.class); got != c.want {
			t.Fatalf("class %q: expected %v, got %v", c.class, c.want, got)
		}
	}
}

func TestValidateRecordQualityMetrics(t *testing.T) {
	e := New(nil)

	if !e.ValidateRecord(quietMeasurement()) {
		t.Fatalf("valid record rejected")
	}

	missing := quietMeasurement()
	missing.Timestamp = time.Time{}
	if e.ValidateRecord(missing) {
		t.Fatalf("record without timestamp must fail")
	}

	bad := quietMeasurement()
	bad.FlareClass = "Q9"
	if e.ValidateRecord(bad) {
		t.Fatalf("record with bad flare class must fail")
	}

	m := e.QualityMetrics()
	if m.TotalRecords != 3 || m.ValidRecords != 1 || m.InvalidRecords != 2 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	want := 1.0 / 3.0 * 100
	if m.CompletenessPercentage != want {
		t.Fatalf("expected completeness %v, got %v", want, m.CompletenessPercentage)
	}

	if e.MeetsQualityThreshold(30) != true {
		t.Fatalf("33%% completeness meets a 30%% threshold")
	}
	if e.MeetsQualityThreshold(50) {
		t.Fatalf("33%% completeness fails a 50%% threshold")
	}
}

func TestReset(t *testing.T) {
	e := New(nil)
	e.ValidateRecord(models.Measurement{}) // fails, records a failure
	e.Reset()

	if len(e.Failures()) != 0 {
		t.Fatalf("reset must clear failures")
	}
	m := e.QualityMetrics()
	if m.TotalRecords != 0 || m.CompletenessPercentage != 100.0 {
		t.Fatalf("reset must restore pristine metrics: %+v", m)
	}
}
