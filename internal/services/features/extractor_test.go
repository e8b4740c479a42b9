package features

import (
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/domain/models"
	"AstroSense/internal/services/normalize"
)

var testTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestExtractor() (*Extractor, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(testTime)
	return New(clock, nil), clock
}

func emptyResult() normalize.Result {
	return normalize.Result{
		Values:   make(map[string]float64),
		Degraded: make(map[string]models.Degradation),
	}
}

func TestExtractFallsBackToNeutralDefaults(t *testing.T) {
	x, _ := newTestExtractor()
	v, degraded := x.Extract(emptyResult(), nil, nil, 0, 0)

	if v[models.FeatSolarWindSpeed] != 0.25 {
		t.Fatalf("wind default: got %v", v[models.FeatSolarWindSpeed])
	}
	if v[models.FeatBzField] != 0.5 {
		t.Fatalf("bz default: got %v", v[models.FeatBzField])
	}
	if v[models.FeatKpIndex] != 0.22 {
		t.Fatalf("kp default: got %v", v[models.FeatKpIndex])
	}
	if v[models.FeatProtonFlux] != 0 {
		t.Fatalf("flux default: got %v", v[models.FeatProtonFlux])
	}
	// four required fields defaulted
	if len(degraded) != 4 {
		t.Fatalf("expected 4 degradations, got %v", degraded)
	}
	for _, d := range degraded {
		if d != models.DegradedDefault {
			t.Fatalf("expected default degradation, got %v", d)
		}
	}
}

func TestExtractCarriesDegradationAnnotations(t *testing.T) {
	x, _ := newTestExtractor()
	res := emptyResult()
	res.Values["solar_wind_speed"] = 0.5
	res.Values["bz_field"] = 0.5
	res.Values["kp_index"] = 0.5
	res.Values["proton_flux"] = 0.1
	res.Degraded["kp_index"] = models.DegradedImputed

	v, degraded := x.Extract(res, nil, nil, 0, 0)
	if v[models.FeatKpIndex] != 0.5 {
		t.Fatalf("present value must win: got %v", v[models.FeatKpIndex])
	}
	if len(degraded) != 1 || degraded[0] != models.DegradedImputed {
		t.Fatalf("expected single imputed annotation, got %v", degraded)
	}
}

func TestExtractFlareClassScaled(t *testing.T) {
	x, _ := newTestExtractor()
	res := emptyResult()
	res.FlareClassEncoded = 5.5 // X5.0
	v, _ := x.Extract(res, nil, nil, 0, 0)
	if math.Abs(v[models.FeatFlareClass]-5.5/6.0) > 1e-9 {
		t.Fatalf("flare feature: got %v", v[models.FeatFlareClass])
	}
}

func TestBzRateOfChange(t *testing.T) {
	x, clock := newTestExtractor()

	// fewer than two samples in the window: neutral
	if got := x.bzRateLocked(clock.Now().UTC()); got != 0.5 {
		t.Fatalf("expected neutral 0.5, got %v", got)
	}

	bz0, bz1 := 0.0, 10.0
	x.RecordMeasurement(&bz0, nil)
	clock.Advance(15 * time.Minute)
	x.RecordMeasurement(&bz1, nil)

	// +10 nT over 0.25h = +40 nT/h, mapped to (40+50)/100
	got := x.bzRateLocked(clock.Now().UTC())
	if math.Abs(got-0.9) > 1e-9 {
		t.Fatalf("expected 0.9, got %v", got)
	}

	// samples older than 30 minutes fall out of the window
	clock.Advance(time.Hour)
	if got := x.bzRateLocked(clock.Now().UTC()); got != 0.5 {
		t.Fatalf("stale window must be neutral, got %v", got)
	}
}

func TestWindSpeedVariance(t *testing.T) {
	x, clock := newTestExtractor()

	w0, w1 := 400.0, 600.0
	x.RecordMeasurement(nil, &w0)
	clock.Advance(time.Minute)
	x.RecordMeasurement(nil, &w1)

	// variance 10000 saturates the component
	if got := x.windVarianceLocked(clock.Now().UTC()); got != 1.0 {
		t.Fatalf("expected saturation at 1.0, got %v", got)
	}
}

func TestTimeSinceFlareDecay(t *testing.T) {
	x, clock := newTestExtractor()

	v, _ := x.Extract(emptyResult(), nil, nil, 0, 0)
	if v[models.FeatTimeSinceFlare] != 1.0 {
		t.Fatalf("no flare must read fully decayed, got %v", v[models.FeatTimeSinceFlare])
	}

	x.RecordFlare(models.FlareEvent{DetectionTime: clock.Now().UTC(), Class: "X1.0"})
	v, _ = x.Extract(emptyResult(), nil, nil, 0, 0)
	if v[models.FeatTimeSinceFlare] != 0 {
		t.Fatalf("fresh flare must read 0, got %v", v[models.FeatTimeSinceFlare])
	}

	clock.Advance(84 * time.Hour)
	v, _ = x.Extract(emptyResult(), nil, nil, 0, 0)
	if math.Abs(v[models.FeatTimeSinceFlare]-0.5) > 1e-9 {
		t.Fatalf("half the decay horizon must read 0.5, got %v", v[models.FeatTimeSinceFlare])
	}
}

func TestCMEArrivalProximity(t *testing.T) {
	x, clock := newTestExtractor()

	if got := x.cmeProximityLocked(clock.Now().UTC()); got != 0 {
		t.Fatalf("no CME must read 0, got %v", got)
	}

	x.RecordCME(models.CMEEvent{DetectionTime: clock.Now().UTC(), Speed: 1500})
	// travel = 150e6/1500 s ~ 27.78h out of a 72h horizon
	want := 1.0 - (150e6/1500.0/3600.0)/72.0
	got := x.cmeProximityLocked(clock.Now().UTC())
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("expected %v, got %v", want, got)
	}

	// past the estimated arrival the signal drops back to 0
	clock.Advance(40 * time.Hour)
	if got := x.cmeProximityLocked(clock.Now().UTC()); got != 0 {
		t.Fatalf("post-arrival must read 0, got %v", got)
	}
}

func TestLocalTimeFactor(t *testing.T) {
	cases := []struct {
		lon  float64
		want float64
	}{
		{0, 0.2},    // local noon
		{180, 1.0},  // local midnight
		{165, 0.5},  // local 23:00
		{-150, 0.0}, // local 02:00, edge of the window
	}
	for _, c := range cases {
		if got := localTimeFactor(testTime, c.lon); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("lon %v: expected %v, got %v", c.lon, c.want, got)
		}
	}
}

func TestGeomagneticLatitudeFeature(t *testing.T) {
	x, _ := newTestExtractor()
	v, _ := x.Extract(emptyResult(), nil, nil, -45, 0)
	if math.Abs(v[models.FeatGeomagneticLatitude]-0.5) > 1e-9 {
		t.Fatalf("latitude feature must use absolute value, got %v", v[models.FeatGeomagneticLatitude])
	}
}
