package physics

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestStormRiskNorthwardBz(t *testing.T) {
	e := New(nil)
	if got := e.StormRisk(0, 800); !almostEqual(got, 0.1) {
		t.Fatalf("expected floor 0.1, got %v", got)
	}
	if got := e.StormRisk(5, 400); !almostEqual(got, 0.1) {
		t.Fatalf("expected floor 0.1, got %v", got)
	}
}

func TestStormRiskCoupling(t *testing.T) {
	e := New(nil)
	// V=450, Bz=-10: 450*100/300000 = 0.15, no boost (bz not < -10)
	if got := e.StormRisk(-10, 450); !almostEqual(got, 0.15) {
		t.Fatalf("expected 0.15, got %v", got)
	}
}

func TestStormRiskStrongBoost(t *testing.T) {
	e := New(nil)
	// V=600, Bz=-11: 600*121/300000 = 0.242, boosted 1.5x = 0.363
	if got := e.StormRisk(-11, 600); !almostEqual(got, 0.363) {
		t.Fatalf("expected 0.363, got %v", got)
	}
	// boost never exceeds 1.0
	if got := e.StormRisk(-30, 900); !almostEqual(got, 1.0) {
		t.Fatalf("expected cap 1.0, got %v", got)
	}
}

func TestStormRiskNoBoostWithoutFastWind(t *testing.T) {
	e := New(nil)
	// Bz strong but wind exactly 500: boost requires wind > 500
	want := 500 * 144.0 / 300000
	if got := e.StormRisk(-12, 500); !almostEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCMEImpactBands(t *testing.T) {
	e := New(nil)
	cases := []struct {
		speed float64
		want  float64
	}{
		{0, 0},
		{-100, 0},
		{400, 0.4},
		{499, 0.499},
		{500, 0.5},
		{800, 0.8},
		{1000, 1.0},
		{2000, 1.0}, // raw 1.5, capped
		{3000, 1.0},
	}
	for _, c := range cases {
		if got := e.CMEImpact(c.speed); !almostEqual(got, c.want) {
			t.Fatalf("speed %v: expected %v, got %v", c.speed, c.want, got)
		}
	}
}

func TestFlareBlackout(t *testing.T) {
	e := New(nil)
	if !e.FlareBlackout("X1.5") {
		t.Fatalf("X-class must force blackout")
	}
	if !e.FlareBlackout("x9") {
		t.Fatalf("lowercase x must match")
	}
	for _, cls := range []string{"", "M5.0", "C2.3", "B1.0"} {
		if e.FlareBlackout(cls) {
			t.Fatalf("class %q must not force blackout", cls)
		}
	}
}

func TestPredictImpactsBlackoutOverride(t *testing.T) {
	e := New(nil)
	in := QuietDefaults()
	in.FlareClass = "X2.0"
	impacts := e.PredictImpacts(in)
	if !almostEqual(impacts[KeyAviationBlackout], 95.0) {
		t.Fatalf("expected blackout aviation 95, got %v", impacts[KeyAviationBlackout])
	}
}

func TestPredictImpactsQuietConditions(t *testing.T) {
	e := New(nil)
	impacts := e.PredictImpacts(QuietDefaults())

	// storm risk 0.1 floor, no CME: geomag = 0.06
	if !almostEqual(impacts[KeyAviationBlackout], 0.06*80+3*5) {
		t.Fatalf("aviation: got %v", impacts[KeyAviationBlackout])
	}
	if !almostEqual(impacts[KeyTelecomDegradation], 0.1*70+3*8) {
		t.Fatalf("telecom: got %v", impacts[KeyTelecomDegradation])
	}
	if !almostEqual(impacts[KeyGPSDrift], 0.06*300+3*20) {
		t.Fatalf("gps: got %v", impacts[KeyGPSDrift])
	}
	// int(0.1*8 + 3*0.8) + 1 = int(3.2)+1 = 4
	if !almostEqual(impacts[KeyPowerGridGIC], 4) {
		t.Fatalf("gic: got %v", impacts[KeyPowerGridGIC])
	}
	// int(0.06*7 + 3*0.9) + 1 = int(3.12)+1 = 4
	if !almostEqual(impacts[KeySatelliteDrag], 4) {
		t.Fatalf("drag: got %v", impacts[KeySatelliteDrag])
	}
}

func TestPredictImpactsLevelBounds(t *testing.T) {
	e := New(nil)
	impacts := e.PredictImpacts(Inputs{Bz: -40, WindSpeed: 900, CMESpeed: 3000, KpIndex: 9, FlareClass: "X9"})
	if impacts[KeyPowerGridGIC] > 10 || impacts[KeyPowerGridGIC] < 1 {
		t.Fatalf("gic out of range: %v", impacts[KeyPowerGridGIC])
	}
	if impacts[KeySatelliteDrag] > 10 || impacts[KeySatelliteDrag] < 1 {
		t.Fatalf("drag out of range: %v", impacts[KeySatelliteDrag])
	}
	if impacts[KeyTelecomDegradation] > 100 {
		t.Fatalf("telecom above 100: %v", impacts[KeyTelecomDegradation])
	}
}

func TestConfidence(t *testing.T) {
	e := New(nil)
	cases := []struct {
		in   Inputs
		want float64
	}{
		{Inputs{}, 0.5},
		{Inputs{Bz: -11}, 0.6},
		{Inputs{Bz: -16}, 0.7},
		{Inputs{CMESpeed: 600}, 0.6},
		{Inputs{CMESpeed: 900}, 0.7},
		{Inputs{FlareClass: "X1"}, 0.7},
		{Inputs{Bz: -20, CMESpeed: 1200, FlareClass: "X5"}, 1.0}, // 1.1 capped
	}
	for i, c := range cases {
		if got := e.Confidence(c.in); !almostEqual(got, c.want) {
			t.Fatalf("case %d: expected %v, got %v", i, c.want, got)
		}
	}
}

func TestEvaluationLogBounded(t *testing.T) {
	e := New(nil)
	for i := 0; i < maxLogEntries+50; i++ {
		e.PredictImpacts(QuietDefaults())
	}
	if got := e.EvaluationCount(); got != maxLogEntries {
		t.Fatalf("expected log capped at %d, got %d", maxLogEntries, got)
	}
}
