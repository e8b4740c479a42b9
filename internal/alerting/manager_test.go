package alerting

import (
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/domain/models"
	"AstroSense/internal/services/sectors"
)

var testTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestManager() (*Manager, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(testTime)
	return NewManager(clock, nil), clock
}

func TestFlareSeverityGrades(t *testing.T) {
	cases := []struct {
		class string
		want  models.AlertSeverity
	}{
		{"X10.2", models.SeverityCritical},
		{"X12", models.SeverityCritical},
		{"X9.9", models.SeverityHigh},
		{"X1.0", models.SeverityHigh},
		{"M5.0", models.SeverityWarning},
		{"C2.3", models.SeverityModerate},
		{"B1.0", models.SeverityLow},
		{"", models.SeverityLow},
	}
	for _, c := range cases {
		if got := flareSeverity(c.class); got != c.want {
			t.Fatalf("class %q: expected %v, got %v", c.class, c.want, got)
		}
	}
}

func TestGenerateFlashAlertLifetime(t *testing.T) {
	m, _ := newTestManager()
	a := m.GenerateFlashAlert("X2.0", testTime, sectors.Conditions{KpIndex: 6})

	if a.Kind != models.AlertFlash {
		t.Fatalf("expected flash kind")
	}
	if !a.ExpiresAt.Equal(a.CreatedAt.Add(2 * time.Hour)) {
		t.Fatalf("lifetime must be exactly 2h")
	}
	if a.Flash == nil || a.Flash.FlareClass != "X2.0" {
		t.Fatalf("flash meta missing")
	}
	// X flare + kp>=5 touches all five sectors
	if len(a.AffectedSectors) != 5 {
		t.Fatalf("expected 5 affected sectors, got %v", a.AffectedSectors)
	}
}

func TestExpiryBoundaryInclusive(t *testing.T) {
	m, clock := newTestManager()
	m.GenerateFlashAlert("M1.0", testTime, sectors.Conditions{})

	clock.Advance(2*time.Hour - time.Nanosecond)
	if n := m.ExpireOldAlerts(); n != 0 {
		t.Fatalf("alert must still be active just before the boundary")
	}

	clock.Advance(time.Nanosecond)
	if n := m.ExpireOldAlerts(); n != 1 {
		t.Fatalf("alert must expire at exactly CreatedAt+2h")
	}

	if len(m.ActiveAlerts(false)) != 0 {
		t.Fatalf("expired alert still active")
	}
	if len(m.History()) != 1 {
		t.Fatalf("expired alert missing from history")
	}
}

func TestActiveAlertsPrioritized(t *testing.T) {
	m, clock := newTestManager()
	m.GenerateFlashAlert("C1.0", testTime, sectors.Conditions{}) // MODERATE
	clock.Advance(time.Minute)
	m.GenerateFlashAlert("X1.0", testTime, sectors.Conditions{}) // HIGH
	clock.Advance(time.Minute)
	m.GenerateFlashAlert("M1.0", testTime, sectors.Conditions{}) // WARNING

	alerts := m.ActiveAlerts(true)
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(alerts))
	}
	if alerts[0].Severity != models.SeverityHigh {
		t.Fatalf("highest severity must come first, got %v", alerts[0].Severity)
	}
	if alerts[1].Severity != models.SeverityWarning || alerts[2].Severity != models.SeverityModerate {
		t.Fatalf("unexpected order: %v %v", alerts[1].Severity, alerts[2].Severity)
	}
}

func TestArrivalConfidenceSteps(t *testing.T) {
	cases := []struct {
		speed float64
		want  float64
	}{
		{1200, 85}, {800, 75}, {600, 65}, {400, 50},
	}
	for _, c := range cases {
		_, _, conf := arrivalConfidence(models.CMEEvent{Speed: c.speed, DetectionTime: testTime}, testTime)
		if conf != c.want {
			t.Fatalf("speed %v: expected %v, got %v", c.speed, c.want, conf)
		}
	}
}

func TestArrivalWindowPlusMinusTwentyPercent(t *testing.T) {
	lower, upper, _ := arrivalConfidence(models.CMEEvent{Speed: 1000, DetectionTime: testTime}, testTime)
	travel := 150_000_000.0 / 1000.0 / 3600.0
	nominal := testTime.Add(time.Duration(travel * float64(time.Hour)))
	unc := time.Duration(travel * 0.2 * float64(time.Hour))
	if !lower.Equal(nominal.Add(-unc)) || !upper.Equal(nominal.Add(unc)) {
		t.Fatalf("window %v..%v not centered on %v", lower, upper, nominal)
	}
}

func TestPredictKpIndexSteps(t *testing.T) {
	// 70/30 blend with kp 0 means output = step*0.7
	cases := []struct {
		speed float64
		step  float64
	}{
		{2000, 8}, {1200, 7}, {800, 6}, {600, 5}, {300, 4},
	}
	for _, c := range cases {
		got := predictKpIndex(c.speed, sectors.Conditions{})
		if math.Abs(got-c.step*0.7) > 1e-9 {
			t.Fatalf("speed %v: expected %v, got %v", c.speed, c.step*0.7, got)
		}
	}

	// southward Bz bumps the step before blending, capped at 9
	got := predictKpIndex(2000, sectors.Conditions{Bz: -15, KpIndex: 9})
	want := 9*0.7 + 9*0.3
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestForecastSeverityRules(t *testing.T) {
	highRiskPreds := models.SectorPredictions{
		Aviation:  models.SectorPrediction{RiskValue: 90},
		Telecom:   models.SectorPrediction{RiskValue: 80},
		GPS:       models.SectorPrediction{RiskValue: 300},
		PowerGrid: models.SectorPrediction{RiskValue: 5},
	}
	if got := forecastSeverity(9, models.SectorPredictions{}); got != models.SeverityCritical {
		t.Fatalf("kp>=8 must be critical, got %v", got)
	}
	if got := forecastSeverity(5, highRiskPreds); got != models.SeverityCritical {
		t.Fatalf("3 high-risk sectors must be critical, got %v", got)
	}
	twoRisk := highRiskPreds
	twoRisk.GPS.RiskValue = 100
	if got := forecastSeverity(5, twoRisk); got != models.SeverityHigh {
		t.Fatalf("2 high-risk sectors must be high, got %v", got)
	}
	if got := forecastSeverity(6.5, models.SectorPredictions{}); got != models.SeverityWarning {
		t.Fatalf("kp>=6 must be warning, got %v", got)
	}
	if got := forecastSeverity(4.0, models.SectorPredictions{}); got != models.SeverityModerate {
		t.Fatalf("kp>=4 must be moderate, got %v", got)
	}
	if got := forecastSeverity(2.0, models.SectorPredictions{}); got != models.SeverityLow {
		t.Fatalf("quiet must be low, got %v", got)
	}
}

func TestCreateImpactForecastMergesNearDuplicates(t *testing.T) {
	m, clock := newTestManager()
	cme := models.CMEEvent{Speed: 900, DetectionTime: testTime}
	preds := models.SectorPredictions{Aviation: models.SectorPrediction{RiskValue: 50}}

	first := m.CreateImpactForecast(cme, sectors.Conditions{}, preds, "global")
	clock.Advance(10 * time.Minute)

	// same 5-minute detection bucket and location: must merge
	second := m.CreateImpactForecast(cme, sectors.Conditions{}, preds, "global")
	if second.ID != first.ID {
		t.Fatalf("near-duplicate forecast must merge into the existing alert")
	}
	if len(m.ActiveAlerts(false)) != 1 {
		t.Fatalf("merged forecast must not add a second active alert")
	}
	// merged alert lives a full lifetime from the merge
	if !second.ExpiresAt.Equal(clock.Now().UTC().Add(2 * time.Hour)) {
		t.Fatalf("merge must refresh the lifetime")
	}
}

func TestCreateImpactForecastDistinctBucketsDoNotMerge(t *testing.T) {
	m, _ := newTestManager()
	preds := models.SectorPredictions{}

	a := m.CreateImpactForecast(models.CMEEvent{Speed: 900, DetectionTime: testTime}, sectors.Conditions{}, preds, "global")
	b := m.CreateImpactForecast(models.CMEEvent{Speed: 900, DetectionTime: testTime.Add(6 * time.Minute)}, sectors.Conditions{}, preds, "global")
	if a.ID == b.ID {
		t.Fatalf("distinct detection buckets must not merge")
	}

	c := m.CreateImpactForecast(models.CMEEvent{Speed: 900, DetectionTime: testTime}, sectors.Conditions{}, preds, "polar")
	if c.ID == a.ID {
		t.Fatalf("distinct locations must not merge")
	}
}

func TestMergeWindowExpires(t *testing.T) {
	m, clock := newTestManager()
	cme := models.CMEEvent{Speed: 900, DetectionTime: testTime}
	preds := models.SectorPredictions{}

	first := m.CreateImpactForecast(cme, sectors.Conditions{}, preds, "global")
	clock.Advance(31 * time.Minute)
	second := m.CreateImpactForecast(cme, sectors.Conditions{}, preds, "global")
	if second.ID == first.ID {
		t.Fatalf("forecasts past the 30-minute window must not merge")
	}
}

func TestMergeAveragesConfidenceAndWidensWindow(t *testing.T) {
	m, clock := newTestManager()
	preds := models.SectorPredictions{}

	slow := m.CreateImpactForecast(models.CMEEvent{Speed: 600, DetectionTime: testTime}, sectors.Conditions{}, preds, "global")
	firstConf := slow.Forecast.ConfidencePercent // 65
	firstLower := slow.Forecast.ArrivalLower

	clock.Advance(time.Minute)
	merged := m.CreateImpactForecast(models.CMEEvent{Speed: 1200, DetectionTime: testTime}, sectors.Conditions{}, preds, "global")
	wantConf := (firstConf + 85) / 2
	if math.Abs(merged.Forecast.ConfidencePercent-wantConf) > 1e-9 {
		t.Fatalf("expected averaged confidence %v, got %v", wantConf, merged.Forecast.ConfidencePercent)
	}
	// the union takes the earlier lower bound from the faster CME
	if merged.Forecast.ArrivalLower.After(firstLower) {
		t.Fatalf("merge must keep the union of arrival windows")
	}
}

func TestForecastAffectedSectorThresholds(t *testing.T) {
	preds := models.SectorPredictions{
		Aviation:  models.SectorPrediction{RiskValue: 31},
		Telecom:   models.SectorPrediction{RiskValue: 21},
		GPS:       models.SectorPrediction{RiskValue: 31},
		PowerGrid: models.SectorPrediction{RiskValue: 5},
		Satellite: models.SectorPrediction{RiskValue: 5},
	}
	if got := forecastAffectedSectors(preds); len(got) != 5 {
		t.Fatalf("expected all 5 sectors, got %v", got)
	}
	quiet := models.SectorPredictions{
		Aviation:  models.SectorPrediction{RiskValue: 30},
		Telecom:   models.SectorPrediction{RiskValue: 20},
		GPS:       models.SectorPrediction{RiskValue: 30},
		PowerGrid: models.SectorPrediction{RiskValue: 4},
		Satellite: models.SectorPrediction{RiskValue: 4},
	}
	if got := forecastAffectedSectors(quiet); len(got) != 0 {
		t.Fatalf("thresholds are strict/inclusive per sector, got %v", got)
	}
}
