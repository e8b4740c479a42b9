package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/domain/models"
	"AstroSense/internal/services/sectors"
)

var testStart = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	clock := clockwork.NewFakeClockAt(testStart)
	preds := Predictors{
		Aviation:  sectors.NewAviationPredictor(clock, nil),
		Telecom:   sectors.NewTelecomPredictor(clock, nil),
		GPS:       sectors.NewGPSPredictor(nil),
		PowerGrid: sectors.NewPowerGridPredictor(clock, nil),
		Satellite: sectors.NewSatellitePredictor(clock, nil),
		Composite: sectors.NewCompositeCalculator(clock, nil),
	}
	return NewEngine(preds, clock, nil)
}

func TestBuildTimelineChronological(t *testing.T) {
	e := newTestEngine()
	cmes := []models.CMEEvent{
		{DetectionTime: testStart.Add(5 * time.Hour), Speed: 900},
		{DetectionTime: testStart.Add(time.Hour), Speed: 700},
	}
	flares := []models.FlareEvent{
		{DetectionTime: testStart.Add(2 * time.Hour), Class: "M5.0"},
	}

	timeline := e.BuildTimeline(testStart, 6, cmes, flares)
	for i := 1; i < len(timeline); i++ {
		if timeline[i].Timestamp.Before(timeline[i-1].Timestamp) {
			t.Fatalf("timeline out of order at index %d", i)
		}
	}

	// 6 hours at 30-minute cadence, endpoints inclusive, plus injected events
	if want := 13 + 3; len(timeline) != want {
		t.Fatalf("expected %d events, got %d", want, len(timeline))
	}
}

func TestBuildTimelineZeroDetectionFallsToStart(t *testing.T) {
	e := newTestEngine()
	timeline := e.BuildTimeline(testStart, 1, []models.CMEEvent{{Speed: 900}}, nil)

	found := false
	for _, ev := range timeline {
		if ev.Type == models.EventCME {
			found = true
			if !ev.Timestamp.Equal(testStart) {
				t.Fatalf("zero detection time must fall back to start, got %v", ev.Timestamp)
			}
			if ev.Data.CMESpeed != 900 {
				t.Fatalf("cme speed not carried into event data")
			}
		}
	}
	if !found {
		t.Fatalf("cme event missing from timeline")
	}
}

func TestReplayAttachesImpacts(t *testing.T) {
	e := newTestEngine()
	timeline := e.BuildTimeline(testStart, 6, nil, []models.FlareEvent{
		{DetectionTime: testStart.Add(time.Hour), Class: "X1.0"},
	})

	processed, err := e.Replay(context.Background(), timeline, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != len(timeline) {
		t.Fatalf("expected %d processed, got %d", len(timeline), processed)
	}

	for _, ev := range timeline {
		if ev.Type == models.EventMeasurement {
			if ev.Predicted == nil || ev.Actual == nil {
				t.Fatalf("measurement event missing impacts at %v", ev.Timestamp)
			}
		} else if ev.Predicted != nil || ev.Actual != nil {
			t.Fatalf("non-measurement event must not carry impacts")
		}
	}

	status := e.ReplayStatus()
	if status.IsPlaying {
		t.Fatalf("replay must stop after the last event")
	}
	if status.CurrentPosition != 0 {
		t.Fatalf("finished replay must reset position, got %d", status.CurrentPosition)
	}
	if !status.SessionActive {
		t.Fatalf("session stays active until Stop")
	}
}

func TestReplayHonorsCancellation(t *testing.T) {
	e := newTestEngine()
	timeline := e.BuildTimeline(testStart, 6, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	processed, err := e.Replay(ctx, timeline, 1.0)
	if err == nil {
		t.Fatalf("expected context error")
	}
	if processed != 0 {
		t.Fatalf("cancelled replay must not process events, got %d", processed)
	}
}

func TestSpeedClamped(t *testing.T) {
	e := newTestEngine()
	if got := e.SetSpeed(100); got != maxReplaySpeed {
		t.Fatalf("expected clamp to %v, got %v", maxReplaySpeed, got)
	}
	if got := e.SetSpeed(0.001); got != minReplaySpeed {
		t.Fatalf("expected clamp to %v, got %v", minReplaySpeed, got)
	}
	if got := e.SetSpeed(2.5); got != 2.5 {
		t.Fatalf("in-range speed must pass through, got %v", got)
	}
}

func TestPauseResumeStop(t *testing.T) {
	e := newTestEngine()

	e.Resume()
	if !e.ReplayStatus().IsPlaying {
		t.Fatalf("resume must mark playing")
	}
	e.Pause()
	if e.ReplayStatus().IsPlaying {
		t.Fatalf("pause must stop playing")
	}
	e.Stop()
	status := e.ReplayStatus()
	if status.SessionActive || status.IsPlaying || status.CurrentPosition != 0 {
		t.Fatalf("stop must reset the session: %+v", status)
	}
}

func TestAccuracyReportRequiresScoredEvents(t *testing.T) {
	e := newTestEngine()
	timeline := []models.BacktestEvent{
		{Timestamp: testStart, Type: models.EventMeasurement},
		{Timestamp: testStart, Type: models.EventFlare},
	}
	if _, err := e.AccuracyReport(timeline); err == nil {
		t.Fatalf("expected error when nothing is scored")
	}
}

func scoredEvent(ts time.Time, predicted, actual models.ImpactSet) models.BacktestEvent {
	return models.BacktestEvent{
		Timestamp: ts,
		Type:      models.EventMeasurement,
		Data:      models.Measurement{Timestamp: ts},
		Predicted: &predicted,
		Actual:    &actual,
	}
}

func TestAccuracyReportPerfectPredictions(t *testing.T) {
	e := newTestEngine()
	var timeline []models.BacktestEvent
	for i := 0; i < 5; i++ {
		set := models.ImpactSet{
			Aviation:       float64(10 * (i + 1)),
			Telecom:        float64(5 * (i + 1)),
			GPS:            float64(20 * (i + 1)),
			PowerGrid:      float64(i + 1),
			Satellite:      float64(i + 1),
			CompositeScore: float64(8 * (i + 1)),
		}
		timeline = append(timeline, scoredEvent(testStart.Add(time.Duration(i)*time.Hour), set, set))
	}

	report, err := e.AccuracyReport(timeline)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.EventCount != 5 {
		t.Fatalf("expected 5 scored events, got %d", report.EventCount)
	}
	if report.OverallMAE != 0 {
		t.Fatalf("perfect predictions must have zero MAE, got %v", report.OverallMAE)
	}
	if math.Abs(report.OverallCorr-1.0) > 1e-9 {
		t.Fatalf("identical varying series must correlate 1.0, got %v", report.OverallCorr)
	}
	if report.Grade != "A" {
		t.Fatalf("expected grade A, got %q", report.Grade)
	}
	if len(report.Recommendations) != 1 {
		t.Fatalf("perfect run should only confirm accuracy, got %v", report.Recommendations)
	}
	if !report.PeriodStart.Equal(testStart) || !report.PeriodEnd.Equal(testStart.Add(4*time.Hour)) {
		t.Fatalf("report period wrong: %v..%v", report.PeriodStart, report.PeriodEnd)
	}
}

func TestSeriesAccuracyMAPEFloor(t *testing.T) {
	// actual 0 divides by the 0.1 floor instead of zero
	got := seriesAccuracy([]float64{1}, []float64{0})
	if got.MAPE != 1000 {
		t.Fatalf("expected MAPE 1000 with floored denominator, got %v", got.MAPE)
	}
	if got.MAE != 1 || got.RMSE != 1 {
		t.Fatalf("single-point errors wrong: mae %v rmse %v", got.MAE, got.RMSE)
	}
	if got.Correlation != 0 {
		t.Fatalf("zero-variance series must report zero correlation, got %v", got.Correlation)
	}
}

func TestAccuracyGradeBands(t *testing.T) {
	cases := []struct {
		mae, corr float64
		want      string
	}{
		{5, 0.9, "A"},
		{15, 0.7, "B"},
		{25, 0.5, "C"},
		{40, 0.3, "D"},
		{60, 0.1, "F"},
		{5, 0.1, "F"},  // low error but no correlation
		{60, 0.9, "F"}, // correlated but way off
	}
	for _, c := range cases {
		if got := accuracyGrade(c.mae, c.corr); got != c.want {
			t.Fatalf("mae %v corr %v: expected %q, got %q", c.mae, c.corr, got, c.want)
		}
	}
}

func TestRecommendationsFlagWeakSectors(t *testing.T) {
	metrics := map[string]models.SectorAccuracy{
		"aviation":   {MAE: 35, Correlation: 0.9},
		"telecom":    {MAE: 5, Correlation: 0.1},
		"gps":        {MAE: 5, Correlation: 0.9},
		"power_grid": {MAE: 5, Correlation: 0.9},
		"satellite":  {MAE: 5, Correlation: 0.9},
		"composite":  {MAE: 5, Correlation: 0.9},
	}
	recs := recommendations(metrics)
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %v", recs)
	}
}
