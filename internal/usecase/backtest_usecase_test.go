package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/backtest"
	"AstroSense/internal/domain/models"
	"AstroSense/internal/services/sectors"
)

type stubEvents struct {
	cmes   []models.CMEEvent
	flares []models.FlareEvent
	fail   bool
}

func (s *stubEvents) FetchCMEEventsRange(ctx context.Context, start, end time.Time) ([]models.CMEEvent, error) {
	if s.fail {
		return nil, fmt.Errorf("archive unavailable")
	}
	return s.cmes, nil
}

func (s *stubEvents) FetchSolarFlaresRange(ctx context.Context, start, end time.Time) ([]models.FlareEvent, error) {
	if s.fail {
		return nil, fmt.Errorf("archive unavailable")
	}
	return s.flares, nil
}

func newBacktestUseCase(events HistoricalEvents) *BacktestUseCase {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	engine := backtest.NewEngine(backtest.Predictors{
		Aviation:  sectors.NewAviationPredictor(clock, nil),
		Telecom:   sectors.NewTelecomPredictor(clock, nil),
		GPS:       sectors.NewGPSPredictor(nil),
		PowerGrid: sectors.NewPowerGridPredictor(clock, nil),
		Satellite: sectors.NewSatellitePredictor(clock, nil),
		Composite: sectors.NewCompositeCalculator(clock, nil),
	}, clock, nil)
	return NewBacktestUseCase(engine, events, clock, nil)
}

func TestBacktestRunProducesScoredTimeline(t *testing.T) {
	uc := newBacktestUseCase(&stubEvents{
		cmes: []models.CMEEvent{{DetectionTime: time.Date(2024, 5, 10, 6, 0, 0, 0, time.UTC), Speed: 1200}},
	})

	resp, err := uc.Run(context.Background(), models.BacktestRequest{
		EventDate: "2024-05-10",
		EventName: "Gannon Storm",
		Hours:     12,
		Speed:     1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.EventName != "Gannon Storm" {
		t.Fatalf("event name lost: %q", resp.EventName)
	}
	if len(resp.Timeline) == 0 {
		t.Fatalf("timeline empty")
	}
	if resp.Accuracy.EventCount == 0 {
		t.Fatalf("accuracy report has no scored events")
	}
	if resp.Accuracy.Grade == "" {
		t.Fatalf("report missing grade")
	}
}

func TestBacktestRunDegradesWithoutArchive(t *testing.T) {
	uc := newBacktestUseCase(&stubEvents{fail: true})

	resp, err := uc.Run(context.Background(), models.BacktestRequest{
		EventDate: "2024-05-10",
		Hours:     6,
		Speed:     1,
	})
	if err != nil {
		t.Fatalf("archive failure must degrade to synthetic timeline: %v", err)
	}
	for _, ev := range resp.Timeline {
		if ev.Type != models.EventMeasurement {
			t.Fatalf("synthetic timeline must contain measurements only, got %v", ev.Type)
		}
	}
}

func TestBacktestRunRejectsBadDate(t *testing.T) {
	uc := newBacktestUseCase(nil)
	if _, err := uc.Run(context.Background(), models.BacktestRequest{EventDate: "May 10"}); err == nil {
		t.Fatalf("unparseable date must fail")
	}
}

func TestBacktestControlActions(t *testing.T) {
	uc := newBacktestUseCase(nil)

	resp, err := uc.Control(models.BacktestControlRequest{Action: "speed", Speed: 2.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status.ReplaySpeed != 2.5 {
		t.Fatalf("speed not applied, got %v", resp.Status.ReplaySpeed)
	}

	if _, err := uc.Control(models.BacktestControlRequest{Action: "rewind"}); err == nil {
		t.Fatalf("unknown action must fail")
	}

	if _, err := uc.Control(models.BacktestControlRequest{Action: "pause"}); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	status := uc.Status()
	if status.Status.IsPlaying {
		t.Fatalf("pause must stop playback")
	}
	if !status.LiveModeAvailable {
		t.Fatalf("no active session, live mode must be available")
	}
}
