package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/backtest"
	"AstroSense/internal/domain/models"
	applogger "AstroSense/pkg/logger"
)

// HistoricalEvents fetches archived CME and flare detections for a window.
type HistoricalEvents interface {
	FetchCMEEventsRange(ctx context.Context, start, end time.Time) ([]models.CMEEvent, error)
	FetchSolarFlaresRange(ctx context.Context, start, end time.Time) ([]models.FlareEvent, error)
}

// BacktestUseCase drives the replay engine from the API: run a historical
// event, control playback, report status.
type BacktestUseCase struct {
	engine *backtest.Engine
	events HistoricalEvents
	clock  clockwork.Clock
	l      *applogger.Logger
}

func NewBacktestUseCase(engine *backtest.Engine, events HistoricalEvents, clock clockwork.Clock, l *applogger.Logger) *BacktestUseCase {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &BacktestUseCase{engine: engine, events: events, clock: clock, l: l}
}

// Run replays one historical event and scores the outcome. Missing archive
// data degrades to a purely synthetic timeline rather than failing.
func (uc *BacktestUseCase) Run(ctx context.Context, req models.BacktestRequest) (*models.BacktestResponse, error) {
	start, err := time.Parse("2006-01-02", req.EventDate)
	if err != nil {
		return nil, fmt.Errorf("invalid event date: %w", err)
	}
	end := start.Add(time.Duration(req.Hours) * time.Hour)

	var cmes []models.CMEEvent
	var flares []models.FlareEvent
	if uc.events != nil {
		if cmes, err = uc.events.FetchCMEEventsRange(ctx, start, end); err != nil {
			if uc.l != nil {
				uc.l.Warn("historical cme fetch failed, synthetic timeline only", applogger.Error(err))
			}
			cmes = nil
		}
		if flares, err = uc.events.FetchSolarFlaresRange(ctx, start, end); err != nil {
			if uc.l != nil {
				uc.l.Warn("historical flare fetch failed, synthetic timeline only", applogger.Error(err))
			}
			flares = nil
		}
	}

	timeline := uc.engine.BuildTimeline(start, req.Hours, cmes, flares)
	if _, err := uc.engine.Replay(ctx, timeline, req.Speed); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	report, err := uc.engine.AccuracyReport(timeline)
	if err != nil {
		return nil, fmt.Errorf("accuracy report: %w", err)
	}

	if uc.l != nil {
		uc.l.Info("backtest completed",
			applogger.String("event", req.EventName),
			applogger.String("grade", report.Grade))
	}
	return &models.BacktestResponse{
		EventName: req.EventName,
		EventDate: start,
		Timeline:  timeline,
		Accuracy:  report,
		Status:    uc.engine.ReplayStatus(),
	}, nil
}

// Control applies one playback action to the active replay session.
func (uc *BacktestUseCase) Control(req models.BacktestControlRequest) (*models.BacktestControlResponse, error) {
	var message string
	switch req.Action {
	case "play":
		uc.engine.Resume()
		message = "Replay resumed"
	case "pause":
		uc.engine.Pause()
		message = "Replay paused"
	case "stop":
		uc.engine.Stop()
		message = "Replay stopped"
	case "speed":
		applied := uc.engine.SetSpeed(req.Speed)
		message = fmt.Sprintf("Replay speed set to %.1fx", applied)
	default:
		return nil, fmt.Errorf("unknown action: %s", req.Action)
	}

	return &models.BacktestControlResponse{
		Action:    req.Action,
		Message:   message,
		Status:    uc.engine.ReplayStatus(),
		Timestamp: uc.clock.Now().UTC(),
	}, nil
}

// Status reports replay state and whether live mode can be re-entered.
func (uc *BacktestUseCase) Status() *models.BacktestStatusResponse {
	status := uc.engine.ReplayStatus()
	return &models.BacktestStatusResponse{
		Status:            status,
		LiveModeAvailable: !status.SessionActive,
		Timestamp:         uc.clock.Now().UTC(),
	}
}
