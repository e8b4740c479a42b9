package backtest

import (
	"fmt"
	"math"

	"AstroSense/internal/domain/models"
	applogger "AstroSense/pkg/logger"
)

var sectorNames = []string{"aviation", "telecom", "gps", "power_grid", "satellite", "composite"}

func impactValue(set *models.ImpactSet, sector string) float64 {
	switch sector {
	case "aviation":
		return set.Aviation
	case "telecom":
		return set.Telecom
	case "gps":
		return set.GPS
	case "power_grid":
		return set.PowerGrid
	case "satellite":
		return set.Satellite
	default:
		return set.CompositeScore
	}
}

// AccuracyReport scores a replayed timeline: per-sector MAE, RMSE, MAPE and
// Pearson correlation, an overall grade, and retraining recommendations.
func (e *Engine) AccuracyReport(timeline []models.BacktestEvent) (models.AccuracyReport, error) {
	var scored []models.BacktestEvent
	for _, ev := range timeline {
		if ev.Type == models.EventMeasurement && ev.Predicted != nil && ev.Actual != nil {
			scored = append(scored, ev)
		}
	}
	if len(scored) == 0 {
		return models.AccuracyReport{}, fmt.Errorf("no events with both predictions and actuals")
	}

	sectorMetrics := make(map[string]models.SectorAccuracy, len(sectorNames))
	for _, sector := range sectorNames {
		predicted := make([]float64, 0, len(scored))
		actual := make([]float64, 0, len(scored))
		for _, ev := range scored {
			predicted = append(predicted, impactValue(ev.Predicted, sector))
			actual = append(actual, impactValue(ev.Actual, sector))
		}
		sectorMetrics[sector] = seriesAccuracy(predicted, actual)
	}

	var overallMAE, overallCorr float64
	for _, m := range sectorMetrics {
		overallMAE += m.MAE
		overallCorr += m.Correlation
	}
	overallMAE /= float64(len(sectorMetrics))
	overallCorr /= float64(len(sectorMetrics))

	report := models.AccuracyReport{
		EventCount:      len(scored),
		PeriodStart:     scored[0].Timestamp,
		PeriodEnd:       scored[len(scored)-1].Timestamp,
		SectorMetrics:   sectorMetrics,
		OverallMAE:      overallMAE,
		OverallCorr:     overallCorr,
		Grade:           accuracyGrade(overallMAE, overallCorr),
		Recommendations: recommendations(sectorMetrics),
	}

	if e.l != nil {
		e.l.Info("accuracy report generated",
			applogger.Any("overall_mae", overallMAE),
			applogger.Any("overall_correlation", overallCorr),
			applogger.String("grade", report.Grade))
	}
	return report, nil
}

// seriesAccuracy computes the four error metrics for one predicted/actual
// pair of series. MAPE guards a zero actual with a 0.1 floor.
func seriesAccuracy(predicted, actual []float64) models.SectorAccuracy {
	n := float64(len(predicted))

	var mae, sqSum, mape float64
	for i := range predicted {
		diff := predicted[i] - actual[i]
		mae += math.Abs(diff)
		sqSum += diff * diff
		mape += math.Abs(diff / math.Max(actual[i], 0.1))
	}
	mae /= n
	rmse := math.Sqrt(sqSum / n)
	mape = mape / n * 100

	var meanPred, meanActual float64
	for i := range predicted {
		meanPred += predicted[i]
		meanActual += actual[i]
	}
	meanPred /= n
	meanActual /= n

	var numerator, denomPred, denomActual float64
	for i := range predicted {
		dp := predicted[i] - meanPred
		da := actual[i] - meanActual
		numerator += dp * da
		denomPred += dp * dp
		denomActual += da * da
	}
	var correlation float64
	if denom := math.Sqrt(denomPred) * math.Sqrt(denomActual); denom > 0 {
		correlation = numerator / denom
	}

	return models.SectorAccuracy{
		MAE:         mae,
		RMSE:        rmse,
		MAPE:        mape,
		Correlation: correlation,
		SampleCount: len(predicted),
	}
}

func accuracyGrade(mae, correlation float64) string {
	switch {
	case correlation > 0.8 && mae < 10:
		return "A"
	case correlation > 0.6 && mae < 20:
		return "B"
	case correlation > 0.4 && mae < 30:
		return "C"
	case correlation > 0.2 && mae < 50:
		return "D"
	default:
		return "F"
	}
}

func recommendations(metrics map[string]models.SectorAccuracy) []string {
	var recs []string
	for _, sector := range sectorNames {
		m := metrics[sector]
		if m.MAE > 30 {
			recs = append(recs, fmt.Sprintf(
				"High prediction error in %s sector (MAE: %.1f) - consider model retraining", sector, m.MAE))
		}
		if m.Correlation < 0.3 {
			recs = append(recs, fmt.Sprintf(
				"Low correlation in %s sector (%.2f) - review feature engineering", sector, m.Correlation))
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "Overall prediction accuracy is satisfactory")
	}
	return recs
}
