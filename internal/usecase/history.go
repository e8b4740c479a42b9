package usecase

import (
	"context"
	"fmt"
	"time"

	"AstroSense/internal/domain/models"
	domrepo "AstroSense/internal/domain/repository"
)

// HistoryUseCase provides business logic for retrieving stored measurements.
type HistoryUseCase struct {
	store domrepo.Storage
}

func NewHistoryUseCase(store domrepo.Storage) *HistoryUseCase {
	return &HistoryUseCase{store: store}
}

type GetHistoryParams struct {
	From  time.Time
	To    time.Time
	Limit int
}

type GetHistoryResult struct {
	From         time.Time             `json:"from"`
	To           time.Time             `json:"to"`
	Count        int                   `json:"count"`
	Measurements []*models.Measurement `json:"measurements"`
}

func (uc *HistoryUseCase) GetMeasurements(ctx context.Context, p GetHistoryParams) (*GetHistoryResult, error) {
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = 10000
	}
	if p.Limit > 50000 {
		p.Limit = 50000
	}

	ms, err := uc.store.QueryMeasurements(ctx, p.From, p.To, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("get measurements: %w", err)
	}

	return &GetHistoryResult{
		From:         p.From,
		To:           p.To,
		Count:        len(ms),
		Measurements: ms,
	}, nil
}
