package cache

import (
	"context"
	"time"

	"lapakku/backend/internal/domain"
)

// ReportCache keeps the last successfully computed report per user and
// range so a failed refresh can fall back to known-good figures.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.ReportResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.ReportResponse, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.ReportResponse, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.ReportResponse, _ time.Duration) error {
	return nil
}
