package cache

import (
	"context"
	"time"

	"ferremax/backend/internal/domain"
)

// SummaryCache caches the computed daily summary per calendar day. Writes to
// that day's sales or cash cut invalidate the entry.
type SummaryCache interface {
	Get(ctx context.Context, date string) (*domain.DailySummary, bool, error)
	Set(ctx context.Context, date string, value *domain.DailySummary, ttl time.Duration) error
	Invalidate(ctx context.Context, date string) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*domain.DailySummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ *domain.DailySummary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
