package recorder

import (
	"context"

	"SwingSentinel/internal/model"
)

// NoopRecorder is a no-op implementation used when no database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordCandle(_ context.Context, _ *CandleRecord) error    { return nil }
func (n *NoopRecorder) RecordAlert(_ context.Context, _ *model.AlertEvent) error { return nil }
func (n *NoopRecorder) LoadRecent(_ context.Context, _ model.InstrumentKey, _ int) ([]model.Candle, error) {
	return nil, nil
}
func (n *NoopRecorder) Close() error { return nil }
