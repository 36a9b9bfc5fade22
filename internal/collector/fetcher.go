package collector

import (
	"context"

	"SwingSentinel/internal/model"
)

// Fetcher returns the latest bar reading for one instrument and timeframe.
type Fetcher interface {
	FetchLatest(ctx context.Context, inst model.Instrument, tf model.Timeframe) (model.Candle, error)
	Name() string
}
