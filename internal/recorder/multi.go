package recorder

import (
	"context"
	"errors"

	"SwingSentinel/internal/model"
)

// Multi fans writes out to every backend. Reads come from the first
// backend that has data.
type Multi []Recorder

func (m Multi) RecordCandle(ctx context.Context, rec *CandleRecord) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordCandle(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) RecordAlert(ctx context.Context, evt *model.AlertEvent) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordAlert(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) LoadRecent(ctx context.Context, key model.InstrumentKey, limit int) ([]model.Candle, error) {
	var errs []error
	for _, r := range m {
		cs, err := r.LoadRecent(ctx, key, limit)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(cs) > 0 {
			return cs, nil
		}
	}
	return nil, errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
