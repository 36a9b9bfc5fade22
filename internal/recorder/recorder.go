package recorder

import (
	"context"
	"time"

	"SwingSentinel/internal/model"
)

// CandleRecord is one accepted bar as it is mirrored to storage.
type CandleRecord struct {
	Symbol    string    `db:"symbol" json:"symbol"`
	Timeframe string    `db:"timeframe" json:"timeframe"`
	BarTime   time.Time `db:"bar_time" json:"bar_time"`
	High      float64   `db:"high" json:"high"`
	Low       float64   `db:"low" json:"low"`
	Close     float64   `db:"close" json:"close"`
}

// NewCandleRecord builds the storage row for c under key.
func NewCandleRecord(key model.InstrumentKey, c model.Candle) *CandleRecord {
	return &CandleRecord{
		Symbol:    key.Symbol,
		Timeframe: key.Timeframe.String(),
		BarTime:   c.Time.UTC(),
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
	}
}

// Candle converts the record back to a model candle.
func (r *CandleRecord) Candle() model.Candle {
	return model.Candle{Time: r.BarTime.UTC(), High: r.High, Low: r.Low, Close: r.Close}
}

// Recorder persists accepted candles and emitted alerts for analysis and
// warm start.
type Recorder interface {
	RecordCandle(ctx context.Context, rec *CandleRecord) error
	RecordAlert(ctx context.Context, evt *model.AlertEvent) error
	// LoadRecent returns up to limit of the newest candles for key, oldest first.
	LoadRecent(ctx context.Context, key model.InstrumentKey, limit int) ([]model.Candle, error)
	Close() error
}
