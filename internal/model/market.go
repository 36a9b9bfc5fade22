package model

import (
	"fmt"
	"strings"
	"time"
)

// Candle is one observed bar. Time is the bar identity reported or derived
// from the provider, not the arrival time.
type Candle struct {
	Time  time.Time
	High  float64
	Low   float64
	Close float64
}

// Timeframe is the bar aggregation period being tracked.
type Timeframe int

const (
	TimeframeShort Timeframe = iota + 1 // 4H
	TimeframeLong                       // 1D
)

// Timeframes lists every supported timeframe in display order.
var Timeframes = []Timeframe{TimeframeShort, TimeframeLong}

func (tf Timeframe) String() string {
	switch tf {
	case TimeframeShort:
		return "4H"
	case TimeframeLong:
		return "1D"
	default:
		return fmt.Sprintf("Timeframe(%d)", int(tf))
	}
}

// Period returns the bar length of the timeframe.
func (tf Timeframe) Period() time.Duration {
	switch tf {
	case TimeframeShort:
		return 4 * time.Hour
	case TimeframeLong:
		return 24 * time.Hour
	default:
		return 0
	}
}

// ParseTimeframe accepts "4H"/"1D" as well as "short"/"long", case-insensitively.
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "4H", "SHORT", "240":
		return TimeframeShort, nil
	case "1D", "LONG", "D":
		return TimeframeLong, nil
	}
	return 0, fmt.Errorf("unknown timeframe %q", s)
}

// Instrument carries the provider routing metadata for one symbol.
type Instrument struct {
	Symbol   string
	Screener string // e.g. "forex", "cfd"
	Exchange string // e.g. "FOREXCOM", "OANDA"
}

// InstrumentKey identifies one tracked series.
type InstrumentKey struct {
	Symbol    string
	Timeframe Timeframe
}

func (k InstrumentKey) String() string {
	return k.Symbol + "/" + k.Timeframe.String()
}
