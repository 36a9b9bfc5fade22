package model

import (
	"time"

	"github.com/google/uuid"
)

// Direction is the side of a swing.
type Direction string

const (
	DirectionHigh Direction = "HIGH"
	DirectionLow  Direction = "LOW"
)

// Formation labels how a detection was formed.
type Formation string

const (
	FormationBasic    Formation = "BASIC"
	FormationSequence Formation = "SEQUENCE"
)

// SwingDetection is the detector's output for one window snapshot.
type SwingDetection struct {
	Direction  Direction
	Formation  Formation
	AnchorTime time.Time
	Candidate  Candle // the middle bar of the pattern
}

// PendingSwing is the in-progress chain for one key.
type PendingSwing struct {
	Direction   Direction
	AnchorTime  time.Time // time of the original basic swing bar
	ChainLength int
	Reference   Candle // bar the next extension is tested against
}

// AlertEvent is emitted when a chain starts or extends.
type AlertEvent struct {
	ID          string
	Formation   Formation
	Direction   Direction
	Symbol      string
	Timeframe   Timeframe
	AnchorTime  time.Time
	ChainLength int
	BarTime     time.Time // the bar that produced the event
	CreatedAt   time.Time
}

// NewAlertEvent fills in identity and creation time.
func NewAlertEvent(key InstrumentKey, formation Formation, dir Direction, anchor time.Time, chain int, bar time.Time) *AlertEvent {
	return &AlertEvent{
		ID:          uuid.NewString(),
		Formation:   formation,
		Direction:   dir,
		Symbol:      key.Symbol,
		Timeframe:   key.Timeframe,
		AnchorTime:  anchor,
		ChainLength: chain,
		BarTime:     bar,
		CreatedAt:   time.Now(),
	}
}

// Key returns the instrument key the event belongs to.
func (e *AlertEvent) Key() InstrumentKey {
	return InstrumentKey{Symbol: e.Symbol, Timeframe: e.Timeframe}
}
