package strategy

import (
	"fmt"
	"strings"

	"SwingSentinel/internal/model"
)

// FormationMode selects how a first detection is labelled.
type FormationMode string

const (
	// ModeBasic labels every first detection BASIC; SEQUENCE is reserved
	// for chain extensions.
	ModeBasic FormationMode = "basic"
	// ModeSequence labels a first detection SEQUENCE when the next bar
	// already closes beyond the previous bar's range.
	ModeSequence FormationMode = "sequence"
)

// ParseFormationMode parses a config value; empty means ModeBasic.
func ParseFormationMode(s string) (FormationMode, error) {
	switch FormationMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBasic:
		return ModeBasic, nil
	case ModeSequence:
		return ModeSequence, nil
	}
	return "", fmt.Errorf("unknown formation mode %q", s)
}

// Detector matches the three-bar swing pattern on the newest bars of a window.
type Detector struct {
	Mode FormationMode
}

// Detect inspects the last three candles and returns a detection, or nil.
func (d Detector) Detect(candles []model.Candle) *model.SwingDetection {
	n := len(candles)
	if n < 3 {
		return nil
	}
	prev, cand, next := candles[n-3], candles[n-2], candles[n-1]

	var dir model.Direction
	switch {
	case cand.High > prev.High && cand.High > next.High && next.Low <= cand.Low:
		dir = model.DirectionHigh
	case cand.Low < prev.Low && cand.Low < next.Low && next.High >= cand.High:
		dir = model.DirectionLow
	default:
		return nil
	}

	formation := model.FormationBasic
	if d.Mode == ModeSequence && confirmsImmediately(dir, prev, next) {
		formation = model.FormationSequence
	}

	return &model.SwingDetection{
		Direction:  dir,
		Formation:  formation,
		AnchorTime: cand.Time,
		Candidate:  cand,
	}
}

// confirmsImmediately reports whether next already breaks prev in the swing direction.
func confirmsImmediately(dir model.Direction, prev, next model.Candle) bool {
	if dir == model.DirectionHigh {
		return next.Close < prev.Low && next.High <= prev.High
	}
	return next.Close > prev.High && next.Low >= prev.Low
}
