package strategy

import "SwingSentinel/internal/model"

// OnNewCandle advances the pending-swing state of one key.
//
// With no pending chain, a detection starts one (chain length 1, reference
// = the detection's candidate bar). With a pending chain, c is tested
// against the reference: success extends the chain and makes c the new
// reference, failure clears the chain. A detection that arrives while a
// chain is active is ignored. The input pending value is never modified.
func OnNewCandle(key model.InstrumentKey, pending *model.PendingSwing, c model.Candle, det *model.SwingDetection) (*model.PendingSwing, *model.AlertEvent) {
	if pending == nil {
		if det == nil {
			return nil, nil
		}
		next := &model.PendingSwing{
			Direction:   det.Direction,
			AnchorTime:  det.AnchorTime,
			ChainLength: 1,
			Reference:   det.Candidate,
		}
		evt := model.NewAlertEvent(key, det.Formation, det.Direction, det.AnchorTime, 1, c.Time)
		return next, evt
	}

	if !Extends(pending.Direction, pending.Reference, c) {
		return nil, nil
	}

	next := *pending
	next.ChainLength++
	next.Reference = c
	evt := model.NewAlertEvent(key, model.FormationSequence, next.Direction, next.AnchorTime, next.ChainLength, c.Time)
	return &next, evt
}

// Extends reports whether c continues a chain in direction dir from ref.
func Extends(dir model.Direction, ref, c model.Candle) bool {
	switch dir {
	case model.DirectionHigh:
		return c.Close < ref.Low && c.High <= ref.High
	case model.DirectionLow:
		return c.Close > ref.High && c.Low >= ref.Low
	}
	return false
}
