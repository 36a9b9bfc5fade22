package strategy

import (
	"SwingSentinel/internal/model"
	"SwingSentinel/internal/window"
)

// Outcome describes what one candle did to its key.
type Outcome struct {
	Result    window.Result
	Detection *model.SwingDetection
	Event     *model.AlertEvent
	Pending   *model.PendingSwing // copy of the chain after the transition; nil when idle
	Broken    bool                // an active chain was terminated by this candle
}

// Engine runs accept, detect and transition for one key as a single step.
type Engine struct {
	Store    *window.Store
	Detector Detector
}

// NewEngine creates an Engine over store.
func NewEngine(store *window.Store, det Detector) *Engine {
	return &Engine{Store: store, Detector: det}
}

// Process offers c to the key's window. A duplicate bar is a no-op; an
// accepted bar is run through the detector and the state machine.
func (e *Engine) Process(key model.InstrumentKey, c model.Candle) (Outcome, error) {
	var out Outcome
	err := e.Store.Do(key, func(s *window.Series) error {
		res, err := s.Accept(c)
		if err != nil {
			return err
		}
		out.Result = res
		if res != window.Accepted {
			return nil
		}

		out.Detection = e.Detector.Detect(s.Candles())
		prev := s.Pending()
		next, evt := OnNewCandle(key, prev, c, out.Detection)
		s.SetPending(next)

		out.Event = evt
		out.Broken = prev != nil && next == nil
		if next != nil {
			cp := *next
			out.Pending = &cp
		}
		return nil
	})
	return out, err
}

// Pending returns copies of all active chains.
func (e *Engine) Pending() []window.PendingEntry {
	return e.Store.PendingSnapshot()
}
