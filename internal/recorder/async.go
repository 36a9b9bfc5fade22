package recorder

import (
	"context"
	"log"
	"sync"
	"time"

	"SwingSentinel/internal/model"
)

const asyncWriteTimeout = 10 * time.Second

type asyncJob struct {
	candle *CandleRecord
	alert  *model.AlertEvent
}

// Async queues writes for a background goroutine so a slow backend never
// stalls a tick. When the queue is full the write is dropped and OnDrop is
// called. Reads pass straight through.
type Async struct {
	next   Recorder
	queue  chan asyncJob
	OnDrop func()

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync wraps next with a queue of the given size.
func NewAsync(next Recorder, size int) *Async {
	if size <= 0 {
		size = 256
	}
	return &Async{
		next:  next,
		queue: make(chan asyncJob, size),
		done:  make(chan struct{}),
	}
}

// Run drains the queue until Close is called. Blocks.
func (a *Async) Run() {
	defer close(a.done)
	for job := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		switch {
		case job.candle != nil:
			if err := a.next.RecordCandle(ctx, job.candle); err != nil {
				log.Printf("[WARN] record candle %s/%s: %v", job.candle.Symbol, job.candle.Timeframe, err)
			}
		case job.alert != nil:
			if err := a.next.RecordAlert(ctx, job.alert); err != nil {
				log.Printf("[WARN] record alert %s: %v", job.alert.ID, err)
			}
		}
		cancel()
	}
}

func (a *Async) enqueue(job asyncJob) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- job:
	default:
		if a.OnDrop != nil {
			a.OnDrop()
		}
		log.Println("[WARN] recorder queue full, write dropped")
	}
}

func (a *Async) RecordCandle(_ context.Context, rec *CandleRecord) error {
	a.enqueue(asyncJob{candle: rec})
	return nil
}

func (a *Async) RecordAlert(_ context.Context, evt *model.AlertEvent) error {
	a.enqueue(asyncJob{alert: evt})
	return nil
}

func (a *Async) LoadRecent(ctx context.Context, key model.InstrumentKey, limit int) ([]model.Candle, error) {
	return a.next.LoadRecent(ctx, key, limit)
}

// Close stops accepting writes, waits for Run to flush the queue and closes
// the wrapped recorder. Run must have been started.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
	return a.next.Close()
}
