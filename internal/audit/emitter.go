package audit

import (
	"context"
	"log"
	"sync"
	"time"
)

// #region sink
// Sink receives audit events. Implementations may block; the Emitter
// shields the pipeline from that.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// NopSink discards every event.
type NopSink struct{}

// Emit discards the event.
func (NopSink) Emit(_ context.Context, _ Event) error { return nil }

// #endregion sink

// #region emitter
// Emitter delivers events to the sink fire-and-forget. Delivery
// failures are swallowed and logged locally; the pipeline never waits
// on the sink for correctness.
type Emitter struct {
	sink    Sink
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewEmitter creates an Emitter with a per-delivery timeout.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink, timeout: 5 * time.Second}
}

// Log delivers the event asynchronously. Safe to call from any goroutine.
func (e *Emitter) Log(event Event) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.sink.Emit(ctx, event); err != nil {
			log.Printf("[AUDIT] emit failed for event %s (%s): %v", event.ID, event.Incident, err)
		}
	}()
}

// Close waits for in-flight deliveries to settle. Call on shutdown.
func (e *Emitter) Close() {
	e.wg.Wait()
}

// #endregion emitter
