// Package metrics implements the Metrics Recorder (spec.md §4.6): a
// bounded, best-effort sink for per-message processing outcomes. It is
// explicitly decoupled from event durability — a full queue drops the
// newest metric rather than blocking or retrying (spec.md §9).
package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/event"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/logging"
)

// Sink is the subset of storage.Store the Recorder needs, named here so the
// Recorder can be tested without a database.
type Sink interface {
	InsertMetricsBatch(ctx context.Context, batch []*event.ProcessingMetric) error
}

// Recorder buffers ProcessingMetric values in a bounded channel and flushes
// them in batches on a fixed interval or when the buffer fills, whichever
// comes first.
type Recorder struct {
	sink          Sink
	logger        *logging.Logger
	queue         chan *event.ProcessingMetric
	flushInterval time.Duration
	batchSize     int
	dropped       atomic.Int64
}

// New builds a Recorder with the given queue capacity and flush interval.
func New(sink Sink, logger *logging.Logger, capacity int, flushInterval time.Duration) *Recorder {
	return &Recorder{
		sink:          sink,
		logger:        logger,
		queue:         make(chan *event.ProcessingMetric, capacity),
		flushInterval: flushInterval,
		batchSize:     256,
	}
}

// Record enqueues a metric without blocking. If the queue is full the
// metric is dropped and counted (spec.md §9's "drop newest" backpressure
// choice) rather than applying any pressure back onto the Dispatcher.
func (r *Recorder) Record(m *event.ProcessingMetric) {
	select {
	case r.queue <- m:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of metrics discarded so far due to a full
// queue.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run drains the queue into batched inserts until ctx is cancelled, then
// performs one final best-effort flush before returning.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]*event.ProcessingMetric, 0, r.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		flushCtx, cancel := context.WithTimeout(context.Background(), r.flushInterval)
		if err := r.sink.InsertMetricsBatch(flushCtx, batch); err != nil {
			r.logger.Warn("metrics batch flush failed", map[string]any{"count": len(batch), "error": err.Error()})
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case m := <-r.queue:
			batch = append(batch, m)
			if len(batch) >= r.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
