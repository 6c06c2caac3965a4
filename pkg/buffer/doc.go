// Package buffer provides thread-safe circular buffers with configurable overflow policies,
// built-in statistics tracking, and optional Prometheus metrics integration.
//
// # Overview
//
// Matrix uses a circular buffer wherever it needs a bounded handoff point
// between one goroutine producing values and another consuming them: the
// inproc transport's in-process FIFO, and the Keymaster client's
// deferred-put queue. Buffers are generic, thread-safe, and always collect
// statistics even when Prometheus metrics are not enabled.
//
// # Quick Start
//
//	buf, err := buffer.NewCircularBuffer[int](1000)
//	if err != nil {
//		log.Fatal(err)
//	}
//	err = buf.Write(42)
//	value, ok := buf.Read()
//
// With an overflow policy and metrics:
//
//	buf, err := buffer.NewCircularBuffer[[]byte](5000,
//		buffer.WithOverflowPolicy[[]byte](buffer.DropOldest),
//		buffer.WithMetrics[[]byte](registry, "inproc_input"),
//	)
//
// # Overflow Policies
//
//   - DropOldest: remove the oldest item to make room (default; used by inproc)
//   - DropNewest: reject new items when full
//   - Block: Write waits for available space
//
// Blocking writes support cancellation:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	err := buf.WriteWithContext(ctx, event)
//
// # Observability
//
// Statistics are always on (atomic counters, no external dependency) and
// available via buf.Stats(); Prometheus metrics are opt-in via
// WithMetrics() and add per-operation counters plus size/utilization
// gauges labeled by component.
//
// # Thread Safety
//
// All operations are safe for concurrent readers and writers. Statistics
// use atomic operations; the Block policy uses sync.Cond to wait for
// space without busy-polling.
package buffer
