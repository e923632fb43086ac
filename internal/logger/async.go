package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Closer flushes and stops a handler on shutdown.
type Closer interface {
	Close()
}

// nopCloser is the Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples log emission from IO. Records are queued and
// written by a single drain goroutine, which keeps them in emission order;
// the scheduler loops log from their tick hot path and must never block on
// stdout. When the queue is full the record is dropped and counted.
type AsyncHandler struct {
	inner   slog.Handler
	queue   chan func()
	done    chan struct{}
	dropped *atomic.Int64
}

// NewAsyncHandler wraps inner with a queue of the given capacity.
func NewAsyncHandler(inner slog.Handler, buffer int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		queue:   make(chan func(), buffer),
		done:    make(chan struct{}),
		dropped: &atomic.Int64{},
	}
	go h.drain()
	return h
}

func (h *AsyncHandler) drain() {
	defer close(h.done)
	for write := range h.queue {
		write()
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record bound to this handler's inner, so attrs and
// groups added via With survive the queue. Drops when the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	inner := h.inner
	select {
	case h.queue <- func() { _ = inner.Handle(context.Background(), rec) }:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing the queue but wrapping a derived inner.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithAttrs(attrs),
		queue:   h.queue,
		done:    h.done,
		dropped: h.dropped,
	}
}

// WithGroup returns a handler sharing the queue but wrapping a derived inner.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithGroup(name),
		queue:   h.queue,
		done:    h.done,
		dropped: h.dropped,
	}
}

// DroppedCount returns the number of records dropped on a full queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close stops accepting records and blocks until the queue is drained.
func (h *AsyncHandler) Close() {
	close(h.queue)
	<-h.done
}
