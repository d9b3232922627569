package goDocs

import (
	"context"
	"sync"
	"time"
)

// auditDispatcher decouples Client from a slow AuditSink. Events are delivered by one
// goroutine; Close drains what is buffered.
//
// Two entry points exist. Emit may block the caller when DropIfFull is false. Offer
// never blocks: it is used while the client holds its write lock (refresh flights,
// SetToken, clears), where a stalled sink would otherwise stall every waiter. An event
// Offer cannot queue is handed to a short-lived goroutine when DropIfFull is false, so
// such overflow events can reach the sink out of order.
type auditDispatcher struct {
	cfg  AuditConfig
	sink AuditSink
	ch   chan AuditEvent
	done chan struct{}
	wg   sync.WaitGroup

	// mu guards closed and dropped, and orders wg.Add against Close.
	mu      sync.Mutex
	closed  bool
	dropped map[string]uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		cfg:     cfg,
		sink:    sink,
		ch:      make(chan AuditEvent, cfg.BufferSize),
		done:    make(chan struct{}),
		dropped: make(map[string]uint64),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Emit queues event. With DropIfFull it never blocks; otherwise it blocks until the
// event is queued, ctx ends, or the dispatcher closes.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.isClosed() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event = stamp(event)

	if d.cfg.DropIfFull {
		d.tryQueue(event)
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.drop(event.EventType)
	case <-d.done:
	}
}

// Offer queues event without blocking the caller.
func (d *auditDispatcher) Offer(event AuditEvent) {
	if d == nil {
		return
	}
	event = stamp(event)

	select {
	case d.ch <- event:
		return
	case <-d.done:
		return
	default:
	}
	if d.cfg.DropIfFull {
		d.drop(event.EventType)
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		select {
		case d.ch <- event:
		case <-d.done:
			d.drop(event.EventType)
		}
	}()
}

func (d *auditDispatcher) tryQueue(event AuditEvent) {
	select {
	case d.ch <- event:
	case <-d.done:
	default:
		d.drop(event.EventType)
	}
}

func stamp(event AuditEvent) AuditEvent {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}

func (d *auditDispatcher) drop(eventType string) {
	d.mu.Lock()
	d.dropped[eventType]++
	d.mu.Unlock()
}

func (d *auditDispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.done)
	d.mu.Unlock()

	d.wg.Wait()
}

// Dropped returns the total number of dropped events.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var total uint64
	for _, n := range d.dropped {
		total += n
	}
	return total
}

// DroppedByEvent returns drop counts keyed by event type.
func (d *auditDispatcher) DroppedByEvent() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range d.dropped {
		out[k] = v
	}
	return out
}
