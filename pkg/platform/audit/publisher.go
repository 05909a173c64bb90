package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 1024

// Publisher delivers events to a sink from a background goroutine so
// emitting never blocks domain logic. When the buffer is full the event
// is dropped and counted rather than stalling the caller.
type Publisher struct {
	sink    Sink
	inbox   chan Event
	log     *slog.Logger
	clock   func() time.Time
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithLogger sets the logger used for delivery failures.
func WithLogger(log *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if log != nil {
			p.log = log
		}
	}
}

// WithBufferSize sets the inbox capacity.
func WithBufferSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.inbox = make(chan Event, n)
		}
	}
}

// WithClock sets the time source for event timestamps.
func WithClock(clock func() time.Time) PublisherOption {
	return func(p *Publisher) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewPublisher starts a publisher draining into sink.
func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		sink:  sink,
		inbox: make(chan Event, defaultBufferSize),
		log:   slog.Default(),
		clock: time.Now,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// Emit queues an event for delivery. A zero timestamp is filled in.
func (p *Publisher) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock()
	}
	select {
	case p.inbox <- event:
	default:
		p.dropped.Add(1)
		p.log.Warn("audit event dropped, buffer full", "action", event.Action)
	}
}

// Dropped reports how many events were discarded due to a full buffer.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close drains queued events and stops the background goroutine.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.inbox)
		<-p.done
	})
}

func (p *Publisher) run() {
	defer close(p.done)
	for event := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.sink.Write(ctx, event); err != nil {
			p.log.Error("write audit event", "action", event.Action, "error", err)
		}
		cancel()
	}
}
