package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

const DefaultQueueSize = 256

var (
	ErrQueueFull       = errors.New("event queue full")
	ErrPublisherClosed = errors.New("event publisher closed")
)

// AsyncPublisher queues events and publishes them from one background
// goroutine, so callers never wait on the bus. When the queue is full the
// event is dropped.
type AsyncPublisher struct {
	next  Publisher
	queue chan Event

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
}

// NewAsyncPublisher starts the publish loop in front of next
func NewAsyncPublisher(next Publisher, size int) *AsyncPublisher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &AsyncPublisher{
		next:   next,
		queue:  make(chan Event, size),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(1)
	go p.loop()
	return p
}

// Publish enqueues event without blocking
func (p *AsyncPublisher) Publish(_ context.Context, event Event) error {
	if p.ctx.Err() != nil {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- event:
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped reports how many events were rejected because the queue was full
func (p *AsyncPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Stop ends the publish loop, aborting any publish in flight. Queued events
// are discarded. The wrapped publisher is left open.
func (p *AsyncPublisher) Stop() {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()

		if pending := len(p.queue); pending > 0 {
			log.Warn().Int("pending", pending).Msg("discarding unpublished events")
		}
	})
}

// Close stops the loop and closes the wrapped publisher
func (p *AsyncPublisher) Close() error {
	p.Stop()
	return p.next.Close()
}

func (p *AsyncPublisher) loop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case event := <-p.queue:
			if err := p.next.Publish(p.ctx, event); err != nil {
				log.Warn().
					Err(err).
					Str("event_type", event.Type).
					Str("event_id", event.ID.String()).
					Msg("failed to publish event")
			}
		}
	}
}
