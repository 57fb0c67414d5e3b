/**
 * @description
 * This file wires the change-notifier push channel. The publisher side emits a
 * status event on the payouts topic exchange after every committed transition;
 * the consumer side treats incoming signals purely as a hint, coalesces bursts
 * within a debounce window, and triggers a single re-fetch of the
 * authoritative list.
 *
 * @dependencies
 * - context, log, sync, time: Standard Go libraries.
 * - internal/domain: Status event payload.
 * - pkg/rabbitmq: The AMQP producer used for publishing.
 */

package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shoplink/payout-service/internal/domain"
	"github.com/shoplink/payout-service/pkg/rabbitmq"
)

// StatusExchange is the topic exchange carrying payout status-change signals.
// Routing keys follow `payout.status.<status>` so subscribers can scope their
// binding to a status filter.
const StatusExchange = "payouts.events"

// StatusRoutingKey returns the routing key for a payout status.
func StatusRoutingKey(status domain.PayoutStatus) string {
	return "payout.status." + string(status)
}

// AMQPStatusPublisher publishes payout status events through RabbitMQ.
type AMQPStatusPublisher struct {
	producer rabbitmq.Publisher
}

// NewAMQPStatusPublisher wraps an AMQP producer as a StatusPublisher.
func NewAMQPStatusPublisher(producer rabbitmq.Publisher) *AMQPStatusPublisher {
	return &AMQPStatusPublisher{producer: producer}
}

// PublishStatusEvent pushes one change signal. Consumers must re-fetch the
// record; the payload is informational only.
func (p *AMQPStatusPublisher) PublishStatusEvent(ctx context.Context, event domain.PayoutStatusEvent) error {
	return p.producer.Publish(ctx, StatusExchange, StatusRoutingKey(event.Status), event)
}

var _ StatusPublisher = (*AMQPStatusPublisher)(nil)

// DebouncedRefresher coalesces change-notifier signals arriving within a
// debounce window into a single refresh call. Signals are advisory and carry
// no ordering guarantee relative to poller events, so the refresh function
// must re-read authoritative state rather than trust any payload.
type DebouncedRefresher struct {
	window  time.Duration
	refresh func(ctx context.Context)

	mu      sync.Mutex
	signals chan struct{}
	started bool
}

// NewDebouncedRefresher creates a refresher. A non-positive window falls back
// to 500ms.
func NewDebouncedRefresher(window time.Duration, refresh func(ctx context.Context)) *DebouncedRefresher {
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	return &DebouncedRefresher{
		window:  window,
		refresh: refresh,
		signals: make(chan struct{}, 1),
	}
}

// Start launches the debounce loop. It runs until the context is cancelled.
func (r *DebouncedRefresher) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go r.loop(ctx)
}

func (r *DebouncedRefresher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.signals:
		}

		// First signal arrived; absorb the burst until the window elapses.
		timer := time.NewTimer(r.window)
	drain:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-r.signals:
			case <-timer.C:
				break drain
			}
		}

		r.refresh(ctx)
	}
}

// Signal records one change hint. Non-blocking: a pending signal already
// covers any number of additional ones.
func (r *DebouncedRefresher) Signal() {
	select {
	case r.signals <- struct{}{}:
	default:
	}
}

// HandleStatusSignal adapts Signal to the AMQP consumer's binding handler
// shape. The body is deliberately ignored: the signal is only a hint.
func (r *DebouncedRefresher) HandleStatusSignal(body []byte) bool {
	r.Signal()
	return true
}

// NewListRefreshFunc builds the refresh callback used by the notifier glue: it
// re-fetches the first page of the pending payout list from the store and logs
// the authoritative count. Interested callers observe the store, not the
// signal payload.
func NewListRefreshFunc(service *Service, status domain.PayoutStatus, limit int) func(ctx context.Context) {
	return func(ctx context.Context) {
		opts := domain.PayoutListOptions{Status: &status, Limit: limit}
		page, err := service.ListPayouts(ctx, opts)
		if err != nil {
			log.Printf("level=warn component=notifier msg=\"list refresh failed\" status=%s err=%v", status, err)
			return
		}
		log.Printf("level=info component=notifier msg=\"list refreshed\" status=%s total=%d fetched=%d", status, page.Total, len(page.Items))
	}
}
