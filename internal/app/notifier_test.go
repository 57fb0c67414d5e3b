package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shoplink/payout-service/internal/domain"
)

// refreshCounter records refresh invocations for the debounce tests.
type refreshCounter struct {
	mu    sync.Mutex
	calls int
}

func (c *refreshCounter) refresh(ctx context.Context) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *refreshCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func waitForCount(t *testing.T, counter *refreshCounter, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if counter.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected at least %d refresh calls, got %d", want, counter.count())
}

func TestDebouncedRefresher_CoalescesBurstIntoOneRefresh(t *testing.T) {
	counter := &refreshCounter{}
	refresher := NewDebouncedRefresher(50*time.Millisecond, counter.refresh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	refresher.Start(ctx)

	for i := 0; i < 10; i++ {
		refresher.Signal()
	}
	waitForCount(t, counter, 1)

	// The whole burst must settle on a single refresh.
	time.Sleep(100 * time.Millisecond)
	if got := counter.count(); got != 1 {
		t.Fatalf("expected one coalesced refresh, got %d", got)
	}
}

func TestDebouncedRefresher_SeparatedSignalsRefreshAgain(t *testing.T) {
	counter := &refreshCounter{}
	refresher := NewDebouncedRefresher(20*time.Millisecond, counter.refresh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	refresher.Start(ctx)

	refresher.Signal()
	waitForCount(t, counter, 1)

	refresher.Signal()
	waitForCount(t, counter, 2)
}

func TestDebouncedRefresher_StopsOnContextCancel(t *testing.T) {
	counter := &refreshCounter{}
	refresher := NewDebouncedRefresher(20*time.Millisecond, counter.refresh)

	ctx, cancel := context.WithCancel(context.Background())
	refresher.Start(ctx)
	cancel()

	// A signal after shutdown must never trigger a refresh.
	time.Sleep(10 * time.Millisecond)
	refresher.Signal()
	time.Sleep(80 * time.Millisecond)
	if got := counter.count(); got != 0 {
		t.Fatalf("expected no refresh after cancellation, got %d", got)
	}
}

func TestDebouncedRefresher_HandleStatusSignalAcksAndIgnoresBody(t *testing.T) {
	counter := &refreshCounter{}
	refresher := NewDebouncedRefresher(20*time.Millisecond, counter.refresh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	refresher.Start(ctx)

	if !refresher.HandleStatusSignal([]byte(`{"whatever":"ignored"}`)) {
		t.Fatal("expected the handler to ack the delivery")
	}
	waitForCount(t, counter, 1)
}

func TestStatusRoutingKey(t *testing.T) {
	cases := []struct {
		status domain.PayoutStatus
		want   string
	}{
		{domain.StatusApproved, "payout.status.approved"},
		{domain.StatusRejected, "payout.status.rejected"},
		{domain.StatusTransferred, "payout.status.transferred"},
	}
	for _, tc := range cases {
		if got := StatusRoutingKey(tc.status); got != tc.want {
			t.Errorf("routing key for %s: expected %q, got %q", tc.status, tc.want, got)
		}
	}
}
