package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/driftcode/orchestra/internal/common/logger"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(logger.Default())
	defer bus.Close()

	received := make(chan *Event, 1)
	sub, err := bus.Subscribe(EventTaskCompleted, func(ctx context.Context, e *Event) error {
		received <- e
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	evt := NewEvent(EventTaskCompleted, "test", map[string]interface{}{"task_id": "t1"})
	if err := bus.Publish(context.Background(), EventTaskCompleted, evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != evt.ID {
			t.Errorf("expected event id %q, got %q", evt.ID, got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event delivery")
	}
}

func TestMemoryBusWildcardSubscribe(t *testing.T) {
	bus := NewMemoryBus(logger.Default())
	defer bus.Close()

	received := make(chan *Event, 2)
	sub, err := bus.Subscribe("update.*", func(ctx context.Context, e *Event) error {
		received <- e
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	bus.Publish(context.Background(), EventUpdateStateChanged, NewEvent(EventUpdateStateChanged, "test", nil))
	bus.Publish(context.Background(), EventUpdatePhaseProgress, NewEvent(EventUpdatePhaseProgress, "test", nil))

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for wildcard delivery")
		}
	}
}

func TestMemoryBusQueueSubscribeRoundRobins(t *testing.T) {
	bus := NewMemoryBus(logger.Default())
	defer bus.Close()

	var mu sync.Mutex
	counts := map[string]int{}
	handler := func(name string) Handler {
		return func(ctx context.Context, e *Event) error {
			mu.Lock()
			counts[name]++
			mu.Unlock()
			return nil
		}
	}

	sub1, _ := bus.QueueSubscribe("task.submitted", "workers", handler("a"))
	sub2, _ := bus.QueueSubscribe("task.submitted", "workers", handler("b"))
	defer sub1.Unsubscribe()
	defer sub2.Unsubscribe()

	for i := 0; i < 10; i++ {
		bus.Publish(context.Background(), "task.submitted", NewEvent(EventTaskSubmitted, "test", nil))
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if counts["a"]+counts["b"] != 10 {
		t.Fatalf("expected 10 total deliveries, got a=%d b=%d", counts["a"], counts["b"])
	}
	if counts["a"] == 0 || counts["b"] == 0 {
		t.Fatalf("expected both queue members to receive at least one message, got a=%d b=%d", counts["a"], counts["b"])
	}
}

func TestMemoryBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewMemoryBus(logger.Default())
	defer bus.Close()

	received := make(chan *Event, 1)
	sub, _ := bus.Subscribe(EventTaskFailed, func(ctx context.Context, e *Event) error {
		received <- e
		return nil
	})
	sub.Unsubscribe()

	bus.Publish(context.Background(), EventTaskFailed, NewEvent(EventTaskFailed, "test", nil))

	select {
	case <-received:
		t.Fatal("expected no delivery after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryBusPublishAfterCloseFails(t *testing.T) {
	bus := NewMemoryBus(logger.Default())
	bus.Close()

	if err := bus.Publish(context.Background(), EventTaskSubmitted, NewEvent(EventTaskSubmitted, "test", nil)); err == nil {
		t.Fatal("expected publish on closed bus to fail")
	}
}
