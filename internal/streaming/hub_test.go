package streaming

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/driftcode/orchestra/internal/common/logger"
	"github.com/driftcode/orchestra/internal/eventbus"
)

func newTestHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(logger.Default())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	return hub, cancel
}

func drain(t *testing.T, ch chan []byte) *eventbus.Event {
	t.Helper()
	select {
	case data := <-ch:
		var evt eventbus.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("unmarshal broadcast payload: %v", err)
		}
		return &evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast delivery")
		return nil
	}
}

func TestHubBroadcastReachesWildcardSubscriber(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	client := NewClient("c1", nil, hub, logger.Default())
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)
	client.Subscribe(allSubject)
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(eventbus.EventTaskCompleted, eventbus.NewEvent(eventbus.EventTaskCompleted, "test", nil))

	evt := drain(t, client.send)
	if evt.Type != eventbus.EventTaskCompleted {
		t.Fatalf("expected %s, got %s", eventbus.EventTaskCompleted, evt.Type)
	}
}

func TestHubBroadcastRespectsSubjectSubscription(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	subscribed := NewClient("subscribed", nil, hub, logger.Default())
	other := NewClient("other", nil, hub, logger.Default())
	hub.Register(subscribed)
	hub.Register(other)
	time.Sleep(10 * time.Millisecond)

	subscribed.Subscribe(eventbus.EventUpdateStateChanged)
	other.Subscribe(eventbus.EventTaskFailed)
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(eventbus.EventUpdateStateChanged, eventbus.NewEvent(eventbus.EventUpdateStateChanged, "test", nil))

	drain(t, subscribed.send)

	select {
	case <-other.send:
		t.Fatal("expected the non-subscribed client to receive nothing")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	client := NewClient("c1", nil, hub, logger.Default())
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)
	client.Subscribe(eventbus.EventTaskSubmitted)
	time.Sleep(10 * time.Millisecond)
	client.Unsubscribe(eventbus.EventTaskSubmitted)
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(eventbus.EventTaskSubmitted, eventbus.NewEvent(eventbus.EventTaskSubmitted, "test", nil))

	select {
	case <-client.send:
		t.Fatal("expected no delivery after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubClientCount(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients initially, got %d", hub.ClientCount())
	}

	client := NewClient("c1", nil, hub, logger.Default())
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}

	hub.Unregister(client)
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unregister, got %d", hub.ClientCount())
	}
}

func TestAttachBusRebroadcastsEvents(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	bus := eventbus.NewMemoryBus(logger.Default())
	defer bus.Close()
	if err := hub.AttachBus(bus); err != nil {
		t.Fatalf("AttachBus: %v", err)
	}

	client := NewClient("c1", nil, hub, logger.Default())
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)
	client.Subscribe(allSubject)
	time.Sleep(10 * time.Millisecond)

	if err := bus.Publish(context.Background(), eventbus.EventAgentStatusChanged, eventbus.NewEvent(eventbus.EventAgentStatusChanged, "test", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	evt := drain(t, client.send)
	if evt.Type != eventbus.EventAgentStatusChanged {
		t.Fatalf("expected %s, got %s", eventbus.EventAgentStatusChanged, evt.Type)
	}
}
