package events

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan CameraStateChangedEvent, 1)

	unsub := bus.Subscribe(func(e CameraStateChangedEvent) {
		received <- e
	})
	defer unsub()

	event := CameraStateChangedEvent{
		State:     "running",
		Timestamp: "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	select {
	case got := <-received:
		if got.State != event.State {
			t.Errorf("Expected state %s, got %s", event.State, got.State)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	received1 := make(chan ClientConnectedEvent, 1)
	received2 := make(chan ClientConnectedEvent, 1)

	unsub1 := bus.Subscribe(func(e ClientConnectedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e ClientConnectedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(ClientConnectedEvent{RemoteAddr: "10.0.0.5:4242"})

	for i, ch := range []chan ClientConnectedEvent{received1, received2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i+1)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan FrameStalledEvent, 1)

	unsub := bus.Subscribe(func(e FrameStalledEvent) {
		received <- e
	})
	unsub()

	bus.Publish(FrameStalledEvent{LastVersion: 7})

	select {
	case <-received:
		t.Error("received event after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_UnknownHandlerIsNoop(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(s string) {})
	if unsub == nil {
		t.Fatal("expected non-nil unsubscribe func")
	}
	unsub()
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 2)

	unsub := SubscribeToChannel[ClientDisconnectedEvent](bus, ch)
	defer unsub()

	bus.Publish(ClientDisconnectedEvent{RemoteAddr: "10.0.0.5:4242", FramesSent: 12})

	select {
	case got := <-ch:
		ev, ok := got.(ClientDisconnectedEvent)
		if !ok {
			t.Fatalf("got %T, want ClientDisconnectedEvent", got)
		}
		if ev.FramesSent != 12 {
			t.Errorf("FramesSent = %d, want 12", ev.FramesSent)
		}
	case <-time.After(time.Second):
		t.Fatal("event not bridged to channel")
	}
}
