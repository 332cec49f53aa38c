package app

import (
	"testing"
	"time"
)

func TestEventBusDeliversToEverySubscriber(t *testing.T) {
	bus := NewEventBus()
	sub1, unsub1 := bus.Subscribe(1)
	defer unsub1()
	sub2, unsub2 := bus.Subscribe(1)
	defer unsub2()

	bus.Publish(Event{Kind: EventNewTip})

	select {
	case e := <-sub1:
		if e.Kind != EventNewTip {
			t.Errorf("sub1 got kind %d, want EventNewTip", e.Kind)
		}
	default:
		t.Error("sub1 received nothing")
	}
	select {
	case e := <-sub2:
		if e.Kind != EventNewTip {
			t.Errorf("sub2 got kind %d, want EventNewTip", e.Kind)
		}
	default:
		t.Error("sub2 received nothing")
	}
}

func TestEventBusPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewEventBus()
	_, unsub := bus.Subscribe(1)
	defer unsub()

	bus.Publish(Event{Kind: EventNewTip}) // fills the buffer of 1

	done := make(chan struct{})
	go func() {
		bus.Publish(Event{Kind: EventNewTip}) // buffer already full, must not block
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked instead of dropping the event for a full subscriber")
	}
}

func TestEventBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus()
	sub, unsub := bus.Subscribe(2)
	unsub()

	bus.Publish(Event{Kind: EventReorg})

	if _, ok := <-sub; ok {
		t.Error("expected the unsubscribed channel to be closed with no pending events")
	}
}
