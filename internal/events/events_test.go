package events

import "testing"

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Event{Kind: ChatUpdated, ChatID: "c1"})

	ev := <-ch
	if ev.Kind != ChatUpdated || ev.ChatID != "c1" {
		t.Errorf("got %+v, want ChatUpdated for c1", ev)
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	bus := NewBus()
	// Must not block or panic.
	bus.Publish(Event{Kind: WorktreesChanged})
}

func TestPublish_SlowSubscriberDrops(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	// Overfill the buffer; Publish must never block.
	for i := 0; i < subscriberBuffer*2; i++ {
		bus.Publish(Event{Kind: ChatUpdated})
	}

	if len(ch) != subscriberBuffer {
		t.Errorf("buffered %d events, want %d (rest dropped)", len(ch), subscriberBuffer)
	}
}

func TestCancel_ClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}

	// Publishing after cancel must not panic.
	bus.Publish(Event{Kind: ChatUpdated})

	// Cancel is idempotent.
	cancel()
}
