package telemetry

import (
	"testing"
	"time"
)

func TestEventPublisherFanOut(t *testing.T) {
	p := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 4})
	defer p.Close()

	ch1, cancel1 := p.Subscribe()
	ch2, cancel2 := p.Subscribe()
	defer cancel1()
	defer cancel2()

	p.Publish(Event{Type: EventTypeStepFailed, Phase: "services", Step: "start-qdrant"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Type != EventTypeStepFailed {
				t.Errorf("subscriber %d got %s", i, evt.Type)
			}
			if evt.ID == "" || evt.Timestamp.IsZero() {
				t.Errorf("subscriber %d: id/timestamp not filled in", i)
			}
			if evt.Level != EventLevelInfo {
				t.Errorf("subscriber %d: default level = %s", i, evt.Level)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive the event", i)
		}
	}
}

func TestEventPublisherNeverBlocks(t *testing.T) {
	p := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 1})
	defer p.Close()

	_, cancel := p.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Nobody drains the subscriber; publishing must still return.
		for i := 0; i < 100; i++ {
			p.Publish(Event{Type: EventTypeStepStarted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestEventPublisherDisabled(t *testing.T) {
	p := NewEventPublisher(EventsConfig{Enabled: false})

	ch, cancel := p.Subscribe()
	defer cancel()

	p.Publish(Event{Type: EventTypeRunStarted})

	if _, open := <-ch; open {
		t.Error("disabled publisher delivered an event")
	}
}

func TestEventPublisherClose(t *testing.T) {
	p := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 1})
	ch, _ := p.Subscribe()

	p.Close()
	p.Close() // idempotent

	if _, open := <-ch; open {
		t.Error("subscriber channel not closed")
	}

	// Publishing after close is a no-op, not a panic.
	p.Publish(Event{Type: EventTypeRunCompleted})
}
