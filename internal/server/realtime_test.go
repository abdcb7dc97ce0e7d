package server

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesEverySubscriber(t *testing.T) {
	dispatcher := NewDataEventDispatcher()

	first, cancelFirst := dispatcher.Subscribe(context.Background())
	defer cancelFirst()
	second, cancelSecond := dispatcher.Subscribe(context.Background())
	defer cancelSecond()

	dispatcher.Publish(EventJournalEntries, "2026-03-14")

	for _, stream := range []<-chan DataEvent{first, second} {
		select {
		case event := <-stream:
			if event.Collection != EventJournalEntries {
				t.Fatalf("unexpected collection %q", event.Collection)
			}
			if len(event.Keys) != 1 || event.Keys[0] != "2026-03-14" {
				t.Fatalf("unexpected keys %v", event.Keys)
			}
			if event.Timestamp.IsZero() {
				t.Fatalf("timestamp not stamped")
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber never received the event")
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	dispatcher := NewDataEventDispatcher()

	stream, cancel := dispatcher.Subscribe(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Overflow the buffer without draining; Publish must never block.
		for i := 0; i < 64; i++ {
			dispatcher.Publish(EventChatMessages)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}

	received := 0
	for {
		select {
		case <-stream:
			received++
			continue
		default:
		}
		break
	}
	if received == 0 || received > 16 {
		t.Fatalf("expected between 1 and 16 buffered events, got %d", received)
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	dispatcher := NewDataEventDispatcher()

	stream, cancel := dispatcher.Subscribe(context.Background())
	if dispatcher.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", dispatcher.SubscriberCount())
	}

	cancel()
	cancel() // double cancel is safe

	if dispatcher.SubscriberCount() != 0 {
		t.Fatalf("subscriber not removed: %d", dispatcher.SubscriberCount())
	}
	if _, open := <-stream; open {
		t.Fatalf("stream still open after cancel")
	}

	// Publishing after the last unsubscribe must not panic.
	dispatcher.Publish(EventBackup)
}

func TestContextEndTearsDownSubscription(t *testing.T) {
	dispatcher := NewDataEventDispatcher()

	ctx, cancelCtx := context.WithCancel(context.Background())
	stream, cancel := dispatcher.Subscribe(ctx)
	defer cancel()

	cancelCtx()

	deadline := time.After(time.Second)
	for dispatcher.SubscriberCount() != 0 {
		select {
		case <-deadline:
			t.Fatalf("subscription not torn down after context end")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if _, open := <-stream; open {
		t.Fatalf("stream still open after context end")
	}
}
