package memorybus

import (
	"testing"

	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(ports.TopicListUpdated, []byte(`{"localId":1}`))

	evt := <-ch
	if evt.Topic != ports.TopicListUpdated || string(evt.Payload) != `{"localId":1}` {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestBus_TopicFilter(t *testing.T) {
	b := New()
	ch, cancel := b.SubscribeTopics(ports.TopicAuthRequired)
	defer cancel()

	b.Publish(ports.TopicListUpdated, []byte(`{}`))
	b.Publish(ports.TopicAuthRequired, []byte(`{}`))

	evt := <-ch
	if evt.Topic != ports.TopicAuthRequired {
		t.Fatalf("want %s, got %s", ports.TopicAuthRequired, evt.Topic)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event: %+v", extra)
	default:
	}
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	b := New()
	_, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(ports.TopicSyncError, nil)
	}
	if got := b.Dropped(); got != 10 {
		t.Fatalf("Dropped: want 10, got %d", got)
	}
}

func TestBus_CloseEndsSubscriptions(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	b.Close()

	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	cancel() // idempotent après Close
	b.Publish(ports.TopicMediaReady, nil)

	late, _ := b.Subscribe()
	if _, ok := <-late; ok {
		t.Fatalf("subscription after Close should be closed")
	}
}
