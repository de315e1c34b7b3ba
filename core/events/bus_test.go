package events

import (
	"context"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	ch, cancel, err := b.Subscribe(TaskFaultedTopic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	ctx, cancelCtx := context.WithTimeout(context.Background(), time.Second)
	defer cancelCtx()
	b.Publish(ctx, TaskFaultedTopic, TaskFaultedEvent{WorkerEvent: WorkerEvent{WorkerName: "io"}, Seq: 3})

	select {
	case v := <-ch:
		ev, ok := v.(TaskFaultedEvent)
		if !ok {
			t.Fatalf("expected TaskFaultedEvent, got %T", v)
		}
		if ev.WorkerName != "io" || ev.Seq != 3 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_CancelUnsubscribe(t *testing.T) {
	b := New()
	ch, cancel, err := b.Subscribe(WorkerStoppingTopic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	cancel() // second cancel is a no-op
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
	// Should not panic on publish after cancel
	b.Publish(context.Background(), WorkerStoppingTopic, WorkerStoppingEvent{})
}

func TestBus_Close(t *testing.T) {
	b := New()
	ch1, _, _ := b.Subscribe(WorkerTerminatedTopic)
	ch2, _, _ := b.Subscribe(WorkerStartedTopic)
	b.Close()
	for i, ch := range []<-chan TypedEvent{ch1, ch2} {
		select {
		case _, ok := <-ch:
			if ok {
				t.Fatalf("expected ch%d closed", i+1)
			}
		case <-time.After(200 * time.Millisecond):
			t.Fatalf("timeout waiting ch%d to close", i+1)
		}
	}
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	b := NewWithBuffer(1)
	ch, cancel, _ := b.Subscribe(WorkerStartedTopic)
	defer cancel()

	ev := WorkerStartedEvent{WorkerEvent{WorkerName: "w", WorkerID: "1"}}
	b.Publish(context.Background(), WorkerStartedTopic, ev)
	b.Publish(context.Background(), WorkerStartedTopic, ev) // dropped, buffer full

	if len(ch) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(ch))
	}
	if b.Dropped() != 1 {
		t.Fatalf("expected 1 dropped delivery, got %d", b.Dropped())
	}
	got := (<-ch).(WorkerStartedEvent)
	if got.WorkerName != "w" || got.EventType() != WorkerStartedTopic {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	b := New()
	b.Close()
	b.Close() // idempotent
	ch, cancel, err := b.Subscribe("t")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel from closed bus")
	}
}
