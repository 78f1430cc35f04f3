package daemon

import (
	"testing"

	"amber/internal/model"
)

func TestBrokerDeliversInOrder(t *testing.T) {
	b := NewBroker(16)
	ch, cancel := b.Subscribe("job1")
	defer cancel()

	b.Publish("job1", model.Event{Type: model.EventLog, Message: "a"})
	b.Publish("job1", model.Event{Type: model.EventLog, Message: "b"})
	b.Publish("job1", model.Event{Type: model.EventLog, Message: "c"})

	var lastSeq int64
	for _, want := range []string{"a", "b", "c"} {
		ev := <-ch
		if ev.Message != want {
			t.Errorf("message = %q, want %q", ev.Message, want)
		}
		if ev.Seq <= lastSeq {
			t.Errorf("seq = %d, want > %d", ev.Seq, lastSeq)
		}
		lastSeq = ev.Seq
	}
}

func TestBrokerTopicsAreIsolated(t *testing.T) {
	b := NewBroker(16)
	ch1, cancel1 := b.Subscribe("job1")
	defer cancel1()
	ch2, cancel2 := b.Subscribe("job2")
	defer cancel2()

	b.Publish("job1", model.Event{Type: model.EventLog, Message: "for job1"})

	if ev := <-ch1; ev.Message != "for job1" {
		t.Errorf("job1 got %q", ev.Message)
	}

	select {
	case ev := <-ch2:
		t.Errorf("job2 received %+v, want nothing", ev)
	default:
	}
}

func TestBrokerReplaysForLateSubscriber(t *testing.T) {
	b := NewBroker(16)

	b.Publish("job1", model.Event{Type: model.EventStarted})
	b.Publish("job1", model.Event{Type: model.EventLog, Message: "early"})

	ch, cancel := b.Subscribe("job1")
	defer cancel()

	if ev := <-ch; ev.Type != model.EventStarted {
		t.Errorf("first replayed = %v, want %v", ev.Type, model.EventStarted)
	}
	if ev := <-ch; ev.Message != "early" {
		t.Errorf("second replayed = %q, want early", ev.Message)
	}
}

func TestBrokerReplayIsBounded(t *testing.T) {
	b := NewBroker(3)

	for i := 0; i < 10; i++ {
		b.Publish("job1", model.Event{Type: model.EventLog, Seq: int64(i)})
	}

	ch, cancel := b.Subscribe("job1")
	defer cancel()

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			if count != 3 {
				t.Errorf("replayed %d events, want 3", count)
			}
			return
		}
	}
}

func TestBrokerResetClearsReplay(t *testing.T) {
	b := NewBroker(16)
	b.Publish("job1", model.Event{Type: model.EventLog, Message: "old run"})
	b.Reset("job1")

	ch, cancel := b.Subscribe("job1")
	defer cancel()

	select {
	case ev := <-ch:
		t.Errorf("got replayed event %+v after reset", ev)
	default:
	}
}

func TestBrokerSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker(2)
	_, cancel := b.Subscribe("job1")
	defer cancel()

	// Channel capacity is 2*bufferSize; overflow it without reading.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			b.Publish("job1", model.Event{Type: model.EventLog})
		}
		close(done)
	}()

	<-done
}

func TestBrokerCancelIsIdempotent(t *testing.T) {
	b := NewBroker(16)
	_, cancel := b.Subscribe("job1")
	cancel()
	cancel()

	b.Publish("job1", model.Event{Type: model.EventLog})
}

func TestBrokerDropClosesSubscribers(t *testing.T) {
	b := NewBroker(16)
	ch, cancel := b.Subscribe("job1")

	b.Drop("job1")

	if _, ok := <-ch; ok {
		t.Error("subscriber channel still open after drop")
	}

	// Cancelling after the drop must not close the channel again.
	cancel()

	b.mu.Lock()
	_, ok := b.topics["job1"]
	b.mu.Unlock()
	if ok {
		t.Error("topic still registered after drop")
	}
}

func TestBrokerDropUnknownTopicIsNoop(t *testing.T) {
	b := NewBroker(16)
	b.Drop("ghost")

	// Publishing afterwards recreates the topic cleanly.
	b.Publish("ghost", model.Event{Type: model.EventLog})
}
