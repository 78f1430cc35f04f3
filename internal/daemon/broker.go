package daemon

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"amber/internal/logger"
	"amber/internal/model"
)

// GlobalTopic carries daemon-wide events (volume mounts) that are not
// tied to a single job.
const GlobalTopic = ""

// Broker is a per-job publish/subscribe channel. One producer per job
// publishes sequentially, so subscribers observe events in emission
// order. A bounded replay buffer holds the active run's recent events
// so late subscribers catch up.
type Broker struct {
	mu         sync.Mutex
	seq        int64
	bufferSize int
	topics     map[string]*topic
}

type topic struct {
	replay  []model.Event
	subs    map[int]chan model.Event
	nextSub int
}

func NewBroker(bufferSize int) *Broker {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Broker{
		bufferSize: bufferSize,
		topics:     make(map[string]*topic),
	}
}

func (b *Broker) topicLocked(id string) *topic {
	t, ok := b.topics[id]
	if !ok {
		t = &topic{subs: make(map[int]chan model.Event)}
		b.topics[id] = t
	}
	return t
}

// Publish assigns a sequence number and delivers the event to all
// subscribers of the topic. Slow subscribers lose events rather than
// stalling the producer.
func (b *Broker) Publish(topicID string, ev model.Event) model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	ev.Seq = b.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	t := b.topicLocked(topicID)
	t.replay = append(t.replay, ev)
	if len(t.replay) > b.bufferSize {
		trim := len(t.replay) - b.bufferSize
		t.replay = append([]model.Event(nil), t.replay[trim:]...)
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			logger.Log.Warn("subscriber channel full, dropping event",
				zap.String("topic", topicID),
				zap.String("type", string(ev.Type)))
		}
	}

	return ev
}

// Subscribe returns a channel pre-loaded with the topic's replay
// buffer followed by live events, and a cancel function.
func (b *Broker) Subscribe(topicID string) (<-chan model.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(topicID)
	ch := make(chan model.Event, 2*b.bufferSize)
	for _, ev := range t.replay {
		ch <- ev
	}

	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(ch)
		}
	}

	return ch, cancel
}

// Drop removes a topic entirely, closing any remaining subscriber
// channels. Called when a job is deleted.
func (b *Broker) Drop(topicID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[topicID]
	if !ok {
		return
	}
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
	delete(b.topics, topicID)
}

// Reset clears a topic's replay buffer. Called when a new run starts
// so the buffer only ever covers the active run.
func (b *Broker) Reset(topicID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[topicID]; ok {
		t.replay = nil
	}
}
