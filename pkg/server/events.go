package server

import (
	"sync"

	"github.com/decred/slog"
)

// EventType enumerates the broadcast events.
type EventType string

const (
	// EventGameStateAvailable tells subscribers a new version exists.
	EventGameStateAvailable EventType = "game_state_available"
	// EventYourTurn tells one human it is their turn.
	EventYourTurn EventType = "your_turn"
	// EventLongWaitInvalidated tells a human a long-wait condition changed
	// (game started/ended/abandoned, someone left or rejoined).
	EventLongWaitInvalidated EventType = "long_wait_invalidated"
)

// Event is one broadcast message. GameID is always set; UserID only for the
// per-user event types.
type Event struct {
	Type    EventType
	GameID  int64
	UserID  string
	Version int64
}

// Subscriber receives broadcast events. Implementations must not block for
// long; slow consumers get events dropped, never the request failed.
type Subscriber interface {
	Deliver(ev Event)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ev Event)

// Deliver implements Subscriber.
func (f SubscriberFunc) Deliver(ev Event) {
	f(ev)
}

// Broadcaster fans events out to subscribers from a worker pool behind a
// bounded queue. Publishing never fails the caller: a full queue drops the
// event and logs it, and clients recover via their next poll or reconnect.
type Broadcaster struct {
	log      slog.Logger
	queue    chan Event
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	metrics  *Metrics

	mu   sync.RWMutex
	subs []Subscriber
}

// NewBroadcaster creates a broadcaster with the given queue depth and worker
// count.
func NewBroadcaster(log slog.Logger, queueSize, workers int) *Broadcaster {
	b := &Broadcaster{
		log:      log,
		queue:    make(chan Event, queueSize),
		stopChan: make(chan struct{}),
	}
	b.startWorkers(workers)
	return b
}

func (b *Broadcaster) startWorkers(workers int) {
	b.started = true
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go func(id int) {
			defer b.wg.Done()
			for {
				select {
				case <-b.stopChan:
					return
				case ev := <-b.queue:
					b.deliver(ev)
				}
			}
		}(i)
	}
}

// Subscribe registers a subscriber for all future events.
func (b *Broadcaster) Subscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
}

// Publish enqueues an event. Best effort: a full queue drops it.
func (b *Broadcaster) Publish(ev Event) {
	select {
	case b.queue <- ev:
		b.log.Debugf("published %s for game %d v%d", ev.Type, ev.GameID, ev.Version)
	default:
		b.metrics.broadcastDropped()
		b.log.Errorf("broadcast queue full, dropping %s for game %d", ev.Type, ev.GameID)
	}
}

func (b *Broadcaster) deliver(ev Event) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs...)
	b.mu.RUnlock()
	for _, sub := range subs {
		sub.Deliver(ev)
	}
}

// Stop drains the workers. Queued events not yet delivered are dropped.
func (b *Broadcaster) Stop() {
	if !b.started {
		return
	}
	b.started = false
	close(b.stopChan)
	b.wg.Wait()
}
