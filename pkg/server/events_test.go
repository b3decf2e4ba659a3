package server

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventRecorder captures delivered events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Deliver(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// waitFor polls until cond is true or the deadline passes. The broadcaster
// delivers asynchronously, so tests must wait rather than assert
// immediately.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met before deadline")
}

func TestBroadcasterDeliversToSubscribers(t *testing.T) {
	b := NewBroadcaster(slog.NewBackend(io.Discard).Logger("T"), 16, 2)
	defer b.Stop()
	rec := &eventRecorder{}
	b.Subscribe(rec)

	b.Publish(Event{Type: EventGameStateAvailable, GameID: 7, Version: 3})
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	ev := rec.snapshot()[0]
	assert.Equal(t, EventGameStateAvailable, ev.Type)
	assert.EqualValues(t, 7, ev.GameID)
	assert.EqualValues(t, 3, ev.Version)
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	// Zero workers never drain the queue; overflowing must not block.
	b := &Broadcaster{
		log:      slog.NewBackend(io.Discard).Logger("T"),
		queue:    make(chan Event, 1),
		stopChan: make(chan struct{}),
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Publish(Event{Type: EventYourTurn, GameID: 1})
		b.Publish(Event{Type: EventYourTurn, GameID: 2})
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full queue")
	}
}

// TestMutationBroadcasts drives a real mutation through the HTTP surface and
// checks the post-commit events: a state-available for the new version, and
// long-wait invalidation when the game starts.
func TestMutationBroadcasts(t *testing.T) {
	srv, ts := testServer(t)
	rec := &eventRecorder{}
	srv.Broadcaster().Subscribe(rec)

	gameID, version := createGameWithAIs(t, ts)

	waitFor(t, func() bool {
		for _, ev := range rec.snapshot() {
			if ev.Type == EventGameStateAvailable && ev.GameID == gameID {
				return true
			}
		}
		return false
	})

	resp := doJSON(t, "POST", fmt.Sprintf("%s/games/%d/ready", ts.URL, gameID), "alice",
		map[string]any{"is_ready": true, "version": version}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	newVersion, _ := ParseGameVersionFromETag(resp.Header.Get("ETag"))

	waitFor(t, func() bool {
		var stateAvailable, longWait, yourTurn bool
		for _, ev := range rec.snapshot() {
			switch ev.Type {
			case EventGameStateAvailable:
				if ev.Version == newVersion {
					stateAvailable = true
				}
			case EventLongWaitInvalidated:
				if ev.UserID == "alice" {
					longWait = true
				}
			case EventYourTurn:
				// Game starts, AIs bid, then it is alice's turn.
				if ev.UserID == "alice" {
					yourTurn = true
				}
			}
		}
		return stateAvailable && longWait && yourTurn
	})

	// One state-available per committed version, no duplicates.
	seen := make(map[int64]int)
	for _, ev := range rec.snapshot() {
		if ev.Type == EventGameStateAvailable && ev.GameID == gameID {
			seen[ev.Version]++
		}
	}
	for version, count := range seen {
		assert.Equal(t, 1, count, "version %d published more than once", version)
	}
}
