package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/revoice/internal/models"
)

func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case ev := <-sub.C:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestBus_SnapshotOnSubscribe(t *testing.T) {
	state := &models.TaskState{ID: "t1", Status: models.StatusProcessing, CurrentStep: 4}
	bus := New(8, func(taskID string) (Event, bool) {
		require.Equal(t, "t1", taskID)
		return StatusEvent(state), true
	}, nil)

	sub := bus.Subscribe("t1")
	defer bus.Unsubscribe(sub)

	ev := <-sub.C
	assert.Equal(t, TypeStatus, ev.Type)
	assert.Equal(t, "processing", ev.Status)
	assert.Equal(t, 4, ev.Step)
}

func TestBus_PublishToTaskSubscribersOnly(t *testing.T) {
	bus := New(8, nil, nil)
	a := bus.Subscribe("task-a")
	other := bus.Subscribe("task-b")
	defer bus.Unsubscribe(a)
	defer bus.Unsubscribe(other)

	bus.Publish(ProgressEvent("task-a", 7, 0.5, "cloning", 3, 10))

	evs := drain(a)
	require.Len(t, evs, 1)
	assert.Equal(t, TypeProgress, evs[0].Type)
	assert.Equal(t, "Voice Cloning", evs[0].StepName)
	assert.Equal(t, 3, evs[0].CurrentSegment)
	assert.False(t, evs[0].Timestamp.IsZero())

	assert.Empty(t, drain(other))
}

func TestBus_DropOldestWithBackpressureMarker(t *testing.T) {
	bus := New(2, nil, nil)
	sub := bus.Subscribe("t")
	defer bus.Unsubscribe(sub)

	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: TypeProgress, TaskID: "t", Message: string(rune('a' + i))})
	}

	evs := drain(sub)
	require.Len(t, evs, 2, "queue bounded at capacity")
	assert.Equal(t, TypeBackpressure, evs[0].Type, "marker precedes the surviving event")
	assert.Positive(t, evs[0].Dropped)
	last := evs[len(evs)-1]
	assert.Equal(t, TypeProgress, last.Type)
	assert.Equal(t, "e", last.Message, "newest event survives")
	assert.Positive(t, last.Dropped, "delivery after overflow carries the drop count")
}

func TestBus_DropCountResetsAfterDelivery(t *testing.T) {
	bus := New(1, nil, nil)
	sub := bus.Subscribe("t")
	defer bus.Unsubscribe(sub)

	bus.Publish(Event{Type: TypeProgress, TaskID: "t", Message: "one"})
	bus.Publish(Event{Type: TypeProgress, TaskID: "t", Message: "two"}) // evicts "one"

	evs := drain(sub)
	require.Len(t, evs, 1)
	assert.Equal(t, 1, evs[0].Dropped)

	bus.Publish(Event{Type: TypeProgress, TaskID: "t", Message: "three"})
	evs = drain(sub)
	require.Len(t, evs, 1)
	assert.Zero(t, evs[0].Dropped, "drop counter resets once a delivery lands")
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New(4, nil, nil)
	sub := bus.Subscribe("t")
	assert.Equal(t, 1, bus.SubscriberCount("t"))

	bus.Unsubscribe(sub)
	assert.Zero(t, bus.SubscriberCount("t"))

	_, open := <-sub.C
	assert.False(t, open, "channel closed on unsubscribe")

	bus.Unsubscribe(sub) // idempotent
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := New(256, nil, nil)
	sub := bus.Subscribe("t")
	defer bus.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: TypeProgress, TaskID: "t"})
		}
		close(done)
	}()

	received := 0
	timeout := time.After(2 * time.Second)
	for received < 100 {
		select {
		case <-sub.C:
			received++
		case <-timeout:
			t.Fatalf("received %d of 100 events", received)
		}
	}
	<-done
}

func TestStatusEvent(t *testing.T) {
	state := &models.TaskState{
		ID:     "t",
		Status: models.StatusFailed,
		Error:  "cancelled",
	}
	ev := StatusEvent(state)
	assert.Equal(t, TypeStatus, ev.Type)
	assert.Equal(t, "failed", ev.Status)
	assert.Equal(t, "cancelled", ev.Error)
}
