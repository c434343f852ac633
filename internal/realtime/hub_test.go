package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subjectboard/server/internal/metrics"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestHub_FansOutToAllSubscribers(t *testing.T) {
	hub := NewHub(4, zerolog.Nop())
	a, cancelA := hub.Subscribe()
	defer cancelA()
	b, cancelB := hub.Subscribe()
	defer cancelB()

	hub.Publish("newElement", map[string]string{"id": "x"})

	for _, ch := range []<-chan Message{a, b} {
		msg := receive(t, ch)
		assert.Equal(t, "newElement", msg.Event)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &payload))
		assert.Equal(t, "x", payload["id"])
	}
}

func TestHub_SequenceIncreases(t *testing.T) {
	hub := NewHub(4, zerolog.Nop())
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish("newElement", 1)
	hub.Publish("updateElement", 2)

	first := receive(t, ch)
	second := receive(t, ch)
	assert.Less(t, first.Seq, second.Seq)
}

func TestHub_DropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(1, zerolog.Nop())
	slow, cancelSlow := hub.Subscribe()
	defer cancelSlow()

	before := testutil.ToFloat64(metrics.RealtimeEventsDropped.WithLabelValues("deleteElement"))

	done := make(chan struct{})
	go func() {
		hub.Publish("deleteElement", 1)
		hub.Publish("deleteElement", 2)
		hub.Publish("deleteElement", 3)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	assert.Equal(t, before+2, testutil.ToFloat64(metrics.RealtimeEventsDropped.WithLabelValues("deleteElement")))
	msg := receive(t, slow)
	assert.Equal(t, "1", string(msg.Data))
}

func TestHub_CancelUnsubscribes(t *testing.T) {
	hub := NewHub(1, zerolog.Nop())
	ch, cancel := hub.Subscribe()
	assert.Equal(t, 1, hub.SubscriberCount())

	cancel()
	cancel()
	assert.Equal(t, 0, hub.SubscriberCount())

	_, ok := <-ch
	assert.False(t, ok)
}

func TestHub_CloseDisconnectsEveryone(t *testing.T) {
	hub := NewHub(1, zerolog.Nop())
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Close()
	_, ok := <-ch
	assert.False(t, ok)

	hub.Publish("newElement", 1)
	late, lateCancel := hub.Subscribe()
	defer lateCancel()
	_, ok = <-late
	assert.False(t, ok)
}

func TestHub_ConcurrentPublishAndSubscribe(t *testing.T) {
	hub := NewHub(8, zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancel := hub.Subscribe()
			cancel()
		}()
		go func(i int) {
			defer wg.Done()
			hub.Publish("updateElement", i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, hub.SubscriberCount())
}

func TestHub_UnencodablePayloadIsSkipped(t *testing.T) {
	hub := NewHub(1, zerolog.Nop())
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish("newElement", make(chan int))
	select {
	case <-ch:
		t.Fatal("unexpected delivery")
	default:
	}
}
