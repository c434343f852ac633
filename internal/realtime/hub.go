// Package realtime fans content events out to connected viewers.
package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/subjectboard/server/internal/metrics"
)

// Message is one event as delivered to a viewer. Data is the JSON encoding
// of the payload, shared by all subscribers.
type Message struct {
	Seq   uint64
	Event string
	Data  []byte
}

type subscriber struct {
	id uint64
	ch chan Message
}

// Hub is an in-process broadcaster. Publish never blocks: a viewer whose
// buffer is full misses the event.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	buffer      int
	closed      bool

	nextID atomic.Uint64
	seq    atomic.Uint64

	logger zerolog.Logger
}

// NewHub creates a hub whose subscriber channels hold buffer messages.
func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subscribers: make(map[uint64]*subscriber),
		buffer:      buffer,
		logger:      logger.With().Str("component", "realtime").Logger(),
	}
}

// Subscribe registers a viewer. The returned cancel func unregisters it and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{
		id: h.nextID.Add(1),
		ch: make(chan Message, h.buffer),
	}
	if h.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subscribers[sub.id] = sub
	metrics.RealtimeSubscribers.Inc()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { h.unsubscribe(sub.id) })
	}
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subscribers[id]
	if !ok {
		return
	}
	delete(h.subscribers, id)
	close(sub.ch)
	metrics.RealtimeSubscribers.Dec()
}

// Publish encodes payload once and offers it to every subscriber.
func (h *Hub) Publish(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("failed to encode realtime payload")
		return
	}
	msg := Message{Seq: h.seq.Add(1), Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	metrics.RealtimeEventsPublished.WithLabelValues(event).Inc()
	for _, sub := range h.subscribers {
		select {
		case sub.ch <- msg:
		default:
			metrics.RealtimeEventsDropped.WithLabelValues(event).Inc()
			h.logger.Debug().Uint64("subscriber", sub.id).Str("event", event).Msg("dropped event for slow viewer")
		}
	}
}

// SubscriberCount returns the number of connected viewers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close disconnects every viewer. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		close(sub.ch)
		metrics.RealtimeSubscribers.Dec()
	}
}
