package service

import (
	"encoding/json"
	"sync"

	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/GoPolymarket/logreplay/internal/pkg/logger"
)

const subscriberBuffer = 64

// TailHub fans persisted records out to live-tail subscribers.
// A subscriber that cannot keep up is disconnected rather than slowing writers.
type TailHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan []byte
}

func NewTailHub() *TailHub {
	return &TailHub{subs: make(map[int]chan []byte)}
}

// Subscribe returns a feed of JSON-encoded records and a func to leave.
// The channel is closed when the subscriber leaves or falls behind.
func (h *TailHub) Subscribe() (<-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan []byte, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *TailHub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *TailHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *TailHub) Publish(rec *model.AccessLog) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs) == 0 {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		logger.Warn("tail: encode record failed", "error", err)
		return
	}
	for id, ch := range h.subs {
		select {
		case ch <- payload:
		default:
			delete(h.subs, id)
			close(ch)
			logger.Warn("tail: dropping slow subscriber", "subscriber", id)
		}
	}
}
