// Package hub fans pipeline progress events out to websocket subscribers.
package hub

import (
	"sync"

	"mark/internal/pipeline"
)

// Notice is one progress event tagged with the run it belongs to.
type Notice struct {
	RunID string         `json:"run_id"`
	Event pipeline.Event `json:"event"`
}

// Hub broadcasts run progress. Slow subscribers lose events rather than
// blocking the pipeline.
type Hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	runID string // "" subscribes to every run
	ch    chan Notice
}

func New() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Publish delivers a notice to every matching subscriber without blocking.
func (h *Hub) Publish(runID string, ev pipeline.Event) {
	n := Notice{RunID: runID, Event: ev}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if s.runID != "" && s.runID != runID {
			continue
		}
		select {
		case s.ch <- n:
		default:
		}
	}
}

// Observer adapts Publish to the pipeline's observer signature.
func (h *Hub) Observer(runID string) pipeline.Observer {
	return func(ev pipeline.Event) { h.Publish(runID, ev) }
}

// Subscribe registers for a run's events; an empty runID receives every run.
// The returned cancel must be called to release the subscription.
func (h *Hub) Subscribe(runID string) (<-chan Notice, func()) {
	s := &subscriber{runID: runID, ch: make(chan Notice, 32)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
	}
	return s.ch, cancel
}
