// Package broadcast fans out committed state changes to live subscribers.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/technikum29/t29-inventory-server/pkg/core"
)

// DefaultBuffer is the per-subscriber update buffer. A subscriber that
// falls this far behind is dropped rather than blocking the fan-out.
const DefaultBuffer = 16

// dedupWindow is how many recently published commit ids the hub
// remembers. A commit is published twice per server commit (once by
// the coordinator, once by the watcher's filesystem echo), and the
// echo can arrive several commits late under load, so remembering only
// the immediately preceding id is not enough.
const dedupWindow = 128

// Subscriber is one live connection's view of the update stream.
type Subscriber struct {
	ch     chan core.Update
	closed bool // guarded by hub.mu
}

// Updates returns the channel committed updates arrive on. The channel
// is closed when the subscriber is unsubscribed or dropped.
func (s *Subscriber) Updates() <-chan core.Update {
	return s.ch
}

// Hub maintains the set of live subscribers and delivers every
// successful commit to each of them exactly once, in commit order.
// Publish is called by the commit coordinator after the write lock has
// been released, so slow consumers never block new commits.
type Hub struct {
	Logger *slog.Logger

	buffer int

	mu           sync.Mutex
	subs         map[*Subscriber]struct{}
	seen         map[string]struct{}
	seenRing     [dedupWindow]string
	seenNext     int
	lastCommitID string
	published    int
	droppedTotal int
}

// NewHub creates a hub with the default per-subscriber buffer.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Logger: logger,
		buffer: DefaultBuffer,
		subs:   make(map[*Subscriber]struct{}),
		seen:   make(map[string]struct{}, dedupWindow),
	}
}

// Subscribe registers a new live connection.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{ch: make(chan core.Update, h.buffer)}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()

	if h.Logger != nil {
		h.Logger.Debug("subscriber added", "subscribers", count)
	}
	return s
}

// Unsubscribe removes a connection. Safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(s)
}

// Publish delivers an update to every subscriber, in call order.
// Updates carrying a recently published commit id are skipped, so a
// commit observed both by the coordinator and the repository watcher
// reaches each subscriber exactly once, even when the watcher's echo
// trails behind newer commits. A subscriber whose buffer is full is
// dropped (best-effort delivery, no replay).
func (h *Hub) Publish(u core.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if u.CommitID != "" {
		if _, dup := h.seen[u.CommitID]; dup {
			return
		}
		if old := h.seenRing[h.seenNext]; old != "" {
			delete(h.seen, old)
		}
		h.seenRing[h.seenNext] = u.CommitID
		h.seenNext = (h.seenNext + 1) % dedupWindow
		h.seen[u.CommitID] = struct{}{}
	}
	h.lastCommitID = u.CommitID
	h.published++

	for s := range h.subs {
		select {
		case s.ch <- u:
		default:
			h.droppedTotal++
			if h.Logger != nil {
				h.Logger.Warn("dropping slow subscriber", "commit", u.CommitID)
			}
			h.remove(s)
		}
	}
}

// remove deletes and closes a subscriber. Caller holds h.mu.
func (h *Hub) remove(s *Subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
