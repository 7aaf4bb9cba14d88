package broadcast

import (
	"github.com/aretw0/introspection"
)

// HubState exposes internal state for observability.
type HubState struct {
	Subscribers  int    `json:"subscribers"`
	Published    int    `json:"published"`
	Dropped      int    `json:"dropped"`
	LastCommitID string `json:"last_commit_id,omitempty"`
}

// State implements introspection.Introspectable.
func (h *Hub) State() any {
	h.mu.Lock()
	defer h.mu.Unlock()

	return HubState{
		Subscribers:  len(h.subs),
		Published:    h.published,
		Dropped:      h.droppedTotal,
		LastCommitID: h.lastCommitID,
	}
}

// ComponentType implements introspection.Component.
func (h *Hub) ComponentType() string {
	return "broadcaster"
}

var _ introspection.Introspectable = (*Hub)(nil)
var _ introspection.Component = (*Hub)(nil)
