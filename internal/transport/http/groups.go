package http

import "sync"

// GroupMessage is one relayed message within a study-group channel.
type GroupMessage struct {
	GroupID string `json:"groupId"`
	From    string `json:"from"`
	Message string `json:"message"`
}

// GroupHub is the session-independent sibling of the quiz broadcast path: a
// plain fan-out per study-group/notes context, sharing the transport but not
// the session state machine.
type GroupHub struct {
	mu     sync.RWMutex
	groups map[string]map[chan GroupMessage]struct{}
}

func NewGroupHub() *GroupHub {
	return &GroupHub{groups: make(map[string]map[chan GroupMessage]struct{})}
}

// Join subscribes to a group. The caller must invoke cancel to avoid leaks.
func (h *GroupHub) Join(groupID string) (<-chan GroupMessage, func()) {
	ch := make(chan GroupMessage, 8)

	h.mu.Lock()
	if h.groups[groupID] == nil {
		h.groups[groupID] = make(map[chan GroupMessage]struct{})
	}
	h.groups[groupID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if members, ok := h.groups[groupID]; ok {
			if _, ok := members[ch]; ok {
				delete(members, ch)
				close(ch)
			}
			if len(members) == 0 {
				delete(h.groups, groupID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast fans a message out to every group member, dropping the oldest
// pending message for a member that has fallen behind.
func (h *GroupHub) Broadcast(groupID string, msg GroupMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.groups[groupID] {
		select {
		case ch <- msg:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- msg
		}
	}
}
