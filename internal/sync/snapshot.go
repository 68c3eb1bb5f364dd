package sync

import (
	"sort"
	"time"

	"github.com/parley-chat/parley/internal/bus"
	"github.com/parley-chat/parley/internal/model"
	"github.com/parley-chat/parley/internal/status"
)

// Snapshot is an immutable view of the synchronized state, published on the
// bus after every mutation. Consumers render it as-is and never write back.
type Snapshot struct {
	Conversations []model.Conversation
	ActiveID      string
	// Messages is the active conversation's sequence, oldest first.
	Messages []model.Message
	// TypingUsers lists users typing in the active conversation.
	TypingUsers []string
	Online      map[string]bool
	Connection  status.State
}

// Snapshot returns the current view without waiting for the next mutation.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// ActiveID returns the id of the active conversation, or "".
func (e *Engine) ActiveID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		ActiveID:   e.active,
		Connection: e.connState,
	}

	snap.Conversations = make([]model.Conversation, 0, len(e.convs))
	for _, c := range e.convs {
		cc := *c
		if c.LastMessage != nil {
			last := *c.LastMessage
			cc.LastMessage = &last
		}
		snap.Conversations = append(snap.Conversations, cc)
	}
	sort.Slice(snap.Conversations, func(i, j int) bool {
		a, b := snap.Conversations[i], snap.Conversations[j]
		at, bt := int64(0), int64(0)
		if a.LastMessage != nil {
			at = a.LastMessage.CreatedAt
		}
		if b.LastMessage != nil {
			bt = b.LastMessage.CreatedAt
		}
		if at != bt {
			return at > bt
		}
		return a.ID < b.ID
	})

	if e.active != "" {
		snap.Messages = append([]model.Message{}, e.messages[e.active]...)
		for user := range e.typing[e.active] {
			snap.TypingUsers = append(snap.TypingUsers, user)
		}
		sort.Strings(snap.TypingUsers)
	}

	snap.Online = make(map[string]bool, len(e.online))
	for user := range e.online {
		snap.Online[user] = true
	}
	return snap
}

func (e *Engine) publishLocked() {
	e.bus.Publish(bus.Event{
		Kind:      bus.KindSyncSnapshot,
		Timestamp: time.Now(),
		Payload:   e.snapshotLocked(),
	})
}
