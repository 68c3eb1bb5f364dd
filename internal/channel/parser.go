package channel

import (
	"encoding/json"
	"fmt"

	"github.com/parley-chat/parley/internal/model"
)

// Inbound is the closed set of events the backend can push. Each frame
// decodes into exactly one variant at the boundary, so downstream handling
// is exhaustive over these types.
type Inbound interface {
	inbound()
}

// NewMessage carries a message pushed for one of the user's conversations.
type NewMessage struct {
	Message model.Message
}

// HistoryPage is the reply to a getMessages exchange.
type HistoryPage struct {
	ChatID     string          `json:"chatId"`
	Messages   []model.Message `json:"messages"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// Typing reports that a user started typing in a conversation.
type Typing TypingEvent

// StopTyping reports that a user stopped typing in a conversation.
type StopTyping TypingEvent

// UserOnline reports a user coming online.
type UserOnline PresenceEvent

// UserOffline reports a user going offline.
type UserOffline PresenceEvent

func (NewMessage) inbound()  {}
func (HistoryPage) inbound() {}
func (Typing) inbound()      {}
func (StopTyping) inbound()  {}
func (UserOnline) inbound()  {}
func (UserOffline) inbound() {}

// ParseFrame decodes an inbound frame into its typed variant. Unknown
// event names and malformed payloads are errors; the caller drops the
// frame with a log line.
func ParseFrame(f Frame) (Inbound, error) {
	switch f.Event {
	case evtNewMessage:
		var msg model.Message
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		if msg.ID == "" || msg.ChatID == "" {
			return nil, fmt.Errorf("decode %s: missing id or chatId", f.Event)
		}
		return NewMessage{Message: msg}, nil
	case evtMessages:
		var page HistoryPage
		if err := json.Unmarshal(f.Data, &page); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return page, nil
	case evtTyping:
		var te TypingEvent
		if err := json.Unmarshal(f.Data, &te); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return Typing(te), nil
	case evtStopTyping:
		var te TypingEvent
		if err := json.Unmarshal(f.Data, &te); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return StopTyping(te), nil
	case evtUserOnline:
		var pe PresenceEvent
		if err := json.Unmarshal(f.Data, &pe); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return UserOnline(pe), nil
	case evtUserOffline:
		var pe PresenceEvent
		if err := json.Unmarshal(f.Data, &pe); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return UserOffline(pe), nil
	default:
		return nil, fmt.Errorf("unknown event %q", f.Event)
	}
}
