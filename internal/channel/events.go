package channel

import "encoding/json"

// Frame is the wire envelope for every event crossing the live connection,
// in both directions. Ack correlates request/response exchanges
// (getMessages) and is zero for everything else.
type Frame struct {
	Event string          `json:"event"`
	Ack   uint64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound event names fixed by the backend contract.
const (
	evtSendMessage   = "sendMessage"
	evtJoinChat      = "joinChat"
	evtLeaveChat     = "leaveChat"
	evtGetMessages   = "getMessages"
	evtDeleteMessage = "deleteMessage"
	evtTyping        = "typing"
	evtStopTyping    = "stop_typing"
)

// Inbound event names fixed by the backend contract.
const (
	evtNewMessage  = "newMessage"
	evtMessages    = "messages"
	evtUserOnline  = "user_online"
	evtUserOffline = "user_offline"
)

type sendMessagePayload struct {
	ChatID    string `json:"chatId"`
	Text      string `json:"text"`
	Type      string `json:"type,omitempty"`
	ReplyToID string `json:"replyToId,omitempty"`
}

type chatPayload struct {
	ChatID string `json:"chatId"`
}

type getMessagesPayload struct {
	ChatID string `json:"chatId"`
	Limit  int    `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

type deleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

// TypingEvent is the payload for typing and stop_typing events, inbound
// and outbound. Outbound frames omit UserID; the server fills it in.
type TypingEvent struct {
	UserID string `json:"userId,omitempty"`
	ChatID string `json:"chatId"`
}

// PresenceEvent is the payload for user_online and user_offline events.
type PresenceEvent struct {
	UserID string `json:"userId"`
}
