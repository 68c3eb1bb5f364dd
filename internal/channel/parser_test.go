package channel

import (
	"encoding/json"
	"testing"
)

func TestParseFrameNewMessage(t *testing.T) {
	f := Frame{
		Event: "newMessage",
		Data:  json.RawMessage(`{"id":"m1","chatId":"c1","senderId":"u2","text":"hello","type":"text","createdAt":1700000000000}`),
	}
	evt, err := ParseFrame(f)
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	nm, ok := evt.(NewMessage)
	if !ok {
		t.Fatalf("event type = %T, want NewMessage", evt)
	}
	if nm.Message.ID != "m1" || nm.Message.ChatID != "c1" || nm.Message.Body != "hello" {
		t.Errorf("message = %+v", nm.Message)
	}
}

func TestParseFrameTypingVariants(t *testing.T) {
	tests := []struct {
		name  string
		event string
		want  func(Inbound) bool
	}{
		{"typing", "typing", func(e Inbound) bool {
			te, ok := e.(Typing)
			return ok && te.UserID == "u2" && te.ChatID == "c1"
		}},
		{"stop_typing", "stop_typing", func(e Inbound) bool {
			te, ok := e.(StopTyping)
			return ok && te.UserID == "u2" && te.ChatID == "c1"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Frame{Event: tt.event, Data: json.RawMessage(`{"userId":"u2","chatId":"c1"}`)}
			evt, err := ParseFrame(f)
			if err != nil {
				t.Fatalf("ParseFrame() error = %v", err)
			}
			if !tt.want(evt) {
				t.Errorf("event = %#v", evt)
			}
		})
	}
}

func TestParseFramePresence(t *testing.T) {
	tests := []struct {
		name  string
		event string
		want  func(Inbound) bool
	}{
		{"online", "user_online", func(e Inbound) bool {
			pe, ok := e.(UserOnline)
			return ok && pe.UserID == "u3"
		}},
		{"offline", "user_offline", func(e Inbound) bool {
			pe, ok := e.(UserOffline)
			return ok && pe.UserID == "u3"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Frame{Event: tt.event, Data: json.RawMessage(`{"userId":"u3"}`)}
			evt, err := ParseFrame(f)
			if err != nil {
				t.Fatalf("ParseFrame() error = %v", err)
			}
			if !tt.want(evt) {
				t.Errorf("event = %#v", evt)
			}
		})
	}
}

func TestParseFrameHistoryPage(t *testing.T) {
	f := Frame{
		Event: "messages",
		Ack:   3,
		Data:  json.RawMessage(`{"chatId":"c1","messages":[{"id":"m1","chatId":"c1","text":"a"},{"id":"m2","chatId":"c1","text":"b"}],"nextCursor":"m0"}`),
	}
	evt, err := ParseFrame(f)
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	page, ok := evt.(HistoryPage)
	if !ok {
		t.Fatalf("event type = %T, want HistoryPage", evt)
	}
	if len(page.Messages) != 2 || page.NextCursor != "m0" {
		t.Errorf("page = %+v", page)
	}
}

func TestParseFrameRejects(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"unknown event", Frame{Event: "totallyNew", Data: json.RawMessage(`{}`)}},
		{"malformed payload", Frame{Event: "newMessage", Data: json.RawMessage(`"nope"`)}},
		{"message without id", Frame{Event: "newMessage", Data: json.RawMessage(`{"chatId":"c1","text":"x"}`)}},
		{"message without chatId", Frame{Event: "newMessage", Data: json.RawMessage(`{"id":"m1","text":"x"}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFrame(tt.frame); err == nil {
				t.Error("ParseFrame() expected error")
			}
		})
	}
}
