package views

import (
	"fmt"
	"strings"

	"github.com/parley-chat/parley/internal/model"
	"github.com/rivo/tview"
)

// MessageView displays the active conversation's message sequence.
type MessageView struct {
	*tview.TextView
	chatName string
	selfID   string
}

// NewMessageView creates the message view.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// SetChatName updates the title with the conversation name.
func (mv *MessageView) SetChatName(name string) {
	mv.chatName = name
	mv.SetTitle(fmt.Sprintf(" %s ", sanitizeForTerminal(name)))
}

// SetSelfID marks which sender renders as "You".
func (mv *MessageView) SetSelfID(id string) {
	mv.selfID = id
}

// Update renders the sequence oldest-first, with a typing line at the
// bottom when anyone in the conversation is typing.
func (mv *MessageView) Update(msgs []model.Message, typing []string) {
	mv.Clear()

	for _, m := range msgs {
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		if mv.selfID != "" && m.SenderID == mv.selfID {
			sender = "You"
		}

		body := sanitizeForTerminal(m.Body)
		if m.DeletedAt != 0 {
			body = "[::d](deleted)[-:-:-]"
		}
		marker := ""
		if m.Pending {
			marker = " [::d](sending...)[-:-:-]"
		}
		if m.EditedAt != 0 {
			marker = " [::d](edited)[-:-:-]"
		}

		ts := formatTimestamp(m.CreatedAt)
		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n", sanitizeForTerminal(sender), ts, marker, body)
		_, _ = fmt.Fprint(mv, line)
	}

	if len(typing) > 0 {
		_, _ = fmt.Fprintf(mv, "[::d]%s typing...[-:-:-]\n", strings.Join(typing, ", "))
	}

	mv.ScrollToEnd()
}
