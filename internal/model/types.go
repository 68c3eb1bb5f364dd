package model

// Identity is a user known to the client. Owned by the session store;
// read-only everywhere else.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Online      bool   `json:"online,omitempty"`
}

// Conversation is a direct or group messaging thread.
type Conversation struct {
	ID           string     `json:"id"`
	Name         string     `json:"name,omitempty"`
	IsGroup      bool       `json:"isGroup"`
	Participants []Identity `json:"participants,omitempty"`
	LastMessage  *Message   `json:"lastMessage,omitempty"`
	UnreadCount  int        `json:"unreadCount"`
	Pinned       bool       `json:"pinned"`
	Archived     bool       `json:"archived"`
	Muted        bool       `json:"muted"`
}

// Message types accepted by the backend.
const (
	TypeText   = "text"
	TypeImage  = "image"
	TypeFile   = "file"
	TypeVoice  = "voice"
	TypeSystem = "system"
)

// Message is a single entry in a conversation's sequence. A Message belongs
// to exactly one Conversation. Pending marks an optimistic local entry that
// has not yet been confirmed by the server.
type Message struct {
	ID         string `json:"id"`
	ChatID     string `json:"chatId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
	Body       string `json:"text"`
	Type       string `json:"type"`
	CreatedAt  int64  `json:"createdAt"`
	EditedAt   int64  `json:"editedAt,omitempty"`
	DeletedAt  int64  `json:"deletedAt,omitempty"`
	Read       bool   `json:"read"`
	ReplyToID  string `json:"replyToId,omitempty"`
	Pending    bool   `json:"-"`
}

// Credential is the opaque bearer token issued at sign-in, plus its
// issuance timestamp (unix milliseconds).
type Credential struct {
	Token    string
	IssuedAt int64
}
