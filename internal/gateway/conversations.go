package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/parley-chat/parley/internal/model"
)

// ListChats returns every conversation visible to the authenticated user.
func (g *Gateway) ListChats(ctx context.Context) ([]model.Conversation, error) {
	data, err := g.doJSON(ctx, http.MethodGet, "/chats", nil, nil)
	if err != nil {
		return nil, err
	}
	var chats []model.Conversation
	if err := decode("/chats", data, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// GetChat returns a single conversation.
func (g *Gateway) GetChat(ctx context.Context, id string) (*model.Conversation, error) {
	endpoint := "/chats/" + url.PathEscape(id)
	data, err := g.doJSON(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	var chat model.Conversation
	if err := decode(endpoint, data, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// CreateChatRequest carries the fields for conversation creation.
type CreateChatRequest struct {
	Name           string   `json:"name,omitempty"`
	ParticipantIDs []string `json:"participantIds"`
	IsGroup        bool     `json:"isGroup"`
}

// CreateChat creates a direct or group conversation.
func (g *Gateway) CreateChat(ctx context.Context, req CreateChatRequest) (*model.Conversation, error) {
	data, err := g.doJSON(ctx, http.MethodPost, "/chats", nil, req)
	if err != nil {
		return nil, err
	}
	var chat model.Conversation
	if err := decode("/chats", data, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// UpdateChatRequest carries partial conversation updates; nil fields are
// left unchanged by the server.
type UpdateChatRequest struct {
	Name     *string `json:"name,omitempty"`
	Pinned   *bool   `json:"pinned,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
	Muted    *bool   `json:"muted,omitempty"`
}

// UpdateChat patches conversation metadata and flags.
func (g *Gateway) UpdateChat(ctx context.Context, id string, req UpdateChatRequest) (*model.Conversation, error) {
	endpoint := "/chats/" + url.PathEscape(id)
	data, err := g.doJSON(ctx, http.MethodPatch, endpoint, nil, req)
	if err != nil {
		return nil, err
	}
	var chat model.Conversation
	if err := decode(endpoint, data, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// DeleteChat deletes a conversation. Local state is dropped only after this
// call succeeds.
func (g *Gateway) DeleteChat(ctx context.Context, id string) error {
	endpoint := "/chats/" + url.PathEscape(id)
	_, err := g.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
	return err
}

// LeaveChat removes the authenticated user from a group conversation.
func (g *Gateway) LeaveChat(ctx context.Context, id string) error {
	endpoint := "/chats/" + url.PathEscape(id) + "/leave"
	_, err := g.doJSON(ctx, http.MethodPost, endpoint, nil, nil)
	return err
}

// AddParticipant adds a user to a group conversation.
func (g *Gateway) AddParticipant(ctx context.Context, chatID, userID string) error {
	endpoint := "/chats/" + url.PathEscape(chatID) + "/participants"
	_, err := g.doJSON(ctx, http.MethodPost, endpoint, nil, map[string]string{"userId": userID})
	return err
}

// RemoveParticipant removes a user from a group conversation.
func (g *Gateway) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	endpoint := "/chats/" + url.PathEscape(chatID) + "/participants/" + url.PathEscape(userID)
	_, err := g.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
	return err
}

// InviteParticipant invites someone to a conversation by email address.
func (g *Gateway) InviteParticipant(ctx context.Context, chatID, email string) error {
	endpoint := "/chats/" + url.PathEscape(chatID) + "/invites"
	_, err := g.doJSON(ctx, http.MethodPost, endpoint, nil, map[string]string{"email": email})
	return err
}
