package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/parley-chat/parley/internal/model"
)

// MessagePage is one page of conversation history. NextCursor is empty when
// there are no older messages.
type MessagePage struct {
	Messages   []model.Message `json:"messages"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// ListMessages fetches a history page for a conversation, oldest-last.
func (g *Gateway) ListMessages(ctx context.Context, chatID string, limit int, cursor string) (*MessagePage, error) {
	endpoint := "/chats/" + url.PathEscape(chatID) + "/messages"
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	data, err := g.doJSON(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return nil, err
	}
	var page MessagePage
	if err := decode(endpoint, data, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SendMessageRequest carries a persistent (non-live) send.
type SendMessageRequest struct {
	Text      string `json:"text"`
	Type      string `json:"type,omitempty"`
	ReplyToID string `json:"replyToId,omitempty"`
}

// SendMessage persists a message over HTTP. This is the synchronizer's
// fallback path when the live channel is not connected.
func (g *Gateway) SendMessage(ctx context.Context, chatID string, req SendMessageRequest) (*model.Message, error) {
	endpoint := "/chats/" + url.PathEscape(chatID) + "/messages"
	data, err := g.doJSON(ctx, http.MethodPost, endpoint, nil, req)
	if err != nil {
		return nil, err
	}
	var msg model.Message
	if err := decode(endpoint, data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessage replaces a message body.
func (g *Gateway) EditMessage(ctx context.Context, messageID, text string) (*model.Message, error) {
	endpoint := "/messages/" + url.PathEscape(messageID)
	data, err := g.doJSON(ctx, http.MethodPatch, endpoint, nil, map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	var msg model.Message
	if err := decode(endpoint, data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage deletes a message.
func (g *Gateway) DeleteMessage(ctx context.Context, messageID string) error {
	endpoint := "/messages/" + url.PathEscape(messageID)
	_, err := g.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
	return err
}

// ReactMessage attaches a reaction to a message.
func (g *Gateway) ReactMessage(ctx context.Context, messageID, reaction string) error {
	endpoint := "/messages/" + url.PathEscape(messageID) + "/reactions"
	_, err := g.doJSON(ctx, http.MethodPost, endpoint, nil, map[string]string{"reaction": reaction})
	return err
}

// SearchMessages runs a full-text search across the user's conversations.
func (g *Gateway) SearchMessages(ctx context.Context, queryText string, limit int) ([]model.Message, error) {
	query := url.Values{"q": {queryText}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	data, err := g.doJSON(ctx, http.MethodGet, "/search", query, nil)
	if err != nil {
		return nil, err
	}
	var msgs []model.Message
	if err := decode("/search", data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
