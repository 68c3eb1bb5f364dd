// Package channel owns the one persistent live connection to the messaging
// service. Outbound operations are typed and fire-and-forget except the
// ack-correlated history exchange; inbound frames are validated into a
// closed event set and published on the bus.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/parley-chat/parley/internal/bus"
	"github.com/parley-chat/parley/internal/status"
	"go.uber.org/zap"
)

// ErrNoCredential is returned by Connect when called without a bearer
// token; the channel never dials unauthenticated.
var ErrNoCredential = errors.New("no credential, refusing to connect")

// ErrNotConnected is returned by request/response exchanges issued while
// the channel is not connected. Fire-and-forget sends silently no-op
// instead.
var ErrNotConnected = errors.New("live channel not connected")

const (
	writeTimeout      = 5 * time.Second
	defaultAckTimeout = 10 * time.Second
)

// Channel manages the live websocket connection. At most one connection is
// open at any time; a credential change tears the current one down and, if
// still authenticated, dials a new one.
type Channel struct {
	wsURL      string
	appID      string
	machine    *status.Machine
	bus        *bus.Bus
	logger     *zap.Logger
	ackTimeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc

	ackSeq    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan HistoryPage
}

// New creates a channel for the service at serverURL. The live endpoint is
// derived from the HTTP base URL.
func New(serverURL, appID string, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Channel {
	return &Channel{
		wsURL:      LiveURL(serverURL),
		appID:      appID,
		machine:    machine,
		bus:        b,
		logger:     logger,
		ackTimeout: defaultAckTimeout,
		pending:    make(map[uint64]chan HistoryPage),
	}
}

// LiveURL converts the service base URL into the websocket endpoint.
func LiveURL(serverURL string) string {
	u := strings.TrimRight(serverURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/live"
}

// State returns the current connection state.
func (c *Channel) State() status.State {
	return c.machine.Current()
}

// IsConnected reports whether the channel can carry live traffic. Callers
// must recheck this before sending; there is no client-side queue.
func (c *Channel) IsConnected() bool {
	return c.machine.Current() == status.Connected
}

// Connect tears down any existing connection and dials a new one with the
// given bearer token. Dial failures land the machine in ERROR; the only
// way back is another Connect driven by a credential state change.
func (c *Channel) Connect(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoCredential
	}
	c.teardown()

	if err := c.machine.Transition(status.Connecting); err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("X-App-ID", c.appID)

	conn, resp, err := websocket.Dial(ctx, c.wsURL, &websocket.DialOptions{HTTPHeader: header})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.logger.Error("live connection dial failed", zap.Error(err))
		_ = c.machine.Transition(status.Error)
		return fmt.Errorf("dial live channel: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.machine.Transition(status.Connected); err != nil {
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return err
	}

	c.logger.Info("live channel connected", zap.String("url", c.wsURL))
	go c.readLoop(loopCtx, conn)
	return nil
}

// Close tears down the connection and settles the machine in DISCONNECTED.
func (c *Channel) Close() {
	c.teardown()
	if c.machine.Current() != status.Disconnected {
		_ = c.machine.Transition(status.Disconnected)
	}
}

func (c *Channel) teardown() {
	c.mu.Lock()
	conn, cancel := c.conn, c.cancel
	c.conn, c.cancel = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

// Send emits a sendMessage event. No effect if not connected.
func (c *Channel) Send(chatID, text, msgType, replyToID string) {
	c.emit(evtSendMessage, sendMessagePayload{
		ChatID:    chatID,
		Text:      text,
		Type:      msgType,
		ReplyToID: replyToID,
	})
}

// Join scopes live updates to the given conversation. Leaving the
// previously-joined conversation first is the caller's responsibility.
func (c *Channel) Join(chatID string) {
	c.emit(evtJoinChat, chatPayload{ChatID: chatID})
}

// Leave stops live updates for the given conversation.
func (c *Channel) Leave(chatID string) {
	c.emit(evtLeaveChat, chatPayload{ChatID: chatID})
}

// DeleteMessage requests deletion of a message.
func (c *Channel) DeleteMessage(messageID string) {
	c.emit(evtDeleteMessage, deleteMessagePayload{MessageID: messageID})
}

// Typing signals that the local user started typing in a conversation.
func (c *Channel) Typing(chatID string) {
	c.emit(evtTyping, TypingEvent{ChatID: chatID})
}

// StopTyping signals that the local user stopped typing.
func (c *Channel) StopTyping(chatID string) {
	c.emit(evtStopTyping, TypingEvent{ChatID: chatID})
}

// FetchHistory requests a history page over the live connection. Unlike
// fire-and-forget sends it fails fast when disconnected, and it is bounded
// by the ack timeout rather than waiting forever on a silent server.
func (c *Channel) FetchHistory(ctx context.Context, chatID string, limit int, cursor string) (*HistoryPage, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	id := c.ackSeq.Add(1)
	ch := make(chan HistoryPage, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(Frame{
		Event: evtGetMessages,
		Ack:   id,
		Data:  mustMarshal(getMessagesPayload{ChatID: chatID, Limit: limit, Cursor: cursor}),
	}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.ackTimeout)
	defer cancel()

	select {
	case page := <-ch:
		return &page, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("history fetch for %s: %w", chatID, ctx.Err())
	}
}

// emit sends a fire-and-forget frame, silently dropping it when the
// channel is not connected.
func (c *Channel) emit(event string, payload any) {
	if !c.IsConnected() {
		c.logger.Debug("dropping frame, not connected", zap.String("event", event))
		return
	}
	if err := c.write(Frame{Event: event, Data: mustMarshal(payload)}); err != nil {
		c.logger.Warn("failed to send frame", zap.String("event", event), zap.Error(err))
	}
}

func (c *Channel) write(f Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, f)
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if ctx.Err() != nil {
				// Deliberate teardown.
				return
			}
			c.logger.Warn("live connection lost", zap.Error(err))
			_ = c.machine.Transition(status.Error)
			return
		}

		evt, err := ParseFrame(f)
		if err != nil {
			c.logger.Warn("dropping inbound frame", zap.Error(err))
			continue
		}

		if f.Ack != 0 {
			c.resolveAck(f.Ack, evt)
			continue
		}
		c.dispatch(evt)
	}
}

func (c *Channel) resolveAck(id uint64, evt Inbound) {
	page, ok := evt.(HistoryPage)
	if !ok {
		c.logger.Warn("ack frame with unexpected event", zap.Uint64("ack", id))
		return
	}
	c.pendingMu.Lock()
	ch := c.pending[id]
	delete(c.pending, id)
	c.pendingMu.Unlock()
	if ch != nil {
		ch <- page
	}
}

// dispatch publishes one typed inbound event on the bus, in the order
// frames were received. No ordering guarantee exists beyond that.
func (c *Channel) dispatch(evt Inbound) {
	now := time.Now()
	switch e := evt.(type) {
	case NewMessage:
		c.bus.Publish(bus.Event{Kind: bus.KindChannelMessage, Timestamp: now, Payload: e.Message})
	case Typing:
		c.bus.Publish(bus.Event{Kind: bus.KindChannelTyping, Timestamp: now, Payload: TypingEvent(e)})
	case StopTyping:
		c.bus.Publish(bus.Event{Kind: bus.KindChannelStopTyping, Timestamp: now, Payload: TypingEvent(e)})
	case UserOnline:
		c.bus.Publish(bus.Event{Kind: bus.KindChannelUserOnline, Timestamp: now, Payload: PresenceEvent(e)})
	case UserOffline:
		c.bus.Publish(bus.Event{Kind: bus.KindChannelUserOffline, Timestamp: now, Payload: PresenceEvent(e)})
	case HistoryPage:
		// History pages arrive only as ack replies.
		c.logger.Warn("unsolicited history page dropped", zap.String("chat_id", e.ChatID))
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// All payload types are plain structs; this cannot fail.
		panic(err)
	}
	return data
}
