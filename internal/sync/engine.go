// Package sync reconciles cached conversation state, live-pushed events,
// and local optimistic sends into one coherent view model. It is the single
// source of truth for the conversation list, the active conversation's
// message sequence, its typing set, and the global presence set.
package sync

import (
	"context"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/parley-chat/parley/internal/bus"
	"github.com/parley-chat/parley/internal/channel"
	"github.com/parley-chat/parley/internal/gateway"
	"github.com/parley-chat/parley/internal/model"
	"github.com/parley-chat/parley/internal/status"
	"go.uber.org/zap"
)

// reconcileWindow bounds how far apart an optimistic entry and its server
// echo may be created and still be considered the same message.
const reconcileWindow = 30 * time.Second

// LiveChannel is the subset of the live channel the engine drives.
type LiveChannel interface {
	IsConnected() bool
	Send(chatID, text, msgType, replyToID string)
	Join(chatID string)
	Leave(chatID string)
	Typing(chatID string)
	StopTyping(chatID string)
	FetchHistory(ctx context.Context, chatID string, limit int, cursor string) (*channel.HistoryPage, error)
}

// Backend is the subset of the request gateway the engine falls back to.
type Backend interface {
	ListChats(ctx context.Context) ([]model.Conversation, error)
	ListMessages(ctx context.Context, chatID string, limit int, cursor string) (*gateway.MessagePage, error)
	SendMessage(ctx context.Context, chatID string, req gateway.SendMessageRequest) (*model.Message, error)
}

// IdentitySource exposes the authenticated identity, used to recognize the
// local user's own message echoes.
type IdentitySource interface {
	Identity() *model.Identity
}

// Options tune the engine. Zero values fall back to documented defaults.
type Options struct {
	HistoryPageSize int
	MarkReadOnView  bool
	// TypingTTL is how long a typing indicator survives without a
	// stop_typing signal.
	TypingTTL time.Duration
}

type pendingSend struct {
	tempID    string
	chatID    string
	body      string
	createdAt int64
}

// Engine is the conversation synchronizer.
type Engine struct {
	live    LiveChannel
	backend Backend
	session IdentitySource
	bus     *bus.Bus
	logger  *zap.Logger
	opts    Options
	cancel  context.CancelFunc

	// mu serializes intents, bus events, and timer expiries over the view
	// state below.
	mu        gosync.Mutex
	convs     map[string]*model.Conversation
	messages  map[string][]model.Message
	loaded    map[string]bool
	typing    map[string]map[string]*time.Timer
	online    map[string]struct{}
	pending   map[string]pendingSend
	fetchGen  map[string]uint64
	active    string
	connState status.State
}

// NewEngine creates a synchronizer over the given collaborators.
func NewEngine(live LiveChannel, backend Backend, session IdentitySource, b *bus.Bus, opts Options, logger *zap.Logger) *Engine {
	if opts.HistoryPageSize <= 0 {
		opts.HistoryPageSize = 50
	}
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = 3 * time.Second
	}
	e := &Engine{
		live:      live,
		backend:   backend,
		session:   session,
		bus:       b,
		logger:    logger,
		opts:      opts,
		convs:     make(map[string]*model.Conversation),
		messages:  make(map[string][]model.Message),
		loaded:    make(map[string]bool),
		typing:    make(map[string]map[string]*time.Timer),
		online:    make(map[string]struct{}),
		pending:   make(map[string]pendingSend),
		fetchGen:  make(map[string]uint64),
		connState: status.Disconnected,
	}
	return e
}

// Start subscribes to live-channel and session events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	chEvents, unsubCh := e.bus.Subscribe("channel.", 256)
	sessEvents, unsubSess := e.bus.Subscribe("session.", 16)

	go func() {
		defer unsubCh()
		defer unsubSess()
		for {
			select {
			case evt := <-chEvents:
				e.handleChannelEvent(evt)
			case evt := <-sessEvents:
				e.handleSessionEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// LoadConversations fetches the conversation list through the gateway and
// replaces the cached one. Message sequences already loaded are kept.
func (e *Engine) LoadConversations(ctx context.Context) error {
	chats, err := e.backend.ListChats(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	for i := range chats {
		c := chats[i]
		if prev, ok := e.convs[c.ID]; ok {
			// Keep locally observed counters when the server snapshot
			// carries none.
			if c.UnreadCount == 0 && prev.UnreadCount > 0 {
				c.UnreadCount = prev.UnreadCount
			}
		}
		e.convs[c.ID] = &c
	}
	e.publishLocked()
	e.mu.Unlock()
	return nil
}

// SelectConversation makes id the active conversation: leaves the previous
// one on the live channel, joins the new one, clears its typing set, and
// loads history once. Re-selecting a loaded conversation reuses the cache.
func (e *Engine) SelectConversation(ctx context.Context, id string) {
	e.mu.Lock()
	prev := e.active
	if prev == id {
		e.mu.Unlock()
		return
	}
	if prev != "" {
		e.live.Leave(prev)
	}
	e.active = id
	e.live.Join(id)
	e.clearTypingLocked(id)
	if c, ok := e.convs[id]; ok && e.opts.MarkReadOnView {
		c.UnreadCount = 0
	}

	needLoad := !e.loaded[id]
	var gen uint64
	if needLoad {
		e.fetchGen[id]++
		gen = e.fetchGen[id]
		e.loaded[id] = true
	}
	e.publishLocked()
	e.mu.Unlock()

	if needLoad {
		go e.loadHistory(ctx, id, gen)
	}
}

// loadHistory fetches the first history page, preferring the live channel
// and falling back to the gateway. Results carrying a stale generation are
// dropped: the user has re-selected since.
func (e *Engine) loadHistory(ctx context.Context, id string, gen uint64) {
	var msgs []model.Message
	if e.live.IsConnected() {
		page, err := e.live.FetchHistory(ctx, id, e.opts.HistoryPageSize, "")
		if err != nil {
			e.logger.Warn("live history fetch failed", zap.String("chat_id", id), zap.Error(err))
		} else {
			msgs = page.Messages
		}
	}
	if msgs == nil {
		page, err := e.backend.ListMessages(ctx, id, e.opts.HistoryPageSize, "")
		if err != nil {
			e.logger.Error("history fetch failed", zap.String("chat_id", id), zap.Error(err))
			e.mu.Lock()
			if e.fetchGen[id] == gen {
				// Allow a retry on the next selection.
				e.loaded[id] = false
			}
			e.mu.Unlock()
			return
		}
		msgs = page.Messages
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fetchGen[id] != gen {
		e.logger.Info("dropping stale history page", zap.String("chat_id", id))
		return
	}
	// History forms the base sequence; anything that arrived live in the
	// meantime is appended behind it, deduplicated by id.
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		seen[m.ID] = struct{}{}
	}
	merged := append([]model.Message{}, msgs...)
	for _, m := range e.messages[id] {
		if _, dup := seen[m.ID]; !dup {
			merged = append(merged, m)
		}
	}
	e.messages[id] = merged
	e.publishLocked()
}

// SendOptions carries optional send parameters.
type SendOptions struct {
	Type      string
	ReplyToID string
}

// Send delivers text to the active conversation. It is a no-op when there
// is no active conversation or the text is empty after trimming. The live
// channel is preferred; otherwise the message goes through the gateway's
// persistent send with an optimistic local entry.
func (e *Engine) Send(ctx context.Context, text string, opts SendOptions) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	msgType := opts.Type
	if msgType == "" {
		msgType = model.TypeText
	}

	e.mu.Lock()
	active := e.active
	if active == "" {
		e.mu.Unlock()
		return
	}

	if e.live.IsConnected() {
		e.mu.Unlock()
		e.live.Send(active, text, msgType, opts.ReplyToID)
		return
	}

	// Fallback path: optimistic append under a temporary identifier.
	now := time.Now().UnixMilli()
	temp := model.Message{
		ID:        "local-" + uuid.New().String(),
		ChatID:    active,
		SenderID:  e.selfID(),
		Body:      text,
		Type:      msgType,
		CreatedAt: now,
		ReplyToID: opts.ReplyToID,
		Pending:   true,
	}
	e.messages[active] = append(e.messages[active], temp)
	e.pending[temp.ID] = pendingSend{tempID: temp.ID, chatID: active, body: text, createdAt: now}
	e.publishLocked()
	e.mu.Unlock()

	go e.sendFallback(ctx, active, temp.ID, gateway.SendMessageRequest{
		Text:      text,
		Type:      msgType,
		ReplyToID: opts.ReplyToID,
	})
}

func (e *Engine) sendFallback(ctx context.Context, chatID, tempID string, req gateway.SendMessageRequest) {
	confirmed, err := e.backend.SendMessage(ctx, chatID, req)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.logger.Error("fallback send failed", zap.String("chat_id", chatID), zap.Error(err))
		e.removeMessageLocked(chatID, tempID)
		delete(e.pending, tempID)
		e.publishLocked()
		return
	}

	delete(e.pending, tempID)
	e.adoptConfirmedLocked(chatID, tempID, *confirmed)
	e.publishLocked()
}

// adoptConfirmedLocked replaces the optimistic entry with the confirmed
// message, or appends it if the temp entry is already gone.
func (e *Engine) adoptConfirmedLocked(chatID, tempID string, confirmed model.Message) {
	seq := e.messages[chatID]
	for i := range seq {
		if seq[i].ID == confirmed.ID {
			// Server echo arrived first; just drop the temp.
			e.removeMessageLocked(chatID, tempID)
			return
		}
	}
	for i := range seq {
		if seq[i].ID == tempID {
			seq[i] = confirmed
			e.bumpLastMessageLocked(chatID, confirmed)
			return
		}
	}
	e.messages[chatID] = append(seq, confirmed)
	e.bumpLastMessageLocked(chatID, confirmed)
}

func (e *Engine) removeMessageLocked(chatID, msgID string) {
	seq := e.messages[chatID]
	for i := range seq {
		if seq[i].ID == msgID {
			e.messages[chatID] = append(seq[:i:i], seq[i+1:]...)
			return
		}
	}
}

// MarkAsRead clears a conversation's unread counter.
func (e *Engine) MarkAsRead(id string) {
	e.mu.Lock()
	if c, ok := e.convs[id]; ok && c.UnreadCount != 0 {
		c.UnreadCount = 0
		e.publishLocked()
	}
	e.mu.Unlock()
}

// NotifyTyping signals the local user typing in the active conversation.
func (e *Engine) NotifyTyping() {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if active != "" {
		e.live.Typing(active)
	}
}

// NotifyStopTyping signals the local user stopped typing.
func (e *Engine) NotifyStopTyping() {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if active != "" {
		e.live.StopTyping(active)
	}
}

func (e *Engine) handleChannelEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindChannelMessage:
		msg, ok := evt.Payload.(model.Message)
		if !ok {
			return
		}
		e.ingestMessage(msg)
	case bus.KindChannelTyping:
		te, ok := evt.Payload.(channel.TypingEvent)
		if !ok {
			return
		}
		e.addTyping(te.ChatID, te.UserID)
	case bus.KindChannelStopTyping:
		te, ok := evt.Payload.(channel.TypingEvent)
		if !ok {
			return
		}
		e.removeTyping(te.ChatID, te.UserID)
	case bus.KindChannelUserOnline:
		pe, ok := evt.Payload.(channel.PresenceEvent)
		if !ok {
			return
		}
		e.mu.Lock()
		e.online[pe.UserID] = struct{}{}
		e.publishLocked()
		e.mu.Unlock()
	case bus.KindChannelUserOffline:
		pe, ok := evt.Payload.(channel.PresenceEvent)
		if !ok {
			return
		}
		e.mu.Lock()
		delete(e.online, pe.UserID)
		e.publishLocked()
		e.mu.Unlock()
	case bus.KindChannelStatus:
		change, ok := evt.Payload.(status.Change)
		if !ok {
			return
		}
		e.mu.Lock()
		e.connState = change.To
		e.publishLocked()
		e.mu.Unlock()
	}
}

func (e *Engine) handleSessionEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindSessionLoggedOut, bus.KindSessionExpired:
		e.reset()
	}
}

// ingestMessage folds one confirmed inbound message into local state:
// dedupe by id, append, bump the unread counter and last-message pointer
// unconditionally, then clear the counter again iff the conversation is on
// screen and mark-read-on-view is enabled.
func (e *Engine) ingestMessage(msg model.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.messages[msg.ChatID] {
		if existing.ID == msg.ID {
			return
		}
	}

	// A confirmed echo of an outstanding optimistic send replaces the temp
	// entry instead of appearing next to it.
	if tempID := e.matchPendingLocked(msg); tempID != "" {
		e.removeMessageLocked(msg.ChatID, tempID)
		delete(e.pending, tempID)
	}

	e.messages[msg.ChatID] = append(e.messages[msg.ChatID], msg)

	c, ok := e.convs[msg.ChatID]
	if !ok {
		c = &model.Conversation{ID: msg.ChatID}
		e.convs[msg.ChatID] = c
	}
	c.UnreadCount++
	last := msg
	c.LastMessage = &last

	if msg.ChatID == e.active && e.opts.MarkReadOnView {
		c.UnreadCount = 0
	}
	e.publishLocked()
}

func (e *Engine) matchPendingLocked(msg model.Message) string {
	self := e.selfID()
	if self == "" || msg.SenderID != self {
		return ""
	}
	window := reconcileWindow.Milliseconds()
	for id, p := range e.pending {
		if p.chatID == msg.ChatID && p.body == msg.Body && abs64(msg.CreatedAt-p.createdAt) <= window {
			return id
		}
	}
	return ""
}

func (e *Engine) bumpLastMessageLocked(chatID string, msg model.Message) {
	c, ok := e.convs[chatID]
	if !ok {
		c = &model.Conversation{ID: chatID}
		e.convs[chatID] = c
	}
	if c.LastMessage == nil || msg.CreatedAt >= c.LastMessage.CreatedAt {
		last := msg
		c.LastMessage = &last
	}
}

// addTyping adds the sender to the conversation's typing set and schedules
// automatic removal after the typing TTL.
func (e *Engine) addTyping(chatID, userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	set, ok := e.typing[chatID]
	if !ok {
		set = make(map[string]*time.Timer)
		e.typing[chatID] = set
	}
	if prev, ok := set[userID]; ok {
		prev.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(e.opts.TypingTTL, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		// A stop_typing may have raced the expiry; only remove the entry
		// this timer still owns.
		if cur, ok := e.typing[chatID][userID]; ok && cur == timer {
			delete(e.typing[chatID], userID)
			e.publishLocked()
		}
	})
	set[userID] = timer
	e.publishLocked()
}

// removeTyping removes the sender immediately; the pending decay timer
// becomes a redundant no-op.
func (e *Engine) removeTyping(chatID, userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if timer, ok := e.typing[chatID][userID]; ok {
		timer.Stop()
		delete(e.typing[chatID], userID)
		e.publishLocked()
	}
}

func (e *Engine) clearTypingLocked(chatID string) {
	for _, timer := range e.typing[chatID] {
		timer.Stop()
	}
	delete(e.typing, chatID)
}

// reset drops all view state on session teardown.
func (e *Engine) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for chatID := range e.typing {
		e.clearTypingLocked(chatID)
	}
	e.convs = make(map[string]*model.Conversation)
	e.messages = make(map[string][]model.Message)
	e.loaded = make(map[string]bool)
	e.online = make(map[string]struct{})
	e.pending = make(map[string]pendingSend)
	e.fetchGen = make(map[string]uint64)
	e.active = ""
	e.publishLocked()
}

func (e *Engine) selfID() string {
	if id := e.session.Identity(); id != nil {
		return id.ID
	}
	return ""
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
