package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the core packages. Subscribers filter by
// namespace prefix, e.g. "channel." receives every live-channel event.
const (
	// session.*: published by the session store.
	KindSessionAuthenticated = "session.authenticated"
	KindSessionLoggedOut     = "session.logged_out"
	KindSessionExpired       = "session.expired"

	// channel.*: published by the live channel.
	KindChannelStatus      = "channel.status"
	KindChannelMessage     = "channel.message"
	KindChannelTyping      = "channel.typing"
	KindChannelStopTyping  = "channel.stop_typing"
	KindChannelUserOnline  = "channel.user_online"
	KindChannelUserOffline = "channel.user_offline"

	// sync.*: published by the conversation synchronizer.
	KindSyncSnapshot = "sync.snapshot"
)
