package app

import (
	"context"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/bus"
	"go.uber.org/zap"
)

// liveDialer is the piece of the live channel the supervisor drives.
type liveDialer interface {
	Connect(ctx context.Context, token string) error
	Close()
}

// sessionSource exposes the credential the supervisor dials with.
type sessionSource interface {
	State() auth.State
	Token() string
}

// supervisor ties the live channel's lifetime to the session: one dial per
// credential appearance, teardown when the credential goes away. A failed
// dial leaves the connection state in ERROR; the next sign-in is the only
// path back.
type supervisor struct {
	live    liveDialer
	session sessionSource
	bus     *bus.Bus
	logger  *zap.Logger
	cancel  context.CancelFunc
}

func newSupervisor(live liveDialer, session sessionSource, b *bus.Bus, logger *zap.Logger) *supervisor {
	return &supervisor{
		live:    live,
		session: session,
		bus:     b,
		logger:  logger,
	}
}

func (s *supervisor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	sessEvents, unsub := s.bus.Subscribe("session.", 16)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-sessEvents:
				switch evt.Kind {
				case bus.KindSessionAuthenticated:
					go s.dial(ctx)
				case bus.KindSessionLoggedOut, bus.KindSessionExpired:
					s.live.Close()
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *supervisor) dial(ctx context.Context) {
	if s.session.State() != auth.Authenticated {
		return
	}
	token := s.session.Token()
	if token == "" {
		return
	}
	if err := s.live.Connect(ctx, token); err != nil {
		s.logger.Error("live channel dial failed", zap.Error(err))
	}
}
