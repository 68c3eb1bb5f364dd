// Package auth owns the authenticated identity and the bearer credential.
// It is the only writer of the persisted credential; everything else reads
// session state through it or reacts to session.* bus events.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/parley-chat/parley/internal/bus"
	"github.com/parley-chat/parley/internal/gateway"
	"github.com/parley-chat/parley/internal/model"
	"github.com/parley-chat/parley/internal/store"
	"go.uber.org/zap"
)

// State is the session lifecycle state. The machine is
// loading -> {authenticated | unauthenticated}; authenticated ->
// unauthenticated on logout or credential rejection; there is no way back
// to loading after the first resolution.
type State string

const (
	Loading         State = "LOADING"
	Authenticated   State = "AUTHENTICATED"
	Unauthenticated State = "UNAUTHENTICATED"
)

// Store holds session state and drives the credential lifecycle.
type Store struct {
	mu       sync.RWMutex
	state    State
	cred     *model.Credential
	identity *model.Identity

	db     *store.DB
	gw     *gateway.Gateway
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates the session store and registers it with the gateway as both
// credential source and expiry handler.
func New(db *store.DB, gw *gateway.Gateway, b *bus.Bus, logger *zap.Logger) *Store {
	s := &Store{
		state:  Loading,
		db:     db,
		gw:     gw,
		bus:    b,
		logger: logger,
	}
	gw.SetCredentialSource(s)
	gw.SetOnExpired(s.expire)
	return s
}

// State returns the current session state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Identity returns the authenticated identity, or nil.
func (s *Store) Identity() *model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Token implements gateway.CredentialSource.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return ""
	}
	return s.cred.Token
}

// Restore reads any persisted credential at startup. A stored credential is
// accepted optimistically without revalidation; a stale token surfaces on
// the first rejected call.
func (s *Store) Restore() State {
	cred, err := s.db.Credential()
	if err != nil {
		s.logger.Error("failed to read credential", zap.Error(err))
		cred = nil
	}
	identity, err := s.db.Identity()
	if err != nil {
		s.logger.Error("failed to read identity", zap.Error(err))
		identity = nil
	}

	s.mu.Lock()
	if cred != nil {
		s.state = Authenticated
		s.cred = cred
		s.identity = identity
	} else {
		s.state = Unauthenticated
	}
	state := s.state
	s.mu.Unlock()

	if state == Authenticated {
		s.publish(bus.KindSessionAuthenticated)
		s.logger.Info("session restored", zap.String("user", userID(identity)))
	} else {
		s.logger.Info("no stored credential, sign-in required")
	}
	return state
}

// Login signs in against the service and, on success, persists the
// credential and transitions to authenticated.
func (s *Store) Login(ctx context.Context, identifier, secret string) error {
	resp, err := s.gw.SignIn(ctx, identifier, secret)
	if err != nil {
		return err
	}
	return s.adopt(resp)
}

// SignUp creates an account and adopts its first credential.
func (s *Store) SignUp(ctx context.Context, req gateway.SignUpRequest) error {
	resp, err := s.gw.SignUp(ctx, req)
	if err != nil {
		return err
	}
	return s.adopt(resp)
}

func (s *Store) adopt(resp *gateway.AuthResponse) error {
	now := time.Now().UnixMilli()
	cred := model.Credential{Token: resp.Token, IssuedAt: now}
	if err := s.db.SaveCredential(cred, now); err != nil {
		return err
	}
	if err := s.db.SaveIdentity(resp.User); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = Authenticated
	s.cred = &cred
	identity := resp.User
	s.identity = &identity
	s.mu.Unlock()

	s.publish(bus.KindSessionAuthenticated)
	s.logger.Info("signed in", zap.String("user", resp.User.ID))
	return nil
}

// Logout clears the persisted credential and transitions to
// unauthenticated. It is unconditional and does not fail.
func (s *Store) Logout() {
	if err := s.db.DeleteCredential(); err != nil {
		s.logger.Warn("failed to delete credential on logout", zap.Error(err))
	}

	s.mu.Lock()
	s.state = Unauthenticated
	s.cred = nil
	s.identity = nil
	s.mu.Unlock()

	s.publish(bus.KindSessionLoggedOut)
	s.logger.Info("logged out")
}

// Invalidate implements gateway.CredentialSource. It drops the persisted
// credential; the whole process sees this (forces re-authentication).
func (s *Store) Invalidate() {
	if err := s.db.DeleteCredential(); err != nil {
		s.logger.Warn("failed to delete rejected credential", zap.Error(err))
	}
	s.mu.Lock()
	s.cred = nil
	s.mu.Unlock()
}

// expire is the gateway expiry callback, invoked after the credential has
// been invalidated by a rejected call.
func (s *Store) expire() {
	s.mu.Lock()
	if s.state != Authenticated {
		s.mu.Unlock()
		return
	}
	s.state = Unauthenticated
	s.identity = nil
	s.mu.Unlock()

	s.publish(bus.KindSessionExpired)
	s.logger.Warn("credential expired, re-authentication required")
}

func (s *Store) publish(kind string) {
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: s.Identity()})
}

func userID(id *model.Identity) string {
	if id == nil {
		return ""
	}
	return id.ID
}
