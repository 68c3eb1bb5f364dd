package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/bus"
	"go.uber.org/zap"
)

type fakeDialer struct {
	mu       sync.Mutex
	connects []string
	closes   int
	err      error
}

func (f *fakeDialer) Connect(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, token)
	return f.err
}

func (f *fakeDialer) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
}

func (f *fakeDialer) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connects)
}

func (f *fakeDialer) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeSession struct {
	mu    sync.Mutex
	state auth.State
	token string
}

func (f *fakeSession) State() auth.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeSession) set(state auth.State, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.token = token
}

func waitCond(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestSupervisorDialsOnAuthentication(t *testing.T) {
	b := bus.New()
	dialer := &fakeDialer{}
	session := &fakeSession{state: auth.Unauthenticated}
	s := newSupervisor(dialer, session, b, zap.NewNop())
	s.Start(context.Background())
	defer s.Stop()

	session.set(auth.Authenticated, "tok-1")
	b.Publish(bus.Event{Kind: bus.KindSessionAuthenticated})

	waitCond(t, "dial after authentication", func() bool { return dialer.connectCount() == 1 })
	dialer.mu.Lock()
	token := dialer.connects[0]
	dialer.mu.Unlock()
	if token != "tok-1" {
		t.Errorf("dialed with token %q, want tok-1", token)
	}
}

func TestSupervisorClosesOnLogout(t *testing.T) {
	b := bus.New()
	dialer := &fakeDialer{}
	session := &fakeSession{state: auth.Unauthenticated}
	s := newSupervisor(dialer, session, b, zap.NewNop())
	s.Start(context.Background())
	defer s.Stop()

	b.Publish(bus.Event{Kind: bus.KindSessionLoggedOut})
	waitCond(t, "teardown on logout", func() bool { return dialer.closeCount() == 1 })

	b.Publish(bus.Event{Kind: bus.KindSessionExpired})
	waitCond(t, "teardown on expiry", func() bool { return dialer.closeCount() == 2 })

	if dialer.connectCount() != 0 {
		t.Errorf("connects = %d, want 0", dialer.connectCount())
	}
}

func TestSupervisorSkipsDialWithoutCredential(t *testing.T) {
	b := bus.New()
	dialer := &fakeDialer{}
	// State flipped back before the event is processed: credential gone.
	session := &fakeSession{state: auth.Unauthenticated}
	s := newSupervisor(dialer, session, b, zap.NewNop())
	s.Start(context.Background())
	defer s.Stop()

	b.Publish(bus.Event{Kind: bus.KindSessionAuthenticated})
	time.Sleep(50 * time.Millisecond)
	if dialer.connectCount() != 0 {
		t.Errorf("connects = %d, want 0 without credential", dialer.connectCount())
	}
}

func TestSupervisorDialsOncePerCredential(t *testing.T) {
	b := bus.New()
	dialer := &fakeDialer{}
	session := &fakeSession{state: auth.Authenticated, token: "tok-1"}
	s := newSupervisor(dialer, session, b, zap.NewNop())
	s.Start(context.Background())
	defer s.Stop()

	b.Publish(bus.Event{Kind: bus.KindSessionAuthenticated})
	waitCond(t, "first dial", func() bool { return dialer.connectCount() == 1 })

	// A fresh sign-in drives a fresh dial.
	b.Publish(bus.Event{Kind: bus.KindSessionAuthenticated})
	waitCond(t, "second dial", func() bool { return dialer.connectCount() == 2 })
}
