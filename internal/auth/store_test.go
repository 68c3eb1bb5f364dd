package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/parley-chat/parley/internal/bus"
	"github.com/parley-chat/parley/internal/gateway"
	"github.com/parley-chat/parley/internal/store"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testServer(t *testing.T, handler http.HandlerFunc) *gateway.Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return gateway.New(srv.URL, "parley-test", 5*time.Second, zap.NewNop())
}

func TestRestoreWithoutCredential(t *testing.T) {
	db := testDB(t)
	gw := testServer(t, func(w http.ResponseWriter, r *http.Request) {})
	s := New(db, gw, bus.New(), zap.NewNop())

	if s.State() != Loading {
		t.Fatalf("initial state = %s, want LOADING", s.State())
	}
	if got := s.Restore(); got != Unauthenticated {
		t.Errorf("Restore() = %s, want UNAUTHENTICATED", got)
	}
}

func TestLoginThenRestore(t *testing.T) {
	db := testDB(t)
	gw := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"tok-1","user":{"id":"u1","displayName":"Alice"}}`))
	})
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	s := New(db, gw, b, zap.NewNop())
	s.Restore()

	if err := s.Login(context.Background(), "a@x.com", "secret123"); err != nil {
		t.Fatal(err)
	}
	if s.State() != Authenticated {
		t.Errorf("state = %s, want AUTHENTICATED", s.State())
	}
	if s.Token() != "tok-1" {
		t.Errorf("Token() = %q, want tok-1", s.Token())
	}
	if id := s.Identity(); id == nil || id.DisplayName != "Alice" {
		t.Errorf("Identity() = %+v", id)
	}

	// One authenticated event published.
	select {
	case evt := <-ch:
		if evt.Kind != bus.KindSessionAuthenticated {
			t.Errorf("event kind = %q, want %q", evt.Kind, bus.KindSessionAuthenticated)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for session event")
	}

	// A fresh store over the same db restores the session without any call.
	s2 := New(db, gw, bus.New(), zap.NewNop())
	if got := s2.Restore(); got != Authenticated {
		t.Errorf("Restore() after login = %s, want AUTHENTICATED", got)
	}
	if s2.Token() != "tok-1" {
		t.Errorf("restored Token() = %q, want tok-1", s2.Token())
	}
}

func TestLoginFailure(t *testing.T) {
	db := testDB(t)
	gw := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	s := New(db, gw, bus.New(), zap.NewNop())
	s.Restore()

	if err := s.Login(context.Background(), "a@x.com", "wrong"); err == nil {
		t.Fatal("Login() should fail")
	}
	if s.State() != Unauthenticated {
		t.Errorf("state = %s, want UNAUTHENTICATED", s.State())
	}
}

func TestLogoutClearsCredential(t *testing.T) {
	db := testDB(t)
	gw := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"tok-1","user":{"id":"u1"}}`))
	})
	s := New(db, gw, bus.New(), zap.NewNop())
	s.Restore()
	if err := s.Login(context.Background(), "a@x.com", "secret123"); err != nil {
		t.Fatal(err)
	}

	s.Logout()
	if s.State() != Unauthenticated {
		t.Errorf("state = %s, want UNAUTHENTICATED", s.State())
	}
	if s.Token() != "" {
		t.Errorf("Token() = %q, want empty", s.Token())
	}

	// A subsequent restore yields the unauthenticated state.
	s2 := New(db, gw, bus.New(), zap.NewNop())
	if got := s2.Restore(); got != Unauthenticated {
		t.Errorf("Restore() after logout = %s, want UNAUTHENTICATED", got)
	}
}

func TestCredentialRejectionForcesReauth(t *testing.T) {
	db := testDB(t)
	authed := true
	gw := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/login" {
			_, _ = w.Write([]byte(`{"token":"tok-1","user":{"id":"u1"}}`))
			return
		}
		if !authed {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	b := bus.New()
	s := New(db, gw, b, zap.NewNop())
	s.Restore()
	if err := s.Login(context.Background(), "a@x.com", "secret123"); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	// Server starts rejecting the token.
	authed = false
	_, err := gw.ListChats(context.Background())
	if !errors.Is(err, gateway.ErrCredentialRejected) {
		t.Fatalf("error = %v, want ErrCredentialRejected", err)
	}

	if s.State() != Unauthenticated {
		t.Errorf("state = %s, want UNAUTHENTICATED", s.State())
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindSessionExpired {
			t.Errorf("event kind = %q, want %q", evt.Kind, bus.KindSessionExpired)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for session.expired")
	}

	// Credential is gone from durable storage.
	cred, err := db.Credential()
	if err != nil {
		t.Fatal(err)
	}
	if cred != nil {
		t.Errorf("credential survived rejection: %+v", cred)
	}
}
