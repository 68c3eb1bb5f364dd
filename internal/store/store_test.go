package store

import (
	"path/filepath"
	"testing"

	"github.com/parley-chat/parley/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCredentialRoundTrip(t *testing.T) {
	db := testDB(t)

	cred, err := db.Credential()
	if err != nil {
		t.Fatal(err)
	}
	if cred != nil {
		t.Fatalf("fresh db has credential: %+v", cred)
	}

	want := model.Credential{Token: "tok-abc", IssuedAt: 1000}
	if err := db.SaveCredential(want, 2000); err != nil {
		t.Fatal(err)
	}

	cred, err = db.Credential()
	if err != nil {
		t.Fatal(err)
	}
	if cred == nil || cred.Token != "tok-abc" || cred.IssuedAt != 1000 {
		t.Errorf("Credential() = %+v, want %+v", cred, want)
	}

	at, err := db.LastLoginAt()
	if err != nil {
		t.Fatal(err)
	}
	if at != 2000 {
		t.Errorf("LastLoginAt() = %d, want 2000", at)
	}
}

func TestSaveCredentialReplaces(t *testing.T) {
	db := testDB(t)

	if err := db.SaveCredential(model.Credential{Token: "old", IssuedAt: 1}, 1); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveCredential(model.Credential{Token: "new", IssuedAt: 2}, 2); err != nil {
		t.Fatal(err)
	}

	cred, err := db.Credential()
	if err != nil {
		t.Fatal(err)
	}
	if cred.Token != "new" {
		t.Errorf("token = %q, want new", cred.Token)
	}
}

func TestDeleteCredential(t *testing.T) {
	db := testDB(t)

	if err := db.SaveCredential(model.Credential{Token: "tok", IssuedAt: 1}, 1); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveIdentity(model.Identity{ID: "u1", DisplayName: "Alice"}); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteCredential(); err != nil {
		t.Fatal(err)
	}

	cred, err := db.Credential()
	if err != nil {
		t.Fatal(err)
	}
	if cred != nil {
		t.Errorf("credential survived delete: %+v", cred)
	}

	id, err := db.Identity()
	if err != nil {
		t.Fatal(err)
	}
	if id != nil {
		t.Errorf("identity survived delete: %+v", id)
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	db := testDB(t)

	if err := db.SaveIdentity(model.Identity{ID: "u1", DisplayName: "Alice", AvatarURL: "https://a/x.png"}); err != nil {
		t.Fatal(err)
	}

	id, err := db.Identity()
	if err != nil {
		t.Fatal(err)
	}
	if id == nil || id.ID != "u1" || id.DisplayName != "Alice" || id.AvatarURL != "https://a/x.png" {
		t.Errorf("Identity() = %+v", id)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() reported changes")
	}
}
