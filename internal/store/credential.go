package store

import (
	"database/sql"

	"github.com/parley-chat/parley/internal/model"
)

// SaveCredential persists the bearer credential and the advisory login
// timestamp, replacing any previous one.
func (db *DB) SaveCredential(cred model.Credential, loginAt int64) error {
	_, err := db.Exec(`
		INSERT INTO credential (id, token, issued_at, last_login_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			issued_at = excluded.issued_at,
			last_login_at = excluded.last_login_at`,
		cred.Token, cred.IssuedAt, loginAt)
	return err
}

// Credential returns the persisted credential, or nil if none is stored.
func (db *DB) Credential() (*model.Credential, error) {
	var c model.Credential
	err := db.QueryRow(`SELECT token, issued_at FROM credential WHERE id = 1`).
		Scan(&c.Token, &c.IssuedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// LastLoginAt returns the advisory login timestamp, or 0 if no credential
// is stored.
func (db *DB) LastLoginAt() (int64, error) {
	var at int64
	err := db.QueryRow(`SELECT last_login_at FROM credential WHERE id = 1`).Scan(&at)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return at, err
}

// DeleteCredential removes the persisted credential and identity. Called on
// logout and on credential rejection; a subsequent restore yields the
// unauthenticated state.
func (db *DB) DeleteCredential() error {
	if _, err := db.Exec(`DELETE FROM credential`); err != nil {
		return err
	}
	_, err := db.Exec(`DELETE FROM identity`)
	return err
}

// SaveIdentity persists the authenticated identity.
func (db *DB) SaveIdentity(id model.Identity) error {
	_, err := db.Exec(`
		INSERT INTO identity (id, user_id, display_name, avatar_url)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url`,
		id.ID, id.DisplayName, id.AvatarURL)
	return err
}

// Identity returns the persisted identity, or nil if none is stored.
func (db *DB) Identity() (*model.Identity, error) {
	var id model.Identity
	err := db.QueryRow(`SELECT user_id, display_name, avatar_url FROM identity WHERE id = 1`).
		Scan(&id.ID, &id.DisplayName, &id.AvatarURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}
