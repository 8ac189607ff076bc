package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
)

// CredentialsRepository est un TokenStore adossé à la base: une seule ligne
// (id = 1), remplacée en une transaction.
type CredentialsRepository struct {
	db *sql.DB
}

func NewCredentialsRepository(db *sql.DB) *CredentialsRepository {
	return &CredentialsRepository{db: db}
}

func (r *CredentialsRepository) Load(ctx context.Context) (*domain.Credential, error) {
	var c domain.Credential
	var expires string
	err := r.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, token_type, expires_at, scope FROM credentials WHERE id = 1
	`).Scan(&c.AccessToken, &c.RefreshToken, &c.TokenType, &expires, &c.Scope)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapErr("credential load", err)
	}
	if c.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CredentialsRepository) Save(ctx context.Context, c domain.Credential) error {
	if !c.Valid() {
		return errors.New("credential access token is required")
	}
	return withTx(ctx, r.db, "credential save", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO credentials(id, access_token, refresh_token, token_type, expires_at, scope, updated_at)
			VALUES(1, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				access_token = excluded.access_token, refresh_token = excluded.refresh_token,
				token_type = excluded.token_type, expires_at = excluded.expires_at,
				scope = excluded.scope, updated_at = excluded.updated_at
		`, c.AccessToken, c.RefreshToken, c.TokenType, formatTime(c.ExpiresAt), c.Scope, time.Now().UTC().Format(time.RFC3339))
		return err
	})
}

func (r *CredentialsRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = 1`)
	return mapErr("credential clear", err)
}
