package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

// MetaRepository conserve de petites valeurs JSON indexées par clé
// (viewer courant, date de la dernière synchro).
type MetaRepository struct {
	db *sql.DB
}

func NewMetaRepository(db *sql.DB) *MetaRepository {
	return &MetaRepository{db: db}
}

func (r *MetaRepository) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var b []byte
	err := r.db.QueryRowContext(ctx, `SELECT value_json FROM meta WHERE key = ?`, key).Scan(&b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, mapErr("meta get", err)
	}
	if !json.Valid(b) {
		return nil, &ports.CacheError{Kind: ports.CacheCorrupt, Op: "meta get " + key}
	}
	return json.RawMessage(b), nil
}

func (r *MetaRepository) Put(ctx context.Context, key string, value json.RawMessage) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("meta key is required")
	}
	if !json.Valid(value) {
		return errors.New("meta value must be valid json")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO meta(key, value_json, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
	`, key, []byte(value), time.Now().UTC().Format(time.RFC3339))
	return mapErr("meta put", err)
}

func (r *MetaRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM meta WHERE key = ?`, key)
	return mapErr("meta delete", err)
}
