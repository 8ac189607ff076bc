package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

// ListEntriesRepository est le seul écrivain de list_entries et de
// list_entry_conflicts. Chaque méthode tient dans une transaction.
type ListEntriesRepository struct {
	db *sql.DB
}

func NewListEntriesRepository(db *sql.DB) *ListEntriesRepository {
	return &ListEntriesRepository{db: db}
}

const listEntryColumns = `local_id, media_id, remote_id, status, score, progress, updated_at_local, updated_at_remote, sync_state`

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *ListEntriesRepository) List(ctx context.Context) ([]domain.ListEntry, error) {
	return r.query(ctx, `SELECT `+listEntryColumns+` FROM list_entries ORDER BY local_id ASC`)
}

func (r *ListEntriesRepository) ListByState(ctx context.Context, state domain.SyncState) ([]domain.ListEntry, error) {
	return r.query(ctx, `SELECT `+listEntryColumns+` FROM list_entries WHERE sync_state = ? ORDER BY updated_at_local ASC, local_id ASC`, string(state))
}

func (r *ListEntriesRepository) query(ctx context.Context, q string, args ...any) ([]domain.ListEntry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr("list entries", err)
	}
	defer rows.Close()

	out := []domain.ListEntry{}
	for rows.Next() {
		e, err := scanListEntry(rows)
		if err != nil {
			return nil, mapErr("list entries", err)
		}
		out = append(out, e)
	}
	return out, mapErr("list entries", rows.Err())
}

func (r *ListEntriesRepository) Get(ctx context.Context, localID int64) (domain.ListEntry, error) {
	e, err := getEntry(ctx, r.db, `local_id = ?`, localID)
	return e, mapErr("list entry get", err)
}

func (r *ListEntriesRepository) GetByMediaID(ctx context.Context, mediaID int) (domain.ListEntry, error) {
	e, err := getEntry(ctx, r.db, `media_id = ?`, mediaID)
	return e, mapErr("list entry get", err)
}

// Upsert écrit l'entrée entière. Sans LocalID, media_id sert de clé
// naturelle. Quitter CONFLICTED efface le conflit associé.
func (r *ListEntriesRepository) Upsert(ctx context.Context, entry domain.ListEntry) (domain.ListEntry, error) {
	if err := entry.Validate(); err != nil {
		return domain.ListEntry{}, err
	}
	var out domain.ListEntry
	err := withTx(ctx, r.db, "list entry upsert", func(tx *sql.Tx) error {
		var current domain.ListEntry
		var err error
		if entry.LocalID > 0 {
			current, err = getEntry(ctx, tx, `local_id = ?`, entry.LocalID)
		} else {
			current, err = getEntry(ctx, tx, `media_id = ?`, entry.MediaID)
		}

		switch {
		case errors.Is(err, ports.ErrNotFound):
			if entry.LocalID > 0 {
				return ports.ErrNotFound
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO list_entries(media_id, remote_id, status, score, progress, updated_at_local, updated_at_remote, sync_state)
				VALUES(?, ?, ?, ?, ?, ?, ?, ?)
			`, entry.MediaID, nullInt(entry.RemoteID), string(entry.Status), nullScore(entry.Score), entry.Progress,
				formatTime(entry.UpdatedAtLocal), nullTime(entry.UpdatedAtRemote), string(entry.SyncState))
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			entry.LocalID = id
		case err != nil:
			return err
		default:
			if current.MediaID != entry.MediaID {
				return fmt.Errorf("%w: media_id cannot change", domain.ErrInvalidListEntry)
			}
			if !domain.CanTransitionSync(current.SyncState, entry.SyncState) {
				return domain.ErrInvalidSyncTransition
			}
			entry.LocalID = current.LocalID
			if _, err := tx.ExecContext(ctx, `
				UPDATE list_entries
				SET remote_id = ?, status = ?, score = ?, progress = ?, updated_at_local = ?, updated_at_remote = ?, sync_state = ?
				WHERE local_id = ?
			`, nullInt(entry.RemoteID), string(entry.Status), nullScore(entry.Score), entry.Progress,
				formatTime(entry.UpdatedAtLocal), nullTime(entry.UpdatedAtRemote), string(entry.SyncState), entry.LocalID); err != nil {
				return err
			}
			if entry.SyncState != domain.SyncConflicted {
				if _, err := tx.ExecContext(ctx, `DELETE FROM list_entry_conflicts WHERE local_id = ?`, entry.LocalID); err != nil {
					return err
				}
			}
		}

		out, err = getEntry(ctx, tx, `local_id = ?`, entry.LocalID)
		return err
	})
	if err != nil {
		return domain.ListEntry{}, err
	}
	return out, nil
}

// MarkDirty note une modification locale. Une entrée CONFLICTED le reste:
// seule une résolution explicite la fait sortir de cet état.
func (r *ListEntriesRepository) MarkDirty(ctx context.Context, localID int64, at time.Time) (domain.ListEntry, error) {
	if at.IsZero() {
		return domain.ListEntry{}, domain.ErrInvalidListEntry
	}
	return r.transition(ctx, "list entry mark dirty", localID, func(tx *sql.Tx, cur domain.ListEntry) error {
		next := domain.SyncDirty
		if cur.SyncState == domain.SyncConflicted {
			next = domain.SyncConflicted
		}
		_, err := tx.ExecContext(ctx, `UPDATE list_entries SET updated_at_local = ?, sync_state = ? WHERE local_id = ? AND sync_state = ?`,
			formatTime(at), string(next), localID, string(cur.SyncState))
		return err
	})
}

// MarkClean enregistre l'acquittement du serveur après un push.
func (r *ListEntriesRepository) MarkClean(ctx context.Context, localID int64, remoteID int, updatedAtRemote time.Time) (domain.ListEntry, error) {
	if remoteID <= 0 || updatedAtRemote.IsZero() {
		return domain.ListEntry{}, domain.ErrInvalidListEntry
	}
	return r.transition(ctx, "list entry mark clean", localID, func(tx *sql.Tx, cur domain.ListEntry) error {
		if cur.SyncState == domain.SyncConflicted {
			return ports.ErrConflictPending
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE list_entries SET remote_id = ?, updated_at_remote = ?, sync_state = ?
			WHERE local_id = ? AND sync_state = ?
		`, remoteID, formatTime(updatedAtRemote), string(domain.SyncClean), localID, string(cur.SyncState))
		if err != nil {
			return err
		}
		return expectOneRow(res)
	})
}

func (r *ListEntriesRepository) MarkConflicted(ctx context.Context, localID int64, conflict domain.Conflict) (domain.ListEntry, error) {
	remote, err := encodeConflictRemote(conflict.Remote)
	if err != nil {
		return domain.ListEntry{}, err
	}
	detected := conflict.DetectedAt
	if detected.IsZero() {
		detected = time.Now().UTC()
	}
	return r.transition(ctx, "list entry mark conflicted", localID, func(tx *sql.Tx, cur domain.ListEntry) error {
		if !domain.CanTransitionSync(cur.SyncState, domain.SyncConflicted) {
			return domain.ErrInvalidSyncTransition
		}
		res, err := tx.ExecContext(ctx, `UPDATE list_entries SET sync_state = ? WHERE local_id = ? AND sync_state = ?`,
			string(domain.SyncConflicted), localID, string(cur.SyncState))
		if err != nil {
			return err
		}
		if err := expectOneRow(res); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO list_entry_conflicts(local_id, reason, remote_json, message, detected_at)
			VALUES(?, ?, ?, ?, ?)
			ON CONFLICT(local_id) DO UPDATE SET
				reason = excluded.reason, remote_json = excluded.remote_json,
				message = excluded.message, detected_at = excluded.detected_at
		`, localID, string(conflict.Reason), remote, conflict.Message, formatTime(detected))
		return err
	})
}

func (r *ListEntriesRepository) Delete(ctx context.Context, localID int64) error {
	return withTx(ctx, r.db, "list entry delete", func(tx *sql.Tx) error {
		cur, err := getEntry(ctx, tx, `local_id = ?`, localID)
		if err != nil {
			return err
		}
		if cur.SyncState == domain.SyncConflicted {
			return ports.ErrConflictPending
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM list_entries WHERE local_id = ? AND sync_state <> ?`, localID, string(domain.SyncConflicted))
		return err
	})
}

// DeleteResolved supprime une entrée, y compris CONFLICTED. Réservé à la
// résolution "adopter le distant" quand le serveur n'a plus l'entrée.
func (r *ListEntriesRepository) DeleteResolved(ctx context.Context, localID int64) error {
	return withTx(ctx, r.db, "list entry delete resolved", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM list_entries WHERE local_id = ?`, localID)
		if err != nil {
			return err
		}
		return expectOneRow(res)
	})
}

func (r *ListEntriesRepository) transition(ctx context.Context, op string, localID int64, fn func(tx *sql.Tx, cur domain.ListEntry) error) (domain.ListEntry, error) {
	var out domain.ListEntry
	err := withTx(ctx, r.db, op, func(tx *sql.Tx) error {
		cur, err := getEntry(ctx, tx, `local_id = ?`, localID)
		if err != nil {
			return err
		}
		if err := fn(tx, cur); err != nil {
			return err
		}
		out, err = getEntry(ctx, tx, `local_id = ?`, localID)
		return err
	})
	if err != nil {
		return domain.ListEntry{}, err
	}
	return out, nil
}

func getEntry(ctx context.Context, q querier, where string, arg any) (domain.ListEntry, error) {
	e, err := scanListEntry(q.QueryRowContext(ctx, `SELECT `+listEntryColumns+` FROM list_entries WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ListEntry{}, ports.ErrNotFound
		}
		return domain.ListEntry{}, err
	}
	return e, nil
}

func scanListEntry(s rowScanner) (domain.ListEntry, error) {
	var e domain.ListEntry
	var remoteID sql.NullInt64
	var score sql.NullFloat64
	var status, state, updatedLocal string
	var updatedRemote sql.NullString
	if err := s.Scan(&e.LocalID, &e.MediaID, &remoteID, &status, &score, &e.Progress, &updatedLocal, &updatedRemote, &state); err != nil {
		return domain.ListEntry{}, err
	}
	e.Status = domain.ListStatus(status)
	e.SyncState = domain.SyncState(state)
	if remoteID.Valid {
		e.RemoteID = int(remoteID.Int64)
	}
	if score.Valid {
		v := score.Float64
		e.Score = &v
	}
	var err error
	if e.UpdatedAtLocal, err = parseTime(updatedLocal); err != nil {
		return domain.ListEntry{}, err
	}
	if updatedRemote.Valid {
		if e.UpdatedAtRemote, err = parseTime(updatedRemote.String); err != nil {
			return domain.ListEntry{}, err
		}
	}
	if err := e.Validate(); err != nil {
		return domain.ListEntry{}, &ports.CacheError{Kind: ports.CacheCorrupt, Op: fmt.Sprintf("list entry %d", e.LocalID), Err: err}
	}
	return e, nil
}

func nullScore(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ports.ErrNotFound
	}
	return nil
}

// conflictRemote est la forme JSON de l'instantané distant d'un conflit.
type conflictRemote struct {
	MediaID         int               `json:"mediaId"`
	RemoteID        int               `json:"remoteId,omitempty"`
	Status          domain.ListStatus `json:"status"`
	Score           *float64          `json:"score,omitempty"`
	Progress        int               `json:"progress"`
	UpdatedAtRemote time.Time         `json:"updatedAtRemote"`
}

func encodeConflictRemote(e *domain.ListEntry) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	return json.Marshal(conflictRemote{
		MediaID:         e.MediaID,
		RemoteID:        e.RemoteID,
		Status:          e.Status,
		Score:           e.Score,
		Progress:        e.Progress,
		UpdatedAtRemote: e.UpdatedAtRemote,
	})
}

func decodeConflictRemote(b []byte) (*domain.ListEntry, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var c conflictRemote
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, &ports.CacheError{Kind: ports.CacheCorrupt, Op: "conflict decode", Err: err}
	}
	return &domain.ListEntry{
		MediaID:         c.MediaID,
		RemoteID:        c.RemoteID,
		Status:          c.Status,
		Score:           c.Score,
		Progress:        c.Progress,
		UpdatedAtRemote: c.UpdatedAtRemote,
		SyncState:       domain.SyncClean,
	}, nil
}
