package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

// ConflictsRepository lit les conflits; l'écriture passe par
// ListEntriesRepository.MarkConflicted.
type ConflictsRepository struct {
	db *sql.DB
}

func NewConflictsRepository(db *sql.DB) *ConflictsRepository {
	return &ConflictsRepository{db: db}
}

func (r *ConflictsRepository) Get(ctx context.Context, localID int64) (domain.Conflict, error) {
	c, err := scanConflict(r.db.QueryRowContext(ctx, `
		SELECT local_id, reason, remote_json, message, detected_at FROM list_entry_conflicts WHERE local_id = ?
	`, localID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Conflict{}, ports.ErrNotFound
		}
		return domain.Conflict{}, mapErr("conflict get", err)
	}
	return c, nil
}

func (r *ConflictsRepository) List(ctx context.Context) ([]domain.Conflict, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT local_id, reason, remote_json, message, detected_at FROM list_entry_conflicts ORDER BY detected_at ASC, local_id ASC
	`)
	if err != nil {
		return nil, mapErr("conflict list", err)
	}
	defer rows.Close()

	out := []domain.Conflict{}
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, mapErr("conflict list", err)
		}
		out = append(out, c)
	}
	return out, mapErr("conflict list", rows.Err())
}

func scanConflict(s rowScanner) (domain.Conflict, error) {
	var c domain.Conflict
	var reason, detected string
	var remote []byte
	if err := s.Scan(&c.LocalID, &reason, &remote, &c.Message, &detected); err != nil {
		return domain.Conflict{}, err
	}
	c.Reason = domain.ConflictReason(reason)
	var err error
	if c.Remote, err = decodeConflictRemote(remote); err != nil {
		return domain.Conflict{}, err
	}
	if c.DetectedAt, err = parseTime(detected); err != nil {
		return domain.Conflict{}, err
	}
	return c, nil
}
